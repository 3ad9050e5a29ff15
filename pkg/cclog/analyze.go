// Copyright 2025 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package cclog

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/ccharness/ccharness/pkg/log"
	"github.com/ccharness/ccharness/pkg/osutil"
	"github.com/ccharness/ccharness/pkg/stats"
	"golang.org/x/sync/errgroup"
)

// Log file name suffixes that order the cases of a run. Files without
// the suffix are not part of the run.
var (
	NumericalSuffix = regexp.MustCompile(`_(\d+)\.txt$`)
	TogetherSuffix  = regexp.MustCompile(`(\d+)\.txt$`)
)

// NumericalFile is the name of the numerical report in the log dir.
const NumericalFile = "numerical_analysis.txt"

type Log struct {
	File   string
	Num    int
	Series *Series
	*Events
}

// List returns the log files in dir (plain or xz) carrying suffix,
// ordered by the number in the suffix.
func List(dir string, suffix *regexp.Regexp) ([]*Log, error) {
	names, err := doublestar.Glob(os.DirFS(dir), "*.{txt,txt.xz}")
	if err != nil {
		return nil, err
	}
	var logs []*Log
	for _, name := range names {
		m := suffix.FindStringSubmatch(strings.TrimSuffix(name, ".xz"))
		if m == nil {
			log.Logf(1, "skipping %v", name)
			continue
		}
		num, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		logs = append(logs, &Log{File: filepath.Join(dir, name), Num: num})
	}
	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].Num != logs[j].Num {
			return logs[i].Num < logs[j].Num
		}
		return logs[i].File < logs[j].File
	})
	return logs, nil
}

// Load parses logs with up to procs files in flight.
func Load(ctx context.Context, logs []*Log, p *Profile, procs int) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(procs, 1))
	for _, l := range logs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			log.Logf(0, "Processing file: %v", filepath.Base(l.File))
			s, err := ParseFile(l.File, p)
			if err != nil {
				return err
			}
			l.Series, l.Events = s, s.Events()
			return nil
		})
	}
	return g.Wait()
}

// Case is the numerical outcome of one log.
type Case struct {
	File string
	Loss float64
	// HasLoss is false if the log shows no loss at all.
	HasLoss bool
	Exit    float64
	// Early cases lost before the early loss threshold.
	Early bool
	// Reached is set if the phase exit happened before the first loss:
	// slow start exit for search, full_bw_cnt reaching 3 for bbr.
	Reached bool
}

type Summary struct {
	Profile   *Profile
	EarlyLoss float64
	Cases     []Case
	Early     int
	Reached   int
	// LossQuantiles of loss times at 50, 90 and 99 percent.
	LossQuantiles [3]float64
}

// Numerical summarizes loaded logs. Losses at time 0 count as no loss.
func Numerical(logs []*Log, p *Profile, earlyLoss float64) *Summary {
	sum := &Summary{Profile: p, EarlyLoss: earlyLoss}
	hist := stats.NewHistogram()
	for _, l := range logs {
		c := Case{File: filepath.Base(l.File), Loss: l.Loss, HasLoss: l.HasLoss}
		if c.HasLoss {
			hist.Add(c.Loss)
		}
		if c.HasLoss && c.Loss != 0 && c.Loss < earlyLoss {
			c.Early = true
			sum.Early++
		} else {
			switch p.Name {
			case "bbr":
				c.Reached = HasFullBwCnt3(l.Series, l.Series.LossIndex())
			default:
				c.Reached = l.HasExit && l.Exit != 0 && c.HasLoss && c.Loss != 0 && l.Exit < c.Loss
				c.Exit = l.Exit
			}
			if c.Reached {
				sum.Reached++
			}
		}
		sum.Cases = append(sum.Cases, c)
	}
	for i, q := range []float64{0.5, 0.9, 0.99} {
		sum.LossQuantiles[i] = hist.Quantile(q)
	}
	return sum
}

// AvgLoss is the mean loss time over cases with a loss.
func (sum *Summary) AvgLoss() (float64, bool) {
	return sum.avgLoss(func(c Case) bool { return true })
}

// AvgLateLoss is the mean loss time over cases that lost after the threshold.
func (sum *Summary) AvgLateLoss() (float64, bool) {
	return sum.avgLoss(func(c Case) bool { return c.Loss > sum.EarlyLoss })
}

func (sum *Summary) avgLoss(pred func(Case) bool) (float64, bool) {
	var losses []float64
	for _, c := range sum.Cases {
		if c.HasLoss && pred(c) {
			losses = append(losses, c.Loss)
		}
	}
	return stats.Average(losses)
}

// Ratio is the share of non-early cases that reached the phase exit.
func (sum *Summary) Ratio() (float64, bool) {
	n := len(sum.Cases) - sum.Early
	if n == 0 {
		return 0, false
	}
	return float64(sum.Reached) / float64(n), true
}

func (sum *Summary) Write(w io.Writer) error {
	buf := new(bytes.Buffer)
	bbr := sum.Profile.Name == "bbr"
	fmt.Fprintf(buf, "Numerical Analysis for %v Test Cases\n", strings.ToUpper(sum.Profile.Name))
	fmt.Fprintf(buf, "=====================================\n")
	for _, c := range sum.Cases {
		fmt.Fprintf(buf, "File: %v\n", c.File)
		fmt.Fprintf(buf, "  Loss time: %v\n", seconds(c.Loss, c.HasLoss))
		if bbr {
			fmt.Fprintf(buf, "  Full BW Count: %v\n", fullBwCount(c))
		} else {
			fmt.Fprintf(buf, "  Exit time: %v\n", seconds(c.Exit, c.Reached))
		}
		fmt.Fprintf(buf, "-------------------------------------\n")
	}
	fmt.Fprintf(buf, "Summary over %v files:\n", len(sum.Cases))
	fmt.Fprintf(buf, "Number of cases with loss time < %v sec: %v\n", sum.EarlyLoss, sum.Early)
	if bbr {
		fmt.Fprintf(buf, "Number of cases with full_bw_cnt = 3: %v\n", sum.Reached)
	} else {
		fmt.Fprintf(buf, "Number of cases with exit time before loss time: %v\n", sum.Reached)
	}
	avg, ok := sum.AvgLoss()
	fmt.Fprintf(buf, "Average loss time: %v sec\n", fixed(avg, ok))
	late, ok := sum.AvgLateLoss()
	fmt.Fprintf(buf, "Average loss time greater than %v sec: %v\n", sum.EarlyLoss, short(late, ok))
	ratio := "N/A"
	if v, ok := sum.Ratio(); ok && bbr {
		ratio = short(v, true)
	} else if ok {
		ratio = fixed(v, true)
	}
	if bbr {
		fmt.Fprintf(buf, "Average full_bw_cnt = 3 over non early loss files: %v\n", ratio)
	} else {
		fmt.Fprintf(buf, "Average exit time before loss time: %v\n", ratio)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func (sum *Summary) WriteFile(file string) error {
	buf := new(bytes.Buffer)
	if err := sum.Write(buf); err != nil {
		return err
	}
	return osutil.WriteFile(file, buf.Bytes())
}

func fullBwCount(c Case) string {
	switch {
	case c.Early:
		return "N/A"
	case c.Reached:
		return "3"
	}
	return "No 3"
}

func seconds(v float64, ok bool) string {
	if !ok {
		return "N/A"
	}
	return fixed(v, true) + " sec"
}

func fixed(v float64, ok bool) string {
	if !ok || math.IsNaN(v) {
		return "nan"
	}
	return strconv.FormatFloat(v, 'f', 6, 64)
}

// short formats v with the fewest digits that round trip, keeping a
// decimal point for integral values.
func short(v float64, ok bool) string {
	if !ok || math.IsNaN(v) {
		return "nan"
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// Compare runs the Mann-Whitney U test over loss times of two runs of the
// same traces and returns the p-value.
func Compare(old, cur []*Log) (float64, error) {
	losses := func(logs []*Log) *stats.Sample {
		s := &stats.Sample{}
		for _, l := range logs {
			if l.Events != nil && l.HasLoss {
				s.Xs = append(s.Xs, l.Loss)
			}
		}
		return s
	}
	a, b := losses(old), losses(cur)
	if len(a.Xs) == 0 || len(b.Xs) == 0 {
		return 0, fmt.Errorf("no losses to compare (%v old, %v new)", len(a.Xs), len(b.Xs))
	}
	return stats.UTest(a, b)
}
