// Copyright 2025 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package cclog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ulikunitz/xz"
)

// Series holds the per-label columns of one log. Columns are independent,
// so labels printed with uneven frequency are not aligned with each other.
type Series struct {
	Profile *Profile
	Values  map[string][]float64
	// Times holds, for stamped labels, the latest now value per sample.
	Times map[string][]float64
}

// Parse reads log lines from r. Lines matching no label are skipped,
// as are lines whose label matched but whose value could not be parsed.
func Parse(r io.Reader, p *Profile) (*Series, error) {
	s := &Series{
		Profile: p,
		Values:  make(map[string][]float64),
		Times:   make(map[string][]float64),
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(nil, 1<<20)
	for scanner.Scan() {
		s.line(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read log: %w", err)
	}
	return s, nil
}

func (s *Series) line(line string) {
	for _, l := range s.Profile.Labels {
		if !strings.Contains(line, l.Match) {
			continue
		}
		v, ok := l.value(line)
		if !ok {
			return
		}
		s.Values[l.Name] = append(s.Values[l.Name], v)
		if l.Stamped {
			var now float64
			if nows := s.Values[Now]; len(nows) != 0 {
				now = nows[len(nows)-1]
			}
			s.Times[l.Name] = append(s.Times[l.Name], now)
		}
		return
	}
}

// ParseFile parses a log file, decompressing it if it ends with .xz.
func ParseFile(file string, p *Profile) (*Series, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var r io.Reader = f
	if strings.HasSuffix(file, ".xz") {
		if r, err = xz.NewReader(bufio.NewReader(f)); err != nil {
			return nil, fmt.Errorf("%v: %w", file, err)
		}
	}
	s, err := Parse(r, p)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", file, err)
	}
	return s, nil
}

// LossIndex returns the index of the first now sample with the loss flag set,
// or -1 if there was no loss.
func (s *Series) LossIndex() int {
	now, loss := s.Values[Now], s.Values[LossHappen]
	for i, v := range loss {
		if i >= len(now) {
			break
		}
		if v == 1 {
			// The first sample with the loss timestamp, which differs from i
			// only if the log repeats now values.
			for j, t := range now {
				if t == now[i] {
					return j
				}
			}
		}
	}
	return -1
}

// Events are the timestamps, in seconds, derived from a Series.
type Events struct {
	Loss    float64
	HasLoss bool
	Exit    float64
	HasExit bool
	// RoundStarts are now values where round_start is set.
	RoundStarts []float64
	// FullBwCnt maps full_bw_cnt values to the round starts at which
	// they were observed before the first loss.
	FullBwCnt map[int][]float64
}

func (s *Series) Events() *Events {
	ev := &Events{FullBwCnt: make(map[int][]float64)}
	now := s.Values[Now]
	lossIdx := s.LossIndex()
	if lossIdx >= 0 {
		ev.Loss, ev.HasLoss = now[lossIdx], true
	}
	ev.Exit, ev.HasExit = s.Profile.exit(s, lossIdx)
	rounds := s.Values[RoundStart]
	for i, v := range rounds {
		if v == 1 && i < len(now) {
			ev.RoundStarts = append(ev.RoundStarts, now[i])
		}
	}
	cnt := s.Values[FullBwCnt]
	if lossIdx >= 0 {
		cnt = cnt[:min(lossIdx, len(cnt))]
	}
	for i, v := range cnt {
		if v > 0 && i < len(rounds) && rounds[i] == 1 && i < len(now) {
			ev.FullBwCnt[int(v)] = append(ev.FullBwCnt[int(v)], now[i])
		}
	}
	return ev
}
