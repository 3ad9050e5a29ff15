// Copyright 2025 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package cclog parses the output of generated test binaries and derives
// congestion control events (first loss, slow start or startup exit) from it.
package cclog

import (
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strconv"
)

// Label extracts one series from log lines containing Match.
type Label struct {
	Name  string
	Match string
	Re    *regexp.Regexp
	// Parsed values are multiplied by Scale and divided by Div, 0 means 1.
	Scale float64
	Div   float64
	// Clamp bounds values to [Min, Max], values outside become 0.
	Clamp    bool
	Min, Max float64
	// Stamped samples record the latest now value as their timestamp.
	Stamped bool
}

func (l *Label) value(line string) (float64, bool) {
	m := l.Re.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	if l.Clamp && (v < l.Min || v > l.Max) {
		v = 0
	}
	if l.Scale != 0 {
		v *= l.Scale
	}
	if l.Div != 0 {
		v /= l.Div
	}
	return v, true
}

type Profile struct {
	Name string
	// Labels are tried in order, the first one contained in a line wins.
	Labels []*Label
	// Exit names the phase exit in charts.
	Exit string
	// exit returns the phase exit time given the first loss index.
	exit func(s *Series, lossIdx int) (float64, bool)
}

const (
	Now        = "now_us"
	LossHappen = "loss_happen"
	FullBwCnt  = "full_bw_cnt"
	RoundStart = "round_start"
	AppLimited = "app_limited"
	MaxBw      = "bbr_max_bw"
	FullBw     = "bbr_full_bw"
	Norm       = "norm"
	CurrDelv   = "curr_delv"
	PrevDelv   = "twice_prev_delv"
	ExitAt     = "exit"
	PassedBin  = "passed_bin"
)

func label(name, match, expr string) *Label {
	return &Label{Name: name, Match: match, Re: regexp.MustCompile(expr)}
}

func nowLabel() *Label {
	l := label(Now, "now_us:", `now_us: (\d+)`)
	l.Div = 1e6
	return l
}

var profiles = map[string]*Profile{
	"bbr": {
		Name: "bbr",
		Labels: []*Label{
			nowLabel(),
			label(MaxBw, "bbr_max_bw:", `bbr_max_bw: (\d+)`),
			label(FullBw, "bbr_full_bw:", `bbr_full_bw: (\d+)`),
			label(LossHappen, "loss_happen", `loss_happen: (\d+)`),
			label(RoundStart, "round_start", `round_start: (\d+)`),
			label(FullBwCnt, "full_bw_cnt", `full_bw_cnt: (\d+)`),
			label(AppLimited, "app_limited", `app_limited: (\d+)`),
		},
		Exit: "Startup Exit",
		exit: bbrExit,
	},
	"search": {
		Name: "search",
		Labels: []*Label{
			nowLabel(),
			{Name: Norm, Match: "norm", Re: regexp.MustCompile(`norm (-?\d+)`),
				Clamp: true, Min: 0, Max: 100, Stamped: true},
			{Name: CurrDelv, Match: "curr_delv", Re: regexp.MustCompile(`curr_delv (\d+)`),
				Div: 1e6, Stamped: true},
			label(LossHappen, "loss happen", `loss happen: (\d+)`),
			{Name: PrevDelv, Match: "prev_delv", Re: regexp.MustCompile(`prev_delv (\d+)`),
				Scale: 2, Div: 1e6},
			label(ExitAt, "Exit Slow Start at", `Exit Slow Start at (\d+)`),
			label(PassedBin, "passed_bin", `passed_bin (\d+)`),
		},
		Exit: "Slow start Exit",
		exit: searchExit,
	},
}

// Get returns the log profile registered under name.
func Get(name string) (*Profile, error) {
	p := profiles[name]
	if p == nil {
		return nil, fmt.Errorf("unknown log profile %q (available: %v)", name, Names())
	}
	return p, nil
}

func Names() []string {
	var names []string
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// bbrExit is the first now with full_bw_cnt == 3 before the first loss.
func bbrExit(s *Series, lossIdx int) (float64, bool) {
	now, cnt := s.Values[Now], s.Values[FullBwCnt]
	if lossIdx >= 0 {
		now = now[:min(lossIdx, len(now))]
		cnt = cnt[:min(lossIdx, len(cnt))]
	}
	for i, v := range cnt {
		if v == 3 && i < len(now) {
			return now[i], true
		}
	}
	return 0, false
}

// searchExit is the first "Exit Slow Start at" time, in seconds.
func searchExit(s *Series, lossIdx int) (float64, bool) {
	if exit := s.Values[ExitAt]; len(exit) != 0 {
		return exit[0] / 1e6, true
	}
	return 0, false
}

// HasFullBwCnt3 reports whether full_bw_cnt reached 3 before the first loss.
func HasFullBwCnt3(s *Series, lossIdx int) bool {
	cnt := s.Values[FullBwCnt]
	if lossIdx >= 0 {
		cnt = cnt[:min(lossIdx, len(cnt))]
	}
	return slices.Contains(cnt, 3)
}
