// Copyright 2025 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package stats

import (
	"github.com/VividCortex/gohistogram"
)

const histogramBuckets = 255

// Histogram is an approximate streaming distribution of values.
type Histogram struct {
	hist *gohistogram.NumericHistogram
}

func NewHistogram() *Histogram {
	return &Histogram{gohistogram.NewHistogram(histogramBuckets)}
}

func (h *Histogram) Add(v float64) {
	h.hist.Add(v)
}

func (h *Histogram) Count() int {
	return int(h.hist.Count())
}

// Quantile returns the approximate q quantile, or 0 if nothing was added.
func (h *Histogram) Quantile(q float64) float64 {
	if h.hist.Count() == 0 {
		return 0
	}
	return h.hist.Quantile(q)
}

func (h *Histogram) Mean() float64 {
	if h.hist.Count() == 0 {
		return 0
	}
	return h.hist.Mean()
}
