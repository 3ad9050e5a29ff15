// Copyright 2025 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package runner

import (
	"path/filepath"

	"github.com/ccharness/ccharness/pkg/osutil"
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	reg      *prometheus.Registry
	traces   *prometheus.CounterVec
	duration prometheus.Histogram
}

func newMetrics() *metrics {
	m := &metrics{
		reg: prometheus.NewRegistry(),
		traces: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ccharness_traces_total",
			Help: "Traces run through the harness binary.",
		}, []string{"status"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ccharness_trace_duration_seconds",
			Help:    "Wall time of one harness run.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
	}
	m.reg.MustRegister(m.traces, m.duration)
	// Both statuses are exported even if no trace ended up in them.
	m.traces.WithLabelValues(StatusOK)
	m.traces.WithLabelValues(StatusFailed)
	return m
}

func (m *metrics) observe(t Trace) {
	m.traces.WithLabelValues(t.Status).Inc()
	m.duration.Observe(t.Duration.Seconds())
}

func (m *metrics) save(file string) error {
	if err := osutil.MkdirAll(filepath.Dir(file)); err != nil {
		return err
	}
	return prometheus.WriteToTextfile(file, m.reg)
}
