// Copyright 2025 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package runner copies support files into a test dir and runs a built
// harness binary over a directory of traces, one log per trace.
package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/ccharness/ccharness/pkg/config"
	"github.com/ccharness/ccharness/pkg/csource"
	"github.com/ccharness/ccharness/pkg/log"
	"github.com/ccharness/ccharness/pkg/osutil"
	"github.com/ccharness/ccharness/pkg/stats"
	"github.com/google/uuid"
	"github.com/ulikunitz/xz"
	"golang.org/x/sync/errgroup"
)

// ManifestFile is written into the output dir after every run.
const ManifestFile = "run.json"

type Config struct {
	Keyword string `json:"keyword" yaml:"keyword" env:"KEYWORD"`
	TestDir string `json:"test_dir" yaml:"test_dir" env:"TEST_DIR"`
	Input   string `json:"input" yaml:"input" env:"INPUT"`
	Output  string `json:"output" yaml:"output" env:"OUTPUT"`
	// Pattern selects trace files in Input, doublestar syntax.
	Pattern string        `json:"pattern" yaml:"pattern" env:"PATTERN"`
	Procs   int           `json:"procs" yaml:"procs" env:"PROCS"`
	Timeout time.Duration `json:"timeout" yaml:"timeout" env:"TIMEOUT"`
	// XZ compresses logs into <name>.txt.xz.
	XZ    bool `json:"xz,omitempty" yaml:"xz" env:"XZ"`
	Build bool `json:"build,omitempty" yaml:"build" env:"BUILD"`
	// Metrics is a Prometheus textfile to write run metrics to.
	Metrics string `json:"metrics,omitempty" yaml:"metrics" env:"METRICS"`
}

func DefaultConfig() *Config {
	return &Config{
		TestDir: ".",
		Pattern: "*.csv",
		Procs:   1,
		Timeout: 10 * time.Minute,
	}
}

// LoadConfig loads a config file on top of the defaults and applies
// CCHARNESS_* environment overrides.
func LoadConfig(file string) (*Config, error) {
	cfg := DefaultConfig()
	if file != "" {
		if err := config.LoadFile(file, cfg); err != nil {
			return nil, err
		}
	}
	if err := config.ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

type Trace struct {
	Input    string        `json:"input"`
	Output   string        `json:"output"`
	Status   string        `json:"status"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

type Manifest struct {
	ID       string    `json:"id"`
	Keyword  string    `json:"keyword"`
	Binary   string    `json:"binary"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
	Traces   []Trace   `json:"traces"`
	// AvgDuration is the mean wall time of one trace.
	AvgDuration time.Duration `json:"avg_duration"`
}

// Failed returns the traces the binary failed on.
func (m *Manifest) Failed() []Trace {
	var res []Trace
	for _, t := range m.Traces {
		if t.Status != StatusOK {
			res = append(res, t)
		}
	}
	return res
}

// Run runs the test binary on every trace in cfg.Input. Failures of single
// traces are recorded in the manifest and do not stop the run.
func Run(ctx context.Context, cfg *Config) (*Manifest, error) {
	opts, err := csource.LoadOptions(cfg.TestDir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		opts = csource.DefaultOptions(cfg.Keyword)
	}
	if cfg.Keyword != "" {
		opts.Keyword = cfg.Keyword
	}
	bin := filepath.Join(cfg.TestDir, opts.ExecName())
	if cfg.Build {
		if bin, err = csource.Build(cfg.TestDir, opts); err != nil {
			return nil, err
		}
	}
	if !osutil.IsExecutable(bin) {
		return nil, fmt.Errorf("%v does not exist. Please compile the object file first", bin)
	}
	if bin, err = filepath.Abs(bin); err != nil {
		return nil, err
	}
	inputs, err := listInputs(cfg.Input, cfg.Pattern)
	if err != nil {
		return nil, err
	}
	if err := osutil.MkdirAll(cfg.Output); err != nil {
		return nil, err
	}
	m := &Manifest{
		ID:      uuid.NewString(),
		Keyword: opts.Keyword,
		Binary:  bin,
		Started: time.Now(),
		Traces:  make([]Trace, len(inputs)),
	}
	met := newMetrics()
	var avg stats.AverageValue[time.Duration]
	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(max(cfg.Procs, 1))
	for i, name := range inputs {
		g.Go(func() error {
			t := runTrace(ctx, cfg, bin, name)
			mu.Lock()
			m.Traces[i] = t
			mu.Unlock()
			met.observe(t)
			avg.Save(t.Duration)
			return nil
		})
	}
	g.Wait()
	m.Finished = time.Now()
	m.AvgDuration = avg.Value()
	var errs []error
	if err := config.SaveFile(filepath.Join(cfg.Output, ManifestFile), m); err != nil {
		errs = append(errs, err)
	}
	if cfg.Metrics != "" {
		if err := met.save(cfg.Metrics); err != nil {
			errs = append(errs, fmt.Errorf("failed to write metrics: %w", err))
		}
	}
	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}
	return m, errors.Join(errs...)
}

// listInputs returns slash-separated names of the traces relative to dir.
func listInputs(dir, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = "*.csv"
	}
	st, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("%v is not a directory", dir)
	}
	names, err := doublestar.Glob(os.DirFS(dir), pattern)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// outputName maps a trace name relative to the input dir to its log file.
// The extension is dropped and directories are joined into the name with "_",
// so that traces with the same base name in different dirs do not collide.
func outputName(name string, compress bool) string {
	name = strings.ReplaceAll(strings.TrimSuffix(name, path.Ext(name)), "/", "_") + ".txt"
	if compress {
		name += ".xz"
	}
	return name
}

func runTrace(ctx context.Context, cfg *Config, bin, name string) Trace {
	t := Trace{
		Input:  filepath.Join(cfg.Input, filepath.FromSlash(name)),
		Output: filepath.Join(cfg.Output, outputName(name, cfg.XZ)),
		Status: StatusOK,
	}
	start := time.Now()
	err := runOne(ctx, cfg, bin, t.Input, t.Output)
	t.Duration = time.Since(start)
	if err != nil {
		t.Status, t.Error = StatusFailed, err.Error()
		log.Logf(0, "Error during test execution: %v", err)
		return t
	}
	log.Logf(0, "Test completed. Output written to %v", t.Output)
	return t
}

func runOne(ctx context.Context, cfg *Config, bin, input, output string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := os.Create(output)
	if err != nil {
		return err
	}
	defer f.Close()
	buf := bufio.NewWriter(f)
	var w io.Writer = buf
	var xzw *xz.Writer
	if cfg.XZ {
		if xzw, err = xz.NewWriter(buf); err != nil {
			return err
		}
		w = xzw
	}
	cmd := osutil.Command(bin, input)
	cmd.Stdout = w
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultConfig().Timeout
	}
	_, runErr := osutil.RunContext(ctx, timeout, cmd)
	if xzw != nil {
		if err := xzw.Close(); err != nil && runErr == nil {
			runErr = err
		}
	}
	if err := buf.Flush(); err != nil && runErr == nil {
		runErr = err
	}
	if err := f.Close(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
