// Copyright 2025 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package gen runs the harness generation pipeline: section extraction,
// keyword rewriting, struct inference, dependency ordering and emission.
package gen

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ccharness/ccharness/pkg/config"
	"github.com/ccharness/ccharness/pkg/csource"
	"github.com/ccharness/ccharness/pkg/depgraph"
	"github.com/ccharness/ccharness/pkg/log"
	"github.com/ccharness/ccharness/pkg/osutil"
	"github.com/ccharness/ccharness/pkg/rewrite"
	"github.com/ccharness/ccharness/pkg/section"
	"github.com/ccharness/ccharness/pkg/structinfer"
)

type Config struct {
	Input   string `json:"input" yaml:"input" env:"INPUT"`
	Keyword string `json:"keyword" yaml:"keyword" env:"KEYWORD"`
	TestDir string `json:"test_dir" yaml:"test_dir" env:"TEST_DIR"`
	// OS is linux or freebsd.
	OS string `json:"os" yaml:"os" env:"OS"`
	// Engine defaults to the engine named after OS.
	Engine string `json:"engine,omitempty" yaml:"engine" env:"ENGINE"`
	Driver string `json:"driver" yaml:"driver" env:"DRIVER"`
	CC     string `json:"cc" yaml:"cc" env:"CC"`
	CFlags string `json:"cflags" yaml:"cflags" env:"CFLAGS"`
	// Stdint maps kernel integer types onto stdint.h types.
	Stdint       bool `json:"stdint,omitempty" yaml:"stdint" env:"STDINT"`
	NoHelper     bool `json:"no_helper,omitempty" yaml:"no_helper" env:"NO_HELPER"`
	StrictCycles bool `json:"strict_cycles,omitempty" yaml:"strict_cycles" env:"STRICT_CYCLES"`
	// BestEffort continues with a partial inference result when the engine
	// reports malformed input.
	BestEffort bool `json:"best_effort" yaml:"best_effort" env:"BEST_EFFORT"`
	Format     bool `json:"format,omitempty" yaml:"format" env:"FORMAT"`
	Build      bool `json:"build,omitempty" yaml:"build" env:"BUILD"`

	DryRun bool             `json:"-" yaml:"-"`
	Diff   io.Writer        `json:"-" yaml:"-"`
	Now    func() time.Time `json:"-" yaml:"-"`
}

func DefaultConfig() *Config {
	opts := csource.DefaultOptions("")
	return &Config{
		TestDir:    ".",
		OS:         opts.Flavor,
		Driver:     opts.Driver,
		CC:         opts.CC,
		CFlags:     opts.CFlags,
		BestEffort: true,
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

func (cfg *Config) options() csource.Options {
	now := time.Now
	if cfg.Now != nil {
		now = cfg.Now
	}
	return csource.Options{
		Keyword:   cfg.Keyword,
		Flavor:    cfg.OS,
		Driver:    cfg.Driver,
		Input:     cfg.Input,
		CC:        cfg.CC,
		CFlags:    cfg.CFlags,
		Generated: now(),
	}
}

// Artifact is the outcome of one generated file.
type Artifact struct {
	Name string
	Path string
	Err  error
}

type Report struct {
	Artifacts []Artifact
	Result    *structinfer.Result
	Order     []string
	// Binary is set if the harness was built.
	Binary string
}

func (rep *Report) add(name, path string, err error) {
	rep.Artifacts = append(rep.Artifacts, Artifact{Name: name, Path: path, Err: err})
	if err != nil {
		log.Logf(0, "%v: %v", name, err)
	}
}

// Err joins the errors of all artifacts.
func (rep *Report) Err() error {
	var errs []error
	for _, a := range rep.Artifacts {
		if a.Err != nil {
			errs = append(errs, fmt.Errorf("%v: %w", a.Name, a.Err))
		}
	}
	return errors.Join(errs...)
}

// Fatal reports whether some artifact failed for a reason other than
// missing section content.
func (rep *Report) Fatal() bool {
	for _, a := range rep.Artifacts {
		if a.Err != nil && !errors.Is(a.Err, section.ErrNoContent) {
			return true
		}
	}
	return false
}

func (rep *Report) Artifact(name string) (Artifact, bool) {
	for _, a := range rep.Artifacts {
		if a.Name == name {
			return a, true
		}
	}
	return Artifact{}, false
}

// Generate writes the harness of cfg.Keyword into cfg.TestDir.
// Independent artifacts are still written when an earlier one fails,
// the returned error is reserved for failures that prevent any output.
func Generate(cfg *Config) (*Report, error) {
	opts := cfg.options()
	if err := opts.Check(); err != nil {
		return nil, err
	}
	engineName := cfg.Engine
	if engineName == "" {
		engineName = cfg.OS
	}
	engine, err := structinfer.Get(engineName)
	if err != nil {
		return nil, err
	}
	src, err := os.ReadFile(cfg.Input)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	w := &Writer{Dir: cfg.TestDir, DryRun: cfg.DryRun, Diff: cfg.Diff, Format: cfg.Format}
	rep := new(Report)

	module, defs, known := extract(cfg, opts, src, w, rep)

	res, err := engine.Infer(module, known)
	if err != nil {
		if !cfg.BestEffort || !errors.Is(err, structinfer.ErrMalformed) {
			return rep, fmt.Errorf("inference failed: %w", err)
		}
		log.Logf(0, "inference is incomplete: %v", err)
	}
	for strct, fields := range csource.DriverFields(opts) {
		for _, f := range fields {
			res.AddField(strct, f)
		}
	}
	mode := depgraph.Tolerate
	if cfg.StrictCycles {
		mode = depgraph.Detect
	}
	order, err := depgraph.Build(res).Order(mode)
	rep.Result, rep.Order = res, order
	if err != nil {
		rep.add(opts.HeaderName(), "", err)
	} else {
		emit(w, rep, opts.HeaderName(), func() ([]byte, error) { return csource.Header(res, order, opts) })
	}
	if opts.Flavor == csource.Linux && (module != "" || defs != "") {
		decls := structinfer.FuncDecls(module)
		emit(w, rep, opts.DefsName(), func() ([]byte, error) { return csource.Defs(decls, defs, opts) })
	}
	if !cfg.NoHelper {
		emit(w, rep, opts.HelperName(), func() ([]byte, error) { return csource.Helper(res, opts) })
	}
	if opts.Driver != csource.DriverNone {
		emit(w, rep, opts.TestName(), func() ([]byte, error) { return csource.Test(res, opts) })
	}
	emit(w, rep, "Makefile", func() ([]byte, error) { return csource.Makefile(opts) })
	emit(w, rep, csource.OptionsFile, func() ([]byte, error) { return opts.Serialize(), nil })

	if cfg.Build && !cfg.DryRun && !rep.Fatal() {
		rep.Binary, err = csource.Build(cfg.TestDir, opts)
		rep.add("build", rep.Binary, err)
	}
	if !cfg.DryRun {
		if err := log.SaveCachedLog(filepath.Join(cfg.TestDir, "generate.log")); err != nil {
			log.Logf(0, "failed to save generate.log: %v", err)
		}
	}
	return rep, nil
}

// extract writes the module file and returns the rewritten module and defs
// sections together with the structs known to be defined elsewhere.
func extract(cfg *Config, opts csource.Options, src []byte, w *Writer, rep *Report) (
	string, string, structinfer.Known) {
	moduleRules := rewrite.ModuleRules
	defsRules := rewrite.DefsRules
	if cfg.Stdint {
		moduleRules = moduleRules.Concat(rewrite.KernelTypeRules)
		defsRules = defsRules.Concat(rewrite.KernelTypeRules)
	}
	if opts.Flavor == csource.FreeBSD {
		moduleRules = moduleRules.Concat(rewrite.BSDClockRules)
	} else {
		moduleRules = moduleRules.Concat(rewrite.ClockRules)
		defsRules = defsRules.Concat(rewrite.ClockRules)
	}

	module, err := section.Extract(src, cfg.Keyword, section.Module)
	if err != nil {
		rep.add(opts.ModuleName(), "", err)
	} else {
		module = moduleRules.Apply(module)
		emit(w, rep, opts.ModuleName(), func() ([]byte, error) { return csource.Module(module, opts) })
	}

	if opts.Flavor == csource.FreeBSD {
		header := strings.TrimSuffix(cfg.Input, filepath.Ext(cfg.Input)) + ".h"
		data, err := os.ReadFile(header)
		if err != nil {
			rep.add(opts.DefsName(), header, err)
			return module, "", structinfer.Known{}
		}
		path, err := w.Copy(header)
		rep.add(opts.DefsName(), path, err)
		return module, "", structinfer.KnownStructs(string(data))
	}

	defs, err := section.Extract(src, cfg.Keyword, section.Defs)
	if err != nil {
		// A missing defs section is expected for small modules.
		log.Logf(0, "No content found for marker type: defs")
		defs = ""
	} else {
		defs = defsRules.Apply(defs)
	}
	return module, defs, structinfer.KnownStructs(defs)
}

func emit(w *Writer, rep *Report, name string, render func() ([]byte, error)) {
	data, err := render()
	if err != nil {
		rep.add(name, "", err)
		return
	}
	path, err := w.Write(name, data)
	rep.add(name, path, err)
}

// Exists reports whether the harness of opts was generated in testDir.
func Exists(testDir string, opts csource.Options) bool {
	return osutil.IsExist(filepath.Join(testDir, opts.ModuleName())) &&
		osutil.IsExist(filepath.Join(testDir, "Makefile"))
}
