// Copyright 2025 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package sweep rebuilds a harness for each value of one integer module
// parameter and runs the traces against every build.
package sweep

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/ccharness/ccharness/pkg/csource"
	"github.com/ccharness/ccharness/pkg/log"
	"github.com/ccharness/ccharness/pkg/osutil"
	"github.com/ccharness/ccharness/pkg/runner"
)

// DefaultValues are the alpha values of the search tuning runs.
var DefaultValues = []float64{0.5, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13}

type Config struct {
	// Run configures the trace runs, its Output is ignored.
	Run *runner.Config
	// Param is the name of a file scope int in the module source.
	Param  string
	Values []float64
	// Output is a text/template (with sprig functions) of the output dir
	// of one value, executed over Point.
	Output string
	// Module overrides the module source, relative to the test dir.
	Module string
	// Keep leaves the last value in the module source.
	Keep bool
}

const DefaultOutput = "{{.Param | trimPrefix (print .Keyword \"_\")}}{{.Value}}/output"

type Point struct {
	Keyword string
	Param   string
	// Value is formatted the way it is written into the source.
	Value    string
	Output   string
	Manifest *runner.Manifest
	Err      error
}

// Sweep runs the traces once per value. Build or run failures of one value
// are recorded in its point and the sweep goes on with the next one.
func Sweep(ctx context.Context, cfg *Config) ([]*Point, error) {
	if cfg.Run == nil || cfg.Param == "" {
		return nil, errors.New("sweep needs a run config and a parameter")
	}
	values := cfg.Values
	if len(values) == 0 {
		values = DefaultValues
	}
	tmplText := cfg.Output
	if tmplText == "" {
		tmplText = DefaultOutput
	}
	tmpl, err := template.New("output").Funcs(sprig.TxtFuncMap()).Parse(tmplText)
	if err != nil {
		return nil, fmt.Errorf("bad output template: %w", err)
	}
	opts, err := csource.LoadOptions(cfg.Run.TestDir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		opts = csource.DefaultOptions(cfg.Run.Keyword)
	}
	if cfg.Run.Keyword != "" {
		opts.Keyword = cfg.Run.Keyword
	}
	module := cfg.Module
	if module == "" {
		module = opts.ModuleName()
	}
	module = filepath.Join(cfg.Run.TestDir, module)
	orig, err := os.ReadFile(module)
	if err != nil {
		return nil, err
	}
	if !cfg.Keep {
		defer func() {
			if err := osutil.WriteFile(module, orig); err != nil {
				log.Logf(0, "failed to restore %v: %v", module, err)
			}
		}()
	}
	var points []*Point
	var errs []error
	for _, v := range values {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		p := &Point{
			Keyword: opts.Lower(),
			Param:   cfg.Param,
			Value:   strconv.FormatFloat(v, 'f', -1, 64),
		}
		points = append(points, p)
		if p.Err = point(ctx, cfg, opts, tmpl, module, p); p.Err != nil {
			errs = append(errs, fmt.Errorf("%v = %v: %w", cfg.Param, p.Value, p.Err))
		}
	}
	return points, errors.Join(errs...)
}

func point(ctx context.Context, cfg *Config, opts csource.Options, tmpl *template.Template,
	module string, p *Point) error {
	buf := new(bytes.Buffer)
	if err := tmpl.Execute(buf, p); err != nil {
		return err
	}
	p.Output = strings.TrimSpace(buf.String())
	if err := SetParam(module, p.Param, p.Value); err != nil {
		return err
	}
	log.Logf(0, "Set %v = %v in %v", p.Param, p.Value, module)
	if err := csource.Clean(cfg.Run.TestDir); err != nil {
		log.Logf(1, "%v", err)
	}
	if _, err := csource.Build(cfg.Run.TestDir, opts); err != nil {
		return err
	}
	log.Logf(0, "Compiled with %v = %v", p.Param, p.Value)
	run := *cfg.Run
	run.Output = p.Output
	run.Build = false
	m, err := runner.Run(ctx, &run)
	p.Manifest = m
	if err != nil {
		return err
	}
	log.Logf(0, "Finished run for %v = %v, output to %v", p.Param, p.Value, p.Output)
	return nil
}

// SetParam replaces every line of file that defines the int param with
// "int <param> = <value>;".
func SetParam(file, param, value string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	re, err := regexp.Compile(`^int\s+` + regexp.QuoteMeta(param) + `\b`)
	if err != nil {
		return err
	}
	lines := strings.SplitAfter(string(data), "\n")
	found := false
	for i, line := range lines {
		if !re.MatchString(strings.TrimSpace(line)) {
			continue
		}
		found = true
		lines[i] = fmt.Sprintf("int %v = %v;\n", param, value)
	}
	if !found {
		return fmt.Errorf("%v: no definition of int %v", file, param)
	}
	return osutil.WriteFile(file, []byte(strings.Join(lines, "")))
}
