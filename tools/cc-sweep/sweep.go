// Copyright 2025 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// cc-sweep rebuilds the harness for every value of a module parameter and
// runs the traces against each build.
//
// Usage:
//
//	cc-sweep -k search --param search_alpha --values 0.5,1,2 -i traces \
//		-o 'alpha{{.Value}}/output'
package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"

	"github.com/ccharness/ccharness/pkg/log"
	"github.com/ccharness/ccharness/pkg/runner"
	"github.com/ccharness/ccharness/pkg/sweep"
	"github.com/ccharness/ccharness/pkg/tool"
	"github.com/spf13/pflag"
)

func main() {
	flags := pflag.NewFlagSet("cc-sweep", pflag.ExitOnError)
	var (
		flagKeyword = flags.StringP("keyword", "k", "", "keyword of the harness (e.g. search)")
		flagTestDir = flags.StringP("test_dir", "d", "test_dir", "directory with the generated harness")
		flagInput   = flags.StringP("input_folder", "i", "", "folder with input traces")
		flagOutput  = flags.StringP("output_folder", "o", sweep.DefaultOutput,
			"template of the output folder of one value")
		flagParam   = flags.String("param", "search_alpha", "int parameter of the module to sweep")
		flagModule  = flags.String("module", "", "module source relative to the test dir")
		flagPattern = flags.String("pattern", "*.csv", "glob of input traces")
		flagProcs   = flags.Int("procs", 1, "traces to run in parallel")
		flagXZ      = flags.Bool("xz", false, "compress logs with xz")
		flagKeep    = flags.Bool("keep", false, "leave the last value in the module source")
		flagValues  tool.ListFlag
	)
	flags.Var(&flagValues, "values", "comma-separated parameter values (default 0.5,1,...,13)")
	tool.Init(flags)
	if *flagInput == "" {
		tool.Failf("--input_folder is required")
	}
	var values []float64
	for _, s := range flagValues {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			tool.Failf("bad value %q: %v", s, err)
		}
		values = append(values, v)
	}
	run := runner.DefaultConfig()
	run.Keyword = *flagKeyword
	run.TestDir = *flagTestDir
	run.Input = *flagInput
	run.Pattern = *flagPattern
	run.Procs = *flagProcs
	run.XZ = *flagXZ
	cfg := &sweep.Config{
		Run:    run,
		Param:  *flagParam,
		Values: values,
		Output: *flagOutput,
		Module: *flagModule,
		Keep:   *flagKeep,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	points, err := sweep.Sweep(ctx, cfg)
	stop()
	for _, p := range points {
		status := "ok"
		if p.Err != nil {
			status = p.Err.Error()
		}
		log.Logf(0, "%v = %v: %v (%v)", p.Param, p.Value, p.Output, status)
	}
	if err != nil {
		tool.Fail(err)
	}
}
