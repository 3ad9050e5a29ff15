// Copyright 2025 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// cc-run runs a built test harness on every trace of the input folder.
//
// Usage:
//
//	cc-run -k search -d test_dir -i traces -o output
//	cc-run search traces output
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/ccharness/ccharness/pkg/log"
	"github.com/ccharness/ccharness/pkg/runner"
	"github.com/ccharness/ccharness/pkg/tool"
	"github.com/spf13/pflag"
)

func main() {
	flags := pflag.NewFlagSet("cc-run", pflag.ExitOnError)
	var (
		flagConfig  = flags.String("config", "", "JSON or YAML run config")
		flagKeyword = flags.StringP("keyword", "k", "", "keyword of the harness (e.g. search)")
		flagTestDir = flags.StringP("test_dir", "d", "", "directory with the built harness")
		flagInput   = flags.StringP("input_folder", "i", "", "folder with input traces")
		flagOutput  = flags.StringP("output_folder", "o", "", "folder to write the logs to")
		flagPattern = flags.String("pattern", "", "glob of input traces (default *.csv)")
		flagProcs   = flags.Int("procs", 0, "traces to run in parallel")
		flagTimeout = flags.Duration("timeout", 0, "timeout of one trace run")
		flagXZ      = flags.Bool("xz", false, "compress logs with xz")
		flagBuild   = flags.Bool("build", false, "run make before running")
		flagMetrics = flags.String("metrics", "", "write Prometheus metrics of the run to this file")
	)
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: cc-run [flags] (-k keyword -i input -o output | keyword input output)\n")
		flags.PrintDefaults()
	}
	tool.Init(flags)
	cfg, err := runner.LoadConfig(*flagConfig)
	if err != nil {
		tool.Fail(err)
	}
	if cfg.TestDir == "." {
		cfg.TestDir = "test_dir"
	}
	switch args := flags.Args(); len(args) {
	case 0:
	case 3:
		cfg.Keyword, cfg.Input, cfg.Output = args[0], args[1], args[2]
	default:
		flags.Usage()
		os.Exit(1)
	}
	setString(&cfg.Keyword, *flagKeyword)
	setString(&cfg.TestDir, *flagTestDir)
	setString(&cfg.Input, *flagInput)
	setString(&cfg.Output, *flagOutput)
	setString(&cfg.Pattern, *flagPattern)
	setString(&cfg.Metrics, *flagMetrics)
	if *flagProcs != 0 {
		cfg.Procs = *flagProcs
	}
	if *flagTimeout != 0 {
		cfg.Timeout = *flagTimeout
	}
	cfg.XZ = cfg.XZ || *flagXZ
	cfg.Build = cfg.Build || *flagBuild
	if cfg.Input == "" || cfg.Output == "" {
		flags.Usage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	m, err := runner.Run(ctx, cfg)
	stop()
	if err != nil {
		tool.Fail(err)
	}
	failed := m.Failed()
	log.Logf(0, "ran %v traces, %v failed, manifest %v", len(m.Traces), len(failed), m.ID)
	if len(failed) != 0 {
		os.Exit(1)
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
