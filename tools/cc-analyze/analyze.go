// Copyright 2025 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// cc-analyze summarizes and charts the logs written by cc-run.
//
// Usage:
//
//	cc-analyze -p search -i output --numerical --plot
//	cc-analyze -p bbr -i output --compare old_output
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ccharness/ccharness/pkg/cclog"
	"github.com/ccharness/ccharness/pkg/log"
	"github.com/ccharness/ccharness/pkg/osutil"
	"github.com/ccharness/ccharness/pkg/tool"
	"github.com/spf13/pflag"
)

func main() {
	flags := pflag.NewFlagSet("cc-analyze", pflag.ExitOnError)
	var (
		flagProfile   = flags.StringP("profile", "p", "", fmt.Sprintf("log profile %v", cclog.Names()))
		flagInput     = flags.StringP("input_folder", "i", "", "folder with the logs")
		flagFigDir    = flags.StringP("output_folder", "o", "", "folder for charts (default <input>/fig)")
		flagPlot      = flags.Bool("plot", false, "chart every log")
		flagNumerical = flags.Bool("numerical", false, "write "+cclog.NumericalFile+" into the input folder")
		flagTogether  = flags.Bool("together", false, "chart loss and exit times of all logs")
		flagEarlyLoss = flags.Float64("early-loss", 10, "losses before this many seconds are early")
		flagCompare   = flags.String("compare", "", "folder with logs of a previous run to compare loss times with")
		flagProcs     = flags.Int("procs", 1, "logs to parse in parallel")
	)
	tool.Init(flags)
	if *flagProfile == "" || *flagInput == "" {
		tool.Failf("--profile and --input_folder are required")
	}
	p, err := cclog.Get(*flagProfile)
	if err != nil {
		tool.Fail(err)
	}
	if !*flagPlot && !*flagTogether && *flagCompare == "" {
		*flagNumerical = true
	}
	figDir := *flagFigDir
	if figDir == "" {
		figDir = filepath.Join(*flagInput, "fig")
	}
	ctx := context.Background()
	if *flagNumerical || *flagPlot {
		logs := load(ctx, *flagInput, cclog.NumericalSuffix, p, *flagProcs)
		if *flagNumerical {
			sum := cclog.Numerical(logs, p, *flagEarlyLoss)
			file := filepath.Join(*flagInput, cclog.NumericalFile)
			if err := sum.WriteFile(file); err != nil {
				tool.Fail(err)
			}
			log.Logf(0, "Numerical analysis written to %v", file)
			q := sum.LossQuantiles
			log.Logf(1, "loss time p50 %.3f p90 %.3f p99 %.3f", q[0], q[1], q[2])
		}
		if *flagPlot {
			files, err := cclog.WriteHTML(figDir, logs, p)
			if err != nil {
				tool.Fail(err)
			}
			log.Logf(0, "Charts written to %v", strings.Join(files, ", "))
		}
	}
	if *flagTogether {
		logs := load(ctx, *flagInput, cclog.TogetherSuffix, p, *flagProcs)
		if err := osutil.MkdirAll(figDir); err != nil {
			tool.Fail(err)
		}
		file := filepath.Join(figDir, "together.html")
		f, err := os.Create(file)
		if err != nil {
			tool.Fail(err)
		}
		err = cclog.RenderHTML(f, p.Name, []*cclog.Chart{cclog.Together(logs, p)})
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			tool.Fail(err)
		}
		log.Logf(0, "Chart written to %v", file)
	}
	if *flagCompare != "" {
		cur := load(ctx, *flagInput, cclog.NumericalSuffix, p, *flagProcs)
		old := load(ctx, *flagCompare, cclog.NumericalSuffix, p, *flagProcs)
		pval, err := cclog.Compare(old, cur)
		if err != nil {
			tool.Fail(err)
		}
		fmt.Printf("loss time p-value: %.4f (%v old, %v new logs)\n", pval, len(old), len(cur))
	}
}

func load(ctx context.Context, dir string, suffix *regexp.Regexp, p *cclog.Profile,
	procs int) []*cclog.Log {
	logs, err := cclog.List(dir, suffix)
	if err != nil {
		tool.Fail(err)
	}
	if err := cclog.Load(ctx, logs, p, procs); err != nil {
		tool.Fail(err)
	}
	return logs
}
