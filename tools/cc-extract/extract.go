// Copyright 2025 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// cc-extract generates a user-space test harness from a congestion control module.
// The module source marks the parts to extract with
// "// KEYWORD_begin" ... "// KEYWORD_end" comments, and the declarations to
// put into the defs header with "// KEYWORD_defs_begin" ... "// KEYWORD_defs_end".
//
// Usage:
//
//	cc-extract -f tcp_search.c -k search -d test_dir
//	cc-extract tcp_search.c search
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ccharness/ccharness/pkg/csource"
	"github.com/ccharness/ccharness/pkg/gen"
	"github.com/ccharness/ccharness/pkg/log"
	"github.com/ccharness/ccharness/pkg/rewrite"
	"github.com/ccharness/ccharness/pkg/structinfer"
	"github.com/ccharness/ccharness/pkg/tool"
	"github.com/spf13/pflag"
)

func main() {
	flags := pflag.NewFlagSet("cc-extract", pflag.ExitOnError)
	var (
		flagConfig  = flags.String("config", "", "JSON or YAML generation config")
		flagFile    = flags.StringP("file", "f", "", "path to the input file")
		flagKeyword = flags.StringP("keyword", "k", "", "keyword of the section markers (e.g. SEARCH)")
		flagTestDir = flags.StringP("test_dir", "d", "", "directory to write the harness to")
		flagOS      = flags.String("os", "", "target flavor: linux or freebsd")
		flagEngine  = flags.String("engine", "", fmt.Sprintf("inference engine %v", structinfer.Names()))
		flagDriver  = flags.String("driver", "", "test driver: base, bbr, search or none")
		flagCC      = flags.String("cc", "", "C compiler used by the Makefile")
		flagDiff    = flags.Bool("diff", false, "print a diff of changed files")
		flagDryRun  = flags.Bool("dry-run", false, "do not write any files")
		flagFormat  = flags.Bool("format", false, "format generated C with clang-format")
		flagStrict  = flags.Bool("strict-cycles", false, "fail on struct dependency cycles")
		flagStdint  = flags.Bool("stdint", false, "map kernel integer types onto stdint.h types")
		flagNoHelp  = flags.Bool("no-helper", false, "do not write the helper header")
		flagBuild   = flags.Bool("build", false, "run make after generation")
		flagCheck   = flags.Bool("check", false, "fail if kernel-only specifiers survive in the module")
	)
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: cc-extract [flags] (-f file -k keyword | file keyword)\n")
		flags.PrintDefaults()
	}
	tool.Init(flags)
	log.EnableLogCaching(1000, 1<<20)

	cfg, err := gen.LoadConfig(*flagConfig)
	if err != nil {
		tool.Fail(err)
	}
	switch args := flags.Args(); {
	case len(args) == 2 && *flagFile == "" && *flagKeyword == "":
		cfg.Input, cfg.Keyword = args[0], args[1]
	case len(args) != 0:
		flags.Usage()
		os.Exit(1)
	}
	setString(&cfg.Input, *flagFile)
	setString(&cfg.Keyword, *flagKeyword)
	setString(&cfg.TestDir, *flagTestDir)
	setString(&cfg.OS, *flagOS)
	setString(&cfg.Engine, *flagEngine)
	setString(&cfg.Driver, *flagDriver)
	setString(&cfg.CC, *flagCC)
	cfg.StrictCycles = cfg.StrictCycles || *flagStrict
	cfg.Stdint = cfg.Stdint || *flagStdint
	cfg.NoHelper = cfg.NoHelper || *flagNoHelp
	cfg.Format = cfg.Format || *flagFormat
	cfg.Build = cfg.Build || *flagBuild
	cfg.DryRun = *flagDryRun
	if *flagDiff {
		cfg.Diff = os.Stdout
	}
	if cfg.Input == "" || cfg.Keyword == "" {
		flags.Usage()
		os.Exit(1)
	}
	rep, err := gen.Generate(cfg)
	if err != nil {
		tool.Fail(err)
	}
	for _, a := range rep.Artifacts {
		if a.Err == nil {
			log.Logf(0, "File generated: %v", a.Path)
		}
	}
	if *flagCheck && !cfg.DryRun {
		check(cfg)
	}
	if rep.Fatal() {
		tool.Fail(rep.Err())
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func check(cfg *gen.Config) {
	opts := csource.DefaultOptions(cfg.Keyword)
	file := filepath.Join(cfg.TestDir, opts.ModuleName())
	data, err := os.ReadFile(file)
	if err != nil {
		tool.Fail(err)
	}
	if residue := rewrite.ModuleRules.Residue(string(data)); len(residue) != 0 {
		tool.Failf("%v still contains %q", file, residue)
	}
}
