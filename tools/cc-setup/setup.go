// Copyright 2025 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// cc-setup copies the hand-written support files of a keyword into the test dir.
package main

import (
	"github.com/ccharness/ccharness/pkg/runner"
	"github.com/ccharness/ccharness/pkg/tool"
	"github.com/spf13/pflag"
)

func main() {
	flags := pflag.NewFlagSet("cc-setup", pflag.ExitOnError)
	var (
		flagKeyword = flags.StringP("keyword", "k", "", "keyword of the test file (e.g. search)")
		flagSupport = flags.StringP("support", "s", "support", "directory with support files")
		flagTestDir = flags.StringP("test_dir", "d", "test_dir", "directory to copy the files to")
	)
	tool.Init(flags)
	if *flagKeyword == "" {
		tool.Failf("--keyword is required")
	}
	if _, err := runner.Setup(*flagSupport, *flagTestDir, *flagKeyword); err != nil {
		tool.Fail(err)
	}
}
