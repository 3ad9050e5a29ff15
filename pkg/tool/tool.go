// Copyright 2020 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package tool contains various helper utilitites useful for implementation of command line tools.
package tool

import (
	"flag"
	"fmt"
	"os"

	"github.com/spf13/pflag"
)

func Failf(msg string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, msg+"\n", args...)
	os.Exit(1)
}

func Fail(err error) {
	Failf("%v", err)
}

// Init parses the process command line into flags, exiting on error.
// Flags registered on the standard flag set (e.g. -vv) are accepted as well.
func Init(flags *pflag.FlagSet) {
	if err := ParseFlags(flags, os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			os.Exit(0)
		}
		Fail(err)
	}
}

// ParseFlags parses args into flags after merging the standard flag set.
func ParseFlags(flags *pflag.FlagSet, args []string) error {
	flag.CommandLine.VisitAll(func(f *flag.Flag) {
		if flags.Lookup(f.Name) == nil {
			flags.AddGoFlag(f)
		}
	})
	return flags.Parse(args)
}
