// Copyright 2025 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// cc-trace checks and cleans up input traces of the test drivers.
//
// Usage:
//
//	cc-trace validate -p bbr traces/*.csv
//	cc-trace integerize --column now_us in.csv out.csv
package main

import (
	"bufio"
	"bytes"
	"fmt"
	"os"

	"github.com/ccharness/ccharness/pkg/osutil"
	"github.com/ccharness/ccharness/pkg/tool"
	"github.com/ccharness/ccharness/pkg/trace"
	"github.com/spf13/pflag"
)

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	cmd := os.Args[1]
	os.Args = append(os.Args[:1], os.Args[2:]...)
	switch cmd {
	case "validate":
		validate()
	case "integerize":
		integerize()
	default:
		usage()
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: cc-trace validate|integerize [flags] files...\n")
	os.Exit(1)
}

func validate() {
	flags := pflag.NewFlagSet("cc-trace validate", pflag.ExitOnError)
	flagProfile := flags.StringP("profile", "p", "", "trace profile of the driver")
	tool.Init(flags)
	p, err := trace.Get(*flagProfile)
	if err != nil {
		tool.Fail(err)
	}
	bad := 0
	for _, file := range flags.Args() {
		rep, err := validateFile(file, p)
		if err != nil {
			tool.Failf("%v: %v", file, err)
		}
		for _, row := range rep.Bad {
			fmt.Printf("%v:%v: %v\n", file, row.Line, row.Reason)
		}
		if !rep.OK() {
			bad++
		}
		fmt.Printf("%v: %v rows, %v bad\n", file, rep.Rows, len(rep.Bad))
	}
	if bad != 0 {
		os.Exit(1)
	}
}

func validateFile(file string, p *trace.Profile) (*trace.Report, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return trace.Validate(bufio.NewReader(f), p)
}

func integerize() {
	flags := pflag.NewFlagSet("cc-trace integerize", pflag.ExitOnError)
	flagColumn := flags.String("column", "now_us", "column to truncate to integers")
	tool.Init(flags)
	if flags.NArg() != 2 {
		tool.Failf("integerize needs an input and an output file")
	}
	in, err := os.Open(flags.Arg(0))
	if err != nil {
		tool.Fail(err)
	}
	defer in.Close()
	out := new(bytes.Buffer)
	if err := trace.Integerize(bufio.NewReader(in), out, *flagColumn); err != nil {
		tool.Failf("%v: %v", flags.Arg(0), err)
	}
	if err := osutil.WriteFile(flags.Arg(1), out.Bytes()); err != nil {
		tool.Fail(err)
	}
}
