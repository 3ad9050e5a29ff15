// Copyright 2017 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package csource

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/ccharness/ccharness/pkg/trace"
)

const (
	Linux   = "linux"
	FreeBSD = "freebsd"
)

// Driver profiles. DriverBase emits a skeleton with user notes,
// DriverNone skips the driver.
const (
	DriverBase   = "base"
	DriverBBR    = "bbr"
	DriverSearch = "search"
	DriverNone   = "none"
)

// OptionsFile is the name under which generation options are saved in the test dir.
const OptionsFile = "harness.json"

// Options control various aspects of harness generation.
type Options struct {
	Keyword string `json:"keyword"`
	Flavor  string `json:"flavor"`
	Driver  string `json:"driver"`
	// Input is the source file the sections were extracted from.
	Input  string `json:"input"`
	CC     string `json:"cc"`
	CFlags string `json:"cflags"`

	Generated time.Time `json:"generated"`
}

func DefaultOptions(keyword string) Options {
	return Options{
		Keyword: keyword,
		Flavor:  Linux,
		Driver:  DriverBase,
		CC:      "gcc",
		CFlags:  "-Wall -Wextra",
	}
}

var keywordRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Check checks if the opts combination is valid or not.
// Invalid combinations must not be passed to the emitters.
func (opts Options) Check() error {
	if !keywordRe.MatchString(opts.Keyword) {
		return fmt.Errorf("bad keyword %q: must be a C identifier", opts.Keyword)
	}
	switch opts.Flavor {
	case Linux, FreeBSD:
	default:
		return fmt.Errorf("unknown flavor %v", opts.Flavor)
	}
	switch opts.Driver {
	case DriverBase, DriverNone:
	case DriverBBR, DriverSearch:
		if _, err := trace.Get(opts.Driver); err != nil {
			return err
		}
		if opts.Flavor != Linux {
			return fmt.Errorf("driver %v is not supported on %v", opts.Driver, opts.Flavor)
		}
	default:
		return fmt.Errorf("unknown driver %v", opts.Driver)
	}
	if opts.Flavor == FreeBSD && opts.Input == "" {
		return errors.New("flavor freebsd requires the input file to locate its header")
	}
	if opts.CC == "" {
		return errors.New("no compiler")
	}
	return nil
}

func (opts Options) Serialize() []byte {
	data, err := json.Marshal(opts)
	if err != nil {
		panic(err)
	}
	return data
}

func DeserializeOptions(data []byte) (Options, error) {
	var opts Options
	err := json.Unmarshal(data, &opts)
	return opts, err
}

// LoadOptions reads the options a harness in dir was generated with.
func LoadOptions(dir string) (Options, error) {
	data, err := os.ReadFile(filepath.Join(dir, OptionsFile))
	if err != nil {
		return Options{}, err
	}
	opts, err := DeserializeOptions(data)
	if err != nil {
		return Options{}, fmt.Errorf("%v: %w", OptionsFile, err)
	}
	return opts, nil
}

// Upper is the keyword as it appears in section markers.
func (opts Options) Upper() string {
	return strings.ToUpper(opts.Keyword)
}

// Lower is the keyword as it appears in file names.
func (opts Options) Lower() string {
	return strings.ToLower(opts.Keyword)
}

func (opts Options) HeaderName() string {
	if opts.Flavor == FreeBSD {
		return "cc.h"
	}
	return "tcp.h"
}

// HelperName is the mock kernel header. cc-setup copies a hand-maintained
// one under the same name over the generated one.
func (opts Options) HelperName() string {
	return "cc_helper_function.h"
}

func (opts Options) ModuleName() string {
	return opts.Lower() + "_module.c"
}

// DefsName is the header with module declarations. FreeBSD modules
// ship their own header next to the source file.
func (opts Options) DefsName() string {
	if opts.Flavor == FreeBSD {
		return strings.TrimSuffix(filepath.Base(opts.Input), filepath.Ext(opts.Input)) + ".h"
	}
	return opts.Lower() + "_defs.h"
}

// TestName is the generated test driver.
func (opts Options) TestName() string {
	if opts.Flavor == FreeBSD {
		return "test_" + opts.Lower() + ".c"
	}
	return opts.Lower() + "_test.c"
}

// DriverName is the driver the Makefile compiles. Without a generated
// driver it is the hand-written one cc-setup copies from the support dir.
func (opts Options) DriverName() string {
	if opts.Driver == DriverNone {
		return "test_" + opts.Lower() + ".c"
	}
	return opts.TestName()
}

// ExecName is the test binary built by the Makefile.
func (opts Options) ExecName() string {
	return "test_" + opts.Lower()
}

func (opts Options) stamp() string {
	if opts.Generated.IsZero() {
		return "(unknown time)"
	}
	return opts.Generated.Format(time.DateTime)
}
