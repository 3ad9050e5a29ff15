// Copyright 2017 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package csource

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/ccharness/ccharness/pkg/log"
	"github.com/ccharness/ccharness/pkg/osutil"
)

var ErrNoCompiler = errors.New("no target compiler")

const buildTimeout = 10 * time.Minute

// Build runs make in the test dir and returns the path of the test binary.
func Build(dir string, opts Options) (string, error) {
	if _, err := exec.LookPath(opts.CC); err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoCompiler, opts.CC)
	}
	if _, err := exec.LookPath("make"); err != nil {
		return "", fmt.Errorf("%w: no make", ErrNoCompiler)
	}
	log.Logf(1, "building %v in %v", opts.ExecName(), dir)
	if _, err := osutil.RunCmd(buildTimeout, dir, "make", "CC="+opts.CC); err != nil {
		return "", osutil.PrependContext(fmt.Sprintf("failed to build %v", opts.ExecName()), err)
	}
	bin := filepath.Join(dir, opts.ExecName())
	if !osutil.IsExecutable(bin) {
		return "", fmt.Errorf("make succeeded but %v is missing", bin)
	}
	return bin, nil
}

// Clean runs make clean in the test dir.
func Clean(dir string) error {
	if _, err := osutil.RunCmd(buildTimeout, dir, "make", "clean"); err != nil {
		return osutil.PrependContext("make clean", err)
	}
	return nil
}

// Format reformats C source using clang-format.
func Format(src []byte) ([]byte, error) {
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	cmd := osutil.Command("clang-format", "-assume-filename=/src.c", "-style", style)
	cmd.Stdin = bytes.NewReader(src)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if err := cmd.Run(); err != nil {
		return src, fmt.Errorf("failed to format source: %w\n%v", err, stderr.String())
	}
	return stdout.Bytes(), nil
}

// Close to the kernel style of the extracted modules.
var style = `{
BasedOnStyle: LLVM,
IndentWidth: 4,
UseTab: Never,
BreakBeforeBraces: Linux,
IndentCaseLabels: false,
DerivePointerAlignment: false,
PointerAlignment: Right,
AlignTrailingComments: true,
AllowShortBlocksOnASingleLine: false,
AllowShortCaseLabelsOnASingleLine: false,
AllowShortFunctionsOnASingleLine: false,
AllowShortIfStatementsOnASingleLine: false,
AllowShortLoopsOnASingleLine: false,
SortIncludes: false,
ColumnLimit: 100,
}`
