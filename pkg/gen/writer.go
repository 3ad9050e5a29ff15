// Copyright 2025 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package gen

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ccharness/ccharness/pkg/csource"
	"github.com/ccharness/ccharness/pkg/log"
	"github.com/ccharness/ccharness/pkg/osutil"
	dmp "github.com/sergi/go-diff/diffmatchpatch"
)

// Writer writes generated files into a directory, overwriting old versions.
type Writer struct {
	Dir string
	// DryRun skips all writes.
	DryRun bool
	// Diff receives a line diff against the previous version of every file.
	Diff io.Writer
	// Format runs C sources through clang-format before writing.
	Format bool
}

// Write stores data as name in the directory and returns the file path.
func (w *Writer) Write(name string, data []byte) (string, error) {
	file := filepath.Join(w.Dir, name)
	if w.Format && isC(name) {
		formatted, err := csource.Format(data)
		if err != nil {
			log.Logf(0, "not formatting %v: %v", name, err)
		} else {
			data = formatted
		}
	}
	if w.Diff != nil {
		old, err := os.ReadFile(file)
		if err != nil && !os.IsNotExist(err) {
			return file, err
		}
		if !bytes.Equal(old, data) {
			writeDiff(w.Diff, file, string(old), string(data))
		}
	}
	if w.DryRun {
		log.Logf(1, "dry run: not writing %v", file)
		return file, nil
	}
	if err := osutil.MkdirAll(w.Dir); err != nil {
		return file, err
	}
	if err := osutil.WriteFile(file, data); err != nil {
		return file, err
	}
	log.Logf(0, "Generated: %v", file)
	return file, nil
}

// Copy copies an existing file into the directory.
func (w *Writer) Copy(src string) (string, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return "", err
	}
	return w.Write(filepath.Base(src), data)
}

func isC(name string) bool {
	return strings.HasSuffix(name, ".c") || strings.HasSuffix(name, ".h")
}

func writeDiff(w io.Writer, file, oldText, newText string) {
	differ := dmp.New()
	a, b, lines := differ.DiffLinesToChars(oldText, newText)
	diffs := differ.DiffCharsToLines(differ.DiffMain(a, b, false), lines)
	fmt.Fprintf(w, "--- %v\n+++ %v\n", file, file)
	for _, d := range diffs {
		var prefix string
		switch d.Type {
		case dmp.DiffInsert:
			prefix = "+"
		case dmp.DiffDelete:
			prefix = "-"
		case dmp.DiffEqual:
			continue
		}
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}
			fmt.Fprintf(w, "%v%v", prefix, line)
			if !strings.HasSuffix(line, "\n") {
				fmt.Fprintln(w)
			}
		}
	}
}
