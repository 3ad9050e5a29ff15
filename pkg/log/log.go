// Copyright 2016 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package log provides functionality similar to standard log package with some extensions:
//  - verbosity levels
//  - global verbosity setting that can be used by multiple packages
//  - ability to cache recent output in memory and persist it next to generated artifacts
package log

import (
	"bytes"
	"flag"
	"fmt"
	golog "log"
	"os"
	"sync"
	"time"
)

var (
	flagV       = flag.Int("vv", 0, "verbosity")
	mu          sync.Mutex
	cache       *ring
	prependTime = true // for testing
)

// ring keeps the most recent log lines, up to a line and a byte limit.
type ring struct {
	entries []string
	pos     int
	mem     int
	maxMem  int
}

func (r *ring) add(line string) {
	r.mem -= len(r.entries[r.pos])
	r.entries[r.pos] = line
	r.mem += len(line)
	r.pos = (r.pos + 1) % len(r.entries)
	for i := 0; i < len(r.entries)-1 && r.mem > r.maxMem; i++ {
		pos := (r.pos + i) % len(r.entries)
		r.mem -= len(r.entries[pos])
		r.entries[pos] = ""
	}
	if r.mem < 0 {
		panic("log cache size underflow")
	}
}

func (r *ring) dump() string {
	buf := new(bytes.Buffer)
	for i := range r.entries {
		line := r.entries[(r.pos+i)%len(r.entries)]
		if line == "" {
			continue
		}
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	return buf.String()
}

// EnableLogCaching enables in memory caching of log output.
// Caches up to maxLines, but no more than maxMem bytes.
// Cached output can later be queried with CachedLogOutput.
func EnableLogCaching(maxLines, maxMem int) {
	mu.Lock()
	defer mu.Unlock()
	if cache != nil {
		Fatalf("log caching is already enabled")
	}
	if maxLines < 1 || maxMem < 1 {
		panic("invalid maxLines/maxMem")
	}
	cache = &ring{
		entries: make([]string, maxLines),
		maxMem:  maxMem,
	}
}

// CachedLogOutput returns the cached log lines, oldest first.
func CachedLogOutput() string {
	mu.Lock()
	defer mu.Unlock()
	if cache == nil {
		return ""
	}
	return cache.dump()
}

// SaveCachedLog writes the cached output to file.
// It is a no-op if caching is not enabled.
func SaveCachedLog(file string) error {
	out := CachedLogOutput()
	if out == "" {
		return nil
	}
	return os.WriteFile(file, []byte(out), 0644)
}

// V reports whether messages of verbosity v are printed.
func V(v int) bool {
	return v <= *flagV
}

// SetVerbosity overrides the -vv flag value.
func SetVerbosity(v int) {
	*flagV = v
}

func Logf(v int, msg string, args ...interface{}) {
	mu.Lock()
	if cache != nil && v <= 1 {
		timeStr := ""
		if prependTime {
			timeStr = time.Now().Format("2006/01/02 15:04:05 ")
		}
		cache.add(fmt.Sprintf(timeStr+msg, args...))
	}
	mu.Unlock()

	if V(v) {
		golog.Printf(msg, args...)
	}
}

// Warnf logs unconditionally with a warning prefix.
func Warnf(msg string, args ...interface{}) {
	Logf(0, "warning: "+msg, args...)
}

func Fatal(err error) {
	golog.Fatal(err)
}

func Fatalf(msg string, args ...interface{}) {
	golog.Fatalf(msg, args...)
}

type VerboseWriter int

func (w VerboseWriter) Write(data []byte) (int, error) {
	Logf(int(w), "%s", data)
	return len(data), nil
}
