// Copyright 2025 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package section extracts marker-delimited regions from kernel sources.
//
// A module region is enclosed in
//
//	// KEYWORD_begin
//	...
//	// KEYWORD_end
//
// and a defs region in "// KEYWORD_defs_begin" ... "// KEYWORD_defs_end".
// KEYWORD is matched upper-cased.
package section

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

type Kind int

const (
	Module Kind = iota
	Defs
)

func (k Kind) String() string {
	switch k {
	case Module:
		return "module"
	case Defs:
		return "defs"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ErrNoContent is returned when the source has no region for the keyword.
// It is not fatal: callers generate whatever does not depend on the region.
var ErrNoContent = errors.New("no content found")

// Markers returns the begin and end marker comments for keyword.
func Markers(keyword string, kind Kind) (string, string) {
	kw := strings.ToUpper(keyword)
	if kind == Defs {
		return "// " + kw + "_defs_begin", "// " + kw + "_defs_end"
	}
	return "// " + kw + "_begin", "// " + kw + "_end"
}

// Extract returns bodies of all regions in src, concatenated in source order
// and trimmed. Regions are matched non-greedily, so an unmatched begin marker
// extends to the next end marker or yields nothing.
func Extract(src []byte, keyword string, kind Kind) (string, error) {
	if keyword == "" {
		return "", fmt.Errorf("empty keyword")
	}
	begin, end := Markers(keyword, kind)
	re := regexp.MustCompile(`(?s)` + regexp.QuoteMeta(begin) + `(.*?)` + regexp.QuoteMeta(end))
	var buf strings.Builder
	found := false
	for _, match := range re.FindAllSubmatch(src, -1) {
		found = true
		buf.Write(match[1])
	}
	if !found {
		return "", fmt.Errorf("%v section for %v: %w", kind, keyword, ErrNoContent)
	}
	return strings.TrimSpace(buf.String()), nil
}

// ExtractFile is Extract on the contents of file.
func ExtractFile(file, keyword string, kind Kind) (string, error) {
	src, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("failed to read source: %w", err)
	}
	return Extract(src, keyword, kind)
}
