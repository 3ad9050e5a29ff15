// Copyright 2025 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package rewrite strips kernel-only keywords from extracted sources
// so that they compile as ordinary user-space C.
package rewrite

import (
	"regexp"
	"strings"
)

// Rule replaces all matches of From with To.
type Rule struct {
	From *regexp.Regexp
	To   string
	// Literal is the stripped text reported by Residue, empty for rules that
	// map rather than strip.
	Literal string
	// Param limits the rule to the bodies of top-level functions whose
	// declarator matches it. Nil applies the rule everywhere.
	Param *regexp.Regexp
}

// Rules are applied one after another, each over the output of the previous.
type Rules []Rule

func (rules Rules) Apply(text string) string {
	for _, r := range rules {
		text = r.apply(text)
	}
	return text
}

func (r Rule) apply(text string) string {
	if r.Param == nil {
		return r.From.ReplaceAllString(text, r.To)
	}
	var b strings.Builder
	last := 0
	for _, blk := range blocks(text) {
		if !r.Param.MatchString(comments.ReplaceAllString(text[blk.head:blk.body], " ")) {
			continue
		}
		b.WriteString(text[last:blk.body])
		b.WriteString(r.From.ReplaceAllString(text[blk.body:blk.end], r.To))
		last = blk.end
	}
	b.WriteString(text[last:])
	return b.String()
}

// Residue returns stripped literals of rules that still occur in text.
func (rules Rules) Residue(text string) []string {
	var res []string
	for _, r := range rules {
		if r.Literal != "" && r.From.MatchString(text) {
			res = append(res, r.Literal)
		}
	}
	return res
}

// Concat returns a new rule list running rules and then more.
func (rules Rules) Concat(more ...Rules) Rules {
	res := append(Rules(nil), rules...)
	for _, m := range more {
		res = append(res, m...)
	}
	return res
}

func strip(literal string) Rule {
	return Rule{
		From:    regexp.MustCompile(regexp.QuoteMeta(literal)),
		Literal: literal,
	}
}

func replace(expr, to string) Rule {
	return Rule{
		From: regexp.MustCompile(expr),
		To:   to,
	}
}

func scoped(param, expr, to string) Rule {
	r := replace(expr, to)
	r.Param = regexp.MustCompile(param)
	return r
}

var (
	// ModuleRules are applied to the module body.
	ModuleRules = Rules{
		strip("static inline "),
		strip("static "),
		strip("__attribute__"),
		strip("__always_inline"),
		strip("__maybe_unused"),
		strip("__section__"),
		strip("__read_mostly"),
	}

	// DefsRules are applied to the defs section.
	DefsRules = Rules{
		strip("static inline "),
		strip("static "),
		strip("__read_mostly"),
	}

	// KernelTypeRules map kernel integer typedefs onto stdint types.
	KernelTypeRules = Rules{
		replace(`\bu8\b`, "uint8_t"),
		replace(`\bu16\b`, "uint16_t"),
		replace(`\bu32\b`, "uint32_t"),
		replace(`\bu64\b`, "uint64_t"),
		replace(`\bs32\b`, "int32_t"),
		replace(`\bint\b`, "int32_t"),
		strip("const "),
	}

	// ClockRules route reads of the kernel jiffies counter through the
	// per-socket simulation clock declared by the generated header, in
	// functions that take the socket. Other reads keep tcp_jiffies32,
	// which the helper header maps onto the clock advanced last.
	ClockRules = Rules{
		scoped(`\bstruct\s+sock\s*\*\s*sk\b`, `\btcp_jiffies32\b`, "sim_clock_jiffies(sk)"),
	}

	// BSDClockRules do the same for FreeBSD modules, where the clock
	// lives in the cc_var passed to every callback.
	BSDClockRules = Rules{
		scoped(`\bstruct\s+cc_var\s*\*\s*ccv\b`, `\bgetmicrouptime\(`, "sim_clock_microuptime(&ccv->clock, "),
	}
)

// UsesClock reports whether text reads the simulation clock, either
// through an instance or through the kernel names left outside of one.
func UsesClock(text string) bool {
	return clockUse.MatchString(text)
}

var comments = regexp.MustCompile(`(?s)/\*.*?\*/|//[^\n]*`)

var clockUse = regexp.MustCompile(`\bsim_clock_(?:jiffies|microuptime)\(|\btcp_jiffies32\b|\bgetmicrouptime\(`)

// block is a top-level brace block of C source: text[head:body] is what
// precedes it since the previous top-level statement, text[body:end]
// is the block itself including both braces.
type block struct {
	head, body, end int
}

// blocks returns the top-level brace blocks of text. Comments, string and
// character literals and preprocessor lines are skipped.
func blocks(text string) []block {
	var res []block
	depth, head, body := 0, 0, 0
	lineStart := true
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c == '\n':
			lineStart = true
			continue
		case c == ' ' || c == '\t' || c == '\r':
			continue
		case c == '#' && lineStart:
			i = lineEnd(text, i) - 1
			if depth == 0 {
				head = i + 1
			}
			continue
		}
		lineStart = false
		switch {
		case strings.HasPrefix(text[i:], "//"):
			i = lineEnd(text, i) - 1
		case strings.HasPrefix(text[i:], "/*"):
			n := strings.Index(text[i+2:], "*/")
			if n == -1 {
				return res
			}
			i += n + 3
		case c == '"' || c == '\'':
			i = literalEnd(text, i)
		case c == '{':
			if depth == 0 {
				body = i
			}
			depth++
		case c == '}' && depth > 0:
			depth--
			if depth == 0 {
				res = append(res, block{head: head, body: body, end: i + 1})
				head = i + 1
			}
		case c == ';' && depth == 0:
			head = i + 1
		}
	}
	return res
}

// lineEnd returns the index of the newline ending the line at i,
// following backslash continuations.
func lineEnd(text string, i int) int {
	for ; i < len(text); i++ {
		if text[i] == '\\' && i+1 < len(text) && text[i+1] == '\n' {
			i++
			continue
		}
		if text[i] == '\n' {
			return i
		}
	}
	return len(text)
}

// literalEnd returns the index of the quote closing the literal at i.
func literalEnd(text string, i int) int {
	quote := text[i]
	for i++; i < len(text); i++ {
		switch text[i] {
		case '\\':
			i++
		case quote, '\n':
			return i
		}
	}
	return len(text)
}
