// Copyright 2025 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package structinfer

import (
	"maps"
	"regexp"
	"slices"
	"strings"
)

// FieldSet is a set of field declarations of one struct.
// A field is either a bare identifier or a full "type name" declaration.
type FieldSet map[string]bool

func (fs FieldSet) Add(field string) {
	fs[field] = true
}

func (fs FieldSet) Sorted() []string {
	return slices.Sorted(maps.Keys(fs))
}

// Typed reports whether field carries its own type ("struct tcp_sock tcp_sock")
// rather than being a bare identifier.
func Typed(field string) bool {
	return strings.Contains(field, " ")
}

// Macro maps an accessor macro to the struct it dereferences to.
type Macro struct {
	Name   string
	Struct string
}

// Result is the outcome of inference over one module.
type Result struct {
	// Fields holds inferred fields per struct name.
	Fields map[string]FieldSet
	// Order lists Fields keys in discovery order.
	Order []string
	// Macros are in discovery order, at most one per name.
	Macros []Macro
	// CC is the set of congestion-control structs.
	CC map[string]bool
	// Clock is set if the module reads the simulation clock.
	Clock bool
}

func NewResult() *Result {
	return &Result{
		Fields: make(map[string]FieldSet),
		CC:     make(map[string]bool),
	}
}

// Struct returns the field set of name, creating it if necessary.
func (res *Result) Struct(name string) FieldSet {
	fs := res.Fields[name]
	if fs == nil {
		fs = make(FieldSet)
		res.Fields[name] = fs
		res.Order = append(res.Order, name)
	}
	return fs
}

func (res *Result) AddField(strct, field string) {
	res.Struct(strct).Add(field)
}

// AddMacro records a macro unless one with the same name is already known.
func (res *Result) AddMacro(name, strct string) bool {
	if _, ok := res.Macro(name); ok {
		return false
	}
	res.Macros = append(res.Macros, Macro{name, strct})
	return true
}

func (res *Result) Macro(name string) (string, bool) {
	for _, m := range res.Macros {
		if m.Name == name {
			return m.Struct, true
		}
	}
	return "", false
}

// Drop removes a struct from Fields and Order.
func (res *Result) Drop(strct string) {
	if _, ok := res.Fields[strct]; !ok {
		return
	}
	delete(res.Fields, strct)
	for i, name := range res.Order {
		if name == strct {
			res.Order = append(res.Order[:i:i], res.Order[i+1:]...)
			break
		}
	}
}

// CCStructs returns the congestion-control struct names, sorted.
func (res *Result) CCStructs() []string {
	return slices.Sorted(maps.Keys(res.CC))
}

// Primary returns the congestion-control struct a test driver allocates
// for the socket, or "" if there is none.
func (res *Result) Primary() string {
	for _, m := range res.Macros {
		if res.CC[m.Struct] {
			return m.Struct
		}
	}
	if cc := res.CCStructs(); len(cc) != 0 {
		return cc[0]
	}
	return ""
}

// Known is a set of struct names declared outside of the inferred module.
type Known map[string]bool

// KnownStructs returns names of all structs defined (with a body) in text.
func KnownStructs(text string) Known {
	known := make(Known)
	for _, m := range structDefRe.FindAllStringSubmatch(text, -1) {
		known[m[1]] = true
	}
	return known
}

var structDefRe = regexp.MustCompile(`struct\s+(\w+)\s*\{`)

// FuncDecls turns function definitions found at the start of lines into
// extern prototypes.
func FuncDecls(module string) []string {
	var decls []string
	for _, m := range funcDefRe.FindAllString(module, -1) {
		decls = append(decls, "extern "+strings.TrimSpace(m)+";")
	}
	return decls
}

var funcDefRe = regexp.MustCompile(`(?m)^[a-zA-Z_][a-zA-Z0-9_]*\s+\**[a-zA-Z_][a-zA-Z0-9_]*\([^)]*\)`)
