// Copyright 2025 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package structinfer infers mock kernel struct layouts and accessor macros
// from the way a congestion-control module uses them.
//
// Inference is heuristic. Engines only report what the module text shows:
// which variables point to which structs, which fields are accessed through
// them, which struct is the congestion-control private state, and which
// accessor macros resolve to which struct.
package structinfer

import (
	"errors"
	"fmt"
	"maps"
	"slices"
)

// Engine infers struct fields and macros from a rewritten module body.
// known holds structs declared elsewhere (defs section or header); those are
// never re-synthesized.
//
// On ErrMalformed the returned Result is still usable, but may be incomplete.
type Engine interface {
	Infer(module string, known Known) (*Result, error)
}

// ErrMalformed is returned for module text an engine cannot interpret.
var ErrMalformed = errors.New("malformed module")

var engines = map[string]Engine{
	"linux":      linux{},
	"freebsd":    freebsd{},
	"treesitter": treeSitter{},
}

// Get returns the engine registered under name.
func Get(name string) (Engine, error) {
	eng := engines[name]
	if eng == nil {
		return nil, fmt.Errorf("unknown inference engine %q (available: %v)", name, Names())
	}
	return eng, nil
}

// Names returns all registered engine names.
func Names() []string {
	return slices.Sorted(maps.Keys(engines))
}
