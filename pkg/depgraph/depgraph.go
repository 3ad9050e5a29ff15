// Copyright 2025 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package depgraph orders inferred structs so that every struct is defined
// after the structs it embeds.
package depgraph

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/ccharness/ccharness/pkg/log"
	"github.com/ccharness/ccharness/pkg/structinfer"
)

// Graph has an edge A->B iff some field of A is declared as "struct B ...",
// B is itself an inferred struct, and B is not a congestion-control struct.
type Graph struct {
	roots []string
	deps  map[string]map[string]bool
}

func Build(res *structinfer.Result) *Graph {
	g := &Graph{
		roots: res.Order,
		deps:  make(map[string]map[string]bool),
	}
	for _, name := range res.Order {
		for field := range res.Fields[name] {
			parts := strings.Fields(field)
			if len(parts) < 2 || !strings.HasPrefix(parts[0], "struct") {
				continue
			}
			dep := parts[1]
			if res.CC[dep] {
				continue
			}
			if _, ok := res.Fields[dep]; !ok {
				continue
			}
			if g.deps[name] == nil {
				g.deps[name] = make(map[string]bool)
			}
			g.deps[name][dep] = true
		}
	}
	return g
}

// Deps returns direct dependencies of name, sorted.
func (g *Graph) Deps(name string) []string {
	return slices.Sorted(maps.Keys(g.deps[name]))
}

type Mode int

const (
	// Tolerate stops descending at an already visited struct, cycles are
	// cut silently (with a verbose log message).
	Tolerate Mode = iota
	// Detect fails with *CycleError on the first cycle.
	Detect
)

// CycleError describes a dependency cycle; Path starts and ends with the same struct.
type CycleError struct {
	Path []string
}

func (err *CycleError) Error() string {
	return fmt.Sprintf("struct dependency cycle: %v", strings.Join(err.Path, " -> "))
}

// Order returns structs in depth-first postorder. Roots are visited in
// discovery order, dependencies in name order, so the result is deterministic.
func (g *Graph) Order(mode Mode) ([]string, error) {
	const (
		unvisited = iota
		active
		done
	)
	state := make(map[string]int)
	var order, stack []string
	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case active:
			path := append(slices.Clone(stack[slices.Index(stack, name):]), name)
			if mode == Detect {
				return &CycleError{Path: path}
			}
			log.Logf(1, "ignoring struct dependency cycle %v", strings.Join(path, " -> "))
			return nil
		}
		state[name] = active
		stack = append(stack, name)
		for _, dep := range g.Deps(name) {
			if err := visit(dep); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		state[name] = done
		order = append(order, name)
		return nil
	}
	for _, name := range g.roots {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return order, nil
}
