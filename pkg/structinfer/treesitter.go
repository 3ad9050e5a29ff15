// Copyright 2025 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package structinfer

import (
	"context"
	"fmt"

	"github.com/ccharness/ccharness/pkg/log"
	"github.com/ccharness/ccharness/pkg/rewrite"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
)

// treeSitter computes the same facts as linux from a C syntax tree, so
// accesses in comments and string literals are not mistaken for code.
// Regions that fail to parse are skipped.
type treeSitter struct{}

type tsWalker struct {
	src      []byte
	known    Known
	res      *Result
	pointers map[string]string
	// macroUses are "MACRO(arg)->field" sites, resolved once all macros are known.
	macroUses [][2]string
}

func (treeSitter) Infer(module string, known Known) (*Result, error) {
	res := NewResult()
	if err := checkEmpty(module); err != nil {
		addSockFields(res, false)
		return res, err
	}
	parser := sitter.NewParser()
	parser.SetLanguage(c.GetLanguage())
	src := []byte(module)
	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		addSockFields(res, false)
		return res, fmt.Errorf("failed to parse module: %v: %w", err, ErrMalformed)
	}
	root := tree.RootNode()
	w := &tsWalker{
		src:      src,
		known:    known,
		res:      res,
		pointers: make(map[string]string),
	}
	walk(root, w.declaration)
	walk(root, w.access)
	addSockFields(res, rewrite.UsesClock(module))
	for _, use := range w.macroUses {
		strct, ok := res.Macro(use[0])
		if ok && !known[strct] {
			res.AddField(strct, use[1])
		}
	}
	if root.HasError() {
		line := 0
		walk(root, func(n *sitter.Node) bool {
			if line == 0 && (n.Type() == "ERROR" || n.IsMissing()) {
				line = int(n.StartPoint().Row) + 1
			}
			return line == 0
		})
		log.Logf(1, "tree-sitter: syntax error at line %v, inference may be incomplete", line)
		return res, fmt.Errorf("syntax error at line %v: %w", line, ErrMalformed)
	}
	return res, nil
}

func walk(n *sitter.Node, fn func(*sitter.Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		walk(n.Child(i), fn)
	}
}

func (w *tsWalker) text(n *sitter.Node) string {
	return n.Content(w.src)
}

// declaration handles "struct T *v", "struct T *v = M(arg)" in declarations,
// parameters and struct members.
func (w *tsWalker) declaration(n *sitter.Node) bool {
	switch n.Type() {
	case "declaration", "parameter_declaration", "field_declaration":
	default:
		return true
	}
	typ := n.ChildByFieldName("type")
	if typ == nil || typ.Type() != "struct_specifier" {
		return true
	}
	name := typ.ChildByFieldName("name")
	if name == nil {
		return true
	}
	strct := w.text(name)
	for i := 0; i < int(n.NamedChildCount()); i++ {
		decl := n.NamedChild(i)
		var value *sitter.Node
		if decl.Type() == "init_declarator" {
			value = decl.ChildByFieldName("value")
			decl = decl.ChildByFieldName("declarator")
		}
		v := w.pointerName(decl)
		if v == "" {
			continue
		}
		if !w.known[strct] {
			w.pointers[v] = strct
		}
		if macro := w.accessorCall(value); macro != "" {
			w.res.AddMacro(macro, strct)
			if macro == CCAccessor && w.known[strct] {
				w.res.CC[strct] = true
			}
		}
	}
	return true
}

// pointerName returns the variable declared by a pointer declarator.
func (w *tsWalker) pointerName(decl *sitter.Node) string {
	if decl == nil || decl.Type() != "pointer_declarator" {
		return ""
	}
	for decl != nil && decl.Type() == "pointer_declarator" {
		decl = decl.ChildByFieldName("declarator")
	}
	if decl == nil {
		return ""
	}
	switch decl.Type() {
	case "identifier", "field_identifier":
		return w.text(decl)
	}
	return ""
}

// accessorCall returns M for a call expression of the form M(ident).
func (w *tsWalker) accessorCall(n *sitter.Node) string {
	if n == nil || n.Type() != "call_expression" {
		return ""
	}
	fn := n.ChildByFieldName("function")
	args := n.ChildByFieldName("arguments")
	if fn == nil || args == nil || fn.Type() != "identifier" {
		return ""
	}
	if args.NamedChildCount() != 1 || args.NamedChild(0).Type() != "identifier" {
		return ""
	}
	return w.text(fn)
}

func (w *tsWalker) access(n *sitter.Node) bool {
	if n.Type() != "field_expression" {
		return true
	}
	arg := n.ChildByFieldName("argument")
	field := n.ChildByFieldName("field")
	if arg == nil || field == nil || !w.isArrow(n) {
		return true
	}
	switch arg.Type() {
	case "identifier":
		if strct, ok := w.pointers[w.text(arg)]; ok {
			w.res.AddField(strct, w.text(field))
		}
	case "call_expression":
		if macro := w.accessorCall(arg); macro != "" {
			w.macroUses = append(w.macroUses, [2]string{macro, w.text(field)})
		}
	}
	return true
}

func (w *tsWalker) isArrow(n *sitter.Node) bool {
	for i := 0; i < int(n.ChildCount()); i++ {
		if n.Child(i).Type() == "->" {
			return true
		}
	}
	return false
}
