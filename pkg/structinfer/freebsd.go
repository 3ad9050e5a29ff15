// Copyright 2025 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package structinfer

import (
	"regexp"

	"github.com/ccharness/ccharness/pkg/rewrite"
)

// Names of the mock FreeBSD cc(4) layout.
const (
	TCPCBStruct = "tcpcb"
	CCVarStruct = "cc_var"
	CCVMacro    = "CCV"
)

// freebsd infers structs of a FreeBSD cc(4) module. Every struct declared
// in the module header is congestion-control state, value declarations and
// "." accesses are recognized, and TCP state is reached via CCV(ccv, field).
type freebsd struct{}

var (
	bsdPointerRe = regexp.MustCompile(`struct\s+(\w+)\s*\*+\s*(\w+)`)
	bsdValueRe   = regexp.MustCompile(`struct\s+(\w+)\s+(\w+)\s*;`)
	bsdAccessRe  = regexp.MustCompile(`(\w+)\s*(?:->|\.)\s*([\w]+)`)
	bsdCCVRe     = regexp.MustCompile(CCVMacro + `\(\w+,\s*([\w]+)\)`)
	bsdCCVLoose  = regexp.MustCompile(CCVMacro + `\s*\(\s*ccv\s*,\s*(\w+)\s*\)`)
)

// bsdSystemStructs come from system headers and are never synthesized.
var bsdSystemStructs = []string{"timeval"}

func (freebsd) Infer(module string, known Known) (*Result, error) {
	res := NewResult()
	for cc := range known {
		res.CC[cc] = true
	}
	pointers := make(map[string]string)
	decls := append(bsdPointerRe.FindAllStringSubmatch(module, -1), bsdValueRe.FindAllStringSubmatch(module, -1)...)
	for _, m := range decls {
		if !res.CC[m[1]] {
			pointers[m[2]] = m[1]
		}
	}
	for _, m := range bsdAccessRe.FindAllStringSubmatch(module, -1) {
		if strct, ok := pointers[m[1]]; ok {
			res.AddField(strct, m[2])
		}
	}
	res.AddMacro(CCVMacro, TCPCBStruct)
	for _, m := range bsdCCVRe.FindAllStringSubmatch(module, -1) {
		res.AddField(TCPCBStruct, m[1])
	}
	if _, ok := res.Fields[TCPCBStruct]; !ok {
		tcpcb := res.Struct(TCPCBStruct)
		for _, m := range bsdCCVLoose.FindAllStringSubmatch(module, -1) {
			tcpcb.Add(m[1])
		}
	}
	for _, name := range bsdSystemStructs {
		res.Drop(name)
	}
	if ccv, ok := res.Fields[CCVarStruct]; ok {
		delete(ccv, "cc_data")
		delete(ccv, "ccvc")
		ccv.Add("void *cc_data")
		ccv.Add("struct { struct " + TCPCBStruct + " *tcp; } ccvc")
	}
	if rewrite.UsesClock(module) {
		res.Clock = true
		ccv := res.Struct(CCVarStruct)
		delete(ccv, "clock")
		ccv.Add("struct " + ClockStruct + " clock")
	}
	return res, checkEmpty(module)
}
