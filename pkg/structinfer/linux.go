// Copyright 2025 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package structinfer

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ccharness/ccharness/pkg/rewrite"
)

// Names of the mock Linux socket layout.
const (
	SockStruct    = "sock"
	TCPSockStruct = "tcp_sock"
	ClockStruct   = "sim_clock"
	CCAccessor    = "inet_csk_ca"
)

// linux infers structs of a Linux tcp_congestion_ops module with regular
// expressions. Only pointer declarations and "->" accesses are recognized.
type linux struct{}

var (
	linuxPointerRe = regexp.MustCompile(`struct\s+(\w+)\s*\*\s*(\w+)`)
	linuxAccessRe  = regexp.MustCompile(`(\w+)\s*->\s*([\w]+)`)
	linuxCCRe      = regexp.MustCompile(`struct\s+(\w+)\s*\*\s*\w+\s*=\s*` + CCAccessor + `\(\w+\);`)
	linuxMacroRe   = regexp.MustCompile(`struct\s+(\w+)\s*\*\s*(\w+)\s*=\s*(\w+)\((\w+)\)`)
)

func (linux) Infer(module string, known Known) (*Result, error) {
	res := NewResult()
	pointers := make(map[string]string)
	for _, m := range linuxPointerRe.FindAllStringSubmatch(module, -1) {
		if !known[m[1]] {
			pointers[m[2]] = m[1]
		}
	}
	for _, m := range linuxAccessRe.FindAllStringSubmatch(module, -1) {
		if strct, ok := pointers[m[1]]; ok {
			res.AddField(strct, m[2])
		}
	}
	for _, m := range linuxCCRe.FindAllStringSubmatch(module, -1) {
		if known[m[1]] {
			res.CC[m[1]] = true
		}
	}
	addSockFields(res, rewrite.UsesClock(module))
	for _, m := range linuxMacroRe.FindAllStringSubmatch(module, -1) {
		res.AddMacro(m[3], m[1])
	}
	for _, macro := range res.Macros {
		// The module defines known structs, their fields are not inferred.
		if known[macro.Struct] {
			continue
		}
		re := regexp.MustCompile(regexp.QuoteMeta(macro.Name) + `\(\w+\)\s*->\s*([\w]+)`)
		for _, m := range re.FindAllStringSubmatch(module, -1) {
			res.AddField(macro.Struct, m[1])
		}
	}
	return res, checkEmpty(module)
}

func checkEmpty(module string) error {
	if strings.TrimSpace(module) == "" {
		return fmt.Errorf("empty module text: %w", ErrMalformed)
	}
	return nil
}

// addSockFields makes the root socket embed the TCP state, point to every
// congestion-control struct and carry the simulation clock if it is used.
func addSockFields(res *Result, clock bool) {
	sock := res.Struct(SockStruct)
	sock.Add("struct " + TCPSockStruct + " " + TCPSockStruct)
	for cc := range res.CC {
		sock.Add("struct " + cc + " *" + cc)
	}
	if clock {
		res.Clock = true
		sock.Add("struct " + ClockStruct + " clock")
	}
}
