// Copyright 2025 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package csource renders the C sources, headers and Makefile of a
// user-space test harness for an extracted congestion control module.
package csource

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/ccharness/ccharness/pkg/structinfer"
	"github.com/ccharness/ccharness/pkg/trace"
)

type data struct {
	Opts    Options
	Stamp   string
	Body    string
	Defs    string
	Decls   []string
	Structs []cstruct
	Macros  []cmacro
	Clock   bool
	// CC is the congestion control struct the driver allocates.
	CC       string
	Profile  *trace.Profile
	Decl     []string
	ScanArgs string
}

type cstruct struct {
	Name   string
	Fields []string
}

type cmacro struct {
	Name   string
	Struct string
	CC     bool
}

type banner struct {
	File  string
	Stamp string
	Lines []string
}

var templates = template.Must(template.New("").
	Funcs(sprig.TxtFuncMap()).
	Funcs(template.FuncMap{
		"banner": func(d *data, file string, lines ...string) banner {
			return banner{File: file, Stamp: d.Stamp, Lines: lines}
		},
	}).
	Parse(strings.Join([]string{
		bannerTemplate, clockTemplate, structsTemplate,
		linuxHeaderTemplate, bsdHeaderTemplate,
		moduleTemplate, defsTemplate,
		linuxHelperTemplate, bsdHelperTemplate,
		linuxTestTemplate, bsdTestTemplate,
		makefileTemplate,
	}, "")))

func newData(opts Options) *data {
	return &data{Opts: opts, Stamp: opts.stamp()}
}

func render(name string, d *data) ([]byte, error) {
	if err := d.Opts.Check(); err != nil {
		return nil, err
	}
	buf := new(bytes.Buffer)
	if err := templates.ExecuteTemplate(buf, name, d); err != nil {
		return nil, fmt.Errorf("failed to render %v: %w", name, err)
	}
	return buf.Bytes(), nil
}

// Header renders tcp.h (linux) or cc.h (freebsd) with the inferred structs
// in the given order and the accessor macros.
func Header(res *structinfer.Result, order []string, opts Options) ([]byte, error) {
	d := newData(opts)
	d.Clock = res.Clock
	scalar := "u64"
	if opts.Flavor == FreeBSD {
		scalar = "uint64_t"
	}
	for _, name := range order {
		fs, ok := res.Fields[name]
		if !ok {
			return nil, fmt.Errorf("struct %v is ordered but was never inferred", name)
		}
		s := cstruct{Name: name}
		for _, f := range fs.Sorted() {
			if !structinfer.Typed(f) {
				f = scalar + " " + f
			}
			s.Fields = append(s.Fields, f)
		}
		d.Structs = append(d.Structs, s)
	}
	for _, m := range res.Macros {
		d.Macros = append(d.Macros, cmacro{Name: m.Name, Struct: m.Struct, CC: res.CC[m.Struct]})
	}
	return render(opts.HeaderName(), d)
}

// Module renders the module translation unit around the rewritten body.
func Module(body string, opts Options) ([]byte, error) {
	d := newData(opts)
	d.Body = body
	return render("module", d)
}

// Defs renders the linux declarations header: the rewritten defs section
// followed by prototypes of the module functions.
func Defs(decls []string, defs string, opts Options) ([]byte, error) {
	if opts.Flavor != Linux {
		return nil, fmt.Errorf("no defs header on %v, modules ship %v", opts.Flavor, opts.DefsName())
	}
	d := newData(opts)
	d.Decls = decls
	d.Defs = defs
	return render("defs", d)
}

// Helper renders the mock kernel header. If the module reads the clock
// it also maps the kernel clock reads left outside of an instance.
func Helper(res *structinfer.Result, opts Options) ([]byte, error) {
	d := newData(opts)
	d.Clock = res.Clock
	return render(opts.Flavor+"-helper", d)
}

// Test renders the test driver for opts.Driver.
func Test(res *structinfer.Result, opts Options) ([]byte, error) {
	if opts.Driver == DriverNone {
		return nil, fmt.Errorf("driver %v renders no test", DriverNone)
	}
	d := newData(opts)
	d.Clock = res.Clock
	d.CC = res.Primary()
	if p, err := trace.Get(opts.Driver); err == nil {
		d.Profile = p
		d.Decl, d.ScanArgs = scanVars(p)
	}
	return render(opts.Flavor+"-test", d)
}

func scanVars(p *trace.Profile) ([]string, string) {
	var u32s, u64s, args []string
	for _, col := range p.Columns {
		if col.Wide {
			u64s = append(u64s, col.Name)
		} else {
			u32s = append(u32s, col.Name)
		}
		args = append(args, "&"+col.Name)
	}
	var decl []string
	if len(u32s) != 0 {
		decl = append(decl, "u32 "+strings.Join(u32s, ", ")+";")
	}
	if len(u64s) != 0 {
		decl = append(decl, "u64 "+strings.Join(u64s, ", ")+";")
	}
	return decl, strings.Join(args, ", ")
}

func Makefile(opts Options) ([]byte, error) {
	return render("Makefile", newData(opts))
}

// DriverFields returns the fields the test driver of opts touches, per struct.
// They must be present in the header even if the module never accesses them.
func DriverFields(opts Options) map[string][]string {
	if opts.Driver == DriverNone {
		return nil
	}
	if opts.Flavor == FreeBSD {
		return map[string][]string{
			structinfer.TCPCBStruct: {"snd_ssthresh", "snd_cwnd"},
			structinfer.CCVarStruct: {"void *cc_data", "struct { struct tcpcb *tcp; } ccvc"},
		}
	}
	tp := []string{"snd_ssthresh", "snd_cwnd"}
	var extra map[string][]string
	switch opts.Driver {
	case DriverBBR:
		extra = map[string][]string{"rate_sample": {"is_app_limited"}}
	case DriverSearch:
		tp = append(tp, "tcp_mstamp", "bytes_acked", "mss_cache")
	}
	res := map[string][]string{structinfer.TCPSockStruct: tp}
	for k, v := range extra {
		res[k] = v
	}
	return res
}
