// Copyright 2025 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package trace describes CSV traces replayed by the generated test drivers.
// A trace has a header row, optional '#' comment rows and data rows of
// comma-separated unsigned integers.
package trace

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
)

type Column struct {
	Name string
	// Wide columns are 64-bit (scanned with %llu), the rest are u32.
	Wide bool
}

// CType returns the kernel typedef used for the column in the driver.
func (col Column) CType() string {
	if col.Wide {
		return "u64"
	}
	return "u32"
}

func (col Column) Verb() string {
	if col.Wide {
		return "%llu"
	}
	return "%u"
}

// Profile is the column layout of one protocol harness.
type Profile struct {
	Name    string
	Columns []Column
}

// ScanFormat returns the sscanf pattern matching one data row.
func (p *Profile) ScanFormat() string {
	verbs := make([]string, len(p.Columns))
	for i, col := range p.Columns {
		verbs[i] = col.Verb()
	}
	return strings.Join(verbs, ",")
}

func (p *Profile) Column(name string) (int, bool) {
	for i, col := range p.Columns {
		if col.Name == name {
			return i, true
		}
	}
	return -1, false
}

// Names returns column names in row order.
func (p *Profile) Names() []string {
	var res []string
	for _, col := range p.Columns {
		res = append(res, col.Name)
	}
	return res
}

func u32s(names ...string) []Column {
	var cols []Column
	for _, name := range names {
		cols = append(cols, Column{Name: name})
	}
	return cols
}

var Profiles = map[string]*Profile{
	"bbr": {
		Name: "bbr",
		Columns: u32s("now_us", "bbr_full_bw", "bbr_full_bw_cnt", "bbr_max_bw",
			"round_start", "app_limited", "bbr_min_rtt", "bbr_state"),
	},
	"search": {
		Name: "search",
		Columns: append(append(u32s("now_us"), Column{Name: "bytes_acked", Wide: true}),
			u32s("mss", "rtt_us", "tp_delivered_rate", "tp_rate_interval_us",
				"tp_delivered", "lost", "retrans", "app_limited")...),
	},
}

func Get(name string) (*Profile, error) {
	p := Profiles[name]
	if p == nil {
		var names []string
		for n := range Profiles {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("unknown trace profile %q, supported: %v", name, names)
	}
	return p, nil
}

// BadRow is a data row the driver would reject.
type BadRow struct {
	Line   int
	Text   string
	Reason string
}

type Report struct {
	Rows int
	Bad  []BadRow
}

func (rep *Report) OK() bool {
	return len(rep.Bad) == 0
}

var ErrEmpty = errors.New("trace has no header row")

// Validate checks every data row of r against the profile layout.
// Only I/O failures and a missing header are returned as errors.
func Validate(r io.Reader, p *Profile) (*Report, error) {
	rep := new(Report)
	s := bufio.NewScanner(r)
	line := 0
	for s.Scan() {
		line++
		text := s.Text()
		if line == 1 || strings.HasPrefix(text, "#") {
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		rep.Rows++
		if reason := checkRow(text, p); reason != "" {
			rep.Bad = append(rep.Bad, BadRow{Line: line, Text: text, Reason: reason})
		}
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	if line == 0 {
		return nil, ErrEmpty
	}
	return rep, nil
}

func checkRow(text string, p *Profile) string {
	fields := strings.Split(text, ",")
	if len(fields) < len(p.Columns) {
		return fmt.Sprintf("got %v columns, want %v", len(fields), len(p.Columns))
	}
	for i, col := range p.Columns {
		v := strings.TrimSpace(fields[i])
		bits := 32
		if col.Wide {
			bits = 64
		}
		if _, err := strconv.ParseUint(v, 10, bits); err != nil {
			return fmt.Sprintf("column %v: %q is not a u%v", col.Name, v, bits)
		}
	}
	return ""
}

// Integerize copies the CSV in r to w truncating values of the named
// column to integers. Other columns are copied unchanged.
func Integerize(r io.Reader, w io.Writer, column string) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.Comment = '#'
	header, err := cr.Read()
	if err == io.EOF {
		return ErrEmpty
	}
	if err != nil {
		return err
	}
	idx := -1
	for i, name := range header {
		if strings.TrimSpace(name) == column {
			idx = i
		}
	}
	if idx == -1 {
		return fmt.Errorf("no column %q in header %v", column, header)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if idx < len(rec) {
			line, _ := cr.FieldPos(idx)
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[idx]), 64)
			if err != nil {
				return fmt.Errorf("line %v: column %v: %w", line, column, err)
			}
			rec[idx] = strconv.FormatInt(int64(math.Trunc(v)), 10)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
