// Copyright 2020 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package tool

import (
	"errors"
	"fmt"
	"strings"
)

// ListFlag allows passing a comma-separated list of values to one flag
// (e.g. --values=0.5,1,2) and implements pflag.Value.
type ListFlag []string

// String correctly converts the flag values into a string which is required to
// parse them afterwards.
func (l *ListFlag) String() string {
	return strings.Join(*l, ",")
}

// Set is used by flag parsing to split the command line value.
func (l *ListFlag) Set(value string) error {
	if len(*l) > 0 {
		return errors.New("list flag was already set")
	}
	for _, v := range strings.Split(value, ",") {
		v = strings.TrimSpace(v)
		if v == "" {
			return fmt.Errorf("empty element in list %q", value)
		}
		*l = append(*l, v)
	}
	return nil
}

func (l *ListFlag) Type() string {
	return "list"
}
