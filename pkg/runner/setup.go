// Copyright 2025 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package runner

import (
	"fmt"
	"path/filepath"

	"github.com/ccharness/ccharness/pkg/log"
	"github.com/ccharness/ccharness/pkg/osutil"
)

const (
	SupportHelper = "cc_helper_function.h"
	SupportBase   = "test_base.c"
)

// SetupResult lists what Setup copied and what it could not find.
type SetupResult struct {
	Copied   []string
	Missing  []string
	Fallback bool
}

// Setup copies hand-written support files for keyword from supportDir into testDir:
// the helper header and test_<keyword>.c, or test_base.c if the latter is missing.
// Missing support files are reported, not treated as errors.
func Setup(supportDir, testDir, keyword string) (*SetupResult, error) {
	if err := osutil.MkdirAll(testDir); err != nil {
		return nil, err
	}
	res := &SetupResult{}
	copyFile := func(name string) error {
		src := filepath.Join(supportDir, name)
		if !osutil.IsExist(src) {
			log.Logf(0, "Warning: %v does not exist.", src)
			res.Missing = append(res.Missing, src)
			return nil
		}
		dst := filepath.Join(testDir, name)
		if err := osutil.CopyFile(src, dst); err != nil {
			return fmt.Errorf("failed to copy %v: %w", src, err)
		}
		log.Logf(0, "Copied: %v to %v", src, dst)
		res.Copied = append(res.Copied, dst)
		return nil
	}
	if err := copyFile(SupportHelper); err != nil {
		return nil, err
	}
	test := fmt.Sprintf("test_%v.c", keyword)
	if osutil.IsExist(filepath.Join(supportDir, test)) {
		if err := copyFile(test); err != nil {
			return nil, err
		}
		return res, nil
	}
	res.Fallback = true
	if err := copyFile(SupportBase); err != nil {
		return nil, err
	}
	log.Logf(0, "Note: The test file %v was not found. Please generate it manually based on %v.",
		test, SupportBase)
	return res, nil
}
