// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package stats

import (
	"sync"
	"time"

	"golang.org/x/exp/constraints"
)

type AverageParameter interface {
	time.Duration | constraints.Float
}

// AverageValue is a running mean that is safe for concurrent use.
type AverageValue[T AverageParameter] struct {
	mu    sync.Mutex
	total int64
	avg   T
}

func (av *AverageValue[T]) Count() int64 {
	av.mu.Lock()
	defer av.mu.Unlock()
	return av.total
}

func (av *AverageValue[T]) Value() T {
	av.mu.Lock()
	defer av.mu.Unlock()
	return av.avg
}

func (av *AverageValue[T]) Save(val T) {
	av.mu.Lock()
	defer av.mu.Unlock()
	av.total++
	av.avg += (val - av.avg) / T(av.total)
}

// Average returns the mean of vals and false if vals is empty.
func Average[T AverageParameter](vals []T) (T, bool) {
	var sum T
	for _, v := range vals {
		sum += v
	}
	if len(vals) == 0 {
		return sum, false
	}
	return sum / T(len(vals)), true
}
