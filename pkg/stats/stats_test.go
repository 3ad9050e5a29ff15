// Copyright 2021 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package stats

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMedian(t *testing.T) {
	tests := []struct {
		input     []float64
		minMedian float64
		maxMedian float64
	}{
		{
			input:     []float64{1, 2, 3},
			minMedian: 1.99, // we cannot do exact floating point equality comparison
			maxMedian: 2.01,
		},
		{
			input:     []float64{0, 1, 2, 3},
			minMedian: 1.0,
			maxMedian: 2.0,
		},
	}
	for _, test := range tests {
		sample := Sample{Xs: test.input}
		median := sample.Median()
		if median < test.minMedian || median > test.maxMedian {
			t.Errorf("sample %v, median got %v, median expected [%v;%v]",
				test.input, median, test.minMedian, test.maxMedian)
		}
	}
	assert.True(t, math.IsNaN((&Sample{}).Median()))
}

func TestRemoveOutliers(t *testing.T) {
	// Some tests just to check the overall sanity of the method.
	tests := []struct {
		input  []float64
		output []float64
	}{
		{
			input:  []float64{-20, 1, 2, 3, 4, 5},
			output: []float64{1, 2, 3, 4, 5},
		},
		{
			input:  []float64{1, 2, 3, 4, 25},
			output: []float64{1, 2, 3, 4},
		},
		{
			input:  []float64{-10, -5, 0, 5, 10, 15},
			output: []float64{-10, -5, 0, 5, 10, 15},
		},
	}
	for _, test := range tests {
		sample := Sample{Xs: test.input}
		result := sample.RemoveOutliers()
		result.Sort()
		if !reflect.DeepEqual(result.Xs, test.output) {
			t.Errorf("input: %v, expected no outliers: %v, got: %v",
				test.input, test.output, result.Xs)
		}
	}
}

func TestAverage(t *testing.T) {
	avg, ok := Average([]float64{10.5, 11.5, 15})
	require.True(t, ok)
	assert.InDelta(t, 12.333333, avg, 1e-6)

	_, ok = Average([]float64(nil))
	assert.False(t, ok)

	var av AverageValue[time.Duration]
	av.Save(time.Second)
	av.Save(3 * time.Second)
	assert.Equal(t, 2*time.Second, av.Value())
	assert.Equal(t, int64(2), av.Count())
}

func TestHistogram(t *testing.T) {
	h := NewHistogram()
	assert.Equal(t, 0.0, h.Quantile(0.5))
	for _, v := range []float64{4, 1, 3, 2} {
		h.Add(v)
	}
	assert.Equal(t, 4, h.Count())
	assert.Equal(t, 2.0, h.Quantile(0.5))
	assert.Equal(t, 4.0, h.Quantile(1))
	assert.InDelta(t, 2.5, h.Mean(), 1e-9)
}

func TestUTest(t *testing.T) {
	old := &Sample{Xs: []float64{10, 11, 12, 13, 14, 15, 16, 17}}
	same := &Sample{Xs: []float64{10, 11, 12, 13, 14, 15, 16, 17}}
	shifted := &Sample{Xs: []float64{30, 31, 32, 33, 34, 35, 36, 37}}
	p, err := UTest(old, shifted)
	require.NoError(t, err)
	assert.Less(t, p, 0.01)
	p, err = UTest(old, same)
	require.NoError(t, err)
	assert.Greater(t, p, 0.5)
}
