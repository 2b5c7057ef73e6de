// Copyright 2026 The GoDNN Authors. SPDX-License-Identifier: Apache-2.0

package layouts

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatRank(t *testing.T) {
	assert.Equal(t, 1, X.Rank())
	assert.Equal(t, 2, NC.Rank())
	assert.Equal(t, 3, TNC.Rank())
	assert.Equal(t, 4, NCHW.Rank())
	assert.Equal(t, 4, NHWC.Rank())
	assert.Equal(t, 5, NCDHW.Rank())
	assert.Equal(t, 5, NDHWC.Rank())
	assert.Equal(t, 4, NChw8c.Rank())
	assert.Equal(t, 0, InvalidFormat.Rank())
}

func TestFormatPhysicalOrder(t *testing.T) {
	assert.Equal(t, []int{0, 1, 2, 3}, NCHW.PhysicalOrder())
	assert.Equal(t, []int{0, 2, 3, 1}, NHWC.PhysicalOrder())
	assert.Equal(t, []int{0, 2, 3, 4, 1}, NDHWC.PhysicalOrder())
	assert.Nil(t, NChw16c.PhysicalOrder(), "blocked formats have no plain physical order")
	assert.Nil(t, InvalidFormat.PhysicalOrder())

	// Every plain format's order must be a permutation of its axes.
	for _, f := range []Format{X, NC, TNC, NCHW, NHWC, NCDHW, NDHWC} {
		order := f.PhysicalOrder()
		assert.Len(t, order, f.Rank(), "format %s", f)
		seen := make(map[int]bool)
		for _, axis := range order {
			assert.False(t, seen[axis], "format %s repeats axis %d", f, axis)
			seen[axis] = true
		}
	}
}

func TestFormatIsBlocked(t *testing.T) {
	assert.True(t, NChw8c.IsBlocked())
	assert.True(t, NChw16c.IsBlocked())
	assert.False(t, NCHW.IsBlocked())
	assert.False(t, NHWC.IsBlocked())
}

func TestMetadata(t *testing.T) {
	m := &Metadata{Dims: []int{2, 3, 4, 5}, Physical: NHWC, Public: NCHW}
	assert.Equal(t, 4, m.Rank())
	assert.Equal(t, 120, m.NumElements())

	m2 := m.Clone()
	m2.Dims[0] = 7
	assert.Equal(t, 2, m.Dims[0], "Clone must deep-copy dims")
	assert.Equal(t, NHWC, m2.Physical)
	assert.Equal(t, "dnn[2 3 4 5]{physical=NHWC, public=NCHW}", m.String())
}
