// Copyright 2026 The GoDNN Authors. SPDX-License-Identifier: Apache-2.0

package dnn

import (
	"slices"

	"github.com/gomlx/godnn/types/layouts"
	"github.com/gomlx/godnn/types/tensors"
	"github.com/pkg/errors"
)

// formatForRank maps a logical rank to the library format describing the
// public (row-major) layout of that rank.
var formatForRank = map[int]layouts.Format{
	1: layouts.X,
	2: layouts.NC,
	3: layouts.TNC,
	4: layouts.NCHW,
	5: layouts.NCDHW,
}

// errBadRank is the rejection for inputs outside the supported rank range.
var errBadRank = errors.New("Input dims must be <= 5 and >=1")

// resolvedLayout is the library-facing view of an input tensor: the dims in
// library order, the softmax axis, and the physical format of the flat data.
type resolvedLayout struct {
	dims      []int
	axis      int
	srcFormat layouts.Format
	public    layouts.Format
	internal  bool
}

// resolveLayout derives the library problem description from the input's
// layout class.
//
// Internal-layout tensors keep their dims in library order (batch, channels,
// spatial...), so the softmax axis is the channel axis 1 and the physical
// format comes from the layout tag. Public-layout tensors are row-major over
// their own shape: the axis is the innermost one and the format is the
// rank's default.
func resolveLayout(t *tensors.Tensor) (resolvedLayout, error) {
	rank := t.Rank()
	if rank < 1 || rank > 5 {
		return resolvedLayout{}, errBadRank
	}
	public := formatForRank[rank]
	if t.IsDnnLayout() {
		// Internal tensors of spatial ranks translate back to the channel-last
		// public arrangement, not the channel-first default.
		switch rank {
		case 4:
			public = layouts.NHWC
		case 5:
			public = layouts.NDHWC
		}
		layout := t.DnnLayout()
		return resolvedLayout{
			dims:      slices.Clone(layout.Dims),
			axis:      1,
			srcFormat: layout.Physical,
			public:    public,
			internal:  true,
		}, nil
	}
	return resolvedLayout{
		dims:      slices.Clone(t.Shape().Dimensions),
		axis:      rank - 1,
		srcFormat: public,
		public:    public,
	}, nil
}
