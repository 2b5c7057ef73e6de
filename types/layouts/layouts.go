// Copyright 2026 The GoDNN Authors. SPDX-License-Identifier: Apache-2.0

// Package layouts defines the physical memory formats used by the accelerated
// kernel subsystem, and Metadata, the internal-layout descriptor a tensor
// carries when its data is arranged in one of those formats.
//
// A tensor flows through the runtime either in the public layout -- the plain
// row-major arrangement described by a shapes.Shape -- or in an internal
// layout private to the subsystem, described by a Metadata attached to the
// tensor. Dimension sizes in a Metadata are always kept in the library
// dimension order: batch first, channels second, then spatial axes
// (time/depth/height/width).
package layouts

import (
	"fmt"
	"slices"

	"github.com/gomlx/godnn/types/xslices"
)

// Format enumerates the physical memory arrangements understood by the
// accelerated library. One tag per rank 1 to 5, plus channel-ordering
// variants for ranks 4 and 5 and blocked (padded) variants.
//
// The letters follow the library convention: n=batch, c=channels,
// t=sequence length, d=depth, h=height, w=width.
type Format int

const (
	// InvalidFormat is the zero value, describing no arrangement.
	InvalidFormat Format = iota

	// X is the rank-1 flat arrangement.
	X

	// NC is the rank-2 batch×channel arrangement.
	NC

	// TNC is the rank-3 time×batch×channel arrangement.
	TNC

	// NCHW is the rank-4 channel-first arrangement.
	NCHW

	// NHWC is the rank-4 channel-last arrangement.
	NHWC

	// NCDHW is the rank-5 channel-first arrangement.
	NCDHW

	// NDHWC is the rank-5 channel-last arrangement.
	NDHWC

	// NChw8c is the rank-4 arrangement blocked in groups of 8 channels,
	// padded to a multiple of 8.
	NChw8c

	// NChw16c is the rank-4 arrangement blocked in groups of 16 channels,
	// padded to a multiple of 16.
	NChw16c
)

var formatNames = [...]string{"InvalidFormat", "X", "NC", "TNC", "NCHW", "NHWC", "NCDHW", "NDHWC", "NChw8c", "NChw16c"}

// String implements fmt.Stringer.
func (f Format) String() string {
	if f < 0 || int(f) >= len(formatNames) {
		return fmt.Sprintf("Format(%d)", int(f))
	}
	return formatNames[f]
}

// Rank returns the number of logical axes the format describes,
// or 0 for InvalidFormat.
func (f Format) Rank() int {
	switch f {
	case X:
		return 1
	case NC:
		return 2
	case TNC:
		return 3
	case NCHW, NHWC, NChw8c, NChw16c:
		return 4
	case NCDHW, NDHWC:
		return 5
	}
	return 0
}

// IsBlocked returns whether the format blocks (and pads) the channel axis.
func (f Format) IsBlocked() bool {
	return f == NChw8c || f == NChw16c
}

// PhysicalOrder returns the logical axes in their physical (outermost to
// innermost) storage order, or nil for blocked and invalid formats.
//
// E.g. for NHWC it returns [0, 2, 3, 1]: batch is outermost, then height,
// width, and channels vary fastest -- while the logical dims of a rank-4
// tensor remain in the library order (n, c, h, w).
func (f Format) PhysicalOrder() []int {
	switch f {
	case X, NC, TNC, NCHW, NCDHW:
		// Channel-first formats store axes in logical order.
		return xslices.Iota(0, f.Rank())
	case NHWC:
		return []int{0, 2, 3, 1}
	case NDHWC:
		return []int{0, 2, 3, 4, 1}
	}
	return nil
}

// Metadata describes a tensor held in an internal layout.
//
// It is immutable once attached to a tensor: a kernel producing an
// internal-layout output builds a fresh Metadata for it.
type Metadata struct {
	// Dims are the dimension sizes in library order (batch, channels,
	// spatial...). They describe the logical shape; the physical
	// arrangement of the flat data is given by Physical.
	Dims []int

	// Physical is the actual arrangement of the flat data.
	Physical Format

	// Public is the public-layout-equivalent format tag, used to translate
	// the tensor back to the runtime's default layout.
	Public Format
}

// Rank returns the number of logical axes.
func (m *Metadata) Rank() int { return len(m.Dims) }

// NumElements returns the product of the logical dimensions.
// For blocked formats, the flat data may hold more elements than this
// (padding); the tensor's shape records the padded count.
func (m *Metadata) NumElements() int {
	n := 1
	for _, d := range m.Dims {
		n *= d
	}
	return n
}

// Clone returns a deep copy of the metadata.
func (m *Metadata) Clone() *Metadata {
	return &Metadata{Dims: slices.Clone(m.Dims), Physical: m.Physical, Public: m.Public}
}

// String implements fmt.Stringer.
func (m *Metadata) String() string {
	return fmt.Sprintf("dnn%v{physical=%s, public=%s}", m.Dims, m.Physical, m.Public)
}
