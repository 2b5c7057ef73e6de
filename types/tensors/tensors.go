// Copyright 2026 The GoDNN Authors. SPDX-License-Identifier: Apache-2.0

// Package tensors implements the concrete tensor consumed and produced by the
// kernels: a flat data buffer, a public shape, and an optional internal-layout
// tag (layouts.Metadata).
//
// A tensor without a layout tag is in the runtime's default ("public") layout:
// its flat data is the row-major arrangement of its shape. A tensor with a
// layout tag holds data in one of the subsystem's internal formats; its shape
// then only records the flat element count (which may include padding), and
// the logical dimensions live in the tag.
package tensors

import (
	"fmt"
	"reflect"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/godnn/types/layouts"
	"github.com/gomlx/godnn/types/shapes"
	"github.com/gomlx/gopjrt/dtypes"
)

// Tensor holds a flat buffer of data plus its layout information.
//
// The flat data is always a slice of the Go type corresponding to the
// tensor's DType.
type Tensor struct {
	shape  shapes.Shape
	flat   any
	layout *layouts.Metadata
}

// New creates a public-layout tensor with a newly allocated flat buffer.
func New(shape shapes.Shape) *Tensor {
	return &Tensor{
		shape: shape.Clone(),
		flat:  reflect.MakeSlice(reflect.SliceOf(shape.DType.GoType()), shape.Size(), shape.Size()).Interface(),
	}
}

// NewInDnnLayout creates an internal-layout tensor with a newly allocated flat
// buffer. The shape must be rank-1 and records the flat element count, which
// may exceed the logical size in layout.Dims when the format pads.
func NewInDnnLayout(shape shapes.Shape, layout *layouts.Metadata) *Tensor {
	t := New(shape)
	t.layout = layout
	return t
}

// FromFlatDataAndDimensions creates a public-layout tensor wrapping the given
// flat data. It panics if the data doesn't match the dimensions given.
func FromFlatDataAndDimensions[T dtypes.Supported](flat []T, dimensions ...int) *Tensor {
	shape := shapes.Make(dtypes.FromGenericsType[T](), dimensions...)
	if len(flat) != shape.Size() {
		exceptions.Panicf("tensors.FromFlatDataAndDimensions: %d values given for shape %s (%d values needed)",
			len(flat), shape, shape.Size())
	}
	return &Tensor{shape: shape, flat: flat}
}

// FromFlatDataInDnnLayout creates an internal-layout tensor wrapping the given
// flat data, tagged with the given layout descriptor. It panics if the data
// holds fewer elements than the layout's logical size.
func FromFlatDataInDnnLayout[T dtypes.Supported](flat []T, layout *layouts.Metadata) *Tensor {
	if len(flat) < layout.NumElements() {
		exceptions.Panicf("tensors.FromFlatDataInDnnLayout: %d values given for layout %s (at least %d values needed)",
			len(flat), layout, layout.NumElements())
	}
	return &Tensor{
		shape:  shapes.Make(dtypes.FromGenericsType[T](), len(flat)),
		flat:   flat,
		layout: layout,
	}
}

// Shape of the tensor. For internal-layout tensors this is the rank-1 flat
// shape; the logical dimensions are in DnnLayout().Dims.
func (t *Tensor) Shape() shapes.Shape { return t.shape }

// DType of the tensor's elements.
func (t *Tensor) DType() dtypes.DType { return t.shape.DType }

// Rank returns the logical rank: the rank of the layout tag for
// internal-layout tensors, of the shape otherwise.
func (t *Tensor) Rank() int {
	if t.layout != nil {
		return t.layout.Rank()
	}
	return t.shape.Rank()
}

// IsDnnLayout returns whether the tensor's data is in an internal layout.
func (t *Tensor) IsDnnLayout() bool { return t.layout != nil }

// DnnLayout returns the internal-layout descriptor, or nil for public-layout
// tensors.
func (t *Tensor) DnnLayout() *layouts.Metadata { return t.layout }

// Flat returns the flat data as an `any` holding a slice of the DType's Go type.
func (t *Tensor) Flat() any { return t.flat }

// String implements fmt.Stringer.
func (t *Tensor) String() string {
	if t.layout != nil {
		return fmt.Sprintf("Tensor<%s, %s>", t.shape.DType, t.layout)
	}
	return fmt.Sprintf("Tensor<%s>", t.shape)
}

// FlatData returns the tensor's flat data as a []T.
// It panics if T is not the tensor's DType.
func FlatData[T dtypes.Supported](t *Tensor) []T {
	flat, ok := t.flat.([]T)
	if !ok {
		exceptions.Panicf("tensors.FlatData[%s]: tensor holds %s data", dtypes.FromGenericsType[T](), t.shape.DType)
	}
	return flat
}
