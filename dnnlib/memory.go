// Copyright 2026 The GoDNN Authors. SPDX-License-Identifier: Apache-2.0

package dnnlib

import (
	"fmt"
	"slices"

	"github.com/gomlx/godnn/types"
	"github.com/gomlx/godnn/types/layouts"
	"github.com/gomlx/gopjrt/dtypes"
)

// supportedDTypes are the element types the library implements primitives for.
var supportedDTypes = types.SetWith(dtypes.Float16, dtypes.Float32, dtypes.Float64)

// MemoryDesc describes a block of memory to the library: logical dimension
// sizes (in library order), element type, and physical format.
//
// It is a value type; treat it as immutable after creation.
type MemoryDesc struct {
	Dims   []int
	DType  dtypes.DType
	Format layouts.Format
}

// NewMemoryDesc validates and returns a memory descriptor.
func NewMemoryDesc(dims []int, dtype dtypes.DType, format layouts.Format) (MemoryDesc, error) {
	md := MemoryDesc{Dims: slices.Clone(dims), DType: dtype, Format: format}
	if format.Rank() != len(dims) {
		return MemoryDesc{}, Errorf(StatusInvalidArguments,
			"memory descriptor format %s expects rank %d, got dims %v", format, format.Rank(), dims)
	}
	for _, dim := range dims {
		if dim <= 0 {
			return MemoryDesc{}, Errorf(StatusInvalidArguments, "memory descriptor dims %v must all be positive", dims)
		}
	}
	if !supportedDTypes.Has(dtype) {
		return MemoryDesc{}, Errorf(StatusUnimplemented, "memory descriptor dtype %s is not supported", dtype)
	}
	return md, nil
}

// Rank returns the number of logical axes.
func (md MemoryDesc) Rank() int { return len(md.Dims) }

// NumElements returns the product of the logical dimensions.
func (md MemoryDesc) NumElements() int {
	n := 1
	for _, d := range md.Dims {
		n *= d
	}
	return n
}

// Size returns the bytes needed to hold the described memory.
func (md MemoryDesc) Size() int {
	return md.NumElements() * md.DType.Size()
}

// Strides returns the physical stride (in elements) of each logical axis, or
// nil for blocked formats.
func (md MemoryDesc) Strides() []int {
	order := md.Format.PhysicalOrder()
	if order == nil {
		return nil
	}
	strides := make([]int, len(order))
	stride := 1
	for i := len(order) - 1; i >= 0; i-- {
		axis := order[i]
		strides[axis] = stride
		stride *= md.Dims[axis]
	}
	return strides
}

// Equal compares two memory descriptors.
func (md MemoryDesc) Equal(other MemoryDesc) bool {
	return md.DType == other.DType && md.Format == other.Format && slices.Equal(md.Dims, other.Dims)
}

// String implements fmt.Stringer.
func (md MemoryDesc) String() string {
	return fmt.Sprintf("(%s)%v@%s", md.DType, md.Dims, md.Format)
}

type dummyData struct{}

// DummyData is the sentinel data handle memories are bound to while a
// primitive is idle. A primitive refuses to execute on it.
var DummyData any = dummyData{}

// Memory pairs a descriptor with a data handle. The handle is the only
// mutable part and is rebound around every execution; the owning plan must
// serialize access.
type Memory struct {
	desc   MemoryDesc
	handle any
}

// NewMemory creates a memory object with the given descriptor and data
// handle. Use DummyData as the handle for memories bound later.
func NewMemory(desc MemoryDesc, handle any) *Memory {
	return &Memory{desc: desc, handle: handle}
}

// Desc returns the memory's descriptor.
func (m *Memory) Desc() MemoryDesc { return m.desc }

// DataHandle returns the currently bound data handle.
func (m *Memory) DataHandle() any { return m.handle }

// SetDataHandle rebinds the memory to the given data handle.
// The handle must be a flat slice of the descriptor's DType, or DummyData.
func (m *Memory) SetDataHandle(handle any) { m.handle = handle }

// IsBound returns whether the memory is bound to real data, as opposed to
// the DummyData sentinel.
func (m *Memory) IsBound() bool { return m.handle != DummyData }
