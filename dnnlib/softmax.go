// Copyright 2026 The GoDNN Authors. SPDX-License-Identifier: Apache-2.0

package dnnlib

import (
	"math"
	"sync"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/x448/float16"
)

// PropKind selects the propagation the primitive is prepared for.
type PropKind int

const (
	// ForwardInference prepares the primitive for inference only.
	ForwardInference PropKind = iota

	// ForwardTraining additionally keeps what a backward pass would need.
	// Accepted but currently treated as ForwardInference.
	ForwardTraining
)

// SoftmaxForwardDesc describes a forward softmax: normalize along Axis of the
// memory described by Src.
type SoftmaxForwardDesc struct {
	Prop PropKind
	Src  MemoryDesc
	Axis int
}

// SoftmaxForwardPrimitiveDesc is the library's prepared plan descriptor for a
// forward softmax on a given engine. It owns the choice of destination
// layout: callers must size the destination from DstDesc, not from the
// source.
type SoftmaxForwardPrimitiveDesc struct {
	desc   SoftmaxForwardDesc
	engine *Engine
	dst    MemoryDesc
}

// NewSoftmaxForwardPrimitiveDesc validates the problem description and
// prepares the primitive descriptor. This is the expensive step of the
// build-once/execute-many model.
func NewSoftmaxForwardPrimitiveDesc(desc SoftmaxForwardDesc, engine *Engine) (*SoftmaxForwardPrimitiveDesc, error) {
	if engine == nil {
		return nil, Errorf(StatusInvalidArguments, "softmax_fwd: nil engine")
	}
	if desc.Axis < 0 || desc.Axis >= desc.Src.Rank() {
		return nil, Errorf(StatusInvalidArguments,
			"softmax_fwd: axis %d out of range for rank %d memory %s", desc.Axis, desc.Src.Rank(), desc.Src)
	}
	if desc.Src.Format.IsBlocked() {
		return nil, Errorf(StatusUnimplemented,
			"softmax_fwd: blocked format %s is not implemented on the %s engine", desc.Src.Format, engine.Kind())
	}
	if !supportedDTypes.Has(desc.Src.DType) {
		return nil, Errorf(StatusUnimplemented, "softmax_fwd: dtype %s is not implemented", desc.Src.DType)
	}
	// Softmax preserves the layout: destination uses the source arrangement.
	return &SoftmaxForwardPrimitiveDesc{desc: desc, engine: engine, dst: desc.Src}, nil
}

// Desc returns the operation descriptor this primitive descriptor was built for.
func (pd *SoftmaxForwardPrimitiveDesc) Desc() SoftmaxForwardDesc { return pd.desc }

// SrcDesc returns the source memory descriptor.
func (pd *SoftmaxForwardPrimitiveDesc) SrcDesc() MemoryDesc { return pd.desc.Src }

// DstDesc returns the destination memory descriptor chosen by the library.
func (pd *SoftmaxForwardPrimitiveDesc) DstDesc() MemoryDesc { return pd.dst }

// Engine the primitive descriptor was prepared for.
func (pd *SoftmaxForwardPrimitiveDesc) Engine() *Engine { return pd.engine }

// Primitive is a prepared computation step, executed by submitting it to a
// Stream.
type Primitive interface {
	// Kind names the primitive for logs and errors.
	Kind() string

	execute() error
}

type softmaxForward struct {
	pd       *SoftmaxForwardPrimitiveDesc
	src, dst *Memory
}

// NewSoftmaxForward creates the softmax primitive over the given memory
// objects. The memories' descriptors must match the primitive descriptor;
// their data handles are read at execution time, so DummyData-bound memories
// are fine here.
func NewSoftmaxForward(pd *SoftmaxForwardPrimitiveDesc, src, dst *Memory) (Primitive, error) {
	if !src.Desc().Equal(pd.SrcDesc()) {
		return nil, Errorf(StatusInvalidArguments,
			"softmax_fwd: source memory %s doesn't match primitive descriptor source %s", src.Desc(), pd.SrcDesc())
	}
	if !dst.Desc().Equal(pd.DstDesc()) {
		return nil, Errorf(StatusInvalidArguments,
			"softmax_fwd: destination memory %s doesn't match primitive descriptor destination %s", dst.Desc(), pd.DstDesc())
	}
	return &softmaxForward{pd: pd, src: src, dst: dst}, nil
}

func (p *softmaxForward) Kind() string { return "softmax_fwd" }

func (p *softmaxForward) execute() error {
	if !p.src.IsBound() || !p.dst.IsBound() {
		return Errorf(StatusRuntimeError, "softmax_fwd: memory not bound to data (still set to DummyData)")
	}
	srcDesc := p.pd.SrcDesc()
	workers := p.pd.engine.workers
	switch srcDesc.DType {
	case dtypes.Float32:
		return executeSoftmax[float32](p, workers)
	case dtypes.Float64:
		return executeSoftmax[float64](p, workers)
	case dtypes.Float16:
		return executeSoftmaxF16(p, workers)
	}
	return Errorf(StatusUnimplemented, "softmax_fwd: dtype %s is not implemented", srcDesc.DType)
}

// minParallelWork is the minimum number of elements before the primitive
// splits work over the engine's worker pool.
const minParallelWork = 4096

type workerPool interface {
	IsEnabled() bool
	WaitToStart(task func())
}

func softmaxData[T any](mem *Memory) ([]T, error) {
	flat, ok := mem.DataHandle().([]T)
	if !ok {
		return nil, Errorf(StatusRuntimeError,
			"softmax_fwd: data handle holds %T, memory descriptor says %s", mem.DataHandle(), mem.Desc())
	}
	if len(flat) < mem.Desc().NumElements() {
		return nil, Errorf(StatusRuntimeError,
			"softmax_fwd: data handle holds %d elements, memory descriptor %s needs %d",
			len(flat), mem.Desc(), mem.Desc().NumElements())
	}
	return flat, nil
}

func executeSoftmax[T float32 | float64](p *softmaxForward, workers workerPool) error {
	src, err := softmaxData[T](p.src)
	if err != nil {
		return err
	}
	dst, err := softmaxData[T](p.dst)
	if err != nil {
		return err
	}
	iter := newAxisIterator(p.pd.SrcDesc(), p.pd.desc.Axis)
	runVectors(iter, workers, func(from, to int) {
		softmaxVectors(src, dst, iter, from, to)
	})
	return nil
}

func executeSoftmaxF16(p *softmaxForward, workers workerPool) error {
	src, err := softmaxData[float16.Float16](p.src)
	if err != nil {
		return err
	}
	dst, err := softmaxData[float16.Float16](p.dst)
	if err != nil {
		return err
	}
	iter := newAxisIterator(p.pd.SrcDesc(), p.pd.desc.Axis)
	runVectors(iter, workers, func(from, to int) {
		softmaxVectorsF16(src, dst, iter, from, to)
	})
	return nil
}

// axisIterator decomposes a memory descriptor into the vectors along the
// compute axis: each vector has axisSize elements spaced axisStride apart,
// and its base offset is derived from the remaining axes' dims and strides.
type axisIterator struct {
	axisSize, axisStride  int
	restDims, restStrides []int
	numVectors            int
}

func newAxisIterator(md MemoryDesc, axis int) axisIterator {
	strides := md.Strides()
	it := axisIterator{
		axisSize:   md.Dims[axis],
		axisStride: strides[axis],
	}
	it.numVectors = 1
	for i, dim := range md.Dims {
		if i == axis {
			continue
		}
		it.restDims = append(it.restDims, dim)
		it.restStrides = append(it.restStrides, strides[i])
		it.numVectors *= dim
	}
	return it
}

// base returns the flat offset of the v-th vector's first element.
func (it *axisIterator) base(v int) int {
	base := 0
	for i := len(it.restDims) - 1; i >= 0; i-- {
		base += (v % it.restDims[i]) * it.restStrides[i]
		v /= it.restDims[i]
	}
	return base
}

// runVectors splits the [0, numVectors) range over the worker pool in chunks
// of roughly minParallelWork elements, or runs it inline when the problem is
// small or parallelism is disabled.
func runVectors(it axisIterator, workers workerPool, run func(from, to int)) {
	totalWork := it.numVectors * it.axisSize
	if workers == nil || !workers.IsEnabled() || totalWork <= minParallelWork {
		run(0, it.numVectors)
		return
	}
	chunk := max(1, minParallelWork/it.axisSize)
	var wg sync.WaitGroup
	for from := 0; from < it.numVectors; from += chunk {
		to := min(from+chunk, it.numVectors)
		wg.Add(1)
		workers.WaitToStart(func() {
			defer wg.Done()
			run(from, to)
		})
	}
	wg.Wait()
}

// softmaxVectors runs the three passes -- find max, exp and sum, normalize --
// over the vectors [from, to).
func softmaxVectors[T float32 | float64](src, dst []T, it axisIterator, from, to int) {
	for v := from; v < to; v++ {
		base := it.base(v)

		// Pass 1: Find max.
		maxVal := T(math.Inf(-1))
		for i := range it.axisSize {
			idx := base + i*it.axisStride
			if src[idx] > maxVal {
				maxVal = src[idx]
			}
		}

		// Pass 2: Exp and sum.
		var sum T
		for i := range it.axisSize {
			idx := base + i*it.axisStride
			e := T(math.Exp(float64(src[idx] - maxVal)))
			dst[idx] = e
			sum += e
		}

		// Pass 3: Normalize.
		invSum := 1.0 / sum
		for i := range it.axisSize {
			idx := base + i*it.axisStride
			dst[idx] *= invSum
		}
	}
}

// softmaxVectorsF16 is the float16 variant: accumulation in float32.
func softmaxVectorsF16(src, dst []float16.Float16, it axisIterator, from, to int) {
	for v := from; v < to; v++ {
		base := it.base(v)

		maxVal := float32(math.Inf(-1))
		for i := range it.axisSize {
			value := src[base+i*it.axisStride].Float32()
			if value > maxVal {
				maxVal = value
			}
		}

		var sum float32
		exps := make([]float32, it.axisSize)
		for i := range it.axisSize {
			e := float32(math.Exp(float64(src[base+i*it.axisStride].Float32() - maxVal)))
			exps[i] = e
			sum += e
		}

		invSum := 1.0 / sum
		for i := range it.axisSize {
			dst[base+i*it.axisStride] = float16.Fromfloat32(exps[i] * invSum)
		}
	}
}
