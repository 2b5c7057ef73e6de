// Copyright 2026 The GoDNN Authors. SPDX-License-Identifier: Apache-2.0

package dnn

import (
	"path/filepath"
	"runtime"
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/godnn/dnnlib"
	"github.com/gomlx/godnn/kernels"
	"github.com/gomlx/godnn/types/layouts"
	"github.com/gomlx/godnn/types/shapes"
	"github.com/gomlx/godnn/types/tensors"
	"github.com/gomlx/gopjrt/dtypes"
)

// SoftmaxOp computes forward softmax over the innermost logical axis of its
// single input. It accepts the input in public or internal layout and
// produces the output in the same layout class.
//
// The op holds no per-invocation state: one instance can serve concurrent
// Compute calls, each on its own Context.
type SoftmaxOp[T float32 | float64] struct {
	cache *PlanCache
}

// NewSoftmaxOp returns a softmax kernel on the default plan cache.
func NewSoftmaxOp[T float32 | float64]() *SoftmaxOp[T] {
	return NewSoftmaxOpWith[T](DefaultPlanCache())
}

// NewSoftmaxOpWith returns a softmax kernel on an explicit plan cache.
func NewSoftmaxOpWith[T float32 | float64](cache *PlanCache) *SoftmaxOp[T] {
	return &SoftmaxOp[T]{cache: cache}
}

// Compute implements kernels.OpKernel. All failures, including panics thrown
// below the kernel, surface as an aborted context with no output.
func (op *SoftmaxOp[T]) Compute(ctx *kernels.Context) {
	err := exceptions.TryCatch[error](func() { op.compute(ctx) })
	if err != nil {
		ctx.AbortWithError(err)
	}
}

func (op *SoftmaxOp[T]) compute(ctx *kernels.Context) {
	input := ctx.Input(0)
	if dtype := dtypes.FromGenericsType[T](); input.DType() != dtype {
		ctx.Abortf("softmax kernel instantiated for %s got a %s input", dtype, input.DType())
		return
	}
	res, err := resolveLayout(input)
	if err != nil {
		ctx.AbortWithError(err)
		return
	}

	plan, err := op.cache.GetOrCreate(planParams{
		dims:   res.dims,
		axis:   res.axis,
		dtype:  input.DType(),
		format: res.srcFormat,
	})
	if err != nil {
		abortWithLibraryError(ctx, err)
		return
	}

	// The library owns the output layout: size the output from the primitive
	// descriptor's destination, not from the input.
	var output *tensors.Tensor
	if res.internal {
		dstDesc := plan.PrimitiveDesc().DstDesc()
		numElements := dstDesc.Size() / input.DType().Size()
		layout := &layouts.Metadata{
			Dims:     slices.Clone(res.dims),
			Physical: dstDesc.Format,
			Public:   res.public,
		}
		output = ctx.AllocateOutput(0, shapes.Make(input.DType(), numElements), layout)
	} else {
		output = ctx.AllocateOutput(0, input.Shape().Clone(), nil)
	}

	if err := plan.Execute(input.Flat(), output.Flat()); err != nil {
		abortWithLibraryError(ctx, err)
	}
}

// abortWithLibraryError converts a dnnlib failure into the kernel's aborted
// status, keeping the library's numeric status and tagging the call site.
func abortWithLibraryError(ctx *kernels.Context, err error) {
	status := dnnlib.StatusRuntimeError
	message := err.Error()
	if libErr, found := dnnlib.AsError(err); found {
		status = libErr.Status
		message = libErr.Message
	}
	_, file, line, ok := runtime.Caller(1)
	if !ok {
		file, line = "unknown", 0
	}
	ctx.Abortf("operation received an exception: status: %d, message: %s, in file %s:%d",
		int(status), message, filepath.Base(file), line)
}
