// Copyright 2026 The GoDNN Authors. SPDX-License-Identifier: Apache-2.0

// Package dnn implements the kernels accelerated by the dnnlib math library.
//
// The package registers its kernels with the kernels registry at
// initialization, so importing it (even with `import _`) is enough to make
// them available:
//
//	import _ "github.com/gomlx/godnn/kernels/dnn"
//
// The kernels follow dnnlib's build-once/execute-many model: the expensive
// primitive preparation is done once per distinct problem (dims, axis, dtype,
// physical format) and cached in a PlanCache; every execution with the same
// problem reuses the cached plan and only rebinds the data.
//
// Kernels accept inputs in the runtime's public layout or in the subsystem's
// internal layout (tensors tagged with a layouts.Metadata), and produce their
// output in the same layout class as the input.
package dnn

import (
	"sync"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/godnn/dnnlib"
	"github.com/gomlx/godnn/kernels"
	"github.com/gomlx/gopjrt/dtypes"
)

func init() {
	kernels.Register(kernels.Key{
		Op:     "Softmax",
		Device: kernels.CPU,
		DType:  dtypes.Float32,
		Label:  kernels.LabelDnnLayoutDependent,
	}, func() kernels.OpKernel { return NewSoftmaxOp[float32]() })
}

// DefaultEngine returns the process-wide CPU engine the registered kernels
// execute on.
var DefaultEngine = sync.OnceValue(func() *dnnlib.Engine {
	engine, err := dnnlib.NewEngine(dnnlib.EngineCPU, 0)
	if err != nil {
		exceptions.Panicf("dnn: failed to create the default CPU engine: %+v", err)
	}
	return engine
})

// DefaultPlanCache returns the process-wide plan cache. All kernel instances
// created through the registry share it, so a plan built by one invocation is
// reused by every later invocation of the same problem.
var DefaultPlanCache = sync.OnceValue(func() *PlanCache {
	return NewPlanCache(DefaultEngine())
})
