// Copyright 2026 The GoDNN Authors. SPDX-License-Identifier: Apache-2.0

package dnn

import (
	"sync"

	"github.com/gomlx/godnn/dnnlib"
)

// Plan is a fully prepared softmax primitive: descriptor, memory objects,
// primitive and stream, ready to execute on any data of the plan's problem
// shape.
//
// Plans are shared across invocations through the PlanCache. The memory
// objects' data handles are plan state, so executions are serialized by the
// plan's mutex; concurrency comes from distinct plans running in parallel.
type Plan struct {
	params     planParams
	pd         *dnnlib.SoftmaxForwardPrimitiveDesc
	src, dst   *dnnlib.Memory
	primitives []dnnlib.Primitive
	stream     *dnnlib.Stream

	mu sync.Mutex
}

// buildSoftmaxPlan runs the expensive preparation steps for one problem.
func buildSoftmaxPlan(engine *dnnlib.Engine, params planParams) (*Plan, error) {
	srcDesc, err := dnnlib.NewMemoryDesc(params.dims, params.dtype, params.format)
	if err != nil {
		return nil, err
	}
	pd, err := dnnlib.NewSoftmaxForwardPrimitiveDesc(dnnlib.SoftmaxForwardDesc{
		Prop: dnnlib.ForwardInference,
		Src:  srcDesc,
		Axis: params.axis,
	}, engine)
	if err != nil {
		return nil, err
	}
	src := dnnlib.NewMemory(pd.SrcDesc(), dnnlib.DummyData)
	dst := dnnlib.NewMemory(pd.DstDesc(), dnnlib.DummyData)
	fwd, err := dnnlib.NewSoftmaxForward(pd, src, dst)
	if err != nil {
		return nil, err
	}
	return &Plan{
		params:     params,
		pd:         pd,
		src:        src,
		dst:        dst,
		primitives: []dnnlib.Primitive{fwd},
		stream:     dnnlib.NewStream(engine),
	}, nil
}

// PrimitiveDesc returns the library's primitive descriptor. Callers use it to
// size and arrange the destination: the library owns the output layout.
func (p *Plan) PrimitiveDesc() *dnnlib.SoftmaxForwardPrimitiveDesc { return p.pd }

// Execute binds the given flat data to the plan's memories, submits the
// primitive list, and rebinds DummyData before returning. srcData and dstData
// must be flat slices of the plan's dtype, sized per SrcDesc and DstDesc.
func (p *Plan) Execute(srcData, dstData any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.src.SetDataHandle(srcData)
	p.dst.SetDataHandle(dstData)
	err := p.stream.Submit(p.primitives)
	p.src.SetDataHandle(dnnlib.DummyData)
	p.dst.SetDataHandle(dnnlib.DummyData)
	return err
}

// footprintBytes is the tensor data staged through the plan per execution.
func (p *Plan) footprintBytes() int {
	return p.pd.SrcDesc().Size() + p.pd.DstDesc().Size()
}
