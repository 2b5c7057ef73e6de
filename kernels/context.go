// Copyright 2026 The GoDNN Authors. SPDX-License-Identifier: Apache-2.0

package kernels

import (
	"github.com/gomlx/godnn/types/layouts"
	"github.com/gomlx/godnn/types/shapes"
	"github.com/gomlx/godnn/types/tensors"
	"github.com/pkg/errors"
)

// Context carries one invocation of a kernel: its input tensors, the outputs
// it allocates, and the invocation status.
//
// A Context is used by a single invocation and is not safe for concurrent
// use; concurrency happens across invocations, each with its own Context.
type Context struct {
	inputs  []*tensors.Tensor
	outputs []*tensors.Tensor
	status  error
}

// NewContext returns a context for one invocation with the given inputs.
func NewContext(inputs ...*tensors.Tensor) *Context {
	return &Context{inputs: inputs}
}

// NumInputs returns the number of input tensors.
func (c *Context) NumInputs() int { return len(c.inputs) }

// Input returns the i-th input tensor.
func (c *Context) Input(i int) *tensors.Tensor { return c.inputs[i] }

// AllocateOutput allocates the i-th output tensor with the given shape, and,
// if layout is non-nil, tagged as holding data in that internal layout.
//
// The allocated tensor only remains observable as the invocation's output if
// the invocation finishes without aborting.
func (c *Context) AllocateOutput(i int, shape shapes.Shape, layout *layouts.Metadata) *tensors.Tensor {
	var t *tensors.Tensor
	if layout != nil {
		t = tensors.NewInDnnLayout(shape, layout)
	} else {
		t = tensors.New(shape)
	}
	for len(c.outputs) <= i {
		c.outputs = append(c.outputs, nil)
	}
	c.outputs[i] = t
	return t
}

// NumOutputs returns the number of output slots allocated so far.
func (c *Context) NumOutputs() int { return len(c.outputs) }

// Output returns the i-th output tensor, or nil if it was never allocated or
// the invocation aborted.
func (c *Context) Output(i int) *tensors.Tensor {
	if i >= len(c.outputs) {
		return nil
	}
	return c.outputs[i]
}

// Abortf marks the invocation as failed with an aborted status carrying the
// formatted message. Any outputs allocated so far are discarded, so no
// partial result is observable. The first abort wins.
func (c *Context) Abortf(format string, args ...any) {
	c.abort(errors.Errorf("aborted: "+format, args...))
}

// AbortWithError marks the invocation as failed with an aborted status
// wrapping err. Any outputs allocated so far are discarded.
func (c *Context) AbortWithError(err error) {
	c.abort(errors.WithMessage(err, "aborted"))
}

func (c *Context) abort(err error) {
	if c.status != nil {
		return
	}
	c.status = err
	for i := range c.outputs {
		c.outputs[i] = nil
	}
}

// Err returns the invocation status: nil while ok, the aborted status after a
// failure.
func (c *Context) Err() error { return c.status }

// Ok returns whether the invocation has not aborted.
func (c *Context) Ok() bool { return c.status == nil }
