// Copyright 2026 The GoDNN Authors. SPDX-License-Identifier: Apache-2.0

package dnnlib

import (
	"github.com/pkg/errors"
)

// Stream executes primitives on an engine. Submission is synchronous: Submit
// only returns after every primitive in the list ran to completion, or at the
// first failure.
type Stream struct {
	engine *Engine
}

// NewStream returns a stream for the given engine.
func NewStream(engine *Engine) *Stream {
	return &Stream{engine: engine}
}

// Engine the stream executes on.
func (s *Stream) Engine() *Engine { return s.engine }

// Submit runs the primitives in order, blocking until done. It stops at the
// first failing primitive and returns its error.
func (s *Stream) Submit(primitives []Primitive) error {
	for _, primitive := range primitives {
		if err := primitive.execute(); err != nil {
			return errors.WithMessagef(err, "stream on %s: %s primitive failed", s.engine, primitive.Kind())
		}
	}
	return nil
}
