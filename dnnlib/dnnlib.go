// Copyright 2026 The GoDNN Authors. SPDX-License-Identifier: Apache-2.0

// Package dnnlib is the optimized math library behind the accelerated kernel
// subsystem. It follows the build-once/execute-many model:
//
//  1. Describe the problem: a MemoryDesc (dims, dtype, physical format) and an
//     operation descriptor (e.g. SoftmaxForwardDesc).
//  2. Ask the library for a primitive descriptor on an Engine
//     (NewSoftmaxForwardPrimitiveDesc). This is the expensive step: the
//     library validates the problem and selects the destination layout.
//  3. Create Memory objects bound to DummyData, build the Primitive, and keep
//     both around.
//  4. Per execution: bind real data handles to the memories, Submit the
//     primitive list to a Stream, and bind DummyData back.
//
// All failures are reported as *Error values carrying a numeric Status.
package dnnlib

import (
	"os"
	"strconv"

	"github.com/gomlx/godnn/internal/workerspool"
	"k8s.io/klog/v2"
)

// ParallelismEnvVar limits the engine's intra-op parallelism when set.
// 0 disables parallelism, a negative value removes the limit.
const ParallelismEnvVar = "GODNN_PARALLELISM"

// EngineKind enumerates the processing devices the library can run on.
type EngineKind int

const (
	// EngineCPU executes primitives on the local CPU.
	EngineCPU EngineKind = iota
)

// String implements fmt.Stringer.
func (k EngineKind) String() string {
	if k == EngineCPU {
		return "cpu"
	}
	return "unknown(" + strconv.Itoa(int(k)) + ")"
}

// Engine is a handle to a processing device. Primitive descriptors are
// created for a specific engine; primitives created from them only run on it.
type Engine struct {
	kind    EngineKind
	ordinal int
	workers *workerspool.Pool
}

// NewEngine returns an engine for the given device kind and ordinal.
// Only EngineCPU with ordinal 0 exists on this build.
func NewEngine(kind EngineKind, ordinal int) (*Engine, error) {
	if kind != EngineCPU {
		return nil, Errorf(StatusUnimplemented, "engine kind %s is not implemented", kind)
	}
	if ordinal != 0 {
		return nil, Errorf(StatusInvalidArguments, "CPU engine ordinal must be 0, got %d", ordinal)
	}
	e := &Engine{kind: kind, ordinal: ordinal, workers: workerspool.New()}
	if value := os.Getenv(ParallelismEnvVar); value != "" {
		parallelism, err := strconv.Atoi(value)
		if err != nil {
			klog.Warningf("dnnlib: ignoring invalid $%s=%q: %v", ParallelismEnvVar, value, err)
		} else {
			e.workers.SetMaxParallelism(parallelism)
		}
	}
	return e, nil
}

// Kind returns the engine's device kind.
func (e *Engine) Kind() EngineKind { return e.kind }

// Ordinal returns the engine's device ordinal.
func (e *Engine) Ordinal() int { return e.ordinal }

// String implements fmt.Stringer.
func (e *Engine) String() string {
	return e.kind.String() + ":" + strconv.Itoa(e.ordinal)
}
