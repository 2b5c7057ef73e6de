// Copyright 2026 The GoDNN Authors. SPDX-License-Identifier: Apache-2.0

// Package kernels defines the surface between the host tensor runtime and
// operation implementations: a registry of kernel constructors keyed by
// (operation, device, element type, label), and the per-invocation Context a
// kernel computes against.
//
// Kernels register themselves during package initialization, the same way
// backends register with a runtime:
//
//	func init() {
//		kernels.Register(kernels.Key{Op: "Softmax", Device: kernels.CPU,
//			DType: dtypes.Float32, Label: kernels.LabelDnnLayoutDependent},
//			NewSoftmaxOp)
//	}
//
// Kernels must be stateless or internally synchronized: the runtime's
// scheduler may invoke Compute concurrently from multiple worker threads.
package kernels

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
)

// Device enumerates the processing devices kernels can be registered for.
type Device int

const (
	// CPU is the default processing device.
	CPU Device = iota
)

// String implements fmt.Stringer.
func (d Device) String() string {
	if d == CPU {
		return "CPU"
	}
	return fmt.Sprintf("Device(%d)", int(d))
}

// Label is a marker refining a kernel registration beyond op/device/dtype.
type Label string

const (
	// LabelNone is the default label.
	LabelNone Label = ""

	// LabelDnnLayoutDependent marks kernels that consume and produce tensors
	// in the accelerated subsystem's internal layout rather than the
	// runtime's default layout.
	LabelDnnLayoutDependent Label = "DnnLayoutDependent"
)

// Key identifies one kernel registration.
type Key struct {
	Op     string
	Device Device
	DType  dtypes.DType
	Label  Label
}

// String implements fmt.Stringer.
func (k Key) String() string {
	s := fmt.Sprintf("%s[%s, %s]", k.Op, k.Device, k.DType)
	if k.Label != LabelNone {
		s += fmt.Sprintf("{%s}", k.Label)
	}
	return s
}

// OpKernel is one operation implementation. Compute reads inputs from the
// context, allocates outputs on it, and reports failures through the
// context's abort methods -- it never panics for data-dependent errors.
type OpKernel interface {
	Compute(ctx *Context)
}

// Constructor creates a kernel instance for a registration.
type Constructor func() OpKernel

var (
	muRegistry             sync.Mutex
	registeredConstructors = make(map[Key]Constructor)
)

// Register a kernel constructor under the given key.
//
// To be safe, call Register during initialization of a package. It panics if
// the key is already taken: double registration is a programming error.
func Register(key Key, constructor Constructor) {
	muRegistry.Lock()
	defer muRegistry.Unlock()
	if _, found := registeredConstructors[key]; found {
		exceptions.Panicf("kernels.Register: %s is already registered", key)
	}
	registeredConstructors[key] = constructor
}

// Lookup returns the constructor registered under the key, if any.
func Lookup(key Key) (Constructor, bool) {
	muRegistry.Lock()
	defer muRegistry.Unlock()
	constructor, found := registeredConstructors[key]
	return constructor, found
}

// MustNew constructs a kernel for the given key.
// It panics if nothing is registered under it.
func MustNew(key Key) OpKernel {
	constructor, found := Lookup(key)
	if !found {
		exceptions.Panicf("kernels.MustNew: no kernel registered for %s", key)
	}
	return constructor()
}

// List returns the registered keys, sorted for determinism.
func List() []Key {
	muRegistry.Lock()
	defer muRegistry.Unlock()
	keys := make([]Key, 0, len(registeredConstructors))
	for key := range registeredConstructors {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}
