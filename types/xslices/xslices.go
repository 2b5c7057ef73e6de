// Copyright 2026 The GoDNN Authors. SPDX-License-Identifier: Apache-2.0

// Package xslices provides missing functionality to the standard slices
// package.
package xslices

import (
	"golang.org/x/exp/constraints"
)

// Map executes the given function sequentially for every element on in, and
// returns a mapped slice.
func Map[In, Out any](in []In, fn func(e In) Out) (out []Out) {
	out = make([]Out, len(in))
	for ii, e := range in {
		out[ii] = fn(e)
	}
	return
}

// Iota returns a slice of incremental int values, starting with start and
// of the given length.
func Iota[T constraints.Integer | constraints.Float](start T, length int) (slice []T) {
	slice = make([]T, length)
	for ii := range slice {
		slice[ii] = start + T(ii)
	}
	return
}
