// Copyright 2026 The GoDNN Authors. SPDX-License-Identifier: Apache-2.0

package dnn

import (
	"math"
	"math/rand/v2"
	"slices"
	"sync"
	"testing"

	"github.com/gomlx/godnn/kernels"
	"github.com/gomlx/godnn/types/layouts"
	"github.com/gomlx/godnn/types/shapes"
	"github.com/gomlx/godnn/types/tensors"
	"github.com/gomlx/godnn/types/xslices"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/klog/v2"
)

func init() {
	klog.InitFlags(nil)
}

var softmaxKey = kernels.Key{
	Op:     "Softmax",
	Device: kernels.CPU,
	DType:  dtypes.Float32,
	Label:  kernels.LabelDnnLayoutDependent,
}

// refSoftmax computes softmax of one contiguous vector in float64.
func refSoftmax(input []float64) []float64 {
	maxVal := math.Inf(-1)
	for _, v := range input {
		maxVal = math.Max(maxVal, v)
	}
	var sum float64
	output := make([]float64, len(input))
	for i, v := range input {
		output[i] = math.Exp(v - maxVal)
		sum += output[i]
	}
	for i := range output {
		output[i] /= sum
	}
	return output
}

func randomInput(seed uint64, n int) []float32 {
	rng := rand.New(rand.NewPCG(seed, 0))
	data := make([]float32, n)
	for i := range data {
		data[i] = float32(rng.NormFloat64() * 2)
	}
	return data
}

// compute runs the kernel on a fresh context and requires success.
func compute(t *testing.T, kernel kernels.OpKernel, input *tensors.Tensor) *tensors.Tensor {
	ctx := kernels.NewContext(input)
	kernel.Compute(ctx)
	require.NoError(t, ctx.Err())
	output := ctx.Output(0)
	require.NotNil(t, output)
	return output
}

func TestSoftmaxRegistered(t *testing.T) {
	constructor, found := kernels.Lookup(softmaxKey)
	require.True(t, found, "importing the package must register the softmax kernel")
	require.NotNil(t, constructor())
}

func TestSoftmaxRows(t *testing.T) {
	kernel := kernels.MustNew(softmaxKey)
	rows, cols := 8, 10
	data := randomInput(1, rows*cols)
	input := tensors.FromFlatDataAndDimensions(slices.Clone(data), rows, cols)

	output := compute(t, kernel, input)
	require.True(t, input.Shape().Equal(output.Shape()))
	assert.False(t, output.IsDnnLayout())
	out := tensors.FlatData[float32](output)

	for row := range rows {
		vector := xslices.Map(data[row*cols:(row+1)*cols], func(v float32) float64 { return float64(v) })
		ref := refSoftmax(vector)
		var sum float32
		for col := range cols {
			got := out[row*cols+col]
			assert.InDelta(t, ref[col], got, 1e-6)
			assert.Greater(t, got, float32(0))
			sum += got
		}
		assert.InDelta(t, 1.0, sum, 1e-5, "row %d must sum to 1", row)

		// Softmax is monotonic: relative order within a row is preserved.
		for i := range cols {
			for j := i + 1; j < cols; j++ {
				a, b := row*cols+i, row*cols+j
				assert.Equal(t, data[a] < data[b], out[a] < out[b])
			}
		}
	}

	// Deterministic, and the input is left untouched.
	assert.Equal(t, data, tensors.FlatData[float32](input))
	again := compute(t, kernel, input)
	assert.Equal(t, out, tensors.FlatData[float32](again))
}

func TestSoftmaxSingleElement(t *testing.T) {
	kernel := kernels.MustNew(softmaxKey)
	input := tensors.FromFlatDataAndDimensions([]float32{-17.5}, 1)
	output := compute(t, kernel, input)
	assert.Equal(t, []float32{1}, tensors.FlatData[float32](output))
}

func TestSoftmaxAllRanksPublic(t *testing.T) {
	kernel := kernels.MustNew(softmaxKey)
	for _, dims := range [][]int{{6}, {3, 6}, {2, 3, 6}, {2, 2, 3, 6}, {2, 2, 2, 3, 6}} {
		shape := shapes.Make(dtypes.Float32, dims...)
		input := tensors.FromFlatDataAndDimensions(randomInput(uint64(len(dims)), shape.Size()), dims...)
		output := compute(t, kernel, input)
		require.True(t, input.Shape().Equal(output.Shape()), "rank %d", len(dims))
		assert.False(t, output.IsDnnLayout())

		out := tensors.FlatData[float32](output)
		innermost := dims[len(dims)-1]
		for base := 0; base < len(out); base += innermost {
			var sum float32
			for i := range innermost {
				sum += out[base+i]
			}
			assert.InDelta(t, 1.0, sum, 1e-5, "rank %d vector at %d", len(dims), base)
		}
	}
}

// TestSoftmaxInternalNHWC feeds a tensor tagged with a channel-last internal
// layout: the kernel must normalize over the channel axis and keep the
// arrangement in the output's layout tag.
func TestSoftmaxInternalNHWC(t *testing.T) {
	kernel := kernels.MustNew(softmaxKey)
	n, c, h, w := 2, 3, 2, 2
	layout := &layouts.Metadata{
		Dims:     []int{n, c, h, w},
		Physical: layouts.NHWC,
		Public:   layouts.NHWC,
	}
	data := randomInput(7, n*c*h*w)
	input := tensors.FromFlatDataInDnnLayout(slices.Clone(data), layout)

	output := compute(t, kernel, input)
	require.True(t, output.IsDnnLayout())
	outLayout := output.DnnLayout()
	assert.Equal(t, layout.Dims, outLayout.Dims)
	assert.Equal(t, layouts.NHWC, outLayout.Physical)
	assert.Equal(t, layouts.NHWC, outLayout.Public,
		"rank-4 internal outputs translate back to the channel-last public arrangement")
	assert.Equal(t, 1, output.Shape().Rank(), "internal-layout outputs carry a flat shape")
	assert.Equal(t, n*c*h*w, output.Shape().Size())

	// In NHWC the channel vectors are contiguous runs of length c.
	out := tensors.FlatData[float32](output)
	for base := 0; base < len(out); base += c {
		vector := xslices.Map(data[base:base+c], func(v float32) float64 { return float64(v) })
		ref := refSoftmax(vector)
		for i := range c {
			assert.InDelta(t, ref[i], out[base+i], 1e-6)
		}
	}
}

// TestSoftmaxInternalRank5 covers the rank-5 internal path: channel-axis
// normalization and the NDHWC public-equivalent tag on the output.
func TestSoftmaxInternalRank5(t *testing.T) {
	kernel := kernels.MustNew(softmaxKey)
	n, c, d, h, w := 2, 3, 2, 2, 2
	layout := &layouts.Metadata{
		Dims:     []int{n, c, d, h, w},
		Physical: layouts.NDHWC,
		Public:   layouts.NDHWC,
	}
	data := randomInput(13, n*c*d*h*w)
	output := compute(t, kernel, tensors.FromFlatDataInDnnLayout(slices.Clone(data), layout))

	require.True(t, output.IsDnnLayout())
	outLayout := output.DnnLayout()
	assert.Equal(t, layouts.NDHWC, outLayout.Physical)
	assert.Equal(t, layouts.NDHWC, outLayout.Public)

	// In NDHWC the channel vectors are contiguous runs of length c.
	out := tensors.FlatData[float32](output)
	for base := 0; base < len(out); base += c {
		var sum float32
		for i := range c {
			sum += out[base+i]
		}
		assert.InDelta(t, 1.0, sum, 1e-5, "channel vector at %d must sum to 1", base)
	}
}

// TestSoftmaxInternalNC checks that a rank-2 internal layout, where the
// channel axis is also the innermost one, matches the public-layout result.
func TestSoftmaxInternalNC(t *testing.T) {
	kernel := kernels.MustNew(softmaxKey)
	data := randomInput(11, 4*6)

	public := compute(t, kernel, tensors.FromFlatDataAndDimensions(slices.Clone(data), 4, 6))
	layout := &layouts.Metadata{Dims: []int{4, 6}, Physical: layouts.NC, Public: layouts.NC}
	internal := compute(t, kernel, tensors.FromFlatDataInDnnLayout(slices.Clone(data), layout))

	assert.Equal(t, tensors.FlatData[float32](public), tensors.FlatData[float32](internal))
}

func TestSoftmaxRankValidation(t *testing.T) {
	kernel := kernels.MustNew(softmaxKey)
	for _, input := range []*tensors.Tensor{
		tensors.New(shapes.Make(dtypes.Float32)),
		tensors.New(shapes.Make(dtypes.Float32, 1, 1, 1, 1, 1, 1)),
	} {
		ctx := kernels.NewContext(input)
		kernel.Compute(ctx)
		require.False(t, ctx.Ok(), "rank %d must be rejected", input.Rank())
		assert.ErrorContains(t, ctx.Err(), "Input dims must be <= 5 and >=1")
		assert.Nil(t, ctx.Output(0), "a rejected invocation must not expose an output")
	}
}

func TestSoftmaxWrongDType(t *testing.T) {
	kernel := kernels.MustNew(softmaxKey)
	ctx := kernels.NewContext(tensors.FromFlatDataAndDimensions([]float64{1, 2}, 2))
	kernel.Compute(ctx)
	require.False(t, ctx.Ok())
	assert.ErrorContains(t, ctx.Err(), "got a Float64 input")
	assert.Nil(t, ctx.Output(0))
}

// TestSoftmaxLibraryFailureAborts drives the kernel into a library rejection:
// a blocked physical format the engine has no implementation for.
func TestSoftmaxLibraryFailureAborts(t *testing.T) {
	kernel := kernels.MustNew(softmaxKey)
	layout := &layouts.Metadata{
		Dims:     []int{2, 8, 3, 3},
		Physical: layouts.NChw8c,
		Public:   layouts.NHWC,
	}
	input := tensors.FromFlatDataInDnnLayout(make([]float32, 2*8*3*3), layout)
	ctx := kernels.NewContext(input)
	kernel.Compute(ctx)
	require.False(t, ctx.Ok())
	assert.ErrorContains(t, ctx.Err(), "operation received an exception")
	assert.ErrorContains(t, ctx.Err(), "in file softmax.go:")
	assert.Nil(t, ctx.Output(0))
}

func TestSoftmaxFloat64Kernel(t *testing.T) {
	kernel := NewSoftmaxOpWith[float64](NewPlanCache(newTestEngine(t)))
	input := []float64{0.5, -1.5, 2.5, 0, 3, 1}
	output := compute(t, kernel, tensors.FromFlatDataAndDimensions(slices.Clone(input), 2, 3))
	out := tensors.FlatData[float64](output)
	for row := range 2 {
		ref := refSoftmax(input[row*3 : (row+1)*3])
		for col := range 3 {
			assert.InDelta(t, ref[col], out[row*3+col], 1e-12)
		}
	}
}

// TestSoftmaxKernelReusesPlans runs two invocations of the same problem shape
// through one kernel and checks a single plan served both.
func TestSoftmaxKernelReusesPlans(t *testing.T) {
	cache, attempts := countingCache(t)
	kernel := NewSoftmaxOpWith[float32](cache)

	first := compute(t, kernel, tensors.FromFlatDataAndDimensions(randomInput(21, 16), 4, 4))
	second := compute(t, kernel, tensors.FromFlatDataAndDimensions(randomInput(22, 16), 4, 4))
	assert.Equal(t, int64(1), attempts.Load(), "the second invocation must reuse the cached plan")

	// The shared plan must not make the invocations share buffers.
	assert.NotSame(t, &tensors.FlatData[float32](first)[0], &tensors.FlatData[float32](second)[0])
}

// TestSoftmaxConcurrent hammers one shared kernel (and thus one shared plan)
// from many goroutines and checks every result against a sequential run.
func TestSoftmaxConcurrent(t *testing.T) {
	kernel := kernels.MustNew(softmaxKey)
	rows, cols := 32, 16
	data := randomInput(5, rows*cols)
	expected := tensors.FlatData[float32](compute(t, kernel,
		tensors.FromFlatDataAndDimensions(slices.Clone(data), rows, cols)))

	const numGoroutines = 8
	const iterations = 4
	outputs := make([][]float32, numGoroutines)
	var wg sync.WaitGroup
	for g := range numGoroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range iterations {
				ctx := kernels.NewContext(tensors.FromFlatDataAndDimensions(slices.Clone(data), rows, cols))
				kernel.Compute(ctx)
				if !assert.NoError(t, ctx.Err()) {
					return
				}
				outputs[g] = tensors.FlatData[float32](ctx.Output(0))
			}
		}()
	}
	wg.Wait()

	for g := range numGoroutines {
		assert.Equal(t, expected, outputs[g], "goroutine %d diverged from the sequential result", g)
	}
}
