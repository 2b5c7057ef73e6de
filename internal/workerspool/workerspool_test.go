// Copyright 2026 The GoDNN Authors. SPDX-License-Identifier: Apache-2.0

package workerspool

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWaitToStart(t *testing.T) {
	pool := New()
	pool.SetMaxParallelism(4)

	const numTasks = 64
	var counter atomic.Int32
	var wg sync.WaitGroup
	for range numTasks {
		wg.Add(1)
		pool.WaitToStart(func() {
			counter.Add(1)
			wg.Done()
		})
	}
	wg.Wait()
	assert.Equal(t, int32(numTasks), counter.Load())
}

func TestDisabledRunsInline(t *testing.T) {
	pool := New()
	pool.SetMaxParallelism(0)
	assert.False(t, pool.IsEnabled())

	ran := false
	pool.WaitToStart(func() { ran = true })
	assert.True(t, ran, "with parallelism disabled the task must run inline")
}

func TestStartIfAvailable(t *testing.T) {
	pool := New()
	pool.SetMaxParallelism(1)

	block := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	ok := pool.StartIfAvailable(func() {
		<-block
		wg.Done()
	})
	assert.True(t, ok)

	// Pool is full: the next request must be turned down.
	assert.False(t, pool.StartIfAvailable(func() {}))
	close(block)
	wg.Wait()
}
