// Copyright 2025 go-tlang Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package workerpool runs independent code generation sessions on a fixed
// set of persistent workers. A Pool is created once, for example by a CLI
// invocation building many kernels, and reused for every batch.
//
// Usage:
//
//	pool := workerpool.New(runtime.GOMAXPROCS(0))
//	defer pool.Close()
//
//	err := pool.Each(ctx, len(kernels), func(ctx context.Context, i int) error {
//	    return build(ctx, kernels[i])
//	})
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

// Pool is a persistent worker pool. Workers are spawned at creation and
// live until Close.
type Pool struct {
	numWorkers int
	workC      chan job

	// mu guards closed and keeps Close from closing workC while Each is
	// still handing out jobs.
	mu     sync.RWMutex
	closed bool
}

type job struct {
	fn      func()
	barrier *sync.WaitGroup
}

// New creates a pool with numWorkers workers. If numWorkers <= 0 it uses
// GOMAXPROCS.
func New(numWorkers int) *Pool {
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}
	p := &Pool{
		numWorkers: numWorkers,
		workC:      make(chan job, numWorkers*2),
	}
	for range numWorkers {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	for j := range p.workC {
		j.fn()
		j.barrier.Done()
	}
}

// NumWorkers returns the number of workers in the pool.
func (p *Pool) NumWorkers() int {
	return p.numWorkers
}

// Close shuts the pool down after pending work completes. It waits for
// running Each calls to return. Calling Close more than once is safe.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.workC)
	}
}

// Each calls fn for every index in [0, n), handing indices out to the
// workers one at a time so that slow items do not hold up a whole chunk.
// It blocks until all started calls return.
//
// Once ctx is done or a call fails, no further indices are started; the
// skipped ones report ctx.Err() or nothing, respectively. The returned error
// joins the failures in index order, so it does not depend on scheduling.
// A closed pool runs the calls sequentially on the caller's goroutine.
func (p *Pool) Each(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	if n <= 0 {
		return nil
	}
	errs := make([]error, n)
	var failed atomic.Bool
	run := func(i int) {
		if err := ctx.Err(); err != nil {
			errs[i] = err
			return
		}
		if failed.Load() {
			return
		}
		if err := safeCall(ctx, i, fn); err != nil {
			errs[i] = err
			failed.Store(true)
		}
	}

	workers := min(p.numWorkers, n)
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed || workers == 1 {
		for i := range n {
			run(i)
		}
		return errors.Join(errs...)
	}

	var next atomic.Int32
	var wg sync.WaitGroup
	wg.Add(workers)
	for range workers {
		p.workC <- job{
			fn: func() {
				for {
					i := int(next.Add(1)) - 1
					if i >= n {
						return
					}
					run(i)
				}
			},
			barrier: &wg,
		}
	}
	wg.Wait()
	return errors.Join(errs...)
}

// safeCall turns a panic in fn into an error so a single bad item cannot
// take a worker down with it.
func safeCall(ctx context.Context, i int, fn func(context.Context, int) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("item %d panicked: %v", i, r)
		}
	}()
	return fn(ctx, i)
}
