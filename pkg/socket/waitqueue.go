/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

package socket

import (
	"context"
	"sync"

	"github.com/hk-project/hkgo/pkg/vfs"
)

// condWaitQueue is an in-process stand-in for vfs.WaitQueue. A real
// deployment wires the RX/TX/connect wait queues to the scheduler's own
// primitive; this implementation exists so the socket layer is directly
// testable without one.
type condWaitQueue struct {
	mu   sync.Mutex
	cond *sync.Cond
	gen  uint64
}

func newCondWaitQueue() *condWaitQueue {
	w := &condWaitQueue{}
	w.cond = sync.NewCond(&w.mu)
	return w
}

var _ vfs.WaitQueue = (*condWaitQueue)(nil)

// Wait suspends until WakeAll is called or ctx is done, then re-checks
// the predicate is the caller's responsibility per the spec's
// "recheck the predicate after wake" requirement.
func (w *condWaitQueue) Wait(ctx context.Context) error {
	w.mu.Lock()
	gen := w.gen
	w.mu.Unlock()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			w.WakeAll()
		case <-done:
		}
	}()

	w.mu.Lock()
	defer w.mu.Unlock()
	for w.gen == gen {
		w.cond.Wait()
	}
	return ctx.Err()
}

// WakeAll wakes every waiter, advancing the generation so stale waiters
// that re-enter Wait don't spuriously return immediately.
func (w *condWaitQueue) WakeAll() {
	w.mu.Lock()
	w.gen++
	w.mu.Unlock()
	w.cond.Broadcast()
}
