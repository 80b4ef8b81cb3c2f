package server

import (
	"context"
	"sync"
	"time"
)

// WaitStatus tells why Flag.Wait returned.
type WaitStatus int

const (
	WaitOK WaitStatus = iota
	WaitTimeout
	WaitCancelled
)

func (s WaitStatus) String() string {
	switch s {
	case WaitOK:
		return "ok"
	case WaitTimeout:
		return "timeout"
	case WaitCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Flag is a one-value wait/notify cell. Set stores a value and wakes every
// waiter; Reset clears it so the next Wait blocks again.
type Flag[T any] struct {
	mu    sync.Mutex
	value T
	set   bool
	ready chan struct{}
}

// NewFlag returns an unset flag.
func NewFlag[T any]() *Flag[T] {
	return &Flag[T]{ready: make(chan struct{})}
}

// Set stores v and releases waiters. Setting an already set flag replaces
// the value.
func (f *Flag[T]) Set(v T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.value = v
	if !f.set {
		f.set = true
		close(f.ready)
	}
}

// Reset clears the flag.
func (f *Flag[T]) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.set {
		var zero T
		f.value = zero
		f.set = false
		f.ready = make(chan struct{})
	}
}

// Get returns the current value and whether it is set.
func (f *Flag[T]) Get() (T, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, f.set
}

// Wait blocks until the flag is set, timeout elapses or ctx is done. A zero
// timeout waits on ctx alone.
func (f *Flag[T]) Wait(ctx context.Context, timeout time.Duration) (T, WaitStatus) {
	f.mu.Lock()
	ready := f.ready
	f.mu.Unlock()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	var zero T
	select {
	case <-ready:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.value, WaitOK
	case <-expired:
		return zero, WaitTimeout
	case <-ctx.Done():
		return zero, WaitCancelled
	}
}
