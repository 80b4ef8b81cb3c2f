package reporter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/flow/internal/hookevent"
)

// DefaultQueueSize is the backlog an Async sink holds before dropping events.
const DefaultQueueSize = 256

var (
	// ErrQueueFull is returned when an Async sink's backlog is full.
	ErrQueueFull = errors.New("delivery queue full")
	// ErrSinkClosed is returned by Report after Close.
	ErrSinkClosed = errors.New("sink closed")
)

// Async hands events to a slow sink on a background goroutine. Report only
// enqueues, so the hook caller never waits for the wrapped sink's network
// round trips or retries.
type Async struct {
	inner Reporter
	queue chan hookevent.Record
	done  chan struct{}

	mu     sync.RWMutex
	closed bool

	dropped atomic.Int64
}

// NewAsync starts the delivery goroutine for inner. size <= 0 uses
// DefaultQueueSize.
func NewAsync(inner Reporter, size int) *Async {
	if size <= 0 {
		size = DefaultQueueSize
	}
	a := &Async{
		inner: inner,
		queue: make(chan hookevent.Record, size),
		done:  make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) Name() string { return a.inner.Name() }

// Dropped returns how many events were refused because the queue was full.
func (a *Async) Dropped() int64 { return a.dropped.Load() }

// Report queues rec. The caller's context does not reach the wrapped sink.
func (a *Async) Report(_ context.Context, rec hookevent.Record) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrSinkClosed
	}
	select {
	case a.queue <- rec.Clone():
		return nil
	default:
		a.dropped.Add(1)
		return fmt.Errorf("%s: %w", a.inner.Name(), ErrQueueFull)
	}
}

func (a *Async) run() {
	defer close(a.done)
	for rec := range a.queue {
		a.deliver(rec)
	}
}

func (a *Async) deliver(rec hookevent.Record) {
	defer func() {
		if p := recover(); p != nil {
			log.Error().Str("sink", a.inner.Name()).Interface("panic", p).Msg("Reporter panicked")
		}
	}()
	if err := a.inner.Report(context.Background(), rec); err != nil {
		log.Warn().Err(err).Str("sink", a.inner.Name()).Str("event", hookevent.Name(rec)).Msg("Reporter failed")
	}
}

// Close stops accepting events, waits for the queued ones to be delivered
// and then closes the wrapped sink.
func (a *Async) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	<-a.done
	return Cleanup(a.inner)
}
