package reporter

import (
	"context"
	"sync"

	"github.com/thebtf/flow/internal/hookevent"
)

// DefaultBufferSize is used when a non-positive capacity is requested.
const DefaultBufferSize = 100

// RingBuffer keeps the most recent events in memory, oldest first.
type RingBuffer struct {
	mu      sync.Mutex
	events  []hookevent.Record
	maxSize int
}

// NewRingBuffer creates a buffer holding at most maxSize events.
func NewRingBuffer(maxSize int) *RingBuffer {
	if maxSize <= 0 {
		maxSize = DefaultBufferSize
	}
	return &RingBuffer{
		events:  make([]hookevent.Record, 0, maxSize),
		maxSize: maxSize,
	}
}

func (b *RingBuffer) Name() string { return "buffer" }

// Report appends rec, evicting the oldest event once the buffer is full.
func (b *RingBuffer) Report(_ context.Context, rec hookevent.Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.events) >= b.maxSize {
		copy(b.events, b.events[1:])
		b.events = b.events[:len(b.events)-1]
	}
	b.events = append(b.events, rec)
	return nil
}

// Recent returns a copy of the buffered events.
func (b *RingBuffer) Recent(context.Context) []hookevent.Record {
	return b.Snapshot()
}

// Snapshot is Recent for callers without a context.
func (b *RingBuffer) Snapshot() []hookevent.Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]hookevent.Record, len(b.events))
	copy(out, b.events)
	return out
}

// Len returns the number of buffered events.
func (b *RingBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Capacity returns the maximum number of buffered events.
func (b *RingBuffer) Capacity() int {
	return b.maxSize
}

// Clear drops every buffered event.
func (b *RingBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = b.events[:0]
}
