// Package reporter delivers hook events to pluggable sinks.
//
// A Reporter receives every event the server accepts. Sinks that keep history
// also implement HistoryProvider, and sinks that hold resources implement
// io.Closer. The Registry fans one event out to all sinks, isolating each
// sink's failures from the others and from the caller.
package reporter

import (
	"context"
	"io"

	"github.com/thebtf/flow/internal/hookevent"
)

// Reporter is a sink for hook events.
type Reporter interface {
	// Name identifies the sink in logs and metrics.
	Name() string
	// Report delivers one event. Sinks that absorb their own transient
	// failures return nil.
	Report(ctx context.Context, rec hookevent.Record) error
}

// HistoryProvider is implemented by sinks that retain recent events.
type HistoryProvider interface {
	Recent(ctx context.Context) []hookevent.Record
}

// Recent returns the sink's retained events, or an empty slice for sinks
// without history.
func Recent(ctx context.Context, r Reporter) []hookevent.Record {
	if hp, ok := r.(HistoryProvider); ok {
		if out := hp.Recent(ctx); out != nil {
			return out
		}
	}
	return []hookevent.Record{}
}

// Cleanup releases the sink's resources when it holds any.
func Cleanup(r Reporter) error {
	if c, ok := r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Func adapts a function into a Reporter.
type Func struct {
	ID string
	Fn func(ctx context.Context, rec hookevent.Record) error
}

func (f *Func) Name() string { return f.ID }

func (f *Func) Report(ctx context.Context, rec hookevent.Record) error {
	return f.Fn(ctx, rec)
}
