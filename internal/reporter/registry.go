package reporter

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/thebtf/flow/internal/hookevent"
)

const meterName = "github.com/thebtf/flow/internal/reporter"

// Failure records one sink that did not accept an event.
type Failure struct {
	Sink string
	Err  error
}

// Outcome summarizes one fan-out.
type Outcome struct {
	Delivered int
	Failures  []Failure
}

// OK reports whether every sink accepted the event.
func (o Outcome) OK() bool {
	return len(o.Failures) == 0
}

// Registry is an ordered set of sinks.
type Registry struct {
	mu    sync.RWMutex
	sinks []Reporter

	events   metric.Int64Counter
	failures metric.Int64Counter
}

// NewRegistry creates an empty registry. Counters are registered on the
// global meter provider.
func NewRegistry() *Registry {
	meter := otel.Meter(meterName)
	r := &Registry{}

	var err error
	r.events, err = meter.Int64Counter("flow.reporter.events",
		metric.WithDescription("Hook events delivered to sinks"))
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create event counter")
	}
	r.failures, err = meter.Int64Counter("flow.reporter.sink_failures",
		metric.WithDescription("Sink deliveries that failed"))
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create failure counter")
	}
	return r
}

// Add registers a sink. Adding a sink that is already present is a no-op.
func (r *Registry) Add(sink Reporter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sinks {
		if s == sink {
			return
		}
	}
	r.sinks = append(r.sinks, sink)
}

// Remove unregisters a sink. Removing an absent sink is a no-op.
func (r *Registry) Remove(sink Reporter) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.sinks {
		if s == sink {
			r.sinks = append(r.sinks[:i:i], r.sinks[i+1:]...)
			return true
		}
	}
	return false
}

// Reporters returns the sinks in registration order.
func (r *Registry) Reporters() []Reporter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Reporter, len(r.sinks))
	copy(out, r.sinks)
	return out
}

// Len returns the number of sinks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sinks)
}

// ReportAll delivers rec to every sink in registration order. A sink that
// returns an error or panics is logged and skipped; delivery continues with
// the next sink and nothing propagates to the caller.
func (r *Registry) ReportAll(ctx context.Context, rec hookevent.Record) Outcome {
	var out Outcome
	name := hookevent.Name(rec)
	for _, sink := range r.Reporters() {
		if err := deliver(ctx, sink, rec); err != nil {
			log.Warn().
				Err(err).
				Str("sink", sink.Name()).
				Str("event", name).
				Msg("Reporter failed")
			out.Failures = append(out.Failures, Failure{Sink: sink.Name(), Err: err})
			r.count(ctx, r.failures, sink.Name())
			continue
		}
		out.Delivered++
		r.count(ctx, r.events, sink.Name())
	}
	return out
}

func deliver(ctx context.Context, sink Reporter, rec hookevent.Record) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic in reporter: %v", p)
		}
	}()
	return sink.Report(ctx, rec)
}

func (r *Registry) count(ctx context.Context, c metric.Int64Counter, sink string) {
	if c == nil {
		return
	}
	c.Add(ctx, 1, metric.WithAttributes(attribute.String("sink", sink)))
}

// Recent returns the history of the first sink that keeps one.
func (r *Registry) Recent(ctx context.Context) []hookevent.Record {
	for _, sink := range r.Reporters() {
		if _, ok := sink.(HistoryProvider); ok {
			return Recent(ctx, sink)
		}
	}
	return []hookevent.Record{}
}

// Close cleans up every sink and empties the registry.
func (r *Registry) Close() error {
	r.mu.Lock()
	sinks := r.sinks
	r.sinks = nil
	r.mu.Unlock()

	for _, sink := range sinks {
		if err := Cleanup(sink); err != nil {
			log.Debug().Err(err).Str("sink", sink.Name()).Msg("Reporter cleanup failed")
		}
	}
	return nil
}
