package reporter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/flow/internal/hookevent"
)

type closingSink struct {
	Func
	closed bool
}

func (c *closingSink) Close() error {
	c.closed = true
	return nil
}

func failing(name string) *Func {
	return &Func{ID: name, Fn: func(context.Context, hookevent.Record) error {
		return errors.New("boom")
	}}
}

func panicking(name string) *Func {
	return &Func{ID: name, Fn: func(context.Context, hookevent.Record) error {
		panic("sink exploded")
	}}
}

func TestRegistry_FailingSinkDoesNotBlockOthers(t *testing.T) {
	tests := []struct {
		name  string
		first Reporter
	}{
		{"error", failing("bad")},
		{"panic", panicking("bad")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry()
			buf := NewRingBuffer(10)
			reg.Add(tt.first)
			reg.Add(buf)

			ev := hookevent.Record{"hook_event_name": "Stop"}
			var out Outcome
			require.NotPanics(t, func() {
				out = reg.ReportAll(context.Background(), ev)
			})

			assert.Equal(t, []hookevent.Record{ev}, buf.Snapshot())
			assert.Equal(t, 1, out.Delivered)
			require.Len(t, out.Failures, 1)
			assert.Equal(t, "bad", out.Failures[0].Sink)
			assert.False(t, out.OK())
		})
	}
}

func TestRegistry_AddRemoveIdempotent(t *testing.T) {
	reg := NewRegistry()
	a := NewRingBuffer(1)
	b := NewConsole(&discard{})

	reg.Add(a)
	reg.Add(a)
	reg.Add(b)
	assert.Equal(t, 2, reg.Len())
	assert.Equal(t, []Reporter{a, b}, reg.Reporters())

	assert.True(t, reg.Remove(a))
	assert.False(t, reg.Remove(a))
	assert.Equal(t, []Reporter{b}, reg.Reporters())
}

func TestRegistry_DeliversInRegistrationOrder(t *testing.T) {
	reg := NewRegistry()
	var order []string
	for _, name := range []string{"one", "two", "three"} {
		name := name
		reg.Add(&Func{ID: name, Fn: func(context.Context, hookevent.Record) error {
			order = append(order, name)
			return nil
		}})
	}

	out := reg.ReportAll(context.Background(), hookevent.Record{})

	assert.Equal(t, []string{"one", "two", "three"}, order)
	assert.True(t, out.OK())
	assert.Equal(t, 3, out.Delivered)
}

func TestRegistry_RecentAndClose(t *testing.T) {
	reg := NewRegistry()
	sink := &closingSink{Func: Func{ID: "c", Fn: func(context.Context, hookevent.Record) error { return nil }}}
	buf := NewRingBuffer(5)
	reg.Add(sink)
	reg.Add(buf)

	assert.Empty(t, reg.Recent(context.Background()))
	reg.ReportAll(context.Background(), hookevent.Record{"n": 1})
	assert.Len(t, reg.Recent(context.Background()), 1)

	require.NoError(t, reg.Close())
	assert.True(t, sink.closed)
	assert.Zero(t, reg.Len())
}

func TestRecentHelper(t *testing.T) {
	assert.Equal(t, []hookevent.Record{}, Recent(context.Background(), NewConsole(&discard{})))
	assert.NoError(t, Cleanup(failing("x")))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
