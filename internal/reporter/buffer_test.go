package reporter

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/flow/internal/hookevent"
)

func TestRingBuffer_KeepsNewest(t *testing.T) {
	buf := NewRingBuffer(3)
	ctx := context.Background()

	var events []hookevent.Record
	for i := 1; i <= 5; i++ {
		ev := hookevent.Record{"n": i}
		events = append(events, ev)
		require.NoError(t, buf.Report(ctx, ev))
	}

	assert.Equal(t, events[2:], buf.Recent(ctx))
	assert.Equal(t, 3, buf.Len())
	assert.Equal(t, 3, buf.Capacity())
}

func TestRingBuffer_RecentIsACopy(t *testing.T) {
	buf := NewRingBuffer(2)
	ctx := context.Background()
	require.NoError(t, buf.Report(ctx, hookevent.Record{"n": 1}))

	snap := buf.Recent(ctx)
	snap[0] = hookevent.Record{"n": 99}
	_ = append(snap, hookevent.Record{"n": 100})

	assert.Equal(t, []hookevent.Record{{"n": 1}}, buf.Recent(ctx))
}

func TestRingBuffer_DefaultSizeAndClear(t *testing.T) {
	buf := NewRingBuffer(0)
	assert.Equal(t, DefaultBufferSize, buf.Capacity())

	require.NoError(t, buf.Report(context.Background(), hookevent.Record{}))
	buf.Clear()
	assert.Zero(t, buf.Len())
}

func TestRingBuffer_Concurrent(t *testing.T) {
	buf := NewRingBuffer(50)
	ctx := context.Background()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_ = buf.Report(ctx, hookevent.Record{"i": i})
				_ = buf.Recent(ctx)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, buf.Len())
}
