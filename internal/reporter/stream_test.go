package reporter

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/flow/internal/hookevent"
)

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) { return 0, errors.New("closed") }

func TestStream_BroadcastRemovesDeadClients(t *testing.T) {
	s := NewStream()
	var good strings.Builder
	s.addWriter(&good, nil)
	s.addWriter(brokenWriter{}, nil)

	require.NoError(t, s.Report(context.Background(), hookevent.Record{"hook_event_name": "Stop"}))

	assert.Equal(t, 1, s.ClientCount())
	assert.Equal(t, "event: hook_output\ndata: {\"output\":{\"hook_event_name\":\"Stop\"},\"type\":\"hook_output\"}\n\n", good.String())

	require.NoError(t, s.Close())
	assert.Zero(t, s.ClientCount())
	require.NoError(t, s.Close())
}

func TestFrame(t *testing.T) {
	tests := []struct {
		name     string
		envelope any
		expected string
	}{
		{"typed map", map[string]any{"type": "pong"}, "event: pong\ndata: {\"type\":\"pong\"}\n\n"},
		{"typed string map", map[string]string{"type": "connected"}, "event: connected\ndata: {\"type\":\"connected\"}\n\n"},
		{"untyped", []int{1, 2}, "data: [1,2]\n\n"},
		{"non-string type", map[string]any{"type": 3}, "data: {\"type\":3}\n\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := frame(tt.envelope)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(got))
		})
	}
}

func nextData(t *testing.T, reader *bufio.Reader) string {
	t.Helper()
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data:") {
			return line
		}
	}
}

func TestStream_ServeSSE(t *testing.T) {
	s := NewStream()
	srv := httptest.NewServer(http.HandlerFunc(s.ServeSSE))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: connected\n", line)
	assert.Contains(t, nextData(t, reader), `"type":"connected"`)

	require.Eventually(t, func() bool { return s.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	s.Broadcast(map[string]string{"type": TypeHooksChanged})

	assert.Contains(t, nextData(t, reader), "hooks_changed")

	require.NoError(t, s.Close())
	assert.Zero(t, s.ClientCount())
}
