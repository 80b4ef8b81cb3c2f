package reporter

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/flow/internal/hookevent"
)

// StreamKeepAlive is how often an idle SSE connection gets a comment line,
// so proxies do not time it out.
const StreamKeepAlive = 15 * time.Second

var errNoFlush = errors.New("response writer does not support flushing")

// sseClient is one open event stream.
type sseClient struct {
	id    string
	w     io.Writer
	flush func()
	gone  chan struct{}

	mu sync.Mutex
}

func (c *sseClient) write(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.w.Write(frame); err != nil {
		return err
	}
	if c.flush != nil {
		c.flush()
	}
	return nil
}

// frame renders one SSE event. Envelopes carrying a "type" are sent as named
// events so browsers can subscribe with addEventListener.
func frame(envelope any) ([]byte, error) {
	data, err := json.Marshal(envelope)
	if err != nil {
		return nil, err
	}
	var b bytes.Buffer
	if name := envelopeType(envelope); name != "" {
		b.WriteString("event: " + name + "\n")
	}
	b.WriteString("data: ")
	b.Write(data)
	b.WriteString("\n\n")
	return b.Bytes(), nil
}

func envelopeType(envelope any) string {
	switch m := envelope.(type) {
	case map[string]any:
		s, _ := m["type"].(string)
		return s
	case map[string]string:
		return m["type"]
	}
	return ""
}

// Stream pushes envelopes to Server-Sent Events clients, for browsers that
// cannot hold a WebSocket open.
type Stream struct {
	mu      sync.RWMutex
	clients map[string]*sseClient
}

// NewStream creates an SSE sink.
func NewStream() *Stream {
	return &Stream{clients: make(map[string]*sseClient)}
}

func (s *Stream) Name() string { return "stream" }

func (s *Stream) addWriter(w io.Writer, flush func()) *sseClient {
	c := &sseClient{id: uuid.NewString(), w: w, flush: flush, gone: make(chan struct{})}

	s.mu.Lock()
	s.clients[c.id] = c
	n := len(s.clients)
	s.mu.Unlock()

	log.Debug().Str("client", c.id).Int("clients", n).Msg("Event stream opened")
	return c
}

func (s *Stream) drop(c *sseClient) {
	s.mu.Lock()
	_, ok := s.clients[c.id]
	delete(s.clients, c.id)
	n := len(s.clients)
	s.mu.Unlock()
	if !ok {
		return
	}

	close(c.gone)
	log.Debug().Str("client", c.id).Int("clients", n).Msg("Event stream closed")
}

func (s *Stream) snapshot() []*sseClient {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*sseClient, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, c)
	}
	return out
}

// Report sends the hook_output envelope to every client.
func (s *Stream) Report(_ context.Context, rec hookevent.Record) error {
	s.Broadcast(map[string]any{"type": TypeHookOutput, "output": rec})
	return nil
}

// Broadcast sends envelope to every client. Clients whose write fails are
// dropped after the pass.
func (s *Stream) Broadcast(envelope any) {
	msg, err := frame(envelope)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode stream envelope")
		return
	}

	var failed []*sseClient
	for _, c := range s.snapshot() {
		if err := c.write(msg); err != nil {
			log.Debug().Err(err).Str("client", c.id).Msg("Dropping event stream client")
			failed = append(failed, c)
		}
	}
	for _, c := range failed {
		s.drop(c)
	}
}

// ClientCount returns the number of open streams.
func (s *Stream) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Close ends every open stream.
func (s *Stream) Close() error {
	for _, c := range s.snapshot() {
		s.drop(c)
	}
	return nil
}

// ServeSSE holds an event stream open until the client goes away or the sink
// is closed. The first event is a connected envelope carrying the client id.
func (s *Stream) ServeSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, errNoFlush.Error(), http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	c := s.addWriter(w, flusher.Flush)
	defer s.drop(c)

	hello, err := frame(map[string]string{"type": TypeConnected, "clientId": c.id})
	if err != nil || c.write(hello) != nil {
		return
	}

	ticker := time.NewTicker(StreamKeepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-c.gone:
			return
		case <-ticker.C:
			if err := c.write([]byte(": keepalive\n\n")); err != nil {
				return
			}
		}
	}
}
