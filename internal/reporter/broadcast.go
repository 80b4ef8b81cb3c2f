package reporter

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/flow/internal/hookevent"
)

// Envelope types sent to streaming clients.
const (
	TypeHookOutput   = "hook_output"
	TypeInitial      = "initial"
	TypePong         = "pong"
	TypeHooksChanged = "hooks_changed"
	TypeConnected    = "connected"
)

const writeWait = 5 * time.Second

// Conn is the part of a WebSocket connection the broadcaster needs.
// *websocket.Conn satisfies it.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type deadliner interface {
	SetWriteDeadline(t time.Time) error
}

type wsClient struct {
	id   string
	conn Conn
	// gorilla/websocket allows one concurrent writer per connection.
	writeMu sync.Mutex
}

func (c *wsClient) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if d, ok := c.conn.(deadliner); ok {
		_ = d.SetWriteDeadline(time.Now().Add(writeWait))
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Broadcaster pushes every event to all live WebSocket connections.
type Broadcaster struct {
	mu       sync.RWMutex
	clients  map[Conn]*wsClient
	upgrader websocket.Upgrader
}

// NewBroadcaster creates a broadcaster accepting upgrades from local origins.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		clients: make(map[Conn]*wsClient),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     localOrigin,
		},
	}
}

func (b *Broadcaster) Name() string { return "broadcast" }

// localOrigin accepts requests without an Origin header (CLI clients) and
// browser pages served from the loopback interface.
func localOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

// AddConnection registers conn and returns its id. Adding a registered
// connection returns the existing id.
func (b *Broadcaster) AddConnection(conn Conn) string {
	b.mu.Lock()
	if c, ok := b.clients[conn]; ok {
		b.mu.Unlock()
		return c.id
	}
	c := &wsClient{id: uuid.NewString(), conn: conn}
	b.clients[conn] = c
	total := len(b.clients)
	b.mu.Unlock()

	log.Debug().
		Str("clientId", c.id).
		Int("totalClients", total).
		Msg("WebSocket client connected")
	return c.id
}

// RemoveConnection unregisters conn without closing it.
func (b *Broadcaster) RemoveConnection(conn Conn) bool {
	b.mu.Lock()
	c, ok := b.clients[conn]
	delete(b.clients, conn)
	total := len(b.clients)
	b.mu.Unlock()

	if ok {
		log.Debug().
			Str("clientId", c.id).
			Int("totalClients", total).
			Msg("WebSocket client disconnected")
	}
	return ok
}

// ConnectionCount returns the number of live connections.
func (b *Broadcaster) ConnectionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Report sends {"type":"hook_output","output":rec} to every connection.
// Connections that fail are dropped; the error is never returned.
func (b *Broadcaster) Report(_ context.Context, rec hookevent.Record) error {
	b.Broadcast(map[string]any{"type": TypeHookOutput, "output": rec})
	return nil
}

// Broadcast sends an arbitrary envelope to every connection and returns how
// many writes succeeded.
func (b *Broadcaster) Broadcast(envelope any) int {
	data, err := json.Marshal(envelope)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal broadcast envelope")
		return 0
	}

	b.mu.RLock()
	clients := make([]*wsClient, 0, len(b.clients))
	for _, c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	var dead []*wsClient
	sent := 0
	for _, c := range clients {
		if err := c.write(data); err != nil {
			log.Debug().
				Str("clientId", c.id).
				Err(err).
				Msg("Failed to write to WebSocket client, marking for removal")
			dead = append(dead, c)
			continue
		}
		sent++
	}

	// Remove dead clients outside the iteration
	for _, c := range dead {
		if b.RemoveConnection(c.conn) {
			_ = c.conn.Close()
		}
	}
	return sent
}

// SendInitial replays history to a newly connected client. Nothing is sent
// when history is empty.
func (b *Broadcaster) SendInitial(conn Conn, history []hookevent.Record) error {
	if len(history) == 0 {
		return nil
	}
	return b.send(conn, map[string]any{"type": TypeInitial, "outputs": history})
}

// SendPong answers a client heartbeat.
func (b *Broadcaster) SendPong(conn Conn) error {
	return b.send(conn, map[string]string{"type": TypePong})
}

func (b *Broadcaster) send(conn Conn, envelope any) error {
	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	b.mu.RLock()
	c, ok := b.clients[conn]
	b.mu.RUnlock()
	if !ok {
		c = &wsClient{conn: conn}
	}
	return c.write(data)
}

// Close closes every connection, ignoring close errors, and forgets them.
func (b *Broadcaster) Close() error {
	b.mu.Lock()
	clients := b.clients
	b.clients = make(map[Conn]*wsClient)
	b.mu.Unlock()

	for _, c := range clients {
		c.writeMu.Lock()
		_ = c.conn.Close()
		c.writeMu.Unlock()
	}
	return nil
}

// ServeWS upgrades the request, replays history and answers every text frame
// with a pong until the client goes away.
func (b *Broadcaster) ServeWS(history func(ctx context.Context) []hookevent.Record) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := b.upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Debug().Err(err).Msg("WebSocket upgrade failed")
			return
		}
		b.AddConnection(conn)
		defer func() {
			if b.RemoveConnection(conn) {
				_ = conn.Close()
			}
		}()

		if history != nil {
			if err := b.SendInitial(conn, history(r.Context())); err != nil {
				log.Debug().Err(err).Msg("Failed to send initial history")
				return
			}
		}

		for {
			mt, _, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Debug().Err(err).Msg("WebSocket read failed")
				}
				return
			}
			if mt != websocket.TextMessage {
				continue
			}
			if err := b.SendPong(conn); err != nil {
				return
			}
		}
	}
}
