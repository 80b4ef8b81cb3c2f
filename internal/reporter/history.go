package reporter

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/flow/internal/db/sqlite"
	"github.com/thebtf/flow/internal/hookevent"
)

// History persists events to SQLite so they survive restarts.
type History struct {
	events    *sqlite.EventStore
	limit     int
	maxEvents int
	inserts   atomic.Int64
}

// NewHistory wraps an event store. Recent returns at most limit events, and
// the table is pruned to maxEvents rows every maxEvents/10 inserts
// (maxEvents <= 0 disables pruning).
func NewHistory(events *sqlite.EventStore, limit, maxEvents int) *History {
	if limit <= 0 {
		limit = DefaultBufferSize
	}
	return &History{events: events, limit: limit, maxEvents: maxEvents}
}

func (h *History) Name() string { return "history" }

// Report stores rec.
func (h *History) Report(ctx context.Context, rec hookevent.Record) error {
	at := hookevent.Timestamp(rec)
	if at.IsZero() {
		at = time.Now()
	}
	base := hookevent.Decode(rec).Common()
	if _, err := h.events.Insert(ctx, hookevent.Name(rec), base.SessionID, base.CWD, rec, at); err != nil {
		return err
	}

	n := h.inserts.Add(1)
	if h.maxEvents > 0 && n%int64(max(h.maxEvents/10, 1)) == 0 {
		if removed, err := h.events.Prune(ctx, h.maxEvents); err != nil {
			log.Warn().Err(err).Msg("Failed to prune event history")
		} else if removed > 0 {
			log.Debug().Int64("removed", removed).Msg("Pruned event history")
		}
	}
	return nil
}

// Recent returns the newest stored events, oldest first.
func (h *History) Recent(ctx context.Context) []hookevent.Record {
	stored, err := h.events.Recent(ctx, "", h.limit)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read event history")
		return []hookevent.Record{}
	}
	out := make([]hookevent.Record, len(stored))
	for i, ev := range stored {
		out[i] = ev.Payload
	}
	return out
}

// Close closes the database.
func (h *History) Close() error {
	return h.events.Close()
}
