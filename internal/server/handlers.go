package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/flow/internal/hookconfig"
	"github.com/thebtf/flow/internal/hookevent"
)

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":    "ok",
		"version":   s.version,
		"uptime":    time.Since(s.startTime).Round(time.Second).String(),
		"reporters": s.registry.Len(),
	})
}

// handleVersion lets hook commands detect a stale server.
func (s *Service) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"version": s.version})
}

// handleReport receives a hook event, stamps it and reports it to every sink.
// Sink failures never fail the request, and the fan-out completes even when
// the client disconnects.
func (s *Service) handleReport(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body: "+err.Error())
		return
	}
	rec, err := hookevent.ParseRecord(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	hookevent.EnsureTimestamp(rec, time.Now())

	// A hook client that gives up must not cut delivery short for the sinks.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), DefaultHTTPTimeout)
	defer cancel()
	outcome := s.registry.ReportAll(ctx, rec)
	writeJSON(w, map[string]any{
		"success":   true,
		"message":   "Hook event recorded",
		"delivered": outcome.Delivered,
		"failures":  len(outcome.Failures),
	})
}

func (s *Service) handleOutput(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"outputs": s.buffer.Snapshot()})
}

// handleList returns the hooks of the requested scope's settings file.
func (s *Service) handleList(w http.ResponseWriter, r *http.Request) {
	if s.manager == nil {
		writeError(w, http.StatusServiceUnavailable, "hook settings are not available")
		return
	}

	scope := s.scope
	if raw := r.URL.Query().Get("scope"); raw != "" {
		parsed, err := hookconfig.ParseScope(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		scope = parsed
	}

	settings, path, err := s.manager.List(scope)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, hookconfig.ErrScopeUnavailable) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}

	_, statErr := os.Stat(path)
	writeJSON(w, map[string]any{
		"scope":         scope,
		"settings_file": path,
		"exists":        statErr == nil,
		"hooks":         settings.Hooks,
	})
}

func (s *Service) handlePing(w http.ResponseWriter, r *http.Request) {
	value := r.URL.Query().Get("ping_str")
	if value == "" {
		writeError(w, http.StatusBadRequest, "ping_str is required")
		return
	}
	writeJSON(w, s.pings.Record(value, time.Now()))
}

func (s *Service) handlePings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"pings": s.pings.Results()})
}

func (s *Service) handlePrompt(w http.ResponseWriter, r *http.Request) {
	value := r.URL.Query().Get("prompt_text")
	if value == "" {
		writeError(w, http.StatusBadRequest, "prompt_text is required")
		return
	}
	writeJSON(w, s.prompts.Record(value, time.Now()))
}

func (s *Service) handlePrompts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"prompts": s.prompts.Results()})
}
