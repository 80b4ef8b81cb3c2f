package reporter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/flow/internal/hookevent"
	"github.com/thebtf/flow/internal/privacy"
)

// DefaultForwardTimeout bounds a single delivery attempt.
const DefaultForwardTimeout = 5 * time.Second

// ForwardConfig configures a Forward sink.
type ForwardConfig struct {
	URL     string
	Headers map[string]string
	Timeout time.Duration
	// RetryCount is the number of extra attempts after the first.
	RetryCount int
	// Redact strips credentials from string values before sending.
	Redact bool
}

// Forward POSTs every event as JSON to a remote endpoint.
type Forward struct {
	mu         sync.RWMutex
	url        string
	headers    map[string]string
	retryCount int
	redact     bool
	client     *http.Client
}

// NewForward creates a forwarding sink.
func NewForward(cfg ForwardConfig) *Forward {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultForwardTimeout
	}
	retries := cfg.RetryCount
	if retries < 0 {
		retries = 0
	}
	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	return &Forward{
		url:        cfg.URL,
		headers:    headers,
		retryCount: retries,
		redact:     cfg.Redact,
		client:     &http.Client{Timeout: timeout},
	}
}

func (f *Forward) Name() string { return "forward" }

// URL returns the target address.
func (f *Forward) URL() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.url
}

// SetURL changes the target address.
func (f *Forward) SetURL(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.url = url
}

// SetHeader sets a request header.
func (f *Forward) SetHeader(key, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.headers[key] = value
}

// RemoveHeader deletes a request header.
func (f *Forward) RemoveHeader(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.headers, key)
}

// Report delivers rec with up to RetryCount+1 attempts. A 2xx response ends
// the loop. Exhausting every attempt is logged; Report still returns nil.
func (f *Forward) Report(ctx context.Context, rec hookevent.Record) error {
	payload := rec
	if f.redact {
		payload = privacy.RedactRecord(rec)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	f.mu.RLock()
	url := f.url
	headers := make(map[string]string, len(f.headers))
	for k, v := range f.headers {
		headers[k] = v
	}
	attempts := f.retryCount + 1
	f.mu.RUnlock()

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}
		lastErr = f.post(ctx, url, headers, body)
		if lastErr == nil {
			return nil
		}
		log.Debug().
			Err(lastErr).
			Int("attempt", attempt).
			Int("attempts", attempts).
			Str("url", url).
			Msg("Forward attempt failed")
	}

	log.Warn().
		Err(lastErr).
		Str("url", url).
		Str("event", hookevent.Name(rec)).
		Int("attempts", attempts).
		Msg("Dropping event after exhausting forward attempts")
	return nil
}

func (f *Forward) post(ctx context.Context, url string, headers map[string]string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return nil
}

// Close releases pooled connections.
func (f *Forward) Close() error {
	f.client.CloseIdleConnections()
	return nil
}
