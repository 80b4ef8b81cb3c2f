package server

import (
	"sync"
	"time"
)

// Probe collects values sent by hook test scripts (flow ping, prompt hooks)
// and wakes anyone waiting for the next one.
type Probe struct {
	key      string
	mu       sync.Mutex
	results  []map[string]any
	received *Flag[map[string]any]
}

// NewProbe creates a probe whose results store the value under key.
func NewProbe(key string) *Probe {
	return &Probe{key: key, received: NewFlag[map[string]any]()}
}

// Record stores value with the current time and sets the received flag.
func (p *Probe) Record(value string, now time.Time) map[string]any {
	result := map[string]any{
		"success":   true,
		p.key:       value,
		"timestamp": float64(now.UnixNano()) / float64(time.Second),
	}
	p.mu.Lock()
	p.results = append(p.results, result)
	p.mu.Unlock()
	p.received.Set(result)
	return result
}

// Results returns every recorded value, oldest first.
func (p *Probe) Results() []map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]map[string]any, len(p.results))
	copy(out, p.results)
	return out
}

// Received is set whenever a value is recorded.
func (p *Probe) Received() *Flag[map[string]any] {
	return p.received
}
