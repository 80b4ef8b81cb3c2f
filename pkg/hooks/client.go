// Package hooks is the client side of the local flow server, used by hook
// commands that Claude Code runs.
package hooks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

const (
	// DefaultServerPort is the default local server port.
	DefaultServerPort = 9007

	// HealthCheckTimeout bounds health and version probes.
	HealthCheckTimeout = 1 * time.Second

	// ReportTimeout bounds a hook event report so hooks never stall the agent.
	ReportTimeout = 2 * time.Second

	// RequestTimeout bounds generic GET and POST calls.
	RequestTimeout = 10 * time.Second

	// ReportPath is where hook events are posted.
	ReportPath = "/api/hooks/report"
)

// ErrNotJSON is returned when a reply body is not a JSON object.
var ErrNotJSON = errors.New("reply is not a JSON object")

// StatusError is returned when the server answers with a 4xx or 5xx status.
type StatusError struct {
	Method string
	Path   string
	Status string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Method, e.Path, e.Status)
}

// GetServerPort returns the server port from LOCAL_SERVER_PORT or the default.
func GetServerPort() int {
	if raw := os.Getenv("LOCAL_SERVER_PORT"); raw != "" {
		if p, err := strconv.Atoi(raw); err == nil && p > 0 {
			return p
		}
	}
	return DefaultServerPort
}

// Client talks to a flow server on the loopback interface.
type Client struct {
	Port int
	HTTP *http.Client
}

// NewClient returns a client for the server on port.
func NewClient(port int) *Client {
	return &Client{Port: port, HTTP: &http.Client{}}
}

func (c *Client) addr() string {
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(c.Port))
}

// do issues one request bounded by timeout. Responses with status >= 400 are
// drained, closed and reported as *StatusError.
func (c *Client) do(ctx context.Context, method, path string, body []byte, timeout time.Duration) (*http.Response, context.CancelFunc, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, "http://"+c.addr()+path, reader)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	if resp.StatusCode >= 400 {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		cancel()
		return nil, nil, &StatusError{Method: method, Path: path, Status: resp.Status, Code: resp.StatusCode}
	}
	return resp, cancel, nil
}

// decode runs a request and decodes a JSON object reply.
func (c *Client) decode(ctx context.Context, method, path string, body []byte, timeout time.Duration) (map[string]any, error) {
	resp, cancel, err := c.do(ctx, method, path, body, timeout)
	if err != nil {
		return nil, err
	}
	defer cancel()
	defer resp.Body.Close()

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", path, ErrNotJSON, err)
	}
	return out, nil
}

// Healthy reports whether the server answers its health endpoint.
func (c *Client) Healthy(ctx context.Context) bool {
	resp, cancel, err := c.do(ctx, http.MethodGet, "/api/health", nil, HealthCheckTimeout)
	if err != nil {
		return false
	}
	defer cancel()
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Version returns the running server's version, or "" when unknown.
func (c *Client) Version(ctx context.Context) string {
	out, err := c.decode(ctx, http.MethodGet, "/api/version", nil, HealthCheckTimeout)
	if err != nil {
		return ""
	}
	v, _ := out["version"].(string)
	return v
}

// Report posts a raw hook payload. The payload is forwarded as-is.
func (c *Client) Report(ctx context.Context, payload []byte) error {
	resp, cancel, err := c.do(ctx, http.MethodPost, ReportPath, payload, ReportTimeout)
	if err != nil {
		return err
	}
	defer cancel()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

// Get fetches path and decodes the JSON object reply.
func (c *Client) Get(ctx context.Context, path string) (map[string]any, error) {
	return c.decode(ctx, http.MethodGet, path, nil, RequestTimeout)
}

// Post sends body as JSON to path. A reply that is not a JSON object yields
// a nil map and no error.
func (c *Client) Post(ctx context.Context, path string, body any) (map[string]any, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	out, err := c.decode(ctx, http.MethodPost, path, data, RequestTimeout)
	if errors.Is(err, ErrNotJSON) {
		return nil, nil
	}
	return out, err
}

// IsServerRunning checks if the server on port is running and healthy.
func IsServerRunning(port int) bool {
	return NewClient(port).Healthy(context.Background())
}

// GetServerVersion gets the version of the server on port.
func GetServerVersion(port int) string {
	return NewClient(port).Version(context.Background())
}

// ReportEvent posts a raw hook payload to the server on port.
func ReportEvent(port int, payload []byte) error {
	return NewClient(port).Report(context.Background(), payload)
}

// GET sends a GET request to the server on port.
func GET(port int, path string) (map[string]any, error) {
	return NewClient(port).Get(context.Background(), path)
}

// POST sends a POST request to the server on port.
func POST(port int, path string, body any) (map[string]any, error) {
	return NewClient(port).Post(context.Background(), path, body)
}

// IsPortInUse reports whether anything accepts connections on port,
// healthy or not.
func IsPortInUse(port int) bool {
	conn, err := net.DialTimeout("tcp", NewClient(port).addr(), 500*time.Millisecond)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// VersionsCompatible reports whether a running server's version matches the
// CLI's. Dev builds match anything; otherwise the base semver must match
// (ignoring -dirty, -dev and commit suffixes).
func VersionsCompatible(v1, v2 string) bool {
	if v1 == "dev" || v2 == "dev" {
		return true
	}
	return baseVersion(v1) == baseVersion(v2)
}

// baseVersion strips a leading v and any suffix after the first dash:
// "v0.3.5-2-gca711a8-dirty" is "0.3.5".
func baseVersion(version string) string {
	v := strings.TrimPrefix(version, "v")
	if i := strings.IndexByte(v, '-'); i > 0 {
		v = v[:i]
	}
	return v
}
