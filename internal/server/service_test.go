package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/flow/internal/hookconfig"
	"github.com/thebtf/flow/internal/hookevent"
	"github.com/thebtf/flow/internal/reporter"
	"github.com/thebtf/flow/pkg/hooks"
)

func newTestService(t *testing.T, opts Options) *Service {
	t.Helper()
	if opts.Version == "" {
		opts.Version = "1.2.3"
	}
	svc := New(opts)
	t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })
	return svc
}

func do(t *testing.T, svc *Service, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rr := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rr, req)

	var out map[string]any
	if rr.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	}
	return rr, out
}

func TestNew_RegistersBuiltinSinks(t *testing.T) {
	svc := newTestService(t, Options{})

	var names []string
	for _, sink := range svc.Registry().Reporters() {
		names = append(names, sink.Name())
	}
	assert.Equal(t, []string{"buffer", "broadcast", "stream"}, names)
}

func TestHandleHealth(t *testing.T) {
	svc := newTestService(t, Options{})

	for _, path := range []string{"/health", "/api/health"} {
		rr, body := do(t, svc, "GET", path, "")
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "ok", body["status"])
		assert.Equal(t, "1.2.3", body["version"])
	}
}

func TestHandleVersion(t *testing.T) {
	svc := newTestService(t, Options{})

	rr, body := do(t, svc, "GET", "/api/version", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "1.2.3", body["version"])
}

func TestHandleReport(t *testing.T) {
	buffer := reporter.NewRingBuffer(10)
	registry := reporter.NewRegistry()
	svc := newTestService(t, Options{Registry: registry, Buffer: buffer})
	registry.Add(&reporter.Func{ID: "broken", Fn: func(context.Context, hookevent.Record) error {
		return errors.New("sink down")
	}})

	rr, body := do(t, svc, "POST", "/api/hooks/report", `{"hook_event_name":"Stop","session_id":"s1"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, body["success"])
	assert.EqualValues(t, 3, body["delivered"])
	assert.EqualValues(t, 1, body["failures"])

	events := buffer.Snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, "Stop", hookevent.Name(events[0]))
	assert.IsType(t, float64(0), events[0]["timestamp"])
}

func TestHandleReport_KeepsTimestamp(t *testing.T) {
	buffer := reporter.NewRingBuffer(10)
	svc := newTestService(t, Options{Buffer: buffer})

	rr, _ := do(t, svc, "POST", "/api/hooks/report", `{"hook_event_name":"Stop","timestamp":123}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 123, buffer.Snapshot()[0]["timestamp"])
}

func TestHandleReport_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"array", `[1,2]`},
		{"string", `"hi"`},
		{"malformed", `{"a":`},
		{"empty", ` `},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buffer := reporter.NewRingBuffer(10)
			svc := newTestService(t, Options{Buffer: buffer})

			rr, body := do(t, svc, "POST", "/api/hooks/report", tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.NotEmpty(t, body["error"])
			assert.Zero(t, buffer.Len())
		})
	}
}

func TestHandleReport_TooLarge(t *testing.T) {
	svc := newTestService(t, Options{})

	big := `{"prompt":"` + strings.Repeat("x", MaxRequestBody) + `"}`
	rr := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rr, httptest.NewRequest("POST", "/api/hooks/report", strings.NewReader(big)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestHandleOutput(t *testing.T) {
	svc := newTestService(t, Options{})

	_, body := do(t, svc, "GET", "/api/hooks/output", "")
	assert.Equal(t, []any{}, body["outputs"])

	do(t, svc, "POST", "/api/hooks/report", `{"hook_event_name":"Notification","message":"hi"}`)
	_, body = do(t, svc, "GET", "/api/hooks/output", "")
	outputs := body["outputs"].([]any)
	require.Len(t, outputs, 1)
	assert.Equal(t, "hi", outputs[0].(map[string]any)["message"])
}

func TestHandleList(t *testing.T) {
	home := t.TempDir()
	resolver := &hookconfig.Resolver{Home: home}
	manager := hookconfig.NewManager(resolver)
	svc := newTestService(t, Options{Manager: manager})

	rr, body := do(t, svc, "GET", "/api/hooks/list", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, false, body["exists"])
	assert.Equal(t, filepath.Join(home, ".claude", "settings.json"), body["settings_file"])
	assert.Equal(t, map[string]any{}, body["hooks"])

	res, err := manager.SetHook(hookconfig.ScopeUser, hookconfig.EventStop, nil, "flow hooks report", hookconfig.NewOwnership(""))
	require.NoError(t, err)
	require.True(t, res.Success)

	_, body = do(t, svc, "GET", "/api/hooks/list?scope=user", "")
	assert.Equal(t, true, body["exists"])
	hooks := body["hooks"].(map[string]any)
	assert.Contains(t, hooks, "Stop")
}

func TestHandleList_Errors(t *testing.T) {
	resolver := &hookconfig.Resolver{Home: t.TempDir()}
	svc := newTestService(t, Options{Manager: hookconfig.NewManager(resolver)})

	rr, _ := do(t, svc, "GET", "/api/hooks/list?scope=galaxy", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, _ = do(t, svc, "GET", "/api/hooks/list?scope=project", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	bare := newTestService(t, Options{})
	rr, _ = do(t, bare, "GET", "/api/hooks/list", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestPingAndPrompt(t *testing.T) {
	svc := newTestService(t, Options{})

	rr, body := do(t, svc, "GET", "/ping?ping_str=hello", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "hello", body["ping_str"])
	assert.Equal(t, true, body["success"])

	got, status := svc.Pings().Received().Wait(context.Background(), time.Second)
	assert.Equal(t, WaitOK, status)
	assert.Equal(t, "hello", got["ping_str"])

	_, body = do(t, svc, "GET", "/api/pings", "")
	assert.Len(t, body["pings"], 1)
	_, body = do(t, svc, "GET", "/get_pings", "")
	assert.Len(t, body["pings"], 1)

	rr, _ = do(t, svc, "GET", "/ping", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	do(t, svc, "GET", "/prompt?prompt_text=fix+it", "")
	_, body = do(t, svc, "GET", "/api/prompts", "")
	prompts := body["prompts"].([]any)
	require.Len(t, prompts, 1)
	assert.Equal(t, "fix it", prompts[0].(map[string]any)["prompt_text"])
}

func TestService_StartServeShutdown(t *testing.T) {
	broadcaster := reporter.NewBroadcaster()
	svc := New(Options{Version: "1.2.3", Broadcaster: broadcaster})
	require.NoError(t, svc.Start())
	addr := svc.Addr()
	require.NotEmpty(t, addr)

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws/hooks", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return broadcaster.ConnectionCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Post("http://"+addr+"/api/hooks/report", "application/json",
		strings.NewReader(`{"hook_event_name":"PreToolUse","tool_name":"Bash"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, reporter.TypeHookOutput, msg["type"])
	assert.Equal(t, "Bash", msg["output"].(map[string]any)["tool_name"])

	svc.HooksChanged("/tmp/settings.json")
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, reporter.TypeHooksChanged, msg["type"])
	assert.Equal(t, "/tmp/settings.json", msg["path"])

	require.NoError(t, svc.Shutdown(context.Background()))
	assert.Zero(t, broadcaster.ConnectionCount())
	require.NoError(t, svc.Shutdown(context.Background()))
}

func startTestService(t *testing.T, registry *reporter.Registry) int {
	t.Helper()
	svc := newTestService(t, Options{Registry: registry})
	require.NoError(t, svc.Start())
	_, rawPort, err := net.SplitHostPort(svc.Addr())
	require.NoError(t, err)
	port, err := strconv.Atoi(rawPort)
	require.NoError(t, err)
	return port
}

func TestHandleReport_ClientTimeoutDoesNotCancelSinks(t *testing.T) {
	registry := reporter.NewRegistry()
	port := startTestService(t, registry)

	slowErr := make(chan error, 1)
	registry.Add(&reporter.Func{ID: "slow", Fn: func(ctx context.Context, rec hookevent.Record) error {
		select {
		case <-time.After(300 * time.Millisecond):
			slowErr <- nil
		case <-ctx.Done():
			slowErr <- ctx.Err()
		}
		return nil
	}})
	afterErr := make(chan error, 1)
	registry.Add(&reporter.Func{ID: "after", Fn: func(ctx context.Context, rec hookevent.Record) error {
		afterErr <- ctx.Err()
		return nil
	}})

	client := &hooks.Client{Port: port, HTTP: &http.Client{Timeout: 50 * time.Millisecond}}
	err := client.Report(context.Background(), []byte(`{"hook_event_name":"Stop"}`))
	require.Error(t, err)

	for name, ch := range map[string]chan error{"slow": slowErr, "after": afterErr} {
		select {
		case err := <-ch:
			assert.NoError(t, err, name)
		case <-time.After(2 * time.Second):
			t.Fatalf("sink %s never ran", name)
		}
	}
}

func TestHandleReport_ForwardDoesNotBlockCaller(t *testing.T) {
	received := make(chan struct{}, 1)
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		received <- struct{}{}
	}))
	defer remote.Close()

	registry := reporter.NewRegistry()
	port := startTestService(t, registry)
	registry.Add(reporter.NewAsync(reporter.NewForward(reporter.ForwardConfig{URL: remote.URL}), 0))

	client := &hooks.Client{Port: port, HTTP: &http.Client{Timeout: 200 * time.Millisecond}}
	require.NoError(t, client.Report(context.Background(), []byte(`{"hook_event_name":"Stop"}`)))

	select {
	case <-received:
	case <-time.After(3 * time.Second):
		t.Fatal("forwarded event never arrived")
	}
}

func TestService_StartPortInUse(t *testing.T) {
	first := New(Options{})
	require.NoError(t, first.Start())
	defer first.Shutdown(context.Background())

	_, rawPort, err := net.SplitHostPort(first.Addr())
	require.NoError(t, err)
	port, err := strconv.Atoi(rawPort)
	require.NoError(t, err)

	second := New(Options{Port: port})
	assert.Error(t, second.Start())
}

func TestService_Run(t *testing.T) {
	svc := New(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	require.Eventually(t, func() bool { return svc.Addr() != "" }, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
