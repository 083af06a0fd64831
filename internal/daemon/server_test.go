package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/elliotttate/RenderDocMCP/internal/bridge"
	"github.com/elliotttate/RenderDocMCP/internal/config"
	"github.com/elliotttate/RenderDocMCP/internal/handler"
	"github.com/elliotttate/RenderDocMCP/internal/spool"
)

type handlerFunc func(ctx context.Context, req *spool.Request) *spool.Response

func (f handlerFunc) Handle(ctx context.Context, req *spool.Request) *spool.Response {
	return f(ctx, req)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.SpoolDir = t.TempDir()
	cfg.DefaultTimeout = 2 * time.Second
	cfg.MethodTimeouts = map[string]time.Duration{}
	cfg.EnqueueTimeout = time.Second
	cfg.ClaimGrace = 300 * time.Millisecond
	cfg.HeartbeatStartupGrace = 500 * time.Millisecond
	cfg.ServerPollInterval = 10 * time.Millisecond
	cfg.ClientPollInterval = 10 * time.Millisecond
	cfg.EnqueueRetryInterval = 5 * time.Millisecond
	cfg.ClaimGracePoll = 5 * time.Millisecond
	cfg.HeartbeatInterval = 20 * time.Millisecond
	return cfg
}

func startServer(t *testing.T, cfg *config.Config, h handler.Handler) *Server {
	t.Helper()
	srv := New(cfg, h, nil)
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(srv.Stop)
	return srv
}

func simRouter(srv func() *Server) *handler.Router {
	router := handler.NewRouter(handler.NewSimFacade())
	if srv != nil {
		router.SetDiagnostics(func(include bool, max int) any {
			return srv().Diagnostics(include, max)
		})
	}
	return router
}

func waitFor(t *testing.T, d time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestServerRoundTrip(t *testing.T) {
	cfg := testConfig(t)
	startServer(t, cfg, handler.NewRouter(handler.NewSimFacade()))

	client := bridge.New(cfg, nil)
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}

	raw, err := client.Call(context.Background(), "get_capture_status", nil)
	if err != nil {
		t.Fatalf("Call(get_capture_status) error = %v", err)
	}
	var status struct {
		Loaded bool `json:"loaded"`
	}
	if err := json.Unmarshal(raw, &status); err != nil {
		t.Fatalf("unmarshal status: %v", err)
	}
	if status.Loaded {
		t.Fatal("simulated facade reports a loaded capture")
	}
}

func TestServerHeartbeatAndSnapshot(t *testing.T) {
	cfg := testConfig(t)
	srv := startServer(t, cfg, handler.NewRouter(handler.NewSimFacade()))

	if _, ok := srv.Dir().HeartbeatAge(time.Now()); !ok {
		t.Fatal("no heartbeat right after Start")
	}

	waitFor(t, 2*time.Second, "diagnostics snapshot", func() bool {
		_, err := os.Stat(srv.Dir().DiagnosticsPath())
		return err == nil
	})

	var snapshot struct {
		SchemaVersion string `json:"schema_version"`
		Running       bool   `json:"running"`
		Queue         struct {
			PendingCount int `json:"pending_count"`
		} `json:"queue"`
		Processing struct {
			Active       bool   `json:"active"`
			ResponseFile string `json:"response_file"`
		} `json:"processing"`
		RecentErrors []any `json:"recent_errors"`
	}
	if err := spool.ReadJSON(srv.Dir().DiagnosticsPath(), &snapshot); err != nil {
		t.Fatalf("reading snapshot: %v", err)
	}
	if snapshot.SchemaVersion != "bridge_diagnostics.v1" {
		t.Fatalf("schema_version = %q", snapshot.SchemaVersion)
	}
	if !snapshot.Running {
		t.Fatal("snapshot reports running=false while serving")
	}
	if snapshot.Processing.Active {
		t.Fatal("snapshot reports an active request while idle")
	}
	if snapshot.Processing.ResponseFile != spool.LegacyResponseFile {
		t.Fatalf("idle response_file = %q, want %q", snapshot.Processing.ResponseFile, spool.LegacyResponseFile)
	}
	if len(snapshot.RecentErrors) != 0 {
		t.Fatalf("snapshot carries %d recent errors", len(snapshot.RecentErrors))
	}
}

func TestServerWatchdogRecoversStuckHandler(t *testing.T) {
	cfg := testConfig(t)
	cfg.ProcessingTimeout = 80 * time.Millisecond

	release := make(chan struct{})
	var releasedOnce sync.Once
	defer releasedOnce.Do(func() { close(release) })

	h := handlerFunc(func(ctx context.Context, req *spool.Request) *spool.Response {
		if req.Method == "ping" {
			resp, _ := spool.NewResult(req.ID, map[string]any{"status": "ok", "message": "pong"})
			return resp
		}
		<-release
		resp, _ := spool.NewResult(req.ID, map[string]any{"late": true})
		return resp
	})
	srv := startServer(t, cfg, h)

	// No timeout hint, so the watchdog runs on cfg.ProcessingTimeout.
	req := &spool.Request{ID: "stuck-1", Method: "get_frame_summary"}
	if err := spool.WriteJSONAtomic(srv.Dir().RequestPath(req.ID), req); err != nil {
		t.Fatalf("writing request: %v", err)
	}
	responsePath := srv.Dir().ResponsePath(req.ID)
	waitFor(t, 2*time.Second, "watchdog response", func() bool {
		_, err := os.Stat(responsePath)
		return err == nil
	})
	var resp spool.Response
	if err := spool.ReadJSON(responsePath, &resp); err != nil {
		t.Fatalf("reading watchdog response: %v", err)
	}
	spool.Remove(responsePath)
	if resp.Error == nil {
		t.Fatalf("watchdog wrote a result: %s", resp.Result)
	}
	if resp.Error.Code != spool.CodeInternalError {
		t.Fatalf("error code = %d, want %d", resp.Error.Code, spool.CodeInternalError)
	}
	if !strings.Contains(resp.Error.Message, "Handler timed out") {
		t.Fatalf("error message = %q", resp.Error.Message)
	}

	// The late worker result must be discarded, not written.
	releasedOnce.Do(func() { close(release) })
	time.Sleep(100 * time.Millisecond)
	entries, readErr := os.ReadDir(srv.Dir().Root())
	if readErr != nil {
		t.Fatalf("ReadDir() error = %v", readErr)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "response.") {
			t.Fatalf("stale worker response %q survived", e.Name())
		}
	}

	// And the slot is free again.
	client := bridge.New(cfg, nil)
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() after watchdog recovery error = %v", err)
	}

	diag := srv.Diagnostics(true, 16)
	metrics := diag["metrics"].(map[string]any)
	if metrics["total_timeouts"].(int) != 1 {
		t.Fatalf("total_timeouts = %v, want 1", metrics["total_timeouts"])
	}
	// The stale finish dedupes against the already-recorded timeout.
	if metrics["total_stale_responses"].(int) != 0 {
		t.Fatalf("total_stale_responses = %v, want 0", metrics["total_stale_responses"])
	}
}

func TestServerHandlerPanicBecomesErrorResponse(t *testing.T) {
	cfg := testConfig(t)
	h := handlerFunc(func(ctx context.Context, req *spool.Request) *spool.Response {
		panic("replay controller went away")
	})
	srv := startServer(t, cfg, h)

	client := bridge.New(cfg, nil)
	_, err := client.Call(context.Background(), "get_frame_summary", nil)
	var info *spool.ErrorInfo
	if !errors.As(err, &info) {
		t.Fatalf("Call() error = %v, want error response", err)
	}
	if info.Code != spool.CodeInternalError {
		t.Fatalf("error code = %d, want %d", info.Code, spool.CodeInternalError)
	}
	if !strings.Contains(info.Message, "replay controller went away") {
		t.Fatalf("error message = %q", info.Message)
	}

	diag := srv.Diagnostics(true, 16)
	last := diag["last_request"].(map[string]any)
	if last["status"] != statusException {
		t.Fatalf("last_request status = %v, want %q", last["status"], statusException)
	}
}

func TestServerMalformedRequestCounted(t *testing.T) {
	cfg := testConfig(t)
	srv := startServer(t, cfg, handler.NewRouter(handler.NewSimFacade()))

	path := srv.Dir().RequestPath("broken")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("writing malformed request: %v", err)
	}

	waitFor(t, 2*time.Second, "malformed request consumed", func() bool {
		_, err := os.Stat(path)
		return os.IsNotExist(err)
	})
	waitFor(t, 2*time.Second, "json_error recorded", func() bool {
		metrics := srv.Diagnostics(false, 0)["metrics"].(map[string]any)
		return metrics["total_json_errors"].(int) == 1
	})

	diag := srv.Diagnostics(true, 16)
	recent := diag["recent_errors"].([]map[string]any)
	if len(recent) == 0 {
		t.Fatal("no recent error recorded for malformed request")
	}
	if kind := recent[len(recent)-1]["kind"]; kind != "request_json_error" {
		t.Fatalf("recent error kind = %v", kind)
	}
}

func TestServerServesLegacySlot(t *testing.T) {
	cfg := testConfig(t)
	srv := startServer(t, cfg, handler.NewRouter(handler.NewSimFacade()))

	legacy := &spool.Request{Method: "ping", Params: map[string]any{}}
	if err := spool.WriteJSONAtomic(srv.Dir().LegacyRequestPath(), legacy); err != nil {
		t.Fatalf("writing legacy request: %v", err)
	}

	responsePath := srv.Dir().LegacyResponsePath()
	waitFor(t, 2*time.Second, "legacy response", func() bool {
		_, err := os.Stat(responsePath)
		return err == nil
	})

	var resp spool.Response
	if err := spool.ReadJSON(responsePath, &resp); err != nil {
		t.Fatalf("reading legacy response: %v", err)
	}
	if resp.Error != nil {
		t.Fatalf("legacy ping error = %v", resp.Error)
	}
	if !strings.Contains(string(resp.Result), "pong") {
		t.Fatalf("legacy ping result = %s", resp.Result)
	}
}

func TestServerRespectsLegacyLock(t *testing.T) {
	cfg := testConfig(t)
	srv := startServer(t, cfg, handler.NewRouter(handler.NewSimFacade()))

	if err := os.WriteFile(srv.Dir().LegacyLockPath(), nil, 0o644); err != nil {
		t.Fatalf("writing lock: %v", err)
	}
	legacy := &spool.Request{Method: "ping"}
	if err := spool.WriteJSONAtomic(srv.Dir().LegacyRequestPath(), legacy); err != nil {
		t.Fatalf("writing legacy request: %v", err)
	}

	// The locked legacy slot stays untouched while addressed requests flow.
	client := bridge.New(cfg, nil)
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if _, err := os.Stat(srv.Dir().LegacyRequestPath()); err != nil {
		t.Fatalf("legacy request consumed despite lock: %v", err)
	}
}

func TestServerSingleRequestInFlight(t *testing.T) {
	cfg := testConfig(t)
	var inFlight, peak atomic.Int32
	h := handlerFunc(func(ctx context.Context, req *spool.Request) *spool.Response {
		n := inFlight.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		inFlight.Add(-1)
		resp, _ := spool.NewResult(req.ID, map[string]any{"ok": true})
		return resp
	})
	startServer(t, cfg, h)

	client := bridge.New(cfg, nil)
	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, errs[n] = client.Call(context.Background(), fmt.Sprintf("method_%d", n), nil)
		}(i)
	}
	wg.Wait()
	for n, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: %v", n, err)
		}
	}
	if got := peak.Load(); got != 1 {
		t.Fatalf("peak concurrent handlers = %d, want 1", got)
	}
}

func TestServerStopCleansSpool(t *testing.T) {
	cfg := testConfig(t)
	srv := startServer(t, cfg, handler.NewRouter(handler.NewSimFacade()))

	client := bridge.New(cfg, nil)
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}

	srv.Stop()
	srv.Stop() // idempotent

	entries, err := os.ReadDir(srv.Dir().Root())
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	for _, e := range entries {
		t.Fatalf("leftover %q after Stop", e.Name())
	}

	diag := srv.Diagnostics(false, 0)
	if diag["running"].(bool) {
		t.Fatal("Diagnostics reports running after Stop")
	}
}

func TestServerDiagnosticsAfterTraffic(t *testing.T) {
	cfg := testConfig(t)
	var srv *Server
	router := simRouter(func() *Server { return srv })
	srv = startServer(t, cfg, router)

	client := bridge.New(cfg, nil)
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if _, err := client.Call(context.Background(), "nonexistent_method", nil); err == nil {
		t.Fatal("unknown method succeeded")
	}

	raw, err := client.Call(context.Background(), "get_bridge_diagnostics", nil)
	if err != nil {
		t.Fatalf("Call(get_bridge_diagnostics) error = %v", err)
	}
	var diag struct {
		SchemaVersion string `json:"schema_version"`
		Running       bool   `json:"running"`
		Metrics       struct {
			TotalReceived int `json:"total_received"`
			TotalErrors   int `json:"total_errors"`
		} `json:"metrics"`
		LastRequest struct {
			Method string `json:"method"`
			Status string `json:"status"`
		} `json:"last_request"`
	}
	if err := json.Unmarshal(raw, &diag); err != nil {
		t.Fatalf("unmarshal diagnostics: %v", err)
	}
	if !diag.Running {
		t.Fatal("diagnostics running=false while serving")
	}
	if diag.Metrics.TotalReceived < 3 {
		t.Fatalf("total_received = %d, want >= 3", diag.Metrics.TotalReceived)
	}
	if diag.Metrics.TotalErrors < 1 {
		t.Fatalf("total_errors = %d, want >= 1", diag.Metrics.TotalErrors)
	}
	if diag.LastRequest.Status == "" {
		t.Fatal("last_request missing")
	}
}

func TestProcessingTimeoutForClampsHint(t *testing.T) {
	cfg := testConfig(t)
	srv := New(cfg, handler.NewRouter(handler.NewSimFacade()), nil)

	cases := []struct {
		hint float64
		want time.Duration
	}{
		{0, cfg.ProcessingTimeout},
		{-5, cfg.ProcessingTimeout},
		{5, minProcessingTimeout},
		{120, 120 * time.Second},
		{100000, maxProcessingTimeout},
	}
	for _, tc := range cases {
		got := srv.processingTimeoutFor(&spool.Request{Timeout: tc.hint})
		if got != tc.want {
			t.Fatalf("processingTimeoutFor(%v) = %v, want %v", tc.hint, got, tc.want)
		}
	}
}
