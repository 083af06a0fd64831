package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"pkt.systems/pslog"

	"github.com/elliotttate/RenderDocMCP/internal/config"
	"github.com/elliotttate/RenderDocMCP/internal/spool"
)

// newIDFn generates correlation ids. Swappable for tests.
var newIDFn = uuid.NewString

// Client submits requests to the bridge server through the spool directory
// and waits for correlated responses. A Client is safe for concurrent use;
// every call operates on its own spool entries.
type Client struct {
	cfg *config.Config
	dir spool.Dir
	log pslog.Logger
	now func() time.Time
}

// New returns a Client for cfg's spool directory. A nil logger disables
// client-side logging.
func New(cfg *config.Config, logger pslog.Logger) *Client {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	return &Client{
		cfg: cfg,
		dir: spool.New(cfg.SpoolDir),
		log: logger,
		now: time.Now,
	}
}

// Dir returns the spool directory the client talks through.
func (c *Client) Dir() spool.Dir { return c.dir }

// Call invokes method on the bridge server and returns its raw result.
// Transport failures wrap one of the package sentinels; failures reported
// by the server come back as *spool.ErrorInfo.
func (c *Client) Call(ctx context.Context, method string, params map[string]any) (json.RawMessage, error) {
	if !c.dir.Exists() {
		return nil, fmt.Errorf("%w: no spool directory at %s, start the debugger with the bridge extension loaded", ErrNotRunning, c.dir.Root())
	}

	hbAge, ok, err := c.waitForHeartbeat(ctx, c.cfg.HeartbeatStartupGrace)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: no heartbeat file, start the debugger with the bridge extension loaded", ErrNotRunning)
	}
	preflightStale := hbAge > c.cfg.HeartbeatMaxAge
	deadAge := c.cfg.HeartbeatStaleFailFastAge
	if deadAge < c.cfg.HeartbeatMaxAge {
		deadAge = c.cfg.HeartbeatMaxAge
	}
	if preflightStale && hbAge >= deadAge {
		return nil, fmt.Errorf("%w: heartbeat age %.1fs, restart the debugger or clear stale files in %s", ErrDeadHeartbeat, hbAge.Seconds(), c.dir.Root())
	}

	timeout := c.cfg.MethodTimeout(method)
	id := newIDFn()
	responsePath := c.dir.ResponsePath(id)
	if params == nil {
		params = map[string]any{}
	}
	req := &spool.Request{
		ID:      id,
		Method:  method,
		Params:  params,
		Timeout: timeout.Seconds(),
		// Per-request response file keeps concurrent clients out of each
		// other's way; old servers ignore it and use the shared slot.
		ResponseFile: c.dir.ResponseBase(id),
	}

	requestPath := ""
	defer func() {
		spool.Remove(responsePath)
		spool.Remove(c.dir.LegacyResponsePath())
		if requestPath != "" {
			spool.Remove(requestPath)
		}
	}()

	spool.Remove(responsePath)

	enqueueTimeout := c.cfg.EffectiveEnqueueTimeout(timeout)
	requestPath, err = c.enqueue(ctx, req, enqueueTimeout)
	if err != nil {
		return nil, err
	}
	requestPath, legacyMode, err := c.fallbackToLegacyIfNeeded(ctx, req, requestPath, enqueueTimeout)
	if err != nil {
		return nil, err
	}
	if legacyMode {
		c.log.Debug("bridge.call.legacy_mode", "method", method, "id", id)
	}

	result, err := c.awaitResponse(ctx, method, id, responsePath, timeout, legacyMode, preflightStale)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Ping round-trips a ping request and checks the status field.
func (c *Client) Ping(ctx context.Context) error {
	raw, err := c.Call(ctx, "ping", nil)
	if err != nil {
		return err
	}
	var status struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(raw, &status); err != nil {
		return fmt.Errorf("%w: ping result: %v", ErrProtocol, err)
	}
	if status.Status != "ok" {
		return fmt.Errorf("%w: ping status %q", ErrProtocol, status.Status)
	}
	return nil
}

// waitForHeartbeat returns the heartbeat age as soon as the file exists,
// fresh or stale. The grace window only covers the missing-file race right
// after the debugger launches.
func (c *Client) waitForHeartbeat(ctx context.Context, grace time.Duration) (time.Duration, bool, error) {
	if age, ok := c.dir.HeartbeatAge(c.now()); ok {
		return age, true, nil
	}
	deadline := c.now().Add(grace)
	for {
		if !c.now().Before(deadline) {
			return 0, false, nil
		}
		if err := sleep(ctx, c.cfg.ClientPollInterval); err != nil {
			return 0, false, err
		}
		if age, ok := c.dir.HeartbeatAge(c.now()); ok {
			return age, true, nil
		}
	}
}

// enqueue writes the request to its per-request spool path, retrying
// transient failures until the enqueue deadline.
func (c *Client) enqueue(ctx context.Context, req *spool.Request, enqueueTimeout time.Duration) (string, error) {
	if enqueueTimeout < time.Second {
		enqueueTimeout = time.Second
	}
	path := c.dir.RequestPath(req.ID)
	spool.Remove(path)
	deadline := c.now().Add(enqueueTimeout)
	for {
		err := spool.WriteJSONAtomic(path, req)
		if err == nil {
			return path, nil
		}
		c.log.Debug("bridge.enqueue.retry", "id", req.ID, "error", err.Error())

		if !c.now().Before(deadline) {
			legacyQueued := c.dir.LegacyRequestPresent()
			return "", fmt.Errorf("%w: waiting to enqueue request (pending=%d legacy_queued=%t inflight=%d)",
				ErrTimeout, c.dir.PendingCount(), legacyQueued, c.dir.InflightCount())
		}
		if err := sleep(ctx, c.cfg.EnqueueRetryInterval); err != nil {
			return "", err
		}
	}
}

// enqueueLegacy writes the request to the single-slot path once both the
// slot and its in-flight marker are free.
func (c *Client) enqueueLegacy(ctx context.Context, req *spool.Request, enqueueTimeout time.Duration) (string, error) {
	if enqueueTimeout < time.Second {
		enqueueTimeout = time.Second
	}
	deadline := c.now().Add(enqueueTimeout)
	for {
		if !exists(c.dir.LegacyRequestPath()) && !exists(c.dir.LegacyInflightPath()) {
			if err := spool.WriteJSONAtomic(c.dir.LegacyRequestPath(), req); err == nil {
				return c.dir.LegacyRequestPath(), nil
			}
		}
		if !c.now().Before(deadline) {
			return "", fmt.Errorf("%w: waiting to enqueue legacy request (request.json busy)", ErrTimeout)
		}
		if err := sleep(ctx, c.cfg.EnqueueRetryInterval); err != nil {
			return "", err
		}
	}
}

// fallbackToLegacyIfNeeded gives a modern server a grace window to claim the
// per-request file. When nothing claims it and nothing is in flight, the
// server is assumed to only understand the single-slot protocol.
func (c *Client) fallbackToLegacyIfNeeded(ctx context.Context, req *spool.Request, requestPath string, enqueueTimeout time.Duration) (string, bool, error) {
	if c.cfg.DisableLegacyFallback {
		return requestPath, false, nil
	}
	if strings.EqualFold(filepath.Base(requestPath), spool.LegacyRequestFile) {
		return requestPath, true, nil
	}

	deadline := c.now().Add(c.cfg.ClaimGrace)
	for c.now().Before(deadline) {
		if !exists(requestPath) {
			return requestPath, false, nil
		}
		if c.dir.HasInflight() {
			// Server is busy draining; no mode switch while it works.
			return requestPath, false, nil
		}
		if err := sleep(ctx, c.cfg.ClaimGracePoll); err != nil {
			return "", false, err
		}
	}

	// Falling back is safe even when the server is unhealthy: if nothing
	// services the legacy slot either, the normal timeout diagnostics apply.
	spool.Remove(requestPath)
	legacyPath, err := c.enqueueLegacy(ctx, req, enqueueTimeout)
	if err != nil {
		return "", false, err
	}
	return legacyPath, true, nil
}

func (c *Client) awaitResponse(ctx context.Context, method, id, responsePath string, timeout time.Duration, legacyMode, preflightStale bool) (json.RawMessage, error) {
	start := c.now()
	staleCount := 0
	var missingSince time.Time

	candidates := []string{responsePath, c.dir.LegacyResponsePath()}

	var wake <-chan struct{}
	if sub, err := c.dir.Watch(); err == nil {
		defer sub.Close()
		wake = sub.Events()
	}

	for {
		for _, candidate := range candidates {
			if !exists(candidate) {
				continue
			}
			resp, err := c.readResponse(ctx, candidate)
			if err != nil {
				return nil, err
			}
			spool.Remove(candidate)

			if resp.ID != "" && resp.ID != id {
				staleCount++
				c.log.Debug("bridge.response.stale", "want", id, "got", resp.ID, "count", staleCount)
				if staleCount >= 3 {
					return nil, fmt.Errorf("%w: %d responses for other ids while waiting for %s", ErrStaleResponses, staleCount, id)
				}
				continue
			}
			if resp.Error != nil {
				return nil, resp.Error
			}
			if embedded := embeddedError(resp.Result); embedded != nil {
				return nil, embedded
			}
			return resp.Result, nil
		}

		if c.cfg.HeartbeatFailFastDuringRequest && c.cfg.HeartbeatMissingFailFast > 0 {
			// A vanished heartbeat is a stronger dead signal than a stale
			// one; stale alone happens during long native calls.
			if _, ok := c.dir.HeartbeatAge(c.now()); !ok {
				if missingSince.IsZero() {
					missingSince = c.now()
				} else if c.now().Sub(missingSince) >= c.cfg.HeartbeatMissingFailFast {
					return nil, fmt.Errorf("%w: heartbeat went missing while waiting for %q (missing for %.1fs)",
						ErrDeadHeartbeat, method, c.cfg.HeartbeatMissingFailFast.Seconds())
				}
			} else {
				missingSince = time.Time{}
			}
		}

		if c.now().Sub(start) > timeout {
			return nil, c.timeoutError(method, timeout, legacyMode, preflightStale)
		}

		timer := time.NewTimer(c.cfg.ClientPollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("bridge call canceled: %w", ctx.Err())
		case <-timer.C:
		case _, ok := <-wake:
			timer.Stop()
			if !ok {
				// Watcher shut down; a nil channel blocks and polling
				// carries the wait alone.
				wake = nil
			}
		}
	}
}

// readResponse parses a response file, retrying briefly to ride out a
// partial write racing the rename.
func (c *Client) readResponse(ctx context.Context, path string) (*spool.Response, error) {
	for attempt := 0; ; attempt++ {
		var resp spool.Response
		err := spool.ReadJSON(path, &resp)
		if err == nil {
			return &resp, nil
		}
		if attempt >= 2 {
			return nil, fmt.Errorf("%w: failed to parse %s after 3 attempts: %v", ErrProtocol, filepath.Base(path), err)
		}
		if err := sleep(ctx, time.Duration(attempt+1)*50*time.Millisecond); err != nil {
			return nil, err
		}
	}
}

func (c *Client) timeoutError(method string, timeout time.Duration, legacyMode, preflightStale bool) error {
	mode := "spool"
	if legacyMode {
		mode = "legacy"
	}
	diag := fmt.Sprintf("method=%s, waited=%.1fs, mode=%s", method, timeout.Seconds(), mode)
	if age, ok := c.dir.HeartbeatAge(c.now()); ok {
		diag += fmt.Sprintf(", heartbeat_age=%.1fs", age.Seconds())
		if age > c.cfg.HeartbeatMaxAge {
			diag += " (STALE - server likely dead)"
		} else {
			diag += " (alive - handler may be stuck)"
		}
	} else {
		diag += ", heartbeat=missing"
	}
	if preflightStale {
		diag += ", preflight=stale-heartbeat"
	}
	return fmt.Errorf("%w (%s)", ErrTimeout, diag)
}

// embeddedError surfaces handler results that smuggle an error object
// inside the result payload instead of the response error field.
func embeddedError(result json.RawMessage) error {
	if len(result) == 0 {
		return nil
	}
	var probe struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(result, &probe); err != nil || len(probe.Error) == 0 {
		return nil
	}
	var info spool.ErrorInfo
	if err := json.Unmarshal(probe.Error, &info); err == nil && info.Message != "" {
		return &info
	}
	return &spool.ErrorInfo{Code: spool.CodeInternal, Message: string(probe.Error)}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("bridge call canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

