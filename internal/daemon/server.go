package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"pkt.systems/pslog"

	"github.com/elliotttate/RenderDocMCP/internal/config"
	"github.com/elliotttate/RenderDocMCP/internal/handler"
	"github.com/elliotttate/RenderDocMCP/internal/logging"
	"github.com/elliotttate/RenderDocMCP/internal/spool"
)

// Per-request watchdog hints are clamped to these bounds; the configured
// default applies as-is.
const (
	minProcessingTimeout = 30 * time.Second
	maxProcessingTimeout = 30 * time.Minute
)

// Server owns one spool directory. It claims pending requests, runs them
// through the handler one at a time, emits the liveness heartbeat, and
// keeps the diagnostics snapshot current. Start and Stop bound its
// lifetime; they are not safe for concurrent use with each other.
type Server struct {
	cfg     *config.Config
	dir     spool.Dir
	handler handler.Handler
	log     pslog.Logger
	rec     *recorder

	// Now is the clock; swap it to drive watchdog tests.
	Now func() time.Time

	mu        sync.Mutex
	running   bool
	startedAt time.Time

	// Processing slot. At most one request is in flight; the path falls
	// back to the legacy response file whenever the slot is idle.
	procActive  bool
	procID      string
	procMethod  string
	procPath    string
	procSince   time.Time
	procTimeout time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
	watch  *spool.Subscription
}

func New(cfg *config.Config, h handler.Handler, logger pslog.Logger) *Server {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	s := &Server{
		cfg:     cfg,
		dir:     spool.New(cfg.SpoolDir),
		handler: h,
		log:     logging.WithSubsystem(logger, "server"),
		Now:     time.Now,
	}
	s.rec = newRecorder(func() time.Time { return s.Now() })
	s.startedAt = s.Now()
	s.procPath = s.dir.LegacyResponsePath()
	s.procTimeout = cfg.ProcessingTimeout
	return s
}

// Dir returns the spool directory the server drains.
func (s *Server) Dir() spool.Dir { return s.dir }

// Start sweeps stale protocol files, writes the first heartbeat, and
// launches the poll and heartbeat loops. Canceling ctx stops the loops;
// Stop also cleans the spool back up.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already started")
	}
	s.running = true
	s.startedAt = s.Now()
	s.mu.Unlock()

	if err := s.dir.Ensure(); err != nil {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("creating spool dir: %w", err)
	}
	s.dir.Sweep()
	if err := s.dir.WriteHeartbeat(s.Now()); err != nil {
		s.log.Warn("bridge.heartbeat.write_failed", "error", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	var wake <-chan struct{}
	sub, err := s.dir.Watch()
	switch {
	case err == nil:
		s.watch = sub
		wake = sub.Events()
	case errors.Is(err, spool.ErrWatchUnsupported):
		// Polling alone carries the protocol.
	default:
		s.log.Debug("bridge.watch.unavailable", "error", err)
	}

	s.wg.Add(2)
	go s.pollLoop(runCtx, wake)
	go s.heartbeatLoop(runCtx)

	s.log.Info("bridge.server.started",
		"dir", s.dir.Root(),
		"poll_interval", s.cfg.ServerPollInterval,
		"heartbeat_interval", s.cfg.HeartbeatInterval)
	return nil
}

// Stop halts the loops, discards any in-flight request, and removes the
// protocol files including the heartbeat. Safe to call more than once.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if s.watch != nil {
		s.watch.Close()
		s.watch = nil
	}
	s.wg.Wait()

	// A worker that finishes after this sees the slot cleared and
	// discards its response instead of recreating a swept file.
	s.mu.Lock()
	s.clearProcessingLocked()
	s.mu.Unlock()

	s.dir.Sweep()
	s.dir.RemoveHeartbeat()
	s.log.Info("bridge.server.stopped")
}

func (s *Server) pollLoop(ctx context.Context, wake <-chan struct{}) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.ServerPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case _, ok := <-wake:
			if !ok {
				wake = nil
				continue
			}
		}
		s.pollOnce(ctx)
	}
}

func (s *Server) heartbeatLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		if err := s.dir.WriteHeartbeat(s.Now()); err != nil {
			s.log.Warn("bridge.heartbeat.write_failed", "error", err)
		}
		s.writeDiagnosticsSnapshot()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) pollOnce(ctx context.Context) {
	if !s.reapStuckHandler() {
		return
	}

	claimed := s.dir.ClaimNext()
	if claimed == "" {
		return
	}

	var req spool.Request
	err := spool.ReadJSON(claimed, &req)
	spool.Remove(claimed)
	if err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
			s.log.Warn("bridge.request.malformed", "file", filepath.Base(claimed), "error", err)
			s.rec.requestFinished("", "", statusJSONError, 0, err.Error())
		} else {
			s.log.Warn("bridge.poll.error", "file", filepath.Base(claimed), "error", err)
			s.rec.pollError(err.Error())
		}
		return
	}

	responsePath := s.dir.ResolveResponsePath(&req)
	started := s.Now()
	timeout := s.processingTimeoutFor(&req)

	s.mu.Lock()
	s.procActive = true
	s.procID = req.ID
	s.procMethod = req.Method
	s.procPath = responsePath
	s.procSince = started
	s.procTimeout = timeout
	s.mu.Unlock()

	s.rec.requestStarted()
	s.log.Debug("bridge.request.claimed",
		"request_id", req.ID, "method", req.Method, "timeout", timeout)

	// The worker is deliberately not in the WaitGroup: a stuck handler
	// must not be able to hang Stop.
	go s.runRequest(ctx, &req, responsePath, started)
}

// reapStuckHandler reports whether the processing slot is free, first
// force-completing the in-flight request when its watchdog budget is
// exhausted. The timed-out error response goes to the path recorded at
// claim time so the waiting client fails promptly.
func (s *Server) reapStuckHandler() bool {
	s.mu.Lock()
	if !s.procActive {
		s.mu.Unlock()
		return true
	}
	elapsed := s.Now().Sub(s.procSince)
	if elapsed < s.procTimeout {
		s.mu.Unlock()
		return false
	}

	id, method, path := s.procID, s.procMethod, s.procPath
	budget := s.procTimeout
	s.clearProcessingLocked()
	message := fmt.Sprintf("Handler timed out after %.0fs", budget.Seconds())
	if err := spool.WriteJSONAtomic(path, spool.NewError(id, spool.CodeInternalError, message)); err != nil {
		s.log.Warn("bridge.response.write_failed", "request_id", id, "error", err)
	}
	s.mu.Unlock()

	s.log.Warn("bridge.handler.stuck", "request_id", id, "method", method, "elapsed", elapsed)
	s.rec.requestFinished(id, method, statusTimeout, elapsed, message)
	return true
}

func (s *Server) runRequest(ctx context.Context, req *spool.Request, responsePath string, started time.Time) {
	status := statusOK
	var errMsg string

	resp, panicMsg := s.safeHandle(ctx, req)
	if panicMsg != "" {
		status = statusException
		errMsg = panicMsg
		resp = spool.NewError(req.ID, spool.CodeInternalError, panicMsg)
	} else if resp != nil && resp.Error != nil {
		status = statusError
		errMsg = resp.Error.Message
	}

	s.mu.Lock()
	if s.procActive && s.procID == req.ID {
		if err := spool.WriteJSONAtomic(responsePath, resp); err != nil {
			status = statusException
			errMsg = err.Error()
			s.log.Warn("bridge.response.write_failed", "request_id", req.ID, "error", err)
		}
		s.clearProcessingLocked()
		s.mu.Unlock()
	} else {
		s.mu.Unlock()
		status = statusStaleDiscarded
		if errMsg == "" {
			errMsg = "Response arrived after request was reset/replaced"
		}
		s.log.Warn("bridge.response.stale_discarded", "request_id", req.ID, "method", req.Method)
	}

	duration := s.Now().Sub(started)
	s.rec.requestFinished(req.ID, req.Method, status, duration, errMsg)
	s.log.Debug("bridge.request.completed",
		"request_id", req.ID, "method", req.Method, "status", status, "duration", duration)
}

func (s *Server) safeHandle(ctx context.Context, req *spool.Request) (resp *spool.Response, panicMsg string) {
	defer func() {
		if r := recover(); r != nil {
			resp = nil
			panicMsg = fmt.Sprint(r)
		}
	}()
	return s.handler.Handle(ctx, req), ""
}

func (s *Server) clearProcessingLocked() {
	s.procActive = false
	s.procID = ""
	s.procMethod = ""
	s.procPath = s.dir.LegacyResponsePath()
	s.procSince = time.Time{}
	s.procTimeout = s.cfg.ProcessingTimeout
}

func (s *Server) processingTimeoutFor(req *spool.Request) time.Duration {
	timeout := s.cfg.ProcessingTimeout
	if req.Timeout > 0 {
		hinted := time.Duration(req.Timeout * float64(time.Second))
		if hinted < minProcessingTimeout {
			hinted = minProcessingTimeout
		}
		if hinted > maxProcessingTimeout {
			hinted = maxProcessingTimeout
		}
		timeout = hinted
	}
	return timeout
}

// Diagnostics builds the runtime state payload served for
// get_bridge_diagnostics and persisted as the snapshot file.
func (s *Server) Diagnostics(includeRecentErrors bool, maxRecentErrors int) map[string]any {
	now := s.Now()

	s.mu.Lock()
	running := s.running
	active := s.procActive
	procID := s.procID
	procMethod := s.procMethod
	procPath := s.procPath
	procSince := s.procSince
	procTimeout := s.procTimeout
	startedAt := s.startedAt
	s.mu.Unlock()

	var elapsed any
	if active {
		seconds := now.Sub(procSince).Seconds()
		if seconds < 0 {
			seconds = 0
		}
		elapsed = round3(seconds)
	}

	var hbAge any
	if age, ok := s.dir.HeartbeatAge(now); ok {
		hbAge = round3(age.Seconds())
	}

	var oldest any
	if age, ok := s.dir.OldestPendingAge(now); ok {
		oldest = round3(age.Seconds())
	}

	metrics, last, recent := s.rec.snapshot(includeRecentErrors, maxRecentErrors)

	uptime := now.Sub(startedAt).Seconds()
	if uptime < 0 {
		uptime = 0
	}

	return map[string]any{
		"schema_version":    "bridge_diagnostics.v1",
		"running":           running,
		"uptime_sec":        round3(uptime),
		"heartbeat_age_sec": hbAge,
		"queue": map[string]any{
			"pending_count":          s.dir.PendingCount(),
			"legacy_request_present": s.dir.LegacyRequestPresent(),
			"inflight_count":         s.dir.InflightCount(),
			"oldest_pending_age_sec": oldest,
		},
		"processing": map[string]any{
			"active":        active,
			"request_id":    nullableString(procID),
			"method":        nullableString(procMethod),
			"response_file": filepath.Base(procPath),
			"elapsed_sec":   elapsed,
			"timeout_sec":   procTimeout.Seconds(),
		},
		"metrics":       metrics,
		"last_request":  last,
		"recent_errors": recent,
	}
}

func (s *Server) writeDiagnosticsSnapshot() {
	payload := s.Diagnostics(false, 0)
	if err := spool.WriteJSONAtomic(s.dir.DiagnosticsPath(), payload); err != nil {
		s.log.Debug("bridge.diagnostics.write_failed", "error", err)
	}
}
