package daemon

import (
	"math"
	"sync"
	"time"
)

// Request terminal statuses as they appear in diagnostics.
const (
	statusOK             = "ok"
	statusError          = "error"
	statusException      = "exception"
	statusTimeout        = "timeout"
	statusStaleDiscarded = "stale_discarded"
	statusJSONError      = "json_error"
)

const (
	maxRecentErrors    = 32
	maxTerminalHistory = 2048
)

// recorder accumulates the serving process's request metrics and recent
// failures for the diagnostics surface. A request id reaches a terminal
// status at most once: a watchdog timeout and the late worker finish for
// the same id must not both count.
type recorder struct {
	now func() time.Time

	mu            sync.Mutex
	metrics       recorderMetrics
	lastRequest   map[string]any
	recentErrors  []map[string]any
	terminalSeen  map[string]struct{}
	terminalOrder []string
}

type recorderMetrics struct {
	received       int
	completed      int
	errors         int
	timeouts       int
	staleResponses int
	jsonErrors     int
	pollErrors     int
}

func newRecorder(now func() time.Time) *recorder {
	if now == nil {
		now = time.Now
	}
	return &recorder{
		now:          now,
		terminalSeen: make(map[string]struct{}),
	}
}

func (r *recorder) requestStarted() {
	r.mu.Lock()
	r.metrics.received++
	r.mu.Unlock()
}

func (r *recorder) pollError(message string) {
	r.mu.Lock()
	r.metrics.pollErrors++
	r.appendRecentErrorLocked("poll_error", "", "", message)
	r.mu.Unlock()
}

// requestFinished records a terminal status. Duplicate terminals for the
// same id are dropped; an empty id (legacy or malformed requests) never
// dedupes.
func (r *recorder) requestFinished(requestID, method, status string, duration time.Duration, errorMessage string) {
	if duration < 0 {
		duration = 0
	}
	now := r.now()

	r.mu.Lock()
	if !r.markTerminalLocked(requestID) {
		r.mu.Unlock()
		return
	}
	r.metrics.completed++
	switch status {
	case statusError, statusException, statusTimeout:
		r.metrics.errors++
	}
	switch status {
	case statusTimeout:
		r.metrics.timeouts++
	case statusStaleDiscarded:
		r.metrics.staleResponses++
	case statusJSONError:
		r.metrics.jsonErrors++
	}
	r.lastRequest = map[string]any{
		"timestamp":    unixSeconds(now),
		"request_id":   nullableString(requestID),
		"method":       nullableString(method),
		"status":       status,
		"duration_sec": round4(duration.Seconds()),
		"error":        nullableString(errorMessage),
	}
	if errorMessage != "" {
		r.appendRecentErrorLocked("request_"+status, requestID, method, errorMessage)
	}
	r.mu.Unlock()
}

func (r *recorder) markTerminalLocked(requestID string) bool {
	if requestID == "" {
		return true
	}
	if _, seen := r.terminalSeen[requestID]; seen {
		return false
	}
	r.terminalSeen[requestID] = struct{}{}
	r.terminalOrder = append(r.terminalOrder, requestID)
	if len(r.terminalOrder) > maxTerminalHistory {
		oldest := r.terminalOrder[0]
		r.terminalOrder = r.terminalOrder[1:]
		delete(r.terminalSeen, oldest)
	}
	return true
}

func (r *recorder) appendRecentErrorLocked(kind, requestID, method, message string) {
	r.recentErrors = append(r.recentErrors, map[string]any{
		"timestamp":  unixSeconds(r.now()),
		"kind":       kind,
		"request_id": nullableString(requestID),
		"method":     nullableString(method),
		"message":    message,
	})
	if len(r.recentErrors) > maxRecentErrors {
		r.recentErrors = r.recentErrors[len(r.recentErrors)-maxRecentErrors:]
	}
}

// snapshot returns the metrics map, the last terminal request, and up to
// maxRecent recent errors, newest last.
func (r *recorder) snapshot(includeRecentErrors bool, maxRecent int) (map[string]any, map[string]any, []map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	metrics := map[string]any{
		"total_received":        r.metrics.received,
		"total_completed":       r.metrics.completed,
		"total_errors":          r.metrics.errors,
		"total_timeouts":        r.metrics.timeouts,
		"total_stale_responses": r.metrics.staleResponses,
		"total_json_errors":     r.metrics.jsonErrors,
		"total_poll_errors":     r.metrics.pollErrors,
	}

	var last map[string]any
	if r.lastRequest != nil {
		last = make(map[string]any, len(r.lastRequest))
		for k, v := range r.lastRequest {
			last[k] = v
		}
	}

	var recent []map[string]any
	if includeRecentErrors {
		if maxRecent < 1 {
			maxRecent = 1
		}
		start := len(r.recentErrors) - maxRecent
		if start < 0 {
			start = 0
		}
		recent = make([]map[string]any, 0, len(r.recentErrors)-start)
		for _, e := range r.recentErrors[start:] {
			copied := make(map[string]any, len(e))
			for k, v := range e {
				copied[k] = v
			}
			recent = append(recent, copied)
		}
	} else {
		recent = []map[string]any{}
	}

	return metrics, last, recent
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
