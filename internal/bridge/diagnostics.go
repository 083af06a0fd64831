package bridge

import (
	"context"
	"encoding/json"
	"os"
)

// DiagnosticsOptions trims the recent-error tail of a diagnostics query.
type DiagnosticsOptions struct {
	IncludeRecentErrors bool
	MaxRecentErrors     int
}

// DefaultDiagnosticsOptions matches what the tool surface advertises.
func DefaultDiagnosticsOptions() DiagnosticsOptions {
	return DiagnosticsOptions{IncludeRecentErrors: true, MaxRecentErrors: 16}
}

// Diagnostics fetches live diagnostics from the server. When the transport
// fails it falls back to the last persisted snapshot so callers can still
// reason about the failure mode, marking the payload as not-running.
func (c *Client) Diagnostics(ctx context.Context, opts DiagnosticsOptions) (json.RawMessage, error) {
	raw, err := c.Call(ctx, "get_bridge_diagnostics", map[string]any{
		"include_recent_errors": opts.IncludeRecentErrors,
		"max_recent_errors":     opts.MaxRecentErrors,
	})
	if err == nil {
		return raw, nil
	}

	snapshotPath := c.dir.DiagnosticsPath()
	var snapshot json.RawMessage
	if data, readErr := os.ReadFile(snapshotPath); readErr == nil && json.Valid(data) {
		snapshot = data
	}
	payload := map[string]any{
		"schema_version":  "bridge_diagnostics.v1",
		"running":         false,
		"transport_error": err.Error(),
		"snapshot_path":   snapshotPath,
		"snapshot":        snapshot,
	}
	out, marshalErr := json.Marshal(payload)
	if marshalErr != nil {
		return nil, err
	}
	return out, nil
}
