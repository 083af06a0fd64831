package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
)

func prettyJSON(raw json.RawMessage) (string, error) {
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	out, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// diagView mirrors the bridge_diagnostics.v1 payload, plus the fields the
// client adds when it falls back to a disk snapshot.
type diagView struct {
	SchemaVersion   string          `json:"schema_version"`
	Running         bool            `json:"running"`
	UptimeSec       float64         `json:"uptime_sec"`
	HeartbeatAgeSec *float64        `json:"heartbeat_age_sec"`
	Queue           *diagQueue      `json:"queue"`
	Processing      *diagProcessing `json:"processing"`
	Metrics         map[string]int  `json:"metrics"`
	LastRequest     *diagLast       `json:"last_request"`
	RecentErrors    []diagError     `json:"recent_errors"`

	TransportError string          `json:"transport_error"`
	SnapshotPath   string          `json:"snapshot_path"`
	Snapshot       json.RawMessage `json:"snapshot"`
}

type diagQueue struct {
	PendingCount         int      `json:"pending_count"`
	LegacyRequestPresent bool     `json:"legacy_request_present"`
	InflightCount        int      `json:"inflight_count"`
	OldestPendingAgeSec  *float64 `json:"oldest_pending_age_sec"`
}

type diagProcessing struct {
	Active       bool     `json:"active"`
	RequestID    *string  `json:"request_id"`
	Method       *string  `json:"method"`
	ResponseFile string   `json:"response_file"`
	ElapsedSec   *float64 `json:"elapsed_sec"`
	TimeoutSec   float64  `json:"timeout_sec"`
}

type diagLast struct {
	Timestamp   float64 `json:"timestamp"`
	RequestID   *string `json:"request_id"`
	Method      *string `json:"method"`
	Status      string  `json:"status"`
	DurationSec float64 `json:"duration_sec"`
	Error       *string `json:"error"`
}

type diagError struct {
	Timestamp float64 `json:"timestamp"`
	Kind      string  `json:"kind"`
	RequestID *string `json:"request_id"`
	Method    *string `json:"method"`
	Message   string  `json:"message"`
}

func renderDiagnostics(w io.Writer, raw json.RawMessage) error {
	var d diagView
	if err := json.Unmarshal(raw, &d); err != nil {
		return fmt.Errorf("decoding diagnostics: %w", err)
	}

	if !d.Running && d.TransportError != "" {
		fmt.Fprintf(w, "bridge: not reachable (%s)\n", d.TransportError)
		if len(d.Snapshot) > 0 && string(d.Snapshot) != "null" {
			fmt.Fprintf(w, "last snapshot, from %s:\n", d.SnapshotPath)
			return renderDiagnostics(w, d.Snapshot)
		}
		fmt.Fprintf(w, "no snapshot at %s\n", d.SnapshotPath)
		return nil
	}

	state := "stopped"
	if d.Running {
		state = "running"
	}
	fmt.Fprintf(w, "bridge: %s, up %s\n", state, secondsDuration(d.UptimeSec).Round(time.Second))
	if d.HeartbeatAgeSec != nil {
		fmt.Fprintf(w, "heartbeat: %.1fs old\n", *d.HeartbeatAgeSec)
	} else {
		fmt.Fprintln(w, "heartbeat: missing")
	}
	if q := d.Queue; q != nil {
		legacy := "empty"
		if q.LegacyRequestPresent {
			legacy = "occupied"
		}
		fmt.Fprintf(w, "queue: %d pending, %d in flight, legacy slot %s\n",
			q.PendingCount, q.InflightCount, legacy)
	}
	if p := d.Processing; p != nil {
		if p.Active {
			fmt.Fprintf(w, "processing: %s (id %s) for %.1fs, budget %.0fs\n",
				orDash(p.Method), orDash(p.RequestID), orZero(p.ElapsedSec), p.TimeoutSec)
		} else {
			fmt.Fprintln(w, "processing: idle")
		}
	}
	if len(d.Metrics) > 0 {
		fmt.Fprintf(w, "metrics: %d received, %d completed, %d errors, %d timeouts, %d stale, %d json errors, %d poll errors\n",
			d.Metrics["total_received"], d.Metrics["total_completed"], d.Metrics["total_errors"],
			d.Metrics["total_timeouts"], d.Metrics["total_stale_responses"], d.Metrics["total_json_errors"],
			d.Metrics["total_poll_errors"])
	}
	if lr := d.LastRequest; lr != nil {
		fmt.Fprintf(w, "last request: %s %s in %s, %s\n",
			orDash(lr.Method), lr.Status,
			secondsDuration(lr.DurationSec).Round(time.Millisecond),
			humanize.Time(secondsTime(lr.Timestamp)))
	}
	if d.RecentErrors == nil {
		return nil
	}
	if len(d.RecentErrors) == 0 {
		fmt.Fprintln(w, "recent errors: none")
		return nil
	}
	fmt.Fprintf(w, "recent errors (%d):\n", len(d.RecentErrors))
	for _, e := range d.RecentErrors {
		fmt.Fprintf(w, "  %s %s: %s, %s\n",
			e.Kind, orDash(e.Method), e.Message, humanize.Time(secondsTime(e.Timestamp)))
	}
	return nil
}

func secondsDuration(secs float64) time.Duration {
	return time.Duration(secs * float64(time.Second))
}

func secondsTime(secs float64) time.Time {
	return time.Unix(0, int64(secs*float64(time.Second)))
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func orZero(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
