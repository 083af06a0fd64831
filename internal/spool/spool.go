package spool

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Spool entry names. These are the wire contract: both sides of the bridge
// derive every path from the request id and these constants alone.
const (
	LegacyRequestFile  = "request.json"
	LegacyInflightFile = "request.inflight.json"
	LegacyResponseFile = "response.json"
	LegacyLockFile     = "lock"
	HeartbeatFile      = "heartbeat"
	DiagnosticsFile    = "bridge_diagnostics.json"
	ServerLogFile      = "bridge_server.log"

	requestPrefix  = "request."
	inflightPrefix = "request.inflight."
	responsePrefix = "response."
	jsonSuffix     = ".json"
)

// Dir is a spool directory shared between one server and any number of
// clients. All cross-process coordination happens through atomic renames
// of files inside it.
type Dir struct {
	root string
}

// New returns a Dir rooted at root. The directory is not created.
func New(root string) Dir {
	return Dir{root: root}
}

// Root returns the directory path.
func (d Dir) Root() string { return d.root }

// Exists reports whether the directory is present on disk.
func (d Dir) Exists() bool {
	info, err := os.Stat(d.root)
	return err == nil && info.IsDir()
}

// Ensure creates the directory if needed.
func (d Dir) Ensure() error {
	return os.MkdirAll(d.root, 0700)
}

func (d Dir) join(name string) string {
	return filepath.Join(d.root, name)
}

// RequestPath returns the per-request spool path for id.
func (d Dir) RequestPath(id string) string {
	return d.join(requestPrefix + id + jsonSuffix)
}

// ResponsePath returns the per-request response path for id.
func (d Dir) ResponsePath(id string) string {
	return d.join(responsePrefix + id + jsonSuffix)
}

// ResponseBase returns the file name (no directory) for a response to id,
// suitable for the request's response_file hint.
func (d Dir) ResponseBase(id string) string {
	return responsePrefix + id + jsonSuffix
}

// LegacyRequestPath returns the single-slot request path.
func (d Dir) LegacyRequestPath() string { return d.join(LegacyRequestFile) }

// LegacyInflightPath returns the single-slot in-flight marker path.
func (d Dir) LegacyInflightPath() string { return d.join(LegacyInflightFile) }

// LegacyResponsePath returns the shared response path.
func (d Dir) LegacyResponsePath() string { return d.join(LegacyResponseFile) }

// LegacyLockPath returns the legacy client lock path.
func (d Dir) LegacyLockPath() string { return d.join(LegacyLockFile) }

// HeartbeatPath returns the liveness timestamp path.
func (d Dir) HeartbeatPath() string { return d.join(HeartbeatFile) }

// DiagnosticsPath returns the persisted diagnostics snapshot path.
func (d Dir) DiagnosticsPath() string { return d.join(DiagnosticsFile) }

// LogPath returns the server log file path.
func (d Dir) LogPath() string { return d.join(ServerLogFile) }

func isPendingName(lower string) bool {
	if lower == LegacyRequestFile {
		return true
	}
	return strings.HasPrefix(lower, requestPrefix) &&
		strings.HasSuffix(lower, jsonSuffix) &&
		!strings.HasPrefix(lower, inflightPrefix)
}

func isInflightName(lower string) bool {
	if lower == LegacyInflightFile {
		return true
	}
	return strings.HasPrefix(lower, inflightPrefix) && strings.HasSuffix(lower, jsonSuffix)
}

// ListPending returns pending request paths ordered oldest-first by
// modification time. Both the legacy slot and per-request spool files are
// included; in-flight markers are not. Ordering is best-effort only, bounded
// by the filesystem's timestamp resolution.
func (d Dir) ListPending() []string {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil
	}
	var pending []string
	for _, entry := range entries {
		if isPendingName(strings.ToLower(entry.Name())) {
			pending = append(pending, d.join(entry.Name()))
		}
	}
	mtime := func(path string) time.Time {
		info, err := os.Stat(path)
		if err != nil {
			return time.Now()
		}
		return info.ModTime()
	}
	sort.SliceStable(pending, func(i, j int) bool {
		return mtime(pending[i]).Before(mtime(pending[j]))
	})
	return pending
}

// PendingCount returns the number of pending request files.
func (d Dir) PendingCount() int {
	return len(d.ListPending())
}

// InflightCount returns the number of in-flight markers, legacy included.
func (d Dir) InflightCount() int {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return 0
	}
	count := 0
	for _, entry := range entries {
		if isInflightName(strings.ToLower(entry.Name())) {
			count++
		}
	}
	return count
}

// HasInflight reports whether any request is currently claimed.
func (d Dir) HasInflight() bool {
	return d.InflightCount() > 0
}

// LegacyRequestPresent reports whether the single-slot request file exists.
func (d Dir) LegacyRequestPresent() bool {
	_, err := os.Stat(d.LegacyRequestPath())
	return err == nil
}

// InflightPathFor returns the in-flight counterpart name for a pending
// request path.
func (d Dir) InflightPathFor(requestPath string) string {
	base := filepath.Base(requestPath)
	if strings.ToLower(base) == LegacyRequestFile {
		return d.LegacyInflightPath()
	}
	return d.join(inflightPrefix + strings.TrimPrefix(base, requestPrefix))
}

// ClaimNext atomically claims the oldest pending request by renaming it to
// its in-flight counterpart. Among any number of concurrent claimers exactly
// one rename succeeds per file; losers move on to the next candidate. The
// legacy slot is skipped while a legacy client still holds the lock file.
// Returns the claimed in-flight path, or "" when nothing was claimable.
func (d Dir) ClaimNext() string {
	for _, path := range d.ListPending() {
		if strings.ToLower(filepath.Base(path)) == LegacyRequestFile {
			if _, err := os.Stat(d.LegacyLockPath()); err == nil {
				continue
			}
		}
		inflight := d.InflightPathFor(path)
		if err := os.Rename(path, inflight); err != nil {
			continue
		}
		return inflight
	}
	return ""
}

// ResolveResponsePath validates a request's response_file hint. Hints that
// resolve outside the spool directory fall back to the shared legacy path.
func (d Dir) ResolveResponsePath(req *Request) string {
	if req == nil {
		return d.LegacyResponsePath()
	}
	candidate := strings.TrimSpace(req.ResponseFile)
	if candidate == "" {
		return d.LegacyResponsePath()
	}
	var path string
	if filepath.IsAbs(candidate) {
		path = filepath.Clean(candidate)
	} else {
		path = filepath.Clean(d.join(candidate))
	}
	rootAbs, err := filepath.Abs(d.root)
	if err != nil {
		return d.LegacyResponsePath()
	}
	pathAbs, err := filepath.Abs(path)
	if err != nil {
		return d.LegacyResponsePath()
	}
	rel, err := filepath.Rel(rootAbs, pathAbs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return d.LegacyResponsePath()
	}
	return pathAbs
}

// OldestPendingAge returns the age of the oldest pending request, if any.
func (d Dir) OldestPendingAge(now time.Time) (time.Duration, bool) {
	var oldest time.Duration
	found := false
	for _, path := range d.ListPending() {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		age := now.Sub(info.ModTime())
		if !found || age > oldest {
			oldest = age
			found = true
		}
	}
	return oldest, found
}

// Sweep removes request, in-flight, response, and diagnostics files plus
// write leftovers from previous runs. The heartbeat file is left alone;
// servers remove it separately on shutdown. Safe to call repeatedly.
func (d Dir) Sweep() {
	Remove(d.LegacyRequestPath())
	Remove(d.LegacyInflightPath())
	Remove(d.LegacyLockPath())
	Remove(d.DiagnosticsPath())

	entries, err := os.ReadDir(d.root)
	if err != nil {
		return
	}
	for _, entry := range entries {
		lower := strings.ToLower(entry.Name())
		stale := isPendingName(lower) ||
			isInflightName(lower) ||
			lower == LegacyResponseFile ||
			(strings.HasPrefix(lower, responsePrefix) && strings.HasSuffix(lower, jsonSuffix)) ||
			strings.HasSuffix(lower, ".tmp") ||
			strings.HasPrefix(lower, tmpPrefix)
		if stale {
			Remove(d.join(entry.Name()))
		}
	}
}
