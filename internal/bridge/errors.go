package bridge

import "errors"

// Transport-level failure kinds. Call wraps these with context; match with
// errors.Is. Server-reported failures are returned as *spool.ErrorInfo
// instead and carry the peer's code and message.
var (
	// ErrNotRunning means the spool directory or heartbeat never appeared.
	ErrNotRunning = errors.New("bridge: server not running")
	// ErrDeadHeartbeat means the heartbeat exists but is beyond the
	// certainly-dead threshold, or vanished mid-wait in fail-fast mode.
	ErrDeadHeartbeat = errors.New("bridge: server heartbeat dead")
	// ErrTimeout means no valid response arrived within the call budget.
	ErrTimeout = errors.New("bridge: request timed out")
	// ErrStaleResponses means too many responses for other request ids were
	// observed, which points at a misbehaving server.
	ErrStaleResponses = errors.New("bridge: too many stale responses")
	// ErrProtocol means a response file could not be parsed even after the
	// partial-write retry budget.
	ErrProtocol = errors.New("bridge: malformed response")
)
