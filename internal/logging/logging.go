package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"pkt.systems/pslog"
)

// SubsystemKey tags every entry with the emitting subsystem.
const SubsystemKey = pslog.TrustedString("sys")

// New builds a structured logger writing to w, filtered at the named level.
// Unknown level names fall back to the logger's default.
func New(w io.Writer, level string) pslog.Logger {
	logger := pslog.NewStructured(w).With("app", "renderdoc-mcp")
	if lv, ok := pslog.ParseLevel(level); ok {
		logger = logger.LogLevel(lv)
	}
	return logger
}

// WithSubsystem returns logger tagged with a subsystem name. Nil loggers
// come back as a noop so call sites never guard.
func WithSubsystem(logger pslog.Logger, subsystem string) pslog.Logger {
	if logger == nil {
		return pslog.NoopLogger()
	}
	if name := strings.Trim(subsystem, ". "); name != "" {
		return logger.With(SubsystemKey, name)
	}
	return logger
}

// OpenLogFile opens path for appending, creating it if needed. The server
// logs into the spool directory so operators can read it next to the
// diagnostics snapshot.
func OpenLogFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening log file %s: %w", path, err)
	}
	return f, nil
}
