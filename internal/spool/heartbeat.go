package spool

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// WriteHeartbeat overwrites the heartbeat file with now as a decimal UNIX
// timestamp. The write is deliberately plain: the file is a single short
// token and readers tolerate a torn read as a missed sample.
func (d Dir) WriteHeartbeat(now time.Time) error {
	stamp := fmt.Sprintf("%.3f", float64(now.UnixNano())/float64(time.Second))
	return os.WriteFile(d.HeartbeatPath(), []byte(stamp), 0644)
}

// HeartbeatAge returns how far in the past the heartbeat timestamp lies.
// ok is false when the file is missing or unreadable, which callers treat
// as "server never started or already gone".
func (d Dir) HeartbeatAge(now time.Time) (time.Duration, bool) {
	data, err := os.ReadFile(d.HeartbeatPath())
	if err != nil {
		return 0, false
	}
	ts, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return 0, false
	}
	ageSec := float64(now.UnixNano())/float64(time.Second) - ts
	return time.Duration(ageSec * float64(time.Second)), true
}

// RemoveHeartbeat deletes the heartbeat file, marking the server as gone.
func (d Dir) RemoveHeartbeat() {
	Remove(d.HeartbeatPath())
}
