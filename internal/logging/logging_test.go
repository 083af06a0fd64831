package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesStructuredOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "debug")

	logger.Info("bridge.test.event", "key", "value")

	out := buf.String()
	if out == "" {
		t.Fatal("logger produced no output")
	}
	if !strings.Contains(out, "bridge.test.event") {
		t.Fatalf("output missing event name: %q", out)
	}
}

func TestNewFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "error")

	logger.Debug("bridge.test.debug")

	if got := buf.String(); strings.Contains(got, "bridge.test.debug") {
		t.Fatalf("debug entry emitted at error level: %q", got)
	}
}

func TestWithSubsystemNilLogger(t *testing.T) {
	logger := WithSubsystem(nil, "daemon.poll")
	logger.Info("must not panic")
}

func TestOpenLogFileAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge_server.log")

	f, err := OpenLogFile(path)
	if err != nil {
		t.Fatalf("OpenLogFile() error = %v", err)
	}
	if _, err := f.WriteString("one\n"); err != nil {
		t.Fatalf("write error = %v", err)
	}
	f.Close()

	f, err = OpenLogFile(path)
	if err != nil {
		t.Fatalf("OpenLogFile() reopen error = %v", err)
	}
	if _, err := f.WriteString("two\n"); err != nil {
		t.Fatalf("write error = %v", err)
	}
	f.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if got := string(data); got != "one\ntwo\n" {
		t.Fatalf("log content = %q, want appended lines", got)
	}
}
