package handler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeCapture(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("RDOC"), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestSimCaptureStatusUnloaded(t *testing.T) {
	f := NewSimFacade()
	result, err := f.CaptureStatus(context.Background())
	if err != nil {
		t.Fatalf("CaptureStatus() error = %v", err)
	}
	status := result.(map[string]any)
	if status["loaded"] != false {
		t.Fatalf("status = %v, want loaded=false", status)
	}
}

func TestSimOpenCaptureGateDisabled(t *testing.T) {
	f := NewSimFacade()
	path := writeCapture(t, t.TempDir(), "frame.rdc")

	_, err := f.OpenCapture(context.Background(), path)
	if err == nil {
		t.Fatal("OpenCapture succeeded with the gate closed")
	}
	var argErr *invalidArgError
	if !errors.As(err, &argErr) {
		t.Fatalf("OpenCapture error = %T, want argument error", err)
	}
	if !strings.Contains(err.Error(), "RENDERDOC_MCP_ENABLE_OPEN_CAPTURE") {
		t.Fatalf("error = %q, want enable hint", err)
	}
}

func TestSimOpenCaptureLoads(t *testing.T) {
	f := NewSimFacade()
	f.AllowOpenCapture(true)
	path := writeCapture(t, t.TempDir(), "frame.rdc")

	result, err := f.OpenCapture(context.Background(), path)
	if err != nil {
		t.Fatalf("OpenCapture() error = %v", err)
	}
	opened := result.(map[string]any)
	if opened["success"] != true || opened["filename"] != "frame.rdc" {
		t.Fatalf("opened = %v", opened)
	}

	status, err := f.CaptureStatus(context.Background())
	if err != nil {
		t.Fatalf("CaptureStatus() error = %v", err)
	}
	if status.(map[string]any)["loaded"] != true {
		t.Fatalf("status after open = %v", status)
	}

	// Same file again short-circuits.
	result, err = f.OpenCapture(context.Background(), path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	if result.(map[string]any)["already_loaded"] != true {
		t.Fatalf("reopen = %v, want already_loaded", result)
	}
}

func TestSimOpenCaptureValidation(t *testing.T) {
	f := NewSimFacade()
	f.AllowOpenCapture(true)
	dir := t.TempDir()

	if _, err := f.OpenCapture(context.Background(), filepath.Join(dir, "missing.rdc")); err == nil {
		t.Fatal("missing file accepted")
	}
	notRDC := writeCapture(t, dir, "frame.txt")
	_, err := f.OpenCapture(context.Background(), notRDC)
	if err == nil || !strings.Contains(err.Error(), "Expected .rdc") {
		t.Fatalf("wrong extension error = %v", err)
	}
}

func TestSimListCaptures(t *testing.T) {
	f := NewSimFacade()
	dir := t.TempDir()
	writeCapture(t, dir, "a.rdc")
	writeCapture(t, dir, "b.RDC")
	writeCapture(t, dir, "notes.txt")

	result, err := f.ListCaptures(context.Background(), dir)
	if err != nil {
		t.Fatalf("ListCaptures() error = %v", err)
	}
	listing := result.(map[string]any)
	if listing["count"] != 2 {
		t.Fatalf("count = %v, want 2", listing["count"])
	}
	for _, item := range listing["captures"].([]map[string]any) {
		name := item["filename"].(string)
		if !strings.HasSuffix(strings.ToLower(name), ".rdc") {
			t.Fatalf("non-capture %q listed", name)
		}
		if item["size_bytes"].(int64) == 0 {
			t.Fatalf("capture %q has no size", name)
		}
	}
}

func TestSimListCapturesMissingDirectory(t *testing.T) {
	f := NewSimFacade()
	_, err := f.ListCaptures(context.Background(), filepath.Join(t.TempDir(), "nope"))
	if err == nil || !strings.Contains(err.Error(), "Directory not found") {
		t.Fatalf("error = %v", err)
	}
}

func TestSimRequiresLoadedCapture(t *testing.T) {
	f := NewSimFacade()
	ctx := context.Background()

	if _, err := f.DrawCalls(ctx, DrawCallsQuery{}); err == nil || err.Error() != "No capture loaded" {
		t.Fatalf("DrawCalls error = %v", err)
	}
	if _, err := f.FrameSummary(ctx); err == nil {
		t.Fatal("FrameSummary succeeded without a capture")
	}
	if _, err := f.FindDrawsByShader(ctx, "Blur", "", 0); err == nil {
		t.Fatal("FindDrawsByShader succeeded without a capture")
	}
	if _, err := f.FrameDigest(ctx, FrameDigestQuery{}); err == nil {
		t.Fatal("FrameDigest succeeded without a capture")
	}
}

func TestSimLoadedShapes(t *testing.T) {
	f := NewSimFacade()
	f.AllowOpenCapture(true)
	path := writeCapture(t, t.TempDir(), "frame.rdc")
	ctx := context.Background()
	if _, err := f.OpenCapture(ctx, path); err != nil {
		t.Fatalf("OpenCapture() error = %v", err)
	}

	result, err := f.DrawCalls(ctx, DrawCallsQuery{})
	if err != nil {
		t.Fatalf("DrawCalls() error = %v", err)
	}
	if _, ok := result.(map[string]any)["actions"]; !ok {
		t.Fatalf("DrawCalls result = %v, want actions key", result)
	}

	result, err = f.ActionTimings(ctx, TimingsQuery{})
	if err != nil {
		t.Fatalf("ActionTimings() error = %v", err)
	}
	if result.(map[string]any)["available"] != false {
		t.Fatalf("ActionTimings result = %v, want available=false", result)
	}

	result, err = f.FindDrawsByTexture(ctx, "Shadow", 0)
	if err != nil {
		t.Fatalf("FindDrawsByTexture() error = %v", err)
	}
	search := result.(map[string]any)
	if search["total_matches"] != 0 || search["truncated"] != false {
		t.Fatalf("search result = %v", search)
	}

	if _, err := f.DrawCallDetails(ctx, 42); err == nil || !strings.Contains(err.Error(), "No action at event 42") {
		t.Fatalf("DrawCallDetails error = %v", err)
	}
	if _, err := f.ShaderInfo(ctx, 42, "pixel"); err == nil || !strings.Contains(err.Error(), "No pixel shader bound") {
		t.Fatalf("ShaderInfo error = %v", err)
	}
}
