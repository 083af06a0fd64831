package handler

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/elliotttate/RenderDocMCP/internal/config"
)

const simAPI = "D3D11"

// SimFacade stands in for a live debugger: the full method surface with
// the production error wording, no replay backend. A capture "loads" by
// path only and every loaded frame is empty, which is enough to exercise
// the transport end to end.
type SimFacade struct {
	mu          sync.Mutex
	loadedPath  string
	allowOpen   bool
	openFromEnv bool
}

func NewSimFacade() *SimFacade {
	return &SimFacade{openFromEnv: config.Truthy(os.Getenv(config.EnvEnableOpenCapture))}
}

// AllowOpenCapture overrides the environment gate on open_capture.
func (f *SimFacade) AllowOpenCapture(enabled bool) {
	f.mu.Lock()
	f.allowOpen = enabled
	f.mu.Unlock()
}

func (f *SimFacade) openEnabled() bool {
	return f.allowOpen || f.openFromEnv
}

func (f *SimFacade) requireLoaded() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadedPath == "" {
		return Invalidf("No capture loaded")
	}
	return nil
}

func (f *SimFacade) CaptureStatus(context.Context) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadedPath == "" {
		return map[string]any{"loaded": false}, nil
	}
	return map[string]any{
		"loaded":   true,
		"api":      simAPI,
		"filename": f.loadedPath,
	}, nil
}

func (f *SimFacade) ListCaptures(_ context.Context, directory string) (any, error) {
	info, err := os.Stat(directory)
	if err != nil || !info.IsDir() {
		return nil, Invalidf("Directory not found: %s", directory)
	}
	entries, err := os.ReadDir(directory)
	if err != nil {
		return nil, Invalidf("Failed to list directory: %s", err)
	}
	captures := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".rdc") {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		captures = append(captures, map[string]any{
			"filename":      entry.Name(),
			"path":          filepath.Join(directory, entry.Name()),
			"size_bytes":    fi.Size(),
			"modified_time": fi.ModTime().Format("2006-01-02T15:04:05.999999"),
		})
	}
	// Newest first.
	sort.Slice(captures, func(i, j int) bool {
		return captures[i]["modified_time"].(string) > captures[j]["modified_time"].(string)
	})
	return map[string]any{
		"directory": directory,
		"count":     len(captures),
		"captures":  captures,
	}, nil
}

func (f *SimFacade) OpenCapture(_ context.Context, capturePath string) (any, error) {
	fi, err := os.Stat(capturePath)
	if err != nil || fi.IsDir() {
		return nil, Invalidf("Capture file not found: %s", capturePath)
	}
	if !strings.HasSuffix(strings.ToLower(capturePath), ".rdc") {
		return nil, Invalidf("Invalid file type. Expected .rdc file: %s", capturePath)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadedPath != "" && samePath(f.loadedPath, capturePath) {
		return map[string]any{
			"success":        true,
			"capture_path":   capturePath,
			"filename":       filepath.Base(capturePath),
			"already_loaded": true,
		}, nil
	}
	if !f.openEnabled() {
		return nil, Invalidf("open_capture is disabled by default to avoid RenderDoc UI hangs on this build. " +
			"Open the .rdc in qrenderdoc directly (or start qrenderdoc with the file path), " +
			"then use MCP tools. To force legacy behavior set RENDERDOC_MCP_ENABLE_OPEN_CAPTURE=1.")
	}
	f.loadedPath = capturePath
	return map[string]any{
		"success":      true,
		"capture_path": capturePath,
		"filename":     filepath.Base(capturePath),
		"api":          simAPI,
	}, nil
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return filepath.Clean(absA) == filepath.Clean(absB)
}

func (f *SimFacade) DrawCalls(_ context.Context, _ DrawCallsQuery) (any, error) {
	if err := f.requireLoaded(); err != nil {
		return nil, err
	}
	return map[string]any{"actions": []any{}}, nil
}

func (f *SimFacade) FrameSummary(context.Context) (any, error) {
	if err := f.requireLoaded(); err != nil {
		return nil, err
	}
	return map[string]any{
		"api":           simAPI,
		"total_actions": 0,
		"statistics": map[string]any{
			"draw_calls": 0,
			"dispatches": 0,
			"clears":     0,
			"copies":     0,
			"presents":   0,
			"markers":    0,
		},
		"top_level_markers": []any{},
		"resource_counts":   map[string]any{"textures": 0, "buffers": 0},
	}, nil
}

func (f *SimFacade) DrawCallDetails(_ context.Context, eventID int) (any, error) {
	if err := f.requireLoaded(); err != nil {
		return nil, err
	}
	return nil, Invalidf("No action at event %d", eventID)
}

func (f *SimFacade) ActionTimings(_ context.Context, _ TimingsQuery) (any, error) {
	if err := f.requireLoaded(); err != nil {
		return nil, err
	}
	return map[string]any{
		"available": false,
		"error":     "GPU timing counters not supported on this capture",
	}, nil
}

func (f *SimFacade) emptySearch() map[string]any {
	return map[string]any{
		"matches":       []any{},
		"scanned_draws": 0,
		"truncated":     false,
		"total_matches": 0,
	}
}

func (f *SimFacade) FindDrawsByShader(_ context.Context, _, _ string, _ int) (any, error) {
	if err := f.requireLoaded(); err != nil {
		return nil, err
	}
	return f.emptySearch(), nil
}

func (f *SimFacade) FindDrawsByTexture(_ context.Context, _ string, _ int) (any, error) {
	if err := f.requireLoaded(); err != nil {
		return nil, err
	}
	return f.emptySearch(), nil
}

func (f *SimFacade) FindDrawsByResource(_ context.Context, _ string, _ int) (any, error) {
	if err := f.requireLoaded(); err != nil {
		return nil, err
	}
	return f.emptySearch(), nil
}

func (f *SimFacade) BufferContents(_ context.Context, q BufferQuery) (any, error) {
	if err := f.requireLoaded(); err != nil {
		return nil, err
	}
	return nil, Invalidf("Buffer not found: %s", q.ResourceID)
}

func (f *SimFacade) TextureInfo(_ context.Context, resourceID string) (any, error) {
	if err := f.requireLoaded(); err != nil {
		return nil, err
	}
	return nil, Invalidf("Texture not found: %s", resourceID)
}

func (f *SimFacade) TextureData(_ context.Context, q TextureDataQuery) (any, error) {
	if err := f.requireLoaded(); err != nil {
		return nil, err
	}
	return nil, Invalidf("Texture not found: %s", q.ResourceID)
}

func (f *SimFacade) ShaderInfo(_ context.Context, _ int, stage string) (any, error) {
	if err := f.requireLoaded(); err != nil {
		return nil, err
	}
	return nil, Invalidf("No %s shader bound", stage)
}

func (f *SimFacade) PipelineState(_ context.Context, eventID int) (any, error) {
	if err := f.requireLoaded(); err != nil {
		return nil, err
	}
	return nil, Invalidf("No action at event %d", eventID)
}

func (f *SimFacade) EventInsight(_ context.Context, q EventInsightQuery) (any, error) {
	if err := f.requireLoaded(); err != nil {
		return nil, err
	}
	return nil, Invalidf("No action at event %d", q.EventID)
}

func (f *SimFacade) FrameDigest(_ context.Context, _ FrameDigestQuery) (any, error) {
	if err := f.requireLoaded(); err != nil {
		return nil, err
	}
	return map[string]any{
		"schema_version":     "frame_digest.v1",
		"api":                simAPI,
		"total_actions":      0,
		"non_marker_actions": 0,
		"statistics": map[string]any{
			"draw_calls": 0,
			"dispatches": 0,
			"clears":     0,
			"copies":     0,
			"presents":   0,
			"markers":    0,
		},
		"timing": map[string]any{
			"available":           false,
			"unit":                "seconds",
			"sampled_event_count": 0,
		},
		"hotspots":               []any{},
		"marker_overview":        []any{},
		"anomalies":              []any{},
		"recommended_next_calls": []any{},
	}, nil
}
