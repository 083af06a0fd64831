package handler

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/elliotttate/RenderDocMCP/internal/spool"
)

// stubFacade overrides the methods a test cares about; calling anything
// else panics through the embedded nil interface.
type stubFacade struct {
	Facade
	drawCalls    func(q DrawCallsQuery) (any, error)
	findByShader func(name, stage string, maxResults int) (any, error)
	status       func() (any, error)
	textureData  func(q TextureDataQuery) (any, error)
}

func (s *stubFacade) DrawCalls(_ context.Context, q DrawCallsQuery) (any, error) {
	return s.drawCalls(q)
}

func (s *stubFacade) FindDrawsByShader(_ context.Context, name, stage string, maxResults int) (any, error) {
	return s.findByShader(name, stage, maxResults)
}

func (s *stubFacade) CaptureStatus(context.Context) (any, error) {
	return s.status()
}

func (s *stubFacade) TextureData(_ context.Context, q TextureDataQuery) (any, error) {
	return s.textureData(q)
}

func handle(t *testing.T, r *Router, method string, params map[string]any) *spool.Response {
	t.Helper()
	resp := r.Handle(context.Background(), &spool.Request{ID: "req-1", Method: method, Params: params})
	if resp == nil {
		t.Fatalf("Handle(%s) returned nil response", method)
	}
	if resp.ID != "req-1" {
		t.Fatalf("response id = %q, want %q", resp.ID, "req-1")
	}
	return resp
}

func TestHandlePing(t *testing.T) {
	r := NewRouter(&stubFacade{})
	resp := handle(t, r, "ping", nil)
	if resp.Error != nil {
		t.Fatalf("ping error = %v", resp.Error)
	}
	var result struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if result.Status != "ok" || result.Message != "pong" {
		t.Fatalf("ping result = %+v, want status=ok message=pong", result)
	}
}

func TestHandleUnknownMethod(t *testing.T) {
	r := NewRouter(&stubFacade{})
	resp := handle(t, r, "does_not_exist", nil)
	if resp.Error == nil {
		t.Fatal("unknown method did not error")
	}
	if resp.Error.Code != spool.CodeMethodNotFound {
		t.Fatalf("error code = %d, want %d", resp.Error.Code, spool.CodeMethodNotFound)
	}
	if resp.Error.Message != "Method not found: does_not_exist" {
		t.Fatalf("error message = %q", resp.Error.Message)
	}
}

func TestHandleMissingRequiredParam(t *testing.T) {
	r := NewRouter(&stubFacade{})
	resp := handle(t, r, "find_draws_by_shader", map[string]any{})
	if resp.Error == nil || resp.Error.Code != spool.CodeInvalidParams {
		t.Fatalf("error = %v, want invalid-params", resp.Error)
	}
	if resp.Error.Message != "shader_name is required" {
		t.Fatalf("error message = %q", resp.Error.Message)
	}
}

func TestHandleWrongParamType(t *testing.T) {
	r := NewRouter(&stubFacade{})
	resp := handle(t, r, "get_draw_call_details", map[string]any{"event_id": "not-a-number"})
	if resp.Error == nil || resp.Error.Code != spool.CodeInvalidParams {
		t.Fatalf("error = %v, want invalid-params", resp.Error)
	}
}

func TestHandleFacadeInternalError(t *testing.T) {
	r := NewRouter(&stubFacade{status: func() (any, error) {
		return nil, errors.New("replay thread wedged")
	}})
	resp := handle(t, r, "get_capture_status", nil)
	if resp.Error == nil || resp.Error.Code != spool.CodeInternal {
		t.Fatalf("error = %v, want internal", resp.Error)
	}
	if resp.Error.Message != "replay thread wedged" {
		t.Fatalf("error message = %q", resp.Error.Message)
	}
}

func TestHandleFacadePreconditionError(t *testing.T) {
	r := NewRouter(&stubFacade{status: func() (any, error) {
		return nil, Invalidf("No capture loaded")
	}})
	resp := handle(t, r, "get_capture_status", nil)
	if resp.Error == nil || resp.Error.Code != spool.CodeInvalidParams {
		t.Fatalf("error = %v, want invalid-params for precondition failure", resp.Error)
	}
}

func TestHandleDrawCallsQueryDecoding(t *testing.T) {
	var got DrawCallsQuery
	r := NewRouter(&stubFacade{drawCalls: func(q DrawCallsQuery) (any, error) {
		got = q
		return map[string]any{"actions": []any{}}, nil
	}})

	resp := handle(t, r, "get_draw_calls", map[string]any{
		"include_children": false,
		"marker_filter":    "Shadow",
		"exclude_markers":  []any{"UI", "Debug"},
		"event_id_min":     float64(10),
		"event_id_max":     float64(900),
		"only_actions":     true,
		"flags_filter":     []any{"Drawcall", "Dispatch"},
	})
	if resp.Error != nil {
		t.Fatalf("get_draw_calls error = %v", resp.Error)
	}
	if got.IncludeChildren || !got.OnlyActions {
		t.Fatalf("bool params decoded as %+v", got)
	}
	if got.MarkerFilter != "Shadow" {
		t.Fatalf("MarkerFilter = %q", got.MarkerFilter)
	}
	if len(got.ExcludeMarkers) != 2 || got.ExcludeMarkers[1] != "Debug" {
		t.Fatalf("ExcludeMarkers = %v", got.ExcludeMarkers)
	}
	if got.EventIDMin == nil || *got.EventIDMin != 10 {
		t.Fatalf("EventIDMin = %v", got.EventIDMin)
	}
	if got.EventIDMax == nil || *got.EventIDMax != 900 {
		t.Fatalf("EventIDMax = %v", got.EventIDMax)
	}
	if len(got.FlagsFilter) != 2 || got.FlagsFilter[0] != "Drawcall" {
		t.Fatalf("FlagsFilter = %v", got.FlagsFilter)
	}
}

func TestHandleDrawCallsDefaults(t *testing.T) {
	var got DrawCallsQuery
	r := NewRouter(&stubFacade{drawCalls: func(q DrawCallsQuery) (any, error) {
		got = q
		return map[string]any{"actions": []any{}}, nil
	}})

	resp := handle(t, r, "get_draw_calls", nil)
	if resp.Error != nil {
		t.Fatalf("get_draw_calls error = %v", resp.Error)
	}
	if !got.IncludeChildren {
		t.Fatal("IncludeChildren default is not true")
	}
	if got.EventIDMin != nil || got.EventIDMax != nil {
		t.Fatalf("absent range bounds decoded as %v..%v", got.EventIDMin, got.EventIDMax)
	}
}

func TestHandleOptionalStageAndMaxResults(t *testing.T) {
	var gotStage string
	var gotMax int
	r := NewRouter(&stubFacade{findByShader: func(_, stage string, maxResults int) (any, error) {
		gotStage, gotMax = stage, maxResults
		return map[string]any{"matches": []any{}}, nil
	}})

	handle(t, r, "find_draws_by_shader", map[string]any{"shader_name": "Blur"})
	if gotStage != "" || gotMax != 0 {
		t.Fatalf("defaults: stage=%q max=%d", gotStage, gotMax)
	}

	handle(t, r, "find_draws_by_shader", map[string]any{
		"shader_name": "Blur",
		"stage":       "pixel",
		"max_results": float64(5),
	})
	if gotStage != "pixel" || gotMax != 5 {
		t.Fatalf("explicit: stage=%q max=%d", gotStage, gotMax)
	}
}

func TestHandleTextureDataDepthSlice(t *testing.T) {
	var got TextureDataQuery
	r := NewRouter(&stubFacade{textureData: func(q TextureDataQuery) (any, error) {
		got = q
		return map[string]any{}, nil
	}})

	handle(t, r, "get_texture_data", map[string]any{
		"resource_id": "ResourceId::42",
		"mip":         float64(2),
		"depth_slice": float64(7),
	})
	if got.ResourceID != "ResourceId::42" || got.Mip != 2 {
		t.Fatalf("query = %+v", got)
	}
	if got.DepthSlice == nil || *got.DepthSlice != 7 {
		t.Fatalf("DepthSlice = %v, want 7", got.DepthSlice)
	}
	if got.Sample != 0 || got.Slice != 0 {
		t.Fatalf("defaults: %+v", got)
	}
}

func TestHandleDiagnosticsUnattached(t *testing.T) {
	r := NewRouter(&stubFacade{})
	resp := handle(t, r, "get_bridge_diagnostics", nil)
	if resp.Error != nil {
		t.Fatalf("get_bridge_diagnostics error = %v", resp.Error)
	}
	var result struct {
		Running bool   `json:"running"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if result.Running {
		t.Fatal("unattached diagnostics claims running=true")
	}
	if !strings.Contains(result.Error, "not attached") {
		t.Fatalf("error = %q", result.Error)
	}
}

func TestHandleDiagnosticsForwardsArgs(t *testing.T) {
	r := NewRouter(&stubFacade{})
	var gotInclude bool
	var gotMax int
	r.SetDiagnostics(func(includeRecentErrors bool, maxRecentErrors int) any {
		gotInclude, gotMax = includeRecentErrors, maxRecentErrors
		return map[string]any{"running": true}
	})

	resp := handle(t, r, "get_bridge_diagnostics", map[string]any{
		"include_recent_errors": false,
		"max_recent_errors":     float64(4),
	})
	if resp.Error != nil {
		t.Fatalf("get_bridge_diagnostics error = %v", resp.Error)
	}
	if gotInclude || gotMax != 4 {
		t.Fatalf("forwarded include=%v max=%d, want false 4", gotInclude, gotMax)
	}

	resp = handle(t, r, "get_bridge_diagnostics", nil)
	if resp.Error != nil {
		t.Fatalf("get_bridge_diagnostics error = %v", resp.Error)
	}
	if !gotInclude || gotMax != 16 {
		t.Fatalf("defaults include=%v max=%d, want true 16", gotInclude, gotMax)
	}
}

func TestMethodsCoversSurface(t *testing.T) {
	r := NewRouter(&stubFacade{})
	methods := r.Methods()
	if len(methods) != 19 {
		t.Fatalf("len(Methods()) = %d, want 19", len(methods))
	}
	want := map[string]bool{
		"ping": true, "get_bridge_diagnostics": true, "get_capture_status": true,
		"get_draw_calls": true, "get_frame_summary": true, "find_draws_by_shader": true,
		"find_draws_by_texture": true, "find_draws_by_resource": true,
		"get_draw_call_details": true, "get_action_timings": true, "get_shader_info": true,
		"get_buffer_contents": true, "get_texture_info": true, "get_texture_data": true,
		"get_pipeline_state": true, "get_event_insight": true, "get_frame_digest": true,
		"list_captures": true, "open_capture": true,
	}
	for _, name := range methods {
		if !want[name] {
			t.Fatalf("unexpected method %q", name)
		}
		delete(want, name)
	}
	for name := range want {
		t.Fatalf("missing method %q", name)
	}
}
