package handler

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/elliotttate/RenderDocMCP/internal/spool"
)

// Handler turns a request into the response the server writes back. It
// never returns an error: every failure mode becomes an error response.
type Handler interface {
	Handle(ctx context.Context, req *spool.Request) *spool.Response
}

// DiagnosticsFunc reports the serving process's own runtime state. The
// server attaches one after construction so the router can answer
// get_bridge_diagnostics without a dependency cycle.
type DiagnosticsFunc func(includeRecentErrors bool, maxRecentErrors int) any

type methodFunc func(ctx context.Context, params map[string]any) (any, error)

// Router dispatches requests over a method table fixed at construction.
// Unknown methods are rejected rather than probed.
type Router struct {
	methods map[string]methodFunc

	mu   sync.RWMutex
	diag DiagnosticsFunc
}

func NewRouter(facade Facade) *Router {
	r := &Router{}
	r.methods = map[string]methodFunc{
		"ping":                   handlePing,
		"get_bridge_diagnostics": r.handleDiagnostics,
		"get_capture_status": func(ctx context.Context, _ map[string]any) (any, error) {
			return facade.CaptureStatus(ctx)
		},
		"get_draw_calls": func(ctx context.Context, params map[string]any) (any, error) {
			q, err := drawCallsQuery(params)
			if err != nil {
				return nil, err
			}
			return facade.DrawCalls(ctx, q)
		},
		"get_frame_summary": func(ctx context.Context, _ map[string]any) (any, error) {
			return facade.FrameSummary(ctx)
		},
		"find_draws_by_shader": func(ctx context.Context, params map[string]any) (any, error) {
			name, err := stringArg(params, "shader_name")
			if err != nil {
				return nil, err
			}
			stage, err := optString(params, "stage")
			if err != nil {
				return nil, err
			}
			maxResults, err := optInt(params, "max_results", 0)
			if err != nil {
				return nil, err
			}
			return facade.FindDrawsByShader(ctx, name, stage, maxResults)
		},
		"find_draws_by_texture": func(ctx context.Context, params map[string]any) (any, error) {
			name, err := stringArg(params, "texture_name")
			if err != nil {
				return nil, err
			}
			maxResults, err := optInt(params, "max_results", 0)
			if err != nil {
				return nil, err
			}
			return facade.FindDrawsByTexture(ctx, name, maxResults)
		},
		"find_draws_by_resource": func(ctx context.Context, params map[string]any) (any, error) {
			id, err := stringArg(params, "resource_id")
			if err != nil {
				return nil, err
			}
			maxResults, err := optInt(params, "max_results", 0)
			if err != nil {
				return nil, err
			}
			return facade.FindDrawsByResource(ctx, id, maxResults)
		},
		"get_draw_call_details": func(ctx context.Context, params map[string]any) (any, error) {
			eventID, err := intArg(params, "event_id")
			if err != nil {
				return nil, err
			}
			return facade.DrawCallDetails(ctx, eventID)
		},
		"get_action_timings": func(ctx context.Context, params map[string]any) (any, error) {
			q, err := timingsQuery(params)
			if err != nil {
				return nil, err
			}
			return facade.ActionTimings(ctx, q)
		},
		"get_shader_info": func(ctx context.Context, params map[string]any) (any, error) {
			eventID, err := intArg(params, "event_id")
			if err != nil {
				return nil, err
			}
			stage, err := stringArg(params, "stage")
			if err != nil {
				return nil, err
			}
			return facade.ShaderInfo(ctx, eventID, stage)
		},
		"get_buffer_contents": func(ctx context.Context, params map[string]any) (any, error) {
			q, err := bufferQuery(params)
			if err != nil {
				return nil, err
			}
			return facade.BufferContents(ctx, q)
		},
		"get_texture_info": func(ctx context.Context, params map[string]any) (any, error) {
			id, err := stringArg(params, "resource_id")
			if err != nil {
				return nil, err
			}
			return facade.TextureInfo(ctx, id)
		},
		"get_texture_data": func(ctx context.Context, params map[string]any) (any, error) {
			q, err := textureDataQuery(params)
			if err != nil {
				return nil, err
			}
			return facade.TextureData(ctx, q)
		},
		"get_pipeline_state": func(ctx context.Context, params map[string]any) (any, error) {
			eventID, err := intArg(params, "event_id")
			if err != nil {
				return nil, err
			}
			return facade.PipelineState(ctx, eventID)
		},
		"get_event_insight": func(ctx context.Context, params map[string]any) (any, error) {
			q, err := eventInsightQuery(params)
			if err != nil {
				return nil, err
			}
			return facade.EventInsight(ctx, q)
		},
		"get_frame_digest": func(ctx context.Context, params map[string]any) (any, error) {
			q, err := frameDigestQuery(params)
			if err != nil {
				return nil, err
			}
			return facade.FrameDigest(ctx, q)
		},
		"list_captures": func(ctx context.Context, params map[string]any) (any, error) {
			directory, err := stringArg(params, "directory")
			if err != nil {
				return nil, err
			}
			return facade.ListCaptures(ctx, directory)
		},
		"open_capture": func(ctx context.Context, params map[string]any) (any, error) {
			path, err := stringArg(params, "capture_path")
			if err != nil {
				return nil, err
			}
			return facade.OpenCapture(ctx, path)
		},
	}
	return r
}

// SetDiagnostics attaches the serving process's diagnostics source.
func (r *Router) SetDiagnostics(fn DiagnosticsFunc) {
	r.mu.Lock()
	r.diag = fn
	r.mu.Unlock()
}

// Methods lists the dispatchable method names in sorted order.
func (r *Router) Methods() []string {
	names := make([]string, 0, len(r.methods))
	for name := range r.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Router) Handle(ctx context.Context, req *spool.Request) *spool.Response {
	fn, ok := r.methods[req.Method]
	if !ok {
		return spool.NewError(req.ID, spool.CodeMethodNotFound, "Method not found: "+req.Method)
	}
	result, err := fn(ctx, req.Params)
	if err != nil {
		code := spool.CodeInternal
		var argErr *invalidArgError
		if errors.As(err, &argErr) {
			code = spool.CodeInvalidParams
		}
		return spool.NewError(req.ID, code, err.Error())
	}
	resp, err := spool.NewResult(req.ID, result)
	if err != nil {
		return spool.NewError(req.ID, spool.CodeInternal, "encoding result: "+err.Error())
	}
	return resp
}

func handlePing(context.Context, map[string]any) (any, error) {
	return map[string]any{"status": "ok", "message": "pong"}, nil
}

func (r *Router) handleDiagnostics(_ context.Context, params map[string]any) (any, error) {
	includeRecent, err := optBool(params, "include_recent_errors", true)
	if err != nil {
		return nil, err
	}
	maxRecent, err := optInt(params, "max_recent_errors", 16)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	diag := r.diag
	r.mu.RUnlock()
	if diag == nil {
		return map[string]any{
			"schema_version": "bridge_diagnostics.v1",
			"running":        false,
			"error":          "bridge server handle not attached",
		}, nil
	}
	return diag(includeRecent, maxRecent), nil
}

func drawCallsQuery(params map[string]any) (DrawCallsQuery, error) {
	var q DrawCallsQuery
	var err error
	if q.IncludeChildren, err = optBool(params, "include_children", true); err != nil {
		return q, err
	}
	if q.MarkerFilter, err = optString(params, "marker_filter"); err != nil {
		return q, err
	}
	if q.ExcludeMarkers, err = optStrings(params, "exclude_markers"); err != nil {
		return q, err
	}
	if q.EventIDMin, err = optIntPtr(params, "event_id_min"); err != nil {
		return q, err
	}
	if q.EventIDMax, err = optIntPtr(params, "event_id_max"); err != nil {
		return q, err
	}
	if q.OnlyActions, err = optBool(params, "only_actions", false); err != nil {
		return q, err
	}
	if q.FlagsFilter, err = optStrings(params, "flags_filter"); err != nil {
		return q, err
	}
	return q, nil
}

func timingsQuery(params map[string]any) (TimingsQuery, error) {
	var q TimingsQuery
	var err error
	if q.EventIDs, err = optInts(params, "event_ids"); err != nil {
		return q, err
	}
	if q.MarkerFilter, err = optString(params, "marker_filter"); err != nil {
		return q, err
	}
	if q.ExcludeMarkers, err = optStrings(params, "exclude_markers"); err != nil {
		return q, err
	}
	if q.TopN, err = optInt(params, "top_n", 0); err != nil {
		return q, err
	}
	return q, nil
}

func bufferQuery(params map[string]any) (BufferQuery, error) {
	var q BufferQuery
	var err error
	if q.ResourceID, err = stringArg(params, "resource_id"); err != nil {
		return q, err
	}
	if q.Offset, err = optInt(params, "offset", 0); err != nil {
		return q, err
	}
	if q.Length, err = optInt(params, "length", 0); err != nil {
		return q, err
	}
	if q.EventID, err = optIntPtr(params, "event_id"); err != nil {
		return q, err
	}
	return q, nil
}

func textureDataQuery(params map[string]any) (TextureDataQuery, error) {
	var q TextureDataQuery
	var err error
	if q.ResourceID, err = stringArg(params, "resource_id"); err != nil {
		return q, err
	}
	if q.Mip, err = optInt(params, "mip", 0); err != nil {
		return q, err
	}
	if q.Slice, err = optInt(params, "slice", 0); err != nil {
		return q, err
	}
	if q.Sample, err = optInt(params, "sample", 0); err != nil {
		return q, err
	}
	if q.DepthSlice, err = optIntPtr(params, "depth_slice"); err != nil {
		return q, err
	}
	if q.EventID, err = optIntPtr(params, "event_id"); err != nil {
		return q, err
	}
	return q, nil
}

func eventInsightQuery(params map[string]any) (EventInsightQuery, error) {
	var q EventInsightQuery
	var err error
	if q.EventID, err = intArg(params, "event_id"); err != nil {
		return q, err
	}
	if q.IncludeShaderDisassembly, err = optBool(params, "include_shader_disassembly", false); err != nil {
		return q, err
	}
	if q.IncludeShaderConstants, err = optBool(params, "include_shader_constants", false); err != nil {
		return q, err
	}
	if q.MaxResourcesPerStage, err = optInt(params, "max_resources_per_stage", 8); err != nil {
		return q, err
	}
	if q.MaxCbufferVariables, err = optInt(params, "max_cbuffer_variables", 24); err != nil {
		return q, err
	}
	if q.DisassemblyCharLimit, err = optInt(params, "disassembly_char_limit", 24000); err != nil {
		return q, err
	}
	return q, nil
}

func frameDigestQuery(params map[string]any) (FrameDigestQuery, error) {
	var q FrameDigestQuery
	var err error
	if q.MaxHotspots, err = optInt(params, "max_hotspots", 12); err != nil {
		return q, err
	}
	if q.MaxMarkers, err = optInt(params, "max_markers", 12); err != nil {
		return q, err
	}
	if q.MarkerFilter, err = optString(params, "marker_filter"); err != nil {
		return q, err
	}
	if q.EventIDMin, err = optIntPtr(params, "event_id_min"); err != nil {
		return q, err
	}
	if q.EventIDMax, err = optIntPtr(params, "event_id_max"); err != nil {
		return q, err
	}
	if q.IncludeEventInsights, err = optBool(params, "include_event_insights", false); err != nil {
		return q, err
	}
	if q.EventInsightBudget, err = optInt(params, "event_insight_budget", 3); err != nil {
		return q, err
	}
	if q.MaxResourcesPerStage, err = optInt(params, "max_resources_per_stage", 8); err != nil {
		return q, err
	}
	return q, nil
}
