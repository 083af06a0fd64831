// Package tools declares the MCP tool surface and forwards each call over
// the file bridge to the capture host.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/elliotttate/RenderDocMCP/internal/bridge"
)

// Bridge is the transport the tool handlers call through. *bridge.Client
// implements it.
type Bridge interface {
	Call(ctx context.Context, method string, params map[string]any) (json.RawMessage, error)
	Diagnostics(ctx context.Context, opts bridge.DiagnosticsOptions) (json.RawMessage, error)
}

type serverTool struct {
	tool    mcp.Tool
	handler server.ToolHandlerFunc
}

// Register adds every bridge tool to the MCP server.
func Register(s *server.MCPServer, b Bridge) {
	for _, st := range definitions(b) {
		s.AddTool(st.tool, st.handler)
	}
}

// forward performs the bridge call and renders the result. Bridge failures
// become tool errors rather than protocol errors so the caller sees the
// bridge's message verbatim.
func forward(ctx context.Context, b Bridge, method string, params map[string]any) (*mcp.CallToolResult, error) {
	raw, err := b.Call(ctx, method, params)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return structured(raw)
}

func structured(raw json.RawMessage) (*mcp.CallToolResult, error) {
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decoding bridge result: %w", err)
	}
	return mcp.NewToolResultStructuredOnly(payload), nil
}

// passThrough copies arguments the caller actually supplied. Absent and
// explicit-null arguments stay off the wire so the host applies its own
// defaults.
func passThrough(args, params map[string]any, keys ...string) {
	for _, key := range keys {
		if value, ok := args[key]; ok && value != nil {
			params[key] = value
		}
	}
}

func noArgs(b Bridge, method string) server.ToolHandlerFunc {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return forward(ctx, b, method, nil)
	}
}

func definitions(b Bridge) []serverTool {
	return []serverTool{
		{
			tool: mcp.Tool{
				Name:        "ping",
				Description: "Check that the capture bridge transport is alive and responding.",
				InputSchema: objectSchema(map[string]any{}),
			},
			handler: noArgs(b, "ping"),
		},
		{
			tool: mcp.Tool{
				Name:        "get_bridge_diagnostics",
				Description: "Get bridge transport diagnostics for drop/timeout triage: queue health, in-flight request state, heartbeat age, and recent bridge errors. Falls back to the last persisted snapshot when the bridge is unreachable.",
				InputSchema: objectSchema(map[string]any{
					"include_recent_errors": propDefault("boolean", "Include the recent error ring", true),
					"max_recent_errors":     propDefault("integer", "Cap on returned recent errors", 16),
				}),
			},
			handler: func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				opts := bridge.DiagnosticsOptions{
					IncludeRecentErrors: request.GetBool("include_recent_errors", true),
					MaxRecentErrors:     request.GetInt("max_recent_errors", 16),
				}
				raw, err := b.Diagnostics(ctx, opts)
				if err != nil {
					return mcp.NewToolResultError(err.Error()), nil
				}
				return structured(raw)
			},
		},
		{
			tool: mcp.Tool{
				Name:        "get_capture_status",
				Description: "Check if a capture is currently loaded, returning the capture path and API type if so.",
				InputSchema: objectSchema(map[string]any{}),
			},
			handler: noArgs(b, "get_capture_status"),
		},
		{
			tool: mcp.Tool{
				Name:        "get_draw_calls",
				Description: "Get the hierarchical tree of draw calls and actions in the current capture, including markers, dispatches, and other GPU events.",
				InputSchema: objectSchema(map[string]any{
					"include_children": propDefault("boolean", "Include child actions in the hierarchy", true),
					"marker_filter":    prop("string", "Only include actions under markers containing this string (partial match)"),
					"exclude_markers":  arrayProp("string", "Exclude actions under markers containing these strings"),
					"event_id_min":     prop("integer", "Only include actions with event_id >= this value"),
					"event_id_max":     prop("integer", "Only include actions with event_id <= this value"),
					"only_actions":     propDefault("boolean", "Exclude marker actions (PushMarker/PopMarker/SetMarker)", false),
					"flags_filter":     arrayProp("string", `Only include actions with these flags, e.g. ["Drawcall", "Dispatch"]`),
				}),
			},
			handler: func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				args := request.GetArguments()
				params := map[string]any{
					"include_children": request.GetBool("include_children", true),
				}
				passThrough(args, params, "marker_filter", "exclude_markers", "event_id_min", "event_id_max", "flags_filter")
				if request.GetBool("only_actions", false) {
					params["only_actions"] = true
				}
				return forward(ctx, b, "get_draw_calls", params)
			},
		},
		{
			tool: mcp.Tool{
				Name:        "get_frame_summary",
				Description: "Get a summary of the current frame: API type, action counts, draw/dispatch/clear/copy statistics, top-level markers, and resource counts.",
				InputSchema: objectSchema(map[string]any{}),
			},
			handler: noArgs(b, "get_frame_summary"),
		},
		{
			tool: mcp.Tool{
				Name:        "find_draws_by_shader",
				Description: "Find draw calls using a shader whose name or entry point contains the given string.",
				InputSchema: objectSchema(map[string]any{
					"shader_name": prop("string", "Partial name to search for in shader names or entry points"),
					"stage":       stageProp("Shader stage to search; all stages when omitted"),
					"max_results": propDefault("integer", "Stop after this many matches, 0 for unlimited", 0),
				}, "shader_name"),
			},
			handler: func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				shaderName, err := request.RequireString("shader_name")
				if err != nil {
					return nil, err
				}
				params := map[string]any{"shader_name": shaderName}
				passThrough(request.GetArguments(), params, "stage")
				if n := request.GetInt("max_results", 0); n > 0 {
					params["max_results"] = n
				}
				return forward(ctx, b, "find_draws_by_shader", params)
			},
		},
		{
			tool: mcp.Tool{
				Name:        "find_draws_by_texture",
				Description: "Find draw calls using a texture whose resource name contains the given string. Searches SRVs, UAVs, and render targets.",
				InputSchema: objectSchema(map[string]any{
					"texture_name": prop("string", "Partial name to search for in texture resource names"),
					"max_results":  propDefault("integer", "Stop after this many matches, 0 for unlimited", 0),
				}, "texture_name"),
			},
			handler: func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				textureName, err := request.RequireString("texture_name")
				if err != nil {
					return nil, err
				}
				params := map[string]any{"texture_name": textureName}
				if n := request.GetInt("max_results", 0); n > 0 {
					params["max_results"] = n
				}
				return forward(ctx, b, "find_draws_by_texture", params)
			},
		},
		{
			tool: mcp.Tool{
				Name:        "find_draws_by_resource",
				Description: "Find draw calls using a specific resource ID (exact match). Searches shaders, SRVs, UAVs, render targets, and depth targets.",
				InputSchema: objectSchema(map[string]any{
					"resource_id": prop("string", `Resource ID to search for, e.g. "ResourceId::12345" or "12345"`),
					"max_results": propDefault("integer", "Stop after this many matches, 0 for unlimited", 0),
				}, "resource_id"),
			},
			handler: func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				resourceID, err := request.RequireString("resource_id")
				if err != nil {
					return nil, err
				}
				params := map[string]any{"resource_id": resourceID}
				if n := request.GetInt("max_results", 0); n > 0 {
					params["max_results"] = n
				}
				return forward(ctx, b, "find_draws_by_resource", params)
			},
		},
		{
			tool: mcp.Tool{
				Name:        "get_draw_call_details",
				Description: "Get detailed information about a draw call: vertex/index counts, resource outputs, and other metadata.",
				InputSchema: objectSchema(map[string]any{
					"event_id": prop("integer", "Event ID of the draw call to inspect"),
				}, "event_id"),
			},
			handler: func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				eventID, err := request.RequireInt("event_id")
				if err != nil {
					return nil, err
				}
				return forward(ctx, b, "get_draw_call_details", map[string]any{"event_id": eventID})
			},
		},
		{
			tool: mcp.Tool{
				Name:        "get_action_timings",
				Description: "Get GPU timing data for actions. Reports whether timing counters are available, per-action durations, and totals. Counters may be unsupported on some hardware.",
				InputSchema: objectSchema(map[string]any{
					"event_ids":       arrayProp("integer", "Specific event IDs to time; all actions when omitted"),
					"marker_filter":   prop("string", "Only include actions under markers containing this string (partial match)"),
					"exclude_markers": arrayProp("string", "Exclude actions under markers containing these strings"),
					"top_n":           propDefault("integer", "Return only the N slowest actions, 0 for all", 0),
				}),
			},
			handler: func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				params := map[string]any{}
				passThrough(request.GetArguments(), params, "event_ids", "marker_filter", "exclude_markers")
				if n := request.GetInt("top_n", 0); n > 0 {
					params["top_n"] = n
				}
				return forward(ctx, b, "get_action_timings", params)
			},
		},
		{
			tool: mcp.Tool{
				Name:        "get_shader_info",
				Description: "Get shader disassembly, constant buffer values, and resource bindings for one stage at a given event.",
				InputSchema: objectSchema(map[string]any{
					"event_id": prop("integer", "Event ID to inspect the shader at"),
					"stage":    stageProp("Shader stage to inspect"),
				}, "event_id", "stage"),
			},
			handler: func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				eventID, err := request.RequireInt("event_id")
				if err != nil {
					return nil, err
				}
				stage, err := request.RequireString("stage")
				if err != nil {
					return nil, err
				}
				return forward(ctx, b, "get_shader_info", map[string]any{"event_id": eventID, "stage": stage})
			},
		},
		{
			tool: mcp.Tool{
				Name:        "get_buffer_contents",
				Description: "Read the contents of a buffer resource as base64-encoded bytes with metadata.",
				InputSchema: objectSchema(map[string]any{
					"resource_id": prop("string", "Resource ID of the buffer to read"),
					"offset":      propDefault("integer", "Byte offset to start reading from", 0),
					"length":      propDefault("integer", "Number of bytes to read, 0 for the entire buffer", 0),
					"event_id":    prop("integer", "Read buffer state as of this event"),
				}, "resource_id"),
			},
			handler: func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				resourceID, err := request.RequireString("resource_id")
				if err != nil {
					return nil, err
				}
				params := map[string]any{
					"resource_id": resourceID,
					"offset":      request.GetInt("offset", 0),
					"length":      request.GetInt("length", 0),
				}
				passThrough(request.GetArguments(), params, "event_id")
				return forward(ctx, b, "get_buffer_contents", params)
			},
		},
		{
			tool: mcp.Tool{
				Name:        "get_texture_info",
				Description: "Get texture metadata: dimensions, format, mip levels, and other properties.",
				InputSchema: objectSchema(map[string]any{
					"resource_id": prop("string", "Resource ID of the texture"),
				}, "resource_id"),
			},
			handler: func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				resourceID, err := request.RequireString("resource_id")
				if err != nil {
					return nil, err
				}
				return forward(ctx, b, "get_texture_info", map[string]any{"resource_id": resourceID})
			},
		},
		{
			tool: mcp.Tool{
				Name:        "get_texture_data",
				Description: "Read texture pixel data as base64-encoded bytes with dimensions at the requested mip level and format information.",
				InputSchema: objectSchema(map[string]any{
					"resource_id": prop("string", "Resource ID of the texture to read"),
					"mip":         propDefault("integer", "Mip level to retrieve", 0),
					"slice":       propDefault("integer", "Array slice or cube face index (cube faces: 0=X+, 1=X-, 2=Y+, 3=Y-, 4=Z+, 5=Z-)", 0),
					"sample":      propDefault("integer", "MSAA sample index", 0),
					"depth_slice": prop("integer", "For 3D textures, extract this depth slice instead of the full volume"),
					"event_id":    prop("integer", "Read texture state as of this event"),
				}, "resource_id"),
			},
			handler: func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				resourceID, err := request.RequireString("resource_id")
				if err != nil {
					return nil, err
				}
				params := map[string]any{
					"resource_id": resourceID,
					"mip":         request.GetInt("mip", 0),
					"slice":       request.GetInt("slice", 0),
					"sample":      request.GetInt("sample", 0),
				}
				passThrough(request.GetArguments(), params, "depth_slice", "event_id")
				return forward(ctx, b, "get_texture_data", params)
			},
		},
		{
			tool: mcp.Tool{
				Name:        "get_pipeline_state",
				Description: "Get the full graphics pipeline state at an event: bound shaders, SRVs, UAVs, samplers, constant buffers, render targets, viewports, and input assembly.",
				InputSchema: objectSchema(map[string]any{
					"event_id": prop("integer", "Event ID to get pipeline state at"),
				}, "event_id"),
			},
			handler: func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				eventID, err := request.RequireInt("event_id")
				if err != nil {
					return nil, err
				}
				return forward(ctx, b, "get_pipeline_state", map[string]any{"event_id": eventID})
			},
		},
		{
			tool: mcp.Tool{
				Name:        "get_event_insight",
				Description: "Get a compact analysis snapshot for one event: action metadata, marker context, input assembly, render targets, bounded per-stage resource previews, heuristics, and recommended follow-up calls.",
				InputSchema: objectSchema(map[string]any{
					"event_id":                   prop("integer", "Event ID to inspect"),
					"include_shader_disassembly": propDefault("boolean", "Include shader disassembly text", false),
					"include_shader_constants":   propDefault("boolean", "Include constant buffer values", false),
					"max_resources_per_stage":    propDefault("integer", "Preview cap for SRVs/UAVs/samplers/cbuffers", 8),
					"max_cbuffer_variables":      propDefault("integer", "Preview cap for cbuffer variables", 24),
					"disassembly_char_limit":     propDefault("integer", "Max disassembly characters per stage", 24000),
				}, "event_id"),
			},
			handler: func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				eventID, err := request.RequireInt("event_id")
				if err != nil {
					return nil, err
				}
				params := map[string]any{
					"event_id":                   eventID,
					"include_shader_disassembly": request.GetBool("include_shader_disassembly", false),
					"include_shader_constants":   request.GetBool("include_shader_constants", false),
					"max_resources_per_stage":    request.GetInt("max_resources_per_stage", 8),
					"max_cbuffer_variables":      request.GetInt("max_cbuffer_variables", 24),
					"disassembly_char_limit":     request.GetInt("disassembly_char_limit", 24000),
				}
				return forward(ctx, b, "get_event_insight", params)
			},
		},
		{
			tool: mcp.Tool{
				Name:        "get_frame_digest",
				Description: "Get a compact frame-level digest for triage: statistics, timing hotspots, marker summaries, anomalies, and high-priority next calls in one bounded response.",
				InputSchema: objectSchema(map[string]any{
					"max_hotspots":            propDefault("integer", "Cap on timing hotspots", 12),
					"max_markers":             propDefault("integer", "Cap on marker summaries", 12),
					"marker_filter":           prop("string", "Only include actions under markers containing this string (partial match)"),
					"event_id_min":            prop("integer", "Only include actions with event_id >= this value"),
					"event_id_max":            prop("integer", "Only include actions with event_id <= this value"),
					"include_event_insights":  propDefault("boolean", "Embed event insights for the top hotspots", false),
					"event_insight_budget":    propDefault("integer", "How many hotspot insights to embed", 3),
					"max_resources_per_stage": propDefault("integer", "Preview cap inside embedded insights", 8),
				}),
			},
			handler: func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				params := map[string]any{
					"max_hotspots":            request.GetInt("max_hotspots", 12),
					"max_markers":             request.GetInt("max_markers", 12),
					"include_event_insights":  request.GetBool("include_event_insights", false),
					"event_insight_budget":    request.GetInt("event_insight_budget", 3),
					"max_resources_per_stage": request.GetInt("max_resources_per_stage", 8),
				}
				passThrough(request.GetArguments(), params, "marker_filter", "event_id_min", "event_id_max")
				return forward(ctx, b, "get_frame_digest", params)
			},
		},
		{
			tool: mcp.Tool{
				Name:        "list_captures",
				Description: "List RenderDoc capture files (.rdc) in a directory with filename, path, size, and modified time.",
				InputSchema: objectSchema(map[string]any{
					"directory": prop("string", "Directory path to search for capture files"),
				}, "directory"),
			},
			handler: func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				directory, err := request.RequireString("directory")
				if err != nil {
					return nil, err
				}
				return forward(ctx, b, "list_captures", map[string]any{"directory": directory})
			},
		},
		{
			tool: mcp.Tool{
				Name:        "open_capture",
				Description: "Open a RenderDoc capture file (.rdc), closing any currently open capture. Disabled on the host unless RENDERDOC_MCP_ENABLE_OPEN_CAPTURE=1 is set in the RenderDoc process.",
				InputSchema: objectSchema(map[string]any{
					"capture_path": prop("string", "Full path to the capture file to open"),
				}, "capture_path"),
			},
			handler: func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				capturePath, err := request.RequireString("capture_path")
				if err != nil {
					return nil, err
				}
				return forward(ctx, b, "open_capture", map[string]any{"capture_path": capturePath})
			},
		},
	}
}
