package handler

import "context"

// Facade is the full capture-inspection surface the router dispatches to.
// Implementations marshal calls onto whatever replay machinery they wrap.
type Facade interface {
	CaptureService
	ActionService
	SearchService
	ResourceService
	PipelineService
	AnalysisService
}

// CaptureService manages which capture file the debugger has open.
type CaptureService interface {
	CaptureStatus(ctx context.Context) (any, error)
	ListCaptures(ctx context.Context, directory string) (any, error)
	OpenCapture(ctx context.Context, capturePath string) (any, error)
}

// ActionService inspects the action (draw call) tree of the loaded capture.
type ActionService interface {
	DrawCalls(ctx context.Context, q DrawCallsQuery) (any, error)
	FrameSummary(ctx context.Context) (any, error)
	DrawCallDetails(ctx context.Context, eventID int) (any, error)
	ActionTimings(ctx context.Context, q TimingsQuery) (any, error)
}

// SearchService answers reverse lookups from resources back to draws.
type SearchService interface {
	FindDrawsByShader(ctx context.Context, shaderName, stage string, maxResults int) (any, error)
	FindDrawsByTexture(ctx context.Context, textureName string, maxResults int) (any, error)
	FindDrawsByResource(ctx context.Context, resourceID string, maxResults int) (any, error)
}

// ResourceService reads raw texture and buffer data.
type ResourceService interface {
	BufferContents(ctx context.Context, q BufferQuery) (any, error)
	TextureInfo(ctx context.Context, resourceID string) (any, error)
	TextureData(ctx context.Context, q TextureDataQuery) (any, error)
}

// PipelineService exposes bound pipeline and shader state at an event.
type PipelineService interface {
	ShaderInfo(ctx context.Context, eventID int, stage string) (any, error)
	PipelineState(ctx context.Context, eventID int) (any, error)
}

// AnalysisService produces bounded, summary-oriented views of the capture.
type AnalysisService interface {
	EventInsight(ctx context.Context, q EventInsightQuery) (any, error)
	FrameDigest(ctx context.Context, q FrameDigestQuery) (any, error)
}

// DrawCallsQuery filters the action tree listing. Nil range bounds mean
// unbounded.
type DrawCallsQuery struct {
	IncludeChildren bool
	MarkerFilter    string
	ExcludeMarkers  []string
	EventIDMin      *int
	EventIDMax      *int
	OnlyActions     bool
	FlagsFilter     []string
}

// TimingsQuery selects which actions to collect GPU timings for. A nil
// EventIDs slice means all actions.
type TimingsQuery struct {
	EventIDs       []int
	MarkerFilter   string
	ExcludeMarkers []string
	TopN           int
}

// BufferQuery addresses a byte range of a buffer resource. Length zero
// reads to the end. A nil EventID reads at the current frame event.
type BufferQuery struct {
	ResourceID string
	Offset     int
	Length     int
	EventID    *int
}

// TextureDataQuery addresses one subresource of a texture. A nil
// DepthSlice returns the full volume of a 3D texture.
type TextureDataQuery struct {
	ResourceID string
	Mip        int
	Slice      int
	Sample     int
	DepthSlice *int
	EventID    *int
}

// EventInsightQuery bounds the size of a single-event analysis snapshot.
type EventInsightQuery struct {
	EventID                  int
	IncludeShaderDisassembly bool
	IncludeShaderConstants   bool
	MaxResourcesPerStage     int
	MaxCbufferVariables      int
	DisassemblyCharLimit     int
}

// FrameDigestQuery bounds the size of a frame-level digest.
type FrameDigestQuery struct {
	MaxHotspots          int
	MaxMarkers           int
	MarkerFilter         string
	EventIDMin           *int
	EventIDMax           *int
	IncludeEventInsights bool
	EventInsightBudget   int
	MaxResourcesPerStage int
}
