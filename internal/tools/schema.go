package tools

import "github.com/mark3labs/mcp-go/mcp"

var shaderStages = []string{"vertex", "hull", "domain", "geometry", "pixel", "compute"}

func objectSchema(props map[string]any, required ...string) mcp.ToolInputSchema {
	return mcp.ToolInputSchema{
		Type:       "object",
		Properties: props,
		Required:   required,
	}
}

func prop(typ, desc string) map[string]any {
	return map[string]any{"type": typ, "description": desc}
}

func propDefault(typ, desc string, def any) map[string]any {
	p := prop(typ, desc)
	p["default"] = def
	return p
}

func arrayProp(itemType, desc string) map[string]any {
	return map[string]any{
		"type":        "array",
		"items":       map[string]any{"type": itemType},
		"description": desc,
	}
}

func stageProp(desc string) map[string]any {
	return map[string]any{
		"type":        "string",
		"enum":        shaderStages,
		"description": desc,
	}
}
