// renderdoc-mcp serves the RenderDoc capture tools over MCP stdio,
// forwarding every tool call through the file bridge to the debugger-side
// extension. Stdout carries the MCP stream; logs go to stderr.
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/elliotttate/RenderDocMCP/internal/bridge"
	"github.com/elliotttate/RenderDocMCP/internal/config"
	"github.com/elliotttate/RenderDocMCP/internal/logging"
	"github.com/elliotttate/RenderDocMCP/internal/tools"
)

const serverVersion = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "renderdoc-mcp: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(os.Stderr, cfg.LogLevel)
	client := bridge.New(cfg, logger)

	s := server.NewMCPServer("RenderDoc MCP Server", serverVersion)
	tools.Register(s, client)

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "renderdoc-mcp: %v\n", err)
		os.Exit(1)
	}
}
