package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all fraudgate tools registered.
func NewMCPServer(cfg Config, version string) (*server.MCPServer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := server.NewMCPServer("fraudgate", version)
	h := NewHandlers(NewClient(cfg))

	s.AddTool(ToolScoreTransaction, h.HandleScoreTransaction)
	s.AddTool(ToolGetModelInfo, h.HandleGetModelInfo)

	return s, nil
}
