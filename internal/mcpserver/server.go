package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates an MCP server exposing the analyst tools.
func NewMCPServer(cfg Config, version string) *server.MCPServer {
	s := server.NewMCPServer("txsentinel", version)
	h := NewHandlers(NewClient(cfg))

	s.AddTool(ToolSubmitTransaction, h.HandleSubmitTransaction)
	s.AddTool(ToolGetTransaction, h.HandleGetTransaction)
	s.AddTool(ToolGetSenderHistory, h.HandleGetSenderHistory)
	s.AddTool(ToolGetSenderFeatures, h.HandleGetSenderFeatures)
	s.AddTool(ToolListRecentFeatures, h.HandleListRecentFeatures)
	s.AddTool(ToolGetStats, h.HandleGetStats)
	s.AddTool(ToolModelInfo, h.HandleModelInfo)
	s.AddTool(ToolRecentAlerts, h.HandleRecentAlerts)
	s.AddTool(ToolFlaggedTransactions, h.HandleFlaggedTransactions)
	s.AddTool(ToolReviewTransaction, h.HandleReviewTransaction)

	return s
}
