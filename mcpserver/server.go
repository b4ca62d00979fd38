// Package mcpserver exposes the hub to local AI agents over MCP stdio.
// Tools map one-to-one onto capability provider operations.
package mcpserver

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/hubcast/hubcast/hub"
)

type Server struct {
	mcpServer *server.MCPServer
	provider  hub.Provider
}

func NewServer(provider hub.Provider) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer("hubcast", "1.0.0"),
		provider:  provider,
	}
	s.registerTools()
	return s
}

// Run serves MCP over stdio until the client disconnects.
func (s *Server) Run() error {
	slog.Info("Started stdio MCP server")
	defer func() {
		slog.Info("Shut down stdio MCP server")
	}()
	return server.ServeStdio(s.mcpServer)
}
