package mcp

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/quarry-search/quarry/internal/document"
	"github.com/quarry-search/quarry/internal/jobs"
	"github.com/quarry-search/quarry/internal/search"
)

// Version is set via ldflags at build time.
var Version = "dev"

// Server wraps an MCP server exposing document search and job control
// tools over stdio.
type Server struct {
	engine    *search.Engine
	documents *document.Store
	scheduler *jobs.Scheduler
	jobStore  *jobs.Store
	mcp       *server.MCPServer
}

// NewServer creates an MCP server with the given dependencies.
func NewServer(engine *search.Engine, documents *document.Store, scheduler *jobs.Scheduler, jobStore *jobs.Store) *Server {
	s := &Server{
		engine:    engine,
		documents: documents,
		scheduler: scheduler,
		jobStore:  jobStore,
	}

	s.mcp = server.NewMCPServer(
		"quarry",
		Version,
		server.WithToolCapabilities(false),
	)

	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	s.mcp.AddTool(searchDocumentsTool, s.handleSearchDocuments)
	s.mcp.AddTool(getDocumentTool, s.handleGetDocument)
	s.mcp.AddTool(runJobTool, s.handleRunJob)
	s.mcp.AddTool(jobStatusTool, s.handleJobStatus)
}

// Serve starts the MCP server on stdio. Stdout carries MCP protocol
// messages; all logging must go to stderr.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}
