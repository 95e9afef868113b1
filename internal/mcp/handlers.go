package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/quarry-search/quarry/internal/jobs"
	"github.com/quarry-search/quarry/internal/search"
)

func (s *Server) handleSearchDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: query"), nil
	}
	limit := request.GetInt("limit", 10)
	if limit <= 0 {
		limit = 10
	}

	results, _, err := s.engine.Search(ctx, query, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	if len(results) == 0 {
		return mcp.NewToolResultText("No matching documents found."), nil
	}
	return mcp.NewToolResultText(formatResults(results)), nil
}

func (s *Server) handleGetDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("document_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: document_id"), nil
	}

	doc, err := s.documents.GetByID(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("loading document: %v", err)), nil
	}
	if doc == nil {
		return mcp.NewToolResultError("document not found: " + id), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", doc.Title)
	fmt.Fprintf(&sb, "File: %s (%s)\n\n", doc.FileName, doc.FileType)
	sb.WriteString(doc.RawText)
	return mcp.NewToolResultText(sb.String()), nil
}

func (s *Server) handleRunJob(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobType, err := request.RequireString("type")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: type"), nil
	}

	job, err := s.scheduler.Enqueue(ctx, jobs.Type(jobType), "mcp", nil)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("starting job: %v", err)), nil
	}
	if job.Status == jobs.StatusSkipped {
		return mcp.NewToolResultText(fmt.Sprintf("A %s job is already running; this request was skipped (job %s).", jobType, job.ID)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Started %s job %s.", jobType, job.ID)), nil
}

func (s *Server) handleJobStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("job_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: job_id"), nil
	}

	job, err := s.jobStore.Get(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("loading job: %v", err)), nil
	}
	if job == nil {
		return mcp.NewToolResultError("job not found: " + id), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Job %s (%s): %s\n", job.ID, job.Type, job.Status)
	if job.TotalItems > 0 {
		fmt.Fprintf(&sb, "Progress: %d/%d (%d%%)\n", job.ProcessedItems, job.TotalItems, job.Progress)
	}
	if job.ErrorMessage != "" {
		fmt.Fprintf(&sb, "Error: %s\n", job.ErrorMessage)
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func formatResults(results []search.Result) string {
	var sb strings.Builder
	for i, r := range results {
		fmt.Fprintf(&sb, "## %d. %s (document %s)\n", i+1, r.DocumentName, r.DocumentID)
		fmt.Fprintf(&sb, "Score: %.4f\n\n", r.RRFScore)
		sb.WriteString(strings.TrimSpace(r.Content))
		sb.WriteString("\n\n")
	}
	return sb.String()
}
