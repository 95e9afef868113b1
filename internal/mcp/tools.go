package mcp

import "github.com/mark3labs/mcp-go/mcp"

// searchDocumentsTool defines the search_documents MCP tool.
var searchDocumentsTool = mcp.NewTool("search_documents",
	mcp.WithDescription("Search the indexed documents with hybrid vector and keyword retrieval. Returns the most relevant chunks with their source documents."),
	mcp.WithString("query",
		mcp.Required(),
		mcp.Description("Natural language search query"),
	),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of results to return (default 10)"),
	),
)

// getDocumentTool defines the get_document MCP tool.
var getDocumentTool = mcp.NewTool("get_document",
	mcp.WithDescription("Get the full extracted text of one indexed document."),
	mcp.WithString("document_id",
		mcp.Required(),
		mcp.Description("ID of the document, as returned by search_documents"),
	),
)

// runJobTool defines the run_job MCP tool.
var runJobTool = mcp.NewTool("run_job",
	mcp.WithDescription("Start a background ingestion job. Only one job of each type runs at a time."),
	mcp.WithString("type",
		mcp.Required(),
		mcp.Description("Job type to run"),
		mcp.Enum("crawl", "ingest", "embed", "entity_extract", "entity_cleanup", "index_rebuild", "pipeline"),
	),
)

// jobStatusTool defines the job_status MCP tool.
var jobStatusTool = mcp.NewTool("job_status",
	mcp.WithDescription("Get the status and progress of a job."),
	mcp.WithString("job_id",
		mcp.Required(),
		mcp.Description("ID of the job, as returned by run_job"),
	),
)
