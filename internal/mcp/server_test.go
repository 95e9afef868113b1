package mcp

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/quarry-search/quarry/internal/ai"
	"github.com/quarry-search/quarry/internal/config"
	"github.com/quarry-search/quarry/internal/db"
	"github.com/quarry-search/quarry/internal/document"
	"github.com/quarry-search/quarry/internal/entity"
	"github.com/quarry-search/quarry/internal/jobs"
	"github.com/quarry-search/quarry/internal/search"
	"github.com/quarry-search/quarry/internal/vectorindex"
)

type mockProvider struct{}

func (m *mockProvider) Name() string { return "mock" }
func (m *mockProvider) Complete(ctx context.Context, req ai.CompletionRequest) (*ai.CompletionResponse, error) {
	return &ai.CompletionResponse{}, nil
}
func (m *mockProvider) Stream(ctx context.Context, req ai.CompletionRequest, onToken ai.TokenFunc) (*ai.CompletionResponse, error) {
	return &ai.CompletionResponse{}, nil
}
func (m *mockProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1, 0, 0}
	}
	return vectors, nil
}
func (m *mockProvider) Dimensions() int                       { return 3 }
func (m *mockProvider) CheckHealth(ctx context.Context) error { return nil }

type mockSource struct{}

func (m *mockSource) Resolve(ctx context.Context) (ai.Provider, error) {
	return &mockProvider{}, nil
}

func newTestMCP(t *testing.T) (*Server, *document.Store, *jobs.Scheduler) {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	index, err := vectorindex.New()
	if err != nil {
		t.Fatalf("vectorindex.New: %v", err)
	}

	documents := document.NewStore(database)
	engine := search.NewEngine(config.DefaultConfig(), documents, index,
		entity.NewExpander(entity.NewStore(database)), &mockSource{})
	jobStore := jobs.NewStore(database)
	scheduler := jobs.NewScheduler(jobStore)

	return NewServer(engine, documents, scheduler, jobStore), documents, scheduler
}

func TestToolDefinitions(t *testing.T) {
	tests := []struct {
		tool     mcp.Tool
		wantName string
	}{
		{searchDocumentsTool, "search_documents"},
		{getDocumentTool, "get_document"},
		{runJobTool, "run_job"},
		{jobStatusTool, "job_status"},
	}
	for _, tt := range tests {
		if tt.tool.Name != tt.wantName {
			t.Errorf("tool name = %q, want %q", tt.tool.Name, tt.wantName)
		}
		if tt.tool.Description == "" {
			t.Errorf("%s: tool description should not be empty", tt.wantName)
		}
	}
}

func TestHandleSearchDocuments(t *testing.T) {
	srv, documents, _ := newTestMCP(t)
	ctx := context.Background()

	_, err := documents.CreateWithChunks(ctx,
		document.Document{Title: "handbook.txt", FileName: "handbook.txt", ContentHash: "h1"},
		[]document.Chunk{{ChunkIndex: 0, Content: "vacation policy allows twenty days", ChunkType: "prose"}})
	if err != nil {
		t.Fatalf("CreateWithChunks: %v", err)
	}

	req := mcp.CallToolRequest{}
	req.Params.Arguments = map[string]any{"query": "vacation policy"}

	result, err := srv.handleSearchDocuments(ctx, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %v", result.Content)
	}

	req.Params.Arguments = map[string]any{}
	result, err = srv.handleSearchDocuments(ctx, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Error("expected error for missing query")
	}
}

func TestHandleGetDocument(t *testing.T) {
	srv, documents, _ := newTestMCP(t)
	ctx := context.Background()

	doc, err := documents.CreateWithChunks(ctx,
		document.Document{Title: "notes", FileName: "notes.txt", ContentHash: "h2", RawText: "full text here"},
		[]document.Chunk{{ChunkIndex: 0, Content: "full text here", ChunkType: "prose"}})
	if err != nil {
		t.Fatalf("CreateWithChunks: %v", err)
	}

	req := mcp.CallToolRequest{}
	req.Params.Arguments = map[string]any{"document_id": doc.ID}
	result, err := srv.handleGetDocument(ctx, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %v", result.Content)
	}

	req.Params.Arguments = map[string]any{"document_id": "missing"}
	result, err = srv.handleGetDocument(ctx, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Error("expected error for unknown document")
	}
}

func TestHandleRunJobAndStatus(t *testing.T) {
	srv, _, scheduler := newTestMCP(t)
	ctx := context.Background()

	scheduler.Register(jobs.TypeCrawl, func(ctx context.Context, rc *jobs.RunContext) error {
		return nil
	})

	req := mcp.CallToolRequest{}
	req.Params.Arguments = map[string]any{"type": "crawl"}
	result, err := srv.handleRunJob(ctx, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %v", result.Content)
	}
	scheduler.Wait()

	listed, err := srv.jobStore.List(ctx, jobs.TypeCrawl, 1)
	if err != nil || len(listed) != 1 {
		t.Fatalf("List: %v (%d jobs)", err, len(listed))
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		req.Params.Arguments = map[string]any{"job_id": listed[0].ID}
		result, err = srv.handleJobStatus(ctx, req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.IsError {
			t.Fatalf("unexpected tool error: %v", result.Content)
		}
		text := firstText(t, result)
		if strings.Contains(text, "completed") {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job never completed: %s", text)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func firstText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	for _, content := range result.Content {
		if text, ok := content.(mcp.TextContent); ok {
			return text.Text
		}
	}
	t.Fatal("no text content in result")
	return ""
}
