package search

import (
	"context"
	"strings"
	"testing"

	"github.com/quarry-search/quarry/internal/ai"
	"github.com/quarry-search/quarry/internal/config"
	"github.com/quarry-search/quarry/internal/db"
	"github.com/quarry-search/quarry/internal/document"
	"github.com/quarry-search/quarry/internal/entity"
	"github.com/quarry-search/quarry/internal/vectorindex"
)

type fakeProvider struct {
	queryVector   []float32
	streamContent string
	streamCalls   int
	embedCalls    int
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Complete(ctx context.Context, req ai.CompletionRequest) (*ai.CompletionResponse, error) {
	return &ai.CompletionResponse{Content: f.streamContent}, nil
}

func (f *fakeProvider) Stream(ctx context.Context, req ai.CompletionRequest, onToken ai.TokenFunc) (*ai.CompletionResponse, error) {
	f.streamCalls++
	for _, word := range strings.SplitAfter(f.streamContent, " ") {
		onToken(word)
	}
	return &ai.CompletionResponse{Content: f.streamContent}, nil
}

func (f *fakeProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.embedCalls++
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = f.queryVector
	}
	return vectors, nil
}

func (f *fakeProvider) Dimensions() int { return len(f.queryVector) }

func (f *fakeProvider) CheckHealth(ctx context.Context) error { return nil }

type fakeSource struct {
	provider *fakeProvider
}

func (f *fakeSource) Resolve(ctx context.Context) (ai.Provider, error) {
	return f.provider, nil
}

type testEnv struct {
	db        *db.DB
	documents *document.Store
	entities  *entity.Store
	index     *vectorindex.Index
	engine    *Engine
	provider  *fakeProvider
	cfg       *config.Config
}

func newTestEnv(t *testing.T) *testEnv {
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

	provider := &fakeProvider{queryVector: []float32{1, 0, 0}}
	documents := document.NewStore(database)
	entities := entity.NewStore(database)
	cfg := config.DefaultConfig()

	engine := NewEngine(cfg, documents, index, entity.NewExpander(entities), &fakeSource{provider: provider})
	return &testEnv{
		db:        database,
		documents: documents,
		entities:  entities,
		index:     index,
		engine:    engine,
		provider:  provider,
		cfg:       cfg,
	}
}

// addDocument ingests one single-chunk document and optionally indexes
// its embedding.
func (env *testEnv) addDocument(t *testing.T, title, content string, embedding []float32) (docID, chunkID string) {
	t.Helper()
	doc, err := env.documents.CreateWithChunks(context.Background(),
		document.Document{Title: title, FileName: title, ContentHash: title},
		[]document.Chunk{{ChunkIndex: 0, Content: content, ChunkType: "prose"}})
	if err != nil {
		t.Fatalf("CreateWithChunks: %v", err)
	}
	chunks, err := env.documents.GetChunks(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("GetChunks: %v", err)
	}
	chunkID = chunks[0].ID

	if embedding != nil {
		if err := env.documents.SaveEmbedding(context.Background(), chunkID, embedding); err != nil {
			t.Fatalf("SaveEmbedding: %v", err)
		}
		err := env.index.Add(context.Background(), []vectorindex.Entry{{
			ChunkID:    chunkID,
			DocumentID: doc.ID,
			Content:    content,
			ChunkType:  "prose",
			Embedding:  embedding,
		}})
		if err != nil {
			t.Fatalf("index.Add: %v", err)
		}
	}
	return doc.ID, chunkID
}

func TestFuseSharedChunkRanksFirst(t *testing.T) {
	results := map[string]*Result{
		"both":    {ChunkID: "both"},
		"vecOnly": {ChunkID: "vecOnly"},
		"lexOnly": {ChunkID: "lexOnly"},
	}
	fused := fuse(results, []string{"vecOnly", "both"}, []string{"lexOnly", "both"})

	if fused[0].ChunkID != "both" {
		t.Errorf("top chunk = %q, want the one present in both rankings", fused[0].ChunkID)
	}
	want := 1.0/62.0 + 1.0/62.0
	if diff := fused[0].RRFScore - want; diff > 1e-12 || diff < -1e-12 {
		t.Errorf("RRFScore = %v, want %v", fused[0].RRFScore, want)
	}
}

func TestFuseTiebreaksDeterministic(t *testing.T) {
	results := map[string]*Result{
		"b": {ChunkID: "b", Combined: 0.4},
		"a": {ChunkID: "a", Combined: 0.4},
	}
	// Same single-branch rank contribution for both.
	fused := fuse(results, []string{"a"}, []string{"b"})
	if fused[0].ChunkID != "a" || fused[1].ChunkID != "b" {
		t.Errorf("order = %q, %q; want chunk ID ascending on full tie", fused[0].ChunkID, fused[1].ChunkID)
	}
}

func TestMergeNormalizesByBranchMax(t *testing.T) {
	e := &Engine{}
	fused := e.merge(
		[]vectorindex.Hit{
			{ChunkID: "c1", Similarity: 0.8},
			{ChunkID: "c2", Similarity: 0.4},
		},
		[]document.LexicalHit{
			{ChunkID: "c1", Score: 5.0},
		},
	)

	byID := make(map[string]Result)
	for _, r := range fused {
		byID[r.ChunkID] = r
	}
	// c1 tops both branches: 0.5*1.0 + 0.5*1.0.
	if c1 := byID["c1"]; c1.Combined != 1.0 {
		t.Errorf("c1 Combined = %v, want 1.0", c1.Combined)
	}
	if c2 := byID["c2"]; c2.Combined != 0.25 {
		t.Errorf("c2 Combined = %v, want 0.25 (0.5 * 0.4/0.8)", c2.Combined)
	}
}

func TestSearchCombinesBranches(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, vecChunk := env.addDocument(t, "roadmap.txt", "long term platform direction", []float32{1, 0, 0})
	_, lexChunk := env.addDocument(t, "budget.txt", "quarterly budget forecast for engineering", nil)

	results, _, err := env.engine.Search(ctx, "budget forecast", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	found := make(map[string]Result)
	for _, r := range results {
		found[r.ChunkID] = r
	}
	if _, ok := found[lexChunk]; !ok {
		t.Fatalf("lexical match missing from results: %+v", results)
	}
	if _, ok := found[vecChunk]; !ok {
		t.Fatalf("vector match missing from results: %+v", results)
	}
	if found[lexChunk].LexicalScore <= 0 {
		t.Errorf("LexicalScore = %v, want > 0", found[lexChunk].LexicalScore)
	}
	if found[vecChunk].VectorScore < env.cfg.Search.MinVectorSimilarity {
		t.Errorf("VectorScore = %v, below similarity floor", found[vecChunk].VectorScore)
	}
	if found[lexChunk].DocumentName != "budget.txt" {
		t.Errorf("DocumentName = %q, want file name", found[lexChunk].DocumentName)
	}
}

func TestSearchEntityExpansionRewritesLexicalBranch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, chunkID := env.addDocument(t, "infra.txt", "kubernetes cluster upgrade notes", nil)
	if _, err := env.entities.Upsert(ctx, "kubernetes", "technology", []string{"k8s"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	results, matches, err := env.engine.Search(ctx, "k8s upgrade", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 1 || matches[0].Entity.Canonical != "kubernetes" {
		t.Fatalf("matches = %+v, want the kubernetes entity detected", matches)
	}
	if len(results) == 0 || results[0].ChunkID != chunkID {
		t.Fatalf("results = %+v, want canonical rewrite to reach the document", results)
	}
}

func TestSearchTruncatesToTopK(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		env.addDocument(t, name, "shared revenue keyword "+name, nil)
	}

	results, _, err := env.engine.Search(ctx, "revenue", 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("len(results) = %d, want 2", len(results))
	}
}

func TestExtractCitations(t *testing.T) {
	results := []Result{
		{DocumentID: "d1", DocumentName: "first.pdf"},
		{DocumentID: "d2", DocumentName: "second.pdf"},
	}
	answer := "Revenue grew [2] while costs held [1]. See also [2] and [9]."

	citations := extractCitations(answer, results)
	if len(citations) != 2 {
		t.Fatalf("len(citations) = %d, want 2 (dedup + out-of-range ignored)", len(citations))
	}
	if citations[0].Number != 2 || citations[0].DocumentID != "d2" {
		t.Errorf("first citation = %+v, want number 2 in occurrence order", citations[0])
	}
	if citations[1].Number != 1 || citations[1].DocumentID != "d1" {
		t.Errorf("second citation = %+v, want number 1", citations[1])
	}
}

func TestExtractCitationsNone(t *testing.T) {
	if got := extractCitations("no sources referenced", []Result{{DocumentID: "d1"}}); got != nil {
		t.Errorf("citations = %+v, want nil", got)
	}
}

func TestBuildMessagesNumbersSourcesAndCapsHistory(t *testing.T) {
	results := []Result{
		{DocumentName: "plan.docx", Content: "alpha"},
		{DocumentName: "notes.txt", Content: "beta"},
	}
	history := make([]ChatMessage, 0, 14)
	for i := 0; i < 14; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		history = append(history, ChatMessage{Role: role, Content: "turn"})
	}

	messages := buildMessages("be helpful", results, history, "what is alpha?")

	if len(messages) != historyLimit+2 {
		t.Fatalf("len(messages) = %d, want system + %d history + question", len(messages), historyLimit)
	}
	system := messages[0]
	if system.Role != ai.RoleSystem {
		t.Errorf("first message role = %q, want system", system.Role)
	}
	if !strings.Contains(system.Content, "[1] plan.docx") || !strings.Contains(system.Content, "[2] notes.txt") {
		t.Errorf("system prompt missing numbered sources:\n%s", system.Content)
	}
	last := messages[len(messages)-1]
	if last.Role != ai.RoleUser || last.Content != "what is alpha?" {
		t.Errorf("last message = %+v, want the user question", last)
	}
}
