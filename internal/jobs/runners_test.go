package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/quarry-search/quarry/internal/ai"
	"github.com/quarry-search/quarry/internal/config"
	"github.com/quarry-search/quarry/internal/db"
	"github.com/quarry-search/quarry/internal/document"
	"github.com/quarry-search/quarry/internal/entity"
	"github.com/quarry-search/quarry/internal/source"
	"github.com/quarry-search/quarry/internal/vectorindex"
)

type fakeCache struct {
	purges int
}

func (c *fakeCache) PurgeAll(ctx context.Context) error {
	c.purges++
	return nil
}

// fakeProvider returns fixed-dimension embeddings derived from text
// length and canned extraction output.
type fakeProvider struct {
	dims          int
	completeOut   string
	embedCalls    int
	embedFailures int
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Complete(ctx context.Context, req ai.CompletionRequest) (*ai.CompletionResponse, error) {
	return &ai.CompletionResponse{Content: p.completeOut}, nil
}

func (p *fakeProvider) Stream(ctx context.Context, req ai.CompletionRequest, onToken ai.TokenFunc) (*ai.CompletionResponse, error) {
	if onToken != nil {
		onToken(p.completeOut)
	}
	return &ai.CompletionResponse{Content: p.completeOut}, nil
}

func (p *fakeProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	p.embedCalls++
	if p.embedFailures > 0 {
		p.embedFailures--
		return nil, errors.New("model overloaded")
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, p.dims)
		v[0] = float32(len(text))
		v[p.dims-1] = 1
		vectors[i] = v
	}
	return vectors, nil
}

func (p *fakeProvider) Dimensions() int                      { return p.dims }
func (p *fakeProvider) CheckHealth(ctx context.Context) error { return nil }

type fakeResolver struct {
	provider ai.Provider
}

func (r *fakeResolver) Resolve(ctx context.Context) (ai.Provider, error) {
	return r.provider, nil
}

type testEnv struct {
	db    *db.DB
	deps  Deps
	cache *fakeCache
	rc    *RunContext
}

func newTestEnv(t *testing.T, provider ai.Provider) *testEnv {
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

	entityStore := entity.NewStore(database)
	cache := &fakeCache{}
	jobStore := NewStore(database)
	sched := NewScheduler(jobStore)

	deps := Deps{
		DB:        database,
		Config:    config.DefaultConfig(),
		Sources:   source.NewStore(database),
		Documents: document.NewStore(database),
		Entities:  entityStore,
		Expander:  entity.NewExpander(entityStore),
		Index:     index,
		AI:        &fakeResolver{provider: provider},
		Cache:     cache,
	}

	job, err := jobStore.Create(context.Background(), TypeIngest, "test", "", nil)
	if err != nil {
		t.Fatalf("Create job row: %v", err)
	}

	return &testEnv{
		db:    database,
		deps:  deps,
		cache: cache,
		rc:    &RunContext{JobID: job.ID, sched: sched},
	}
}

func (e *testEnv) addSourceWithFiles(t *testing.T, files map[string]string) *source.CrawlSource {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	src, err := e.deps.Sources.CreateSource(context.Background(), source.CrawlSource{
		Name: "test", Path: dir, Enabled: true, Recursive: true,
	})
	if err != nil {
		t.Fatalf("CreateSource: %v", err)
	}
	return src
}

func TestCrawlThenIngest(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{dims: 4})
	ctx := context.Background()

	env.addSourceWithFiles(t, map[string]string{
		"report.txt": "quarterly revenue was $1,234,567 which is 12.5% higher",
		"notes.txt":  "board meeting notes for Q1 2024",
	})

	if err := env.deps.runCrawl(ctx, env.rc); err != nil {
		t.Fatalf("runCrawl: %v", err)
	}

	counts, err := env.deps.Sources.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if counts[source.StatusDiscovered] != 2 {
		t.Fatalf("discovered = %d, want 2", counts[source.StatusDiscovered])
	}

	if err := env.deps.runIngest(ctx, env.rc); err != nil {
		t.Fatalf("runIngest: %v", err)
	}

	counts, err = env.deps.Sources.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if counts[source.StatusIngested] != 2 {
		t.Errorf("ingested = %d, want 2 (counts %v)", counts[source.StatusIngested], counts)
	}

	n, err := env.deps.Documents.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 2 {
		t.Errorf("documents = %d, want 2", n)
	}

	if env.cache.purges != 1 {
		t.Errorf("cache purges = %d, want 1", env.cache.purges)
	}
}

func TestIngestDeduplicatesByContent(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{dims: 4})
	ctx := context.Background()

	env.addSourceWithFiles(t, map[string]string{
		"a.txt":      "identical content",
		"copy/b.txt": "identical content",
	})

	if err := env.deps.runCrawl(ctx, env.rc); err != nil {
		t.Fatalf("runCrawl: %v", err)
	}
	if err := env.deps.runIngest(ctx, env.rc); err != nil {
		t.Fatalf("runIngest: %v", err)
	}

	n, err := env.deps.Documents.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("documents = %d, want 1 after dedup", n)
	}

	counts, err := env.deps.Sources.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if counts[source.StatusIngested] != 2 {
		t.Errorf("both files should be marked ingested: %v", counts)
	}
}

func TestIngestOversizeFileFailsAlone(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{dims: 4})
	env.deps.Config.Ingest.MaxFileSizeMB = 1
	ctx := context.Background()

	big := make([]byte, 2<<20)
	for i := range big {
		big[i] = 'x'
	}
	env.addSourceWithFiles(t, map[string]string{
		"big.txt":  string(big),
		"fine.txt": "small file",
	})

	if err := env.deps.runCrawl(ctx, env.rc); err != nil {
		t.Fatalf("runCrawl: %v", err)
	}
	if err := env.deps.runIngest(ctx, env.rc); err != nil {
		t.Fatalf("runIngest: %v", err)
	}

	counts, err := env.deps.Sources.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if counts[source.StatusFailed] != 1 || counts[source.StatusIngested] != 1 {
		t.Errorf("counts = %v, want 1 failed + 1 ingested", counts)
	}
}

func TestCrawlProgressCountsSources(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{dims: 4})
	ctx := context.Background()

	env.addSourceWithFiles(t, map[string]string{
		"a.txt": "first",
		"b.txt": "second",
		"c.txt": "third",
	})
	if err := env.deps.runCrawl(ctx, env.rc); err != nil {
		t.Fatalf("runCrawl: %v", err)
	}

	job, err := env.rc.sched.store.Get(ctx, env.rc.JobID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	// One source, three files: progress is attributed in sources.
	if job.ProcessedItems != 1 || job.TotalItems != 1 {
		t.Errorf("progress = %d/%d, want 1/1 sources", job.ProcessedItems, job.TotalItems)
	}
}

func TestEmbedStoresVectorsAndIndexes(t *testing.T) {
	provider := &fakeProvider{dims: 4}
	env := newTestEnv(t, provider)
	ctx := context.Background()

	env.addSourceWithFiles(t, map[string]string{"doc.txt": "content to embed"})
	if err := env.deps.runCrawl(ctx, env.rc); err != nil {
		t.Fatalf("runCrawl: %v", err)
	}
	if err := env.deps.runIngest(ctx, env.rc); err != nil {
		t.Fatalf("runIngest: %v", err)
	}

	if err := env.deps.runEmbed(ctx, env.rc); err != nil {
		t.Fatalf("runEmbed: %v", err)
	}

	total, embedded, err := env.deps.Documents.CountChunks(ctx)
	if err != nil {
		t.Fatalf("CountChunks: %v", err)
	}
	if total == 0 || embedded != total {
		t.Errorf("embedded %d of %d chunks", embedded, total)
	}
	if env.deps.Index.Count() != total {
		t.Errorf("index holds %d entries, want %d", env.deps.Index.Count(), total)
	}

	// Dimensionality is pinned after the first run.
	stored, err := env.db.GetSetting(vectorindex.SettingDimensions, "")
	if err != nil {
		t.Fatalf("GetSetting: %v", err)
	}
	if stored != "4" {
		t.Errorf("stored dimensions = %q, want 4", stored)
	}
}

func TestEmbedRejectsDimensionMismatch(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{dims: 4})
	ctx := context.Background()

	if err := env.db.SetSetting(vectorindex.SettingDimensions, "768"); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}

	env.addSourceWithFiles(t, map[string]string{"doc.txt": "content"})
	if err := env.deps.runCrawl(ctx, env.rc); err != nil {
		t.Fatalf("runCrawl: %v", err)
	}
	if err := env.deps.runIngest(ctx, env.rc); err != nil {
		t.Fatalf("runIngest: %v", err)
	}

	err := env.deps.runEmbed(ctx, env.rc)
	if err == nil {
		t.Fatal("runEmbed = nil error, want dimension mismatch")
	}
}

func TestEmbedSkipsFailedProviderCalls(t *testing.T) {
	provider := &fakeProvider{dims: 4, embedFailures: 1}
	env := newTestEnv(t, provider)
	ctx := context.Background()

	env.addSourceWithFiles(t, map[string]string{"doc.txt": "content to embed"})
	if err := env.deps.runCrawl(ctx, env.rc); err != nil {
		t.Fatalf("runCrawl: %v", err)
	}
	if err := env.deps.runIngest(ctx, env.rc); err != nil {
		t.Fatalf("runIngest: %v", err)
	}

	// The provider errors on the first call; the job logs and moves on.
	if err := env.deps.runEmbed(ctx, env.rc); err != nil {
		t.Fatalf("runEmbed with failing provider: %v", err)
	}
	_, embedded, err := env.deps.Documents.CountChunks(ctx)
	if err != nil {
		t.Fatalf("CountChunks: %v", err)
	}
	if embedded != 0 {
		t.Fatalf("embedded = %d after a failed provider call, want 0", embedded)
	}

	// The chunks are still pending, so the next run picks them up.
	if err := env.deps.runEmbed(ctx, env.rc); err != nil {
		t.Fatalf("runEmbed retry: %v", err)
	}
	total, embedded, err := env.deps.Documents.CountChunks(ctx)
	if err != nil {
		t.Fatalf("CountChunks: %v", err)
	}
	if total == 0 || embedded != total {
		t.Errorf("embedded %d of %d chunks after retry", embedded, total)
	}
	if provider.embedCalls != 2 {
		t.Errorf("embedCalls = %d, want 2", provider.embedCalls)
	}
}

func TestEntityExtractUpsertsAndMarks(t *testing.T) {
	out, _ := json.Marshal(extractResponse{Entities: []extractedEntity{
		{Canonical: "Acme Corp", Type: "organization", Variants: []string{"Acme"}},
		{Canonical: "revenue", Type: "metric"},
	}})
	env := newTestEnv(t, &fakeProvider{dims: 4, completeOut: string(out)})
	ctx := context.Background()

	env.addSourceWithFiles(t, map[string]string{"doc.txt": "Acme Corp revenue rose"})
	if err := env.deps.runCrawl(ctx, env.rc); err != nil {
		t.Fatalf("runCrawl: %v", err)
	}
	if err := env.deps.runIngest(ctx, env.rc); err != nil {
		t.Fatalf("runIngest: %v", err)
	}

	if err := env.deps.runEntityExtract(ctx, env.rc); err != nil {
		t.Fatalf("runEntityExtract: %v", err)
	}

	acme, err := env.deps.Entities.GetByID(ctx, "acme corp")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if acme == nil {
		t.Fatal("acme corp entity not stored")
	}

	edges, err := env.deps.Entities.Related(ctx, "acme corp", 10)
	if err != nil {
		t.Fatalf("Related: %v", err)
	}
	if len(edges) != 1 {
		t.Errorf("got %d co-occurrence edges, want 1", len(edges))
	}

	pending, err := env.deps.Documents.UnextractedChunks(ctx, 10)
	if err != nil {
		t.Fatalf("UnextractedChunks: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("%d chunks still unextracted, want 0", len(pending))
	}
}

func TestEntityCleanupRemovesOrphansAndNoise(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{dims: 4})
	ctx := context.Background()

	// Seen once, connected to nothing: deleted.
	if _, err := env.deps.Entities.Upsert(ctx, "Acme Corporation", "organization", nil); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	// Seen twice: kept even without edges.
	for i := 0; i < 2; i++ {
		if _, err := env.deps.Entities.Upsert(ctx, "revenue", "metric", nil); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}
	// Seen once but co-occurring with revenue: kept.
	if _, err := env.deps.Entities.Upsert(ctx, "Kubernetes", "technology", nil); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := env.deps.Entities.UpsertEdge(ctx, "kubernetes", "revenue", "co_occurs", 1); err != nil {
		t.Fatalf("UpsertEdge: %v", err)
	}
	// Frequent but pure noise: deleted by the heuristics.
	for _, canonical := range []string{"Q2", "42"} {
		for i := 0; i < 2; i++ {
			if _, err := env.deps.Entities.Upsert(ctx, canonical, "term", nil); err != nil {
				t.Fatalf("Upsert %s: %v", canonical, err)
			}
		}
	}

	if err := env.deps.runEntityCleanup(ctx, env.rc); err != nil {
		t.Fatalf("runEntityCleanup: %v", err)
	}

	remaining, err := env.deps.Entities.ListByFrequency(ctx, 0)
	if err != nil {
		t.Fatalf("ListByFrequency: %v", err)
	}
	if len(remaining) != 2 {
		t.Fatalf("got %d entities, want 2: %+v", len(remaining), remaining)
	}
	for _, e := range remaining {
		if e.ID != "revenue" && e.ID != "kubernetes" {
			t.Errorf("entity %s survived cleanup", e.ID)
		}
	}
	if acme, _ := env.deps.Entities.GetByID(ctx, "acme corporation"); acme != nil {
		t.Errorf("frequency-1 entity with no edges survived cleanup: %+v", acme)
	}
}

func TestIndexRebuildFromStore(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{dims: 4})
	ctx := context.Background()

	env.addSourceWithFiles(t, map[string]string{"doc.txt": "text to index"})
	if err := env.deps.runCrawl(ctx, env.rc); err != nil {
		t.Fatalf("runCrawl: %v", err)
	}
	if err := env.deps.runIngest(ctx, env.rc); err != nil {
		t.Fatalf("runIngest: %v", err)
	}
	if err := env.deps.runEmbed(ctx, env.rc); err != nil {
		t.Fatalf("runEmbed: %v", err)
	}

	// A fresh index simulates a restart; rebuild refills it from SQLite.
	fresh, err := vectorindex.New()
	if err != nil {
		t.Fatalf("vectorindex.New: %v", err)
	}
	env.deps.Index = fresh
	if err := env.deps.runIndexRebuild(ctx, env.rc); err != nil {
		t.Fatalf("runIndexRebuild: %v", err)
	}

	total, _, err := env.deps.Documents.CountChunks(ctx)
	if err != nil {
		t.Fatalf("CountChunks: %v", err)
	}
	if fresh.Count() != total {
		t.Errorf("rebuilt index holds %d entries, want %d", fresh.Count(), total)
	}
}

func TestReCrawlDoesNotReIngest(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{dims: 4})
	ctx := context.Background()

	env.addSourceWithFiles(t, map[string]string{"stable.txt": "unchanging content"})
	if err := env.deps.runCrawl(ctx, env.rc); err != nil {
		t.Fatalf("runCrawl: %v", err)
	}
	if err := env.deps.runIngest(ctx, env.rc); err != nil {
		t.Fatalf("runIngest: %v", err)
	}
	purgesAfterFirst := env.cache.purges

	if err := env.deps.runCrawl(ctx, env.rc); err != nil {
		t.Fatalf("second runCrawl: %v", err)
	}
	if err := env.deps.runIngest(ctx, env.rc); err != nil {
		t.Fatalf("second runIngest: %v", err)
	}

	if env.cache.purges != purgesAfterFirst {
		t.Errorf("re-ingest of unchanged corpus purged the cache (%d -> %d)", purgesAfterFirst, env.cache.purges)
	}

	n, err := env.deps.Documents.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("documents = %d, want 1", n)
	}
}

func TestEmbedCallBatching(t *testing.T) {
	provider := &fakeProvider{dims: 4}
	env := newTestEnv(t, provider)
	ctx := context.Background()

	// 70 chunks should need ceil(70/32) = 3 provider calls.
	var docChunks []document.Chunk
	for i := 0; i < 70; i++ {
		docChunks = append(docChunks, document.Chunk{
			ChunkIndex: i,
			Content:    fmt.Sprintf("chunk number %d", i),
			ChunkType:  "prose",
		})
	}
	if _, err := env.deps.Documents.CreateWithChunks(ctx, document.Document{
		ContentHash: "h", RawText: "t",
	}, docChunks); err != nil {
		t.Fatalf("CreateWithChunks: %v", err)
	}

	if err := env.deps.runEmbed(ctx, env.rc); err != nil {
		t.Fatalf("runEmbed: %v", err)
	}
	if provider.embedCalls != 3 {
		t.Errorf("embed calls = %d, want 3", provider.embedCalls)
	}
}
