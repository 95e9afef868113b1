package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/quarry-search/quarry/internal/ai"
	"github.com/quarry-search/quarry/internal/audit"
	"github.com/quarry-search/quarry/internal/config"
	"github.com/quarry-search/quarry/internal/db"
	"github.com/quarry-search/quarry/internal/document"
	"github.com/quarry-search/quarry/internal/entity"
	"github.com/quarry-search/quarry/internal/jobs"
	"github.com/quarry-search/quarry/internal/search"
	"github.com/quarry-search/quarry/internal/source"
	"github.com/quarry-search/quarry/internal/vectorindex"
)

// app bundles the wired-up services shared by the serve, pipeline, and
// mcp commands.
type app struct {
	cfg       *config.Config
	db        *db.DB
	index     *vectorindex.Index
	resolver  *ai.Resolver
	sources   *source.Store
	documents *document.Store
	entities  *entity.Store
	expander  *entity.Expander
	engine    *search.Engine
	cache     *search.Cache
	chat      *search.Chat
	jobStore  *jobs.Store
	scheduler *jobs.Scheduler
	audit     *audit.Store
}

func buildApp() (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	database, err := db.Open(filepath.Join(cfg.DataDir, "quarry.db"))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	index, err := vectorindex.New()
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("creating vector index: %w", err)
	}

	a := &app{
		cfg:       cfg,
		db:        database,
		index:     index,
		resolver:  ai.NewResolver(database, cfg),
		sources:   source.NewStore(database),
		documents: document.NewStore(database),
		entities:  entity.NewStore(database),
		jobStore:  jobs.NewStore(database),
		audit:     audit.NewStore(database),
	}
	a.expander = entity.NewExpander(a.entities)
	a.engine = search.NewEngine(cfg, a.documents, index, a.expander, a.resolver)
	a.cache = search.NewCache(database, cfg.Cache)
	a.chat = search.NewChat(a.engine, a.cache, database, cfg, a.resolver)

	a.scheduler = jobs.NewScheduler(a.jobStore)
	jobs.RegisterRunners(a.scheduler, jobs.Deps{
		DB:        database,
		Config:    cfg,
		Sources:   a.sources,
		Documents: a.documents,
		Entities:  a.entities,
		Expander:  a.expander,
		Index:     index,
		AI:        a.resolver,
		Cache:     a.cache,
	})

	return a, nil
}

// loadIndex fills the in-memory vector index from the embeddings stored
// in SQLite.
func (a *app) loadIndex(ctx context.Context) error {
	return a.index.Rebuild(ctx, func(fn func(vectorindex.Entry) error) error {
		return a.documents.EmbeddedChunks(ctx, func(chunk document.Chunk) error {
			return fn(vectorindex.Entry{
				ChunkID:    chunk.ID,
				DocumentID: chunk.DocumentID,
				Content:    chunk.Content,
				ChunkType:  chunk.ChunkType,
				Embedding:  chunk.Embedding,
			})
		})
	})
}

func (a *app) close() {
	a.scheduler.Wait()
	a.db.Close()
}
