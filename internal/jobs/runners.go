package jobs

import (
	"context"

	"github.com/quarry-search/quarry/internal/ai"
	"github.com/quarry-search/quarry/internal/config"
	"github.com/quarry-search/quarry/internal/db"
	"github.com/quarry-search/quarry/internal/document"
	"github.com/quarry-search/quarry/internal/entity"
	"github.com/quarry-search/quarry/internal/source"
	"github.com/quarry-search/quarry/internal/vectorindex"
)

// ResponseCache is the slice of the answer cache the ingest job needs:
// any successful ingest invalidates all cached answers.
type ResponseCache interface {
	PurgeAll(ctx context.Context) error
}

// ProviderSource hands out the active AI provider. Satisfied by
// ai.Resolver.
type ProviderSource interface {
	Resolve(ctx context.Context) (ai.Provider, error)
}

// Deps bundles everything the job runners touch.
type Deps struct {
	DB        *db.DB
	Config    *config.Config
	Sources   *source.Store
	Documents *document.Store
	Entities  *entity.Store
	Expander  *entity.Expander
	Index     *vectorindex.Index
	AI        ProviderSource
	Cache     ResponseCache
}

// RegisterRunners binds every job type's runner to the scheduler.
func RegisterRunners(s *Scheduler, deps Deps) {
	s.Register(TypeCrawl, deps.runCrawl)
	s.Register(TypeIngest, deps.runIngest)
	s.Register(TypeEmbed, deps.runEmbed)
	s.Register(TypeEntityExtract, deps.runEntityExtract)
	s.Register(TypeEntityCleanup, deps.runEntityCleanup)
	s.Register(TypeIndexRebuild, deps.runIndexRebuild)
	s.Register(TypePipeline, runPipeline)
}
