package search

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/quarry-search/quarry/internal/ai"
	"github.com/quarry-search/quarry/internal/config"
	"github.com/quarry-search/quarry/internal/document"
	"github.com/quarry-search/quarry/internal/entity"
	"github.com/quarry-search/quarry/internal/vectorindex"
)

const (
	vectorWeight  = 0.5
	lexicalWeight = 0.5
)

// ProviderSource hands out the active AI provider. Satisfied by
// ai.Resolver.
type ProviderSource interface {
	Resolve(ctx context.Context) (ai.Provider, error)
}

// Engine runs hybrid retrieval: vector similarity and BM25 full-text
// in parallel, fused with reciprocal rank fusion.
type Engine struct {
	cfg       *config.Config
	documents *document.Store
	index     *vectorindex.Index
	expander  *entity.Expander
	providers ProviderSource
}

// NewEngine creates a hybrid search engine.
func NewEngine(cfg *config.Config, documents *document.Store, index *vectorindex.Index, expander *entity.Expander, providers ProviderSource) *Engine {
	return &Engine{
		cfg:       cfg,
		documents: documents,
		index:     index,
		expander:  expander,
		providers: providers,
	}
}

// Search retrieves the topK best chunks for a query. Entity expansion
// rewrites terms to canonical forms for the lexical branch only; the
// vector branch embeds the user's original wording, which already
// carries the semantics.
func (e *Engine) Search(ctx context.Context, query string, topK int) ([]Result, []entity.Match, error) {
	if topK <= 0 {
		topK = e.cfg.Search.TopK
	}

	matches, err := e.expander.Detect(ctx, query)
	if err != nil {
		return nil, nil, fmt.Errorf("detecting entities: %w", err)
	}
	lexicalQuery := entity.Apply(query, matches)

	var (
		vectorHits  []vectorindex.Hit
		lexicalHits []document.LexicalHit
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		provider, err := e.providers.Resolve(gctx)
		if err != nil {
			return fmt.Errorf("resolving provider: %w", err)
		}
		vectors, err := provider.Embed(gctx, []string{query})
		if err != nil {
			return fmt.Errorf("embedding query: %w", err)
		}
		hits, err := e.index.Query(gctx, vectors[0], e.cfg.Search.CandidateLimit)
		if err != nil {
			return err
		}
		for _, hit := range hits {
			if hit.Similarity >= e.cfg.Search.MinVectorSimilarity {
				vectorHits = append(vectorHits, hit)
			}
		}
		return nil
	})
	g.Go(func() error {
		hits, err := e.documents.SearchLexical(gctx, lexicalQuery, e.cfg.Search.CandidateLimit)
		if err != nil {
			return err
		}
		lexicalHits = hits
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	fused := e.merge(vectorHits, lexicalHits)
	if len(fused) > topK {
		fused = fused[:topK]
	}

	if err := e.attachNames(ctx, fused); err != nil {
		return nil, nil, err
	}
	return fused, matches, nil
}

// merge normalizes each branch by its own maximum, sums the weighted
// scores per chunk, then fuses the two rankings.
func (e *Engine) merge(vectorHits []vectorindex.Hit, lexicalHits []document.LexicalHit) []Result {
	var maxVector, maxLexical float64
	for _, hit := range vectorHits {
		if hit.Similarity > maxVector {
			maxVector = hit.Similarity
		}
	}
	for _, hit := range lexicalHits {
		if hit.Score > maxLexical {
			maxLexical = hit.Score
		}
	}

	results := make(map[string]*Result)
	vectorRank := make([]string, len(vectorHits))
	for i, hit := range vectorHits {
		vectorRank[i] = hit.ChunkID
		normalized := 0.0
		if maxVector > 0 {
			normalized = hit.Similarity / maxVector
		}
		results[hit.ChunkID] = &Result{
			ChunkID:     hit.ChunkID,
			DocumentID:  hit.DocumentID,
			Content:     hit.Content,
			ChunkType:   hit.ChunkType,
			VectorScore: hit.Similarity,
			Combined:    vectorWeight * normalized,
		}
	}

	lexicalRank := make([]string, len(lexicalHits))
	for i, hit := range lexicalHits {
		lexicalRank[i] = hit.ChunkID
		normalized := 0.0
		if maxLexical > 0 {
			normalized = hit.Score / maxLexical
		}
		if r, ok := results[hit.ChunkID]; ok {
			r.LexicalScore = hit.Score
			r.Combined += lexicalWeight * normalized
		} else {
			results[hit.ChunkID] = &Result{
				ChunkID:      hit.ChunkID,
				DocumentID:   hit.DocumentID,
				Content:      hit.Content,
				ChunkType:    hit.ChunkType,
				LexicalScore: hit.Score,
				Combined:     lexicalWeight * normalized,
			}
		}
	}

	return fuse(results, vectorRank, lexicalRank)
}

func (e *Engine) attachNames(ctx context.Context, results []Result) error {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.DocumentID
	}
	names, err := e.documents.ResolveDisplayNames(ctx, ids)
	if err != nil {
		return err
	}
	for i := range results {
		results[i].DocumentName = names[results[i].DocumentID]
	}
	return nil
}
