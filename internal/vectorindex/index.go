package vectorindex

import (
	"context"
	"fmt"
	"sync"

	chromem "github.com/philippgille/chromem-go"
)

const collectionName = "chunks"

// SettingDimensions is the settings table key recording the embedding
// dimensionality the corpus was built with. Embedding jobs refuse to mix
// vectors of a different length.
const SettingDimensions = "embedding_dimensions"

// Entry is one chunk with its precomputed embedding.
type Entry struct {
	ChunkID    string
	DocumentID string
	Content    string
	ChunkType  string
	Embedding  []float32
}

// Hit is a vector similarity match.
type Hit struct {
	ChunkID    string
	DocumentID string
	Content    string
	ChunkType  string
	Similarity float64
}

// Index is an in-memory cosine-similarity index over chunk embeddings.
// SQLite holds the durable vectors; the index is rebuilt from there on
// startup and by the index_rebuild job.
type Index struct {
	mu         sync.RWMutex
	db         *chromem.DB
	collection *chromem.Collection
}

// embeddings are always precomputed, so chromem must never call out to
// an embedding function on its own.
func rejectEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("vector index received text without an embedding")
}

// New creates an empty index.
func New() (*Index, error) {
	db := chromem.NewDB()
	col, err := db.GetOrCreateCollection(collectionName, nil, rejectEmbedding)
	if err != nil {
		return nil, fmt.Errorf("creating collection: %w", err)
	}
	return &Index{db: db, collection: col}, nil
}

// Add inserts entries into the index. Entries without an embedding are
// rejected.
func (idx *Index) Add(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	docs := make([]chromem.Document, len(entries))
	for i, entry := range entries {
		if len(entry.Embedding) == 0 {
			return fmt.Errorf("entry %s has no embedding", entry.ChunkID)
		}
		docs[i] = chromem.Document{
			ID:        entry.ChunkID,
			Content:   entry.Content,
			Embedding: entry.Embedding,
			Metadata: map[string]string{
				"document_id": entry.DocumentID,
				"chunk_type":  entry.ChunkType,
			},
		}
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if err := idx.collection.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("adding to vector index: %w", err)
	}
	return nil
}

// Query returns the closest entries to the given embedding, best first.
func (idx *Index) Query(ctx context.Context, embedding []float32, limit int) ([]Hit, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	count := idx.collection.Count()
	if count == 0 {
		return nil, nil
	}
	// chromem-go requires nResults <= collection size.
	if limit > count {
		limit = count
	}

	results, err := idx.collection.QueryEmbedding(ctx, embedding, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}

	hits := make([]Hit, len(results))
	for i, r := range results {
		hits[i] = Hit{
			ChunkID:    r.ID,
			DocumentID: r.Metadata["document_id"],
			Content:    r.Content,
			ChunkType:  r.Metadata["chunk_type"],
			Similarity: float64(r.Similarity),
		}
	}
	return hits, nil
}

// Count returns the number of indexed entries.
func (idx *Index) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.collection.Count()
}

// Rebuild replaces the index contents by streaming entries from the
// given loader. The old index keeps serving queries until the new one
// is fully built, then the swap is atomic.
func (idx *Index) Rebuild(ctx context.Context, load func(fn func(Entry) error) error) error {
	freshDB := chromem.NewDB()
	freshCol, err := freshDB.GetOrCreateCollection(collectionName, nil, rejectEmbedding)
	if err != nil {
		return fmt.Errorf("creating rebuild collection: %w", err)
	}

	err = load(func(entry Entry) error {
		if len(entry.Embedding) == 0 {
			return fmt.Errorf("entry %s has no embedding", entry.ChunkID)
		}
		return freshCol.AddDocument(ctx, chromem.Document{
			ID:        entry.ChunkID,
			Content:   entry.Content,
			Embedding: entry.Embedding,
			Metadata: map[string]string{
				"document_id": entry.DocumentID,
				"chunk_type":  entry.ChunkType,
			},
		})
	})
	if err != nil {
		return fmt.Errorf("rebuilding vector index: %w", err)
	}

	idx.mu.Lock()
	idx.db = freshDB
	idx.collection = freshCol
	idx.mu.Unlock()
	return nil
}
