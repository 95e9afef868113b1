package jobs

import (
	"context"
	"log"

	"github.com/quarry-search/quarry/internal/document"
	"github.com/quarry-search/quarry/internal/vectorindex"
)

// runIndexRebuild reconstructs the in-memory vector index from the
// embedding blobs in SQLite. The old index serves queries until the
// replacement is complete.
func (d Deps) runIndexRebuild(ctx context.Context, rc *RunContext) error {
	loaded := 0
	err := d.Index.Rebuild(ctx, func(add func(vectorindex.Entry) error) error {
		return d.Documents.EmbeddedChunks(ctx, func(chunk document.Chunk) error {
			if rc.IsCancelled() {
				return errCancelled
			}
			if err := add(vectorindex.Entry{
				ChunkID:    chunk.ID,
				DocumentID: chunk.DocumentID,
				Content:    chunk.Content,
				ChunkType:  chunk.ChunkType,
				Embedding:  chunk.Embedding,
			}); err != nil {
				return err
			}
			loaded++
			if loaded%500 == 0 {
				rc.Progress(ctx, loaded, 0)
			}
			return nil
		})
	})
	if err != nil {
		if rc.IsCancelled() {
			return nil
		}
		return err
	}

	log.Printf("jobs: vector index rebuilt with %d chunks", loaded)
	return nil
}
