package jobs

import (
	"context"
	"fmt"
	"log"
	"strconv"

	"github.com/quarry-search/quarry/internal/vectorindex"
)

// embedCallSize bounds how many chunks go into one provider call.
const embedCallSize = 32

// runEmbed embeds chunks that have no vector yet and adds them to the
// in-memory index. The corpus dimensionality is pinned on first use;
// switching to a provider with a different vector length is refused
// until the index is rebuilt.
func (d Deps) runEmbed(ctx context.Context, rc *RunContext) error {
	provider, err := d.AI.Resolve(ctx)
	if err != nil {
		return err
	}

	if err := d.checkDimensions(provider.Dimensions()); err != nil {
		return err
	}

	chunks, err := d.Documents.UnembeddedChunks(ctx, d.Config.Ingest.EmbedBatchSize)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		log.Printf("jobs: embed found nothing to do")
		return nil
	}

	embedded := 0
	failed := 0
	for start := 0; start < len(chunks); start += embedCallSize {
		if rc.IsCancelled() {
			return nil
		}

		end := start + embedCallSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, chunk := range batch {
			texts[i] = chunk.Content
		}

		vectors, err := provider.Embed(ctx, texts)
		if err != nil {
			// The chunks stay unembedded and the next run retries them;
			// a transient provider failure must not sink the whole job.
			log.Printf("jobs: embedding %d chunks: %v", len(batch), err)
			failed += len(batch)
			rc.Progress(ctx, embedded+failed, len(chunks))
			continue
		}

		entries := make([]vectorindex.Entry, 0, len(batch))
		for i, chunk := range batch {
			if len(vectors[i]) != provider.Dimensions() {
				return fmt.Errorf("provider returned a %d-dimension vector, expected %d", len(vectors[i]), provider.Dimensions())
			}
			if err := d.Documents.SaveEmbedding(ctx, chunk.ID, vectors[i]); err != nil {
				return err
			}
			entries = append(entries, vectorindex.Entry{
				ChunkID:    chunk.ID,
				DocumentID: chunk.DocumentID,
				Content:    chunk.Content,
				ChunkType:  chunk.ChunkType,
				Embedding:  vectors[i],
			})
		}
		if err := d.Index.Add(ctx, entries); err != nil {
			return err
		}

		embedded += len(batch)
		rc.Progress(ctx, embedded+failed, len(chunks))
	}

	log.Printf("jobs: embedded %d chunks, %d failed", embedded, failed)
	return nil
}

// checkDimensions pins the embedding dimensionality in settings on the
// first run and rejects mismatches afterwards.
func (d Deps) checkDimensions(dims int) error {
	stored, err := d.DB.GetSetting(vectorindex.SettingDimensions, "")
	if err != nil {
		return err
	}
	if stored == "" {
		return d.DB.SetSetting(vectorindex.SettingDimensions, strconv.Itoa(dims))
	}

	storedDims, err := strconv.Atoi(stored)
	if err != nil {
		return fmt.Errorf("corrupt %s setting %q: %w", vectorindex.SettingDimensions, stored, err)
	}
	if storedDims != dims {
		return fmt.Errorf(
			"embedding dimension mismatch: corpus was embedded with %d dimensions but the active provider produces %d; re-embed the corpus or restore the previous embedding model, then run index_rebuild",
			storedDims, dims)
	}
	return nil
}
