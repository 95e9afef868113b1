package jobs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"os"

	"github.com/quarry-search/quarry/internal/chunker"
	"github.com/quarry-search/quarry/internal/document"
	"github.com/quarry-search/quarry/internal/parser"
	"github.com/quarry-search/quarry/internal/source"
)

// runIngest takes a batch of pending files through parse → chunk →
// store. Each file fails independently; one bad PDF never stops the
// batch. Any successful ingest purges the response cache, since cached
// answers may now be stale.
func (d Deps) runIngest(ctx context.Context, rc *RunContext) error {
	batch, err := d.Sources.NextIngestBatch(ctx, d.Config.Ingest.BatchSize)
	if err != nil {
		return err
	}
	if len(batch) == 0 {
		log.Printf("jobs: ingest found nothing to do")
		return nil
	}

	maxBytes := int64(d.Config.Ingest.MaxFileSizeMB) << 20
	ingested, failed := 0, 0

	for i, file := range batch {
		if rc.IsCancelled() {
			break
		}

		if err := d.ingestFile(ctx, file, maxBytes); err != nil {
			failed++
			if markErr := d.Sources.MarkFailed(ctx, file.ID, err.Error()); markErr != nil {
				log.Printf("jobs: marking %s failed: %v", file.FilePath, markErr)
			}
		} else {
			ingested++
		}
		rc.Progress(ctx, i+1, len(batch))
	}

	if ingested > 0 && d.Cache != nil {
		if err := d.Cache.PurgeAll(ctx); err != nil {
			log.Printf("jobs: purging response cache: %v", err)
		}
	}

	log.Printf("jobs: ingest finished: %d ingested, %d failed of %d", ingested, failed, len(batch))
	return nil
}

func (d Deps) ingestFile(ctx context.Context, file source.File, maxBytes int64) error {
	if err := d.Sources.SetStatus(ctx, file.ID, source.StatusIngesting); err != nil {
		return err
	}

	if maxBytes > 0 && file.FileSize > maxBytes {
		return fmt.Errorf("file exceeds size limit (%d bytes)", file.FileSize)
	}

	data, err := os.ReadFile(file.FilePath)
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}

	parsed, err := parser.Parse(file.FilePath, data)
	if err != nil {
		return err
	}

	// Hash the extracted text, not the bytes on disk: the same content
	// in two files (or formats) yields one document.
	sum := sha256.Sum256([]byte(parsed.RawText))
	contentHash := hex.EncodeToString(sum[:])

	if existing, err := d.Documents.FindByContentHash(ctx, contentHash); err != nil {
		return err
	} else if existing != nil {
		return d.Sources.MarkIngested(ctx, file.ID, existing.ID)
	}

	pieces := chunker.Split(parsed.RawText)
	chunks := make([]document.Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = document.Chunk{
			ChunkIndex: piece.Index,
			Content:    piece.Content,
			ChunkType:  piece.Type,
			Metadata:   piece.Metadata.Map(),
			StartChar:  piece.StartChar,
			EndChar:    piece.EndChar,
		}
	}

	doc, err := d.Documents.CreateWithChunks(ctx, document.Document{
		ContentHash: contentHash,
		Title:       parsed.Title,
		RawText:     parsed.RawText,
		FileName:    file.FileName,
		FilePath:    file.FilePath,
		FileType:    file.FileType,
		FileSize:    file.FileSize,
		Metadata:    parsed.Metadata,
	}, chunks)
	if err != nil {
		return err
	}

	return d.Sources.MarkIngested(ctx, file.ID, doc.ID)
}
