package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/quarry-search/quarry/internal/source"
)

var errCancelled = errors.New("job cancelled")

// runCrawl walks every enabled crawl source and upserts what it finds
// into the file index. Re-crawling an unchanged tree is a no-op for
// already-ingested files; changed content resets them to discovered.
func (d Deps) runCrawl(ctx context.Context, rc *RunContext) error {
	sources, err := d.Sources.ListSources(ctx, true)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		log.Printf("jobs: crawl found no enabled sources")
		return nil
	}

	// Progress counts sources, not files: the file total is unknown
	// until the walk finishes.
	rc.Progress(ctx, 0, len(sources))

	discovered := 0
	for i, src := range sources {
		if rc.IsCancelled() {
			return nil
		}

		err := source.Walk(src, func(f source.File) error {
			if rc.IsCancelled() {
				return errCancelled
			}
			if _, err := d.Sources.UpsertFile(ctx, f); err != nil {
				return err
			}
			discovered++
			return nil
		})
		if errors.Is(err, errCancelled) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("crawling source %s: %w", src.Name, err)
		}

		rc.Progress(ctx, i+1, len(sources))
	}

	log.Printf("jobs: crawl indexed %d files across %d sources", discovered, len(sources))
	return nil
}
