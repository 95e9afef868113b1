package jobs

import (
	"context"
	"fmt"
	"log"
)

// pipelineStages is the fixed order of the full refresh pipeline.
var pipelineStages = []Type{
	TypeCrawl,
	TypeIngest,
	TypeEmbed,
	TypeEntityExtract,
	TypeIndexRebuild,
}

// runPipeline chains the refresh stages as child jobs, stopping at the
// first failure. A stage whose type is already running (for example an
// ingest started by hand) fails the pipeline rather than silently
// skipping the stage.
func runPipeline(ctx context.Context, rc *RunContext) error {
	for i, stage := range pipelineStages {
		if rc.IsCancelled() {
			return nil
		}

		child, err := rc.RunSub(ctx, stage)
		if err != nil {
			return fmt.Errorf("running %s stage: %w", stage, err)
		}

		switch child.Status {
		case StatusCompleted:
			log.Printf("jobs: pipeline stage %s completed (%s)", stage, child.ID)
		case StatusCancelled:
			return nil
		case StatusSkipped:
			return fmt.Errorf("%s stage skipped: %s", stage, child.ErrorMessage)
		default:
			return fmt.Errorf("%s stage %s: %s", stage, child.Status, child.ErrorMessage)
		}

		rc.Progress(ctx, i+1, len(pipelineStages))
	}
	return nil
}
