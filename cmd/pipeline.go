package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/quarry-search/quarry/internal/jobs"
	"github.com/quarry-search/quarry/internal/progress"
)

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Run the full ingestion pipeline",
	Long:  `Crawls all enabled sources, ingests new files, embeds chunks, extracts entities, and rebuilds the vector index.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := a.loadIndex(ctx); err != nil {
			return fmt.Errorf("loading vector index: %w", err)
		}

		job, err := a.scheduler.Enqueue(ctx, jobs.TypePipeline, "cli", nil)
		if err != nil {
			return fmt.Errorf("starting pipeline: %w", err)
		}
		if job.Status == jobs.StatusSkipped {
			return fmt.Errorf("a pipeline job is already running")
		}

		// On interrupt, cancel the job and let the runner wind down.
		go func() {
			<-ctx.Done()
			a.scheduler.Cancel(context.Background(), job.ID)
		}()

		if err := followJob(a, job.ID); err != nil {
			return err
		}
		return nil
	},
}

// followJob polls the job until it reaches a terminal state, rendering
// progress of whichever child stage is currently running.
func followJob(a *app, jobID string) error {
	var reporter progress.Reporter
	var currentStage string

	for {
		time.Sleep(500 * time.Millisecond)

		job, err := a.jobStore.Get(context.Background(), jobID)
		if err != nil {
			return fmt.Errorf("reading job: %w", err)
		}
		if job == nil {
			return fmt.Errorf("job %s disappeared", jobID)
		}

		children, err := a.jobStore.Children(context.Background(), jobID)
		if err != nil {
			return fmt.Errorf("reading child jobs: %w", err)
		}
		for _, child := range children {
			if child.Status != jobs.StatusRunning || child.TotalItems == 0 {
				continue
			}
			if child.ID != currentStage {
				if reporter != nil {
					reporter.Finish()
				}
				reporter = progress.NewReporter(string(child.Type))
				reporter.Start(child.TotalItems)
				currentStage = child.ID
			}
			reporter.Update(child.ProcessedItems, fmt.Sprintf("%s (%d/%d)", child.Type, child.ProcessedItems, child.TotalItems))
		}

		if job.Status.Terminal() {
			if reporter != nil {
				reporter.Finish()
			}
			switch job.Status {
			case jobs.StatusCompleted:
				fmt.Fprintln(os.Stderr, "Pipeline completed.")
				return nil
			case jobs.StatusCancelled:
				fmt.Fprintln(os.Stderr, "Pipeline cancelled.")
				return nil
			default:
				return fmt.Errorf("pipeline failed: %s", job.ErrorMessage)
			}
		}
	}
}

func init() {
	rootCmd.AddCommand(pipelineCmd)
}
