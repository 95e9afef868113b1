package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/quarry-search/quarry/internal/jobs"
	"github.com/quarry-search/quarry/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the quarry HTTP server",
	Long:  `Starts the quarry server with the REST API, chat streaming, and background job scheduling.`,
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

		maintenance := jobs.NewMaintenance(a.scheduler, a.cache, 24*time.Hour)
		go maintenance.Start(ctx)

		srv := server.New(server.Deps{
			Config:    a.cfg,
			DB:        a.db,
			Sources:   a.sources,
			Documents: a.documents,
			Entities:  a.entities,
			Jobs:      a.jobStore,
			Scheduler: a.scheduler,
			Engine:    a.engine,
			Chat:      a.chat,
			Cache:     a.cache,
			Audit:     a.audit,
			Index:     a.index,
			AI:        a.resolver,
		})

		go func() {
			<-ctx.Done()
			fmt.Fprintln(os.Stderr, "\nShutting down...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()

		fmt.Fprintf(os.Stderr, "quarry v%s starting on port %d\n", Version, a.cfg.Port)
		fmt.Fprintf(os.Stderr, "  Data: %s\n", a.cfg.DataDir)
		fmt.Fprintf(os.Stderr, "  Indexed chunks: %d\n", a.index.Count())

		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
