package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/opsinsight/reportcore/pkg/audit"
	"github.com/opsinsight/reportcore/pkg/database"
	"github.com/opsinsight/reportcore/pkg/jobs"
	"github.com/opsinsight/reportcore/pkg/server"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the job workers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			defer a.close()
			return a.serve(cmd.Context(), true)
		},
	}
	cmd.Flags().String("listen", ":8080", "Address to listen on")
	cmd.Flags().Int("concurrency", 3, "Number of job workers")
	cmd.Flags().Bool("workers", true, "Run job workers in this process")
	return cmd
}

func newWorkerCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run only the job workers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			defer a.close()
			a.cfg.Jobs.Enabled = true
			return a.serve(cmd.Context(), false)
		},
	}
	cmd.Flags().Int("concurrency", 3, "Number of job workers")
	return cmd
}

func newMigrateCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			defer a.close()
			if err := database.Migrate(cmd.Context(), a.db, server.Models()...); err != nil {
				return err
			}
			a.logger.Info("schema migrated", "driver", a.cfg.Database.Driver, "tables", len(server.Models()))
			return nil
		},
	}
}

// serve runs until SIGINT or SIGTERM. The HTTP listener runs only when
// withHTTP is set; workers run when jobs are enabled.
func (a *app) serve(parent context.Context, withHTTP bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(ctx, a.db, server.Models()...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	wf, err := a.workflow(ctx)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	if a.cfg.Jobs.Enabled {
		pool := jobs.NewWorkerPool(jobs.NewJobStore(a.db), wf, &a.cfg.Jobs, a.logger.With("component", "jobs"))
		g.Go(func() error {
			pool.Run(ctx)
			return nil
		})
	}

	if !withHTTP {
		a.logger.Info("reportd worker ready", "concurrency", a.cfg.Jobs.Concurrency)
		return g.Wait()
	}

	srv := server.New(a.db, a.cfg, nil, a.logger)
	if store := srv.AuditStore(); store != nil {
		retention := audit.NewRetentionWorker(store, a.cfg.Audit.RetentionDays, a.logger.With("component", "audit"))
		g.Go(func() error {
			retention.Run(ctx)
			return nil
		})
	}

	httpServer := &http.Server{
		Addr:    a.cfg.HTTP.Addr,
		Handler: srv.Handler(),
	}
	g.Go(func() error {
		a.logger.Info("reportd ready", "listen", a.cfg.HTTP.Addr, "workers", a.cfg.Jobs.Enabled)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		a.logger.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("HTTP server shutdown error", "error", err)
		}
		return nil
	})

	err = g.Wait()
	a.logger.Info("reportd stopped")
	return err
}
