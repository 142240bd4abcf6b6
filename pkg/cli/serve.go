package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"lake-wap/internal/api"
	"lake-wap/internal/service/pipeline"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	var (
		addr       string
		noSchedule bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the ops API and run the pipeline on its schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt := runtimeFrom(cmd)
			cfg := rt.Config()
			logger := rt.Logger()
			if addr == "" {
				addr = cfg.ListenAddr
			}

			ledger, err := rt.Ledger(ctx)
			if err != nil {
				return err
			}
			n, err := ledger.FailInterruptedRuns(ctx, "interrupted: server restarted before the run finished")
			if err != nil {
				return fmt.Errorf("recover run ledger: %w", err)
			}
			if n > 0 {
				logger.Warn("marked interrupted runs as failed", "count", n)
			}

			svc, err := rt.Pipeline(ctx)
			if err != nil {
				return err
			}

			var sched *pipeline.Scheduler
			if !noSchedule {
				sched = pipeline.NewScheduler(svc, cfg.Pipeline.Schedule, logger)
				if err := sched.Start(ctx); err != nil {
					return err
				}
				logger.Info("scheduler started", "schedule", cfg.Pipeline.Schedule, "next", sched.Next())
			}

			handler := api.NewHandler(svc, rt.HealthChecks(), logger)
			srv := &http.Server{
				Addr:              addr,
				Handler:           handler.Router(),
				ReadHeaderTimeout: 10 * time.Second,
				BaseContext:       func(net.Listener) context.Context { return ctx },
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("ops API listening", "addr", addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case <-ctx.Done():
				logger.Info("shutting down")
			case err := <-errCh:
				if err != nil {
					stopScheduler(sched)
					return fmt.Errorf("ops API: %w", err)
				}
			}

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("ops API shutdown", "error", err)
			}
			stopScheduler(sched)

			// Let in-flight runs record their final state.
			svc.Wait()
			logger.Info("shutdown complete")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default LISTEN_ADDR)")
	cmd.Flags().BoolVar(&noSchedule, "no-schedule", false, "Serve the API without the scheduler")
	return cmd
}

func stopScheduler(s *pipeline.Scheduler) {
	if s != nil {
		s.Stop()
	}
}
