package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelvault/model-ingest/internal/bootstrap"
	"github.com/modelvault/model-ingest/internal/config"
	"github.com/modelvault/model-ingest/internal/core/domain"
)

func main() {
	cfg := config.Load()

	app, err := bootstrap.NewWorker(cfg)
	if err != nil {
		slog.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           app.MetricsHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.Logger.Error("metrics server failed", "error", err)
		}
	}()

	handler := func(jobCtx context.Context, job domain.ProcessJob) error {
		if !job.EnqueuedAt.IsZero() {
			app.Pipeline.ObserveQueueLag("model-ingest-worker", time.Since(job.EnqueuedAt))
		}

		result := app.Processor.ProcessSync(jobCtx, job.ModelID, job.Source, domain.ProcessOptions{
			SkipGeometry: job.SkipGeometry,
			CallbackURL:  job.CallbackURL,
		})
		if !result.Success {
			app.Logger.Warn("pipeline finished with errors",
				"model_id", job.ModelID,
				"status", result.Status,
				"error", result.Error,
			)
		}
		return nil
	}

	app.Logger.Info("worker consuming", "subject", cfg.NATSSubject)
	if err := app.Queue.SubscribeProcessJobs(ctx, handler); err != nil {
		app.Logger.Error("subscribe failed", "error", err)
		os.Exit(1)
	}
	app.Logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}
