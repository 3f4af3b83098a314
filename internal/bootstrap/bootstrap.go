package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpadapter "github.com/modelvault/model-ingest/internal/adapters/http"
	"github.com/modelvault/model-ingest/internal/config"
	"github.com/modelvault/model-ingest/internal/core/ports"
	"github.com/modelvault/model-ingest/internal/core/usecase"
	"github.com/modelvault/model-ingest/internal/infrastructure/fetch"
	"github.com/modelvault/model-ingest/internal/infrastructure/notify/webhook"
	"github.com/modelvault/model-ingest/internal/infrastructure/parser/step"
	natsqueue "github.com/modelvault/model-ingest/internal/infrastructure/queue/nats"
	"github.com/modelvault/model-ingest/internal/infrastructure/repository/postgres"
	"github.com/modelvault/model-ingest/internal/infrastructure/resilience"
	"github.com/modelvault/model-ingest/internal/infrastructure/storage/localfs"
	"github.com/modelvault/model-ingest/internal/observability/logging"
	"github.com/modelvault/model-ingest/internal/observability/metrics"
)

// core bundles the pieces shared by the API and the worker.
type core struct {
	db        *sql.DB
	models    *postgres.ModelRepository
	jobs      *postgres.JobRepository
	reports   *postgres.ReportRepository
	processor *usecase.ProcessModelUseCase
	pipeline  *metrics.PipelineMetrics
	logger    *slog.Logger
}

func buildCore(cfg config.Config, service string) (*core, error) {
	logger := logging.NewJSONLogger(service, cfg.LogLevel)
	slog.SetDefault(logger)

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	models := postgres.NewModelRepository(db)
	if err := models.EnsureSchema(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())
	fetcher := fetch.New(storage, executor)
	parser := step.NewParser()

	jobs := postgres.NewJobRepository(db)
	reports := postgres.NewReportRepository(db)
	pipelineMetrics := metrics.NewPipelineMetrics(service)

	processor := usecase.NewProcessModelUseCase(
		models,
		postgres.NewBulkWriter(db),
		reports,
		jobs,
		fetcher,
		parser,
		webhook.New(cfg.CallbackTimeout),
		usecase.WithPipelineMetrics(service, pipelineMetrics),
		usecase.WithLogger(logger),
	)

	return &core{
		db:        db,
		models:    models,
		jobs:      jobs,
		reports:   reports,
		processor: processor,
		pipeline:  pipelineMetrics,
		logger:    logger,
	}, nil
}

type API struct {
	Handler    http.Handler
	Dispatcher *usecase.DispatchUseCase
	Logger     *slog.Logger

	closers []func()
}

func NewAPI(cfg config.Config) (*API, error) {
	c, err := buildCore(cfg, "model-ingest-api")
	if err != nil {
		return nil, err
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		c.db.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}
	executor := resilience.NewExecutor(resilience.DefaultConfig())
	fetcher := fetch.New(storage, executor)
	scanner := step.NewScanner()

	var queue ports.MessageQueue
	closers := []func(){func() { c.db.Close() }}
	if cfg.DispatchMode == config.DispatchModeQueue {
		q, err := natsqueue.New(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			c.db.Close()
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		queue = q
		closers = append(closers, q.Close)
	}

	dispatcher := usecase.NewDispatchUseCase(
		c.processor,
		fetcher,
		scanner,
		c.jobs,
		queue,
		cfg.QuickScanTimeout,
		cfg.WorkerPoolSize,
		c.logger,
	)

	ingest := usecase.NewIngestModelUseCase(c.models, storage)
	reproc := usecase.NewReprocessModelUseCase(c.processor, fetcher, step.NewParser(), c.models)

	httpMetrics := metrics.NewHTTPServerMetrics("model-ingest-api")
	router := httpadapter.NewRouter(cfg, ingest, dispatcher, dispatcher, c.processor, reproc, c.models, c.reports)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(
		prometheus.Gatherers{httpMetrics.Gatherer(), c.pipeline.Gatherer()},
		promhttp.HandlerOpts{},
	))
	mux.Handle("/", httpMetrics.Middleware("model-ingest-api", router.Handler()))

	return &API{
		Handler:    mux,
		Dispatcher: dispatcher,
		Logger:     c.logger,
		closers:    closers,
	}, nil
}

func (a *API) Close() {
	a.Dispatcher.Wait()
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

type Worker struct {
	Processor      *usecase.ProcessModelUseCase
	Queue          *natsqueue.Queue
	Pipeline       *metrics.PipelineMetrics
	MetricsHandler http.Handler
	Logger         *slog.Logger

	db *sql.DB
}

func NewWorker(cfg config.Config) (*Worker, error) {
	c, err := buildCore(cfg, "model-ingest-worker")
	if err != nil {
		return nil, err
	}

	queue, err := natsqueue.New(cfg.NATSURL, cfg.NATSSubject)
	if err != nil {
		c.db.Close()
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	return &Worker{
		Processor:      c.processor,
		Queue:          queue,
		Pipeline:       c.pipeline,
		MetricsHandler: c.pipeline.Handler(),
		Logger:         c.logger,
		db:             c.db,
	}, nil
}

func (w *Worker) Close() {
	w.Queue.Close()
	w.db.Close()
}
