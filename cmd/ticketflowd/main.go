// ticketflowd is the invoice ticket pipeline server: HTTP API, background
// stage dispatcher, and optional drop-directory watcher.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/zavaops/ticketflow/internal/agent"
	"github.com/zavaops/ticketflow/internal/blob"
	"github.com/zavaops/ticketflow/internal/common"
	"github.com/zavaops/ticketflow/internal/export"
	"github.com/zavaops/ticketflow/internal/extract"
	"github.com/zavaops/ticketflow/internal/httpapi"
	"github.com/zavaops/ticketflow/internal/ingest"
	"github.com/zavaops/ticketflow/internal/metrics"
	"github.com/zavaops/ticketflow/internal/pipeline"
	"github.com/zavaops/ticketflow/internal/refdata"
	"github.com/zavaops/ticketflow/internal/simulate"
	"github.com/zavaops/ticketflow/internal/store"
)

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func main() {
	cfg := common.LoadConfig()
	logger := newLogger(cfg.App.LogLevel)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("config.invalid", "err", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Ticket store: Postgres when DB_URL is set, in-memory otherwise.
	var ticketStore store.TicketStore
	if cfg.Database.DSN != "" {
		pool, err := store.Open(ctx, cfg.Database, logger)
		if err != nil {
			logger.Error("db.open.failed", "err", err)
			os.Exit(1)
		}
		defer store.Close(pool, logger)

		pg, err := store.NewPostgresStore(ctx, pool, logger)
		if err != nil {
			logger.Error("db.migrate.failed", "err", err)
			os.Exit(1)
		}
		ticketStore = pg
		logger.Info("store.postgres.ready")
	} else {
		ticketStore = store.NewMemoryStore()
		logger.Warn("store.memory.active", "hint", "set DB_URL for persistence")
	}

	blobs, err := blob.NewFSStore(cfg.Blob.Dir)
	if err != nil {
		logger.Error("blob.init.failed", "dir", cfg.Blob.Dir, "err", err)
		os.Exit(1)
	}

	mappings := refdata.LoadOrDefault(cfg.Pipeline.CodeMappings)

	var analyzer extract.DocumentAnalyzer
	if cfg.Analyzer.Endpoint != "" {
		analyzer = extract.NewHTTPAnalyzer(cfg.Analyzer)
		logger.Info("analyzer.remote.configured", "endpoint", cfg.Analyzer.Endpoint)
	}

	stageB := agent.NewCaller("stage_b", cfg.Agents.StageBURL, cfg.Agents.StageBKey,
		cfg.Agents.CallTimeout, cfg.Agents.RetryDelay, logger)
	stageC := agent.NewCaller("stage_c", cfg.Agents.StageCURL, cfg.Agents.StageCKey,
		cfg.Agents.CallTimeout, cfg.Agents.RetryDelay, logger)

	orc := pipeline.NewOrchestrator(ticketStore, blobs,
		extract.NewExtractor(analyzer, logger),
		stageB, stageC,
		simulate.NewStandardizer(mappings, logger),
		simulate.NewInvoiceProcessor(mappings, logger),
		cfg, logger)

	dispatcher := pipeline.NewDispatcher(orc, logger,
		pipeline.WithIdleAfter(cfg.Pipeline.DispatcherIdle))

	ingestSvc := ingest.NewService(ticketStore, blobs, dispatcher, logger)

	if cfg.Ingest.WatchDir != "" {
		watcher := ingest.NewWatcher(cfg.Ingest.WatchDir, cfg.Ingest.SettleDelay, ingestSvc, logger)
		go func() {
			if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("watch.exited", "err", err)
			}
		}()
	}

	app := &httpapi.App{
		Store:      ticketStore,
		Ingest:     ingestSvc,
		Dispatcher: dispatcher,
		Metrics:    metrics.NewService(ticketStore, logger),
		Export:     export.NewService(ticketStore, logger),
		Mappings:   mappings,
		Logger:     logger,
	}

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: httpapi.NewRouter(app),
	}

	go func() {
		logger.Info("http.listen", "addr", cfg.Server.HTTPAddr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http.serve.failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown.start")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http.shutdown.forced", "err", err)
	}
	dispatcher.Shutdown(shutdownCtx)
	logger.Info("shutdown.done")
}
