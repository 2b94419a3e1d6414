package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/garnizeh/taosdlc/api"
	dbfs "github.com/garnizeh/taosdlc/db"
	"github.com/garnizeh/taosdlc/internal/ai"
	"github.com/garnizeh/taosdlc/internal/config"
	"github.com/garnizeh/taosdlc/internal/content"
	"github.com/garnizeh/taosdlc/internal/db"
	"github.com/garnizeh/taosdlc/internal/jobs"
	"github.com/garnizeh/taosdlc/internal/repository/sqlite"
	"github.com/garnizeh/taosdlc/internal/workflow"
	"github.com/garnizeh/taosdlc/pkg/ollama"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	var configPath = flag.String("config", "", "Path to config YAML file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("server failed", slog.Any("err", err))
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, _ := config.ParseLevel(cfg.LogLevel)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	api.SetLogger(logger)
	ollama.SetLogger(logger.With(slog.String("component", "ollama")))

	logger.Info("starting taosdlc server", slog.String("version", version), slog.String("build_time", buildTime))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open database connection
	conn, err := db.New(ctx, cfg.DatabasePath, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := conn.Close(); err != nil {
			logger.Error("close db", slog.Any("err", err))
		}
	}()

	if cfg.MigrateOnStart {
		if err := db.Migrate(ctx, conn, dbfs.Migrations, dbfs.SeedFiles); err != nil {
			return err
		}
		logger.Info("migrations applied")
	}

	repo := sqlite.New(conn, logger)
	repo.SetJobLease(cfg.Jobs.Lease)
	loader, err := content.NewLoader(ctx, repo)
	if err != nil {
		return err
	}

	svc := workflow.NewService(repo, workflow.Options{
		PhaseCount:       cfg.Workflow.PhaseCount,
		Policy:           workflow.PolicyFromConfig(cfg.Workflow),
		DefaultApprovers: cfg.Workflow.DefaultApprovers,
		Validator:        loader,
		Logger:           logger,
	})

	deps := api.Deps{
		Service:       svc,
		Users:         repo,
		Schemas:       loader,
		AIMaxAttempts: cfg.AI.MaxAttempts,
	}

	var pool *jobs.WorkerPool
	if cfg.AI.Enabled {
		client, err := ollama.NewDefaultClient(cfg.Ollama)
		if err != nil {
			return err
		}
		defer client.Close()

		if err := client.Health(ctx); err != nil {
			logger.Warn("ollama not reachable; jobs will retry", slog.String("base_url", cfg.Ollama.BaseURL), slog.Any("err", err))
		}

		engine, err := ai.NewEngine(client, cfg.AI, loader, logger)
		if err != nil {
			return err
		}
		pool = jobs.NewWorkerPool(repo, map[string]jobs.Handler{
			jobs.TypeGeneratePhase: jobs.GeneratePhaseHandler(svc, engine, logger),
		}, logger, cfg.Jobs.Workers)
		pool.Start(ctx)
		defer pool.Stop()

		deps.Jobs = repo
	}

	handler := api.SetupRoutes(cfg, version, buildTime, deps)

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.APITimeout,
		WriteTimeout: cfg.APITimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", slog.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	logger.Info("server exited")
	return nil
}
