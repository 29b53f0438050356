// Package main contains the entrypoint for the archive service.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rmarkelov/archivarius/internal/config"
	"github.com/rmarkelov/archivarius/internal/database"
	"github.com/rmarkelov/archivarius/internal/describe"
	"github.com/rmarkelov/archivarius/internal/embed"
	"github.com/rmarkelov/archivarius/internal/enrich"
	"github.com/rmarkelov/archivarius/internal/jobs"
	"github.com/rmarkelov/archivarius/internal/logger"
	"github.com/rmarkelov/archivarius/internal/notify"
	"github.com/rmarkelov/archivarius/internal/pipeline"
	"github.com/rmarkelov/archivarius/internal/scheduler"
	"github.com/rmarkelov/archivarius/internal/server"
	"github.com/rmarkelov/archivarius/internal/vector"

	_ "modernc.org/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run initializes and starts all application components (config, logger, db,
// model clients, vector store, scheduler, HTTP server), handles graceful
// shutdown, and returns an exit code (0 for success, 1 for failure).
func run(ctx context.Context) int {
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Log.Level, cfg.Log.Format == "json")
	log.Info("Logger initialized", "level", cfg.Log.Level, "format", cfg.Log.Format)

	db, err := database.NewDB(cfg.Database.Path, cfg.Database.ConnMaxLifetime)
	if err != nil {
		log.Error("Failed to connect to database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	describer, err := describe.New(ctx, cfg.Describe, log)
	if err != nil {
		log.Error("Failed to initialize image describer", "error", err)
		return 1
	}
	embedModel := embed.NewEmbedder(cfg.Embed, log)

	vectors, err := vector.NewStore(cfg.Qdrant, log)
	if err != nil {
		log.Error("Failed to connect to vector store", "error", err)
		return 1
	}
	defer vectors.Close()

	notifier, err := notify.New(cfg.Telegram, log)
	if err != nil {
		log.Error("Failed to initialize notifier", "error", err)
		return 1
	}

	ingestor := pipeline.NewIngestor(store, cfg.Ingest.ArtifactDir, cfg.Ingest.NGramSize, log)
	describeFanout := enrich.NewDescriber(store, describer, cfg.Describe.PageSize, cfg.Describe.Workers, log)
	embedFanout := enrich.NewEmbedder(store, embedModel, vectors, cfg.Embed.BatchSize, log)
	runner := jobs.NewRunner(store, notifier, log)

	sched, err := scheduler.NewScheduler(log, map[string]string{
		scheduler.TaskSQLMaintenance: cfg.Jobs.MaintenanceCron,
		scheduler.TaskDescribeSweep:  cfg.Jobs.SweepCron,
	}, scheduler.RegisterAllTasks(scheduler.TaskDeps{
		Logger:    log,
		Store:     store,
		Describer: describeFanout,
	}))
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}
	if err := sched.Start(); err != nil {
		log.Error("Failed to start scheduler", "error", err)
		return 1
	}
	defer func() {
		if err := sched.Stop(); err != nil {
			log.Error("Failed to stop scheduler", "error", err)
		}
	}()

	srv := server.New(server.Deps{
		Config:          cfg.Server,
		Store:           store,
		Ingestor:        ingestor,
		Describer:       describeFanout,
		Embedder:        embedFanout,
		Model:           embedModel,
		Vectors:         vectors,
		Runner:          runner,
		GarbageSpecPath: cfg.Ingest.GarbageSpecPath,
		Logger:          log,
	})

	log.Info("Starting service...")
	runErr := srv.Run(ctx)
	log.Info("Server run loop finished. Initiating shutdown...")

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Service stopped due to error", "error", runErr)
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Service stopped gracefully.")
	time.Sleep(time.Second)
	return 0
}
