package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rmarkelov/archivarius/internal/database"
	"github.com/rmarkelov/archivarius/internal/enrich"
)

// Task names, used as schedule map keys.
const (
	TaskSQLMaintenance = "sql_maintenance"
	TaskDescribeSweep  = "describe_sweep"
)

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger    *slog.Logger
	Store     database.Store
	Describer *enrich.Describer
}

// RegisterAllTasks initializes and returns a map of all registered
// scheduled tasks. The keys match the schedule configuration.
func RegisterAllTasks(deps TaskDeps) map[string]ScheduledTaskFunc {
	tasks := make(map[string]ScheduledTaskFunc)

	tasks[TaskSQLMaintenance] = newSQLMaintenanceTask(deps)
	tasks[TaskDescribeSweep] = newDescribeSweepTask(deps)

	deps.Logger.Info("Initialized scheduled tasks", "count", len(tasks))
	return tasks
}

// newSQLMaintenanceTask creates the scheduled task function for running database maintenance.
func newSQLMaintenanceTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", TaskSQLMaintenance)

	return func(ctx context.Context) error {
		log.InfoContext(ctx, "Starting scheduled SQL maintenance task...")
		startTime := time.Now()

		err := deps.Store.RunSQLMaintenance(ctx)

		duration := time.Since(startTime)
		if err != nil {
			log.ErrorContext(ctx, "SQL maintenance task failed", "error", err, "duration", duration)
			return fmt.Errorf("sql maintenance failed: %w", err)
		}

		log.InfoContext(ctx, "Scheduled SQL maintenance task completed successfully", "duration", duration)
		return nil
	}
}

// newDescribeSweepTask creates the scheduled task that re-runs the describe
// fan-out over every export, picking up media whose description calls failed
// in earlier passes.
func newDescribeSweepTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", TaskDescribeSweep)

	return func(ctx context.Context) error {
		exports, err := deps.Store.ListExports(ctx)
		if err != nil {
			return fmt.Errorf("describe sweep: list exports: %w", err)
		}

		for _, export := range exports {
			result, err := deps.Describer.Run(ctx, export.ID)
			if err != nil {
				log.ErrorContext(ctx, "Describe sweep failed for export",
					"export_id", export.ID, "error", err)
				continue
			}
			if result.Processed > 0 || result.Failed > 0 {
				log.InfoContext(ctx, "Describe sweep processed export",
					"export_id", export.ID,
					"processed", result.Processed,
					"failed", result.Failed)
			}
		}
		return nil
	}
}
