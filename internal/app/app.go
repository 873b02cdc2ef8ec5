package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/semmidev/dumpgram/internal/adapter/archiver"
	"github.com/semmidev/dumpgram/internal/adapter/database"
	"github.com/semmidev/dumpgram/internal/adapter/delivery"
	"github.com/semmidev/dumpgram/internal/adapter/storage"
	"github.com/semmidev/dumpgram/internal/config"
	"github.com/semmidev/dumpgram/internal/domain"
	"github.com/semmidev/dumpgram/internal/infrastructure/logger"
	"github.com/semmidev/dumpgram/internal/infrastructure/scheduler"
	"github.com/semmidev/dumpgram/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config    *config.Config
	logger    *logger.Logger
	scheduler *scheduler.Scheduler
	backup    domain.BackupExecutor

	// running guards against overlapping passes from the scheduler and the trigger.
	running sync.Mutex
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	log, err := logger.New(logger.Options{
		Level:  cfg.App.LogLevel,
		File:   cfg.App.LogFile,
		Format: cfg.App.LogFormat,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	log.Infof("Starting %s", cfg.App.Name)

	descriptors := cfg.Descriptors()
	if len(descriptors) == 0 {
		log.Warnf("No databases configured")
	} else {
		log.Infof("Found %d database(s) configured", len(descriptors))
	}

	workspace, err := storage.NewWorkspace(cfg.Backup.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize workspace: %w", err)
	}

	deliverer, err := delivery.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s delivery: %w", cfg.Delivery.Provider, err)
	}
	log.Infof("✓ %s delivery enabled", deliverer.Name())

	opts := usecase.Options{
		ArchiveName:             cfg.Backup.ArchiveName,
		Parallelism:             cfg.Backup.Parallelism,
		CleanupOnPackageFailure: cfg.Backup.CleanupOnPackageFailure,
		CaptionLocation:         cfg.CaptionLocation(),
	}
	if cfg.Backup.RetentionDays > 0 {
		opts.Sweeper = usecase.NewCleanup(workspace, log, cfg.Backup.RetentionDays)
	}

	backup := usecase.NewBackup(
		descriptors,
		workspace,
		database.NewMySQL(cfg.Backup.ConnectTimeout),
		archiver.NewZip(),
		deliverer,
		log,
		opts,
	)

	return newApp(cfg, log, backup), nil
}

func newApp(cfg *config.Config, log *logger.Logger, backup domain.BackupExecutor) *App {
	return &App{
		config:    cfg,
		logger:    log,
		scheduler: scheduler.New(log.SugaredLogger),
		backup:    backup,
	}
}

// RunOnce executes a single backup pass. It reports false without running
// when another pass is in progress.
func (a *App) RunOnce(ctx context.Context) (domain.RunResult, bool) {
	if !a.running.TryLock() {
		return domain.RunResult{}, false
	}
	defer a.running.Unlock()

	return a.backup.Execute(ctx), true
}

// Run executes one pass and returns unless a schedule or trigger is
// configured, in which case it serves them until ctx is cancelled.
func (a *App) Run(ctx context.Context, once bool) error {
	schedule, listen := a.config.Backup.Schedule, a.config.Trigger.Listen

	if once || (schedule == "" && listen == "") {
		result, _ := a.RunOnce(ctx)
		return ResultError(result)
	}

	if schedule != "" {
		if err := a.scheduler.AddJob(schedule, a.scheduledRun); err != nil {
			return fmt.Errorf("failed to schedule backup: %w", err)
		}
		a.scheduler.Start(ctx)
		a.logger.Infof("Scheduler started: %s, next run at %s", schedule, a.scheduler.Next().Format(time.RFC3339))
	}

	errCh := make(chan error, 1)
	var server *http.Server
	if listen != "" {
		server = &http.Server{
			Addr:              listen,
			Handler:           NewTrigger(a, a.config.Trigger.Key, a.logger),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			a.logger.Infof("Trigger server listening on %s", listen)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("trigger server: %w", err)
			}
		}()
	}

	var err error
	select {
	case <-ctx.Done():
	case err = <-errCh:
	}

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			a.logger.Errorf("Failed to shutdown trigger server: %v", shutdownErr)
		}
	}

	return err
}

func (a *App) scheduledRun(ctx context.Context) error {
	a.logger.Infof("=== Triggered scheduled backup ===")
	result, ok := a.RunOnce(ctx)
	if !ok {
		a.logger.Warnf("Previous backup still running, skipping this one")
		return nil
	}
	return ResultError(result)
}

// ResultError turns the run states that lost the backup into an error.
// Delivery and cleanup problems are not among them.
func ResultError(r domain.RunResult) error {
	switch r.State {
	case domain.StateAllDumpsFailed:
		return fmt.Errorf("backup %s: all %d dump(s) failed", r.RunID, r.Attempted)
	case domain.StatePackagingFailed:
		return fmt.Errorf("backup %s: %w", r.RunID, r.PackageErr)
	}
	return nil
}

func (a *App) Shutdown() {
	a.logger.Infof("Shutting down application...")
	a.scheduler.Stop()
	a.logger.Close()
}
