package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/iter"
	"go.uber.org/multierr"

	"github.com/semmidev/dumpgram/internal/domain"
)

// CaptionLayout formats the delivery caption.
const CaptionLayout = "2006-01-02 15:04:05"

// Workspace is where dump files and the archive live for the duration of a run.
type Workspace interface {
	GetPath(filename string) string
	Remove(path string) error
}

type Logger interface {
	Infof(template string, args ...interface{})
	Errorf(template string, args ...interface{})
	Warnf(template string, args ...interface{})
}

// Sweeper purges stale files before a run starts.
type Sweeper interface {
	Execute(ctx context.Context) error
}

type sizeLimiter interface {
	SizeLimit() int64
}

type Options struct {
	ArchiveName string

	// Parallelism bounds concurrent dumps. 1 dumps databases one after another.
	Parallelism int

	// CleanupOnPackageFailure removes dump files when packaging fails.
	// By default they are kept so the data is not lost.
	CleanupOnPackageFailure bool

	CaptionLocation *time.Location

	Sweeper Sweeper
}

type Backup struct {
	databases []domain.DatabaseDescriptor
	workspace Workspace
	dumper    domain.Dumper
	packager  domain.Packager
	deliverer domain.Deliverer
	logger    Logger
	opts      Options
	now       func() time.Time
}

func NewBackup(
	databases []domain.DatabaseDescriptor,
	workspace Workspace,
	dumper domain.Dumper,
	packager domain.Packager,
	deliverer domain.Deliverer,
	logger Logger,
	opts Options,
) *Backup {
	if opts.ArchiveName == "" {
		opts.ArchiveName = "backup.zip"
	}
	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}
	if opts.CaptionLocation == nil {
		opts.CaptionLocation = time.Local
	}

	return &Backup{
		databases: databases,
		workspace: workspace,
		dumper:    dumper,
		packager:  packager,
		deliverer: deliverer,
		logger:    logger,
		opts:      opts,
		now:       time.Now,
	}
}

type dumpOutcome struct {
	artifact domain.DumpArtifact
	failure  *domain.DumpFailure
}

// Execute runs collect, package, deliver and cleanup once. It never returns an
// error; the outcome of every stage is reported in the RunResult.
func (uc *Backup) Execute(ctx context.Context) (result domain.RunResult) {
	start := uc.now()
	runID := uuid.NewString()
	result = domain.RunResult{
		RunID:     runID,
		Attempted: len(uc.databases),
		StartedAt: start,
	}
	defer func() {
		result.Duration = uc.now().Sub(start)
	}()

	uc.logger.Infof("[%s] Starting backup of %d database(s)...", runID, len(uc.databases))

	if uc.opts.Sweeper != nil {
		if err := uc.opts.Sweeper.Execute(ctx); err != nil {
			uc.logger.Warnf("[%s] Sweeping stale files failed: %v", runID, err)
		}
	}

	if len(uc.databases) == 0 {
		uc.logger.Warnf("[%s] No databases configured, nothing to do", runID)
		result.State = domain.StateNoDatabases
		return result
	}

	result.Dumps, result.Failures = uc.collect(ctx, runID)

	if len(result.Dumps) == 0 {
		uc.logger.Errorf("[%s] All %d dump(s) failed, skipping archive and delivery", runID, len(uc.databases))
		result.State = domain.StateAllDumpsFailed
		return result
	}

	archivePath := uc.workspace.GetPath(uc.opts.ArchiveName)
	if err := uc.pack(runID, result.Dumps, archivePath); err != nil {
		result.State = domain.StatePackagingFailed
		result.PackageErr = err

		if uc.opts.CleanupOnPackageFailure {
			result.CleanupErrs = uc.cleanup(runID, dumpPaths(result.Dumps))
		} else {
			uc.logger.Warnf("[%s] Keeping %d dump file(s) in place after packaging failure", runID, len(result.Dumps))
		}
		return result
	}

	result.Archive = &domain.ArchiveArtifact{Path: archivePath}
	if entries, err := uc.packager.Entries(archivePath); err != nil {
		uc.logger.Warnf("[%s] Could not list archive entries: %v", runID, err)
	} else {
		result.Archive.Entries = entries
	}

	result.DeliveryErr = uc.deliver(ctx, runID, archivePath)
	result.Delivered = result.DeliveryErr == nil

	result.CleanupErrs = uc.cleanup(runID, append(dumpPaths(result.Dumps), archivePath))
	result.State = domain.StateCompleted

	uc.logger.Infof("[%s] Backup completed in %s: %d succeeded, %d failed, delivered=%t",
		runID, uc.now().Sub(start).Round(time.Millisecond), len(result.Dumps), len(result.Failures), result.Delivered)

	return result
}

// collect dumps every database in configured order. A failure only affects
// its own database.
func (uc *Backup) collect(ctx context.Context, runID string) ([]domain.DumpArtifact, []domain.DumpFailure) {
	mapper := iter.Mapper[domain.DatabaseDescriptor, dumpOutcome]{
		MaxGoroutines: uc.opts.Parallelism,
	}
	outcomes := mapper.Map(uc.databases, func(db *domain.DatabaseDescriptor) dumpOutcome {
		return uc.dump(ctx, runID, *db)
	})

	var (
		dumps    []domain.DumpArtifact
		failures []domain.DumpFailure
	)
	for _, o := range outcomes {
		if o.failure != nil {
			failures = append(failures, *o.failure)
			continue
		}
		dumps = append(dumps, o.artifact)
	}
	return dumps, failures
}

func (uc *Backup) dump(ctx context.Context, runID string, db domain.DatabaseDescriptor) dumpOutcome {
	path := uc.workspace.GetPath(db.DumpFileName())

	uc.logger.Infof("[%s] [%s] Dumping %s database to: %s", runID, db.Name, uc.dumper.GetType(), path)
	if err := uc.dumper.Dump(ctx, db, path); err != nil {
		uc.logger.Errorf("[%s] [%s] Dump failed: %v", runID, db.Name, err)
		return dumpOutcome{failure: &domain.DumpFailure{Database: db.Name, Err: err}}
	}

	if info, err := os.Stat(path); err == nil {
		uc.logger.Infof("[%s] [%s] Dump created, size: %.2f MB", runID, db.Name, megabytes(info.Size()))
	}

	return dumpOutcome{artifact: domain.DumpArtifact{Database: db.Name, Path: path}}
}

func (uc *Backup) pack(runID string, dumps []domain.DumpArtifact, archivePath string) error {
	uc.logger.Infof("[%s] Packaging %d dump(s) into %s...", runID, len(dumps), archivePath)

	if err := uc.packager.Package(dumpPaths(dumps), archivePath); err != nil {
		uc.logger.Errorf("[%s] Packaging failed: %v", runID, err)
		return err
	}

	if info, err := os.Stat(archivePath); err == nil {
		uc.logger.Infof("[%s] Archive created, size: %.2f MB", runID, megabytes(info.Size()))
	}
	return nil
}

// deliver makes a single attempt. Its error is only recorded.
func (uc *Backup) deliver(ctx context.Context, runID, archivePath string) error {
	name := uc.deliverer.Name()
	caption := uc.now().In(uc.opts.CaptionLocation).Format(CaptionLayout)

	if limiter, ok := uc.deliverer.(sizeLimiter); ok {
		if info, err := os.Stat(archivePath); err == nil && info.Size() > limiter.SizeLimit() {
			uc.logger.Warnf("[%s] Archive is %.2f MB, above the %.0f MB %s limit; trying anyway",
				runID, megabytes(info.Size()), megabytes(limiter.SizeLimit()), name)
		}
	}

	uc.logger.Infof("[%s] Delivering archive to %s...", runID, name)
	if err := uc.deliverer.Deliver(ctx, archivePath, caption); err != nil {
		uc.logger.Errorf("[%s] Failed to deliver to %s: %v", runID, name, err)
		return err
	}

	uc.logger.Infof("[%s] Successfully delivered to %s", runID, name)
	return nil
}

// cleanup removes every path and returns the failures, one per file.
func (uc *Backup) cleanup(runID string, paths []string) []error {
	var errs error
	for _, path := range paths {
		if err := uc.workspace.Remove(path); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w: %w", filepath.Base(path), domain.ErrCleanup, err))
		}
	}

	cleanupErrs := multierr.Errors(errs)
	for _, err := range cleanupErrs {
		uc.logger.Warnf("[%s] Cleanup: %v", runID, err)
	}
	return cleanupErrs
}

func dumpPaths(dumps []domain.DumpArtifact) []string {
	paths := make([]string, 0, len(dumps))
	for _, d := range dumps {
		paths = append(paths, d.Path)
	}
	return paths
}

func megabytes(n int64) float64 {
	return float64(n) / (1024 * 1024)
}
