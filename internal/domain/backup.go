package domain

import (
	"context"
	"time"
)

// State is the terminal state of one backup run.
type State string

const (
	StateNoDatabases     State = "no-databases-configured"
	StateAllDumpsFailed  State = "all-dumps-failed"
	StatePackagingFailed State = "packaging-failed"
	StateCompleted       State = "completed"
)

type DumpArtifact struct {
	Database string
	Path     string
}

type ArchiveArtifact struct {
	Path    string
	Entries []string
}

type DumpFailure struct {
	Database string
	Err      error
}

// RunResult describes what a single backup run did. Delivery and cleanup
// errors are recorded here instead of failing the run.
type RunResult struct {
	RunID       string
	State       State
	Attempted   int
	Dumps       []DumpArtifact
	Failures    []DumpFailure
	Archive     *ArchiveArtifact
	PackageErr  error
	Delivered   bool
	DeliveryErr error
	CleanupErrs []error
	StartedAt   time.Time
	Duration    time.Duration
}

// Summary is the JSON-friendly view of a RunResult.
type Summary struct {
	RunID       string   `json:"run_id"`
	State       State    `json:"state"`
	Attempted   int      `json:"attempted"`
	Succeeded   []string `json:"succeeded"`
	Failed      []string `json:"failed"`
	Delivered   bool     `json:"delivered"`
	Error       string   `json:"error,omitempty"`
	CleanupErrs []string `json:"cleanup_errors,omitempty"`
	StartedAt   string   `json:"started_at"`
	Duration    string   `json:"duration"`
}

func (r RunResult) Summary() Summary {
	s := Summary{
		RunID:     r.RunID,
		State:     r.State,
		Attempted: r.Attempted,
		Succeeded: make([]string, 0, len(r.Dumps)),
		Failed:    make([]string, 0, len(r.Failures)),
		Delivered: r.Delivered,
		StartedAt: r.StartedAt.Format(time.RFC3339),
		Duration:  r.Duration.String(),
	}
	for _, d := range r.Dumps {
		s.Succeeded = append(s.Succeeded, d.Database)
	}
	for _, f := range r.Failures {
		s.Failed = append(s.Failed, f.Database)
	}
	switch {
	case r.PackageErr != nil:
		s.Error = r.PackageErr.Error()
	case r.DeliveryErr != nil:
		s.Error = r.DeliveryErr.Error()
	}
	for _, err := range r.CleanupErrs {
		s.CleanupErrs = append(s.CleanupErrs, err.Error())
	}
	return s
}

// BackupExecutor runs one complete backup pass.
type BackupExecutor interface {
	Execute(ctx context.Context) RunResult
}
