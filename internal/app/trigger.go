package app

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/semmidev/dumpgram/internal/domain"
	"github.com/semmidev/dumpgram/internal/usecase"
)

// Runner starts a backup pass unless one is already running.
type Runner interface {
	RunOnce(ctx context.Context) (domain.RunResult, bool)
}

// Trigger runs a backup on GET /?run_backup=1 with the shared key given as
// the key query parameter or the X-Backup-Key header.
type Trigger struct {
	runner Runner
	key    []byte
	logger usecase.Logger
}

func NewTrigger(runner Runner, key string, logger usecase.Logger) *Trigger {
	return &Trigger{runner: runner, key: []byte(key), logger: logger}
}

func (t *Trigger) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()
	if !query.Has("run_backup") {
		http.Error(w, "missing run_backup parameter", http.StatusBadRequest)
		return
	}

	key := r.Header.Get("X-Backup-Key")
	if key == "" {
		key = query.Get("key")
	}
	if len(t.key) == 0 || subtle.ConstantTimeCompare([]byte(key), t.key) != 1 {
		t.logger.Warnf("Rejected backup trigger from %s", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	t.logger.Infof("=== Triggered backup via HTTP from %s ===", r.RemoteAddr)

	// the pass outlives a client that hangs up
	result, ok := t.runner.RunOnce(context.WithoutCancel(r.Context()))
	if !ok {
		http.Error(w, "backup already in progress", http.StatusConflict)
		return
	}

	status := http.StatusOK
	if ResultError(result) != nil {
		status = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(result.Summary()); err != nil {
		t.logger.Errorf("Failed to write trigger response: %v", err)
	}
}
