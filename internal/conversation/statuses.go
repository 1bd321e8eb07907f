// ABOUTME: Run-status cache entries layered over the cache Store
// ABOUTME: Settled statuses never regress to pending ones; only timeout may become completed

package conversation

import (
	"context"
	"errors"
	"log/slog"

	"github.com/2389/tallkotte/internal/cache"
	"github.com/2389/tallkotte/internal/store"
)

// RunStatuses records the locally known status of each run.
type RunStatuses struct {
	cache  cache.Store
	logger *slog.Logger
}

// NewRunStatuses creates a status recorder over c.
func NewRunStatuses(c cache.Store, logger *slog.Logger) *RunStatuses {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunStatuses{cache: c, logger: logger.With("component", "run_status")}
}

func statusKey(runID string) string {
	return cache.Key("runs", runID+":status")
}

// Get returns the cached status. Cache faults read as absent.
func (r *RunStatuses) Get(ctx context.Context, runID string) (store.RunStatus, bool) {
	data, err := r.cache.Get(ctx, statusKey(runID))
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			r.logger.Warn("reading run status failed", "run_id", runID, "error", err)
		}
		return "", false
	}
	return store.RunStatus(data), true
}

// Set records status unless that would move a settled entry backwards.
//
// Completed is final. Timeout is the one settled status that can still change:
// it only means this process stopped waiting, so a later caller that sees the
// run finish overwrites it with completed. Nothing moves either settled status
// back to a pending one.
func (r *RunStatuses) Set(ctx context.Context, runID string, status store.RunStatus) {
	if current, ok := r.Get(ctx, runID); ok && current.Settled() {
		if !status.Settled() || current == store.RunStatusCompleted {
			return
		}
	}
	if err := r.cache.Set(ctx, statusKey(runID), []byte(status)); err != nil {
		r.logger.Warn("writing run status failed", "run_id", runID, "status", status, "error", err)
	}
}
