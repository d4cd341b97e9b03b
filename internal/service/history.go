package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/vipul43/jobsync-worker/internal/logging"
	"github.com/vipul43/jobsync-worker/internal/metrics"
	"github.com/vipul43/jobsync-worker/internal/models"
	"github.com/vipul43/jobsync-worker/internal/resilience"
)

// HistoryStore appends history entries.
type HistoryStore interface {
	Create(ctx context.Context, entry models.SyncHistory) error
}

// HistoryRecorder writes one SyncHistory entry per sync attempt.
type HistoryRecorder struct {
	store HistoryStore
	now   func() time.Time
}

func NewHistoryRecorder(store HistoryStore) *HistoryRecorder {
	return &HistoryRecorder{store: store, now: time.Now}
}

// Record stores the outcome of an attempt that started at startedAt. runErr
// nil means success.
func (h *HistoryRecorder) Record(ctx context.Context, accountID string, kind models.SyncKind, startedAt time.Time, runErr error, details models.JSONB) error {
	finished := h.now()
	duration := finished.Sub(startedAt)

	if details == nil {
		details = models.JSONB{}
	}

	entry := models.SyncHistory{
		ID:         uuid.NewString(),
		AccountID:  accountID,
		Kind:       kind,
		Status:     models.SyncStatusSuccess,
		Timestamp:  finished,
		DurationMs: duration.Milliseconds(),
		Details:    details,
	}

	if runErr != nil {
		msg := runErr.Error()
		entry.Status = models.SyncStatusError
		entry.ErrorMessage = &msg

		var open *resilience.BreakerOpenError
		if errors.As(runErr, &open) {
			details["breaker"] = open.Snapshot
		}
	}

	metrics.SyncRuns.WithLabelValues(string(kind), entry.Status).Inc()
	metrics.SyncDuration.WithLabelValues(string(kind)).Observe(duration.Seconds())

	// The entry outlives a cancelled run.
	if err := h.store.Create(context.WithoutCancel(ctx), entry); err != nil {
		logging.Error().
			Err(err).
			Str("account_id", accountID).
			Str("kind", string(kind)).
			Msg("Failed to record sync history")
		return err
	}
	return nil
}
