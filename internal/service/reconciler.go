package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vipul43/jobsync-worker/internal/logging"
	"github.com/vipul43/jobsync-worker/internal/metrics"
	"github.com/vipul43/jobsync-worker/internal/models"
	"github.com/vipul43/jobsync-worker/internal/resilience"
)

const (
	DefaultBatchSize   = 29
	DefaultRecordPause = 100 * time.Millisecond
	DefaultBatchPause  = 60 * time.Second

	DefaultLightRetentionDays = 30
	DefaultDeepRetentionDays  = 365
)

// DefaultHorizon is the earliest scheduled date requested from the upstream.
var DefaultHorizon = time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC)

// JobFetcher reads jobs from the field-service API.
type JobFetcher interface {
	ListJobs(ctx context.Context, token string, since time.Time) ([]models.JobRecord, error)
	GetJob(ctx context.Context, token, uuid string) (*models.JobRecord, error)
}

// JobStore persists job records.
type JobStore interface {
	BulkUpsert(ctx context.Context, records []models.JobRecord) error
	FindByAccount(ctx context.Context, accountID string) ([]models.JobRecord, error)
	Replace(ctx context.Context, record models.JobRecord) error
	Delete(ctx context.Context, uuid string) error
}

// Pacer waits between upstream calls. Implementations must return early with
// ctx.Err() when ctx is cancelled.
type Pacer interface {
	Pause(ctx context.Context, d time.Duration) error
}

// PacerFunc adapts a function to Pacer.
type PacerFunc func(ctx context.Context, d time.Duration) error

func (f PacerFunc) Pause(ctx context.Context, d time.Duration) error {
	return f(ctx, d)
}

// RetentionPolicy decides which stored records are old enough to be evicted
// without asking the upstream.
type RetentionPolicy struct {
	Name   string
	MaxAge time.Duration
}

// NewRetentionPolicy builds a policy that expires records scheduled more than
// days ago.
func NewRetentionPolicy(name string, days int) RetentionPolicy {
	return RetentionPolicy{Name: name, MaxAge: time.Duration(days) * 24 * time.Hour}
}

// Cutoff returns the oldest scheduled time that is still kept at now.
func (p RetentionPolicy) Cutoff(now time.Time) time.Time {
	return now.Add(-p.MaxAge)
}

// ReconcileStats summarizes one reconciliation pass.
type ReconcileStats struct {
	Fetched  int `json:"fetched"`
	Stored   int `json:"stored"`
	Batches  int `json:"batches"`
	Updated  int `json:"updated"`
	Deleted  int `json:"deleted"`
	Expired  int `json:"expired"`
	Vanished int `json:"vanished"`
	Failed   int `json:"failed"`
}

// Details renders the stats for a history entry.
func (s ReconcileStats) Details() models.JSONB {
	return models.JSONB{
		"fetched":  s.Fetched,
		"stored":   s.Stored,
		"batches":  s.Batches,
		"updated":  s.Updated,
		"deleted":  s.Deleted,
		"expired":  s.Expired,
		"vanished": s.Vanished,
		"failed":   s.Failed,
	}
}

type ReconcilerConfig struct {
	Horizon     time.Time
	BatchSize   int
	RecordPause time.Duration
	BatchPause  time.Duration

	// Pacer defaults to a context-aware sleep.
	Pacer Pacer
	// Now defaults to time.Now.
	Now func() time.Time
}

// BatchReconciler keeps the local job collection in step with the upstream.
type BatchReconciler struct {
	fetcher JobFetcher
	store   JobStore
	retrier *resilience.Retrier
	cfg     ReconcilerConfig
}

func NewBatchReconciler(fetcher JobFetcher, store JobStore, retrier *resilience.Retrier, cfg ReconcilerConfig) *BatchReconciler {
	if cfg.Horizon.IsZero() {
		cfg.Horizon = DefaultHorizon
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.RecordPause < 0 {
		cfg.RecordPause = 0
	}
	if cfg.BatchPause < 0 {
		cfg.BatchPause = 0
	}
	if cfg.Pacer == nil {
		cfg.Pacer = PacerFunc(resilience.Sleep)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &BatchReconciler{
		fetcher: fetcher,
		store:   store,
		retrier: retrier,
		cfg:     cfg,
	}
}

// FetchAndUpsert pulls every job since the horizon in one call and upserts
// them by UUID. Any failure aborts the pass.
func (r *BatchReconciler) FetchAndUpsert(ctx context.Context, account *models.Account) (int, error) {
	jobs, err := resilience.Do(ctx, r.retrier, "list_jobs", func(ctx context.Context) ([]models.JobRecord, error) {
		return r.fetcher.ListJobs(ctx, account.UpstreamToken, r.cfg.Horizon)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to fetch jobs: %w", err)
	}

	for i := range jobs {
		jobs[i].AccountID = account.ID
	}

	if err := r.store.BulkUpsert(ctx, jobs); err != nil {
		return 0, err
	}

	metrics.ReconciledRecords.WithLabelValues("fetched").Add(float64(len(jobs)))
	logging.Info().
		Str("account_id", account.ID).
		Int("fetched", len(jobs)).
		Time("horizon", r.cfg.Horizon).
		Msg("Fetched and upserted jobs")

	return len(jobs), nil
}

// RefreshAndEvict walks every stored record of the account in batches.
// Records past the policy's cutoff are deleted without an upstream call; the
// rest are re-fetched and replaced, or deleted if the upstream no longer has
// them. A record whose refresh fails is counted and left untouched.
func (r *BatchReconciler) RefreshAndEvict(ctx context.Context, account *models.Account, policy RetentionPolicy) (ReconcileStats, error) {
	var stats ReconcileStats

	records, err := r.store.FindByAccount(ctx, account.ID)
	if err != nil {
		return stats, err
	}
	stats.Stored = len(records)
	if len(records) == 0 {
		return stats, nil
	}

	cutoff := policy.Cutoff(r.cfg.Now())
	batches := chunk(records, r.cfg.BatchSize)

	log := logging.With().
		Str("account_id", account.ID).
		Str("policy", policy.Name).
		Logger()
	log.Info().
		Int("records", len(records)).
		Int("batches", len(batches)).
		Time("cutoff", cutoff).
		Msg("Refreshing stored jobs")

	for i, batch := range batches {
		stats.Batches++

		for _, record := range batch {
			if err := ctx.Err(); err != nil {
				return stats, err
			}

			r.reconcileOne(ctx, account, record, cutoff, &stats)

			if err := r.cfg.Pacer.Pause(ctx, r.cfg.RecordPause); err != nil {
				return stats, err
			}
		}

		if i < len(batches)-1 {
			log.Debug().
				Int("batch", i+1).
				Dur("pause", r.cfg.BatchPause).
				Msg("Pausing between batches")
			if err := r.cfg.Pacer.Pause(ctx, r.cfg.BatchPause); err != nil {
				return stats, err
			}
		}
	}

	log.Info().
		Int("updated", stats.Updated).
		Int("expired", stats.Expired).
		Int("vanished", stats.Vanished).
		Int("failed", stats.Failed).
		Msg("Refresh completed")

	return stats, nil
}

func (r *BatchReconciler) reconcileOne(ctx context.Context, account *models.Account, record models.JobRecord, cutoff time.Time, stats *ReconcileStats) {
	if record.ScheduledAt.Before(cutoff) {
		if err := r.store.Delete(ctx, record.UUID); err != nil {
			r.fail(stats, record.UUID, err)
			return
		}
		stats.Expired++
		stats.Deleted++
		metrics.ReconciledRecords.WithLabelValues("expired").Inc()
		return
	}

	fresh, err := resilience.Do(ctx, r.retrier, "get_job", func(ctx context.Context) (*models.JobRecord, error) {
		return r.fetcher.GetJob(ctx, account.UpstreamToken, record.UUID)
	})
	switch {
	case errors.Is(err, resilience.ErrNotFound):
		if err := r.store.Delete(ctx, record.UUID); err != nil {
			r.fail(stats, record.UUID, err)
			return
		}
		stats.Vanished++
		stats.Deleted++
		metrics.ReconciledRecords.WithLabelValues("vanished").Inc()
	case err != nil:
		r.fail(stats, record.UUID, err)
	default:
		fresh.AccountID = account.ID
		if err := r.store.Replace(ctx, *fresh); err != nil {
			r.fail(stats, record.UUID, err)
			return
		}
		stats.Updated++
		metrics.ReconciledRecords.WithLabelValues("updated").Inc()
	}
}

func (r *BatchReconciler) fail(stats *ReconcileStats, uuid string, err error) {
	stats.Failed++
	metrics.ReconciledRecords.WithLabelValues("failed").Inc()
	logging.Warn().Err(err).Str("uuid", uuid).Msg("Failed to refresh job")
}

func chunk(records []models.JobRecord, size int) [][]models.JobRecord {
	var batches [][]models.JobRecord
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		batches = append(batches, records[start:end])
	}
	return batches
}
