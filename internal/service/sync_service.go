package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vipul43/jobsync-worker/internal/logging"
	"github.com/vipul43/jobsync-worker/internal/models"
	"github.com/vipul43/jobsync-worker/internal/schedule"
)

// AccountRepository interface for dependency injection
type AccountRepository interface {
	GetByID(ctx context.Context, accountID string) (*models.Account, error)
	UpdateSyncDates(ctx context.Context, accountID string, lastSync time.Time, nextSync *time.Time) error
}

// Reconciler is the job collection sync.
type Reconciler interface {
	FetchAndUpsert(ctx context.Context, account *models.Account) (int, error)
	RefreshAndEvict(ctx context.Context, account *models.Account, policy RetentionPolicy) (ReconcileStats, error)
}

// Publisher writes an account's conversions to its sink.
type Publisher interface {
	Publish(ctx context.Context, account *models.Account) (PublishStats, error)
}

// Recorder stores sync history.
type Recorder interface {
	Record(ctx context.Context, accountID string, kind models.SyncKind, startedAt time.Time, runErr error, details models.JSONB) error
}

type SyncConfig struct {
	LightRetention RetentionPolicy
	DeepRetention  RetentionPolicy
	// Now defaults to time.Now.
	Now func() time.Time
}

// Outcome is the result of a full account run.
type Outcome struct {
	AccountID     string          `json:"account_id"`
	Jobs          *ReconcileStats `json:"jobs,omitempty"`
	Sheets        *PublishStats   `json:"sheets,omitempty"`
	SheetsSkipped bool            `json:"sheets_skipped,omitempty"`
}

// SyncService runs the per-account pipeline and records every attempt.
// Concurrent calls for the same account and kind share one execution.
type SyncService struct {
	accounts   AccountRepository
	reconciler Reconciler
	publisher  Publisher
	recorder   Recorder
	cfg        SyncConfig
	group      singleflight.Group
}

func NewSyncService(accounts AccountRepository, reconciler Reconciler, publisher Publisher, recorder Recorder, cfg SyncConfig) *SyncService {
	if cfg.LightRetention.MaxAge == 0 {
		cfg.LightRetention = NewRetentionPolicy("light", DefaultLightRetentionDays)
	}
	if cfg.DeepRetention.MaxAge == 0 {
		cfg.DeepRetention = NewRetentionPolicy("deep", DefaultDeepRetentionDays)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &SyncService{
		accounts:   accounts,
		reconciler: reconciler,
		publisher:  publisher,
		recorder:   recorder,
		cfg:        cfg,
	}
}

// SyncJobs fetches the account's jobs, refreshes the stored ones under the
// deep retention policy and, on success, advances the account's sync dates.
func (s *SyncService) SyncJobs(ctx context.Context, accountID string) (ReconcileStats, error) {
	v, err := s.coalesce(accountID, models.SyncKindJobs, func() (interface{}, error) {
		return s.syncJobs(ctx, accountID)
	})
	stats, _ := v.(ReconcileStats)
	return stats, err
}

func (s *SyncService) syncJobs(ctx context.Context, accountID string) (ReconcileStats, error) {
	startedAt := s.cfg.Now()
	account, err := s.load(ctx, accountID, models.SyncKindJobs, startedAt)
	if err != nil {
		return ReconcileStats{}, err
	}

	stats, err := s.runJobs(ctx, account)
	return stats, s.record(ctx, accountID, models.SyncKindJobs, startedAt, err, stats.Details())
}

func (s *SyncService) runJobs(ctx context.Context, account *models.Account) (ReconcileStats, error) {
	fetched, err := s.reconciler.FetchAndUpsert(ctx, account)
	if err != nil {
		return ReconcileStats{}, err
	}

	stats, err := s.reconciler.RefreshAndEvict(ctx, account, s.cfg.DeepRetention)
	stats.Fetched = fetched
	if err != nil {
		return stats, fmt.Errorf("failed to refresh jobs: %w", err)
	}

	now := s.cfg.Now()
	var next *time.Time
	if n, err := schedule.NextRunAfter(schedule.CadenceOf(account), now); err != nil {
		logging.Warn().Err(err).Str("account_id", account.ID).Msg("Could not compute next sync date")
	} else {
		next = &n
	}

	if err := s.accounts.UpdateSyncDates(ctx, account.ID, now, next); err != nil {
		return stats, err
	}
	return stats, nil
}

// SyncSheets publishes the account's stored jobs to its sheet.
func (s *SyncService) SyncSheets(ctx context.Context, accountID string) (PublishStats, error) {
	v, err := s.coalesce(accountID, models.SyncKindSheets, func() (interface{}, error) {
		startedAt := s.cfg.Now()
		account, err := s.load(ctx, accountID, models.SyncKindSheets, startedAt)
		if err != nil {
			return PublishStats{}, err
		}

		stats, err := s.publisher.Publish(ctx, account)
		return stats, s.record(ctx, accountID, models.SyncKindSheets, startedAt, err, stats.Details())
	})
	stats, _ := v.(PublishStats)
	return stats, err
}

// UpdateCleanup refreshes stored jobs under the light retention policy
// without a bulk fetch.
func (s *SyncService) UpdateCleanup(ctx context.Context, accountID string) (ReconcileStats, error) {
	v, err := s.coalesce(accountID, models.SyncKindUpdateCleanup, func() (interface{}, error) {
		startedAt := s.cfg.Now()
		account, err := s.load(ctx, accountID, models.SyncKindUpdateCleanup, startedAt)
		if err != nil {
			return ReconcileStats{}, err
		}

		stats, err := s.reconciler.RefreshAndEvict(ctx, account, s.cfg.LightRetention)
		return stats, s.record(ctx, accountID, models.SyncKindUpdateCleanup, startedAt, err, stats.Details())
	})
	stats, _ := v.(ReconcileStats)
	return stats, err
}

// RunAccount syncs jobs and then, if that succeeded, the sheet.
func (s *SyncService) RunAccount(ctx context.Context, accountID string) (Outcome, error) {
	v, err := s.coalesce(accountID, "run", func() (interface{}, error) {
		outcome := Outcome{AccountID: accountID}

		jobs, err := s.SyncJobs(ctx, accountID)
		outcome.Jobs = &jobs
		if err != nil {
			outcome.SheetsSkipped = true
			return outcome, err
		}

		sheets, err := s.SyncSheets(ctx, accountID)
		outcome.Sheets = &sheets
		outcome.SheetsSkipped = sheets.Skipped
		return outcome, err
	})
	outcome, _ := v.(Outcome)
	return outcome, err
}

func (s *SyncService) coalesce(accountID string, kind models.SyncKind, fn func() (interface{}, error)) (interface{}, error) {
	v, err, shared := s.group.Do(accountID+"/"+string(kind), fn)
	if shared {
		logging.Debug().Str("account_id", accountID).Str("kind", string(kind)).Msg("Joined in-flight sync")
	}
	return v, err
}

// load fetches the account for an attempt of the given kind. An unknown
// account has nothing to record against; any other lookup failure is
// recorded as a failed attempt.
func (s *SyncService) load(ctx context.Context, accountID string, kind models.SyncKind, startedAt time.Time) (*models.Account, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err == nil {
		return account, nil
	}
	err = fmt.Errorf("failed to get account: %w", err)
	if errors.Is(err, models.ErrAccountNotFound) {
		return nil, err
	}
	return nil, s.record(ctx, accountID, kind, startedAt, err, nil)
}

// record logs and stores the attempt. It returns runErr joined with any
// history write failure, so a lost audit entry fails the attempt.
func (s *SyncService) record(ctx context.Context, accountID string, kind models.SyncKind, startedAt time.Time, runErr error, details models.JSONB) error {
	event := logging.Info()
	if runErr != nil {
		event = logging.Error().Err(runErr)
	}
	event.Str("account_id", accountID).
		Str("kind", string(kind)).
		Dur("duration", s.cfg.Now().Sub(startedAt)).
		Msg("Sync finished")

	if err := s.recorder.Record(ctx, accountID, kind, startedAt, runErr, details); err != nil {
		return errors.Join(runErr, fmt.Errorf("failed to record sync history: %w", err))
	}
	return runErr
}
