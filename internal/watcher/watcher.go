package watcher

import (
	"context"
	"errors"
	"time"

	"github.com/vipul43/jobsync-worker/internal/logging"
	"github.com/vipul43/jobsync-worker/internal/models"
	"github.com/vipul43/jobsync-worker/internal/resilience"
	"github.com/vipul43/jobsync-worker/internal/schedule"
	"github.com/vipul43/jobsync-worker/internal/service"
)

// AccountLister lists accounts with scheduled sync turned on.
type AccountLister interface {
	ListEnabled(ctx context.Context) ([]models.Account, error)
}

// AccountSyncer runs the per-account pipelines.
type AccountSyncer interface {
	RunAccount(ctx context.Context, accountID string) (service.Outcome, error)
	UpdateCleanup(ctx context.Context, accountID string) (service.ReconcileStats, error)
}

type Config struct {
	PollInterval    time.Duration
	CleanupInterval time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// Watcher polls the enabled accounts and runs the ones whose schedule is due.
// Accounts are processed one at a time.
type Watcher struct {
	cfg      Config
	accounts AccountLister
	syncer   AccountSyncer

	lastRun     map[string]time.Time
	lastCleanup map[string]time.Time
}

func New(cfg Config, accounts AccountLister, syncer AccountSyncer) *Watcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Watcher{
		cfg:         cfg,
		accounts:    accounts,
		syncer:      syncer,
		lastRun:     make(map[string]time.Time),
		lastCleanup: make(map[string]time.Time),
	}
}

// Start polls until ctx is cancelled
func (w *Watcher) Start(ctx context.Context) error {
	logging.Info().
		Dur("poll_interval", w.cfg.PollInterval).
		Dur("cleanup_interval", w.cfg.CleanupInterval).
		Msg("Starting account sync watcher")

	if err := w.Tick(ctx); err != nil {
		logging.Warn().Err(err).Msg("Failed to process accounts on startup")
	}

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("Watcher shutting down")
			return ctx.Err()
		case <-ticker.C:
			if err := w.Tick(ctx); err != nil {
				logging.Error().Err(err).Msg("Error processing accounts")
			}
		}
	}
}

// Tick runs one poll over all enabled accounts.
func (w *Watcher) Tick(ctx context.Context) error {
	accounts, err := w.accounts.ListEnabled(ctx)
	if err != nil {
		return err
	}

	for i := range accounts {
		if err := ctx.Err(); err != nil {
			return err
		}
		w.processAccount(ctx, &accounts[i])
	}
	return nil
}

func (w *Watcher) processAccount(ctx context.Context, account *models.Account) {
	now := w.cfg.Now()

	if w.isDue(account, now) {
		w.lastRun[account.ID] = now
		w.lastCleanup[account.ID] = now

		outcome, err := w.syncer.RunAccount(ctx, account.ID)
		if err != nil {
			logFailure(account.ID, "run", err)
			return
		}
		event := logging.Info().Str("account_id", account.ID)
		if outcome.Jobs != nil {
			event = event.Int("updated", outcome.Jobs.Updated).Int("deleted", outcome.Jobs.Deleted).Int("failed", outcome.Jobs.Failed)
		}
		event.Bool("sheets_skipped", outcome.SheetsSkipped).Msg("Scheduled sync completed")
		return
	}

	if w.isCleanupDue(account.ID, now) {
		w.lastCleanup[account.ID] = now

		stats, err := w.syncer.UpdateCleanup(ctx, account.ID)
		if err != nil {
			logFailure(account.ID, "cleanup", err)
			return
		}
		logging.Info().
			Str("account_id", account.ID).
			Int("updated", stats.Updated).
			Int("deleted", stats.Deleted).
			Msg("Update cleanup completed")
	}
}

// isDue applies the schedule and suppresses a second run inside the same
// time-of-day window.
func (w *Watcher) isDue(account *models.Account, now time.Time) bool {
	if !schedule.ShouldRunNow(schedule.CadenceOf(account), account.LastSyncDate, now) {
		return false
	}
	if last, ok := w.lastRun[account.ID]; ok && now.Sub(last) <= 2*schedule.Window {
		return false
	}
	return true
}

// isCleanupDue starts the cleanup clock the first time an account is seen.
func (w *Watcher) isCleanupDue(accountID string, now time.Time) bool {
	if w.cfg.CleanupInterval <= 0 {
		return false
	}
	last, ok := w.lastCleanup[accountID]
	if !ok {
		w.lastCleanup[accountID] = now
		return false
	}
	return now.Sub(last) >= w.cfg.CleanupInterval
}

func logFailure(accountID, op string, err error) {
	var open *resilience.BreakerOpenError
	if errors.As(err, &open) {
		logging.Warn().
			Str("account_id", accountID).
			Str("op", op).
			Str("breaker", open.Snapshot.Name).
			Dur("retry_in", open.Snapshot.RetryIn).
			Msg("Skipped account, service unavailable")
		return
	}
	logging.Error().Err(err).Str("account_id", accountID).Str("op", op).Msg("Failed to process account")
}
