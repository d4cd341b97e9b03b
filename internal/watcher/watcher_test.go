package watcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vipul43/jobsync-worker/internal/models"
	"github.com/vipul43/jobsync-worker/internal/service"
)

type mockAccountLister struct {
	accounts []models.Account
	err      error
}

func (m *mockAccountLister) ListEnabled(context.Context) ([]models.Account, error) {
	return m.accounts, m.err
}

type mockSyncer struct {
	runAccountFunc func(ctx context.Context, accountID string) (service.Outcome, error)
	runs           []string
	cleanups       []string
}

func (m *mockSyncer) RunAccount(ctx context.Context, accountID string) (service.Outcome, error) {
	m.runs = append(m.runs, accountID)
	if m.runAccountFunc != nil {
		return m.runAccountFunc(ctx, accountID)
	}
	return service.Outcome{AccountID: accountID}, nil
}

func (m *mockSyncer) UpdateCleanup(_ context.Context, accountID string) (service.ReconcileStats, error) {
	m.cleanups = append(m.cleanups, accountID)
	return service.ReconcileStats{}, nil
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) advance(d time.Duration) { c.now = c.now.Add(d) }

func account(id, at string) models.Account {
	return models.Account{
		ID:            id,
		SyncEnabled:   true,
		SyncFrequency: models.FrequencyDaily,
		SyncTime:      at,
	}
}

func TestTick_RunsDueAccountsOnce(t *testing.T) {
	clk := &clock{now: time.Date(2025, time.March, 12, 9, 57, 0, 0, time.UTC)}
	lister := &mockAccountLister{accounts: []models.Account{account("due", "10:00"), account("later", "14:00")}}
	syncer := &mockSyncer{}

	w := New(Config{PollInterval: 5 * time.Minute, Now: clk.Now}, lister, syncer)

	require.NoError(t, w.Tick(context.Background()))
	assert.Equal(t, []string{"due"}, syncer.runs)

	// Second poll still inside the window.
	clk.advance(5 * time.Minute)
	require.NoError(t, w.Tick(context.Background()))
	assert.Equal(t, []string{"due"}, syncer.runs)

	// Next day's window.
	clk.advance(24 * time.Hour)
	require.NoError(t, w.Tick(context.Background()))
	assert.Equal(t, []string{"due", "due"}, syncer.runs)
}

func TestTick_FailureDoesNotStopLoop(t *testing.T) {
	clk := &clock{now: time.Date(2025, time.March, 12, 10, 0, 0, 0, time.UTC)}
	lister := &mockAccountLister{accounts: []models.Account{account("a", "10:00"), account("b", "10:00")}}
	syncer := &mockSyncer{
		runAccountFunc: func(_ context.Context, id string) (service.Outcome, error) {
			if id == "a" {
				return service.Outcome{}, errors.New("boom")
			}
			return service.Outcome{AccountID: id}, nil
		},
	}

	w := New(Config{Now: clk.Now}, lister, syncer)
	require.NoError(t, w.Tick(context.Background()))
	assert.Equal(t, []string{"a", "b"}, syncer.runs)
}

func TestTick_Cleanup(t *testing.T) {
	clk := &clock{now: time.Date(2025, time.March, 12, 3, 0, 0, 0, time.UTC)}
	lister := &mockAccountLister{accounts: []models.Account{account("a", "10:00")}}
	syncer := &mockSyncer{}

	w := New(Config{CleanupInterval: 24 * time.Hour, Now: clk.Now}, lister, syncer)

	require.NoError(t, w.Tick(context.Background()))
	assert.Empty(t, syncer.cleanups, "first sight starts the clock")

	clk.advance(12 * time.Hour)
	require.NoError(t, w.Tick(context.Background()))
	assert.Empty(t, syncer.cleanups)

	clk.advance(12 * time.Hour)
	require.NoError(t, w.Tick(context.Background()))
	assert.Equal(t, []string{"a"}, syncer.cleanups)
	assert.Empty(t, syncer.runs)
}

func TestTick_ListError(t *testing.T) {
	w := New(Config{}, &mockAccountLister{err: errors.New("db down")}, &mockSyncer{})
	assert.EqualError(t, w.Tick(context.Background()), "db down")
}

func TestStart_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := New(Config{PollInterval: time.Hour}, &mockAccountLister{}, &mockSyncer{})

	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
}
