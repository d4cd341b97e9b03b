package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func failing() (int, error) { return 0, errBoom }

func succeeding() (int, error) { return 1, nil }

func newTestBreaker(threshold uint32, recovery time.Duration) *CircuitBreaker {
	return NewCircuitBreaker(BreakerConfig{
		Name:             "test",
		FailureThreshold: threshold,
		RecoveryTimeout:  recovery,
	})
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	b := newTestBreaker(3, time.Hour)

	for i := 0; i < 3; i++ {
		_, err := Execute(b, failing)
		require.ErrorIs(t, err, errBoom)
	}

	snap := b.Snapshot()
	assert.Equal(t, StateOpen, snap.State)
	assert.Equal(t, uint32(3), snap.Failures)
	assert.Greater(t, snap.RetryIn, time.Duration(0))
	require.NotNil(t, snap.LastFailure)

	called := false
	_, err := Execute(b, func() (int, error) {
		called = true
		return 1, nil
	})
	require.ErrorIs(t, err, ErrBreakerOpen)
	assert.False(t, called, "open breaker must not invoke the operation")

	var openErr *BreakerOpenError
	require.ErrorAs(t, err, &openErr)
	assert.Equal(t, "test", openErr.Snapshot.Name)
	assert.Equal(t, StateOpen, openErr.Snapshot.State)
}

func TestCircuitBreaker_SuccessResetsCounter(t *testing.T) {
	b := newTestBreaker(3, time.Hour)

	_, _ = Execute(b, failing)
	_, _ = Execute(b, failing)
	assert.Equal(t, uint32(2), b.Snapshot().Failures)

	v, err := Execute(b, succeeding)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, uint32(0), b.Snapshot().Failures)

	// Two more failures do not reach the threshold again.
	_, _ = Execute(b, failing)
	_, _ = Execute(b, failing)
	assert.Equal(t, StateClosed, b.Snapshot().State)
}

func TestCircuitBreaker_ProbeSuccessCloses(t *testing.T) {
	b := newTestBreaker(2, 50*time.Millisecond)

	_, _ = Execute(b, failing)
	_, _ = Execute(b, failing)
	require.Equal(t, StateOpen, b.Snapshot().State)

	time.Sleep(80 * time.Millisecond)

	v, err := Execute(b, succeeding)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	snap := b.Snapshot()
	assert.Equal(t, StateClosed, snap.State)
	assert.Equal(t, uint32(0), snap.Failures)
	assert.Equal(t, time.Duration(0), snap.RetryIn)
}

func TestCircuitBreaker_ProbeFailureReopens(t *testing.T) {
	b := newTestBreaker(2, 50*time.Millisecond)

	_, _ = Execute(b, failing)
	_, _ = Execute(b, failing)
	time.Sleep(80 * time.Millisecond)

	_, err := Execute(b, failing)
	require.ErrorIs(t, err, errBoom)

	snap := b.Snapshot()
	assert.Equal(t, StateOpen, snap.State)
	assert.Equal(t, uint32(3), snap.Failures)

	_, err = Execute(b, succeeding)
	assert.ErrorIs(t, err, ErrBreakerOpen)
}

func TestCircuitBreaker_SingleProbeInHalfOpen(t *testing.T) {
	b := newTestBreaker(1, 30*time.Millisecond)

	_, _ = Execute(b, failing)
	time.Sleep(50 * time.Millisecond)

	release := make(chan struct{})
	started := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = Execute(b, func() (int, error) {
			close(started)
			<-release
			return 1, nil
		})
	}()

	<-started
	_, err := Execute(b, succeeding)
	assert.ErrorIs(t, err, ErrBreakerOpen, "a second call during the probe must be rejected")

	close(release)
	wg.Wait()
	assert.Equal(t, StateClosed, b.Snapshot().State)
}

func TestCircuitBreaker_NotFoundIsHealthy(t *testing.T) {
	b := newTestBreaker(1, time.Hour)

	_, err := Execute(b, func() (int, error) { return 0, ErrNotFound })
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, StateClosed, b.Snapshot().State)
	assert.Equal(t, uint32(0), b.Snapshot().Failures)
}

func TestExecute_NilBreaker(t *testing.T) {
	v, err := Execute[int](nil, succeeding)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}
