package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shillsphere/market-peak-pilot-sub000/config"
)

// mockRequeuer is a simple LeaseRequeuer implementation for testing.
type mockRequeuer struct {
	mu     sync.Mutex
	calls  int
	counts []int64
	err    error
}

func (m *mockRequeuer) RequeueExpired(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return 0, m.err
	}
	if len(m.counts) == 0 {
		return 0, nil
	}
	count := m.counts[0]
	m.counts = m.counts[1:]
	return count, nil
}

func (m *mockRequeuer) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func TestNewReaperService_RequiresQueues(t *testing.T) {
	_, err := NewReaperService(ReaperServiceOptions{
		Research: &mockRequeuer{},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "distribution queue")

	_, err = NewReaperService(ReaperServiceOptions{
		Distribution: &mockRequeuer{},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "research queue")

	svc, err := NewReaperService(ReaperServiceOptions{
		Distribution: &mockRequeuer{},
		Research:     &mockRequeuer{},
		Config:       config.ReaperConfig{Interval: time.Minute},
	})
	require.NoError(t, err)
	require.NotNil(t, svc)
}

func TestReaperService_RunRequeue_BothQueues(t *testing.T) {
	distribution := &mockRequeuer{counts: []int64{3}}
	research := &mockRequeuer{counts: []int64{1}}

	svc, err := NewReaperService(ReaperServiceOptions{
		Distribution: distribution,
		Research:     research,
		Config:       config.ReaperConfig{Interval: time.Minute},
		Logger:       slog.Default(),
	})
	require.NoError(t, err)

	require.NoError(t, svc.runRequeue(context.Background()))
	assert.Equal(t, 1, distribution.callCount())
	assert.Equal(t, 1, research.callCount())
}

func TestReaperService_RunRequeue_OneQueueFailing(t *testing.T) {
	distribution := &mockRequeuer{err: errors.New("connection reset")}
	research := &mockRequeuer{counts: []int64{2}}

	svc, err := NewReaperService(ReaperServiceOptions{
		Distribution: distribution,
		Research:     research,
		Config:       config.ReaperConfig{Interval: time.Minute},
	})
	require.NoError(t, err)

	err = svc.runRequeue(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requeue expired distribution jobs")

	// The failing queue must not stop the other from being drained.
	assert.Equal(t, 1, research.callCount())
}

func TestReaperService_RunRequeue_ContextCanceled(t *testing.T) {
	distribution := &mockRequeuer{err: context.Canceled}
	research := &mockRequeuer{err: context.Canceled}

	svc, err := NewReaperService(ReaperServiceOptions{
		Distribution: distribution,
		Research:     research,
		Config:       config.ReaperConfig{Interval: time.Minute},
	})
	require.NoError(t, err)

	err = svc.runRequeue(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReaperService_Run_StopsOnCancel(t *testing.T) {
	distribution := &mockRequeuer{}
	research := &mockRequeuer{}

	svc, err := NewReaperService(ReaperServiceOptions{
		Distribution: distribution,
		Research:     research,
		Config:       config.ReaperConfig{Interval: 10 * time.Millisecond},
		Logger:       slog.Default(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	// Let at least one tick fire, then cancel.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case runErr := <-done:
		assert.NoError(t, runErr)
	case <-time.After(2 * time.Second):
		t.Fatal("reaper did not stop after cancel")
	}

	assert.GreaterOrEqual(t, distribution.callCount(), 1)
}
