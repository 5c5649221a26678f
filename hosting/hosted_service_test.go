package hosting

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gocrud/calllog/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackgroundServiceStopIsIdempotent(t *testing.T) {
	svc := NewBackgroundService("idle", logging.NewNopLogger())
	go svc.Start(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, svc.Stop(ctx))
	require.NoError(t, svc.Stop(ctx))
	assert.True(t, svc.ShouldStop())
}

func TestBackgroundServiceStopTimeout(t *testing.T) {
	svc := NewBackgroundService("never-started", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, svc.Stop(ctx), context.DeadlineExceeded)
}

func TestTimedHostedServiceRunsTask(t *testing.T) {
	var runs atomic.Int32
	svc := NewTimedHostedService("tick", 5*time.Millisecond, func(ctx context.Context) error {
		if runs.Add(1) == 1 {
			return errors.New("first run fails")
		}
		return nil
	}, nil)

	go svc.Start(context.Background())
	assert.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, time.Millisecond)

	require.NoError(t, svc.Stop(context.Background()))
}

type failingService struct{ err error }

func (f failingService) Start(context.Context) error { return f.err }
func (f failingService) Stop(context.Context) error  { return nil }

func TestManagerReportsFailures(t *testing.T) {
	mem := logging.NewMemoryLoggerProvider()
	logger := logging.NewLoggerFactory(logging.LogLevelTrace)
	logger.AddProvider(mem)

	m := NewHostedServiceManager(logger.CreateLogger("Hosting"))
	m.Add("bad", failingService{err: errors.New("boom")})
	m.Add("idle", NewBackgroundService("idle", nil))
	assert.Equal(t, 2, m.Len())

	errCh, err := m.StartAll()
	require.NoError(t, err)

	select {
	case err := <-errCh:
		assert.Contains(t, err.Error(), "bad")
	case <-time.After(time.Second):
		t.Fatal("expected failure")
	}

	_, err = m.StartAll()
	assert.Error(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, m.StopAll(ctx))
	require.NoError(t, m.StopAll(ctx))
}

func TestManagerResolveError(t *testing.T) {
	m := NewHostedServiceManager(nil)
	m.AddLazy("missing", func() (HostedService, error) { return nil, errors.New("not registered") })
	_, err := m.StartAll()
	assert.ErrorContains(t, err, "missing")
}
