package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gocrud/calllog/core"
	"github.com/gocrud/calllog/di"
	"github.com/gocrud/calllog/logging"
)

type archive struct{ purged int }

func (a *archive) Purge(before time.Time) (int, error) {
	a.purged++
	return 1, nil
}

func TestBuilderValidate(t *testing.T) {
	err := NewBuilder().
		AddJob("not a spec", "bad-spec", func() {}).
		AddJob("@hourly", "", func() {}).
		AddJob("@hourly", "dup", func() {}).
		AddJob("@hourly", "dup", func() {}).
		AddJob("@hourly", "returns", func() int { return 1 }).
		AddJob("@hourly", "not-func", 42).
		Validate()
	require.Error(t, err)
	for _, want := range []string{"bad-spec", "has no name", "'dup' already configured", "may only return error", "must be a function"} {
		assert.ErrorContains(t, err, want)
	}

	assert.Error(t, NewBuilder().WithLocation("Mars/Olympus").Validate())
	assert.Error(t, NewBuilder().AddJob("*/5 * * * * *", "secs", func() {}).Validate())
	assert.NoError(t, NewBuilder().WithSeconds().AddJob("*/5 * * * * *", "secs", func() {}).Validate())
}

func TestRunNowInjectsDependencies(t *testing.T) {
	c := di.NewContainer()
	store := &archive{}
	_, err := di.Provide(c, store)
	require.NoError(t, err)
	require.NoError(t, c.Build())

	var gotCtx context.Context
	s, err := NewBuilder().
		AddJob("@every 1h", "purge", func(ctx context.Context, a *archive) error {
			gotCtx = ctx
			_, err := a.Purge(time.Now())
			return err
		}).
		Build(nil, c)
	require.NoError(t, err)

	require.NoError(t, s.RunNow("purge"))
	assert.Equal(t, 1, store.purged)
	require.NotNil(t, gotCtx)
	assert.NoError(t, gotCtx.Err())

	assert.ErrorIs(t, s.RunNow("missing"), ErrUnknownJob)
}

func TestFailuresAndPanicsAreCounted(t *testing.T) {
	mem := logging.NewMemoryLoggerProvider()
	logger := logging.NewLoggingBuilder().AddProvider(mem).Build().CreateLogger("Scheduler")

	s, err := NewBuilder().
		AddJob("@daily", "fails", func(context.Context) error { return errors.New("disk full") }).
		AddJob("@daily", "panics", func() { panic("boom") }).
		AddJob("@daily", "ok", func() {}).
		Build(logger, nil)
	require.NoError(t, err)

	assert.ErrorContains(t, s.RunNow("fails"), "disk full")
	assert.ErrorContains(t, s.RunNow("panics"), "panicked: boom")
	require.NoError(t, s.RunNow("ok"))

	jobs := s.Jobs()
	require.Len(t, jobs, 3)
	assert.Equal(t, []string{"fails", "ok", "panics"}, []string{jobs[0].Name, jobs[1].Name, jobs[2].Name})
	assert.Equal(t, int64(1), jobs[0].Failures)
	assert.Equal(t, "disk full", jobs[0].LastError)
	assert.Equal(t, int64(0), jobs[1].Failures)
	assert.Equal(t, int64(1), jobs[1].Runs)
	assert.Equal(t, int64(1), jobs[2].Failures)

	var failed int
	for _, e := range mem.Entries() {
		if e.Level == logging.LogLevelError {
			failed++
		}
	}
	assert.Equal(t, 2, failed)
}

func TestDependencyWithoutContainer(t *testing.T) {
	_, err := NewBuilder().
		AddJob("@hourly", "needs-archive", func(a *archive) {}).
		Build(nil, nil)
	assert.ErrorContains(t, err, "no container")
}

func TestScheduledJobRunsAndStops(t *testing.T) {
	ran := make(chan struct{}, 1)
	s, err := NewBuilder().
		WithSeconds().
		AddJob("* * * * * *", "tick", func() {
			select {
			case ran <- struct{}{}:
			default:
			}
		}).
		Build(nil, nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Start(context.Background()) }()

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not run")
	}
	assert.False(t, s.Jobs()[0].Next.IsZero())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	require.NoError(t, <-done)
}

func TestNewRegistersHostedScheduler(t *testing.T) {
	rt := core.NewRuntime()
	require.NoError(t, rt.Apply(core.WithLoggerFactory(logging.NewLoggingBuilder().AddProvider(logging.NewMemoryLoggerProvider()).Build())))
	require.NoError(t, rt.Apply(New(AddJob("@hourly", "noop", func() {}))))
	assert.Equal(t, 1, rt.HostedServices().Len())

	require.NoError(t, rt.Container.Build())
	s, err := di.Resolve[*Scheduler](rt.Container)
	require.NoError(t, err)
	assert.Len(t, s.Jobs(), 1)

	assert.Error(t, core.NewRuntime().Apply(New(AddJob("bogus", "x", func() {}))))
}
