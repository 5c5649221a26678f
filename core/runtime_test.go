package core

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gocrud/calllog/di"
	"github.com/gocrud/calllog/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counterService struct {
	started atomic.Int32
	stopped atomic.Int32
	fail    error
}

func (s *counterService) Start(ctx context.Context) error {
	s.started.Add(1)
	if s.fail != nil {
		return s.fail
	}
	<-ctx.Done()
	return nil
}

func (s *counterService) Stop(ctx context.Context) error {
	s.stopped.Add(1)
	return nil
}

func newTestRuntime(t *testing.T) (*Runtime, *logging.MemoryLoggerProvider) {
	t.Helper()
	mem := logging.NewMemoryLoggerProvider()
	rt := NewRuntime()
	require.NoError(t, rt.Apply(WithLogging(func(b *logging.LoggingBuilder) {
		b.SetMinimumLevel(logging.LogLevelTrace).AddProvider(mem)
	})))
	return rt, mem
}

func TestLifecycleStopRunsInReverseAndJoinsErrors(t *testing.T) {
	rt, mem := newTestRuntime(t)

	var order []int
	errA := errors.New("a")
	errB := errors.New("b")
	rt.Lifecycle.OnStop(func(context.Context) error { order = append(order, 1); return errA })
	rt.Lifecycle.OnStop(func(context.Context) error { order = append(order, 2); return nil })
	rt.Lifecycle.OnStop(func(context.Context) error { order = append(order, 3); return errB })

	err := rt.Stop(context.Background())
	assert.Equal(t, []int{3, 2, 1}, order)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)

	failures := 0
	for _, e := range mem.Entries() {
		if e.Message == "stop hook failed" {
			failures++
		}
	}
	assert.Equal(t, 2, failures)
}

func TestLoggerFactoryIsInjectable(t *testing.T) {
	rt, mem := newTestRuntime(t)
	require.NoError(t, rt.Container.Build())

	factory, err := di.Resolve[logging.LoggerFactory](rt.Container)
	require.NoError(t, err)
	factory.CreateLogger("Injected").Info("hello")

	entries := mem.Entries()
	require.NotEmpty(t, entries)
	assert.Equal(t, "Injected", entries[len(entries)-1].Category)
}

func TestHostedServiceLifecycle(t *testing.T) {
	rt, _ := newTestRuntime(t)
	svc := &counterService{}
	require.NoError(t, rt.Apply(WithHostedService(svc)))
	require.NoError(t, rt.Container.Build())

	require.NoError(t, rt.Start(context.Background()))
	assert.Eventually(t, func() bool { return svc.started.Load() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, rt.Stop(ctx))
	assert.Equal(t, int32(1), svc.stopped.Load())
}

func TestHostedServicesStopBeforeStopHooks(t *testing.T) {
	rt, _ := newTestRuntime(t)
	var order []string
	rt.Lifecycle.OnStart(func(context.Context) error { order = append(order, "hook-start"); return nil })
	rt.Lifecycle.OnStop(func(context.Context) error { order = append(order, "hook-stop"); return nil })
	require.NoError(t, rt.Apply(WithHostedInstance("drain", hostedFunc{
		stop: func() { order = append(order, "service-stop") },
	})))
	require.NoError(t, rt.Container.Build())

	require.NoError(t, rt.Start(context.Background()))
	require.NoError(t, rt.Stop(context.Background()))
	assert.Equal(t, []string{"hook-start", "service-stop", "hook-stop"}, order)
}

type hostedFunc struct{ stop func() }

func (h hostedFunc) Start(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (h hostedFunc) Stop(context.Context) error {
	h.stop()
	return nil
}

func TestFailingHostedServiceRequestsShutdown(t *testing.T) {
	rt, _ := newTestRuntime(t)

	var handled atomic.Value
	rt.ErrorHandler = func(err error) { handled.Store(err) }

	require.NoError(t, rt.Apply(WithHostedInstance("broken", &counterService{fail: errors.New("boom")})))
	require.NoError(t, rt.Container.Build())
	require.NoError(t, rt.Start(context.Background()))

	select {
	case <-rt.Done():
	case <-time.After(time.Second):
		t.Fatal("runtime was not shut down")
	}
	require.NotNil(t, handled.Load())
	assert.Contains(t, handled.Load().(error).Error(), "boom")

	// 重复调用不应 panic
	rt.Shutdown()
	require.NoError(t, rt.Stop(context.Background()))
}

func TestWithHostedServiceRejectsNonService(t *testing.T) {
	rt, _ := newTestRuntime(t)
	err := rt.Apply(WithHostedService(func() *struct{ Name string } { return &struct{ Name string }{} }))
	assert.Error(t, err)
}

func TestWorker(t *testing.T) {
	rt, _ := newTestRuntime(t)
	ran := make(chan struct{})
	require.NoError(t, rt.Apply(WithWorker("tick", func(ctx context.Context) error {
		close(ran)
		<-ctx.Done()
		return ctx.Err()
	})))
	require.NoError(t, rt.Container.Build())
	require.NoError(t, rt.Start(context.Background()))
	<-ran
	require.NoError(t, rt.Stop(context.Background()))

	select {
	case <-rt.Done():
		t.Fatal("context cancellation must not trigger shutdown")
	default:
	}
}

type marker interface{ Mark() string }
type markerImpl struct{}

func (markerImpl) Mark() string { return "x" }

func TestFeatures(t *testing.T) {
	rt := NewRuntime()
	SetFeature[marker](rt, markerImpl{})
	rt.Features.Set(&counterService{})

	assert.Equal(t, "x", GetFeature[marker](rt).Mark())
	assert.NotNil(t, GetFeature[*counterService](rt))
	assert.Nil(t, GetFeature[*Runtime](rt))
}
