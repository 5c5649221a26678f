package calllog_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gocrud/calllog"
	"github.com/gocrud/calllog/config"
	"github.com/gocrud/calllog/core"
	"github.com/gocrud/calllog/di"
	"github.com/gocrud/calllog/formatting"
	"github.com/gocrud/calllog/interception"
	"github.com/gocrud/calllog/logging"
	"github.com/gocrud/calllog/settings"
	"github.com/gocrud/calllog/sinks"
)

var processOrder = interception.NewMethod("OrderService", "ProcessOrder", "")

// closingSink 模拟在 OnStop 中关闭连接的后端
type closingSink struct {
	mu      sync.Mutex
	closed  bool
	written []string
	late    int
}

func (s *closingSink) Write(_ context.Context, msg formatting.FormattedMessage, _ logging.LogLevel, destination string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.late++
		return errors.New("connection closed")
	}
	s.written = append(s.written, destination)
	return nil
}

func (s *closingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.written)
}

func withClosingSink(s *closingSink) core.Option {
	return func(rt *core.Runtime) error {
		rt.Lifecycle.OnStop(func(context.Context) error {
			s.mu.Lock()
			s.closed = true
			s.mu.Unlock()
			return nil
		})
		return sinks.FromRuntime(rt).Add("closing", s)
	}
}

func quietLogging() core.Option {
	return core.WithLoggerFactory(logging.NewLoggingBuilder().AddProvider(logging.NewMemoryLoggerProvider()).Build())
}

func serve(t *testing.T, rt *core.Runtime) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- calllog.Serve(ctx, rt) }()
	return func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(calllog.ShutdownTimeout + time.Second):
			t.Fatal("runtime did not stop")
		}
	}
}

func TestConfiguredRulesEndToEnd(t *testing.T) {
	cfg := config.NewConfigurationBuilder().AddInMemory(map[string]any{
		"calllog": map[string]any{
			"level":         "debug",
			"defaultTarget": "calls",
			"methods": []any{
				map[string]any{"pattern": "OrderService.*", "log": "both", "formatter": "json"},
			},
		},
	})

	rt, err := calllog.Bootstrap(
		quietLogging(),
		config.Use(cfg),
		calllog.New(calllog.WithRecordBuffer(10)),
	)
	require.NoError(t, err)
	stop := serve(t, rt)

	interceptor, err := di.Resolve[*interception.Interceptor](rt.Container)
	require.NoError(t, err)
	records, err := di.Resolve[*sinks.MemorySink](rt.Container)
	require.NoError(t, err)

	n, err := interception.Invoke(interceptor, processOrder, func() (int, error) { return 3, nil }, "order-1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// 未匹配规则、未注册为服务的方法不记录
	_ = interceptor.Do(interception.NewMethod("Helper", "Run", ""), func() error { return nil })

	require.Eventually(t, func() bool { return records.Len() == 1 }, 2*time.Second, 5*time.Millisecond)
	r := records.Records()[0]
	assert.Equal(t, "calls", r.Destination)
	assert.Equal(t, logging.LogLevelDebug.String(), r.Level)
	assert.True(t, r.Success)
	assert.Contains(t, r.Message, "order-1")

	stop()
	e := core.GetFeature[*calllog.Engine](rt)
	require.NotNil(t, e)
	assert.True(t, e.Queue.Stats().Closed)
	assert.Equal(t, int64(1), e.Consumer.Consumed())
}

func TestPendingEntriesDrainBeforeBackendsClose(t *testing.T) {
	sink := &closingSink{}
	rt, err := calllog.Bootstrap(
		quietLogging(),
		withClosingSink(sink),
		calllog.New(calllog.WithSettings(func() settings.Options {
			o := settings.DefaultOptions()
			o.Methods = []settings.Rule{{Pattern: "OrderService.*"}}
			return o
		}())),
	)
	require.NoError(t, err)

	interceptor, err := di.Resolve[*interception.Interceptor](rt.Container)
	require.NoError(t, err)

	// 消费者启动前进入队列的条目
	for range 50 {
		require.NoError(t, interceptor.Do(processOrder, func() error { return nil }))
	}

	stop := serve(t, rt)
	stop()

	assert.Equal(t, 50, sink.count())
	assert.Zero(t, sink.late)
}

func TestPassThroughWritesOnCallerGoroutine(t *testing.T) {
	opts := settings.DefaultOptions()
	opts.Mode = settings.ModePassThrough
	opts.Methods = []settings.Rule{{Pattern: "OrderService.ProcessOrder", Log: "input"}}

	rt, err := calllog.Bootstrap(quietLogging(), calllog.New(
		calllog.WithSettings(opts),
		calllog.WithRecordBuffer(5),
	))
	require.NoError(t, err)
	stop := serve(t, rt)
	defer stop()

	e := core.GetFeature[*calllog.Engine](rt)
	require.NotNil(t, e)
	_, err = interception.Invoke(e.Interceptor, processOrder, func() (string, error) {
		return "", errors.New("out of stock")
	})
	require.Error(t, err)

	// 同步写入，无需等待
	require.Equal(t, 1, e.Records.Len())
	r := e.Records.Records()[0]
	assert.False(t, r.Success)
	assert.Equal(t, "OrderService", r.Destination)
}

func TestPassThroughWarnsAboutRemoteSinks(t *testing.T) {
	opts := settings.DefaultOptions()
	opts.Mode = settings.ModePassThrough

	mem := logging.NewMemoryLoggerProvider()
	rt, err := calllog.Bootstrap(
		core.WithLoggerFactory(logging.NewLoggingBuilder().AddProvider(mem).Build()),
		withClosingSink(&closingSink{}),
		calllog.New(calllog.WithSettings(opts), calllog.WithRecordBuffer(5)),
	)
	require.NoError(t, err)
	// 停止后启动钩子必然已执行
	serve(t, rt)()

	var warned []logging.LogEntry
	for _, entry := range mem.Entries() {
		if entry.Level == logging.LogLevelWarn && entry.Category == "CallLog" {
			warned = append(warned, entry)
		}
	}
	require.Len(t, warned, 1)
	require.NotEmpty(t, warned[0].Fields)
	assert.Equal(t, []string{"closing"}, warned[0].Fields[0].Value)
}

func TestPassThroughInProcessSinksDoNotWarn(t *testing.T) {
	opts := settings.DefaultOptions()
	opts.Mode = settings.ModePassThrough

	mem := logging.NewMemoryLoggerProvider()
	rt, err := calllog.Bootstrap(
		core.WithLoggerFactory(logging.NewLoggingBuilder().AddProvider(mem).Build()),
		calllog.New(calllog.WithSettings(opts), calllog.WithRecordBuffer(5)),
	)
	require.NoError(t, err)
	serve(t, rt)()

	for _, entry := range mem.Entries() {
		if entry.Category == "CallLog" {
			assert.NotEqual(t, logging.LogLevelWarn, entry.Level, entry.Message)
		}
	}
}

func TestUnknownRouteFailsStartup(t *testing.T) {
	rt, err := calllog.Bootstrap(quietLogging(), calllog.New(calllog.WithRoute("orders", "kafka")))
	require.NoError(t, err)

	err = calllog.Serve(context.Background(), rt)
	assert.ErrorContains(t, err, "kafka")
}

func TestDefaultsToRuntimeLogger(t *testing.T) {
	mem := logging.NewMemoryLoggerProvider()
	rt, err := calllog.Bootstrap(
		core.WithLoggerFactory(logging.NewLoggingBuilder().AddProvider(mem).Build()),
		calllog.New(),
	)
	require.NoError(t, err)
	stop := serve(t, rt)
	defer stop()

	e := core.GetFeature[*calllog.Engine](rt)
	require.Eventually(t, func() bool {
		_, ok := e.Sinks.Get("logger")
		return ok
	}, time.Second, 5*time.Millisecond)
}
