package processing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gocrud/calllog/backlog"
	"github.com/gocrud/calllog/formatting"
	"github.com/gocrud/calllog/logentry"
	"github.com/gocrud/calllog/logging"
	"github.com/gocrud/calllog/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type written struct {
	msg         formatting.FormattedMessage
	level       logging.LogLevel
	destination string
}

type recordingSink struct {
	mu     sync.Mutex
	writes []written
	fail   func(destination string) error
}

func (s *recordingSink) Write(_ context.Context, msg formatting.FormattedMessage, level logging.LogLevel, destination string) error {
	if s.fail != nil {
		if err := s.fail(destination); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, written{msg, level, destination})
	return nil
}

func (s *recordingSink) all() []written {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]written(nil), s.writes...)
}

func newProcessor(t *testing.T, mutate func(*settings.Options), sink Sink) (*Processor, *logging.MemoryLoggerProvider) {
	t.Helper()
	opts := settings.DefaultOptions()
	if mutate != nil {
		mutate(&opts)
	}
	mem := logging.NewMemoryLoggerProvider()
	factory := logging.NewLoggerFactory(logging.LogLevelTrace)
	factory.AddProvider(mem)
	logger := factory.CreateLogger("CallLog")
	return NewProcessor(settings.NewProvider(opts, logger), formatting.NewFactory(logger), sink, logger), mem
}

func orderEntry() logentry.LogEntry {
	return logentry.LogEntry{TypeName: "OrderService", MethodName: "ProcessOrder", Success: true}
}

func TestMapLevel(t *testing.T) {
	cases := map[logentry.Level]logging.LogLevel{
		logentry.LevelTrace:       logging.LogLevelTrace,
		logentry.LevelDebug:       logging.LogLevelDebug,
		logentry.LevelInformation: logging.LogLevelInfo,
		logentry.LevelWarning:     logging.LogLevelWarn,
		logentry.LevelError:       logging.LogLevelError,
		logentry.LevelCritical:    logging.LogLevelFatal,
		logentry.LevelNone:        logging.LogLevelOff,
	}
	for in, want := range cases {
		assert.Equal(t, want, MapLevel(in), in.String())
	}
}

func TestEndToEndOrderService(t *testing.T) {
	for _, tc := range []struct {
		name          string
		defaultTarget string
		want          string
	}{
		{"type name when no default target", "", "OrderService"},
		{"configured default target", "calls", "calls"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			sink := &recordingSink{}
			p, _ := newProcessor(t, func(o *settings.Options) { o.DefaultTarget = tc.defaultTarget }, sink)
			log := backlog.NewChannelLog(16)
			svc := NewBackgroundLoggingService(log, p, time.Second, nil)

			done := make(chan error, 1)
			go func() { done <- svc.Start(context.Background()) }()

			require.True(t, log.TryEnqueue(orderEntry()))
			require.Eventually(t, func() bool { return len(sink.all()) == 1 }, time.Second, time.Millisecond)

			require.NoError(t, svc.Stop(context.Background()))
			require.NoError(t, <-done)

			w := sink.all()[0]
			assert.Equal(t, tc.want, w.destination)
			assert.Equal(t, logging.LogLevelTrace, w.level)
			assert.Contains(t, w.msg.Text(), "OrderService")
			assert.Contains(t, w.msg.Text(), "ProcessOrder")
			assert.False(t, log.TryEnqueue(orderEntry()))
		})
	}
}

func TestPerProducerFIFO(t *testing.T) {
	sink := &recordingSink{}
	p, _ := newProcessor(t, nil, sink)
	log := backlog.NewChannelLog(16)
	for _, m := range []string{"A", "B", "C"} {
		e := orderEntry()
		e.MethodName = m
		e.Level = logentry.LevelInformation
		require.True(t, log.TryEnqueue(e))
	}

	svc := NewBackgroundLoggingService(log, p, time.Second, nil)
	done := make(chan error, 1)
	go func() { done <- svc.Start(context.Background()) }()
	require.NoError(t, svc.Stop(context.Background()))
	require.NoError(t, <-done)

	var order []string
	for _, w := range sink.all() {
		order = append(order, strings.SplitN(w.msg.Text(), " ", 2)[0])
	}
	assert.Equal(t, []string{"OrderService.A", "OrderService.B", "OrderService.C"}, order)
	assert.Equal(t, int64(3), svc.Consumed())
}

func TestSinkFailuresAreSwallowed(t *testing.T) {
	sink := &recordingSink{fail: func(destination string) error {
		switch destination {
		case "broken":
			return errors.New("connection refused")
		case "panicky":
			panic("sink bug")
		}
		return nil
	}}
	p, mem := newProcessor(t, nil, sink)

	secret := orderEntry().WithInput("card=4111").WithTarget("broken")
	assert.NotPanics(t, func() { p.ProcessEntry(secret) })
	assert.NotPanics(t, func() { p.ProcessEntry(orderEntry().WithTarget("panicky")) })
	p.ProcessEntry(orderEntry())

	stats := p.Stats()
	assert.Equal(t, int64(3), stats.Processed)
	assert.Equal(t, int64(2), stats.Failed)
	assert.Equal(t, int64(1), stats.Written)

	var diagnostics []logging.LogEntry
	for _, e := range mem.Entries() {
		if e.Message == "failed to hand off call log entry" {
			diagnostics = append(diagnostics, e)
		}
	}
	require.Len(t, diagnostics, 2)
	for _, d := range diagnostics {
		keys := make([]string, 0, len(d.Fields))
		for _, f := range d.Fields {
			keys = append(keys, f.Key)
			assert.NotContains(t, fmt.Sprint(f.Value), "4111")
		}
		assert.ElementsMatch(t, []string{"type", "method", "success"}, keys)
	}
}

func TestFallbackNeverRaises(t *testing.T) {
	sink := &recordingSink{}
	p, _ := newProcessor(t, nil, sink)
	p.factory.Register(formatting.FormatterHybrid, formatting.FormatterFunc(func(formatting.FormattingContext) (formatting.FormattedMessage, error) {
		return formatting.FormattedMessage{}, errors.New("always fails")
	}))

	assert.NotPanics(t, func() { p.ProcessEntry(orderEntry()) })
	w := sink.all()
	require.Len(t, w, 1)
	assert.True(t, w[0].msg.IsFallback)
	assert.Contains(t, w[0].msg.Message, "ProcessOrder")
	assert.Contains(t, w[0].msg.Message, "true")
	assert.Equal(t, int64(1), p.Stats().Fallbacks)
}

func TestSuppressionAndOff(t *testing.T) {
	sink := &recordingSink{}
	p, _ := newProcessor(t, func(o *settings.Options) { o.SuppressedCategories = []string{"Noise"} }, sink)

	p.ProcessEntry(orderEntry().WithTarget("Noise"))
	p.ProcessEntry(orderEntry().WithLevel(logentry.LevelNone))
	p.ProcessEntry(orderEntry().WithLevel(logentry.LevelWarning))

	w := sink.all()
	require.Len(t, w, 1)
	assert.Equal(t, logging.LogLevelWarn, w[0].level)
	assert.Equal(t, int64(2), p.Stats().Suppressed)
}

func TestFilter(t *testing.T) {
	sink := &recordingSink{}
	p, mem := newProcessor(t, func(o *settings.Options) {
		o.Filter = `!success || duration_ms > 100`
	}, sink)

	slow := orderEntry()
	slow.Duration = 250 * time.Millisecond
	failed := orderEntry().WithException(errors.New("x"), logentry.LevelError)

	p.ProcessEntry(orderEntry())
	p.ProcessEntry(slow)
	p.ProcessEntry(failed)

	assert.Len(t, sink.all(), 2)
	assert.Equal(t, int64(1), p.Stats().Filtered)

	p.settings.Publish(func() settings.Options {
		o := settings.DefaultOptions()
		o.Filter = `method.startsWith(`
		return o
	}())
	p.ProcessEntry(orderEntry())
	assert.Len(t, sink.all(), 3)

	warned := false
	for _, e := range mem.Entries() {
		warned = warned || e.Message == "ignoring invalid call log filter"
	}
	assert.True(t, warned)

	_, err := NewFilter(`duration_ms + 1`)
	assert.Error(t, err)

	f, err := NewFilter(`type == "OrderService" && level == "error"`)
	require.NoError(t, err)
	assert.True(t, f.Match(failed, "OrderService"))
	assert.False(t, f.Match(orderEntry(), "OrderService"))
}

func TestSingleConsumerPerLog(t *testing.T) {
	p, _ := newProcessor(t, nil, &recordingSink{})
	log := backlog.NewChannelLog(4)
	first := NewBackgroundLoggingService(log, p, time.Second, nil)
	second := NewBackgroundLoggingService(log, p, time.Second, nil)

	done := make(chan error, 1)
	go func() { done <- first.Start(context.Background()) }()
	require.Eventually(t, func() bool { return first.running.Load() }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)

	assert.ErrorIs(t, second.Start(context.Background()), ErrAlreadyRunning)

	require.NoError(t, first.Stop(context.Background()))
	require.NoError(t, <-done)
	assert.ErrorIs(t, first.Start(context.Background()), ErrAlreadyRunning)
}

type panickyProcessor struct{ calls int }

func (p *panickyProcessor) ProcessEntry(e logentry.LogEntry) {
	p.calls++
	if e.MethodName == "Boom" {
		panic("processor bug")
	}
}

func TestLoopSurvivesPanics(t *testing.T) {
	log := backlog.NewChannelLog(4)
	proc := &panickyProcessor{}
	boom := orderEntry()
	boom.MethodName = "Boom"
	require.True(t, log.TryEnqueue(boom))
	require.True(t, log.TryEnqueue(orderEntry()))
	log.Complete()

	svc := NewBackgroundLoggingService(log, proc, time.Second, nil)
	require.NoError(t, svc.Start(context.Background()))
	assert.Equal(t, 2, proc.calls)
	assert.Equal(t, int64(1), svc.panics.Load())
}

func TestPassThroughIsTransparent(t *testing.T) {
	sink := &recordingSink{}
	p, _ := newProcessor(t, nil, sink)
	log := backlog.NewPassThroughLog(p.ProcessEntry)
	svc := NewBackgroundLoggingService(log, p, time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Start(ctx) }()

	require.True(t, log.TryEnqueue(orderEntry()))
	assert.Len(t, sink.all(), 1)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, int64(0), svc.Consumed())
}
