package sinks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gocrud/calllog/formatting"
	"github.com/gocrud/calllog/logging"
	"github.com/gocrud/calllog/processing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func sampleMessage() formatting.FormattedMessage {
	return formatting.FormattedMessage{
		Template:       "{TypeName}.{MethodName} Success={Success}",
		Parameters:     []any{"OrderService", "ProcessOrder", true},
		ParameterNames: []string{"TypeName", "MethodName", "Success"},
		Success:        true,
	}
}

func TestNewRecord(t *testing.T) {
	r := NewRecord(sampleMessage(), logging.LogLevelInfo, "orders")
	assert.Equal(t, "OrderService.ProcessOrder Success=true", r.Message)
	assert.Equal(t, "INFO", r.Level)
	assert.Equal(t, "orders", r.Destination)
	assert.Equal(t, "OrderService", r.Fields["TypeName"])
	assert.Equal(t, "true", r.Fields["Success"])
	assert.True(t, r.Success)
	assert.False(t, r.Fallback)

	plain := NewRecord(formatting.FormattedMessage{Message: "x", IsFallback: true}, logging.LogLevelWarn, "d")
	assert.Nil(t, plain.Fields)
	assert.True(t, plain.Fallback)
}

func TestNewRecordUsesCallStartTime(t *testing.T) {
	msg := sampleMessage()
	msg.Timestamp = time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("CST", 8*3600))
	r := NewRecord(msg, logging.LogLevelInfo, "orders")
	assert.Equal(t, time.Date(2026, 1, 1, 19, 4, 5, 0, time.UTC), r.Time)

	before := time.Now().UTC()
	r = NewRecord(sampleMessage(), logging.LogLevelInfo, "orders")
	assert.False(t, r.Time.Before(before))
}

func TestLoggerSinkUsesDestinationAsCategory(t *testing.T) {
	mem := logging.NewMemoryLoggerProvider()
	factory := logging.NewLoggerFactory(logging.LogLevelTrace)
	factory.AddProvider(mem)

	sink := NewLoggerSink(factory)
	ctx := context.Background()
	require.NoError(t, sink.Write(ctx, sampleMessage(), logging.LogLevelWarn, "orders"))
	require.NoError(t, sink.Write(ctx, sampleMessage(), logging.LogLevelInfo, "orders"))

	entries := mem.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "orders", entries[0].Category)
	assert.Equal(t, logging.LogLevelWarn, entries[0].Level)
	assert.Equal(t, "OrderService.ProcessOrder Success=true", entries[0].Message)
	require.Len(t, entries[0].Fields, 3)
	assert.Equal(t, "MethodName", entries[0].Fields[1].Key)
}

func TestWriterSink(t *testing.T) {
	var buf lockedBuffer
	sink := NewWriterSink(&buf, nil, 8)
	require.NoError(t, sink.Write(context.Background(), sampleMessage(), logging.LogLevelInfo, "orders"))
	require.NoError(t, sink.Close())

	var line map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &line))
	assert.Equal(t, "orders", line["category"])
	assert.Equal(t, "OrderService.ProcessOrder Success=true", line["msg"])
	assert.Equal(t, int64(1), sink.Written())

	assert.ErrorIs(t, sink.Write(context.Background(), sampleMessage(), logging.LogLevelInfo, "orders"), ErrDropped)
	assert.Equal(t, int64(1), sink.Dropped())
}

func TestFanout(t *testing.T) {
	a, b := NewMemorySink(0), NewMemorySink(0)
	ctx := context.Background()

	require.NoError(t, Fanout{a, b}.Write(ctx, sampleMessage(), logging.LogLevelInfo, "orders"))
	assert.Equal(t, 1, a.Len())
	assert.Equal(t, 1, b.Len())

	boom := processing.SinkFunc(func(context.Context, formatting.FormattedMessage, logging.LogLevel, string) error {
		return errors.New("boom")
	})
	panicky := processing.SinkFunc(func(context.Context, formatting.FormattedMessage, logging.LogLevel, string) error {
		panic("bad sink")
	})
	assert.ErrorContains(t, Fanout{a, boom}.Write(ctx, sampleMessage(), logging.LogLevelInfo, "orders"), "boom")
	assert.ErrorContains(t, Fanout{a, panicky}.Write(ctx, sampleMessage(), logging.LogLevelInfo, "orders"), "panicked")
	assert.NoError(t, Fanout{}.Write(ctx, sampleMessage(), logging.LogLevelInfo, "orders"))
}

func TestFanoutIsolatesFailures(t *testing.T) {
	healthy := NewMemorySink(0)
	slow := processing.SinkFunc(func(ctx context.Context, msg formatting.FormattedMessage, level logging.LogLevel, dest string) error {
		select {
		case <-time.After(20 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
		return healthy.Write(ctx, msg, level, dest)
	})
	failing := func(text string) processing.Sink {
		return processing.SinkFunc(func(context.Context, formatting.FormattedMessage, logging.LogLevel, string) error {
			return errors.New(text)
		})
	}

	err := Fanout{slow, failing("redis down"), failing("mongo down")}.Write(context.Background(), sampleMessage(), logging.LogLevelInfo, "orders")
	require.Error(t, err)
	assert.ErrorContains(t, err, "redis down")
	assert.ErrorContains(t, err, "mongo down")
	assert.Equal(t, 1, healthy.Len())
}

func TestMemorySinkLimit(t *testing.T) {
	s := NewMemorySink(2)
	for _, dest := range []string{"a", "b", "c"} {
		require.NoError(t, s.Write(context.Background(), sampleMessage(), logging.LogLevelInfo, dest))
	}
	records := s.Records()
	require.Len(t, records, 2)
	assert.Equal(t, "b", records[0].Destination)
	assert.Equal(t, "c", records[1].Destination)

	s.Reset()
	assert.Zero(t, s.Len())
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	orders, audit := NewMemorySink(0), NewMemorySink(0)
	require.NoError(t, r.Add("orders", orders))
	require.NoError(t, r.Add("audit", audit))
	assert.Error(t, r.Add("orders", orders))
	assert.Equal(t, []string{"orders", "audit"}, r.Names())

	r.Route("billing", "audit")
	ctx := context.Background()
	require.NoError(t, r.Write(ctx, sampleMessage(), logging.LogLevelInfo, "billing"))
	require.NoError(t, r.Write(ctx, sampleMessage(), logging.LogLevelInfo, "OrderService"))
	assert.Equal(t, 1, orders.Len())
	assert.Equal(t, 2, audit.Len())
	require.NoError(t, r.Validate())

	r.Route("x", "missing")
	assert.ErrorContains(t, r.Validate(), "missing")
	assert.NoError(t, r.Write(ctx, sampleMessage(), logging.LogLevelInfo, "x"))
}
