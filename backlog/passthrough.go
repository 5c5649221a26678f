package backlog

import (
	"context"
	"iter"
	"sync"
	"sync/atomic"

	"github.com/gocrud/calllog/logentry"
)

// Handler 直通模式下处理条目的函数
type Handler func(entry logentry.LogEntry)

// PassThroughLog 把批处理交给后端自身的队列
// TryEnqueue 在调用方 goroutine 中执行 handler，ReadAll 不产出任何条目
type PassThroughLog struct {
	handler  Handler
	done     chan struct{}
	doneOnce sync.Once
	closed   atomic.Bool

	handled atomic.Int64
	dropped atomic.Int64
}

func NewPassThroughLog(handler Handler) *PassThroughLog {
	return &PassThroughLog{handler: handler, done: make(chan struct{})}
}

func (l *PassThroughLog) TryEnqueue(entry logentry.LogEntry) (accepted bool) {
	select {
	case <-l.done:
		l.dropped.Add(1)
		return false
	default:
	}

	defer func() {
		if r := recover(); r != nil {
			l.dropped.Add(1)
			accepted = false
		}
	}()
	l.handler(entry)
	l.handled.Add(1)
	return true
}

func (l *PassThroughLog) TryDequeue() (logentry.LogEntry, bool) {
	return logentry.LogEntry{}, false
}

func (l *PassThroughLog) ReadAll(ctx context.Context) iter.Seq[logentry.LogEntry] {
	return func(yield func(logentry.LogEntry) bool) {
		select {
		case <-ctx.Done():
		case <-l.done:
		}
	}
}

func (l *PassThroughLog) Complete() {
	l.doneOnce.Do(func() { close(l.done) })
}

func (l *PassThroughLog) Close() error {
	if l.closed.Swap(true) {
		return ErrClosed
	}
	l.Complete()
	return nil
}

func (l *PassThroughLog) Stats() Stats {
	select {
	case <-l.done:
		return l.stats(true)
	default:
		return l.stats(false)
	}
}

func (l *PassThroughLog) stats(closed bool) Stats {
	handled := l.handled.Load()
	return Stats{
		Mode:     "passthrough",
		Enqueued: handled,
		Dequeued: handled,
		Dropped:  l.dropped.Load(),
		Closed:   closed,
	}
}
