package backlog

import (
	"context"
	"iter"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/gocrud/calllog/logentry"
)

// ChannelLog 基于有界缓冲通道的队列
//
// 数据通道从不关闭：关闭标志加在途计数保证 Complete 之后没有发送者，
// 随后关闭 done 通知消费者排空。
type ChannelLog struct {
	ch       chan logentry.LogEntry
	done     chan struct{}
	doneOnce sync.Once

	completed atomic.Bool
	closed    atomic.Bool
	inflight  atomic.Int64

	enqueued atomic.Int64
	dequeued atomic.Int64
	dropped  atomic.Int64
}

// NewChannelLog 创建队列，capacity <= 0 时使用默认容量
func NewChannelLog(capacity int) *ChannelLog {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &ChannelLog{
		ch:   make(chan logentry.LogEntry, capacity),
		done: make(chan struct{}),
	}
}

func (l *ChannelLog) TryEnqueue(entry logentry.LogEntry) bool {
	l.inflight.Add(1)
	defer l.inflight.Add(-1)

	if l.completed.Load() {
		l.dropped.Add(1)
		return false
	}

	select {
	case l.ch <- entry:
		l.enqueued.Add(1)
		return true
	default:
		l.dropped.Add(1)
		return false
	}
}

func (l *ChannelLog) TryDequeue() (logentry.LogEntry, bool) {
	select {
	case e := <-l.ch:
		l.dequeued.Add(1)
		return e, true
	default:
		return logentry.LogEntry{}, false
	}
}

func (l *ChannelLog) ReadAll(ctx context.Context) iter.Seq[logentry.LogEntry] {
	return func(yield func(logentry.LogEntry) bool) {
		for {
			select {
			case e := <-l.ch:
				l.dequeued.Add(1)
				if !yield(e) {
					return
				}
			case <-l.done:
				for {
					e, ok := l.TryDequeue()
					if !ok || !yield(e) {
						return
					}
				}
			case <-ctx.Done():
				return
			}
		}
	}
}

func (l *ChannelLog) Complete() {
	if l.completed.Swap(true) {
		return
	}
	// 等待已通过检查的发送者离开，它们都是非阻塞的
	for l.inflight.Load() > 0 {
		runtime.Gosched()
	}
	l.doneOnce.Do(func() { close(l.done) })
}

func (l *ChannelLog) Close() error {
	if l.closed.Swap(true) {
		return ErrClosed
	}
	l.Complete()
	return nil
}

func (l *ChannelLog) Stats() Stats {
	return Stats{
		Mode:     "queued",
		Capacity: cap(l.ch),
		Pending:  len(l.ch),
		Enqueued: l.enqueued.Load(),
		Dequeued: l.dequeued.Load(),
		Dropped:  l.dropped.Load(),
		Closed:   l.completed.Load(),
	}
}
