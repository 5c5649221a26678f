// Package backlog 调用方与唯一消费者之间的非阻塞交接队列
package backlog

import (
	"context"
	"errors"
	"iter"

	"github.com/gocrud/calllog/logentry"
	"github.com/gocrud/calllog/settings"
)

// ErrClosed 重复关闭
var ErrClosed = errors.New("backlog: closed")

// DefaultCapacity 默认容量
const DefaultCapacity = 10000

// BackgroundLog 交接队列
//
// TryEnqueue 从不阻塞，返回 false 表示条目被丢弃（已关闭、已满或适配器失败），调用方不应重试。
// ReadAll 每次调用返回一个新的序列，序列在 Complete/Close 或 ctx 取消后结束，已消费的条目不会重放。
type BackgroundLog interface {
	TryEnqueue(entry logentry.LogEntry) bool
	TryDequeue() (logentry.LogEntry, bool)
	ReadAll(ctx context.Context) iter.Seq[logentry.LogEntry]
	// Complete 生产端结束，已缓冲的条目仍可读出
	Complete()
	// Close 释放队列，此后 TryEnqueue 立即返回 false
	Close() error
	Stats() Stats
}

// Stats 队列统计
type Stats struct {
	Mode     string `json:"mode"`
	Capacity int    `json:"capacity"`
	Pending  int    `json:"pending"`
	Enqueued int64  `json:"enqueued"`
	Dequeued int64  `json:"dequeued"`
	Dropped  int64  `json:"dropped"`
	Closed   bool   `json:"closed"`
}

// New 按配置创建队列
// passthrough 模式下 handler 在调用方 goroutine 中同步执行
func New(s *settings.Snapshot, handler Handler) BackgroundLog {
	if s.Mode == settings.ModePassThrough && handler != nil {
		return NewPassThroughLog(handler)
	}
	return NewChannelLog(s.Capacity)
}
