package sinks

import (
	"context"
	"sync"

	"github.com/gocrud/calllog/formatting"
	"github.com/gocrud/calllog/logging"
)

// MemorySink 在内存中保留最近的记录
type MemorySink struct {
	mu      sync.Mutex
	limit   int
	records []Record
}

// NewMemorySink 创建内存后端，limit <= 0 表示不限制
func NewMemorySink(limit int) *MemorySink {
	return &MemorySink{limit: limit}
}

func (s *MemorySink) InProcess() {}

func (s *MemorySink) Write(_ context.Context, msg formatting.FormattedMessage, level logging.LogLevel, destination string) error {
	r := NewRecord(msg, level, destination)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
	if s.limit > 0 && len(s.records) > s.limit {
		s.records = append(s.records[:0:0], s.records[len(s.records)-s.limit:]...)
	}
	return nil
}

// Records 返回记录副本，最旧的在前
func (s *MemorySink) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// Len 当前记录数
func (s *MemorySink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Reset 清空
func (s *MemorySink) Reset() {
	s.mu.Lock()
	s.records = nil
	s.mu.Unlock()
}
