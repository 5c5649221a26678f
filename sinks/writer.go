package sinks

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/gocrud/calllog/formatting"
	"github.com/gocrud/calllog/logging"
)

// ErrDropped 写入缓冲区已满或已关闭
var ErrDropped = errors.New("sinks: entry dropped")

// WriterSink 经 AsyncWriter 写入 io.Writer
type WriterSink struct {
	writer *logging.AsyncWriter
}

// NewWriterSink 创建写入后端，formatter 为空时使用 JSON
// 缓冲区满时丢弃，不阻塞消费者
func NewWriterSink(w io.Writer, formatter logging.Formatter, bufferSize int) *WriterSink {
	if formatter == nil {
		formatter = logging.NewJsonFormatter()
	}
	aw := logging.NewAsyncWriter(w, formatter, bufferSize).SetOverflow(logging.OverflowDrop)
	return &WriterSink{writer: aw}
}

func (s *WriterSink) InProcess() {}

func (s *WriterSink) Write(_ context.Context, msg formatting.FormattedMessage, level logging.LogLevel, destination string) error {
	ok := s.writer.WriteLog(&logging.LogEntry{
		Time:     time.Now(),
		Level:    level,
		Category: destination,
		Message:  msg.Text(),
		Fields:   LogFields(msg),
	})
	if !ok {
		return ErrDropped
	}
	return nil
}

// SetErrorHandler 设置底层写入错误的处理函数
func (s *WriterSink) SetErrorHandler(fn func(error)) {
	s.writer.SetErrorHandler(fn)
}

// Written 已写出条数
func (s *WriterSink) Written() int64 { return s.writer.Written() }

// Dropped 丢弃条数
func (s *WriterSink) Dropped() int64 { return s.writer.Dropped() }

// Close 刷出缓冲区
func (s *WriterSink) Close() error {
	return s.writer.Close()
}
