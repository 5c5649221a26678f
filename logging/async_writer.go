package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
)

// OverflowStrategy 缓冲区满时的处理策略
type OverflowStrategy int

const (
	// OverflowBlock 阻塞等待空间，保证不丢日志
	OverflowBlock OverflowStrategy = iota
	// OverflowDrop 直接丢弃并计数
	OverflowDrop
)

// AsyncWriter 异步日志写入器
type AsyncWriter struct {
	writer     io.Writer
	formatter  Formatter
	entryCh    chan *LogEntry
	overflow   OverflowStrategy
	wg         sync.WaitGroup
	mu         sync.RWMutex
	closed     bool
	errHandler func(error)

	written atomic.Int64
	dropped atomic.Int64
}

// NewAsyncWriter 创建新的异步写入器
func NewAsyncWriter(writer io.Writer, formatter Formatter, bufferSize int) *AsyncWriter {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	w := &AsyncWriter{
		writer:    writer,
		formatter: formatter,
		entryCh:   make(chan *LogEntry, bufferSize),
	}

	w.wg.Add(1)
	go w.process()

	return w
}

// SetOverflow 设置缓冲区满时的策略，需在写入前调用
func (w *AsyncWriter) SetOverflow(strategy OverflowStrategy) *AsyncWriter {
	w.overflow = strategy
	return w
}

// WriteLog 写入日志条目，返回是否被接受
func (w *AsyncWriter) WriteLog(entry *LogEntry) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		w.dropped.Add(1)
		return false
	}

	select {
	case w.entryCh <- entry:
		return true
	default:
	}

	if w.overflow == OverflowDrop {
		w.dropped.Add(1)
		return false
	}
	w.entryCh <- entry
	return true
}

// Written 返回已写出的条目数
func (w *AsyncWriter) Written() int64 { return w.written.Load() }

// Dropped 返回被丢弃的条目数
func (w *AsyncWriter) Dropped() int64 { return w.dropped.Load() }

// Close 关闭写入器，等待缓冲区中的条目写完
func (w *AsyncWriter) Close() error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.entryCh)
	}
	w.mu.Unlock()

	w.wg.Wait()
	return nil
}

func (w *AsyncWriter) process() {
	defer w.wg.Done()

	for entry := range w.entryCh {
		data, err := w.formatter.Format(entry)
		if err != nil {
			w.handleError(fmt.Errorf("AsyncWriter format error: %w", err))
			continue
		}

		if len(data) > 0 && data[len(data)-1] != '\n' {
			data = append(data, '\n')
		}

		if _, err := w.writer.Write(data); err != nil {
			w.handleError(fmt.Errorf("AsyncWriter write error: %w", err))
			continue
		}
		w.written.Add(1)
	}
}

func (w *AsyncWriter) handleError(err error) {
	if w.errHandler != nil {
		w.errHandler(err)
		return
	}
	fmt.Fprintln(os.Stderr, err)
}

// SetErrorHandler 设置错误处理函数
func (w *AsyncWriter) SetErrorHandler(handler func(error)) {
	w.errHandler = handler
}
