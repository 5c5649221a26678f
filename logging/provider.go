package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// ConsoleLoggerOptions 控制台日志选项
type ConsoleLoggerOptions struct {
	IncludeTimestamp bool
	TimestampFormat  string
	ColorOutput      bool
	Output           io.Writer
}

// ConsoleLoggerProvider 控制台日志提供者
type ConsoleLoggerProvider struct {
	options ConsoleLoggerOptions
	sink    *writerSink
}

func NewConsoleLoggerProvider(options ConsoleLoggerOptions) *ConsoleLoggerProvider {
	if options.Output == nil {
		options.Output = os.Stdout
	}
	formatter := &TextFormatter{
		IncludeTimestamp: options.IncludeTimestamp,
		TimestampFormat:  options.TimestampFormat,
		ColorOutput:      options.ColorOutput,
	}
	return &ConsoleLoggerProvider{
		options: options,
		sink:    newWriterSink(options.Output, formatter),
	}
}

func (p *ConsoleLoggerProvider) CreateLogger(category string) Logger {
	return &writerLogger{category: category, sink: p.sink}
}

func (p *ConsoleLoggerProvider) SetMinimumLevel(level LogLevel) {
	p.sink.minimumLevel.Store(int32(level))
}

// FileLoggerOptions 文件日志选项
type FileLoggerOptions struct {
	Path string
	// Json 以 JSON 行格式写入
	Json bool
}

// FileLoggerProvider 文件日志提供者
type FileLoggerProvider struct {
	options FileLoggerOptions
	level   atomic.Int32
	once    sync.Once
	sink    *writerSink
}

func NewFileLoggerProvider(options FileLoggerOptions) *FileLoggerProvider {
	p := &FileLoggerProvider{options: options}
	p.level.Store(int32(LogLevelInfo))
	return p
}

func (p *FileLoggerProvider) CreateLogger(category string) Logger {
	p.once.Do(func() {
		var formatter Formatter = NewTextFormatter()
		if p.options.Json {
			formatter = NewJsonFormatter()
		}

		file, err := os.OpenFile(p.options.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
			p.sink = newWriterSink(os.Stderr, formatter)
		} else {
			p.sink = newWriterSink(file, formatter)
			p.sink.closer = file
		}
		p.sink.minimumLevel.Store(p.level.Load())
	})
	return &writerLogger{category: category, sink: p.sink}
}

func (p *FileLoggerProvider) SetMinimumLevel(level LogLevel) {
	p.level.Store(int32(level))
	if p.sink != nil {
		p.sink.minimumLevel.Store(int32(level))
	}
}

// Close 关闭底层文件
func (p *FileLoggerProvider) Close() error {
	if p.sink == nil || p.sink.closer == nil {
		return nil
	}
	return p.sink.closer.Close()
}

// MemoryLoggerProvider 内存日志提供者，保留所有写入的条目，便于测试断言
type MemoryLoggerProvider struct {
	mu      sync.Mutex
	entries []LogEntry
	level   atomic.Int32
}

func NewMemoryLoggerProvider() *MemoryLoggerProvider {
	p := &MemoryLoggerProvider{}
	p.level.Store(int32(LogLevelTrace))
	return p
}

func (p *MemoryLoggerProvider) CreateLogger(category string) Logger {
	return &memoryLogger{provider: p, category: category}
}

func (p *MemoryLoggerProvider) SetMinimumLevel(level LogLevel) {
	p.level.Store(int32(level))
}

// Entries 返回已记录条目的副本
func (p *MemoryLoggerProvider) Entries() []LogEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]LogEntry, len(p.entries))
	copy(out, p.entries)
	return out
}

// Reset 清空记录
func (p *MemoryLoggerProvider) Reset() {
	p.mu.Lock()
	p.entries = nil
	p.mu.Unlock()
}

func (p *MemoryLoggerProvider) append(entry LogEntry) {
	p.mu.Lock()
	p.entries = append(p.entries, entry)
	p.mu.Unlock()
}

// writerSink 多个记录器共享的输出端
type writerSink struct {
	out          io.Writer
	closer       io.Closer
	formatter    Formatter
	minimumLevel atomic.Int32
	mu           sync.Mutex
}

func newWriterSink(out io.Writer, formatter Formatter) *writerSink {
	s := &writerSink{out: out, formatter: formatter}
	s.minimumLevel.Store(int32(LogLevelInfo))
	return s
}

func (s *writerSink) write(entry *LogEntry) {
	data, err := s.formatter.Format(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: format error: %v\n", err)
		return
	}
	if len(data) == 0 || data[len(data)-1] != '\n' {
		data = append(data, '\n')
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.out.Write(data)
}

// writerLogger 基于 Formatter 输出到 io.Writer 的记录器
type writerLogger struct {
	category string
	fields   []Field
	sink     *writerSink
}

func (l *writerLogger) Trace(msg string, fields ...Field) { l.Log(LogLevelTrace, msg, fields...) }
func (l *writerLogger) Debug(msg string, fields ...Field) { l.Log(LogLevelDebug, msg, fields...) }
func (l *writerLogger) Info(msg string, fields ...Field)  { l.Log(LogLevelInfo, msg, fields...) }
func (l *writerLogger) Warn(msg string, fields ...Field)  { l.Log(LogLevelWarn, msg, fields...) }
func (l *writerLogger) Error(msg string, fields ...Field) { l.Log(LogLevelError, msg, fields...) }

func (l *writerLogger) Fatal(msg string, fields ...Field) {
	l.Log(LogLevelFatal, msg, fields...)
	os.Exit(1)
}

func (l *writerLogger) Log(level LogLevel, msg string, fields ...Field) {
	if level < LogLevel(l.sink.minimumLevel.Load()) || level >= LogLevelOff {
		return
	}
	l.sink.write(&LogEntry{
		Time:     time.Now(),
		Level:    level,
		Category: l.category,
		Message:  msg,
		Fields:   joinFields(l.fields, fields),
	})
}

func (l *writerLogger) WithFields(fields ...Field) Logger {
	return &writerLogger{category: l.category, fields: joinFields(l.fields, fields), sink: l.sink}
}

func (l *writerLogger) WithCategory(category string) Logger {
	return &writerLogger{category: category, fields: l.fields, sink: l.sink}
}

type memoryLogger struct {
	provider *MemoryLoggerProvider
	category string
	fields   []Field
}

func (l *memoryLogger) Trace(msg string, fields ...Field) { l.Log(LogLevelTrace, msg, fields...) }
func (l *memoryLogger) Debug(msg string, fields ...Field) { l.Log(LogLevelDebug, msg, fields...) }
func (l *memoryLogger) Info(msg string, fields ...Field)  { l.Log(LogLevelInfo, msg, fields...) }
func (l *memoryLogger) Warn(msg string, fields ...Field)  { l.Log(LogLevelWarn, msg, fields...) }
func (l *memoryLogger) Error(msg string, fields ...Field) { l.Log(LogLevelError, msg, fields...) }

// Fatal 在内存记录器中不会退出进程
func (l *memoryLogger) Fatal(msg string, fields ...Field) { l.Log(LogLevelFatal, msg, fields...) }

func (l *memoryLogger) Log(level LogLevel, msg string, fields ...Field) {
	if level < LogLevel(l.provider.level.Load()) || level >= LogLevelOff {
		return
	}
	l.provider.append(LogEntry{
		Time:     time.Now(),
		Level:    level,
		Category: l.category,
		Message:  msg,
		Fields:   joinFields(l.fields, fields),
	})
}

func (l *memoryLogger) WithFields(fields ...Field) Logger {
	return &memoryLogger{provider: l.provider, category: l.category, fields: joinFields(l.fields, fields)}
}

func (l *memoryLogger) WithCategory(category string) Logger {
	return &memoryLogger{provider: l.provider, category: category, fields: l.fields}
}
