package logging

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

// LogLevel 日志级别
type LogLevel int

const (
	LogLevelTrace LogLevel = iota
	LogLevelDebug
	LogLevelInfo
	LogLevelWarn
	LogLevelError
	LogLevelFatal
	// LogLevelOff 关闭输出，任何记录器都不会写出该级别
	LogLevelOff
)

// String 返回日志级别的字符串表示
func (l LogLevel) String() string {
	switch l {
	case LogLevelTrace:
		return "TRACE"
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	case LogLevelFatal:
		return "FATAL"
	case LogLevelOff:
		return "OFF"
	default:
		return "UNKNOWN"
	}
}

// ParseLogLevel 解析日志级别字符串（大小写不敏感）
func ParseLogLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LogLevelTrace, nil
	case "debug":
		return LogLevelDebug, nil
	case "info", "information":
		return LogLevelInfo, nil
	case "warn", "warning":
		return LogLevelWarn, nil
	case "error":
		return LogLevelError, nil
	case "fatal", "critical":
		return LogLevelFatal, nil
	case "off", "none":
		return LogLevelOff, nil
	default:
		return LogLevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Field 日志字段
type Field struct {
	Key   string
	Value any
}

// Logger 日志接口（类似于 .NET Core ILogger）
type Logger interface {
	Trace(msg string, fields ...Field)
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)
	Log(level LogLevel, msg string, fields ...Field)
	WithFields(fields ...Field) Logger
	WithCategory(category string) Logger
}

// LoggerFactory 日志工厂接口
type LoggerFactory interface {
	CreateLogger(category string) Logger
	AddProvider(provider LoggerProvider)
	SetMinimumLevel(level LogLevel)
}

// LoggerProvider 日志提供者接口
type LoggerProvider interface {
	CreateLogger(category string) Logger
	SetMinimumLevel(level LogLevel)
}

// loggerFactory 日志工厂实现
type loggerFactory struct {
	providers    []LoggerProvider
	minimumLevel LogLevel
	mu           sync.RWMutex
}

// NewLoggerFactory 创建一个空的日志工厂
func NewLoggerFactory(minimumLevel LogLevel) LoggerFactory {
	return &loggerFactory{minimumLevel: minimumLevel}
}

func (f *loggerFactory) CreateLogger(category string) Logger {
	f.mu.RLock()
	defer f.mu.RUnlock()

	loggers := make([]Logger, 0, len(f.providers))
	for _, provider := range f.providers {
		loggers = append(loggers, provider.CreateLogger(category))
	}

	return &compositeLogger{
		loggers:      loggers,
		minimumLevel: f.minimumLevel,
		category:     category,
	}
}

func (f *loggerFactory) AddProvider(provider LoggerProvider) {
	f.mu.Lock()
	defer f.mu.Unlock()
	provider.SetMinimumLevel(f.minimumLevel)
	f.providers = append(f.providers, provider)
}

func (f *loggerFactory) SetMinimumLevel(level LogLevel) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.minimumLevel = level
	for _, provider := range f.providers {
		provider.SetMinimumLevel(level)
	}
}

// compositeLogger 组合日志记录器（将日志发送到多个提供者）
type compositeLogger struct {
	loggers      []Logger
	minimumLevel LogLevel
	category     string
	fields       []Field
}

// NewCompositeLogger 创建组合日志记录器（用于外部包构建）
func NewCompositeLogger(loggers []Logger, minimumLevel LogLevel, category string) Logger {
	return &compositeLogger{
		loggers:      loggers,
		minimumLevel: minimumLevel,
		category:     category,
	}
}

func (l *compositeLogger) Trace(msg string, fields ...Field) {
	l.Log(LogLevelTrace, msg, fields...)
}

func (l *compositeLogger) Debug(msg string, fields ...Field) {
	l.Log(LogLevelDebug, msg, fields...)
}

func (l *compositeLogger) Info(msg string, fields ...Field) {
	l.Log(LogLevelInfo, msg, fields...)
}

func (l *compositeLogger) Warn(msg string, fields ...Field) {
	l.Log(LogLevelWarn, msg, fields...)
}

func (l *compositeLogger) Error(msg string, fields ...Field) {
	l.Log(LogLevelError, msg, fields...)
}

func (l *compositeLogger) Fatal(msg string, fields ...Field) {
	l.Log(LogLevelFatal, msg, fields...)
	os.Exit(1)
}

func (l *compositeLogger) Log(level LogLevel, msg string, fields ...Field) {
	if level < l.minimumLevel || level >= LogLevelOff {
		return
	}

	allFields := joinFields(l.fields, fields)
	for _, logger := range l.loggers {
		logger.Log(level, msg, allFields...)
	}
}

func (l *compositeLogger) WithFields(fields ...Field) Logger {
	return &compositeLogger{
		loggers:      l.loggers,
		minimumLevel: l.minimumLevel,
		category:     l.category,
		fields:       joinFields(l.fields, fields),
	}
}

func (l *compositeLogger) WithCategory(category string) Logger {
	loggers := make([]Logger, len(l.loggers))
	for i, logger := range l.loggers {
		loggers[i] = logger.WithCategory(category)
	}
	return &compositeLogger{
		loggers:      loggers,
		minimumLevel: l.minimumLevel,
		category:     category,
		fields:       l.fields,
	}
}

// joinFields 拼接字段，始终返回新切片，避免共享底层数组
func joinFields(base, extra []Field) []Field {
	if len(extra) == 0 {
		return base
	}
	out := make([]Field, 0, len(base)+len(extra))
	out = append(out, base...)
	return append(out, extra...)
}
