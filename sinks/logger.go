package sinks

import (
	"context"
	"sync"

	"github.com/gocrud/calllog/formatting"
	"github.com/gocrud/calllog/logging"
)

// LoggerSink 写入运行时日志系统，目标名称作为日志分类
type LoggerSink struct {
	factory logging.LoggerFactory
	loggers sync.Map // destination -> logging.Logger
}

// NewLoggerSink 创建日志后端
func NewLoggerSink(factory logging.LoggerFactory) *LoggerSink {
	return &LoggerSink{factory: factory}
}

func (s *LoggerSink) InProcess() {}

func (s *LoggerSink) Write(_ context.Context, msg formatting.FormattedMessage, level logging.LogLevel, destination string) error {
	s.logger(destination).Log(level, msg.Text(), LogFields(msg)...)
	return nil
}

func (s *LoggerSink) logger(destination string) logging.Logger {
	if l, ok := s.loggers.Load(destination); ok {
		return l.(logging.Logger)
	}
	l, _ := s.loggers.LoadOrStore(destination, s.factory.CreateLogger(destination))
	return l.(logging.Logger)
}
