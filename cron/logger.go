package cron

import (
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/gocrud/calllog/logging"
)

// cronLogger 把框架日志接口适配到 cron.Logger
// verbose 为 false 时丢弃调度器的 Info 输出，错误始终记录
type cronLogger struct {
	logger  logging.Logger
	verbose bool
}

func newCronLogger(logger logging.Logger, verbose bool) cron.Logger {
	return &cronLogger{logger: logger, verbose: verbose}
}

func (l *cronLogger) Info(msg string, keysAndValues ...any) {
	if !l.verbose {
		return
	}
	l.logger.Debug(msg, toFields(keysAndValues)...)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...any) {
	fields := toFields(keysAndValues)
	fields = append(fields, logging.Field{Key: "error", Value: err.Error()})
	l.logger.Error(msg, fields...)
}

func toFields(keysAndValues []any) []logging.Field {
	fields := make([]logging.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields = append(fields, logging.Field{Key: fmt.Sprint(keysAndValues[i]), Value: keysAndValues[i+1]})
	}
	return fields
}
