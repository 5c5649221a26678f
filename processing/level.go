package processing

import (
	"github.com/gocrud/calllog/logentry"
	"github.com/gocrud/calllog/logging"
)

// MapLevel 调用日志级别到后端级别的固定映射
func MapLevel(l logentry.Level) logging.LogLevel {
	switch l {
	case logentry.LevelTrace:
		return logging.LogLevelTrace
	case logentry.LevelDebug:
		return logging.LogLevelDebug
	case logentry.LevelInformation:
		return logging.LogLevelInfo
	case logentry.LevelWarning:
		return logging.LogLevelWarn
	case logentry.LevelError:
		return logging.LogLevelError
	case logentry.LevelCritical:
		return logging.LogLevelFatal
	default:
		return logging.LogLevelOff
	}
}
