package logging

import (
	"fmt"
)

// TextFormatter 文本格式化器
type TextFormatter struct {
	IncludeTimestamp bool
	TimestampFormat  string
	ColorOutput      bool
}

// NewTextFormatter 创建文本格式化器
func NewTextFormatter() *TextFormatter {
	return &TextFormatter{
		IncludeTimestamp: true,
		TimestampFormat:  "2006-01-02 15:04:05",
		ColorOutput:      false,
	}
}

// Format 格式化日志
// 输出格式: <时间> <级别> [类别] 消息 {k=v, ...}
func (f *TextFormatter) Format(entry *LogEntry) ([]byte, error) {
	buffer := GlobalBufferPool.Get()
	defer GlobalBufferPool.Put(buffer)

	if f.IncludeTimestamp {
		layout := f.TimestampFormat
		if layout == "" {
			layout = "2006-01-02 15:04:05"
		}
		buffer.WriteString(entry.Time.Format(layout))
		buffer.WriteByte(' ')
	}

	levelStr := entry.Level.String()
	if f.ColorOutput {
		buffer.WriteString(colorize(entry.Level, levelStr))
	} else {
		buffer.WriteString(levelStr)
	}

	if entry.Category != "" {
		buffer.WriteString(" [")
		buffer.WriteString(entry.Category)
		buffer.WriteString("]")
	}

	buffer.WriteByte(' ')
	buffer.WriteString(entry.Message)

	if len(entry.Fields) > 0 {
		buffer.WriteString(" {")
		for i, field := range entry.Fields {
			if i > 0 {
				buffer.WriteString(", ")
			}
			buffer.WriteString(field.Key)
			buffer.WriteByte('=')
			fmt.Fprintf(buffer, "%v", field.Value)
		}
		buffer.WriteByte('}')
	}

	buffer.WriteByte('\n')

	// buffer 会被归还，必须复制
	result := make([]byte, buffer.Len())
	copy(result, buffer.Bytes())
	return result, nil
}

// colorize 为日志级别添加颜色
func colorize(level LogLevel, text string) string {
	const (
		reset   = "\033[0m"
		gray    = "\033[90m"
		cyan    = "\033[36m"
		green   = "\033[32m"
		yellow  = "\033[33m"
		red     = "\033[31m"
		magenta = "\033[35m"
	)

	switch level {
	case LogLevelTrace:
		return gray + text + reset
	case LogLevelDebug:
		return cyan + text + reset
	case LogLevelInfo:
		return green + text + reset
	case LogLevelWarn:
		return yellow + text + reset
	case LogLevelError:
		return red + text + reset
	case LogLevelFatal:
		return magenta + text + reset
	default:
		return text
	}
}
