package logging

import (
	"encoding/json"
	"fmt"
)

// JsonFormatter JSON 格式化器
type JsonFormatter struct {
	TimestampFormat string
}

// NewJsonFormatter 创建 JSON 格式化器
func NewJsonFormatter() *JsonFormatter {
	return &JsonFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	}
}

// Format 格式化日志
func (f *JsonFormatter) Format(entry *LogEntry) ([]byte, error) {
	data := make(map[string]any, 5)

	data["time"] = entry.Time.Format(f.TimestampFormat)
	data["level"] = entry.Level.String()
	if entry.Category != "" {
		data["category"] = entry.Category
	}
	data["msg"] = entry.Message

	if len(entry.Fields) > 0 {
		fields := make(map[string]any, len(entry.Fields))
		for _, field := range entry.Fields {
			// error 默认序列化为 {}，这里转为字符串
			if err, ok := field.Value.(error); ok {
				fields[field.Key] = err.Error()
				continue
			}
			fields[field.Key] = field.Value
		}
		data["fields"] = fields
	}

	out, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("json formatter: %w", err)
	}
	return out, nil
}
