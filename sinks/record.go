// Package sinks 调用日志的通用后端
//
// 所有后端都实现 processing.Sink。持久化类后端（redis、mongodb、database、pebblestore）
// 共用 Record 作为存储结构。
package sinks

import (
	"time"

	"github.com/gocrud/calllog/formatting"
	"github.com/gocrud/calllog/logging"
)

// Record 一条已格式化调用日志的存储结构
type Record struct {
	Time        time.Time      `json:"time" bson:"time"`
	Level       string         `json:"level" bson:"level"`
	Destination string         `json:"destination" bson:"destination"`
	Message     string         `json:"message" bson:"message"`
	Template    string         `json:"template,omitempty" bson:"template,omitempty"`
	Fields      map[string]any `json:"fields,omitempty" bson:"fields,omitempty"`
	Success     bool           `json:"success" bson:"success"`
	Fallback    bool           `json:"fallback,omitempty" bson:"fallback,omitempty"`
}

// NewRecord 由格式化结果构造记录
// 字段值统一转为字符串，避免后端序列化用户类型时失败
func NewRecord(msg formatting.FormattedMessage, level logging.LogLevel, destination string) Record {
	at := msg.Timestamp
	if at.IsZero() {
		at = time.Now()
	}
	r := Record{
		Time:        at.UTC(),
		Level:       level.String(),
		Destination: destination,
		Message:     msg.Text(),
		Template:    msg.Template,
		Success:     msg.Success,
		Fallback:    msg.IsFallback || msg.IsError,
	}
	if fields := msg.Fields(); len(fields) > 0 {
		r.Fields = make(map[string]any, len(fields))
		for k, v := range fields {
			r.Fields[k] = formatting.Stringify(v)
		}
	}
	return r
}

// LogFields 按参数顺序转换为日志字段
func LogFields(msg formatting.FormattedMessage) []logging.Field {
	if len(msg.ParameterNames) == 0 {
		return nil
	}
	fields := make([]logging.Field, 0, len(msg.ParameterNames))
	for i, name := range msg.ParameterNames {
		if i < len(msg.Parameters) {
			fields = append(fields, logging.Field{Key: name, Value: msg.Parameters[i]})
		}
	}
	return fields
}
