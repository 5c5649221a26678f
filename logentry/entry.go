// Package logentry 定义一次方法调用的日志条目。
//
// LogEntry 是值类型，所有 With 方法都返回新值，
// 生产者与消费者之间传递的永远是副本。
package logentry

import (
	"time"

	"github.com/google/uuid"
)

// LogEntry 一次方法调用的元数据
type LogEntry struct {
	ID         uuid.UUID
	TypeName   string
	MethodName string
	Level      Level
	Success    bool

	Input  any
	Output any

	ExceptionMessage string
	ExceptionLevel   Level

	// Target 目标名称，为空时由处理器决定
	Target string
	// Formatter 条目级格式化器覆盖，为空表示未指定
	Formatter string
	// TemplateName 命名模板
	TemplateName string

	StartedAt time.Time
	Duration  time.Duration
}

// CreateStart 创建一次调用的初始条目
// 此时调用尚未完成，Success 为 false
func CreateStart(methodName, typeName string, level Level) LogEntry {
	return LogEntry{
		ID:             uuid.New(),
		TypeName:       typeName,
		MethodName:     methodName,
		Level:          level,
		ExceptionLevel: LevelError,
		StartedAt:      time.Now(),
	}
}

// Key 返回 "TypeName.MethodName"
func (e LogEntry) Key() string {
	return e.TypeName + "." + e.MethodName
}

// HasException 是否记录了异常
func (e LogEntry) HasException() bool {
	return e.ExceptionMessage != ""
}

func (e LogEntry) WithInput(input any) LogEntry {
	e.Input = input
	return e
}

func (e LogEntry) WithOutput(output any) LogEntry {
	e.Output = output
	return e
}

func (e LogEntry) WithTarget(target string) LogEntry {
	e.Target = target
	return e
}

func (e LogEntry) WithFormatter(formatter string) LogEntry {
	e.Formatter = formatter
	return e
}

func (e LogEntry) WithTemplate(name string) LogEntry {
	e.TemplateName = name
	return e
}

func (e LogEntry) WithLevel(level Level) LogEntry {
	e.Level = level
	return e
}

// WithException 记录异常信息并将条目标记为失败
// err 为 nil 时原样返回
func (e LogEntry) WithException(err error, level Level) LogEntry {
	if err == nil {
		return e
	}
	e.ExceptionMessage = err.Error()
	e.ExceptionLevel = level
	e.Success = false
	return e
}

// WithCompletion 记录调用结束
// 已记录异常的条目保持失败状态
func (e LogEntry) WithCompletion(success bool) LogEntry {
	e.Success = success && !e.HasException()
	if !e.StartedAt.IsZero() {
		e.Duration = time.Since(e.StartedAt)
	}
	return e
}

// EffectiveLevel 失败的调用使用异常级别
func (e LogEntry) EffectiveLevel() Level {
	if e.HasException() && e.ExceptionLevel > e.Level {
		return e.ExceptionLevel
	}
	return e.Level
}
