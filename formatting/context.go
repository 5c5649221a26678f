package formatting

import (
	"maps"

	"github.com/gocrud/calllog/logentry"
	"github.com/gocrud/calllog/settings"
)

// FormattingContext 一次格式化的输入
// 值类型，所有 With 方法返回新值，属性表写时复制
type FormattingContext struct {
	Entry        logentry.LogEntry
	Settings     *settings.Snapshot
	Type         FormatterType
	TemplateName string

	properties   map[string]any
	stringify    bool
	noFormatting bool
}

// NewContext 创建上下文，snapshot 为 nil 时使用默认配置
func NewContext(entry logentry.LogEntry, snapshot *settings.Snapshot) FormattingContext {
	if snapshot == nil {
		snapshot = settings.Defaults()
	}
	return FormattingContext{
		Entry:        entry,
		Settings:     snapshot,
		TemplateName: entry.TemplateName,
	}
}

// WithProperty 附加属性，模板中可通过 {Name} 引用
func (c FormattingContext) WithProperty(name string, value any) FormattingContext {
	next := make(map[string]any, len(c.properties)+1)
	maps.Copy(next, c.properties)
	next[name] = value
	c.properties = next
	return c
}

// Property 读取属性
func (c FormattingContext) Property(name string) (any, bool) {
	v, ok := c.properties[name]
	return v, ok
}

// Properties 属性副本
func (c FormattingContext) Properties() map[string]any {
	return maps.Clone(c.properties)
}

// WithStringifiedParameters 结构化参数以字符串形式输出
func (c FormattingContext) WithStringifiedParameters() FormattingContext {
	c.stringify = true
	return c
}

// WithFormattingDisabled 不再格式化，只输出 "TypeName.MethodName"
func (c FormattingContext) WithFormattingDisabled() FormattingContext {
	c.noFormatting = true
	return c
}

func (c FormattingContext) WithType(t FormatterType) FormattingContext {
	c.Type = t
	return c
}

func (c FormattingContext) WithTemplate(name string) FormattingContext {
	c.TemplateName = name
	return c
}

func (c FormattingContext) StringifiedParameters() bool {
	return c.stringify
}

func (c FormattingContext) FormattingDisabled() bool {
	return c.noFormatting
}

// Destination 条目的目标名称
func (c FormattingContext) Destination() string {
	return c.Settings.Destination(c.Entry)
}
