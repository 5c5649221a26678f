package formatting

import "time"

// FormattedMessage 格式化结果
// 要么是可直接输出的 Message，要么是供结构化后端使用的模板加有序参数，也可两者都有
type FormattedMessage struct {
	Message        string
	Template       string
	Parameters     []any
	ParameterNames []string

	Success    bool
	IsFallback bool
	IsError    bool
	// Err 导致回退或错误标记的原因
	Err error
	// Timestamp 调用开始时间，为零时后端使用写入时间
	Timestamp time.Time
}

// Text 返回可读文本，只有模板时按参数渲染
func (m FormattedMessage) Text() string {
	if m.Message != "" || m.Template == "" {
		return m.Message
	}
	values := make(map[string]string, len(m.ParameterNames))
	for i, name := range m.ParameterNames {
		if i < len(m.Parameters) {
			values[name] = Stringify(m.Parameters[i])
		}
	}
	return ParseTemplate(m.Template).Render(func(name string) (string, bool) {
		v, ok := values[name]
		return v, ok
	})
}

// Fields 以参数名为键的结构化字段
func (m FormattedMessage) Fields() map[string]any {
	out := make(map[string]any, len(m.ParameterNames))
	for i, name := range m.ParameterNames {
		if i < len(m.Parameters) {
			out[name] = m.Parameters[i]
		}
	}
	return out
}
