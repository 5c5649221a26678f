package formatting

import (
	"encoding/json"
	"fmt"
)

// MessageFormatter 格式化器
// Format 不得修改上下文或保存状态
type MessageFormatter interface {
	Format(ctx FormattingContext) (FormattedMessage, error)
}

// FormatterFunc 函数适配器
type FormatterFunc func(ctx FormattingContext) (FormattedMessage, error)

func (f FormatterFunc) Format(ctx FormattingContext) (FormattedMessage, error) {
	return f(ctx)
}

// render 渲染模板并生成参数列表
func render(ctx FormattingContext, raw string) FormattedMessage {
	tpl := ParseTemplate(raw)
	names := tpl.Names()
	params := make([]any, len(names))
	for i, name := range names {
		v, _ := Value(ctx, name)
		if ctx.StringifiedParameters() {
			v = Stringify(v)
		}
		params[i] = v
	}
	return FormattedMessage{
		Message:        tpl.Render(lookupString(ctx)),
		Template:       raw,
		Parameters:     params,
		ParameterNames: names,
		Success:        ctx.Entry.Success,
	}
}

// jsonRecord JSON 输出结构
type jsonRecord struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Method     string `json:"method"`
	Level      string `json:"level"`
	Success    bool   `json:"success"`
	Target     string `json:"target"`
	Timestamp  string `json:"timestamp"`
	DurationMs int64  `json:"durationMs"`
	Input      any    `json:"input,omitempty"`
	Output     any    `json:"output,omitempty"`
	Exception  string `json:"exception,omitempty"`

	Properties map[string]any `json:"properties,omitempty"`
}

func newRecord(ctx FormattingContext) jsonRecord {
	e := ctx.Entry
	ts, _ := Value(ctx, PlaceholderTimestamp)
	r := jsonRecord{
		ID:         e.ID.String(),
		Type:       e.TypeName,
		Method:     e.MethodName,
		Level:      e.EffectiveLevel().String(),
		Success:    e.Success,
		Target:     ctx.Destination(),
		Timestamp:  ts.(string),
		DurationMs: e.Duration.Milliseconds(),
		Input:      e.Input,
		Output:     e.Output,
		Exception:  e.ExceptionMessage,
		Properties: ctx.Properties(),
	}
	if ctx.StringifiedParameters() {
		if r.Input != nil {
			r.Input = Stringify(r.Input)
		}
		if r.Output != nil {
			r.Output = Stringify(r.Output)
		}
	}
	return r
}

// JSONFormatter 整条记录序列化为 JSON
type JSONFormatter struct{}

func (JSONFormatter) Format(ctx FormattingContext) (FormattedMessage, error) {
	b, err := json.Marshal(newRecord(ctx))
	if err != nil {
		return FormattedMessage{}, fmt.Errorf("json formatter: %w", err)
	}
	return FormattedMessage{Message: string(b), Success: ctx.Entry.Success}, nil
}

// HybridTemplate 混合格式的可读部分
const HybridTemplate = "{TypeName}.{MethodName} {Outcome} in {DurationMs}ms"

// HybridFormatter 可读摘要加 JSON 尾部
type HybridFormatter struct{}

func (HybridFormatter) Format(ctx FormattingContext) (FormattedMessage, error) {
	outcome := "succeeded"
	if !ctx.Entry.Success {
		outcome = "failed"
	}
	msg := render(ctx.WithProperty("Outcome", outcome), HybridTemplate)

	tail := struct {
		ID        string `json:"id"`
		Input     any    `json:"input,omitempty"`
		Output    any    `json:"output,omitempty"`
		Exception string `json:"exception,omitempty"`
	}{
		ID:        ctx.Entry.ID.String(),
		Input:     ctx.Entry.Input,
		Output:    ctx.Entry.Output,
		Exception: ctx.Entry.ExceptionMessage,
	}
	b, err := json.Marshal(tail)
	if err != nil {
		return FormattedMessage{}, fmt.Errorf("hybrid formatter: %w", err)
	}
	msg.Message += " " + string(b)
	return msg, nil
}

// TemplateFormatter 使用配置中的命名模板
type TemplateFormatter struct{}

func (TemplateFormatter) Format(ctx FormattingContext) (FormattedMessage, error) {
	name := ctx.TemplateName
	raw, ok := ctx.Settings.Template(name)
	if !ok {
		return FormattedMessage{}, fmt.Errorf("%w: %q", ErrUnknownTemplate, name)
	}
	return render(ctx, raw), nil
}

// StructuredTemplate 结构化格式模板
const StructuredTemplate = "{TypeName}.{MethodName} completed Success={Success} in {DurationMs}ms Input={InputParameters} Output={OutputValue}"

// StructuredFormatter 模板加有序参数，交给支持结构化日志的后端
type StructuredFormatter struct{}

func (StructuredFormatter) Format(ctx FormattingContext) (FormattedMessage, error) {
	return render(ctx, StructuredTemplate), nil
}

// 成功与失败两种形态的模板
const (
	SuccessTemplate = "{TypeName}.{MethodName} succeeded in {DurationMs}ms"
	ErrorTemplate   = "{TypeName}.{MethodName} failed after {DurationMs}ms: {Exception}"
)

// SuccessErrorFormatter 按调用结果选择模板
type SuccessErrorFormatter struct{}

func (SuccessErrorFormatter) Format(ctx FormattingContext) (FormattedMessage, error) {
	if ctx.Entry.Success {
		return render(ctx, SuccessTemplate), nil
	}
	return render(ctx, ErrorTemplate), nil
}
