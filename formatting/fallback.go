package formatting

import (
	"fmt"
)

// Fallback 用回退模板生成消息
// 值经有界打印渲染，不会调用 MarshalJSON 等自定义序列化
func Fallback(ctx FormattingContext, cause error) FormattedMessage {
	raw := ctx.Settings.FallbackTemplate
	e := ctx.Entry
	msg := ParseTemplate(raw).Render(func(name string) (string, bool) {
		if !fallbackPlaceholders[name] {
			return "", false
		}
		switch name {
		case PlaceholderTypeName:
			return e.TypeName, true
		case PlaceholderMethodName:
			return e.MethodName, true
		case PlaceholderSuccess:
			return fmt.Sprint(e.Success), true
		case PlaceholderID:
			return e.ID.String(), true
		case PlaceholderInputParameters:
			return safeSprint(e.Input), true
		default:
			return safeSprint(e.Output), true
		}
	})
	return FormattedMessage{
		Message:    msg,
		Success:    e.Success,
		IsFallback: true,
		Err:        cause,
	}
}

// ErrorMarker 回退关闭时的错误标记消息
func ErrorMarker(ctx FormattingContext, cause error) FormattedMessage {
	return FormattedMessage{
		Message: fmt.Sprintf("[Formatting Error: %s.%s: %v]", ctx.Entry.TypeName, ctx.Entry.MethodName, cause),
		Success: ctx.Entry.Success,
		IsError: true,
		Err:     cause,
	}
}

// Plain 关闭格式化时的消息
func Plain(ctx FormattingContext) FormattedMessage {
	return FormattedMessage{
		Message: ctx.Entry.Key(),
		Success: ctx.Entry.Success,
	}
}
