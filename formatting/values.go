package formatting

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// 可用占位符
const (
	PlaceholderTypeName        = "TypeName"
	PlaceholderMethodName      = "MethodName"
	PlaceholderSuccess         = "Success"
	PlaceholderID              = "Id"
	PlaceholderInputParameters = "InputParameters"
	PlaceholderOutputValue     = "OutputValue"
	PlaceholderLevel           = "Level"
	PlaceholderDuration        = "Duration"
	PlaceholderDurationMs      = "DurationMs"
	PlaceholderException       = "Exception"
	PlaceholderTarget          = "Target"
	PlaceholderTimestamp       = "Timestamp"
)

// fallbackPlaceholders 回退模板只替换这几个占位符
var fallbackPlaceholders = map[string]bool{
	PlaceholderTypeName:        true,
	PlaceholderMethodName:      true,
	PlaceholderSuccess:         true,
	PlaceholderID:              true,
	PlaceholderInputParameters: true,
	PlaceholderOutputValue:     true,
}

// Value 返回占位符对应的原始值，未知名称查找上下文属性
func Value(ctx FormattingContext, name string) (any, bool) {
	e := ctx.Entry
	switch name {
	case PlaceholderTypeName:
		return e.TypeName, true
	case PlaceholderMethodName:
		return e.MethodName, true
	case PlaceholderSuccess:
		return e.Success, true
	case PlaceholderID:
		return e.ID.String(), true
	case PlaceholderInputParameters:
		return e.Input, true
	case PlaceholderOutputValue:
		return e.Output, true
	case PlaceholderLevel:
		return e.EffectiveLevel().String(), true
	case PlaceholderDuration:
		return e.Duration.String(), true
	case PlaceholderDurationMs:
		return e.Duration.Milliseconds(), true
	case PlaceholderException:
		return e.ExceptionMessage, true
	case PlaceholderTarget:
		return ctx.Destination(), true
	case PlaceholderTimestamp:
		return e.StartedAt.UTC().Format(time.RFC3339Nano), true
	}
	return ctx.Property(name)
}

// lookupString 模板渲染使用的字符串查找
func lookupString(ctx FormattingContext) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := Value(ctx, name)
		if !ok {
			return "", false
		}
		return Stringify(v), true
	}
}

// Stringify 把任意值转换为字符串，复合值优先使用 JSON
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case error:
		return x.Error()
	case fmt.Stringer:
		return safeSprint(x)
	}
	if b, err := json.Marshal(v); err == nil {
		return string(b)
	}
	return safeSprint(v)
}
