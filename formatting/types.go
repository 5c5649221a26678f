// Package formatting 把日志条目转换为可输出的消息。
//
// 格式化器是无状态的，同一实例可被并发复用。Factory 负责选择格式化器，
// 并保证任何失败都会降级为回退消息而不会向上传播。
package formatting

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownTemplate 命名模板不存在
	ErrUnknownTemplate = errors.New("formatting: unknown template")
	// ErrUnknownFormatter 格式化器未注册
	ErrUnknownFormatter = errors.New("formatting: unknown formatter")
)

// FormatterType 格式化器种类
type FormatterType int

const (
	FormatterUnspecified FormatterType = iota
	FormatterJSON
	FormatterHybrid
	FormatterTemplate
	FormatterStructured
	FormatterSuccessError
)

func (t FormatterType) String() string {
	switch t {
	case FormatterUnspecified:
		return "unspecified"
	case FormatterJSON:
		return "json"
	case FormatterHybrid:
		return "hybrid"
	case FormatterTemplate:
		return "template"
	case FormatterStructured:
		return "structured"
	case FormatterSuccessError:
		return "successerror"
	}
	return fmt.Sprintf("FormatterType(%d)", int(t))
}

// ParseFormatterType 解析名称，忽略大小写以及 "-"、"_"
func ParseFormatterType(s string) (FormatterType, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	name = strings.NewReplacer("-", "", "_", "", " ", "").Replace(name)
	switch name {
	case "json":
		return FormatterJSON, nil
	case "hybrid":
		return FormatterHybrid, nil
	case "template", "custom":
		return FormatterTemplate, nil
	case "structured", "standard":
		return FormatterStructured, nil
	case "successerror":
		return FormatterSuccessError, nil
	}
	return FormatterUnspecified, fmt.Errorf("%w: %q", ErrUnknownFormatter, s)
}
