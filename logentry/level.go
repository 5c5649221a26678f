package logentry

import (
	"fmt"
	"strings"
)

// Level 调用日志的严重级别
// 与后端级别的映射由 processing 包完成
type Level int

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInformation
	LevelWarning
	LevelError
	LevelCritical
	LevelNone
)

var levelNames = [...]string{"Trace", "Debug", "Information", "Warning", "Error", "Critical", "None"}

func (l Level) String() string {
	if l < LevelTrace || l > LevelNone {
		return fmt.Sprintf("Level(%d)", int(l))
	}
	return levelNames[l]
}

// ParseLevel 解析级别名称，大小写不敏感，接受常见缩写
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return LevelDebug, nil
	case "information", "info":
		return LevelInformation, nil
	case "warning", "warn":
		return LevelWarning, nil
	case "error":
		return LevelError, nil
	case "critical", "fatal":
		return LevelCritical, nil
	case "none", "off":
		return LevelNone, nil
	default:
		return LevelInformation, fmt.Errorf("unknown level %q", s)
	}
}

// MarshalText 以名称序列化
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText 支持在配置中直接使用级别名称
func (l *Level) UnmarshalText(text []byte) error {
	parsed, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
