// Package settings 调用日志配置
//
// Options 是从配置节 "calllog" 绑定的原始结构，Compile 把它编译为只读的 Snapshot。
// Snapshot 发布后不再修改，可被任意数量的 goroutine 并发读取。
package settings

// SectionName 默认配置节
const SectionName = "calllog"

// DefaultFallbackTemplate 格式化失败时使用的模板
const DefaultFallbackTemplate = "{TypeName}.{MethodName} Success={Success} Id={Id} Input={InputParameters} Output={OutputValue}"

// Mode 后台队列模式
const (
	ModeQueued      = "queued"
	ModePassThrough = "passthrough"
)

// Rule 一条包含规则
type Rule struct {
	Pattern   string `json:"pattern"`
	Log       string `json:"log"` // none | input | output | both，缺省为 both
	Formatter string `json:"formatter"`
	Template  string `json:"template"`
	Target    string `json:"target"`
}

// Exclusions 排除规则
type Exclusions struct {
	Exact  []string `json:"exact"`
	Prefix []string `json:"prefix"`
	Suffix []string `json:"suffix"`
}

// TargetOptions 目标级配置
type TargetOptions struct {
	Formatter string `json:"formatter"`
}

// Options 调用日志配置
type Options struct {
	Enabled          bool   `json:"enabled"`
	Mode             string `json:"mode"`
	Capacity         int    `json:"capacity"`
	DrainTimeout     string `json:"drainTimeout"`
	Level            string `json:"level"`
	ErrorLevel       string `json:"errorLevel"`
	DefaultFormatter string `json:"defaultFormatter"`
	DefaultTarget    string `json:"defaultTarget"`
	EnableFallback   bool   `json:"enableFallback"`
	FallbackTemplate string `json:"fallbackTemplate"`

	// Filter CEL 表达式，为空表示不过滤
	Filter string `json:"filter"`

	Templates map[string]string `json:"templates"`

	Methods  []Rule     `json:"methods"`
	Prefixes []Rule     `json:"prefixes"`
	Suffixes []Rule     `json:"suffixes"`
	Exclude  Exclusions `json:"exclude"`

	Targets              map[string]TargetOptions `json:"targets"`
	SuppressedCategories []string                 `json:"suppressedCategories"`
}

// DefaultOptions 默认配置
func DefaultOptions() Options {
	return Options{
		Enabled:          true,
		Mode:             ModeQueued,
		Capacity:         10000,
		DrainTimeout:     "5s",
		Level:            "information",
		ErrorLevel:       "error",
		DefaultFormatter: "hybrid",
		EnableFallback:   true,
		FallbackTemplate: DefaultFallbackTemplate,
	}
}
