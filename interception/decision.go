package interception

import (
	"fmt"
	"strings"

	"github.com/gocrud/calllog/settings"
)

// Facets 记录哪些调用数据
type Facets = settings.Facets

const (
	FacetNone   = settings.FacetNone
	FacetInput  = settings.FacetInput
	FacetOutput = settings.FacetOutput
	FacetBoth   = settings.FacetBoth
)

// Source 决策来源
type Source int

const (
	SourceDefaultNone Source = iota
	SourceDefaultService
	SourceMethodOverride
	SourceTypeOverride
	SourceExactRule
	SourceWildcardRule
	SourceExclusion
)

func (s Source) String() string {
	switch s {
	case SourceDefaultNone:
		return "default-none"
	case SourceDefaultService:
		return "default-service"
	case SourceMethodOverride:
		return "method-override"
	case SourceTypeOverride:
		return "type-override"
	case SourceExactRule:
		return "exact-rule"
	case SourceWildcardRule:
		return "wildcard-rule"
	case SourceExclusion:
		return "exclusion"
	}
	return fmt.Sprintf("Source(%d)", int(s))
}

// Decision 对一个方法的缓存决策，可比较
type Decision struct {
	Log       bool
	Facets    Facets
	Formatter string
	Template  string
	Target    string
	Source    Source
}

// LogsInput 是否记录入参
func (d Decision) LogsInput() bool {
	return d.Log && d.Facets&FacetInput != 0
}

// LogsOutput 是否记录返回值
func (d Decision) LogsOutput() bool {
	return d.Log && d.Facets&FacetOutput != 0
}

// OverrideMode 显式覆盖
type OverrideMode int

const (
	NoLog OverrideMode = iota
	LogInput
	LogOutput
	LogBoth
)

var overrideNames = [...]string{"none", "input", "output", "both"}

func (m OverrideMode) String() string {
	if m < NoLog || m > LogBoth {
		return fmt.Sprintf("OverrideMode(%d)", int(m))
	}
	return overrideNames[m]
}

// ParseOverrideMode 解析 none、input、output、both，大小写不敏感
func ParseOverrideMode(s string) (OverrideMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "nolog", "off":
		return NoLog, nil
	case "input":
		return LogInput, nil
	case "output":
		return LogOutput, nil
	case "both", "all":
		return LogBoth, nil
	}
	return NoLog, fmt.Errorf("unknown override mode %q", s)
}

func (m OverrideMode) facets() Facets {
	switch m {
	case LogInput:
		return FacetInput
	case LogOutput:
		return FacetOutput
	case LogBoth:
		return FacetBoth
	}
	return FacetNone
}

func fromOverride(m OverrideMode, source Source) Decision {
	f := m.facets()
	return Decision{Log: f != FacetNone, Facets: f, Source: source}
}

func fromRule(r settings.CompiledRule, source Source) Decision {
	d := Decision{
		Log:       r.Facets != FacetNone,
		Facets:    r.Facets,
		Formatter: r.Formatter,
		Template:  r.Template,
		Target:    r.Target,
		Source:    source,
	}
	if !d.Log {
		// 不记录时不携带覆盖信息，保证相等比较稳定
		return Decision{Source: source}
	}
	return d
}
