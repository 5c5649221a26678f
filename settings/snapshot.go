package settings

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/gocrud/calllog/logentry"
)

// Facets 记录哪些调用数据
type Facets uint8

const (
	FacetNone   Facets = 0
	FacetInput  Facets = 1 << 0
	FacetOutput Facets = 1 << 1
	FacetBoth          = FacetInput | FacetOutput
)

func (f Facets) String() string {
	switch f {
	case FacetNone:
		return "none"
	case FacetInput:
		return "input"
	case FacetOutput:
		return "output"
	case FacetBoth:
		return "both"
	}
	return fmt.Sprintf("Facets(%d)", uint8(f))
}

// ParseFacets 空字符串视为 both
func ParseFacets(s string) (Facets, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "both", "all", "true":
		return FacetBoth, nil
	case "input":
		return FacetInput, nil
	case "output":
		return FacetOutput, nil
	case "none", "false", "nolog":
		return FacetNone, nil
	}
	return FacetNone, fmt.Errorf("unknown log mode %q", s)
}

// CompiledRule 编译后的包含规则
type CompiledRule struct {
	Pattern   string
	Facets    Facets
	Formatter string
	Template  string
	Target    string

	wildcard bool
	// matchKey 为 true 时匹配 "TypeName.MethodName"，否则只匹配方法名
	matchKey bool
	literal  int
	order    int
}

// Specificity 非通配符字符数
func (r CompiledRule) Specificity() int {
	return r.literal
}

func (r CompiledRule) matches(typeName, methodName string) bool {
	subject := methodName
	if r.matchKey {
		subject = typeName + "." + methodName
	}
	if !r.wildcard {
		return subject == r.Pattern
	}
	ok, _ := path.Match(r.Pattern, subject)
	return ok
}

// Snapshot 编译后的只读配置
type Snapshot struct {
	Enabled          bool
	Mode             string
	Capacity         int
	DrainTimeout     time.Duration
	Level            logentry.Level
	ErrorLevel       logentry.Level
	DefaultFormatter string
	DefaultTarget    string
	EnableFallback   bool
	FallbackTemplate string
	Filter           string

	// Version 每次发布递增
	Version uint64

	templates     map[string]string
	exact         map[string]CompiledRule
	wildcards     []CompiledRule
	exclude       Exclusions
	targets       map[string]string
	suppressed    map[string]struct{}
	templateNames []string
}

// Compile 编译配置
// 无法解析的规则被跳过，对应错误随结果一起返回
func Compile(o Options) (*Snapshot, []error) {
	var errs []error
	s := &Snapshot{
		Enabled:          o.Enabled,
		Mode:             strings.ToLower(o.Mode),
		Capacity:         o.Capacity,
		DefaultFormatter: strings.ToLower(strings.TrimSpace(o.DefaultFormatter)),
		DefaultTarget:    strings.TrimSpace(o.DefaultTarget),
		EnableFallback:   o.EnableFallback,
		FallbackTemplate: o.FallbackTemplate,
		Filter:           strings.TrimSpace(o.Filter),
		templates:        make(map[string]string, len(o.Templates)),
		exact:            make(map[string]CompiledRule),
		targets:          make(map[string]string, len(o.Targets)),
		suppressed:       make(map[string]struct{}, len(o.SuppressedCategories)),
		exclude:          o.Exclude,
	}

	if s.Mode != ModePassThrough {
		s.Mode = ModeQueued
	}
	if s.Capacity <= 0 {
		s.Capacity = DefaultOptions().Capacity
	}
	if s.FallbackTemplate == "" {
		s.FallbackTemplate = DefaultFallbackTemplate
	}

	s.DrainTimeout = 5 * time.Second
	if o.DrainTimeout != "" {
		d, err := time.ParseDuration(o.DrainTimeout)
		if err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("drainTimeout %q: invalid duration", o.DrainTimeout))
		} else {
			s.DrainTimeout = d
		}
	}

	var err error
	if s.Level, err = parseLevelOr(o.Level, logentry.LevelInformation); err != nil {
		errs = append(errs, fmt.Errorf("level: %w", err))
	}
	if s.ErrorLevel, err = parseLevelOr(o.ErrorLevel, logentry.LevelError); err != nil {
		errs = append(errs, fmt.Errorf("errorLevel: %w", err))
	}

	for name, tpl := range o.Templates {
		s.templates[name] = tpl
		s.templateNames = append(s.templateNames, name)
	}
	for name, t := range o.Targets {
		if t.Formatter != "" {
			s.targets[name] = strings.ToLower(t.Formatter)
		}
	}
	for _, c := range o.SuppressedCategories {
		s.suppressed[c] = struct{}{}
	}

	order := 0
	add := func(list string, r Rule, pattern string) {
		defer func() { order++ }()
		rule, err := compileRule(r, pattern, order)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s rule %q: %w", list, r.Pattern, err))
			return
		}
		if rule.wildcard {
			s.wildcards = append(s.wildcards, rule)
			return
		}
		if _, dup := s.exact[rule.Pattern]; !dup {
			s.exact[rule.Pattern] = rule
		}
	}
	for _, r := range o.Methods {
		add("methods", r, r.Pattern)
	}
	for _, r := range o.Prefixes {
		add("prefixes", r, strings.TrimSuffix(r.Pattern, "*")+"*")
	}
	for _, r := range o.Suffixes {
		add("suffixes", r, "*"+strings.TrimPrefix(r.Pattern, "*"))
	}

	return s, errs
}

const ruleMetaChars = "?[]\\"

func compileRule(r Rule, pattern string, order int) (CompiledRule, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return CompiledRule{}, fmt.Errorf("empty pattern")
	}
	facets, err := ParseFacets(r.Log)
	if err != nil {
		return CompiledRule{}, err
	}
	// 只支持 * 通配，path.Match 的其余元字符不会出现在类型名与方法名中
	if i := strings.IndexAny(pattern, ruleMetaChars); i >= 0 {
		return CompiledRule{}, fmt.Errorf("unsupported character %q, only * is a wildcard", pattern[i])
	}

	wildcard := strings.Contains(pattern, "*")
	return CompiledRule{
		Pattern:   pattern,
		Facets:    facets,
		Formatter: strings.ToLower(r.Formatter),
		Template:  r.Template,
		Target:    r.Target,
		wildcard:  wildcard,
		matchKey:  strings.Contains(pattern, ".") || !wildcard,
		literal:   len(pattern) - strings.Count(pattern, "*"),
		order:     order,
	}, nil
}

func parseLevelOr(s string, def logentry.Level) (logentry.Level, error) {
	if s == "" {
		return def, nil
	}
	l, err := logentry.ParseLevel(s)
	if err != nil {
		return def, err
	}
	return l, nil
}

// ExactRule 查找 "TypeName.MethodName" 的精确规则，其次查找只写了方法名的规则
func (s *Snapshot) ExactRule(typeName, methodName string) (CompiledRule, bool) {
	if r, ok := s.exact[typeName+"."+methodName]; ok {
		return r, true
	}
	r, ok := s.exact[methodName]
	return r, ok
}

// WildcardRule 返回最具体的通配符规则
// 非通配符部分最长者胜出，相同时先声明者胜出
func (s *Snapshot) WildcardRule(typeName, methodName string) (CompiledRule, bool) {
	var (
		best  CompiledRule
		found bool
	)
	for _, r := range s.wildcards {
		if !r.matches(typeName, methodName) {
			continue
		}
		if !found || r.literal > best.literal || (r.literal == best.literal && r.order < best.order) {
			best, found = r, true
		}
	}
	return best, found
}

// Excluded 是否命中排除规则
// exact 匹配完整键或方法名，prefix/suffix 同时检查方法名与完整键
func (s *Snapshot) Excluded(typeName, methodName string) bool {
	key := typeName + "." + methodName
	for _, e := range s.exclude.Exact {
		if e == key || e == methodName {
			return true
		}
	}
	for _, p := range s.exclude.Prefix {
		if p != "" && (strings.HasPrefix(methodName, p) || strings.HasPrefix(key, p)) {
			return true
		}
	}
	for _, p := range s.exclude.Suffix {
		if p != "" && (strings.HasSuffix(methodName, p) || strings.HasSuffix(key, p)) {
			return true
		}
	}
	return false
}

// TargetFormatter 目标绑定的格式化器
func (s *Snapshot) TargetFormatter(target string) (string, bool) {
	f, ok := s.targets[target]
	return f, ok
}

// Template 命名模板
func (s *Snapshot) Template(name string) (string, bool) {
	t, ok := s.templates[name]
	return t, ok
}

// TemplateNames 已配置的模板名称
func (s *Snapshot) TemplateNames() []string {
	out := make([]string, len(s.templateNames))
	copy(out, s.templateNames)
	return out
}

// IsSuppressed 目标是否被抑制
func (s *Snapshot) IsSuppressed(destination string) bool {
	_, ok := s.suppressed[destination]
	return ok
}

// RuleCount 返回精确与通配符规则数量
func (s *Snapshot) RuleCount() (exact, wildcard int) {
	return len(s.exact), len(s.wildcards)
}

// Defaults 默认配置的快照
func Defaults() *Snapshot {
	s, _ := Compile(DefaultOptions())
	return s
}

// Destination 条目的目标名称：条目目标，其次默认目标，最后类型名
func (s *Snapshot) Destination(e logentry.LogEntry) string {
	if e.Target != "" {
		return e.Target
	}
	if s.DefaultTarget != "" {
		return s.DefaultTarget
	}
	return e.TypeName
}
