package processing

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/gocrud/calllog/logentry"
)

// Filter 基于 CEL 表达式的条目过滤器
//
// 可用变量: type, method, key, level, success, duration_ms, target, exception, has_exception。
// 表达式为空时不过滤。
type Filter struct {
	expr    string
	prog    cel.Program
	enabled bool
}

// NewFilter 编译表达式，表达式结果必须为 bool
func NewFilter(expr string) (*Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return &Filter{}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("type", cel.StringType),
		cel.Variable("method", cel.StringType),
		cel.Variable("key", cel.StringType),
		cel.Variable("level", cel.StringType),
		cel.Variable("success", cel.BoolType),
		cel.Variable("duration_ms", cel.IntType),
		cel.Variable("target", cel.StringType),
		cel.Variable("exception", cel.StringType),
		cel.Variable("has_exception", cel.BoolType),
	)
	if err != nil {
		return nil, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("parse filter: %w", iss.Err())
	}
	checked, iss := env.Check(ast)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("check filter: %w", iss.Err())
	}
	if !checked.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("filter must evaluate to bool, got %v", checked.OutputType())
	}
	prog, err := env.Program(checked)
	if err != nil {
		return nil, err
	}
	return &Filter{expr: expr, prog: prog, enabled: true}, nil
}

// Expression 原始表达式
func (f *Filter) Expression() string {
	return f.expr
}

// Match 条目是否保留
// 求值出错时保留条目
func (f *Filter) Match(e logentry.LogEntry, destination string) bool {
	if f == nil || !f.enabled {
		return true
	}
	out, _, err := f.prog.Eval(map[string]any{
		"type":          e.TypeName,
		"method":        e.MethodName,
		"key":           e.Key(),
		"level":         strings.ToLower(e.EffectiveLevel().String()),
		"success":       e.Success,
		"duration_ms":   e.Duration.Milliseconds(),
		"target":        destination,
		"exception":     e.ExceptionMessage,
		"has_exception": e.HasException(),
	})
	if err != nil {
		return true
	}
	b, ok := out.Value().(bool)
	return !ok || b
}
