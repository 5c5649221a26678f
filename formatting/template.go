package formatting

import (
	"strings"
	"sync"
)

type token struct {
	text     string
	property bool
}

// Template 解析后的消息模板
// {Name} 为占位符，{{ 与 }} 转义为字面括号，未闭合的 { 作为普通文本
type Template struct {
	Raw    string
	tokens []token
}

var templateCache sync.Map // string -> *Template

// ParseTemplate 解析模板，结果被缓存
func ParseTemplate(raw string) *Template {
	if t, ok := templateCache.Load(raw); ok {
		return t.(*Template)
	}
	t := parseTemplate(raw)
	actual, _ := templateCache.LoadOrStore(raw, t)
	return actual.(*Template)
}

func parseTemplate(raw string) *Template {
	t := &Template{Raw: raw}
	var text strings.Builder
	flush := func() {
		if text.Len() > 0 {
			t.tokens = append(t.tokens, token{text: text.String()})
			text.Reset()
		}
	}

	for i := 0; i < len(raw); {
		switch c := raw[i]; {
		case c == '{' && i+1 < len(raw) && raw[i+1] == '{':
			text.WriteByte('{')
			i += 2
		case c == '}' && i+1 < len(raw) && raw[i+1] == '}':
			text.WriteByte('}')
			i += 2
		case c == '{':
			end := strings.IndexByte(raw[i+1:], '}')
			name := ""
			if end >= 0 {
				name = strings.TrimSpace(raw[i+1 : i+1+end])
			}
			if end < 0 || !validName(name) {
				text.WriteByte(c)
				i++
				continue
			}
			flush()
			t.tokens = append(t.tokens, token{text: name, property: true})
			i += end + 2
		default:
			text.WriteByte(c)
			i++
		}
	}
	flush()
	return t
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if r != '_' && !('a' <= r && r <= 'z' || 'A' <= r && r <= 'Z' || '0' <= r && r <= '9') {
			return false
		}
	}
	return true
}

// Names 占位符名称，按出现顺序，不去重
func (t *Template) Names() []string {
	var names []string
	for _, tok := range t.tokens {
		if tok.property {
			names = append(names, tok.text)
		}
	}
	return names
}

// Render 渲染模板，lookup 找不到的占位符原样保留
func (t *Template) Render(lookup func(name string) (string, bool)) string {
	var b strings.Builder
	b.Grow(len(t.Raw))
	for _, tok := range t.tokens {
		if !tok.property {
			b.WriteString(tok.text)
			continue
		}
		if v, ok := lookup(tok.text); ok {
			b.WriteString(v)
			continue
		}
		b.WriteByte('{')
		b.WriteString(tok.text)
		b.WriteByte('}')
	}
	return b.String()
}
