package formatting

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

const (
	maxPrintDepth = 6
	maxPrintItems = 32
)

// safeSprint 有界地打印任意值
// 环引用输出 <cycle>，超过深度输出 ...，error 与 Stringer 经 fmt 调用以拦截 panic
func safeSprint(v any) string {
	var p printer
	p.seen = make(map[uintptr]bool)
	p.value(reflect.ValueOf(v), 0)
	return p.b.String()
}

type printer struct {
	b    strings.Builder
	seen map[uintptr]bool
}

func (p *printer) value(rv reflect.Value, depth int) {
	if !rv.IsValid() {
		p.b.WriteString("<nil>")
		return
	}
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		if rv.IsNil() {
			p.b.WriteString("<nil>")
			return
		}
	}
	if rv.CanInterface() {
		switch x := rv.Interface().(type) {
		case error:
			p.b.WriteString(fmt.Sprint(x))
			return
		case fmt.Stringer:
			p.b.WriteString(fmt.Sprint(x))
			return
		}
	}

	switch rv.Kind() {
	case reflect.Bool:
		p.b.WriteString(strconv.FormatBool(rv.Bool()))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		p.b.WriteString(strconv.FormatInt(rv.Int(), 10))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		p.b.WriteString(strconv.FormatUint(rv.Uint(), 10))
	case reflect.Float32, reflect.Float64:
		p.b.WriteString(strconv.FormatFloat(rv.Float(), 'g', -1, 64))
	case reflect.Complex64, reflect.Complex128:
		p.b.WriteString(strconv.FormatComplex(rv.Complex(), 'g', -1, 128))
	case reflect.String:
		p.b.WriteString(rv.String())
	case reflect.Interface:
		p.value(rv.Elem(), depth)
	case reflect.Pointer:
		if p.enter(rv.Pointer(), depth) {
			p.b.WriteByte('&')
			p.value(rv.Elem(), depth+1)
			p.leave(rv.Pointer())
		}
	case reflect.Map:
		if p.enter(rv.Pointer(), depth) {
			p.mapEntries(rv, depth)
			p.leave(rv.Pointer())
		}
	case reflect.Slice:
		if p.enter(rv.Pointer(), depth) {
			p.list(rv, depth)
			p.leave(rv.Pointer())
		}
	case reflect.Array:
		if depth >= maxPrintDepth {
			p.b.WriteString("...")
			return
		}
		p.list(rv, depth)
	case reflect.Struct:
		if depth >= maxPrintDepth {
			p.b.WriteString("...")
			return
		}
		p.fields(rv, depth)
	default:
		p.b.WriteString("<" + rv.Type().String() + ">")
	}
}

// enter 标记引用类型，返回 false 表示已输出替代文本
func (p *printer) enter(ptr uintptr, depth int) bool {
	if p.seen[ptr] {
		p.b.WriteString("<cycle>")
		return false
	}
	if depth >= maxPrintDepth {
		p.b.WriteString("...")
		return false
	}
	p.seen[ptr] = true
	return true
}

func (p *printer) leave(ptr uintptr) {
	delete(p.seen, ptr)
}

func (p *printer) list(rv reflect.Value, depth int) {
	p.b.WriteByte('[')
	for i := 0; i < rv.Len(); i++ {
		if i > 0 {
			p.b.WriteByte(' ')
		}
		if i == maxPrintItems {
			p.b.WriteString("...")
			break
		}
		p.value(rv.Index(i), depth+1)
	}
	p.b.WriteByte(']')
}

func (p *printer) mapEntries(rv reflect.Value, depth int) {
	type entry struct {
		key string
		val reflect.Value
	}
	entries := make([]entry, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		var kp printer
		kp.seen = p.seen
		kp.value(iter.Key(), depth+1)
		entries = append(entries, entry{key: kp.b.String(), val: iter.Value()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })

	p.b.WriteString("map[")
	for i, e := range entries {
		if i > 0 {
			p.b.WriteByte(' ')
		}
		if i == maxPrintItems {
			p.b.WriteString("...")
			break
		}
		p.b.WriteString(e.key)
		p.b.WriteByte(':')
		p.value(e.val, depth+1)
	}
	p.b.WriteByte(']')
}

func (p *printer) fields(rv reflect.Value, depth int) {
	t := rv.Type()
	p.b.WriteByte('{')
	for i := 0; i < rv.NumField(); i++ {
		if i > 0 {
			p.b.WriteByte(' ')
		}
		p.b.WriteString(t.Field(i).Name)
		p.b.WriteByte(':')
		p.value(rv.Field(i), depth+1)
	}
	p.b.WriteByte('}')
}
