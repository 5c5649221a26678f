// Package interception 决定一次方法调用是否记录、记录哪些数据。
//
// DecisionCache 以 MethodIdentity 为键缓存决策，读路径无锁；
// Interceptor 是代理层使用的辅助类型，负责构造 LogEntry 并投递到后台队列。
package interception

import (
	"reflect"
	"strings"
)

// MethodIdentity 方法的稳定标识
type MethodIdentity struct {
	TypeName   string
	MethodName string
	// Signature 参数与返回值签名，仅用于区分同名方法
	Signature string
}

// NewMethod 直接构造方法标识
func NewMethod(typeName, methodName, signature string) MethodIdentity {
	return MethodIdentity{TypeName: typeName, MethodName: methodName, Signature: signature}
}

// Key 返回 "TypeName.MethodName"
func (m MethodIdentity) Key() string {
	return m.TypeName + "." + m.MethodName
}

func (m MethodIdentity) String() string {
	if m.Signature == "" {
		return m.Key()
	}
	return m.Key() + " " + m.Signature
}

// MethodOf 从 T 的方法集推导标识，T 可以是接口或具体类型
// 方法不存在时签名为空
func MethodOf[T any](name string) MethodIdentity {
	t := reflect.TypeOf((*T)(nil)).Elem()
	id := MethodIdentity{TypeName: TypeName(t), MethodName: name}
	if m, ok := t.MethodByName(name); ok {
		id.Signature = signatureOf(m.Type, t.Kind() != reflect.Interface)
	}
	return id
}

// MethodsOf 返回 T 的全部导出方法标识，通常在启动时调用一次
func MethodsOf[T any]() []MethodIdentity {
	t := reflect.TypeOf((*T)(nil)).Elem()
	name := TypeName(t)
	out := make([]MethodIdentity, 0, t.NumMethod())
	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		out = append(out, MethodIdentity{
			TypeName:   name,
			MethodName: m.Name,
			Signature:  signatureOf(m.Type, t.Kind() != reflect.Interface),
		})
	}
	return out
}

// TypeName 去掉指针与包名的类型名
func TypeName(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if name := t.Name(); name != "" {
		return name
	}
	return t.String()
}

func signatureOf(ft reflect.Type, hasReceiver bool) string {
	start := 0
	if hasReceiver {
		start = 1
	}
	var b strings.Builder
	b.WriteByte('(')
	for i := start; i < ft.NumIn(); i++ {
		if i > start {
			b.WriteString(", ")
		}
		if ft.IsVariadic() && i == ft.NumIn()-1 {
			b.WriteString("..." + ft.In(i).Elem().String())
			continue
		}
		b.WriteString(ft.In(i).String())
	}
	b.WriteByte(')')
	switch ft.NumOut() {
	case 0:
	case 1:
		b.WriteString(" " + ft.Out(0).String())
	default:
		b.WriteString(" (")
		for i := 0; i < ft.NumOut(); i++ {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(ft.Out(i).String())
		}
		b.WriteByte(')')
	}
	return b.String()
}
