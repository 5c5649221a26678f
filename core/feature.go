package core

import (
	"reflect"
	"sync"
)

// FeatureCollection 是一个类型安全的特性集合
// 用于存放 WebBuilder, RedisBuilder 等构建时特性
type FeatureCollection struct {
	features sync.Map
}

// Set 以特性的动态类型注册
func (fc *FeatureCollection) Set(feature any) {
	fc.features.Store(reflect.TypeOf(feature), feature)
}

// Get 获取一个特性
func (fc *FeatureCollection) Get(typ reflect.Type) (any, bool) {
	return fc.features.Load(typ)
}

// SetFeature 以 T 注册特性，T 可以是接口类型
func SetFeature[T any](rt *Runtime, feature T) {
	rt.Features.features.Store(reflect.TypeOf((*T)(nil)).Elem(), feature)
}

// GetFeature 泛型辅助函数，从 Runtime 获取特性
func GetFeature[T any](rt *Runtime) T {
	var zero T
	// T 为接口时 reflect.TypeOf(zero) 为 nil，必须经由指针取 Elem
	targetType := reflect.TypeOf((*T)(nil)).Elem()

	if val, ok := rt.Features.Get(targetType); ok {
		return val.(T)
	}
	return zero
}
