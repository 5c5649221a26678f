package interception

import (
	"maps"
	"sync"
	"sync/atomic"
)

type overrideSet struct {
	methods map[string]OverrideMode
	types   map[string]OverrideMode
}

// Overrides 显式覆盖注册表，写时复制
type Overrides struct {
	mu      sync.Mutex
	current atomic.Pointer[overrideSet]
	changed hooks
}

func NewOverrides() *Overrides {
	o := &Overrides{}
	o.current.Store(&overrideSet{
		methods: map[string]OverrideMode{},
		types:   map[string]OverrideMode{},
	})
	return o
}

// ForMethod 覆盖单个方法
func (o *Overrides) ForMethod(id MethodIdentity, mode OverrideMode) {
	o.update(func(s *overrideSet) { s.methods[id.Key()] = mode })
}

// ForType 覆盖一个类型的所有方法
func (o *Overrides) ForType(typeName string, mode OverrideMode) {
	o.update(func(s *overrideSet) { s.types[typeName] = mode })
}

func (o *Overrides) RemoveMethod(id MethodIdentity) {
	o.update(func(s *overrideSet) { delete(s.methods, id.Key()) })
}

func (o *Overrides) RemoveType(typeName string) {
	o.update(func(s *overrideSet) { delete(s.types, typeName) })
}

// Methods 方法覆盖的副本，键为 "Type.Method"
func (o *Overrides) Methods() map[string]OverrideMode {
	return maps.Clone(o.current.Load().methods)
}

// Types 类型覆盖的副本
func (o *Overrides) Types() map[string]OverrideMode {
	return maps.Clone(o.current.Load().types)
}

// Replace 整体替换全部覆盖，只触发一次变更
func (o *Overrides) Replace(methods, types map[string]OverrideMode) {
	o.update(func(s *overrideSet) {
		s.methods = maps.Clone(methods)
		s.types = maps.Clone(types)
		if s.methods == nil {
			s.methods = map[string]OverrideMode{}
		}
		if s.types == nil {
			s.types = map[string]OverrideMode{}
		}
	})
}

// OnChange 注册变更回调
func (o *Overrides) OnChange(fn func()) {
	o.changed.add(fn)
}

func (o *Overrides) snapshot() *overrideSet {
	return o.current.Load()
}

func (o *Overrides) update(mutate func(*overrideSet)) {
	o.mu.Lock()
	old := o.current.Load()
	next := &overrideSet{methods: maps.Clone(old.methods), types: maps.Clone(old.types)}
	mutate(next)
	o.current.Store(next)
	o.mu.Unlock()

	o.changed.fire()
}
