package di

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
)

// Scope 表示作用域生命周期上下文。
type Scope interface {
	Container
	// Dispose 释放与作用域关联的资源。
	Dispose()
}

type scopeEntry struct {
	val atomic.Value // 存储实例（如果尚未创建则为 nil）
	mu  sync.Mutex   // 用于创建此特定实例的锁
}

type scope struct {
	parent  *container
	entries []scopeEntry // 按 ServiceDefinition.ID 索引
}

func newScope(parent *container) *scope {
	return &scope{
		parent:  parent,
		entries: make([]scopeEntry, parent.serviceCount()),
	}
}

func (s *scope) Add(def *ServiceDefinition) error {
	return fmt.Errorf("di: 无法在作用域上注册服务")
}

func (s *scope) Build() error {
	return nil
}

func (s *scope) CreateScope() Scope {
	return s.parent.CreateScope()
}

func (s *scope) Keys() []ServiceKey {
	return s.parent.Keys()
}

func (s *scope) Get(typ reflect.Type) (any, error) {
	return s.GetNamed(typ, "")
}

func (s *scope) GetNamed(typ reflect.Type, name string) (any, error) {
	def, ok := s.parent.lookup(typ, name)
	if !ok {
		if name == "" {
			return nil, fmt.Errorf("di: 未找到服务 %v", typ)
		}
		return nil, fmt.Errorf("di: 未找到服务 %v (name=%s)", typ, name)
	}

	switch def.Scope {
	case ScopeSingleton:
		return s.parent.GetNamed(typ, name)

	case ScopeTransient:
		// 以当前作用域解析依赖
		return s.parent.resolver.createInstance(s, def)

	case ScopeScoped:
		if def.ID < 0 || def.ID >= len(s.entries) {
			return nil, fmt.Errorf("di: 内部错误，无效的服务 ID %d", def.ID)
		}

		entry := &s.entries[def.ID]
		if val := entry.val.Load(); val != nil {
			return val, nil
		}

		entry.mu.Lock()
		defer entry.mu.Unlock()

		if val := entry.val.Load(); val != nil {
			return val, nil
		}

		instance, err := s.parent.resolver.createInstance(s, def)
		if err != nil {
			return nil, err
		}

		entry.val.Store(instance)
		return instance, nil
	}

	return nil, fmt.Errorf("di: 未知作用域 %v", def.Scope)
}

// Dispose 释放作用域内实例的引用
func (s *scope) Dispose() {
	for i := range s.entries {
		s.entries[i] = scopeEntry{}
	}
	s.entries = nil
}

func (s *scope) serviceCount() int {
	return s.parent.serviceCount()
}
