package interception

import (
	"maps"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/gocrud/calllog/di"
)

// ServiceRegistry 以接口注册的服务类型名集合
// 命中的类型在没有任何规则时默认记录
type ServiceRegistry struct {
	mu      sync.Mutex
	names   atomic.Pointer[map[string]struct{}]
	changed hooks
}

func NewServiceRegistry() *ServiceRegistry {
	r := &ServiceRegistry{}
	empty := map[string]struct{}{}
	r.names.Store(&empty)
	return r
}

// Add 添加类型名
func (r *ServiceRegistry) Add(typeNames ...string) {
	if len(typeNames) == 0 {
		return
	}
	r.mu.Lock()
	next := maps.Clone(*r.names.Load())
	for _, n := range typeNames {
		next[n] = struct{}{}
	}
	r.names.Store(&next)
	r.mu.Unlock()

	r.changed.fire()
}

// AddTypes 添加接口类型，非接口类型被忽略
func (r *ServiceRegistry) AddTypes(types ...reflect.Type) {
	names := make([]string, 0, len(types))
	for _, t := range types {
		if t.Kind() == reflect.Interface {
			names = append(names, TypeName(t))
		}
	}
	r.Add(names...)
}

// AddFromContainer 收集容器中以接口注册的服务
func (r *ServiceRegistry) AddFromContainer(c di.Container) {
	r.AddTypes(di.InterfaceServices(c)...)
}

// Contains 是否为已注册的接口服务
func (r *ServiceRegistry) Contains(typeName string) bool {
	_, ok := (*r.names.Load())[typeName]
	return ok
}

// OnChange 注册变更回调
func (r *ServiceRegistry) OnChange(fn func()) {
	r.changed.add(fn)
}

// RegisterService 把接口 T 登记为服务
func RegisterService[T any](r *ServiceRegistry) {
	r.AddTypes(reflect.TypeOf((*T)(nil)).Elem())
}
