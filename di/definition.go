package di

import (
	"reflect"
	"sync"
)

// ScopeType 定义了服务的生命周期。
type ScopeType int

const (
	// ScopeSingleton 每个容器创建一个实例。
	ScopeSingleton ScopeType = iota
	// ScopeTransient 每次请求创建一个新实例。
	ScopeTransient
	// ScopeScoped 每个作用域创建一个实例。
	ScopeScoped
)

// ServiceKey 服务的唯一键，Name 为空表示默认实例
type ServiceKey struct {
	Type reflect.Type
	Name string
}

// IsInterface 服务是否以接口类型登记
func (k ServiceKey) IsInterface() bool {
	return k.Type != nil && k.Type.Kind() == reflect.Interface
}

func (k ServiceKey) String() string {
	if k.Name == "" {
		return k.Type.String()
	}
	return k.Type.String() + "#" + k.Name
}

// FieldInjection 由 di 标签描述的待注入字段
// `di:"?"` 可选，`di:"name"` 按名称，`di:"name,?"` 两者兼有
type FieldInjection struct {
	Index       int
	Name        string
	Type        reflect.Type
	Optional    bool
	ServiceName string
}

// InjectionSchema 预计算的依赖，结构体用 Fields，工厂用 Args
type InjectionSchema struct {
	Fields []FieldInjection
	Args   []reflect.Type
}

// ServiceDefinition 已注册服务的元数据，构建后只读
type ServiceDefinition struct {
	ID           int
	Type         reflect.Type
	Name         string
	Scope        ScopeType
	ImplType     reflect.Type // 用于结构体反射
	Impl         any          // 工厂函数或结构体指针
	IsFactory    bool
	IsValue      bool
	InjectFields bool // 是否对 IsValue 的实例执行字段注入

	Schema *InjectionSchema

	singletonInst any
	singletonErr  error
	singletonOnce sync.Once
}
