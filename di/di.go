package di

import (
	"fmt"
	"reflect"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// Provide 智能注册服务。
// 它可以接受构造函数、结构体指针或类型，并自动推断服务类型和注册方式。
//
// 支持的输入 target 类型:
// 1. func(...) (Service, error?) -> 注册为 Factory，ServiceType 为第一个返回值。
// 2. *Struct                      -> 注册为 Value (Singleton)，ServiceType 为 *Struct。
//   - 如果结构体包含带有 `di` 标签的字段，会自动启用字段注入。
//
// 3. reflect.Type                 -> 注册为 Implementation (Struct注入)，ServiceType 为该 Type。
func Provide(c Container, target any, opts ...Option) (reflect.Type, error) {
	targetVal := reflect.ValueOf(target)
	var def *ServiceDefinition
	var serviceType reflect.Type

	if typeVal, ok := target.(reflect.Type); ok {
		serviceType = typeVal
		def = &ServiceDefinition{
			Type:     serviceType,
			Scope:    ScopeSingleton,
			ImplType: serviceType,
		}
	} else if targetVal.Kind() == reflect.Func {
		fnType := targetVal.Type()
		if fnType.NumOut() == 0 {
			return nil, fmt.Errorf("di: constructor function must return at least one value")
		}

		serviceType = fnType.Out(0)
		def = &ServiceDefinition{
			Type:      serviceType,
			Scope:     ScopeSingleton,
			Impl:      target,
			IsFactory: true,
		}
	} else if targetVal.Kind() == reflect.Ptr {
		serviceType = targetVal.Type()
		def = &ServiceDefinition{
			Type:    serviceType,
			Scope:   ScopeSingleton,
			Impl:    target,
			IsValue: true,
		}

		if targetVal.Elem().Kind() == reflect.Struct {
			elemType := targetVal.Elem().Type()
			for i := 0; i < elemType.NumField(); i++ {
				if _, hasTag := elemType.Field(i).Tag.Lookup("di"); hasTag {
					def.InjectFields = true
					break
				}
			}
		}
	} else {
		return nil, fmt.Errorf("di: unsupported auto-registration target type: %T", target)
	}

	for _, opt := range opts {
		opt(def)
	}

	if err := c.Add(def); err != nil {
		return nil, err
	}

	return serviceType, nil
}

// Register registers a service of type T with the container.
// If T is an interface, you must use di.Use[Impl]() to specify the implementation.
func Register[T any](c Container, opts ...Option) {
	typ := reflect.TypeOf((*T)(nil)).Elem()

	def := &ServiceDefinition{
		Type:     typ,
		Scope:    ScopeSingleton,
		ImplType: typ,
	}

	for _, opt := range opts {
		opt(def)
	}

	if err := c.Add(def); err != nil {
		panic(fmt.Sprintf("di: failed to register %v: %v", typ, err))
	}
}

// Resolve resolves an instance of type T from the container or scope.
func Resolve[T any](c Container) (T, error) {
	return ResolveNamed[T](c, "")
}

// ResolveNamed resolves an instance of type T with a specific name from the container or scope.
func ResolveNamed[T any](c Container, name string) (T, error) {
	var zero T
	typ := reflect.TypeOf((*T)(nil)).Elem()

	val, err := c.GetNamed(typ, name)
	if err != nil {
		return zero, err
	}

	if val == nil {
		return zero, nil
	}

	if v, ok := val.(T); ok {
		return v, nil
	}

	return zero, fmt.Errorf("di: resolved value is %T, expected %v", val, typ)
}

// Invoke 调用函数，参数从容器解析。
// 如果函数最后一个返回值是 error，则返回该错误。
func Invoke(c Container, function any) error {
	fnVal := reflect.ValueOf(function)
	if fnVal.Kind() != reflect.Func {
		return fmt.Errorf("di: Invoke expects a function, got %T", function)
	}
	fnType := fnVal.Type()

	args := make([]reflect.Value, fnType.NumIn())
	for i := range args {
		argType := fnType.In(i)
		argVal, err := c.Get(argType)
		if err != nil {
			return fmt.Errorf("di: invoke argument %d (%v): %w", i, argType, err)
		}
		args[i] = valueOf(argVal, argType)
	}

	results := fnVal.Call(args)
	if n := len(results); n > 0 && fnType.Out(n-1) == errorType {
		if err, _ := results[n-1].Interface().(error); err != nil {
			return err
		}
	}
	return nil
}

// InterfaceServices 返回所有以接口类型注册的服务
func InterfaceServices(c Container) []reflect.Type {
	var out []reflect.Type
	for _, key := range c.Keys() {
		if key.IsInterface() {
			out = append(out, key.Type)
		}
	}
	return out
}

// valueOf 把解析结果转换为目标类型的 reflect.Value，nil 接口转换为零值
func valueOf(v any, typ reflect.Type) reflect.Value {
	if v == nil {
		return reflect.Zero(typ)
	}
	return reflect.ValueOf(v)
}
