package config

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Option 静态配置选项（应用生命周期内不变）
type Option[T any] interface {
	Value() T
}

// OptionMonitor 监听配置选项，总是返回最新的配置值
type OptionMonitor[T any] interface {
	Value() T
	// OnChange 注册变更回调
	OnChange(fn func(T))
}

// OptionsCache 配置缓存，绑定一个配置节并在配置重载后自动更新
type OptionsCache[T any] struct {
	config  Configuration
	section string
	current atomic.Pointer[T]

	mu        sync.Mutex
	listeners []func(T)
	lastErr   atomic.Pointer[error]
}

// NewOptionsCache 创建配置缓存
// 初始绑定失败时使用零值；配置支持重载时自动注册回调
func NewOptionsCache[T any](config Configuration, section string) *OptionsCache[T] {
	return NewOptionsCacheWithDefault(config, section, func() T {
		var zero T
		return zero
	})
}

// NewOptionsCacheWithDefault 创建配置缓存，绑定前以 defaults 的结果为基准值
func NewOptionsCacheWithDefault[T any](config Configuration, section string, defaults func() T) *OptionsCache[T] {
	cache := &OptionsCache[T]{
		config:  config,
		section: section,
	}

	initial := defaults()
	cache.current.Store(&initial)
	cache.bind(defaults)

	if rc, ok := config.(interface{ OnReload(func()) }); ok {
		rc.OnReload(func() {
			if cache.bind(defaults) {
				cache.notify()
			}
		})
	}

	return cache
}

// bind 重新绑定配置，失败时保留旧值
func (c *OptionsCache[T]) bind(defaults func() T) bool {
	next := defaults()
	if err := c.config.Bind(c.section, &next); err != nil {
		err = fmt.Errorf("failed to bind config section %s: %w", c.section, err)
		c.lastErr.Store(&err)
		return false
	}
	c.lastErr.Store(nil)
	c.current.Store(&next)
	return true
}

func (c *OptionsCache[T]) notify() {
	c.mu.Lock()
	listeners := make([]func(T), len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	value := c.Get()
	for _, fn := range listeners {
		fn(value)
	}
}

// Get 获取当前配置值
func (c *OptionsCache[T]) Get() T {
	return *c.current.Load()
}

// Err 返回最近一次绑定的错误
func (c *OptionsCache[T]) Err() error {
	if p := c.lastErr.Load(); p != nil {
		return *p
	}
	return nil
}

// OnChange 注册变更回调
func (c *OptionsCache[T]) OnChange(fn func(T)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// option 实现 Option[T] 接口
type option[T any] struct {
	value T
}

func (o *option[T]) Value() T {
	return o.value
}

// NewOption 创建静态配置选项
func NewOption[T any](value T) Option[T] {
	return &option[T]{value: value}
}

// optionMonitor 实现 OptionMonitor[T] 接口
type optionMonitor[T any] struct {
	cache *OptionsCache[T]
}

func (o *optionMonitor[T]) Value() T {
	return o.cache.Get()
}

func (o *optionMonitor[T]) OnChange(fn func(T)) {
	o.cache.OnChange(fn)
}

// NewOptionMonitor 创建监听配置选项
func NewOptionMonitor[T any](cache *OptionsCache[T]) OptionMonitor[T] {
	return &optionMonitor[T]{cache: cache}
}
