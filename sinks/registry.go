package sinks

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/gocrud/calllog/core"
	"github.com/gocrud/calllog/formatting"
	"github.com/gocrud/calllog/logging"
	"github.com/gocrud/calllog/processing"
)

// Registry 按名称收集后端
// 目标配置了路由时只写入路由指定的后端，否则写入全部后端
type Registry struct {
	mu     sync.RWMutex
	named  map[string]processing.Sink
	order  []string
	routes map[string][]string
}

// NewRegistry 创建空的后端注册表
func NewRegistry() *Registry {
	return &Registry{
		named:  make(map[string]processing.Sink),
		routes: make(map[string][]string),
	}
}

// FromRuntime 返回运行时上的注册表，不存在时创建
// 各后端模块在引导阶段通过它登记自己
func FromRuntime(rt *core.Runtime) *Registry {
	if r := core.GetFeature[*Registry](rt); r != nil {
		return r
	}
	r := NewRegistry()
	core.SetFeature(rt, r)
	return r
}

// InProcess 由不经网络写入的后端实现
type InProcess interface {
	InProcess()
}

// Add 登记后端，名称不可重复
func (r *Registry) Add(name string, sink processing.Sink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.named[name]; exists {
		return fmt.Errorf("sinks: %q already registered", name)
	}
	r.named[name] = sink
	r.order = append(r.order, name)
	return nil
}

// Route 指定目标写入哪些后端
func (r *Registry) Route(destination string, names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[destination] = append([]string(nil), names...)
}

// Get 按名称获取后端
func (r *Registry) Get(name string) (processing.Sink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.named[name]
	return s, ok
}

// Names 已登记的后端名称，按登记顺序
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Remote 未实现 InProcess 的后端名称，按登记顺序
func (r *Registry) Remote() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for _, name := range r.order {
		if _, ok := r.named[name].(InProcess); !ok {
			out = append(out, name)
		}
	}
	return out
}

// Routes 目标路由的副本
func (r *Registry) Routes() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string][]string, len(r.routes))
	for k, v := range r.routes {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// Validate 检查路由引用的后端都已登记
func (r *Registry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	destinations := make([]string, 0, len(r.routes))
	for d := range r.routes {
		destinations = append(destinations, d)
	}
	sort.Strings(destinations)
	for _, d := range destinations {
		for _, name := range r.routes[d] {
			if _, ok := r.named[name]; !ok {
				return fmt.Errorf("sinks: route %q references unknown sink %q", d, name)
			}
		}
	}
	return nil
}

func (r *Registry) Write(ctx context.Context, msg formatting.FormattedMessage, level logging.LogLevel, destination string) error {
	return r.selectFor(destination).Write(ctx, msg, level, destination)
}

func (r *Registry) selectFor(destination string) Fanout {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names, routed := r.routes[destination]
	if !routed {
		names = r.order
	}
	out := make(Fanout, 0, len(names))
	for _, name := range names {
		if s, ok := r.named[name]; ok {
			out = append(out, s)
		}
	}
	return out
}
