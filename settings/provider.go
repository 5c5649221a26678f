package settings

import (
	"sync"
	"sync/atomic"

	"github.com/gocrud/calllog/config"
	"github.com/gocrud/calllog/logging"
)

// Provider 持有当前生效的 Snapshot
// 读取无锁，发布时原子替换并通知监听者
type Provider struct {
	current atomic.Pointer[Snapshot]
	version atomic.Uint64
	logger  logging.Logger

	mu        sync.Mutex
	listeners []func(*Snapshot)
}

// NewProvider 以静态配置创建
func NewProvider(opts Options, logger logging.Logger) *Provider {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	p := &Provider{logger: logger}
	p.Publish(opts)
	return p
}

// NewProviderFromConfig 绑定配置节，配置重载后自动重新编译
func NewProviderFromConfig(cfg config.Configuration, section string, logger logging.Logger) *Provider {
	if section == "" {
		section = SectionName
	}
	cache := config.NewOptionsCacheWithDefault(cfg, section, DefaultOptions)
	p := NewProvider(cache.Get(), logger)
	if err := cache.Err(); err != nil {
		p.logger.Warn("call logging options could not be bound, using defaults",
			logging.Field{Key: "section", Value: section},
			logging.Field{Key: "error", Value: err.Error()})
	}
	cache.OnChange(func(o Options) {
		p.Publish(o)
	})
	return p
}

// Current 当前快照，永不为 nil
func (p *Provider) Current() *Snapshot {
	return p.current.Load()
}

// Publish 编译并发布新配置
func (p *Provider) Publish(opts Options) *Snapshot {
	snapshot, errs := Compile(opts)
	for _, err := range errs {
		p.logger.Warn("skipping invalid call logging setting", logging.Field{Key: "error", Value: err.Error()})
	}
	snapshot.Version = p.version.Add(1)
	p.current.Store(snapshot)

	p.mu.Lock()
	listeners := make([]func(*Snapshot), len(p.listeners))
	copy(listeners, p.listeners)
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(snapshot)
	}
	return snapshot
}

// OnChange 注册发布回调
func (p *Provider) OnChange(fn func(*Snapshot)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}
