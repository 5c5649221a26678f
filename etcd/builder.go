package etcd

import (
	"errors"
	"fmt"

	"github.com/gocrud/calllog/logging"
)

// Builder 收集 etcd 客户端与覆盖同步配置
type Builder struct {
	configs   []ClientOptions
	names     map[string]struct{}
	overrides *OverrideOptions
	errors    []error
}

// OverrideOptions 覆盖同步配置
type OverrideOptions struct {
	// Client 使用的客户端名称，默认 "default"
	Client string
	Prefix string
}

// NewBuilder 创建 etcd 构建器
func NewBuilder() *Builder {
	return &Builder{names: make(map[string]struct{})}
}

// AddClient 添加客户端配置
func (b *Builder) AddClient(name string, configure func(*ClientOptions)) *Builder {
	if _, exists := b.names[name]; exists {
		b.errors = append(b.errors, fmt.Errorf("etcd client '%s' already configured", name))
		return b
	}

	opts := NewDefaultOptions(name)
	if configure != nil {
		configure(opts)
	}
	if err := opts.Validate(); err != nil {
		b.errors = append(b.errors, fmt.Errorf("invalid etcd configuration for '%s': %w", name, err))
		return b
	}

	b.names[name] = struct{}{}
	b.configs = append(b.configs, *opts)
	return b
}

// SyncOverrides 从 etcd 同步运行时覆盖
func (b *Builder) SyncOverrides(opts OverrideOptions) *Builder {
	if opts.Client == "" {
		opts.Client = "default"
	}
	b.overrides = &opts
	return b
}

// Build 构建客户端工厂，没有任何客户端时返回 nil
func (b *Builder) Build(logger logging.Logger) (*ClientFactory, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if len(b.errors) > 0 {
		return nil, fmt.Errorf("etcd configuration errors: %w", errors.Join(b.errors...))
	}
	if len(b.configs) == 0 {
		return nil, nil
	}

	factory := NewClientFactory()
	for _, opts := range b.configs {
		if err := factory.Register(opts); err != nil {
			factory.Close()
			return nil, fmt.Errorf("failed to register etcd client '%s': %w", opts.Name, err)
		}
		logger.Info("etcd client registered",
			logging.Field{Key: "name", Value: opts.Name},
			logging.Field{Key: "endpoints", Value: opts.Endpoints})
	}
	return factory, nil
}
