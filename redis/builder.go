package redis

import (
	"errors"
	"fmt"

	"github.com/gocrud/calllog/logging"
)

// Builder 收集客户端与流后端配置
type Builder struct {
	configs []ClientOptions
	names   map[string]struct{}
	stream  *StreamOptions
	errors  []error
}

// NewBuilder 创建 Redis 构建器
func NewBuilder() *Builder {
	return &Builder{names: make(map[string]struct{})}
}

// AddClient 添加一个客户端配置
func (b *Builder) AddClient(name string, configure func(*ClientOptions)) *Builder {
	if _, exists := b.names[name]; exists {
		b.errors = append(b.errors, fmt.Errorf("redis client '%s' already configured", name))
		return b
	}

	opts := NewDefaultOptions(name)
	if configure != nil {
		configure(opts)
	}
	if err := opts.Validate(); err != nil {
		b.errors = append(b.errors, fmt.Errorf("invalid redis configuration for '%s': %w", name, err))
		return b
	}

	b.names[name] = struct{}{}
	b.configs = append(b.configs, *opts)
	return b
}

// UseStream 把调用日志写入指定客户端的流，重复调用时后者生效
func (b *Builder) UseStream(opts StreamOptions) *Builder {
	b.stream = &opts
	return b
}

// Build 构建客户端工厂，没有任何客户端时返回 nil
func (b *Builder) Build(logger logging.Logger) (*ClientFactory, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if len(b.errors) > 0 {
		return nil, fmt.Errorf("redis configuration errors: %w", errors.Join(b.errors...))
	}
	if len(b.configs) == 0 {
		return nil, nil
	}

	factory := NewClientFactory()
	for _, opts := range b.configs {
		if err := factory.Register(opts); err != nil {
			factory.Close()
			return nil, fmt.Errorf("failed to register redis client '%s': %w", opts.Name, err)
		}
		logger.Info("redis client registered",
			logging.Field{Key: "name", Value: opts.Name},
			logging.Field{Key: "addr", Value: opts.Addr},
			logging.Field{Key: "db", Value: opts.DB})
	}
	return factory, nil
}
