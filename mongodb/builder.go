package mongodb

import (
	"errors"
	"fmt"

	"github.com/gocrud/calllog/logging"
)

// Builder 收集 MongoDB 客户端与集合后端配置
type Builder struct {
	configs    []ClientOptions
	names      map[string]struct{}
	collection *CollectionOptions
	errors     []error
}

// NewBuilder 创建构建器
func NewBuilder() *Builder {
	return &Builder{names: make(map[string]struct{})}
}

// Add 添加客户端配置
func (b *Builder) Add(name, uri string, configure func(*ClientOptions)) *Builder {
	if _, exists := b.names[name]; exists {
		b.errors = append(b.errors, fmt.Errorf("mongo client '%s' already configured", name))
		return b
	}

	opts := NewDefaultOptions(name, uri)
	if configure != nil {
		configure(opts)
	}
	if err := opts.Validate(); err != nil {
		b.errors = append(b.errors, fmt.Errorf("invalid mongo configuration for '%s': %w", name, err))
		return b
	}

	b.names[name] = struct{}{}
	b.configs = append(b.configs, *opts)
	return b
}

// UseCollection 把调用日志写入集合
func (b *Builder) UseCollection(opts CollectionOptions) *Builder {
	b.collection = &opts
	return b
}

// Build 构建客户端工厂，没有任何客户端时返回 nil
func (b *Builder) Build(logger logging.Logger) (*ClientFactory, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if len(b.errors) > 0 {
		return nil, fmt.Errorf("mongo configuration errors: %w", errors.Join(b.errors...))
	}
	if len(b.configs) == 0 {
		return nil, nil
	}

	factory := NewClientFactory()
	for _, opts := range b.configs {
		if err := factory.Register(opts); err != nil {
			return nil, err
		}
		logger.Info("mongo client registered", logging.Field{Key: "name", Value: opts.Name})
	}
	return factory, nil
}
