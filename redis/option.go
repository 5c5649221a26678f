package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/gocrud/calllog/core"
	"github.com/gocrud/calllog/di"
	"github.com/gocrud/calllog/logging"
	"github.com/gocrud/calllog/sinks"
)

// BuilderOption 用于配置 Redis Builder
type BuilderOption func(*Builder)

// WithClient 添加 Redis 客户端配置
func WithClient(name string, opts ...func(*ClientOptions)) BuilderOption {
	return func(b *Builder) {
		b.AddClient(name, func(o *ClientOptions) {
			for _, opt := range opts {
				opt(o)
			}
		})
	}
}

// WithStream 把调用日志写入 Redis Stream
func WithStream(opts StreamOptions) BuilderOption {
	return func(b *Builder) {
		b.UseStream(opts)
	}
}

// New 启用 Redis 能力
// 客户端按名称注册到容器，"default" 同时注册为默认实例；
// 配置了流后端时以 "redis" 登记到后端注册表
func New(opts ...BuilderOption) core.Option {
	return func(rt *core.Runtime) error {
		builder := NewBuilder()
		for _, opt := range opts {
			opt(builder)
		}

		logger := rt.Logger("Redis")
		factory, err := builder.Build(logger)
		if err != nil {
			return err
		}
		if factory == nil {
			return nil
		}

		if err := rt.Provide(factory); err != nil {
			return err
		}

		var regErr error
		factory.Each(func(name string, client *redis.Client) {
			if err := rt.Provide(client, di.WithName(name)); err != nil {
				regErr = err
			}
			if name == "default" {
				if err := rt.Provide(client); err != nil {
					regErr = err
				}
			}
		})
		if regErr != nil {
			return fmt.Errorf("redis: failed to register instance: %w", regErr)
		}

		if so := builder.stream; so != nil {
			name := so.Client
			if name == "" {
				name = "default"
			}
			client, err := factory.Get(name)
			if err != nil {
				return fmt.Errorf("redis stream: %w", err)
			}
			sink := NewStreamSink(client, *so)
			if err := rt.Provide(sink); err != nil {
				return err
			}
			if err := sinks.FromRuntime(rt).Add("redis", sink); err != nil {
				return err
			}
			logger.Info("redis stream sink registered",
				logging.Field{Key: "client", Value: name},
				logging.Field{Key: "prefix", Value: sink.opts.Prefix})
		}

		rt.Lifecycle.OnStop(func(ctx context.Context) error {
			logger.Info("closing redis clients")
			return factory.Close()
		})
		return nil
	}
}
