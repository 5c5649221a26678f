package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/gocrud/calllog/core"
	"github.com/gocrud/calllog/di"
	"github.com/gocrud/calllog/logging"
	"github.com/gocrud/calllog/sinks"
)

const indexTimeout = 5 * time.Second

// BuilderOption 用于配置 MongoDB Builder
type BuilderOption func(*Builder)

// WithClient 添加 MongoDB 客户端配置
func WithClient(name, uri string, opts ...func(*ClientOptions)) BuilderOption {
	return func(b *Builder) {
		b.Add(name, uri, func(o *ClientOptions) {
			for _, opt := range opts {
				opt(o)
			}
		})
	}
}

// WithCollection 把调用日志写入集合
func WithCollection(opts CollectionOptions) BuilderOption {
	return func(b *Builder) {
		b.UseCollection(opts)
	}
}

// New 启用 MongoDB 能力
// 配置了集合后端时以 "mongodb" 登记到后端注册表，并在启动时建立索引
func New(opts ...BuilderOption) core.Option {
	return func(rt *core.Runtime) error {
		builder := NewBuilder()
		for _, opt := range opts {
			opt(builder)
		}

		logger := rt.Logger("MongoDB")
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
		factory.Each(func(name string, client *mongo.Client) {
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
			return fmt.Errorf("mongodb: failed to register instance: %w", regErr)
		}

		if co := builder.collection; co != nil {
			co.setDefaults()
			client, err := factory.Get(co.Client)
			if err != nil {
				return fmt.Errorf("mongodb collection: %w", err)
			}
			sink := NewCollectionSink(client, *co)
			if err := rt.Provide(sink); err != nil {
				return err
			}
			if err := sinks.FromRuntime(rt).Add("mongodb", sink); err != nil {
				return err
			}
			rt.Lifecycle.OnStart(func(ctx context.Context) error {
				ctx, cancel := context.WithTimeout(ctx, indexTimeout)
				defer cancel()
				if err := sink.EnsureIndexes(ctx); err != nil {
					logger.Warn("mongo index creation failed", logging.Field{Key: "error", Value: err.Error()})
				}
				return nil
			})
		}

		rt.Lifecycle.OnStop(func(ctx context.Context) error {
			logger.Info("closing mongo clients")
			return factory.Close(ctx)
		})
		return nil
	}
}
