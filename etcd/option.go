package etcd

import (
	"context"
	"fmt"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/gocrud/calllog/config"
	"github.com/gocrud/calllog/core"
	"github.com/gocrud/calllog/di"
	"github.com/gocrud/calllog/interception"
	"github.com/gocrud/calllog/logging"
)

// BuilderOption 用于配置 Etcd Builder
type BuilderOption func(*Builder)

// WithClient 添加 etcd 客户端配置
func WithClient(name string, opts ...func(*ClientOptions)) BuilderOption {
	return func(b *Builder) {
		b.AddClient(name, func(o *ClientOptions) {
			for _, opt := range opts {
				opt(o)
			}
		})
	}
}

// WithOverrideSync 从 etcd 同步运行时覆盖，需要容器中存在 *interception.DecisionCache
func WithOverrideSync(opts OverrideOptions) BuilderOption {
	return func(b *Builder) {
		b.SyncOverrides(opts)
	}
}

// New 启用 etcd 能力
func New(opts ...BuilderOption) core.Option {
	return func(rt *core.Runtime) error {
		builder := NewBuilder()
		for _, opt := range opts {
			opt(builder)
		}

		logger := rt.Logger("Etcd")
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
		factory.Each(func(name string, client *clientv3.Client) {
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
			return fmt.Errorf("etcd: failed to register instance: %w", regErr)
		}

		if ov := builder.overrides; ov != nil {
			client, err := factory.Get(ov.Client)
			if err != nil {
				return fmt.Errorf("etcd override sync: %w", err)
			}
			err = core.WithHostedService(func(cache *interception.DecisionCache, lf logging.LoggerFactory) *OverrideWatcher {
				return NewOverrideWatcher(client, ov.Prefix, cache.Overrides(), lf.CreateLogger("OverrideWatcher"))
			})(rt)
			if err != nil {
				return err
			}
		}

		rt.Lifecycle.OnStop(func(ctx context.Context) error {
			logger.Info("closing etcd clients")
			return factory.Close()
		})
		return nil
	}
}

// ConfigSource 以已有客户端构造配置源，前缀下的键映射为配置路径
func ConfigSource(client *clientv3.Client, prefix string) *config.EtcdSource {
	return config.NewEtcdSource(config.EtcdOptions{Client: client, Prefix: prefix})
}
