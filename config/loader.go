package config

import (
	"context"
	"fmt"

	"github.com/gocrud/calllog/core"
	"github.com/gocrud/calllog/di"
)

// LoadOptions 配置加载选项
type LoadOptions struct {
	// Watch 启动后监听可变更的配置源（如 etcd）
	Watch bool
}

// LoadOption 配置加载选项函数
type LoadOption func(*LoadOptions)

// WithWatch 启用配置源监听
func WithWatch() LoadOption {
	return func(o *LoadOptions) {
		o.Watch = true
	}
}

// Use 从构建器加载配置并注册到运行时
// Configuration 与 ReloadableConfiguration 均可注入
func Use(builder *ConfigurationBuilder, opts ...LoadOption) core.Option {
	return func(rt *core.Runtime) error {
		options := &LoadOptions{}
		for _, opt := range opts {
			opt(options)
		}

		cfg, err := builder.BuildReloadable()
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}

		di.Register[ReloadableConfiguration](rt.Container, di.WithValue(cfg))
		di.Register[Configuration](rt.Container, di.WithValue(cfg))
		core.SetFeature[ReloadableConfiguration](rt, cfg)

		if options.Watch {
			rt.Lifecycle.OnStart(func(ctx context.Context) error {
				return cfg.StartWatch(context.Background())
			})
			rt.Lifecycle.OnStop(func(ctx context.Context) error {
				cfg.StopWatch()
				return nil
			})
		}

		return nil
	}
}

// Bind 将配置节绑定为 *OptionsCache[T] 并注册到 DI 容器
func Bind[T any](section string) core.Option {
	return func(rt *core.Runtime) error {
		return rt.Provide(func(cfg Configuration) *OptionsCache[T] {
			return NewOptionsCache[T](cfg, section)
		})
	}
}
