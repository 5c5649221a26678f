package web

import (
	"fmt"
	"sync"

	"github.com/gocrud/calllog/core"
	"github.com/gocrud/calllog/di"
	"github.com/gocrud/calllog/interception"
)

// BuilderOption 用于配置 Web Builder
type BuilderOption func(*Builder)

// WithPort 设置端口
func WithPort(port int) BuilderOption {
	return func(b *Builder) {
		b.UsePort(port)
	}
}

// WithAddr 设置监听地址
func WithAddr(addr string) BuilderOption {
	return func(b *Builder) {
		b.UseAddr(addr)
	}
}

// WithControllers 添加控制器
func WithControllers(controllers ...any) BuilderOption {
	return func(b *Builder) {
		b.AddControllers(controllers...)
	}
}

// WithDiagnostics 挂载 /calllog 诊断路由
func WithDiagnostics() BuilderOption {
	return WithControllers(&Diagnostics{})
}

// New 启用 Web 能力
// Host 作为托管服务运行，Builder 与 Host 同时登记为运行时特性
func New(opts ...BuilderOption) core.Option {
	return func(rt *core.Runtime) error {
		builder := NewBuilder().UseLogger(rt.Logger("Web"))
		for _, opt := range opts {
			opt(builder)
		}
		if builder.callLogging {
			builder.Use(CallLogging(lazyInterceptor(rt.Container)))
		}
		core.SetFeature(rt, builder)

		if err := builder.RegisterServices(rt.Container); err != nil {
			return fmt.Errorf("web: failed to register services: %w", err)
		}

		return core.WithHostedService(func() *Host {
			host := builder.Build(rt.Container)
			core.SetFeature(rt, host)
			return host
		})(rt)
	}
}

// WithCallLogging 把请求作为调用记录
// 只作用于控制器路由与此后注册的路由
func WithCallLogging() BuilderOption {
	return func(b *Builder) {
		b.callLogging = true
	}
}

// lazyInterceptor 在首个请求时从容器解析拦截器，容器中没有拦截器时返回 nil
func lazyInterceptor(c di.Container) func() *interception.Interceptor {
	var (
		once        sync.Once
		interceptor *interception.Interceptor
	)
	return func() *interception.Interceptor {
		once.Do(func() {
			interceptor, _ = di.Resolve[*interception.Interceptor](c)
		})
		return interceptor
	}
}
