package core

import (
	"context"
	"errors"
	"sync"

	"github.com/gocrud/calllog/di"
	"github.com/gocrud/calllog/hosting"
	"github.com/gocrud/calllog/logging"
)

// Runtime 是框架的上帝对象，作为状态容器
type Runtime struct {
	// Features 存放构建时特性 (WebBuilder, RedisBuilder 等)
	Features FeatureCollection

	// Container 核心依赖注入容器
	Container di.Container

	// Lifecycle 生命周期管理
	Lifecycle *LifecycleEvents

	// LoggerFactory 运行时日志工厂，默认输出到控制台
	// 可通过 WithLogging 替换
	LoggerFactory logging.LoggerFactory

	hosted       *hosting.HostedServiceManager
	shutdownCh   chan struct{}
	shutdownOnce sync.Once

	// ErrorHandler 用于记录运行时产生的严重错误
	// 外部可以通过设置此字段来接管错误日志
	ErrorHandler func(err error)
}

// NewRuntime 创建一个新的运行时实例
func NewRuntime() *Runtime {
	rt := &Runtime{
		Container:     di.NewContainer(),
		Lifecycle:     NewLifecycle(),
		LoggerFactory: logging.NewLoggingBuilder().AddConsole().Build(),
		shutdownCh:    make(chan struct{}),
	}
	rt.ErrorHandler = func(err error) {
		rt.Logger("Runtime").Error("runtime error", logging.Field{Key: "error", Value: err})
	}
	rt.Lifecycle.logger = func() logging.Logger { return rt.Logger("Lifecycle") }

	// 工厂延迟读取字段，WithLogging 替换后依然生效
	di.Register[logging.LoggerFactory](rt.Container, di.WithFactory(func() logging.LoggerFactory {
		return rt.LoggerFactory
	}))
	return rt
}

// Start 先执行启动钩子，再启动托管服务
// 托管服务启动后崩溃时调用 ErrorHandler 并请求退出
func (rt *Runtime) Start(ctx context.Context) error {
	if err := rt.Lifecycle.Start(ctx); err != nil {
		return err
	}
	if rt.hosted == nil {
		return nil
	}
	errCh, err := rt.hosted.StartAll()
	if err != nil {
		return err
	}
	go func() {
		select {
		case err := <-errCh:
			rt.ErrorHandler(err)
			rt.Shutdown()
		case <-rt.Done():
		}
	}()
	return nil
}

// Stop 先停止托管服务，再倒序执行停止钩子
// 托管服务因此可以在客户端关闭前完成排空
func (rt *Runtime) Stop(ctx context.Context) error {
	var errs []error
	if rt.hosted != nil {
		if err := rt.hosted.StopAll(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := rt.Lifecycle.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Logger 创建指定分类的日志记录器
func (rt *Runtime) Logger(category string) logging.Logger {
	return rt.LoggerFactory.CreateLogger(category)
}

// Shutdown 请求应用退出
// 调用此方法会触发应用关闭流程，可重复调用
func (rt *Runtime) Shutdown() {
	rt.shutdownOnce.Do(func() {
		close(rt.shutdownCh)
	})
}

// Done 返回一个通道，当应用需要退出时该通道会关闭
func (rt *Runtime) Done() <-chan struct{} {
	return rt.shutdownCh
}

// Provide 注册服务提供者 (语法糖)
// 支持构造函数、结构体指针或接口绑定
func (rt *Runtime) Provide(target any, opts ...di.Option) error {
	_, err := di.Provide(rt.Container, target, opts...)
	return err
}

// Invoke 调用函数并注入依赖 (语法糖)
func (rt *Runtime) Invoke(function any) error {
	return di.Invoke(rt.Container, function)
}

// Apply 应用多个 Option
func (rt *Runtime) Apply(opts ...Option) error {
	for _, opt := range opts {
		if err := opt(rt); err != nil {
			return err
		}
	}
	return nil
}

// As 是一个辅助函数，用于生成 di.Option，将实现绑定到接口
func As[T any]() di.Option {
	return di.Use[T]()
}
