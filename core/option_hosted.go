package core

import (
	"context"
	"fmt"
	"reflect"

	"github.com/gocrud/calllog/di"
	"github.com/gocrud/calllog/hosting"
)

var hostedServiceType = reflect.TypeOf((*HostedService)(nil)).Elem()

// WithHostedService 注册一个托管服务
// 服务必须实现 HostedService 接口。
// Runtime.Start 在启动钩子之后调用 Start，Runtime.Stop 在停止钩子之前调用 Stop。
func WithHostedService(constructor any) Option {
	return func(rt *Runtime) error {
		serviceType, err := di.Provide(rt.Container, constructor)
		if err != nil {
			return fmt.Errorf("WithHostedService: failed to provide service: %w", err)
		}

		if !serviceType.Implements(hostedServiceType) {
			return fmt.Errorf("WithHostedService: service %v does not implement core.HostedService", serviceType)
		}

		rt.HostedServices().AddLazy(serviceType.String(), func() (HostedService, error) {
			val, err := rt.Container.Get(serviceType)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve hosted service %v: %w", serviceType, err)
			}
			return val.(HostedService), nil
		})
		return nil
	}
}

// WithHostedInstance 托管一个已创建的服务实例
func WithHostedInstance(name string, service HostedService) Option {
	return func(rt *Runtime) error {
		rt.HostedServices().Add(name, service)
		return nil
	}
}

// HostedServices 返回运行时的托管服务管理器
func (rt *Runtime) HostedServices() *hosting.HostedServiceManager {
	if rt.hosted == nil {
		rt.hosted = hosting.NewHostedServiceManager(rt.Logger("HostedServices"))
	}
	return rt.hosted
}

// WorkerFunc 定义简单的后台任务函数
// 这是一个阻塞函数，通过 ctx.Done() 判断退出。
type WorkerFunc func(ctx context.Context) error

// WithWorker 将一个阻塞的函数注册为后台服务
func WithWorker(name string, fn WorkerFunc) Option {
	return WithHostedInstance(name, workerService(fn))
}

type workerService WorkerFunc

func (w workerService) Start(ctx context.Context) error {
	return w(ctx)
}

func (w workerService) Stop(context.Context) error {
	return nil
}
