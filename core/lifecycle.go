package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/gocrud/calllog/logging"
)

// LifecycleEvents 管理应用程序的生命周期
type LifecycleEvents struct {
	onStart []func(context.Context) error
	onStop  []func(context.Context) error
	logger  func() logging.Logger
}

// NewLifecycle 创建新的生命周期管理器
func NewLifecycle() *LifecycleEvents {
	return &LifecycleEvents{
		logger: logging.NewNopLogger,
	}
}

// OnStart 注册启动钩子
func (l *LifecycleEvents) OnStart(fn func(context.Context) error) {
	l.onStart = append(l.onStart, fn)
}

// OnStop 注册停止钩子
func (l *LifecycleEvents) OnStop(fn func(context.Context) error) {
	l.onStop = append(l.onStop, fn)
}

// Start 按注册顺序执行启动钩子，遇到错误立即返回
func (l *LifecycleEvents) Start(ctx context.Context) error {
	for i, fn := range l.onStart {
		if err := fn(ctx); err != nil {
			return fmt.Errorf("start hook %d: %w", i, err)
		}
	}
	return nil
}

// Stop 倒序执行停止钩子
// 单个钩子失败不会中断后续钩子，所有错误合并返回
func (l *LifecycleEvents) Stop(ctx context.Context) error {
	var errs []error
	for i := len(l.onStop) - 1; i >= 0; i-- {
		if err := l.onStop[i](ctx); err != nil {
			l.logger().Error("stop hook failed",
				logging.Field{Key: "index", Value: i},
				logging.Field{Key: "error", Value: err})
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
