package calllog

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gocrud/calllog/core"
)

// ShutdownTimeout 优雅关闭的时限
const ShutdownTimeout = 5 * time.Second

// Bootstrap 应用选项并构建容器，返回尚未启动的运行时
func Bootstrap(opts ...core.Option) (*core.Runtime, error) {
	rt := core.NewRuntime()
	if err := rt.Apply(opts...); err != nil {
		return nil, err
	}
	if err := rt.Container.Build(); err != nil {
		return nil, err
	}
	return rt, nil
}

// Run 启动应用并阻塞到收到退出信号或运行时请求退出
func Run(opts ...core.Option) error {
	rt, err := Bootstrap(opts...)
	if err != nil {
		return err
	}
	return Serve(context.Background(), rt)
}

// Serve 启动已构建的运行时，ctx 取消、收到 SIGINT/SIGTERM 或 rt.Shutdown 时优雅关闭
func Serve(ctx context.Context, rt *core.Runtime) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rt.Start(ctx); err != nil {
		// 已启动的部分仍需释放
		stopCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		_ = rt.Stop(stopCtx)
		return err
	}

	select {
	case <-ctx.Done():
	case <-rt.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	return rt.Stop(shutdownCtx)
}
