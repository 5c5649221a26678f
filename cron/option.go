package cron

import (
	"github.com/gocrud/calllog/core"
	"github.com/gocrud/calllog/logging"
)

// BuilderOption 用于配置 Cron Builder
type BuilderOption func(*Builder)

// WithSeconds 启用秒级精度
func WithSeconds() BuilderOption {
	return func(b *Builder) { b.WithSeconds() }
}

// WithLocation 设置时区
func WithLocation(location string) BuilderOption {
	return func(b *Builder) { b.WithLocation(location) }
}

// EnableCronLogger 启用调度器内部日志
func EnableCronLogger() BuilderOption {
	return func(b *Builder) { b.EnableCronLogger() }
}

// AddJob 添加任务
func AddJob(spec, name string, handler any) BuilderOption {
	return func(b *Builder) { b.AddJob(spec, name, handler) }
}

// New 启用定时任务
// 调度器作为托管服务注册，可通过 *cron.Scheduler 从容器获取
func New(opts ...BuilderOption) core.Option {
	return func(rt *core.Runtime) error {
		builder := NewBuilder()
		for _, opt := range opts {
			opt(builder)
		}
		if err := builder.Validate(); err != nil {
			return err
		}
		if builder.Len() == 0 {
			return nil
		}
		return core.WithHostedService(func(lf logging.LoggerFactory) (*Scheduler, error) {
			return builder.Build(lf.CreateLogger("Scheduler"), rt.Container)
		})(rt)
	}
}
