package cron

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/gocrud/calllog/di"
	"github.com/gocrud/calllog/logging"
)

// Builder 定时任务配置构建器
type Builder struct {
	enableSeconds    bool
	enableCronLogger bool
	location         string
	jobs             []jobDefinition
	names            map[string]struct{}
}

type jobDefinition struct {
	spec    string
	name    string
	handler any
}

// NewBuilder 创建构建器，默认分钟级精度、UTC 时区
func NewBuilder() *Builder {
	return &Builder{
		location: "UTC",
		names:    make(map[string]struct{}),
	}
}

// WithSeconds 启用秒级精度
func (b *Builder) WithSeconds() *Builder {
	b.enableSeconds = true
	return b
}

// WithLocation 设置时区
func (b *Builder) WithLocation(location string) *Builder {
	b.location = location
	return b
}

// EnableCronLogger 启用调度器内部日志
func (b *Builder) EnableCronLogger() *Builder {
	b.enableCronLogger = true
	return b
}

// AddJob 添加任务
// handler 可以是 func()、func(context.Context) error，
// 或参数从容器解析的任意函数，例如：
//
//	builder.AddJob("@every 1h", "purge-archive", func(ctx context.Context, store *pebblestore.Store) error {
//	    _, err := store.Purge(time.Now().Add(-72 * time.Hour))
//	    return err
//	})
func (b *Builder) AddJob(spec, name string, handler any) *Builder {
	b.jobs = append(b.jobs, jobDefinition{spec: spec, name: name, handler: handler})
	return b
}

// Len 已添加的任务数量
func (b *Builder) Len() int {
	return len(b.jobs)
}

func (b *Builder) parser() cron.Parser {
	fields := cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor
	if b.enableSeconds {
		fields |= cron.Second
	}
	return cron.NewParser(fields)
}

// Validate 校验时区、表达式与处理函数
func (b *Builder) Validate() error {
	var errs []error
	if _, err := time.LoadLocation(b.location); err != nil {
		errs = append(errs, fmt.Errorf("invalid location %q: %w", b.location, err))
	}
	parser := b.parser()
	seen := make(map[string]struct{}, len(b.jobs))
	for _, j := range b.jobs {
		if j.name == "" {
			errs = append(errs, fmt.Errorf("cron job with spec %q has no name", j.spec))
			continue
		}
		if _, dup := seen[j.name]; dup {
			errs = append(errs, fmt.Errorf("cron job '%s' already configured", j.name))
		}
		seen[j.name] = struct{}{}
		if _, err := parser.Parse(j.spec); err != nil {
			errs = append(errs, fmt.Errorf("cron job '%s': %w", j.name, err))
		}
		if err := checkHandler(j.handler); err != nil {
			errs = append(errs, fmt.Errorf("cron job '%s': %w", j.name, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("cron configuration errors: %w", errors.Join(errs...))
	}
	return nil
}

// Build 构建调度器，处理函数的依赖从 container 解析
func (b *Builder) Build(logger logging.Logger, container di.Container) (*Scheduler, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	loc, _ := time.LoadLocation(b.location)

	cl := newCronLogger(logger, b.enableCronLogger)
	s := newScheduler(logger, []cron.Option{
		cron.WithLocation(loc),
		cron.WithParser(b.parser()),
		cron.WithLogger(cl),
		cron.WithChain(cron.SkipIfStillRunning(cl)),
	})
	for _, j := range b.jobs {
		run, err := bindHandler(container, j.handler)
		if err != nil {
			return nil, fmt.Errorf("cron job '%s': %w", j.name, err)
		}
		if err := s.add(j.name, j.spec, run); err != nil {
			return nil, err
		}
	}
	return s, nil
}
