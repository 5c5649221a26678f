package database

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/gocrud/calllog/core"
	"github.com/gocrud/calllog/di"
	"github.com/gocrud/calllog/sinks"
)

// BuilderOption 用于配置 Database Builder
type BuilderOption func(*Builder)

// WithDatabase 添加数据库配置
func WithDatabase(name string, dialector gorm.Dialector, opts ...func(*Options)) BuilderOption {
	return func(b *Builder) {
		b.Add(name, dialector, func(o *Options) {
			for _, opt := range opts {
				opt(o)
			}
		})
	}
}

// WithTable 把调用日志写入数据表
func WithTable(opts TableOptions) BuilderOption {
	return func(b *Builder) {
		b.UseTable(opts)
	}
}

// New 启用数据库能力
// 配置了数据表后端时以 "database" 登记到后端注册表
func New(opts ...BuilderOption) core.Option {
	return func(rt *core.Runtime) error {
		builder := NewBuilder()
		for _, opt := range opts {
			opt(builder)
		}

		logger := rt.Logger("Database")
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
		factory.Each(func(name string, db *gorm.DB) {
			if err := rt.Provide(db, di.WithName(name)); err != nil {
				regErr = err
			}
			if name == "default" {
				if err := rt.Provide(db); err != nil {
					regErr = err
				}
			}
		})
		if regErr != nil {
			return fmt.Errorf("database: failed to register instance: %w", regErr)
		}

		if to := builder.table; to != nil {
			db, err := factory.Get(to.Database)
			if err != nil {
				return fmt.Errorf("database table: %w", err)
			}
			sink := NewTableSink(db)
			if err := rt.Provide(sink); err != nil {
				return err
			}
			if err := sinks.FromRuntime(rt).Add("database", sink); err != nil {
				return err
			}
		}

		rt.Lifecycle.OnStop(func(ctx context.Context) error {
			logger.Info("closing database connections")
			return factory.Close()
		})
		return nil
	}
}
