package database

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/gocrud/calllog/logging"
)

// Builder 数据库配置构建器
type Builder struct {
	configs []Options
	names   map[string]struct{}
	table   *TableOptions
	errors  []error
}

// NewBuilder 创建构建器
func NewBuilder() *Builder {
	return &Builder{names: make(map[string]struct{})}
}

// Add 添加数据库配置
// dialector: GORM 驱动 (e.g. sqlite.Open(dsn))
func (b *Builder) Add(name string, dialector gorm.Dialector, configure func(*Options)) *Builder {
	if _, exists := b.names[name]; exists {
		b.errors = append(b.errors, fmt.Errorf("database '%s' already configured", name))
		return b
	}

	opts := NewDefaultOptions(name, dialector)
	if configure != nil {
		configure(opts)
	}
	if err := opts.Validate(); err != nil {
		b.errors = append(b.errors, fmt.Errorf("invalid configuration for '%s': %w", name, err))
		return b
	}

	b.names[name] = struct{}{}
	b.configs = append(b.configs, *opts)
	return b
}

// UseTable 把调用日志写入数据表，目标数据库会自动迁移 CallRecord
func (b *Builder) UseTable(opts TableOptions) *Builder {
	opts.setDefaults()
	b.table = &opts
	return b
}

// Build 构建数据库工厂，没有任何配置时返回 nil
func (b *Builder) Build(logger logging.Logger) (*Factory, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if len(b.errors) > 0 {
		return nil, fmt.Errorf("database configuration errors: %w", errors.Join(b.errors...))
	}
	if len(b.configs) == 0 {
		return nil, nil
	}

	factory := NewFactory()
	for _, opts := range b.configs {
		if b.table != nil && b.table.Database == opts.Name {
			opts.AutoMigrate = append(opts.AutoMigrate[:len(opts.AutoMigrate):len(opts.AutoMigrate)], &CallRecord{})
		}
		if err := factory.Register(opts); err != nil {
			factory.Close()
			return nil, err
		}
		logger.Info("database registered",
			logging.Field{Key: "name", Value: opts.Name},
			logging.Field{Key: "dialector", Value: opts.Dialector.Name()})
	}
	return factory, nil
}
