package database

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Options 数据库配置选项
type Options struct {
	Name         string
	Dialector    gorm.Dialector
	GormConfig   *gorm.Config
	MaxIdleConns int
	MaxOpenConns int
	MaxLifetime  time.Duration
	AutoMigrate  []any // 需要自动迁移的模型
}

// NewDefaultOptions 创建默认配置
func NewDefaultOptions(name string, dialector gorm.Dialector) *Options {
	return &Options{
		Name:      name,
		Dialector: dialector,
		// 调用日志库自身的 SQL 不再打印
		GormConfig:   &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)},
		MaxIdleConns: 10,
		MaxOpenConns: 100,
		MaxLifetime:  time.Hour,
	}
}

// Validate 验证配置
func (o *Options) Validate() error {
	if o.Name == "" {
		return fmt.Errorf("database name is required")
	}
	if o.Dialector == nil {
		return fmt.Errorf("database dialector is required")
	}
	return nil
}

// Factory 按名称管理数据库连接
type Factory struct {
	dbs map[string]*gorm.DB
	mu  sync.RWMutex
}

// NewFactory 创建数据库工厂
func NewFactory() *Factory {
	return &Factory{
		dbs: make(map[string]*gorm.DB),
	}
}

// Register 打开连接、配置连接池并执行迁移
func (f *Factory) Register(opts Options) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.dbs[opts.Name]; exists {
		return fmt.Errorf("database '%s' already registered", opts.Name)
	}

	db, err := gorm.Open(opts.Dialector, opts.GormConfig)
	if err != nil {
		return fmt.Errorf("failed to open database '%s': %w", opts.Name, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB for '%s': %w", opts.Name, err)
	}
	sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(opts.MaxLifetime)

	if len(opts.AutoMigrate) > 0 {
		if err := db.AutoMigrate(opts.AutoMigrate...); err != nil {
			sqlDB.Close()
			return fmt.Errorf("auto migrate failed for '%s': %w", opts.Name, err)
		}
	}

	f.dbs[opts.Name] = db
	return nil
}

// Get 获取指定名称的连接
func (f *Factory) Get(name string) (*gorm.DB, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	db, ok := f.dbs[name]
	if !ok {
		return nil, fmt.Errorf("database '%s' not found", name)
	}
	return db, nil
}

// Each 遍历所有连接
func (f *Factory) Each(fn func(name string, db *gorm.DB)) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for name, db := range f.dbs {
		fn(name, db)
	}
}

// Close 关闭所有连接
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var errs []error
	for name, db := range f.dbs {
		sqlDB, err := db.DB()
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to get sql.DB for '%s': %w", name, err))
			continue
		}
		if err := sqlDB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database '%s': %w", name, err))
		}
	}
	f.dbs = make(map[string]*gorm.DB)
	return errors.Join(errs...)
}
