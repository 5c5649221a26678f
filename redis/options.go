package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ClientOptions Redis 客户端配置选项
type ClientOptions struct {
	Name         string        // 客户端名称
	Addr         string        // Redis 服务器地址 (host:port)
	Password     string        // 密码（可选）
	DB           int           // 数据库编号
	DialTimeout  time.Duration // 连接超时时间
	ReadTimeout  time.Duration // 读取超时时间
	WriteTimeout time.Duration // 写入超时时间
	PoolSize     int           // 连接池大小
	MinIdleConns int           // 最小空闲连接数
	MaxRetries   int           // 最大重试次数
	// Lazy 注册时不做连通性检查
	Lazy bool
}

// NewDefaultOptions 创建默认配置
func NewDefaultOptions(name string) *ClientOptions {
	return &ClientOptions{
		Name:         name,
		Addr:         "localhost:6379",
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
	}
}

// Validate 验证配置
func (o *ClientOptions) Validate() error {
	if o.Name == "" {
		return fmt.Errorf("redis client name is required")
	}
	if o.Addr == "" {
		return fmt.Errorf("redis address is required")
	}
	if o.DB < 0 {
		return fmt.Errorf("redis database number must be non-negative")
	}
	if o.DialTimeout <= 0 {
		return fmt.Errorf("redis dial timeout must be positive")
	}
	return nil
}

// ClientFactory 按名称管理 Redis 客户端
type ClientFactory struct {
	clients map[string]*redis.Client
	mu      sync.RWMutex
}

// NewClientFactory 创建客户端工厂
func NewClientFactory() *ClientFactory {
	return &ClientFactory{
		clients: make(map[string]*redis.Client),
	}
}

// Register 创建并注册客户端，非 Lazy 时先 Ping
func (f *ClientFactory) Register(opts ClientOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.clients[opts.Name]; exists {
		return fmt.Errorf("redis client '%s' already registered", opts.Name)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		PoolSize:     opts.PoolSize,
		MinIdleConns: opts.MinIdleConns,
		MaxRetries:   opts.MaxRetries,
	})

	if !opts.Lazy {
		ctx, cancel := context.WithTimeout(context.Background(), opts.DialTimeout)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
	}

	f.clients[opts.Name] = client
	return nil
}

// Get 获取指定名称的客户端
func (f *ClientFactory) Get(name string) (*redis.Client, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	client, exists := f.clients[name]
	if !exists {
		return nil, fmt.Errorf("redis client '%s' not found", name)
	}
	return client, nil
}

// Each 遍历所有客户端
func (f *ClientFactory) Each(fn func(name string, client *redis.Client)) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for name, client := range f.clients {
		fn(name, client)
	}
}

// Close 关闭所有客户端
func (f *ClientFactory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var errs []error
	for name, client := range f.clients {
		if err := client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis client '%s': %w", name, err))
		}
	}
	f.clients = make(map[string]*redis.Client)
	return errors.Join(errs...)
}
