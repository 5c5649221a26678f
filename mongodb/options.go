package mongodb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// ClientOptions MongoDB 客户端配置选项
type ClientOptions struct {
	Name        string
	URI         string
	Username    string
	Password    string
	MaxPoolSize uint64
	MinPoolSize uint64
	Timeout     time.Duration
	// Lazy 注册时不做连通性检查
	Lazy bool
}

// NewDefaultOptions 创建默认配置
func NewDefaultOptions(name, uri string) *ClientOptions {
	return &ClientOptions{
		Name:        name,
		URI:         uri,
		MaxPoolSize: 100,
		MinPoolSize: 0,
		Timeout:     10 * time.Second,
	}
}

// Validate 验证配置
func (o *ClientOptions) Validate() error {
	if o.Name == "" {
		return fmt.Errorf("mongo client name is required")
	}
	if o.URI == "" {
		return fmt.Errorf("mongo uri is required")
	}
	return nil
}

func (o *ClientOptions) clientOptions() *options.ClientOptions {
	co := options.Client().ApplyURI(o.URI)
	if o.Username != "" || o.Password != "" {
		co.SetAuth(options.Credential{
			Username: o.Username,
			Password: o.Password,
		})
	}
	if o.MaxPoolSize > 0 {
		co.SetMaxPoolSize(o.MaxPoolSize)
	}
	if o.MinPoolSize > 0 {
		co.SetMinPoolSize(o.MinPoolSize)
	}
	if o.Timeout > 0 {
		co.SetConnectTimeout(o.Timeout)
		co.SetServerSelectionTimeout(o.Timeout)
	}
	return co
}

// ClientFactory 按名称管理 MongoDB 客户端
type ClientFactory struct {
	clients map[string]*mongo.Client
	mu      sync.RWMutex
}

// NewClientFactory 创建客户端工厂
func NewClientFactory() *ClientFactory {
	return &ClientFactory{
		clients: make(map[string]*mongo.Client),
	}
}

// Register 创建并注册客户端，非 Lazy 时先 Ping 主节点
func (f *ClientFactory) Register(opts ClientOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.clients[opts.Name]; exists {
		return fmt.Errorf("mongo client '%s' already registered", opts.Name)
	}

	client, err := mongo.Connect(opts.clientOptions())
	if err != nil {
		return fmt.Errorf("failed to create mongo client '%s': %w", opts.Name, err)
	}

	if !opts.Lazy {
		ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
		defer cancel()
		if err := client.Ping(ctx, readpref.Primary()); err != nil {
			client.Disconnect(context.Background())
			return fmt.Errorf("failed to connect to mongo '%s': %w", opts.Name, err)
		}
	}

	f.clients[opts.Name] = client
	return nil
}

// Get 获取指定名称的客户端
func (f *ClientFactory) Get(name string) (*mongo.Client, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	client, ok := f.clients[name]
	if !ok {
		return nil, fmt.Errorf("mongo client '%s' not found", name)
	}
	return client, nil
}

// Each 遍历所有客户端
func (f *ClientFactory) Each(fn func(name string, client *mongo.Client)) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for name, client := range f.clients {
		fn(name, client)
	}
}

// Close 断开所有客户端
func (f *ClientFactory) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var errs []error
	for name, client := range f.clients {
		if err := client.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close mongo client '%s': %w", name, err))
		}
	}
	f.clients = make(map[string]*mongo.Client)
	return errors.Join(errs...)
}
