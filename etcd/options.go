package etcd

import (
	"errors"
	"fmt"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// ClientOptions etcd 客户端配置选项
type ClientOptions struct {
	Name               string        // 客户端名称
	Endpoints          []string      // etcd 服务器地址列表
	DialTimeout        time.Duration // 连接超时时间
	Username           string        // 用户名（可选）
	Password           string        // 密码（可选）
	AutoSyncInterval   time.Duration // 自动同步间隔（可选）
	MaxCallSendMsgSize int           // 最大发送消息大小（可选）
	MaxCallRecvMsgSize int           // 最大接收消息大小（可选）
}

// NewDefaultOptions 创建默认配置
func NewDefaultOptions(name string) *ClientOptions {
	return &ClientOptions{
		Name:        name,
		Endpoints:   []string{"localhost:2379"},
		DialTimeout: 5 * time.Second,
	}
}

// Validate 验证配置
func (o *ClientOptions) Validate() error {
	if o.Name == "" {
		return fmt.Errorf("etcd client name is required")
	}
	if len(o.Endpoints) == 0 {
		return fmt.Errorf("etcd endpoints are required")
	}
	if o.DialTimeout <= 0 {
		return fmt.Errorf("etcd dial timeout must be positive")
	}
	return nil
}

func (o *ClientOptions) config() clientv3.Config {
	cfg := clientv3.Config{
		Endpoints:          o.Endpoints,
		DialTimeout:        o.DialTimeout,
		AutoSyncInterval:   o.AutoSyncInterval,
		MaxCallSendMsgSize: o.MaxCallSendMsgSize,
		MaxCallRecvMsgSize: o.MaxCallRecvMsgSize,
	}
	if o.Username != "" {
		cfg.Username = o.Username
		cfg.Password = o.Password
	}
	return cfg
}

// ClientFactory 按名称管理 etcd 客户端
type ClientFactory struct {
	clients map[string]*clientv3.Client
	mu      sync.RWMutex
}

// NewClientFactory 创建客户端工厂
func NewClientFactory() *ClientFactory {
	return &ClientFactory{
		clients: make(map[string]*clientv3.Client),
	}
}

// Register 创建客户端，连接在首次请求时建立
func (f *ClientFactory) Register(opts ClientOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.clients[opts.Name]; exists {
		return fmt.Errorf("etcd client '%s' already registered", opts.Name)
	}

	client, err := clientv3.New(opts.config())
	if err != nil {
		return fmt.Errorf("failed to create etcd client: %w", err)
	}
	f.clients[opts.Name] = client
	return nil
}

// Get 获取指定名称的客户端
func (f *ClientFactory) Get(name string) (*clientv3.Client, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	client, ok := f.clients[name]
	if !ok {
		return nil, fmt.Errorf("etcd client '%s' not found", name)
	}
	return client, nil
}

// Each 遍历所有客户端
func (f *ClientFactory) Each(fn func(name string, client *clientv3.Client)) {
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
			errs = append(errs, fmt.Errorf("close etcd client '%s': %w", name, err))
		}
	}
	f.clients = make(map[string]*clientv3.Client)
	return errors.Join(errs...)
}
