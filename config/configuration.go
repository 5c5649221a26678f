package config

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
)

// Configuration 配置接口（类似于 .NET Core IConfiguration）
type Configuration interface {
	// Get 获取配置值
	Get(key string) string
	// GetWithDefault 获取配置值，如果不存在则返回默认值
	GetWithDefault(key, defaultValue string) string
	// GetInt 获取整数配置值
	GetInt(key string) (int, error)
	// GetBool 获取布尔配置值
	GetBool(key string) (bool, error)
	// GetSection 获取配置节
	GetSection(key string) Configuration
	// Bind 绑定配置到结构体
	Bind(key string, target any) error
	// GetAll 获取所有配置
	GetAll() map[string]any
}

// ReloadableConfiguration 可重载配置
// 重载时整体替换数据快照，读取方无锁
type ReloadableConfiguration interface {
	Configuration
	// Reload 重新加载所有配置源
	Reload() error
	// OnReload 注册重载回调，回调在新快照发布之后执行
	OnReload(fn func())
	// StartWatch 启动所有可监听配置源
	StartWatch(ctx context.Context) error
	// StopWatch 停止监听
	StopWatch()
}

// ConfigurationBuilder 配置构建器
type ConfigurationBuilder struct {
	sources []ConfigurationSource
	mu      sync.RWMutex
}

// NewConfigurationBuilder 创建配置构建器
func NewConfigurationBuilder() *ConfigurationBuilder {
	return &ConfigurationBuilder{
		sources: make([]ConfigurationSource, 0),
	}
}

// Add 添加配置源
func (b *ConfigurationBuilder) Add(source ConfigurationSource) *ConfigurationBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sources = append(b.sources, source)
	return b
}

// AddJsonFile 添加 JSON 文件配置源
func (b *ConfigurationBuilder) AddJsonFile(path string, optional ...bool) *ConfigurationBuilder {
	isOptional := len(optional) > 0 && optional[0]
	return b.Add(&JsonFileSource{Path: path, Optional: isOptional})
}

// AddYamlFile 添加 YAML 文件配置源
func (b *ConfigurationBuilder) AddYamlFile(path string, optional ...bool) *ConfigurationBuilder {
	isOptional := len(optional) > 0 && optional[0]
	return b.Add(&YamlFileSource{Path: path, Optional: isOptional})
}

// AddEnvironmentVariables 添加环境变量配置源
func (b *ConfigurationBuilder) AddEnvironmentVariables(prefix string) *ConfigurationBuilder {
	return b.Add(&EnvironmentVariableSource{Prefix: prefix})
}

// AddInMemory 添加内存配置源
func (b *ConfigurationBuilder) AddInMemory(data map[string]any) *ConfigurationBuilder {
	return b.Add(&InMemorySource{Data: data})
}

// AddEtcd 添加 etcd 配置源
func (b *ConfigurationBuilder) AddEtcd(opts EtcdOptions) *ConfigurationBuilder {
	return b.Add(NewEtcdSource(opts))
}

// Build 构建静态配置
func (b *ConfigurationBuilder) Build() (Configuration, error) {
	return b.BuildReloadable()
}

// BuildReloadable 构建可重载配置
func (b *ConfigurationBuilder) BuildReloadable() (ReloadableConfiguration, error) {
	b.mu.RLock()
	sources := make([]ConfigurationSource, len(b.sources))
	copy(sources, b.sources)
	b.mu.RUnlock()

	cfg := &reloadableConfiguration{
		configuration: configuration{store: NewValueStore()},
		sources:       sources,
	}
	if err := cfg.Reload(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadSources 按顺序加载所有配置源（后面的会覆盖前面的）
func loadSources(sources []ConfigurationSource) (map[string]any, error) {
	data := make(map[string]any)
	for _, source := range sources {
		part, err := source.Load()
		if err != nil {
			return nil, fmt.Errorf("failed to load config source %s: %w", source.Name(), err)
		}
		mergeMaps(data, part)
	}
	return data, nil
}

// configuration 配置实现，数据保存在 ValueStore 中
type configuration struct {
	store *ValueStore
}

// newStaticConfiguration 包装一段已加载的数据
func newStaticConfiguration(data map[string]any) *configuration {
	store := NewValueStore()
	store.Store(data)
	return &configuration{store: store}
}

// Get 获取配置值
func (c *configuration) Get(key string) string {
	value := c.getByPath(key)
	if value == nil {
		return ""
	}

	switch v := value.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// GetWithDefault 获取配置值，如果不存在则返回默认值
func (c *configuration) GetWithDefault(key, defaultValue string) string {
	value := c.Get(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetInt 获取整数配置值
func (c *configuration) GetInt(key string) (int, error) {
	value := c.getByPath(key)
	if value == nil {
		return 0, fmt.Errorf("key %s not found", key)
	}

	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		return strconv.Atoi(v)
	default:
		return 0, fmt.Errorf("cannot convert %v to int", value)
	}
}

// GetBool 获取布尔配置值
func (c *configuration) GetBool(key string) (bool, error) {
	value := c.getByPath(key)
	if value == nil {
		return false, fmt.Errorf("key %s not found", key)
	}

	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		return strconv.ParseBool(v)
	default:
		return false, fmt.Errorf("cannot convert %v to bool", value)
	}
}

// GetSection 获取配置节
// 返回的节是当前快照的视图，不跟随后续重载
func (c *configuration) GetSection(key string) Configuration {
	if m, ok := c.getByPath(key).(map[string]any); ok {
		return newStaticConfiguration(m)
	}
	return newStaticConfiguration(make(map[string]any))
}

// Bind 绑定配置到结构体
func (c *configuration) Bind(key string, target any) error {
	data := c.getByPath(key)
	if data == nil {
		return fmt.Errorf("key %s not found", key)
	}

	// 使用 JSON 序列化/反序列化进行绑定
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	if err := json.Unmarshal(jsonData, target); err != nil {
		return fmt.Errorf("failed to unmarshal data: %w", err)
	}

	return nil
}

// GetAll 获取所有配置
func (c *configuration) GetAll() map[string]any {
	result := make(map[string]any)
	mergeMaps(result, c.store.Load())
	return result
}

// getByPath 通过路径获取值（支持 "a:b:c" 或 "a.b.c"）
func (c *configuration) getByPath(path string) any {
	data := c.store.Load()
	if path == "" {
		return data
	}

	current := any(data)
	for _, part := range globalPathCache.GetPathSegments(path) {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = m[part]
	}

	return current
}

// reloadableConfiguration 可重载配置实现
type reloadableConfiguration struct {
	configuration
	sources []ConfigurationSource

	mu        sync.Mutex
	listeners []func()
	cancel    context.CancelFunc
}

func (c *reloadableConfiguration) Reload() error {
	data, err := loadSources(c.sources)
	if err != nil {
		return err
	}
	c.store.Store(data)

	c.mu.Lock()
	listeners := make([]func(), len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
	return nil
}

func (c *reloadableConfiguration) OnReload(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *reloadableConfiguration) StartWatch(ctx context.Context) error {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return nil
	}
	watchCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	for _, source := range c.sources {
		ws, ok := source.(WatchableSource)
		if !ok {
			continue
		}
		err := ws.StartWatch(watchCtx, func() {
			if err := c.Reload(); err != nil {
				fmt.Printf("config: reload after %s change failed: %v\n", source.Name(), err)
			}
		})
		if err != nil {
			c.StopWatch()
			return fmt.Errorf("failed to watch config source %s: %w", source.Name(), err)
		}
	}
	return nil
}

func (c *reloadableConfiguration) StopWatch() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	for _, source := range c.sources {
		if ws, ok := source.(WatchableSource); ok {
			ws.StopWatch()
		}
	}
}

// mergeMaps 合并两个 map
func mergeMaps(dst, src map[string]any) {
	for k, v := range src {
		if srcMap, ok := v.(map[string]any); ok {
			dstMap, ok := dst[k].(map[string]any)
			if !ok {
				dstMap = make(map[string]any, len(srcMap))
				dst[k] = dstMap
			}
			mergeMaps(dstMap, srcMap)
			continue
		}
		dst[k] = v
	}
}
