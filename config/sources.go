package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"gopkg.in/yaml.v3"
)

// ConfigurationSource 配置源接口
type ConfigurationSource interface {
	Load() (map[string]any, error)
	Name() string
}

// WatchableSource 支持变更通知的配置源
type WatchableSource interface {
	ConfigurationSource
	// StartWatch 开始监听，检测到变更时调用 onChange；ctx 取消后停止
	StartWatch(ctx context.Context, onChange func()) error
	StopWatch()
}

// JsonFileSource JSON 文件配置源
type JsonFileSource struct {
	Path     string
	Optional bool
}

func (s *JsonFileSource) Name() string {
	return fmt.Sprintf("JsonFile(%s)", s.Path)
}

func (s *JsonFileSource) Load() (map[string]any, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if s.Optional && os.IsNotExist(err) {
			return make(map[string]any), nil
		}
		return nil, err
	}

	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	return result, nil
}

// YamlFileSource YAML 文件配置源
type YamlFileSource struct {
	Path     string
	Optional bool
}

func (s *YamlFileSource) Name() string {
	return fmt.Sprintf("YamlFile(%s)", s.Path)
}

func (s *YamlFileSource) Load() (map[string]any, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if s.Optional && os.IsNotExist(err) {
			return make(map[string]any), nil
		}
		return nil, err
	}

	var result map[string]any
	if err := yaml.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if result == nil {
		result = make(map[string]any)
	}

	return result, nil
}

// EnvironmentVariableSource 环境变量配置源
// CALLLOG_CAPACITY=100 (Prefix "") 映射为 calllog:capacity
type EnvironmentVariableSource struct {
	Prefix string
}

func (s *EnvironmentVariableSource) Name() string {
	return fmt.Sprintf("EnvironmentVariables(%s)", s.Prefix)
}

func (s *EnvironmentVariableSource) Load() (map[string]any, error) {
	result := make(map[string]any)

	for _, env := range os.Environ() {
		key, value, ok := strings.Cut(env, "=")
		if !ok {
			continue
		}

		if s.Prefix != "" {
			if !strings.HasPrefix(key, s.Prefix) {
				continue
			}
			key = strings.TrimPrefix(key, s.Prefix)
		}

		key = strings.ToLower(key)
		key = strings.ReplaceAll(key, "__", ":")
		key = strings.ReplaceAll(key, "_", ":")
		if key == "" {
			continue
		}
		setNestedValue(result, key, value)
	}

	return result, nil
}

// InMemorySource 内存配置源
type InMemorySource struct {
	Data map[string]any
}

func (s *InMemorySource) Name() string {
	return "InMemory"
}

func (s *InMemorySource) Load() (map[string]any, error) {
	result := make(map[string]any)
	mergeMaps(result, s.Data)
	return result, nil
}

// setNestedValue 设置嵌套值，path 以 ":" 分隔
func setNestedValue(data map[string]any, path string, value any) {
	parts := strings.Split(path, ":")
	current := data

	for i := 0; i < len(parts)-1; i++ {
		part := parts[i]
		if _, exists := current[part]; !exists {
			current[part] = make(map[string]any)
		}
		m, ok := current[part].(map[string]any)
		if !ok {
			return
		}
		current = m
	}

	if strValue, ok := value.(string); ok {
		value = coerceScalar(strValue)
	}

	current[parts[len(parts)-1]] = value
}

// coerceScalar 尝试把字符串转换为整数、浮点数或布尔值
func coerceScalar(s string) any {
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v
	}
	if v, err := strconv.ParseBool(s); err == nil {
		return v
	}
	return s
}

// EtcdOptions etcd 配置选项
type EtcdOptions struct {
	Endpoints   []string      // etcd 服务器地址列表
	Username    string        // 用户名（可选）
	Password    string        // 密码（可选）
	Prefix      string        // 键前缀（可选）
	Timeout     time.Duration // 读取超时时间（默认 5 秒）
	DialTimeout time.Duration // 拨号超时时间（默认 5 秒）
	// Client 复用已有客户端，设置后忽略 Endpoints 等连接参数
	Client *clientv3.Client
}

// EtcdSource etcd 配置源
type EtcdSource struct {
	Options EtcdOptions

	mu      sync.Mutex
	watcher *clientv3.Client
	owned   bool
	done    chan struct{}
}

// NewEtcdSource 创建 etcd 配置源
func NewEtcdSource(opts EtcdOptions) *EtcdSource {
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}
	return &EtcdSource{Options: opts}
}

func (s *EtcdSource) Name() string {
	return fmt.Sprintf("Etcd(%v)", s.Options.Endpoints)
}

func (s *EtcdSource) prefix() string {
	if s.Options.Prefix == "" {
		return "/"
	}
	return s.Options.Prefix
}

// client 返回可用客户端，owned 表示调用方负责关闭
func (s *EtcdSource) client() (cli *clientv3.Client, owned bool, err error) {
	if s.Options.Client != nil {
		return s.Options.Client, false, nil
	}
	cli, err = clientv3.New(clientv3.Config{
		Endpoints:   s.Options.Endpoints,
		Username:    s.Options.Username,
		Password:    s.Options.Password,
		DialTimeout: s.Options.DialTimeout,
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to create etcd client: %w", err)
	}
	return cli, true, nil
}

func (s *EtcdSource) Load() (map[string]any, error) {
	cli, owned, err := s.client()
	if err != nil {
		return nil, err
	}
	if owned {
		defer cli.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.Options.Timeout)
	defer cancel()

	resp, err := cli.Get(ctx, s.prefix(), clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to get config from etcd: %w", err)
	}

	result := make(map[string]any)
	for _, kv := range resp.Kvs {
		key := etcdKeyToPath(string(kv.Key), s.Options.Prefix)
		if key == "" {
			continue
		}
		setNestedValue(result, key, decodeEtcdValue(kv.Value))
	}

	return result, nil
}

// StartWatch 监听前缀下的变更
func (s *EtcdSource) StartWatch(ctx context.Context, onChange func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done != nil {
		return nil
	}

	cli, owned, err := s.client()
	if err != nil {
		return err
	}
	s.watcher, s.owned = cli, owned
	s.done = make(chan struct{})

	watchCh := cli.Watch(clientv3.WithRequireLeader(ctx), s.prefix(), clientv3.WithPrefix())
	go func(done chan struct{}) {
		defer close(done)
		for resp := range watchCh {
			if resp.Err() != nil {
				continue
			}
			if len(resp.Events) > 0 {
				onChange()
			}
		}
	}(s.done)

	return nil
}

// StopWatch 等待监听协程退出（需先取消 StartWatch 的 ctx）
func (s *EtcdSource) StopWatch() {
	s.mu.Lock()
	done, cli, owned := s.done, s.watcher, s.owned
	s.done, s.watcher = nil, nil
	s.mu.Unlock()

	if owned && cli != nil {
		cli.Close()
	}
	if done != nil {
		<-done
	}
}

// etcdKeyToPath 把 /prefix/a/b 转换为 a:b
func etcdKeyToPath(key, prefix string) string {
	if prefix != "" {
		key = strings.TrimPrefix(key, prefix)
	}
	key = strings.Trim(key, "/")
	return strings.ReplaceAll(key, "/", ":")
}

// decodeEtcdValue 依次尝试 JSON、YAML，失败时作为字符串
func decodeEtcdValue(raw []byte) any {
	var jsonValue any
	if err := json.Unmarshal(raw, &jsonValue); err == nil {
		return jsonValue
	}
	var yamlValue any
	if err := yaml.Unmarshal(raw, &yamlValue); err == nil && yamlValue != nil {
		if _, isString := yamlValue.(string); !isString {
			return yamlValue
		}
	}
	return string(raw)
}
