package hosting

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gocrud/calllog/logging"
)

// Resolver 延迟获取服务实例，通常从 DI 容器解析
type Resolver func() (HostedService, error)

type hostedEntry struct {
	name    string
	resolve Resolver
	service HostedService
	done    chan struct{}
}

// HostedServiceManager 托管服务管理器
// 按注册顺序启动，倒序并发停止
type HostedServiceManager struct {
	logger logging.Logger

	mu      sync.Mutex
	entries []*hostedEntry
	cancel  context.CancelFunc
	started bool
}

// NewHostedServiceManager 创建托管服务管理器
func NewHostedServiceManager(logger logging.Logger) *HostedServiceManager {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &HostedServiceManager{logger: logger}
}

// Add 添加已创建的托管服务
func (m *HostedServiceManager) Add(name string, service HostedService) {
	m.AddLazy(name, func() (HostedService, error) { return service, nil })
}

// AddLazy 添加在 StartAll 时才解析的托管服务
func (m *HostedServiceManager) AddLazy(name string, resolve Resolver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, &hostedEntry{name: name, resolve: resolve})
}

// Len 已注册服务数量
func (m *HostedServiceManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// StartAll 解析并启动所有托管服务
// 每个服务在独立的 goroutine 中运行，非取消导致的错误发送到返回的通道
func (m *HostedServiceManager) StartAll() (<-chan error, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return nil, errors.New("hosted services already started")
	}

	for _, e := range m.entries {
		svc, err := e.resolve()
		if err != nil {
			return nil, fmt.Errorf("hosted service %s: %w", e.name, err)
		}
		e.service = svc
	}

	// 服务上下文伴随应用运行，由 StopAll 取消
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.started = true

	errCh := make(chan error, len(m.entries))
	m.logger.Info(fmt.Sprintf("Starting %d hosted services", len(m.entries)))

	for _, e := range m.entries {
		e.done = make(chan struct{})
		go func(e *hostedEntry) {
			defer close(e.done)
			err := e.service.Start(ctx)
			switch {
			case err == nil, ctx.Err() != nil && errors.Is(err, context.Canceled):
				m.logger.Debug(fmt.Sprintf("Hosted service %s completed", e.name))
			case ctx.Err() != nil:
				m.logger.Debug(fmt.Sprintf("Hosted service %s stopped", e.name),
					logging.Field{Key: "error", Value: err.Error()})
			default:
				m.logger.Error(fmt.Sprintf("Hosted service %s error", e.name),
					logging.Field{Key: "error", Value: err.Error()})
				errCh <- fmt.Errorf("hosted service %s: %w", e.name, err)
			}
		}(e)
	}

	return errCh, nil
}

// StopAll 取消服务上下文并倒序并发调用 Stop，等待主循环退出或 ctx 到期
func (m *HostedServiceManager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return nil
	}
	m.started = false

	m.logger.Info(fmt.Sprintf("Stopping %d hosted services", len(m.entries)))

	var (
		wg   sync.WaitGroup
		emu  sync.Mutex
		errs []error
	)
	for i := len(m.entries) - 1; i >= 0; i-- {
		e := m.entries[i]
		if e.service == nil {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := e.service.Stop(ctx); err != nil {
				m.logger.Error(fmt.Sprintf("Failed to stop hosted service %s", e.name),
					logging.Field{Key: "error", Value: err.Error()})
				emu.Lock()
				errs = append(errs, fmt.Errorf("stop %s: %w", e.name, err))
				emu.Unlock()
			}
		}()
	}
	wg.Wait()

	// Stop 返回后再取消上下文，允许服务先完成排空
	m.cancel()

	for _, e := range m.entries {
		if e.done == nil {
			continue
		}
		select {
		case <-e.done:
		case <-ctx.Done():
			m.logger.Warn(fmt.Sprintf("Hosted service %s did not exit before deadline", e.name))
			errs = append(errs, fmt.Errorf("stop %s: %w", e.name, ctx.Err()))
			return errors.Join(errs...)
		}
	}

	m.logger.Info("All hosted services stopped")
	return errors.Join(errs...)
}
