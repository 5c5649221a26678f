package hosting

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gocrud/calllog/logging"
)

// HostedService 托管服务接口（类似于 .NET Core IHostedService）
// 框架会自动在 goroutine 中调用 Start，用户无需自己启动 goroutine
type HostedService interface {
	// Start 启动服务。该方法应阻塞执行，直到 context 被取消或发生错误。
	Start(ctx context.Context) error

	// Stop 执行优雅关闭逻辑。
	// Start 的 context 被取消时服务应自动停止，Stop 用于额外的清理并支持超时。
	Stop(ctx context.Context) error
}

// BackgroundService 后台服务基类
type BackgroundService struct {
	name   string
	logger logging.Logger

	stopOnce sync.Once
	doneOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewBackgroundService 创建后台服务
func NewBackgroundService(name string, logger logging.Logger) *BackgroundService {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &BackgroundService{
		name:   name,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Name 服务名称
func (s *BackgroundService) Name() string {
	return s.name
}

// Logger 服务日志记录器
func (s *BackgroundService) Logger() logging.Logger {
	return s.logger
}

// Start 阻塞直到停止信号或上下文取消
func (s *BackgroundService) Start(ctx context.Context) error {
	s.logger.Info(fmt.Sprintf("BackgroundService '%s' starting", s.name))
	defer s.Done()

	select {
	case <-s.stopCh:
		s.logger.Info(fmt.Sprintf("BackgroundService '%s' stopped by signal", s.name))
	case <-ctx.Done():
		s.logger.Info(fmt.Sprintf("BackgroundService '%s' context cancelled", s.name))
	}
	return nil
}

// Stop 发出停止信号并等待服务结束，可重复调用
func (s *BackgroundService) Stop(ctx context.Context) error {
	s.Signal()

	select {
	case <-s.doneCh:
		s.logger.Info(fmt.Sprintf("BackgroundService '%s' stopped gracefully", s.name))
	case <-ctx.Done():
		s.logger.Warn(fmt.Sprintf("BackgroundService '%s' stop timeout", s.name))
		return ctx.Err()
	}
	return nil
}

// Signal 发出停止信号但不等待
func (s *BackgroundService) Signal() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// ShouldStop 检查是否应该停止
func (s *BackgroundService) ShouldStop() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

// StopChan 返回停止通道，用于在 select 中监听
func (s *BackgroundService) StopChan() <-chan struct{} {
	return s.stopCh
}

// DoneChan 服务主循环结束后关闭
func (s *BackgroundService) DoneChan() <-chan struct{} {
	return s.doneCh
}

// Done 标记服务完成
func (s *BackgroundService) Done() {
	s.doneOnce.Do(func() { close(s.doneCh) })
}

// TimedHostedService 定时托管服务
type TimedHostedService struct {
	*BackgroundService
	interval time.Duration
	task     func(ctx context.Context) error
}

// NewTimedHostedService 创建定时托管服务
func NewTimedHostedService(name string, interval time.Duration, task func(ctx context.Context) error, logger logging.Logger) *TimedHostedService {
	return &TimedHostedService{
		BackgroundService: NewBackgroundService(name, logger),
		interval:          interval,
		task:              task,
	}
}

// Start 按固定间隔执行任务，任务失败只记录日志
func (s *TimedHostedService) Start(ctx context.Context) error {
	s.logger.Info(fmt.Sprintf("TimedHostedService '%s' running with interval %v", s.name, s.interval))
	defer s.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.task(ctx); err != nil {
				s.logger.Error(fmt.Sprintf("TimedHostedService '%s' task failed", s.name),
					logging.Field{Key: "error", Value: err.Error()})
			}
		case <-s.stopCh:
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}
