package processing

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gocrud/calllog/backlog"
	"github.com/gocrud/calllog/hosting"
	"github.com/gocrud/calllog/logentry"
	"github.com/gocrud/calllog/logging"
)

// ErrAlreadyRunning 同一队列已有消费者在运行
var ErrAlreadyRunning = errors.New("processing: background logging service already running")

// DefaultDrainTimeout 关闭时排空的时间窗口
const DefaultDrainTimeout = 5 * time.Second

// 每个队列最多一个消费者
var consumers sync.Map // backlog.BackgroundLog -> *BackgroundLoggingService

// BackgroundLoggingService 唯一的消费者循环
type BackgroundLoggingService struct {
	*hosting.BackgroundService

	log          backlog.BackgroundLog
	processor    EntryProcessor
	drainTimeout time.Duration
	running      atomic.Bool

	consumed atomic.Int64
	panics   atomic.Int64
}

// NewBackgroundLoggingService 创建消费者
func NewBackgroundLoggingService(log backlog.BackgroundLog, processor EntryProcessor, drainTimeout time.Duration, logger logging.Logger) *BackgroundLoggingService {
	if drainTimeout <= 0 {
		drainTimeout = DefaultDrainTimeout
	}
	return &BackgroundLoggingService{
		BackgroundService: hosting.NewBackgroundService("BackgroundLoggingService", logger),
		log:               log,
		processor:         processor,
		drainTimeout:      drainTimeout,
	}
}

// Start 消费队列直到 ctx 取消、收到停止信号或队列完成，然后在时间窗口内排空
func (s *BackgroundLoggingService) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	if _, loaded := consumers.LoadOrStore(s.log, s); loaded {
		s.running.Store(false)
		return ErrAlreadyRunning
	}
	defer consumers.Delete(s.log)
	defer s.Done()

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.StopChan():
			cancel()
		case <-loopCtx.Done():
		}
	}()

	s.Logger().Info("background logging service started")
	for entry := range s.log.ReadAll(loopCtx) {
		s.process(entry)
	}
	s.drain()
	return nil
}

// Stop 关闭队列并等待消费者在 ctx 内退出
func (s *BackgroundLoggingService) Stop(ctx context.Context) error {
	if err := s.log.Close(); err != nil && !errors.Is(err, backlog.ErrClosed) {
		return err
	}
	if !s.running.Load() {
		return nil
	}
	return s.BackgroundService.Stop(ctx)
}

// Consumed 已处理的条目数
func (s *BackgroundLoggingService) Consumed() int64 {
	return s.consumed.Load()
}

// Panics 处理条目时恢复的 panic 次数
func (s *BackgroundLoggingService) Panics() int64 {
	return s.panics.Load()
}

func (s *BackgroundLoggingService) drain() {
	deadline := time.Now().Add(s.drainTimeout)
	drained := 0
	for time.Now().Before(deadline) {
		entry, ok := s.log.TryDequeue()
		if !ok {
			break
		}
		s.process(entry)
		drained++
	}
	if pending := s.log.Stats().Pending; pending > 0 {
		s.Logger().Warn("drain window elapsed, dropping pending call log entries",
			logging.Field{Key: "pending", Value: pending})
	}
	s.Logger().Info("background logging service stopped",
		logging.Field{Key: "drained", Value: drained},
		logging.Field{Key: "consumed", Value: s.consumed.Load()})
}

func (s *BackgroundLoggingService) process(entry logentry.LogEntry) {
	defer func() {
		if r := recover(); r != nil {
			s.panics.Add(1)
			s.Logger().Error("call log entry processing panicked",
				logging.Field{Key: "type", Value: entry.TypeName},
				logging.Field{Key: "method", Value: entry.MethodName},
				logging.Field{Key: "success", Value: entry.Success})
		}
	}()
	s.consumed.Add(1)
	s.processor.ProcessEntry(entry)
}
