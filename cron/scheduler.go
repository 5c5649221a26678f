package cron

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/gocrud/calllog/di"
	"github.com/gocrud/calllog/logging"
)

var (
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()

	// ErrUnknownJob 按名称查找的任务不存在
	ErrUnknownJob = errors.New("cron: unknown job")
)

// JobFunc 绑定依赖后的任务函数
type JobFunc func(ctx context.Context) error

// JobInfo 任务运行状态快照
type JobInfo struct {
	Name      string    `json:"name"`
	Spec      string    `json:"spec"`
	Next      time.Time `json:"next"`
	Prev      time.Time `json:"prev"`
	Runs      int64     `json:"runs"`
	Failures  int64     `json:"failures"`
	LastError string    `json:"last_error,omitempty"`
}

type job struct {
	name string
	spec string
	run  JobFunc
	id   cron.EntryID

	runs     atomic.Int64
	failures atomic.Int64
	lastErr  atomic.Pointer[string]
}

// Scheduler 定时任务托管服务
// 任务在调度器的上下文中运行，Stop 取消该上下文并等待运行中的任务结束
type Scheduler struct {
	cron   *cron.Cron
	logger logging.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.RWMutex
	jobs map[string]*job
}

func newScheduler(logger logging.Logger, opts []cron.Option) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(opts...),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]*job),
	}
}

func (s *Scheduler) add(name, spec string, run JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("cron job '%s' already registered", name)
	}
	j := &job{name: name, spec: spec, run: run}
	id, err := s.cron.AddFunc(spec, func() { s.execute(j) })
	if err != nil {
		return fmt.Errorf("failed to add cron job '%s': %w", name, err)
	}
	j.id = id
	s.jobs[name] = j
	s.logger.Info(fmt.Sprintf("Cron job '%s' registered with spec '%s'", name, spec))
	return nil
}

// execute 运行一次任务，panic 计为失败
func (s *Scheduler) execute(j *job) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cron job '%s' panicked: %v", j.name, r)
		}
		j.runs.Add(1)
		if err != nil {
			j.failures.Add(1)
			msg := err.Error()
			j.lastErr.Store(&msg)
			s.logger.Error(fmt.Sprintf("Cron job '%s' failed", j.name),
				logging.Field{Key: "error", Value: msg},
				logging.Field{Key: "elapsed", Value: time.Since(start).String()})
			return
		}
		j.lastErr.Store(nil)
		s.logger.Debug(fmt.Sprintf("Cron job '%s' completed", j.name),
			logging.Field{Key: "elapsed", Value: time.Since(start).String()})
	}()
	return j.run(s.ctx)
}

// RunNow 立即同步执行指定任务，不影响调度
func (s *Scheduler) RunNow(name string) error {
	s.mu.RLock()
	j, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.execute(j)
}

// Jobs 返回按名称排序的任务状态
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobInfo, 0, len(s.jobs))
	for _, j := range s.jobs {
		entry := s.cron.Entry(j.id)
		info := JobInfo{
			Name:     j.name,
			Spec:     j.spec,
			Next:     entry.Next,
			Prev:     entry.Prev,
			Runs:     j.runs.Load(),
			Failures: j.failures.Load(),
		}
		if msg := j.lastErr.Load(); msg != nil {
			info.LastError = *msg
		}
		out = append(out, info)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out
}

// Start 启动调度并阻塞到 ctx 取消
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info(fmt.Sprintf("Scheduler starting with %d jobs", len(s.jobs)))
	s.cron.Start()
	select {
	case <-ctx.Done():
	case <-s.ctx.Done():
	}
	return nil
}

// Stop 停止调度，等待运行中的任务或 ctx 到期
func (s *Scheduler) Stop(ctx context.Context) error {
	s.logger.Info("Scheduler stopping")
	s.cancel()
	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// bindHandler 把任务处理函数绑定为 JobFunc
// context.Context 参数接收任务上下文，其余参数每次执行时从容器解析；
// 返回值只能为空或 error
func bindHandler(c di.Container, handler any) (JobFunc, error) {
	switch fn := handler.(type) {
	case JobFunc:
		return fn, nil
	case func(context.Context) error:
		return fn, nil
	case func():
		return func(context.Context) error { fn(); return nil }, nil
	}

	if err := checkHandler(handler); err != nil {
		return nil, err
	}
	fnVal := reflect.ValueOf(handler)
	fnType := fnVal.Type()
	if c == nil && fnType.NumIn() > 0 {
		return nil, errors.New("handler has dependencies but no container is available")
	}

	return func(ctx context.Context) error {
		args := make([]reflect.Value, fnType.NumIn())
		for i := range args {
			in := fnType.In(i)
			if in == contextType {
				args[i] = reflect.ValueOf(&ctx).Elem()
				continue
			}
			instance, err := c.Get(in)
			if err != nil {
				return fmt.Errorf("resolve parameter %d (%v): %w", i, in, err)
			}
			if instance == nil {
				args[i] = reflect.Zero(in)
			} else {
				args[i] = reflect.ValueOf(instance)
			}
		}
		results := fnVal.Call(args)
		if len(results) == 1 && !results[0].IsNil() {
			return results[0].Interface().(error)
		}
		return nil
	}, nil
}

func checkHandler(handler any) error {
	if handler == nil {
		return errors.New("handler is nil")
	}
	fnType := reflect.TypeOf(handler)
	if fnType.Kind() != reflect.Func {
		return fmt.Errorf("handler must be a function, got %v", fnType.Kind())
	}
	if fnType.NumOut() > 1 || (fnType.NumOut() == 1 && fnType.Out(0) != errorType) {
		return fmt.Errorf("handler may only return error, got %v", fnType)
	}
	return nil
}
