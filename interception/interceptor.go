package interception

import (
	"fmt"
	"sync/atomic"

	"github.com/gocrud/calllog/logentry"
	"github.com/gocrud/calllog/settings"
)

// Enqueuer 接收完成的条目，不得阻塞
type Enqueuer interface {
	TryEnqueue(entry logentry.LogEntry) bool
}

// InterceptorStats 拦截统计
type InterceptorStats struct {
	Calls    int64 `json:"calls"`
	Logged   int64 `json:"logged"`
	Enqueued int64 `json:"enqueued"`
	Dropped  int64 `json:"dropped"`
}

// Interceptor 代理层使用的调用包装器
// 它从不因自身原因 panic 或阻塞业务调用
type Interceptor struct {
	cache    *DecisionCache
	settings *settings.Provider
	queue    Enqueuer

	calls    atomic.Int64
	logged   atomic.Int64
	enqueued atomic.Int64
	dropped  atomic.Int64
}

func NewInterceptor(cache *DecisionCache, provider *settings.Provider, queue Enqueuer) *Interceptor {
	return &Interceptor{cache: cache, settings: provider, queue: queue}
}

// Call 一次进行中的调用，nil 表示不记录
type Call struct {
	interceptor *Interceptor
	decision    Decision
	errorLevel  logentry.Level
	entry       logentry.LogEntry
}

// Begin 开始一次调用
func (i *Interceptor) Begin(id MethodIdentity, args ...any) *Call {
	i.calls.Add(1)

	snapshot := i.settings.Current()
	if !snapshot.Enabled {
		return nil
	}
	d := i.cache.GetDecision(id)
	if !d.Log {
		return nil
	}
	i.logged.Add(1)

	entry := logentry.CreateStart(id.MethodName, id.TypeName, snapshot.Level)
	if d.LogsInput() {
		entry = entry.WithInput(captureArgs(args))
	}
	if d.Target != "" {
		entry = entry.WithTarget(d.Target)
	}
	if d.Formatter != "" {
		entry = entry.WithFormatter(d.Formatter)
	}
	if d.Template != "" {
		entry = entry.WithTemplate(d.Template)
	}
	return &Call{interceptor: i, decision: d, errorLevel: snapshot.ErrorLevel, entry: entry}
}

// End 记录调用结果并投递，返回是否被队列接受
func (c *Call) End(result any, err error) bool {
	if c == nil {
		return false
	}
	entry := c.entry
	if err == nil && c.decision.LogsOutput() {
		entry = entry.WithOutput(result)
	}
	entry = entry.WithException(err, c.errorLevel).WithCompletion(err == nil)

	i := c.interceptor
	if i.queue.TryEnqueue(entry) {
		i.enqueued.Add(1)
		return true
	}
	i.dropped.Add(1)
	return false
}

// Entry 当前构造中的条目
func (c *Call) Entry() logentry.LogEntry {
	return c.entry
}

// Stats 返回统计信息
func (i *Interceptor) Stats() InterceptorStats {
	return InterceptorStats{
		Calls:    i.calls.Load(),
		Logged:   i.logged.Load(),
		Enqueued: i.enqueued.Load(),
		Dropped:  i.dropped.Load(),
	}
}

// Do 包装无返回值的调用
func (i *Interceptor) Do(id MethodIdentity, fn func() error, args ...any) error {
	_, err := Invoke(i, id, func() (struct{}, error) {
		return struct{}{}, fn()
	}, args...)
	return err
}

// Invoke 包装一次调用
// 业务函数 panic 时记录为失败调用后原样重新 panic
func Invoke[R any](i *Interceptor, id MethodIdentity, fn func() (R, error), args ...any) (result R, err error) {
	call := i.Begin(id, args...)
	if call == nil {
		return fn()
	}

	defer func() {
		if r := recover(); r != nil {
			call.End(nil, fmt.Errorf("panic: %v", r))
			panic(r)
		}
	}()

	result, err = fn()
	call.End(result, err)
	return result, err
}

func captureArgs(args []any) any {
	switch len(args) {
	case 0:
		return nil
	case 1:
		return args[0]
	}
	out := make([]any, len(args))
	copy(out, args)
	return out
}
