package processing

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gocrud/calllog/formatting"
	"github.com/gocrud/calllog/logentry"
	"github.com/gocrud/calllog/logging"
	"github.com/gocrud/calllog/settings"
)

// DefaultWriteTimeout 单次交给后端的超时
const DefaultWriteTimeout = 5 * time.Second

// EntryProcessor 消费者调用的处理接口
type EntryProcessor interface {
	ProcessEntry(entry logentry.LogEntry)
}

// Stats 处理统计
type Stats struct {
	Processed  int64 `json:"processed"`
	Written    int64 `json:"written"`
	Failed     int64 `json:"failed"`
	Suppressed int64 `json:"suppressed"`
	Filtered   int64 `json:"filtered"`
	Fallbacks  int64 `json:"fallbacks"`
	Errors     int64 `json:"formattingErrors"`
}

type compiledFilter struct {
	expr   string
	filter *Filter
}

// Processor 格式化条目并交给后端
// 任何失败都在此处吸收，不会传回调用方
type Processor struct {
	settings     *settings.Provider
	factory      *formatting.Factory
	sink         Sink
	logger       logging.Logger
	writeTimeout time.Duration

	filter atomic.Pointer[compiledFilter]

	processed  atomic.Int64
	written    atomic.Int64
	failed     atomic.Int64
	suppressed atomic.Int64
	filtered   atomic.Int64
	fallbacks  atomic.Int64
	errors     atomic.Int64
}

// NewProcessor 创建处理器
func NewProcessor(provider *settings.Provider, factory *formatting.Factory, sink Sink, logger logging.Logger) *Processor {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if factory == nil {
		factory = formatting.NewFactory(logger)
	}
	p := &Processor{
		settings:     provider,
		factory:      factory,
		sink:         sink,
		logger:       logger,
		writeTimeout: DefaultWriteTimeout,
	}
	p.filter.Store(&compiledFilter{})
	return p
}

// SetWriteTimeout 设置交给后端的超时
func (p *Processor) SetWriteTimeout(d time.Duration) {
	if d > 0 {
		p.writeTimeout = d
	}
}

func (p *Processor) WriteTimeout() time.Duration {
	return p.writeTimeout
}

// ProcessEntry 处理一个条目
func (p *Processor) ProcessEntry(entry logentry.LogEntry) {
	p.processed.Add(1)

	defer func() {
		if r := recover(); r != nil {
			p.failed.Add(1)
			p.diagnose(entry)
		}
	}()

	s := p.settings.Current()
	destination := s.Destination(entry)
	level := MapLevel(entry.EffectiveLevel())

	if level >= logging.LogLevelOff || s.IsSuppressed(destination) {
		p.suppressed.Add(1)
		return
	}
	if !p.currentFilter(s.Filter).Match(entry, destination) {
		p.filtered.Add(1)
		return
	}

	msg := p.factory.Format(formatting.NewContext(entry, s))
	switch {
	case msg.IsFallback:
		p.fallbacks.Add(1)
	case msg.IsError:
		p.errors.Add(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.writeTimeout)
	defer cancel()
	if err := p.sink.Write(ctx, msg, level, destination); err != nil {
		p.failed.Add(1)
		p.diagnose(entry)
		return
	}
	p.written.Add(1)
}

// diagnose 只记录类型、方法与结果，不重复可能导致失败的负载
func (p *Processor) diagnose(entry logentry.LogEntry) {
	p.logger.Warn("failed to hand off call log entry",
		logging.Field{Key: "type", Value: entry.TypeName},
		logging.Field{Key: "method", Value: entry.MethodName},
		logging.Field{Key: "success", Value: entry.Success})
}

func (p *Processor) currentFilter(expr string) *Filter {
	current := p.filter.Load()
	if current.expr == expr {
		return current.filter
	}

	f, err := NewFilter(expr)
	if err != nil {
		p.logger.Warn("ignoring invalid call log filter",
			logging.Field{Key: "filter", Value: expr},
			logging.Field{Key: "error", Value: err.Error()})
		f = nil
	}
	p.filter.Store(&compiledFilter{expr: expr, filter: f})
	return f
}

// Stats 返回统计信息
func (p *Processor) Stats() Stats {
	return Stats{
		Processed:  p.processed.Load(),
		Written:    p.written.Load(),
		Failed:     p.failed.Load(),
		Suppressed: p.suppressed.Load(),
		Filtered:   p.filtered.Load(),
		Fallbacks:  p.fallbacks.Load(),
		Errors:     p.errors.Load(),
	}
}

func (s Stats) String() string {
	return fmt.Sprintf("processed=%d written=%d failed=%d suppressed=%d filtered=%d fallbacks=%d",
		s.Processed, s.Written, s.Failed, s.Suppressed, s.Filtered, s.Fallbacks)
}
