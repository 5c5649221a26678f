// Package calllog 方法调用日志引擎的装配入口
//
// New 把配置、决策缓存、后台队列、消费者、处理器和后端注册表装配进运行时：
//
//	calllog.Run(
//	    config.Use(config.NewConfigurationBuilder().AddYamlFile("calllog.yaml")),
//	    redis.New(redis.WithClient("default"), redis.WithStream(redis.StreamOptions{})),
//	    calllog.New(calllog.WithRecordBuffer(500)),
//	    web.New(web.WithDiagnostics()),
//	)
//
// 业务代码从容器取得 *interception.Interceptor 包装调用。
package calllog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocrud/calllog/backlog"
	"github.com/gocrud/calllog/config"
	"github.com/gocrud/calllog/core"
	"github.com/gocrud/calllog/cron"
	"github.com/gocrud/calllog/database"
	"github.com/gocrud/calllog/di"
	"github.com/gocrud/calllog/formatting"
	"github.com/gocrud/calllog/hosting"
	"github.com/gocrud/calllog/interception"
	"github.com/gocrud/calllog/logging"
	"github.com/gocrud/calllog/pebblestore"
	"github.com/gocrud/calllog/processing"
	"github.com/gocrud/calllog/settings"
	"github.com/gocrud/calllog/sinks"
)

// DefaultRetentionSpec 保留期清理的默认调度
const DefaultRetentionSpec = "@every 1h"

// RetentionJobName 保留期清理任务名
const RetentionJobName = "calllog-retention"

// Options 装配选项
type Options struct {
	// Section 绑定的配置节，默认 "calllog"
	Section string
	// Settings 非空时使用静态配置，忽略运行时中的 Configuration
	Settings *settings.Options
	// RecordBuffer 大于 0 时在内存中保留最近的记录，以 "memory" 登记
	RecordBuffer int
	// Routes 目标到后端名称的路由，未路由的目标写入所有后端
	Routes map[string][]string
	// WriteTimeout 单次写入后端的超时
	WriteTimeout time.Duration
	// StatsInterval 大于 0 时定期输出统计
	StatsInterval time.Duration
	// Retention 大于 0 时定期清理本地归档与数据表中的过期记录
	Retention     time.Duration
	RetentionSpec string
	// Formatters 额外注册的格式化器
	Formatters map[formatting.FormatterType]formatting.MessageFormatter
}

// Option 修改装配选项
type Option func(*Options)

// WithSection 设置配置节
func WithSection(section string) Option {
	return func(o *Options) { o.Section = section }
}

// WithSettings 使用静态配置
func WithSettings(s settings.Options) Option {
	return func(o *Options) { o.Settings = &s }
}

// WithRecordBuffer 保留最近 n 条记录
func WithRecordBuffer(n int) Option {
	return func(o *Options) { o.RecordBuffer = n }
}

// WithRoute 把目标路由到指定后端
func WithRoute(destination string, sinkNames ...string) Option {
	return func(o *Options) {
		if o.Routes == nil {
			o.Routes = make(map[string][]string)
		}
		o.Routes[destination] = sinkNames
	}
}

// WithWriteTimeout 设置写入超时
func WithWriteTimeout(d time.Duration) Option {
	return func(o *Options) { o.WriteTimeout = d }
}

// WithStatsInterval 定期输出统计
func WithStatsInterval(d time.Duration) Option {
	return func(o *Options) { o.StatsInterval = d }
}

// WithRetention 按 spec 调度清理早于 maxAge 的记录，spec 为空时每小时一次
func WithRetention(maxAge time.Duration, spec string) Option {
	return func(o *Options) {
		o.Retention = maxAge
		o.RetentionSpec = spec
	}
}

// WithFormatter 注册自定义格式化器
func WithFormatter(t formatting.FormatterType, f formatting.MessageFormatter) Option {
	return func(o *Options) {
		if o.Formatters == nil {
			o.Formatters = make(map[formatting.FormatterType]formatting.MessageFormatter)
		}
		o.Formatters[t] = f
	}
}

// Engine 装配完成的组件
type Engine struct {
	Settings    *settings.Provider
	Services    *interception.ServiceRegistry
	Cache       *interception.DecisionCache
	Queue       backlog.BackgroundLog
	Formatters  *formatting.Factory
	Processor   *processing.Processor
	Consumer    *processing.BackgroundLoggingService
	Interceptor *interception.Interceptor
	Sinks       *sinks.Registry
	Records     *sinks.MemorySink
}

// New 启用调用日志
func New(opts ...Option) core.Option {
	return func(rt *core.Runtime) error {
		o := Options{Section: settings.SectionName}
		for _, opt := range opts {
			opt(&o)
		}

		e, err := assemble(rt, o)
		if err != nil {
			return err
		}
		core.SetFeature(rt, e)

		if err := provideAll(rt, e); err != nil {
			return fmt.Errorf("calllog: %w", err)
		}

		logger := rt.Logger("CallLog")
		rt.Lifecycle.OnStart(func(context.Context) error {
			e.Services.AddFromContainer(rt.Container)
			if len(e.Sinks.Names()) == 0 {
				logger.Info("no call log sinks registered, writing to the runtime logger")
				if err := e.Sinks.Add("logger", sinks.NewLoggerSink(rt.LoggerFactory)); err != nil {
					return err
				}
			}
			if err := e.Sinks.Validate(); err != nil {
				return err
			}
			// 直通模式在调用方协程上写入
			if e.Settings.Current().Mode == settings.ModePassThrough {
				if remote := e.Sinks.Remote(); len(remote) > 0 {
					logger.Warn("pass-through mode writes on the calling goroutine, remote sinks can block callers",
						logging.Field{Key: "sinks", Value: remote},
						logging.Field{Key: "writeTimeout", Value: e.Processor.WriteTimeout()})
				}
			}
			return nil
		})

		if err := core.WithHostedInstance("BackgroundLoggingService", e.Consumer)(rt); err != nil {
			return err
		}
		if o.StatsInterval > 0 {
			reporter := hosting.NewTimedHostedService("CallLogStats", o.StatsInterval, e.reportStats(logger), logger)
			if err := core.WithHostedInstance("CallLogStats", reporter)(rt); err != nil {
				return err
			}
		}
		if o.Retention > 0 {
			spec := o.RetentionSpec
			if spec == "" {
				spec = DefaultRetentionSpec
			}
			if err := cron.New(cron.AddJob(spec, RetentionJobName, retentionJob(rt.Container, o.Retention, logger)))(rt); err != nil {
				return err
			}
		}
		return nil
	}
}

func assemble(rt *core.Runtime, o Options) (*Engine, error) {
	e := &Engine{}

	switch cfg := core.GetFeature[config.ReloadableConfiguration](rt); {
	case o.Settings != nil:
		e.Settings = settings.NewProvider(*o.Settings, rt.Logger("CallLogSettings"))
	case cfg != nil:
		e.Settings = settings.NewProviderFromConfig(cfg, o.Section, rt.Logger("CallLogSettings"))
	default:
		e.Settings = settings.NewProvider(settings.DefaultOptions(), rt.Logger("CallLogSettings"))
	}
	snapshot := e.Settings.Current()

	e.Services = interception.NewServiceRegistry()
	e.Cache = interception.NewDecisionCache(e.Settings, nil, e.Services)

	e.Sinks = sinks.FromRuntime(rt)
	if o.RecordBuffer > 0 {
		e.Records = sinks.NewMemorySink(o.RecordBuffer)
		if err := e.Sinks.Add("memory", e.Records); err != nil {
			return nil, err
		}
	}
	for dest, names := range o.Routes {
		e.Sinks.Route(dest, names...)
	}

	e.Formatters = formatting.NewFactory(rt.Logger("CallLogFormatting"))
	for t, f := range o.Formatters {
		e.Formatters.Register(t, f)
	}
	e.Processor = processing.NewProcessor(e.Settings, e.Formatters, e.Sinks, rt.Logger("CallLogProcessor"))
	e.Processor.SetWriteTimeout(o.WriteTimeout)

	e.Queue = backlog.New(snapshot, e.Processor.ProcessEntry)
	e.Consumer = processing.NewBackgroundLoggingService(e.Queue, e.Processor, snapshot.DrainTimeout, rt.Logger("BackgroundLoggingService"))
	e.Interceptor = interception.NewInterceptor(e.Cache, e.Settings, e.Queue)
	return e, nil
}

func provideAll(rt *core.Runtime, e *Engine) error {
	for _, v := range []any{e, e.Settings, e.Services, e.Cache, e.Formatters, e.Processor, e.Consumer, e.Interceptor, e.Sinks} {
		if err := rt.Provide(v); err != nil {
			return err
		}
	}
	di.Register[backlog.BackgroundLog](rt.Container, di.WithValue(e.Queue))
	if e.Records != nil {
		return rt.Provide(e.Records)
	}
	return nil
}

func (e *Engine) reportStats(logger logging.Logger) func(context.Context) error {
	return func(context.Context) error {
		q := e.Queue.Stats()
		logger.Info("call log statistics",
			logging.Field{Key: "interceptor", Value: e.Interceptor.Stats()},
			logging.Field{Key: "cache", Value: e.Cache.Stats()},
			logging.Field{Key: "pending", Value: q.Pending},
			logging.Field{Key: "dropped", Value: q.Dropped},
			logging.Field{Key: "processor", Value: e.Processor.Stats().String()},
			logging.Field{Key: "consumed", Value: e.Consumer.Consumed()})
		return nil
	}
}

// retentionJob 清理本地归档与数据表中早于 maxAge 的记录
// 未启用的后端跳过；MongoDB 依赖 TTL 索引自行过期
func retentionJob(c di.Container, maxAge time.Duration, logger logging.Logger) cron.JobFunc {
	return func(ctx context.Context) error {
		before := time.Now().Add(-maxAge)
		var errs []error

		if store, err := di.Resolve[*pebblestore.Store](c); err == nil && store != nil {
			n, err := store.Purge(before)
			if err != nil {
				errs = append(errs, fmt.Errorf("purge archive: %w", err))
			} else {
				logger.Info("purged call log archive", logging.Field{Key: "removed", Value: n})
			}
		}
		if table, err := di.Resolve[*database.TableSink](c); err == nil && table != nil {
			n, err := table.Purge(ctx, before)
			if err != nil {
				errs = append(errs, fmt.Errorf("purge table: %w", err))
			} else {
				logger.Info("purged call log table", logging.Field{Key: "removed", Value: n})
			}
		}
		return errors.Join(errs...)
	}
}
