package formatting

import (
	"fmt"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/gocrud/calllog/logging"
	"github.com/gocrud/calllog/settings"
)

// Factory 按上下文选择格式化器并执行格式化
// 注册表写时复制，读取无锁
type Factory struct {
	mu         sync.Mutex
	formatters atomic.Pointer[map[FormatterType]MessageFormatter]
	logger     logging.Logger
}

// NewFactory 创建工厂并注册内置格式化器
func NewFactory(logger logging.Logger) *Factory {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	f := &Factory{logger: logger}
	builtin := map[FormatterType]MessageFormatter{
		FormatterJSON:         JSONFormatter{},
		FormatterHybrid:       HybridFormatter{},
		FormatterTemplate:     TemplateFormatter{},
		FormatterStructured:   StructuredFormatter{},
		FormatterSuccessError: SuccessErrorFormatter{},
	}
	f.formatters.Store(&builtin)
	return f
}

// Register 注册或替换格式化器
func (f *Factory) Register(t FormatterType, formatter MessageFormatter) {
	f.mu.Lock()
	defer f.mu.Unlock()
	next := maps.Clone(*f.formatters.Load())
	next[t] = formatter
	f.formatters.Store(&next)
}

// Get 按种类获取格式化器
func (f *Factory) Get(t FormatterType) (MessageFormatter, error) {
	if formatter, ok := (*f.formatters.Load())[t]; ok {
		return formatter, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownFormatter, t)
}

// Resolve 决定使用的格式化器种类
//
// 优先级：上下文显式指定 > 条目显式覆盖（含条目模板）> 目标绑定 > 全局默认 > hybrid。
// 无法识别的名称被忽略并继续向下查找。
func (f *Factory) Resolve(ctx FormattingContext) FormatterType {
	if ctx.Type != FormatterUnspecified {
		return ctx.Type
	}
	if ctx.Entry.Formatter != "" {
		if t, err := ParseFormatterType(ctx.Entry.Formatter); err == nil {
			return t
		}
	}
	if ctx.Entry.TemplateName != "" {
		return FormatterTemplate
	}
	if name, ok := ctx.Settings.TargetFormatter(ctx.Destination()); ok {
		if t, err := ParseFormatterType(name); err == nil {
			return t
		}
	}
	if t, err := ParseFormatterType(ctx.Settings.DefaultFormatter); err == nil {
		return t
	}
	return FormatterHybrid
}

// GetFormatter 返回上下文对应的格式化器
func (f *Factory) GetFormatter(ctx FormattingContext) (MessageFormatter, error) {
	return f.Get(f.Resolve(withSettings(ctx)))
}

// Format 格式化，从不 panic 也不返回错误
// 失败时启用回退则使用回退模板，否则返回错误标记
// 结果的 Timestamp 为调用开始时间
func (f *Factory) Format(ctx FormattingContext) (msg FormattedMessage) {
	ctx = withSettings(ctx)
	defer func() {
		if msg.Timestamp.IsZero() {
			msg.Timestamp = ctx.Entry.StartedAt
		}
	}()
	if ctx.FormattingDisabled() {
		return Plain(ctx)
	}

	t := f.Resolve(ctx)
	ctx = ctx.WithType(t)

	defer func() {
		if r := recover(); r != nil {
			msg = f.degrade(ctx, fmt.Errorf("formatter %s panicked: %v", t, r))
		}
	}()

	formatter, err := f.Get(t)
	if err != nil {
		return f.degrade(ctx, err)
	}
	msg, err = formatter.Format(ctx)
	if err != nil {
		return f.degrade(ctx, err)
	}
	return msg
}

func (f *Factory) degrade(ctx FormattingContext, cause error) (msg FormattedMessage) {
	f.logger.Debug("formatting failed",
		logging.Field{Key: "type", Value: ctx.Entry.TypeName},
		logging.Field{Key: "method", Value: ctx.Entry.MethodName},
		logging.Field{Key: "error", Value: cause.Error()})

	if !ctx.Settings.EnableFallback {
		return ErrorMarker(ctx, cause)
	}

	defer func() {
		if r := recover(); r != nil {
			msg = ErrorMarker(ctx, fmt.Errorf("%w; fallback panicked: %v", cause, r))
		}
	}()
	return Fallback(ctx, cause)
}

func withSettings(ctx FormattingContext) FormattingContext {
	if ctx.Settings == nil {
		ctx.Settings = settings.Defaults()
	}
	return ctx
}
