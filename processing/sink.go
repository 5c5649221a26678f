package processing

import (
	"context"

	"github.com/gocrud/calllog/formatting"
	"github.com/gocrud/calllog/logging"
)

// Sink 后端接收端
// 自行负责 I/O、批处理与重试；返回的错误与 panic 都由处理器吸收
type Sink interface {
	Write(ctx context.Context, msg formatting.FormattedMessage, level logging.LogLevel, destination string) error
}

// SinkFunc 函数适配器
type SinkFunc func(ctx context.Context, msg formatting.FormattedMessage, level logging.LogLevel, destination string) error

func (f SinkFunc) Write(ctx context.Context, msg formatting.FormattedMessage, level logging.LogLevel, destination string) error {
	return f(ctx, msg, level, destination)
}
