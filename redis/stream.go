package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/gocrud/calllog/formatting"
	"github.com/gocrud/calllog/logging"
	"github.com/gocrud/calllog/sinks"
)

// StreamOptions 流后端配置
type StreamOptions struct {
	// Client 使用的客户端名称，默认 "default"
	Client string
	// Prefix 流名前缀，流名为 Prefix + 目标名称
	Prefix string
	// MaxLen 每个流保留的近似长度，0 表示不裁剪
	MaxLen int64
}

// StreamSink 以 XADD 写入 Redis Stream，每个目标一个流
type StreamSink struct {
	client redis.Cmdable
	opts   StreamOptions
}

// NewStreamSink 创建流后端
func NewStreamSink(client redis.Cmdable, opts StreamOptions) *StreamSink {
	if opts.Prefix == "" {
		opts.Prefix = "calllog:"
	}
	return &StreamSink{client: client, opts: opts}
}

// Stream 目标对应的流名
func (s *StreamSink) Stream(destination string) string {
	return s.opts.Prefix + destination
}

func (s *StreamSink) Write(ctx context.Context, msg formatting.FormattedMessage, level logging.LogLevel, destination string) error {
	values, err := streamValues(sinks.NewRecord(msg, level, destination))
	if err != nil {
		return err
	}
	args := &redis.XAddArgs{
		Stream: s.Stream(destination),
		Values: values,
	}
	if s.opts.MaxLen > 0 {
		args.MaxLen = s.opts.MaxLen
		args.Approx = true
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis xadd %s: %w", args.Stream, err)
	}
	return nil
}

// streamValues 流条目的字段，fields 以 JSON 字符串保存
func streamValues(r sinks.Record) (map[string]any, error) {
	values := map[string]any{
		"time":    r.Time.Format("2006-01-02T15:04:05.000000Z07:00"),
		"level":   r.Level,
		"message": r.Message,
		"success": r.Success,
	}
	if r.Template != "" {
		values["template"] = r.Template
	}
	if r.Fallback {
		values["fallback"] = true
	}
	if len(r.Fields) > 0 {
		b, err := json.Marshal(r.Fields)
		if err != nil {
			return nil, fmt.Errorf("encode fields: %w", err)
		}
		values["fields"] = string(b)
	}
	return values, nil
}
