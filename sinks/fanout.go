package sinks

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/gocrud/calllog/formatting"
	"github.com/gocrud/calllog/logging"
	"github.com/gocrud/calllog/processing"
)

// Fanout 并发写入所有后端，单个后端失败不影响其余后端，错误合并返回
type Fanout []processing.Sink

func (f Fanout) Write(ctx context.Context, msg formatting.FormattedMessage, level logging.LogLevel, destination string) error {
	switch len(f) {
	case 0:
		return nil
	case 1:
		return f[0].Write(ctx, msg, level, destination)
	}

	errs := make([]error, len(f))
	var g errgroup.Group
	for i, sink := range f {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					errs[i] = fmt.Errorf("sink %d panicked: %v", i, r)
				}
			}()
			if err := sink.Write(ctx, msg, level, destination); err != nil {
				errs[i] = fmt.Errorf("sink %d: %w", i, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}
