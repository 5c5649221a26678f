package pebblestore

import (
	"context"

	"github.com/gocrud/calllog/core"
	"github.com/gocrud/calllog/logging"
	"github.com/gocrud/calllog/sinks"
)

// New 打开本地归档，以 "pebble" 登记到后端注册表并在停止时关闭
func New(opts Options) core.Option {
	return func(rt *core.Runtime) error {
		store, err := Open(opts)
		if err != nil {
			return err
		}
		if err := rt.Provide(store); err != nil {
			store.Close()
			return err
		}
		if err := sinks.FromRuntime(rt).Add("pebble", store); err != nil {
			store.Close()
			return err
		}

		logger := rt.Logger("Pebble")
		logger.Info("call log archive opened", logging.Field{Key: "dir", Value: opts.DataDir})
		rt.Lifecycle.OnStop(func(ctx context.Context) error {
			logger.Info("closing call log archive")
			return store.Close()
		})
		return nil
	}
}
