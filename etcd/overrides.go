package etcd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/gocrud/calllog/hosting"
	"github.com/gocrud/calllog/interception"
	"github.com/gocrud/calllog/logging"
)

// DefaultOverridePrefix 覆盖键的默认前缀
const DefaultOverridePrefix = "/calllog/overrides/"

var errWatchClosed = errors.New("etcd: watch channel closed")

// OverrideWatcher 把 etcd 前缀下的键同步为运行时覆盖
//
//	<prefix>method/OrderService.ProcessOrder = both
//	<prefix>type/AuditService = none
//
// 启动时整体加载一次，之后按修订号增量监听；断开后重新整体加载。
type OverrideWatcher struct {
	*hosting.BackgroundService

	kv        clientv3.KV
	watcher   clientv3.Watcher
	prefix    string
	overrides *interception.Overrides
	retry     time.Duration
}

// NewOverrideWatcher 创建监听服务，prefix 为空时使用 DefaultOverridePrefix
func NewOverrideWatcher(client *clientv3.Client, prefix string, overrides *interception.Overrides, logger logging.Logger) *OverrideWatcher {
	prefix = OverridePrefix(prefix)
	return &OverrideWatcher{
		BackgroundService: hosting.NewBackgroundService("OverrideWatcher", logger),
		kv:                client,
		watcher:           client,
		prefix:            prefix,
		overrides:         overrides,
		retry:             time.Second,
	}
}

// Prefix 监听的键前缀
func (w *OverrideWatcher) Prefix() string {
	return w.prefix
}

func (w *OverrideWatcher) Start(ctx context.Context) error {
	defer w.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-w.StopChan():
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		rev, err := w.load(ctx)
		if err == nil {
			err = w.watch(ctx, rev+1)
		}
		if ctx.Err() != nil {
			return nil
		}
		w.Logger().Warn("override sync interrupted, retrying",
			logging.Field{Key: "prefix", Value: w.prefix},
			logging.Field{Key: "error", Value: err.Error()})

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(w.retry):
		}
	}
}

func (w *OverrideWatcher) load(ctx context.Context) (int64, error) {
	resp, err := w.kv.Get(ctx, w.prefix, clientv3.WithPrefix())
	if err != nil {
		return 0, err
	}

	methods := map[string]interception.OverrideMode{}
	types := map[string]interception.OverrideMode{}
	for _, kv := range resp.Kvs {
		k, err := parseOverride(w.prefix, string(kv.Key), string(kv.Value))
		if err != nil {
			w.Logger().Warn("ignoring invalid override", logging.Field{Key: "error", Value: err.Error()})
			continue
		}
		if k.method.MethodName != "" {
			methods[k.method.Key()] = k.mode
		} else {
			types[k.typeName] = k.mode
		}
	}
	w.overrides.Replace(methods, types)
	w.Logger().Info("overrides loaded",
		logging.Field{Key: "methods", Value: len(methods)},
		logging.Field{Key: "types", Value: len(types)})
	return resp.Header.Revision, nil
}

func (w *OverrideWatcher) watch(ctx context.Context, rev int64) error {
	ch := w.watcher.Watch(clientv3.WithRequireLeader(ctx), w.prefix, clientv3.WithPrefix(), clientv3.WithRev(rev))
	for resp := range ch {
		if err := resp.Err(); err != nil {
			return err
		}
		for _, ev := range resp.Events {
			if err := w.apply(ev.Type == clientv3.EventTypeDelete, string(ev.Kv.Key), string(ev.Kv.Value)); err != nil {
				w.Logger().Warn("ignoring invalid override", logging.Field{Key: "error", Value: err.Error()})
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return errWatchClosed
}

// apply 应用一次变更
func (w *OverrideWatcher) apply(deleted bool, key, value string) error {
	if deleted {
		value = "none"
	}
	k, err := parseOverride(w.prefix, key, value)
	if err != nil {
		return err
	}
	switch {
	case deleted && k.method.MethodName != "":
		w.overrides.RemoveMethod(k.method)
	case deleted:
		w.overrides.RemoveType(k.typeName)
	case k.method.MethodName != "":
		w.overrides.ForMethod(k.method, k.mode)
	default:
		w.overrides.ForType(k.typeName, k.mode)
	}
	return nil
}

// OverridePrefix 规范化覆盖键前缀，空前缀使用 DefaultOverridePrefix
func OverridePrefix(prefix string) string {
	if prefix == "" {
		prefix = DefaultOverridePrefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix
}

// MethodOverrideKey 方法级覆盖的键
func MethodOverrideKey(prefix string, id interception.MethodIdentity) string {
	return OverridePrefix(prefix) + "method/" + id.Key()
}

// TypeOverrideKey 类型级覆盖的键
func TypeOverrideKey(prefix, typeName string) string {
	return OverridePrefix(prefix) + "type/" + typeName
}

type overrideKey struct {
	method   interception.MethodIdentity
	typeName string
	mode     interception.OverrideMode
}

func parseOverride(prefix, key, value string) (overrideKey, error) {
	rest, ok := strings.CutPrefix(key, prefix)
	if !ok {
		return overrideKey{}, fmt.Errorf("key %q outside prefix %q", key, prefix)
	}
	mode, err := interception.ParseOverrideMode(value)
	if err != nil {
		return overrideKey{}, fmt.Errorf("key %q: %w", key, err)
	}

	kind, name, _ := strings.Cut(rest, "/")
	switch kind {
	case "method":
		i := strings.LastIndexByte(name, '.')
		if i <= 0 || i == len(name)-1 {
			return overrideKey{}, fmt.Errorf("key %q: method must be Type.Method", key)
		}
		return overrideKey{method: interception.NewMethod(name[:i], name[i+1:], ""), mode: mode}, nil
	case "type":
		if name == "" {
			return overrideKey{}, fmt.Errorf("key %q: empty type name", key)
		}
		return overrideKey{typeName: name, mode: mode}, nil
	}
	return overrideKey{}, fmt.Errorf("key %q: expected method/ or type/", key)
}
