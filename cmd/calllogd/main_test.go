package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/gocrud/calllog"
	"github.com/gocrud/calllog/cron"
	"github.com/gocrud/calllog/database"
	"github.com/gocrud/calllog/di"
	"github.com/gocrud/calllog/pebblestore"
	"github.com/gocrud/calllog/sinks"
)

func TestServeOptionsWireLocalBackends(t *testing.T) {
	dir := t.TempDir()
	cmd := newServeCmd()
	require.NoError(t, cmd.ParseFlags([]string{
		"--log-level", "warn",
		"--sqlite", filepath.Join(dir, "calls.db"),
		"--data-dir", filepath.Join(dir, "archive"),
		"--fsync", "never",
		"--retention", "24h",
	}))

	opts, err := serveOptions(cmd)
	require.NoError(t, err)
	rt, err := calllog.Bootstrap(opts...)
	require.NoError(t, err)

	_, err = di.Resolve[*pebblestore.Store](rt.Container)
	assert.NoError(t, err)
	_, err = di.Resolve[*database.TableSink](rt.Container)
	assert.NoError(t, err)
	scheduler, err := di.Resolve[*cron.Scheduler](rt.Container)
	require.NoError(t, err)
	require.Len(t, scheduler.Jobs(), 1)
	assert.Equal(t, calllog.RetentionJobName, scheduler.Jobs()[0].Name)

	names := sinks.FromRuntime(rt).Names()
	assert.Contains(t, names, "pebble")
	assert.Contains(t, names, "memory")

	// 已取消的上下文让 Serve 启动后立即关闭
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, calllog.Serve(ctx, rt))
}

func TestServeOptionsRejectBadFlags(t *testing.T) {
	cmd := newServeCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--log-level", "loud"}))
	_, err := serveOptions(cmd)
	assert.Error(t, err)

	cmd = newServeCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--data-dir", t.TempDir(), "--fsync", "sometimes"}))
	_, err = serveOptions(cmd)
	assert.ErrorContains(t, err, "sometimes")
}

func TestArchivePrintsRecords(t *testing.T) {
	dir := t.TempDir()
	store, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways})
	require.NoError(t, err)
	now := time.Now()
	for i, dest := range []string{"orders", "audit", "orders"} {
		require.NoError(t, store.Append(sinks.Record{
			Time:        now.Add(time.Duration(i) * time.Millisecond),
			Level:       "INFO",
			Destination: dest,
			Message:     dest,
			Success:     true,
		}))
	}
	require.NoError(t, store.Close())

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"archive", "orders", "--data-dir", dir})
	require.NoError(t, root.Execute())

	dec := json.NewDecoder(&out)
	var got []sinks.Record
	for dec.More() {
		var r sinks.Record
		require.NoError(t, dec.Decode(&r))
		got = append(got, r)
	}
	require.Len(t, got, 2)
	assert.Equal(t, "orders", got[0].Destination)

	root = newRootCmd()
	root.SetArgs([]string{"archive", "orders"})
	assert.ErrorContains(t, root.Execute(), "--data-dir")
}

func TestOverrideKey(t *testing.T) {
	root := newRootCmd()
	set, _, err := root.Find([]string{"overrides", "set"})
	require.NoError(t, err)
	require.NoError(t, set.ParseFlags([]string{"--prefix", "/svc"}))

	key, err := overrideKey(set, "OrderService.ProcessOrder")
	require.NoError(t, err)
	assert.Equal(t, "/svc/method/OrderService.ProcessOrder", key)

	_, err = overrideKey(set, "OrderService")
	assert.ErrorContains(t, err, "--type")

	require.NoError(t, set.ParseFlags([]string{"--type"}))
	key, err = overrideKey(set, "OrderService")
	require.NoError(t, err)
	assert.Equal(t, "/svc/type/OrderService", key)
}

type fakeKV struct {
	clientv3.KV
	kvs []*mvccpb.KeyValue
}

func (f *fakeKV) Get(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error) {
	return &clientv3.GetResponse{Kvs: f.kvs}, nil
}

func TestListOverrides(t *testing.T) {
	kv := &fakeKV{kvs: []*mvccpb.KeyValue{
		{Key: []byte("/calllog/overrides/method/A.B"), Value: []byte("both")},
		{Key: []byte("/calllog/overrides/type/Audit"), Value: []byte("none")},
	}}
	var out bytes.Buffer
	require.NoError(t, listOverrides(context.Background(), kv, "/calllog/overrides/", &out))
	assert.Equal(t, "method/A.B\tboth\ntype/Audit\tnone\n", out.String())
}
