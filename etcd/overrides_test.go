package etcd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	pb "go.etcd.io/etcd/api/v3/etcdserverpb"
	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/gocrud/calllog/hosting"
	"github.com/gocrud/calllog/interception"
	"github.com/gocrud/calllog/logging"
)

type fakeKV struct {
	clientv3.KV
	kvs []*mvccpb.KeyValue
	rev int64
}

func (f *fakeKV) Get(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error) {
	return &clientv3.GetResponse{
		Header: &pb.ResponseHeader{Revision: f.rev},
		Kvs:    f.kvs,
	}, nil
}

func newTestWatcher(kv clientv3.KV, overrides *interception.Overrides) (*OverrideWatcher, *logging.MemoryLoggerProvider) {
	mem := logging.NewMemoryLoggerProvider()
	lf := logging.NewLoggingBuilder().AddProvider(mem).Build()
	w := &OverrideWatcher{prefix: DefaultOverridePrefix, overrides: overrides, kv: kv}
	w.BackgroundService = hosting.NewBackgroundService("OverrideWatcher", lf.CreateLogger("OverrideWatcher"))
	return w, mem
}

func TestParseOverride(t *testing.T) {
	k, err := parseOverride(DefaultOverridePrefix, DefaultOverridePrefix+"method/OrderService.ProcessOrder", "both")
	require.NoError(t, err)
	assert.Equal(t, "OrderService.ProcessOrder", k.method.Key())
	assert.Equal(t, interception.LogBoth, k.mode)

	k, err = parseOverride(DefaultOverridePrefix, DefaultOverridePrefix+"type/AuditService", "nolog")
	require.NoError(t, err)
	assert.Equal(t, "AuditService", k.typeName)
	assert.Equal(t, interception.NoLog, k.mode)

	bad := []struct{ key, value string }{
		{"/other/method/A.B", "both"},
		{DefaultOverridePrefix + "method/NoDot", "both"},
		{DefaultOverridePrefix + "method/Trailing.", "both"},
		{DefaultOverridePrefix + "type/", "input"},
		{DefaultOverridePrefix + "service/A", "input"},
		{DefaultOverridePrefix + "type/A", "sometimes"},
	}
	for _, tc := range bad {
		_, err := parseOverride(DefaultOverridePrefix, tc.key, tc.value)
		assert.Error(t, err, tc.key)
	}
}

func TestLoadReplacesOverrides(t *testing.T) {
	overrides := interception.NewOverrides()
	overrides.ForType("Stale", interception.LogInput)

	kv := &fakeKV{rev: 42, kvs: []*mvccpb.KeyValue{
		{Key: []byte(DefaultOverridePrefix + "method/OrderService.ProcessOrder"), Value: []byte("output")},
		{Key: []byte(DefaultOverridePrefix + "type/AuditService"), Value: []byte("none")},
		{Key: []byte(DefaultOverridePrefix + "type/Broken"), Value: []byte("???")},
	}}
	w, mem := newTestWatcher(kv, overrides)

	rev, err := w.load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), rev)
	assert.Equal(t, map[string]interception.OverrideMode{"OrderService.ProcessOrder": interception.LogOutput}, overrides.Methods())
	assert.Equal(t, map[string]interception.OverrideMode{"AuditService": interception.NoLog}, overrides.Types())

	var warned bool
	for _, e := range mem.Entries() {
		if e.Message == "ignoring invalid override" {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestApplyEvents(t *testing.T) {
	overrides := interception.NewOverrides()
	w, _ := newTestWatcher(&fakeKV{}, overrides)

	require.NoError(t, w.apply(false, DefaultOverridePrefix+"method/Repo.Save", "input"))
	require.NoError(t, w.apply(false, DefaultOverridePrefix+"type/Repo", "both"))
	assert.Equal(t, interception.LogInput, overrides.Methods()["Repo.Save"])
	assert.Equal(t, interception.LogBoth, overrides.Types()["Repo"])

	// 删除事件不携带值
	require.NoError(t, w.apply(true, DefaultOverridePrefix+"method/Repo.Save", ""))
	require.NoError(t, w.apply(true, DefaultOverridePrefix+"type/Repo", ""))
	assert.Empty(t, overrides.Methods())
	assert.Empty(t, overrides.Types())

	assert.Error(t, w.apply(false, DefaultOverridePrefix+"method/Repo", "both"))
}

func TestBuilderValidation(t *testing.T) {
	factory, err := NewBuilder().Build(nil)
	require.NoError(t, err)
	assert.Nil(t, factory)

	_, err = NewBuilder().
		AddClient("default", nil).
		AddClient("default", nil).
		Build(nil)
	assert.ErrorContains(t, err, "already configured")

	_, err = NewBuilder().
		AddClient("empty", func(o *ClientOptions) { o.Endpoints = nil }).
		Build(nil)
	assert.ErrorContains(t, err, "endpoints are required")

	b := NewBuilder().SyncOverrides(OverrideOptions{Prefix: "/x/"})
	assert.Equal(t, "default", b.overrides.Client)
}

func TestNewOverrideWatcherNormalizesPrefix(t *testing.T) {
	w := NewOverrideWatcher(nil, "/svc/overrides", interception.NewOverrides(), nil)
	assert.Equal(t, "/svc/overrides/", w.Prefix())

	w = NewOverrideWatcher(nil, "", interception.NewOverrides(), nil)
	assert.Equal(t, DefaultOverridePrefix, w.Prefix())
}

func TestOverrideKeysRoundTrip(t *testing.T) {
	id := interception.NewMethod("billing.Invoice", "Send", "")
	key := MethodOverrideKey("/svc", id)
	assert.Equal(t, "/svc/method/billing.Invoice.Send", key)

	k, err := parseOverride("/svc/", key, "output")
	require.NoError(t, err)
	assert.Equal(t, id.Key(), k.method.Key())

	key = TypeOverrideKey("", "AuditService")
	k, err = parseOverride(DefaultOverridePrefix, key, "none")
	require.NoError(t, err)
	assert.Equal(t, "AuditService", k.typeName)
}
