package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gocrud/calllog/backlog"
	"github.com/gocrud/calllog/core"
	"github.com/gocrud/calllog/cron"
	"github.com/gocrud/calllog/formatting"
	"github.com/gocrud/calllog/interception"
	"github.com/gocrud/calllog/logging"
	"github.com/gocrud/calllog/settings"
	"github.com/gocrud/calllog/sinks"
)

type fixture struct {
	diag    *Diagnostics
	queue   *backlog.ChannelLog
	engine  *gin.Engine
	records *sinks.MemorySink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	provider := settings.NewProvider(settings.DefaultOptions(), nil)
	cache := interception.NewDecisionCache(provider, nil, nil)
	queue := backlog.NewChannelLog(16)
	interceptor := interception.NewInterceptor(cache, provider, queue)
	records := sinks.NewMemorySink(10)

	diag := &Diagnostics{
		Interceptor: interceptor,
		Cache:       cache,
		Settings:    provider,
		Queue:       queue,
		Records:     records,
	}
	engine := gin.New()
	engine.Use(CallLogging(func() *interception.Interceptor { return interceptor }))
	diag.MountRoutes(engine)
	return &fixture{diag: diag, queue: queue, engine: engine, records: records}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	return rec
}

func TestRouteMethod(t *testing.T) {
	assert.Equal(t, "GET_calllog_stats", RouteMethod("GET", "/calllog/stats"))
	assert.Equal(t, "PUT_calllog_overrides_types_type", RouteMethod("PUT", "/calllog/overrides/types/:type"))
	assert.Equal(t, "GET_root", RouteMethod("GET", "/"))
	assert.Equal(t, "POST_unmatched", RouteMethod("POST", ""))
}

func TestOverridesRoundTrip(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPut, "/calllog/overrides/methods/OrderService.ProcessOrder", `{"mode":"output"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(t, http.MethodPut, "/calllog/overrides/types/AuditService", `{"mode":"off"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/calllog/overrides", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got OverridesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, map[string]string{"OrderService.ProcessOrder": "output"}, got.Methods)
	assert.Equal(t, map[string]string{"AuditService": "none"}, got.Types)

	d := f.diag.Cache.GetDecision(interception.NewMethod("OrderService", "ProcessOrder", ""))
	assert.True(t, d.Log)
	assert.False(t, d.LogsInput())
	assert.True(t, d.LogsOutput())

	rec = f.do(t, http.MethodDelete, "/calllog/overrides/methods/OrderService.ProcessOrder", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, f.diag.Cache.Overrides().Methods())

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPut, "/calllog/overrides/methods/NoMethod", `{"mode":"both"}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPut, "/calllog/overrides/types/X", `{"mode":"sometimes"}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPut, "/calllog/overrides/types/X", `{}`).Code)
}

func TestRequestsAreLoggedAsCalls(t *testing.T) {
	f := newFixture(t)
	f.diag.Cache.Overrides().ForType(HTTPTypeName, interception.LogBoth)

	rec := f.do(t, http.MethodGet, "/calllog/stats?verbose=1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	entry, ok := f.queue.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, HTTPTypeName, entry.TypeName)
	assert.Equal(t, "GET_calllog_stats", entry.MethodName)
	assert.True(t, entry.Success)
	input, ok := entry.Input.(RequestInput)
	require.True(t, ok, "input is %T", entry.Input)
	assert.Equal(t, "verbose=1", input.Query)
	assert.Equal(t, http.StatusOK, entry.Output.(ResponseOutput).Status)

	// 被 NoLog 覆盖的请求不产生条目
	f.diag.Cache.Overrides().ForMethod(interception.NewMethod(HTTPTypeName, "GET_calllog_stats", ""), interception.NoLog)
	f.do(t, http.MethodGet, "/calllog/stats", "")
	_, ok = f.queue.TryDequeue()
	assert.False(t, ok)
}

func TestFailedRequestIsUnsuccessful(t *testing.T) {
	f := newFixture(t)
	f.diag.Cache.Overrides().ForType(HTTPTypeName, interception.LogBoth)
	f.engine.GET("/boom", func(c *gin.Context) { c.Status(http.StatusBadGateway) })

	f.do(t, http.MethodGet, "/boom", "")
	entry, ok := f.queue.TryDequeue()
	require.True(t, ok)
	assert.False(t, entry.Success)
	assert.Equal(t, http.StatusText(http.StatusBadGateway), entry.ExceptionMessage)
}

func TestStatsAndSettings(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/calllog/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats StatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	require.NotNil(t, stats.Interceptor)
	assert.Equal(t, int64(1), stats.Interceptor.Calls)
	require.NotNil(t, stats.Queue)
	assert.Equal(t, 16, stats.Queue.Capacity)
	assert.Nil(t, stats.Processor)

	rec = f.do(t, http.MethodGet, "/calllog/settings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var s SettingsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
	assert.True(t, s.Enabled)
	assert.Equal(t, settings.ModeQueued, s.Mode)
	assert.Equal(t, "hybrid", s.DefaultFormatter)
	assert.Equal(t, "Information", s.Level)
}

func TestRecords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, dest := range []string{"orders", "audit", "orders"} {
		require.NoError(t, f.records.Write(ctx, formatting.FormattedMessage{Message: dest}, logging.LogLevelInfo, dest))
	}

	rec := f.do(t, http.MethodGet, "/calllog/records?destination=orders&limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got []sinks.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "orders", got[0].Destination)

	rec = f.do(t, http.MethodGet, "/calllog/records", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Len(t, got, 3)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/calllog/records?limit=-1", "").Code)
}

func TestJobs(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/calllog/jobs/purge/run", "").Code)

	ran := 0
	s, err := cron.NewBuilder().AddJob("@hourly", "purge", func() { ran++ }).Build(nil, nil)
	require.NoError(t, err)
	f.diag.Scheduler = s

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodPost, "/calllog/jobs/purge/run", "").Code)
	assert.Equal(t, 1, ran)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/calllog/jobs/other/run", "").Code)

	rec := f.do(t, http.MethodGet, "/calllog/jobs", "")
	var jobs []cron.JobInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jobs))
	require.Len(t, jobs, 1)
	assert.Equal(t, int64(1), jobs[0].Runs)
}

func TestHostServesDiagnostics(t *testing.T) {
	rt := core.NewRuntime()
	require.NoError(t, rt.Apply(
		core.WithLoggerFactory(logging.NewLoggingBuilder().AddProvider(logging.NewMemoryLoggerProvider()).Build()),
		New(WithAddr("127.0.0.1:0"), WithDiagnostics(), WithCallLogging()),
	))
	require.NoError(t, rt.Container.Build())
	require.NoError(t, rt.Start(context.Background()))
	defer rt.Stop(context.Background())

	var host *Host
	require.Eventually(t, func() bool {
		host = core.GetFeature[*Host](rt)
		return host != nil
	}, time.Second, 5*time.Millisecond)

	select {
	case <-host.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("host did not start listening")
	}

	resp, err := http.Get("http://" + host.Address() + "/calllog/jobs")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// 容器中没有 Settings 时返回 404
	resp2, err := http.Get("http://" + host.Address() + "/calllog/settings")
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}
