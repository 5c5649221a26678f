package web

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/gocrud/calllog/backlog"
	"github.com/gocrud/calllog/cron"
	"github.com/gocrud/calllog/interception"
	"github.com/gocrud/calllog/processing"
	"github.com/gocrud/calllog/settings"
	"github.com/gocrud/calllog/sinks"
)

// DiagnosticsPrefix 诊断路由前缀
const DiagnosticsPrefix = "/calllog"

const defaultRecordLimit = 100

// Diagnostics 调用日志诊断接口
// 所有依赖均为可选，缺失的部分在响应中省略
type Diagnostics struct {
	Interceptor *interception.Interceptor            `di:"?"`
	Cache       *interception.DecisionCache          `di:"?"`
	Settings    *settings.Provider                   `di:"?"`
	Queue       backlog.BackgroundLog                `di:"?"`
	Processor   *processing.Processor                `di:"?"`
	Consumer    *processing.BackgroundLoggingService `di:"?"`
	Sinks       *sinks.Registry                      `di:"?"`
	Records     *sinks.MemorySink                    `di:"?"`
	Scheduler   *cron.Scheduler                      `di:"?"`
}

// ConsumerStats 消费者统计
type ConsumerStats struct {
	Consumed int64 `json:"consumed"`
	Panics   int64 `json:"panics"`
}

// StatsResponse GET /calllog/stats
type StatsResponse struct {
	Interceptor *interception.InterceptorStats `json:"interceptor,omitempty"`
	Cache       *interception.CacheStats       `json:"cache,omitempty"`
	Queue       *backlog.Stats                 `json:"queue,omitempty"`
	Processor   *processing.Stats              `json:"processor,omitempty"`
	Consumer    *ConsumerStats                 `json:"consumer,omitempty"`
}

// SettingsResponse GET /calllog/settings
type SettingsResponse struct {
	Version          uint64              `json:"version"`
	Enabled          bool                `json:"enabled"`
	Mode             string              `json:"mode"`
	Capacity         int                 `json:"capacity"`
	DrainTimeout     string              `json:"drainTimeout"`
	Level            string              `json:"level"`
	ErrorLevel       string              `json:"errorLevel"`
	DefaultFormatter string              `json:"defaultFormatter"`
	DefaultTarget    string              `json:"defaultTarget,omitempty"`
	EnableFallback   bool                `json:"enableFallback"`
	Filter           string              `json:"filter,omitempty"`
	Templates        []string            `json:"templates"`
	ExactRules       int                 `json:"exactRules"`
	WildcardRules    int                 `json:"wildcardRules"`
	Sinks            []string            `json:"sinks,omitempty"`
	Routes           map[string][]string `json:"routes,omitempty"`
}

// OverridesResponse GET /calllog/overrides
type OverridesResponse struct {
	Methods map[string]string `json:"methods"`
	Types   map[string]string `json:"types"`
}

type overrideRequest struct {
	Mode string `json:"mode" binding:"required"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// MountRoutes 注册诊断路由
func (d *Diagnostics) MountRoutes(router gin.IRouter) {
	g := router.Group(DiagnosticsPrefix)
	g.GET("/stats", d.stats)
	g.GET("/settings", d.settings)
	g.GET("/records", d.records)

	g.GET("/overrides", d.overrides)
	g.PUT("/overrides/methods/:key", d.putMethodOverride)
	g.DELETE("/overrides/methods/:key", d.deleteMethodOverride)
	g.PUT("/overrides/types/:type", d.putTypeOverride)
	g.DELETE("/overrides/types/:type", d.deleteTypeOverride)

	g.GET("/jobs", d.jobs)
	g.POST("/jobs/:name/run", d.runJob)
}

func (d *Diagnostics) stats(c *gin.Context) {
	var resp StatsResponse
	if d.Interceptor != nil {
		s := d.Interceptor.Stats()
		resp.Interceptor = &s
	}
	if d.Cache != nil {
		s := d.Cache.Stats()
		resp.Cache = &s
	}
	if d.Queue != nil {
		s := d.Queue.Stats()
		resp.Queue = &s
	}
	if d.Processor != nil {
		s := d.Processor.Stats()
		resp.Processor = &s
	}
	if d.Consumer != nil {
		resp.Consumer = &ConsumerStats{Consumed: d.Consumer.Consumed(), Panics: d.Consumer.Panics()}
	}
	c.JSON(http.StatusOK, resp)
}

func (d *Diagnostics) settings(c *gin.Context) {
	if d.Settings == nil {
		c.JSON(http.StatusNotFound, errorResponse{Error: "settings unavailable"})
		return
	}
	s := d.Settings.Current()
	exact, wildcard := s.RuleCount()
	resp := SettingsResponse{
		Version:          s.Version,
		Enabled:          s.Enabled,
		Mode:             s.Mode,
		Capacity:         s.Capacity,
		DrainTimeout:     s.DrainTimeout.String(),
		Level:            s.Level.String(),
		ErrorLevel:       s.ErrorLevel.String(),
		DefaultFormatter: s.DefaultFormatter,
		DefaultTarget:    s.DefaultTarget,
		EnableFallback:   s.EnableFallback,
		Filter:           s.Filter,
		Templates:        s.TemplateNames(),
		ExactRules:       exact,
		WildcardRules:    wildcard,
	}
	if d.Sinks != nil {
		resp.Sinks = d.Sinks.Names()
		resp.Routes = d.Sinks.Routes()
	}
	c.JSON(http.StatusOK, resp)
}

// records 返回最近的记录，最新的在前
// 可按 destination 过滤，limit 默认 100
func (d *Diagnostics) records(c *gin.Context) {
	if d.Records == nil {
		c.JSON(http.StatusNotFound, errorResponse{Error: "record buffer disabled"})
		return
	}
	limit := defaultRecordLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}
	destination := c.Query("destination")

	all := d.Records.Records()
	out := make([]sinks.Record, 0, min(limit, len(all)))
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		if destination != "" && all[i].Destination != destination {
			continue
		}
		out = append(out, all[i])
	}
	c.JSON(http.StatusOK, out)
}

func (d *Diagnostics) overrides(c *gin.Context) {
	ov, ok := d.overrideStore(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, OverridesResponse{
		Methods: modeNames(ov.Methods()),
		Types:   modeNames(ov.Types()),
	})
}

func (d *Diagnostics) putMethodOverride(c *gin.Context) {
	ov, ok := d.overrideStore(c)
	if !ok {
		return
	}
	id, err := parseMethodKey(c.Param("key"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	mode, ok := bindMode(c)
	if !ok {
		return
	}
	ov.ForMethod(id, mode)
	c.Status(http.StatusNoContent)
}

func (d *Diagnostics) deleteMethodOverride(c *gin.Context) {
	ov, ok := d.overrideStore(c)
	if !ok {
		return
	}
	id, err := parseMethodKey(c.Param("key"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	ov.RemoveMethod(id)
	c.Status(http.StatusNoContent)
}

func (d *Diagnostics) putTypeOverride(c *gin.Context) {
	ov, ok := d.overrideStore(c)
	if !ok {
		return
	}
	mode, ok := bindMode(c)
	if !ok {
		return
	}
	ov.ForType(c.Param("type"), mode)
	c.Status(http.StatusNoContent)
}

func (d *Diagnostics) deleteTypeOverride(c *gin.Context) {
	ov, ok := d.overrideStore(c)
	if !ok {
		return
	}
	ov.RemoveType(c.Param("type"))
	c.Status(http.StatusNoContent)
}

func (d *Diagnostics) jobs(c *gin.Context) {
	if d.Scheduler == nil {
		c.JSON(http.StatusOK, []cron.JobInfo{})
		return
	}
	c.JSON(http.StatusOK, d.Scheduler.Jobs())
}

func (d *Diagnostics) runJob(c *gin.Context) {
	if d.Scheduler == nil {
		c.JSON(http.StatusNotFound, errorResponse{Error: "scheduler disabled"})
		return
	}
	err := d.Scheduler.RunNow(c.Param("name"))
	switch {
	case errors.Is(err, cron.ErrUnknownJob):
		c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	default:
		c.Status(http.StatusNoContent)
	}
}

func (d *Diagnostics) overrideStore(c *gin.Context) (*interception.Overrides, bool) {
	if d.Cache == nil {
		c.JSON(http.StatusNotFound, errorResponse{Error: "decision cache unavailable"})
		return nil, false
	}
	return d.Cache.Overrides(), true
}

func bindMode(c *gin.Context) (interception.OverrideMode, bool) {
	var req overrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return 0, false
	}
	mode, err := interception.ParseOverrideMode(req.Mode)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return 0, false
	}
	return mode, true
}

// parseMethodKey 解析 Type.Method，类型名本身可以包含点
func parseMethodKey(key string) (interception.MethodIdentity, error) {
	i := strings.LastIndexByte(key, '.')
	if i <= 0 || i == len(key)-1 {
		return interception.MethodIdentity{}, errors.New("method key must be Type.Method")
	}
	return interception.NewMethod(key[:i], key[i+1:], ""), nil
}

func modeNames(m map[string]interception.OverrideMode) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v.String()
	}
	return out
}
