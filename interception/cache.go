package interception

import (
	"sync"
	"sync/atomic"

	"github.com/gocrud/calllog/settings"
)

type generation struct {
	decisions sync.Map // MethodIdentity -> Decision
	size      atomic.Int64
}

// CacheStats 缓存统计
type CacheStats struct {
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	Size          int64 `json:"size"`
	Invalidations int64 `json:"invalidations"`
}

// DecisionCache 按方法缓存的记录决策
//
// 读取不加锁；未命中时计算并以 LoadOrStore 发布，并发下可能重复计算，结果相同。
// 配置或覆盖变化时 Invalidate 换上一张新表。
type DecisionCache struct {
	settings  *settings.Provider
	overrides *Overrides
	services  *ServiceRegistry

	current       atomic.Pointer[generation]
	hits          atomic.Int64
	misses        atomic.Int64
	invalidations atomic.Int64
}

// NewDecisionCache 创建缓存并订阅配置、覆盖与服务注册的变更
func NewDecisionCache(provider *settings.Provider, overrides *Overrides, services *ServiceRegistry) *DecisionCache {
	if overrides == nil {
		overrides = NewOverrides()
	}
	if services == nil {
		services = NewServiceRegistry()
	}
	c := &DecisionCache{
		settings:  provider,
		overrides: overrides,
		services:  services,
	}
	c.current.Store(&generation{})

	provider.OnChange(func(*settings.Snapshot) { c.Invalidate() })
	overrides.OnChange(c.Invalidate)
	services.OnChange(c.Invalidate)
	return c
}

func (c *DecisionCache) Overrides() *Overrides {
	return c.overrides
}

func (c *DecisionCache) Services() *ServiceRegistry {
	return c.services
}

// GetDecision 返回方法的决策，永不失败
func (c *DecisionCache) GetDecision(id MethodIdentity) Decision {
	// 先取表再读配置：发布方先替换配置再失效缓存，旧表中的结果只会被丢弃
	gen := c.current.Load()
	if d, ok := gen.decisions.Load(id); ok {
		c.hits.Add(1)
		return d.(Decision)
	}
	c.misses.Add(1)

	d := resolve(id, c.settings.Current(), c.overrides.snapshot(), c.services)
	if actual, loaded := gen.decisions.LoadOrStore(id, d); loaded {
		return actual.(Decision)
	}
	gen.size.Add(1)
	return d
}

// Invalidate 丢弃所有缓存的决策
func (c *DecisionCache) Invalidate() {
	c.current.Store(&generation{})
	c.invalidations.Add(1)
}

// Stats 返回统计信息
func (c *DecisionCache) Stats() CacheStats {
	return CacheStats{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Size:          c.current.Load().size.Load(),
		Invalidations: c.invalidations.Load(),
	}
}

// resolve 按优先级计算决策:
// 方法覆盖 > 类型覆盖 > 排除 > 精确规则 > 通配符规则 > 接口服务默认记录 > 不记录
func resolve(id MethodIdentity, s *settings.Snapshot, ov *overrideSet, services *ServiceRegistry) Decision {
	if ov != nil {
		if m, ok := ov.methods[id.Key()]; ok {
			return fromOverride(m, SourceMethodOverride)
		}
		if m, ok := ov.types[id.TypeName]; ok {
			return fromOverride(m, SourceTypeOverride)
		}
	}
	if s.Excluded(id.TypeName, id.MethodName) {
		return Decision{Source: SourceExclusion}
	}
	if r, ok := s.ExactRule(id.TypeName, id.MethodName); ok {
		return fromRule(r, SourceExactRule)
	}
	if r, ok := s.WildcardRule(id.TypeName, id.MethodName); ok {
		return fromRule(r, SourceWildcardRule)
	}
	if services != nil && services.Contains(id.TypeName) {
		return Decision{Log: true, Facets: FacetBoth, Source: SourceDefaultService}
	}
	return Decision{Source: SourceDefaultNone}
}
