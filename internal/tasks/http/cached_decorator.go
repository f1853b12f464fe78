// ABOUTME: Cached HTTP decorator implementing §4.7's standard and stale-while-revalidate paths
// ABOUTME: The outermost layer of the cache(breaker(retry(base))) composition described in §9

package http

import (
	"context"
	"strings"
	"time"

	"github.com/flowctl/engine/internal/cache"
	"github.com/flowctl/engine/internal/template"
	"github.com/flowctl/engine/pkg/types"
)

var defaultCacheableMethods = map[string]bool{"GET": true}

// CachedExecutor wraps a base types.TaskExecutor (typically a
// BreakerExecutor wrapping an Executor) with the task cache.
type CachedExecutor struct {
	Inner  types.TaskExecutor
	Store  cache.Store
	Logger types.Logger
}

// NewCachedExecutor wraps inner with caching.
func NewCachedExecutor(inner types.TaskExecutor, store cache.Store, logger types.Logger) *CachedExecutor {
	return &CachedExecutor{Inner: inner, Store: store, Logger: logger}
}

func (c *CachedExecutor) Execute(ctx context.Context, step *types.TaskStep, resource *types.TaskResource, tctx *types.TemplateContext) *types.TaskExecutionResult {
	cfg := step.Cache
	if cfg == nil || !cfg.Enabled {
		return c.Inner.Execute(ctx, step, resource, tctx)
	}

	method := strings.ToUpper(resource.Spec.HTTP.Method)
	if method == "" {
		method = "GET"
	}
	cacheable := defaultCacheableMethods
	if len(cfg.Methods) > 0 {
		cacheable = map[string]bool{}
		for _, m := range cfg.Methods {
			cacheable[strings.ToUpper(m)] = true
		}
	}
	if !cacheable[method] {
		return c.Inner.Execute(ctx, step, resource, tctx)
	}

	if cfg.BypassWhen != "" && c.bypasses(cfg.BypassWhen, tctx) {
		return c.Inner.Execute(ctx, step, resource, tctx)
	}

	url, err := template.EvaluateString(resource.Spec.HTTP.URL, tctx)
	if err != nil {
		return c.Inner.Execute(ctx, step, resource, tctx)
	}
	body, _ := template.EvaluateString(resource.Spec.HTTP.Body, tctx)
	key := cache.GenerateCacheKey(step.TaskRef, method, url, body)

	if cfg.StaleWhileRevalidate {
		return c.staleWhileRevalidate(ctx, step, resource, tctx, key, cfg)
	}
	return c.standard(ctx, step, resource, tctx, key, cfg)
}

func (c *CachedExecutor) standard(ctx context.Context, step *types.TaskStep, resource *types.TaskResource, tctx *types.TemplateContext, key string, cfg *types.CacheConfig) *types.TaskExecutionResult {
	if cached, hit, _ := c.Store.Get(ctx, key); hit {
		return cached
	}

	result := c.Inner.Execute(ctx, step, resource, tctx)
	if !cfg.CacheOnlySuccess || result.Success {
		_ = c.Store.Set(ctx, key, cache.Entry{
			Result:       result,
			CreatedAtUtc: time.Now(),
			TTL:          cfg.TTL,
			StaleTTL:     staleTTLOrTTL(cfg),
		})
	}
	return result
}

func (c *CachedExecutor) staleWhileRevalidate(ctx context.Context, step *types.TaskStep, resource *types.TaskResource, tctx *types.TemplateContext, key string, cfg *types.CacheConfig) *types.TaskExecutionResult {
	meta, _ := c.Store.GetWithMetadata(ctx, key)
	if meta.Entry == nil || meta.IsBeyondStaleTTL {
		result := c.Inner.Execute(ctx, step, resource, tctx)
		_ = c.Store.Set(ctx, key, cache.Entry{
			Result:       result,
			CreatedAtUtc: time.Now(),
			TTL:          cfg.TTL,
			StaleTTL:     staleTTLOrTTL(cfg),
		})
		return result
	}
	if !meta.IsStale {
		return meta.Entry.Result
	}

	// Stale but not beyond-stale: return cached, refresh in the background.
	// Background failures are logged, never surfaced (§7).
	go func() {
		bgCtx := context.Background()
		result := c.Inner.Execute(bgCtx, step, resource, tctx)
		if err := c.Store.Set(bgCtx, key, cache.Entry{
			Result:       result,
			CreatedAtUtc: time.Now(),
			TTL:          cfg.TTL,
			StaleTTL:     staleTTLOrTTL(cfg),
		}); err != nil && c.Logger != nil {
			c.Logger.Warn().Str("key", key).Err(err).Msg("background cache refresh failed to store result")
		}
	}()
	return meta.Entry.Result
}

func staleTTLOrTTL(cfg *types.CacheConfig) time.Duration {
	if cfg.StaleTTL >= cfg.TTL {
		return cfg.StaleTTL
	}
	return cfg.TTL
}

// bypasses resolves bypassWhen with the full template grammar ({{input.X}}
// and {{tasks.X.output.Y}}) and tests the result for truthiness; a string
// with no markers is tested as a literal. A resolution error never bypasses.
func (c *CachedExecutor) bypasses(expr string, tctx *types.TemplateContext) bool {
	resolved, err := template.EvaluateString(expr, tctx)
	if err != nil {
		return false
	}
	return template.Truthy(resolved)
}
