// ABOUTME: Circuit-breaker decorator for the HTTP task executor
// ABOUTME: Gates the retry-wrapped base executor per taskRef, inside the cache decorator (§9)

package http

import (
	"context"
	"time"

	"github.com/flowctl/engine/internal/breaker"
	"github.com/flowctl/engine/pkg/types"
)

// BreakerExecutor wraps a base types.TaskExecutor with a per-taskRef
// circuit breaker (§4.4). When the breaker is open, the call is rejected
// without attempting the wrapped executor (including its internal
// retries).
type BreakerExecutor struct {
	Inner    types.TaskExecutor
	Registry *breaker.Registry
}

// NewBreakerExecutor wraps inner with circuit-breaker protection.
func NewBreakerExecutor(inner types.TaskExecutor, registry *breaker.Registry) *BreakerExecutor {
	return &BreakerExecutor{Inner: inner, Registry: registry}
}

func (b *BreakerExecutor) Execute(ctx context.Context, step *types.TaskStep, resource *types.TaskResource, tctx *types.TemplateContext) *types.TaskExecutionResult {
	taskRef := step.TaskRef
	var cfgOverride *breaker.Config
	if step.CircuitBreaker != nil {
		c := breaker.FromConfig(step.CircuitBreaker)
		cfgOverride = &c
	}
	br := b.Registry.Get(taskRef, cfgOverride)

	permit, err := br.Allow(taskRef)
	if err != nil {
		now := time.Now()
		return &types.TaskExecutionResult{
			TaskID:      step.ID,
			Success:     false,
			Errors:      []string{err.Error()},
			StartedAt:   now,
			CompletedAt: now,
			ErrorInfo: &types.TaskErrorInfo{
				ErrorType:     types.ErrConfiguration,
				ErrorMessage:  err.Error(),
				TaskStartedAt: now,
			},
		}
	}

	result := b.Inner.Execute(ctx, step, resource, tctx)
	if result.Success {
		permit.Success()
	} else {
		permit.Failure()
	}
	return result
}
