package control

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowctl/engine/pkg/types"
)

func TestRunForEach_AggregatesResults(t *testing.T) {
	parent := types.NewTemplateContext(map[string]any{"items": []any{"a", "b", "c"}})
	spec := &types.ForEachSpec{Items: "{{input.items}}"}

	summary, err := RunForEach(context.Background(), spec, parent, func(_ context.Context, itemCtx *types.TemplateContext, index int) *types.TaskExecutionResult {
		item := itemCtx.Input["item"].(string)
		return &types.TaskExecutionResult{TaskID: fmt.Sprintf("item-%d", index), Success: item != "b"}
	})

	require.NoError(t, err)
	assert.Equal(t, 3, summary.ItemCount)
	assert.Equal(t, 2, summary.SuccessCount)
	assert.Equal(t, 1, summary.FailureCount)
}

func TestRunForEach_IterationVariablesInjected(t *testing.T) {
	parent := types.NewTemplateContext(map[string]any{"items": []any{float64(10), float64(20)}})
	spec := &types.ForEachSpec{Items: "{{input.items}}", ItemVar: "n", IndexVar: "i"}

	seen := make([]float64, 2)
	_, err := RunForEach(context.Background(), spec, parent, func(_ context.Context, itemCtx *types.TemplateContext, index int) *types.TaskExecutionResult {
		seen[index] = itemCtx.Input["n"].(float64)
		assert.Equal(t, index, itemCtx.Input["i"])
		return &types.TaskExecutionResult{Success: true}
	})

	require.NoError(t, err)
	assert.Equal(t, []float64{10, 20}, seen)
}

func TestRunForEach_BoundedConcurrency(t *testing.T) {
	parent := types.NewTemplateContext(map[string]any{"items": []any{"a", "b", "c", "d", "e"}})
	spec := &types.ForEachSpec{Items: "{{input.items}}", MaxConcurrency: 2}

	var inFlight, maxInFlight int64
	_, err := RunForEach(context.Background(), spec, parent, func(_ context.Context, _ *types.TemplateContext, _ int) *types.TaskExecutionResult {
		n := atomic.AddInt64(&inFlight, 1)
		for {
			cur := atomic.LoadInt64(&maxInFlight)
			if n <= cur || atomic.CompareAndSwapInt64(&maxInFlight, cur, n) {
				break
			}
		}
		atomic.AddInt64(&inFlight, -1)
		return &types.TaskExecutionResult{Success: true}
	})

	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt64(&maxInFlight), int64(2))
}

func TestRunForEach_SharesParentTaskOutputs(t *testing.T) {
	parent := types.NewTemplateContext(map[string]any{"items": []any{"x"}})
	parent.SetOutput("upstream", map[string]any{"value": "seen"})
	spec := &types.ForEachSpec{Items: "{{input.items}}"}

	var observed string
	_, err := RunForEach(context.Background(), spec, parent, func(_ context.Context, itemCtx *types.TemplateContext, _ int) *types.TaskExecutionResult {
		out, ok := itemCtx.GetOutput("upstream")
		if ok {
			observed = out["value"].(string)
		}
		return &types.TaskExecutionResult{Success: true}
	})

	require.NoError(t, err)
	assert.Equal(t, "seen", observed)
}
