// ABOUTME: ForEach fan-out evaluator: bounded-concurrency per-item execution (§4.10)

package control

import (
	"context"
	"fmt"
	"sync"

	"github.com/flowctl/engine/internal/template"
	"github.com/flowctl/engine/pkg/types"
)

// ItemRunner executes one forEach iteration and returns its task result.
type ItemRunner func(ctx context.Context, itemCtx *types.TemplateContext, index int) *types.TaskExecutionResult

// ForEachSummary is the aggregated shape described in §4.11: one task
// result per item, plus counts.
type ForEachSummary struct {
	Results      []*types.TaskExecutionResult
	ItemCount    int
	SuccessCount int
	FailureCount int
}

// RunForEach resolves spec.Items to an array and invokes run once per item,
// bounding concurrency at spec.MaxConcurrency items in flight (0 = unbounded).
// Each item's context shares the parent's task outputs but adds the
// iteration variables (itemVar, indexVar — default "item"/"index") to input.
func RunForEach(ctx context.Context, spec *types.ForEachSpec, parent *types.TemplateContext, run ItemRunner) (*ForEachSummary, error) {
	items, err := resolveItems(spec.Items, parent)
	if err != nil {
		return nil, fmt.Errorf("resolving forEach.items: %w", err)
	}

	itemVar := spec.ItemVar
	if itemVar == "" {
		itemVar = "item"
	}
	indexVar := spec.IndexVar
	if indexVar == "" {
		indexVar = "index"
	}

	results := make([]*types.TaskExecutionResult, len(items))

	var sem chan struct{}
	if spec.MaxConcurrency > 0 {
		sem = make(chan struct{}, spec.MaxConcurrency)
	}

	var wg sync.WaitGroup
	for i, item := range items {
		i, item := i, item
		wg.Add(1)
		go func() {
			defer wg.Done()
			if sem != nil {
				sem <- struct{}{}
				defer func() { <-sem }()
			}
			itemCtx := childContext(parent, itemVar, item, indexVar, i)
			results[i] = run(ctx, itemCtx, i)
		}()
	}
	wg.Wait()

	summary := &ForEachSummary{Results: results, ItemCount: len(items)}
	for _, r := range results {
		if r != nil && r.Success {
			summary.SuccessCount++
		} else {
			summary.FailureCount++
		}
	}
	return summary, nil
}

// childContext builds an isolated per-item context: a copy of the parent's
// input with the iteration variables merged in, sharing the parent's
// task-output map for template lookups like {{tasks.x.output...}}.
func childContext(parent *types.TemplateContext, itemVar string, item any, indexVar string, index int) *types.TemplateContext {
	input := make(map[string]any, len(parent.Input)+2)
	for k, v := range parent.Input {
		input[k] = v
	}
	input[itemVar] = item
	input[indexVar] = index

	return &types.TemplateContext{
		Input:   input,
		Outputs: parent.Outputs,
	}
}

func resolveItems(expr string, tctx *types.TemplateContext) ([]any, error) {
	rendered, err := template.EvaluateString(expr, tctx)
	if err != nil {
		return nil, err
	}
	v := template.ReparseIfStructured(rendered)
	arr, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("forEach.items did not resolve to a JSON array")
	}
	return arr, nil
}
