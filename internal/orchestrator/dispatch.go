// ABOUTME: Per-task dispatch: condition/switch gating, input merge, forEach fan-out,
// ABOUTME: and routing to the http/transform/sub-workflow executor (§4.11 step 3.c)

package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/flowctl/engine/internal/control"
	"github.com/flowctl/engine/internal/subworkflow"
	"github.com/flowctl/engine/internal/template"
	"github.com/flowctl/engine/pkg/types"
)

// runStep evaluates condition/switch, merges input, and dispatches step to
// its effective executor, fanning out over forEach when present.
func (o *Orchestrator) runStep(ctx context.Context, step *types.TaskStep, workflow *types.WorkflowResource, namespace string, tctx *types.TemplateContext, stack *types.WorkflowCallStack) *types.TaskExecutionResult {
	startedAt := time.Now()

	if step.Condition != nil {
		cond := control.EvaluateCondition(step.Condition, tctx)
		if cond.Error != nil {
			return taskFail(step.ID, startedAt, cond.Error.Error())
		}
		if !cond.ShouldExecute {
			return skippedResult(step.ID, fmt.Sprintf("condition %q evaluated to false", cond.EvaluatedExpression))
		}
	}

	effectiveRef := step.TaskRef
	if step.Switch != nil {
		sw := control.EvaluateSwitch(step.Switch, tctx)
		if sw.Error != nil {
			return taskFail(step.ID, startedAt, sw.Error.Error())
		}
		effectiveRef = sw.TaskRef
	}

	if step.Target() == types.TargetWorkflow {
		return o.dispatchWorkflow(ctx, step, namespace, tctx, stack)
	}

	mergedTctx, err := mergeInput(step, tctx)
	if err != nil {
		return taskFail(step.ID, startedAt, err.Error())
	}

	effectiveStep := *step
	effectiveStep.TaskRef = effectiveRef

	resource, ok := o.TaskCatalog.Get(namespace, effectiveRef, "")
	if !ok {
		return taskFail(step.ID, startedAt, fmt.Sprintf("task reference %q not found", effectiveRef))
	}

	if step.ForEach != nil {
		return o.dispatchForEach(ctx, &effectiveStep, resource, mergedTctx)
	}

	return o.dispatchSingle(ctx, &effectiveStep, resource, mergedTctx)
}

func (o *Orchestrator) dispatchSingle(ctx context.Context, step *types.TaskStep, resource *types.TaskResource, tctx *types.TemplateContext) *types.TaskExecutionResult {
	switch resource.Spec.EffectiveType() {
	case types.TaskKindTransform:
		return o.transformExec.Execute(ctx, step, resource, tctx)
	default:
		return o.httpExecutor.Execute(ctx, step, resource, tctx)
	}
}

func (o *Orchestrator) dispatchForEach(ctx context.Context, step *types.TaskStep, resource *types.TaskResource, tctx *types.TemplateContext) *types.TaskExecutionResult {
	startedAt := time.Now()
	summary, err := control.RunForEach(ctx, step.ForEach, tctx, func(itemCtx context.Context, c *types.TemplateContext, index int) *types.TaskExecutionResult {
		return o.dispatchSingle(itemCtx, step, resource, c)
	})
	if err != nil {
		return taskFail(step.ID, startedAt, err.Error())
	}

	completedAt := time.Now()
	return &types.TaskExecutionResult{
		TaskID:  step.ID,
		Success: summary.FailureCount == 0,
		Output: map[string]any{
			"results":      summary.Results,
			"itemCount":    summary.ItemCount,
			"successCount": summary.SuccessCount,
			"failureCount": summary.FailureCount,
		},
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		Duration:    completedAt.Sub(startedAt),
	}
}

func (o *Orchestrator) dispatchWorkflow(ctx context.Context, step *types.TaskStep, namespace string, tctx *types.TemplateContext, stack *types.WorkflowCallStack) *types.TaskExecutionResult {
	ex := &subworkflow.Executor{
		Catalog:   o.WorkflowCatalog,
		Runner:    o,
		Logger:    o.Logger,
		Namespace: namespace,
		Stack:     stack,
	}
	return ex.Execute(ctx, step, nil, tctx)
}

// mergeInput implements §4.11's input-merging rule: start from the current
// input, resolve each step.input[key] template, JSON-reparse if structured,
// and return a new context sharing the parent's task outputs.
func mergeInput(step *types.TaskStep, tctx *types.TemplateContext) (*types.TemplateContext, error) {
	merged := make(map[string]any, len(tctx.Input)+len(step.Input))
	for k, v := range tctx.Input {
		merged[k] = v
	}
	for key, expr := range step.Input {
		rendered, err := template.EvaluateString(expr, tctx)
		if err != nil {
			return nil, fmt.Errorf("resolving input %q: %w", key, err)
		}
		merged[key] = template.ReparseIfStructured(rendered)
	}
	return &types.TemplateContext{Input: merged, Outputs: tctx.Outputs}, nil
}

func taskFail(taskID string, startedAt time.Time, message string) *types.TaskExecutionResult {
	completedAt := time.Now()
	return &types.TaskExecutionResult{
		TaskID:      taskID,
		Success:     false,
		Errors:      []string{message},
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		Duration:    completedAt.Sub(startedAt),
		ErrorInfo: &types.TaskErrorInfo{
			ErrorType:            types.ErrConfiguration,
			ErrorMessage:         message,
			TaskStartedAt:        startedAt,
			DurationUntilErrorMs: completedAt.Sub(startedAt).Milliseconds(),
		},
	}
}
