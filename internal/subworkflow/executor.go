// ABOUTME: Sub-workflow task executor implementing types.TaskExecutor (§4.9)

package subworkflow

import (
	"context"
	"fmt"
	"time"

	"github.com/flowctl/engine/internal/template"
	"github.com/flowctl/engine/pkg/types"
)

// Runner invokes a workflow end-to-end. The orchestrator implements this so
// a sub-workflow step can recurse back into wave-based execution without
// this package importing the orchestrator (it's the other way around: the
// orchestrator imports subworkflow and passes itself in as a Runner).
type Runner interface {
	Execute(ctx context.Context, workflow *types.WorkflowResource, namespace string, input map[string]any, stack *types.WorkflowCallStack) *types.WorkflowExecutionResult
}

// Executor resolves workflowRef steps against a WorkflowCatalog and invokes
// them through a Runner, isolating the child's TemplateContext and guarding
// against cycles and unbounded recursion via a shared WorkflowCallStack.
type Executor struct {
	Catalog types.WorkflowCatalog
	Runner  Runner
	Logger  types.Logger

	// Namespace is the namespace the parent workflow was resolved from; it
	// is the default namespace for unqualified child refs.
	Namespace string

	// Stack is the call stack shared across one top-level Execute call. It
	// must be non-nil; the orchestrator seeds it with the root workflow name.
	Stack *types.WorkflowCallStack
}

// Execute implements types.TaskExecutor for workflowRef-targeted steps.
func (e *Executor) Execute(ctx context.Context, step *types.TaskStep, _ *types.TaskResource, tctx *types.TemplateContext) *types.TaskExecutionResult {
	startedAt := time.Now()
	ref := ParseRef(step.WorkflowRef)

	workflow, ok := Resolve(e.Catalog, ref, e.Namespace)
	if !ok {
		return fail(step.ID, startedAt, fmt.Sprintf("workflow reference %q not found", step.WorkflowRef))
	}

	// Step 1: resolve each input template against the parent context; the
	// child receives only these resolved values, never the parent's task
	// outputs.
	childInput, err := resolveInputs(step.Input, tctx)
	if err != nil {
		return fail(step.ID, startedAt, err.Error())
	}

	childName := workflow.Name
	if ref.Namespace != "" {
		childName = ref.Namespace + "/" + childName
	}

	// Step 2: cycle and depth guard.
	if e.Stack.Contains(childName) {
		return fail(step.ID, startedAt, fmt.Sprintf("workflow cycle detected: %s", e.Stack.Path(childName)))
	}
	if !e.Stack.CanPush() {
		return fail(step.ID, startedAt, fmt.Sprintf("maximum sub-workflow depth (%d) exceeded", e.Stack.MaxDepth))
	}

	runCtx := ctx
	var cancel context.CancelFunc
	timedOut := false
	if step.Timeout != "" {
		d, perr := time.ParseDuration(step.Timeout)
		if perr != nil {
			return fail(step.ID, startedAt, fmt.Sprintf("invalid timeout %q: %v", step.Timeout, perr))
		}
		runCtx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	// Step 3: push, invoke, always pop.
	e.Stack.Push(childName)
	childResult := e.Runner.Execute(runCtx, workflow, ref.Namespace, childInput, e.Stack)
	e.Stack.Pop()

	if runCtx.Err() == context.DeadlineExceeded {
		timedOut = true
	}

	// Step 4: convert the child WorkflowExecutionResult into a task result.
	completedAt := time.Now()
	result := &types.TaskExecutionResult{
		TaskID:      step.ID,
		Success:     childResult.Success,
		Output:      childResult.Output,
		Errors:      childResult.Errors,
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		Duration:    completedAt.Sub(startedAt),
	}

	if !childResult.Success {
		errKind := types.ErrUnknown
		message := fmt.Sprintf("sub-workflow %q failed", childName)
		if timedOut {
			errKind = types.ErrTimeout
			message = fmt.Sprintf("sub-workflow %q timed out after %s", childName, step.Timeout)
		} else if ctx.Err() == context.Canceled {
			message = fmt.Sprintf("sub-workflow %q canceled by parent", childName)
		}
		result.ErrorInfo = &types.TaskErrorInfo{
			ErrorType:            errKind,
			ErrorMessage:         message,
			TaskStartedAt:        startedAt,
			DurationUntilErrorMs: completedAt.Sub(startedAt).Milliseconds(),
		}
	}

	return result
}

// resolveInputs renders every template string in raw against the parent
// context and returns a fresh map holding only resolved values — the child
// workflow's input never sees the parent's task outputs.
func resolveInputs(raw map[string]string, tctx *types.TemplateContext) (map[string]any, error) {
	resolved := make(map[string]any, len(raw))
	for key, expr := range raw {
		rendered, err := template.EvaluateString(expr, tctx)
		if err != nil {
			return nil, fmt.Errorf("resolving input %q: %w", key, err)
		}
		resolved[key] = template.ReparseIfStructured(rendered)
	}
	return resolved, nil
}

func fail(taskID string, startedAt time.Time, message string) *types.TaskExecutionResult {
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
