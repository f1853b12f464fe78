// ABOUTME: Transform task executor implementing types.TaskExecutor
// ABOUTME: Dispatches to the typed pipeline when present, else the legacy single-query form (§4.8)

package transform

import (
	"context"
	"time"

	"github.com/jmespath/go-jmespath"

	"github.com/flowctl/engine/pkg/types"
)

// Executor runs transform-kind tasks: a typed operation pipeline when
// spec.Pipeline is non-empty, otherwise the legacy jsonPath/query form.
// Per §4.8's closing rule, the pipeline wins when both are present.
type Executor struct {
	Logger types.Logger
}

// New builds a transform Executor.
func New(logger types.Logger) *Executor {
	return &Executor{Logger: logger}
}

func (e *Executor) Execute(_ context.Context, step *types.TaskStep, resource *types.TaskResource, tctx *types.TemplateContext) *types.TaskExecutionResult {
	startedAt := time.Now()
	spec := resource.Spec.Transform
	if spec == nil {
		return transformFail(step.ID, startedAt, "task resource has no transform spec")
	}

	if len(spec.Pipeline) > 0 {
		return e.runPipeline(step, spec, tctx, startedAt)
	}
	return e.runLegacy(step, spec, tctx, startedAt)
}

func (e *Executor) runPipeline(step *types.TaskStep, spec *types.TransformSpec, tctx *types.TemplateContext, startedAt time.Time) *types.TaskExecutionResult {
	ops, err := ParsePipeline(spec.Pipeline)
	if err != nil {
		return transformFail(step.ID, startedAt, err.Error())
	}

	elements, err := sourceElements(spec, tctx)
	if err != nil {
		return transformFail(step.ID, startedAt, err.Error())
	}

	result, err := Run(ops, elements, tctx)
	if err != nil {
		return transformFail(step.ID, startedAt, err.Error())
	}

	completedAt := time.Now()
	return &types.TaskExecutionResult{
		TaskID:      step.ID,
		Success:     true,
		Output:      map[string]any{"results": result, "count": len(result)},
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		Duration:    completedAt.Sub(startedAt),
	}
}

func (e *Executor) runLegacy(step *types.TaskStep, spec *types.TransformSpec, tctx *types.TemplateContext, startedAt time.Time) *types.TaskExecutionResult {
	result, err := RunLegacyQuery(spec, tctx.Input)
	if err != nil {
		return transformFail(step.ID, startedAt, err.Error())
	}

	completedAt := time.Now()
	return &types.TaskExecutionResult{
		TaskID:      step.ID,
		Success:     true,
		Output:      map[string]any{"result": result},
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		Duration:    completedAt.Sub(startedAt),
	}
}

// sourceElements resolves the JSON-element sequence a pipeline operates
// over: spec.Input (when set) is a JMESPath query against the step's merged
// input; otherwise the conventional "items" field of that input is used.
func sourceElements(spec *types.TransformSpec, tctx *types.TemplateContext) ([]any, error) {
	doc := tctx.Input

	var v any
	if spec.Input != "" {
		found, err := jmespath.Search(spec.Input, doc)
		if err != nil {
			return nil, err
		}
		v = found
	} else {
		v = doc["items"]
	}

	arr, ok := v.([]any)
	if !ok {
		return nil, types.NewValidationError("transform", "pipeline input did not resolve to a JSON array")
	}
	return arr, nil
}

func transformFail(taskID string, startedAt time.Time, message string) *types.TaskExecutionResult {
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
