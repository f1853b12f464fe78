// ABOUTME: Top-level workflow orchestrator: wave loop, concurrency, telemetry, events (§4.11)

package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowctl/engine/internal/breaker"
	"github.com/flowctl/engine/internal/cache"
	"github.com/flowctl/engine/internal/graph"
	"github.com/flowctl/engine/internal/subworkflow"
	"github.com/flowctl/engine/internal/tasks/http"
	"github.com/flowctl/engine/internal/template"
	"github.com/flowctl/engine/internal/transform"
	"github.com/flowctl/engine/pkg/types"
)

// Config holds orchestrator-wide settings (§5 "a single, process-wide
// engine configuration fixes maxConcurrentTasks").
type Config struct {
	MaxConcurrency int
	Logger         types.Logger
	Notifier       types.EventNotifier
	CacheStore     cache.Store
	BreakerConfig  breaker.Config
}

// Orchestrator executes WorkflowResources: it builds the execution graph,
// walks it wave by wave, and dispatches each ready task to the http,
// transform, or sub-workflow executor (§4.11).
type Orchestrator struct {
	TaskCatalog     types.TaskCatalog
	WorkflowCatalog types.WorkflowCatalog
	Logger          types.Logger
	Notifier        types.EventNotifier

	maxConcurrency int
	httpExecutor   types.TaskExecutor
	transformExec  types.TaskExecutor
	breakerReg     *breaker.Registry
}

// New builds an Orchestrator. catalogs may be nil only in tests that never
// dispatch taskRef/workflowRef steps.
func New(taskCatalog types.TaskCatalog, workflowCatalog types.WorkflowCatalog, cfg Config) *Orchestrator {
	maxConcurrency := types.ValidateConcurrency(cfg.MaxConcurrency)

	store := cfg.CacheStore
	if store == nil {
		store = cache.NewMemoryStore(cfg.Logger)
	}
	breakerCfg := cfg.BreakerConfig
	if (breakerCfg == breaker.Config{}) {
		breakerCfg = breaker.DefaultConfig()
	}
	registry := breaker.NewRegistry(breakerCfg)

	base := http.New(cfg.Logger)
	withBreaker := http.NewBreakerExecutor(base, registry)
	withCache := http.NewCachedExecutor(withBreaker, store, cfg.Logger)

	return &Orchestrator{
		TaskCatalog:     taskCatalog,
		WorkflowCatalog: workflowCatalog,
		Logger:          cfg.Logger,
		Notifier:        cfg.Notifier,
		maxConcurrency:  maxConcurrency,
		httpExecutor:    withCache,
		transformExec:   transform.New(cfg.Logger),
		breakerReg:      registry,
	}
}

// Run executes workflow from scratch with the given raw input, seeding a
// fresh WorkflowCallStack with the workflow's own name.
func (o *Orchestrator) Run(ctx context.Context, workflow *types.WorkflowResource, input map[string]any) *types.WorkflowExecutionResult {
	stack := types.NewWorkflowCallStack(0)
	stack.Push(workflow.Name)
	return o.Execute(ctx, workflow, workflow.Namespace, input, stack)
}

// Execute runs workflow under an already-seeded call stack, implementing
// subworkflow.Runner so sub-workflow steps recurse back in here.
func (o *Orchestrator) Execute(ctx context.Context, workflow *types.WorkflowResource, namespace string, input map[string]any, stack *types.WorkflowCallStack) *types.WorkflowExecutionResult {
	executionStart := time.Now()
	executionID := uuid.New().String()
	o.notify(types.Event{Kind: types.EventWorkflowStarted, ExecutionID: executionID, WorkflowName: workflow.Name, At: executionStart})

	g, buildErr := graph.Build(workflow.Spec.Tasks)
	graphBuildDuration := time.Since(executionStart)
	if buildErr != nil {
		return &types.WorkflowExecutionResult{
			ExecutionID:        executionID,
			Success:            false,
			Errors:             []string{buildErr.Error()},
			GraphBuildDuration: graphBuildDuration,
			TotalDuration:      time.Since(executionStart),
		}
	}

	mergedInput := map[string]any{}
	for k, v := range workflow.Spec.Input {
		mergedInput[k] = v
	}
	for k, v := range input {
		mergedInput[k] = v
	}
	tctx := types.NewTemplateContext(mergedInput)

	taskIDs := g.TaskIDs()
	if len(taskIDs) == 0 {
		return &types.WorkflowExecutionResult{
			ExecutionID:        executionID,
			Success:            true,
			Output:             map[string]any{},
			TaskResults:        map[string]*types.TaskExecutionResult{},
			GraphBuildDuration: graphBuildDuration,
			TotalDuration:      time.Since(executionStart),
		}
	}

	waves := g.Waves()
	taskResults := make(map[string]*types.TaskExecutionResult, len(taskIDs))
	completed := map[string]bool{}
	failed := map[string]bool{}

	var waveStarts, waveEnds []time.Time
	var taskExecutionTotal time.Duration

	for _, wave := range waves {
		waveStart := time.Now()
		waveStarts = append(waveStarts, waveStart)

		waveResults := o.runWave(ctx, executionID, wave, g, workflow, namespace, tctx, failed, stack)

		for id, result := range waveResults {
			taskResults[id] = result
			taskExecutionTotal += result.Duration
			if result.Success {
				completed[id] = true
				if !result.WasSkipped {
					tctx.SetOutput(id, result.Output)
				}
				for _, dep := range g.Dependents(id) {
					o.notify(types.Event{Kind: types.EventSignalFlow, ExecutionID: executionID, WorkflowName: workflow.Name, FromTaskID: id, ToTaskID: dep, At: time.Now()})
				}
			} else {
				failed[id] = true
			}
		}
		waveEnds = append(waveEnds, time.Now())
	}

	output := map[string]any{}
	var outputErrs []string
	for key, expr := range workflow.Spec.Output {
		rendered, err := template.EvaluateString(expr, tctx)
		if err != nil {
			outputErrs = append(outputErrs, fmt.Sprintf("output %q: %v", key, err))
			continue
		}
		output[key] = template.ReparseIfStructured(rendered)
	}

	totalDuration := time.Since(executionStart)
	cost := computeOrchestrationCost(executionStart, waveStarts, waveEnds, taskExecutionTotal, totalDuration)

	success := len(outputErrs) == 0
	var errs []string
	errs = append(errs, outputErrs...)
	for id := range failed {
		success = false
		errs = append(errs, fmt.Sprintf("task %q failed", id))
	}

	result := &types.WorkflowExecutionResult{
		ExecutionID:        executionID,
		Success:            success,
		Output:             output,
		TaskResults:        taskResults,
		Errors:             errs,
		TotalDuration:      totalDuration,
		GraphBuildDuration: graphBuildDuration,
		OrchestrationCost:  cost,
	}

	o.notify(types.Event{Kind: types.EventWorkflowCompleted, ExecutionID: executionID, WorkflowName: workflow.Name, At: time.Now()})
	return result
}

// runWave dispatches every task id in wave concurrently, bounding in-flight
// units by a semaphore of maxConcurrency slots created for this call, and
// returns each one's result. A sub-workflow's waves get semaphores of their
// own, so the bound does not span nesting levels.
func (o *Orchestrator) runWave(ctx context.Context, executionID string, wave []string, g *graph.Graph, workflow *types.WorkflowResource, namespace string, tctx *types.TemplateContext, failed map[string]bool, stack *types.WorkflowCallStack) map[string]*types.TaskExecutionResult {
	results := make(map[string]*types.TaskExecutionResult, len(wave))
	var mu sync.Mutex
	var wg sync.WaitGroup

	sem := make(chan struct{}, o.maxConcurrency)

	for _, id := range wave {
		id := id
		wg.Add(1)
		go func() {
			defer wg.Done()

			step, _ := g.Step(id)

			if depFailed := anyDependencyFailed(g, id, failed); depFailed != "" {
				mu.Lock()
				results[id] = dependencySkippedResult(id, fmt.Sprintf("skipped due to failed dependency %q", depFailed))
				mu.Unlock()
				return
			}

			o.notify(types.Event{Kind: types.EventTaskStarted, ExecutionID: executionID, WorkflowName: workflow.Name, TaskID: id, At: time.Now()})

			sem <- struct{}{}
			result := o.runStep(ctx, step, workflow, namespace, tctx, stack)
			<-sem

			o.notify(types.Event{Kind: types.EventTaskCompleted, ExecutionID: executionID, WorkflowName: workflow.Name, TaskID: id, Status: statusOf(result), At: time.Now()})

			mu.Lock()
			results[id] = result
			mu.Unlock()
		}()
	}
	wg.Wait()
	return results
}

func anyDependencyFailed(g *graph.Graph, id string, failed map[string]bool) string {
	for _, dep := range g.Dependencies(id) {
		if failed[dep] {
			return dep
		}
	}
	return ""
}

func statusOf(r *types.TaskExecutionResult) types.TaskStatus {
	switch {
	case r.WasSkipped:
		return types.TaskSkipped
	case r.Success:
		return types.TaskSucceeded
	default:
		return types.TaskFailed
	}
}

// skippedResult reports a condition-gated skip: the step itself
// chose not to run, which is not a failure (§7).
func skippedResult(taskID, reason string) *types.TaskExecutionResult {
	now := time.Now()
	return &types.TaskExecutionResult{
		TaskID:      taskID,
		Success:     true,
		WasSkipped:  true,
		SkipReason:  reason,
		StartedAt:   now,
		CompletedAt: now,
	}
}

// dependencySkippedResult reports a task skipped because one of its
// dependencies failed. Per §7/§8 this counts as a failure
// (taskResults[t].success = false for any t depending on a failed task),
// and is folded into the wave loop's `failed` set so the skip cascades to
// further downstream tasks exactly like a real failure would.
func dependencySkippedResult(taskID, reason string) *types.TaskExecutionResult {
	now := time.Now()
	return &types.TaskExecutionResult{
		TaskID:      taskID,
		Success:     false,
		WasSkipped:  true,
		SkipReason:  reason,
		StartedAt:   now,
		CompletedAt: now,
	}
}

// notify invokes the notifier, recovering from and discarding any panic per
// §4.11's "notifier exceptions must not abort orchestration".
func (o *Orchestrator) notify(e types.Event) {
	if o.Notifier == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil && o.Logger != nil {
			o.Logger.Warn().Any("panic", r).Msg("event notifier panicked")
		}
	}()
	o.Notifier.Notify(e)
}

var _ subworkflow.Runner = (*Orchestrator)(nil)
