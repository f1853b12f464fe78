package subworkflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowctl/engine/pkg/types"
)

type fakeCatalog struct {
	workflows map[string]*types.WorkflowResource
}

func (c *fakeCatalog) Get(namespace, name, version string) (*types.WorkflowResource, bool) {
	w, ok := c.workflows[name]
	return w, ok
}

type fakeRunner struct {
	result *types.WorkflowExecutionResult
	calls  int
	lastIn map[string]any
}

func (r *fakeRunner) Execute(_ context.Context, _ *types.WorkflowResource, _ string, input map[string]any, _ *types.WorkflowCallStack) *types.WorkflowExecutionResult {
	r.calls++
	r.lastIn = input
	return r.result
}

func newWorkflow(name string) *types.WorkflowResource {
	return &types.WorkflowResource{ResourceMeta: types.ResourceMeta{Name: name}}
}

func TestSubworkflowExecutor_ResolvesInputsInIsolation(t *testing.T) {
	tctx := types.NewTemplateContext(map[string]any{"region": "us-east"})
	tctx.SetOutput("prior", map[string]any{"secret": "leaked"})

	runner := &fakeRunner{result: &types.WorkflowExecutionResult{Success: true, Output: map[string]any{"ok": true}}}
	ex := &Executor{
		Catalog: &fakeCatalog{workflows: map[string]*types.WorkflowResource{"billing": newWorkflow("billing")}},
		Runner:  runner,
		Stack:   types.NewWorkflowCallStack(10),
	}

	step := &types.TaskStep{
		ID:          "charge",
		WorkflowRef: "billing",
		Input:       map[string]string{"region": "{{input.region}}"},
	}

	result := ex.Execute(context.Background(), step, nil, tctx)
	require.NotNil(t, result)
	assert.True(t, result.Success)
	assert.Equal(t, 1, runner.calls)
	assert.Equal(t, "us-east", runner.lastIn["region"])
	_, leaked := runner.lastIn["prior"]
	assert.False(t, leaked)
	assert.Equal(t, 0, ex.Stack.Depth())
}

func TestSubworkflowExecutor_UnresolvedRefFails(t *testing.T) {
	tctx := types.NewTemplateContext(nil)
	ex := &Executor{
		Catalog: &fakeCatalog{workflows: map[string]*types.WorkflowResource{}},
		Runner:  &fakeRunner{},
		Stack:   types.NewWorkflowCallStack(10),
	}
	step := &types.TaskStep{ID: "s1", WorkflowRef: "missing"}

	result := ex.Execute(context.Background(), step, nil, tctx)
	assert.False(t, result.Success)
	require.Len(t, result.Errors, 1)
}

func TestSubworkflowExecutor_CycleDetected(t *testing.T) {
	tctx := types.NewTemplateContext(nil)
	stack := types.NewWorkflowCallStack(10)
	stack.Push("billing")

	ex := &Executor{
		Catalog: &fakeCatalog{workflows: map[string]*types.WorkflowResource{"billing": newWorkflow("billing")}},
		Runner:  &fakeRunner{result: &types.WorkflowExecutionResult{Success: true}},
		Stack:   stack,
	}
	step := &types.TaskStep{ID: "s1", WorkflowRef: "billing"}

	result := ex.Execute(context.Background(), step, nil, tctx)
	assert.False(t, result.Success)
	assert.Equal(t, types.ErrConfiguration, result.ErrorInfo.ErrorType)
}

func TestSubworkflowExecutor_DepthExceeded(t *testing.T) {
	tctx := types.NewTemplateContext(nil)
	stack := types.NewWorkflowCallStack(1)
	stack.Push("root")

	ex := &Executor{
		Catalog: &fakeCatalog{workflows: map[string]*types.WorkflowResource{"billing": newWorkflow("billing")}},
		Runner:  &fakeRunner{result: &types.WorkflowExecutionResult{Success: true}},
		Stack:   stack,
	}
	step := &types.TaskStep{ID: "s1", WorkflowRef: "billing"}

	result := ex.Execute(context.Background(), step, nil, tctx)
	assert.False(t, result.Success)
}

func TestSubworkflowExecutor_TimeoutDistinguishedFromFailure(t *testing.T) {
	tctx := types.NewTemplateContext(nil)
	ex := &Executor{
		Catalog: &fakeCatalog{workflows: map[string]*types.WorkflowResource{"billing": newWorkflow("billing")}},
		Runner: &fakeRunner{result: &types.WorkflowExecutionResult{
			Success: false,
			Errors:  []string{"deadline exceeded"},
		}},
		Stack: types.NewWorkflowCallStack(10),
	}
	step := &types.TaskStep{ID: "s1", WorkflowRef: "billing", Timeout: "1ns"}

	time.Sleep(time.Millisecond)
	result := ex.Execute(context.Background(), step, nil, tctx)
	assert.False(t, result.Success)
	assert.Equal(t, types.ErrTimeout, result.ErrorInfo.ErrorType)
}
