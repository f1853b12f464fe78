package orchestrator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowctl/engine/pkg/types"
)

type fakeTaskCatalog struct {
	resources map[string]*types.TaskResource
}

func (c *fakeTaskCatalog) Get(_, name, _ string) (*types.TaskResource, bool) {
	r, ok := c.resources[name]
	return r, ok
}

type fakeWorkflowCatalog struct {
	workflows map[string]*types.WorkflowResource
}

func (c *fakeWorkflowCatalog) Get(_, name, _ string) (*types.WorkflowResource, bool) {
	w, ok := c.workflows[name]
	return w, ok
}

func httpTaskResource(name, url string) *types.TaskResource {
	return &types.TaskResource{
		ResourceMeta: types.ResourceMeta{Name: name},
		Spec: types.TaskResourceSpec{
			Type: types.TaskKindHTTP,
			HTTP: &types.HTTPSpec{Method: "GET", URL: url},
		},
	}
}

func TestExecute_LinearChainProducesOutput(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"value": 42}`))
	}))
	defer server.Close()

	catalog := &fakeTaskCatalog{resources: map[string]*types.TaskResource{
		"fetch": httpTaskResource("fetch", server.URL),
	}}

	workflow := &types.WorkflowResource{
		ResourceMeta: types.ResourceMeta{Name: "wf1"},
		Spec: types.WorkflowSpec{
			Tasks: []types.TaskStep{
				{ID: "step1", TaskRef: "fetch"},
			},
			Output: map[string]string{"result": "{{tasks.step1.output.value}}"},
		},
	}

	o := New(catalog, &fakeWorkflowCatalog{}, Config{})
	result := o.Run(context.Background(), workflow, nil)

	require.NotNil(t, result)
	assert.True(t, result.Success)
	assert.Equal(t, "42", result.Output["result"])
	assert.Len(t, result.TaskResults, 1)
}

func TestExecute_ConditionFalseSkipsTask(t *testing.T) {
	catalog := &fakeTaskCatalog{resources: map[string]*types.TaskResource{
		"fetch": httpTaskResource("fetch", "http://example.invalid"),
	}}

	workflow := &types.WorkflowResource{
		ResourceMeta: types.ResourceMeta{Name: "wf2"},
		Spec: types.WorkflowSpec{
			Input: map[string]any{"enabled": false},
			Tasks: []types.TaskStep{
				{ID: "step1", TaskRef: "fetch", Condition: &types.ConditionSpec{If: "{{input.enabled}} == 'true'"}},
			},
		},
	}

	o := New(catalog, &fakeWorkflowCatalog{}, Config{})
	result := o.Run(context.Background(), workflow, nil)

	require.NotNil(t, result)
	assert.True(t, result.Success)
	assert.True(t, result.TaskResults["step1"].WasSkipped)
	assert.True(t, result.TaskResults["step1"].Success)
}

func TestExecute_DependencyFailureCascadesSkip(t *testing.T) {
	failServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failServer.Close()

	catalog := &fakeTaskCatalog{resources: map[string]*types.TaskResource{
		"failing": httpTaskResource("failing", failServer.URL),
		"fetch":   httpTaskResource("fetch", failServer.URL),
	}}

	workflow := &types.WorkflowResource{
		ResourceMeta: types.ResourceMeta{Name: "wf3"},
		Spec: types.WorkflowSpec{
			Tasks: []types.TaskStep{
				{ID: "step1", TaskRef: "failing", Retry: &types.RetryConfig{MaxRetryCount: 0}},
				{ID: "step2", TaskRef: "fetch", DependsOn: []string{"step1"}},
			},
		},
	}

	o := New(catalog, &fakeWorkflowCatalog{}, Config{})
	result := o.Run(context.Background(), workflow, nil)

	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.False(t, result.TaskResults["step1"].Success)
	assert.True(t, result.TaskResults["step2"].WasSkipped)
	assert.False(t, result.TaskResults["step2"].Success)
}

func TestExecute_DependencyFailureCascadesThroughMultipleLevels(t *testing.T) {
	failServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failServer.Close()

	catalog := &fakeTaskCatalog{resources: map[string]*types.TaskResource{
		"failing": httpTaskResource("failing", failServer.URL),
		"fetch":   httpTaskResource("fetch", failServer.URL),
	}}

	workflow := &types.WorkflowResource{
		ResourceMeta: types.ResourceMeta{Name: "wf3b"},
		Spec: types.WorkflowSpec{
			Tasks: []types.TaskStep{
				{ID: "step1", TaskRef: "failing", Retry: &types.RetryConfig{MaxRetryCount: 0}},
				{ID: "step2", TaskRef: "fetch", DependsOn: []string{"step1"}},
				{ID: "step3", TaskRef: "fetch", DependsOn: []string{"step2"}},
			},
		},
	}

	o := New(catalog, &fakeWorkflowCatalog{}, Config{})
	result := o.Run(context.Background(), workflow, nil)

	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.False(t, result.TaskResults["step1"].Success)
	assert.True(t, result.TaskResults["step2"].WasSkipped)
	assert.False(t, result.TaskResults["step2"].Success)
	assert.True(t, result.TaskResults["step3"].WasSkipped)
	assert.False(t, result.TaskResults["step3"].Success)
}

func TestExecute_SwitchDispatchesEffectiveTaskRef(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"branch": "gold"}`))
	}))
	defer server.Close()

	catalog := &fakeTaskCatalog{resources: map[string]*types.TaskResource{
		"gold-handler":   httpTaskResource("gold-handler", server.URL),
		"silver-handler": httpTaskResource("silver-handler", "http://example.invalid"),
	}}

	workflow := &types.WorkflowResource{
		ResourceMeta: types.ResourceMeta{Name: "wf4"},
		Spec: types.WorkflowSpec{
			Input: map[string]any{"tier": "gold"},
			Tasks: []types.TaskStep{
				{ID: "step1", Switch: &types.SwitchSpec{
					Value: "{{input.tier}}",
					Cases: []types.SwitchCase{
						{Match: "gold", TaskRef: "gold-handler"},
						{Match: "silver", TaskRef: "silver-handler"},
					},
				}},
			},
			Output: map[string]string{"branch": "{{tasks.step1.output.branch}}"},
		},
	}

	o := New(catalog, &fakeWorkflowCatalog{}, Config{})
	result := o.Run(context.Background(), workflow, nil)

	require.NotNil(t, result)
	assert.True(t, result.Success)
	assert.Equal(t, "gold", result.Output["branch"])
}

func TestExecute_EmptyTaskListSucceeds(t *testing.T) {
	workflow := &types.WorkflowResource{
		ResourceMeta: types.ResourceMeta{Name: "wf5"},
		Spec:         types.WorkflowSpec{},
	}
	o := New(&fakeTaskCatalog{resources: map[string]*types.TaskResource{}}, &fakeWorkflowCatalog{}, Config{})
	result := o.Run(context.Background(), workflow, nil)
	require.NotNil(t, result)
	assert.True(t, result.Success)
}

func TestExecute_SubWorkflowDispatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok": true}`))
	}))
	defer server.Close()

	taskCatalog := &fakeTaskCatalog{resources: map[string]*types.TaskResource{
		"fetch": httpTaskResource("fetch", server.URL),
	}}
	child := &types.WorkflowResource{
		ResourceMeta: types.ResourceMeta{Name: "child"},
		Spec: types.WorkflowSpec{
			Tasks:  []types.TaskStep{{ID: "inner", TaskRef: "fetch"}},
			Output: map[string]string{"ok": "{{tasks.inner.output.ok}}"},
		},
	}
	workflowCatalog := &fakeWorkflowCatalog{workflows: map[string]*types.WorkflowResource{"child": child}}

	parent := &types.WorkflowResource{
		ResourceMeta: types.ResourceMeta{Name: "parent"},
		Spec: types.WorkflowSpec{
			Tasks: []types.TaskStep{
				{ID: "call-child", WorkflowRef: "child"},
			},
		},
	}

	o := New(taskCatalog, workflowCatalog, Config{})
	result := o.Run(context.Background(), parent, nil)

	require.NotNil(t, result)
	assert.True(t, result.Success)
	assert.True(t, result.TaskResults["call-child"].Success)
	assert.Equal(t, "true", result.TaskResults["call-child"].Output["ok"])
}

func TestGetExecutionPlan_ReturnsWaves(t *testing.T) {
	workflow := &types.WorkflowResource{
		ResourceMeta: types.ResourceMeta{Name: "wf6"},
		Spec: types.WorkflowSpec{
			Tasks: []types.TaskStep{
				{ID: "a"},
				{ID: "b", DependsOn: []string{"a"}},
			},
		},
	}
	plan, err := GetExecutionPlan(workflow)
	require.NoError(t, err)
	require.Len(t, plan.Waves, 2)
	assert.Equal(t, []string{"a"}, plan.Waves[0])
	assert.Equal(t, []string{"b"}, plan.Waves[1])
}
