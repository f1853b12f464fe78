package catalog

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowctl/engine/pkg/types"
)

func writeFile(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
}

func TestLoadDir_LoadsTasksAndWorkflows(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/catalog/tasks/fetch.yaml", `
name: fetch
namespace: default
spec:
  type: http
  http:
    method: GET
    url: https://example.invalid
`)
	writeFile(t, fs, "/catalog/workflows/main.yaml", `
name: main
namespace: default
spec:
  tasks:
    - id: step1
      taskRef: fetch
`)

	tasks, workflows, err := LoadDir(fs, "/catalog")
	require.NoError(t, err)

	task, ok := tasks.Get("default", "fetch", "")
	require.True(t, ok)
	assert.Equal(t, "GET", task.Spec.HTTP.Method)

	workflow, ok := workflows.Get("default", "main", "")
	require.True(t, ok)
	assert.Len(t, workflow.Spec.Tasks, 1)
}

func TestLoadDir_AppliesDirectoryDefaults(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/catalog/tasks/_defaults.yaml", `
namespace: shared
`)
	writeFile(t, fs, "/catalog/tasks/fetch.yaml", `
name: fetch
spec:
  type: http
  http:
    method: GET
    url: https://example.invalid
`)

	tasks, _, err := LoadDir(fs, "/catalog")
	require.NoError(t, err)

	task, ok := tasks.Get("shared", "fetch", "")
	require.True(t, ok)
	assert.Equal(t, "shared", task.Namespace)
}

func TestTaskCatalog_VersionResolution(t *testing.T) {
	c := NewTaskCatalog()
	c.Add(taskWithVersion("fetch", "default", "v1"))
	c.Add(taskWithVersion("fetch", "default", "v2"))

	latest, ok := c.Get("default", "fetch", "")
	require.True(t, ok)
	assert.Equal(t, "v2", latest.Version())

	v1, ok := c.Get("default", "fetch", "v1")
	require.True(t, ok)
	assert.Equal(t, "v1", v1.Version())

	_, ok = c.Get("default", "fetch", "v3")
	assert.False(t, ok)
}

func TestTaskCatalog_UnknownNameFails(t *testing.T) {
	c := NewTaskCatalog()
	_, ok := c.Get("default", "missing", "")
	assert.False(t, ok)
}

func TestTaskCatalog_AllListsEveryResource(t *testing.T) {
	c := NewTaskCatalog()
	c.Add(taskWithVersion("fetch", "default", "v1"))
	c.Add(taskWithVersion("notify", "default", "v1"))

	all := c.All()
	assert.Len(t, all, 2)
}

func taskWithVersion(name, namespace, version string) *types.TaskResource {
	return &types.TaskResource{
		ResourceMeta: types.ResourceMeta{
			Name:        name,
			Namespace:   namespace,
			Annotations: map[string]string{"version": version},
		},
		Spec: types.TaskResourceSpec{Type: types.TaskKindHTTP, HTTP: &types.HTTPSpec{Method: "GET", URL: "https://example.invalid"}},
	}
}
