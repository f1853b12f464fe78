// ABOUTME: Directory-backed TaskResource/WorkflowResource catalogs (§3, §4.13)
// ABOUTME: Resources live under <root>/tasks/*.yaml and <root>/workflows/*.yaml

package catalog

import (
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/flowctl/engine/pkg/types"
)

// TaskCatalog resolves TaskResources loaded from disk, keyed by
// namespace/name and (optionally) version annotation. It satisfies
// types.TaskCatalog.
type TaskCatalog struct {
	resources map[string][]*types.TaskResource
}

// NewTaskCatalog builds an empty catalog.
func NewTaskCatalog() *TaskCatalog {
	return &TaskCatalog{resources: make(map[string][]*types.TaskResource)}
}

// Add registers a resource, appending to any existing namespace/name entry
// so multiple versions of the same resource can coexist.
func (c *TaskCatalog) Add(r *types.TaskResource) {
	key := resourceKey(r.Namespace, r.Name)
	c.resources[key] = append(c.resources[key], r)
}

// Get resolves a TaskResource by namespace/name/version. An empty version
// matches the most recently added resource under that name.
func (c *TaskCatalog) Get(namespace, name, version string) (*types.TaskResource, bool) {
	candidates := c.resources[resourceKey(namespace, name)]
	if len(candidates) == 0 {
		return nil, false
	}
	if version == "" {
		return candidates[len(candidates)-1], true
	}
	for _, r := range candidates {
		if r.Version() == version {
			return r, true
		}
	}
	return nil, false
}

// All returns every registered task resource, in no particular order.
func (c *TaskCatalog) All() []*types.TaskResource {
	all := make([]*types.TaskResource, 0, len(c.resources))
	for _, versions := range c.resources {
		all = append(all, versions...)
	}
	return all
}

// WorkflowCatalog resolves WorkflowResources loaded from disk. It
// satisfies types.WorkflowCatalog.
type WorkflowCatalog struct {
	resources map[string][]*types.WorkflowResource
}

// NewWorkflowCatalog builds an empty catalog.
func NewWorkflowCatalog() *WorkflowCatalog {
	return &WorkflowCatalog{resources: make(map[string][]*types.WorkflowResource)}
}

// Add registers a workflow resource.
func (c *WorkflowCatalog) Add(r *types.WorkflowResource) {
	key := resourceKey(r.Namespace, r.Name)
	c.resources[key] = append(c.resources[key], r)
}

// Get resolves a WorkflowResource by namespace/name/version.
func (c *WorkflowCatalog) Get(namespace, name, version string) (*types.WorkflowResource, bool) {
	candidates := c.resources[resourceKey(namespace, name)]
	if len(candidates) == 0 {
		return nil, false
	}
	if version == "" {
		return candidates[len(candidates)-1], true
	}
	for _, r := range candidates {
		if r.Version() == version {
			return r, true
		}
	}
	return nil, false
}

func resourceKey(namespace, name string) string {
	return namespace + "/" + name
}

// LoadDir walks root/tasks and root/workflows for *.yaml/*.yml resource
// files and returns the catalogs they populate. A directory-level
// "_defaults.yaml" file, if present, supplies fields (e.g. a shared
// namespace or annotation set) merged underneath every resource parsed
// from the same directory before it is decoded into its typed struct.
func LoadDir(fs afero.Fs, root string) (*TaskCatalog, *WorkflowCatalog, error) {
	tasks := NewTaskCatalog()
	workflows := NewWorkflowCatalog()

	taskDir := root + "/tasks"
	if ok, _ := afero.DirExists(fs, taskDir); ok {
		defaults, err := loadDefaults(fs, taskDir)
		if err != nil {
			return nil, nil, err
		}
		files, err := resourceFiles(fs, taskDir)
		if err != nil {
			return nil, nil, err
		}
		for _, f := range files {
			var resource types.TaskResource
			if err := decodeResourceFile(fs, f, defaults, &resource); err != nil {
				return nil, nil, fmt.Errorf("loading task %q: %w", f, err)
			}
			tasks.Add(&resource)
		}
	}

	workflowDir := root + "/workflows"
	if ok, _ := afero.DirExists(fs, workflowDir); ok {
		defaults, err := loadDefaults(fs, workflowDir)
		if err != nil {
			return nil, nil, err
		}
		files, err := resourceFiles(fs, workflowDir)
		if err != nil {
			return nil, nil, err
		}
		for _, f := range files {
			var resource types.WorkflowResource
			if err := decodeResourceFile(fs, f, defaults, &resource); err != nil {
				return nil, nil, fmt.Errorf("loading workflow %q: %w", f, err)
			}
			workflows.Add(&resource)
		}
	}

	return tasks, workflows, nil
}

func resourceFiles(fs afero.Fs, dir string) ([]string, error) {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if name == "_defaults.yaml" || name == "_defaults.yml" {
			continue
		}
		if strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml") {
			files = append(files, dir+"/"+name)
		}
	}
	return files, nil
}

func loadDefaults(fs afero.Fs, dir string) (map[string]any, error) {
	for _, name := range []string{"_defaults.yaml", "_defaults.yml"} {
		path := dir + "/" + name
		ok, err := afero.Exists(fs, path)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		raw, err := afero.ReadFile(fs, path)
		if err != nil {
			return nil, err
		}
		var defaults map[string]any
		if err := yaml.Unmarshal(raw, &defaults); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		return defaults, nil
	}
	return nil, nil
}

// decodeResourceFile reads path's YAML into a generic map, merges it over
// defaults, and mapstructure-decodes the merge into out.
func decodeResourceFile(fs afero.Fs, path string, defaults map[string]any, out any) error {
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		return err
	}

	var generic map[string]any
	dec := yaml.NewDecoder(strings.NewReader(string(raw)))
	dec.KnownFields(true)
	if err := dec.Decode(&generic); err != nil {
		return fmt.Errorf("parsing yaml: %w", err)
	}

	merged := mergeMaps(defaults, generic)

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return fmt.Errorf("building decoder: %w", err)
	}
	if err := decoder.Decode(merged); err != nil {
		return fmt.Errorf("decoding into %T: %w", out, err)
	}
	return nil
}

// mergeMaps returns a new map with override's keys layered on top of
// base's, recursing into nested maps so a resource file only needs to
// specify the fields it overrides from its directory's defaults.
func mergeMaps(base, override map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range override {
		if baseVal, ok := merged[k]; ok {
			if baseMap, ok := baseVal.(map[string]any); ok {
				if overrideMap, ok := v.(map[string]any); ok {
					merged[k] = mergeMaps(baseMap, overrideMap)
					continue
				}
			}
		}
		merged[k] = v
	}
	return merged
}

var _ types.TaskCatalog = (*TaskCatalog)(nil)
var _ types.WorkflowCatalog = (*WorkflowCatalog)(nil)
