// ABOUTME: Pre-execution structural validator for workflow/task resources (§4.12)

package validate

import (
	"fmt"
	"strings"

	"github.com/flowctl/engine/internal/control"
	"github.com/flowctl/engine/internal/graph"
	"github.com/flowctl/engine/internal/template"
	"github.com/flowctl/engine/pkg/types"
)

// Result is the outcome of validating a workflow: Errors reject the
// workflow outright, Warnings are advisory (e.g. a switch with no default).
type Result struct {
	Errors   []error
	Warnings []string
}

// Valid reports whether the workflow may be executed.
func (r *Result) Valid() bool {
	return len(r.Errors) == 0
}

func (r *Result) addErr(fieldPath, message string) {
	r.Errors = append(r.Errors, types.NewValidationError(fieldPath, message))
}

func (r *Result) addWarn(message string) {
	r.Warnings = append(r.Warnings, message)
}

// Validator checks a WorkflowResource's structural validity against a task
// catalog before it is ever handed to the orchestrator.
type Validator struct {
	TaskCatalog types.TaskCatalog
}

// New builds a Validator bound to a task catalog.
func New(taskCatalog types.TaskCatalog) *Validator {
	return &Validator{TaskCatalog: taskCatalog}
}

// Validate runs every structural check of §4.12 and collects all failures,
// rather than returning on the first one, so an operator can fix every
// reported problem in a single pass.
func (v *Validator) Validate(workflow *types.WorkflowResource) *Result {
	res := &Result{}

	g, err := graph.Build(workflow.Spec.Tasks)
	if err != nil {
		res.Errors = append(res.Errors, err)
		// A cyclic or dependency-broken graph makes forEach-depth and
		// output-reference checks meaningless; the caller already has
		// enough to reject the workflow.
		return res
	}

	knownTasks := map[string]bool{}
	for _, id := range g.TaskIDs() {
		knownTasks[id] = true
	}

	for i := range workflow.Spec.Tasks {
		v.validateStep(res, workflow, &workflow.Spec.Tasks[i])
	}

	v.validateForEachDepth(res, g)
	v.validateOutputs(res, workflow, knownTasks)

	return res
}

func (v *Validator) validateStep(res *Result, workflow *types.WorkflowResource, step *types.TaskStep) {
	path := fmt.Sprintf("tasks[%s]", step.ID)

	switch step.Target() {
	case types.TargetNone:
		res.addErr(path, "exactly one of taskRef, workflowRef, or switch must be set")
	case types.TargetTask:
		v.validateTaskRef(res, workflow, path, step.TaskRef)
	case types.TargetSwitch:
		v.validateSwitch(res, workflow, path, step.Switch)
	}

	if step.Condition != nil {
		if err := control.ValidateSyntax(step.Condition.If); err != nil {
			res.addErr(path+".condition.if", err.Error())
		}
	}

	if step.ForEach != nil {
		v.validateForEach(res, path, step.ForEach)
	}
}

func (v *Validator) validateTaskRef(res *Result, workflow *types.WorkflowResource, path, taskRef string) {
	resource, ok := v.TaskCatalog.Get(workflow.Namespace, taskRef, "")
	if !ok {
		res.addErr(path+".taskRef", fmt.Sprintf("task %q not found in catalog", taskRef))
		return
	}
	if resource.Spec.EffectiveType() == types.TaskKindTransform {
		if resource.Spec.Transform == nil || !transformNonEmpty(resource.Spec.Transform) {
			res.addErr(path+".taskRef", fmt.Sprintf("transform task %q has an empty transform spec", taskRef))
		}
	}
}

func transformNonEmpty(t *types.TransformSpec) bool {
	return t.JSONPath != "" || t.Query != "" || len(t.Pipeline) > 0
}

func (v *Validator) validateSwitch(res *Result, workflow *types.WorkflowResource, path string, sw *types.SwitchSpec) {
	if sw.Value == "" {
		res.addErr(path+".switch.value", "value must not be empty")
	} else if err := template.ValidateTemplate(sw.Value); err != nil {
		res.addErr(path+".switch.value", err.Error())
	}

	if len(sw.Cases) == 0 {
		res.addErr(path+".switch.cases", "at least one case is required")
	}

	seen := map[string]bool{}
	for i, c := range sw.Cases {
		casePath := fmt.Sprintf("%s.switch.cases[%d]", path, i)
		key := strings.ToLower(c.Match)
		if seen[key] {
			res.addErr(casePath+".match", fmt.Sprintf("duplicate match value %q (case-insensitive)", c.Match))
		}
		seen[key] = true

		if c.TaskRef == "" {
			res.addErr(casePath+".taskRef", "taskRef must not be empty")
			continue
		}
		if _, ok := v.TaskCatalog.Get(workflow.Namespace, c.TaskRef, ""); !ok {
			res.addErr(casePath+".taskRef", fmt.Sprintf("task %q not found in catalog", c.TaskRef))
		}
	}

	if sw.Default == nil {
		res.addWarn(fmt.Sprintf("%s.switch has no default case", path))
	} else if sw.Default.TaskRef == "" {
		res.addErr(path+".switch.default.taskRef", "taskRef must not be empty")
	} else if _, ok := v.TaskCatalog.Get(workflow.Namespace, sw.Default.TaskRef, ""); !ok {
		res.addErr(path+".switch.default.taskRef", fmt.Sprintf("task %q not found in catalog", sw.Default.TaskRef))
	}
}

func (v *Validator) validateForEach(res *Result, path string, fe *types.ForEachSpec) {
	if err := template.ValidateTemplate(fe.Items); err != nil {
		res.addErr(path+".forEach.items", err.Error())
	}
	if fe.ItemVar != "" && !template.IsValidIdentifier(fe.ItemVar) {
		res.addErr(path+".forEach.itemVar", fmt.Sprintf("%q is not a valid identifier", fe.ItemVar))
	}
	if fe.IndexVar != "" && !template.IsValidIdentifier(fe.IndexVar) {
		res.addErr(path+".forEach.indexVar", fmt.Sprintf("%q is not a valid identifier", fe.IndexVar))
	}
	if fe.MaxConcurrency < 0 {
		res.addErr(path+".forEach.maxConcurrency", "must be >= 0")
	}
}

// validateForEachDepth enforces the depth-3 cap on chains of forEach steps
// linked through dependsOn (§4.12).
func (v *Validator) validateForEachDepth(res *Result, g *graph.Graph) {
	const maxForEachDepth = 3
	memo := map[string]int{}
	var depth func(id string) int
	depth = func(id string) int {
		if d, ok := memo[id]; ok {
			return d
		}
		memo[id] = 0 // break cycles defensively; graph.Build already rejects real cycles
		step, ok := g.Step(id)
		best := 0
		for _, dep := range g.Dependencies(id) {
			if d := depth(dep); d > best {
				best = d
			}
		}
		d := best
		if ok && step.ForEach != nil {
			d = best + 1
		}
		memo[id] = d
		return d
	}

	for _, id := range g.TaskIDs() {
		if d := depth(id); d > maxForEachDepth {
			res.addErr(fmt.Sprintf("tasks[%s].forEach", id), fmt.Sprintf("forEach nesting depth %d exceeds the maximum of %d", d, maxForEachDepth))
		}
	}
}

func (v *Validator) validateOutputs(res *Result, workflow *types.WorkflowResource, knownTasks map[string]bool) {
	for key, expr := range workflow.Spec.Output {
		for _, taskID := range template.ScanTaskRefs(expr) {
			if !knownTasks[taskID] {
				res.addErr(fmt.Sprintf("output[%s]", key), fmt.Sprintf("references unknown task %q", taskID))
			}
		}
	}
}
