// ABOUTME: Resolver for {{...}} expressions against a TemplateContext
// ABOUTME: Always returns strings; callers JSON-reparse values starting with { or [

package template

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/flowctl/engine/pkg/types"
)

// Engine resolves template strings against a TemplateContext. It carries no
// state of its own; New exists for parity with the rest of the package
// layout and to leave room for future options (e.g. strict-mode toggles).
type Engine struct{}

// New creates a template resolution Engine.
func New() *Engine {
	return &Engine{}
}

// EvaluateString resolves every {{...}} expression in s against ctx and
// returns the resulting string. A plain string with no markers is returned
// unchanged (§4.1 "the identity").
func (e *Engine) EvaluateString(s string, ctx *types.TemplateContext) (string, error) {
	return EvaluateString(s, ctx)
}

// EvaluateString is the package-level equivalent of Engine.EvaluateString.
func EvaluateString(s string, ctx *types.TemplateContext) (string, error) {
	res := Parse(s)
	if !res.Valid {
		return "", types.NewTemplateError(s, strings.Join(res.Errors, "; "))
	}
	if len(res.Expressions) == 0 {
		return s, nil
	}

	out := s
	for _, expr := range res.Expressions {
		val, err := resolveExpression(expr, ctx)
		if err != nil {
			return "", err
		}
		out = strings.Replace(out, expr.Raw, val, 1)
	}
	return out, nil
}

// ScanTaskRefs returns the distinct task ids referenced via
// "tasks.<id>.output" anywhere in s. Used by the execution graph builder
// (§4.2) to derive implicit dependency edges.
func ScanTaskRefs(s string) []string {
	res := Parse(s)
	seen := map[string]bool{}
	var out []string
	for _, expr := range res.Expressions {
		if expr.Kind == KindTaskOutput && !seen[expr.TaskID] {
			seen[expr.TaskID] = true
			out = append(out, expr.TaskID)
		}
	}
	return out
}

func resolveExpression(expr Expression, ctx *types.TemplateContext) (string, error) {
	var root any
	var rootDesc string

	switch expr.Kind {
	case KindInput:
		root = ctx.Input
		rootDesc = "input"
	case KindTaskOutput:
		out, ok := ctx.GetOutput(expr.TaskID)
		if !ok {
			return "", types.NewResolutionError(expr.Raw, fmt.Sprintf("task %q has not completed", expr.TaskID))
		}
		root = out
		rootDesc = "tasks." + expr.TaskID + ".output"
	}

	val, err := walkPath(root, expr.Path, rootDesc)
	if err != nil {
		return "", err
	}
	return Stringify(val), nil
}

func walkPath(root any, path []PathSegment, desc string) (any, error) {
	cur := root
	for _, seg := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, types.NewResolutionError(desc, fmt.Sprintf("field %q: not an object", seg.Name))
		}
		next, ok := m[seg.Name]
		if !ok {
			return nil, types.NewResolutionError(desc+"."+seg.Name, "missing field")
		}
		if seg.HasIndex {
			arr, ok := next.([]any)
			if !ok {
				return nil, types.NewResolutionError(desc+"."+seg.Name, "not an array")
			}
			if seg.Index < 0 || seg.Index >= len(arr) {
				return nil, types.NewResolutionError(desc+"."+seg.Name, fmt.Sprintf("index %d out of range", seg.Index))
			}
			next = arr[seg.Index]
		}
		cur = next
		desc = desc + "." + seg.Name
	}
	return cur, nil
}

// Stringify renders a resolved value to its canonical textual form (§4.1):
// numbers via default formatting, booleans as true/false, null as empty
// string, objects/arrays as JSON.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// ReparseIfStructured implements §4.11's input-merging rule: if the
// resolved string begins with '{' or '[', attempt a JSON reparse to
// recover a structured value; otherwise the string is kept as-is.
func ReparseIfStructured(s string) any {
	trimmed := strings.TrimSpace(s)
	if len(trimmed) == 0 || (trimmed[0] != '{' && trimmed[0] != '[') {
		return s
	}
	var v any
	if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
		return s
	}
	return v
}

// Truthy implements the engine's shared truthy-value rule (§4.7, §4.10):
// boolean true, "true"/"1" (case-insensitive), non-zero numbers, and any
// other non-empty value are truthy; everything else is not.
func Truthy(s string) bool {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return false
	}
	lower := strings.ToLower(trimmed)
	if lower == "true" || lower == "1" {
		return true
	}
	if lower == "false" || lower == "0" {
		return false
	}
	if n, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return n != 0
	}
	return true
}

// EvaluateMap resolves every value in m against ctx, returning a new map.
// Used to resolve HTTP headers (each value resolved separately, §4.6).
func EvaluateMap(m map[string]string, ctx *types.TemplateContext) (map[string]string, error) {
	out := make(map[string]string, len(m))
	for k, v := range m {
		resolved, err := EvaluateString(v, ctx)
		if err != nil {
			return nil, err
		}
		out[k] = resolved
	}
	return out, nil
}
