// ABOUTME: Transform pipeline core: operation sum type, dispatch, and the
// ABOUTME: structural operations (select/filter/map/flatMap/groupBy/join/sortBy/aggregate/limit/skip/enrich)

package transform

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/jmespath/go-jmespath"

	"github.com/flowctl/engine/internal/template"
	"github.com/flowctl/engine/pkg/types"
)

// Operation is one stage of a transform pipeline (§4.8). Each operation
// reads a JSON-element sequence and produces one.
type Operation interface {
	Apply(elements []any, tctx *types.TemplateContext) ([]any, error)
}

// validOps is the closed set of operation type tags accepted by Parse.
var validOps = map[string]bool{
	"select": true, "filter": true, "map": true, "flatMap": true,
	"groupBy": true, "join": true, "sortBy": true, "aggregate": true,
	"limit": true, "skip": true, "enrich": true,
	"uppercase": true, "lowercase": true, "trim": true, "split": true,
	"concat": true, "replace": true, "substring": true, "template": true,
	"round": true, "floor": true, "ceil": true, "abs": true, "clamp": true,
	"scale": true, "percentage": true,
	"first": true, "last": true, "nth": true, "reverse": true, "unique": true,
	"flatten": true, "chunk": true, "zip": true,
	"randomOne": true, "randomN": true, "shuffle": true,
}

var filterOps = map[string]bool{
	"eq": true, "ne": true, "gt": true, "lt": true, "gte": true, "lte": true,
	"contains": true, "startsWith": true, "endsWith": true,
}

var joinTypes = map[string]bool{"inner": true, "left": true, "right": true}
var sortOrders = map[string]bool{"asc": true, "desc": true}

// ParseOperation builds a concrete Operation from a decoded YAML/JSON map of
// the form {"type": "<tag>", ...fields}. It returns a *types.ValidationError
// for an unknown tag or missing required fields (§4.8's validation rule).
func ParseOperation(raw map[string]any) (Operation, error) {
	tag, _ := raw["type"].(string)
	if !validOps[tag] {
		return nil, types.NewValidationError("pipeline", fmt.Sprintf("unknown transform operation %q", tag))
	}

	switch tag {
	case "select":
		var op SelectOp
		if err := decode(raw, &op); err != nil || len(op.Fields) == 0 {
			return nil, fieldErr(tag, "fields")
		}
		return op, nil
	case "filter":
		var op FilterOp
		if err := decode(raw, &op); err != nil || op.Field == "" || !filterOps[op.Op] {
			return nil, fieldErr(tag, "field/op")
		}
		return op, nil
	case "map":
		var op MapOp
		if err := decode(raw, &op); err != nil || len(op.Mappings) == 0 {
			return nil, fieldErr(tag, "mappings")
		}
		return op, nil
	case "flatMap":
		var op FlatMapOp
		if err := decode(raw, &op); err != nil || op.Field == "" {
			return nil, fieldErr(tag, "field")
		}
		return op, nil
	case "groupBy":
		var op GroupByOp
		if err := decode(raw, &op); err != nil || op.Key == "" {
			return nil, fieldErr(tag, "key")
		}
		return op, nil
	case "join":
		var op JoinOp
		if err := decode(raw, &op); err != nil || op.LeftKey == "" || op.RightKey == "" {
			return nil, fieldErr(tag, "leftKey/rightKey")
		}
		if op.Type == "" {
			op.Type = "inner"
		}
		if !joinTypes[op.Type] {
			return nil, fieldErr(tag, "joinType")
		}
		return op, nil
	case "sortBy":
		var op SortByOp
		if err := decode(raw, &op); err != nil || op.Field == "" {
			return nil, fieldErr(tag, "field")
		}
		if op.Order == "" {
			op.Order = "asc"
		}
		if !sortOrders[op.Order] {
			return nil, fieldErr(tag, "order")
		}
		return op, nil
	case "aggregate":
		var op AggregateOp
		if err := decode(raw, &op); err != nil || len(op.Aggregations) == 0 {
			return nil, fieldErr(tag, "aggregations")
		}
		return op, nil
	case "limit":
		var op LimitOp
		if err := decode(raw, &op); err != nil || op.Count <= 0 {
			return nil, fieldErr(tag, "count > 0")
		}
		return op, nil
	case "skip":
		var op SkipOp
		if err := decode(raw, &op); err != nil || op.Count < 0 {
			return nil, fieldErr(tag, "count >= 0")
		}
		return op, nil
	case "enrich":
		var op EnrichOp
		if err := decode(raw, &op); err != nil || len(op.Fields) == 0 {
			return nil, fieldErr(tag, "fields")
		}
		return op, nil
	default:
		return parseElementOp(tag, raw)
	}
}

func decode(raw map[string]any, out any) error {
	return mapstructure.Decode(raw, out)
}

func fieldErr(tag, fields string) error {
	return types.NewValidationError("pipeline", fmt.Sprintf("operation %q missing required field(s): %s", tag, fields))
}

// ParsePipeline parses an ordered list of raw operation maps.
func ParsePipeline(raw []map[string]any) ([]Operation, error) {
	ops := make([]Operation, 0, len(raw))
	for i, r := range raw {
		op, err := ParseOperation(r)
		if err != nil {
			return nil, fmt.Errorf("pipeline step %d: %w", i, err)
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// ValidatePipeline reports whether a raw pipeline definition parses
// structurally (closed operator sets, required fields) without executing it.
func ValidatePipeline(raw []map[string]any) error {
	_, err := ParsePipeline(raw)
	return err
}

// Run applies every operation in sequence, left to right, over elements.
func Run(ops []Operation, elements []any, tctx *types.TemplateContext) ([]any, error) {
	cur := elements
	for i, op := range ops {
		next, err := op.Apply(cur, tctx)
		if err != nil {
			return nil, fmt.Errorf("pipeline step %d: %w", i, err)
		}
		cur = next
	}
	return cur, nil
}

// --- select / filter / map / flatMap / groupBy / join / sortBy / aggregate / limit / skip / enrich ---

// SelectOp projects named fields out of every element via JMESPath.
type SelectOp struct {
	Fields map[string]string `mapstructure:"fields"`
}

func (o SelectOp) Apply(elements []any, _ *types.TemplateContext) ([]any, error) {
	out := make([]any, len(elements))
	for i, el := range elements {
		projected := map[string]any{}
		for outName, path := range o.Fields {
			v, err := jmespath.Search(path, el)
			if err != nil {
				return nil, err
			}
			projected[outName] = v
		}
		out[i] = projected
	}
	return out, nil
}

// FilterOp keeps elements whose field matches value under op.
type FilterOp struct {
	Field string `mapstructure:"field"`
	Op    string `mapstructure:"op"`
	Value any    `mapstructure:"value"`
}

func (o FilterOp) Apply(elements []any, _ *types.TemplateContext) ([]any, error) {
	out := make([]any, 0, len(elements))
	for _, el := range elements {
		v, err := jmespath.Search(o.Field, el)
		if err != nil {
			return nil, err
		}
		if matchFilter(v, o.Op, o.Value) {
			out = append(out, el)
		}
	}
	return out, nil
}

func matchFilter(v any, op string, target any) bool {
	switch op {
	case "eq":
		return fmt.Sprint(v) == fmt.Sprint(target)
	case "ne":
		return fmt.Sprint(v) != fmt.Sprint(target)
	case "gt", "lt", "gte", "lte":
		a, aok := toFloat(v)
		b, bok := toFloat(target)
		if !aok || !bok {
			return false
		}
		switch op {
		case "gt":
			return a > b
		case "lt":
			return a < b
		case "gte":
			return a >= b
		default:
			return a <= b
		}
	case "contains":
		s, ok := v.(string)
		return ok && strings.Contains(s, fmt.Sprint(target))
	case "startsWith":
		s, ok := v.(string)
		return ok && strings.HasPrefix(s, fmt.Sprint(target))
	case "endsWith":
		s, ok := v.(string)
		return ok && strings.HasSuffix(s, fmt.Sprint(target))
	default:
		return false
	}
}

// MapOp computes named output fields per element from template expressions
// evaluated with the element itself as the template input root.
type MapOp struct {
	Mappings map[string]string `mapstructure:"mappings"`
}

func (o MapOp) Apply(elements []any, _ *types.TemplateContext) ([]any, error) {
	out := make([]any, len(elements))
	for i, el := range elements {
		elCtx := elementContext(el)
		mapped := map[string]any{}
		for outName, expr := range o.Mappings {
			resolved, err := template.EvaluateString(expr, elCtx)
			if err != nil {
				return nil, err
			}
			mapped[outName] = template.ReparseIfStructured(resolved)
		}
		out[i] = mapped
	}
	return out, nil
}

// FlatMapOp extracts an array-valued field from each element and splices
// its items directly into the result sequence.
type FlatMapOp struct {
	Field string `mapstructure:"field"`
}

func (o FlatMapOp) Apply(elements []any, _ *types.TemplateContext) ([]any, error) {
	var out []any
	for _, el := range elements {
		v, err := jmespath.Search(o.Field, el)
		if err != nil {
			return nil, err
		}
		arr, ok := v.([]any)
		if !ok {
			continue
		}
		out = append(out, arr...)
	}
	return out, nil
}

// GroupByOp buckets elements by a key field and computes aggregations per
// bucket, producing one output element per distinct key.
type GroupByOp struct {
	Key          string            `mapstructure:"key"`
	Aggregations map[string]string `mapstructure:"aggregations"`
}

func (o GroupByOp) Apply(elements []any, _ *types.TemplateContext) ([]any, error) {
	order := []string{}
	buckets := map[string][]any{}
	for _, el := range elements {
		v, err := jmespath.Search(o.Key, el)
		if err != nil {
			return nil, err
		}
		k := fmt.Sprint(v)
		if _, ok := buckets[k]; !ok {
			order = append(order, k)
		}
		buckets[k] = append(buckets[k], el)
	}

	out := make([]any, 0, len(order))
	for _, k := range order {
		group := buckets[k]
		row := map[string]any{o.Key: k}
		for outName, fn := range o.Aggregations {
			v, err := applyAggregation(fn, group)
			if err != nil {
				return nil, err
			}
			row[outName] = v
		}
		out = append(out, row)
	}
	return out, nil
}

// JoinOp joins the pipeline sequence against a second sequence resolved
// from the template context (e.g. "{{input.otherList}}").
type JoinOp struct {
	LeftKey  string `mapstructure:"leftKey"`
	RightKey string `mapstructure:"rightKey"`
	Right    string `mapstructure:"right"`
	Type     string `mapstructure:"joinType"`
}

func (o JoinOp) Apply(elements []any, tctx *types.TemplateContext) ([]any, error) {
	right, err := resolveArray(o.Right, tctx)
	if err != nil {
		return nil, err
	}

	rightByKey := map[string][]any{}
	for _, r := range right {
		v, err := jmespath.Search(o.RightKey, r)
		if err != nil {
			return nil, err
		}
		k := fmt.Sprint(v)
		rightByKey[k] = append(rightByKey[k], r)
	}

	var out []any
	matchedRight := map[string]bool{}
	for _, l := range elements {
		v, err := jmespath.Search(o.LeftKey, l)
		if err != nil {
			return nil, err
		}
		k := fmt.Sprint(v)
		matches := rightByKey[k]
		if len(matches) == 0 {
			if o.Type == "left" {
				out = append(out, mergeRows(l, nil))
			}
			continue
		}
		matchedRight[k] = true
		for _, r := range matches {
			out = append(out, mergeRows(l, r))
		}
	}
	if o.Type == "right" {
		for k, matches := range rightByKey {
			if matchedRight[k] {
				continue
			}
			for _, r := range matches {
				out = append(out, mergeRows(nil, r))
			}
		}
	}
	return out, nil
}

func mergeRows(l, r any) map[string]any {
	out := map[string]any{}
	if lm, ok := l.(map[string]any); ok {
		for k, v := range lm {
			out[k] = v
		}
	}
	if rm, ok := r.(map[string]any); ok {
		for k, v := range rm {
			out[k] = v
		}
	}
	return out
}

// SortByOp orders elements by a field, ascending or descending.
type SortByOp struct {
	Field string `mapstructure:"field"`
	Order string `mapstructure:"order"`
}

func (o SortByOp) Apply(elements []any, _ *types.TemplateContext) ([]any, error) {
	out := append([]any{}, elements...)
	var sortErr error
	sort.SliceStable(out, func(i, j int) bool {
		vi, err := jmespath.Search(o.Field, out[i])
		if err != nil {
			sortErr = err
		}
		vj, err := jmespath.Search(o.Field, out[j])
		if err != nil {
			sortErr = err
		}
		less := compareValues(vi, vj) < 0
		if o.Order == "desc" {
			return !less
		}
		return less
	})
	return out, sortErr
}

func compareValues(a, b any) int {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}
	as, bs := fmt.Sprint(a), fmt.Sprint(b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	default:
		return 0
	}
}

// AggregateOp reduces the whole sequence to a single output element.
type AggregateOp struct {
	Aggregations map[string]string `mapstructure:"aggregations"`
}

func (o AggregateOp) Apply(elements []any, _ *types.TemplateContext) ([]any, error) {
	row := map[string]any{}
	for outName, fn := range o.Aggregations {
		v, err := applyAggregation(fn, elements)
		if err != nil {
			return nil, err
		}
		row[outName] = v
	}
	return []any{row}, nil
}

// LimitOp keeps at most Count elements.
type LimitOp struct {
	Count int `mapstructure:"count"`
}

func (o LimitOp) Apply(elements []any, _ *types.TemplateContext) ([]any, error) {
	if o.Count >= len(elements) {
		return elements, nil
	}
	return elements[:o.Count], nil
}

// SkipOp drops the first Count elements.
type SkipOp struct {
	Count int `mapstructure:"count"`
}

func (o SkipOp) Apply(elements []any, _ *types.TemplateContext) ([]any, error) {
	if o.Count >= len(elements) {
		return []any{}, nil
	}
	return elements[o.Count:], nil
}

// EnrichOp merges computed fields into each element in place (unlike
// select/map, the original fields are kept).
type EnrichOp struct {
	Fields map[string]string `mapstructure:"fields"`
}

func (o EnrichOp) Apply(elements []any, _ *types.TemplateContext) ([]any, error) {
	out := make([]any, len(elements))
	for i, el := range elements {
		elCtx := elementContext(el)
		merged := mergeRows(el, nil)
		for outName, expr := range o.Fields {
			resolved, err := template.EvaluateString(expr, elCtx)
			if err != nil {
				return nil, err
			}
			merged[outName] = template.ReparseIfStructured(resolved)
		}
		out[i] = merged
	}
	return out, nil
}

func elementContext(el any) *types.TemplateContext {
	if m, ok := el.(map[string]any); ok {
		return types.NewTemplateContext(m)
	}
	return types.NewTemplateContext(map[string]any{"value": el})
}

func resolveArray(expr string, tctx *types.TemplateContext) ([]any, error) {
	resolved, err := template.EvaluateString(expr, tctx)
	if err != nil {
		return nil, err
	}
	v := template.ReparseIfStructured(resolved)
	arr, ok := v.([]any)
	if !ok {
		return nil, types.NewResolutionError(expr, "expected an array")
	}
	return arr, nil
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	default:
		return 0, false
	}
}
