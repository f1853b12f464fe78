// ABOUTME: Per-element string and math transform operations (§4.8)

package transform

import (
	"fmt"
	"strings"

	"github.com/jmespath/go-jmespath"
	"github.com/shopspring/decimal"

	"github.com/flowctl/engine/internal/template"
	"github.com/flowctl/engine/pkg/types"
)

func parseElementOp(tag string, raw map[string]any) (Operation, error) {
	switch tag {
	case "uppercase":
		return parseFieldOp(tag, raw, func(s string) string { return strings.ToUpper(s) })
	case "lowercase":
		return parseFieldOp(tag, raw, func(s string) string { return strings.ToLower(s) })
	case "trim":
		return parseFieldOp(tag, raw, strings.TrimSpace)
	case "split":
		var op SplitOp
		if err := decode(raw, &op); err != nil || op.Field == "" || op.Into == "" {
			return nil, fieldErr(tag, "field/into")
		}
		if op.Separator == "" {
			op.Separator = ","
		}
		return op, nil
	case "concat":
		var op ConcatOp
		if err := decode(raw, &op); err != nil || len(op.Fields) == 0 || op.Into == "" {
			return nil, fieldErr(tag, "fields/into")
		}
		return op, nil
	case "replace":
		var op ReplaceOp
		if err := decode(raw, &op); err != nil || op.Field == "" {
			return nil, fieldErr(tag, "field")
		}
		return op, nil
	case "substring":
		var op SubstringOp
		if err := decode(raw, &op); err != nil || op.Field == "" {
			return nil, fieldErr(tag, "field")
		}
		return op, nil
	case "template":
		var op TemplateOp
		if err := decode(raw, &op); err != nil || op.Template == "" || op.Into == "" {
			return nil, fieldErr(tag, "template/into")
		}
		return op, nil
	case "round", "floor", "ceil", "abs":
		var op MathOp
		if err := decode(raw, &op); err != nil || op.Field == "" {
			return nil, fieldErr(tag, "field")
		}
		op.Fn = tag
		return op, nil
	case "clamp":
		var op ClampOp
		if err := decode(raw, &op); err != nil || op.Field == "" {
			return nil, fieldErr(tag, "field")
		}
		return op, nil
	case "scale":
		var op ScaleOp
		if err := decode(raw, &op); err != nil || op.Field == "" {
			return nil, fieldErr(tag, "field")
		}
		return op, nil
	case "percentage":
		var op PercentageOp
		if err := decode(raw, &op); err != nil || op.Field == "" || op.Of == 0 {
			return nil, fieldErr(tag, "field/of")
		}
		return op, nil
	}
	return parseArrayOp(tag, raw)
}

type fieldFn struct {
	Field string `mapstructure:"field"`
	fn    func(string) string
}

func parseFieldOp(tag string, raw map[string]any, fn func(string) string) (Operation, error) {
	var op fieldFn
	if err := decode(raw, &op); err != nil || op.Field == "" {
		return nil, fieldErr(tag, "field")
	}
	op.fn = fn
	return op, nil
}

func (o fieldFn) Apply(elements []any, _ *types.TemplateContext) ([]any, error) {
	return mapField(elements, o.Field, func(v any) (any, error) {
		s, ok := v.(string)
		if !ok {
			return v, nil
		}
		return o.fn(s), nil
	})
}

// SplitOp splits a string field by Separator into an array stored at Into.
type SplitOp struct {
	Field     string `mapstructure:"field"`
	Separator string `mapstructure:"separator"`
	Into      string `mapstructure:"into"`
}

func (o SplitOp) Apply(elements []any, _ *types.TemplateContext) ([]any, error) {
	out := make([]any, len(elements))
	for i, el := range elements {
		v, err := jmespath.Search(o.Field, el)
		if err != nil {
			return nil, err
		}
		s, _ := v.(string)
		parts := strings.Split(s, o.Separator)
		arr := make([]any, len(parts))
		for j, p := range parts {
			arr[j] = p
		}
		out[i] = setField(el, o.Into, arr)
	}
	return out, nil
}

// ConcatOp joins several fields with Separator into a new field Into.
type ConcatOp struct {
	Fields    []string `mapstructure:"fields"`
	Separator string   `mapstructure:"separator"`
	Into      string   `mapstructure:"into"`
}

func (o ConcatOp) Apply(elements []any, _ *types.TemplateContext) ([]any, error) {
	out := make([]any, len(elements))
	for i, el := range elements {
		parts := make([]string, len(o.Fields))
		for j, f := range o.Fields {
			v, err := jmespath.Search(f, el)
			if err != nil {
				return nil, err
			}
			parts[j] = fmt.Sprint(v)
		}
		out[i] = setField(el, o.Into, strings.Join(parts, o.Separator))
	}
	return out, nil
}

// ReplaceOp replaces occurrences of Old with New within a string field.
type ReplaceOp struct {
	Field string `mapstructure:"field"`
	Old   string `mapstructure:"old"`
	New   string `mapstructure:"new"`
}

func (o ReplaceOp) Apply(elements []any, _ *types.TemplateContext) ([]any, error) {
	return mapField(elements, o.Field, func(v any) (any, error) {
		s, ok := v.(string)
		if !ok {
			return v, nil
		}
		return strings.ReplaceAll(s, o.Old, o.New), nil
	})
}

// SubstringOp extracts [Start:End) of a string field (End=0 means to the end).
type SubstringOp struct {
	Field string `mapstructure:"field"`
	Start int    `mapstructure:"start"`
	End   int    `mapstructure:"end"`
}

func (o SubstringOp) Apply(elements []any, _ *types.TemplateContext) ([]any, error) {
	return mapField(elements, o.Field, func(v any) (any, error) {
		s, ok := v.(string)
		if !ok {
			return v, nil
		}
		start, end := o.Start, o.End
		if end <= 0 || end > len(s) {
			end = len(s)
		}
		if start < 0 {
			start = 0
		}
		if start > end {
			return "", nil
		}
		return s[start:end], nil
	})
}

// TemplateOp renders Template with the element as its input root, storing
// the result at Into.
type TemplateOp struct {
	Template string `mapstructure:"template"`
	Into     string `mapstructure:"into"`
}

func (o TemplateOp) Apply(elements []any, _ *types.TemplateContext) ([]any, error) {
	out := make([]any, len(elements))
	for i, el := range elements {
		resolved, err := template.EvaluateString(o.Template, elementContext(el))
		if err != nil {
			return nil, err
		}
		out[i] = setField(el, o.Into, resolved)
	}
	return out, nil
}

// MathOp applies a unary numeric function (round/floor/ceil/abs) to a field.
type MathOp struct {
	Field     string `mapstructure:"field"`
	Precision int32  `mapstructure:"precision"`
	Fn        string `mapstructure:"-"`
}

func (o MathOp) Apply(elements []any, _ *types.TemplateContext) ([]any, error) {
	return mapField(elements, o.Field, func(v any) (any, error) {
		f, ok := toFloat(v)
		if !ok {
			return v, nil
		}
		d := decimal.NewFromFloat(f)
		var r decimal.Decimal
		switch o.Fn {
		case "round":
			r = d.Round(o.Precision)
		case "floor":
			r = d.Floor()
		case "ceil":
			r = d.Ceil()
		case "abs":
			r = d.Abs()
		}
		out, _ := r.Float64()
		return out, nil
	})
}

// ClampOp bounds a numeric field to [Min, Max].
type ClampOp struct {
	Field string  `mapstructure:"field"`
	Min   float64 `mapstructure:"min"`
	Max   float64 `mapstructure:"max"`
}

func (o ClampOp) Apply(elements []any, _ *types.TemplateContext) ([]any, error) {
	return mapField(elements, o.Field, func(v any) (any, error) {
		f, ok := toFloat(v)
		if !ok {
			return v, nil
		}
		if f < o.Min {
			f = o.Min
		}
		if f > o.Max {
			f = o.Max
		}
		return f, nil
	})
}

// ScaleOp multiplies a numeric field by Factor.
type ScaleOp struct {
	Field  string  `mapstructure:"field"`
	Factor float64 `mapstructure:"factor"`
}

func (o ScaleOp) Apply(elements []any, _ *types.TemplateContext) ([]any, error) {
	return mapField(elements, o.Field, func(v any) (any, error) {
		f, ok := toFloat(v)
		if !ok {
			return v, nil
		}
		return decimal.NewFromFloat(f).Mul(decimal.NewFromFloat(o.Factor)).InexactFloat64(), nil
	})
}

// PercentageOp expresses a numeric field as a percentage of Of.
type PercentageOp struct {
	Field string  `mapstructure:"field"`
	Of    float64 `mapstructure:"of"`
}

func (o PercentageOp) Apply(elements []any, _ *types.TemplateContext) ([]any, error) {
	return mapField(elements, o.Field, func(v any) (any, error) {
		f, ok := toFloat(v)
		if !ok {
			return v, nil
		}
		return decimal.NewFromFloat(f).Div(decimal.NewFromFloat(o.Of)).Mul(decimal.NewFromInt(100)).InexactFloat64(), nil
	})
}

// mapField rewrites one field of every element via fn, leaving the rest
// untouched. Non-map elements are returned unchanged.
func mapField(elements []any, field string, fn func(any) (any, error)) ([]any, error) {
	out := make([]any, len(elements))
	for i, el := range elements {
		m, ok := el.(map[string]any)
		if !ok {
			out[i] = el
			continue
		}
		v, err := jmespath.Search(field, m)
		if err != nil {
			return nil, err
		}
		nv, err := fn(v)
		if err != nil {
			return nil, err
		}
		out[i] = setField(el, field, nv)
	}
	return out, nil
}

// setField assigns val at a top-level key of a shallow-copied map. Nested
// dotted paths are not supported for writes (only select/reads use JMESPath).
func setField(el any, field string, val any) map[string]any {
	out := map[string]any{}
	if m, ok := el.(map[string]any); ok {
		for k, v := range m {
			out[k] = v
		}
	}
	out[field] = val
	return out
}
