// ABOUTME: Whole-sequence array and random transform operations (§4.8)

package transform

import (
	"math/rand"

	"github.com/flowctl/engine/internal/template"
	"github.com/flowctl/engine/pkg/types"
)

func parseArrayOp(tag string, raw map[string]any) (Operation, error) {
	switch tag {
	case "first":
		var op FirstOp
		_ = decode(raw, &op)
		if op.N <= 0 {
			op.N = 1
		}
		return op, nil
	case "last":
		var op LastOp
		_ = decode(raw, &op)
		if op.N <= 0 {
			op.N = 1
		}
		return op, nil
	case "nth":
		var op NthOp
		if err := decode(raw, &op); err != nil {
			return nil, fieldErr(tag, "index")
		}
		return op, nil
	case "reverse":
		return ReverseOp{}, nil
	case "unique":
		var op UniqueOp
		_ = decode(raw, &op)
		return op, nil
	case "flatten":
		return FlattenOp{}, nil
	case "chunk":
		var op ChunkOp
		if err := decode(raw, &op); err != nil || op.Size <= 0 {
			return nil, fieldErr(tag, "size > 0")
		}
		return op, nil
	case "zip":
		var op ZipOp
		if err := decode(raw, &op); err != nil || op.Right == "" {
			return nil, fieldErr(tag, "right")
		}
		return op, nil
	case "randomOne":
		return RandomOneOp{}, nil
	case "randomN":
		var op RandomNOp
		if err := decode(raw, &op); err != nil || op.N <= 0 {
			return nil, fieldErr(tag, "n > 0")
		}
		return op, nil
	case "shuffle":
		return ShuffleOp{}, nil
	}
	return nil, types.NewValidationError("pipeline", "unknown transform operation")
}

// FirstOp keeps the first N elements.
type FirstOp struct {
	N int `mapstructure:"n"`
}

func (o FirstOp) Apply(elements []any, _ *types.TemplateContext) ([]any, error) {
	if o.N >= len(elements) {
		return elements, nil
	}
	return elements[:o.N], nil
}

// LastOp keeps the last N elements.
type LastOp struct {
	N int `mapstructure:"n"`
}

func (o LastOp) Apply(elements []any, _ *types.TemplateContext) ([]any, error) {
	if o.N >= len(elements) {
		return elements, nil
	}
	return elements[len(elements)-o.N:], nil
}

// NthOp keeps only the element at Index (0-based), or an empty sequence if
// out of range.
type NthOp struct {
	Index int `mapstructure:"index"`
}

func (o NthOp) Apply(elements []any, _ *types.TemplateContext) ([]any, error) {
	if o.Index < 0 || o.Index >= len(elements) {
		return []any{}, nil
	}
	return []any{elements[o.Index]}, nil
}

// ReverseOp reverses the sequence order.
type ReverseOp struct{}

func (o ReverseOp) Apply(elements []any, _ *types.TemplateContext) ([]any, error) {
	out := make([]any, len(elements))
	for i, el := range elements {
		out[len(elements)-1-i] = el
	}
	return out, nil
}

// UniqueOp removes duplicate elements; if Field is set, uniqueness is by
// that field's value, otherwise by the element's textual form.
type UniqueOp struct {
	Field string `mapstructure:"field"`
}

func (o UniqueOp) Apply(elements []any, _ *types.TemplateContext) ([]any, error) {
	seen := map[string]bool{}
	out := make([]any, 0, len(elements))
	for _, el := range elements {
		var key string
		if o.Field != "" {
			m, _ := el.(map[string]any)
			key = keyOf(m[o.Field])
		} else {
			key = keyOf(el)
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, el)
	}
	return out, nil
}

func keyOf(v any) string {
	return template.Stringify(v)
}

// FlattenOp splices any element that is itself an array into the result.
type FlattenOp struct{}

func (o FlattenOp) Apply(elements []any, _ *types.TemplateContext) ([]any, error) {
	var out []any
	for _, el := range elements {
		if arr, ok := el.([]any); ok {
			out = append(out, arr...)
		} else {
			out = append(out, el)
		}
	}
	return out, nil
}

// ChunkOp groups elements into fixed-size sub-arrays (the last may be
// shorter).
type ChunkOp struct {
	Size int `mapstructure:"size"`
}

func (o ChunkOp) Apply(elements []any, _ *types.TemplateContext) ([]any, error) {
	var out []any
	for i := 0; i < len(elements); i += o.Size {
		end := i + o.Size
		if end > len(elements) {
			end = len(elements)
		}
		out = append(out, append([]any{}, elements[i:end]...))
	}
	return out, nil
}

// ZipOp pairs each element with the corresponding element of a second
// sequence resolved from the template context.
type ZipOp struct {
	Right string `mapstructure:"right"`
}

func (o ZipOp) Apply(elements []any, tctx *types.TemplateContext) ([]any, error) {
	right, err := resolveArray(o.Right, tctx)
	if err != nil {
		return nil, err
	}
	n := len(elements)
	if len(right) < n {
		n = len(right)
	}
	out := make([]any, n)
	for i := 0; i < n; i++ {
		out[i] = []any{elements[i], right[i]}
	}
	return out, nil
}

// RandomOneOp keeps a single randomly chosen element.
type RandomOneOp struct{}

func (o RandomOneOp) Apply(elements []any, _ *types.TemplateContext) ([]any, error) {
	if len(elements) == 0 {
		return elements, nil
	}
	return []any{elements[rand.Intn(len(elements))]}, nil
}

// RandomNOp keeps N randomly chosen elements without replacement.
type RandomNOp struct {
	N int `mapstructure:"n"`
}

func (o RandomNOp) Apply(elements []any, _ *types.TemplateContext) ([]any, error) {
	shuffled := shuffleCopy(elements)
	if o.N >= len(shuffled) {
		return shuffled, nil
	}
	return shuffled[:o.N], nil
}

// ShuffleOp randomly permutes the sequence.
type ShuffleOp struct{}

func (o ShuffleOp) Apply(elements []any, _ *types.TemplateContext) ([]any, error) {
	return shuffleCopy(elements), nil
}

func shuffleCopy(elements []any) []any {
	out := append([]any{}, elements...)
	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}
