// ABOUTME: Aggregation-function parsing shared by groupBy and aggregate ops

package transform

import (
	"fmt"
	"strings"

	"github.com/jmespath/go-jmespath"
	"github.com/shopspring/decimal"

	"github.com/flowctl/engine/pkg/types"
)

// applyAggregation evaluates a "fn(field)" expression (e.g. "sum(amount)",
// "count()", "avg(price)", "min(x)", "max(x)") over a group of elements.
func applyAggregation(fn string, group []any) (any, error) {
	name, field, err := parseAggFn(fn)
	if err != nil {
		return nil, err
	}

	if name == "count" {
		return len(group), nil
	}

	values := make([]decimal.Decimal, 0, len(group))
	for _, el := range group {
		v, err := jmespath.Search(field, el)
		if err != nil {
			return nil, err
		}
		f, ok := toFloat(v)
		if !ok {
			continue
		}
		values = append(values, decimal.NewFromFloat(f))
	}

	switch name {
	case "sum":
		total := decimal.Zero
		for _, v := range values {
			total = total.Add(v)
		}
		f, _ := total.Float64()
		return f, nil
	case "avg":
		if len(values) == 0 {
			return 0.0, nil
		}
		total := decimal.Zero
		for _, v := range values {
			total = total.Add(v)
		}
		avg := total.Div(decimal.NewFromInt(int64(len(values))))
		f, _ := avg.Float64()
		return f, nil
	case "min":
		if len(values) == 0 {
			return nil, nil
		}
		m := values[0]
		for _, v := range values[1:] {
			if v.LessThan(m) {
				m = v
			}
		}
		f, _ := m.Float64()
		return f, nil
	case "max":
		if len(values) == 0 {
			return nil, nil
		}
		m := values[0]
		for _, v := range values[1:] {
			if v.GreaterThan(m) {
				m = v
			}
		}
		f, _ := m.Float64()
		return f, nil
	default:
		return nil, types.NewValidationError("aggregate", fmt.Sprintf("unknown aggregation function %q", name))
	}
}

func parseAggFn(fn string) (name, field string, err error) {
	open := strings.IndexByte(fn, '(')
	closeIdx := strings.IndexByte(fn, ')')
	if open < 0 || closeIdx < open {
		return "", "", types.NewValidationError("aggregate", fmt.Sprintf("malformed aggregation %q", fn))
	}
	name = strings.TrimSpace(fn[:open])
	field = strings.TrimSpace(fn[open+1 : closeIdx])
	return name, field, nil
}
