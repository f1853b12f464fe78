// ABOUTME: Legacy single-JMESPath-query transform form (jsonPath/query + optional input)

package transform

import (
	"github.com/jmespath/go-jmespath"

	"github.com/flowctl/engine/pkg/types"
)

// RunLegacyQuery implements the auxiliary single-query transform form
// (§4.8): an optional "input" expression first narrows the source document,
// then "jsonPath"/"query" (an alias pair, either may be set) is evaluated
// against the (possibly narrowed) value.
func RunLegacyQuery(spec *types.TransformSpec, source any) (any, error) {
	doc := source
	if spec.Input != "" {
		narrowed, err := jmespath.Search(spec.Input, doc)
		if err != nil {
			return nil, err
		}
		doc = narrowed
	}

	expr := spec.JSONPath
	if expr == "" {
		expr = spec.Query
	}
	if expr == "" {
		return doc, nil
	}
	return jmespath.Search(expr, doc)
}
