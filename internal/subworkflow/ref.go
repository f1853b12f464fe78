// ABOUTME: WorkflowRef parsing and catalog resolution (§4.13)

package subworkflow

import (
	"strings"

	"github.com/flowctl/engine/pkg/types"
)

// Ref is a parsed "[namespace/]name[@version]" workflow reference.
type Ref struct {
	Namespace string
	Name      string
	Version   string
}

// ParseRef parses a WorkflowRef string per §4.13: the suffix after the last
// '@' is the version, then the remainder is split on the first '/' into
// namespace and name.
func ParseRef(s string) Ref {
	rest := s
	var version string
	if at := strings.LastIndexByte(rest, '@'); at >= 0 {
		version = rest[at+1:]
		rest = rest[:at]
	}

	var namespace, name string
	if slash := strings.IndexByte(rest, '/'); slash >= 0 {
		namespace = rest[:slash]
		name = rest[slash+1:]
	} else {
		name = rest
	}

	return Ref{Namespace: namespace, Name: name, Version: version}
}

// Resolve looks up a WorkflowRef against catalog, defaulting the namespace
// to parentNamespace when the ref did not specify one.
func Resolve(catalog types.WorkflowCatalog, ref Ref, parentNamespace string) (*types.WorkflowResource, bool) {
	namespace := ref.Namespace
	if namespace == "" {
		namespace = parentNamespace
	}
	return catalog.Get(namespace, ref.Name, ref.Version)
}
