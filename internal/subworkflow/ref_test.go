package subworkflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRef_NameOnly(t *testing.T) {
	ref := ParseRef("billing")
	assert.Equal(t, "", ref.Namespace)
	assert.Equal(t, "billing", ref.Name)
	assert.Equal(t, "", ref.Version)
}

func TestParseRef_NamespaceAndVersion(t *testing.T) {
	ref := ParseRef("payments/billing@2")
	assert.Equal(t, "payments", ref.Namespace)
	assert.Equal(t, "billing", ref.Name)
	assert.Equal(t, "2", ref.Version)
}

func TestParseRef_VersionOnly(t *testing.T) {
	ref := ParseRef("billing@1.2.0")
	assert.Equal(t, "", ref.Namespace)
	assert.Equal(t, "billing", ref.Name)
	assert.Equal(t, "1.2.0", ref.Version)
}

func TestParseRef_NamespaceContainingAt(t *testing.T) {
	// the version is always the suffix after the LAST '@'
	ref := ParseRef("ns/name@v1@2")
	assert.Equal(t, "ns", ref.Namespace)
	assert.Equal(t, "name@v1", ref.Name)
	assert.Equal(t, "2", ref.Version)
}
