package satisfiability

import (
	"github.com/vvakame/fedgraph/internal/supergraph"
)

// ValidationContext answers questions about the supergraph the subgraphs no longer carry.
type ValidationContext struct {
	sg *supergraph.Supergraph

	shareable map[string]bool
}

func NewValidationContext(sg *supergraph.Supergraph) *ValidationContext {
	return &ValidationContext{
		sg:        sg,
		shareable: make(map[string]bool),
	}
}

// IsShareable reports whether more than one subgraph resolves typeName.fieldName.
// A field without @join__field is resolved by every graph of its type, otherwise by every
// graph whose @join__field is neither external nor usedOverridden.
func (c *ValidationContext) IsShareable(typeName, fieldName string) bool {
	coordinate := typeName + "." + fieldName
	if shareable, ok := c.shareable[coordinate]; ok {
		return shareable
	}

	shareable := false
	joinFields, err := c.sg.Schema.JoinFields(typeName, fieldName)
	switch {
	case err != nil || c.sg.Schema.Field(typeName, fieldName) == nil:
	case len(joinFields) == 0:
		joinTypes, err := c.sg.Schema.JoinTypes(typeName)
		shareable = err == nil && len(joinTypes) > 1
	default:
		var resolvers int
		for _, joinField := range joinFields {
			if joinField.Graph != "" && !joinField.External && !joinField.UsedOverridden {
				resolvers++
			}
		}
		shareable = resolvers > 1
	}

	c.shareable[coordinate] = shareable
	return shareable
}
