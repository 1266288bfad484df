package graphql

import "strings"

var introspectionTypeNames = []string{
	"__Schema",
	"__Directive",
	"__DirectiveLocation",
	"__Type",
	"__Field",
	"__InputValue",
	"__EnumValue",
	"__TypeKind",
}

func IsIntrospectionType(typeName string) bool {
	for _, name := range introspectionTypeNames {
		if name == typeName {
			return true
		}
	}
	return false
}

// IsMetaField reports __typename, __schema and __type, which no subgraph resolves.
func IsMetaField(fieldName string) bool {
	return strings.HasPrefix(fieldName, "__")
}
