package graphql

import "github.com/vektah/gqlparser/v2/ast"

var blankBuiltInPos = &ast.Position{
	Src: &ast.Source{
		BuiltIn: true,
	},
}

// Used to provide a URL for specifying the behaviour of custom scalar definitions.
// validator.Prelude doesn't declare it.
var GraphQLSpecifiedByDirective = &ast.DirectiveDefinition{
	Description: "Exposes a URL that specifies the behaviour of this scalar.",
	Name:        "specifiedBy",
	Arguments: ast.ArgumentDefinitionList{
		&ast.ArgumentDefinition{
			Description: "The URL that specifies the behaviour of this scalar.",
			Name:        "url",
			Type: &ast.Type{
				NamedType: "String",
				NonNull:   true,
			},
		},
	},
	Locations: []ast.DirectiveLocation{
		ast.LocationScalar,
	},
	Position: blankBuiltInPos,
}

// specifiedDirectiveNames are the directives every GraphQL schema has.
var specifiedDirectiveNames = []string{
	"include",
	"skip",
	"deprecated",
	GraphQLSpecifiedByDirective.Name,
}

// IsSpecifiedDirective reports directives applications of which survive in an API schema.
func IsSpecifiedDirective(name string) bool {
	for _, specified := range specifiedDirectiveNames {
		if specified == name {
			return true
		}
	}
	return false
}
