package link

import (
	"fmt"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

// for formatter
var blankPos = &ast.Position{
	Src: &ast.Source{
		BuiltIn: false,
	},
}

// specElement is one directive or type of a spec, available for minor
// versions in [since, until). until == 0 means no upper bound.
type specElement struct {
	since uint32
	until uint32
	sdl   string
}

func buildSpec(identity Identity, version Version, minimumFederationVersion *Version, elements []specElement) *SpecDefinition {
	u := URL{Identity: identity, Version: version}

	var buf strings.Builder
	for _, element := range elements {
		if version.Minor < element.since {
			continue
		}
		if element.until != 0 && version.Minor >= element.until {
			continue
		}
		buf.WriteString(element.sdl)
		buf.WriteString("\n")
	}

	doc, err := parser.ParseSchema(&ast.Source{
		Name:  u.String(),
		Input: buf.String(),
	})
	if err != nil {
		panic(fmt.Sprintf("invalid definitions for %s: %s", u.String(), err.Error()))
	}

	return &SpecDefinition{
		URL:                      u,
		MinimumFederationVersion: minimumFederationVersion,
		directives:               doc.Directives,
		types:                    doc.Definitions,
	}
}

var linkPurposeEnum = &ast.Definition{
	Kind: ast.Enum,
	Name: "Purpose",
	EnumValues: ast.EnumValueList{
		&ast.EnumValueDefinition{
			Name:        "SECURITY",
			Description: "`SECURITY` features provide metadata necessary to securely resolve fields.",
		},
		&ast.EnumValueDefinition{
			Name:        "EXECUTION",
			Description: "`EXECUTION` features provide metadata necessary for operation execution.",
		},
	},
	Position: blankPos,
}

var linkImportScalar = &ast.Definition{
	Kind:     ast.Scalar,
	Name:     "Import",
	Position: blankPos,
}

func linkSpec(version Version) *SpecDefinition {
	directive := &ast.DirectiveDefinition{
		Name: "link",
		Arguments: ast.ArgumentDefinitionList{
			&ast.ArgumentDefinition{
				Name: "url",
				Type: &ast.Type{
					NamedType: "String",
				},
			},
			&ast.ArgumentDefinition{
				Name: "as",
				Type: &ast.Type{
					NamedType: "String",
				},
			},
			&ast.ArgumentDefinition{
				Name: "for",
				Type: &ast.Type{
					NamedType: linkPurposeEnum.Name,
				},
			},
			&ast.ArgumentDefinition{
				Name: "import",
				Type: &ast.Type{
					Elem: &ast.Type{
						NamedType: linkImportScalar.Name,
					},
				},
			},
		},
		Locations: []ast.DirectiveLocation{
			ast.LocationSchema,
		},
		IsRepeatable: true,
		Position:     blankPos,
	}

	return &SpecDefinition{
		URL:        URL{Identity: LinkIdentity, Version: version},
		directives: ast.DirectiveDefinitionList{directive},
		types:      ast.DefinitionList{linkImportScalar, linkPurposeEnum},
	}
}

func coreSpec(version Version) *SpecDefinition {
	directive := &ast.DirectiveDefinition{
		Name: "core",
		Arguments: ast.ArgumentDefinitionList{
			&ast.ArgumentDefinition{
				Name: "feature",
				Type: &ast.Type{
					NamedType: "String",
					NonNull:   true,
				},
			},
			&ast.ArgumentDefinition{
				Name: "as",
				Type: &ast.Type{
					NamedType: "String",
				},
			},
		},
		Locations: []ast.DirectiveLocation{
			ast.LocationSchema,
		},
		IsRepeatable: true,
		Position:     blankPos,
	}

	spec := &SpecDefinition{
		URL:        URL{Identity: CoreIdentity, Version: version},
		directives: ast.DirectiveDefinitionList{directive},
	}

	if version.Minor >= 2 {
		directive.Arguments = append(directive.Arguments, &ast.ArgumentDefinition{
			Name: "for",
			Type: &ast.Type{
				NamedType: linkPurposeEnum.Name,
			},
		})
		spec.types = ast.DefinitionList{linkPurposeEnum}
		spec.MinimumFederationVersion = &Version{Major: 2, Minor: 0}
	}

	return spec
}

const (
	typeSystemLocations = "FIELD_DEFINITION | OBJECT | INTERFACE | UNION | ARGUMENT_DEFINITION | SCALAR | ENUM | ENUM_VALUE | INPUT_OBJECT | INPUT_FIELD_DEFINITION"
	authLocations       = "FIELD_DEFINITION | OBJECT | INTERFACE | SCALAR | ENUM"
)

var federationElements = []specElement{
	{sdl: `scalar FieldSet`},
	{sdl: `directive @key(fields: FieldSet!, resolvable: Boolean = true) repeatable on OBJECT | INTERFACE`},
	{sdl: `directive @requires(fields: FieldSet!) on FIELD_DEFINITION`},
	{sdl: `directive @provides(fields: FieldSet!) on FIELD_DEFINITION`},
	{sdl: `directive @external(reason: String) on OBJECT | FIELD_DEFINITION`},
	{sdl: `directive @tag(name: String!) repeatable on ` + typeSystemLocations},
	{sdl: `directive @extends on OBJECT | INTERFACE`},
	{until: 2, sdl: `directive @shareable on OBJECT | FIELD_DEFINITION`},
	{since: 2, sdl: `directive @shareable repeatable on OBJECT | FIELD_DEFINITION`},
	{sdl: `directive @inaccessible on ` + typeSystemLocations},
	{sdl: `directive @override(from: String!) on FIELD_DEFINITION`},
	{since: 1, sdl: `directive @composeDirective(name: String!) repeatable on SCHEMA`},
	{since: 3, sdl: `directive @interfaceObject on OBJECT`},
	{since: 5, sdl: `scalar Scope`},
	{since: 5, sdl: `directive @authenticated on ` + authLocations},
	{since: 5, sdl: `directive @requiresScopes(scopes: [[Scope!]!]!) on ` + authLocations},
}

// federation1DirectiveNames are bound bare when a schema applies them without any @link.
var federation1DirectiveNames = []string{"key", "requires", "provides", "external", "extends", "tag"}

func federationSpec(version Version) *SpecDefinition {
	return buildSpec(FederationIdentity, version, nil, federationElements)
}

var joinElements = []specElement{
	{sdl: `scalar FieldSet`},
	{sdl: `directive @graph(name: String!, url: String!) on ENUM_VALUE`},
	{until: 2, sdl: `directive @type(graph: Graph!, key: FieldSet) repeatable on OBJECT | INTERFACE`},
	{since: 2, until: 3, sdl: `directive @type(graph: Graph!, key: FieldSet, extension: Boolean! = false, resolvable: Boolean! = true) repeatable on OBJECT | INTERFACE | UNION | ENUM | INPUT_OBJECT | SCALAR`},
	{since: 3, sdl: `directive @type(graph: Graph!, key: FieldSet, extension: Boolean! = false, resolvable: Boolean! = true, isInterfaceObject: Boolean! = false) repeatable on OBJECT | INTERFACE | UNION | ENUM | INPUT_OBJECT | SCALAR`},
	{until: 2, sdl: `directive @field(graph: Graph, requires: FieldSet, provides: FieldSet) on FIELD_DEFINITION`},
	{since: 2, sdl: `directive @field(graph: Graph, requires: FieldSet, provides: FieldSet, type: String, external: Boolean, override: String, usedOverridden: Boolean) repeatable on FIELD_DEFINITION | INPUT_FIELD_DEFINITION`},
	{until: 2, sdl: `directive @owner(graph: Graph!) on OBJECT | INTERFACE`},
	{since: 2, sdl: `directive @implements(graph: Graph!, interface: String!) repeatable on OBJECT | INTERFACE`},
	{since: 3, sdl: `directive @unionMember(graph: Graph!, member: String!) repeatable on UNION`},
	{since: 3, sdl: `directive @enumValue(graph: Graph!) repeatable on ENUM_VALUE`},
}

func joinSpec(version Version) *SpecDefinition {
	spec := buildSpec(JoinIdentity, version, nil, joinElements)
	// values are supergraph specific
	spec.types = append(spec.types, &ast.Definition{
		Kind:     ast.Enum,
		Name:     "Graph",
		Position: blankPos,
	})
	return spec
}

var tagElements = []specElement{
	{until: 2, sdl: `directive @tag(name: String!) repeatable on FIELD_DEFINITION | OBJECT | INTERFACE | UNION`},
	{since: 2, until: 3, sdl: `directive @tag(name: String!) repeatable on ` + typeSystemLocations},
	{since: 3, sdl: `directive @tag(name: String!) repeatable on ` + typeSystemLocations + ` | SCHEMA`},
}

func tagSpec(version Version) *SpecDefinition {
	return buildSpec(TagIdentity, version, nil, tagElements)
}

var inaccessibleElements = []specElement{
	{until: 2, sdl: `directive @inaccessible on FIELD_DEFINITION | OBJECT | INTERFACE | UNION`},
	{since: 2, sdl: `directive @inaccessible on ` + typeSystemLocations},
}

func inaccessibleSpec(version Version) *SpecDefinition {
	return buildSpec(InaccessibleIdentity, version, nil, inaccessibleElements)
}
