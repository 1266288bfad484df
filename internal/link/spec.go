package link

import (
	"sort"

	"github.com/vektah/gqlparser/v2/ast"
)

type Purpose string

const (
	PurposeSecurity  Purpose = "SECURITY"
	PurposeExecution Purpose = "EXECUTION"
)

func ParsePurpose(s string) (Purpose, bool) {
	switch Purpose(s) {
	case PurposeSecurity, PurposeExecution:
		return Purpose(s), true
	default:
		return "", false
	}
}

// SpecDefinition is one version of a feature spec. Directive and type
// definitions use the canonical names declared by the spec, without any
// namespace prefix. Argument types referring to the spec's own types use
// canonical names too.
type SpecDefinition struct {
	URL                      URL
	MinimumFederationVersion *Version

	directives ast.DirectiveDefinitionList
	types      ast.DefinitionList
}

func (spec *SpecDefinition) Identity() Identity {
	return spec.URL.Identity
}

func (spec *SpecDefinition) Version() Version {
	return spec.URL.Version
}

func (spec *SpecDefinition) Directive(name string) *ast.DirectiveDefinition {
	return spec.directives.ForName(name)
}

func (spec *SpecDefinition) Type(name string) *ast.Definition {
	return spec.types.ForName(name)
}

func (spec *SpecDefinition) Directives() ast.DirectiveDefinitionList {
	return spec.directives
}

func (spec *SpecDefinition) Types() ast.DefinitionList {
	return spec.types
}

func (spec *SpecDefinition) DirectiveNames() []string {
	names := make([]string, 0, len(spec.directives))
	for _, def := range spec.directives {
		names = append(names, def.Name)
	}
	sort.Strings(names)
	return names
}

func (spec *SpecDefinition) TypeNames() []string {
	names := make([]string, 0, len(spec.types))
	for _, def := range spec.types {
		names = append(names, def.Name)
	}
	sort.Strings(names)
	return names
}

// HasElement reports whether the spec declares a directive (isDirective) or a type named name.
func (spec *SpecDefinition) HasElement(name string, isDirective bool) bool {
	if isDirective {
		return spec.Directive(name) != nil
	}
	return spec.Type(name) != nil
}

// ElementName returns the canonical name of a directive or type declared by the spec.
func (spec *SpecDefinition) ElementName(canonical string) (string, bool) {
	if spec.Directive(canonical) != nil || spec.Type(canonical) != nil {
		return canonical, true
	}
	return "", false
}

// IsExecutableDirective reports whether def may be used in operations.
func IsExecutableDirective(def *ast.DirectiveDefinition) bool {
	for _, location := range def.Locations {
		switch location {
		case ast.LocationQuery, ast.LocationMutation, ast.LocationSubscription,
			ast.LocationField, ast.LocationFragmentDefinition, ast.LocationFragmentSpread,
			ast.LocationInlineFragment, ast.LocationVariableDefinition:
			return true
		}
	}
	return false
}

// copyType returns a copy of typ with its named type passed through rename.
func copyType(typ *ast.Type, rename func(string) string) *ast.Type {
	if typ == nil {
		return nil
	}
	copied := &ast.Type{
		NonNull:  typ.NonNull,
		Position: typ.Position,
	}
	if typ.Elem != nil {
		copied.Elem = copyType(typ.Elem, rename)
	} else {
		copied.NamedType = rename(typ.NamedType)
	}
	return copied
}
