package utils

import (
	"sort"

	"github.com/vektah/gqlparser/v2/ast"
)

// PossibleTypeNames lists the object types def may resolve to in schema, sorted by name.
func PossibleTypeNames(schema *ast.Schema, def *ast.Definition) []string {
	var names []string
	for _, possible := range schema.GetPossibleTypes(def) {
		names = append(names, possible.Name)
	}
	sort.Strings(names)
	return names
}

// SortedPossibleTypes is PossibleTypeNames resolved to definitions.
func SortedPossibleTypes(schema *ast.Schema, def *ast.Definition) []*ast.Definition {
	var defs []*ast.Definition
	for _, name := range PossibleTypeNames(schema, def) {
		defs = append(defs, schema.Types[name])
	}
	return defs
}

// Satisfies lists the type conditions a selection on def matches: def itself and its interfaces.
func Satisfies(def *ast.Definition) []string {
	return append([]string{def.Name}, def.Interfaces...)
}

func IsTypeDefSubTypeOf(schema *ast.Schema, maybeSubType, superType *ast.Definition) bool {
	// NOTE *ast.Definition doesn't have nullable and list information. just type.

	// Equivalent type is a valid subtype
	if maybeSubType == superType {
		return true
	}

	// If superType type is an abstract type, check if it is super type of maybeSubType.
	// Otherwise, the child type is not a valid subtype of the parent type.
	if !superType.IsAbstractType() {
		return false
	}
	if maybeSubType.Kind != ast.Interface && maybeSubType.Kind != ast.Object {
		return false
	}
	for _, def := range schema.GetPossibleTypes(superType) {
		if def == maybeSubType {
			return true
		}
	}
	return false
}

// CanSpread reports whether a fragment on fragmentType may appear in a selection on parentType:
// the two types must share at least one possible object type.
func CanSpread(schema *ast.Schema, fragmentType, parentType *ast.Definition) bool {
	if IsTypeDefSubTypeOf(schema, fragmentType, parentType) || IsTypeDefSubTypeOf(schema, parentType, fragmentType) {
		return true
	}
	parents := make(map[string]bool)
	for _, name := range PossibleTypeNames(schema, parentType) {
		parents[name] = true
	}
	for _, name := range PossibleTypeNames(schema, fragmentType) {
		if parents[name] {
			return true
		}
	}
	return false
}
