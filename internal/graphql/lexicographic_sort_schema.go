package graphql

import (
	"sort"

	"github.com/vektah/gqlparser/v2/ast"
)

// LexicographicSortDefinitions sorts defs by name, and the members of each definition.
func LexicographicSortDefinitions(defs ast.DefinitionList) ast.DefinitionList {
	sort.SliceStable(defs, func(i, j int) bool {
		return defs[i].Name < defs[j].Name
	})
	for _, def := range defs {
		LexicographicSortDefinition(def)
	}
	return defs
}

// LexicographicSortDefinition sorts fields, arguments, enum values, interfaces, union members
// and directive applications of def in place.
func LexicographicSortDefinition(def *ast.Definition) {
	if def == nil {
		return
	}

	sortDirectiveList(def.Directives)
	sort.Strings(def.Interfaces)
	sortFieldList(def.Fields)
	sort.Strings(def.Types)
	sortEnumValueList(def.EnumValues)
}

func sortArgumentList(args ast.ArgumentList) {
	sort.SliceStable(args, func(i, j int) bool {
		argA := args[i]
		argB := args[j]
		return argA.Name < argB.Name
	})
}

func sortDirectiveList(directives ast.DirectiveList) {
	sort.SliceStable(directives, func(i, j int) bool {
		directiveA := directives[i]
		directiveB := directives[j]
		return directiveA.Name < directiveB.Name
	})

	for _, directive := range directives {
		sortArgumentList(directive.Arguments)
	}
}

func sortArgumentDefinitionList(argDefs ast.ArgumentDefinitionList) {
	sort.SliceStable(argDefs, func(i, j int) bool {
		argDefA := argDefs[i]
		argDefB := argDefs[j]
		return argDefA.Name < argDefB.Name
	})

	for _, argDef := range argDefs {
		sortDirectiveList(argDef.Directives)
	}
}

func sortFieldList(fields ast.FieldList) {
	sort.SliceStable(fields, func(i, j int) bool {
		fieldA := fields[i]
		fieldB := fields[j]
		return fieldA.Name < fieldB.Name
	})

	for _, field := range fields {
		sortArgumentDefinitionList(field.Arguments)
		sortDirectiveList(field.Directives)
	}
}

func sortEnumValueList(enumValues ast.EnumValueList) {
	sort.SliceStable(enumValues, func(i, j int) bool {
		enumValueA := enumValues[i]
		enumValueB := enumValues[j]
		return enumValueA.Name < enumValueB.Name
	})

	for _, enumValue := range enumValues {
		sortDirectiveList(enumValue.Directives)
	}
}
