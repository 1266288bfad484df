package planner

import (
	"github.com/99designs/gqlgen/graphql"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vvakame/fedgraph/internal/utils"
)

func satisfiesOf(def *ast.Definition) []string {
	return utils.Satisfies(def)
}

func sortedPossibleTypes(schema *ast.Schema, def *ast.Definition) []*ast.Definition {
	return utils.SortedPossibleTypes(schema, def)
}

func onlyTypename(fields []graphql.CollectedField) bool {
	for _, field := range fields {
		if field.Name != "__typename" {
			return false
		}
	}
	return true
}

// copyField is field without its definition bindings, selecting selectionSet.
// validator.Walk rebinds definitions of what it visits, so fetch operations never share nodes
// with the user operation.
func copyField(field *ast.Field, selectionSet ast.SelectionSet) *ast.Field {
	return &ast.Field{
		Alias:        field.Alias,
		Name:         field.Name,
		Arguments:    field.Arguments,
		Directives:   field.Directives,
		SelectionSet: selectionSet,
	}
}

// cloneSelection deep copies a field set selection.
func cloneSelection(selectionSet ast.SelectionSet) ast.SelectionSet {
	if selectionSet == nil {
		return nil
	}
	result := make(ast.SelectionSet, 0, len(selectionSet))
	for _, sel := range selectionSet {
		switch sel := sel.(type) {
		case *ast.Field:
			result = append(result, copyField(sel, cloneSelection(sel.SelectionSet)))
		case *ast.InlineFragment:
			result = append(result, &ast.InlineFragment{
				TypeCondition: sel.TypeCondition,
				Directives:    sel.Directives,
				SelectionSet:  cloneSelection(sel.SelectionSet),
			})
		case *ast.FragmentSpread:
			copied := *sel
			result = append(result, &copied)
		}
	}
	return result
}

// addPath appends the response name and one "@" per list level of typ.
func addPath(path ast.Path, responseName string, typ *ast.Type) ast.Path {
	newPath := append(ast.Path{}, path...)
	newPath = append(newPath, ast.PathName(responseName))
	for typ != nil && typ.Elem != nil {
		newPath = append(newPath, ast.PathName("@"))
		typ = typ.Elem
	}
	return newPath
}
