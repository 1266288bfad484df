package planner

import (
	"github.com/vektah/gqlparser/v2/ast"
)

// FetchGroup is the selection one fetch sends to one subgraph.
// Root groups select on the root type, entity groups on the types of their representations.
type FetchGroup struct {
	ServiceName string
	MergeAt     ast.Path

	// Fields is the selection of a root group.
	Fields ast.SelectionSet

	entityTypes    []string
	entityFields   map[string]ast.SelectionSet
	entityRequires map[string]ast.SelectionSet

	dependentGroupsByKey map[string]*FetchGroup
	dependentKeys        []string
}

func newRootGroup(serviceName string) *FetchGroup {
	return &FetchGroup{ServiceName: serviceName}
}

func (fg *FetchGroup) isEntityFetch() bool {
	return len(fg.entityTypes) != 0
}

// dependentGroupForService returns the group fetching entities of serviceName at mergeAt once fg is done.
func (fg *FetchGroup) dependentGroupForService(serviceName string, mergeAt ast.Path) *FetchGroup {
	if fg.dependentGroupsByKey == nil {
		fg.dependentGroupsByKey = make(map[string]*FetchGroup)
	}

	key := serviceName + "|" + mergeAt.String()
	group := fg.dependentGroupsByKey[key]
	if group == nil {
		group = &FetchGroup{
			ServiceName:    serviceName,
			MergeAt:        mergeAt,
			entityFields:   make(map[string]ast.SelectionSet),
			entityRequires: make(map[string]ast.SelectionSet),
		}
		fg.dependentGroupsByKey[key] = group
		fg.dependentKeys = append(fg.dependentKeys, key)
	}

	return group
}

func (fg *FetchGroup) dependentGroups() []*FetchGroup {
	result := make([]*FetchGroup, 0, len(fg.dependentKeys))
	for _, key := range fg.dependentKeys {
		result = append(result, fg.dependentGroupsByKey[key])
	}
	return result
}

// addEntity records that the representations of typeName carry requires, and that fields
// are fetched for them.
func (fg *FetchGroup) addEntity(typeName string, requires ast.SelectionSet, fields ast.SelectionSet) {
	if _, ok := fg.entityRequires[typeName]; !ok {
		fg.entityTypes = append(fg.entityTypes, typeName)
		fg.entityRequires[typeName] = ast.SelectionSet{typenameField()}
	}
	fg.entityRequires[typeName] = mergeSelectionSets(fg.entityRequires[typeName], requires)
	fg.entityFields[typeName] = mergeSelectionSets(fg.entityFields[typeName], fields)
}

// selectionSet is what the fetch selects: the root fields, or one inline fragment per entity type.
func (fg *FetchGroup) selectionSet() ast.SelectionSet {
	if !fg.isEntityFetch() {
		return fg.Fields
	}
	var selection ast.SelectionSet
	for _, typeName := range fg.entityTypes {
		selection = append(selection, &ast.InlineFragment{
			TypeCondition: typeName,
			SelectionSet:  fg.entityFields[typeName],
		})
	}
	return selection
}

func (fg *FetchGroup) requires() ast.SelectionSet {
	var selection ast.SelectionSet
	for _, typeName := range fg.entityTypes {
		selection = append(selection, &ast.InlineFragment{
			TypeCondition: typeName,
			SelectionSet:  fg.entityRequires[typeName],
		})
	}
	return selection
}

func typenameField() *ast.Field {
	return &ast.Field{Name: "__typename"}
}

func responseName(field *ast.Field) string {
	if field.Alias != "" {
		return field.Alias
	}
	return field.Name
}

// mergeSelectionSets appends b to a, merging fields with the same response name
// and inline fragments with the same type condition.
func mergeSelectionSets(a, b ast.SelectionSet) ast.SelectionSet {
	result := append(ast.SelectionSet{}, a...)
	for _, sel := range b {
		switch sel := sel.(type) {
		case *ast.Field:
			merged := false
			for i, existing := range result {
				existingField, ok := existing.(*ast.Field)
				if !ok || responseName(existingField) != responseName(sel) {
					continue
				}
				copied := *existingField
				copied.SelectionSet = mergeSelectionSets(existingField.SelectionSet, sel.SelectionSet)
				result[i] = &copied
				merged = true
				break
			}
			if !merged {
				result = append(result, sel)
			}
		case *ast.InlineFragment:
			merged := false
			for i, existing := range result {
				existingFragment, ok := existing.(*ast.InlineFragment)
				if !ok || existingFragment.TypeCondition != sel.TypeCondition {
					continue
				}
				copied := *existingFragment
				copied.SelectionSet = mergeSelectionSets(existingFragment.SelectionSet, sel.SelectionSet)
				result[i] = &copied
				merged = true
				break
			}
			if !merged {
				result = append(result, sel)
			}
		default:
			result = append(result, sel)
		}
	}
	return result
}
