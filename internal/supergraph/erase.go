package supergraph

import (
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vvakame/fedgraph/internal/federation"
)

// eraseEmptyTypes removes the types every field of which was overridden away, and what referenced them.
func (e *extractor) eraseEmptyTypes(t *target) {
	roots := make(map[string]bool)
	for _, operation := range []ast.Operation{ast.Query, ast.Mutation, ast.Subscription} {
		roots[e.schema.RootType(operation)] = true
	}

	for _, name := range pruneEmptyTypes(t.builder, isEmptyAfterOverride) {
		if roots[name] {
			continue
		}
		var pos *ast.Position
		if def := e.schema.Type(name); def != nil {
			pos = def.Position
		}
		e.hints = append(e.hints, federation.NewError(
			pos, CodeEmptyTypeAfterOverride,
			"[%s] Type %q has no field left once overridden fields are removed, so it is removed from the subgraph",
			t.graph.Name, name,
		))
	}
}

// isEmptyAfterOverride reports composite types with no field other than the ones kept for an @override.
func isEmptyAfterOverride(def *ast.Definition) bool {
	switch def.Kind {
	case ast.Object, ast.Interface:
		for _, field := range def.Fields {
			if !isOverriddenExternal(field) {
				return false
			}
		}
		return true
	case ast.Union:
		return len(def.Types) == 0
	default:
		return false
	}
}

func isOverriddenExternal(field *ast.FieldDefinition) bool {
	dir := field.Directives.ForName("external")
	if dir == nil {
		return false
	}
	reason := dir.Arguments.ForName("reason")
	return reason != nil && reason.Value.Raw == federation.OverriddenReason
}

// pruneEmptyTypes removes the types isEmpty selects together with the fields, implementations
// and union members referencing them. Removal repeats until no type becomes empty,
// and the removed names are returned in removal order.
func pruneEmptyTypes(b *federation.Builder, isEmpty func(def *ast.Definition) bool) []string {
	var erased []string
	for {
		removed := make(map[string]bool)
		for _, def := range b.Types() {
			if isEmpty(def) {
				removed[def.Name] = true
				erased = append(erased, def.Name)
			}
		}
		if len(removed) == 0 {
			return erased
		}
		for name := range removed {
			b.RemoveType(name)
		}

		for _, def := range b.Types() {
			var fields ast.FieldList
			for _, field := range def.Fields {
				if removed[field.Type.Name()] {
					continue
				}
				var args ast.ArgumentDefinitionList
				for _, arg := range field.Arguments {
					if !removed[arg.Type.Name()] {
						args = append(args, arg)
					}
				}
				field.Arguments = args
				fields = append(fields, field)
			}
			def.Fields = fields

			var interfaces []string
			for _, iface := range def.Interfaces {
				if !removed[iface] {
					interfaces = append(interfaces, iface)
				}
			}
			def.Interfaces = interfaces

			var members []string
			for _, member := range def.Types {
				if !removed[member] {
					members = append(members, member)
				}
			}
			def.Types = members
		}
	}
}
