package supergraph

import (
	"context"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vvakame/fedgraph/internal/federation"
	"github.com/vvakame/fedgraph/internal/graphql"
	"github.com/vvakame/fedgraph/internal/link"
	"github.com/vvakame/fedgraph/internal/log"
)

// APISchema derives the schema clients query: the supergraph without the link, join and other
// spec elements, without any @inaccessible element, with types and fields in lexicographic order.
func APISchema(ctx context.Context, sg *Supergraph) (*federation.Schema, error) {
	logger := log.FromContext(ctx)
	schema := sg.Schema

	inaccessible := make(map[string]bool)
	for _, identity := range []link.Identity{link.InaccessibleIdentity, link.FederationIdentity} {
		if name, ok := schema.Links.DirectiveName(identity, "inaccessible"); ok {
			inaccessible[name] = true
		}
	}
	isInaccessible := func(directives ast.DirectiveList) bool {
		for _, dir := range directives {
			if inaccessible[dir.Name] {
				return true
			}
		}
		return false
	}

	b := federation.NewBuilder(schema.Name + "-api")

	for _, def := range schema.Document.Directives {
		if schema.Links.IsSpecDirective(def.Name) || def.Name == schema.Links.LinkDirectiveName() {
			continue
		}
		b.InstallDirectiveDefinition(def)
	}
	keepDirectives := func(directives ast.DirectiveList) ast.DirectiveList {
		var result ast.DirectiveList
		for _, dir := range directives {
			switch {
			case graphql.IsSpecifiedDirective(dir.Name):
			case b.DirectiveDefinition(dir.Name) != nil:
			default:
				continue
			}
			result = append(result, federation.NewDirective(dir.Name, dir.Arguments...))
		}
		return result
	}

	removed := make(map[string]bool)
	var defs ast.DefinitionList
	for _, typeName := range schema.TypeNames() {
		def := schema.Type(typeName)
		if sg.skipType(typeName) || isInaccessible(def.Directives) {
			removed[typeName] = true
			continue
		}
		defs = append(defs, def)
	}

	var copies ast.DefinitionList
	for _, def := range defs {
		copied := &ast.Definition{
			Kind:        def.Kind,
			Description: def.Description,
			Name:        def.Name,
			Directives:  keepDirectives(def.Directives),
		}
		for _, field := range def.Fields {
			if graphql.IsMetaField(field.Name) || isInaccessible(field.Directives) || removed[field.Type.Name()] {
				continue
			}
			copiedField := &ast.FieldDefinition{
				Description:  field.Description,
				Name:         field.Name,
				Type:         field.Type,
				DefaultValue: field.DefaultValue,
				Directives:   keepDirectives(field.Directives),
				Position:     federation.BlankPosition(),
			}
			for _, arg := range field.Arguments {
				if isInaccessible(arg.Directives) || removed[arg.Type.Name()] {
					continue
				}
				copiedField.Arguments = append(copiedField.Arguments, &ast.ArgumentDefinition{
					Description:  arg.Description,
					Name:         arg.Name,
					Type:         arg.Type,
					DefaultValue: arg.DefaultValue,
					Directives:   keepDirectives(arg.Directives),
					Position:     federation.BlankPosition(),
				})
			}
			copied.Fields = append(copied.Fields, copiedField)
		}
		for _, iface := range def.Interfaces {
			if !removed[iface] {
				copied.Interfaces = append(copied.Interfaces, iface)
			}
		}
		for _, member := range def.Types {
			if !removed[member] {
				copied.Types = append(copied.Types, member)
			}
		}
		for _, value := range def.EnumValues {
			if isInaccessible(value.Directives) {
				continue
			}
			copied.EnumValues = append(copied.EnumValues, &ast.EnumValueDefinition{
				Description: value.Description,
				Name:        value.Name,
				Directives:  keepDirectives(value.Directives),
				Position:    federation.BlankPosition(),
			})
		}
		copies = append(copies, copied)
	}

	for _, def := range graphql.LexicographicSortDefinitions(copies) {
		b.InstallType(def, false)
	}
	pruneEmptyTypes(b, func(def *ast.Definition) bool {
		switch def.Kind {
		case ast.Object, ast.Interface, ast.InputObject:
			return len(def.Fields) == 0
		case ast.Union:
			return len(def.Types) == 0
		default:
			return false
		}
	})

	for _, operation := range []ast.Operation{ast.Query, ast.Mutation, ast.Subscription} {
		if name := schema.RootType(operation); name != "" && b.Type(name) != nil {
			b.SetOperationType(operation, name)
		}
	}

	api, err := b.Build(ctx, nil)
	if err != nil {
		return nil, err
	}

	logger.Info("api schema derived", "types", len(api.TypeNames()), "removed", len(removed))

	return api, nil
}
