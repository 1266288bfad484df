package federation

import (
	"context"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vvakame/fedgraph/internal/link"
	"github.com/vvakame/fedgraph/internal/log"
)

// OverriddenReason is the @external reason of fields kept only because another subgraph overrides them.
const OverriddenReason = "[overridden]"

const CodeOverrideFromSelf = "OVERRIDE_FROM_SELF_ERROR"

func subgraphValidators() []func(*Subgraph) gqlerror.List {
	return []func(*Subgraph) gqlerror.List{
		keyFieldsValid,
		keyFieldsSelectExternal,
		requiresAndProvidesValid,
		externalUnused,
		reservedFieldUsed,
		interfaceObjectHasKey,
		overrideFromSelf,
	}
}

// ValidateSubgraph checks the federation rules a subgraph must follow on its own.
func ValidateSubgraph(ctx context.Context, subgraph *Subgraph) gqlerror.List {
	logger := log.FromContext(ctx).WithValues("subgraph", subgraph.Name)

	if subgraph.Schema.Kind != KindFederation {
		return gqlerror.List{NewError(
			nil, CodeMissingFederationLink,
			"[%s] Subgraph doesn't link the federation spec. Add @link(url: \"https://specs.apollo.dev/federation/v2.0\").",
			subgraph.Name,
		)}
	}

	var errs gqlerror.List
	for _, validator := range subgraphValidators() {
		errs = append(errs, validator(subgraph)...)
	}

	logger.V(1).Info("subgraph validated", "errors", len(errs))

	return errs
}

func keyFieldsValid(subgraph *Subgraph) gqlerror.List {
	var errs gqlerror.List
	for _, gErr := range subgraph.Schema.KeyErrors() {
		typeName, _ := gErr.Extensions["type"].(string)
		copied := *gErr
		copied.Message = logServiceAndType(subgraph.Name, typeName, "") + " " + gErr.Message
		errs = append(errs, &copied)
	}
	return errs
}

// Key fields can only be @external on types extended from another subgraph.
func keyFieldsSelectExternal(subgraph *Subgraph) gqlerror.List {
	schema := subgraph.Schema
	if fed := schema.Links.ForIdentity(link.FederationIdentity); fed == nil || fed.Implicit {
		return nil
	}

	var errs gqlerror.List
	for _, typeName := range schema.TypeNames() {
		if schema.IsExtension(typeName) {
			continue
		}
		keys, _ := schema.Keys(typeName)
		for _, key := range keys {
			for _, sel := range key.Selection {
				field, ok := sel.(*ast.Field)
				if !ok || !schema.IsExternal(typeName, field.Name) {
					continue
				}
				errs = append(errs, NewError(
					schema.DirectiveApplication(key.Position).Position, CodeKeyFieldsSelectExternal,
					"%s On type %q, for @key(fields: %q): field %q is marked @external, which is only allowed on types extended from another subgraph.",
					logServiceAndType(subgraph.Name, typeName, ""), typeName, key.Fields, typeName+"."+field.Name,
				))
			}
		}
	}
	return errs
}

func requiresAndProvidesValid(subgraph *Subgraph) gqlerror.List {
	schema := subgraph.Schema

	var errs gqlerror.List
	for _, pos := range schema.Positions(PositionField) {
		parent, _ := schema.Parent(pos)
		typeName := schema.ElementName(parent)
		fieldName := schema.ElementName(pos)
		if _, err := schema.Requires(typeName, fieldName); err != nil {
			errs = append(errs, asErrors(err)...)
		}
		if _, err := schema.Provides(typeName, fieldName); err != nil {
			errs = append(errs, asErrors(err)...)
		}
	}
	return errs
}

// An @external field must be used by a key, a @requires, a @provides, or an interface.
func externalUnused(subgraph *Subgraph) gqlerror.List {
	schema := subgraph.Schema
	used := usedFieldCoordinates(schema)

	var errs gqlerror.List
	for _, pos := range schema.ApplicationsOf(link.FederationIdentity, "external") {
		fieldPos, _ := schema.Parent(pos)
		if fieldPos.Kind != PositionField {
			continue
		}
		typePos, _ := schema.Parent(fieldPos)
		typeName := schema.ElementName(typePos)
		fieldName := schema.ElementName(fieldPos)

		if used[typeName+"."+fieldName] {
			continue
		}
		if schema.ExternalReason(typeName, fieldName) == OverriddenReason {
			continue
		}
		if schema.IsInterfaceObject(typeName) || implementsInterfaceField(schema, typeName, fieldName) {
			continue
		}

		errs = append(errs, NewError(
			schema.DirectiveApplication(pos).Position, CodeExternalUnused,
			"%s Field %q is marked @external but is not used in any federation directive (@key, @provides, @requires) or to satisfy an interface; the field declaration has no use and should be removed (or the field should not be @external).",
			logServiceAndType(subgraph.Name, typeName, fieldName), typeName+"."+fieldName,
		))
	}
	return errs
}

func usedFieldCoordinates(schema *Schema) map[string]bool {
	used := make(map[string]bool)
	mark := func(fieldSet *FieldSet) {
		if fieldSet == nil {
			return
		}
		for _, name := range SelectedFieldNames(fieldSet.Selection) {
			used[name] = true
		}
	}

	for _, typeName := range schema.TypeNames() {
		keys, _ := schema.Keys(typeName)
		for _, key := range keys {
			mark(&key.FieldSet)
		}
	}
	for _, pos := range schema.Positions(PositionField) {
		parent, _ := schema.Parent(pos)
		typeName := schema.ElementName(parent)
		fieldName := schema.ElementName(pos)
		requires, _ := schema.Requires(typeName, fieldName)
		mark(requires)
		provides, _ := schema.Provides(typeName, fieldName)
		mark(provides)
	}
	return used
}

func implementsInterfaceField(schema *Schema, typeName, fieldName string) bool {
	def := schema.Type(typeName)
	if def == nil {
		return false
	}
	for _, iface := range def.Interfaces {
		if ifaceDef := schema.Type(iface); ifaceDef != nil && ifaceDef.Fields.ForName(fieldName) != nil {
			return true
		}
	}
	return false
}

// Schemas should only define the _service or _entities fields on the query root with their federation shapes.
func reservedFieldUsed(subgraph *Subgraph) gqlerror.List {
	schema := subgraph.Schema
	rootQueryName := schema.RootType(ast.Query)
	if rootQueryName == "" {
		return nil
	}

	var errs gqlerror.List
	for _, field := range schema.Type(rootQueryName).Fields {
		var expected string
		switch field.Name {
		case "_service":
			expected = "_Service!"
		case "_entities":
			expected = "[_Entity]!"
		default:
			continue
		}
		if field.Type.String() == expected {
			continue
		}
		errs = append(errs, NewError(
			field.Position, CodeReservedFieldUsed,
			"%s %s is a field reserved for federation and can't be used at the Query root.",
			logServiceAndType(subgraph.Name, rootQueryName, field.Name),
			field.Name,
		))
	}
	return errs
}

func interfaceObjectHasKey(subgraph *Subgraph) gqlerror.List {
	schema := subgraph.Schema

	var errs gqlerror.List
	for _, pos := range schema.ApplicationsOf(link.FederationIdentity, "interfaceObject") {
		typePos, _ := schema.Parent(pos)
		typeName := schema.ElementName(typePos)
		if schema.IsEntity(typeName) {
			continue
		}
		errs = append(errs, NewError(
			schema.DirectiveApplication(pos).Position, CodeInterfaceObjectMisplaced,
			"%s The @interfaceObject directive can only be applied to entity types but type %q has no @key in this subgraph.",
			logServiceAndType(subgraph.Name, typeName, ""), typeName,
		))
	}
	return errs
}

func overrideFromSelf(subgraph *Subgraph) gqlerror.List {
	schema := subgraph.Schema

	var errs gqlerror.List
	for _, pos := range schema.ApplicationsOf(link.FederationIdentity, "override") {
		fieldPos, _ := schema.Parent(pos)
		typePos, _ := schema.Parent(fieldPos)
		typeName := schema.ElementName(typePos)
		fieldName := schema.ElementName(fieldPos)
		from, _ := schema.OverrideFrom(typeName, fieldName)
		if from != subgraph.Name {
			continue
		}
		errs = append(errs, NewError(
			schema.DirectiveApplication(pos).Position, CodeOverrideFromSelf,
			"%s Source and destination subgraphs %q are the same for overridden field %q",
			logServiceAndType(subgraph.Name, typeName, fieldName), from, typeName+"."+fieldName,
		))
	}
	return errs
}
