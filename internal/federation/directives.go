package federation

import (
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vvakame/fedgraph/internal/link"
)

// Key is one @key application.
type Key struct {
	FieldSet
	Resolvable bool
	// Position is the directive application.
	Position Position
}

// Keys returns the keys declared on typeName in declaration order.
// Keys whose field set doesn't parse are reported in the error and left out.
func (s *Schema) Keys(typeName string) ([]*Key, error) {
	s.keysOnce.Do(s.collectKeys)

	keys := s.keys[typeName]
	var errs gqlerror.List
	for _, gErr := range s.keysErrs {
		if gErr.Extensions["type"] == typeName {
			errs = append(errs, gErr)
		}
	}
	if len(errs) != 0 {
		return keys, errs
	}
	return keys, nil
}

// KeyErrors lists the invalid @key applications of the whole schema.
func (s *Schema) KeyErrors() gqlerror.List {
	s.keysOnce.Do(s.collectKeys)
	return s.keysErrs
}

func (s *Schema) collectKeys() {
	s.keys = make(map[string][]*Key)
	for _, pos := range s.ApplicationsOf(link.FederationIdentity, "key") {
		host, _ := s.Parent(pos)
		if !host.Kind.IsType() {
			continue
		}
		typeName := s.ElementName(host)
		dir := s.DirectiveApplication(pos)

		fieldSet, gErr := s.directiveFieldSet(dir, "fields", typeName)
		if gErr != nil {
			gErr.Extensions["type"] = typeName
			s.keysErrs = append(s.keysErrs, gErr)
			continue
		}
		values, err := s.directiveArguments(dir)
		if err != nil {
			gErr := NewError(dir.Position, CodeDirectiveInvalidFields, "On type %q, for @%s: %s", typeName, dir.Name, errorMessage(err))
			gErr.Extensions["type"] = typeName
			s.keysErrs = append(s.keysErrs, gErr)
			continue
		}

		s.keys[typeName] = append(s.keys[typeName], &Key{
			FieldSet:   *fieldSet,
			Resolvable: boolArgument(values, "resolvable", true),
			Position:   pos,
		})
	}
}

// IsEntity reports whether typeName has at least one @key.
func (s *Schema) IsEntity(typeName string) bool {
	keys, _ := s.Keys(typeName)
	return len(keys) != 0
}

// Requires returns the @requires of a field, nil when there is none.
func (s *Schema) Requires(typeName, fieldName string) (*FieldSet, error) {
	return s.fieldSetDirective(typeName, fieldName, "requires", typeName)
}

// Provides returns the @provides of a field, nil when there is none.
// The field set applies to the field's type.
func (s *Schema) Provides(typeName, fieldName string) (*FieldSet, error) {
	field := s.Field(typeName, fieldName)
	if field == nil {
		return nil, nil
	}
	target := s.AST.Types[field.Type.Name()]
	if target == nil {
		return nil, nil
	}
	if len(s.fieldApplications(typeName, fieldName, "provides")) != 0 && !isCompositeType(target) {
		return nil, NewError(
			field.Position, CodeProvidesOnNonComposite,
			"Invalid @provides directive on field \"%s.%s\": field has type %q which is not a Composite Type",
			typeName, fieldName, field.Type.String(),
		)
	}
	return s.fieldSetDirective(typeName, fieldName, "provides", target.Name)
}

func (s *Schema) fieldApplications(typeName, fieldName, canonical string) []Position {
	pos, ok := s.FieldPosition(typeName, fieldName)
	if !ok {
		return nil
	}
	return s.ApplicationsOn(pos, link.FederationIdentity, canonical)
}

func (s *Schema) fieldSetDirective(typeName, fieldName, canonical, target string) (*FieldSet, error) {
	applications := s.fieldApplications(typeName, fieldName, canonical)
	if len(applications) == 0 {
		return nil, nil
	}
	fieldSet, gErr := s.directiveFieldSet(s.DirectiveApplication(applications[0]), "fields", target)
	if gErr != nil {
		return nil, gErr
	}
	return fieldSet, nil
}

// IsExternal reports whether the field, or its whole type, is marked @external.
func (s *Schema) IsExternal(typeName, fieldName string) bool {
	if len(s.fieldApplications(typeName, fieldName, "external")) != 0 {
		return true
	}
	if pos, ok := s.TypePosition(typeName); ok {
		return s.hasDirective(pos, link.FederationIdentity, "external")
	}
	return false
}

// ExternalReason is the reason argument of the field's @external.
func (s *Schema) ExternalReason(typeName, fieldName string) string {
	for _, pos := range s.fieldApplications(typeName, fieldName, "external") {
		values, err := s.directiveArguments(s.DirectiveApplication(pos))
		if err != nil {
			continue
		}
		reason, _ := stringArgument(values, "reason")
		return reason
	}
	return ""
}

// IsShareable reports whether the field, or its whole type, is marked @shareable.
func (s *Schema) IsShareable(typeName, fieldName string) bool {
	if len(s.fieldApplications(typeName, fieldName, "shareable")) != 0 {
		return true
	}
	if pos, ok := s.TypePosition(typeName); ok {
		return s.hasDirective(pos, link.FederationIdentity, "shareable")
	}
	return false
}

// OverrideFrom returns the subgraph named by the field's @override.
func (s *Schema) OverrideFrom(typeName, fieldName string) (string, bool) {
	for _, pos := range s.fieldApplications(typeName, fieldName, "override") {
		values, err := s.directiveArguments(s.DirectiveApplication(pos))
		if err != nil {
			continue
		}
		return stringArgument(values, "from")
	}
	return "", false
}

func (s *Schema) IsInterfaceObject(typeName string) bool {
	pos, ok := s.TypePosition(typeName)
	if !ok {
		return false
	}
	return s.hasDirective(pos, link.FederationIdentity, "interfaceObject")
}

// IsInaccessible reports whether the element at pos carries @inaccessible,
// imported from either the federation or the inaccessible spec.
func (s *Schema) IsInaccessible(pos Position) bool {
	return s.hasDirective(pos, link.FederationIdentity, "inaccessible") ||
		s.hasDirective(pos, link.InaccessibleIdentity, "inaccessible")
}

// Tags lists the @tag names applied on the element at pos.
func (s *Schema) Tags(pos Position) []string {
	var tags []string
	applications := s.ApplicationsOn(pos, link.FederationIdentity, "tag")
	fedName, _ := s.DirectiveName(link.FederationIdentity, "tag")
	if tagName, ok := s.DirectiveName(link.TagIdentity, "tag"); ok && tagName != fedName {
		applications = append(applications, s.ApplicationsOn(pos, link.TagIdentity, "tag")...)
	}
	for _, app := range applications {
		values, err := s.directiveArguments(s.DirectiveApplication(app))
		if err != nil {
			continue
		}
		if name, ok := stringArgument(values, "name"); ok {
			tags = append(tags, name)
		}
	}
	return tags
}

func isCompositeType(def *ast.Definition) bool {
	switch def.Kind {
	case ast.Object, ast.Interface, ast.Union:
		return true
	default:
		return false
	}
}
