package federation

import (
	"context"
	"fmt"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/parser"
	"github.com/vektah/gqlparser/v2/validator"
	"github.com/vvakame/fedgraph/internal/graphql"
	"github.com/vvakame/fedgraph/internal/link"
	"github.com/vvakame/fedgraph/internal/log"
)

// SchemaKind tells which spec drives a schema.
type SchemaKind int

const (
	KindPlain SchemaKind = iota
	KindFederation
	KindSupergraph
)

func (k SchemaKind) String() string {
	switch k {
	case KindPlain:
		return "Plain"
	case KindFederation:
		return "Federation"
	case KindSupergraph:
		return "Supergraph"
	default:
		return fmt.Sprintf("SchemaKind(%d)", int(k))
	}
}

type Options struct {
	// Registry defaults to link.DefaultRegistry.
	Registry *link.Registry
	// AssumeFederation reads a schema without any @link as a federation 1 subgraph.
	AssumeFederation bool
}

// Schema is a read-only view of a validated schema enriched with its link map.
// It is never mutated after construction and is safe for concurrent use.
type Schema struct {
	Name string
	Kind SchemaKind
	// Source is the SDL the schema was parsed from, empty when built from a document.
	Source string
	// Document is the schema as written, before spec definitions were added.
	Document *ast.SchemaDocument
	AST      *ast.Schema
	Links    *link.Map

	arena          *arena
	root           Position
	typeNames      []string
	typePositions  map[string]Position
	fieldPositions map[string]Position
	baseTypes      map[string]bool
	directiveIndex map[string][]Position
	typeIndex      map[string][]Position

	fieldSets *lru.Cache[fieldSetKey, *fieldSetResult]

	keysOnce sync.Once
	keys     map[string][]*Key
	keysErrs gqlerror.List
}

// Parse parses sdl named name and builds its Schema.
func Parse(ctx context.Context, name string, sdl string, opts *Options) (*Schema, error) {
	doc, err := parser.ParseSchema(&ast.Source{
		Name:  name,
		Input: sdl,
	})
	if err != nil {
		return nil, err
	}

	s, err := NewSchema(ctx, name, doc, opts)
	if err != nil {
		return nil, err
	}
	s.Source = sdl
	return s, nil
}

// NewSchema resolves the links of doc, validates it and indexes every element.
// The definitions of linked specs the document does not declare are added before validation.
func NewSchema(ctx context.Context, name string, doc *ast.SchemaDocument, opts *Options) (*Schema, error) {
	if opts == nil {
		opts = &Options{}
	}
	logger := log.FromContext(ctx).WithValues("schema", name)

	links, err := link.Resolve(ctx, doc, &link.ResolveOptions{
		Registry:         opts.Registry,
		AssumeFederation: opts.AssumeFederation,
	})
	if err != nil {
		return nil, err
	}

	validationDoc, err := buildValidationDocument(doc, links)
	if err != nil {
		return nil, err
	}
	schema, gErr := validator.ValidateSchemaDocument(validationDoc)
	if gErr != nil {
		return nil, gErr
	}

	cache, err := lru.New[fieldSetKey, *fieldSetResult](fieldSetCacheSize)
	if err != nil {
		return nil, err
	}

	s := &Schema{
		Name:           name,
		Kind:           detectKind(links),
		Document:       doc,
		AST:            schema,
		Links:          links,
		typePositions:  make(map[string]Position),
		fieldPositions: make(map[string]Position),
		baseTypes:      make(map[string]bool),
		directiveIndex: make(map[string][]Position),
		typeIndex:      make(map[string][]Position),
		fieldSets:      cache,
	}
	s.index()

	logger.V(1).Info("schema indexed", "kind", s.Kind.String(), "types", len(s.typeNames), "links", len(links.Links))

	return s, nil
}

func detectKind(links *link.Map) SchemaKind {
	switch {
	case links.ForIdentity(link.JoinIdentity) != nil:
		return KindSupergraph
	case links.ForIdentity(link.FederationIdentity) != nil:
		return KindFederation
	default:
		return KindPlain
	}
}

// buildValidationDocument merges the prelude, the linked spec definitions and
// shallow copies of doc, so that validation never mutates doc itself.
func buildValidationDocument(doc *ast.SchemaDocument, links *link.Map) (*ast.SchemaDocument, error) {
	prelude, err := parser.ParseSchema(validator.Prelude)
	if err != nil {
		return nil, err
	}

	merged := &ast.SchemaDocument{}
	merged.Directives = append(merged.Directives, prelude.Directives...)
	merged.Definitions = append(merged.Definitions, prelude.Definitions...)
	if merged.Directives.ForName(graphql.GraphQLSpecifiedByDirective.Name) == nil {
		merged.Directives = append(merged.Directives, graphql.GraphQLSpecifiedByDirective)
	}

	declaredType := func(name string) bool {
		return doc.Definitions.ForName(name) != nil || doc.Extensions.ForName(name) != nil || merged.Definitions.ForName(name) != nil
	}
	for _, l := range links.Links {
		for _, def := range l.DirectiveDefinitions() {
			if doc.Directives.ForName(def.Name) != nil || merged.Directives.ForName(def.Name) != nil {
				continue
			}
			merged.Directives = append(merged.Directives, def)
		}
		for _, def := range l.TypeDefinitions() {
			// join__Graph is left to the document; an empty enum can't validate
			if declaredType(def.Name) || (def.Kind == ast.Enum && len(def.EnumValues) == 0) {
				continue
			}
			merged.Definitions = append(merged.Definitions, def)
		}
	}

	merged.Schema = append(merged.Schema, doc.Schema...)
	merged.SchemaExtension = append(merged.SchemaExtension, doc.SchemaExtension...)
	merged.Directives = append(merged.Directives, doc.Directives...)
	for _, def := range doc.Definitions {
		merged.Definitions = append(merged.Definitions, shallowCopyDefinition(def))
	}
	for _, def := range doc.Extensions {
		merged.Extensions = append(merged.Extensions, shallowCopyDefinition(def))
	}

	return merged, nil
}

func shallowCopyDefinition(def *ast.Definition) *ast.Definition {
	copied := *def
	copied.Directives = append(ast.DirectiveList(nil), def.Directives...)
	copied.Interfaces = append([]string(nil), def.Interfaces...)
	copied.Fields = append(ast.FieldList(nil), def.Fields...)
	copied.Types = append([]string(nil), def.Types...)
	copied.EnumValues = append(ast.EnumValueList(nil), def.EnumValues...)
	return &copied
}

func (s *Schema) index() {
	s.arena = newArena()

	schemaDef := &ast.SchemaDefinition{
		Directives: link.SchemaDirectives(s.Document),
	}
	for _, def := range s.Document.Schema {
		schemaDef.Description = def.Description
		schemaDef.Position = def.Position
		schemaDef.OperationTypes = append(schemaDef.OperationTypes, def.OperationTypes...)
	}
	for _, def := range s.Document.SchemaExtension {
		schemaDef.OperationTypes = append(schemaDef.OperationTypes, def.OperationTypes...)
	}
	s.root = s.arena.push(PositionSchema, element{name: "schema", node: schemaDef})
	s.indexDirectives(s.root, schemaDef.Directives)

	for _, def := range s.Document.Definitions {
		s.baseTypes[def.Name] = true
	}

	seen := make(map[string]bool)
	declared := make(ast.DefinitionList, 0, len(s.Document.Definitions)+len(s.Document.Extensions))
	declared = append(declared, s.Document.Definitions...)
	declared = append(declared, s.Document.Extensions...)
	for _, decl := range declared {
		if seen[decl.Name] {
			continue
		}
		seen[decl.Name] = true
		def := s.AST.Types[decl.Name]
		if def == nil || def.BuiltIn {
			continue
		}
		s.indexType(def)
	}
}

func (s *Schema) indexType(def *ast.Definition) {
	pos := s.arena.push(typePositionKind(def.Kind), element{
		name:      def.Name,
		node:      def,
		extension: s.isExtensionDefinition(def),
	})
	s.typeNames = append(s.typeNames, def.Name)
	s.typePositions[def.Name] = pos
	s.indexDirectives(pos, def.Directives)

	for _, iface := range def.Interfaces {
		s.typeIndex[iface] = append(s.typeIndex[iface], pos)
	}

	switch def.Kind {
	case ast.Object, ast.Interface, ast.InputObject:
		fieldKind := PositionField
		if def.Kind == ast.InputObject {
			fieldKind = PositionInputField
		}
		for _, field := range def.Fields {
			if strings.HasPrefix(field.Name, "__") {
				continue
			}
			fieldPos := s.arena.push(fieldKind, element{parent: pos, hasParent: true, name: field.Name, node: field})
			s.fieldPositions[def.Name+"."+field.Name] = fieldPos
			s.typeIndex[field.Type.Name()] = append(s.typeIndex[field.Type.Name()], fieldPos)
			s.indexDirectives(fieldPos, field.Directives)

			for _, arg := range field.Arguments {
				argPos := s.arena.push(PositionArgument, element{parent: fieldPos, hasParent: true, name: arg.Name, node: arg})
				s.typeIndex[arg.Type.Name()] = append(s.typeIndex[arg.Type.Name()], argPos)
				s.indexDirectives(argPos, arg.Directives)
			}
		}

	case ast.Union:
		for _, member := range def.Types {
			memberPos := s.arena.push(PositionUnionMember, element{parent: pos, hasParent: true, name: member, node: member})
			s.typeIndex[member] = append(s.typeIndex[member], memberPos)
		}

	case ast.Enum:
		for _, value := range def.EnumValues {
			valuePos := s.arena.push(PositionEnumValue, element{parent: pos, hasParent: true, name: value.Name, node: value})
			s.fieldPositions[def.Name+"."+value.Name] = valuePos
			s.indexDirectives(valuePos, value.Directives)
		}
	}
}

func (s *Schema) indexDirectives(host Position, directives ast.DirectiveList) {
	for _, dir := range directives {
		pos := s.arena.push(PositionDirectiveApplication, element{parent: host, hasParent: true, name: dir.Name, node: dir})
		s.directiveIndex[dir.Name] = append(s.directiveIndex[dir.Name], pos)
	}
}

func (s *Schema) isExtensionDefinition(def *ast.Definition) bool {
	if !s.baseTypes[def.Name] {
		return true
	}
	if name, ok := s.DirectiveName(link.FederationIdentity, "extends"); ok {
		return def.Directives.ForName(name) != nil
	}
	return false
}

// Root is the position of the schema definition and its extensions.
func (s *Schema) Root() Position {
	return s.root
}

// Lookup dereferences pos. It panics when pos was issued by another Schema.
func (s *Schema) Lookup(pos Position) interface{} {
	return s.arena.get(pos).node
}

// Parent returns the element pos is nested in.
func (s *Schema) Parent(pos Position) (Position, bool) {
	e := s.arena.get(pos)
	return e.parent, e.hasParent
}

// ElementName is the name of the element at pos: a type, field, argument or enum value name,
// a union member type name or the applied directive name.
func (s *Schema) ElementName(pos Position) string {
	return s.arena.get(pos).name
}

// Definition returns the type at pos, or nil when pos addresses something else.
func (s *Schema) Definition(pos Position) *ast.Definition {
	def, _ := s.Lookup(pos).(*ast.Definition)
	return def
}

// FieldDefinition returns the field or input field at pos, or nil.
func (s *Schema) FieldDefinition(pos Position) *ast.FieldDefinition {
	field, _ := s.Lookup(pos).(*ast.FieldDefinition)
	return field
}

// DirectiveApplication returns the directive applied at pos, or nil.
func (s *Schema) DirectiveApplication(pos Position) *ast.Directive {
	dir, _ := s.Lookup(pos).(*ast.Directive)
	return dir
}

// Directives lists the directives applied on the element at pos.
func (s *Schema) Directives(pos Position) ast.DirectiveList {
	switch node := s.Lookup(pos).(type) {
	case *ast.SchemaDefinition:
		return node.Directives
	case *ast.Definition:
		return node.Directives
	case *ast.FieldDefinition:
		return node.Directives
	case *ast.ArgumentDefinition:
		return node.Directives
	case *ast.EnumValueDefinition:
		return node.Directives
	default:
		return nil
	}
}

// Positions lists every position of kind in declaration order.
func (s *Schema) Positions(kind PositionKind) []Position {
	return s.arena.positions(kind)
}

// TypeNames lists the types declared by the document in declaration order.
func (s *Schema) TypeNames() []string {
	return append([]string(nil), s.typeNames...)
}

func (s *Schema) Type(name string) *ast.Definition {
	return s.AST.Types[name]
}

func (s *Schema) TypePosition(name string) (Position, bool) {
	pos, ok := s.typePositions[name]
	return pos, ok
}

// FieldPosition finds a field, an input field or an enum value of typeName.
func (s *Schema) FieldPosition(typeName, fieldName string) (Position, bool) {
	pos, ok := s.fieldPositions[typeName+"."+fieldName]
	return pos, ok
}

func (s *Schema) Field(typeName, fieldName string) *ast.FieldDefinition {
	def := s.AST.Types[typeName]
	if def == nil {
		return nil
	}
	return def.Fields.ForName(fieldName)
}

// IsExtension reports whether typeName is only declared through `extend type`
// or is marked with @extends.
func (s *Schema) IsExtension(typeName string) bool {
	pos, ok := s.typePositions[typeName]
	if !ok {
		return false
	}
	return s.arena.get(pos).extension
}

// Coordinate renders pos the way error messages refer to schema elements.
func (s *Schema) Coordinate(pos Position) string {
	e := s.arena.get(pos)
	switch pos.Kind {
	case PositionSchema:
		return "schema"
	case PositionField, PositionInputField, PositionEnumValue:
		return s.Coordinate(e.parent) + "." + e.name
	case PositionArgument:
		return s.Coordinate(e.parent) + "(" + e.name + ":)"
	case PositionUnionMember:
		return s.Coordinate(e.parent) + "[" + e.name + "]"
	case PositionDirectiveApplication:
		return "@" + e.name + " on " + s.Coordinate(e.parent)
	default:
		return e.name
	}
}

// DirectiveName is the name a canonical directive of the identified spec is applied with.
func (s *Schema) DirectiveName(identity link.Identity, canonical string) (string, bool) {
	return s.Links.DirectiveName(identity, canonical)
}

// Applications lists every application of the directive named localName.
func (s *Schema) Applications(localName string) []Position {
	return s.directiveIndex[localName]
}

// ApplicationsOf lists every application of a canonical spec directive.
// It returns nothing when the spec isn't linked.
func (s *Schema) ApplicationsOf(identity link.Identity, canonical string) []Position {
	name, ok := s.DirectiveName(identity, canonical)
	if !ok {
		return nil
	}
	return s.directiveIndex[name]
}

// ApplicationsByKind groups ApplicationsOf by the kind of element the directive is applied on.
func (s *Schema) ApplicationsByKind(identity link.Identity, canonical string) map[PositionKind][]Position {
	result := make(map[PositionKind][]Position)
	for _, pos := range s.ApplicationsOf(identity, canonical) {
		host, _ := s.Parent(pos)
		result[host.Kind] = append(result[host.Kind], pos)
	}
	return result
}

// TypeReferences lists the fields, arguments, union members and implementing
// types that refer to typeName.
func (s *Schema) TypeReferences(typeName string) []Position {
	return s.typeIndex[typeName]
}

// ApplicationsOn lists the applications of a canonical spec directive on the element at host.
func (s *Schema) ApplicationsOn(host Position, identity link.Identity, canonical string) []Position {
	name, ok := s.DirectiveName(identity, canonical)
	if !ok {
		return nil
	}
	var result []Position
	for _, pos := range s.directiveIndex[name] {
		if parent, _ := s.Parent(pos); parent == host {
			result = append(result, pos)
		}
	}
	return result
}

func (s *Schema) hasDirective(host Position, identity link.Identity, canonical string) bool {
	return len(s.ApplicationsOn(host, identity, canonical)) != 0
}
