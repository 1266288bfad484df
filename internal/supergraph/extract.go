package supergraph

import (
	"context"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/parser"
	"github.com/vvakame/fedgraph/internal/federation"
	"github.com/vvakame/fedgraph/internal/link"
	"github.com/vvakame/fedgraph/internal/log"
)

// subgraphFederationVersion is the federation version extracted subgraphs link.
var subgraphFederationVersion = link.Version{Major: 2, Minor: 5}

// federation directives in the order they are listed in the import argument of extracted subgraphs.
var federationImports = []string{
	"key", "requires", "provides", "external", "shareable", "override", "interfaceObject", "tag", "inaccessible",
}

type ExtractOptions struct {
	// SkipValidation skips the per-subgraph federation rules check of extracted subgraphs.
	SkipValidation bool
}

// Result is the outcome of Extract.
type Result struct {
	// Subgraphs holds every subgraph extracted without error, in join__Graph order.
	Subgraphs *federation.Subgraphs
	Hints     gqlerror.List
	// Errors holds the errors of each failed subgraph, keyed by subgraph name.
	Errors map[string]gqlerror.List

	order []string
}

// Err folds the errors of every failed subgraph into one error, nil when extraction succeeded.
func (r *Result) Err() error {
	var errs []error
	for _, name := range r.order {
		if gErrs := r.Errors[name]; len(gErrs) != 0 {
			errs = append(errs, gErrs)
		}
	}
	return federation.JoinErrors(errs...)
}

type extractor struct {
	sg     *Supergraph
	schema *federation.Schema
	joinV1 bool

	tagName          string
	inaccessibleName string

	targets  []*target
	byGraph  map[string]*target
	failures gqlerror.List
	hints    gqlerror.List
}

// target is the subgraph being built for one join__Graph value.
type target struct {
	graph   *federation.JoinGraph
	builder *federation.Builder
	imports map[string]bool
}

func (t *target) directive(name string, args ...*ast.Argument) *ast.Directive {
	t.imports[name] = true
	return federation.NewDirective(name, args...)
}

// Extract rebuilds the subgraphs a supergraph was composed from.
// Errors that concern the supergraph as a whole are returned as error. Errors found
// in one extracted subgraph land in Result.Errors and don't stop the others.
func Extract(ctx context.Context, sg *Supergraph, opts *ExtractOptions) (*Result, error) {
	if opts == nil {
		opts = &ExtractOptions{}
	}
	logger := log.FromContext(ctx)

	version := sg.JoinVersion()
	e := &extractor{
		sg:      sg,
		schema:  sg.Schema,
		joinV1:  version.Major == 0 && version.Minor == 1,
		byGraph: make(map[string]*target),
	}
	e.tagName, _ = sg.Schema.Links.DirectiveName(link.TagIdentity, "tag")
	e.inaccessibleName, _ = sg.Schema.Links.DirectiveName(link.InaccessibleIdentity, "inaccessible")

	for _, graph := range sg.Graphs {
		t := &target{
			graph:   graph,
			builder: federation.NewBuilder(graph.Name),
			imports: make(map[string]bool),
		}
		e.targets = append(e.targets, t)
		e.byGraph[graph.EnumValue] = t
	}

	e.projectTypes()
	e.projectFields()
	e.projectImplementations()
	if e.joinV1 {
		e.addExternalKeyFields()
	}
	if len(e.failures) != 0 {
		return nil, e.failures
	}

	result := &Result{
		Subgraphs: federation.NewSubgraphs(),
		Errors:    make(map[string]gqlerror.List),
	}
	for _, t := range e.targets {
		e.eraseEmptyTypes(t)
		e.addFederationOperations(t)
		e.addDirectiveDefinitions(t)
		e.addLinks(t)

		result.order = append(result.order, t.graph.Name)
		subgraph, errs := e.build(log.WithValues(ctx, "subgraph", t.graph.Name), t, opts)
		if len(errs) != 0 {
			result.Errors[t.graph.Name] = errs
			logger.V(1).Info("subgraph extraction failed", "subgraph", t.graph.Name, "errors", len(errs))
			continue
		}
		if err := result.Subgraphs.Add(subgraph); err != nil {
			result.Errors[t.graph.Name] = federation.AsErrors(err)
			continue
		}
		logger.V(1).Info("subgraph extracted", "subgraph", t.graph.Name, "types", len(t.builder.Types()))
	}
	result.Hints = e.hints

	logger.Info("subgraphs extracted", "subgraphs", result.Subgraphs.Len(), "failed", len(result.Errors), "hints", len(result.Hints))

	return result, nil
}

func (e *extractor) build(ctx context.Context, t *target, opts *ExtractOptions) (*federation.Subgraph, gqlerror.List) {
	schema, err := t.builder.Build(ctx, nil)
	if err != nil {
		var errs gqlerror.List
		for _, gErr := range federation.AsErrors(err) {
			copied := *gErr
			copied.Message = "[" + t.graph.Name + "] " + gErr.Message
			if copied.Extensions == nil {
				copied.Extensions = map[string]interface{}{"code": federation.CodeInvalidSubgraph}
			}
			errs = append(errs, &copied)
		}
		return nil, errs
	}

	subgraph := &federation.Subgraph{
		Name:   t.graph.Name,
		URL:    t.graph.URL,
		Schema: schema,
	}
	if !opts.SkipValidation {
		if errs := federation.ValidateSubgraph(ctx, subgraph); len(errs) != 0 {
			return nil, errs
		}
	}
	return subgraph, nil
}

// target returns the subgraph of the join__Graph value graph, recording a failure when there is none.
func (e *extractor) target(graph string, pos federation.Position) *target {
	if t := e.byGraph[graph]; t != nil {
		return t
	}
	dir := e.schema.DirectiveApplication(pos)
	e.failures = append(e.failures, federation.NewError(
		dir.Position, CodeUnknownGraph,
		"Invalid join__Graph value %q in @%s on %s",
		graph, dir.Name, e.schema.Coordinate(e.parentOf(pos)),
	))
	return nil
}

func (e *extractor) parentOf(pos federation.Position) federation.Position {
	parent, _ := e.schema.Parent(pos)
	return parent
}

func (e *extractor) fail(err error) {
	e.failures = append(e.failures, federation.AsErrors(err)...)
}

// markers copies the directive applications subgraphs keep from the supergraph.
func (e *extractor) markers(t *target, directives ast.DirectiveList) ast.DirectiveList {
	var result ast.DirectiveList
	for _, dir := range directives {
		switch {
		case dir.Name == "deprecated" || dir.Name == "specifiedBy":
			result = append(result, federation.NewDirective(dir.Name, dir.Arguments...))
		case e.tagName != "" && dir.Name == e.tagName:
			result = append(result, t.directive("tag", dir.Arguments...))
		case e.inaccessibleName != "" && dir.Name == e.inaccessibleName:
			result = append(result, t.directive("inaccessible"))
		}
	}
	return result
}

func (e *extractor) installType(t *target, def *ast.Definition, extension bool) *ast.Definition {
	if installed := t.builder.Type(def.Name); installed != nil {
		if !extension {
			t.builder.SetExtension(def.Name, false)
		}
		return installed
	}
	return t.builder.InstallType(&ast.Definition{
		Kind:        def.Kind,
		Description: def.Description,
		Name:        def.Name,
		Directives:  e.markers(t, def.Directives),
	}, extension)
}

func (e *extractor) projectTypes() {
	for _, typeName := range e.schema.TypeNames() {
		if e.sg.skipType(typeName) {
			continue
		}
		def := e.schema.Type(typeName)

		joinTypes, err := e.schema.JoinTypes(typeName)
		if err != nil {
			e.fail(err)
			continue
		}
		if len(joinTypes) == 0 {
			// value type
			for _, t := range e.targets {
				e.installType(t, def, false)
			}
			continue
		}

		var owner string
		if e.joinV1 {
			owner, _, err = e.schema.JoinOwner(typeName)
			if err != nil {
				e.fail(err)
				continue
			}
		}

		for _, joinType := range joinTypes {
			t := e.target(joinType.Graph, joinType.Position)
			if t == nil {
				continue
			}
			extension := joinType.Extension || (owner != "" && owner != joinType.Graph)
			installed := e.installType(t, def, extension)

			if joinType.IsInterfaceObject {
				if def.Kind != ast.Interface {
					e.failures = append(e.failures, federation.NewError(
						e.schema.DirectiveApplication(joinType.Position).Position, CodeInterfaceObjectMismatch,
						"Type %q is marked as an interface object in subgraph %q but is a %s in the supergraph",
						typeName, t.graph.Name, strings.ToLower(string(def.Kind)),
					))
					continue
				}
				installed.Kind = ast.Object
				if installed.Directives.ForName("interfaceObject") == nil {
					installed.Directives = append(installed.Directives, t.directive("interfaceObject"))
				}
			}
			if joinType.HasKey {
				args := []*ast.Argument{federation.StringArgument("fields", joinType.Key)}
				if !joinType.Resolvable {
					args = append(args, federation.BoolArgument("resolvable", false))
				}
				installed.Directives = append(installed.Directives, t.directive("key", args...))
			}
		}
	}
}

func (e *extractor) projectFields() {
	for _, typeName := range e.schema.TypeNames() {
		if e.sg.skipType(typeName) {
			continue
		}
		def := e.schema.Type(typeName)
		switch def.Kind {
		case ast.Object, ast.Interface, ast.InputObject:
			e.projectFieldsOf(def)
		case ast.Enum:
			e.projectEnumValues(def)
		}
	}
}

func (e *extractor) projectFieldsOf(def *ast.Definition) {
	var owner string
	if e.joinV1 {
		owner, _, _ = e.schema.JoinOwner(def.Name)
	}

	for _, field := range def.Fields {
		if strings.HasPrefix(field.Name, "__") {
			continue
		}
		joinFields, err := e.schema.JoinFields(def.Name, field.Name)
		if err != nil {
			e.fail(err)
			continue
		}

		if len(joinFields) == 0 {
			var targets []*target
			for _, t := range e.targets {
				if t.builder.Type(def.Name) == nil {
					continue
				}
				if owner != "" && t.graph.EnumValue != owner {
					continue
				}
				targets = append(targets, t)
			}
			for _, t := range targets {
				added := e.addField(t, def, field, field.Type)
				if len(targets) > 1 && def.Kind == ast.Object {
					added.Directives = append(added.Directives, t.directive("shareable"))
				}
			}
			continue
		}

		var resolvers int
		for _, joinField := range joinFields {
			if joinField.Graph != "" && !joinField.External && !joinField.UsedOverridden {
				resolvers++
			}
		}

		for _, joinField := range joinFields {
			// a graph-less @join__field only takes the field away from the types' graphs
			if joinField.Graph == "" {
				continue
			}
			t := e.target(joinField.Graph, joinField.Position)
			if t == nil {
				continue
			}
			if t.builder.Type(def.Name) == nil && e.viaInterfaceObject(t, def) {
				// the field belongs to the @interfaceObject standing for def in that subgraph
				continue
			}
			typ := field.Type
			if joinField.Type != "" {
				typ, err = parseTypeReference(joinField.Type)
				if err != nil {
					e.failures = append(e.failures, federation.NewError(
						e.schema.DirectiveApplication(joinField.Position).Position, federation.CodeInvalidSubgraph,
						"Invalid type %q in @join__field on %s.%s: %s", joinField.Type, def.Name, field.Name, err.Error(),
					))
					continue
				}
			}

			added := e.addField(t, def, field, typ)
			switch {
			case joinField.UsedOverridden:
				added.Directives = append(added.Directives, t.directive("external", federation.StringArgument("reason", federation.OverriddenReason)))
			case joinField.External:
				added.Directives = append(added.Directives, t.directive("external"))
			}
			if joinField.Override != "" {
				if e.sg.GraphByName(joinField.Override) == nil {
					e.hints = append(e.hints, federation.NewError(
						e.schema.DirectiveApplication(joinField.Position).Position, CodeOverrideSourceUnknown,
						"[%s] Field \"%s.%s\" is overridden from subgraph %q which is not part of the supergraph",
						t.graph.Name, def.Name, field.Name, joinField.Override,
					))
				}
				added.Directives = append(added.Directives, t.directive("override", federation.StringArgument("from", joinField.Override)))
			}
			if joinField.Requires != "" {
				added.Directives = append(added.Directives, t.directive("requires", federation.StringArgument("fields", joinField.Requires)))
			}
			if joinField.Provides != "" {
				added.Directives = append(added.Directives, t.directive("provides", federation.StringArgument("fields", joinField.Provides)))
			}
			if resolvers > 1 && def.Kind == ast.Object && !joinField.External && !joinField.UsedOverridden {
				added.Directives = append(added.Directives, t.directive("shareable"))
			}
		}
	}
}

// viaInterfaceObject reports whether def implements an interface the subgraph of t
// declares as an @interfaceObject.
func (e *extractor) viaInterfaceObject(t *target, def *ast.Definition) bool {
	for _, iface := range def.Interfaces {
		installed := t.builder.Type(iface)
		if installed != nil && installed.Directives.ForName("interfaceObject") != nil {
			return true
		}
	}
	return false
}

// addField copies field of def into the subgraph with type typ, returning the copy.
// Arguments and their default values are kept verbatim.
func (e *extractor) addField(t *target, def *ast.Definition, field *ast.FieldDefinition, typ *ast.Type) *ast.FieldDefinition {
	installed := t.builder.Type(def.Name)
	if installed == nil {
		installed = e.installType(t, def, true)
	}
	if existing := installed.Fields.ForName(field.Name); existing != nil {
		return existing
	}

	added := &ast.FieldDefinition{
		Description:  field.Description,
		Name:         field.Name,
		Type:         typ,
		DefaultValue: field.DefaultValue,
		Directives:   e.markers(t, field.Directives),
		Position:     federation.BlankPosition(),
	}
	for _, arg := range field.Arguments {
		added.Arguments = append(added.Arguments, &ast.ArgumentDefinition{
			Description:  arg.Description,
			Name:         arg.Name,
			Type:         arg.Type,
			DefaultValue: arg.DefaultValue,
			Directives:   e.markers(t, arg.Directives),
			Position:     federation.BlankPosition(),
		})
	}
	installed.Fields = append(installed.Fields, added)
	return added
}

func (e *extractor) projectEnumValues(def *ast.Definition) {
	for _, value := range def.EnumValues {
		graphs, err := e.schema.JoinEnumValues(def.Name, value.Name)
		if err != nil {
			e.fail(err)
			continue
		}
		for _, t := range e.targets {
			installed := t.builder.Type(def.Name)
			if installed == nil {
				continue
			}
			if len(graphs) != 0 && !contains(graphs, t.graph.EnumValue) {
				continue
			}
			installed.EnumValues = append(installed.EnumValues, &ast.EnumValueDefinition{
				Description: value.Description,
				Name:        value.Name,
				Directives:  e.markers(t, value.Directives),
				Position:    federation.BlankPosition(),
			})
		}
	}
}

// projectImplementations places interface implementations and union members. A type without
// any @join__implements (or union without @join__unionMember) keeps, in each subgraph, every
// interface (or member) that subgraph declares.
func (e *extractor) projectImplementations() {
	for _, typeName := range e.schema.TypeNames() {
		if e.sg.skipType(typeName) {
			continue
		}
		def := e.schema.Type(typeName)

		switch def.Kind {
		case ast.Object, ast.Interface:
			if len(def.Interfaces) == 0 {
				continue
			}
			implements, err := e.schema.JoinImplements(typeName)
			if err != nil {
				e.fail(err)
				continue
			}
			if len(implements) == 0 {
				for _, t := range e.targets {
					for _, iface := range def.Interfaces {
						addInterface(t, typeName, iface)
					}
				}
				continue
			}
			for _, implementation := range implements {
				if t := e.target(implementation.Graph, implementation.Position); t != nil {
					addInterface(t, typeName, implementation.Interface)
				}
			}

		case ast.Union:
			members, err := e.schema.JoinUnionMembers(typeName)
			if err != nil {
				e.fail(err)
				continue
			}
			if len(members) == 0 {
				for _, t := range e.targets {
					for _, member := range def.Types {
						addUnionMember(t, typeName, member)
					}
				}
				continue
			}
			for _, member := range members {
				if t := e.target(member.Graph, member.Position); t != nil {
					addUnionMember(t, typeName, member.Member)
				}
			}
		}
	}
}

func addInterface(t *target, typeName, iface string) {
	installed := t.builder.Type(typeName)
	ifaceDef := t.builder.Type(iface)
	if installed == nil || ifaceDef == nil || ifaceDef.Kind != ast.Interface {
		return
	}
	if !contains(installed.Interfaces, iface) {
		installed.Interfaces = append(installed.Interfaces, iface)
	}
}

func addUnionMember(t *target, typeName, member string) {
	installed := t.builder.Type(typeName)
	memberDef := t.builder.Type(member)
	if installed == nil || memberDef == nil || memberDef.Kind != ast.Object {
		return
	}
	if !contains(installed.Types, member) {
		installed.Types = append(installed.Types, member)
	}
}

// addExternalKeyFields declares, in the graphs extending an entity of a join v0.1 supergraph,
// the key fields they reference but do not resolve.
func (e *extractor) addExternalKeyFields() {
	for _, typeName := range e.schema.TypeNames() {
		if e.sg.skipType(typeName) {
			continue
		}
		def := e.schema.Type(typeName)
		joinTypes, _ := e.schema.JoinTypes(typeName)
		for _, joinType := range joinTypes {
			t := e.byGraph[joinType.Graph]
			if t == nil || !joinType.HasKey {
				continue
			}
			selection, err := e.schema.ParseFieldSet(typeName, joinType.Key)
			if err != nil {
				e.fail(err)
				continue
			}
			installed := t.builder.Type(typeName)
			for _, sel := range selection {
				field, ok := sel.(*ast.Field)
				if !ok || installed.Fields.ForName(field.Name) != nil {
					continue
				}
				fieldDef := def.Fields.ForName(field.Name)
				if fieldDef == nil {
					continue
				}
				added := e.addField(t, def, fieldDef, fieldDef.Type)
				added.Directives = append(added.Directives, t.directive("external"))
			}
		}
	}
}

// addFederationOperations adds _Any, _Service, the _Entity union and the Query fields federation serves.
func (e *extractor) addFederationOperations(t *target) {
	var entities []string
	for _, def := range t.builder.Types() {
		if def.Kind == ast.Object && hasResolvableKey(def) {
			entities = append(entities, def.Name)
		}
	}

	t.builder.InstallType(&ast.Definition{Kind: ast.Scalar, Name: "_Any"}, false)
	t.builder.InstallType(&ast.Definition{
		Kind: ast.Object,
		Name: "_Service",
		Fields: ast.FieldList{
			{Name: "sdl", Type: ast.NamedType("String", nil), Position: federation.BlankPosition()},
		},
	}, false)
	if len(entities) != 0 {
		t.builder.InstallType(&ast.Definition{Kind: ast.Union, Name: "_Entity", Types: entities}, false)
	}

	queryName := e.schema.RootType(ast.Query)
	if queryName == "" {
		queryName = "Query"
	}
	query := t.builder.InstallType(&ast.Definition{Kind: ast.Object, Name: queryName}, false)
	if len(entities) != 0 {
		query.Fields = append(query.Fields, &ast.FieldDefinition{
			Name: "_entities",
			Arguments: ast.ArgumentDefinitionList{
				{
					Name:     "representations",
					Type:     ast.NonNullListType(ast.NonNullNamedType("_Any", nil), nil),
					Position: federation.BlankPosition(),
				},
			},
			Type:     ast.NonNullListType(ast.NamedType("_Entity", nil), nil),
			Position: federation.BlankPosition(),
		})
	}
	query.Fields = append(query.Fields, &ast.FieldDefinition{
		Name:     "_service",
		Type:     ast.NonNullNamedType("_Service", nil),
		Position: federation.BlankPosition(),
	})

	for _, operation := range []ast.Operation{ast.Query, ast.Mutation, ast.Subscription} {
		name := e.schema.RootType(operation)
		if operation == ast.Query {
			name = queryName
		}
		if name == "" || t.builder.Type(name) == nil {
			continue
		}
		t.builder.SetOperationType(operation, name)
		t.builder.SetExtension(name, false)
	}
}

func hasResolvableKey(def *ast.Definition) bool {
	for _, dir := range def.Directives {
		if dir.Name != "key" {
			continue
		}
		if arg := dir.Arguments.ForName("resolvable"); arg != nil && arg.Value.Raw == "false" {
			continue
		}
		return true
	}
	return false
}

// addDirectiveDefinitions copies the executable directives the supergraph defines.
func (e *extractor) addDirectiveDefinitions(t *target) {
	for _, def := range e.schema.Document.Directives {
		if e.schema.Links.IsSpecDirective(def.Name) || !link.IsExecutableDirective(def) {
			continue
		}
		t.builder.InstallDirectiveDefinition(def)
	}
}

func (e *extractor) addLinks(t *target) {
	linkSpec := &link.Link{
		URL: link.URL{Identity: link.LinkIdentity, Version: link.Version{Major: 1, Minor: 0}},
	}
	fed := &link.Link{
		URL: link.URL{Identity: link.FederationIdentity, Version: subgraphFederationVersion},
	}
	for _, name := range federationImports {
		if t.imports[name] {
			fed.Imports = append(fed.Imports, &link.Import{Element: name, IsDirective: true})
		}
	}
	t.builder.AddSchemaDirective(linkSpec.Application("link"))
	t.builder.AddSchemaDirective(fed.Application("link"))
}

// parseTypeReference reads a type reference such as "[String!]!".
func parseTypeReference(ref string) (*ast.Type, error) {
	doc, err := parser.ParseSchema(&ast.Source{
		Name:  "type",
		Input: "input TypeReference { value: " + ref + " }",
	})
	if err != nil {
		return nil, err
	}
	if len(doc.Definitions) != 1 || len(doc.Definitions[0].Fields) != 1 {
		return nil, gqlerror.Errorf("unexpected type reference %q", ref)
	}
	return doc.Definitions[0].Fields[0].Type, nil
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
