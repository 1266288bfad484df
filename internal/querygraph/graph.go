package querygraph

import (
	"context"
	"fmt"
	"sort"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vvakame/fedgraph/internal/federation"
	"github.com/vvakame/fedgraph/internal/graphql"
	"github.com/vvakame/fedgraph/internal/log"
	"github.com/vvakame/fedgraph/internal/utils"
)

// APISource is the source of the vertices of the supergraph API graph.
const APISource = "(api)"

type EdgeKind int

const (
	// FieldCollection follows a field of the head type.
	FieldCollection EdgeKind = iota
	// Downcast narrows an abstract type to one of its runtime types.
	Downcast
	// KeyResolution enters a subgraph through one of its @key, from the API vertex of the type.
	KeyResolution
	// RootTypeResolution moves between the query roots of two subgraphs.
	RootTypeResolution
	// SubgraphEnteringTransition goes from an API root into the root of a subgraph.
	SubgraphEnteringTransition
	// InterfaceObjectFakeDownCast narrows an @interfaceObject type without leaving its vertex.
	InterfaceObjectFakeDownCast
)

func (k EdgeKind) String() string {
	switch k {
	case FieldCollection:
		return "FieldCollection"
	case Downcast:
		return "Downcast"
	case KeyResolution:
		return "KeyResolution"
	case RootTypeResolution:
		return "RootTypeResolution"
	case SubgraphEnteringTransition:
		return "SubgraphEnteringTransition"
	case InterfaceObjectFakeDownCast:
		return "InterfaceObjectFakeDownCast"
	default:
		return fmt.Sprintf("EdgeKind(%d)", int(k))
	}
}

// Vertex is a type of one source, the API schema or a subgraph.
type Vertex struct {
	Index    int
	TypeName string
	Kind     ast.DefinitionKind
	Source   string
	// Root is the operation the vertex is the root type of, empty otherwise.
	Root            ast.Operation
	InterfaceObject bool

	out []int
}

func (v *Vertex) String() string {
	return fmt.Sprintf("%s(%s)", v.TypeName, v.Source)
}

// IsLeaf reports vertices no edge leaves: scalars and enums.
func (v *Vertex) IsLeaf() bool {
	return v.Kind == ast.Scalar || v.Kind == ast.Enum
}

// Edge is a transition between two vertices.
type Edge struct {
	Index int
	Kind  EdgeKind
	Head  int
	Tail  int

	// FieldName is set on FieldCollection edges.
	FieldName string
	// TypeCondition is set on Downcast and InterfaceObjectFakeDownCast edges.
	TypeCondition string
	// Conditions is the @key of a KeyResolution edge or the @requires of a FieldCollection edge.
	Conditions *federation.FieldSet
	// Provides is the @provides of a FieldCollection edge.
	Provides *federation.FieldSet
	// External fields can't be resolved by their subgraph unless provided.
	External bool
}

type vertexKey struct {
	source   string
	typeName string
}

// Graph is the fused query graph of a supergraph API schema and its subgraphs.
// It is built once and never mutated afterwards.
type Graph struct {
	API       *federation.Schema
	Subgraphs *federation.Subgraphs

	Vertices []*Vertex
	Edges    []*Edge

	vertexIndex map[vertexKey]int
	roots       map[vertexKey]int
	keyEdges    map[string][]int
}

var federationTypeNames = map[string]bool{
	"_Any":     true,
	"_Service": true,
	"_Entity":  true,
}

// Build builds the API graph and the graph of every subgraph, then fuses them
// with key and root transitions.
func Build(ctx context.Context, api *federation.Schema, subgraphs *federation.Subgraphs) (*Graph, error) {
	logger := log.FromContext(ctx)

	g := &Graph{
		API:         api,
		Subgraphs:   subgraphs,
		vertexIndex: make(map[vertexKey]int),
		roots:       make(map[vertexKey]int),
		keyEdges:    make(map[string][]int),
	}

	g.addSchema(APISource, api)
	for _, subgraph := range subgraphs.List() {
		g.addSchema(subgraph.Name, subgraph.Schema)
	}
	for _, subgraph := range subgraphs.List() {
		if err := g.addKeyEdges(subgraph); err != nil {
			return nil, err
		}
	}
	g.addRootEdges()

	logger.Info("query graph built", "vertices", len(g.Vertices), "edges", len(g.Edges))

	return g, nil
}

// Schema returns the schema vertices of source come from.
func (g *Graph) Schema(source string) *federation.Schema {
	if source == APISource {
		return g.API
	}
	if subgraph := g.Subgraphs.Get(source); subgraph != nil {
		return subgraph.Schema
	}
	return nil
}

// Vertex finds the vertex of typeName in source.
func (g *Graph) Vertex(source, typeName string) (*Vertex, bool) {
	idx, ok := g.vertexIndex[vertexKey{source: source, typeName: typeName}]
	if !ok {
		return nil, false
	}
	return g.Vertices[idx], true
}

// Root finds the vertex of the root type of operation in source.
func (g *Graph) Root(source string, operation ast.Operation) (*Vertex, bool) {
	idx, ok := g.roots[vertexKey{source: source, typeName: string(operation)}]
	if !ok {
		return nil, false
	}
	return g.Vertices[idx], true
}

// OutEdges lists the edges leaving v in insertion order.
func (g *Graph) OutEdges(v *Vertex) []*Edge {
	edges := make([]*Edge, 0, len(v.out))
	for _, idx := range v.out {
		edges = append(edges, g.Edges[idx])
	}
	return edges
}

// FieldEdge returns the FieldCollection edge of fieldName leaving v, nil when there is none.
func (g *Graph) FieldEdge(v *Vertex, fieldName string) *Edge {
	for _, idx := range v.out {
		e := g.Edges[idx]
		if e.Kind == FieldCollection && e.FieldName == fieldName {
			return e
		}
	}
	return nil
}

// DowncastEdge returns the edge narrowing v to typeName, including the fake downcasts
// of interface objects, nil when there is none.
func (g *Graph) DowncastEdge(v *Vertex, typeName string) *Edge {
	for _, idx := range v.out {
		e := g.Edges[idx]
		if (e.Kind == Downcast || e.Kind == InterfaceObjectFakeDownCast) && e.TypeCondition == typeName {
			return e
		}
	}
	return nil
}

// KeyEdges lists the KeyResolution edges leaving the API vertex of typeName.
func (g *Graph) KeyEdges(typeName string) []*Edge {
	var edges []*Edge
	for _, idx := range g.keyEdges[typeName] {
		edges = append(edges, g.Edges[idx])
	}
	return edges
}

// RuntimeTypes lists the object types a value of vertex v may have in its source, sorted.
func (g *Graph) RuntimeTypes(v *Vertex) []string {
	if v.Kind == ast.Object && !v.InterfaceObject {
		return []string{v.TypeName}
	}
	var types []string
	for _, idx := range v.out {
		e := g.Edges[idx]
		if e.Kind == Downcast || e.Kind == InterfaceObjectFakeDownCast {
			types = append(types, e.TypeCondition)
		}
	}
	sort.Strings(types)
	return types
}

func (g *Graph) ensureVertex(source string, schema *federation.Schema, typeName string) *Vertex {
	key := vertexKey{source: source, typeName: typeName}
	if idx, ok := g.vertexIndex[key]; ok {
		return g.Vertices[idx]
	}
	v := &Vertex{
		Index:    len(g.Vertices),
		TypeName: typeName,
		Source:   source,
	}
	if def := schema.Type(typeName); def != nil {
		v.Kind = def.Kind
		v.InterfaceObject = source != APISource && schema.IsInterfaceObject(typeName)
	}
	g.Vertices = append(g.Vertices, v)
	g.vertexIndex[key] = v.Index
	return v
}

func (g *Graph) addEdge(e *Edge) *Edge {
	e.Index = len(g.Edges)
	g.Edges = append(g.Edges, e)
	head := g.Vertices[e.Head]
	head.out = append(head.out, e.Index)
	return e
}

func (g *Graph) addSchema(source string, schema *federation.Schema) {
	for _, typeName := range schema.TypeNames() {
		def := schema.Type(typeName)
		if def.Kind == ast.InputObject || (source != APISource && federationTypeNames[typeName]) {
			continue
		}
		g.ensureVertex(source, schema, typeName)
	}

	for _, operation := range []ast.Operation{ast.Query, ast.Mutation, ast.Subscription} {
		if name := schema.RootType(operation); name != "" {
			v := g.ensureVertex(source, schema, name)
			v.Root = operation
			g.roots[vertexKey{source: source, typeName: string(operation)}] = v.Index
		}
	}

	for _, typeName := range schema.TypeNames() {
		head, ok := g.Vertex(source, typeName)
		if !ok {
			continue
		}
		def := schema.Type(typeName)

		switch def.Kind {
		case ast.Object, ast.Interface:
			g.addFieldEdges(source, schema, head, def)
		}
		switch {
		case def.Kind == ast.Interface || def.Kind == ast.Union:
			for _, runtimeType := range utils.PossibleTypeNames(schema.AST, def) {
				tail := g.ensureVertex(source, schema, runtimeType)
				g.addEdge(&Edge{Kind: Downcast, Head: head.Index, Tail: tail.Index, TypeCondition: runtimeType})
			}
		case head.InterfaceObject:
			apiDef := g.API.Type(typeName)
			if apiDef == nil {
				continue
			}
			for _, runtimeType := range utils.PossibleTypeNames(g.API.AST, apiDef) {
				g.addEdge(&Edge{Kind: InterfaceObjectFakeDownCast, Head: head.Index, Tail: head.Index, TypeCondition: runtimeType})
			}
		}
	}
}

func (g *Graph) addFieldEdges(source string, schema *federation.Schema, head *Vertex, def *ast.Definition) {
	for _, field := range def.Fields {
		if graphql.IsMetaField(field.Name) {
			continue
		}
		if head.Root == ast.Query && (field.Name == "_entities" || field.Name == "_service") {
			continue
		}
		tail := g.ensureVertex(source, schema, field.Type.Name())
		e := &Edge{
			Kind:      FieldCollection,
			Head:      head.Index,
			Tail:      tail.Index,
			FieldName: field.Name,
		}
		if source != APISource {
			e.External = isUnresolvable(schema, def.Name, field.Name)
			// invalid field sets were reported when the subgraph was validated
			e.Conditions, _ = schema.Requires(def.Name, field.Name)
			e.Provides, _ = schema.Provides(def.Name, field.Name)
		}
		g.addEdge(e)
	}
}

// isUnresolvable reports @external fields. Key fields of the type in the same subgraph
// are resolvable, as federation 1 marks them @external on entity extensions.
func isUnresolvable(schema *federation.Schema, typeName, fieldName string) bool {
	if !schema.IsExternal(typeName, fieldName) {
		return false
	}
	if schema.ExternalReason(typeName, fieldName) == federation.OverriddenReason {
		return true
	}
	keys, _ := schema.Keys(typeName)
	for _, key := range keys {
		for _, sel := range key.Selection {
			if field, ok := sel.(*ast.Field); ok && field.Name == fieldName {
				return false
			}
		}
	}
	return true
}

func (g *Graph) addKeyEdges(subgraph *federation.Subgraph) error {
	schema := subgraph.Schema
	for _, typeName := range schema.TypeNames() {
		tail, ok := g.Vertex(subgraph.Name, typeName)
		if !ok || (tail.Kind != ast.Object && tail.Kind != ast.Interface) {
			continue
		}
		keys, err := schema.Keys(typeName)
		if err != nil {
			return err
		}

		heads := []string{typeName}
		if tail.InterfaceObject {
			if apiDef := g.API.Type(typeName); apiDef != nil {
				heads = append(heads, utils.PossibleTypeNames(g.API.AST, apiDef)...)
			}
		}

		for _, key := range keys {
			if !key.Resolvable {
				continue
			}
			for _, headName := range heads {
				head, ok := g.Vertex(APISource, headName)
				if !ok {
					continue
				}
				fieldSet := key.FieldSet
				e := g.addEdge(&Edge{
					Kind:       KeyResolution,
					Head:       head.Index,
					Tail:       tail.Index,
					Conditions: &fieldSet,
				})
				g.keyEdges[headName] = append(g.keyEdges[headName], e.Index)
			}
		}
	}
	return nil
}

func (g *Graph) addRootEdges() {
	for _, operation := range []ast.Operation{ast.Query, ast.Mutation, ast.Subscription} {
		apiRoot, ok := g.Root(APISource, operation)
		if !ok {
			continue
		}
		var subgraphRoots []*Vertex
		for _, name := range g.Subgraphs.Names() {
			if root, ok := g.Root(name, operation); ok {
				subgraphRoots = append(subgraphRoots, root)
				g.addEdge(&Edge{Kind: SubgraphEnteringTransition, Head: apiRoot.Index, Tail: root.Index})
			}
		}
		if operation != ast.Query {
			continue
		}
		for _, from := range subgraphRoots {
			for _, to := range subgraphRoots {
				if from != to {
					g.addEdge(&Edge{Kind: RootTypeResolution, Head: from.Index, Tail: to.Index})
				}
			}
		}
	}
}
