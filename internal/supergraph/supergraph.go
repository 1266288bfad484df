package supergraph

import (
	"context"

	"github.com/vvakame/fedgraph/internal/federation"
	"github.com/vvakame/fedgraph/internal/graphql"
	"github.com/vvakame/fedgraph/internal/link"
	"github.com/vvakame/fedgraph/internal/log"
)

const (
	CodeMissingJoinLink         = "MISSING_JOIN_LINK"
	CodeUnknownGraph            = "UNKNOWN_GRAPH_IN_JOIN_DIRECTIVE"
	CodeOverrideSourceUnknown   = "OVERRIDE_SOURCE_UNKNOWN"
	CodeInterfaceObjectMismatch = "INTERFACE_OBJECT_MISMATCH"
	CodeEmptyTypeAfterOverride  = "EMPTY_TYPE_AFTER_OVERRIDE"
)

// Supergraph is a composed schema together with the graphs its join__Graph enum declares.
type Supergraph struct {
	Schema *federation.Schema
	Graphs []*federation.JoinGraph

	byEnumValue map[string]*federation.JoinGraph
	byName      map[string]*federation.JoinGraph
}

// Load parses a supergraph SDL.
func Load(ctx context.Context, name string, sdl string) (*Supergraph, error) {
	schema, err := federation.Parse(ctx, name, sdl, nil)
	if err != nil {
		return nil, err
	}
	return New(ctx, schema)
}

// New checks schema links the join spec and reads its graphs.
func New(ctx context.Context, schema *federation.Schema) (*Supergraph, error) {
	logger := log.FromContext(ctx)

	if schema.Links.ForIdentity(link.JoinIdentity) == nil {
		return nil, federation.NewError(nil, CodeMissingJoinLink, "Invalid supergraph: must use the join spec")
	}

	graphs, err := schema.JoinGraphs()
	if err != nil {
		return nil, err
	}

	sg := &Supergraph{
		Schema:      schema,
		Graphs:      graphs,
		byEnumValue: make(map[string]*federation.JoinGraph),
		byName:      make(map[string]*federation.JoinGraph),
	}
	for _, graph := range graphs {
		sg.byEnumValue[graph.EnumValue] = graph
		sg.byName[graph.Name] = graph
	}

	logger.Info("supergraph loaded", "join", sg.JoinVersion().String(), "graphs", len(graphs))

	return sg, nil
}

// JoinVersion is the version of the join spec the supergraph links.
func (sg *Supergraph) JoinVersion() link.Version {
	version, _ := sg.Schema.JoinSpecVersion()
	return version
}

// Graph returns the graph declared by the join__Graph value enumValue.
func (sg *Supergraph) Graph(enumValue string) *federation.JoinGraph {
	return sg.byEnumValue[enumValue]
}

// GraphByName returns the graph whose @join__graph name is name.
func (sg *Supergraph) GraphByName(name string) *federation.JoinGraph {
	return sg.byName[name]
}

// GraphNames lists subgraph names in join__Graph order.
func (sg *Supergraph) GraphNames() []string {
	names := make([]string, 0, len(sg.Graphs))
	for _, graph := range sg.Graphs {
		names = append(names, graph.Name)
	}
	return names
}

// skipType reports types that belong to the supergraph machinery rather than to any subgraph.
func (sg *Supergraph) skipType(typeName string) bool {
	if sg.Schema.Links.IsSpecType(typeName) {
		return true
	}
	if graphql.IsIntrospectionType(typeName) || graphql.IsSpecifiedScalarType(typeName) {
		return true
	}
	def := sg.Schema.Type(typeName)
	return def == nil || def.BuiltIn
}
