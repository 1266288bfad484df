package federation

import (
	"sort"

	"github.com/vektah/gqlparser/v2/ast"
)

type Subgraph struct {
	Name   string
	URL    string
	Schema *Schema
}

// Subgraphs is a collection of subgraphs with unique names, kept in insertion order.
type Subgraphs struct {
	list   []*Subgraph
	byName map[string]*Subgraph
}

func NewSubgraphs() *Subgraphs {
	return &Subgraphs{byName: make(map[string]*Subgraph)}
}

// Add inserts subgraph, failing with DUPLICATE_SUBGRAPH when the name is taken.
func (s *Subgraphs) Add(subgraph *Subgraph) error {
	if _, ok := s.byName[subgraph.Name]; ok {
		return NewError(nil, CodeDuplicateSubgraph, "A subgraph named %q already exists", subgraph.Name)
	}
	s.list = append(s.list, subgraph)
	s.byName[subgraph.Name] = subgraph
	return nil
}

func (s *Subgraphs) Get(name string) *Subgraph {
	return s.byName[name]
}

func (s *Subgraphs) Len() int {
	return len(s.list)
}

// List returns the subgraphs in insertion order.
func (s *Subgraphs) List() []*Subgraph {
	return append([]*Subgraph(nil), s.list...)
}

// Names returns the subgraph names in insertion order.
func (s *Subgraphs) Names() []string {
	names := make([]string, 0, len(s.list))
	for _, subgraph := range s.list {
		names = append(names, subgraph.Name)
	}
	return names
}

// SortedNames returns the subgraph names in lexical order.
func (s *Subgraphs) SortedNames() []string {
	names := s.Names()
	sort.Strings(names)
	return names
}

// RootType is the name of the type a subgraph uses for operation, "" when there is none.
func (s *Schema) RootType(operation ast.Operation) string {
	var def *ast.Definition
	switch operation {
	case ast.Query:
		def = s.AST.Query
	case ast.Mutation:
		def = s.AST.Mutation
	case ast.Subscription:
		def = s.AST.Subscription
	}
	if def == nil {
		return ""
	}
	return def.Name
}
