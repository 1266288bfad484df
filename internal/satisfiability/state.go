package satisfiability

import (
	"sort"
	"strconv"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vvakame/fedgraph/internal/federation"
	"github.com/vvakame/fedgraph/internal/querygraph"
)

// path is one way a subgraph can stand at the current API position.
type path struct {
	vertex *querygraph.Vertex
	// provided is the @provides selection applying to the fields of vertex.
	provided ast.SelectionSet
	// conditions counts the @key and @requires conditions crossed to get here.
	conditions int
}

func (p *path) key() string {
	return strconv.Itoa(p.vertex.Index) + ":" + federation.PrintFieldSet(p.provided)
}

// isProvided reports whether fieldName is selected by the @provides applying to p.
func (p *path) isProvided(fieldName string) bool {
	for _, sel := range p.provided {
		if field, ok := sel.(*ast.Field); ok && field.Name == fieldName {
			return true
		}
	}
	return false
}

// providedBelow collects the sub-selections of fieldName in the @provides applying to p.
func (p *path) providedBelow(fieldName string) ast.SelectionSet {
	var selection ast.SelectionSet
	for _, sel := range p.provided {
		if field, ok := sel.(*ast.Field); ok && field.Name == fieldName {
			selection = append(selection, field.SelectionSet...)
		}
	}
	return selection
}

// providedOn narrows the @provides applying to p to the runtime type typeName.
func (p *path) providedOn(typeName string) ast.SelectionSet {
	var selection ast.SelectionSet
	for _, sel := range p.provided {
		switch sel := sel.(type) {
		case *ast.Field:
			selection = append(selection, sel)
		case *ast.InlineFragment:
			if sel.TypeCondition == "" || sel.TypeCondition == typeName {
				selection = append(selection, sel.SelectionSet...)
			}
		}
	}
	return selection
}

type stepKind int

const (
	fieldStep stepKind = iota
	downcastStep
)

// step is one selection of the witness query.
type step struct {
	kind      stepKind
	name      string
	field     *ast.FieldDefinition
	composite bool
}

// state is a position of the API graph with every subgraph path able to stand there.
type state struct {
	apiVertex *querygraph.Vertex
	paths     []*path
	witness   []*step
	operation ast.Operation
}

func (s *state) next(apiVertex *querygraph.Vertex, paths []*path, st *step) *state {
	witness := make([]*step, 0, len(s.witness)+1)
	witness = append(witness, s.witness...)
	witness = append(witness, st)
	return &state{
		apiVertex: apiVertex,
		paths:     paths,
		witness:   witness,
		operation: s.operation,
	}
}

// dedupPaths keeps one path per vertex and provided selection, the one crossing the fewest
// conditions. The result is sorted by key.
func dedupPaths(paths []*path) []*path {
	byKey := make(map[string]*path)
	var keys []string
	for _, p := range paths {
		k := p.key()
		existing, ok := byKey[k]
		if !ok {
			keys = append(keys, k)
			byKey[k] = p
			continue
		}
		if p.conditions < existing.conditions {
			byKey[k] = p
		}
	}
	sort.Strings(keys)

	result := make([]*path, 0, len(keys))
	for _, k := range keys {
		result = append(result, byKey[k])
	}
	return result
}

// subsumptionCache remembers the path sets already explored at each API vertex.
type subsumptionCache struct {
	seen map[int][]map[string]bool
}

func newSubsumptionCache() *subsumptionCache {
	return &subsumptionCache{seen: make(map[int][]map[string]bool)}
}

// visit reports whether s needs exploring. A state is skipped when an explored state at the
// same API vertex had a subset of its paths: s can't fail anywhere that one didn't.
func (c *subsumptionCache) visit(s *state) bool {
	current := make(map[string]bool, len(s.paths))
	for _, p := range s.paths {
		current[p.key()] = true
	}

	for _, earlier := range c.seen[s.apiVertex.Index] {
		if isSubset(earlier, current) {
			return false
		}
	}
	c.seen[s.apiVertex.Index] = append(c.seen[s.apiVertex.Index], current)
	return true
}

func isSubset(a, b map[string]bool) bool {
	if len(a) > len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}
