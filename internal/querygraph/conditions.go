package querygraph

import (
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vvakame/fedgraph/internal/federation"
)

type conditionKey struct {
	vertex    int
	selection string
	jumps     bool
}

// ConditionResolver decides whether the selection of a @key or a @requires can be
// collected from a subgraph vertex. Results are memoized for the life of the resolver.
// It is not safe for concurrent use.
type ConditionResolver struct {
	g          *Graph
	memo       map[conditionKey]bool
	inProgress map[conditionKey]bool
	// cuts counts the lookups answered false because their condition was in progress.
	cuts int
}

func NewConditionResolver(g *Graph) *ConditionResolver {
	return &ConditionResolver{
		g:          g,
		memo:       make(map[conditionKey]bool),
		inProgress: make(map[conditionKey]bool),
	}
}

// CanSatisfyKey reports whether the fields of key are resolvable by the subgraph of v alone.
func (r *ConditionResolver) CanSatisfyKey(v *Vertex, key *federation.FieldSet) bool {
	if key == nil {
		return true
	}
	return r.canSatisfy(v, key.Selection, false)
}

// CanSatisfyRequires reports whether the fields of requires can be collected starting at v,
// moving to other subgraphs through resolvable keys when the subgraph of v can't provide them.
func (r *ConditionResolver) CanSatisfyRequires(v *Vertex, requires *federation.FieldSet) bool {
	if requires == nil {
		return true
	}
	return r.canSatisfy(v, requires.Selection, true)
}

func (r *ConditionResolver) canSatisfy(v *Vertex, selection ast.SelectionSet, jumps bool) bool {
	if len(selection) == 0 {
		return true
	}
	key := conditionKey{vertex: v.Index, selection: federation.PrintFieldSet(selection), jumps: jumps}
	if result, ok := r.memo[key]; ok {
		return result
	}
	if r.inProgress[key] {
		// a condition depending on itself can't be satisfied
		r.cuts++
		return false
	}
	r.inProgress[key] = true
	cuts := r.cuts
	result := r.resolve(v, selection, jumps)
	delete(r.inProgress, key)
	// a false answer cut short by a condition still being resolved may change later
	if result || r.cuts == cuts || len(r.inProgress) == 0 {
		r.memo[key] = result
	}
	return result
}

func (r *ConditionResolver) resolve(v *Vertex, selection ast.SelectionSet, jumps bool) bool {
	for _, sel := range selection {
		switch sel := sel.(type) {
		case *ast.Field:
			if sel.Name == "__typename" {
				continue
			}
			if !r.resolveField(v, sel, jumps) {
				return false
			}
		case *ast.InlineFragment:
			if sel.TypeCondition == "" || sel.TypeCondition == v.TypeName {
				if !r.canSatisfy(v, sel.SelectionSet, jumps) {
					return false
				}
				continue
			}
			e := r.g.DowncastEdge(v, sel.TypeCondition)
			if e == nil {
				if v.Kind == ast.Object && !v.InterfaceObject {
					// the fragment never applies to this type
					continue
				}
				return false
			}
			if !r.canSatisfy(r.g.Vertices[e.Tail], sel.SelectionSet, jumps) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func (r *ConditionResolver) resolveField(v *Vertex, field *ast.Field, jumps bool) bool {
	sub := ast.SelectionSet{field}

	if e := r.g.FieldEdge(v, field.Name); e != nil && !e.External {
		if e.Conditions == nil || r.canSatisfy(v, e.Conditions.Selection, true) {
			if r.canSatisfy(r.g.Vertices[e.Tail], field.SelectionSet, jumps) {
				return true
			}
		}
	}
	if !jumps {
		return false
	}

	for _, e := range r.g.KeyEdges(v.TypeName) {
		tail := r.g.Vertices[e.Tail]
		if tail.Source == v.Source {
			continue
		}
		if !r.canSatisfy(v, e.Conditions.Selection, false) {
			continue
		}
		if r.canSatisfy(tail, sub, true) {
			return true
		}
	}
	return false
}

