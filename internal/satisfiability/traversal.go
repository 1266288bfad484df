package satisfiability

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-logr/logr"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vvakame/fedgraph/internal/federation"
	"github.com/vvakame/fedgraph/internal/log"
	"github.com/vvakame/fedgraph/internal/querygraph"
)

type traverser struct {
	vctx     *ValidationContext
	g        *querygraph.Graph
	resolver *querygraph.ConditionResolver
	opts     *Options
	cache    *subsumptionCache
	logger   logr.Logger

	errs     gqlerror.List
	hints    gqlerror.List
	reported map[string]bool
	hinted   map[string]bool
}

func newTraverser(vctx *ValidationContext, g *querygraph.Graph, opts *Options) *traverser {
	return &traverser{
		vctx:     vctx,
		g:        g,
		resolver: querygraph.NewConditionResolver(g),
		opts:     opts,
		cache:    newSubsumptionCache(),
		reported: make(map[string]bool),
		hinted:   make(map[string]bool),
	}
}

// failure collects why no subgraph could take a field.
type failure struct {
	reasons        map[string][]string
	externalFailed bool
	keyFailed      bool
}

func (f *failure) add(source string, format string, args ...interface{}) {
	reason := fmt.Sprintf(format, args...)
	for _, existing := range f.reasons[source] {
		if existing == reason {
			return
		}
	}
	f.reasons[source] = append(f.reasons[source], reason)
}

func (f *failure) code() string {
	switch {
	case f.externalFailed:
		return CodeExternalFieldUnresolved
	case f.keyFailed:
		return CodeKeyNotSatisfiable
	default:
		return CodeUnreachableField
	}
}

func (v *traverser) limitReached() bool {
	return v.opts.ErrorLimit > 0 && len(v.errs) >= v.opts.ErrorLimit
}

func (v *traverser) run(ctx context.Context) {
	v.logger = log.FromContext(ctx)

	var stack []*state
	operations := []ast.Operation{ast.Query, ast.Mutation, ast.Subscription}
	for i := len(operations) - 1; i >= 0; i-- {
		root, ok := v.g.Root(querygraph.APISource, operations[i])
		if !ok {
			continue
		}
		var paths []*path
		for _, e := range v.g.OutEdges(root) {
			if e.Kind == querygraph.SubgraphEnteringTransition {
				paths = append(paths, &path{vertex: v.g.Vertices[e.Tail]})
			}
		}
		stack = append(stack, &state{apiVertex: root, paths: dedupPaths(paths), operation: operations[i]})
	}

	var explored int
	for len(stack) != 0 {
		if v.limitReached() {
			v.logger.Info("error limit reached, traversal stopped", "limit", v.opts.ErrorLimit)
			return
		}

		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if s.apiVertex.IsLeaf() {
			continue
		}
		if !v.cache.visit(s) {
			v.logger.V(1).Info("state subsumed", "vertex", s.apiVertex.String(), "paths", len(s.paths))
			continue
		}
		explored++

		children := v.expand(s)
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}

	v.logger.V(1).Info("traversal done", "states", explored)
}

// expand follows every field and downcast edge leaving the API position of s.
func (v *traverser) expand(s *state) []*state {
	var children []*state
	for _, e := range v.g.OutEdges(s.apiVertex) {
		var child *state
		switch e.Kind {
		case querygraph.FieldCollection:
			child = v.advanceField(s, e)
		case querygraph.Downcast:
			child = v.downcast(s, e)
		}
		if child != nil {
			children = append(children, child)
		}
		if v.limitReached() {
			break
		}
	}
	return children
}

func (v *traverser) advanceField(s *state, e *querygraph.Edge) *state {
	tail := v.g.Vertices[e.Tail]
	st := &step{
		kind:      fieldStep,
		name:      e.FieldName,
		field:     v.g.API.Field(s.apiVertex.TypeName, e.FieldName),
		composite: !tail.IsLeaf(),
	}

	f := &failure{reasons: make(map[string][]string)}
	var next []*path
	for _, p := range s.paths {
		next = append(next, v.advance(s, p, e.FieldName, f)...)
	}
	if len(next) == 0 {
		v.report(s, st, f)
		return nil
	}

	v.checkRuntimeTypes(s, st, tail)

	return s.next(tail, dedupPaths(next), st)
}

// advance lists every way p can take fieldName: directly, from another query root,
// or from another subgraph entered through one or more @key transitions.
func (v *traverser) advance(s *state, p *path, fieldName string, f *failure) []*path {
	var result []*path
	if next := v.take(p, fieldName, f); next != nil {
		result = append(result, next)
	}

	if p.vertex.Root == ast.Query {
		for _, e := range v.g.OutEdges(p.vertex) {
			if e.Kind != querygraph.RootTypeResolution {
				continue
			}
			jumped := &path{vertex: v.g.Vertices[e.Tail], conditions: p.conditions}
			if next := v.take(jumped, fieldName, f); next != nil {
				result = append(result, next)
			}
		}
	}

	for _, jumped := range v.keyClosure(s, p, f) {
		if next := v.take(jumped, fieldName, f); next != nil {
			result = append(result, next)
		}
	}

	return result
}

// keyClosure lists the paths of every other subgraph reachable from p through a chain of
// @key transitions, each subgraph entered once through the shortest chain.
func (v *traverser) keyClosure(s *state, p *path, f *failure) []*path {
	type keyFailure struct {
		from   string
		fields string
		typ    string
	}

	visited := map[string]bool{p.vertex.Source: true}
	failed := make(map[string][]keyFailure)
	var targets []string

	var reached []*path
	queue := []*path{p}
	for len(queue) != 0 {
		current := queue[0]
		queue = queue[1:]

		for _, e := range v.g.KeyEdges(s.apiVertex.TypeName) {
			tail := v.g.Vertices[e.Tail]
			if visited[tail.Source] {
				continue
			}
			if !v.resolver.CanSatisfyKey(current.vertex, e.Conditions) {
				if _, ok := failed[tail.Source]; !ok {
					targets = append(targets, tail.Source)
				}
				failed[tail.Source] = append(failed[tail.Source], keyFailure{from: current.vertex.Source, fields: e.Conditions.Fields, typ: tail.TypeName})
				continue
			}
			visited[tail.Source] = true
			jumped := &path{vertex: tail, conditions: current.conditions + 1}
			reached = append(reached, jumped)
			queue = append(queue, jumped)
		}
	}

	for _, target := range targets {
		if visited[target] {
			continue
		}
		f.keyFailed = true
		for _, kf := range failed[target] {
			f.add(
				target,
				"cannot move to subgraph %q using @key(fields: %q) of %q: the key field(s) cannot be resolved from subgraph %q",
				target, kf.fields, kf.typ, kf.from,
			)
		}
	}

	return reached
}

// take follows the field edge of fieldName from p within its subgraph.
func (v *traverser) take(p *path, fieldName string, f *failure) *path {
	source := p.vertex.Source
	coordinate := p.vertex.TypeName + "." + fieldName

	e := v.g.FieldEdge(p.vertex, fieldName)
	if e == nil {
		f.add(source, "cannot find field %q", coordinate)
		return nil
	}
	if e.External && !p.isProvided(fieldName) {
		f.externalFailed = true
		f.add(source, "field %q is @external and not provided", coordinate)
		return nil
	}

	conditions := p.conditions
	if e.Conditions != nil {
		if !v.resolver.CanSatisfyRequires(p.vertex, e.Conditions) {
			f.add(source, "cannot satisfy @requires(fields: %q) on field %q", e.Conditions.Fields, coordinate)
			return nil
		}
		conditions++
	}

	provided := p.providedBelow(fieldName)
	if e.Provides != nil {
		provided = append(provided, e.Provides.Selection...)
	}

	return &path{
		vertex:     v.g.Vertices[e.Tail],
		provided:   provided,
		conditions: conditions,
	}
}

// downcast narrows s to a runtime type. Paths whose subgraph never returns that type are
// dropped, and so is the whole branch when none is left.
func (v *traverser) downcast(s *state, e *querygraph.Edge) *state {
	typeName := e.TypeCondition

	var next []*path
	for _, p := range s.paths {
		if p.vertex.TypeName == typeName && p.vertex.Kind == ast.Object && !p.vertex.InterfaceObject {
			next = append(next, p)
			continue
		}
		de := v.g.DowncastEdge(p.vertex, typeName)
		if de == nil {
			continue
		}
		next = append(next, &path{
			vertex:     v.g.Vertices[de.Tail],
			provided:   p.providedOn(typeName),
			conditions: p.conditions,
		})
	}
	if len(next) == 0 {
		v.logger.V(1).Info("no subgraph returns runtime type", "type", s.apiVertex.TypeName, "runtimeType", typeName)
		return nil
	}

	return s.next(v.g.Vertices[e.Tail], dedupPaths(next), &step{kind: downcastStep, name: typeName, composite: true})
}

func (v *traverser) report(s *state, st *step, f *failure) {
	typeName := s.apiVertex.TypeName
	coordinate := typeName + "." + st.name
	if v.reported[coordinate] {
		return
	}
	v.reported[coordinate] = true

	// subgraphs holding the field that nothing could reach
	for _, name := range v.g.Subgraphs.Names() {
		if len(f.reasons[name]) != 0 {
			continue
		}
		sv, ok := v.g.Vertex(name, typeName)
		if !ok || v.g.FieldEdge(sv, st.name) == nil {
			continue
		}
		f.add(name, "no @key on %q in subgraph %q", typeName, name)
	}

	witness := renderWitness(v.g.API, s.operation, append(append([]*step(nil), s.witness...), st))

	var lines []string
	reasons := make(map[string][]string)
	for _, name := range v.g.Subgraphs.Names() {
		for _, reason := range f.reasons[name] {
			lines = append(lines, fmt.Sprintf("- from subgraph %q: %s.", name, reason))
		}
		if len(f.reasons[name]) != 0 {
			reasons[name] = f.reasons[name]
		}
	}
	if len(lines) == 0 {
		lines = append(lines, fmt.Sprintf("- no subgraph can resolve field %q.", coordinate))
	}

	var pos *ast.Position
	if field := v.vctx.sg.Schema.Field(typeName, st.name); field != nil {
		pos = field.Position
	}
	gErr := federation.NewError(
		pos, f.code(),
		"The following supergraph API query:\n%s\ncannot be satisfied by the subgraphs because:\n%s",
		witness, strings.Join(lines, "\n"),
	)
	gErr.Extensions["witness"] = witness
	gErr.Extensions["subgraphs"] = reasons
	v.errs = append(v.errs, gErr)

	v.logger.V(1).Info("unsatisfiable field", "field", coordinate, "code", f.code())
}

// checkRuntimeTypes hints at shared fields of abstract type whose subgraphs don't agree on
// the runtime types they may return.
func (v *traverser) checkRuntimeTypes(s *state, st *step, tail *querygraph.Vertex) {
	if tail.Kind != ast.Interface && tail.Kind != ast.Union {
		return
	}
	typeName := s.apiVertex.TypeName
	coordinate := typeName + "." + st.name
	if v.hinted[coordinate] || !v.vctx.IsShareable(typeName, st.name) {
		return
	}
	v.hinted[coordinate] = true

	var subgraphs []string
	var details []string
	distinct := make(map[string]bool)
	for _, name := range v.g.Subgraphs.Names() {
		sv, ok := v.g.Vertex(name, typeName)
		if !ok {
			continue
		}
		e := v.g.FieldEdge(sv, st.name)
		if e == nil || e.External {
			continue
		}
		runtimeTypes := v.g.RuntimeTypes(v.g.Vertices[e.Tail])
		distinct[strings.Join(runtimeTypes, ",")] = true
		subgraphs = append(subgraphs, name)

		if len(runtimeTypes) == 0 {
			details = append(details, fmt.Sprintf(" - subgraph %q resolves it to no runtime type", name))
		} else {
			details = append(details, fmt.Sprintf(" - subgraph %q resolves it to %s", name, federation.HumanReadableList(runtimeTypes)))
		}
	}
	if len(distinct) < 2 {
		return
	}

	witness := renderWitness(v.g.API, s.operation, append(append([]*step(nil), s.witness...), st))

	var pos *ast.Position
	if field := v.vctx.sg.Schema.Field(typeName, st.name); field != nil {
		pos = field.Position
	}
	hint := federation.NewError(
		pos, CodeAbstractTypeRuntimeMismatch,
		"For the following supergraph API query:\n%s\nShared field %q return type %q has different sets of possible runtime types across %s:\n%s",
		witness, coordinate, tail.TypeName, federation.PrintSubgraphNames(subgraphs), strings.Join(details, "\n"),
	)
	hint.Extensions["witness"] = witness
	hint.Extensions["subgraphs"] = subgraphs
	v.hints = append(v.hints, hint)
}
