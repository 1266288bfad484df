package planner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/99designs/gqlgen/graphql"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"
	"github.com/vektah/gqlparser/v2/validator"
	"github.com/vvakame/fedgraph/internal/federation"
	"github.com/vvakame/fedgraph/internal/log"
	"github.com/vvakame/fedgraph/internal/plan"
	"github.com/vvakame/fedgraph/internal/querygraph"
)

const CodeQueryPlanningFailed = "QUERY_PLANNING_FAILED"

type queryPlanningContext struct {
	graph    *querygraph.Graph
	schema   *ast.Schema
	opctx    *graphql.OperationContext
	resolver *querygraph.ConditionResolver

	variableDefinitions map[string]*ast.VariableDefinition
}

// Plan builds the fetches answering the operation of opctx from the subgraphs of g.
// opctx must have been validated against the API schema of g.
func Plan(ctx context.Context, g *querygraph.Graph, opctx *graphql.OperationContext) (*plan.QueryPlan, error) {
	ctx = log.WithName(ctx, "planner")
	logger := log.FromContext(ctx)

	operation := opctx.Operation
	if operation.Operation == ast.Subscription {
		return nil, federation.NewError(operation.Position, CodeQueryPlanningFailed, "subscription is not supported")
	}

	qpctx := &queryPlanningContext{
		graph:               g,
		schema:              g.API.AST,
		opctx:               opctx,
		resolver:            querygraph.NewConditionResolver(g),
		variableDefinitions: make(map[string]*ast.VariableDefinition),
	}
	for _, varDef := range operation.VariableDefinitions {
		qpctx.variableDefinitions[varDef.Variable] = varDef
	}

	rootType, err := getOperationRootType(qpctx.schema, operation)
	if err != nil {
		return nil, err
	}

	fields := graphql.CollectFields(opctx, operation.SelectionSet, []string{rootType.Name})

	logger.Info("building plan", "operation", string(operation.Operation), "rootType", rootType.Name, "fields", len(fields))

	groups, err := splitRootFields(ctx, qpctx, fields, operation.Operation == ast.Mutation)
	if err != nil {
		return nil, err
	}

	var nodes []plan.PlanNode
	for _, group := range groups {
		node, err := executionNodeForGroup(ctx, qpctx, group)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}

	var node plan.PlanNode
	if len(nodes) == 0 {
		// OK. e.g. IntrospectionQuery.
	} else if operation.Operation == ast.Mutation {
		node, err = flatWrapSequence(ctx, nodes)
	} else {
		node, err = flatWrapParallel(ctx, nodes)
	}
	if err != nil {
		return nil, err
	}

	return &plan.QueryPlan{Node: node}, nil
}

func getOperationRootType(schema *ast.Schema, operation *ast.OperationDefinition) (*ast.Definition, error) {
	var def *ast.Definition
	switch operation.Operation {
	case ast.Query, "":
		def = schema.Query
	case ast.Mutation:
		def = schema.Mutation
	case ast.Subscription:
		def = schema.Subscription
	}
	if def == nil {
		return nil, fmt.Errorf("unexpected operation: %s", operation.Operation)
	}
	return def, nil
}

// splitRootFields groups root fields per subgraph. Mutation fields run serially, so only
// neighbouring fields of the same subgraph share a group.
func splitRootFields(ctx context.Context, qpctx *queryPlanningContext, fields []graphql.CollectedField, serially bool) ([]*FetchGroup, error) {
	logger := log.FromContext(ctx)

	operation := qpctx.opctx.Operation.Operation
	if operation == "" {
		operation = ast.Query
	}
	rootType, _ := getOperationRootType(qpctx.schema, qpctx.opctx.Operation)

	var groups []*FetchGroup
	byService := make(map[string]*FetchGroup)
	for _, field := range fields {
		if strings.HasPrefix(field.Name, "__") {
			// introspection is answered by the gateway itself
			continue
		}

		root, err := qpctx.chooseRoot(operation, rootType, field)
		if err != nil {
			return nil, err
		}
		logger.V(1).Info("root field", "field", field.Name, "service", root.Source)

		var group *FetchGroup
		switch {
		case serially:
			if len(groups) != 0 && groups[len(groups)-1].ServiceName == root.Source {
				group = groups[len(groups)-1]
			}
		default:
			group = byService[root.Source]
		}
		if group == nil {
			group = newRootGroup(root.Source)
			byService[root.Source] = group
			groups = append(groups, group)
		}

		selection, err := qpctx.completeFields(group, root, rootType, nil, []graphql.CollectedField{field})
		if err != nil {
			return nil, err
		}
		group.Fields = mergeSelectionSets(group.Fields, selection)
	}

	return groups, nil
}

// chooseRoot picks the subgraph resolving field with the fewest hand-offs to other subgraphs.
// Ties go to the first subgraph in declaration order.
func (qpctx *queryPlanningContext) chooseRoot(operation ast.Operation, rootType *ast.Definition, field graphql.CollectedField) (*querygraph.Vertex, error) {
	var best *querygraph.Vertex
	var bestCost int
	for _, name := range qpctx.graph.Subgraphs.Names() {
		root, ok := qpctx.graph.Root(name, operation)
		if !ok {
			continue
		}
		e := qpctx.graph.FieldEdge(root, field.Name)
		if e == nil || e.External {
			continue
		}
		cost := qpctx.cost(qpctx.graph.Vertices[e.Tail], field.Definition, field.Selections)
		if best == nil || cost < bestCost {
			best = root
			bestCost = cost
		}
	}
	if best == nil {
		return nil, qpctx.planningError(field.Field, "Cannot find a subgraph resolving field %q", rootType.Name+"."+field.Name)
	}
	return best, nil
}

// cost counts the fields of selection v can't resolve by itself.
func (qpctx *queryPlanningContext) cost(v *querygraph.Vertex, fieldDef *ast.FieldDefinition, selection ast.SelectionSet) int {
	if len(selection) == 0 || fieldDef == nil {
		return 0
	}
	returnType := qpctx.schema.Types[fieldDef.Type.Name()]
	if returnType == nil {
		return 0
	}
	satisfies := satisfiesOf(returnType)
	if returnType.IsAbstractType() {
		for _, possible := range qpctx.schema.GetPossibleTypes(returnType) {
			satisfies = append(satisfies, possible.Name)
		}
	}

	var cost int
	for _, field := range graphql.CollectFields(qpctx.opctx, selection, satisfies) {
		if field.Name == "__typename" {
			continue
		}
		e := qpctx.graph.FieldEdge(v, field.Name)
		if e == nil || e.External || e.Conditions != nil {
			cost++
			continue
		}
		cost += qpctx.cost(qpctx.graph.Vertices[e.Tail], field.Definition, field.Selections)
	}
	return cost
}

// completeFields plans fields of parentType read from v. The result is what the group
// fetching v selects. Fields v can't resolve are handed to dependent groups, and the group
// selects the key of the entity instead.
func (qpctx *queryPlanningContext) completeFields(group *FetchGroup, v *querygraph.Vertex, parentType *ast.Definition, path ast.Path, fields []graphql.CollectedField) (ast.SelectionSet, error) {
	var result ast.SelectionSet
	for _, field := range fields {
		if field.Name == "__typename" {
			result = mergeSelectionSets(result, ast.SelectionSet{copyField(field.Field, nil)})
			continue
		}
		if field.Definition == nil {
			return nil, qpctx.planningError(field.Field, "Unknown field %q", parentType.Name+"."+field.Name)
		}
		fieldPath := addPath(path, responseName(field.Field), field.Definition.Type)

		if e := qpctx.graph.FieldEdge(v, field.Name); e != nil && !e.External && e.Conditions == nil {
			sub, err := qpctx.completeSubselection(group, qpctx.graph.Vertices[e.Tail], field, fieldPath)
			if err != nil {
				return nil, err
			}
			result = mergeSelectionSets(result, ast.SelectionSet{copyField(field.Field, sub)})
			continue
		}

		selection, err := qpctx.handOff(group, v, parentType, path, field, fieldPath)
		if err != nil {
			return nil, err
		}
		result = mergeSelectionSets(result, selection)
	}
	return result, nil
}

// handOff moves field to a subgraph reachable through a @key of parentType.
func (qpctx *queryPlanningContext) handOff(group *FetchGroup, v *querygraph.Vertex, parentType *ast.Definition, path ast.Path, field graphql.CollectedField, fieldPath ast.Path) (ast.SelectionSet, error) {
	keyEdge, target := qpctx.entityJump(v, parentType.Name, field.Name)
	if keyEdge == nil {
		return nil, qpctx.planningError(
			field.Field, "Cannot find a subgraph resolving field %q from subgraph %q",
			parentType.Name+"."+field.Name, v.Source,
		)
	}
	targetEdge := qpctx.graph.FieldEdge(target, field.Name)

	requires := cloneSelection(keyEdge.Conditions.Selection)
	if targetEdge.Conditions != nil {
		requires = mergeSelectionSets(requires, cloneSelection(targetEdge.Conditions.Selection))
	}

	dependent := group.dependentGroupForService(target.Source, path)
	sub, err := qpctx.completeSubselection(dependent, qpctx.graph.Vertices[targetEdge.Tail], field, fieldPath)
	if err != nil {
		return nil, err
	}
	dependent.addEntity(target.TypeName, requires, ast.SelectionSet{copyField(field.Field, sub)})

	return mergeSelectionSets(ast.SelectionSet{typenameField()}, cloneSelection(requires)), nil
}

// entityJump finds a key leading from v to a subgraph resolving fieldName, whose key and
// @requires fields v resolves itself.
func (qpctx *queryPlanningContext) entityJump(v *querygraph.Vertex, typeName, fieldName string) (*querygraph.Edge, *querygraph.Vertex) {
	for _, e := range qpctx.graph.KeyEdges(typeName) {
		tail := qpctx.graph.Vertices[e.Tail]
		if tail.Source == v.Source {
			continue
		}
		te := qpctx.graph.FieldEdge(tail, fieldName)
		if te == nil || te.External {
			continue
		}
		if !qpctx.resolver.CanSatisfyKey(v, e.Conditions) {
			continue
		}
		if te.Conditions != nil && !qpctx.resolver.CanSatisfyKey(v, te.Conditions) {
			continue
		}
		return e, tail
	}
	return nil, nil
}

func (qpctx *queryPlanningContext) completeSubselection(group *FetchGroup, v *querygraph.Vertex, field graphql.CollectedField, path ast.Path) (ast.SelectionSet, error) {
	if len(field.Selections) == 0 {
		return nil, nil
	}
	returnType := qpctx.schema.Types[field.Definition.Type.Name()]

	if !returnType.IsAbstractType() {
		subfields := graphql.CollectFields(qpctx.opctx, field.Selections, satisfiesOf(returnType))
		return qpctx.completeFields(group, v, returnType, path, subfields)
	}

	result := ast.SelectionSet{typenameField()}
	for _, possible := range sortedPossibleTypes(qpctx.schema, returnType) {
		subfields := graphql.CollectFields(qpctx.opctx, field.Selections, satisfiesOf(possible))
		if onlyTypename(subfields) {
			continue
		}

		target := v
		fake := false
		if v.TypeName != possible.Name || v.InterfaceObject {
			de := qpctx.graph.DowncastEdge(v, possible.Name)
			if de == nil {
				// the subgraph never returns that type
				continue
			}
			target = qpctx.graph.Vertices[de.Tail]
			fake = de.Kind == querygraph.InterfaceObjectFakeDownCast
		}

		sub, err := qpctx.completeFields(group, target, possible, path, subfields)
		if err != nil {
			return nil, err
		}
		if fake {
			// the subgraph only knows the interface
			result = mergeSelectionSets(result, sub)
			continue
		}
		result = mergeSelectionSets(result, ast.SelectionSet{&ast.InlineFragment{
			TypeCondition: possible.Name,
			SelectionSet:  sub,
		}})
	}
	return result, nil
}

func (qpctx *queryPlanningContext) planningError(field *ast.Field, format string, args ...interface{}) error {
	var pos *ast.Position
	if field != nil {
		pos = field.Position
	}
	return federation.NewError(pos, CodeQueryPlanningFailed, format, args...)
}

func executionNodeForGroup(ctx context.Context, qpctx *queryPlanningContext, fetchGroup *FetchGroup) (plan.PlanNode, error) {
	selectionSet := fetchGroup.selectionSet()
	variableUsages := qpctx.getVariableUsages(selectionSet)

	var operation *ast.QueryDocument
	if fetchGroup.isEntityFetch() {
		operation = operationForEntitiesFetch(selectionSet, variableUsages)
	} else {
		operation = operationForRootFetch(selectionSet, variableUsages, qpctx.opctx.Operation.Operation)
	}

	variableUsageNames := make([]string, 0, len(variableUsages))
	for _, variableUsage := range variableUsages {
		variableUsageNames = append(variableUsageNames, variableUsage.Variable)
	}

	var buf bytes.Buffer
	formatter.NewFormatter(&buf).FormatQueryDocument(operation)

	fetchNode := &plan.FetchNode{
		ServiceName:    fetchGroup.ServiceName,
		VariableUsages: variableUsageNames,
		Requires:       plan.TrimSelectionNodes(fetchGroup.requires()),
		Operation:      buf.String(),
	}

	var node plan.PlanNode
	if len(fetchGroup.MergeAt) > 0 {
		node = &plan.FlattenNode{
			Path: fetchGroup.MergeAt,
			Node: fetchNode,
		}
	} else {
		node = fetchNode
	}

	dependentGroups := fetchGroup.dependentGroups()
	if len(dependentGroups) == 0 {
		return node, nil
	}

	var dependentNodes []plan.PlanNode
	for _, dependentGroup := range dependentGroups {
		dependentNode, err := executionNodeForGroup(ctx, qpctx, dependentGroup)
		if err != nil {
			return nil, err
		}
		dependentNodes = append(dependentNodes, dependentNode)
	}

	dependentNode, err := flatWrapParallel(ctx, dependentNodes)
	if err != nil {
		return nil, err
	}
	return flatWrapSequence(ctx, []plan.PlanNode{node, dependentNode})
}

func operationForRootFetch(selectionSet ast.SelectionSet, variableUsages ast.VariableDefinitionList, operation ast.Operation) *ast.QueryDocument {
	if operation == "" {
		operation = ast.Query
	}

	return &ast.QueryDocument{
		Operations: ast.OperationList{
			&ast.OperationDefinition{
				Operation:           operation,
				VariableDefinitions: variableUsages,
				SelectionSet:        selectionSet,
			},
		},
	}
}

func operationForEntitiesFetch(selectionSet ast.SelectionSet, variableUsages ast.VariableDefinitionList) *ast.QueryDocument {
	representationsVariable := &ast.Value{
		Raw:  "representations",
		Kind: ast.Variable,
	}

	var variableDefinitions ast.VariableDefinitionList
	variableDefinitions = append(variableDefinitions, &ast.VariableDefinition{
		Variable: representationsVariable.Raw,
		Type: &ast.Type{
			Elem: &ast.Type{
				NamedType: "_Any",
				NonNull:   true,
			},
			NonNull: true,
		},
	})
	variableDefinitions = append(variableDefinitions, variableUsages...)

	return &ast.QueryDocument{
		Operations: ast.OperationList{
			&ast.OperationDefinition{
				Operation:           ast.Query,
				VariableDefinitions: variableDefinitions,
				SelectionSet: ast.SelectionSet{
					&ast.Field{
						Name: "_entities",
						Arguments: ast.ArgumentList{
							&ast.Argument{
								Name:  representationsVariable.Raw,
								Value: representationsVariable,
							},
						},
						SelectionSet: selectionSet,
					},
				},
			},
		},
	}
}

func (qpctx *queryPlanningContext) getVariableUsages(selectionSet ast.SelectionSet) ast.VariableDefinitionList {
	var usages ast.VariableDefinitionList

	// Construct a document of the selection set so we can visit it,
	// adding all variable usages to the `usages` object.
	document := &ast.QueryDocument{
		Operations: ast.OperationList{
			&ast.OperationDefinition{
				Operation:    ast.Query,
				SelectionSet: selectionSet,
			},
		},
	}

	observers := &validator.Events{}
	observers.OnValue(func(walker *validator.Walker, value *ast.Value) {
		if value.Kind != ast.Variable || usages.ForName(value.Raw) != nil {
			return
		}
		varDef := qpctx.variableDefinitions[value.Raw]
		if varDef == nil {
			panic(fmt.Sprintf("variable %s definition not found", value.Raw))
		}
		usages = append(usages, varDef)
	})
	validator.Walk(qpctx.schema, document, observers)

	return usages
}

func flatWrapSequence(ctx context.Context, nodes []plan.PlanNode) (plan.PlanNode, error) {
	if len(nodes) == 0 {
		return nil, errors.New("nodes is 0 length")
	} else if len(nodes) == 1 {
		return nodes[0], nil
	}

	var newNodes []plan.PlanNode
	for _, node := range nodes {
		switch node := node.(type) {
		case *plan.SequenceNode:
			newNodes = append(newNodes, node.Nodes...)
		default:
			newNodes = append(newNodes, node)
		}
	}

	return &plan.SequenceNode{Nodes: newNodes}, nil
}

func flatWrapParallel(ctx context.Context, nodes []plan.PlanNode) (plan.PlanNode, error) {
	if len(nodes) == 0 {
		return nil, errors.New("nodes is 0 length")
	} else if len(nodes) == 1 {
		return nodes[0], nil
	}

	var newNodes []plan.PlanNode
	for _, node := range nodes {
		switch node := node.(type) {
		case *plan.ParallelNode:
			newNodes = append(newNodes, node.Nodes...)
		default:
			newNodes = append(newNodes, node)
		}
	}

	return &plan.ParallelNode{Nodes: newNodes}, nil
}
