package plan

import (
	"fmt"

	"github.com/vektah/gqlparser/v2/ast"
)

// QueryPlan is the tree of fetches answering one operation.
// A nil Node means nothing has to be fetched from subgraphs.
type QueryPlan struct {
	Node PlanNode // optional
}

// FetchNodes lists the fetches of the plan in depth-first order.
func (qp *QueryPlan) FetchNodes() []*FetchNode {
	var result []*FetchNode
	var walk func(node PlanNode)
	walk = func(node PlanNode) {
		switch node := node.(type) {
		case *FetchNode:
			result = append(result, node)
		case *FlattenNode:
			walk(node.Node)
		case *SequenceNode:
			for _, child := range node.Nodes {
				walk(child)
			}
		case *ParallelNode:
			for _, child := range node.Nodes {
				walk(child)
			}
		}
	}
	walk(qp.Node)
	return result
}

// Services lists the subgraphs the plan fetches from, in order of first use.
func (qp *QueryPlan) Services() []string {
	var result []string
	seen := make(map[string]bool)
	for _, fetch := range qp.FetchNodes() {
		if seen[fetch.ServiceName] {
			continue
		}
		seen[fetch.ServiceName] = true
		result = append(result, fetch.ServiceName)
	}
	return result
}

type PlanNode interface {
	isPlanNode()
}

var _ PlanNode = (*SequenceNode)(nil)
var _ PlanNode = (*ParallelNode)(nil)
var _ PlanNode = (*FetchNode)(nil)
var _ PlanNode = (*FlattenNode)(nil)

type SequenceNode struct {
	Nodes []PlanNode
}

func (n *SequenceNode) isPlanNode() {}

type ParallelNode struct {
	Nodes []PlanNode
}

func (n *ParallelNode) isPlanNode() {}

// FetchNode sends Operation to ServiceName. Entity fetches carry the representation shape in Requires.
type FetchNode struct {
	ServiceName    string
	VariableUsages []string
	Requires       []QueryPlanSelectionNode // optional
	Operation      string
}

func (n *FetchNode) isPlanNode() {}

// FlattenNode merges the result of Node into every object found at Path. "@" steps into lists.
type FlattenNode struct {
	Path ast.Path
	Node PlanNode
}

func (n *FlattenNode) isPlanNode() {}

type QueryPlanSelectionNode interface {
	isQueryPlanSelectionNode()
}

var _ QueryPlanSelectionNode = (*QueryPlanFieldNode)(nil)
var _ QueryPlanSelectionNode = (*QueryPlanInlineFragmentNode)(nil)

type QueryPlanFieldNode struct {
	Alias      string // optional
	Name       string
	Selections []QueryPlanSelectionNode // optional
}

func (n *QueryPlanFieldNode) isQueryPlanSelectionNode() {}

func (n *QueryPlanFieldNode) ResponseName() string {
	if n.Alias != "" {
		return n.Alias
	}

	return n.Name
}

type QueryPlanInlineFragmentNode struct {
	TypeCondition string                   // optional
	Selections    []QueryPlanSelectionNode // optional
}

func (n *QueryPlanInlineFragmentNode) isQueryPlanSelectionNode() {}

// TrimSelectionNodes keeps the names, explicit aliases and type conditions of selections.
// An empty selection is nil.
func TrimSelectionNodes(selections []ast.Selection) []QueryPlanSelectionNode {
	if len(selections) == 0 {
		return nil
	}
	remapped := make([]QueryPlanSelectionNode, 0, len(selections))

	for _, selection := range selections {
		switch selection := selection.(type) {
		case *ast.Field:
			var alias string
			if selection.Alias != selection.Name {
				alias = selection.Alias
			}
			remapped = append(remapped, &QueryPlanFieldNode{
				Alias:      alias,
				Name:       selection.Name,
				Selections: TrimSelectionNodes(selection.SelectionSet),
			})
		case *ast.InlineFragment:
			remapped = append(remapped, &QueryPlanInlineFragmentNode{
				TypeCondition: selection.TypeCondition,
				Selections:    TrimSelectionNodes(selection.SelectionSet),
			})
		default:
			panic(fmt.Sprintf("unexpected selection type: %T", selection))
		}
	}

	return remapped
}
