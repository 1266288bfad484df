package plan

import (
	"testing"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/vektah/gqlparser/v2/ast"
)

func TestFormatter(t *testing.T) {
	tests := []struct {
		name string
		node *QueryPlan
		want string
	}{
		{
			name: "blank",
			node: &QueryPlan{},
			want: heredoc.Doc(`
				QueryPlan {
				}
			`),
		},
		{
			name: "with fetch node",
			node: &QueryPlan{
				Node: &SequenceNode{
					Nodes: []PlanNode{
						&FetchNode{
							ServiceName:    "users",
							VariableUsages: []string{},
							Operation:      "{ me { id } }",
						},
					},
				},
			},
			want: heredoc.Doc(`
				QueryPlan {
				  Sequence {
				    Fetch(service: "users") {
				      { me { id } }
				    },
				  }
				}
			`),
		},
		{
			name: "with fetch node + requires",
			node: &QueryPlan{
				Node: &FetchNode{
					ServiceName:    "users",
					VariableUsages: []string{},
					Requires: []QueryPlanSelectionNode{
						&QueryPlanInlineFragmentNode{
							TypeCondition: "Product",
							Selections: []QueryPlanSelectionNode{
								&QueryPlanFieldNode{Name: "__typename"},
								&QueryPlanFieldNode{Name: "upc"},
							},
						},
					},
					Operation: "query {\n\tme {\n\t\tid\n\t}\n}\n",
				},
			},
			want: heredoc.Doc(`
				QueryPlan {
				  Fetch(service: "users") {
				    {
				      ... on Product {
				        __typename
				        upc
				      }
				    } =>
				    query {
				      me {
				        id
				      }
				    }
				  }
				}
			`),
		},
		{
			name: "with flatten node",
			node: &QueryPlan{
				Node: &ParallelNode{
					Nodes: []PlanNode{
						&FlattenNode{
							Path: ast.Path{
								ast.PathName("me"),
								ast.PathName("@"),
								ast.PathName("product"),
							},
							Node: &FetchNode{
								ServiceName:    "users",
								VariableUsages: []string{},
								Operation:      "{ me { id } }",
							},
						},
					},
				},
			},
			want: heredoc.Doc(`
				QueryPlan {
				  Parallel {
				    Flatten(path: "me.@.product") {
				      Fetch(service: "users") {
				        { me { id } }
				      }
				    },
				  }
				}
			`),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, Format(tt.node)); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFetchNodes(t *testing.T) {
	first := &FetchNode{ServiceName: "a"}
	second := &FetchNode{ServiceName: "b"}
	third := &FetchNode{ServiceName: "a"}

	qp := &QueryPlan{
		Node: &SequenceNode{
			Nodes: []PlanNode{
				first,
				&ParallelNode{
					Nodes: []PlanNode{
						&FlattenNode{Node: second},
						&FlattenNode{Node: third},
					},
				},
			},
		},
	}

	got := qp.FetchNodes()
	if diff := cmp.Diff([]*FetchNode{first, second, third}, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a", "b"}, qp.Services()); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if (&QueryPlan{}).FetchNodes() != nil {
		t.Error("empty plan has no fetch")
	}
}

func TestTrimSelectionNodes(t *testing.T) {
	selections := ast.SelectionSet{
		&ast.Field{Alias: "upc", Name: "upc"},
		&ast.Field{Alias: "stock", Name: "inStock"},
		&ast.InlineFragment{
			TypeCondition: "Product",
			SelectionSet: ast.SelectionSet{
				&ast.Field{Alias: "__typename", Name: "__typename"},
			},
		},
	}

	expected := []QueryPlanSelectionNode{
		&QueryPlanFieldNode{Name: "upc"},
		&QueryPlanFieldNode{Alias: "stock", Name: "inStock"},
		&QueryPlanInlineFragmentNode{
			TypeCondition: "Product",
			Selections: []QueryPlanSelectionNode{
				&QueryPlanFieldNode{Name: "__typename"},
			},
		},
	}
	if diff := cmp.Diff(expected, TrimSelectionNodes(selections)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	if TrimSelectionNodes(nil) != nil {
		t.Error("an empty selection is nil")
	}
}
