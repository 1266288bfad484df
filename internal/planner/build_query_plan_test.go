package planner

import (
	"context"
	"os"
	"path"
	"strings"
	"testing"

	"github.com/MakeNowJust/heredoc/v2"
	testlogr "github.com/go-logr/logr/testing"
	"github.com/google/go-cmp/cmp"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vvakame/fedgraph/internal/federation"
	"github.com/vvakame/fedgraph/internal/gqlfun"
	"github.com/vvakame/fedgraph/internal/log"
	"github.com/vvakame/fedgraph/internal/plan"
	"github.com/vvakame/fedgraph/internal/querygraph"
	"github.com/vvakame/fedgraph/internal/supergraph"
	"github.com/vvakame/fedgraph/internal/testutils"
)

const (
	assetsDir  = "./_testdata/buildQueryPlan/assets"
	schemasDir = "./_testdata/buildQueryPlan/schemas"
	expectDir  = "./_testdata/buildQueryPlan/expected"
)

func buildGraph(t *testing.T, ctx context.Context, fileName string) *querygraph.Graph {
	t.Helper()

	b, err := os.ReadFile(path.Join(schemasDir, fileName))
	if err != nil {
		t.Fatal(err)
	}

	sg, err := supergraph.Load(ctx, fileName, string(b))
	if err != nil {
		t.Fatal(err)
	}
	result, err := supergraph.Extract(ctx, sg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := result.Err(); err != nil {
		t.Fatal(err)
	}
	api, err := supergraph.APISchema(ctx, sg)
	if err != nil {
		t.Fatal(err)
	}

	g, err := querygraph.Build(ctx, api, result.Subgraphs)
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func buildPlan(t *testing.T, ctx context.Context, g *querygraph.Graph, query string, variables map[string]interface{}) (*plan.QueryPlan, error) {
	t.Helper()

	opctx, gErrs := gqlfun.CreateOperationContext(ctx, g.API.AST, "query.graphql", query, "", variables)
	if len(gErrs) != 0 {
		t.Fatal(gErrs)
	}

	return Plan(ctx, g, opctx)
}

func TestPlan(t *testing.T) {
	files, err := os.ReadDir(assetsDir)
	if err != nil {
		t.Fatal(err)
	}

	graphs := make(map[string]*querygraph.Graph)

	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".graphql") {
			continue
		}
		t.Run(file.Name(), func(t *testing.T) {
			ctx := context.Background()
			ctx = log.WithLogger(ctx, testlogr.NewTestLogger(t))

			b, err := os.ReadFile(path.Join(assetsDir, file.Name()))
			if err != nil {
				t.Fatal(err)
			}
			query := string(b)

			schemaFileName := testutils.FindSchemaFileName(t, query)
			g := graphs[schemaFileName]
			if g == nil {
				g = buildGraph(t, ctx, schemaFileName)
				graphs[schemaFileName] = g
			}

			qp, err := buildPlan(t, ctx, g, query, nil)
			if err != nil {
				t.Fatal(err)
			}

			actual := plan.Format(qp)
			expectFilePath := path.Join(expectDir, strings.TrimSuffix(file.Name(), ".graphql")+".txt")
			testutils.CheckGoldenFile(t, []byte(actual), expectFilePath)

			again, err := buildPlan(t, ctx, g, query, nil)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(actual, plan.Format(again)); diff != "" {
				t.Errorf("plan isn't deterministic (-first +second):\n%s", diff)
			}
		})
	}
}

func TestPlan_SingleFetch(t *testing.T) {
	ctx := context.Background()
	ctx = log.WithLogger(ctx, testlogr.NewTestLogger(t))

	g := buildGraph(t, ctx, "products.graphqls")

	qp, err := buildPlan(t, ctx, g, `{ product(upc: "1") { name category } }`, nil)
	if err != nil {
		t.Fatal(err)
	}

	fetch, ok := qp.Node.(*plan.FetchNode)
	if !ok {
		t.Fatalf("unexpected node: %T", qp.Node)
	}
	if fetch.ServiceName != "products" {
		t.Errorf("unexpected service: %s", fetch.ServiceName)
	}
	if len(fetch.Requires) != 0 {
		t.Errorf("root fetch has no requires: %v", fetch.Requires)
	}
	if strings.Contains(fetch.Operation, "_entities") {
		t.Errorf("root fetch must not select entities:\n%s", fetch.Operation)
	}
}

func TestPlan_EntityFetch(t *testing.T) {
	ctx := context.Background()
	ctx = log.WithLogger(ctx, testlogr.NewTestLogger(t))

	g := buildGraph(t, ctx, "products.graphqls")

	query := heredoc.Doc(`
		query ($upc: String!) {
			product(upc: $upc) {
				name
				inStock
				shippingEstimate
			}
		}
	`)
	qp, err := buildPlan(t, ctx, g, query, map[string]interface{}{"upc": "1"})
	if err != nil {
		t.Fatal(err)
	}

	sequence, ok := qp.Node.(*plan.SequenceNode)
	if !ok {
		t.Fatalf("unexpected node: %T", qp.Node)
	}
	if len(sequence.Nodes) != 2 {
		t.Fatalf("unexpected length: %d", len(sequence.Nodes))
	}

	root := sequence.Nodes[0].(*plan.FetchNode)
	if diff := cmp.Diff("products", root.ServiceName); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"upc"}, root.VariableUsages); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	for _, field := range []string{"__typename", "upc", "weight"} {
		if !strings.Contains(root.Operation, field) {
			t.Errorf("root fetch must select %s:\n%s", field, root.Operation)
		}
	}

	flatten := sequence.Nodes[1].(*plan.FlattenNode)
	if diff := cmp.Diff(ast.Path{ast.PathName("product")}, flatten.Path); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	entities := flatten.Node.(*plan.FetchNode)
	if diff := cmp.Diff("inventory", entities.ServiceName); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if len(entities.VariableUsages) != 0 {
		t.Errorf("entity fetch uses no variable: %v", entities.VariableUsages)
	}
	wantRequires := []plan.QueryPlanSelectionNode{
		&plan.QueryPlanInlineFragmentNode{
			TypeCondition: "Product",
			Selections: []plan.QueryPlanSelectionNode{
				&plan.QueryPlanFieldNode{Name: "__typename"},
				&plan.QueryPlanFieldNode{Name: "upc"},
				&plan.QueryPlanFieldNode{Name: "weight"},
			},
		},
	}
	if diff := cmp.Diff(wantRequires, entities.Requires); diff != "" {
		t.Errorf("requires mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(entities.Operation, "_entities(representations: $representations)") {
		t.Errorf("unexpected entity fetch:\n%s", entities.Operation)
	}
}

func TestPlan_ListPath(t *testing.T) {
	ctx := context.Background()
	ctx = log.WithLogger(ctx, testlogr.NewTestLogger(t))

	g := buildGraph(t, ctx, "products.graphqls")

	qp, err := buildPlan(t, ctx, g, `{ search { ... on Product { inStock } } }`, nil)
	if err != nil {
		t.Fatal(err)
	}

	fetches := qp.FetchNodes()
	if diff := cmp.Diff([]string{"products", "inventory"}, qp.Services()); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if len(fetches) != 2 {
		t.Fatalf("unexpected fetches: %d", len(fetches))
	}

	sequence := qp.Node.(*plan.SequenceNode)
	flatten := sequence.Nodes[1].(*plan.FlattenNode)
	if diff := cmp.Diff("search.@", flatten.Path.String()); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestPlan_ParallelRoots(t *testing.T) {
	ctx := context.Background()
	ctx = log.WithLogger(ctx, testlogr.NewTestLogger(t))

	g := buildGraph(t, ctx, "products.graphqls")

	qp, err := buildPlan(t, ctx, g, `{ categories product(upc: "1") { upc } }`, nil)
	if err != nil {
		t.Fatal(err)
	}

	parallel, ok := qp.Node.(*plan.ParallelNode)
	if !ok {
		t.Fatalf("unexpected node: %T", qp.Node)
	}
	var services []string
	for _, node := range parallel.Nodes {
		services = append(services, node.(*plan.FetchNode).ServiceName)
	}
	if diff := cmp.Diff([]string{"inventory", "products"}, services); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestPlan_IntrospectionOnly(t *testing.T) {
	ctx := context.Background()
	ctx = log.WithLogger(ctx, testlogr.NewTestLogger(t))

	g := buildGraph(t, ctx, "products.graphqls")

	qp, err := buildPlan(t, ctx, g, `{ __typename }`, nil)
	if err != nil {
		t.Fatal(err)
	}
	if qp.Node != nil {
		t.Errorf("introspection needs no fetch: %s", plan.Format(qp))
	}
}

func TestPlan_InterfaceObject(t *testing.T) {
	ctx := context.Background()
	ctx = log.WithLogger(ctx, testlogr.NewTestLogger(t))

	g := buildGraph(t, ctx, "interface_object.graphqls")

	qp, err := buildPlan(t, ctx, g, `{ media { ... on Book { title rating } } }`, nil)
	if err != nil {
		t.Fatal(err)
	}

	fetches := qp.FetchNodes()
	if len(fetches) != 2 {
		t.Fatalf("unexpected fetches: %s", plan.Format(qp))
	}
	if diff := cmp.Diff("ratings", fetches[1].ServiceName); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	requires := fetches[1].Requires[0].(*plan.QueryPlanInlineFragmentNode)
	if diff := cmp.Diff("Media", requires.TypeCondition); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestPlan_Subscription(t *testing.T) {
	ctx := context.Background()
	ctx = log.WithLogger(ctx, testlogr.NewTestLogger(t))

	g := buildGraph(t, ctx, "products.graphqls")

	opctx, gErrs := gqlfun.CreateOperationContext(ctx, g.API.AST, "query.graphql", `{ categories }`, "", nil)
	if len(gErrs) != 0 {
		t.Fatal(gErrs)
	}
	operation := *opctx.Operation
	operation.Operation = ast.Subscription
	opctx.Operation = &operation

	_, err := Plan(ctx, g, opctx)
	if err == nil {
		t.Fatal("subscription must fail")
	}
	if diff := cmp.Diff(CodeQueryPlanningFailed, federation.ErrorCode(err)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}
