package satisfiability

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MakeNowJust/heredoc/v2"
	testlogr "github.com/go-logr/logr/testing"
	"github.com/goccy/go-yaml"
	"github.com/google/go-cmp/cmp"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vvakame/fedgraph/internal/federation"
	"github.com/vvakame/fedgraph/internal/log"
	"github.com/vvakame/fedgraph/internal/querygraph"
	"github.com/vvakame/fedgraph/internal/supergraph"
	"github.com/vvakame/fedgraph/internal/testutils"
)

const assetsDir = "./_testdata/validate/assets"

type validateSummary struct {
	Errors []*diagnosticSummary `yaml:"errors,omitempty"`
	Hints  []*diagnosticSummary `yaml:"hints,omitempty"`
}

type diagnosticSummary struct {
	Code    string `yaml:"code"`
	Message string `yaml:"message"`
}

func summarize(result *Result) *validateSummary {
	summary := &validateSummary{}
	for _, gErr := range result.Errors {
		summary.Errors = append(summary.Errors, &diagnosticSummary{Code: federation.ErrorCode(gErr), Message: gErr.Message})
	}
	for _, hint := range result.Hints {
		summary.Hints = append(summary.Hints, &diagnosticSummary{Code: federation.ErrorCode(hint), Message: hint.Message})
	}
	return summary
}

func codes(list gqlerror.List) []string {
	var result []string
	for _, gErr := range list {
		result = append(result, federation.ErrorCode(gErr))
	}
	return result
}

func loadSupergraph(t *testing.T, ctx context.Context, fileName string) (*supergraph.Supergraph, string) {
	t.Helper()

	b, err := os.ReadFile(filepath.Join(assetsDir, fileName))
	if err != nil {
		t.Fatal(err)
	}
	sg, err := supergraph.Load(ctx, fileName, string(b))
	if err != nil {
		t.Fatal(err)
	}
	return sg, string(b)
}

func validate(t *testing.T, fileName string, opts *Options) *Result {
	t.Helper()

	ctx := context.Background()
	ctx = log.WithLogger(ctx, testlogr.NewTestLogger(t))

	sg, _ := loadSupergraph(t, ctx, fileName)
	result, err := Validate(ctx, sg, opts)
	if err != nil {
		t.Fatal(err)
	}
	return result
}

func TestValidate(t *testing.T) {
	files, err := os.ReadDir(assetsDir)
	if err != nil {
		t.Fatal(err)
	}

	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".graphqls") {
			continue
		}
		t.Run(file.Name(), func(t *testing.T) {
			ctx := context.Background()
			ctx = log.WithLogger(ctx, testlogr.NewTestLogger(t))

			sg, source := loadSupergraph(t, ctx, file.Name())
			opts := &Options{
				ErrorLimit: testutils.FindOptionInt(t, "errorLimit", source, 0),
			}

			result, err := Validate(ctx, sg, opts)
			if err != nil {
				t.Fatal(err)
			}

			wantCodes := testutils.FindOptionStrings(t, "codes", source)
			if diff := cmp.Diff(wantCodes, codes(result.Errors)); diff != "" {
				t.Errorf("error codes mismatch (-want +got):\n%s", diff)
			}
			wantHints := testutils.FindOptionStrings(t, "hints", source)
			if diff := cmp.Diff(wantHints, codes(result.Hints)); diff != "" {
				t.Errorf("hint codes mismatch (-want +got):\n%s", diff)
			}
			if len(wantCodes) == 0 && result.Err() != nil {
				t.Errorf("unexpected error: %v", result.Err())
			}

			b, err := yaml.Marshal(summarize(result))
			if err != nil {
				t.Fatal(err)
			}
			expectFilePath := filepath.Join("./_testdata/validate/expected", strings.TrimSuffix(file.Name(), ".graphqls")+".yaml")
			testutils.CheckGoldenFile(t, b, expectFilePath)

			again, err := Validate(ctx, sg, opts)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(summarize(result), summarize(again)); diff != "" {
				t.Errorf("validation isn't deterministic (-first +second):\n%s", diff)
			}
		})
	}
}

func TestValidate_ErrorLimit(t *testing.T) {
	tests := []struct {
		limit int
		want  []string
	}{
		{0, []string{"Product.id", "Product.price", "Product.stock"}},
		{1, []string{"Product.id"}},
		{2, []string{"Product.id", "Product.price"}},
		{10, []string{"Product.id", "Product.price", "Product.stock"}},
	}
	for _, tt := range tests {
		result := validate(t, "key_not_satisfiable.graphqls", &Options{ErrorLimit: tt.limit})

		var got []string
		for _, gErr := range result.Errors {
			witness, _ := gErr.Extensions["witness"].(string)
			lines := strings.Split(witness, "\n")
			got = append(got, "Product."+strings.TrimSpace(lines[len(lines)-3]))
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("limit %d mismatch (-want +got):\n%s", tt.limit, diff)
		}
	}
}

func TestValidate_Unreachable(t *testing.T) {
	result := validate(t, "unreachable.graphqls", nil)
	if len(result.Errors) != 1 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	gErr := result.Errors[0]

	wantWitness := strings.TrimSuffix(heredoc.Doc(`
		{
		  product(id: "<any id>") {
		    price
		  }
		}
	`), "\n")
	if diff := cmp.Diff(wantWitness, gErr.Extensions["witness"]); diff != "" {
		t.Errorf("witness mismatch (-want +got):\n%s", diff)
	}

	wantReasons := map[string][]string{
		"a": {`cannot find field "Product.price"`},
		"b": {`no @key on "Product" in subgraph "b"`},
	}
	if diff := cmp.Diff(wantReasons, gErr.Extensions["subgraphs"]); diff != "" {
		t.Errorf("reasons mismatch (-want +got):\n%s", diff)
	}

	wantMessage := wantWitness + "\n" + heredoc.Doc(`
		cannot be satisfied by the subgraphs because:
		- from subgraph "a": cannot find field "Product.price".
		- from subgraph "b": no @key on "Product" in subgraph "b".
	`)
	if diff := cmp.Diff("The following supergraph API query:\n"+strings.TrimSuffix(wantMessage, "\n"), gErr.Message); diff != "" {
		t.Errorf("message mismatch (-want +got):\n%s", diff)
	}

	if len(gErr.Locations) != 1 || gErr.Locations[0].Line == 0 {
		t.Errorf("error should point at the supergraph field: %v", gErr.Locations)
	}
}

func TestValidate_KeyNotSatisfiable(t *testing.T) {
	result := validate(t, "key_not_satisfiable.graphqls", &Options{ErrorLimit: 1})
	if len(result.Errors) != 1 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}

	want := map[string][]string{
		"a": {`cannot find field "Product.id"`},
		"b": {`cannot move to subgraph "b" using @key(fields: "id") of "Product": the key field(s) cannot be resolved from subgraph "a"`},
	}
	if diff := cmp.Diff(want, result.Errors[0].Extensions["subgraphs"]); diff != "" {
		t.Errorf("reasons mismatch (-want +got):\n%s", diff)
	}
}

func TestValidate_KeyChain(t *testing.T) {
	result := validate(t, "key_chain.graphqls", nil)
	if err := result.Err(); err != nil {
		t.Fatalf("a field behind two @key transitions is reachable: %v", err)
	}
}

func TestValidate_ExternalUnresolved(t *testing.T) {
	result := validate(t, "external_unresolved.graphqls", nil)
	if len(result.Errors) != 1 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}

	wantWitness := strings.TrimSuffix(heredoc.Doc(`
		{
		  me {
		    name
		  }
		}
	`), "\n")
	if diff := cmp.Diff(wantWitness, result.Errors[0].Extensions["witness"]); diff != "" {
		t.Errorf("witness mismatch (-want +got):\n%s", diff)
	}
	want := map[string][]string{
		"a": {`no @key on "User" in subgraph "a"`},
		"b": {`field "User.name" is @external and not provided`},
	}
	if diff := cmp.Diff(want, result.Errors[0].Extensions["subgraphs"]); diff != "" {
		t.Errorf("reasons mismatch (-want +got):\n%s", diff)
	}
}

func TestValidate_ShareableMismatch(t *testing.T) {
	result := validate(t, "shareable_mismatch.graphqls", nil)
	if err := result.Err(); err != nil {
		t.Fatal(err)
	}
	if len(result.Hints) != 1 {
		t.Fatalf("unexpected hints: %v", result.Hints)
	}
	hint := result.Hints[0]

	if diff := cmp.Diff([]string{"a", "b"}, hint.Extensions["subgraphs"]); diff != "" {
		t.Errorf("subgraphs mismatch (-want +got):\n%s", diff)
	}
	for _, want := range []string{
		`Shared field "Query.media" return type "Media"`,
		`subgraphs "a" and "b"`,
		` - subgraph "a" resolves it to "Book"`,
		` - subgraph "b" resolves it to "Movie"`,
	} {
		if !strings.Contains(hint.Message, want) {
			t.Errorf("hint %q should contain %q", hint.Message, want)
		}
	}
}

func TestValidationContext_IsShareable(t *testing.T) {
	ctx := context.Background()
	ctx = log.WithLogger(ctx, testlogr.NewTestLogger(t))

	tests := []struct {
		fileName  string
		typeName  string
		fieldName string
		want      bool
	}{
		{"shareable_mismatch.graphqls", "Query", "media", true},
		{"shareable_mismatch.graphqls", "Media", "title", true},
		{"shareable_mismatch.graphqls", "Book", "title", false},
		{"external_unresolved.graphqls", "User", "name", false},
		{"external_unresolved.graphqls", "User", "id", true},
		{"external_unresolved.graphqls", "User", "missing", false},
	}
	for _, tt := range tests {
		sg, _ := loadSupergraph(t, ctx, tt.fileName)
		vctx := NewValidationContext(sg)
		for i := 0; i < 2; i++ {
			if got := vctx.IsShareable(tt.typeName, tt.fieldName); got != tt.want {
				t.Errorf("%s: IsShareable(%s.%s) = %v, want %v", tt.fileName, tt.typeName, tt.fieldName, got, tt.want)
			}
		}
	}
}

func TestRenderWitness(t *testing.T) {
	ctx := context.Background()
	ctx = log.WithLogger(ctx, testlogr.NewTestLogger(t))

	api, err := federation.Parse(ctx, "api.graphqls", heredoc.Doc(`
		type Query {
		  node(id: ID!): Node
		}
		type Mutation {
		  rate(input: RateInput!, dryRun: Boolean = false, note: String): Node
		}
		input RateInput {
		  stars: Int!
		  kind: Kind!
		  tags: [String!]!
		  comment: String
		}
		enum Kind { GOOD BAD }
		interface Node {
		  id: ID!
		}
		type Book implements Node {
		  id: ID!
		  title: String
		}
	`), nil)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		operation ast.Operation
		steps     []*step
		want      string
	}{
		{
			name:      "query with downcast",
			operation: ast.Query,
			steps: []*step{
				{kind: fieldStep, name: "node", field: api.Field("Query", "node"), composite: true},
				{kind: downcastStep, name: "Book", composite: true},
				{kind: fieldStep, name: "title", field: api.Field("Book", "title")},
			},
			want: heredoc.Doc(`
				{
				  node(id: "<any id>") {
				    ... on Book {
				      title
				    }
				  }
				}
			`),
		},
		{
			name:      "query ending on a downcast",
			operation: ast.Query,
			steps: []*step{
				{kind: fieldStep, name: "node", field: api.Field("Query", "node"), composite: true},
				{kind: downcastStep, name: "Book", composite: true},
			},
			want: heredoc.Doc(`
				{
				  node(id: "<any id>") {
				    ... on Book {
				      ...
				    }
				  }
				}
			`),
		},
		{
			name:      "mutation ending on a composite field",
			operation: ast.Mutation,
			steps: []*step{
				{kind: fieldStep, name: "rate", field: api.Field("Mutation", "rate"), composite: true},
			},
			want: heredoc.Doc(`
				mutation {
				  rate(input: {stars:0,kind:GOOD,tags:["A string value"]}) {
				    ...
				  }
				}
			`),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := renderWitness(api, tt.operation, tt.steps)
			if diff := cmp.Diff(strings.TrimSuffix(tt.want, "\n"), got); diff != "" {
				t.Errorf("witness mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSubsumption(t *testing.T) {
	a := &querygraph.Vertex{Index: 1, TypeName: "User", Source: "a"}
	b := &querygraph.Vertex{Index: 2, TypeName: "User", Source: "b"}
	api := &querygraph.Vertex{Index: 0, TypeName: "User", Source: querygraph.APISource}

	t.Run("dedup keeps the cheapest path", func(t *testing.T) {
		paths := dedupPaths([]*path{
			{vertex: b, conditions: 2},
			{vertex: a, conditions: 3},
			{vertex: b, conditions: 1},
			{vertex: a, conditions: 3},
		})
		if len(paths) != 2 {
			t.Fatalf("unexpected paths: %v", paths)
		}
		if paths[0].vertex != a || paths[1].vertex != b || paths[1].conditions != 1 {
			t.Errorf("unexpected paths: %+v %+v", paths[0], paths[1])
		}
	})

	t.Run("superset is pruned", func(t *testing.T) {
		cache := newSubsumptionCache()
		if !cache.visit(&state{apiVertex: api, paths: []*path{{vertex: a}}}) {
			t.Error("first visit should be explored")
		}
		if cache.visit(&state{apiVertex: api, paths: []*path{{vertex: a}, {vertex: b}}}) {
			t.Error("superset should be pruned")
		}
		if !cache.visit(&state{apiVertex: api, paths: []*path{{vertex: b}}}) {
			t.Error("disjoint set should be explored")
		}
		if cache.visit(&state{apiVertex: api, paths: []*path{{vertex: b}}}) {
			t.Error("same set should be pruned")
		}
	})
}
