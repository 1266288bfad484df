package federation

import (
	"context"
	"strings"
	"testing"

	"github.com/MakeNowJust/heredoc/v2"
	testlogr "github.com/go-logr/logr/testing"
	"github.com/google/go-cmp/cmp"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vvakame/fedgraph/internal/link"
	"github.com/vvakame/fedgraph/internal/log"
	"github.com/vvakame/fedgraph/internal/testutils"
)

func parseSchema(t *testing.T, name, sdl string) *Schema {
	t.Helper()

	ctx := context.Background()
	ctx = log.WithLogger(ctx, testlogr.NewTestLogger(t))

	schema, err := Parse(ctx, name, sdl, nil)
	if err != nil {
		t.Fatal(err)
	}
	return schema
}

var productsSDL = heredoc.Doc(`
	extend schema
		@link(url: "https://specs.apollo.dev/link/v1.0")
		@link(url: "https://specs.apollo.dev/federation/v2.3", import: ["@key", "@shareable", "@external", "@requires", "@provides", "@tag"])

	type Query {
		products: [Product!]! @shareable
		topReview: Review @provides(fields: "author { name }")
	}

	type Product @key(fields: "id") @key(fields: "sku variation { id }", resolvable: false) {
		id: ID!
		sku: String! @tag(name: "internal")
		variation: Variation!
		weight: Int @external
		shippingEstimate: Int @requires(fields: "weight")
	}

	type Variation {
		id: ID!
	}

	type Review {
		author: User
	}

	type User @key(fields: "id") {
		id: ID!
		name: String @external
	}
`)

func TestSchema_Keys(t *testing.T) {
	schema := parseSchema(t, "inventory", heredoc.Doc(`
		extend schema
			@link(url: "https://specs.apollo.dev/link/v1.0")
			@link(url: "https://specs.apollo.dev/federation/v2.0", import: ["@key"])

		type Query {
			t: T
		}

		type T @key(fields: "id") {
			id: ID!
			x: Int
		}
	`))

	if schema.Kind != KindFederation {
		t.Errorf("unexpected kind: %s", schema.Kind)
	}

	keys, err := schema.Keys("T")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 1 {
		t.Fatalf("unexpected keys length: %d", len(keys))
	}
	if v := keys[0].TypeName; v != "T" {
		t.Errorf("unexpected type name: %s", v)
	}
	if v := PrintFieldSet(keys[0].Selection); v != "id" {
		t.Errorf("unexpected selection: %s", v)
	}
	if !keys[0].Resolvable {
		t.Error("key should be resolvable by default")
	}

	keys, err = schema.Keys("Query")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 0 {
		t.Errorf("unexpected keys on Query: %d", len(keys))
	}
}

func TestSchema_FederationHelpers(t *testing.T) {
	schema := parseSchema(t, "products", productsSDL)

	keys, err := schema.Keys("Product")
	if err != nil {
		t.Fatal(err)
	}
	var printed []string
	for _, key := range keys {
		printed = append(printed, PrintFieldSet(key.Selection))
	}
	if diff := cmp.Diff([]string{"id", "sku variation { id }"}, printed); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
	if keys[1].Resolvable {
		t.Error("second key should not be resolvable")
	}

	requires, err := schema.Requires("Product", "shippingEstimate")
	if err != nil {
		t.Fatal(err)
	}
	if v := PrintFieldSet(requires.Selection); v != "weight" {
		t.Errorf("unexpected requires: %s", v)
	}

	provides, err := schema.Provides("Query", "topReview")
	if err != nil {
		t.Fatal(err)
	}
	if provides.TypeName != "Review" {
		t.Errorf("unexpected provides target: %s", provides.TypeName)
	}
	if diff := cmp.Diff([]string{"Review.author", "User.name"}, SelectedFieldNames(provides.Selection)); diff != "" {
		t.Errorf("provides mismatch (-want +got):\n%s", diff)
	}

	if !schema.IsExternal("Product", "weight") {
		t.Error("Product.weight should be external")
	}
	if schema.IsExternal("Product", "id") {
		t.Error("Product.id should not be external")
	}
	if !schema.IsShareable("Query", "products") {
		t.Error("Query.products should be shareable")
	}

	skuPos, ok := schema.FieldPosition("Product", "sku")
	if !ok {
		t.Fatal("Product.sku not found")
	}
	if diff := cmp.Diff([]string{"internal"}, schema.Tags(skuPos)); diff != "" {
		t.Errorf("tags mismatch (-want +got):\n%s", diff)
	}
	if schema.IsInaccessible(skuPos) {
		t.Error("Product.sku should be accessible")
	}
}

func TestSchema_Positions(t *testing.T) {
	first := parseSchema(t, "products", productsSDL)
	second := parseSchema(t, "products", productsSDL)

	describe := func(schema *Schema) []string {
		var result []string
		for kind := PositionSchema; kind < positionKindCount; kind++ {
			for _, pos := range schema.Positions(kind) {
				result = append(result, pos.String()+" "+schema.Coordinate(pos))
			}
		}
		return result
	}
	if diff := cmp.Diff(describe(first), describe(second)); diff != "" {
		t.Errorf("positions mismatch (-first +second):\n%s", diff)
	}

	if diff := cmp.Diff([]string{"Query", "Product", "Variation", "Review", "User"}, first.TypeNames()); diff != "" {
		t.Errorf("type order mismatch (-want +got):\n%s", diff)
	}

	byKind := first.ApplicationsByKind(link.FederationIdentity, "key")
	if v := len(byKind[PositionObjectType]); v != 3 {
		t.Errorf("unexpected @key applications on objects: %d", v)
	}
	for _, pos := range first.ApplicationsOf(link.FederationIdentity, "key") {
		if dir := first.DirectiveApplication(pos); dir == nil || dir.Name != "key" {
			t.Errorf("unexpected application at %s: %#v", pos, dir)
		}
	}

	var references []string
	for _, pos := range first.TypeReferences("User") {
		references = append(references, first.Coordinate(pos))
	}
	if diff := cmp.Diff([]string{"Review.author"}, references); diff != "" {
		t.Errorf("references mismatch (-want +got):\n%s", diff)
	}

	pos, _ := first.FieldPosition("Product", "weight")
	func() {
		defer func() {
			r := recover()
			if r == nil {
				t.Fatal("dereferencing a foreign position must panic")
			}
			if !strings.Contains(r.(string), "PositionOutlivedFacade") {
				t.Errorf("unexpected panic: %v", r)
			}
		}()
		second.Lookup(pos)
	}()
}

func TestSchema_FieldSetErrors(t *testing.T) {
	tests := []struct {
		name   string
		fields string
	}{
		{"unknown field", "nope"},
		{"alias", "myId: id"},
		{"variable", "item(id: $id) { id }"},
		{"inline fragment on unrelated type", "... on Other { id }"},
		{"missing sub selection", "item"},
		{"unknown nested field", "item { nope }"},
		{"sub selection on leaf", "id { id }"},
		{"unknown argument", "item(nope: 1) { id }"},
		{"named fragment", "...F"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keyArg := `"` + tt.fields + `"`
			schema := parseSchema(t, "broken", heredoc.Doc(`
				extend schema
					@link(url: "https://specs.apollo.dev/link/v1.0")
					@link(url: "https://specs.apollo.dev/federation/v2.0", import: ["@key", "FieldSet"])

				type Query {
					t: T
				}

				type T @key(fields: `+keyArg+`) {
					id: ID!
					item(id: ID): Item
				}

				type Item {
					id: ID!
				}

				type Other {
					id: ID!
				}
			`))

			_, err := schema.Keys("T")
			if err == nil {
				t.Fatal("error expected")
			}
			if code := ErrorCode(err); code != CodeDirectiveInvalidFields {
				t.Errorf("unexpected code: %s (%s)", code, err.Error())
			}
		})
	}
}

func TestSchema_FieldSetBindsDefinitions(t *testing.T) {
	schema := parseSchema(t, "products", productsSDL)

	selection, err := schema.ParseFieldSet("Product", "sku ... on Product { variation { id __typename } }")
	if err != nil {
		t.Fatal(err)
	}

	expected := []string{"Product.sku", "Product.variation", "Variation.id", "Variation.__typename"}
	if diff := cmp.Diff(expected, SelectedFieldNames(selection)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestPrintFieldSet(t *testing.T) {
	selection := ast.SelectionSet{
		&ast.Field{Name: "id"},
		&ast.Field{
			Name: "item",
			Arguments: ast.ArgumentList{
				{Name: "id", Value: &ast.Value{Kind: ast.IntValue, Raw: "1"}},
				{Name: "kind", Value: &ast.Value{Kind: ast.StringValue, Raw: "a  b"}},
			},
			SelectionSet: ast.SelectionSet{&ast.Field{Name: "id"}},
		},
		&ast.InlineFragment{
			TypeCondition: "T",
			SelectionSet:  ast.SelectionSet{&ast.Field{Name: "__typename"}},
		},
	}

	expected := `id item(id: 1, kind: "a  b") { id } ... on T { __typename }`
	if diff := cmp.Diff(expected, PrintFieldSet(selection)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if v := PrintFieldSet(nil); v != "" {
		t.Errorf("unexpected output: %q", v)
	}
}

func TestSchema_TopLevelBraces(t *testing.T) {
	schema := parseSchema(t, "products", productsSDL)

	withBraces, err := schema.ParseFieldSet("Product", "{ id sku }")
	if err != nil {
		t.Fatal(err)
	}
	without, err := schema.ParseFieldSet("Product", "id sku")
	if err != nil {
		t.Fatal(err)
	}
	if PrintFieldSet(withBraces) != PrintFieldSet(without) {
		t.Errorf("field sets differ: %q and %q", PrintFieldSet(withBraces), PrintFieldSet(without))
	}
}

func TestSchema_Supergraph(t *testing.T) {
	schema := parseSchema(t, "supergraph", heredoc.Doc(`
		schema
			@link(url: "https://specs.apollo.dev/link/v1.0")
			@link(url: "https://specs.apollo.dev/join/v0.3", for: EXECUTION)
		{
			query: Query
		}

		directive @join__enumValue(graph: join__Graph!) repeatable on ENUM_VALUE
		directive @join__field(graph: join__Graph, requires: join__FieldSet, provides: join__FieldSet, type: String, external: Boolean, override: String, usedOverridden: Boolean) repeatable on FIELD_DEFINITION | INPUT_FIELD_DEFINITION
		directive @join__graph(name: String!, url: String!) on ENUM_VALUE
		directive @join__implements(graph: join__Graph!, interface: String!) repeatable on OBJECT | INTERFACE
		directive @join__type(graph: join__Graph!, key: join__FieldSet, extension: Boolean! = false, resolvable: Boolean! = true, isInterfaceObject: Boolean! = false) repeatable on OBJECT | INTERFACE | UNION | ENUM | INPUT_OBJECT | SCALAR
		directive @join__unionMember(graph: join__Graph!, member: String!) repeatable on UNION
		directive @link(url: String, as: String, for: link__Purpose, import: [link__Import]) repeatable on SCHEMA

		scalar join__FieldSet
		scalar link__Import

		enum join__Graph {
			A @join__graph(name: "a", url: "http://a")
			B @join__graph(name: "b", url: "http://b")
		}

		enum link__Purpose {
			SECURITY
			EXECUTION
		}

		type Query @join__type(graph: A) @join__type(graph: B) {
			user: User @join__field(graph: A)
		}

		type User @join__type(graph: A, key: "id") @join__type(graph: B, key: "id", resolvable: false) {
			id: ID!
			name: String @join__field(graph: B, override: "a")
		}
	`))

	if schema.Kind != KindSupergraph {
		t.Fatalf("unexpected kind: %s", schema.Kind)
	}
	if v, _ := schema.JoinSpecVersion(); v != (link.Version{Major: 0, Minor: 3}) {
		t.Errorf("unexpected join version: %s", v)
	}

	graphs, err := schema.JoinGraphs()
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, graph := range graphs {
		names = append(names, graph.EnumValue+"="+graph.Name+"@"+graph.URL)
	}
	if diff := cmp.Diff([]string{"A=a@http://a", "B=b@http://b"}, names); diff != "" {
		t.Errorf("graphs mismatch (-want +got):\n%s", diff)
	}

	joinTypes, err := schema.JoinTypes("User")
	if err != nil {
		t.Fatal(err)
	}
	if len(joinTypes) != 2 {
		t.Fatalf("unexpected join types length: %d", len(joinTypes))
	}
	if !joinTypes[0].Resolvable || joinTypes[1].Resolvable {
		t.Errorf("unexpected resolvable values: %v %v", joinTypes[0].Resolvable, joinTypes[1].Resolvable)
	}
	if joinTypes[1].Key != "id" || !joinTypes[1].HasKey {
		t.Errorf("unexpected key: %q", joinTypes[1].Key)
	}

	joinFields, err := schema.JoinFields("User", "name")
	if err != nil {
		t.Fatal(err)
	}
	if len(joinFields) != 1 || joinFields[0].Graph != "B" || joinFields[0].Override != "a" {
		t.Errorf("unexpected join fields: %#v", joinFields)
	}
}

func TestBuilder(t *testing.T) {
	ctx := context.Background()
	ctx = log.WithLogger(ctx, testlogr.NewTestLogger(t))

	b := NewBuilder("built")
	b.AddSchemaDirective(NewDirective("link", StringArgument("url", "https://specs.apollo.dev/link/v1.0")))
	b.AddSchemaDirective(NewDirective(
		"link",
		StringArgument("url", "https://specs.apollo.dev/federation/v2.0"),
		&ast.Argument{Name: "import", Value: &ast.Value{Kind: ast.ListValue, Children: ast.ChildValueList{
			&ast.ChildValue{Value: &ast.Value{Kind: ast.StringValue, Raw: "@key"}},
		}}},
	))
	b.SetOperationType(ast.Query, "Query")
	b.InstallType(&ast.Definition{
		Kind: ast.Object,
		Name: "Query",
		Fields: ast.FieldList{
			&ast.FieldDefinition{Name: "user", Type: ast.NamedType("User", nil)},
		},
	}, false)
	b.InstallType(&ast.Definition{
		Kind:       ast.Object,
		Name:       "User",
		Directives: ast.DirectiveList{NewDirective("key", StringArgument("fields", "id"))},
		Fields: ast.FieldList{
			&ast.FieldDefinition{Name: "id", Type: ast.NonNullNamedType("ID", nil)},
		},
	}, true)
	if existing := b.InstallType(&ast.Definition{Kind: ast.Object, Name: "User"}, false); len(existing.Fields) != 1 {
		t.Error("installing an existing type must return the installed one")
	}

	sdl := b.Print()
	testutils.CheckGoldenFile(t, []byte(sdl), "./_testdata/builder/expected/built.graphqls")

	schema, err := b.Build(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !schema.IsExtension("User") {
		t.Error("User should be an extension")
	}
	if !schema.IsEntity("User") {
		t.Error("User should be an entity")
	}
}

func TestSubgraphs(t *testing.T) {
	schema := parseSchema(t, "products", productsSDL)

	subgraphs := NewSubgraphs()
	if err := subgraphs.Add(&Subgraph{Name: "products", Schema: schema}); err != nil {
		t.Fatal(err)
	}
	err := subgraphs.Add(&Subgraph{Name: "products", Schema: schema})
	if code := ErrorCode(err); code != CodeDuplicateSubgraph {
		t.Errorf("unexpected code: %s", code)
	}
	if subgraphs.Len() != 1 || subgraphs.Get("products") == nil {
		t.Error("unexpected subgraphs state")
	}
}
