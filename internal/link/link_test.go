package link

import (
	"context"
	"strings"
	"testing"

	"github.com/MakeNowJust/heredoc/v2"
	testlogr "github.com/go-logr/logr/testing"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/parser"
	"github.com/vvakame/fedgraph/internal/log"
)

func parseDoc(t *testing.T, sdl string) *ast.SchemaDocument {
	t.Helper()

	doc, err := parser.ParseSchema(&ast.Source{
		Name:  t.Name() + ".graphqls",
		Input: sdl,
	})
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func resolve(t *testing.T, sdl string) (*Map, error) {
	t.Helper()

	ctx := context.Background()
	ctx = log.WithLogger(ctx, testlogr.NewTestLogger(t))

	return Resolve(ctx, parseDoc(t, sdl), nil)
}

func errorCodes(t *testing.T, err error) []string {
	t.Helper()

	var gErrs gqlerror.List
	require.ErrorAs(t, err, &gErrs)

	var codes []string
	for _, gErr := range gErrs {
		codes = append(codes, gErr.Extensions["code"].(string))
	}
	return codes
}

func TestParseURL(t *testing.T) {
	tests := []struct {
		raw     string
		want    URL
		wantErr bool
	}{
		{
			raw:  "https://specs.apollo.dev/federation/v2.3",
			want: URL{Identity: FederationIdentity, Version: Version{Major: 2, Minor: 3}},
		},
		{
			raw:  "https://specs.apollo.dev/federation/v2.3/@key",
			want: URL{Identity: FederationIdentity, Version: Version{Major: 2, Minor: 3}, Element: "@key"},
		},
		{
			raw:  "https://example.com/deep/path/custom/v0.1",
			want: URL{Identity: Identity{Domain: "https://example.com/deep/path", Name: "custom"}, Version: Version{Major: 0, Minor: 1}},
		},
		{raw: "specs.apollo.dev/federation/v2.0", wantErr: true},
		{raw: "https://specs.apollo.dev/federation", wantErr: true},
		{raw: "https://specs.apollo.dev/federation/2.0", wantErr: true},
		{raw: "https://specs.apollo.dev/federation/v2", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseURL(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			if tt.want.Element == "" {
				assert.Equal(t, tt.raw, got.String())
			}
		})
	}
}

func TestVersionSatisfiedBy(t *testing.T) {
	v := Version{Major: 2, Minor: 1}

	assert.True(t, v.SatisfiedBy(Version{Major: 2, Minor: 1}))
	assert.True(t, v.SatisfiedBy(Version{Major: 2, Minor: 5}))
	assert.False(t, v.SatisfiedBy(Version{Major: 2, Minor: 0}))
	assert.False(t, v.SatisfiedBy(Version{Major: 3, Minor: 1}))
	assert.Equal(t, -1, Version{Major: 0, Minor: 3}.Compare(Version{Major: 1, Minor: 0}))
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()

	assert.Equal(t, []Version{{Major: 0, Minor: 1}, {Major: 0, Minor: 2}, {Major: 0, Minor: 3}}, r.Find(JoinIdentity))

	spec := r.LatestSatisfying(FederationIdentity, Version{Major: 2, Minor: 1})
	require.NotNil(t, spec)
	assert.Equal(t, Version{Major: 2, Minor: 5}, spec.Version())

	assert.Nil(t, r.LatestSatisfying(FederationIdentity, Version{Major: 2, Minor: 9}))
	assert.Nil(t, r.LatestSatisfying(FederationIdentity, Version{Major: 1, Minor: 0}))

	fed20 := r.Get(FederationIdentity, Version{Major: 2, Minor: 0})
	require.NotNil(t, fed20)
	assert.Nil(t, fed20.Directive("interfaceObject"))
	assert.NotNil(t, r.Get(FederationIdentity, Version{Major: 2, Minor: 3}).Directive("interfaceObject"))

	name, ok := r.ElementName(fed20, "key")
	assert.True(t, ok)
	assert.Equal(t, "key", name)
	_, ok = r.ElementName(fed20, "nope")
	assert.False(t, ok)

	join01 := r.Get(JoinIdentity, Version{Major: 0, Minor: 1})
	assert.NotNil(t, join01.Directive("owner"))
	assert.Nil(t, join01.Directive("implements"))
	join03 := r.Get(JoinIdentity, Version{Major: 0, Minor: 3})
	assert.NotNil(t, join03.Directive("type").Arguments.ForName("isInterfaceObject"))
}

func TestResolve_LinkVersionSelection(t *testing.T) {
	t.Run("link", func(t *testing.T) {
		m, err := resolve(t, heredoc.Doc(`
			schema @link(url: "https://specs.apollo.dev/link/v0.2") {
				query: Query
			}
			type Query { a: Int }
		`))
		require.NoError(t, err)
		assert.Equal(t, "link", m.LinkDirectiveName())
	})
	t.Run("core", func(t *testing.T) {
		m, err := resolve(t, heredoc.Doc(`
			schema @core(feature: "https://specs.apollo.dev/core/v0.1") {
				query: Query
			}
			type Query { a: Int }
		`))
		require.NoError(t, err)
		assert.Equal(t, "core", m.LinkDirectiveName())
		require.NotNil(t, m.LinkSpec())
		assert.Equal(t, CoreIdentity, m.LinkSpec().URL.Identity)
	})
	t.Run("aliased", func(t *testing.T) {
		m, err := resolve(t, heredoc.Doc(`
			extend schema
				@lnk(url: "https://specs.apollo.dev/link/v1.0", as: "lnk")
				@lnk(url: "https://specs.apollo.dev/federation/v2.0")
			type Query { a: Int }
		`))
		require.NoError(t, err)
		assert.Equal(t, "lnk", m.LinkDirectiveName())
		assert.Len(t, m.Links, 2)
		name, ok := m.TypeName(LinkIdentity, "Import")
		assert.True(t, ok)
		assert.Equal(t, "lnk__Import", name)
	})
}

func TestResolve_Names(t *testing.T) {
	m, err := resolve(t, heredoc.Doc(`
		extend schema
			@link(url: "https://specs.apollo.dev/link/v1.0")
			@link(url: "https://specs.apollo.dev/federation/v2.3", import: ["@key", { name: "@shareable", as: "@share" }, "FieldSet"])
			@link(url: "https://specs.apollo.dev/join/v0.3", as: "j", for: EXECUTION)
	`))
	require.NoError(t, err)

	tests := []struct {
		identity  Identity
		canonical string
		want      string
	}{
		{FederationIdentity, "key", "key"},
		{FederationIdentity, "shareable", "share"},
		{FederationIdentity, "requires", "federation__requires"},
		{JoinIdentity, "type", "j__type"},
		{LinkIdentity, "link", "link"},
	}
	for _, tt := range tests {
		got, ok := m.DirectiveName(tt.identity, tt.canonical)
		assert.True(t, ok)
		assert.Equal(t, tt.want, got, "%s %s", tt.identity, tt.canonical)

		l, canonical, ok := m.SourceLinkOfDirective(got)
		require.True(t, ok, got)
		assert.Equal(t, tt.identity, l.URL.Identity)
		assert.Equal(t, tt.canonical, canonical)
	}

	typeName, ok := m.TypeName(FederationIdentity, "FieldSet")
	assert.True(t, ok)
	assert.Equal(t, "FieldSet", typeName)
	typeName, _ = m.TypeName(JoinIdentity, "FieldSet")
	assert.Equal(t, "j__FieldSet", typeName)

	assert.Equal(t, PurposeExecution, m.ForIdentity(JoinIdentity).Purpose)
	assert.True(t, m.IsSpecDirective("j__field"))
	assert.False(t, m.IsSpecDirective("custom"))

	_, ok = m.DirectiveName(TagIdentity, "tag")
	assert.False(t, ok)
}

func TestResolve_ElementURL(t *testing.T) {
	m, err := resolve(t, heredoc.Doc(`
		extend schema
			@link(url: "https://specs.apollo.dev/link/v1.0")
			@link(url: "https://specs.apollo.dev/federation/v2.0/@key")
	`))
	require.NoError(t, err)

	name, _ := m.DirectiveName(FederationIdentity, "key")
	assert.Equal(t, "key", name)
	name, _ = m.DirectiveName(FederationIdentity, "external")
	assert.Equal(t, "federation__external", name)
}

func TestRegistry_Lookup(t *testing.T) {
	r := DefaultRegistry()

	spec, gErr := r.Lookup(nil, JoinIdentity, Version{Major: 0, Minor: 2})
	require.Nil(t, gErr)
	assert.Equal(t, Version{Major: 0, Minor: 2}, spec.Version())

	spec, gErr = r.Lookup(nil, FederationIdentity, Version{Major: 2, Minor: 1})
	require.Nil(t, gErr)
	assert.Equal(t, Version{Major: 2, Minor: 1}, spec.Version())

	_, gErr = r.Lookup(nil, Identity{Domain: "https://example.com", Name: "custom"}, Version{Major: 1, Minor: 0})
	require.NotNil(t, gErr)
	assert.Equal(t, CodeUnknownSpec, gErr.Extensions["code"])

	_, gErr = r.Lookup(nil, JoinIdentity, Version{Major: 0, Minor: 9})
	require.NotNil(t, gErr)
	assert.Equal(t, CodeUnsupportedVersion, gErr.Extensions["code"])
	assert.Contains(t, gErr.Message, "Supported versions: v0.1, v0.2, v0.3.")
}

func TestResolve_UnknownSpec(t *testing.T) {
	m, err := resolve(t, heredoc.Doc(`
		extend schema
			@link(url: "https://specs.apollo.dev/link/v1.0")
			@link(url: "https://example.com/custom/v1.0", import: ["@foo"])
	`))
	require.NoError(t, err)

	l, canonical, ok := m.SourceLinkOfDirective("foo")
	require.True(t, ok)
	assert.Nil(t, l.Spec)
	assert.Equal(t, "foo", canonical)
	assert.False(t, m.IsSpecDirective("foo"))
}

func TestResolve_Errors(t *testing.T) {
	tests := []struct {
		name    string
		sdl     string
		code    string
		message string
	}{
		{
			name: "unknown import",
			sdl: heredoc.Doc(`
				extend schema
					@link(url: "https://specs.apollo.dev/link/v1.0")
					@link(url: "https://specs.apollo.dev/federation/v2.0", import: ["@kye"])
			`),
			code:    CodeUnknownImport,
			message: `Did you mean "@key"?`,
		},
		{
			name: "import of a later version element",
			sdl: heredoc.Doc(`
				extend schema
					@link(url: "https://specs.apollo.dev/link/v1.0")
					@link(url: "https://specs.apollo.dev/federation/v2.0", import: ["@interfaceObject"])
			`),
			code: CodeUnknownImport,
		},
		{
			name: "import conflict",
			sdl: heredoc.Doc(`
				extend schema
					@link(url: "https://specs.apollo.dev/link/v1.0")
					@link(url: "https://specs.apollo.dev/federation/v2.0", import: ["@tag"])
					@link(url: "https://specs.apollo.dev/tag/v0.3", import: ["@tag"])
			`),
			code: CodeImportConflict,
		},
		{
			name: "unsupported version",
			sdl: heredoc.Doc(`
				extend schema
					@link(url: "https://specs.apollo.dev/link/v1.0")
					@link(url: "https://specs.apollo.dev/federation/v3.0")
			`),
			code:    CodeUnsupportedVersion,
			message: "Supported versions: v2.0, v2.1, v2.2, v2.3, v2.4, v2.5.",
		},
		{
			name: "invalid identifier",
			sdl: heredoc.Doc(`
				extend schema
					@link(url: "https://specs.apollo.dev/link/v1.0")
					@link(url: "federation")
			`),
			code: CodeInvalidLinkIdentifier,
		},
		{
			name: "invalid alias",
			sdl: heredoc.Doc(`
				extend schema
					@link(url: "https://specs.apollo.dev/link/v1.0")
					@link(url: "https://specs.apollo.dev/federation/v2.0", import: [{ name: "@key", as: "primary" }])
			`),
			code: CodeInvalidLinkDirectiveUsage,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := resolve(t, tt.sdl)
			require.Error(t, err)
			assert.Contains(t, errorCodes(t, err), tt.code)
			if tt.message != "" {
				assert.True(t, strings.Contains(err.Error(), tt.message), err.Error())
			}
		})
	}
}

func TestResolve_Federation1(t *testing.T) {
	m, err := resolve(t, heredoc.Doc(`
		type Query {
			me: User
		}
		type User @key(fields: "id") {
			id: ID!
		}
	`))
	require.NoError(t, err)
	require.Len(t, m.Links, 2)
	assert.True(t, m.Links[0].Implicit)

	name, ok := m.DirectiveName(FederationIdentity, "key")
	assert.True(t, ok)
	assert.Equal(t, "key", name)
	name, _ = m.DirectiveName(FederationIdentity, "shareable")
	assert.Equal(t, "federation__shareable", name)
}

func TestResolve_Plain(t *testing.T) {
	m, err := resolve(t, `type Query { a: Int }`)
	require.NoError(t, err)
	assert.Empty(t, m.Links)
	assert.Equal(t, "", m.LinkDirectiveName())
}

func TestResolve_Idempotent(t *testing.T) {
	sdl := heredoc.Doc(`
		extend schema
			@link(url: "https://specs.apollo.dev/link/v1.0")
			@link(url: "https://specs.apollo.dev/federation/v2.5", import: ["@key", "@requiresScopes", "Scope"])
	`)

	first, err := resolve(t, sdl)
	require.NoError(t, err)
	second, err := resolve(t, sdl)
	require.NoError(t, err)

	if diff := cmp.Diff(first.Bindings(), second.Bindings()); diff != "" {
		t.Errorf("bindings mismatch (-first +second):\n%s", diff)
	}
}

func TestLink_Definitions(t *testing.T) {
	m, err := resolve(t, heredoc.Doc(`
		extend schema
			@link(url: "https://specs.apollo.dev/link/v1.0")
			@link(url: "https://specs.apollo.dev/federation/v2.5", import: ["@key"])
	`))
	require.NoError(t, err)

	fed := m.ForIdentity(FederationIdentity)
	key := fed.DirectiveDefinition("key")
	require.NotNil(t, key)
	assert.Equal(t, "key", key.Name)
	assert.Equal(t, "federation__FieldSet!", key.Arguments.ForName("fields").Type.String())

	scopes := fed.DirectiveDefinition("requiresScopes")
	assert.Equal(t, "federation__requiresScopes", scopes.Name)
	assert.Equal(t, "[[federation__Scope!]!]!", scopes.Arguments.ForName("scopes").Type.String())

	var typeNames []string
	for _, def := range fed.TypeDefinitions() {
		typeNames = append(typeNames, def.Name)
	}
	assert.Equal(t, []string{"federation__FieldSet", "federation__Scope"}, typeNames)

	app := fed.Application("link")
	assert.Equal(t, `"https://specs.apollo.dev/federation/v2.5"`, app.Arguments.ForName("url").Value.String())
	assert.Equal(t, `["@key"]`, app.Arguments.ForName("import").Value.String())
}
