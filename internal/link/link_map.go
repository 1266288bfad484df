package link

import (
	"context"
	"sort"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vvakame/fedgraph/internal/log"
)

// Map binds the document local names of a schema to canonical spec elements.
// It is computed once per schema and never mutated afterwards.
type Map struct {
	Links []*Link

	linkDirectiveName string

	byIdentity       map[Identity]*Link
	byNameInSchema   map[string]*Link
	directiveImports map[string]importBinding
	typeImports      map[string]importBinding
}

type importBinding struct {
	link *Link
	imp  *Import
}

// NameBinding is one entry of the local name to canonical element mapping.
type NameBinding struct {
	Local       string
	URL         string
	Canonical   string
	IsDirective bool
}

func newMap(linkDirectiveName string) *Map {
	return &Map{
		linkDirectiveName: linkDirectiveName,
		byIdentity:        make(map[Identity]*Link),
		byNameInSchema:    make(map[string]*Link),
		directiveImports:  make(map[string]importBinding),
		typeImports:       make(map[string]importBinding),
	}
}

// LinkDirectiveName is the local name of the link directive itself ("link", "core" or an alias).
func (m *Map) LinkDirectiveName() string {
	if m == nil {
		return ""
	}
	return m.linkDirectiveName
}

func (m *Map) ForIdentity(identity Identity) *Link {
	if m == nil {
		return nil
	}
	return m.byIdentity[identity]
}

func (m *Map) ForNameInSchema(name string) *Link {
	if m == nil {
		return nil
	}
	return m.byNameInSchema[name]
}

// LinkSpec returns the link to the link spec in either of its two names.
func (m *Map) LinkSpec() *Link {
	if l := m.ForIdentity(LinkIdentity); l != nil {
		return l
	}
	return m.ForIdentity(CoreIdentity)
}

// SourceLinkOfDirective finds the link a directive applied as @localName comes from
// and the canonical name of the directive within that spec.
func (m *Map) SourceLinkOfDirective(localName string) (*Link, string, bool) {
	if m == nil {
		return nil, "", false
	}
	if binding, ok := m.directiveImports[localName]; ok {
		return binding.link, binding.imp.Element, true
	}
	if l, ok := m.byNameInSchema[localName]; ok {
		return l, l.URL.Identity.Name, true
	}
	if idx := strings.Index(localName, "__"); idx > 0 {
		if l, ok := m.byNameInSchema[localName[:idx]]; ok {
			return l, localName[idx+2:], true
		}
	}
	return nil, "", false
}

// SourceLinkOfType finds the link a type named localName comes from.
func (m *Map) SourceLinkOfType(localName string) (*Link, string, bool) {
	if m == nil {
		return nil, "", false
	}
	if binding, ok := m.typeImports[localName]; ok {
		return binding.link, binding.imp.Element, true
	}
	if idx := strings.Index(localName, "__"); idx > 0 {
		if l, ok := m.byNameInSchema[localName[:idx]]; ok {
			return l, localName[idx+2:], true
		}
	}
	return nil, "", false
}

// DirectiveName is the reverse query: the local name of a canonical directive
// of the spec identified by identity. It returns false when the spec isn't linked.
func (m *Map) DirectiveName(identity Identity, canonical string) (string, bool) {
	l := m.ForIdentity(identity)
	if l == nil {
		return "", false
	}
	return l.DirectiveNameInSchema(canonical), true
}

// TypeName is DirectiveName for types.
func (m *Map) TypeName(identity Identity, canonical string) (string, bool) {
	l := m.ForIdentity(identity)
	if l == nil {
		return "", false
	}
	return l.TypeNameInSchema(canonical), true
}

// IsSpecDirective reports whether @localName belongs to a linked spec the registry knows.
func (m *Map) IsSpecDirective(localName string) bool {
	l, canonical, ok := m.SourceLinkOfDirective(localName)
	return ok && l.Spec != nil && l.Spec.Directive(canonical) != nil
}

// IsSpecType reports whether the type localName belongs to a linked spec the registry knows.
func (m *Map) IsSpecType(localName string) bool {
	l, canonical, ok := m.SourceLinkOfType(localName)
	return ok && l.Spec != nil && l.Spec.Type(canonical) != nil
}

// Bindings lists every local name bound to a known spec element, sorted by local name.
func (m *Map) Bindings() []NameBinding {
	if m == nil {
		return nil
	}
	var bindings []NameBinding
	for _, l := range m.Links {
		if l.Spec == nil {
			for _, imp := range l.Imports {
				bindings = append(bindings, NameBinding{
					Local:       imp.ImportedName(),
					URL:         l.URL.String(),
					Canonical:   imp.Element,
					IsDirective: imp.IsDirective,
				})
			}
			continue
		}
		for _, def := range l.Spec.Directives() {
			bindings = append(bindings, NameBinding{
				Local:       l.DirectiveNameInSchema(def.Name),
				URL:         l.URL.String(),
				Canonical:   def.Name,
				IsDirective: true,
			})
		}
		for _, def := range l.Spec.Types() {
			bindings = append(bindings, NameBinding{
				Local:     l.TypeNameInSchema(def.Name),
				URL:       l.URL.String(),
				Canonical: def.Name,
			})
		}
	}
	sort.SliceStable(bindings, func(i, j int) bool {
		if bindings[i].Local != bindings[j].Local {
			return bindings[i].Local < bindings[j].Local
		}
		return !bindings[i].IsDirective && bindings[j].IsDirective
	})
	return bindings
}

func (m *Map) add(l *Link) gqlerror.List {
	var errs gqlerror.List
	var pos *ast.Position
	if l.Directive != nil {
		pos = l.Directive.Position
	}

	if existing, ok := m.byIdentity[l.URL.Identity]; ok {
		return gqlerror.List{newError(pos, CodeInvalidLinkDirectiveUsage, "Duplicate inclusion of feature %s (already linked as %s)", l.URL.Identity.String(), existing.URL.String())}
	}
	if existing, ok := m.byNameInSchema[l.SpecNameInSchema()]; ok {
		return gqlerror.List{newError(pos, CodeImportConflict, "Name conflict: %s and %s are both imported under the namespace %q", existing.URL.String(), l.URL.String(), l.SpecNameInSchema())}
	}

	for _, imp := range l.Imports {
		name := imp.ImportedName()
		target := m.typeImports
		display := name
		if imp.IsDirective {
			target = m.directiveImports
			display = "@" + name
		}
		if existing, ok := target[name]; ok && existing.link != l {
			errs = append(errs, newError(pos, CodeImportConflict, "Name conflict: %s is imported by both %s and %s", display, existing.link.URL.String(), l.URL.String()))
			continue
		}
		target[name] = importBinding{link: l, imp: imp}
	}
	if len(errs) != 0 {
		return errs
	}

	m.Links = append(m.Links, l)
	m.byIdentity[l.URL.Identity] = l
	m.byNameInSchema[l.SpecNameInSchema()] = l
	return nil
}

type ResolveOptions struct {
	// Registry defaults to DefaultRegistry.
	Registry *Registry
	// AssumeFederation treats a schema without any @link as a federation 1 subgraph
	// even when it applies no federation directive.
	AssumeFederation bool
}

// SchemaDirectives returns the directives applied on the schema definition and its extensions.
func SchemaDirectives(doc *ast.SchemaDocument) ast.DirectiveList {
	var directives ast.DirectiveList
	for _, def := range doc.Schema {
		directives = append(directives, def.Directives...)
	}
	for _, def := range doc.SchemaExtension {
		directives = append(directives, def.Directives...)
	}
	return directives
}

// Resolve reads the @link (or @core) applications of doc and produces its Map.
// A schema without any link yields an empty Map, unless it carries federation
// artefacts; then implicit links to the link and federation specs are assumed.
func Resolve(ctx context.Context, doc *ast.SchemaDocument, opts *ResolveOptions) (*Map, error) {
	if opts == nil {
		opts = &ResolveOptions{}
	}
	registry := opts.Registry
	if registry == nil {
		registry = DefaultRegistry()
	}
	logger := log.FromContext(ctx)

	schemaDirectives := SchemaDirectives(doc)

	bootstrap, errs := findBootstrap(registry, schemaDirectives)
	if len(errs) != 0 {
		return nil, errs
	}

	if bootstrap == nil {
		if !opts.AssumeFederation && !usesFederation1Directives(doc) {
			logger.V(1).Info("no link found, plain schema")
			return newMap(""), nil
		}
		logger.V(1).Info("no link found, assuming a federation 1 schema")
		return implicitFederationMap(registry), nil
	}

	m := newMap(bootstrap.DirectiveNameInSchema(bootstrap.URL.Identity.Name))
	if gErrs := m.add(bootstrap); len(gErrs) != 0 {
		return nil, gErrs
	}

	for _, dir := range schemaDirectives {
		if dir.Name != m.linkDirectiveName || dir == bootstrap.Directive {
			continue
		}
		l, gErrs := parseLink(registry, dir)
		if len(gErrs) != 0 {
			errs = append(errs, gErrs...)
			continue
		}
		if l.Spec == nil {
			logger.V(1).Info("unknown spec is kept unresolved", "url", l.URL.String())
		}
		errs = append(errs, m.add(l)...)
	}

	if fed := m.ForIdentity(FederationIdentity); fed != nil {
		for _, l := range m.Links {
			if l.Spec == nil || l.Spec.MinimumFederationVersion == nil {
				continue
			}
			if fed.URL.Version.Compare(*l.Spec.MinimumFederationVersion) < 0 {
				var pos *ast.Position
				if l.Directive != nil {
					pos = l.Directive.Position
				}
				errs = append(errs, newError(pos, CodeUnsupportedVersion, "%s requires at least federation %s, but the schema links federation %s", l.URL.String(), l.Spec.MinimumFederationVersion.String(), fed.URL.Version.String()))
			}
		}
	}

	if len(errs) != 0 {
		return nil, errs
	}

	logger.V(1).Info("links resolved", "count", len(m.Links), "linkDirective", m.linkDirectiveName)
	return m, nil
}

// findBootstrap finds the application linking the link spec itself, which tells
// the local name of the link directive.
func findBootstrap(registry *Registry, directives ast.DirectiveList) (*Link, gqlerror.List) {
	for _, dir := range directives {
		urlArg := dir.Arguments.ForName("url")
		if urlArg == nil {
			urlArg = dir.Arguments.ForName("feature")
		}
		if urlArg == nil || urlArg.Value == nil || urlArg.Value.Kind != ast.StringValue {
			continue
		}
		u, err := ParseURL(urlArg.Value.Raw)
		if err != nil || !u.Identity.IsLinkLike() {
			continue
		}

		l, errs := parseLink(registry, dir)
		if len(errs) != 0 {
			return nil, errs
		}
		// the application must be using the name it defines
		if dir.Name != l.DirectiveNameInSchema(l.URL.Identity.Name) {
			continue
		}
		return l, nil
	}
	return nil, nil
}

func usesFederation1Directives(doc *ast.SchemaDocument) bool {
	isFederation := func(directives ast.DirectiveList) bool {
		for _, dir := range directives {
			switch dir.Name {
			case "key", "requires", "provides", "external", "extends":
				return true
			}
		}
		return false
	}

	definitions := make(ast.DefinitionList, 0, len(doc.Definitions)+len(doc.Extensions))
	definitions = append(definitions, doc.Definitions...)
	definitions = append(definitions, doc.Extensions...)
	for _, def := range definitions {
		if isFederation(def.Directives) {
			return true
		}
		for _, field := range def.Fields {
			if isFederation(field.Directives) {
				return true
			}
		}
	}
	return false
}

func implicitFederationMap(registry *Registry) *Map {
	linkSpec := registry.Latest(LinkIdentity)
	m := newMap(linkSpec.URL.Identity.Name)
	_ = m.add(&Link{
		URL:      linkSpec.URL,
		Spec:     linkSpec,
		Implicit: true,
	})

	fedSpec := registry.Get(FederationIdentity, Version{Major: 2, Minor: 0})
	fed := &Link{
		URL:      fedSpec.URL,
		Spec:     fedSpec,
		Implicit: true,
	}
	for _, name := range federation1DirectiveNames {
		fed.Imports = append(fed.Imports, &Import{Element: name, IsDirective: true})
	}
	fed.Imports = append(fed.Imports, &Import{Element: "FieldSet"})
	_ = m.add(fed)

	return m
}
