package link

import (
	"fmt"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

// Import is one entry of a link's import list.
type Import struct {
	// Element is the canonical name, without "@".
	Element     string
	IsDirective bool
	// Alias is the name bound in the schema, without "@". Empty when not aliased.
	Alias string
}

// ImportedName is the name the element is known by in the schema.
func (imp *Import) ImportedName() string {
	if imp.Alias != "" {
		return imp.Alias
	}
	return imp.Element
}

func (imp *Import) String() string {
	prefix := ""
	if imp.IsDirective {
		prefix = "@"
	}
	if imp.Alias == "" {
		return prefix + imp.Element
	}
	return fmt.Sprintf("{ name: %q, as: %q }", prefix+imp.Element, prefix+imp.Alias)
}

func (imp *Import) toValue() *ast.Value {
	prefix := ""
	if imp.IsDirective {
		prefix = "@"
	}
	if imp.Alias == "" {
		return &ast.Value{Kind: ast.StringValue, Raw: prefix + imp.Element}
	}
	return &ast.Value{
		Kind: ast.ObjectValue,
		Children: ast.ChildValueList{
			&ast.ChildValue{Name: "name", Value: &ast.Value{Kind: ast.StringValue, Raw: prefix + imp.Element}},
			&ast.ChildValue{Name: "as", Value: &ast.Value{Kind: ast.StringValue, Raw: prefix + imp.Alias}},
		},
	}
}

// Link is a resolved @link (or @core) application.
type Link struct {
	URL       URL
	SpecAlias string
	Imports   []*Import
	Purpose   Purpose

	// Spec is nil for identities the registry does not know.
	Spec *SpecDefinition
	// Implicit links were assumed rather than read from the schema.
	Implicit bool
	// Directive is the application the link was read from, nil when Implicit.
	Directive *ast.Directive
}

// SpecNameInSchema is the namespace prefix of the spec's elements.
func (l *Link) SpecNameInSchema() string {
	if l.SpecAlias != "" {
		return l.SpecAlias
	}
	return l.URL.Identity.Name
}

func (l *Link) importFor(name string, isDirective bool) *Import {
	for _, imp := range l.Imports {
		if imp.Element == name && imp.IsDirective == isDirective {
			return imp
		}
	}
	return nil
}

// DirectiveNameInSchema is the name a directive of the spec is applied with.
func (l *Link) DirectiveNameInSchema(name string) string {
	if imp := l.importFor(name, true); imp != nil {
		return imp.ImportedName()
	}
	if name == l.URL.Identity.Name {
		return l.SpecNameInSchema()
	}
	return l.SpecNameInSchema() + "__" + name
}

// TypeNameInSchema is the name a type of the spec is referenced with.
func (l *Link) TypeNameInSchema(name string) string {
	if imp := l.importFor(name, false); imp != nil {
		return imp.ImportedName()
	}
	return l.SpecNameInSchema() + "__" + name
}

// DirectiveDefinitions returns copies of the spec's directive definitions under their in-schema names.
func (l *Link) DirectiveDefinitions() ast.DirectiveDefinitionList {
	if l.Spec == nil {
		return nil
	}
	var result ast.DirectiveDefinitionList
	for _, def := range l.Spec.Directives() {
		result = append(result, l.DirectiveDefinition(def.Name))
	}
	return result
}

// DirectiveDefinition returns a copy of one directive definition under its in-schema name.
func (l *Link) DirectiveDefinition(name string) *ast.DirectiveDefinition {
	if l.Spec == nil {
		return nil
	}
	def := l.Spec.Directive(name)
	if def == nil {
		return nil
	}

	copied := &ast.DirectiveDefinition{
		Description:  def.Description,
		Name:         l.DirectiveNameInSchema(def.Name),
		Locations:    append([]ast.DirectiveLocation{}, def.Locations...),
		IsRepeatable: def.IsRepeatable,
		Position:     blankPos,
	}
	for _, arg := range def.Arguments {
		copied.Arguments = append(copied.Arguments, &ast.ArgumentDefinition{
			Description:  arg.Description,
			Name:         arg.Name,
			DefaultValue: arg.DefaultValue,
			Type:         copyType(arg.Type, l.renameSpecType),
			Position:     blankPos,
		})
	}
	return copied
}

// TypeDefinitions returns copies of the spec's type definitions under their in-schema names.
func (l *Link) TypeDefinitions() ast.DefinitionList {
	if l.Spec == nil {
		return nil
	}
	var result ast.DefinitionList
	for _, def := range l.Spec.Types() {
		copied := &ast.Definition{
			Kind:        def.Kind,
			Description: def.Description,
			Name:        l.TypeNameInSchema(def.Name),
			Position:    blankPos,
		}
		for _, value := range def.EnumValues {
			copied.EnumValues = append(copied.EnumValues, &ast.EnumValueDefinition{
				Description: value.Description,
				Name:        value.Name,
				Position:    blankPos,
			})
		}
		result = append(result, copied)
	}
	return result
}

func (l *Link) renameSpecType(name string) string {
	if l.Spec != nil && l.Spec.Type(name) != nil {
		return l.TypeNameInSchema(name)
	}
	return name
}

// Application builds the directive application describing l, applied as @directiveName.
func (l *Link) Application(directiveName string) *ast.Directive {
	urlArgName := "url"
	if l.URL.Identity == CoreIdentity || directiveName == "core" {
		urlArgName = "feature"
	}

	dir := &ast.Directive{
		Name:     directiveName,
		Position: blankPos,
		Arguments: ast.ArgumentList{
			&ast.Argument{
				Name:  urlArgName,
				Value: &ast.Value{Kind: ast.StringValue, Raw: l.URL.String()},
			},
		},
	}
	if l.SpecAlias != "" {
		dir.Arguments = append(dir.Arguments, &ast.Argument{
			Name:  "as",
			Value: &ast.Value{Kind: ast.StringValue, Raw: l.SpecAlias},
		})
	}
	if l.Purpose != "" {
		dir.Arguments = append(dir.Arguments, &ast.Argument{
			Name:  "for",
			Value: &ast.Value{Kind: ast.EnumValue, Raw: string(l.Purpose)},
		})
	}
	if len(l.Imports) != 0 && l.URL.Element == "" {
		list := &ast.Value{Kind: ast.ListValue}
		for _, imp := range l.Imports {
			list.Children = append(list.Children, &ast.ChildValue{Value: imp.toValue()})
		}
		dir.Arguments = append(dir.Arguments, &ast.Argument{Name: "import", Value: list})
	}
	return dir
}

func (l *Link) String() string {
	return l.URL.String()
}

// parseLink reads a @link or @core application.
func parseLink(registry *Registry, dir *ast.Directive) (*Link, gqlerror.List) {
	var errs gqlerror.List

	urlArg := dir.Arguments.ForName("url")
	if urlArg == nil {
		urlArg = dir.Arguments.ForName("feature")
	}
	if urlArg == nil || urlArg.Value == nil || urlArg.Value.Kind != ast.StringValue {
		return nil, gqlerror.List{newError(dir.Position, CodeInvalidLinkDirectiveUsage, "@%s must have a string \"url\" argument", dir.Name)}
	}

	u, err := ParseURL(urlArg.Value.Raw)
	if err != nil {
		return nil, gqlerror.List{newError(urlArg.Value.Position, CodeInvalidLinkIdentifier, "%s", err.Error())}
	}

	l := &Link{
		URL:       u,
		Directive: dir,
	}

	spec, gErr := registry.Lookup(urlArg.Value.Position, u.Identity, u.Version)
	switch {
	case gErr == nil:
		l.Spec = spec
	case gErr.Extensions["code"] == CodeUnknownSpec:
		// kept as is, its names pass through unresolved
	default:
		return nil, gqlerror.List{gErr}
	}

	if asArg := dir.Arguments.ForName("as"); asArg != nil && asArg.Value != nil && asArg.Value.Kind != ast.NullValue {
		if asArg.Value.Kind != ast.StringValue {
			errs = append(errs, newError(asArg.Value.Position, CodeInvalidLinkDirectiveUsage, "@%s \"as\" argument must be a string", dir.Name))
		} else if strings.HasPrefix(asArg.Value.Raw, "@") || strings.Contains(asArg.Value.Raw, "__") {
			errs = append(errs, newError(asArg.Value.Position, CodeInvalidLinkDirectiveUsage, "Invalid spec alias %q: it must be a plain name", asArg.Value.Raw))
		} else {
			l.SpecAlias = asArg.Value.Raw
		}
	}

	if forArg := dir.Arguments.ForName("for"); forArg != nil && forArg.Value != nil && forArg.Value.Kind != ast.NullValue {
		purpose, ok := ParsePurpose(forArg.Value.Raw)
		if !ok {
			errs = append(errs, newError(forArg.Value.Position, CodeInvalidLinkDirectiveUsage, "Invalid purpose %q: expected SECURITY or EXECUTION", forArg.Value.Raw))
		}
		l.Purpose = purpose
	}

	if u.Element != "" {
		imp, gErr := parseImportName(u.Element, "", urlArg.Value.Position)
		if gErr != nil {
			errs = append(errs, gErr)
		} else {
			l.Imports = append(l.Imports, imp)
		}
	}

	if importArg := dir.Arguments.ForName("import"); importArg != nil && importArg.Value != nil && importArg.Value.Kind != ast.NullValue {
		imports, importErrs := parseImports(importArg.Value)
		errs = append(errs, importErrs...)
		l.Imports = append(l.Imports, imports...)
	}

	if l.Spec != nil {
		errs = append(errs, l.checkImports()...)
	}

	if len(errs) != 0 {
		return nil, errs
	}
	return l, nil
}

func parseImports(value *ast.Value) ([]*Import, gqlerror.List) {
	var errs gqlerror.List
	var imports []*Import

	var children ast.ChildValueList
	switch value.Kind {
	case ast.ListValue:
		children = value.Children
	default:
		// a single value is coerced into a list of one
		children = ast.ChildValueList{&ast.ChildValue{Value: value}}
	}

	for _, child := range children {
		entry := child.Value
		switch entry.Kind {
		case ast.StringValue:
			imp, gErr := parseImportName(entry.Raw, "", entry.Position)
			if gErr != nil {
				errs = append(errs, gErr)
				continue
			}
			imports = append(imports, imp)

		case ast.ObjectValue:
			var name, alias string
			var hasName bool
			for _, field := range entry.Children {
				switch field.Name {
				case "name":
					if field.Value.Kind != ast.StringValue {
						errs = append(errs, newError(field.Value.Position, CodeInvalidLinkDirectiveUsage, "Invalid value for the \"name\" field for sub-value %s: must be a string", entry.String()))
						continue
					}
					name = field.Value.Raw
					hasName = true
				case "as":
					if field.Value.Kind != ast.StringValue {
						errs = append(errs, newError(field.Value.Position, CodeInvalidLinkDirectiveUsage, "Invalid value for the \"as\" field for sub-value %s: must be a string", entry.String()))
						continue
					}
					alias = field.Value.Raw
				default:
					errs = append(errs, newError(field.Value.Position, CodeInvalidLinkDirectiveUsage, "Unknown field %q for sub-value %s", field.Name, entry.String()))
				}
			}
			if !hasName {
				errs = append(errs, newError(entry.Position, CodeInvalidLinkDirectiveUsage, "Invalid sub-value %s for @link(import:) argument: missing \"name\" field", entry.String()))
				continue
			}
			imp, gErr := parseImportName(name, alias, entry.Position)
			if gErr != nil {
				errs = append(errs, gErr)
				continue
			}
			imports = append(imports, imp)

		default:
			errs = append(errs, newError(entry.Position, CodeInvalidLinkDirectiveUsage, "Invalid sub-value %s for @link(import:) argument: values should be either strings or input object values of the form { name: \"<importedElement>\", as: \"<alias>\" }.", entry.String()))
		}
	}

	return imports, errs
}

func parseImportName(name, alias string, pos *ast.Position) (*Import, *gqlerror.Error) {
	isDirective := strings.HasPrefix(name, "@")
	imp := &Import{
		Element:     strings.TrimPrefix(name, "@"),
		IsDirective: isDirective,
	}
	if imp.Element == "" {
		return nil, newError(pos, CodeInvalidLinkDirectiveUsage, "Invalid import %q: empty name", name)
	}
	if alias == "" {
		return imp, nil
	}

	aliasIsDirective := strings.HasPrefix(alias, "@")
	switch {
	case isDirective && !aliasIsDirective:
		return nil, newError(pos, CodeInvalidLinkDirectiveUsage, "Invalid alias %q for import name %q: should start with '@' since the imported name does", alias, name)
	case !isDirective && aliasIsDirective:
		return nil, newError(pos, CodeInvalidLinkDirectiveUsage, "Invalid alias %q for import name %q: should not start with '@' (or, if %q is a directive, then the name should start with '@')", alias, name, name)
	}
	imp.Alias = strings.TrimPrefix(alias, "@")
	return imp, nil
}

// checkImports verifies every imported element exists in the linked spec version.
func (l *Link) checkImports() gqlerror.List {
	var errs gqlerror.List
	for _, imp := range l.Imports {
		if l.Spec.HasElement(imp.Element, imp.IsDirective) {
			continue
		}
		var candidates []string
		if imp.IsDirective {
			for _, name := range l.Spec.DirectiveNames() {
				candidates = append(candidates, "@"+name)
			}
		} else {
			candidates = l.Spec.TypeNames()
		}
		display := imp.Element
		if imp.IsDirective {
			display = "@" + display
		}
		var pos *ast.Position
		if l.Directive != nil {
			pos = l.Directive.Position
		}
		errs = append(errs, newError(
			pos, CodeUnknownImport,
			"Cannot import unknown element %q from %s.%s",
			display, l.URL.String(), suggestion(display, candidates),
		))
	}
	return errs
}
