package federation

import (
	"bytes"
	"context"
	"strconv"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"
)

// for formatter
var blankPos = &ast.Position{
	Src: &ast.Source{
		BuiltIn: false,
	},
}

// BlankPosition is the position of elements built in memory.
func BlankPosition() *ast.Position {
	return blankPos
}

// Builder assembles a schema document. Installed elements are plain values
// owned by the builder; Build prints the document and parses it back into a Schema.
type Builder struct {
	Name string

	schemaDirectives ast.DirectiveList
	operationTypes   ast.OperationTypeDefinitionList
	directives       ast.DirectiveDefinitionList
	types            ast.DefinitionList
	typeIndex        map[string]*ast.Definition
	extensions       map[string]bool
}

func NewBuilder(name string) *Builder {
	return &Builder{
		Name:       name,
		typeIndex:  make(map[string]*ast.Definition),
		extensions: make(map[string]bool),
	}
}

func (b *Builder) AddSchemaDirective(dir *ast.Directive) {
	b.schemaDirectives = append(b.schemaDirectives, dir)
}

func (b *Builder) SetOperationType(operation ast.Operation, typeName string) {
	for _, op := range b.operationTypes {
		if op.Operation == operation {
			op.Type = typeName
			return
		}
	}
	b.operationTypes = append(b.operationTypes, &ast.OperationTypeDefinition{
		Operation: operation,
		Type:      typeName,
		Position:  blankPos,
	})
}

// InstallDirectiveDefinition adds def unless a directive of the same name exists.
func (b *Builder) InstallDirectiveDefinition(def *ast.DirectiveDefinition) bool {
	if b.directives.ForName(def.Name) != nil {
		return false
	}
	if def.Position == nil {
		def.Position = blankPos
	}
	b.directives = append(b.directives, def)
	return true
}

func (b *Builder) DirectiveDefinition(name string) *ast.DirectiveDefinition {
	return b.directives.ForName(name)
}

// InstallType adds def and returns it, or returns the type already installed under its name.
func (b *Builder) InstallType(def *ast.Definition, extension bool) *ast.Definition {
	if existing := b.typeIndex[def.Name]; existing != nil {
		return existing
	}
	if def.Position == nil {
		def.Position = blankPos
	}
	b.types = append(b.types, def)
	b.typeIndex[def.Name] = def
	if extension {
		b.extensions[def.Name] = true
	}
	return def
}

func (b *Builder) Type(name string) *ast.Definition {
	return b.typeIndex[name]
}

// Types lists the installed types in installation order.
func (b *Builder) Types() ast.DefinitionList {
	return append(ast.DefinitionList(nil), b.types...)
}

func (b *Builder) RemoveType(name string) {
	if b.typeIndex[name] == nil {
		return
	}
	delete(b.typeIndex, name)
	delete(b.extensions, name)
	types := b.types[:0]
	for _, def := range b.types {
		if def.Name != name {
			types = append(types, def)
		}
	}
	b.types = types
}

func (b *Builder) SetExtension(name string, extension bool) {
	if extension {
		b.extensions[name] = true
	} else {
		delete(b.extensions, name)
	}
}

func (b *Builder) IsExtension(name string) bool {
	return b.extensions[name]
}

// Print renders the document as SDL.
func (b *Builder) Print() string {
	var buf bytes.Buffer

	if len(b.schemaDirectives) != 0 || len(b.operationTypes) != 0 {
		if len(b.operationTypes) == 0 {
			buf.WriteString("extend ")
		}
		buf.WriteString("schema")
		for _, dir := range b.schemaDirectives {
			buf.WriteString("\n\t")
			buf.WriteString(PrintDirective(dir))
		}
		if len(b.operationTypes) != 0 {
			buf.WriteString("\n{\n")
			for _, op := range b.operationTypes {
				buf.WriteString("\t")
				buf.WriteString(string(op.Operation))
				buf.WriteString(": ")
				buf.WriteString(op.Type)
				buf.WriteString("\n")
			}
			buf.WriteString("}")
		}
		buf.WriteString("\n\n")
	}

	doc := &ast.SchemaDocument{
		Directives: b.directives,
	}
	for _, def := range b.types {
		if b.extensions[def.Name] {
			doc.Extensions = append(doc.Extensions, def)
		} else {
			doc.Definitions = append(doc.Definitions, def)
		}
	}
	formatter.NewFormatter(&buf).FormatSchemaDocument(doc)

	return buf.String()
}

// Build parses the printed document into a Schema.
func (b *Builder) Build(ctx context.Context, opts *Options) (*Schema, error) {
	return Parse(ctx, b.Name, b.Print(), opts)
}

// PrintDirective renders one directive application.
func PrintDirective(dir *ast.Directive) string {
	var buf strings.Builder
	buf.WriteString("@")
	buf.WriteString(dir.Name)
	if len(dir.Arguments) != 0 {
		buf.WriteString("(")
		for i, arg := range dir.Arguments {
			if i != 0 {
				buf.WriteString(", ")
			}
			buf.WriteString(arg.Name)
			buf.WriteString(": ")
			buf.WriteString(arg.Value.String())
		}
		buf.WriteString(")")
	}
	return buf.String()
}

// NewDirective builds a directive application.
func NewDirective(name string, args ...*ast.Argument) *ast.Directive {
	return &ast.Directive{
		Name:      name,
		Arguments: args,
		Position:  blankPos,
	}
}

func StringArgument(name, value string) *ast.Argument {
	return &ast.Argument{
		Name:     name,
		Value:    &ast.Value{Kind: ast.StringValue, Raw: value, Position: blankPos},
		Position: blankPos,
	}
}

func BoolArgument(name string, value bool) *ast.Argument {
	return &ast.Argument{
		Name:     name,
		Value:    &ast.Value{Kind: ast.BooleanValue, Raw: strconv.FormatBool(value), Position: blankPos},
		Position: blankPos,
	}
}
