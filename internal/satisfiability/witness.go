package satisfiability

import (
	"bytes"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"
	"github.com/vvakame/fedgraph/internal/federation"
)

// elision stands for the sub-selection of a witness ending on a composite type.
const elision = "..."

// renderWitness prints the operation selecting steps. A last step of composite type gets an
// elided sub-selection.
func renderWitness(api *federation.Schema, operation ast.Operation, steps []*step) string {
	if operation == "" {
		operation = ast.Query
	}
	op := &ast.OperationDefinition{Operation: operation}

	selection := &op.SelectionSet
	last := len(steps) - 1
	for i, st := range steps {
		sel := st.selection(api)
		*selection = append(*selection, sel)

		var sub *ast.SelectionSet
		switch sel := sel.(type) {
		case *ast.Field:
			sub = &sel.SelectionSet
		case *ast.InlineFragment:
			sub = &sel.SelectionSet
		}
		if i == last && st.composite {
			*sub = append(*sub, &ast.Field{Name: elision})
		}
		selection = sub
	}

	var buf bytes.Buffer
	formatter.NewFormatter(&buf, formatter.WithIndent("  ")).FormatQueryDocument(&ast.QueryDocument{
		Operations: ast.OperationList{op},
	})

	witness := strings.TrimSuffix(buf.String(), "\n")
	if operation == ast.Query {
		// shorthand form
		witness = strings.TrimPrefix(witness, string(ast.Query)+" ")
	}
	return witness
}

func (st *step) selection(api *federation.Schema) ast.Selection {
	if st.kind == downcastStep {
		return &ast.InlineFragment{TypeCondition: st.name}
	}

	field := &ast.Field{Name: st.name}
	if st.field == nil {
		return field
	}
	for _, arg := range st.field.Arguments {
		if !arg.Type.NonNull || arg.DefaultValue != nil {
			continue
		}
		field.Arguments = append(field.Arguments, &ast.Argument{
			Name:  arg.Name,
			Value: placeholder(api, arg.Type, 0),
		})
	}
	return field
}

// placeholder is a value literal of typ for the required arguments of a witness.
func placeholder(api *federation.Schema, typ *ast.Type, depth int) *ast.Value {
	if typ.Elem != nil {
		return &ast.Value{
			Kind:     ast.ListValue,
			Children: ast.ChildValueList{{Value: placeholder(api, typ.Elem, depth)}},
		}
	}

	switch typ.NamedType {
	case "Int":
		return &ast.Value{Kind: ast.IntValue, Raw: "0"}
	case "Float":
		return &ast.Value{Kind: ast.FloatValue, Raw: "0.0"}
	case "Boolean":
		return &ast.Value{Kind: ast.BooleanValue, Raw: "true"}
	case "String":
		return &ast.Value{Kind: ast.StringValue, Raw: "A string value"}
	case "ID":
		return &ast.Value{Kind: ast.StringValue, Raw: "<any id>"}
	}

	def := api.Type(typ.NamedType)
	if def == nil {
		return &ast.Value{Kind: ast.NullValue, Raw: "null"}
	}
	switch def.Kind {
	case ast.Enum:
		if len(def.EnumValues) != 0 {
			return &ast.Value{Kind: ast.EnumValue, Raw: def.EnumValues[0].Name}
		}
	case ast.InputObject:
		value := &ast.Value{Kind: ast.ObjectValue}
		// recursive input types stop at one level of nesting
		if depth > 1 {
			return value
		}
		for _, field := range def.Fields {
			if !field.Type.NonNull || field.DefaultValue != nil {
				continue
			}
			value.Children = append(value.Children, &ast.ChildValue{Name: field.Name, Value: placeholder(api, field.Type, depth+1)})
		}
		return value
	}
	return &ast.Value{Kind: ast.StringValue, Raw: "<any value>"}
}
