package federation

import (
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

// argumentValues coerces the arguments of a directive application against its definition.
// Omitted arguments take the definition's default value.
func argumentValues(def *ast.DirectiveDefinition, node *ast.Directive) (map[string]interface{}, error) {
	coercedValues := make(map[string]interface{})
	if def == nil {
		for _, arg := range node.Arguments {
			value, err := arg.Value.Value(nil)
			if err != nil {
				return nil, err
			}
			coercedValues[arg.Name] = value
		}
		return coercedValues, nil
	}

	for _, argDef := range def.Arguments {
		name := argDef.Name
		argType := argDef.Type
		argumentNode := node.Arguments.ForName(name)

		if argumentNode == nil || argumentNode.Value == nil {
			if argDef.DefaultValue != nil {
				value, err := argDef.DefaultValue.Value(nil)
				if err != nil {
					return nil, err
				}
				coercedValues[name] = value
			} else if argType.NonNull {
				return nil, gqlerror.ErrorPosf(node.Position, `argument "%s" of required type "%s" was not provided`, name, argType.String())
			}
			continue
		}

		valueNode := argumentNode.Value
		if valueNode.Kind == ast.Variable {
			return nil, gqlerror.ErrorPosf(valueNode.Position, `argument "%s" of @%s can't use a variable`, name, node.Name)
		}
		if valueNode.Kind == ast.NullValue && argType.NonNull {
			return nil, gqlerror.ErrorPosf(
				valueNode.Position,
				`argument "%s" of non-null type "%s" must not be null`,
				name, argType.String(),
			)
		}

		coercedValue, err := valueNode.Value(nil)
		if err != nil {
			return nil, err
		}
		coercedValues[name] = coercedValue
	}

	return coercedValues, nil
}

func (s *Schema) directiveArguments(dir *ast.Directive) (map[string]interface{}, error) {
	return argumentValues(s.AST.Directives[dir.Name], dir)
}

func stringArgument(values map[string]interface{}, name string) (string, bool) {
	v, ok := values[name].(string)
	return v, ok
}

func boolArgument(values map[string]interface{}, name string, defaultValue bool) bool {
	v, ok := values[name].(bool)
	if !ok {
		return defaultValue
	}
	return v
}
