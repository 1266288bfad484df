package federation

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/parser"
	"github.com/vektah/gqlparser/v2/validator"
	_ "github.com/vektah/gqlparser/v2/validator/rules"
	"github.com/vvakame/fedgraph/internal/utils"
)

const fieldSetCacheSize = 512

const fieldSetFragmentName = "__fieldSet"

// checkedRules are the validation rules checkFieldSet already covers.
var checkedRules = map[string]bool{
	"FieldsOnCorrectType":       true,
	"FragmentsOnCompositeTypes": true,
	"KnownArgumentNames":        true,
	"KnownTypeNames":            true,
	"PossibleFragmentSpreads":   true,
	"ScalarLeafs":               true,
}

type fieldSetKey struct {
	typeName string
	fields   string
}

type fieldSetResult struct {
	selection ast.SelectionSet
	problems  []string
}

// ParseFieldSet parses fields as a selection set on typeName and checks it:
// every field must exist, and aliases, variables, named fragments and
// inline fragments on a type that can't be typeName are rejected.
// The returned selection set is shared and must not be modified.
func (s *Schema) ParseFieldSet(typeName, fields string) (ast.SelectionSet, error) {
	result := s.fieldSet(typeName, fields)
	if len(result.problems) != 0 {
		return nil, gqlerror.Errorf("%s", strings.Join(result.problems, " "))
	}
	return result.selection, nil
}

func (s *Schema) fieldSet(typeName, fields string) *fieldSetResult {
	key := fieldSetKey{typeName: typeName, fields: fields}
	if result, ok := s.fieldSets.Get(key); ok {
		return result
	}
	result := s.parseFieldSet(typeName, fields)
	s.fieldSets.Add(key, result)
	return result
}

func (s *Schema) parseFieldSet(typeName, fields string) *fieldSetResult {
	if s.AST.Types[typeName] == nil {
		return &fieldSetResult{problems: []string{fmt.Sprintf("Unknown type %q.", typeName)}}
	}

	body := strings.TrimSpace(fields)
	if !strings.HasPrefix(body, "{") {
		body = "{" + body + "}"
	}
	doc, err := parser.ParseQuery(&ast.Source{
		Name:  "FieldSet",
		Input: fmt.Sprintf("fragment %s on %s %s", fieldSetFragmentName, typeName, body),
	})
	if err != nil {
		return &fieldSetResult{problems: []string{errorMessage(err)}}
	}
	if len(doc.Operations) != 0 || len(doc.Fragments) != 1 {
		return &fieldSetResult{problems: []string{"Invalid field set: it must be a single selection set."}}
	}
	selection := doc.Fragments[0].SelectionSet
	if len(selection) == 0 {
		return &fieldSetResult{problems: []string{"Invalid empty field set."}}
	}

	var problems []string
	s.checkFieldSet(s.AST.Types[typeName], selection, &problems)

	// argument values are left to the validator
	for _, gErr := range validator.Validate(s.AST, doc) {
		if checkedRules[gErr.Rule] || strings.Contains(gErr.Message, fieldSetFragmentName) {
			// the synthetic fragment is never spread
			continue
		}
		if !containsString(problems, gErr.Message) {
			problems = append(problems, gErr.Message)
		}
	}

	if len(problems) != 0 {
		return &fieldSetResult{problems: problems}
	}
	return &fieldSetResult{selection: selection}
}

// checkFieldSet walks selection on parent, binding field definitions and
// recording every selection the field set grammar or the schema rejects.
func (s *Schema) checkFieldSet(parent *ast.Definition, selection ast.SelectionSet, problems *[]string) {
	report := func(format string, args ...interface{}) {
		*problems = append(*problems, fmt.Sprintf(format, args...))
	}
	for _, sel := range selection {
		switch sel := sel.(type) {
		case *ast.Field:
			if sel.Alias != "" && sel.Alias != sel.Name {
				report("Cannot use alias %q in %q: aliases are not currently supported in field sets.", sel.Alias, sel.Name)
			}
			for _, arg := range sel.Arguments {
				if hasVariable(arg.Value) {
					report("Cannot use variables in the arguments of %q: field sets are not operations.", sel.Name)
				}
			}
			if len(sel.Directives) != 0 {
				report("Cannot use directives on %q in a field set.", sel.Name)
			}

			sel.ObjectDefinition = parent
			if sel.Name == "__typename" {
				sel.Definition = &ast.FieldDefinition{Name: "__typename", Type: ast.NonNullNamedType("String", nil)}
				if len(sel.SelectionSet) != 0 {
					report("Field %q must not have a selection since type \"String!\" has no subfields.", sel.Name)
				}
				continue
			}
			def := parent.Fields.ForName(sel.Name)
			if def == nil {
				report("Cannot query field %q on type %q.", sel.Name, parent.Name)
				continue
			}
			sel.Definition = def
			for _, arg := range sel.Arguments {
				if def.Arguments.ForName(arg.Name) == nil {
					report("Unknown argument %q on field \"%s.%s\".", arg.Name, parent.Name, sel.Name)
				}
			}

			fieldType := s.AST.Types[def.Type.Name()]
			if fieldType == nil {
				continue
			}
			switch fieldType.Kind {
			case ast.Object, ast.Interface, ast.Union:
				if len(sel.SelectionSet) == 0 {
					report("Field %q of type %q must have a selection of subfields.", sel.Name, def.Type.String())
					continue
				}
				s.checkFieldSet(fieldType, sel.SelectionSet, problems)
			default:
				if len(sel.SelectionSet) != 0 {
					report("Field %q must not have a selection since type %q has no subfields.", sel.Name, def.Type.String())
				}
			}

		case *ast.InlineFragment:
			if len(sel.Directives) != 0 {
				report("Cannot use directives on an inline fragment in a field set.")
			}
			condition := parent
			if sel.TypeCondition != "" {
				condition = s.AST.Types[sel.TypeCondition]
				if condition == nil {
					report("Unknown type %q.", sel.TypeCondition)
					continue
				}
			}
			if !utils.CanSpread(s.AST, condition, parent) {
				report("Fragment cannot be spread here as objects of type %q can never be of type %q.", parent.Name, condition.Name)
				continue
			}
			sel.ObjectDefinition = condition
			s.checkFieldSet(condition, sel.SelectionSet, problems)

		case *ast.FragmentSpread:
			report("Cannot use named fragment %q in a field set.", sel.Name)
		}
	}
}

func containsString(list []string, target string) bool {
	for _, s := range list {
		if s == target {
			return true
		}
	}
	return false
}

func hasVariable(value *ast.Value) bool {
	if value == nil {
		return false
	}
	if value.Kind == ast.Variable {
		return true
	}
	for _, child := range value.Children {
		if hasVariable(child.Value) {
			return true
		}
	}
	return false
}

func errorMessage(err error) string {
	if gErr, ok := err.(*gqlerror.Error); ok {
		return gErr.Message
	}
	return err.Error()
}

// directiveFieldSet parses the field set argument of dir applied on or within typeName,
// turning any problem into a DIRECTIVE_INVALID_FIELDS error pinned on dir.
func (s *Schema) directiveFieldSet(dir *ast.Directive, argName, typeName string) (*FieldSet, *gqlerror.Error) {
	arg := dir.Arguments.ForName(argName)
	if arg == nil || arg.Value == nil || (arg.Value.Kind != ast.StringValue && arg.Value.Kind != ast.BlockValue) {
		value := "null"
		if arg != nil && arg.Value != nil {
			value = arg.Value.String()
		}
		return nil, NewError(
			dir.Position, CodeDirectiveInvalidFields,
			"On type %q, for @%s(%s: %s): Invalid value for argument %q: must be a string.",
			typeName, dir.Name, argName, value, argName,
		)
	}

	result := s.fieldSet(typeName, arg.Value.Raw)
	if len(result.problems) != 0 {
		return nil, NewError(
			dir.Position, CodeDirectiveInvalidFields,
			"On type %q, for @%s(%s: %q): %s",
			typeName, dir.Name, argName, arg.Value.Raw, strings.Join(result.problems, " "),
		)
	}
	return &FieldSet{
		TypeName:  typeName,
		Fields:    arg.Value.Raw,
		Selection: result.selection,
	}, nil
}

// FieldSet is a parsed field set argument.
type FieldSet struct {
	// TypeName is the type the selection applies to.
	TypeName  string
	Fields    string
	Selection ast.SelectionSet
}

// PrintFieldSet renders selection in the compact form used in @key(fields:).
func PrintFieldSet(selection ast.SelectionSet) string {
	if len(selection) == 0 {
		return ""
	}

	var buf bytes.Buffer
	formatter.NewFormatter(&buf).FormatQueryDocument(&ast.QueryDocument{
		Operations: ast.OperationList{{Operation: ast.Query, SelectionSet: selection}},
	})

	// one selection per line between "query {" and the closing brace
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	lines = lines[1 : len(lines)-1]
	for i, line := range lines {
		lines[i] = strings.TrimLeft(line, "\t")
	}
	return strings.Join(lines, " ")
}

// SelectedFieldNames lists "Type.field" for every field selected by selection, nested ones included.
func SelectedFieldNames(selection ast.SelectionSet) []string {
	var names []string
	var walk func(selection ast.SelectionSet)
	walk = func(selection ast.SelectionSet) {
		for _, sel := range selection {
			switch sel := sel.(type) {
			case *ast.Field:
				if sel.ObjectDefinition != nil {
					names = append(names, sel.ObjectDefinition.Name+"."+sel.Name)
				}
				walk(sel.SelectionSet)
			case *ast.InlineFragment:
				walk(sel.SelectionSet)
			}
		}
	}
	walk(selection)
	return names
}
