package federation

import (
	"errors"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

const (
	CodeDirectiveInvalidFields   = "DIRECTIVE_INVALID_FIELDS"
	CodeMissingFederationLink    = "MISSING_FEDERATION_LINK"
	CodeKeyFieldsSelectExternal  = "KEY_FIELDS_SELECT_EXTERNAL"
	CodeExternalUnused           = "EXTERNAL_UNUSED"
	CodeReservedFieldUsed        = "RESERVED_FIELD_USED"
	CodeDuplicateSubgraph        = "DUPLICATE_SUBGRAPH"
	CodeInvalidSubgraph          = "INVALID_SUBGRAPH"
	CodeProvidesOnNonComposite   = "PROVIDES_ON_NON_OBJECT_FIELD"
	CodeInterfaceObjectMisplaced = "INTERFACE_OBJECT_USAGE_ERROR"
)

// NewError builds a diagnostic carrying code in its extensions.
func NewError(pos *ast.Position, code string, format string, args ...interface{}) *gqlerror.Error {
	var gErr *gqlerror.Error
	if pos == nil || pos.Src == nil {
		gErr = gqlerror.Errorf(format, args...)
	} else {
		gErr = gqlerror.ErrorPosf(pos, format, args...)
	}
	if gErr.Extensions == nil {
		gErr.Extensions = make(map[string]interface{})
	}
	gErr.Extensions["code"] = code
	return gErr
}

// ErrorCode returns the code of err, looking at the first error when err is a list.
func ErrorCode(err error) string {
	var gErr *gqlerror.Error
	if errors.As(err, &gErr) {
		code, _ := gErr.Extensions["code"].(string)
		return code
	}
	var gErrs gqlerror.List
	if errors.As(err, &gErrs) && len(gErrs) != 0 {
		return ErrorCode(gErrs[0])
	}
	return ""
}

// ErrorCodes lists the codes of every error err holds.
func ErrorCodes(err error) []string {
	gErrs := asErrors(err)
	if len(gErrs) == 0 {
		return nil
	}
	codes := make([]string, 0, len(gErrs))
	for _, gErr := range gErrs {
		codes = append(codes, ErrorCode(gErr))
	}
	return codes
}

// astPosition is the parser position of the element at pos, when it has one.
func (s *Schema) astPosition(pos Position) *ast.Position {
	switch node := s.Lookup(pos).(type) {
	case *ast.SchemaDefinition:
		return node.Position
	case *ast.Definition:
		return node.Position
	case *ast.FieldDefinition:
		return node.Position
	case *ast.ArgumentDefinition:
		return node.Position
	case *ast.EnumValueDefinition:
		return node.Position
	case *ast.Directive:
		return node.Position
	default:
		if parent, ok := s.Parent(pos); ok {
			return s.astPosition(parent)
		}
		return nil
	}
}
