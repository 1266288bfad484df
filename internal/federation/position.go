package federation

import (
	"fmt"
	"sync/atomic"

	"github.com/vektah/gqlparser/v2/ast"
)

type PositionKind uint8

const (
	PositionSchema PositionKind = iota
	PositionObjectType
	PositionInterfaceType
	PositionUnionType
	PositionEnumType
	PositionScalarType
	PositionInputObjectType
	PositionField
	PositionInputField
	PositionArgument
	PositionEnumValue
	PositionUnionMember
	PositionDirectiveApplication

	positionKindCount
)

func (k PositionKind) String() string {
	switch k {
	case PositionSchema:
		return "Schema"
	case PositionObjectType:
		return "ObjectType"
	case PositionInterfaceType:
		return "InterfaceType"
	case PositionUnionType:
		return "UnionType"
	case PositionEnumType:
		return "EnumType"
	case PositionScalarType:
		return "ScalarType"
	case PositionInputObjectType:
		return "InputObjectType"
	case PositionField:
		return "Field"
	case PositionInputField:
		return "InputField"
	case PositionArgument:
		return "Argument"
	case PositionEnumValue:
		return "EnumValue"
	case PositionUnionMember:
		return "UnionMember"
	case PositionDirectiveApplication:
		return "DirectiveApplication"
	default:
		return fmt.Sprintf("PositionKind(%d)", k)
	}
}

// IsType reports whether positions of this kind address a named type.
func (k PositionKind) IsType() bool {
	return k >= PositionObjectType && k <= PositionInputObjectType
}

func typePositionKind(kind ast.DefinitionKind) PositionKind {
	switch kind {
	case ast.Object:
		return PositionObjectType
	case ast.Interface:
		return PositionInterfaceType
	case ast.Union:
		return PositionUnionType
	case ast.Enum:
		return PositionEnumType
	case ast.InputObject:
		return PositionInputObjectType
	default:
		return PositionScalarType
	}
}

// Position is an opaque handle to an element of one Schema.
// Positions are plain values: equal positions address the same element,
// and they must only be dereferenced through the Schema that issued them.
type Position struct {
	owner uint32
	Kind  PositionKind
	Index int32
}

func (p Position) String() string {
	return fmt.Sprintf("%s#%d", p.Kind, p.Index)
}

var schemaIDSeq uint32

type element struct {
	parent    Position
	hasParent bool
	name      string
	// node is one of *ast.SchemaDefinition, *ast.Definition, *ast.FieldDefinition,
	// *ast.ArgumentDefinition, *ast.EnumValueDefinition, *ast.Directive.
	// Union members keep the member type name only.
	node      interface{}
	extension bool
}

// arena owns the elements addressed by positions.
type arena struct {
	id       uint32
	elements [positionKindCount][]element
}

func newArena() *arena {
	return &arena{id: atomic.AddUint32(&schemaIDSeq, 1)}
}

func (a *arena) push(kind PositionKind, e element) Position {
	a.elements[kind] = append(a.elements[kind], e)
	return Position{
		owner: a.id,
		Kind:  kind,
		Index: int32(len(a.elements[kind]) - 1),
	}
}

func (a *arena) get(pos Position) *element {
	if pos.owner != a.id {
		panic(fmt.Sprintf("PositionOutlivedFacade: %s was issued by schema #%d, dereferenced against schema #%d", pos, pos.owner, a.id))
	}
	list := a.elements[pos.Kind]
	if pos.Index < 0 || int(pos.Index) >= len(list) {
		panic(fmt.Sprintf("PositionOutlivedFacade: %s is out of range", pos))
	}
	return &list[pos.Index]
}

func (a *arena) positions(kind PositionKind) []Position {
	result := make([]Position, 0, len(a.elements[kind]))
	for i := range a.elements[kind] {
		result = append(result, Position{owner: a.id, Kind: kind, Index: int32(i)})
	}
	return result
}
