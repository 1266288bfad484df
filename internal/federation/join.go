package federation

import (
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vvakame/fedgraph/internal/link"
)

// JoinGraph is one value of the join__Graph enum of a supergraph.
type JoinGraph struct {
	EnumValue string
	Name      string
	URL       string
	Position  Position
}

// JoinType is one @join__type application.
type JoinType struct {
	Graph             string
	Key               string
	HasKey            bool
	Extension         bool
	Resolvable        bool
	IsInterfaceObject bool
	Position          Position
}

// JoinField is one @join__field application. Graph is empty for an
// application without graph, which only marks the field as not owned by anyone.
type JoinField struct {
	Graph          string
	Requires       string
	Provides       string
	Type           string
	Override       string
	External       bool
	UsedOverridden bool
	Position       Position
}

type JoinImplements struct {
	Graph     string
	Interface string
	Position  Position
}

type JoinUnionMember struct {
	Graph    string
	Member   string
	Position Position
}

// JoinSpecVersion is the version of the linked join spec, ok is false when join isn't linked.
func (s *Schema) JoinSpecVersion() (link.Version, bool) {
	l := s.Links.ForIdentity(link.JoinIdentity)
	if l == nil {
		return link.Version{}, false
	}
	return l.URL.Version, true
}

// JoinGraphs lists the join__Graph values in declaration order.
func (s *Schema) JoinGraphs() ([]*JoinGraph, error) {
	enumName, ok := s.Links.TypeName(link.JoinIdentity, "Graph")
	if !ok {
		return nil, nil
	}
	def := s.AST.Types[enumName]
	if def == nil || def.Kind != ast.Enum {
		return nil, nil
	}

	var graphs []*JoinGraph
	var errs gqlerror.List
	for _, value := range def.EnumValues {
		valuePos, ok := s.FieldPosition(enumName, value.Name)
		if !ok {
			continue
		}
		applications := s.ApplicationsOn(valuePos, link.JoinIdentity, "graph")
		if len(applications) == 0 {
			errs = append(errs, NewError(value.Position, CodeInvalidSubgraph, "Value %s of join__Graph should have a @join__graph directive", value.Name))
			continue
		}
		values, err := s.directiveArguments(s.DirectiveApplication(applications[0]))
		if err != nil {
			errs = append(errs, NewError(value.Position, CodeInvalidSubgraph, "Invalid @join__graph on %s: %s", value.Name, errorMessage(err)))
			continue
		}
		name, _ := stringArgument(values, "name")
		url, _ := stringArgument(values, "url")
		graphs = append(graphs, &JoinGraph{
			EnumValue: value.Name,
			Name:      name,
			URL:       url,
			Position:  valuePos,
		})
	}
	if len(errs) != 0 {
		return graphs, errs
	}
	return graphs, nil
}

func (s *Schema) joinApplications(host Position, canonical string, fn func(pos Position, values map[string]interface{})) error {
	var errs gqlerror.List
	for _, pos := range s.ApplicationsOn(host, link.JoinIdentity, canonical) {
		dir := s.DirectiveApplication(pos)
		values, err := s.directiveArguments(dir)
		if err != nil {
			errs = append(errs, NewError(dir.Position, CodeInvalidSubgraph, "Invalid @%s on %s: %s", dir.Name, s.Coordinate(host), errorMessage(err)))
			continue
		}
		fn(pos, values)
	}
	if len(errs) != 0 {
		return errs
	}
	return nil
}

// JoinTypes lists the @join__type applications of typeName.
func (s *Schema) JoinTypes(typeName string) ([]*JoinType, error) {
	host, ok := s.TypePosition(typeName)
	if !ok {
		return nil, nil
	}
	var result []*JoinType
	err := s.joinApplications(host, "type", func(pos Position, values map[string]interface{}) {
		joinType := &JoinType{
			Extension:         boolArgument(values, "extension", false),
			Resolvable:        boolArgument(values, "resolvable", true),
			IsInterfaceObject: boolArgument(values, "isInterfaceObject", false),
			Position:          pos,
		}
		joinType.Graph, _ = stringArgument(values, "graph")
		joinType.Key, joinType.HasKey = stringArgument(values, "key")
		result = append(result, joinType)
	})
	return result, err
}

// JoinFields lists the @join__field applications of a field or input field.
func (s *Schema) JoinFields(typeName, fieldName string) ([]*JoinField, error) {
	host, ok := s.FieldPosition(typeName, fieldName)
	if !ok {
		return nil, nil
	}
	var result []*JoinField
	err := s.joinApplications(host, "field", func(pos Position, values map[string]interface{}) {
		joinField := &JoinField{
			External:       boolArgument(values, "external", false),
			UsedOverridden: boolArgument(values, "usedOverridden", false),
			Position:       pos,
		}
		joinField.Graph, _ = stringArgument(values, "graph")
		joinField.Requires, _ = stringArgument(values, "requires")
		joinField.Provides, _ = stringArgument(values, "provides")
		joinField.Type, _ = stringArgument(values, "type")
		joinField.Override, _ = stringArgument(values, "override")
		result = append(result, joinField)
	})
	return result, err
}

// JoinImplements lists the @join__implements applications of typeName.
func (s *Schema) JoinImplements(typeName string) ([]*JoinImplements, error) {
	host, ok := s.TypePosition(typeName)
	if !ok {
		return nil, nil
	}
	var result []*JoinImplements
	err := s.joinApplications(host, "implements", func(pos Position, values map[string]interface{}) {
		implements := &JoinImplements{Position: pos}
		implements.Graph, _ = stringArgument(values, "graph")
		implements.Interface, _ = stringArgument(values, "interface")
		result = append(result, implements)
	})
	return result, err
}

// JoinUnionMembers lists the @join__unionMember applications of a union.
func (s *Schema) JoinUnionMembers(typeName string) ([]*JoinUnionMember, error) {
	host, ok := s.TypePosition(typeName)
	if !ok {
		return nil, nil
	}
	var result []*JoinUnionMember
	err := s.joinApplications(host, "unionMember", func(pos Position, values map[string]interface{}) {
		member := &JoinUnionMember{Position: pos}
		member.Graph, _ = stringArgument(values, "graph")
		member.Member, _ = stringArgument(values, "member")
		result = append(result, member)
	})
	return result, err
}

// JoinEnumValues lists the graphs of the @join__enumValue applications of an enum value.
func (s *Schema) JoinEnumValues(enumName, valueName string) ([]string, error) {
	host, ok := s.FieldPosition(enumName, valueName)
	if !ok {
		return nil, nil
	}
	var graphs []string
	err := s.joinApplications(host, "enumValue", func(pos Position, values map[string]interface{}) {
		if graph, ok := stringArgument(values, "graph"); ok {
			graphs = append(graphs, graph)
		}
	})
	return graphs, err
}

// JoinOwner returns the graph of a join v0.1 @join__owner application.
func (s *Schema) JoinOwner(typeName string) (string, bool, error) {
	host, ok := s.TypePosition(typeName)
	if !ok {
		return "", false, nil
	}
	var owner string
	var found bool
	err := s.joinApplications(host, "owner", func(pos Position, values map[string]interface{}) {
		owner, found = stringArgument(values, "graph")
	})
	return owner, found, err
}
