package querygraph

import (
	"fmt"

	"github.com/goccy/go-yaml"
	"github.com/vvakame/fedgraph/internal/federation"
)

type dumpGraph struct {
	Vertices []string    `yaml:"vertices"`
	Edges    []*dumpEdge `yaml:"edges"`
}

type dumpEdge struct {
	Kind       string `yaml:"kind"`
	Head       string `yaml:"head"`
	Tail       string `yaml:"tail"`
	Label      string `yaml:"label,omitempty"`
	Conditions string `yaml:"conditions,omitempty"`
	Provides   string `yaml:"provides,omitempty"`
	External   bool   `yaml:"external,omitempty"`
}

// Dump renders the graph as YAML, vertices and edges in index order.
func Dump(g *Graph) ([]byte, error) {
	d := &dumpGraph{}
	for _, v := range g.Vertices {
		s := v.String()
		if v.Root != "" {
			s += fmt.Sprintf(" root:%s", v.Root)
		}
		if v.InterfaceObject {
			s += " interfaceObject"
		}
		d.Vertices = append(d.Vertices, s)
	}
	for _, e := range g.Edges {
		de := &dumpEdge{
			Kind:     e.Kind.String(),
			Head:     g.Vertices[e.Head].String(),
			Tail:     g.Vertices[e.Tail].String(),
			External: e.External,
		}
		switch e.Kind {
		case FieldCollection:
			de.Label = e.FieldName
		case Downcast, InterfaceObjectFakeDownCast:
			de.Label = "... on " + e.TypeCondition
		}
		if e.Conditions != nil {
			de.Conditions = federation.PrintFieldSet(e.Conditions.Selection)
		}
		if e.Provides != nil {
			de.Provides = federation.PrintFieldSet(e.Provides.Selection)
		}
		d.Edges = append(d.Edges, de)
	}
	return yaml.Marshal(d)
}
