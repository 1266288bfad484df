package plan

import (
	"bytes"
	"fmt"
	"io"
	"strings"
)

type Formatter interface {
	FormatQueryPlan(queryPlan *QueryPlan)
}

func NewFormatter(w io.Writer) Formatter {
	return &formatter{writer: w}
}

// Format prints queryPlan the way Formatter does.
func Format(queryPlan *QueryPlan) string {
	var buf bytes.Buffer
	NewFormatter(&buf).FormatQueryPlan(queryPlan)
	return buf.String()
}

type formatter struct {
	writer io.Writer

	indent int

	padNext  bool
	lineHead bool
}

func (f *formatter) writeString(s string) {
	_, _ = f.writer.Write([]byte(s))
}

func (f *formatter) writeIndent() *formatter {
	if f.lineHead {
		f.writeString(strings.Repeat("  ", f.indent))
	}
	f.lineHead = false
	f.padNext = false

	return f
}

func (f *formatter) WriteNewline() *formatter {
	f.writeString("\n")
	f.lineHead = true
	f.padNext = false

	return f
}

func (f *formatter) WriteWord(word string) *formatter {
	if f.lineHead {
		f.writeIndent()
	}
	if f.padNext {
		f.writeString(" ")
	}
	f.writeString(strings.TrimSpace(word))
	f.padNext = true

	return f
}

func (f *formatter) WriteString(s string) *formatter {
	if f.lineHead {
		f.writeIndent()
	}
	if f.padNext {
		f.writeString(" ")
	}
	f.writeString(s)
	f.padNext = false

	return f
}

func (f *formatter) IncrementIndent() {
	f.indent++
}

func (f *formatter) DecrementIndent() {
	f.indent--
}

func (f *formatter) NoPadding() *formatter {
	f.padNext = false

	return f
}

// openBlock ends the current line with "{" and indents what follows.
func (f *formatter) openBlock() {
	f.WriteWord("{").WriteNewline()
	f.IncrementIndent()
}

func (f *formatter) closeBlock(trailer string) {
	f.DecrementIndent()
	f.WriteWord("}").NoPadding().WriteString(trailer).WriteNewline()
}

func (f *formatter) FormatQueryPlan(queryPlan *QueryPlan) {
	f.WriteWord("QueryPlan")
	f.openBlock()
	if queryPlan.Node != nil {
		f.FormatPlanNode(queryPlan.Node, "")
	}
	f.closeBlock("")
}

func (f *formatter) FormatPlanNode(node PlanNode, trailer string) {
	switch node := node.(type) {
	case *FetchNode:
		f.WriteString(fmt.Sprintf(`Fetch(service: "%s")`, node.ServiceName)).NeedPadding()
		f.openBlock()

		if len(node.Requires) != 0 {
			f.FormatQueryPlanSelectionNodes(node.Requires, " =>")
		}
		for _, line := range strings.Split(strings.TrimRight(node.Operation, "\n"), "\n") {
			f.WriteString(strings.ReplaceAll(line, "\t", "  ")).WriteNewline()
		}

		f.closeBlock(trailer)

	case *FlattenNode:
		f.WriteString(fmt.Sprintf(`Flatten(path: "%s")`, node.Path.String())).NeedPadding()
		f.openBlock()
		f.FormatPlanNode(node.Node, "")
		f.closeBlock(trailer)

	case *SequenceNode:
		f.WriteWord("Sequence")
		f.openBlock()
		f.formatPlanNodes(node.Nodes)
		f.closeBlock(trailer)

	case *ParallelNode:
		f.WriteWord("Parallel")
		f.openBlock()
		f.formatPlanNodes(node.Nodes)
		f.closeBlock(trailer)

	default:
		panic(fmt.Sprintf("unknown type: %T", node))
	}
}

func (f *formatter) formatPlanNodes(nodes []PlanNode) {
	for _, node := range nodes {
		if node == nil {
			continue
		}
		f.FormatPlanNode(node, ",")
	}
}

func (f *formatter) NeedPadding() *formatter {
	f.padNext = true

	return f
}

func (f *formatter) FormatQueryPlanSelectionNodes(nodes []QueryPlanSelectionNode, trailer string) {
	f.openBlock()
	for _, node := range nodes {
		f.FormatQueryPlanSelectionNode(node)
	}
	f.closeBlock(trailer)
}

func (f *formatter) FormatQueryPlanSelectionNode(node QueryPlanSelectionNode) {
	switch node := node.(type) {
	case *QueryPlanFieldNode:
		if node.Alias != "" {
			f.WriteString(node.Alias + ":")
			f.NeedPadding()
		}
		f.WriteWord(node.Name)

		if len(node.Selections) != 0 {
			f.FormatQueryPlanSelectionNodes(node.Selections, "")
		} else {
			f.WriteNewline()
		}

	case *QueryPlanInlineFragmentNode:
		f.WriteWord("... on")
		f.WriteWord(node.TypeCondition)
		f.FormatQueryPlanSelectionNodes(node.Selections, "")

	default:
		panic(fmt.Sprintf("unknown type: %T", node))
	}
}
