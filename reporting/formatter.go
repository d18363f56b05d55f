package reporting

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-recorder/types"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Tree connectors
const (
	treeBranch     = "├── "
	treeLastBranch = "└── "
	treeContinue   = "│   "
	treeIndent     = "    "
)

// TreeFormatter renders a result tree as an ASCII table
type TreeFormatter struct {
	title        string
	showFixtures bool
}

// NewTreeFormatter creates a new tree formatter
func NewTreeFormatter(title string, showFixtures bool) *TreeFormatter {
	return &TreeFormatter{title: title, showFixtures: showFixtures}
}

// Format formats a result tree as an ASCII table
func (f *TreeFormatter) Format(tree *Tree) (string, error) {
	var buf bytes.Buffer

	t := table.NewWriter()
	t.SetOutputMirror(&buf)
	t.SetTitle(f.title)
	t.AppendHeader(table.Row{"TYPE", "NAME", "DURATION", "TESTS", "PASSED", "FAILED", "BROKEN", "SKIPPED", "STATUS"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "TYPE", AutoMerge: true},
		{Name: "NAME", WidthMax: 200, WidthMaxEnforcer: text.WrapSoft},
		{Name: "DURATION", Align: text.AlignRight},
		{Name: "TESTS", Align: text.AlignRight},
		{Name: "PASSED", Align: text.AlignRight},
		{Name: "FAILED", Align: text.AlignRight},
		{Name: "BROKEN", Align: text.AlignRight},
		{Name: "SKIPPED", Align: text.AlignRight},
	})

	tree.Walk(func(node *Node) bool {
		if node.Type == NodeTypeRoot {
			return true
		}
		if !f.visible(node) {
			return false
		}
		f.addNodeRow(t, node)
		return true
	})

	switch {
	case tree.Stats.HasFailures():
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	case tree.Stats.Skipped > 0:
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	case tree.Stats.Passed > 0:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	default:
		t.SetStyle(table.StyleDefault)
	}

	t.AppendFooter(table.Row{
		"TOTAL",
		"",
		formatDuration(tree.Duration),
		tree.Stats.Total,
		tree.Stats.Passed,
		tree.Stats.Failed,
		tree.Stats.Broken,
		tree.Stats.Skipped,
		statusText(tree.Stats.Status),
	})

	t.Render()
	return buf.String(), nil
}

func (f *TreeFormatter) visible(node *Node) bool {
	return f.showFixtures || node.Type != NodeTypeFixture
}

func (f *TreeFormatter) addNodeRow(t table.Writer, node *Node) {
	name := f.treePrefix(node) + node.Name
	switch node.Type {
	case NodeTypeTest:
		t.AppendRow(table.Row{
			"Test", name, formatDuration(node.Duration), 1,
			boolToInt(node.Status == types.StatusPassed),
			boolToInt(node.Status == types.StatusFailed),
			boolToInt(node.Status == types.StatusBroken),
			boolToInt(node.Status == types.StatusSkipped),
			statusText(node.Status),
		})
	case NodeTypeFixture:
		kind := "After"
		if node.Before {
			kind = "Before"
		}
		t.AppendRow(table.Row{kind, name, formatDuration(node.Duration), "-", "-", "-", "-", "-", ""})
	default:
		stats := node.Stats
		t.AppendRow(table.Row{
			"Container", name, formatDuration(node.Duration),
			stats.Total, stats.Passed, stats.Failed, stats.Broken, stats.Skipped,
			statusText(node.Status),
		})
	}
}

// treePrefix builds the box-drawing prefix for a node from the position of its
// ancestors among their visible siblings
func (f *TreeFormatter) treePrefix(node *Node) string {
	if node.Parent == nil || node.Parent.Type == NodeTypeRoot {
		return ""
	}
	var parentIsLast []bool
	for cur := node.Parent; cur.Parent != nil && cur.Parent.Type != NodeTypeRoot; cur = cur.Parent {
		parentIsLast = append([]bool{f.isLastSibling(cur)}, parentIsLast...)
	}

	var prefix strings.Builder
	for _, last := range parentIsLast {
		if last {
			prefix.WriteString(treeIndent)
		} else {
			prefix.WriteString(treeContinue)
		}
	}
	if f.isLastSibling(node) {
		prefix.WriteString(treeLastBranch)
	} else {
		prefix.WriteString(treeBranch)
	}
	return prefix.String()
}

func (f *TreeFormatter) isLastSibling(node *Node) bool {
	if node.Parent == nil {
		return true
	}
	var last *Node
	for _, sibling := range node.Parent.Children {
		if f.visible(sibling) {
			last = sibling
		}
	}
	return last == node
}

func statusText(status types.Status) string {
	if status == "" {
		return "UNKNOWN"
	}
	return strings.ToUpper(string(status))
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Truncate(time.Millisecond).String()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
