package reporting

import (
	"sort"
	"time"

	"github.com/ethereum-optimism/infra/op-recorder/types"
)

// NodeType defines the type of node in the result tree
type NodeType string

const (
	NodeTypeRoot      NodeType = "root"      // Root of the tree
	NodeTypeContainer NodeType = "container" // Suite or test context
	NodeTypeTest      NodeType = "test"      // Test case
	NodeTypeFixture   NodeType = "fixture"   // Setup or teardown routine
)

// Node is one entry of the result tree
type Node struct {
	ID       string
	Name     string
	Type     NodeType
	Status   types.Status
	Duration time.Duration
	Before   bool  // fixtures only
	Stats    Stats // containers only

	Children []*Node
	Parent   *Node
	Depth    int

	Result    *types.TestResult
	Container *types.TestResultContainer
}

// Stats counts test cases per status
type Stats struct {
	Total    int
	Passed   int
	Failed   int
	Broken   int
	Skipped  int
	PassRate float64
	Status   types.Status // failed if anything failed or broke
}

// Tree is the hierarchy rebuilt from flushed containers and cases
type Tree struct {
	Root     *Node
	Stats    Stats
	Duration time.Duration

	// Unattached are cases no container claims, shown at the top level
	Unattached []*types.TestResult
}

// BuildTree links containers to their children. Containers holding only cases and
// never referenced by another container are fixture wrappers: their fixtures are
// rendered below the case they guard instead of as a level of their own.
func BuildTree(containers []*types.TestResultContainer, results []*types.TestResult) *Tree {
	cases := make(map[string]*types.TestResult, len(results))
	for _, r := range results {
		cases[r.UUID] = r
	}
	byID := make(map[string]*types.TestResultContainer, len(containers))
	referenced := make(map[string]struct{})
	for _, c := range containers {
		byID[c.UUID] = c
		for _, child := range c.Children {
			referenced[child] = struct{}{}
		}
	}

	// fixtures wrapping each case
	wrappers := make(map[string][]*types.TestResultContainer)
	var tops []*types.TestResultContainer
	for _, c := range containers {
		if _, ok := referenced[c.UUID]; ok {
			continue
		}
		if isWrapper(c, cases) {
			for _, child := range c.Children {
				wrappers[child] = append(wrappers[child], c)
			}
			continue
		}
		tops = append(tops, c)
	}

	tree := &Tree{Root: &Node{ID: "root", Name: "root", Type: NodeTypeRoot}}
	claimed := make(map[string]struct{})
	var build func(parent *Node, c *types.TestResultContainer)
	build = func(parent *Node, c *types.TestResultContainer) {
		node := &Node{
			ID:        c.UUID,
			Name:      c.Name,
			Type:      NodeTypeContainer,
			Duration:  millisDuration(c.Start, c.Stop),
			Container: c,
		}
		addChild(parent, node)
		addFixtures(node, c)
		for _, child := range c.Children {
			if sub, ok := byID[child]; ok {
				build(node, sub)
				continue
			}
			if r, ok := cases[child]; ok {
				claimed[r.UUID] = struct{}{}
				addChild(node, testNode(r, wrappers[r.UUID]))
			}
		}
	}
	for _, c := range tops {
		build(tree.Root, c)
	}
	for _, r := range results {
		if _, ok := claimed[r.UUID]; !ok {
			tree.Unattached = append(tree.Unattached, r)
			addChild(tree.Root, testNode(r, wrappers[r.UUID]))
		}
	}

	sortChildren(tree.Root)
	tree.Stats = computeStats(tree.Root)
	tree.Duration = span(containers, results)
	tree.Root.Duration = tree.Duration
	return tree
}

// span is the wall time from the first start to the last stop
func span(containers []*types.TestResultContainer, results []*types.TestResult) time.Duration {
	var first, last int64
	observe := func(start, stop int64) {
		if start > 0 && (first == 0 || start < first) {
			first = start
		}
		if stop > last {
			last = stop
		}
	}
	for _, c := range containers {
		observe(c.Start, c.Stop)
	}
	for _, r := range results {
		observe(r.Start, r.Stop)
	}
	return millisDuration(first, last)
}

func isWrapper(c *types.TestResultContainer, cases map[string]*types.TestResult) bool {
	if len(c.Children) == 0 {
		return false
	}
	for _, child := range c.Children {
		if _, ok := cases[child]; !ok {
			return false
		}
	}
	return len(c.Befores)+len(c.Afters) > 0
}

func testNode(r *types.TestResult, wrappers []*types.TestResultContainer) *Node {
	node := &Node{
		ID:       r.UUID,
		Name:     r.Name,
		Type:     NodeTypeTest,
		Status:   r.Status,
		Duration: millisDuration(r.Start, r.Stop),
		Result:   r,
	}
	for _, w := range wrappers {
		addFixtures(node, w)
	}
	return node
}

func addFixtures(parent *Node, c *types.TestResultContainer) {
	add := func(f *types.FixtureResult, before bool) {
		addChild(parent, &Node{
			ID:       c.UUID + "/" + f.Name,
			Name:     f.Name,
			Type:     NodeTypeFixture,
			Duration: millisDuration(f.Start, f.Stop),
			Before:   before,
		})
	}
	for _, f := range c.Befores {
		add(f, true)
	}
	for _, f := range c.Afters {
		add(f, false)
	}
}

func addChild(parent, child *Node) {
	child.Parent = parent
	child.Depth = parent.Depth + 1
	parent.Children = append(parent.Children, child)
}

// sortChildren keeps setup fixtures first and teardown fixtures last, with
// containers before tests and tests in execution order.
func sortChildren(node *Node) {
	sort.SliceStable(node.Children, func(i, j int) bool {
		a, b := node.Children[i], node.Children[j]
		if ra, rb := childRank(a), childRank(b); ra != rb {
			return ra < rb
		}
		if a.Type == NodeTypeTest {
			return a.Result.Start < b.Result.Start
		}
		return false
	})
	for _, child := range node.Children {
		sortChildren(child)
	}
}

func childRank(n *Node) int {
	switch {
	case n.Type == NodeTypeFixture && n.Before:
		return 0
	case n.Type == NodeTypeContainer:
		return 1
	case n.Type == NodeTypeTest:
		return 2
	default:
		return 3
	}
}

// computeStats counts cases bottom-up and sets container status from their subtree
func computeStats(node *Node) Stats {
	stats := Stats{}
	if node.Type == NodeTypeTest {
		stats.add(node.Status)
	}
	for _, child := range node.Children {
		stats.merge(computeStats(child))
	}
	stats.finish()
	if node.Type == NodeTypeContainer || node.Type == NodeTypeRoot {
		node.Status = stats.Status
		node.Stats = stats
	}
	return stats
}

func (s *Stats) add(status types.Status) {
	s.Total++
	switch status {
	case types.StatusPassed:
		s.Passed++
	case types.StatusFailed:
		s.Failed++
	case types.StatusBroken:
		s.Broken++
	case types.StatusSkipped:
		s.Skipped++
	}
}

func (s *Stats) merge(o Stats) {
	s.Total += o.Total
	s.Passed += o.Passed
	s.Failed += o.Failed
	s.Broken += o.Broken
	s.Skipped += o.Skipped
}

func (s *Stats) finish() {
	if s.Total > 0 {
		s.PassRate = float64(s.Passed) / float64(s.Total) * 100
	}
	switch {
	case s.Failed > 0 || s.Broken > 0:
		s.Status = types.StatusFailed
	case s.Passed > 0:
		s.Status = types.StatusPassed
	case s.Skipped > 0:
		s.Status = types.StatusSkipped
	default:
		s.Status = ""
	}
}

// CountStatuses counts cases per status without building a tree
func CountStatuses(results []*types.TestResult) Stats {
	stats := Stats{}
	for _, r := range results {
		stats.add(r.Status)
	}
	stats.finish()
	return stats
}

// HasFailures reports whether any case failed or broke
func (s Stats) HasFailures() bool {
	return s.Failed > 0 || s.Broken > 0
}

// Walk traverses the tree depth first; returning false skips a node's children
func (t *Tree) Walk(visitor func(*Node) bool) {
	walk(t.Root, visitor)
}

func walk(node *Node, visitor func(*Node) bool) {
	if !visitor(node) {
		return
	}
	for _, child := range node.Children {
		walk(child, visitor)
	}
}

func millisDuration(start, stop int64) time.Duration {
	if stop <= start {
		return 0
	}
	return time.Duration(stop-start) * time.Millisecond
}
