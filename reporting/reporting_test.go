package reporting

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum-optimism/infra/op-recorder/lifecycle"
	"github.com/ethereum-optimism/infra/op-recorder/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleNodes() ([]*types.TestResultContainer, []*types.TestResult) {
	results := []*types.TestResult{
		{UUID: "t1", Name: "first", Status: types.StatusPassed, Start: 10, Stop: 20},
		{UUID: "t2", Name: "second", Status: types.StatusFailed, Start: 30, Stop: 45},
		{UUID: "t3", Name: "third", Status: types.StatusSkipped, Start: 50, Stop: 50},
		{UUID: "t4", Name: "orphan", Status: types.StatusBroken, Start: 60, Stop: 70},
	}
	containers := []*types.TestResultContainer{
		{UUID: "suite", Name: "S", Start: 1, Stop: 100, Children: []string{"ctx"},
			Befores: []*types.FixtureResult{{Name: "beforeSuite", Start: 2, Stop: 3}}},
		{UUID: "ctx", Name: "C", Start: 5, Stop: 90, Children: []string{"t1", "t2", "t3"}},
		{UUID: "wrap", Name: "pkg.Cls.setUp", Start: 8, Stop: 9, Children: []string{"t1"},
			Befores: []*types.FixtureResult{{Name: "setUp", Start: 8, Stop: 9}}},
	}
	return containers, results
}

func TestBuildTree(t *testing.T) {
	containers, results := sampleNodes()
	tree := BuildTree(containers, results)

	require.Len(t, tree.Root.Children, 2, "suite plus the unattached case")
	suite := tree.Root.Children[0]
	assert.Equal(t, "S", suite.Name)
	require.Len(t, suite.Children, 2)
	assert.Equal(t, NodeTypeFixture, suite.Children[0].Type)
	assert.True(t, suite.Children[0].Before)

	ctx := suite.Children[1]
	assert.Equal(t, "C", ctx.Name)
	require.Len(t, ctx.Children, 3)
	first := ctx.Children[0]
	assert.Equal(t, "first", first.Name)
	require.Len(t, first.Children, 1, "wrapper fixture shown under the case it guards")
	assert.Equal(t, "setUp", first.Children[0].Name)

	assert.Equal(t, types.StatusFailed, ctx.Status)
	assert.Equal(t, 3, ctx.Stats.Total)

	require.Len(t, tree.Unattached, 1)
	assert.Equal(t, "t4", tree.Unattached[0].UUID)

	assert.Equal(t, Stats{Total: 4, Passed: 1, Failed: 1, Broken: 1, Skipped: 1, PassRate: 25, Status: types.StatusFailed}, tree.Stats)
	assert.True(t, tree.Stats.HasFailures())
	assert.Equal(t, int64(99), tree.Duration.Milliseconds())
}

func TestCountStatuses(t *testing.T) {
	_, results := sampleNodes()
	stats := CountStatuses(results[:1])
	assert.Equal(t, types.StatusPassed, stats.Status)
	assert.False(t, stats.HasFailures())

	assert.Equal(t, types.Status(""), CountStatuses(nil).Status)
}

func TestTreeFormatter(t *testing.T) {
	containers, results := sampleNodes()
	tree := BuildTree(containers, results)

	out, err := NewTreeFormatter("Results", true).Format(tree)
	require.NoError(t, err)
	assert.Contains(t, out, "Results")
	assert.Contains(t, out, "└── C")
	assert.Contains(t, out, "setUp")
	assert.Contains(t, out, "TOTAL")
	assert.Contains(t, out, "BROKEN")

	out, err = NewTreeFormatter("Results", false).Format(tree)
	require.NoError(t, err)
	assert.NotContains(t, out, "setUp")
	assert.NotContains(t, out, "beforeSuite")
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	w, err := lifecycle.NewFileSystemResultsWriter(dir)
	require.NoError(t, err)

	containers, results := sampleNodes()
	for _, r := range results {
		require.NoError(t, w.WriteResult(r))
	}
	for _, c := range containers {
		require.NoError(t, w.WriteContainer(c))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	loaded, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, loaded.Cases, 4)
	require.Len(t, loaded.Containers, 3)
	assert.Equal(t, "t1", loaded.Cases[0].UUID, "sorted by start")
	assert.Equal(t, "suite", loaded.Containers[0].UUID)

	tree := BuildTree(loaded.Containers, loaded.Cases)
	assert.Equal(t, 4, tree.Stats.Total)
}

func TestLoadDirErrors(t *testing.T) {
	_, err := LoadDir(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x"+lifecycle.ResultFileSuffix), []byte("{"), 0644))
	_, err = LoadDir(dir)
	assert.Error(t, err)
}
