package lifecycle

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ethereum-optimism/infra/op-recorder/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func newTestLifecycle(t *testing.T) (*Lifecycle, *MemoryResultsWriter) {
	t.Helper()
	w := NewMemoryResultsWriter()
	clock := &fakeClock{now: time.UnixMilli(1_000)}
	return New(w, log.NewLogger(log.DiscardHandler()), WithClock(clock.Now)), w
}

func TestContainerLifecycle(t *testing.T) {
	l, w := newTestLifecycle(t)

	require.NoError(t, l.StartTestContainer("", &types.TestResultContainer{UUID: "suite", Name: "S"}))
	require.NoError(t, l.StartTestContainer("suite", &types.TestResultContainer{UUID: "ctx", Name: "C"}))

	err := l.StartTestContainer("", &types.TestResultContainer{UUID: "suite"})
	assert.ErrorIs(t, err, ErrAlreadyExists)

	assert.ErrorIs(t, l.WriteTestContainer("ctx"), ErrNotStopped)

	require.NoError(t, l.StopTestContainer("ctx"))
	require.NoError(t, l.WriteTestContainer("ctx"))
	assert.ErrorIs(t, l.WriteTestContainer("ctx"), ErrAlreadyWritten)
	assert.ErrorIs(t, l.StopTestContainer("missing"), ErrNotFound)
	assert.ErrorIs(t, l.WriteTestContainer("missing"), ErrNotFound)

	require.NoError(t, l.StopTestContainer("suite"))
	require.NoError(t, l.WriteTestContainer("suite"))

	suite, ok := w.Container("suite")
	require.True(t, ok)
	assert.Equal(t, []string{"ctx"}, suite.Children)
	assert.NotZero(t, suite.Start)
	assert.Greater(t, suite.Stop, suite.Start)

	containers, results := l.Pending()
	assert.Empty(t, containers)
	assert.Empty(t, results)
}

func TestStopContainerTwiceKeepsFirstStop(t *testing.T) {
	l, w := newTestLifecycle(t)

	require.NoError(t, l.StartTestContainer("", &types.TestResultContainer{UUID: "c"}))
	require.NoError(t, l.StopTestContainer("c"))
	require.NoError(t, l.StopTestContainer("c"))
	require.NoError(t, l.WriteTestContainer("c"))

	c, ok := w.Container("c")
	require.True(t, ok)
	assert.Equal(t, c.Start+1, c.Stop, "second close must not extend the duration")
}

func TestTestCaseLifecycle(t *testing.T) {
	l, w := newTestLifecycle(t)
	require.NoError(t, l.StartTestContainer("", &types.TestResultContainer{UUID: "ctx"}))

	require.NoError(t, l.ScheduleTestCase("ctx", &types.TestResult{UUID: "case", Name: "m"}))
	assert.ErrorIs(t, l.ScheduleTestCase("ctx", &types.TestResult{UUID: "case"}), ErrAlreadyExists)

	require.NoError(t, l.StartTestCase("case"))
	require.NoError(t, l.UpdateTestCase("case", func(r *types.TestResult) {
		r.Status = types.StatusPassed
	}))
	assert.ErrorIs(t, l.WriteTestCase("case"), ErrNotStopped)
	require.NoError(t, l.StopTestCase("case"))
	require.NoError(t, l.WriteTestCase("case"))
	assert.ErrorIs(t, l.WriteTestCase("case"), ErrAlreadyWritten)
	assert.ErrorIs(t, l.ScheduleTestCase("ctx", &types.TestResult{UUID: "case"}), ErrAlreadyWritten)

	r, ok := w.Result("case")
	require.True(t, ok)
	assert.Equal(t, types.StatusPassed, r.Status)
	assert.Equal(t, types.StageFinished, r.Stage)
	assert.Greater(t, r.Stop, r.Start)

	assert.ErrorIs(t, l.StartTestCase("missing"), ErrNotFound)
	assert.ErrorIs(t, l.UpdateTestCase("missing", func(*types.TestResult) {}), ErrNotFound)
	assert.ErrorIs(t, l.StopTestCase("missing"), ErrNotFound)
}

func TestScheduleUnderMissingParentStillRecords(t *testing.T) {
	l, _ := newTestLifecycle(t)
	require.NoError(t, l.ScheduleTestCase("nowhere", &types.TestResult{UUID: "orphan"}))
	_, results := l.Pending()
	assert.Equal(t, []string{"orphan"}, results)
}

func TestFixtures(t *testing.T) {
	l, w := newTestLifecycle(t)
	require.NoError(t, l.StartTestContainer("", &types.TestResultContainer{UUID: "wrapper"}))

	require.NoError(t, l.StartBeforeFixture("wrapper", "fx-1", &types.FixtureResult{Name: "setUp"}))
	require.NoError(t, l.StartAfterFixture("wrapper", "fx-2", &types.FixtureResult{Name: "tearDown"}))
	assert.ErrorIs(t, l.StartBeforeFixture("wrapper", "fx-1", &types.FixtureResult{}), ErrAlreadyExists)
	assert.ErrorIs(t, l.StartBeforeFixture("missing", "fx-3", &types.FixtureResult{}), ErrNotFound)

	require.NoError(t, l.StopFixture("fx-1"))
	assert.ErrorIs(t, l.StopFixture("fx-1"), ErrNotFound, "fixtures stop exactly once")
	require.NoError(t, l.StopFixture("fx-2"))

	require.NoError(t, l.StopTestContainer("wrapper"))
	require.NoError(t, l.WriteTestContainer("wrapper"))

	c, ok := w.Container("wrapper")
	require.True(t, ok)
	require.Len(t, c.Befores, 1)
	require.Len(t, c.Afters, 1)
	assert.Equal(t, "setUp", c.Befores[0].Name)
	assert.Equal(t, types.StageFinished, c.Befores[0].Stage)
	assert.Equal(t, "tearDown", c.Afters[0].Name)
}

func TestWrittenSnapshotsDoNotAlias(t *testing.T) {
	l, w := newTestLifecycle(t)
	live := &types.TestResultContainer{UUID: "c"}
	require.NoError(t, l.StartTestContainer("", live))
	require.NoError(t, l.StopTestContainer("c"))
	require.NoError(t, l.WriteTestContainer("c"))

	live.Children = append(live.Children, "late")
	c, _ := w.Container("c")
	assert.Empty(t, c.Children)
}

func TestFileSystemResultsWriter(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "allure-results")
	fw, err := NewFileSystemResultsWriter(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, fw.Dir())

	mem := NewMemoryResultsWriter()
	l := New(MultiWriter{fw, mem}, log.NewLogger(log.DiscardHandler()))

	require.NoError(t, l.StartTestContainer("", &types.TestResultContainer{UUID: "ctx", Name: "C"}))
	require.NoError(t, l.ScheduleTestCase("ctx", &types.TestResult{UUID: "case", Name: "m"}))
	require.NoError(t, l.StartTestCase("case"))
	require.NoError(t, l.UpdateTestCase("case", func(r *types.TestResult) { r.Status = types.StatusFailed }))
	require.NoError(t, l.StopTestCase("case"))
	require.NoError(t, l.WriteTestCase("case"))
	require.NoError(t, l.StopTestContainer("ctx"))
	require.NoError(t, l.WriteTestContainer("ctx"))

	data, err := os.ReadFile(filepath.Join(dir, "case"+ResultFileSuffix))
	require.NoError(t, err)
	var r types.TestResult
	require.NoError(t, json.Unmarshal(data, &r))
	assert.Equal(t, types.StatusFailed, r.Status)

	data, err = os.ReadFile(filepath.Join(dir, "ctx"+ContainerFileSuffix))
	require.NoError(t, err)
	var c types.TestResultContainer
	require.NoError(t, json.Unmarshal(data, &c))
	assert.Equal(t, []string{"case"}, c.Children)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temp files left behind")
	assert.Len(t, mem.Results(), 1)
	assert.Len(t, mem.Containers(), 1)

	_, err = NewFileSystemResultsWriter("")
	assert.Error(t, err)
}

func TestConcurrentCases(t *testing.T) {
	l, w := newTestLifecycle(t)
	require.NoError(t, l.StartTestContainer("", &types.TestResultContainer{UUID: "ctx"}))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := "case-" + string(rune('A'+i%26)) + string(rune('a'+i/26))
			assert.NoError(t, l.ScheduleTestCase("ctx", &types.TestResult{UUID: id}))
			assert.NoError(t, l.StartTestCase(id))
			assert.NoError(t, l.StopTestCase(id))
			assert.NoError(t, l.WriteTestCase(id))
		}(i)
	}
	wg.Wait()

	require.NoError(t, l.StopTestContainer("ctx"))
	require.NoError(t, l.WriteTestContainer("ctx"))
	c, _ := w.Container("ctx")
	assert.Len(t, c.Children, 50)
	assert.Len(t, w.Results(), 50)
}
