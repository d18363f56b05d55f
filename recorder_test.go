package recorder

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-recorder/lifecycle"
	"github.com/ethereum-optimism/infra/op-recorder/listener"
	"github.com/ethereum-optimism/infra/op-recorder/reporting"
	"github.com/ethereum-optimism/infra/op-recorder/types"
)

const passingLog = `{"type":"suite-start","suite":"S"}
{"type":"context-start","suite":"S","context":"C"}
{"type":"test-start","worker":"w1","suite":"S","context":"C","method":{"class":"pkg.Cls","name":"ok","kind":"test"}}
{"type":"test-success","worker":"w1","suite":"S","context":"C","method":{"class":"pkg.Cls","name":"ok","kind":"test"}}
{"type":"release","worker":"w1"}
{"type":"context-finish","suite":"S","context":"C"}
{"type":"suite-finish","suite":"S"}
`

func testConfig(t *testing.T, events string) *Config {
	t.Helper()
	return &Config{
		EventsFile: events,
		ResultsDir: filepath.Join(t.TempDir(), "results"),
		Log:        log.NewLogger(log.DiscardHandler()),
	}
}

func writeEvents(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func newTestRecorder(t *testing.T, cfg *Config, shutdown func(error)) (*recorder, *bytes.Buffer) {
	t.Helper()
	if shutdown == nil {
		shutdown = func(error) {}
	}
	r, err := New(context.Background(), cfg, "test", shutdown)
	require.NoError(t, err)
	out := &bytes.Buffer{}
	r.out = out
	return r, out
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(context.Background(), nil, "test", nil)
	require.Error(t, err)
}

func TestNewRejectsBadSettings(t *testing.T) {
	cfg := testConfig(t, "unused")
	cfg.SettingsFile = filepath.Join(t.TempDir(), "settings.ini")
	require.NoError(t, os.WriteFile(cfg.SettingsFile, []byte("x=1"), 0644))
	_, err := New(context.Background(), cfg, "test", nil)
	require.Error(t, err)
}

func TestStartPassingRun(t *testing.T) {
	cfg := testConfig(t, writeEvents(t, passingLog))
	done := make(chan error, 1)
	r, out := newTestRecorder(t, cfg, func(err error) { done <- err })

	require.NoError(t, r.Start(context.Background()))
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("shutdown callback not called")
	}

	assert.Contains(t, out.String(), "ok")
	assert.Contains(t, out.String(), "1 cases: 1 passed")
	assert.Equal(t, 1, r.tree.Stats.Passed)

	loaded, err := reporting.LoadDir(cfg.ResultsDir)
	require.NoError(t, err)
	require.Len(t, loaded.Cases, 1)
	assert.Equal(t, types.StatusPassed, loaded.Cases[0].Status)
	assert.Len(t, loaded.Containers, 2)

	assert.False(t, r.Stopped())
	require.NoError(t, r.Stop(context.Background()))
	assert.True(t, r.Stopped())
	require.NoError(t, r.Stop(context.Background()))
}

func TestStartFailingRun(t *testing.T) {
	cfg := testConfig(t, filepath.Join("replay", "testdata", "run.jsonl"))
	called := make(chan struct{}, 1)
	r, out := newTestRecorder(t, cfg, func(error) { called <- struct{}{} })

	err := r.Start(context.Background())
	require.Error(t, err)
	assert.True(t, IsTestFailureError(err))
	assert.False(t, IsRuntimeError(err))
	assert.Contains(t, err.Error(), "1 failed")
	assert.Contains(t, out.String(), "n")

	entries, err := os.ReadDir(cfg.ResultsDir)
	require.NoError(t, err)
	var results int
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), lifecycle.ResultFileSuffix) {
			results++
		}
	}
	assert.Equal(t, 3, results)
	assert.Empty(t, called)
}

func TestStartMissingEvents(t *testing.T) {
	cfg := testConfig(t, filepath.Join(t.TempDir(), "missing.jsonl"))
	r, _ := newTestRecorder(t, cfg, nil)

	err := r.Start(context.Background())
	require.Error(t, err)
	assert.True(t, IsRuntimeError(err))
}

func TestStartMalformedEvents(t *testing.T) {
	cfg := testConfig(t, writeEvents(t, "{not json}\n"))
	r, _ := newTestRecorder(t, cfg, nil)

	err := r.Start(context.Background())
	require.Error(t, err)
	assert.True(t, IsRuntimeError(err))
}

func TestStartCancelled(t *testing.T) {
	cfg := testConfig(t, writeEvents(t, passingLog))
	r, _ := newTestRecorder(t, cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := r.Start(ctx)
	require.Error(t, err)
	assert.True(t, IsRuntimeError(err))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestStartKeepsGoingAfterHandlerErrors(t *testing.T) {
	// the failure refers to a context nobody started
	events := passingLog + `{"type":"context-finish","suite":"S","context":"ghost"}` + "\n"
	cfg := testConfig(t, writeEvents(t, events))
	r, _ := newTestRecorder(t, cfg, nil)

	require.NoError(t, r.Start(context.Background()))
	assert.Equal(t, 1, r.tree.Stats.Passed)
}

func TestStartFailsOnCorruptFixturePairing(t *testing.T) {
	events := `{"type":"suite-start","suite":"S"}
{"type":"context-start","suite":"S","context":"C"}
{"type":"fixture-after","worker":"w1","suite":"S","context":"C","method":{"class":"pkg.Cls","name":"tearDown","kind":"after-method"}}
` + passingLog[strings.Index(passingLog, `{"type":"test-start"`):]
	cfg := testConfig(t, writeEvents(t, events))
	called := make(chan struct{}, 1)
	r, _ := newTestRecorder(t, cfg, func(error) { called <- struct{}{} })

	err := r.Start(context.Background())
	require.Error(t, err)
	assert.True(t, IsRuntimeError(err))
	assert.True(t, listener.IsPairingError(err))
	assert.Contains(t, err.Error(), "pkg.Cls.tearDown")
	assert.Empty(t, called)
}

func TestErrorTypes(t *testing.T) {
	base := errors.New("boom")
	rt := NewRuntimeError(base)
	assert.Equal(t, "runtime error: boom", rt.Error())
	assert.ErrorIs(t, rt, base)
	assert.True(t, IsRuntimeError(errors.Join(errors.New("x"), rt)))
	assert.False(t, IsRuntimeError(nil))

	tf := NewTestFailureError("2 failed")
	assert.Equal(t, "test failure: 2 failed", tf.Error())
	assert.True(t, IsTestFailureError(tf))
	assert.False(t, IsTestFailureError(base))
}

func TestSummaryLine(t *testing.T) {
	line := summaryLine(reporting.Stats{Total: 4, Passed: 2, Failed: 1, Skipped: 1, PassRate: 50})
	assert.Equal(t, "4 cases: 2 passed, 1 failed, 0 broken, 1 skipped (50.0% pass rate)", line)
}
