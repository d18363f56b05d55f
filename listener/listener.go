// Package listener turns the engine callback stream into report nodes. It tracks the
// current test case of every worker, rebuilds the suite/context/fixture hierarchy and
// forwards every node transition to a Lifecycle.
package listener

import (
	"errors"
	"fmt"
	"os"

	"github.com/ethereum-optimism/infra/op-recorder/engine"
	"github.com/ethereum-optimism/infra/op-recorder/identity"
	"github.com/ethereum-optimism/infra/op-recorder/metrics"
	"github.com/ethereum-optimism/infra/op-recorder/types"
	"github.com/ethereum-optimism/infra/op-recorder/workerlocal"
	"github.com/ethereum/go-ethereum/log"
)

// Lifecycle is the sink that owns report nodes
type Lifecycle interface {
	StartTestContainer(parentUUID string, container *types.TestResultContainer) error
	StopTestContainer(uuid string) error
	WriteTestContainer(uuid string) error

	ScheduleTestCase(parentUUID string, result *types.TestResult) error
	StartTestCase(uuid string) error
	UpdateTestCase(uuid string, update func(*types.TestResult)) error
	StopTestCase(uuid string) error
	WriteTestCase(uuid string) error

	StartBeforeFixture(parentUUID, uuid string, fixture *types.FixtureResult) error
	StartAfterFixture(parentUUID, uuid string, fixture *types.FixtureResult) error
	StopFixture(uuid string) error
}

// Event names, as recorded in metrics and event logs
const (
	EventSuiteStart      = "suite-start"
	EventSuiteFinish     = "suite-finish"
	EventContextStart    = "context-start"
	EventContextFinish   = "context-finish"
	EventTestStart       = "test-start"
	EventTestSuccess     = "test-success"
	EventTestFailure     = "test-failure"
	EventTestSkipped     = "test-skipped"
	EventTestWithinRatio = "test-failed-within-success-percentage"
	EventBeforeInvoke    = "before-invocation"
	EventAfterInvoke     = "after-invocation"
)

// Config holds the collaborators of a Listener. Only Lifecycle is required.
type Config struct {
	Lifecycle    Lifecycle
	Log          log.Logger
	Assigner     *identity.Assigner
	Classifier   StatusClassifier
	LabelRules   []LabelRule
	LinkPatterns map[string]string
	Host         string
}

// Listener receives engine callbacks. Every handler is safe to call from any worker;
// per-worker state is keyed by the WorkerID carried on the event.
type Listener struct {
	lifecycle  Lifecycle
	log        log.Logger
	ids        *identity.Assigner
	classifier StatusClassifier
	meta       *metadataExtractor

	currentTest       *workerlocal.Store[*current]
	currentContainer  *workerlocal.Store[string]
	currentExecutable *workerlocal.Store[string]
}

// New creates a Listener
func New(cfg Config) (*Listener, error) {
	if cfg.Lifecycle == nil {
		return nil, errors.New("lifecycle is required")
	}
	logger := cfg.Log
	if logger == nil {
		logger = log.New()
		logger.Error("No logger provided, using default")
	}
	ids := cfg.Assigner
	if ids == nil {
		var err error
		if ids, err = identity.New(identity.DefaultDigest); err != nil {
			return nil, err
		}
	}
	classifier := cfg.Classifier
	if classifier == nil {
		classifier = DefaultClassifier
	}
	rules := cfg.LabelRules
	if rules == nil {
		rules = DefaultLabelRules
	}
	host := cfg.Host
	if host == "" {
		host = hostName()
	}

	return &Listener{
		lifecycle:         cfg.Lifecycle,
		log:               logger.New("component", "listener"),
		ids:               ids,
		classifier:        classifier,
		meta:              newMetadataExtractor(rules, cfg.LinkPatterns, host),
		currentTest:       workerlocal.New(newCurrent),
		currentContainer:  workerlocal.New(identity.NewID),
		currentExecutable: workerlocal.New(identity.NewID),
	}, nil
}

func hostName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "default"
	}
	return host
}

// OnSuiteStart opens a top-level container for suite.
func (l *Listener) OnSuiteStart(suite *engine.Suite) error {
	metrics.RecordEvent(EventSuiteStart)
	if suite == nil {
		return invalidEvent(EventSuiteStart, "no suite")
	}
	container := &types.TestResultContainer{
		UUID: l.ids.UniqueID(suite),
		Name: suite.Name,
	}
	if err := l.lifecycle.StartTestContainer("", container); err != nil {
		return fmt.Errorf("start suite %q: %w", suite.Name, err)
	}
	metrics.RecordContainer(metrics.ContainerSuite)
	l.log.Debug("Suite started", "suite", suite.Name, "uuid", container.UUID)
	return nil
}

// OnSuiteFinish closes and flushes the suite container.
func (l *Listener) OnSuiteFinish(suite *engine.Suite) error {
	metrics.RecordEvent(EventSuiteFinish)
	if suite == nil {
		return invalidEvent(EventSuiteFinish, "no suite")
	}
	if err := l.closeContainer(l.ids.UniqueID(suite)); err != nil {
		return fmt.Errorf("finish suite %q: %w", suite.Name, err)
	}
	l.ids.Forget(suite)
	return nil
}

// OnContextStart opens a container for ctx under its suite container.
func (l *Listener) OnContextStart(ctx *engine.TestContext) error {
	metrics.RecordEvent(EventContextStart)
	if ctx == nil {
		return invalidEvent(EventContextStart, "no test context")
	}
	container := &types.TestResultContainer{
		UUID: l.ids.UniqueID(ctx),
		Name: ctx.Name,
	}
	if err := l.lifecycle.StartTestContainer(l.suiteUUID(ctx), container); err != nil {
		return fmt.Errorf("start context %q: %w", ctx.Name, err)
	}
	metrics.RecordContainer(metrics.ContainerContext)
	l.log.Debug("Context started", "context", ctx.Name, "uuid", container.UUID)
	return nil
}

// OnContextFinish closes and flushes the context container.
func (l *Listener) OnContextFinish(ctx *engine.TestContext) error {
	metrics.RecordEvent(EventContextFinish)
	if ctx == nil {
		return invalidEvent(EventContextFinish, "no test context")
	}
	if err := l.closeContainer(l.ids.UniqueID(ctx)); err != nil {
		return fmt.Errorf("finish context %q: %w", ctx.Name, err)
	}
	l.ids.Forget(ctx)
	return nil
}

// OnTestStart schedules and starts a test case under the result's context container.
func (l *Listener) OnTestStart(result *engine.Result) error {
	metrics.RecordEvent(EventTestStart)
	if err := validResult(EventTestStart, result); err != nil {
		return err
	}
	return l.startTest(result)
}

// OnTestSuccess finishes the worker's current case as passed.
func (l *Listener) OnTestSuccess(result *engine.Result) error {
	metrics.RecordEvent(EventTestSuccess)
	if err := validResult(EventTestSuccess, result); err != nil {
		return err
	}
	cur, err := l.resolveFinished(result)
	if err != nil {
		return err
	}
	return l.finishTest(cur.uuid, types.StatusPassed, nil)
}

// OnTestFailure finishes the worker's current case as failed or broken, depending on
// how the error is classified.
func (l *Listener) OnTestFailure(result *engine.Result) error {
	metrics.RecordEvent(EventTestFailure)
	if err := validResult(EventTestFailure, result); err != nil {
		return err
	}
	cur, err := l.resolveFinished(result)
	if err != nil {
		return err
	}
	return l.finishTest(cur.uuid, l.failureStatus(result.Err), statusDetails(result.Err))
}

// OnTestSkipped finishes the worker's current case as skipped.
func (l *Listener) OnTestSkipped(result *engine.Result) error {
	metrics.RecordEvent(EventTestSkipped)
	if err := validResult(EventTestSkipped, result); err != nil {
		return err
	}
	cur, err := l.resolveFinished(result)
	if err != nil {
		return err
	}
	return l.finishTest(cur.uuid, types.StatusSkipped, statusDetails(result.Err))
}

// OnTestFailedWithinSuccessPercentage is accepted and ignored.
func (l *Listener) OnTestFailedWithinSuccessPercentage(*engine.Result) error {
	metrics.RecordEvent(EventTestWithinRatio)
	return nil
}

// Spawn makes child see the same current case, wrapper container and fixture
// execution as parent.
func (l *Listener) Spawn(parent, child engine.WorkerID) {
	l.currentTest.Inherit(parent, child)
	if uuid, ok := l.currentContainer.Lookup(parent); ok {
		l.currentContainer.Set(child, uuid)
	}
	if uuid, ok := l.currentExecutable.Lookup(parent); ok {
		l.currentExecutable.Set(child, uuid)
	}
}

// Release drops all state held for worker.
func (l *Listener) Release(worker engine.WorkerID) {
	l.currentTest.Remove(worker)
	l.currentContainer.Remove(worker)
	l.currentExecutable.Remove(worker)
}

func (l *Listener) startTest(result *engine.Result) error {
	worker := result.Worker
	cur := l.currentTest.Get(worker)
	if cur.isStarted() {
		cur = l.refresh(worker, EventTestStart)
	}
	cur.markRunning()

	method := result.Method
	labels := append(l.meta.structuralLabels(method, worker), l.meta.annotationLabels(method)...)
	tr := &types.TestResult{
		UUID:      cur.uuid,
		HistoryID: l.ids.HistoryID(method.QualifiedName, map[string]string{}),
		Name:      testName(method),
		FullName:  method.QualifiedName,
		StatusDetails: &types.StatusDetails{
			Flaky: isFlaky(method),
			Muted: isMuted(method),
		},
		Parameters: parameters(result),
		Links:      l.meta.links(method),
		Labels:     labels,
	}

	parentUUID := ""
	if result.Context != nil {
		parentUUID = l.ids.UniqueID(result.Context)
	}
	if err := l.lifecycle.ScheduleTestCase(parentUUID, tr); err != nil {
		return fmt.Errorf("schedule test %s: %w", method.QualifiedName, err)
	}
	if err := l.lifecycle.StartTestCase(cur.uuid); err != nil {
		return fmt.Errorf("start test %s: %w", method.QualifiedName, err)
	}
	l.log.Debug("Test started", "test", method.QualifiedName, "uuid", cur.uuid, "worker", worker)
	return nil
}

// resolveFinished returns the context a finish event applies to, synthesizing the
// start the engine never delivered.
func (l *Listener) resolveFinished(result *engine.Result) (*current, error) {
	worker := result.Worker
	cur := l.currentTest.Get(worker)

	// a previous case on this worker already finished
	if cur.isTearingDown() {
		cur = l.refresh(worker, "test-finish")
	}

	// finished without setup
	if !cur.isStarted() {
		if err := l.startTest(result); err != nil {
			return nil, err
		}
		l.currentTest.Remove(worker)
		l.log.Debug("Synthesized start for test without setup", "test", result.Method.QualifiedName, "uuid", cur.uuid)
	}
	cur.markTearingDown()
	return cur, nil
}

func (l *Listener) refresh(worker engine.WorkerID, reason string) *current {
	metrics.RecordContextRefresh(reason)
	return l.currentTest.Refresh(worker)
}

func (l *Listener) finishTest(uuid string, status types.Status, details *types.StatusDetails) error {
	if err := l.lifecycle.UpdateTestCase(uuid, setStatus(status, details)); err != nil {
		return fmt.Errorf("update test %s: %w", uuid, err)
	}
	if err := l.lifecycle.StopTestCase(uuid); err != nil {
		return fmt.Errorf("stop test %s: %w", uuid, err)
	}
	if err := l.lifecycle.WriteTestCase(uuid); err != nil {
		return fmt.Errorf("write test %s: %w", uuid, err)
	}
	l.log.Debug("Test finished", "uuid", uuid, "status", status)
	return nil
}

func (l *Listener) closeContainer(uuid string) error {
	if err := l.lifecycle.StopTestContainer(uuid); err != nil {
		return err
	}
	return l.lifecycle.WriteTestContainer(uuid)
}

func (l *Listener) suiteUUID(ctx *engine.TestContext) string {
	if ctx == nil || ctx.Suite == nil {
		return ""
	}
	return l.ids.UniqueID(ctx.Suite)
}

func validResult(event string, result *engine.Result) error {
	if result == nil {
		return invalidEvent(event, "no result")
	}
	if result.Method == nil {
		return invalidEvent(event, "no method")
	}
	return nil
}
