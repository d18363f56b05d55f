package listener

import (
	"errors"
	"fmt"

	"github.com/ethereum-optimism/infra/op-recorder/engine"
	"github.com/ethereum-optimism/infra/op-recorder/metrics"
	"github.com/ethereum-optimism/infra/op-recorder/types"
)

// BeforeInvocation starts a fixture result for configuration methods. Method-level
// fixtures get a wrapper container holding the worker's current case.
func (l *Listener) BeforeInvocation(inv *engine.Invocation) error {
	metrics.RecordEvent(EventBeforeInvoke)
	method, err := fixtureMethod(EventBeforeInvoke, inv)
	if err != nil || method == nil {
		return err
	}

	worker := inv.Worker
	fixture := &types.FixtureResult{
		Name:        method.Name,
		Description: method.Description,
		Stage:       types.StageRunning,
	}

	var parentUUID string
	switch {
	case method.Kind.IsSuiteFixture():
		suite := invocationSuite(inv)
		if suite == nil {
			return invalidEvent(EventBeforeInvoke, "suite fixture without suite")
		}
		parentUUID = l.ids.UniqueID(suite)
	case method.Kind.IsContextFixture():
		ctx := invocationContext(inv)
		if ctx == nil {
			return invalidEvent(EventBeforeInvoke, "context fixture without test context")
		}
		parentUUID = l.ids.UniqueID(ctx)
	default:
		if parentUUID, err = l.startWrapper(worker, method); err != nil {
			return err
		}
	}

	uuid := l.currentExecutable.Refresh(worker)
	if method.Kind.IsBefore() {
		err = l.lifecycle.StartBeforeFixture(parentUUID, uuid, fixture)
	} else {
		err = l.lifecycle.StartAfterFixture(parentUUID, uuid, fixture)
	}
	if err != nil {
		return fmt.Errorf("start fixture %s: %w", method.QualifiedName, err)
	}
	l.log.Debug("Fixture started", "fixture", method.QualifiedName, "kind", method.Kind, "uuid", uuid, "parent", parentUUID)
	return nil
}

// AfterInvocation stops the fixture started on the same worker and, for method-level
// fixtures, closes the wrapper container.
func (l *Listener) AfterInvocation(inv *engine.Invocation) error {
	metrics.RecordEvent(EventAfterInvoke)
	method, err := fixtureMethod(EventAfterInvoke, inv)
	if err != nil || method == nil {
		return err
	}

	worker := inv.Worker
	var errs []error
	uuid, ok := l.currentExecutable.Lookup(worker)
	if ok {
		l.currentExecutable.Remove(worker)
		if err := l.lifecycle.StopFixture(uuid); err != nil {
			errs = append(errs, fmt.Errorf("stop fixture %s: %w", method.QualifiedName, err))
		}
	} else {
		errs = append(errs, l.pairingError(method, "executable"))
	}

	if method.Kind.IsMethodFixture() {
		containerUUID, ok := l.currentContainer.Lookup(worker)
		if !ok {
			errs = append(errs, l.pairingError(method, "container"))
			return errors.Join(errs...)
		}
		l.currentContainer.Remove(worker)
		if err := l.closeContainer(containerUUID); err != nil {
			errs = append(errs, fmt.Errorf("close wrapper of %s: %w", method.QualifiedName, err))
		}
	}
	return errors.Join(errs...)
}

// startWrapper builds the container wrapping a method fixture and the case it guards.
func (l *Listener) startWrapper(worker engine.WorkerID, method *engine.Method) (string, error) {
	if stale, ok := l.currentContainer.Lookup(worker); ok {
		l.log.Warn("Closing wrapper container left open by an unpaired fixture", "uuid", stale, "fixture", method.QualifiedName)
		metrics.RecordError("stale_wrapper")
		if err := l.closeContainer(stale); err != nil {
			l.log.Warn("Failed to close stale wrapper container", "uuid", stale, "err", err)
		}
	}

	cur := l.currentTest.Get(worker)
	// a lingering case must not be nested under the next case's setup
	if method.Kind == engine.KindBeforeMethod && cur.isStarted() {
		cur = l.refresh(worker, "before-method")
	}

	container := &types.TestResultContainer{
		UUID:        l.currentContainer.Refresh(worker),
		Name:        method.QualifiedName,
		Description: method.Description,
		Children:    []string{cur.uuid},
	}
	if err := l.lifecycle.StartTestContainer("", container); err != nil {
		return "", fmt.Errorf("start wrapper of %s: %w", method.QualifiedName, err)
	}
	metrics.RecordContainer(metrics.ContainerFixture)
	return container.UUID, nil
}

func (l *Listener) pairingError(method *engine.Method, missing string) error {
	metrics.RecordError("pairing")
	l.log.Error("Fixture exit without matching enter", "fixture", method.QualifiedName, "missing", missing)
	return &PairingError{Fixture: method.QualifiedName, Missing: missing}
}

// fixtureMethod returns the invoked method when it is a supported configuration
// fixture, nil when the invocation is ignored.
func fixtureMethod(event string, inv *engine.Invocation) (*engine.Method, error) {
	if inv == nil || inv.Method == nil {
		return nil, invalidEvent(event, "no method")
	}
	if !inv.Method.Kind.IsSupportedFixture() {
		return nil, nil
	}
	return inv.Method, nil
}

func invocationContext(inv *engine.Invocation) *engine.TestContext {
	if inv.Context != nil {
		return inv.Context
	}
	if inv.Result != nil {
		return inv.Result.Context
	}
	return nil
}

// invocationSuite prefers the suite of the invocation's context over a bare suite
func invocationSuite(inv *engine.Invocation) *engine.Suite {
	if ctx := invocationContext(inv); ctx != nil && ctx.Suite != nil {
		return ctx.Suite
	}
	return inv.Suite
}
