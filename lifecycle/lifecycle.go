// Package lifecycle is a reference implementation of the report sink: it owns the
// report nodes while they are open and hands finished snapshots to a ResultsWriter.
package lifecycle

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum-optimism/infra/op-recorder/metrics"
	"github.com/ethereum-optimism/infra/op-recorder/types"
	"github.com/ethereum/go-ethereum/log"
)

var (
	ErrAlreadyExists  = errors.New("already exists")
	ErrNotFound       = errors.New("not found")
	ErrNotStopped     = errors.New("not stopped")
	ErrAlreadyWritten = errors.New("already written")
)

type containerEntry struct {
	container *types.TestResultContainer
	stopped   bool
}

type fixtureEntry struct {
	fixture   *types.FixtureResult
	container string
}

// Lifecycle stores open containers, test cases and fixtures. It is safe for
// concurrent use by every engine worker.
type Lifecycle struct {
	mu         sync.Mutex
	containers map[string]*containerEntry
	results    map[string]*types.TestResult
	fixtures   map[string]*fixtureEntry
	written    map[string]struct{}

	writer ResultsWriter
	log    log.Logger
	now    func() time.Time
}

// Option configures a Lifecycle
type Option func(*Lifecycle)

// WithClock overrides the time source used for start/stop timestamps
func WithClock(now func() time.Time) Option {
	return func(l *Lifecycle) {
		l.now = now
	}
}

// New creates a Lifecycle that flushes finished nodes to writer
func New(writer ResultsWriter, logger log.Logger, opts ...Option) *Lifecycle {
	if logger == nil {
		logger = log.New()
		logger.Error("No logger provided, using default")
	}
	l := &Lifecycle{
		containers: make(map[string]*containerEntry),
		results:    make(map[string]*types.TestResult),
		fixtures:   make(map[string]*fixtureEntry),
		written:    make(map[string]struct{}),
		writer:     writer,
		log:        logger.New("component", "lifecycle"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Lifecycle) millis() int64 {
	return l.now().UnixMilli()
}

// StartTestContainer opens a container, as a child of parentUUID when it is not empty
func (l *Lifecycle) StartTestContainer(parentUUID string, container *types.TestResultContainer) error {
	if container == nil || container.UUID == "" {
		return errors.New("container with uuid is required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.containers[container.UUID]; exists {
		return fmt.Errorf("start container %s: %w", container.UUID, ErrAlreadyExists)
	}
	if parentUUID != "" {
		if parent, ok := l.containers[parentUUID]; ok {
			parent.container.AddChild(container.UUID)
		} else {
			l.log.Warn("Parent container not found", "parent", parentUUID, "container", container.UUID)
		}
	}
	if container.Start == 0 {
		container.Start = l.millis()
	}
	l.containers[container.UUID] = &containerEntry{container: container}
	l.log.Debug("Container started", "uuid", container.UUID, "name", container.Name, "parent", parentUUID)
	return nil
}

// StopTestContainer closes a container. Closing twice keeps the first stop time.
func (l *Lifecycle) StopTestContainer(uuid string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.containers[uuid]
	if !ok {
		return fmt.Errorf("stop container %s: %w", uuid, ErrNotFound)
	}
	if entry.stopped {
		return nil
	}
	entry.stopped = true
	entry.container.Stop = l.millis()
	return nil
}

// WriteTestContainer flushes a closed container to the writer, exactly once
func (l *Lifecycle) WriteTestContainer(uuid string) error {
	l.mu.Lock()
	entry, ok := l.containers[uuid]
	if !ok {
		_, written := l.written[uuid]
		l.mu.Unlock()
		if written {
			return fmt.Errorf("write container %s: %w", uuid, ErrAlreadyWritten)
		}
		return fmt.Errorf("write container %s: %w", uuid, ErrNotFound)
	}
	if !entry.stopped {
		l.mu.Unlock()
		return fmt.Errorf("write container %s: %w", uuid, ErrNotStopped)
	}
	delete(l.containers, uuid)
	for id, f := range l.fixtures {
		if f.container == uuid {
			delete(l.fixtures, id)
		}
	}
	l.written[uuid] = struct{}{}
	snapshot := entry.container.Clone()
	l.mu.Unlock()

	if err := l.writer.WriteContainer(snapshot); err != nil {
		metrics.RecordErrorDetails("write_container", err)
		return fmt.Errorf("write container %s: %w", uuid, err)
	}
	return nil
}

// ScheduleTestCase registers a pending test case under parentUUID
func (l *Lifecycle) ScheduleTestCase(parentUUID string, result *types.TestResult) error {
	if result == nil || result.UUID == "" {
		return errors.New("test result with uuid is required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.results[result.UUID]; exists {
		return fmt.Errorf("schedule test case %s: %w", result.UUID, ErrAlreadyExists)
	}
	if _, written := l.written[result.UUID]; written {
		return fmt.Errorf("schedule test case %s: %w", result.UUID, ErrAlreadyWritten)
	}
	if parent, ok := l.containers[parentUUID]; ok {
		parent.container.AddChild(result.UUID)
	} else {
		l.log.Warn("Parent container not found", "parent", parentUUID, "case", result.UUID)
	}
	result.Stage = types.StageScheduled
	l.results[result.UUID] = result
	return nil
}

// StartTestCase moves a scheduled test case to running
func (l *Lifecycle) StartTestCase(uuid string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	result, ok := l.results[uuid]
	if !ok {
		return fmt.Errorf("start test case %s: %w", uuid, ErrNotFound)
	}
	result.Stage = types.StageRunning
	result.Start = l.millis()
	return nil
}

// UpdateTestCase applies update to an open test case
func (l *Lifecycle) UpdateTestCase(uuid string, update func(*types.TestResult)) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	result, ok := l.results[uuid]
	if !ok {
		return fmt.Errorf("update test case %s: %w", uuid, ErrNotFound)
	}
	update(result)
	return nil
}

// StopTestCase finishes a test case. Stopping twice keeps the first stop time.
func (l *Lifecycle) StopTestCase(uuid string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	result, ok := l.results[uuid]
	if !ok {
		return fmt.Errorf("stop test case %s: %w", uuid, ErrNotFound)
	}
	if result.Stage == types.StageFinished {
		return nil
	}
	result.Stage = types.StageFinished
	result.Stop = l.millis()
	return nil
}

// WriteTestCase flushes a stopped test case to the writer, exactly once
func (l *Lifecycle) WriteTestCase(uuid string) error {
	l.mu.Lock()
	result, ok := l.results[uuid]
	if !ok {
		_, written := l.written[uuid]
		l.mu.Unlock()
		if written {
			return fmt.Errorf("write test case %s: %w", uuid, ErrAlreadyWritten)
		}
		return fmt.Errorf("write test case %s: %w", uuid, ErrNotFound)
	}
	if result.Stage != types.StageFinished {
		l.mu.Unlock()
		return fmt.Errorf("write test case %s: %w", uuid, ErrNotStopped)
	}
	delete(l.results, uuid)
	l.written[uuid] = struct{}{}
	snapshot := result.Clone()
	l.mu.Unlock()

	metrics.RecordCase(snapshot.Status)
	if err := l.writer.WriteResult(snapshot); err != nil {
		metrics.RecordErrorDetails("write_result", err)
		return fmt.Errorf("write test case %s: %w", uuid, err)
	}
	return nil
}

// StartBeforeFixture starts a setup fixture inside parentUUID
func (l *Lifecycle) StartBeforeFixture(parentUUID, uuid string, fixture *types.FixtureResult) error {
	return l.startFixture(parentUUID, uuid, fixture, true)
}

// StartAfterFixture starts a teardown fixture inside parentUUID
func (l *Lifecycle) StartAfterFixture(parentUUID, uuid string, fixture *types.FixtureResult) error {
	return l.startFixture(parentUUID, uuid, fixture, false)
}

func (l *Lifecycle) startFixture(parentUUID, uuid string, fixture *types.FixtureResult, before bool) error {
	if fixture == nil || uuid == "" {
		return errors.New("fixture with uuid is required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.fixtures[uuid]; exists {
		return fmt.Errorf("start fixture %s: %w", uuid, ErrAlreadyExists)
	}
	parent, ok := l.containers[parentUUID]
	if !ok {
		return fmt.Errorf("start fixture %s: container %s: %w", uuid, parentUUID, ErrNotFound)
	}
	fixture.Stage = types.StageRunning
	if fixture.Start == 0 {
		fixture.Start = l.millis()
	}
	if before {
		parent.container.Befores = append(parent.container.Befores, fixture)
	} else {
		parent.container.Afters = append(parent.container.Afters, fixture)
	}
	l.fixtures[uuid] = &fixtureEntry{fixture: fixture, container: parentUUID}
	return nil
}

// StopFixture finishes a running fixture. Fixtures are never updated afterwards.
func (l *Lifecycle) StopFixture(uuid string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.fixtures[uuid]
	if !ok {
		return fmt.Errorf("stop fixture %s: %w", uuid, ErrNotFound)
	}
	delete(l.fixtures, uuid)
	entry.fixture.Stage = types.StageFinished
	entry.fixture.Stop = l.millis()
	return nil
}

// Pending reports the ids of containers and test cases that were opened but not yet written
func (l *Lifecycle) Pending() (containers []string, results []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id := range l.containers {
		containers = append(containers, id)
	}
	for id := range l.results {
		results = append(results, id)
	}
	return containers, results
}
