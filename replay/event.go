// Package replay decodes a JSON-lines log of engine callbacks and plays it against a
// listener, one goroutine per worker.
package replay

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/ethereum-optimism/infra/op-recorder/engine"
)

// EventType names one engine callback
type EventType string

const (
	EventSuiteStart        EventType = "suite-start"
	EventSuiteFinish       EventType = "suite-finish"
	EventContextStart      EventType = "context-start"
	EventContextFinish     EventType = "context-finish"
	EventTestStart         EventType = "test-start"
	EventTestSuccess       EventType = "test-success"
	EventTestFailure       EventType = "test-failure"
	EventTestSkipped       EventType = "test-skipped"
	EventTestWithinPercent EventType = "test-failed-within-percentage"
	EventFixtureBefore     EventType = "fixture-before"
	EventFixtureAfter      EventType = "fixture-after"
	EventSpawn             EventType = "spawn"
	EventRelease           EventType = "release"
)

var ErrInvalidLog = errors.New("invalid event log")

var testEvents = []EventType{EventTestStart, EventTestSuccess, EventTestFailure, EventTestSkipped, EventTestWithinPercent}

// Event is one line of the log
type Event struct {
	Type    EventType       `json:"type"`
	Worker  engine.WorkerID `json:"worker,omitempty"`
	Parent  engine.WorkerID `json:"parent,omitempty"` // spawn only
	Suite   string          `json:"suite,omitempty"`
	Context string          `json:"context,omitempty"`
	Method  *Method         `json:"method,omitempty"`
	Params  []any           `json:"params,omitempty"`
	Error   *Failure        `json:"error,omitempty"`
}

// Method describes the test or fixture method an event concerns
type Method struct {
	Class            string              `json:"class"`
	ClassDisplayName string              `json:"classDisplayName,omitempty"`
	ClassAnnotations []engine.Annotation `json:"classAnnotations,omitempty"`
	Name             string              `json:"name"`
	Description      string              `json:"description,omitempty"`
	Kind             string              `json:"kind,omitempty"`
	ParameterNames   []string            `json:"parameterNames,omitempty"`
	Annotations      []engine.Annotation `json:"annotations,omitempty"`
}

// QualifiedName returns class and method name joined by a dot
func (m *Method) QualifiedName() string {
	if m.Class == "" {
		return m.Name
	}
	return m.Class + "." + m.Name
}

// Failure is the error a test or fixture raised
type Failure struct {
	Message   string `json:"message"`
	Assertion bool   `json:"assertion,omitempty"`
}

func (f *Failure) toError() error {
	if f == nil {
		return nil
	}
	if f.Assertion {
		return &engine.AssertionError{Message: f.Message}
	}
	return errors.New(f.Message)
}

// isBarrier reports whether the event must run after every earlier event and before
// every later one.
func (e *Event) isBarrier() bool {
	switch e.Type {
	case EventSuiteStart, EventSuiteFinish, EventContextStart, EventContextFinish, EventSpawn, EventRelease:
		return true
	}
	return false
}

// Validate checks that the event carries what its type needs
func (e *Event) Validate() error {
	switch e.Type {
	case EventSuiteStart, EventSuiteFinish:
		if e.Suite == "" {
			return errors.New("suite is required")
		}
	case EventContextStart, EventContextFinish:
		if e.Suite == "" || e.Context == "" {
			return errors.New("suite and context are required")
		}
	case EventTestStart, EventTestSuccess, EventTestFailure, EventTestSkipped, EventTestWithinPercent,
		EventFixtureBefore, EventFixtureAfter:
		if e.Worker == "" {
			return errors.New("worker is required")
		}
		if e.Method == nil || e.Method.Name == "" {
			return errors.New("method is required")
		}
		kind, ok := engine.ParseMethodKind(e.Method.Kind)
		if !ok {
			return fmt.Errorf("unknown method kind %q", e.Method.Kind)
		}
		if slices.Contains(testEvents, e.Type) && kind != engine.KindTest {
			return fmt.Errorf("test event for %s method", kind)
		}
	case EventSpawn:
		if e.Worker == "" || e.Parent == "" {
			return errors.New("worker and parent are required")
		}
	case EventRelease:
		if e.Worker == "" {
			return errors.New("worker is required")
		}
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	return nil
}

const maxLineSize = 4 * 1024 * 1024

// Decode reads every event in r. Blank lines are skipped.
func Decode(r io.Reader) ([]Event, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var events []Event
	line := 0
	for scanner.Scan() {
		line++
		data := scanner.Bytes()
		if len(bytes.TrimSpace(data)) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidLog, line, err)
		}
		if err := ev.Validate(); err != nil {
			return nil, fmt.Errorf("%w: line %d: %s: %v", ErrInvalidLog, line, ev.Type, err)
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read event log: %w", err)
	}
	return events, nil
}

// Encode writes events as JSON lines
func Encode(w io.Writer, events []Event) error {
	enc := json.NewEncoder(w)
	for i := range events {
		if err := enc.Encode(&events[i]); err != nil {
			return fmt.Errorf("failed to encode event %d: %w", i, err)
		}
	}
	return nil
}
