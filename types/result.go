package types

import (
	"fmt"
	"slices"
)

// Status represents the terminal outcome of a test case or fixture
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusBroken  Status = "broken"
	StatusSkipped Status = "skipped"
)

var validStatuses = []Status{StatusPassed, StatusFailed, StatusBroken, StatusSkipped}

// IsValid reports whether s is one of the four report statuses
func (s Status) IsValid() bool {
	return slices.Contains(validStatuses, s)
}

// ParseStatus converts a string into a Status, rejecting unknown values
func ParseStatus(s string) (Status, error) {
	status := Status(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid status %q", s)
	}
	return status, nil
}

// Stage represents where a report node is in its lifecycle
type Stage string

const (
	StageScheduled Stage = "scheduled"
	StageRunning   Stage = "running"
	StageFinished  Stage = "finished"
	StagePending   Stage = "pending"
)

// Label is a grouping dimension attached to a test case. Names may repeat.
type Label struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Link points from a test case to an external resource (issue, tms entry, docs)
type Link struct {
	Name string `json:"name,omitempty"`
	URL  string `json:"url,omitempty"`
	Type string `json:"type,omitempty"`
}

// Parameter is a name/value pair describing one runtime argument of a test
type Parameter struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// StatusDetails carries the failure message and the flaky/muted markers
type StatusDetails struct {
	Known   bool   `json:"known,omitempty"`
	Muted   bool   `json:"muted,omitempty"`
	Flaky   bool   `json:"flaky,omitempty"`
	Message string `json:"message,omitempty"`
	Trace   string `json:"trace,omitempty"`
}

// TestResult is the report node for one test method invocation
type TestResult struct {
	UUID          string         `json:"uuid"`
	HistoryID     string         `json:"historyId,omitempty"`
	Name          string         `json:"name"`
	FullName      string         `json:"fullName,omitempty"`
	Description   string         `json:"description,omitempty"`
	Status        Status         `json:"status,omitempty"`
	StatusDetails *StatusDetails `json:"statusDetails,omitempty"`
	Stage         Stage          `json:"stage,omitempty"`
	Start         int64          `json:"start,omitempty"` // epoch milliseconds
	Stop          int64          `json:"stop,omitempty"`  // epoch milliseconds
	Labels        []Label        `json:"labels,omitempty"`
	Links         []Link         `json:"links,omitempty"`
	Parameters    []Parameter    `json:"parameters,omitempty"`
}

// Clone returns a deep copy of the result
func (r *TestResult) Clone() *TestResult {
	if r == nil {
		return nil
	}
	c := *r
	if r.StatusDetails != nil {
		details := *r.StatusDetails
		c.StatusDetails = &details
	}
	c.Labels = slices.Clone(r.Labels)
	c.Links = slices.Clone(r.Links)
	c.Parameters = slices.Clone(r.Parameters)
	return &c
}

// LabelValues returns the values of every label with the given name, in order
func (r *TestResult) LabelValues(name string) []string {
	var values []string
	for _, l := range r.Labels {
		if l.Name == name {
			values = append(values, l.Value)
		}
	}
	return values
}

// FixtureResult is the report node for one setup/teardown invocation
type FixtureResult struct {
	Name          string         `json:"name"`
	Description   string         `json:"description,omitempty"`
	Status        Status         `json:"status,omitempty"`
	StatusDetails *StatusDetails `json:"statusDetails,omitempty"`
	Stage         Stage          `json:"stage,omitempty"`
	Start         int64          `json:"start,omitempty"`
	Stop          int64          `json:"stop,omitempty"`
}

// Clone returns a deep copy of the fixture
func (f *FixtureResult) Clone() *FixtureResult {
	if f == nil {
		return nil
	}
	c := *f
	if f.StatusDetails != nil {
		details := *f.StatusDetails
		c.StatusDetails = &details
	}
	return &c
}

// TestResultContainer groups child nodes: a suite, a test context or a synthesized
// wrapper around method-level fixtures
type TestResultContainer struct {
	UUID        string           `json:"uuid"`
	Name        string           `json:"name,omitempty"`
	Description string           `json:"description,omitempty"`
	Start       int64            `json:"start,omitempty"`
	Stop        int64            `json:"stop,omitempty"`
	Children    []string         `json:"children,omitempty"`
	Befores     []*FixtureResult `json:"befores,omitempty"`
	Afters      []*FixtureResult `json:"afters,omitempty"`
}

// AddChild appends a child id unless it is already present
func (c *TestResultContainer) AddChild(uuid string) {
	if slices.Contains(c.Children, uuid) {
		return
	}
	c.Children = append(c.Children, uuid)
}

// Clone returns a deep copy of the container, fixtures included
func (c *TestResultContainer) Clone() *TestResultContainer {
	if c == nil {
		return nil
	}
	out := *c
	out.Children = slices.Clone(c.Children)
	out.Befores = cloneFixtures(c.Befores)
	out.Afters = cloneFixtures(c.Afters)
	return &out
}

func cloneFixtures(fixtures []*FixtureResult) []*FixtureResult {
	if fixtures == nil {
		return nil
	}
	out := make([]*FixtureResult, len(fixtures))
	for i, f := range fixtures {
		out[i] = f.Clone()
	}
	return out
}
