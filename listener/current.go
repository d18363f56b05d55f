package listener

import (
	"sync/atomic"

	"github.com/ethereum-optimism/infra/op-recorder/identity"
)

type stage int32

const (
	stagePending stage = iota
	stageRunning
	stageTearingDown
)

func (s stage) String() string {
	switch s {
	case stagePending:
		return "pending"
	case stageRunning:
		return "running"
	case stageTearingDown:
		return "tearing-down"
	}
	return "unknown"
}

// current tracks the test case associated with one worker. The id is fixed when
// the context is allocated; the stage only moves forward.
//
// A context can be shared with child workers through Spawn, hence the atomic stage.
type current struct {
	uuid  string
	stage atomic.Int32
}

func newCurrent() *current {
	return &current{uuid: identity.NewID()}
}

// markRunning moves pending -> running. Later stages are left alone.
func (c *current) markRunning() {
	c.stage.CompareAndSwap(int32(stagePending), int32(stageRunning))
}

// markTearingDown enters the teardown stage, after which method fixtures still
// attach to this case.
func (c *current) markTearingDown() {
	c.stage.Store(int32(stageTearingDown))
}

func (c *current) isStarted() bool {
	return stage(c.stage.Load()) != stagePending
}

func (c *current) isTearingDown() bool {
	return stage(c.stage.Load()) == stageTearingDown
}

func (c *current) String() string {
	return c.uuid + "(" + stage(c.stage.Load()).String() + ")"
}
