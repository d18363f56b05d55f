package workerlocal

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ethereum-optimism/infra/op-recorder/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type box struct{ n int }

func TestStoreGetAllocatesOncePerWorker(t *testing.T) {
	var allocs atomic.Int32
	s := New(func() *box {
		allocs.Add(1)
		return &box{}
	})

	a := s.Get("w1")
	assert.Same(t, a, s.Get("w1"))
	assert.NotSame(t, a, s.Get("w2"))
	assert.Equal(t, int32(2), allocs.Load())
	assert.Equal(t, 2, s.Len())
}

func TestStoreLookupSetRemoveRefresh(t *testing.T) {
	s := New[string](nil)

	_, ok := s.Lookup("w1")
	assert.False(t, ok)
	assert.Equal(t, "", s.Get("w1"))

	s.Set("w1", "container-1")
	v, ok := s.Lookup("w1")
	require.True(t, ok)
	assert.Equal(t, "container-1", v)

	s.Remove("w1")
	_, ok = s.Lookup("w1")
	assert.False(t, ok)

	counter := 0
	n := New(func() int { counter++; return counter })
	first := n.Get("w")
	assert.Equal(t, first+1, n.Refresh("w"))
	assert.Equal(t, first+1, n.Get("w"))
}

func TestStoreInheritSharesParentValue(t *testing.T) {
	s := New(func() *box { return &box{} })

	parent := s.Get("parent")
	parent.n = 7
	s.Inherit("parent", "child")

	child := s.Get("child")
	assert.Same(t, parent, child)

	// Replacing the parent's value later does not touch the child's copy.
	s.Refresh("parent")
	assert.Same(t, child, s.Get("child"))
	assert.NotSame(t, child, s.Get("parent"))

	// Inheriting from a worker that never ran allocates for both.
	s.Inherit("idle", "idle-child")
	assert.Same(t, s.Get("idle"), s.Get("idle-child"))
}

func TestStoreConcurrentWorkers(t *testing.T) {
	s := New(func() *box { return &box{} })

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w := engine.WorkerID(fmt.Sprintf("w%d", i))
			for j := 0; j < 100; j++ {
				s.Get(w).n++
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 32; i++ {
		assert.Equal(t, 100, s.Get(engine.WorkerID(fmt.Sprintf("w%d", i))).n)
	}
}
