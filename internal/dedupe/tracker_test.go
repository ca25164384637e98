// ABOUTME: Tests for the turn dedupe tracker
// ABOUTME: Covers TTL expiry, conversation scoping, eviction and concurrency

package dedupe

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTracker_FirstSightIsNotDuplicate(t *testing.T) {
	tr := NewTracker(5*time.Minute, 100)
	defer tr.Close()

	assert.False(t, tr.Seen("conv-1", "msg-1"))
	assert.True(t, tr.Seen("conv-1", "msg-1"))
}

func TestTracker_ScopedByConversation(t *testing.T) {
	tr := NewTracker(5*time.Minute, 100)
	defer tr.Close()

	assert.False(t, tr.Seen("conv-1", "msg-1"))
	assert.False(t, tr.Seen("conv-2", "msg-1"), "same turn ID in another conversation is distinct")
}

func TestTracker_ExpiredEntryIsFreshAgain(t *testing.T) {
	tr := NewTracker(10*time.Millisecond, 100)
	defer tr.Close()

	assert.False(t, tr.Seen("conv-1", "msg-1"))
	time.Sleep(20 * time.Millisecond)
	assert.False(t, tr.Seen("conv-1", "msg-1"))
}

func TestTracker_EvictsOldestAtCapacity(t *testing.T) {
	tr := NewTracker(5*time.Minute, 3)
	defer tr.Close()

	tr.Seen("conv", "a")
	tr.Seen("conv", "b")
	tr.Seen("conv", "c")
	tr.Seen("conv", "d") // evicts "a"

	assert.False(t, tr.Seen("conv", "a"), "oldest entry was evicted")
	assert.True(t, tr.Seen("conv", "d"))
}

func TestTracker_ConcurrentAccess(t *testing.T) {
	tr := NewTracker(5*time.Minute, 1000)
	defer tr.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tr.Seen("conv", fmt.Sprintf("msg-%d-%d", n, j))
			}
		}(i)
	}
	wg.Wait()
}

func TestTracker_CloseIsIdempotent(t *testing.T) {
	tr := NewTracker(time.Minute, 10)
	tr.Close()
	tr.Close()
}
