// ABOUTME: Thread-safe TTL tracker for at-most-once turn processing
// ABOUTME: Keys are conversation-scoped turn IDs; oldest entries evict first

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

type seenEntry struct {
	at      time.Time
	element *list.Element
}

// Tracker remembers recently processed turns so redelivered webhooks are
// dropped instead of answered twice. Entries expire after the TTL and the
// tracker is size-bounded, evicting the oldest key when full.
type Tracker struct {
	mu      sync.RWMutex
	seen    map[string]*seenEntry
	order   *list.List // keys in insertion order, oldest at front
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// NewTracker creates a turn tracker with the given TTL and capacity. A
// background goroutine sweeps expired entries once a minute.
func NewTracker(ttl time.Duration, maxSize int) *Tracker {
	t := &Tracker{
		seen:    make(map[string]*seenEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go t.sweep()
	return t
}

// turnKey scopes a turn ID to its conversation. Platforms only guarantee
// message ID uniqueness within a conversation.
func turnKey(conversationID, turnID string) string {
	return conversationID + "\x00" + turnID
}

// Seen atomically reports whether the turn was already processed, marking it
// as processed if not. Returns true for duplicates.
func (t *Tracker) Seen(conversationID, turnID string) bool {
	key := turnKey(conversationID, turnID)

	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.seen[key]
	if ok && time.Since(entry.at) < t.ttl {
		return true
	}
	t.markLocked(key)
	return false
}

// markLocked records a key. Must be called with mu held.
func (t *Tracker) markLocked(key string) {
	now := time.Now()

	if entry, exists := t.seen[key]; exists {
		entry.at = now
		t.order.MoveToBack(entry.element)
		return
	}

	if len(t.seen) >= t.maxSize {
		t.evictOldest()
	}

	elem := t.order.PushBack(key)
	t.seen[key] = &seenEntry{at: now, element: elem}
}

// evictOldest removes the oldest entry. Must be called with mu held.
func (t *Tracker) evictOldest() {
	front := t.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	t.order.Remove(front)
	delete(t.seen, key)
}

func (t *Tracker) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.runSweep()
		case <-t.done:
			return
		}
	}
}

func (t *Tracker) runSweep() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	for key, entry := range t.seen {
		if now.Sub(entry.at) > t.ttl {
			t.order.Remove(entry.element)
			delete(t.seen, key)
		}
	}
}

// Close stops the background sweeper. Safe to call multiple times.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.closed {
		close(t.done)
		t.closed = true
	}
}
