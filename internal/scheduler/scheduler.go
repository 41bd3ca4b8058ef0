// internal/scheduler/scheduler.go
package scheduler

import (
	"sync"
	"time"
)

// Keyed is an arena of pending one-shot tasks, at most one per key.
// Scheduling under an existing key replaces the pending task, so rapid
// re-scheduling never leaves a stale timer behind. CancelAll is the teardown
// contract: once it returns, no task callback will fire.
type Keyed struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
	wg     sync.WaitGroup
}

// NewKeyed creates an empty task arena.
func NewKeyed() *Keyed {
	return &Keyed{timers: make(map[string]*time.Timer)}
}

// Schedule arranges for fn to run after delay, replacing any task already
// pending under the same key.
func (k *Keyed) Schedule(key string, delay time.Duration, fn func()) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if t, ok := k.timers[key]; ok {
		t.Stop()
	}

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		k.mu.Lock()
		// Only run if this exact timer is still the registered one: a
		// replacement or cancellation that raced the firing wins. The
		// WaitGroup add happens under the lock so Drain cannot miss a
		// callback that already won.
		live := k.timers[key] == timer
		if live {
			delete(k.timers, key)
			k.wg.Add(1)
		}
		k.mu.Unlock()
		if live {
			defer k.wg.Done()
			fn()
		}
	})
	k.timers[key] = timer
}

// Cancel drops the pending task under key, if any.
func (k *Keyed) Cancel(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if t, ok := k.timers[key]; ok {
		t.Stop()
		delete(k.timers, key)
	}
}

// CancelAll drops every pending task. Callbacks that already started racing
// the cancellation find themselves deregistered and do not run.
func (k *Keyed) CancelAll() {
	k.mu.Lock()
	defer k.mu.Unlock()
	for key, t := range k.timers {
		t.Stop()
		delete(k.timers, key)
	}
}

// Drain cancels every pending task and then blocks until callbacks already
// past their liveness check have returned. Unlike CancelAll it must not be
// called while holding a lock the callbacks themselves take.
func (k *Keyed) Drain() {
	k.CancelAll()
	k.wg.Wait()
}

// Len reports the number of pending tasks.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.timers)
}
