// internal/ingest/queue.go
package ingest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/user/threatsight/internal/types"
)

const laneBuffer = 100

// Queue manages per-agent lanes with a global concurrency semaphore. Each
// source agent gets its own FIFO channel so that its events are enriched in
// arrival order (keeping per-agent timestamps monotonic), while the semaphore
// caps total concurrent enrichment across agents.
type Queue struct {
	lanes     map[types.AgentID]chan *types.RawMessage
	semaphore *semaphore.Weighted
	processor func(*types.RawMessage)

	// depth counts events accepted by Enqueue whose processing has not yet
	// finished, whether buffered in a lane or in flight.
	depth atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewQueue creates a Queue allowing up to maxConcurrent events in flight.
func NewQueue(maxConcurrent int64) *Queue {
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	return &Queue{
		lanes:     make(map[types.AgentID]chan *types.RawMessage),
		semaphore: semaphore.NewWeighted(maxConcurrent),
	}
}

// SetProcessor sets the function invoked for each dequeued event.
func (q *Queue) SetProcessor(fn func(*types.RawMessage)) {
	q.processor = fn
}

// Start initialises the queue's context. Must be called before Enqueue.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ctx, q.cancel = context.WithCancel(ctx)
}

// Stop cancels the queue context, closes all lanes, and waits for in-flight
// processors to finish.
func (q *Queue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
	q.mu.Lock()
	for _, lane := range q.lanes {
		close(lane)
	}
	q.lanes = make(map[types.AgentID]chan *types.RawMessage)
	q.mu.Unlock()
	q.wg.Wait()
}

// Enqueue adds an event to its source agent's lane, creating the lane (and
// its goroutine) on first use. Returns an error if the lane's buffer is full.
func (q *Queue) Enqueue(raw *types.RawMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ctx == nil {
		return fmt.Errorf("ingest queue not started")
	}

	lane, exists := q.lanes[raw.SourceID]
	if !exists {
		lane = make(chan *types.RawMessage, laneBuffer)
		q.lanes[raw.SourceID] = lane
		q.wg.Add(1)
		go q.processLane(lane)
	}

	select {
	case lane <- raw:
		q.depth.Add(1)
		return nil
	default:
		return fmt.Errorf("ingest lane full for agent %s", raw.SourceID)
	}
}

// processLane drains one agent's lane, acquiring a semaphore slot before
// running the processor synchronously.
func (q *Queue) processLane(lane chan *types.RawMessage) {
	defer q.wg.Done()
	for {
		select {
		case raw, ok := <-lane:
			if !ok {
				return
			}
			if err := q.semaphore.Acquire(q.ctx, 1); err != nil {
				return
			}
			if q.processor != nil {
				q.processor(raw)
			}
			q.depth.Add(-1)
			q.semaphore.Release(1)
		case <-q.ctx.Done():
			return
		}
	}
}

// WaitIdle blocks until every accepted event has finished processing,
// including events still buffered in their lanes, or the timeout expires.
// Returns true if idle, false if timed out.
func (q *Queue) WaitIdle(timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if q.depth.Load() == 0 {
			return true
		}
		select {
		case <-deadline:
			return false
		case <-time.After(10 * time.Millisecond):
		}
	}
}
