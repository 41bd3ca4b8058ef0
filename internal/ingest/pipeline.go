// internal/ingest/pipeline.go
package ingest

import (
	"context"
	"log/slog"

	"github.com/user/threatsight/internal/metrics"
	"github.com/user/threatsight/internal/types"
)

// Pipeline carries raw events from any producer (simulation driver, HTTP
// ingest) through enrichment into the message log, then fans the enriched
// record out to the registered sinks (live feed, alert dispatcher).
type Pipeline struct {
	log   types.MessageLog
	queue *Queue
	sinks []types.FeedSink
}

// New creates a Pipeline over the given log with the given concurrency limit.
func New(log types.MessageLog, maxConcurrent int64, sinks ...types.FeedSink) *Pipeline {
	p := &Pipeline{
		log:   log,
		queue: NewQueue(maxConcurrent),
		sinks: sinks,
	}
	p.queue.SetProcessor(p.process)
	return p
}

// AddSink registers an additional fan-out target. Not safe to call after
// Start.
func (p *Pipeline) AddSink(sink types.FeedSink) {
	p.sinks = append(p.sinks, sink)
}

// Start begins accepting events.
func (p *Pipeline) Start(ctx context.Context) {
	p.queue.Start(ctx)
}

// Stop drains the queue and stops accepting events.
func (p *Pipeline) Stop() {
	p.queue.Stop()
}

// Submit enqueues a raw event for enrichment. It returns immediately; the
// enriched record reaches consumers through the sinks.
func (p *Pipeline) Submit(raw *types.RawMessage) error {
	return p.queue.Enqueue(raw)
}

func (p *Pipeline) process(raw *types.RawMessage) {
	p.ProcessSync(raw)
}

// ProcessSync enriches and stores a raw event immediately, bypassing the
// per-agent queue, and fans the record out to sinks when it was accepted.
// Callers that need the enriched record in-band (the HTTP submit endpoint)
// use this instead of Submit.
func (p *Pipeline) ProcessSync(raw *types.RawMessage) (*types.Message, bool) {
	msg, added := p.log.Process(raw)
	if !added {
		metrics.MessagesDropped.Inc()
		slog.Debug("duplicate message dropped", "message_id", string(msg.ID))
		return msg, false
	}
	metrics.MessagesIngested.Inc()
	for _, sink := range p.sinks {
		sink.Publish(msg)
	}
	return msg, true
}

// Queue exposes the underlying queue for idle checks in tests and teardown.
func (p *Pipeline) Queue() *Queue {
	return p.queue
}
