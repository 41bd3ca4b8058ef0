// internal/alert/dispatcher.go
package alert

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/user/threatsight/internal/metrics"
	"github.com/user/threatsight/internal/types"
)

// DispatcherOptions configures alert triggering and delivery.
type DispatcherOptions struct {
	// Targets are "<sink>:<address>" destinations for every alert.
	Targets []string

	// MinInterval rate-limits alerts per target; defaults to 30s.
	MinInterval time.Duration

	// AdvisoryURL, when set, is fetched and appended to each alert as a
	// markdown summary.
	AdvisoryURL string

	Retry *RetryPolicy
	Clock func() time.Time
}

// Dispatcher watches the enriched message stream and notifies operators when
// an error-class message appears. It sits on the ingest fan-out as a feed
// sink; delivery happens off the ingest goroutine.
type Dispatcher struct {
	registry    *Registry
	targets     []string
	minInterval time.Duration
	advisoryURL string
	advisory    *AdvisoryFetcher
	retry       *RetryPolicy
	now         func() time.Time

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// Compile-time interface compliance check.
var _ types.FeedSink = (*Dispatcher)(nil)

// NewDispatcher creates a Dispatcher delivering through the given registry.
func NewDispatcher(registry *Registry, opts DispatcherOptions) *Dispatcher {
	if opts.MinInterval <= 0 {
		opts.MinInterval = 30 * time.Second
	}
	if opts.Retry == nil {
		opts.Retry = DefaultRetryPolicy()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Dispatcher{
		registry:    registry,
		targets:     opts.Targets,
		minInterval: opts.MinInterval,
		advisoryURL: opts.AdvisoryURL,
		advisory:    NewAdvisoryFetcher(),
		retry:       opts.Retry,
		now:         opts.Clock,
		lastSent:    make(map[string]time.Time),
	}
}

// Publish implements types.FeedSink.
func (d *Dispatcher) Publish(msg *types.Message) {
	if !shouldAlert(msg) {
		return
	}
	go d.dispatch(msg)
}

// shouldAlert triggers on explicit error reports and on failed high-priority
// messages.
func shouldAlert(msg *types.Message) bool {
	if msg.Type == types.TypeErrorReport {
		return true
	}
	return !msg.Success && msg.Priority == types.PriorityHigh
}

func (d *Dispatcher) dispatch(msg *types.Message) {
	alertID := types.NewAlertID()
	text := FormatAlert(msg)

	if d.advisoryURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		summary, err := d.advisory.Summary(ctx, d.advisoryURL)
		cancel()
		if err != nil {
			slog.Warn("advisory fetch failed", "url", d.advisoryURL, "error", err)
		} else {
			text += "\n\n" + summary
		}
	}

	for _, target := range d.targets {
		if !d.allow(target) {
			continue
		}
		err := d.retry.Execute(func() error {
			return d.registry.Deliver(target, text)
		})
		if err != nil {
			metrics.AlertsFailed.Inc()
			slog.Error("alert delivery failed", "alert_id", string(alertID), "target", target, "message_id", string(msg.ID), "error", err)
			continue
		}
		metrics.AlertsSent.Inc()
		slog.Info("alert delivered", "alert_id", string(alertID), "target", target, "message_id", string(msg.ID))
	}
}

// allow enforces the per-target rate limit.
func (d *Dispatcher) allow(target string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	if last, ok := d.lastSent[target]; ok && now.Sub(last) < d.minInterval {
		return false
	}
	d.lastSent[target] = now
	return true
}

// FormatAlert renders one message as notification text.
func FormatAlert(msg *types.Message) string {
	status := "succeeded"
	if !msg.Success {
		status = "FAILED"
	}
	text := fmt.Sprintf("ThreatSight alert: %s from %s to %s %s (priority %s, latency %s)",
		msg.Type, msg.SourceID, msg.TargetID, status, msg.Priority, msg.Latency)
	if detail, ok := msg.Payload["error"].(string); ok && detail != "" {
		text += "\nerror: " + detail
	}
	if msg.CorrelationID != "" {
		text += "\ncorrelation: " + string(msg.CorrelationID)
	}
	return text
}
