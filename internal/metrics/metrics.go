// Package metrics provides a small Prometheus-text-format collector for the
// service's operational counters, without pulling in client_golang.
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Collector is the process-wide metrics collector.
var Collector = NewCollector()

// CollectorSet aggregates named counters and gauges.
type CollectorSet struct {
	mu        sync.Mutex
	counters  map[string]*Counter
	gauges    map[string]*Gauge
	startTime time.Time
}

// NewCollector creates an empty collector.
func NewCollector() *CollectorSet {
	return &CollectorSet{
		counters:  make(map[string]*Counter),
		gauges:    make(map[string]*Gauge),
		startTime: time.Now(),
	}
}

// Counter is a monotonically increasing counter.
type Counter struct {
	name  string
	help  string
	value atomic.Int64
}

func (c *Counter) Inc()         { c.value.Add(1) }
func (c *Counter) Add(n int64)  { c.value.Add(n) }
func (c *Counter) Value() int64 { return c.value.Load() }

// Gauge is a value that can go up and down.
type Gauge struct {
	name  string
	help  string
	value atomic.Int64
}

func (g *Gauge) Set(v int64)  { g.value.Store(v) }
func (g *Gauge) Inc()         { g.value.Add(1) }
func (g *Gauge) Dec()         { g.value.Add(-1) }
func (g *Gauge) Value() int64 { return g.value.Load() }

// Counter returns or creates the named counter.
func (s *CollectorSet) Counter(name, help string) *Counter {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.counters[name]; ok {
		return c
	}
	c := &Counter{name: name, help: help}
	s.counters[name] = c
	return c
}

// Gauge returns or creates the named gauge.
func (s *CollectorSet) Gauge(name, help string) *Gauge {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.gauges[name]; ok {
		return g
	}
	g := &Gauge{name: name, help: help}
	s.gauges[name] = g
	return g
}

// Handler renders every metric in Prometheus text exposition format.
func (s *CollectorSet) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		fmt.Fprintf(w, "# HELP threatsight_uptime_seconds Time since start in seconds\n")
		fmt.Fprintf(w, "# TYPE threatsight_uptime_seconds gauge\n")
		fmt.Fprintf(w, "threatsight_uptime_seconds %d\n", int64(time.Since(s.startTime).Seconds()))

		s.mu.Lock()
		names := make([]string, 0, len(s.counters))
		for name := range s.counters {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			c := s.counters[name]
			fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %d\n", c.name, c.help, c.name, c.name, c.Value())
		}

		names = names[:0]
		for name := range s.gauges {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			g := s.gauges[name]
			fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n%s %d\n", g.name, g.help, g.name, g.name, g.Value())
		}
		s.mu.Unlock()
	}
}

// Metrics used across the service.
var (
	MessagesIngested = Collector.Counter("threatsight_messages_ingested_total", "Messages accepted into the log")
	MessagesDropped  = Collector.Counter("threatsight_messages_dropped_total", "Messages rejected as duplicates or overflow")
	AlertsSent       = Collector.Counter("threatsight_alerts_sent_total", "Alert notifications delivered")
	AlertsFailed     = Collector.Counter("threatsight_alerts_failed_total", "Alert notifications that exhausted retries")
	ProxyRequests    = Collector.Counter("threatsight_proxy_requests_total", "Requests forwarded to backend services")
	ProxyErrors      = Collector.Counter("threatsight_proxy_errors_total", "Backend forwarding failures")
	FeedClients      = Collector.Gauge("threatsight_feed_clients", "Connected live-feed clients")
)
