// internal/simulation/driver.go
package simulation

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/user/threatsight/internal/scheduler"
	"github.com/user/threatsight/internal/types"
)

// SubmitFunc hands a generated event to the ingest pipeline.
type SubmitFunc func(*types.RawMessage) error

// cronParser accepts both standard 5-field cron expressions and 6-field
// expressions with an optional seconds field.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Driver emits scenario traffic on an interval, with optional cron-scheduled
// bursts and delayed correlated responses. Stopping it is the session
// teardown: the ticker halts, the cron stops, every pending response timer is
// cancelled, and the message log resets. Nothing fires afterwards.
type Driver struct {
	scenario *Scenario
	log      types.MessageLog
	submit   SubmitFunc
	sched    *scheduler.Keyed
	cron     *cron.Cron
	drain    func()

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
	caseSeq int
}

// NewDriver creates a Driver over the given scenario. submit is typically the
// ingest pipeline's Submit.
func NewDriver(scenario *Scenario, log types.MessageLog, submit SubmitFunc) *Driver {
	return &Driver{
		scenario: scenario,
		log:      log,
		submit:   submit,
		sched:    scheduler.NewKeyed(),
	}
}

// SetDrain registers a hook run during Stop, after event generation has
// halted and before the log is cleared, so an asynchronous ingest path can
// flush events already handed to submit. Not safe to call after Start.
func (d *Driver) SetDrain(fn func()) {
	d.drain = fn
}

// Start begins emitting traffic. Returns an error if already running, the
// scenario is not runnable, or the burst schedule does not parse.
func (d *Driver) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return fmt.Errorf("simulation already running")
	}
	if err := d.scenario.Validate(); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})
	d.running = true

	d.cron = cron.New(cron.WithParser(cronParser))
	if d.scenario.BurstSchedule != "" {
		if _, err := d.cron.AddFunc(d.scenario.BurstSchedule, d.burst); err != nil {
			cancel()
			d.running = false
			return fmt.Errorf("invalid burst schedule %q: %w", d.scenario.BurstSchedule, err)
		}
		d.cron.Start()
	}

	go d.run(runCtx)
	slog.Info("simulation started",
		"scenario", d.scenario.Name,
		"agents", len(d.scenario.Agents),
		"interval", time.Duration(d.scenario.Interval).String(),
	)
	return nil
}

// Stop tears the session down synchronously: no generated event or delayed
// response reaches the pipeline after it returns, and the log is reset.
func (d *Driver) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	cancel := d.cancel
	done := d.done
	d.mu.Unlock()

	cancel()
	<-done
	if d.cron != nil {
		// cron.Stop only halts scheduling; wait for a burst still running.
		<-d.cron.Stop().Done()
	}
	d.sched.Drain()
	if d.drain != nil {
		d.drain()
	}
	d.log.Clear()
	slog.Info("simulation stopped", "scenario", d.scenario.Name)
}

// Running reports whether the driver is emitting.
func (d *Driver) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

func (d *Driver) run(ctx context.Context) {
	defer close(d.done)
	ticker := time.NewTicker(time.Duration(d.scenario.Interval))
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.emit()
		case <-ctx.Done():
			return
		}
	}
}

// burst emits a spike of events, fired from the cron schedule.
func (d *Driver) burst() {
	n := d.scenario.BurstSize
	if n <= 0 {
		n = 5
	}
	slog.Debug("simulation burst", "size", n)
	for i := 0; i < n; i++ {
		d.emit()
	}
}

func (d *Driver) emit() {
	msgType := d.pickType()
	source, target := d.pickPair()

	raw := &types.RawMessage{
		SourceID: source,
		TargetID: target,
		Type:     msgType,
		Priority: pickPriority(),
		Latency:  time.Duration(50+rand.IntN(500)) * time.Millisecond,
	}

	switch msgType {
	case types.TypeTaskDelegation:
		caseID := d.nextCase()
		raw.Payload = map[string]any{
			"text":     fmt.Sprintf("delegate review of case %s to %s", caseID, target),
			"task":     "case-review",
			"assignee": string(target),
			"deadline": "4h",
			"case":     caseID,
		}
	case types.TypeDataQuery:
		d.emitQuery(raw)
		return
	case types.TypeValidationRequest:
		raw.Payload = map[string]any{
			"text":      fmt.Sprintf("validate claim from %s against sanctions evidence", source),
			"claim":     "entity-match",
			"evidence":  []any{"watchlist", "device-fingerprint"},
			"threshold": 0.8,
		}
	case types.TypeConsensusVote:
		d.emitConsensusRound(raw)
		return
	case types.TypeToolInvocation:
		d.emitToolInvocation(raw)
		return
	default:
		raw.Payload = map[string]any{
			"text": fmt.Sprintf("status update from %s", source),
		}
	}

	d.send(raw)
}

// emitQuery sends a data query and, with ResponseRate probability, schedules
// the correlated result_return to arrive after the query's latency.
func (d *Driver) emitQuery(raw *types.RawMessage) {
	raw.ID = types.NewMessageID()
	raw.CorrelationID = types.NewCorrelationID()
	entity := fmt.Sprintf("acct-%d", rand.IntN(900)+100)
	raw.Payload = map[string]any{
		"text":    fmt.Sprintf("query transaction history for entity %s", entity),
		"query":   "transaction-history",
		"entity":  entity,
		"filters": map[string]any{"window": "30d", "min_amount": 500},
	}
	d.send(raw)

	if rand.Float64() >= d.scenario.ResponseRate {
		return
	}
	query := *raw
	d.sched.Schedule("response:"+string(query.ID), query.Latency, func() {
		records := rand.IntN(40)
		score := rand.Float64()
		d.send(&types.RawMessage{
			SourceID:      query.TargetID,
			TargetID:      query.SourceID,
			Type:          types.TypeResultReturn,
			CorrelationID: query.CorrelationID,
			ParentID:      query.ID,
			Priority:      query.Priority,
			Payload: map[string]any{
				"text":    fmt.Sprintf("result: %d records found, risk score %.2f", records, score),
				"result":  "ok",
				"records": records,
				"score":   score,
			},
		})
	})
}

// emitConsensusRound sends one vote per agent, all sharing a correlation ID.
func (d *Driver) emitConsensusRound(raw *types.RawMessage) {
	corrID := types.NewCorrelationID()
	round := rand.IntN(5) + 1
	for _, agent := range d.scenario.Agents {
		if agent.ID == raw.TargetID {
			continue
		}
		vote := "approve"
		if rand.Float64() < 0.3 {
			vote = "reject"
		}
		d.send(&types.RawMessage{
			SourceID:      agent.ID,
			TargetID:      raw.TargetID,
			Type:          types.TypeConsensusVote,
			CorrelationID: corrID,
			Priority:      raw.Priority,
			Payload: map[string]any{
				"text":       fmt.Sprintf("vote %s in round %d", vote, round),
				"vote":       vote,
				"round":      round,
				"confidence": 0.5 + rand.Float64()/2,
			},
		})
	}
}

func (d *Driver) emitToolInvocation(raw *types.RawMessage) {
	tools := []string{"graph_query", "sanctions_lookup", "velocity_check", "device_cluster"}
	tool := tools[rand.IntN(len(tools))]
	raw.Payload = map[string]any{
		"text":    fmt.Sprintf("invoke tool %s", tool),
		"tool":    tool,
		"args":    map[string]any{"depth": rand.IntN(3) + 1},
		"timeout": "10s",
	}
	if rand.Float64() < d.scenario.ErrorRate {
		failed := false
		raw.Success = &failed
		raw.Type = types.TypeErrorReport
		raw.Priority = types.PriorityHigh
		raw.Payload["text"] = fmt.Sprintf("error: %s failed with upstream timeout", tool)
		raw.Payload["error"] = "upstream timeout"
		raw.Payload["retriable"] = true
		delete(raw.Payload, "timeout")
	}
	d.send(raw)
}

func (d *Driver) send(raw *types.RawMessage) {
	if err := d.submit(raw); err != nil {
		slog.Warn("simulation submit failed", "error", err)
	}
}

func (d *Driver) pickType() types.MessageType {
	total := 0
	for _, w := range d.scenario.TypeWeights {
		total += w
	}
	if total == 0 {
		return types.TypeGeneric
	}
	n := rand.IntN(total)
	for _, t := range []types.MessageType{
		types.TypeTaskDelegation,
		types.TypeDataQuery,
		types.TypeResultReturn,
		types.TypeValidationRequest,
		types.TypeConsensusVote,
		types.TypeToolInvocation,
		types.TypeErrorReport,
	} {
		w := d.scenario.TypeWeights[t]
		if n < w {
			return t
		}
		n -= w
	}
	return types.TypeGeneric
}

func (d *Driver) pickPair() (types.AgentID, types.AgentID) {
	agents := d.scenario.Agents
	i := rand.IntN(len(agents))
	j := rand.IntN(len(agents) - 1)
	if j >= i {
		j++
	}
	return agents[i].ID, agents[j].ID
}

func (d *Driver) nextCase() string {
	d.mu.Lock()
	d.caseSeq++
	seq := d.caseSeq
	d.mu.Unlock()
	return fmt.Sprintf("C-%04d", seq)
}

func pickPriority() types.Priority {
	switch rand.IntN(10) {
	case 0:
		return types.PriorityHigh
	case 1, 2, 3:
		return types.PriorityLow
	default:
		return types.PriorityMedium
	}
}
