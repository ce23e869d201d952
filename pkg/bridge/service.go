// Package bridge is the hardware bridge engine: it serializes commands onto
// the single wrapper channel, correlates the unlabeled responses back to
// their callers, keeps the authoritative per-signal state cache, and feeds
// the broadcaster that fans deltas out to observers.
package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hilworks/arduino_bridge/pkg/broadcast"
	"github.com/hilworks/arduino_bridge/pkg/signalmap"
	"github.com/hilworks/arduino_bridge/pkg/transport"
	"github.com/hilworks/arduino_bridge/pkg/wire"
	"github.com/sirupsen/logrus"
)

// Link is the write side of the transport session.
type Link interface {
	WriteLine(line string) error
}

// Counters are cheap observability totals exposed on /api/status.
type Counters struct {
	CommandsSent     uint64 `json:"commands_sent"`
	ResponsesMatched uint64 `json:"responses_matched"`
	Telemetry        uint64 `json:"telemetry"`
	Timeouts         uint64 `json:"timeouts"`
	ParseFailures    uint64 `json:"parse_failures"`
}

// Engine implements the dispatcher, correlator, pin cache and polling
// scheduler. One mutex guards pending set, cache and connectivity so all
// state transitions are serialized, matching the single-writer discipline
// of the physical channel.
type Engine struct {
	signals *signalmap.Map
	bus     *broadcast.Broadcaster
	link    Link
	policy  MatchPolicy
	cfg     Config

	// sendMu serializes register+write so commands hit the wire in Send
	// call order.
	sendMu sync.Mutex

	mu            sync.Mutex
	pending       []*PendingCommand
	cache         *PinStateCache
	connected     bool
	transportDesc string
	counters      Counters

	stop chan struct{}
	once sync.Once
}

func NewEngine(signals *signalmap.Map, bus *broadcast.Broadcaster, link Link, cfg Config, policy MatchPolicy) *Engine {
	if policy == nil {
		policy = RecencyPolicy{}
	}
	cfg = cfg.withDefaults()
	return &Engine{
		signals: signals,
		bus:     bus,
		link:    link,
		policy:  policy,
		cfg:     cfg,
		cache:   NewPinStateCache(signals, cfg.ShowFrequency),
		stop:    make(chan struct{}),
	}
}

// Start launches the timeout sweeper and the polling scheduler.
func (e *Engine) Start() {
	go e.runSweeper()
	go e.runPoller()
}

// Stop halts the background tickers. Idempotent.
func (e *Engine) Stop() {
	e.once.Do(func() { close(e.stop) })
}

// Send dispatches a command and blocks until it resolves or ctx ends.
func (e *Engine) Send(ctx context.Context, req Request) (*wire.Response, time.Duration, error) {
	result, err := e.SendAsync(req)
	if err != nil {
		return nil, 0, err
	}
	select {
	case res := <-result:
		return res.Response, res.Latency, res.Err
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	}
}

// SendAsync dispatches a command and returns the channel its result will be
// delivered on, exactly once.
func (e *Engine) SendAsync(req Request) (<-chan CommandResult, error) {
	var pin, sigName string
	if req.Command.SignalScoped() {
		sig, ok := e.signals.ByName(req.Signal)
		if !ok {
			sig, ok = e.signals.ByPin(req.Signal)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownSignal, req.Signal)
		}
		pin = sig.Pin
		sigName = sig.Name
	}

	line, err := wire.Encode(wire.Command{Type: req.Command, Pin: pin, Arg: req.Value}, e.cfg.Checksum)
	if err != nil {
		return nil, err
	}

	pc := &PendingCommand{
		ID:       uuid.NewString(),
		Type:     req.Command,
		Category: wire.ExpectedCategory(req.Command),
		Signal:   sigName,
		Pin:      pin,
		Line:     line,
		result:   make(chan CommandResult, 1),
	}

	e.sendMu.Lock()
	pc.IssuedAt = time.Now()
	e.mu.Lock()
	e.pending = append(e.pending, pc)
	e.counters.CommandsSent++
	e.mu.Unlock()
	err = e.link.WriteLine(line)
	e.sendMu.Unlock()

	if err != nil {
		e.removePending(pc)
		return nil, err
	}

	e.bus.Publish(broadcast.NewEvent(broadcast.TypeCommandSent, CommandSentData{
		ID:      pc.ID,
		Command: string(pc.Type),
		Signal:  pc.Signal,
		Pin:     pc.Pin,
		Value:   req.Value,
		Line:    line,
	}))
	return pc.result, nil
}

// HandleLine is the correlator entry point; the transport session calls it
// for every inbound line.
func (e *Engine) HandleLine(line string) {
	resp, err := wire.Parse(line, e.cfg.Checksum)
	if err != nil {
		e.mu.Lock()
		e.counters.ParseFailures++
		e.mu.Unlock()
		logrus.Warnf("Discarding malformed wrapper line: %v", err)
		return
	}

	e.mu.Lock()
	idx := e.policy.Match(e.pending, resp)
	var pc *PendingCommand
	if idx >= 0 {
		pc = e.pending[idx]
		e.pending = append(e.pending[:idx], e.pending[idx+1:]...)
		e.counters.ResponsesMatched++
	} else {
		e.counters.Telemetry++
	}
	e.mu.Unlock()

	if pc != nil {
		latency := time.Since(pc.IssuedAt)
		if latency < 0 {
			latency = 0
		}
		var resErr error
		if resp.Category == wire.CatError {
			resErr = fmt.Errorf("wrapper error: %s", resp.Value)
		}
		pc.result <- CommandResult{Response: resp, Latency: latency, Err: resErr}
		e.publishResolution(pc, resp, latency, resErr)
	}

	// Value-bearing responses feed the cache whether matched or not.
	e.applyTelemetry(resp)
}

// HandleSessionState is the transport session's state callback. Observers
// get exactly one connection_status per connectivity edge, not one per
// retry attempt.
func (e *Engine) HandleSessionState(st transport.State, desc string) {
	connected := st == transport.StateConnected

	e.mu.Lock()
	edge := connected != e.connected
	e.connected = connected
	e.transportDesc = desc
	var flushed []*PendingCommand
	if edge && !connected {
		e.cache.MarkStale()
		flushed = e.pending
		e.pending = nil
	}
	e.mu.Unlock()

	for _, pc := range flushed {
		pc.result <- CommandResult{Err: ErrConnectionLost}
		e.publishResolution(pc, nil, 0, ErrConnectionLost)
	}

	if edge {
		e.bus.Publish(broadcast.NewEvent(broadcast.TypeConnectionStatus, ConnectionStatusData{
			Connected: connected,
			Transport: desc,
			State:     string(st),
		}))
	}
}

// Snapshot captures the cache plus connectivity for a joining observer.
func (e *Engine) Snapshot() SnapshotData {
	e.mu.Lock()
	defer e.mu.Unlock()
	return SnapshotData{
		Connected: e.connected,
		Transport: e.transportDesc,
		Pins:      e.cache.Snapshot(),
	}
}

// Connected reports current wrapper connectivity.
func (e *Engine) Connected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connected
}

// Counters copies the observability totals.
func (e *Engine) Counters() Counters {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.counters
}

// PendingCount returns the number of in-flight commands.
func (e *Engine) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// SetShowFrequency flips the frequency presentation flag; signals whose
// derived display changed are re-broadcast even though raw values did not
// move.
func (e *Engine) SetShowFrequency(show bool) {
	e.mu.Lock()
	changed := e.cache.SetShowFrequency(show)
	e.mu.Unlock()
	for _, st := range changed {
		e.bus.Publish(broadcast.NewEvent(broadcast.TypePinUpdate, PinUpdateData{
			Signal:   st.Signal,
			PinState: st,
		}))
	}
}

func (e *Engine) publishResolution(pc *PendingCommand, resp *wire.Response, latency time.Duration, resErr error) {
	data := CommandResponseData{
		ID:        pc.ID,
		Command:   string(pc.Type),
		Signal:    pc.Signal,
		Pin:       pc.Pin,
		LatencyMs: float64(latency.Microseconds()) / 1000.0,
		OK:        resErr == nil,
	}
	if resp != nil {
		data.Response = resp.Raw
	}
	if resErr != nil {
		data.Error = resErr.Error()
	}
	e.bus.Publish(broadcast.NewEvent(broadcast.TypeCommandResponse, data))
}

func (e *Engine) applyTelemetry(resp *wire.Response) {
	switch resp.Category {
	case wire.CatPin, wire.CatADC, wire.CatPWM, wire.CatFreq:
	default:
		return
	}

	sig, ok := e.signals.ByPin(resp.Pin)
	if !ok {
		logrus.Debugf("Telemetry for unmapped pin %s ignored", resp.Pin)
		return
	}

	e.mu.Lock()
	state, changed := e.cache.Update(sig, resp.Category, resp.Value, time.Now())
	e.mu.Unlock()

	if changed {
		e.bus.Publish(broadcast.NewEvent(broadcast.TypePinUpdate, PinUpdateData{
			Signal:   sig.Name,
			PinState: state,
		}))
	}
}

func (e *Engine) removePending(pc *PendingCommand) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, p := range e.pending {
		if p == pc {
			e.pending = append(e.pending[:i], e.pending[i+1:]...)
			return
		}
	}
}

// runSweeper evicts pending commands older than the configured timeout so
// the pending set stays bounded even when the hardware stops responding.
func (e *Engine) runSweeper() {
	interval := e.cfg.CommandTimeout / 4
	if interval > 250*time.Millisecond {
		interval = 250 * time.Millisecond
	}
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stop:
			return
		case now := <-ticker.C:
			e.sweepExpired(now)
		}
	}
}

func (e *Engine) sweepExpired(now time.Time) {
	var expired []*PendingCommand
	e.mu.Lock()
	kept := e.pending[:0]
	for _, pc := range e.pending {
		if now.Sub(pc.IssuedAt) > e.cfg.CommandTimeout {
			expired = append(expired, pc)
		} else {
			kept = append(kept, pc)
		}
	}
	e.pending = kept
	e.counters.Timeouts += uint64(len(expired))
	e.mu.Unlock()

	for _, pc := range expired {
		logrus.Warnf("Command %s (%s) timed out after %v", pc.ID, pc.Type, e.cfg.CommandTimeout)
		pc.result <- CommandResult{Err: ErrCommandTimeout}
		e.publishResolution(pc, nil, 0, ErrCommandTimeout)
	}
}

// runPoller issues one read per pollable signal each tick so push-only
// observers see fresh state even for signals the wrapper never volunteers.
func (e *Engine) runPoller() {
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
			e.PollOnce()
		}
	}
}

// PollOnce issues the read commands for one scheduler tick. Results are
// drained and dropped; state flows into the cache through the correlator
// like any other response.
func (e *Engine) PollOnce() {
	if !e.Connected() {
		return
	}
	for _, sig := range e.signals.Pollable() {
		var cmd wire.CommandType
		switch sig.Direction {
		case signalmap.DirectionAnalog:
			cmd = wire.CmdReadADC
		case signalmap.DirectionPWM:
			cmd = wire.CmdReadPWM
		default:
			cmd = wire.CmdReadPin
		}
		result, err := e.SendAsync(Request{Command: cmd, Signal: sig.Name})
		if err != nil {
			logrus.Debugf("Poll of %s skipped: %v", sig.Name, err)
			continue
		}
		go func(name string) {
			if res := <-result; res.Err != nil {
				logrus.Debugf("Poll of %s failed: %v", name, res.Err)
			}
		}(sig.Name)
	}
}
