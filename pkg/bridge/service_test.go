package bridge

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hilworks/arduino_bridge/pkg/broadcast"
	"github.com/hilworks/arduino_bridge/pkg/signalmap"
	"github.com/hilworks/arduino_bridge/pkg/transport"
	"github.com/hilworks/arduino_bridge/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const engineTestMap = `
signals:
  - name: POWER_ENABLE
    pin: D2
    direction: output
  - name: STATUS_LED
    pin: D3
    direction: input
  - name: RESET_LINE
    pin: D4
    direction: output
    no_poll: true
  - name: VBAT_SENSE
    pin: A0
    direction: analog
    scale: 0.01
    unit: V
  - name: FAN_TACH
    pin: D9
    direction: pwm
`

type fakeLink struct {
	mu    sync.Mutex
	lines []string
	err   error
}

func (l *fakeLink) WriteLine(line string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.lines = append(l.lines, line)
	return nil
}

func (l *fakeLink) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}

// newTestEngine builds an engine without Start(): no background tickers, so
// tests drive the correlator and sweeper directly.
func newTestEngine(t *testing.T, cfg Config) (*Engine, *fakeLink, *broadcast.Broadcaster) {
	t.Helper()
	m, err := signalmap.Parse([]byte(engineTestMap))
	require.NoError(t, err)
	link := &fakeLink{}
	bus := broadcast.NewBroadcaster()
	return NewEngine(m, bus, link, cfg, nil), link, bus
}

func connect(e *Engine) {
	e.HandleSessionState(transport.StateConnected, "sim")
}

// drainEvents empties everything already published to the subscription.
// Publish is synchronous, so events from a completed call are always here.
func drainEvents(sub *broadcast.Subscription) []broadcast.Event {
	var out []broadcast.Event
	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func eventsOfType(events []broadcast.Event, eventType string) []broadcast.Event {
	var out []broadcast.Event
	for _, ev := range events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

func TestPingResolves(t *testing.T) {
	e, link, _ := newTestEngine(t, Config{})
	connect(e)

	result, err := e.SendAsync(Request{Command: wire.CmdPing})
	require.NoError(t, err)
	assert.Equal(t, []string{"PING"}, link.Lines())

	e.HandleLine("PONG")

	res := <-result
	require.NoError(t, res.Err)
	assert.Equal(t, wire.CatPong, res.Response.Category)
	assert.GreaterOrEqual(t, res.Latency, time.Duration(0))
	assert.Less(t, res.Latency, time.Second)
	assert.Equal(t, 0, e.PendingCount())
}

func TestReverseOrderResponsesResolveByPin(t *testing.T) {
	e, link, _ := newTestEngine(t, Config{})
	connect(e)

	first, err := e.SendAsync(Request{Command: wire.CmdReadPin, Signal: "POWER_ENABLE"})
	require.NoError(t, err)
	second, err := e.SendAsync(Request{Command: wire.CmdReadPin, Signal: "STATUS_LED"})
	require.NoError(t, err)
	assert.Equal(t, []string{"READ_PIN D2", "READ_PIN D3"}, link.Lines())

	// Responses arrive in the opposite order; the pin token disambiguates.
	e.HandleLine("PIN D3 HIGH")
	e.HandleLine("PIN D2 LOW")

	res1 := <-first
	require.NoError(t, res1.Err)
	assert.Equal(t, "D2", res1.Response.Pin)
	assert.Equal(t, "LOW", res1.Response.Value)

	res2 := <-second
	require.NoError(t, res2.Err)
	assert.Equal(t, "D3", res2.Response.Pin)
	assert.Equal(t, "HIGH", res2.Response.Value)
}

func TestBareAckResolvesMostRecent(t *testing.T) {
	e, _, _ := newTestEngine(t, Config{})
	connect(e)

	older, err := e.SendAsync(Request{Command: wire.CmdWritePin, Signal: "POWER_ENABLE", Value: "HIGH"})
	require.NoError(t, err)
	newer, err := e.SendAsync(Request{Command: wire.CmdSetPWM, Signal: "FAN_TACH", Value: "128"})
	require.NoError(t, err)

	// OK carries no pin; LIFO attributes it to the set_pwm first.
	e.HandleLine("OK")
	resNewer := <-newer
	require.NoError(t, resNewer.Err)
	assert.Equal(t, 1, e.PendingCount())

	e.HandleLine("OK")
	resOlder := <-older
	require.NoError(t, resOlder.Err)
	assert.Equal(t, 0, e.PendingCount())
}

func TestWriteThenReadUpdatesCacheOnce(t *testing.T) {
	e, _, bus := newTestEngine(t, Config{})
	connect(e)
	_, sub := bus.Subscribe(func() any { return nil })
	defer sub.Close()

	write, err := e.SendAsync(Request{Command: wire.CmdWritePin, Signal: "POWER_ENABLE", Value: "HIGH"})
	require.NoError(t, err)
	e.HandleLine("OK")
	require.NoError(t, (<-write).Err)

	read, err := e.SendAsync(Request{Command: wire.CmdReadPin, Signal: "POWER_ENABLE"})
	require.NoError(t, err)
	e.HandleLine("PIN D2 HIGH")
	res := <-read
	require.NoError(t, res.Err)
	assert.Equal(t, "HIGH", res.Response.Value)

	// Bare ack touches no state; the read confirms it with one update.
	updates := eventsOfType(drainEvents(sub), broadcast.TypePinUpdate)
	require.Len(t, updates, 1)
	assert.Equal(t, "POWER_ENABLE", updates[0].Data.(PinUpdateData).Signal)
}

func TestErrorResolvesOldestPending(t *testing.T) {
	e, _, _ := newTestEngine(t, Config{})
	connect(e)

	result, err := e.SendAsync(Request{Command: wire.CmdWritePin, Signal: "RESET_LINE", Value: "HIGH"})
	require.NoError(t, err)

	e.HandleLine("ERR invalid pin state")

	res := <-result
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "invalid pin state")
	assert.Equal(t, 0, e.PendingCount())
}

func TestUnsolicitedTelemetryFeedsCache(t *testing.T) {
	e, _, bus := newTestEngine(t, Config{})
	connect(e)
	_, sub := bus.Subscribe(func() any { return nil })
	defer sub.Close()

	e.HandleLine("PIN D3 HIGH")

	counters := e.Counters()
	assert.Equal(t, uint64(1), counters.Telemetry)
	assert.Equal(t, uint64(0), counters.ResponsesMatched)

	updates := eventsOfType(drainEvents(sub), broadcast.TypePinUpdate)
	require.Len(t, updates, 1)
	data := updates[0].Data.(PinUpdateData)
	assert.Equal(t, "STATUS_LED", data.Signal)
	assert.Equal(t, "HIGH", data.PinState.Display)
	assert.False(t, data.PinState.Stale)

	snap := e.Snapshot()
	assert.Equal(t, "HIGH", snap.Pins["STATUS_LED"].Raw)
}

func TestIdenticalTelemetryNotRebroadcast(t *testing.T) {
	e, _, bus := newTestEngine(t, Config{})
	connect(e)
	_, sub := bus.Subscribe(func() any { return nil })
	defer sub.Close()

	e.HandleLine("ADC A0 512")
	e.HandleLine("ADC A0 512")
	e.HandleLine("ADC A0 640")

	updates := eventsOfType(drainEvents(sub), broadcast.TypePinUpdate)
	require.Len(t, updates, 2, "repeated identical reading must stay silent")
	assert.Equal(t, "512", updates[0].Data.(PinUpdateData).PinState.Raw)
	assert.Equal(t, "640", updates[1].Data.(PinUpdateData).PinState.Raw)
}

func TestTelemetryForUnmappedPinIgnored(t *testing.T) {
	e, _, bus := newTestEngine(t, Config{})
	connect(e)
	_, sub := bus.Subscribe(func() any { return nil })
	defer sub.Close()

	e.HandleLine("PIN D13 HIGH")

	assert.Empty(t, eventsOfType(drainEvents(sub), broadcast.TypePinUpdate))
}

func TestMalformedLineCountedAndDropped(t *testing.T) {
	e, _, _ := newTestEngine(t, Config{})
	connect(e)

	e.HandleLine("GARBAGE D3 HIGH")
	e.HandleLine("PIN D3")

	counters := e.Counters()
	assert.Equal(t, uint64(2), counters.ParseFailures)
	assert.Equal(t, 0, e.PendingCount())
}

func TestTimeoutSweepResolvesExpired(t *testing.T) {
	e, _, bus := newTestEngine(t, Config{CommandTimeout: 50 * time.Millisecond})
	connect(e)
	_, sub := bus.Subscribe(func() any { return nil })
	defer sub.Close()

	result, err := e.SendAsync(Request{Command: wire.CmdReadPin, Signal: "STATUS_LED"})
	require.NoError(t, err)

	// Not yet expired
	e.sweepExpired(time.Now())
	assert.Equal(t, 1, e.PendingCount())

	e.sweepExpired(time.Now().Add(100 * time.Millisecond))
	res := <-result
	assert.ErrorIs(t, res.Err, ErrCommandTimeout)
	assert.Equal(t, 0, e.PendingCount())
	assert.Equal(t, uint64(1), e.Counters().Timeouts)

	responses := eventsOfType(drainEvents(sub), broadcast.TypeCommandResponse)
	require.Len(t, responses, 1)
	assert.False(t, responses[0].Data.(CommandResponseData).OK)
}

func TestLateResponseAfterTimeoutIsTelemetry(t *testing.T) {
	e, _, _ := newTestEngine(t, Config{CommandTimeout: 50 * time.Millisecond})
	connect(e)

	result, err := e.SendAsync(Request{Command: wire.CmdReadPin, Signal: "STATUS_LED"})
	require.NoError(t, err)
	e.sweepExpired(time.Now().Add(time.Second))
	<-result

	e.HandleLine("PIN D3 HIGH")

	counters := e.Counters()
	assert.Equal(t, uint64(1), counters.Telemetry)
	snap := e.Snapshot()
	assert.Equal(t, "HIGH", snap.Pins["STATUS_LED"].Raw, "late value still lands in the cache")
}

func TestConnectionLossFlushesPendingOnce(t *testing.T) {
	e, _, bus := newTestEngine(t, Config{})
	connect(e)
	_, sub := bus.Subscribe(func() any { return nil })
	defer sub.Close()

	e.HandleLine("PIN D3 HIGH")
	result, err := e.SendAsync(Request{Command: wire.CmdPing})
	require.NoError(t, err)

	e.HandleSessionState(transport.StateReconnecting, "sim")
	// Retry churn must not emit further status events
	e.HandleSessionState(transport.StateConnecting, "sim")
	e.HandleSessionState(transport.StateReconnecting, "sim")

	res := <-result
	assert.ErrorIs(t, res.Err, ErrConnectionLost)
	assert.Equal(t, 0, e.PendingCount())
	assert.False(t, e.Connected())

	snap := e.Snapshot()
	st := snap.Pins["STATUS_LED"]
	assert.True(t, st.Stale)
	assert.Equal(t, "HIGH", st.Raw, "last known value survives the drop")

	events := drainEvents(sub)
	statuses := eventsOfType(events, broadcast.TypeConnectionStatus)
	require.Len(t, statuses, 1, "one edge, one event")
	assert.False(t, statuses[0].Data.(ConnectionStatusData).Connected)

	// Reconnect produces exactly one more
	connect(e)
	statuses = eventsOfType(drainEvents(sub), broadcast.TypeConnectionStatus)
	require.Len(t, statuses, 1)
	assert.True(t, statuses[0].Data.(ConnectionStatusData).Connected)
	assert.Equal(t, 1, bus.SubscriberCount(), "drop never touches the observer set")
}

func TestSendBlocksUntilResolved(t *testing.T) {
	e, _, _ := newTestEngine(t, Config{})
	connect(e)

	go func() {
		time.Sleep(10 * time.Millisecond)
		e.HandleLine("PONG")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	resp, latency, err := e.Send(ctx, Request{Command: wire.CmdPing})
	require.NoError(t, err)
	assert.Equal(t, wire.CatPong, resp.Category)
	assert.GreaterOrEqual(t, latency, 10*time.Millisecond)
}

func TestSendHonorsContext(t *testing.T) {
	e, _, _ := newTestEngine(t, Config{})
	connect(e)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, _, err := e.Send(ctx, Request{Command: wire.CmdPing})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSendAsyncUnknownSignal(t *testing.T) {
	e, link, _ := newTestEngine(t, Config{})
	connect(e)

	_, err := e.SendAsync(Request{Command: wire.CmdReadPin, Signal: "NO_SUCH_SIGNAL"})
	assert.ErrorIs(t, err, ErrUnknownSignal)
	assert.Empty(t, link.Lines())
}

func TestSendAsyncResolvesPinReference(t *testing.T) {
	e, link, _ := newTestEngine(t, Config{})
	connect(e)

	// Observers may address a signal by its wire pin instead of its name.
	_, err := e.SendAsync(Request{Command: wire.CmdReadPin, Signal: "D3"})
	require.NoError(t, err)
	assert.Equal(t, []string{"READ_PIN D3"}, link.Lines())
}

func TestSendAsyncWriteFailureUnregistersPending(t *testing.T) {
	e, link, _ := newTestEngine(t, Config{})
	connect(e)
	link.err = errors.New("port gone")

	_, err := e.SendAsync(Request{Command: wire.CmdPing})
	require.Error(t, err)
	assert.Equal(t, 0, e.PendingCount(), "failed write leaves nothing behind to time out")
}

func TestWriteOrderMatchesSendOrder(t *testing.T) {
	e, link, _ := newTestEngine(t, Config{})
	connect(e)

	want := []string{"READ_PIN D2", "READ_PIN D3", "READ_ADC A0", "PING"}
	_, _ = e.SendAsync(Request{Command: wire.CmdReadPin, Signal: "POWER_ENABLE"})
	_, _ = e.SendAsync(Request{Command: wire.CmdReadPin, Signal: "STATUS_LED"})
	_, _ = e.SendAsync(Request{Command: wire.CmdReadADC, Signal: "VBAT_SENSE"})
	_, _ = e.SendAsync(Request{Command: wire.CmdPing})
	assert.Equal(t, want, link.Lines())
}

func TestPollOnceReadsEveryPollableSignal(t *testing.T) {
	e, link, bus := newTestEngine(t, Config{})
	connect(e)
	_, sub := bus.Subscribe(func() any { return nil })
	defer sub.Close()

	e.PollOnce()

	lines := link.Lines()
	require.Len(t, lines, 4)
	joined := strings.Join(lines, "\n")
	assert.Contains(t, joined, "READ_PIN D2")
	assert.Contains(t, joined, "READ_PIN D3")
	assert.Contains(t, joined, "READ_ADC A0")
	assert.Contains(t, joined, "READ_PWM D9")
	assert.NotContains(t, joined, "D4", "no_poll signals are skipped")

	// First round of answers: everything transitions from unknown.
	e.HandleLine("PIN D2 LOW")
	e.HandleLine("PIN D3 HIGH")
	e.HandleLine("ADC A0 512")
	e.HandleLine("PWM D9 128")
	updates := eventsOfType(drainEvents(sub), broadcast.TypePinUpdate)
	assert.Len(t, updates, 4)

	// Second round with identical readings: silence.
	e.PollOnce()
	e.HandleLine("PIN D2 LOW")
	e.HandleLine("PIN D3 HIGH")
	e.HandleLine("ADC A0 512")
	e.HandleLine("PWM D9 128")
	updates = eventsOfType(drainEvents(sub), broadcast.TypePinUpdate)
	assert.Empty(t, updates)
}

func TestPollOnceSkipsWhenDisconnected(t *testing.T) {
	e, link, _ := newTestEngine(t, Config{})

	e.PollOnce()
	assert.Empty(t, link.Lines())
}

func TestSetShowFrequencyRebroadcastsDerivedChange(t *testing.T) {
	e, _, bus := newTestEngine(t, Config{})
	connect(e)
	_, sub := bus.Subscribe(func() any { return nil })
	defer sub.Close()

	e.HandleLine("FREQ D9 490")
	drainEvents(sub)

	e.SetShowFrequency(true)
	updates := eventsOfType(drainEvents(sub), broadcast.TypePinUpdate)
	require.Len(t, updates, 1)
	assert.Equal(t, "490 Hz", updates[0].Data.(PinUpdateData).PinState.FreqDisplay)

	// Same flag again: nothing changed, nothing broadcast.
	e.SetShowFrequency(true)
	assert.Empty(t, eventsOfType(drainEvents(sub), broadcast.TypePinUpdate))
}

func TestChecksumConfigAppliesToBothDirections(t *testing.T) {
	e, link, _ := newTestEngine(t, Config{Checksum: true})
	connect(e)

	result, err := e.SendAsync(Request{Command: wire.CmdPing})
	require.NoError(t, err)
	lines := link.Lines()
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "*", "outbound lines carry a checksum suffix")

	// Bare inbound line is rejected when checksums are required.
	e.HandleLine("PONG")
	assert.Equal(t, uint64(1), e.Counters().ParseFailures)
	assert.Equal(t, 1, e.PendingCount())

	e.HandleLine(wire.AppendChecksum("PONG"))
	res := <-result
	require.NoError(t, res.Err)
}

func TestSnapshotCarriesConnectivityAndPins(t *testing.T) {
	e, _, _ := newTestEngine(t, Config{})
	snap := e.Snapshot()
	assert.False(t, snap.Connected)
	assert.Len(t, snap.Pins, 5)

	connect(e)
	snap = e.Snapshot()
	assert.True(t, snap.Connected)
	assert.Equal(t, "sim", snap.Transport)
}
