package console

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaz8081/hm-remote/internal/ble"
	"github.com/chaz8081/hm-remote/internal/ble/bletest"
	"github.com/chaz8081/hm-remote/internal/interrupt"
)

const hmAddr = ble.Address("AA:BB:CC:DD:EE:FF")

// safeBuffer is a bytes.Buffer that tests can read while the session writes.
type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// scriptedInput publishes a fixed list of commands, one per go-ahead, and
// records the interleaving with writes in a shared log.
type scriptedInput struct {
	cmds     []Command
	commands chan Command
	goAhead  chan struct{}
	done     chan struct{}
	log      *eventLog
	stopOnce sync.Once
}

func newScriptedInput(log *eventLog, cmds ...Command) *scriptedInput {
	return &scriptedInput{
		cmds:     cmds,
		commands: make(chan Command),
		goAhead:  make(chan struct{}, 1),
		done:     make(chan struct{}),
		log:      log,
	}
}

func (s *scriptedInput) Start() {
	go func() {
		for _, c := range s.cmds {
			select {
			case s.commands <- c:
			case <-s.done:
				return
			}
			s.log.add("published:" + c.Text)
			select {
			case <-s.goAhead:
			case <-s.done:
				return
			}
		}
	}()
}

func (s *scriptedInput) Commands() <-chan Command { return s.commands }

func (s *scriptedInput) GoAhead() {
	s.log.add("go-ahead")
	s.goAhead <- struct{}{}
}

func (s *scriptedInput) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

type eventLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

type harness struct {
	adapter *bletest.Adapter
	device  *bletest.Peripheral
	char    *bletest.Characteristic
	out     *safeBuffer
	sig     *interrupt.Signal
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	char := bletest.NewCharacteristic(ble.NotifyCharUUID)
	device := bletest.NewPeripheral(hmAddr, "HM-10", char)
	require.NoError(t, device.Connect())
	return &harness{
		adapter: bletest.NewAdapter(device),
		device:  device,
		char:    char,
		out:     &safeBuffer{},
		sig:     interrupt.New(),
	}
}

func (h *harness) run(input Input) (<-chan Reason, <-chan error) {
	reasons := make(chan Reason, 1)
	errs := make(chan error, 1)
	s := NewSession(h.device, h.char, h.adapter.Events(), input, h.out, Options{WriteDelay: time.Millisecond})
	go func() {
		r, err := s.Run(h.sig)
		reasons <- r
		errs <- err
	}()
	return reasons, errs
}

func wait[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for session")
		var zero T
		return zero
	}
}

func TestSessionSendsCommandFramesInOrder(t *testing.T) {
	h := newHarness(t)
	log := &eventLog{}
	long := "AT+NAME" + strings.Repeat("X", 30)
	input := newScriptedInput(log, Command{Text: "AT+NAME?"}, Command{Text: long}, Command{Text: "quit"})

	reasons, errs := h.run(input)
	assert.Equal(t, ReasonUserQuit, wait(t, reasons))
	require.NoError(t, wait(t, errs))

	writes := h.char.Writes()
	require.Len(t, writes, 3)
	assert.Equal(t, []byte("AT+NAME?"), writes[0])
	assert.Equal(t, long, string(writes[1])+string(writes[2]))
	assert.Len(t, writes[1], 20)
	assert.Equal(t, 1, h.device.DisconnectCalls())
}

func TestSessionTurnTaking(t *testing.T) {
	h := newHarness(t)
	log := &eventLog{}
	h.char.OnWrite(func(b []byte) { log.add("write:" + string(b)) })
	input := newScriptedInput(log,
		Command{Text: "AT+A"},
		Command{Text: "AT+" + strings.Repeat("B", 25)},
		Command{Text: "AT+C"},
		Command{Text: "quit"},
	)

	reasons, errs := h.run(input)
	assert.Equal(t, ReasonUserQuit, wait(t, reasons))
	require.NoError(t, wait(t, errs))

	// Writes and go-aheads both happen on the session goroutine, so their
	// order in the log is exact: every frame of a command precedes its
	// go-ahead, and the next command's frames follow it.
	var seq []string
	for _, e := range log.snapshot() {
		if !strings.HasPrefix(e, "published:") {
			seq = append(seq, e)
		}
	}
	assert.Equal(t, []string{
		"write:AT+A",
		"go-ahead",
		"write:AT+" + strings.Repeat("B", 17),
		"write:" + strings.Repeat("B", 8),
		"go-ahead",
		"write:AT+C",
		"go-ahead",
	}, seq)

	writes := h.char.Writes()
	require.Len(t, writes, 4)
	assert.Equal(t, "AT+A", string(writes[0]))
	assert.Equal(t, "AT+C", string(writes[3]))
}

func TestSessionPrintsNotifications(t *testing.T) {
	h := newHarness(t)
	input := newScriptedInput(&eventLog{}, Command{Text: "AT+NAME?"})
	h.char.OnWrite(func([]byte) {
		h.char.Notify(nil)
		h.char.Notify([]byte("OK+NAME:HM-10"))
		h.char.Notify([]byte{0xff, 0x00})
	})

	reasons, errs := h.run(input)
	require.Eventually(t, func() bool {
		return strings.Contains(h.out.String(), "Failed to decode message: ff 00")
	}, 2*time.Second, 5*time.Millisecond)

	h.sig.Request()
	assert.Equal(t, ReasonCancelled, wait(t, reasons))
	require.NoError(t, wait(t, errs))

	assert.Equal(t, "OK+NAME:HM-10\nFailed to decode message: ff 00\n", h.out.String())
	assert.Equal(t, 1, h.device.DisconnectCalls())
}

func TestSessionDeviceLost(t *testing.T) {
	h := newHarness(t)
	h.adapter.Emit(
		ble.Event{Kind: ble.EventLost, Address: "11:22:33:44:55:66"},
		ble.Event{Kind: ble.EventUpdated, Address: hmAddr},
		ble.Event{Kind: ble.EventLost, Address: hmAddr},
	)

	reasons, errs := h.run(newScriptedInput(&eventLog{}))
	assert.Equal(t, ReasonDeviceLost, wait(t, reasons))
	require.NoError(t, wait(t, errs))
	assert.Contains(t, h.out.String(), "Device disconnected!")
	assert.Zero(t, h.device.DisconnectCalls())
}

func TestSessionDeviceDisconnected(t *testing.T) {
	h := newHarness(t)
	h.adapter.Emit(ble.Event{Kind: ble.EventDisconnected, Address: hmAddr})

	reasons, errs := h.run(newScriptedInput(&eventLog{}))
	assert.Equal(t, ReasonDeviceDisconnected, wait(t, reasons))
	require.NoError(t, wait(t, errs))
}

func TestSessionCancellationDisconnects(t *testing.T) {
	h := newHarness(t)
	reasons, errs := h.run(newScriptedInput(&eventLog{}))

	h.sig.Request()
	assert.Equal(t, ReasonCancelled, wait(t, reasons))
	require.NoError(t, wait(t, errs))
	assert.Equal(t, 1, h.device.DisconnectCalls())
	assert.False(t, h.device.IsConnected())
}

func TestSessionCancellationDisconnectErrorIsFatal(t *testing.T) {
	h := newHarness(t)
	h.device.SetDisconnectError(errors.New("hci timeout"))
	reasons, errs := h.run(newScriptedInput(&eventLog{}))

	h.sig.Request()
	assert.Equal(t, ReasonCancelled, wait(t, reasons))
	assert.ErrorContains(t, wait(t, errs), "hci timeout")
}

func TestSessionWriteFailureIsFatal(t *testing.T) {
	h := newHarness(t)
	boom := errors.New("write rejected")
	h.char.SetWriteError(boom)
	log := &eventLog{}

	reasons, errs := h.run(newScriptedInput(log, Command{Text: "AT"}, Command{Text: "AT+B"}))
	wait(t, reasons)
	require.ErrorIs(t, wait(t, errs), boom)
	assert.NotContains(t, log.snapshot(), "go-ahead")
	assert.Equal(t, 1, h.device.DisconnectCalls(), "connection released on error")
}

func TestSessionInputErrorIsFatal(t *testing.T) {
	h := newHarness(t)
	boom := errors.New("tty gone")

	reasons, errs := h.run(newScriptedInput(&eventLog{}, Command{Err: boom}))
	wait(t, reasons)
	require.ErrorIs(t, wait(t, errs), boom)
	assert.Empty(t, h.char.Writes())
}

func TestSessionAdapterStopped(t *testing.T) {
	h := newHarness(t)
	h.adapter.Close()

	reasons, errs := h.run(newScriptedInput(&eventLog{}))
	wait(t, reasons)
	require.ErrorIs(t, wait(t, errs), ble.ErrAdapterStopped)
}

func TestSessionSubscribesBeforeInput(t *testing.T) {
	h := newHarness(t)
	log := &eventLog{}
	h.char.OnWrite(func([]byte) {
		if !h.char.Subscribed() {
			log.add("unsubscribed write")
		}
	})

	reasons, errs := h.run(newScriptedInput(log, Command{Text: "AT"}, Command{Text: "quit"}))
	wait(t, reasons)
	require.NoError(t, wait(t, errs))
	assert.NotContains(t, log.snapshot(), "unsubscribed write")
}

func TestSessionWithPromptTakesTurns(t *testing.T) {
	h := newHarness(t)
	pr, pw := io.Pipe()
	defer pw.Close()

	prompt := NewPrompt(pr, h.out, ">", false)
	reasons, errs := h.run(prompt)

	// Everything typed at once; the prompt still hands lines over one at a time.
	go fmt.Fprint(pw, "AT+ONE\nnot a command\nAT+TWO\nquit\n")

	assert.Equal(t, ReasonUserQuit, wait(t, reasons))
	require.NoError(t, wait(t, errs))

	writes := h.char.Writes()
	require.Len(t, writes, 2)
	assert.Equal(t, "AT+ONE", string(writes[0]))
	assert.Equal(t, "AT+TWO", string(writes[1]))
	assert.Contains(t, h.out.String(), "Invalid Input, can only be AT command or quit")
}

func TestReasonString(t *testing.T) {
	assert.Equal(t, "user quit", ReasonUserQuit.String())
	assert.Equal(t, "unknown", Reason(99).String())
}
