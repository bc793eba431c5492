// Package console runs the interactive AT session with a connected HM
// device and the connect subcommand that leads up to it.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/chaz8081/hm-remote/internal/ble"
	"github.com/chaz8081/hm-remote/internal/ble/protocol"
	"github.com/chaz8081/hm-remote/internal/relay"
)

// ErrInputClosed is returned when the command source goes away without
// an explicit quit.
var ErrInputClosed = errors.New("console: input closed")

// Reason says why a session ended normally.
type Reason int

const (
	ReasonDeviceLost Reason = iota
	ReasonDeviceDisconnected
	ReasonUserQuit
	ReasonCancelled
)

func (r Reason) String() string {
	switch r {
	case ReasonDeviceLost:
		return "device lost"
	case ReasonDeviceDisconnected:
		return "device disconnected"
	case ReasonUserQuit:
		return "user quit"
	case ReasonCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Options configures the session.
type Options struct {
	FrameSize  int           // bytes per characteristic write, at most protocol.MaxFrameSize
	WriteDelay time.Duration // pause after a command before prompting again
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		FrameSize:  protocol.MaxFrameSize,
		WriteDelay: 10 * time.Millisecond,
	}
}

// Session owns a connected, verified device until Run returns.
type Session struct {
	device ble.Peripheral
	char   ble.Characteristic
	events <-chan ble.Event
	input  Input
	out    io.Writer
	opts   Options
}

// NewSession creates a session. events is the relayed adapter stream and
// char the verified notify/write characteristic of device.
func NewSession(device ble.Peripheral, char ble.Characteristic, events <-chan ble.Event, input Input, out io.Writer, opts Options) *Session {
	if opts.FrameSize <= 0 || opts.FrameSize > protocol.MaxFrameSize {
		opts.FrameSize = protocol.MaxFrameSize
	}
	return &Session{
		device: device,
		char:   char,
		events: events,
		input:  input,
		out:    out,
		opts:   opts,
	}
}

// Run subscribes to notifications and multiplexes device events,
// cancellation, notifications and user commands until one of them ends the
// session. Only one command is in flight at a time: the input is given the
// go-ahead once every frame of the previous command has been written.
func (s *Session) Run(ctx context.Context) (Reason, error) {
	notifications := relay.NewQueue[[]byte]()
	defer notifications.Stop()

	if err := s.char.Subscribe(func(data []byte) {
		notifications.Push(data)
	}); err != nil {
		s.release()
		return 0, fmt.Errorf("ble: subscribe: %w", err)
	}

	s.input.Start()
	defer s.input.Stop()

	for {
		select {
		case ev, ok := <-s.events:
			if !ok {
				s.release()
				return 0, ble.ErrAdapterStopped
			}
			if ev.Address != s.device.Address() {
				continue
			}
			switch ev.Kind {
			case ble.EventLost:
				fmt.Fprintln(s.out, "Device disconnected!")
				return ReasonDeviceLost, nil
			case ble.EventDisconnected:
				fmt.Fprintln(s.out, "Device disconnected!")
				return ReasonDeviceDisconnected, nil
			}

		case <-ctx.Done():
			if err := s.device.Disconnect(); err != nil {
				return ReasonCancelled, fmt.Errorf("ble: disconnect: %w", err)
			}
			return ReasonCancelled, nil

		case data := <-notifications.Out():
			if text, ok := protocol.DecodeNotification(data); ok {
				fmt.Fprintln(s.out, text)
			}

		case cmd, ok := <-s.input.Commands():
			if !ok {
				s.release()
				return 0, ErrInputClosed
			}
			if cmd.Err != nil {
				s.release()
				return 0, cmd.Err
			}
			if cmd.Text == protocol.QuitCommand {
				if err := s.device.Disconnect(); err != nil {
					return ReasonUserQuit, fmt.Errorf("ble: disconnect: %w", err)
				}
				return ReasonUserQuit, nil
			}
			if err := s.send(cmd.Text); err != nil {
				s.release()
				return 0, err
			}
			// Give the device time to process before the next prompt.
			time.Sleep(s.opts.WriteDelay)
			s.input.GoAhead()
		}
	}
}

// send writes the command in order, one characteristic write per frame.
func (s *Session) send(command string) error {
	for i, frame := range protocol.SplitFrames([]byte(command), s.opts.FrameSize) {
		if err := s.char.Write(frame); err != nil {
			return fmt.Errorf("ble: write frame %d of %q: %w", i, command, err)
		}
	}
	slog.Debug("[CONSOLE] command sent", "command", command)
	return nil
}

// release disconnects on error paths; the caller reports its own error.
func (s *Session) release() {
	if err := s.device.Disconnect(); err != nil {
		slog.Warn("[CONSOLE] disconnect after failure", "error", err)
	}
}
