package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/chaz8081/hm-remote/internal/ble"
	"github.com/chaz8081/hm-remote/internal/relay"
	"github.com/chaz8081/hm-remote/internal/scan"
)

// Config bundles everything the connect subcommand needs.
type Config struct {
	Connect     ble.ConnectOptions
	Session     Options
	Prompt      string
	Interactive bool // stdin is a terminal
}

// Connect implements the connect subcommand: scan until target updates,
// connect and verify it, then run the interactive session reading commands
// from in. It returns nil for every normal ending, including cancellation
// before the device was found.
func Connect(ctx context.Context, adapter ble.Adapter, target ble.Address, in io.Reader, out io.Writer, cfg Config) error {
	out = &syncWriter{w: out}

	if err := adapter.Enable(); err != nil {
		return fmt.Errorf("ble: enable adapter: %w", err)
	}

	events := relay.Forward(adapter.Events())
	defer events.Stop()

	if err := adapter.StartScan(); err != nil {
		return fmt.Errorf("ble: start scan: %w", err)
	}
	fmt.Fprintf(out, "Scanning for %s\n", target)

	device, err := scan.Locate(ctx, events.Out(), adapter, target)
	if stopErr := adapter.StopScan(); stopErr != nil {
		err = errors.Join(err, stopErr)
	}
	if err != nil {
		return err
	}

	if device != nil {
		if err := runDevice(ctx, device, events.Out(), in, out, cfg); err != nil {
			return err
		}
	}

	fmt.Fprintln(out, "Bye!")
	return nil
}

func runDevice(ctx context.Context, device ble.Peripheral, events <-chan ble.Event, in io.Reader, out io.Writer, cfg Config) error {
	fmt.Fprintf(out, "Connecting to %s\n", device.Address())
	char, err := ble.Connect(ctx, device, cfg.Connect)
	switch {
	case err == nil:
	case ctx.Err() != nil && errors.Is(err, context.Canceled):
		slog.Info("[CONSOLE] cancelled while connecting", "addr", device.Address())
		if err := device.Disconnect(); err != nil {
			slog.Warn("[CONSOLE] disconnect after cancel", "error", err)
		}
		return nil
	case errors.Is(err, ble.ErrIncompatibleDevice):
		if err := device.Disconnect(); err != nil {
			slog.Warn("[CONSOLE] disconnect incompatible device", "error", err)
		}
		return err
	default:
		return err
	}
	fmt.Fprintf(out, "Connected: %s\n", ble.DisplayName(device))

	prompt := NewPrompt(in, out, cfg.Prompt, cfg.Interactive)
	reason, err := NewSession(device, char, events, prompt, out, cfg.Session).Run(ctx)
	if err != nil {
		return err
	}
	slog.Info("[CONSOLE] session ended", "addr", device.Address(), "reason", reason)
	return nil
}

// syncWriter serialises writes from the session and the prompt goroutine.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
