package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/chaz8081/hm-remote/internal/ble"
	"github.com/chaz8081/hm-remote/internal/relay"
)

// Run implements the scan subcommand: it prints classified discovery events
// to out until ctx is done. An adapter failure is returned as an error.
func Run(ctx context.Context, adapter ble.Adapter, opts Options, out io.Writer) (err error) {
	if err := adapter.Enable(); err != nil {
		return fmt.Errorf("ble: enable adapter: %w", err)
	}

	events := relay.Forward(adapter.Events())
	defer events.Stop()

	if err := adapter.StartScan(); err != nil {
		return fmt.Errorf("ble: start scan: %w", err)
	}
	slog.Info("[SCAN] scanning", "verbose", opts.Verbose, "filter_unnamed", opts.FilterUnnamed)
	defer func() {
		if stopErr := adapter.StopScan(); stopErr != nil {
			err = errors.Join(err, stopErr)
		}
	}()

	printer := NewPrinter(out)
	return NewEngine(adapter, opts).Run(ctx, events.Out(), printer.Print)
}
