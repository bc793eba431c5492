package scan

import (
	"context"
	"fmt"

	"github.com/chaz8081/hm-remote/internal/ble"
)

// Locate waits for an update event from target and resolves it through dir.
// It returns (nil, nil) if ctx is done first and ble.ErrAdapterStopped if
// the event stream ends. There is no timeout other than ctx.
func Locate(ctx context.Context, events <-chan ble.Event, dir ble.Directory, target ble.Address) (ble.Peripheral, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, nil
		case ev, ok := <-events:
			if !ok {
				return nil, ble.ErrAdapterStopped
			}
			if ev.Kind != ble.EventUpdated || ev.Address != target {
				continue
			}
			p, err := dir.Peripheral(target)
			if err != nil {
				return nil, fmt.Errorf("ble: resolve %s: %w", target, err)
			}
			return p, nil
		}
	}
}
