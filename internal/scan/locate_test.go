package scan

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaz8081/hm-remote/internal/ble"
	"github.com/chaz8081/hm-remote/internal/ble/bletest"
	"github.com/chaz8081/hm-remote/internal/interrupt"
	"github.com/chaz8081/hm-remote/internal/relay"
)

func TestLocateResolvesOnUpdate(t *testing.T) {
	adapter := newTestAdapter()
	adapter.Emit(
		ble.Event{Kind: ble.EventDiscovered, Address: unnamedAddr},
		ble.Event{Kind: ble.EventDiscovered, Address: hmAddr},
		ble.Event{Kind: ble.EventUpdated, Address: unnamedAddr},
		ble.Event{Kind: ble.EventUpdated, Address: hmAddr},
		ble.Event{Kind: ble.EventLost, Address: unnamedAddr},
	)
	events := relay.Forward(adapter.Events())
	defer events.Stop()

	p, err := Locate(context.Background(), events.Out(), adapter, hmAddr)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, hmAddr, p.Address())

	// Events after the match are left for the next consumer.
	select {
	case ev := <-events.Out():
		assert.Equal(t, ble.Event{Kind: ble.EventLost, Address: unnamedAddr}, ev)
	case <-time.After(time.Second):
		t.Fatal("remaining event not delivered")
	}
}

func TestLocateIgnoresDiscoveredOnly(t *testing.T) {
	adapter := newTestAdapter()
	adapter.Emit(ble.Event{Kind: ble.EventDiscovered, Address: hmAddr})
	sig := interrupt.New()

	done := make(chan struct{})
	var p ble.Peripheral
	var err error
	go func() {
		defer close(done)
		p, err = Locate(sig, adapter.Events(), adapter, hmAddr)
	}()

	time.Sleep(20 * time.Millisecond)
	sig.Request()
	<-done

	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestLocateCancelledReturnsNotFound(t *testing.T) {
	adapter := newTestAdapter()
	sig := interrupt.New()
	sig.Request()

	p, err := Locate(sig, adapter.Events(), adapter, hmAddr)
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestLocateAdapterStopped(t *testing.T) {
	adapter := newTestAdapter()
	adapter.Emit(ble.Event{Kind: ble.EventUpdated, Address: unnamedAddr})
	adapter.Close()

	_, err := Locate(context.Background(), adapter.Events(), adapter, hmAddr)
	require.ErrorIs(t, err, ble.ErrAdapterStopped)
}

func TestLocateUnknownPeripheral(t *testing.T) {
	adapter := bletest.NewAdapter()
	adapter.Emit(ble.Event{Kind: ble.EventUpdated, Address: hmAddr})

	_, err := Locate(context.Background(), adapter.Events(), adapter, hmAddr)
	require.ErrorIs(t, err, ble.ErrUnknownPeripheral)
}
