package ble

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"
)

// transientConnectErrors are substrings of backend connect errors that mean
// the device simply did not come up in time and the attempt may be retried.
var transientConnectErrors = []string{
	"timeout",
	"timed out",
	"not connected",
	"connection-abort",
	"in progress",
}

// TinyGoAdapter implements Adapter on top of tinygo-org/bluetooth.
//
// The backend only reports raw advertisements, so the adapter derives the
// discovered/updated split itself and synthesises lost events for addresses
// that have not advertised for lostTimeout while a scan is running.
type TinyGoAdapter struct {
	adapter     *bluetooth.Adapter
	lostTimeout time.Duration

	events   chan Event
	emitMu   sync.RWMutex
	shutdown bool

	// mu protects everything below.
	mu          sync.Mutex
	peripherals map[Address]*tinyGoPeripheral
	lastSeen    map[Address]time.Time
	scanning    bool
	scanDone    chan struct{}
	stopSweep   chan struct{}
}

// NewTinyGoAdapter creates a BLE adapter using the platform default adapter.
// A lostTimeout of zero disables lost-device reporting.
func NewTinyGoAdapter(lostTimeout time.Duration) *TinyGoAdapter {
	return &TinyGoAdapter{
		adapter:     bluetooth.DefaultAdapter,
		lostTimeout: lostTimeout,
		events:      make(chan Event, 64),
		peripherals: make(map[Address]*tinyGoPeripheral),
		lastSeen:    make(map[Address]time.Time),
	}
}

func (a *TinyGoAdapter) Enable() error {
	if err := a.adapter.Enable(); err != nil {
		return fmt.Errorf("%w: %v", ErrNoAdapter, err)
	}

	// tinygo/bluetooth fires this callback with connected=false when a
	// peripheral drops.
	a.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		addr := toAddress(device.Address)
		a.mu.Lock()
		p, ok := a.peripherals[addr]
		if ok {
			p.connected = false
			p.device = nil
		}
		a.mu.Unlock()
		if ok {
			a.emit(Event{Kind: EventDisconnected, Address: addr})
		}
	})

	return nil
}

func (a *TinyGoAdapter) Events() <-chan Event { return a.events }

func (a *TinyGoAdapter) StartScan() error {
	a.mu.Lock()
	if a.scanning {
		a.mu.Unlock()
		return nil
	}
	a.scanning = true
	done := make(chan struct{})
	stop := make(chan struct{})
	a.scanDone = done
	a.stopSweep = stop
	a.mu.Unlock()

	go func() {
		defer close(done)
		err := a.adapter.Scan(a.onScanResult)

		a.mu.Lock()
		expected := !a.scanning
		a.mu.Unlock()
		if expected {
			return
		}
		if err != nil {
			slog.Error("[BLE] scan failed", "error", err)
		}
		a.closeEvents()
	}()

	if a.lostTimeout > 0 {
		go a.sweepLost(stop)
	}
	return nil
}

func (a *TinyGoAdapter) StopScan() error {
	a.mu.Lock()
	if !a.scanning {
		a.mu.Unlock()
		return nil
	}
	a.scanning = false
	done := a.scanDone
	close(a.stopSweep)
	a.lastSeen = make(map[Address]time.Time)
	a.mu.Unlock()

	if err := a.adapter.StopScan(); err != nil {
		return fmt.Errorf("ble: stop scan: %w", err)
	}
	<-done
	return nil
}

func (a *TinyGoAdapter) Peripheral(addr Address) (Peripheral, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.peripherals[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPeripheral, addr)
	}
	return p, nil
}

func (a *TinyGoAdapter) onScanResult(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
	addr := toAddress(result.Address)

	a.mu.Lock()
	p, ok := a.peripherals[addr]
	if !ok {
		p = &tinyGoPeripheral{owner: a, addr: addr, btAddr: result.Address}
		a.peripherals[addr] = p
	}
	if name := result.LocalName(); name != "" {
		p.name = name
	}
	_, seen := a.lastSeen[addr]
	a.lastSeen[addr] = time.Now()
	a.mu.Unlock()

	kind := EventUpdated
	if !seen {
		kind = EventDiscovered
	}
	a.emit(Event{Kind: kind, Address: addr})
}

// sweepLost reports addresses that stopped advertising until stop is closed.
func (a *TinyGoAdapter) sweepLost(stop <-chan struct{}) {
	ticker := time.NewTicker(a.lostTimeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			var lost []Address
			a.mu.Lock()
			for addr, seen := range a.lastSeen {
				if now.Sub(seen) > a.lostTimeout {
					lost = append(lost, addr)
					delete(a.lastSeen, addr)
				}
			}
			a.mu.Unlock()
			for _, addr := range lost {
				a.emit(Event{Kind: EventLost, Address: addr})
			}
		}
	}
}

func (a *TinyGoAdapter) emit(ev Event) {
	a.emitMu.RLock()
	defer a.emitMu.RUnlock()
	if a.shutdown {
		return
	}
	a.events <- ev
}

func (a *TinyGoAdapter) closeEvents() {
	a.emitMu.Lock()
	defer a.emitMu.Unlock()
	if !a.shutdown {
		a.shutdown = true
		close(a.events)
	}
}

func toAddress(addr bluetooth.Address) Address {
	return Address(strings.ToUpper(addr.String()))
}

func isTransientConnectError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, s := range transientConnectErrors {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// Compile-time check that TinyGoAdapter implements Adapter.
var _ Adapter = (*TinyGoAdapter)(nil)

// tinyGoPeripheral state is guarded by owner.mu.
type tinyGoPeripheral struct {
	owner     *TinyGoAdapter
	addr      Address
	btAddr    bluetooth.Address
	name      string
	device    *bluetooth.Device
	connected bool
}

func (p *tinyGoPeripheral) Address() Address { return p.addr }

func (p *tinyGoPeripheral) Name() (string, bool) {
	p.owner.mu.Lock()
	defer p.owner.mu.Unlock()
	return p.name, p.name != ""
}

func (p *tinyGoPeripheral) IsConnected() bool {
	p.owner.mu.Lock()
	defer p.owner.mu.Unlock()
	return p.connected
}

func (p *tinyGoPeripheral) Connect() error {
	// Connect blocks internally with the backend's own timeout.
	device, err := p.owner.adapter.Connect(p.btAddr, bluetooth.ConnectionParams{})
	if err != nil {
		if isTransientConnectError(err) {
			return fmt.Errorf("%w: %v", ErrNotConnected, err)
		}
		return err
	}
	p.owner.mu.Lock()
	p.device = &device
	p.connected = true
	p.owner.mu.Unlock()
	return nil
}

func (p *tinyGoPeripheral) Disconnect() error {
	p.owner.mu.Lock()
	device := p.device
	p.device = nil
	p.connected = false
	p.owner.mu.Unlock()
	if device == nil {
		return nil
	}
	return device.Disconnect()
}

func (p *tinyGoPeripheral) DiscoverCharacteristics() ([]Characteristic, error) {
	p.owner.mu.Lock()
	device := p.device
	p.owner.mu.Unlock()
	if device == nil {
		return nil, ErrNotConnected
	}

	svcs, err := device.DiscoverServices(nil)
	if err != nil {
		return nil, fmt.Errorf("ble: discover services: %w", err)
	}
	var out []Characteristic
	for _, svc := range svcs {
		chars, err := svc.DiscoverCharacteristics(nil)
		if err != nil {
			return nil, fmt.Errorf("ble: discover characteristics of %s: %w", svc.UUID(), err)
		}
		for i := range chars {
			out = append(out, &tinyGoCharacteristic{char: &chars[i]})
		}
	}
	return out, nil
}

type tinyGoCharacteristic struct {
	char *bluetooth.DeviceCharacteristic
}

func (c *tinyGoCharacteristic) UUID() string { return c.char.UUID().String() }

func (c *tinyGoCharacteristic) Write(data []byte) error {
	_, err := c.char.WriteWithoutResponse(data)
	return err
}

func (c *tinyGoCharacteristic) Subscribe(cb func([]byte)) error {
	return c.char.EnableNotifications(func(buf []byte) {
		// The backend may reuse buf after the callback returns.
		cp := make([]byte, len(buf))
		copy(cp, buf)
		cb(cp)
	})
}
