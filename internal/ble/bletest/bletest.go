// Package bletest provides in-memory implementations of the ble capability
// interfaces for tests.
package bletest

import (
	"fmt"
	"sync"

	"github.com/chaz8081/hm-remote/internal/ble"
)

// Characteristic records writes and allows simulating notifications.
type Characteristic struct {
	ID string

	mu       sync.Mutex
	writes   [][]byte
	callback func([]byte)
	writeErr error
	onWrite  func([]byte)
}

// NewCharacteristic returns a characteristic with the given UUID.
func NewCharacteristic(id string) *Characteristic {
	return &Characteristic{ID: id}
}

func (c *Characteristic) UUID() string { return c.ID }

func (c *Characteristic) Write(data []byte) error {
	c.mu.Lock()
	if c.writeErr != nil {
		err := c.writeErr
		c.mu.Unlock()
		return err
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	c.writes = append(c.writes, cp)
	hook := c.onWrite
	c.mu.Unlock()
	if hook != nil {
		hook(cp)
	}
	return nil
}

func (c *Characteristic) Subscribe(cb func([]byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callback = cb
	return nil
}

// SetWriteError makes every subsequent Write fail with err.
func (c *Characteristic) SetWriteError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
}

// OnWrite registers a hook called after each successful write.
func (c *Characteristic) OnWrite(fn func([]byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onWrite = fn
}

// Writes returns a copy of every frame written so far.
func (c *Characteristic) Writes() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.writes))
	copy(out, c.writes)
	return out
}

// Subscribed reports whether a notification callback is registered.
func (c *Characteristic) Subscribed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.callback != nil
}

// Notify delivers data to the subscriber, if any.
func (c *Characteristic) Notify(data []byte) {
	c.mu.Lock()
	cb := c.callback
	c.mu.Unlock()
	if cb != nil {
		cb(data)
	}
}

// Peripheral simulates a BLE peripheral.
type Peripheral struct {
	addr ble.Address

	mu              sync.Mutex
	name            string
	connected       bool
	connectResults  []error
	connectCalls    int
	disconnectCalls int
	disconnectErr   error
	chars           []ble.Characteristic
}

// NewPeripheral returns a disconnected peripheral exposing chars.
func NewPeripheral(addr ble.Address, name string, chars ...ble.Characteristic) *Peripheral {
	return &Peripheral{addr: addr, name: name, chars: chars}
}

// QueueConnectResults sets the outcome of the next Connect calls in order.
// A nil entry connects; once the queue is empty Connect succeeds.
func (p *Peripheral) QueueConnectResults(results ...error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connectResults = append(p.connectResults, results...)
}

// SetDisconnectError makes Disconnect fail with err.
func (p *Peripheral) SetDisconnectError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disconnectErr = err
}

// SetName changes the advertised name.
func (p *Peripheral) SetName(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.name = name
}

func (p *Peripheral) Address() ble.Address { return p.addr }

func (p *Peripheral) Name() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.name, p.name != ""
}

func (p *Peripheral) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func (p *Peripheral) Connect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connectCalls++
	if len(p.connectResults) > 0 {
		err := p.connectResults[0]
		p.connectResults = p.connectResults[1:]
		if err != nil {
			return err
		}
	}
	p.connected = true
	return nil
}

func (p *Peripheral) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disconnectCalls++
	if p.disconnectErr != nil {
		return p.disconnectErr
	}
	p.connected = false
	return nil
}

func (p *Peripheral) DiscoverCharacteristics() ([]ble.Characteristic, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return nil, ble.ErrNotConnected
	}
	out := make([]ble.Characteristic, len(p.chars))
	copy(out, p.chars)
	return out, nil
}

// ConnectCalls returns how many times Connect was invoked.
func (p *Peripheral) ConnectCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connectCalls
}

// DisconnectCalls returns how many times Disconnect was invoked.
func (p *Peripheral) DisconnectCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disconnectCalls
}

// Adapter simulates the BLE adapter. Events pushed with Emit are buffered
// so tests can script a whole stream before the consumer starts.
type Adapter struct {
	events chan ble.Event

	mu          sync.Mutex
	peripherals map[ble.Address]*Peripheral
	enableErr   error
	scanning    bool
	scanStarts  int
	scanStops   int
	closed      bool
}

// NewAdapter returns an adapter knowing the given peripherals.
func NewAdapter(peripherals ...*Peripheral) *Adapter {
	a := &Adapter{
		events:      make(chan ble.Event, 256),
		peripherals: make(map[ble.Address]*Peripheral),
	}
	for _, p := range peripherals {
		a.peripherals[p.addr] = p
	}
	return a
}

// SetEnableError makes Enable fail with err.
func (a *Adapter) SetEnableError(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enableErr = err
}

func (a *Adapter) Enable() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enableErr
}

func (a *Adapter) StartScan() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.scanning = true
	a.scanStarts++
	return nil
}

func (a *Adapter) StopScan() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.scanning = false
	a.scanStops++
	return nil
}

// Scanning reports whether a scan is active.
func (a *Adapter) Scanning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.scanning
}

// ScanStops returns how many times StopScan was invoked.
func (a *Adapter) ScanStops() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.scanStops
}

func (a *Adapter) Events() <-chan ble.Event { return a.events }

func (a *Adapter) Peripheral(addr ble.Address) (ble.Peripheral, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.peripherals[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ble.ErrUnknownPeripheral, addr)
	}
	return p, nil
}

// Emit pushes events onto the native stream.
func (a *Adapter) Emit(events ...ble.Event) {
	for _, ev := range events {
		a.events <- ev
	}
}

// Close ends the native stream, simulating an adapter failure.
func (a *Adapter) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.closed {
		a.closed = true
		close(a.events)
	}
}

var (
	_ ble.Adapter        = (*Adapter)(nil)
	_ ble.Peripheral     = (*Peripheral)(nil)
	_ ble.Characteristic = (*Characteristic)(nil)
)
