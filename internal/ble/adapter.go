// Package ble provides the Bluetooth Low Energy capability used by the
// console: adapter control, the discovery event stream, peripheral lookup
// and the GATT operations needed to talk to HM-series serial modules.
package ble

import "github.com/google/uuid"

// NotifyCharUUID is the transparent UART characteristic exposed by HM-10
// style modules. It is used both for notifications and for writes.
const NotifyCharUUID = "0000ffe1-0000-1000-8000-00805f9b34fb"

// notifyCharID is NotifyCharUUID in parsed form.
var notifyCharID = uuid.MustParse(NotifyCharUUID)

// EventKind classifies an adapter event.
type EventKind int

const (
	// EventDiscovered reports the first advertisement seen from an address.
	EventDiscovered EventKind = iota
	// EventUpdated reports a further advertisement from a known address.
	EventUpdated
	// EventLost reports that an address stopped advertising.
	EventLost
	// EventDisconnected reports that a connected peripheral dropped.
	EventDisconnected
)

func (k EventKind) String() string {
	switch k {
	case EventDiscovered:
		return "discovered"
	case EventUpdated:
		return "updated"
	case EventLost:
		return "lost"
	case EventDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Event is emitted on the adapter's event stream.
type Event struct {
	Kind    EventKind
	Address Address
}

// Characteristic represents a BLE GATT characteristic.
type Characteristic interface {
	// UUID returns the characteristic UUID in canonical lower-case form.
	UUID() string
	// Write sends data to the characteristic.
	Write(data []byte) error
	// Subscribe registers a callback for notifications on this characteristic.
	Subscribe(callback func(data []byte)) error
}

// Peripheral is a device known to the adapter, connected or not.
type Peripheral interface {
	Address() Address
	// Name returns the advertised local name, if any.
	Name() (string, bool)
	IsConnected() bool
	// Connect makes one connection attempt. ErrNotConnected signals a
	// transient failure that may be retried.
	Connect() error
	Disconnect() error
	// DiscoverCharacteristics lists every characteristic of every service.
	DiscoverCharacteristics() ([]Characteristic, error)
}

// Directory resolves addresses to peripherals.
type Directory interface {
	Peripheral(addr Address) (Peripheral, error)
}

// Adapter abstracts the BLE hardware adapter for testing.
type Adapter interface {
	Directory
	// Enable powers on the BLE adapter.
	Enable() error
	StartScan() error
	StopScan() error
	// Events returns the native event stream. It has a single consumer and
	// is closed only if the adapter stops unexpectedly.
	Events() <-chan Event
}

// IsNotifyChar reports whether a UUID string names the notify/write
// characteristic, regardless of case or dashes.
func IsNotifyChar(id string) bool {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return false
	}
	return parsed == notifyCharID
}

// DisplayName formats a peripheral as "ADDR Name", using <Unnamed> when
// the device has not advertised a name.
func DisplayName(p Peripheral) string {
	name, ok := p.Name()
	if !ok {
		name = "<Unnamed>"
	}
	return p.Address().String() + " " + name
}
