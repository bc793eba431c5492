package ble

import "errors"

var (
	// ErrNoAdapter is returned when no usable BLE adapter can be enabled.
	ErrNoAdapter = errors.New("cannot find bluetooth adapter")
	// ErrAdapterStopped is returned when the event stream ends while a
	// caller is still waiting on it.
	ErrAdapterStopped = errors.New("bluetooth adapter unexpectedly stopped")
	// ErrNotConnected is the transient connect failure that callers retry.
	ErrNotConnected = errors.New("device not connected")
	// ErrIncompatibleDevice is returned when a connected device lacks the
	// notify/write characteristic.
	ErrIncompatibleDevice = errors.New("device is not a HM device")
	// ErrInvalidAddress is returned for malformed hardware addresses.
	ErrInvalidAddress = errors.New("invalid hardware address")
	// ErrUnknownPeripheral is returned when an address was never seen.
	ErrUnknownPeripheral = errors.New("unknown peripheral")
)
