// Package serialport provides the production asi.Transport implementation
// over a host serial device, built on go.bug.st/serial.
//
// ASI controllers frame their link as 8N1, so only the baud rate is
// configurable. The device is opened with a short read timeout and ReadUntil
// re-checks its context between read chunks, so a silent controller is
// abandoned by cancelling the context rather than by pulling the cable.
//
// The package also exposes host-side port discovery ([List], [Details]) so
// operator tooling can locate a controller among several attached devices.
package serialport
