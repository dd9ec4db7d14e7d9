package asi

import "context"

// Transport is the byte-stream link to a controller. The serialport package
// provides the production implementation; tests substitute in-memory fakes.
//
// ReadUntil returns everything up to and including the first occurrence of
// terminator. A transport has no read deadline of its own: implementations
// must watch ctx while waiting so a silent device can be abandoned.
type Transport interface {
	Open() error
	Close() error
	Write(p []byte) error
	ReadUntil(ctx context.Context, terminator []byte) ([]byte, error)
	IsOpen() bool
}

// Device is the generic lifecycle and property contract shared by controllers
// and axes, the surface a device registry drives without knowing the concrete
// type.
type Device interface {
	Open(ctx context.Context) error
	Close(ctx context.Context) error
	EnumerateProperties() []Property
	GetProperty(ctx context.Context, prop Property) (any, error)
}
