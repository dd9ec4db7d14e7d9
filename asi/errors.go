package asi

import (
	"errors"
	"fmt"
)

var (
	// ErrNotOpen indicates that a transaction was attempted on a closed transport.
	ErrNotOpen = errors.New("asi: transport not open")

	// ErrAxisNotOpen indicates that an operation was attempted on a closed axis.
	// The axis unit multiplier is only valid while the axis is open.
	ErrAxisNotOpen = errors.New("asi: axis not open")

	// ErrUnsupportedDevice indicates that a device answered an identity probe with
	// an unexpected token. It is non-fatal during discovery: the candidate axis or
	// controller should be treated as absent.
	ErrUnsupportedDevice = errors.New("asi: unsupported device")

	// ErrMalformedResponse indicates that a reply could not be decoded: non-ASCII
	// bytes, a missing field, or an unparsable number.
	ErrMalformedResponse = errors.New("asi: malformed response")

	// ErrInvalidCommand indicates that a command could not be encoded.
	ErrInvalidCommand = errors.New("asi: invalid command")

	// ErrUnknownProperty indicates that a device was asked for a property outside
	// its supported set.
	ErrUnknownProperty = errors.New("asi: unknown property")
)

// Device error categories reported by the firmware in ":N" replies.
// Match them with errors.Is; recover the raw code with errors.As on *DeviceError.
var (
	// ErrUnknownCommand is device error code 1.
	ErrUnknownCommand = errors.New("asi: unknown command")

	// ErrUnrecognizedAxis is device error code 2.
	ErrUnrecognizedAxis = errors.New("asi: unrecognized axis parameter")

	// ErrMissingParameter is device error code 3.
	ErrMissingParameter = errors.New("asi: missing command parameter")

	// ErrOutOfRange is device error code 4.
	ErrOutOfRange = errors.New("asi: parameter out of range")

	// ErrOperationFailed is device error code 5.
	ErrOperationFailed = errors.New("asi: operation failed")

	// ErrUndefined is device error code 6.
	ErrUndefined = errors.New("asi: undefined error")

	// ErrInvalidCardAddress is device error code 7.
	ErrInvalidCardAddress = errors.New("asi: invalid card address")

	// ErrHalted is device error code 21, reported when an operation is
	// interrupted by a halt command.
	ErrHalted = errors.New("asi: operation halted")

	// ErrUnknownDeviceCode covers every code outside the fixed table.
	// The raw code stays available on the wrapping *DeviceError.
	ErrUnknownDeviceCode = errors.New("asi: unknown device error")
)

// Device error codes from the ASI firmware manuals.
const (
	codeUnknownCommand     = 1
	codeUnrecognizedAxis   = 2
	codeMissingParameter   = 3
	codeOutOfRange         = 4
	codeOperationFailed    = 5
	codeUndefined          = 6
	codeInvalidCardAddress = 7
	codeHalted             = 21
)

// DeviceError is an error reported by the controller in a ":N" reply.
//
// Code carries the raw numeric code for diagnostics. Unwrap maps the code onto
// one of the category sentinels, so errors.Is(err, ErrOutOfRange) matches a
// DeviceError with Code 4.
type DeviceError struct {
	Code int
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("%s (code %d)", e.Unwrap().Error(), e.Code)
}

// Unwrap returns the category sentinel for the error code.
func (e *DeviceError) Unwrap() error {
	switch e.Code {
	case codeUnknownCommand:
		return ErrUnknownCommand
	case codeUnrecognizedAxis:
		return ErrUnrecognizedAxis
	case codeMissingParameter:
		return ErrMissingParameter
	case codeOutOfRange:
		return ErrOutOfRange
	case codeOperationFailed:
		return ErrOperationFailed
	case codeUndefined:
		return ErrUndefined
	case codeInvalidCardAddress:
		return ErrInvalidCardAddress
	case codeHalted:
		return ErrHalted
	default:
		return ErrUnknownDeviceCode
	}
}
