package errorkinds

import "errors"

// Various error kinds that are returned by the profile cores and the shim.
var (
	// ErrNotSupported indicates that an operation is not supported.
	ErrNotSupported = errors.New("operation not supported")

	// ErrInvalidAddress indicates that a Bluetooth address could not be parsed.
	ErrInvalidAddress = errors.New("invalid Bluetooth address")

	// ErrDeviceNotFound indicates that a device does not exist in a registry.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrSessionExists indicates that a state machine for a device already exists.
	ErrSessionExists = errors.New("a session for the device already exists")

	// ErrTooManyConnections indicates that the configured maximum number of
	// simultaneously connected devices was reached.
	ErrTooManyConnections = errors.New("maximum connected devices reached")

	// ErrProfileNotConnected indicates that an operation requires an
	// established service-level connection.
	ErrProfileNotConnected = errors.New("profile is not connected")

	// ErrCallStateBusy indicates that a virtual and a real call were
	// requested at the same time.
	ErrCallStateBusy = errors.New("another call is in progress")

	// ErrCommandTimeout indicates that a command's reply timed out.
	ErrCommandTimeout = errors.New("command reply timed out")

	// ErrMalformedEvent indicates that a stack event could not be decoded.
	ErrMalformedEvent = errors.New("malformed stack event")

	// ErrShimNotStarted indicates that the shim helper is not running.
	ErrShimNotStarted = errors.New("shim helper is not started")

	// ErrPropertyDataParse indicates that property data could not be parsed.
	ErrPropertyDataParse = errors.New("cannot parse property data")
)

// GenericError wraps an error chain so that it can be published
// to the error event stream.
type GenericError struct {
	Errors error `json:"-"`
}

// Error returns the wrapped error chain as a string.
func (g GenericError) Error() string {
	return g.Errors.Error()
}

// Unwrap returns the wrapped error chain.
func (g GenericError) Unwrap() error {
	return g.Errors
}
