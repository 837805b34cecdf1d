package gate

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyPending is returned by Start while a previous operation has not
	// been consumed by Wait or discarded by Reset.
	ErrAlreadyPending = errors.New("gate: operation already pending")

	// ErrTimeout is matched by the error returned from Wait when the deadline
	// elapses before the operation is resolved. The operation stays pending.
	ErrTimeout = errors.New("gate: operation timed out")

	// ErrNotPending is returned by Wait when no operation has been started.
	ErrNotPending = errors.New("gate: no operation pending")

	// ErrHardware is matched by every HardwareError.
	ErrHardware = errors.New("gate: hardware error")

	errUnspecified = errors.New("unspecified failure")
)

// HardwareError is returned by Wait when the notification context reported a
// failure through NotifyError. Err is the reported error, unchanged.
type HardwareError struct {
	Kind  Kind
	Token Token
	Err   error
}

func (e *HardwareError) Error() string {
	return fmt.Sprintf("gate: %v operation %v failed: %v", e.Kind, e.Token, e.Err)
}

func (e *HardwareError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrHardware, so that callers can test for the
// failure class without unwrapping to the device-specific error.
func (e *HardwareError) Is(target error) bool {
	return target == ErrHardware
}

func timeoutError(kind Kind, token Token) error {
	return fmt.Errorf("%w: %v operation %v", ErrTimeout, kind, token)
}
