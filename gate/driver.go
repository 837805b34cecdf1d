package gate

import "time"

// Request is what a Driver receives when a gate starts an operation.
type Request[Req any] struct {
	// Token identifies the operation. The driver must pass it back unchanged
	// when it notifies completion or failure.
	Token Token
	// Kind is the hardware action requested.
	Kind Kind
	// Deadline is the deadline recorded at Start. It is informational: drivers
	// are not expected to enforce it.
	Deadline time.Time
	// Params carries the peripheral-specific parameters.
	Params Req
}

// Notifier is the capability handed to the notification context. It can only
// resolve the operation identified by a token; it cannot start, read back or
// replace operations.
//
// Both methods are safe to call from any goroutine at any time, never block,
// and ignore tokens that do not identify the current pending operation.
type Notifier[Res any] interface {
	NotifyComplete(token Token, result Res)
	NotifyError(token Token, err error)
}

// Driver begins hardware operations on behalf of a gate.
//
// Issue must return promptly. A nil error means the hardware has accepted the
// request and the driver will eventually call exactly one of the notifier's
// methods with r.Token, possibly before Issue returns. A non-nil error means
// the request was rejected and the notifier will not be called.
type Driver[Req, Res any] interface {
	Issue(r Request[Req], n Notifier[Res]) error
}

// DriverFunc adapts an ordinary function to the Driver interface.
type DriverFunc[Req, Res any] func(r Request[Req], n Notifier[Res]) error

func (f DriverFunc[Req, Res]) Issue(r Request[Req], n Notifier[Res]) error {
	return f(r, n)
}
