package gate

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

// wallClock is used by gates that were not given a clock, including the zero
// Gate.
var wallClock = clock.New()

// Gate mediates the lifecycle of one asynchronous hardware operation at a
// time. Req is the type of the parameters handed to the Driver, and Res is the
// type of the payload delivered on completion.
//
// Start, Wait, WaitContext, Do and Reset belong to the caller and must not be
// called concurrently with each other. NotifyComplete and NotifyError may be
// called from any goroutine at any time.
//
// The zero Gate is ready to use. It has no driver and uses the wall clock.
type Gate[Req, Res any] struct {
	driver Driver[Req, Res]
	clock  clock.Clock

	// current is the operation owned by the gate, and nil while the gate is
	// Idle. It is replaced only by the caller; the notification context only
	// ever loads it.
	current atomic.Pointer[operation[Res]]
	// tokens holds the last token handed out.
	tokens atomic.Uint64
}

// Gates satisfy the notifier capability they hand to their drivers.
var _ Notifier[struct{}] = (*Gate[struct{}, struct{}])(nil)

// An Option configures a Gate.
type Option func(*options)

type options struct {
	clock clock.Clock
}

// WithClock makes the gate measure deadlines against c.
func WithClock(c clock.Clock) Option {
	if c == nil {
		panic(fmt.Errorf("gate: WithClock(nil)"))
	}
	return func(o *options) { o.clock = c }
}

// New returns a gate that issues its operations to driver. A nil driver is
// allowed, in which case Start only arms the operation.
func New[Req, Res any](driver Driver[Req, Res], opts ...Option) *Gate[Req, Res] {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &Gate[Req, Res]{driver: driver, clock: o.clock}
}

func (g *Gate[Req, Res]) clk() clock.Clock {
	if g.clock == nil {
		return wallClock
	}
	return g.clock
}

// Now returns the current time of the gate's clock. Deadlines passed to Start
// and Wait are compared against it.
func (g *Gate[Req, Res]) Now() time.Time {
	return g.clk().Now()
}

// Start arms a new operation of the given kind and hands it to the driver.
//
// A zero deadline means the operation has no deadline of its own; Wait then
// blocks until the operation is resolved unless it is given a deadline.
//
// Start fails with ErrAlreadyPending, without touching the outstanding
// operation, if the previous operation has not been consumed by Wait or
// discarded by Reset. If the driver rejects the request, the gate returns to
// Idle and the driver's error is returned wrapped.
func (g *Gate[Req, Res]) Start(kind Kind, req Req, deadline time.Time) (Token, error) {
	if cur := g.current.Load(); cur != nil {
		return 0, fmt.Errorf("%w: %v operation %v", ErrAlreadyPending, cur.kind, cur.token)
	}

	op := &operation[Res]{
		token:    Token(g.tokens.Add(1)),
		kind:     kind,
		deadline: deadline,
		done:     make(chan struct{}),
	}
	op.state.Store(uint32(Pending))
	// The operation must be published before the driver sees it, because the
	// hardware may complete before Issue returns.
	if !g.current.CompareAndSwap(nil, op) {
		return 0, ErrAlreadyPending
	}

	if g.driver == nil {
		return op.token, nil
	}
	r := Request[Req]{Token: op.token, Kind: kind, Deadline: deadline, Params: req}
	if err := g.driver.Issue(r, g); err != nil {
		g.current.CompareAndSwap(op, nil)
		return 0, fmt.Errorf("gate: issue %v: %w", kind, err)
	}
	return op.token, nil
}

// NotifyComplete resolves the pending operation identified by token with the
// given result. It is a no-op if token does not identify the current
// operation or if that operation has already been resolved.
func (g *Gate[Req, Res]) NotifyComplete(token Token, result Res) {
	if op := g.lookup(token); op != nil {
		op.resolve(result, nil)
	}
}

// NotifyError resolves the pending operation identified by token as failed.
// The error is delivered to Wait unchanged, wrapped in a HardwareError. It is a
// no-op if token does not identify the current operation or if that operation
// has already been resolved.
func (g *Gate[Req, Res]) NotifyError(token Token, err error) {
	if err == nil {
		err = errUnspecified
	}
	if op := g.lookup(token); op != nil {
		var zero Res
		op.resolve(zero, err)
	}
}

func (g *Gate[Req, Res]) lookup(token Token) *operation[Res] {
	op := g.current.Load()
	if op == nil || op.token != token {
		return nil
	}
	return op
}

// Wait blocks until the pending operation is resolved or the deadline elapses.
//
// A zero deadline falls back to the deadline recorded by Start; if both are
// zero, Wait blocks until the operation is resolved. A deadline that has
// already elapsed makes Wait return immediately.
//
// On completion Wait returns the payload and the gate becomes Idle. On failure
// it returns a *HardwareError and the gate becomes Idle. On timeout it returns
// an error matching ErrTimeout and the operation stays Pending with its token,
// so the caller may Wait again or Reset. Wait on an Idle gate returns
// ErrNotPending.
func (g *Gate[Req, Res]) Wait(deadline time.Time) (Res, error) {
	op := g.current.Load()
	if op == nil {
		var zero Res
		return zero, ErrNotPending
	}
	if deadline.IsZero() {
		deadline = op.deadline
	}
	return g.await(context.Background(), op, deadline)
}

// WaitContext is like Wait with the deadline recorded by Start, but it also
// returns when ctx is done. If ctx ends because its deadline was exceeded, the
// returned error matches ErrTimeout; if ctx is cancelled, ctx.Err() is
// returned. Either way the operation stays Pending.
func (g *Gate[Req, Res]) WaitContext(ctx context.Context) (Res, error) {
	op := g.current.Load()
	if op == nil {
		var zero Res
		return zero, ErrNotPending
	}
	return g.await(ctx, op, op.deadline)
}

// Do starts an operation and waits for it with ctx. The deadline of ctx, if
// any, is recorded as the operation's deadline and handed to the driver.
// Like Wait, Do leaves a timed out operation Pending.
func (g *Gate[Req, Res]) Do(ctx context.Context, kind Kind, req Req) (Res, error) {
	deadline, _ := ctx.Deadline()
	if _, err := g.Start(kind, req, deadline); err != nil {
		var zero Res
		return zero, err
	}
	return g.WaitContext(ctx)
}

func (g *Gate[Req, Res]) await(ctx context.Context, op *operation[Res], deadline time.Time) (Res, error) {
	select {
	case <-op.done:
		return g.consume(op)
	default:
	}

	var expired <-chan time.Time
	if !deadline.IsZero() {
		clk := g.clk()
		d := deadline.Sub(clk.Now())
		if d <= 0 {
			var zero Res
			return zero, timeoutError(op.kind, op.token)
		}
		t := clk.Timer(d)
		defer t.Stop()
		expired = t.C
	}

	var zero Res
	select {
	case <-op.done:
		return g.consume(op)
	case <-expired:
	case <-ctx.Done():
		if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, ctx.Err()
		}
	}
	// A result that raced with the deadline is still delivered.
	select {
	case <-op.done:
		return g.consume(op)
	default:
		return zero, timeoutError(op.kind, op.token)
	}
}

// consume returns the gate to Idle and reports the outcome of a resolved
// operation.
func (g *Gate[Req, Res]) consume(op *operation[Res]) (Res, error) {
	g.current.CompareAndSwap(op, nil)
	if op.err != nil {
		var zero Res
		return zero, &HardwareError{Kind: op.kind, Token: op.token, Err: op.err}
	}
	return op.res, nil
}

// Reset forces the gate back to Idle regardless of its state. The token of a
// discarded operation no longer matches, so a late notification for it is
// ignored.
func (g *Gate[Req, Res]) Reset() {
	g.current.Store(nil)
}

// State returns the state of the current operation, or Idle.
func (g *Gate[Req, Res]) State() State {
	op := g.current.Load()
	if op == nil {
		return Idle
	}
	return op.observed()
}

// Current returns the token and kind of the operation owned by the gate. The
// boolean is false when the gate is Idle.
func (g *Gate[Req, Res]) Current() (Token, Kind, bool) {
	op := g.current.Load()
	if op == nil {
		return 0, Unspecified, false
	}
	return op.token, op.kind, true
}

// Done returns a channel that is closed when the current operation reaches a
// terminal state. It returns nil when the gate is Idle.
//
// Done lets callers select on the operation together with other events; once
// the channel is closed, Wait returns without blocking.
func (g *Gate[Req, Res]) Done() <-chan struct{} {
	op := g.current.Load()
	if op == nil {
		return nil
	}
	return op.done
}

// An operation is the record of one started request.
type operation[Res any] struct {
	// Written before the operation is published, never changed by the
	// notification context.
	token    Token
	kind     Kind
	deadline time.Time

	// state moves from Pending to Completed or Failed exactly once, through
	// resolving while res and err are written.
	state atomic.Uint32
	res   Res
	err   error
	// done is closed after the terminal state is stored.
	done chan struct{}
}

// resolve records the terminal state. Only the first call has any effect.
func (op *operation[Res]) resolve(res Res, err error) bool {
	if !op.state.CompareAndSwap(uint32(Pending), resolving) {
		return false
	}
	op.res, op.err = res, err
	if err != nil {
		op.state.Store(uint32(Failed))
	} else {
		op.state.Store(uint32(Completed))
	}
	close(op.done)
	return true
}

func (op *operation[Res]) observed() State {
	s := op.state.Load()
	if s == resolving {
		return Pending
	}
	return State(s)
}
