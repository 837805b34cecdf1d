// Package display models the LTDC display controller and the DSI host of the
// STM32H747 well enough to put the panel into ultra-low-power mode the way the
// board does: the request to turn the display off is honored at the next line
// event, and only then may the data lane enter ULPM.
//
// A Controller raises a line event once per frame period. Without a pending
// request the event counts a frame; with one, it disables the LTDC and
// resolves the request. The line event runs on the controller's own
// goroutine and is the notification context of the controller's gate.
package display

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/notorious-go/hwop/gate"
)

var (
	// ErrBusy is returned by Issue while a transition is pending.
	ErrBusy = errors.New("display: transition in progress")
	// ErrStopped is returned after Stop, and delivered to a transition that
	// was pending when the controller stopped.
	ErrStopped = errors.New("display: controller stopped")
	// ErrDisabled is returned by Issue when the LTDC is already disabled.
	ErrDisabled = errors.New("display: LTDC disabled")
	// ErrNotLowPower is returned by ExitULPM when the data lane is not in
	// ULPM.
	ErrNotLowPower = errors.New("display: not in low-power mode")
	// ErrUnsupported is returned by Issue for anything but a DisplayOff mode
	// transition.
	ErrUnsupported = errors.New("display: unsupported request")
)

// Transition is the mode change requested from the controller.
type Transition uint8

const (
	// DisplayOff disables the LTDC at the next line event.
	DisplayOff Transition = iota + 1
)

func (t Transition) String() string {
	if t == DisplayOff {
		return "display-off"
	}
	return fmt.Sprintf("transition(%d)", uint8(t))
}

// Status is the payload of a completed transition.
type Status struct {
	// Frame is the number of frames counted before the LTDC was disabled.
	Frame uint64
}

// DefaultFramePeriod is the frame period of the panel at 60 Hz.
const DefaultFramePeriod = time.Second / 60

// An Option configures a Controller.
type Option func(*Controller)

// WithClock makes the controller raise its line events on c.
func WithClock(c clock.Clock) Option {
	if c == nil {
		panic(fmt.Errorf("display: WithClock(nil)"))
	}
	return func(ctl *Controller) { ctl.clock = c }
}

// WithLogger makes the controller log its mode changes to l.
func WithLogger(l *slog.Logger) Option {
	if l == nil {
		panic(fmt.Errorf("display: WithLogger(nil)"))
	}
	return func(ctl *Controller) { ctl.log = l }
}

// WithFramePeriod sets the time between line events. A zero period starts no
// ticker at all, and line events are raised only by calling LineEvent.
func WithFramePeriod(d time.Duration) Option {
	if d < 0 {
		panic(fmt.Errorf("display: WithFramePeriod(%v): negative period", d))
	}
	return func(ctl *Controller) { ctl.period = d }
}

// Controller is a simulated LTDC and DSI host. It implements
// gate.Driver[Transition, Status].
type Controller struct {
	clock  clock.Clock
	log    *slog.Logger
	period time.Duration
	gate   *gate.Gate[Transition, Status]

	mu        sync.Mutex
	ltdc      bool // LTDC enabled
	panelOn   bool
	ulpm      bool
	frames    uint64
	pending   *transition
	stopped   bool
	running   bool
	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

type transition struct {
	token gate.Token
	n     gate.Notifier[Status]
}

var _ gate.Driver[Transition, Status] = (*Controller)(nil)

// New returns a controller with the LTDC enabled and the panel on. Its line
// events start with Start.
func New(opts ...Option) *Controller {
	c := &Controller{
		clock:   clock.New(),
		log:     slog.New(slog.DiscardHandler),
		period:  DefaultFramePeriod,
		ltdc:    true,
		panelOn: true,
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.gate = gate.New[Transition, Status](c, gate.WithClock(c.clock))
	return c
}

// Start begins raising line events every frame period. It fails with
// ErrStopped after Stop, and does nothing if the controller is already
// running or has no frame period.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return ErrStopped
	}
	if c.running || c.period == 0 {
		return nil
	}
	c.running = true

	ticker := c.clock.Ticker(c.period)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.LineEvent()
			case <-c.stop:
				return
			}
		}
	}()
	return nil
}

// Stop halts the line events and waits for the event goroutine to exit. A
// pending transition is failed with ErrStopped. Stop may be called more than
// once.
func (c *Controller) Stop() {
	c.closeOnce.Do(func() { close(c.stop) })
	c.wg.Wait()

	c.mu.Lock()
	c.stopped = true
	p := c.pending
	c.pending = nil
	c.mu.Unlock()

	if p != nil {
		p.n.NotifyError(p.token, ErrStopped)
	}
}

// Issue requests a DisplayOff transition, honored at the next line event.
func (c *Controller) Issue(r gate.Request[Transition], n gate.Notifier[Status]) error {
	if r.Kind != gate.ModeTransition || r.Params != DisplayOff {
		return fmt.Errorf("%w: %v %v", ErrUnsupported, r.Kind, r.Params)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.stopped:
		return ErrStopped
	case c.pending != nil:
		return ErrBusy
	case !c.ltdc:
		return ErrDisabled
	}
	c.pending = &transition{token: r.Token, n: n}
	c.log.Debug("display off requested", "token", r.Token, "frame", c.frames)
	return nil
}

// LineEvent raises the programmed line event, as the ticker does once per
// frame. It does nothing while the LTDC is disabled or after Stop.
func (c *Controller) LineEvent() {
	c.mu.Lock()
	if !c.ltdc || c.stopped {
		c.mu.Unlock()
		return
	}
	p := c.pending
	if p == nil {
		// Count the frame and reprogram the line event.
		c.frames++
		c.mu.Unlock()
		return
	}
	c.ltdc = false
	c.pending = nil
	frame := c.frames
	c.mu.Unlock()

	c.log.Debug("LTDC disabled", "token", p.token, "frame", frame)
	p.n.NotifyComplete(p.token, Status{Frame: frame})
}

// cancel drops the pending transition identified by token, so that a
// transition abandoned by its caller does not turn the display off later.
func (c *Controller) cancel(token gate.Token) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != nil && c.pending.token == token {
		c.pending = nil
	}
}

// EnterULPM turns the display off at the next line event and then puts the
// DSI data lane into ultra-low-power mode. If ctx ends first, the request is
// abandoned and the display stays on.
func (c *Controller) EnterULPM(ctx context.Context) (Status, error) {
	st, err := c.gate.Do(ctx, gate.ModeTransition, DisplayOff)
	if err != nil {
		if token, _, ok := c.gate.Current(); ok {
			c.cancel(token)
		}
		c.gate.Reset()
		return Status{}, fmt.Errorf("display: enter ULPM: %w", err)
	}

	c.mu.Lock()
	c.panelOn = false
	c.ulpm = true
	c.mu.Unlock()
	c.log.Info("entered ULPM", "frame", st.Frame)
	return st, nil
}

// ExitULPM takes the data lane out of ultra-low-power mode, enables the LTDC,
// turns the panel on and reprograms the line event. It also recovers a
// controller whose LTDC was disabled by a transition that EnterULPM gave up
// on. Otherwise it returns ErrNotLowPower.
func (c *Controller) ExitULPM() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ulpm && c.ltdc {
		return ErrNotLowPower
	}
	c.ulpm = false
	c.ltdc = true
	c.panelOn = true
	c.log.Info("exited ULPM", "frame", c.frames)
	return nil
}

// Frames returns the number of frames counted so far.
func (c *Controller) Frames() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}

// LowPower reports whether the data lane is in ULPM.
func (c *Controller) LowPower() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ulpm
}

// Enabled reports whether the LTDC is enabled and the panel on.
func (c *Controller) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ltdc && c.panelOn
}
