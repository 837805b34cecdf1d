// Package gatetest provides utilities for testing drivers that are plugged into
// a [gate.Gate]. The package offers a framework for verifying that a driver
// honors the notification contract: exactly one notification per accepted
// request, carrying the token it was issued with.
//
// # Overview
//
// The primary function [Test] issues a series of [Case] values through a gate
// one after the other and verifies the outcome of each. [Recorder] is a
// [gate.Notifier] that records every notification it receives, for tests that
// drive a [gate.Driver] directly and need to see duplicates or stale tokens.
//
// # Example Usage
//
// Describe the requests and the outcomes they must produce:
//
//	g := gate.New[dma2d.Request, dma2d.Result](engine)
//	gatetest.Test(t, g, []gatetest.Case[dma2d.Request, dma2d.Result]{
//		{
//			Name:   "pfc",
//			Kind:   gate.Blit,
//			Req:    request,
//			Check:  func(t *testing.T, res dma2d.Result) { ... },
//		},
//		{
//			Name:    "bad-config",
//			Kind:    gate.Blit,
//			Req:     broken,
//			WantErr: dma2d.ErrInvalidRequest,
//		},
//	})
//
// The test fails if any case times out, resolves with the wrong outcome, or
// leaves the gate in a state other than Idle.
package gatetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/notorious-go/hwop/gate"
)

// DefaultTimeout bounds every case that does not set its own Timeout.
const DefaultTimeout = 5 * time.Second

// Case describes one request to run through a gate and the outcome it must
// produce.
type Case[Req, Res any] struct {
	// Name identifies the case in the subtest name.
	Name string

	// Kind and Req are passed to Gate.Start.
	Kind gate.Kind
	Req  Req

	// Timeout bounds the wait for the case; zero means DefaultTimeout.
	Timeout time.Duration

	// WantErr, if set, must match the error returned by Start or Wait
	// according to errors.Is. A case with WantErr set fails if the operation
	// completes.
	WantErr error

	// Check, if set, is called with the result of a completed operation.
	Check func(t *testing.T, res Res)
}

// Test runs every case through g in order, each in its own subtest.
//
// For every case Test:
//
//   - Starts the operation with a deadline of Timeout from now.
//   - Waits for it with a context bounded by the test's context.
//   - Verifies the outcome against WantErr and Check.
//   - Verifies that the gate is Idle afterwards, resetting it otherwise so
//     that the following cases are not affected.
func Test[Req, Res any](t *testing.T, g *gate.Gate[Req, Res], cases []Case[Req, Res]) {
	t.Helper()
	for _, c := range cases {
		t.Run(c.Name, func(t *testing.T) {
			defer func() {
				if s := g.State(); s != gate.Idle {
					t.Errorf("gate left %v after case", s)
					g.Reset()
				}
			}()
			c.run(t, g)
		})
	}
}

func (c Case[Req, Res]) run(t *testing.T, g *gate.Gate[Req, Res]) {
	t.Helper()
	timeout := c.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(t.Context(), timeout)
	defer cancel()

	res, err := g.Do(ctx, c.Kind, c.Req)
	if errors.Is(err, gate.ErrTimeout) {
		// A timed out operation stays pending until it is discarded.
		g.Reset()
	}
	switch {
	case errors.Is(err, gate.ErrTimeout) && !errors.Is(c.WantErr, gate.ErrTimeout):
		t.Errorf("%v operation was not resolved within %v", c.Kind, timeout)
	case c.WantErr != nil && err == nil:
		t.Errorf("%v operation completed; want error %v", c.Kind, c.WantErr)
	case c.WantErr != nil && !errors.Is(err, c.WantErr):
		t.Errorf("%v operation failed with %v; want %v", c.Kind, err, c.WantErr)
	case c.WantErr == nil && err != nil:
		t.Errorf("%v operation failed: %v", c.Kind, err)
	case err == nil && c.Check != nil:
		c.Check(t, res)
	}
}

// A Notification is one call received by a Recorder.
type Notification[Res any] struct {
	Token  gate.Token
	Result Res
	Err    error
}

// Failed reports whether the notification came from NotifyError.
func (n Notification[Res]) Failed() bool {
	return n.Err != nil
}

// Recorder is a gate.Notifier that records every notification it receives.
// Unlike a Gate, it accepts any token, any number of times.
//
// The zero Recorder is ready to use.
type Recorder[Res any] struct {
	mu    sync.Mutex
	seen  []Notification[Res]
	ready chan struct{}
}

var _ gate.Notifier[struct{}] = (*Recorder[struct{}])(nil)

func (r *Recorder[Res]) NotifyComplete(token gate.Token, result Res) {
	r.record(Notification[Res]{Token: token, Result: result})
}

func (r *Recorder[Res]) NotifyError(token gate.Token, err error) {
	r.record(Notification[Res]{Token: token, Err: err})
}

func (r *Recorder[Res]) record(n Notification[Res]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, n)
	if r.ready != nil {
		close(r.ready)
		r.ready = nil
	}
}

// Len returns the number of notifications received so far.
func (r *Recorder[Res]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

// Notifications returns a copy of the notifications received so far, in the
// order they arrived.
func (r *Recorder[Res]) Notifications() []Notification[Res] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification[Res](nil), r.seen...)
}

// Next blocks until the recorder holds more than n notifications and returns
// the one at index n. It fails the test if none arrives within timeout.
func (r *Recorder[Res]) Next(t testing.TB, n int, timeout time.Duration) Notification[Res] {
	t.Helper()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		r.mu.Lock()
		if len(r.seen) > n {
			got := r.seen[n]
			r.mu.Unlock()
			return got
		}
		if r.ready == nil {
			r.ready = make(chan struct{})
		}
		ready := r.ready
		r.mu.Unlock()

		select {
		case <-ready:
		case <-timer.C:
			t.Fatalf("notification %d not received within %v", n, timeout)
			return Notification[Res]{}
		}
	}
}

// Quiet fails the test if the recorder receives anything beyond its first n
// notifications within d.
func (r *Recorder[Res]) Quiet(t testing.TB, n int, d time.Duration) {
	t.Helper()
	time.Sleep(d)
	if got := r.Len(); got > n {
		t.Errorf("received %d notifications; want %d", got, n)
	}
}
