package display_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/notorious-go/hwop/display"
	"github.com/notorious-go/hwop/gate"
	"github.com/notorious-go/hwop/gate/gatetest"
)

type entered struct {
	st  display.Status
	err error
}

// enter runs EnterULPM while raising line events by hand until it returns.
func enter(t *testing.T, c *display.Controller, ctx context.Context) (display.Status, error) {
	t.Helper()
	done := make(chan entered, 1)
	go func() {
		st, err := c.EnterULPM(ctx)
		done <- entered{st, err}
	}()
	for {
		select {
		case r := <-done:
			return r.st, r.err
		case <-time.After(time.Millisecond):
			c.LineEvent()
		}
	}
}

func TestLineEventCountsFrames(t *testing.T) {
	c := display.New(display.WithFramePeriod(0))
	for range 3 {
		c.LineEvent()
	}
	if got := c.Frames(); got != 3 {
		t.Errorf("Frames = %d; want 3", got)
	}
	if !c.Enabled() {
		t.Error("display disabled without a request")
	}
}

func TestULPMCycle(t *testing.T) {
	c := display.New(display.WithFramePeriod(0))
	c.LineEvent()

	st, err := enter(t, c, t.Context())
	if err != nil {
		t.Fatalf("EnterULPM: %v", err)
	}
	if st.Frame < 1 {
		t.Errorf("Status.Frame = %d; want at least the frame counted before", st.Frame)
	}
	if !c.LowPower() || c.Enabled() {
		t.Fatalf("LowPower = %v, Enabled = %v; want true, false", c.LowPower(), c.Enabled())
	}

	// Line events are not raised while the LTDC is disabled.
	frames := c.Frames()
	c.LineEvent()
	if got := c.Frames(); got != frames {
		t.Errorf("frames counted in ULPM: %d -> %d", frames, got)
	}

	if err := c.ExitULPM(); err != nil {
		t.Fatalf("ExitULPM: %v", err)
	}
	if c.LowPower() || !c.Enabled() {
		t.Fatalf("LowPower = %v, Enabled = %v; want false, true", c.LowPower(), c.Enabled())
	}
	c.LineEvent()
	if got := c.Frames(); got != frames+1 {
		t.Errorf("Frames after exit = %d; want %d", got, frames+1)
	}

	if err := c.ExitULPM(); !errors.Is(err, display.ErrNotLowPower) {
		t.Errorf("second ExitULPM = %v; want ErrNotLowPower", err)
	}
}

func TestEnterULPMTimeout(t *testing.T) {
	c := display.New(display.WithFramePeriod(0))
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Millisecond)
	defer cancel()
	if _, err := c.EnterULPM(ctx); !errors.Is(err, gate.ErrTimeout) {
		t.Fatalf("EnterULPM without line events = %v; want ErrTimeout", err)
	}

	// The abandoned request must not turn the display off later.
	c.LineEvent()
	if !c.Enabled() || c.LowPower() {
		t.Fatalf("abandoned request turned the display off")
	}
	if _, err := enter(t, c, t.Context()); err != nil {
		t.Fatalf("EnterULPM after timeout: %v", err)
	}
}

func TestIssue(t *testing.T) {
	c := display.New(display.WithFramePeriod(0))
	var rec gatetest.Recorder[display.Status]
	off := gate.Request[display.Transition]{Token: 1, Kind: gate.ModeTransition, Params: display.DisplayOff}

	if err := c.Issue(gate.Request[display.Transition]{Token: 9, Kind: gate.Blit, Params: display.DisplayOff}, &rec); !errors.Is(err, display.ErrUnsupported) {
		t.Errorf("Issue(blit) = %v; want ErrUnsupported", err)
	}
	if err := c.Issue(off, &rec); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	second := off
	second.Token = 2
	if err := c.Issue(second, &rec); !errors.Is(err, display.ErrBusy) {
		t.Errorf("Issue while pending = %v; want ErrBusy", err)
	}

	c.LineEvent()
	n := rec.Next(t, 0, time.Second)
	if n.Token != 1 || n.Failed() {
		t.Errorf("notification = %+v; want completion of token 1", n)
	}
	if err := c.Issue(second, &rec); !errors.Is(err, display.ErrDisabled) {
		t.Errorf("Issue with LTDC disabled = %v; want ErrDisabled", err)
	}
	rec.Quiet(t, 1, 5*time.Millisecond)
}

func TestStopFailsPending(t *testing.T) {
	c := display.New(display.WithFramePeriod(0))
	var rec gatetest.Recorder[display.Status]
	if err := c.Issue(gate.Request[display.Transition]{Token: 4, Kind: gate.ModeTransition, Params: display.DisplayOff}, &rec); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	c.Stop()
	n := rec.Next(t, 0, time.Second)
	if n.Token != 4 || !errors.Is(n.Err, display.ErrStopped) {
		t.Errorf("notification = %+v; want ErrStopped for token 4", n)
	}
	if err := c.Start(); !errors.Is(err, display.ErrStopped) {
		t.Errorf("Start after Stop = %v; want ErrStopped", err)
	}
	c.Stop()
}

func TestTicker(t *testing.T) {
	c := display.New(display.WithFramePeriod(time.Millisecond))
	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	ctx, cancel := context.WithTimeout(t.Context(), time.Second)
	defer cancel()
	if _, err := c.EnterULPM(ctx); err != nil {
		t.Fatalf("EnterULPM: %v", err)
	}
	if err := c.ExitULPM(); err != nil {
		t.Fatalf("ExitULPM: %v", err)
	}
	frames := c.Frames()
	time.Sleep(20 * time.Millisecond)
	if c.Frames() <= frames {
		t.Errorf("no frames counted after ExitULPM")
	}
}

func TestMockTicker(t *testing.T) {
	mock := clock.NewMock()
	c := display.New(display.WithClock(mock), display.WithFramePeriod(display.DefaultFramePeriod))
	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for c.Frames() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("only %d frames after advancing the clock", c.Frames())
		}
		mock.Add(display.DefaultFramePeriod)
	}
}
