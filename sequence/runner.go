// Package sequence runs configured sequences of DMA2D transfers, each step
// waiting for its CLUT loads and its transfer through a gate, the way the
// board's demo firmware does.
//
// The default sequence reproduces the blend demo: image 1 converted with its
// CLUT, image 0 converted with its CLUT, then image 1 at half opacity blended
// over image 0, holding every step on screen before the next.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/notorious-go/hwop/dma2d"
	"github.com/notorious-go/hwop/gate"
)

// Engine is the accelerator a Runner drives.
type Engine interface {
	Configure(dma2d.Config) error
	gate.Driver[dma2d.Request, dma2d.Result]
}

// StepReport describes a finished step.
type StepReport struct {
	Loop int
	Step int
	Name string
	Mode dma2d.Mode
	// Pixels is the number of pixels the transfer wrote.
	Pixels int
	// Retries is the number of operations of the step that were tried again.
	Retries int
	Elapsed time.Duration
}

// DefaultRetryDelay is the pause before an operation is tried again.
const DefaultRetryDelay = 10 * time.Millisecond

// An Option configures a Runner.
type Option func(*Runner)

// WithClock makes the runner measure timeouts and holds on c.
func WithClock(c clock.Clock) Option {
	if c == nil {
		panic(fmt.Errorf("sequence: WithClock(nil)"))
	}
	return func(r *Runner) { r.clock = c }
}

// WithLogger makes the runner log its progress to l.
func WithLogger(l *slog.Logger) Option {
	if l == nil {
		panic(fmt.Errorf("sequence: WithLogger(nil)"))
	}
	return func(r *Runner) { r.log = l }
}

// WithStepHook makes the runner call fn after every step, before the hold.
func WithStepHook(fn func(StepReport)) Option {
	return func(r *Runner) { r.onStep = fn }
}

// WithRetryDelay sets the pause before an operation is tried again.
func WithRetryDelay(d time.Duration) Option {
	return func(r *Runner) { r.retryDelay = d }
}

// Runner runs a Config against an Engine.
type Runner struct {
	cfg        *Config
	steps      []plannedStep
	engine     Engine
	clock      clock.Clock
	log        *slog.Logger
	onStep     func(StepReport)
	retryDelay time.Duration

	fb *dma2d.Framebuffer
	// CLUT loads and transfers are tracked by separate gates, as the
	// firmware keeps separate completion flags for them.
	clut *gate.Gate[dma2d.Request, dma2d.Result]
	xfer *gate.Gate[dma2d.Request, dma2d.Result]
}

// NewRunner validates cfg and returns a runner for it.
func NewRunner(cfg *Config, engine Engine, opts ...Option) (*Runner, error) {
	steps, err := cfg.plan()
	if err != nil {
		return nil, err
	}
	r := &Runner{
		cfg:        cfg,
		steps:      steps,
		engine:     engine,
		clock:      clock.New(),
		log:        slog.New(slog.DiscardHandler),
		retryDelay: DefaultRetryDelay,
		fb:         dma2d.NewFramebuffer(cfg.Framebuffer.Width, cfg.Framebuffer.Height),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.clut = gate.New[dma2d.Request, dma2d.Result](engine, gate.WithClock(r.clock))
	r.xfer = gate.New[dma2d.Request, dma2d.Result](engine, gate.WithClock(r.clock))
	return r, nil
}

// Framebuffer returns the output of the runner. It must not be read while Run
// is running.
func (r *Runner) Framebuffer() *dma2d.Framebuffer {
	return r.fb
}

// Run runs the configured loops. It returns nil once they are done, the
// context's error if it ends first, and the first failure otherwise.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Info("sequence started", "name", r.cfg.Name, "steps", len(r.steps), "loops", r.cfg.Loops)
	for loop := 0; r.cfg.Loops == 0 || loop < r.cfg.Loops; loop++ {
		for i, step := range r.steps {
			report, err := r.runStep(ctx, step)
			if err != nil {
				return err
			}
			report.Loop, report.Step = loop, i
			r.log.Info("step done", "loop", loop, "step", step.name,
				"pixels", report.Pixels, "retries", report.Retries, "elapsed", report.Elapsed)
			if r.onStep != nil {
				r.onStep(report)
			}
			if err := r.sleep(ctx, r.cfg.Hold); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Runner) runStep(ctx context.Context, step plannedStep) (StepReport, error) {
	begin := r.clock.Now()
	report := StepReport{Name: step.name, Mode: step.config.Mode}

	err := r.retry(ctx, step.name, "configure", &report.Retries, func() error {
		return r.engine.Configure(step.config)
	})
	if err != nil {
		return report, err
	}

	// The foreground CLUT is loaded before the background CLUT.
	loads := []dma2d.Request{{Layer: dma2d.Foreground, CLUT: step.foreground.clut}}
	if step.background != nil {
		loads = append(loads, dma2d.Request{Layer: dma2d.Background, CLUT: step.background.clut})
	}
	for _, req := range loads {
		err := r.retry(ctx, step.name, "clut load", &report.Retries, func() error {
			_, err := r.await(ctx, r.clut, gate.CLUTLoad, req)
			return err
		})
		if err != nil {
			return report, err
		}
	}

	kind := gate.Blit
	req := dma2d.Request{
		Foreground: step.foreground.image,
		Output:     r.fb,
		Width:      step.width,
		Height:     step.height,
	}
	if step.background != nil {
		kind = gate.Blend
		req.Background = step.background.image
	}
	err = r.retry(ctx, step.name, kind.String(), &report.Retries, func() error {
		res, err := r.await(ctx, r.xfer, kind, req)
		report.Pixels = res.Pixels
		return err
	})
	if err != nil {
		return report, err
	}
	report.Elapsed = r.clock.Now().Sub(begin)
	return report, nil
}

// await starts one operation on g and waits for it for at most the configured
// timeout. A timed out operation is discarded, so its late interrupt is
// ignored.
func (r *Runner) await(ctx context.Context, g *gate.Gate[dma2d.Request, dma2d.Result], kind gate.Kind, req dma2d.Request) (dma2d.Result, error) {
	if _, err := g.Start(kind, req, r.clock.Now().Add(r.cfg.Timeout)); err != nil {
		return dma2d.Result{}, err
	}
	res, err := g.WaitContext(ctx)
	if err != nil {
		g.Reset()
	}
	return res, err
}

// retry calls fn until it succeeds, fails with an error that is not worth
// retrying, or has been retried Retries times.
func (r *Runner) retry(ctx context.Context, step, what string, retries *int, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		transient := errors.Is(err, gate.ErrTimeout) || errors.Is(err, dma2d.ErrBusy)
		if !transient || attempt >= r.cfg.Retries {
			return fmt.Errorf("sequence: step %s: %s: %w", step, what, err)
		}
		*retries++
		r.log.Warn("retrying", "step", step, "operation", what, "attempt", attempt+1, "err", err)
		if err := r.sleep(ctx, r.retryDelay); err != nil {
			return err
		}
	}
}

func (r *Runner) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-r.clock.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
