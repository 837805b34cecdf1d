package dma2d

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/notorious-go/hwop/gate"
	"github.com/notorious-go/hwop/internal/busy"
)

var (
	// ErrBusy is returned while a transfer is in flight.
	ErrBusy = errors.New("dma2d: transfer in progress")

	// ErrInvalidRequest is matched by the error returned from Issue for a
	// request that can never run.
	ErrInvalidRequest = errors.New("dma2d: invalid request")
)

// Flags are the error interrupt flags of the accelerator.
type Flags uint8

const (
	// TransferFlag is raised when a transfer touches memory outside its
	// source or destination.
	TransferFlag Flags = 1 << iota
	// CLUTAccessFlag is raised when a layer reads a CLUT that is not loaded,
	// or an index beyond the loaded entries.
	CLUTAccessFlag
	// ConfigurationFlag is raised when a transfer is started with a
	// configuration that does not fit it.
	ConfigurationFlag
)

func (f Flags) String() string {
	var names []string
	if f&TransferFlag != 0 {
		names = append(names, "transfer")
	}
	if f&CLUTAccessFlag != 0 {
		names = append(names, "clut-access")
	}
	if f&ConfigurationFlag != 0 {
		names = append(names, "configuration")
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// TransferError is delivered through NotifyError when a transfer fails while
// running.
type TransferError struct {
	Flags  Flags
	Reason string
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("dma2d: %v error: %s", e.Flags, e.Reason)
}

// Request holds the parameters of an operation issued to an Engine.
type Request struct {
	// Layer and CLUT describe a gate.CLUTLoad operation.
	Layer int
	CLUT  CLUT

	// Foreground and Background are the input images of a gate.Blit or
	// gate.Blend operation. Blit only reads Foreground.
	Foreground *Image
	Background *Image

	// Output receives the transfer, starting at pixel index OutputIndex.
	Output      *Framebuffer
	OutputIndex int

	// Width and Height are the size of the transferred area. Zero means the
	// size of the foreground image.
	Width, Height int
}

// Result is the payload of a completed operation.
type Result struct {
	// Pixels is the number of pixels written, or the number of CLUT entries
	// loaded.
	Pixels int
}

// DefaultPixelTime is the simulated time the engine spends per pixel.
const DefaultPixelTime = 10 * time.Nanosecond

// An Option configures an Engine.
type Option func(*Engine)

// WithClock makes the engine schedule its interrupts on c.
func WithClock(c clock.Clock) Option {
	if c == nil {
		panic(fmt.Errorf("dma2d: WithClock(nil)"))
	}
	return func(e *Engine) { e.clock = c }
}

// WithLogger makes the engine log its transfers to l.
func WithLogger(l *slog.Logger) Option {
	if l == nil {
		panic(fmt.Errorf("dma2d: WithLogger(nil)"))
	}
	return func(e *Engine) { e.log = l }
}

// WithPixelTime sets the simulated time per pixel. Zero completes every
// transfer as soon as the interrupt goroutine runs.
func WithPixelTime(d time.Duration) Option {
	if d < 0 {
		panic(fmt.Errorf("dma2d: WithPixelTime(%v): negative duration", d))
	}
	return func(e *Engine) { e.pixelTime = d }
}

// Engine is a simulated DMA2D accelerator. It implements
// gate.Driver[Request, Result].
type Engine struct {
	clock     clock.Clock
	log       *slog.Logger
	pixelTime time.Duration

	busy busy.Flag

	mu         sync.Mutex
	config     Config
	configured bool
	cluts      [2]CLUT
}

var _ gate.Driver[Request, Result] = (*Engine)(nil)

// New returns an unconfigured engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		clock:     clock.New(),
		log:       slog.New(slog.DiscardHandler),
		pixelTime: DefaultPixelTime,
		busy:      busy.New(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Configure replaces the configuration of both layers and the output. It
// fails with ErrBusy while a transfer is in flight. CLUTs loaded before stay
// loaded.
func (e *Engine) Configure(c Config) error {
	if c.Mode != MemToMemPFC && c.Mode != MemToMemBlend {
		return fmt.Errorf("%w: mode %v", ErrInvalidRequest, c.Mode)
	}
	if c.OutputOffset < 0 || c.Layers[Background].InputOffset < 0 || c.Layers[Foreground].InputOffset < 0 {
		return fmt.Errorf("%w: negative line offset", ErrInvalidRequest)
	}
	if !e.busy.TryRaise() {
		return ErrBusy
	}
	defer e.busy.Lower()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.config = c
	e.configured = true
	e.log.Debug("configured", "mode", c.Mode, "output_offset", c.OutputOffset)
	return nil
}

// Busy reports whether a transfer is in flight.
func (e *Engine) Busy() bool {
	return e.busy.Busy()
}

// Issue starts the operation described by r. It returns ErrBusy if a transfer
// is in flight, and an error matching ErrInvalidRequest if the request can
// never run. Otherwise exactly one notification follows, from the engine's
// interrupt goroutine.
func (e *Engine) Issue(r gate.Request[Request], n gate.Notifier[Result]) error {
	p := r.Params
	units, err := validate(r.Kind, &p)
	if err != nil {
		return err
	}
	if !e.busy.TryRaise() {
		return ErrBusy
	}

	d := time.Duration(units) * e.pixelTime
	e.log.Debug("transfer started", "kind", r.Kind, "token", r.Token, "units", units, "duration", d)
	e.clock.AfterFunc(d, func() {
		res, err := e.run(r.Kind, p)
		// The flag is lowered before notifying, so the woken caller can issue
		// the next request straight away.
		e.busy.Lower()
		if err != nil {
			e.log.Debug("transfer failed", "kind", r.Kind, "token", r.Token, "err", err)
			n.NotifyError(r.Token, err)
			return
		}
		e.log.Debug("transfer complete", "kind", r.Kind, "token", r.Token, "pixels", res.Pixels)
		n.NotifyComplete(r.Token, res)
	})
	return nil
}

// validate rejects requests that can never run and fills in the default
// transfer size. It returns the number of pixels or entries transferred.
func validate(kind gate.Kind, p *Request) (int, error) {
	switch kind {
	case gate.CLUTLoad:
		if p.Layer != Background && p.Layer != Foreground {
			return 0, fmt.Errorf("%w: layer %d", ErrInvalidRequest, p.Layer)
		}
		if len(p.CLUT) == 0 || len(p.CLUT) > CLUTSize {
			return 0, fmt.Errorf("%w: CLUT with %d entries", ErrInvalidRequest, len(p.CLUT))
		}
		return len(p.CLUT), nil
	case gate.Blit, gate.Blend:
		if p.Foreground == nil {
			return 0, fmt.Errorf("%w: %v without foreground", ErrInvalidRequest, kind)
		}
		if kind == gate.Blend && p.Background == nil {
			return 0, fmt.Errorf("%w: blend without background", ErrInvalidRequest)
		}
		if p.Output == nil {
			return 0, fmt.Errorf("%w: %v without output", ErrInvalidRequest, kind)
		}
		if p.Width == 0 && p.Height == 0 {
			p.Width, p.Height = p.Foreground.Width, p.Foreground.Height
		}
		if p.Width <= 0 || p.Height <= 0 || p.OutputIndex < 0 {
			return 0, fmt.Errorf("%w: area %dx%d at %d", ErrInvalidRequest, p.Width, p.Height, p.OutputIndex)
		}
		// Within these limits the transfer size cannot overflow.
		if n := len(p.Output.Pix); p.Width > n || p.Height > n {
			return 0, fmt.Errorf("%w: area %dx%d exceeds a framebuffer of %d pixels",
				ErrInvalidRequest, p.Width, p.Height, n)
		}
		return p.Width * p.Height, nil
	default:
		return 0, fmt.Errorf("%w: unsupported kind %v", ErrInvalidRequest, kind)
	}
}

// run performs a validated operation, as the hardware does when the transfer
// reaches the front of its queue.
func (e *Engine) run(kind gate.Kind, p Request) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if kind == gate.CLUTLoad {
		e.cluts[p.Layer] = append(CLUT(nil), p.CLUT...)
		return Result{Pixels: len(p.CLUT)}, nil
	}

	want := MemToMemPFC
	if kind == gate.Blend {
		want = MemToMemBlend
	}
	if !e.configured || e.config.Mode != want {
		return Result{}, &TransferError{
			Flags:  ConfigurationFlag,
			Reason: fmt.Sprintf("%v started in mode %v", kind, e.config.Mode),
		}
	}

	c := e.config
	if !fits(len(p.Output.Pix), p.OutputIndex, p.Width, p.Height, c.OutputOffset) {
		return Result{}, &TransferError{
			Flags: TransferFlag,
			Reason: fmt.Sprintf("output area %dx%d at pixel %d with offset %d exceeds %d pixels",
				p.Width, p.Height, p.OutputIndex, c.OutputOffset, len(p.Output.Pix)),
		}
	}
	stride := p.Width + c.OutputOffset

	fg, err := e.source(Foreground, p.Foreground, p.Width, p.Height)
	if err != nil {
		return Result{}, err
	}
	var bg func(x, y int) uint32
	if kind == gate.Blend {
		if bg, err = e.source(Background, p.Background, p.Width, p.Height); err != nil {
			return Result{}, err
		}
	}

	// Pixels are only written once every check has passed, so a failed
	// transfer leaves the output untouched.
	for y := range p.Height {
		row := p.OutputIndex + y*stride
		for x := range p.Width {
			px := fg(x, y)
			if bg != nil {
				px = Blend(px, bg(x, y))
			}
			p.Output.Pix[row+x] = px
		}
	}
	return Result{Pixels: p.Width * p.Height}, nil
}

// source returns the color lookup of one layer after every index it will read
// has been checked against the layer's CLUT.
func (e *Engine) source(layer int, img *Image, w, h int) (func(x, y int) uint32, error) {
	l := e.config.Layers[layer]
	if !fits(len(img.Pix), 0, w, h, l.InputOffset) {
		return nil, &TransferError{
			Flags: TransferFlag,
			Reason: fmt.Sprintf("layer %d reads %dx%d with offset %d from an image of %d pixels",
				layer, w, h, l.InputOffset, len(img.Pix)),
		}
	}
	stride := w + l.InputOffset
	clut := e.cluts[layer]
	if clut == nil {
		return nil, &TransferError{
			Flags:  CLUTAccessFlag,
			Reason: fmt.Sprintf("layer %d CLUT not loaded", layer),
		}
	}
	for y := range h {
		for _, idx := range img.Pix[y*stride : y*stride+w] {
			if int(idx) >= len(clut) {
				return nil, &TransferError{
					Flags:  CLUTAccessFlag,
					Reason: fmt.Sprintf("layer %d index %d beyond %d CLUT entries", layer, idx, len(clut)),
				}
			}
		}
	}
	return func(x, y int) uint32 {
		return l.AlphaMode.apply(clut[img.Pix[y*stride+x]], l.InputAlpha)
	}, nil
}

// fits reports whether an area of w by h pixels, starting at pixel start and
// skipping offset pixels after every line, lies within n pixels. w and h are
// positive, start and offset are not negative. No intermediate value
// overflows.
func fits(n, start, w, h, offset int) bool {
	if start > n || w > n-start {
		return false
	}
	if h == 1 {
		return true
	}
	// Every line but the last takes w+offset pixels.
	limit := (n - start - w) / (h - 1)
	return w <= limit && offset <= limit-w
}
