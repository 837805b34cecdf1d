// Package serialink drives operations that run on a remote device attached
// over a serial line. A Link implements gate.Driver: Issue writes a request
// frame and returns, and the reply frame read later by the link's reader
// goroutine resolves the operation. The reader goroutine is the notification
// context.
//
// The link assigns every request its own wire id and keeps the gate token it
// stands for, so the device never sees gate tokens. A reply whose id is not
// outstanding, such as a duplicate or the reply to a request the link has
// forgotten, is dropped.
package serialink

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"go.bug.st/serial"

	"github.com/notorious-go/hwop/gate"
)

// ErrClosed is returned by Issue after the link is closed, and delivered to
// every operation still outstanding when it closes.
var ErrClosed = errors.New("serialink: link closed")

// DefaultBaudRate is the baud rate of the board's virtual COM port.
const DefaultBaudRate = 115200

// An Option configures a Link.
type Option func(*Link)

// WithLogger makes the link log the frames it drops to l.
func WithLogger(l *slog.Logger) Option {
	if l == nil {
		panic(fmt.Errorf("serialink: WithLogger(nil)"))
	}
	return func(link *Link) { link.log = l }
}

// Link is the host end of a serial connection to a device. It implements
// gate.Driver[[]byte, []byte].
type Link struct {
	rwc io.ReadWriteCloser
	log *slog.Logger

	// wmu serializes frame writes.
	wmu sync.Mutex

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]waiter
	closing bool
	err     error

	done      chan struct{}
	closeOnce sync.Once
}

type waiter struct {
	token gate.Token
	kind  gate.Kind
	n     gate.Notifier[[]byte]
}

var _ gate.Driver[[]byte, []byte] = (*Link)(nil)

// New returns a link over rwc and starts its reader goroutine. The link owns
// rwc and closes it on Close.
func New(rwc io.ReadWriteCloser, opts ...Option) *Link {
	l := &Link{
		rwc:     rwc,
		log:     slog.New(slog.DiscardHandler),
		pending: make(map[uint64]waiter),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	go l.read()
	return l
}

// Open opens the serial port at the given baud rate and returns a link over
// it.
func Open(port string, baud int, opts ...Option) (*Link, error) {
	p, err := serial.Open(port, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("serialink: open %s: %w", port, err)
	}
	return New(p, opts...), nil
}

// Ports lists the serial ports of the host.
func Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("serialink: list ports: %w", err)
	}
	return ports, nil
}

// Issue sends a request frame carrying r.Params. The operation is resolved
// when the device replies, or failed with ErrClosed if the link closes first.
//
// A notifier has at most one request outstanding: a gate issues again only
// after it has consumed or given up on its previous operation, so a request
// still outstanding for n is forgotten and its reply dropped. Notifiers must
// be comparable, as pointers are.
func (l *Link) Issue(r gate.Request[[]byte], n gate.Notifier[[]byte]) error {
	l.mu.Lock()
	if l.closing {
		l.mu.Unlock()
		return ErrClosed
	}
	for id, w := range l.pending {
		if w.n == n {
			delete(l.pending, id)
			l.log.Debug("abandoned request forgotten", "id", id, "token", w.token, "kind", w.kind)
		}
	}
	l.nextID++
	id := l.nextID
	l.pending[id] = waiter{token: r.Token, kind: r.Kind, n: n}
	l.mu.Unlock()

	b, err := Frame{Type: Request, ID: id, Kind: r.Kind, Payload: r.Params}.MarshalBinary()
	if err == nil {
		l.wmu.Lock()
		_, err = l.rwc.Write(b)
		l.wmu.Unlock()
	}
	if err != nil {
		l.mu.Lock()
		delete(l.pending, id)
		l.mu.Unlock()
		return fmt.Errorf("serialink: send %v request: %w", r.Kind, err)
	}
	l.log.Debug("request sent", "id", id, "token", r.Token, "kind", r.Kind, "bytes", len(r.Params))
	return nil
}

// Outstanding returns the number of requests awaiting a reply.
func (l *Link) Outstanding() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

func (l *Link) read() {
	br := bufio.NewReader(l.rwc)
	for {
		f, err := ReadFrame(br)
		if err != nil {
			l.shutdown(err)
			return
		}
		l.dispatch(f)
	}
}

func (l *Link) dispatch(f Frame) {
	if f.Type != Complete && f.Type != Failure {
		l.log.Debug("unexpected frame dropped", "type", f.Type, "id", f.ID)
		return
	}
	l.mu.Lock()
	w, ok := l.pending[f.ID]
	delete(l.pending, f.ID)
	l.mu.Unlock()
	if !ok {
		l.log.Debug("stale reply dropped", "type", f.Type, "id", f.ID)
		return
	}

	if f.Type == Failure {
		w.n.NotifyError(w.token, parseFailure(f.Payload))
		return
	}
	w.n.NotifyComplete(w.token, f.Payload)
}

// shutdown fails every outstanding operation once the reader stops.
func (l *Link) shutdown(cause error) {
	l.mu.Lock()
	if l.closing {
		cause = ErrClosed
	}
	l.closing = true
	l.err = cause
	pending := l.pending
	l.pending = nil
	l.mu.Unlock()

	err := ErrClosed
	if cause != ErrClosed {
		err = fmt.Errorf("%w: %w", ErrClosed, cause)
	}
	for _, w := range pending {
		w.n.NotifyError(w.token, err)
	}
	close(l.done)
}

// Close closes the connection and waits for the reader goroutine to exit.
func (l *Link) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closing = true
		l.mu.Unlock()
		err = l.rwc.Close()
	})
	<-l.done
	return err
}

// Done returns a channel that is closed once the reader goroutine has exited.
func (l *Link) Done() <-chan struct{} {
	return l.done
}

// Err returns the reason the reader goroutine exited: ErrClosed after Close,
// or the read error that ended the connection. It returns nil while the link
// is running.
func (l *Link) Err() error {
	select {
	case <-l.done:
	default:
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}
