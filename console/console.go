// Package console is an interactive shell over a gate whose operations are
// resolved by hand. It plays both contexts: the caller that starts and waits,
// and the interrupt that completes or fails, possibly later through "after".
package console

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/shlex"

	"github.com/notorious-go/hwop/gate"
)

// ErrQuit is returned by Exec for the quit command.
var ErrQuit = errors.New("console: quit")

// ErrUsage is matched by the error returned for a malformed command.
var ErrUsage = errors.New("console: usage")

const help = `commands:
  start <kind> [timeout]                 start an operation (blit, blend, clut-load, mode-transition)
  complete <token> <payload...>          notify completion
  fail <token> <message...>              notify failure
  after <delay> complete|fail <token> <text...>
                                         notify from another goroutine after delay
  wait [timeout]                         wait for the pending operation
  reset                                  discard the pending operation
  state                                  print the gate state
  help                                   print this help
  quit                                   leave the console
`

// An Option configures a Shell.
type Option func(*Shell)

// WithClock makes the shell measure timeouts and delays on c.
func WithClock(c clock.Clock) Option {
	if c == nil {
		panic(fmt.Errorf("console: WithClock(nil)"))
	}
	return func(s *Shell) { s.clock = c }
}

// WithPrompt sets the prompt that Run prints before every line.
func WithPrompt(p string) Option {
	return func(s *Shell) { s.prompt = p }
}

// Shell executes console commands against a gate of string payloads.
type Shell struct {
	out    io.Writer
	clock  clock.Clock
	prompt string
	gate   *gate.Gate[string, string]
}

// New returns a shell that writes its output to out.
func New(out io.Writer, opts ...Option) *Shell {
	s := &Shell{out: out, clock: clock.New()}
	for _, opt := range opts {
		opt(s)
	}
	s.gate = gate.New[string, string](nil, gate.WithClock(s.clock))
	return s
}

// Gate returns the gate the shell operates on.
func (s *Shell) Gate() *gate.Gate[string, string] {
	return s.gate
}

// Run executes the lines read from in until the input ends or quit is
// entered. Errors of single commands are printed, not returned.
func (s *Shell) Run(in io.Reader) error {
	sc := bufio.NewScanner(in)
	for {
		if s.prompt != "" {
			fmt.Fprint(s.out, s.prompt)
		}
		if !sc.Scan() {
			return sc.Err()
		}
		err := s.Exec(sc.Text())
		if errors.Is(err, ErrQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
	}
}

// Exec executes one command line. Blank lines and lines starting with # do
// nothing.
func (s *Shell) Exec(line string) error {
	args, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("console: %w", err)
	}
	if len(args) == 0 || strings.HasPrefix(args[0], "#") {
		return nil
	}
	cmd, args := args[0], args[1:]
	switch cmd {
	case "start":
		return s.start(args)
	case "complete", "fail":
		token, text, err := notification(cmd, args)
		if err != nil {
			return err
		}
		s.notify(cmd, token, text)
		fmt.Fprintf(s.out, "notified %v\n", token)
		return nil
	case "after":
		return s.after(args)
	case "wait":
		return s.wait(args)
	case "reset":
		s.gate.Reset()
		fmt.Fprintln(s.out, "idle")
		return nil
	case "state":
		s.state()
		return nil
	case "help":
		fmt.Fprint(s.out, help)
		return nil
	case "quit", "exit":
		return ErrQuit
	default:
		return fmt.Errorf("%w: unknown command %q, try help", ErrUsage, cmd)
	}
}

func (s *Shell) start(args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("%w: start <kind> [timeout]", ErrUsage)
	}
	kind, err := gate.ParseKind(args[0])
	if err != nil {
		return err
	}
	var deadline time.Time
	if len(args) == 2 {
		d, err := time.ParseDuration(args[1])
		if err != nil {
			return fmt.Errorf("%w: timeout: %v", ErrUsage, err)
		}
		deadline = s.clock.Now().Add(d)
	}
	token, err := s.gate.Start(kind, "", deadline)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "started %v %v\n", kind, token)
	return nil
}

func notification(cmd string, args []string) (gate.Token, string, error) {
	if len(args) < 1 {
		return 0, "", fmt.Errorf("%w: %s <token> <text...>", ErrUsage, cmd)
	}
	token, err := parseToken(args[0])
	if err != nil {
		return 0, "", err
	}
	return token, strings.Join(args[1:], " "), nil
}

func (s *Shell) notify(cmd string, token gate.Token, text string) {
	if cmd == "fail" {
		s.gate.NotifyError(token, errors.New(text))
		return
	}
	s.gate.NotifyComplete(token, text)
}

func (s *Shell) after(args []string) error {
	if len(args) < 2 || (args[1] != "complete" && args[1] != "fail") {
		return fmt.Errorf("%w: after <delay> complete|fail <token> <text...>", ErrUsage)
	}
	d, err := time.ParseDuration(args[0])
	if err != nil {
		return fmt.Errorf("%w: delay: %v", ErrUsage, err)
	}
	cmd := args[1]
	token, text, err := notification(cmd, args[2:])
	if err != nil {
		return err
	}
	s.clock.AfterFunc(d, func() { s.notify(cmd, token, text) })
	fmt.Fprintf(s.out, "scheduled %s %v in %v\n", cmd, token, d)
	return nil
}

func (s *Shell) wait(args []string) error {
	var deadline time.Time
	switch len(args) {
	case 0:
	case 1:
		d, err := time.ParseDuration(args[0])
		if err != nil {
			return fmt.Errorf("%w: timeout: %v", ErrUsage, err)
		}
		deadline = s.clock.Now().Add(d)
	default:
		return fmt.Errorf("%w: wait [timeout]", ErrUsage)
	}
	token, kind, _ := s.gate.Current()
	res, err := s.gate.Wait(deadline)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "completed %v %v: %s\n", kind, token, res)
	return nil
}

func (s *Shell) state() {
	token, kind, ok := s.gate.Current()
	if !ok {
		fmt.Fprintln(s.out, "idle")
		return
	}
	fmt.Fprintf(s.out, "%v %v %v\n", s.gate.State(), kind, token)
}

func parseToken(s string) (gate.Token, error) {
	n, err := strconv.ParseUint(strings.TrimPrefix(s, "#"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: token %q", ErrUsage, s)
	}
	return gate.Token(n), nil
}
