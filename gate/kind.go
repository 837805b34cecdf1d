package gate

import (
	"fmt"
	"strings"
)

// Kind identifies which hardware action an operation stands for.
type Kind uint8

const (
	// Unspecified is the zero Kind.
	Unspecified Kind = iota
	// Blit is a memory-to-memory pixel transfer, optionally converting the
	// pixel format on the way.
	Blit
	// Blend is a two-layer memory-to-memory transfer that blends a foreground
	// over a background.
	Blend
	// CLUTLoad loads a color look-up table into a layer of the accelerator.
	CLUTLoad
	// ModeTransition is a power or display mode change that the hardware
	// performs at a point of its own choosing, such as a line event.
	ModeTransition
)

// Custom is the first Kind reserved for applications; kinds from Custom up are
// never assigned by this package.
const Custom Kind = 128

var kindNames = map[Kind]string{
	Unspecified:    "unspecified",
	Blit:           "blit",
	Blend:          "blend",
	CLUTLoad:       "clut-load",
	ModeTransition: "mode-transition",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	if k >= Custom {
		return fmt.Sprintf("custom(%d)", k-Custom)
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind returns the Kind named by s, as printed by Kind.String.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if k != Unspecified && name == s {
			return k, nil
		}
	}
	return Unspecified, fmt.Errorf("gate: unknown operation kind %q", s)
}

// State is the observable state of a gate.
type State uint32

const (
	Idle State = iota
	Pending
	Completed
	Failed
)

// resolving is the transient state held while the notification context writes
// the result. It is reported as Pending.
const resolving = 0xff

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", uint32(s))
	}
}

// Token identifies one started operation. Tokens are strictly increasing per
// gate, and the zero Token is never handed out.
type Token uint64

func (t Token) String() string {
	return fmt.Sprintf("#%d", uint64(t))
}
