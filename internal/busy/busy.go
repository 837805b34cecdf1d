// Package busy provides the busy flag of a peripheral that runs one transfer at
// a time.
//
// A Flag is a buffered channel of capacity one. Raising the flag is a
// non-blocking send, so a second transfer is rejected rather than queued, and
// lowering it is a non-blocking receive, so the completion path of a transfer
// never blocks even if the flag was already lowered.
//
// The nil Flag belongs to a peripheral that accepts any number of concurrent
// transfers: it can always be raised and is never busy.
package busy

// Flag is a single-slot busy flag implemented as a buffered channel.
//
// To inspect its state, use Busy or the built-in len function: len(f) is 1
// while the flag is raised and 0 otherwise.
type Flag chan struct{}

// New returns a lowered flag.
func New() Flag {
	return make(Flag, 1)
}

// String returns "busy" or "idle". The nil Flag is "unbounded".
func (f Flag) String() string {
	switch {
	case f == nil:
		return "unbounded"
	case len(f) > 0:
		return "busy"
	default:
		return "idle"
	}
}

// TryRaise raises the flag without blocking. It returns false if the flag was
// already raised. For the nil Flag it always returns true.
//
// Typical usage pattern, where the transfer lowers the flag on completion:
//
//	if !f.TryRaise() {
//		return ErrBusy
//	}
//	go func() {
//		defer f.Lower()
//		// ... run the transfer ...
//	}()
func (f Flag) TryRaise() bool {
	if f == nil {
		return true
	}
	select {
	case f <- struct{}{}:
		return true
	default:
		return false
	}
}

// Lower lowers the flag. Lowering a flag that is not raised is a no-op, which
// lets an abort path and a completion path both lower it.
func (f Flag) Lower() {
	if f == nil {
		return
	}
	select {
	case <-f:
	default:
	}
}

// Busy reports whether the flag is raised.
func (f Flag) Busy() bool {
	return len(f) > 0
}
