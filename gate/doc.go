// Package gate provides a completion gate for single-outstanding asynchronous
// hardware operations.
//
// Many peripherals follow the same protocol: the CPU programs a request (a
// DMA2D pixel blit, a color look-up table load, a display mode transition),
// starts it, and learns about its completion later from an interrupt handler.
// Firmware usually expresses this with a module-level flag that the interrupt
// callback sets and the main loop spins on. That pattern has no ownership, no
// timeout, and no protection against a late or duplicate interrupt corrupting
// the state of the next operation.
//
// A [Gate] replaces the flag. It owns exactly one operation record at a time
// and mediates between two contexts:
//
//   - The caller, which issues [Gate.Start], then [Gate.Wait] (or
//     [Gate.WaitContext]) and, after giving up, [Gate.Reset]. A gate has a
//     single caller; these methods must not be called concurrently with each
//     other.
//   - The notification context, which resolves the operation through
//     [Gate.NotifyComplete] or [Gate.NotifyError]. This is conceptually an
//     interrupt handler: it may run at any time after Start has armed the
//     operation, concurrently with a Wait in progress, and it never blocks.
//
// # Lifecycle
//
// An operation moves strictly along
//
//	Idle --Start--> Pending --NotifyComplete--> Completed --Wait--> Idle
//	                Pending --NotifyError-->    Failed    --Wait--> Idle
//	                Pending --Wait (timeout)--> Pending --Reset--> Idle
//
// Start fails with [ErrAlreadyPending] while an operation is unconsumed. Wait
// returns the payload on completion, a [*HardwareError] on failure, and an
// error matching [ErrTimeout] when its deadline elapses. A timeout does not
// cancel the hardware request (it may not be cancelable); the operation stays
// Pending with its original [Token].
//
// # Tokens
//
// Every successful Start hands out a new Token. Notifications carry the token
// of the operation they resolve and are honoured only when it matches the
// current operation, which must still be Pending. A notification for an
// operation that has been reset, or that has already been resolved, is a
// silent no-op, so a stuck transfer that finally completes can never be
// mistaken for the completion of a newer one.
//
// After a timeout the caller may either keep waiting (a late notification with
// the original token still resolves the operation, and the next Wait returns
// it) or call Reset, after which the same late notification is discarded.
//
// # Drivers
//
// A [Driver] is the peripheral collaborator that actually starts the hardware.
// Start arms the operation first and then calls [Driver.Issue] with a
// [Notifier], the narrow capability that lets the driver's interrupt path flip
// the terminal state and nothing else. A synchronous rejection from Issue (the
// peripheral is busy, the parameters are invalid) rolls the gate back to Idle
// and is returned from Start.
//
// The zero Gate has no driver and uses the wall clock. It is ready to use for
// protocols where the caller triggers the hardware itself after Start.
package gate
