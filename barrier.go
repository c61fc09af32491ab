package pipeline

import (
	"context"
	"sync"
)

// state is a Barrier's position in its monotone Fresh→Armed→{Lifted,Interrupted}
// state machine (spec §4.1).
type state int

const (
	stateFresh state = iota
	stateArmed
	stateLifted
	stateInterrupted
)

func (s state) String() string {
	switch s {
	case stateFresh:
		return "fresh"
	case stateArmed:
		return "armed"
	case stateLifted:
		return "lifted"
	case stateInterrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// Arriving is the subset of Barrier behavior a BarrierController needs: the
// ability to lift or interrupt a member, and to read back the input it
// captured on arrival. Controllers depend on this interface rather than the
// concrete *Barrier type so tests can exercise controller logic against a
// mock, the way spec §8 scenario S1 ("Create barrier with mock controller")
// and S6 (asserting `interrupt()` was/wasn't called on specific members)
// describe.
type Arriving[T any] interface {
	Lift()
	LiftWith(result T)
	Interrupt()
	FailWith(err error)
	capturedInput() (T, bool)
}

// BarrierController observes lifecycle events from the barriers it owns
// (spec §4.2). Implementations decide when to lift or interrupt their
// members; OnBarrierBlocked may suspend (it is the only callback allowed to),
// since it is where a counted controller's aggregation phase runs.
// OnBarrierInterrupted returns an error so a controller can report
// KindUnknownBarrier when told about a barrier it never registered; Barrier
// itself discards the return value since Interrupt has no caller to report
// it to.
type BarrierController[T any] interface {
	OnBarrierCreated(b Arriving[T]) error
	OnBarrierBlocked(ctx context.Context, b Arriving[T]) error
	OnBarrierInterrupted(b Arriving[T]) error
}

// Barrier is a single-use rendezvous point. One caller invokes it with an
// input value and suspends until the barrier is lifted (optionally with an
// overriding result) or interrupted. A second Invoke on the same Barrier
// fails with KindAlreadyInvoked.
//
// The wakeup path generalizes two idioms from the pack: the idempotent
// channel close of pwaller/barrier (here `ready` is closed exactly once
// because only the first terminal state transition under mu closes it, not
// through a sync.Once), and the per-waiter ready-channel-plus-ctx.Done()
// select of elastic-go-concert's unison.Waitlist. A Barrier must be built
// with NewBarrier; its zero value has no ready channel.
type Barrier[T any] struct {
	mu      sync.Mutex
	state   state
	ready   chan struct{}
	invoked bool

	input    T
	hasInput bool

	overrideResult T
	hasOverride    bool

	deliverErr error

	controller BarrierController[T]
}

// NewBarrier constructs a fresh barrier and registers it synchronously with
// controller, matching the Orchestrator↔Barrier contract's first step
// (spec §4.5). controller may be nil, in which case the barrier behaves
// standalone and no lifecycle callbacks fire — useful for the isolated
// Barrier tests in spec §8 (S1, invariants 2/5/6).
func NewBarrier[T any](controller BarrierController[T]) (*Barrier[T], error) {
	b := &Barrier[T]{
		state:      stateFresh,
		ready:      make(chan struct{}),
		controller: controller,
	}
	if controller != nil {
		if err := controller.OnBarrierCreated(b); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Invoke records input as this barrier's captured value, arms the barrier,
// and suspends until it is lifted or interrupted (or ctx is cancelled, which
// is translated into an Interrupt per spec §5). It returns the delivered
// result and true, or the zero value and false if the barrier resolved to
// absent (interrupted). Invoke may be called at most once.
func (b *Barrier[T]) Invoke(ctx context.Context, input T) (T, bool, error) {
	b.mu.Lock()
	if b.invoked {
		b.mu.Unlock()
		var zero T
		return zero, false, newErr(KindAlreadyInvoked, "barrier already invoked")
	}
	b.invoked = true
	b.input = input
	b.hasInput = true

	switch b.state {
	case stateLifted:
		result := input
		if b.hasOverride {
			result = b.overrideResult
		}
		b.mu.Unlock()
		return result, true, nil

	case stateInterrupted:
		err := b.deliverErr
		b.mu.Unlock()
		var zero T
		return zero, false, err

	default: // stateFresh: first and only arming transition happens here.
		b.state = stateArmed
		ready := b.ready
		b.mu.Unlock()

		if b.controller != nil {
			if err := b.controller.OnBarrierBlocked(ctx, b); err != nil {
				var zero T
				return zero, false, err
			}
		}

		select {
		case <-ready:
		case <-ctx.Done():
			b.Interrupt()
			var zero T
			return zero, false, ctx.Err()
		}

		b.mu.Lock()
		defer b.mu.Unlock()
		if b.state == stateInterrupted {
			var zero T
			return zero, false, b.deliverErr
		}
		result := b.input
		if b.hasOverride {
			result = b.overrideResult
		}
		return result, true, nil
	}
}

// Lift transitions Fresh|Armed → Lifted, delivering the barrier's own
// captured input to the suspended (or not-yet-arrived) Invoke call. A second
// Lift, or a Lift arriving after Interrupt, is a no-op.
func (b *Barrier[T]) Lift() { b.lift(false, zeroOf[T]()) }

// LiftWith is Lift but overrides the delivered result with result.
func (b *Barrier[T]) LiftWith(result T) { b.lift(true, result) }

func (b *Barrier[T]) lift(hasOverride bool, result T) {
	b.mu.Lock()
	if b.state != stateFresh && b.state != stateArmed {
		b.mu.Unlock()
		return
	}
	b.state = stateLifted
	if hasOverride {
		b.hasOverride = true
		b.overrideResult = result
	}
	ready := b.ready
	b.mu.Unlock()
	close(ready)
}

// Interrupt transitions Fresh|Armed → Interrupted, waking any in-flight
// Invoke to return the absent value. It is a no-op once the barrier is
// already Lifted or Interrupted. On a fresh transition it notifies the
// owning controller via OnBarrierInterrupted.
func (b *Barrier[T]) Interrupt() {
	b.mu.Lock()
	if b.state != stateFresh && b.state != stateArmed {
		b.mu.Unlock()
		return
	}
	b.state = stateInterrupted
	ready := b.ready
	b.mu.Unlock()
	close(ready)

	if b.controller != nil {
		_ = b.controller.OnBarrierInterrupted(b)
	}
}

// FailWith transitions Fresh|Armed → Interrupted like Interrupt, but delivers
// err to the waiting (or not-yet-arrived) Invoke call instead of plain
// absence. It does not notify the controller: FailWith is used by a
// controller on its own members (a failed aggregate action propagating its
// cause to every arrival, spec §7), so the controller already knows and has
// already cleared its membership — calling back into it would be redundant.
func (b *Barrier[T]) FailWith(err error) {
	b.mu.Lock()
	if b.state != stateFresh && b.state != stateArmed {
		b.mu.Unlock()
		return
	}
	b.state = stateInterrupted
	b.deliverErr = err
	ready := b.ready
	b.mu.Unlock()
	close(ready)
}

// capturedInput returns the input Invoke recorded, if any. Controllers use
// this during aggregation (spec §4.4 step 4) to read back arrived values
// without requiring Invoke to have returned yet.
func (b *Barrier[T]) capturedInput() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.input, b.hasInput
}

func zeroOf[T any]() T {
	var zero T
	return zero
}
