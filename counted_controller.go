package pipeline

import (
	"cmp"
	"context"
	"math"
	"sync"
)

// CountedBarrierControllerConfig configures a CountedBarrierController.
type CountedBarrierControllerConfig[T cmp.Ordered] struct {
	// Capacity is the arrival count at which members auto-lift. Zero means
	// unbounded until SetCapacity gives it a real value.
	Capacity int

	// OnBarrierLiftedAction, if set, transforms the sorted arrived inputs
	// into an equal-length list of results before they are delivered back
	// in original arrival order (spec §4.4 step 4). A nil action delivers
	// each member its own captured input, unchanged.
	OnBarrierLiftedAction func(sortedInputs []T) []T

	// Spawn launches f on a fresh goroutine. It is used only when a
	// capacity change (SetCapacity or an error-driven change) causes the
	// controller to reach capacity from a caller that is not itself one of
	// the arriving fibers, and so cannot run the aggregation phase inline
	// (spec §4.4 step 3). Defaults to `go f()`.
	Spawn func(f func())
}

type countedMember[T any] struct {
	handle  Arriving[T]
	blocked bool
}

// CountedBarrierController auto-lifts its members once arrivalCount reaches
// capacity, optionally running an aggregate transformation over the sorted
// arrived inputs first (spec §4.4, "the crux" of the barrier subsystem).
type CountedBarrierController[T cmp.Ordered] struct {
	mu sync.Mutex

	capacity              int
	registeredCount       int
	arrivalCount          int
	interrupted           bool
	shouldExpectAbsentees bool

	registrationOrder []Arriving[T]
	arrivalOrder      []Arriving[T]
	barriers          map[Arriving[T]]*countedMember[T]

	aggregate func([]T) []T
	spawn     func(func())
}

// NewCountedBarrierController constructs a controller with the given
// capacity (math.MaxInt, effectively unbounded, if cfg.Capacity <= 0).
func NewCountedBarrierController[T cmp.Ordered](cfg CountedBarrierControllerConfig[T]) *CountedBarrierController[T] {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = math.MaxInt
	}
	spawn := cfg.Spawn
	if spawn == nil {
		spawn = func(f func()) { go f() }
	}
	return &CountedBarrierController[T]{
		capacity:  capacity,
		barriers:  make(map[Arriving[T]]*countedMember[T]),
		aggregate: cfg.OnBarrierLiftedAction,
		spawn:     spawn,
	}
}

// GetCapacity returns the controller's current capacity.
func (c *CountedBarrierController[T]) GetCapacity() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capacity
}

// ArrivalCount returns the number of members currently blocked (arrived).
func (c *CountedBarrierController[T]) ArrivalCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.arrivalCount
}

// RegisteredCount returns the number of members currently registered.
func (c *CountedBarrierController[T]) RegisteredCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registeredCount
}

// OnBarrierCreated implements the registration algorithm of spec §4.4 step 1:
// reject a duplicate registration, silently interrupt a late registration
// against an already-interrupted controller, and otherwise reject if
// registering would push registeredCount past capacity.
func (c *CountedBarrierController[T]) OnBarrierCreated(b Arriving[T]) error {
	c.mu.Lock()
	if _, known := c.barriers[b]; known {
		c.mu.Unlock()
		return newErr(KindDuplicateRegistration, "barrier already registered with this controller")
	}
	if c.interrupted {
		c.mu.Unlock()
		b.Interrupt()
		return nil
	}
	if c.registeredCount+1 > c.capacity {
		c.mu.Unlock()
		return newErr(KindCapacityExceeded, "registering would push registeredCount past capacity %d", c.capacity)
	}
	c.registeredCount++
	c.barriers[b] = &countedMember[T]{handle: b}
	c.registrationOrder = append(c.registrationOrder, b)
	c.mu.Unlock()
	return nil
}

// OnBarrierBlocked implements the arrival algorithm of spec §4.4 step 2. If
// this arrival brings arrivalCount to capacity, the aggregation phase runs
// on this same goroutine — the hot path never needs a fresh fiber, since the
// last arrival is, by definition, not yet suspended.
func (c *CountedBarrierController[T]) OnBarrierBlocked(ctx context.Context, b Arriving[T]) error {
	c.mu.Lock()
	m, known := c.barriers[b]
	if !known {
		interrupted := c.interrupted
		c.mu.Unlock()
		if interrupted {
			return nil
		}
		return newErr(KindUnknownBarrier, "barrier arrived without being registered")
	}
	if m.blocked {
		c.mu.Unlock()
		return newErr(KindDoubleBlock, "barrier arrived twice")
	}
	m.blocked = true
	c.arrivalCount++
	c.arrivalOrder = append(c.arrivalOrder, b)
	runFinal := c.arrivalCount == c.capacity
	c.mu.Unlock()

	if runFinal {
		return c.onFinalInputPushed(ctx)
	}
	return nil
}

// SetCapacity changes the controller's capacity (spec §4.4 step 3). It fails
// with KindCapacityBelowRegistered if newCapacity is below the current
// registeredCount. If arrivalCount already equals the new capacity, the
// arrived members are already suspended and cannot run the aggregation
// themselves, so it is spawned on a fresh fiber.
func (c *CountedBarrierController[T]) SetCapacity(ctx context.Context, newCapacity int) error {
	c.mu.Lock()
	if newCapacity < c.registeredCount {
		c.mu.Unlock()
		return newErr(KindCapacityBelowRegistered, "capacity %d is below registered count %d", newCapacity, c.registeredCount)
	}
	c.capacity = newCapacity
	runFinal := c.arrivalCount > 0 && c.arrivalCount == c.capacity && !c.interrupted
	c.mu.Unlock()

	if runFinal {
		c.spawn(func() { _ = c.onFinalInputPushed(ctx) })
	}
	return nil
}

// NotifyError is the Orchestrator↔Barrier contract's hook for an ordinary
// upstream step failure that means some expected arrival will never reach
// this controller (spec §4.4 step 6, §4.5). Unlike SetCapacity, it never
// rejects: it truncates registeredCount down to newCapacity if necessary,
// marks shouldExpectAbsentees, and — like SetCapacity — spawns the
// aggregation phase if doing so closes the gap to the current arrivalCount.
func (c *CountedBarrierController[T]) NotifyError(ctx context.Context, newCapacity int) {
	c.mu.Lock()
	if newCapacity < c.registeredCount {
		c.registeredCount = newCapacity
	}
	c.shouldExpectAbsentees = true
	c.capacity = newCapacity
	runFinal := c.arrivalCount > 0 && c.arrivalCount == c.capacity && !c.interrupted
	c.mu.Unlock()

	if runFinal {
		c.spawn(func() { _ = c.onFinalInputPushed(ctx) })
	}
}

// onFinalInputPushed implements spec §4.4 step 4: snapshot the blocked
// members in arrival order, check the absentee invariant, optionally run the
// sort/aggregate/reverse round trip, and lift every blocked member with its
// result. The membership is cleared before any of this is observable from
// outside, since the barrier group is terminal either way.
func (c *CountedBarrierController[T]) onFinalInputPushed(ctx context.Context) error {
	c.mu.Lock()
	blocked := make([]Arriving[T], 0, len(c.arrivalOrder))
	for _, b := range c.arrivalOrder {
		if m := c.barriers[b]; m != nil && m.blocked {
			blocked = append(blocked, b)
		}
	}
	absentees := make([]Arriving[T], 0)
	for _, b := range c.registrationOrder {
		if m := c.barriers[b]; m != nil && !m.blocked {
			absentees = append(absentees, b)
		}
	}
	absenteeCount := len(absentees)
	expectAbsentees := c.shouldExpectAbsentees
	aggregate := c.aggregate

	c.barriers = make(map[Arriving[T]]*countedMember[T])
	c.registrationOrder = nil
	c.arrivalOrder = nil
	c.registeredCount = 0
	c.arrivalCount = 0
	c.mu.Unlock()

	// Registered-but-never-arrived members (expected once capacity shrank
	// because of an upstream failure, spec §4.4.6) are woken with a clean
	// interrupt here, instead of being left to eventually call
	// OnBarrierBlocked against a controller whose membership map has
	// already been cleared.
	for _, b := range absentees {
		b.Interrupt()
	}

	if absenteeCount != 0 && !expectAbsentees {
		err := newErr(KindInternalInvariant, "observed %d registered-but-unblocked member(s) without a prior failure signal", absenteeCount)
		failAll(blocked, err)
		return err
	}

	unsortedInputs := make([]T, len(blocked))
	for i, b := range blocked {
		v, ok := b.capturedInput()
		if !ok {
			err := newErr(KindInternalInvariant, "arrived barrier has no captured input")
			failAll(blocked, err)
			return err
		}
		unsortedInputs[i] = v
	}

	var results []T
	if aggregate == nil {
		results = unsortedInputs
	} else {
		sortedInputs, replayer := SortWithReplayer(unsortedInputs)
		sortedOutputs := aggregate(sortedInputs)
		if len(sortedOutputs) != len(sortedInputs) {
			err := newErr(KindBadAggregatorOutput, "aggregate returned %d results for %d inputs", len(sortedOutputs), len(sortedInputs))
			failAll(blocked, err)
			return err
		}
		results = replayer.Reverse(sortedOutputs)
	}

	for i, b := range blocked {
		b.LiftWith(results[i])
	}
	return nil
}

// OnBarrierInterrupted cascades: one member's interruption terminates the
// whole group. Membership is cleared, and interrupted is latched, before
// calling Interrupt on the remaining siblings — so a sibling's own reentrant
// OnBarrierInterrupted call (Barrier.Interrupt notifies its controller) finds
// itself unknown-but-already-interrupted and silently no-ops, instead of
// recursing back through the group.
func (c *CountedBarrierController[T]) OnBarrierInterrupted(b Arriving[T]) error {
	c.mu.Lock()
	if _, known := c.barriers[b]; !known {
		interrupted := c.interrupted
		c.mu.Unlock()
		if interrupted {
			return nil
		}
		return newErr(KindUnknownBarrier, "barrier interrupted without being registered")
	}
	c.interrupted = true
	siblings := make([]Arriving[T], 0, len(c.barriers))
	for _, other := range c.registrationOrder {
		if other != b {
			siblings = append(siblings, other)
		}
	}
	c.barriers = make(map[Arriving[T]]*countedMember[T])
	c.registrationOrder = nil
	c.arrivalOrder = nil
	c.registeredCount = 0
	c.arrivalCount = 0
	c.mu.Unlock()

	for _, s := range siblings {
		s.Interrupt()
	}
	return nil
}

func failAll[T any](members []Arriving[T], err error) {
	for _, b := range members {
		b.FailWith(err)
	}
}
