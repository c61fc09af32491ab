package pipeline

import (
	"context"
	"sync"
)

// ManualBarrierControllerConfig configures a ManualBarrierController.
type ManualBarrierControllerConfig struct {
	// Sticky, if true, permanently arms the controller's lift latch the
	// first time Lift is called: every barrier registered afterward is
	// lifted immediately instead of accumulating. The default (false) is
	// the per-cycle behavior spec §4.3 calls out as the default: Lift
	// empties the member set and the controller is reusable for another
	// round.
	Sticky bool
}

// ManualBarrierController holds the ordered set of registered, not-yet-lifted
// barriers and releases all of them together when told to by an external
// Lift call (spec §4.3). Unlike CountedBarrierController, one member's
// interruption does not cascade to its siblings: manual groups tolerate
// sparse failures.
type ManualBarrierController[T any] struct {
	mu sync.Mutex

	members []Arriving[T]
	present map[Arriving[T]]int // value -> index into members, for O(1) lookup on removal

	sticky      bool
	liftedLatch bool
}

// NewManualBarrierController constructs an empty, per-cycle (or sticky,
// per cfg.Sticky) manual controller.
func NewManualBarrierController[T any](cfg ManualBarrierControllerConfig) *ManualBarrierController[T] {
	return &ManualBarrierController[T]{
		present: make(map[Arriving[T]]int),
		sticky:  cfg.Sticky,
	}
}

// OnBarrierCreated registers b. If the sticky latch has been permanently
// armed by a prior Lift, b is lifted immediately instead of being tracked.
func (c *ManualBarrierController[T]) OnBarrierCreated(b Arriving[T]) error {
	c.mu.Lock()
	if c.sticky && c.liftedLatch {
		c.mu.Unlock()
		b.Lift()
		return nil
	}
	c.present[b] = len(c.members)
	c.members = append(c.members, b)
	c.mu.Unlock()
	return nil
}

// OnBarrierBlocked just observes the arrival; a manual controller never
// auto-lifts on arrival.
func (c *ManualBarrierController[T]) OnBarrierBlocked(ctx context.Context, b Arriving[T]) error {
	return nil
}

// OnBarrierInterrupted drops b from the member set. It does not touch any
// other member, and never reports KindUnknownBarrier: manual groups tolerate
// being told about a member that was already removed or never registered.
func (c *ManualBarrierController[T]) OnBarrierInterrupted(b Arriving[T]) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(b)
	return nil
}

// Lift atomically releases every currently registered member, in
// registration order, with each barrier's own captured input (no override),
// then empties the member set. If cfg.Sticky was set, the latch is armed
// permanently: barriers registered after this point are lifted immediately
// by OnBarrierCreated instead of accumulating.
func (c *ManualBarrierController[T]) Lift() {
	c.mu.Lock()
	members := c.members
	c.members = nil
	c.present = make(map[Arriving[T]]int)
	if c.sticky {
		c.liftedLatch = true
	}
	c.mu.Unlock()

	for _, b := range members {
		b.Lift()
	}
}

// Interrupt interrupts every currently registered member and empties the set.
func (c *ManualBarrierController[T]) Interrupt() {
	c.mu.Lock()
	members := c.members
	c.members = nil
	c.present = make(map[Arriving[T]]int)
	c.mu.Unlock()

	for _, b := range members {
		b.Interrupt()
	}
}

// Members returns the currently registered, not-yet-lifted barriers in
// registration order.
func (c *ManualBarrierController[T]) Members() []Arriving[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Arriving[T], len(c.members))
	copy(out, c.members)
	return out
}

func (c *ManualBarrierController[T]) removeLocked(b Arriving[T]) {
	idx, ok := c.present[b]
	if !ok {
		return
	}
	delete(c.present, b)
	c.members = append(c.members[:idx], c.members[idx+1:]...)
	for i := idx; i < len(c.members); i++ {
		c.present[c.members[i]] = i
	}
}
