// Package core holds the types shared by the pipeline's orchestration and
// graph-composition layers: the passenger envelope and the stage contract
// every processing unit implements.
package core

import (
	"time"

	"github.com/google/uuid"
)

// Passenger is an opaque payload T threaded through a pipeline, carrying a
// stable identity and creation timestamp alongside it. Passengers are
// ordered and compared by identity only; nothing in this package reorders
// them except the aggregate-sort/replay done by a counted barrier
// controller's lifted action.
type Passenger[T any] struct {
	id        uuid.UUID
	createdAt time.Time
	data      T
}

// NewPassenger wraps data in a freshly identified Passenger.
func NewPassenger[T any](data T) Passenger[T] {
	return Passenger[T]{
		id:        uuid.New(),
		createdAt: time.Now(),
		data:      data,
	}
}

// ID returns the passenger's stable identity.
func (p Passenger[T]) ID() uuid.UUID { return p.id }

// CreatedAt returns when the passenger was created.
func (p Passenger[T]) CreatedAt() time.Time { return p.createdAt }

// Data returns the current payload.
func (p Passenger[T]) Data() T { return p.data }

// With returns a copy of p carrying new data but the same identity and
// creation time, mirroring the external Passenger contract's `with(data=…)`
// copy operation (spec §6).
func (p Passenger[T]) With(data T) Passenger[T] {
	p.data = data
	return p
}
