package graph

import (
	"context"

	"github.com/tollgate-run/pipeline"
	"github.com/tollgate-run/pipeline/core"
)

// BarrierStage adapts a real BarrierController into a join node: every
// passenger that reaches it constructs a fresh Barrier, registers it with
// the shared controller, and suspends until the controller lifts or
// interrupts it (spec §4.5's per-passenger barrier step, expressed as a
// graph node instead of an Orchestrator StepDescriptor). This replaces the
// teacher's original join stage, which only counted DoneEvents; real
// barrier semantics (capacity, aggregation, interrupt cascades) now live
// behind it.
type BarrierStage[T any] struct {
	name       string
	controller pipeline.BarrierController[T]
}

// NewBarrierStage constructs a join node named name over controller.
func NewBarrierStage[T any](name string, controller pipeline.BarrierController[T]) *BarrierStage[T] {
	return &BarrierStage[T]{name: name, controller: controller}
}

func (s *BarrierStage[T]) Name() string { return s.name }

// Process registers a fresh Barrier per incoming passenger and forwards it
// downstream with its data replaced by whatever the barrier delivers.
// Passengers resolved to absent (interrupted) are dropped rather than
// forwarded.
func (s *BarrierStage[T]) Process(ctx context.Context, input <-chan core.Passenger[T], output chan<- core.Passenger[T]) error {
	defer close(output)

	for p := range input {
		b, err := pipeline.NewBarrier(s.controller)
		if err != nil {
			return err
		}
		result, ok, err := b.Invoke(ctx, p.Data())
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case output <- p.With(result):
		}
	}
	return nil
}
