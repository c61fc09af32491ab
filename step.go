package pipeline

import "context"

// StepDescriptor is one step of a passenger's ordered iterator through an
// Orchestrator (spec §6). Exactly one of Operation or BarrierController
// should be set: Operation is a pure, retryable transform over T;
// BarrierController makes this a barrier step, which suspends the passenger
// until a fresh Barrier registered against it is lifted (optionally with a
// substituted result) or interrupted.
type StepDescriptor[T any] struct {
	// Name identifies the step for logging and error messages.
	Name string

	// Attempts is the retry budget for Operation steps. Values below 1 are
	// treated as 1. Ignored for barrier steps, which are never retried.
	Attempts int

	// Operation is the transform to run for an ordinary step.
	Operation func(ctx context.Context, in T) (T, error)

	// BarrierController, if set, makes this a barrier step instead of an
	// Operation step: Run constructs and registers a fresh Barrier against
	// it for every passenger that reaches this step (spec §4.5 step 1 — "a
	// fresh Barrier" per arrival, not one shared across passengers).
	BarrierController BarrierController[T]

	// OriginController identifies the CountedBarrierController backing
	// BarrierController, if it is one, so the orchestrator's failure cascade
	// can exclude it from self-notification (spec §4.5). Left nil for
	// ordinary steps and for barrier steps backed by a
	// ManualBarrierController.
	OriginController *CountedBarrierController[T]
}
