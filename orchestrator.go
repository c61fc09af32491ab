package pipeline

import (
	"cmp"
	"context"
	"fmt"
	"runtime/debug"

	"github.com/tollgate-run/pipeline/telemetry"
)

// OrchestratorConfig configures an Orchestrator.
type OrchestratorConfig[T cmp.Ordered] struct {
	// Steps is the ordered iterator every passenger runs through.
	Steps []StepDescriptor[T]

	// CountedBarriers is every CountedBarrierController this pipeline owns,
	// used for the failure-cascade fan-out of spec §4.5. It need not
	// include every controller referenced by Steps; a controller omitted
	// here simply never receives NotifyError.
	CountedBarriers []*CountedBarrierController[T]

	// Logger is optional; the zero value discards everything.
	Logger telemetry.Logger
}

// Orchestrator runs, per passenger, the ordered step iterator described in
// spec §4.5: an Operation step retries up to its attempt budget with
// panic recovery before giving up; a Barrier step suspends until lifted or
// interrupted. A terminal failure — an ordinary step exhausting its
// retries, or a barrier step's aggregate action failing — fans out to every
// owned CountedBarrierController (skipping the one that originated the
// failure, if any) via NotifyError, so a barrier waiting on an arrival that
// will now never come doesn't deadlock forever.
type Orchestrator[T cmp.Ordered] struct {
	steps           []StepDescriptor[T]
	countedBarriers []*CountedBarrierController[T]
	logger          telemetry.Logger
}

// NewOrchestrator constructs an Orchestrator from cfg.
func NewOrchestrator[T cmp.Ordered](cfg OrchestratorConfig[T]) *Orchestrator[T] {
	return &Orchestrator[T]{
		steps:           cfg.Steps,
		countedBarriers: cfg.CountedBarriers,
		logger:          cfg.Logger,
	}
}

// Run executes every step in order against passenger. It returns the final
// value and true on normal completion, or the zero value and false if a
// barrier step resolved to absent (the passenger was interrupted — spec
// §4.5 step 3 terminates the pipeline for it without treating this as an
// error). A non-nil error means an ordinary step exhausted its retry
// budget, or a barrier step failed: its registration or arrival was rejected
// by the controller, its controller's aggregation failed, or ctx ended while
// it was suspended.
func (o *Orchestrator[T]) Run(ctx context.Context, passenger T) (T, bool, error) {
	current := passenger
	for _, step := range o.steps {
		if step.BarrierController != nil {
			b, err := NewBarrier(step.BarrierController)
			if err != nil {
				o.onStepFailed(ctx, step.Name, err, step.OriginController)
				var zero T
				return zero, false, err
			}
			result, ok, err := b.Invoke(ctx, current)
			if err != nil {
				o.onStepFailed(ctx, step.Name, err, step.OriginController)
				var zero T
				return zero, false, err
			}
			if !ok {
				var zero T
				return zero, false, nil
			}
			current = result
			continue
		}

		result, err := o.runWithRetries(ctx, step, current)
		if err != nil {
			o.onStepFailed(ctx, step.Name, err, nil)
			var zero T
			return zero, false, err
		}
		current = result
	}
	return current, true, nil
}

func (o *Orchestrator[T]) runWithRetries(ctx context.Context, step StepDescriptor[T], input T) (T, error) {
	attempts := step.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var result T
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err = o.runOnce(ctx, step, input)
		if err == nil {
			return result, nil
		}
		o.logger.Warn().Str("step", step.Name).Int("attempt", attempt).Int("attempts", attempts).Err(err).Msg("step attempt failed")
	}
	return result, err
}

// runOnce runs a single attempt of an Operation step, recovering a panic
// into an error so one misbehaving step cannot take down the whole
// orchestrator goroutine.
func (o *Orchestrator[T]) runOnce(ctx context.Context, step StepDescriptor[T], input T) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("step %s panicked: %v\n%s", step.Name, r, debug.Stack())
		}
	}()
	return step.Operation(ctx, input)
}

// onStepFailed implements the failure-propagation half of spec §4.5: walk
// every owned CountedBarrierController that has not yet reached capacity
// and is not the origin of this failure, and notify it that one fewer
// arrival than expected will now ever reach it.
func (o *Orchestrator[T]) onStepFailed(ctx context.Context, stepName string, cause error, origin *CountedBarrierController[T]) {
	o.logger.Error().Str("step", stepName).Err(cause).Msg("step failed, notifying barrier controllers")
	for _, c := range o.countedBarriers {
		if c == origin {
			continue
		}
		if c.ArrivalCount() >= c.GetCapacity() {
			continue
		}
		c.NotifyError(ctx, c.GetCapacity()-1)
	}
}
