package pipeline

import (
	"context"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func invokeAsync[T any](b *Barrier[T], input T) <-chan struct {
	result T
	ok     bool
	err    error
} {
	out := make(chan struct {
		result T
		ok     bool
		err    error
	}, 1)
	go func() {
		result, ok, err := b.Invoke(context.Background(), input)
		out <- struct {
			result T
			ok     bool
			err    error
		}{result, ok, err}
	}()
	return out
}

func TestManualControllerLiftReleasesEveryMemberWithOwnInput(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctrl := NewManualBarrierController[string](ManualBarrierControllerConfig{})
	b1, _ := NewBarrier[string](ctrl)
	b2, _ := NewBarrier[string](ctrl)

	r1 := invokeAsync(b1, "mockInput1")
	r2 := invokeAsync(b2, "mockInput2")
	time.Sleep(10 * time.Millisecond)

	ctrl.Lift()

	out1 := <-r1
	out2 := <-r2
	if !out1.ok || out1.result != "mockInput1" {
		t.Fatalf("b1: expected (mockInput1, true), got %+v", out1)
	}
	if !out2.ok || out2.result != "mockInput2" {
		t.Fatalf("b2: expected (mockInput2, true), got %+v", out2)
	}
}

func TestManualControllerIsReusablePerCycleByDefault(t *testing.T) {
	ctrl := NewManualBarrierController[string](ManualBarrierControllerConfig{})
	b1, _ := NewBarrier[string](ctrl)
	ctrl.Lift()
	_, _, _ = b1.Invoke(context.Background(), "mockInput1")

	b2, _ := NewBarrier[string](ctrl)
	if len(ctrl.Members()) != 1 {
		t.Fatalf("expected the new registration to start a fresh round, got %d members", len(ctrl.Members()))
	}
	_ = b2
}

func TestManualControllerStickyLatchesLift(t *testing.T) {
	ctrl := NewManualBarrierController[string](ManualBarrierControllerConfig{Sticky: true})
	ctrl.Lift()

	b, _ := NewBarrier[string](ctrl)
	result, ok, err := b.Invoke(context.Background(), "mockInput")
	if err != nil || !ok || result != "mockInput" {
		t.Fatalf("sticky latch should lift late registrations immediately, got (%q,%v,%v)", result, ok, err)
	}
}

func TestManualControllerInterruptDoesNotCascadeToSiblings(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctrl := NewManualBarrierController[string](ManualBarrierControllerConfig{})
	b1, _ := NewBarrier[string](ctrl)
	b2, _ := NewBarrier[string](ctrl)

	r1 := invokeAsync(b1, "mockInput1")
	r2 := invokeAsync(b2, "mockInput2")
	time.Sleep(10 * time.Millisecond)

	b1.Interrupt()
	out1 := <-r1
	if out1.ok {
		t.Fatal("b1 should resolve to absent after its own Interrupt")
	}

	if len(ctrl.Members()) != 1 {
		t.Fatalf("b2 should remain registered after b1's interruption, got %d members", len(ctrl.Members()))
	}

	ctrl.Lift()
	out2 := <-r2
	if !out2.ok || out2.result != "mockInput2" {
		t.Fatalf("b2: expected (mockInput2, true), got %+v", out2)
	}
}
