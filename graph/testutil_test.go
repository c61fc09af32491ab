package graph

import (
	"context"

	"github.com/tollgate-run/pipeline/core"
)

// transformStage is a minimal core.Stage that applies fn to every passenger
// it sees, for use across this package's tests.
type transformStage struct {
	name string
	fn   func(int) int
}

func newTransformStage(name string, fn func(int) int) *transformStage {
	if fn == nil {
		fn = func(v int) int { return v }
	}
	return &transformStage{name: name, fn: fn}
}

func (s *transformStage) Name() string { return s.name }

func (s *transformStage) Process(ctx context.Context, input <-chan core.Passenger[int], output chan<- core.Passenger[int]) error {
	defer close(output)
	for p := range input {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case output <- p.With(s.fn(p.Data())):
		}
	}
	return nil
}

// failingStage always returns err without forwarding anything.
type failingStage struct {
	name string
	err  error
}

func (s *failingStage) Name() string { return s.name }

func (s *failingStage) Process(ctx context.Context, input <-chan core.Passenger[int], output chan<- core.Passenger[int]) error {
	defer close(output)
	for range input {
	}
	return s.err
}
