package graph

import (
	"context"
	"sync"

	"github.com/tollgate-run/pipeline/core"
)

// FanOutRouter routes passengers from a single input to multiple downstream
// branches, with per-branch filtering and a configurable error policy.
type FanOutRouter[T any] struct {
	config  *core.FanOutConfig[T]
	inputs  []chan core.Passenger[T]
	outputs []chan core.Passenger[T]
	cancel  context.CancelFunc
}

// NewFanOutRouter constructs a router for config.
func NewFanOutRouter[T any](config *core.FanOutConfig[T]) *FanOutRouter[T] {
	inputs := make([]chan core.Passenger[T], len(config.Branches))
	outputs := make([]chan core.Passenger[T], len(config.Branches))
	for i := range config.Branches {
		inputs[i] = make(chan core.Passenger[T], 100)
		outputs[i] = make(chan core.Passenger[T], 100)
	}
	return &FanOutRouter[T]{config: config, inputs: inputs, outputs: outputs}
}

// Route distributes passengers from input to every branch, running each
// branch's stage concurrently, until input closes or ctx is cancelled.
func (fr *FanOutRouter[T]) Route(ctx context.Context, input <-chan core.Passenger[T]) error {
	mergedCtx, cancel := context.WithCancel(ctx)
	fr.cancel = cancel
	defer cancel()

	var branchWg sync.WaitGroup
	errCh := make(chan error, len(fr.config.Branches))

	for i, branch := range fr.config.Branches {
		branchWg.Add(1)
		go fr.runBranch(mergedCtx, i, branch, &branchWg, errCh)
	}

	go fr.distribute(mergedCtx, input)

	branchWg.Wait()
	close(errCh)

	var first error
	for err := range errCh {
		if err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (fr *FanOutRouter[T]) distribute(ctx context.Context, input <-chan core.Passenger[T]) {
	defer func() {
		for _, ch := range fr.inputs {
			close(ch)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-input:
			if !ok {
				return
			}
			for i, branch := range fr.config.Branches {
				if branch.Filter != nil && !branch.Filter(p) {
					continue
				}
				select {
				case <-ctx.Done():
					return
				case fr.inputs[i] <- p:
				}
			}
		}
	}
}

func (fr *FanOutRouter[T]) runBranch(ctx context.Context, i int, branch core.BranchConfig[T], wg *sync.WaitGroup, errCh chan<- error) {
	defer wg.Done()

	// fr.outputs[i] is closed by the branch stage itself (core.Stage's
	// contract); closing it again here would panic.
	err := branch.Stage.Process(ctx, fr.inputs[i], fr.outputs[i])
	if err != nil {
		select {
		case errCh <- err:
		default:
		}
		if fr.config.ErrorPolicy == core.ErrorPolicyCancelAll {
			fr.cancel()
		}
	}
}

// Outputs returns the read-only output channel for every branch, in
// configured order.
func (fr *FanOutRouter[T]) Outputs() []<-chan core.Passenger[T] {
	out := make([]<-chan core.Passenger[T], len(fr.outputs))
	for i, ch := range fr.outputs {
		out[i] = ch
	}
	return out
}

// FanOutStage adapts a FanOutRouter to the core.Stage interface so it can sit
// as a single node in a Graph.
type FanOutStage[T any] struct {
	name   string
	router *FanOutRouter[T]
}

// NewFanOutStage constructs a fan-out node named name.
func NewFanOutStage[T any](name string, config *core.FanOutConfig[T]) *FanOutStage[T] {
	return &FanOutStage[T]{name: name, router: NewFanOutRouter(config)}
}

func (fs *FanOutStage[T]) Name() string { return fs.name }

// Process routes input across every branch and merges their outputs back
// onto a single output channel.
func (fs *FanOutStage[T]) Process(ctx context.Context, input <-chan core.Passenger[T], output chan<- core.Passenger[T]) error {
	defer close(output)

	var mergeWg sync.WaitGroup
	for _, branchOutput := range fs.router.Outputs() {
		mergeWg.Add(1)
		go func(ch <-chan core.Passenger[T]) {
			defer mergeWg.Done()
			for p := range ch {
				select {
				case <-ctx.Done():
					return
				case output <- p:
				}
			}
		}(branchOutput)
	}

	err := fs.router.Route(ctx, input)
	mergeWg.Wait()
	return err
}
