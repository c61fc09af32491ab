package graph

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/tollgate-run/pipeline/core"
)

// Engine executes a Graph: passengers flow from the entry node through
// every reachable stage to the exit nodes, each node running as its own
// goroutine with its own buffered input/output channels, generalizing the
// teacher's Pipeline.Execute/executeGraph/runStage/routeOutputsStreaming.
type Engine[T any] struct {
	graph *Graph[T]
}

// NewEngine wraps graph for execution.
func NewEngine[T any](graph *Graph[T]) *Engine[T] {
	return &Engine[T]{graph: graph}
}

type nodeState[T any] struct {
	input  chan core.Passenger[T]
	output chan core.Passenger[T]
	done   chan struct{}
}

type executionState[T any] struct {
	ctx        context.Context
	cancel     context.CancelFunc
	nodeStates map[string]*nodeState[T]
	wg         sync.WaitGroup
	mu         sync.Mutex
	errCh      chan error
}

// Execute runs the graph against input and returns a channel of passengers
// collected from every exit node. The returned channel is closed once every
// node has finished.
func (e *Engine[T]) Execute(ctx context.Context, input <-chan core.Passenger[T]) <-chan core.Passenger[T] {
	output := make(chan core.Passenger[T], 100)

	go func() {
		defer close(output)
		_ = e.executeGraph(ctx, input, output)
	}()

	return output
}

func (e *Engine[T]) executeGraph(ctx context.Context, input <-chan core.Passenger[T], output chan<- core.Passenger[T]) error {
	pipelineCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	state := &executionState[T]{
		ctx:        pipelineCtx,
		cancel:     cancel,
		nodeStates: make(map[string]*nodeState[T]),
		errCh:      make(chan error, len(e.graph.AllNodes())),
	}

	for _, node := range e.graph.AllNodes() {
		state.nodeStates[node.Name()] = &nodeState[T]{
			input:  make(chan core.Passenger[T], 100),
			output: make(chan core.Passenger[T], 100),
			done:   make(chan struct{}),
		}
	}

	for _, node := range e.graph.AllNodes() {
		state.wg.Add(1)
		go e.runStage(node, state)
	}

	if entry := e.graph.EntryNode(); entry != nil {
		state.wg.Add(1)
		go func() {
			defer state.wg.Done()
			defer close(state.nodeStates[entry.Name()].input)
			for p := range input {
				select {
				case <-pipelineCtx.Done():
					return
				case state.nodeStates[entry.Name()].input <- p:
				}
			}
		}()
	}

	state.wg.Add(1)
	go func() {
		defer state.wg.Done()
		var exitWg sync.WaitGroup
		for _, exitNode := range e.graph.ExitNodes() {
			exitWg.Add(1)
			go func(node *Node[T]) {
				defer exitWg.Done()
				for p := range state.nodeStates[node.Name()].output {
					select {
					case <-pipelineCtx.Done():
						return
					case output <- p:
					}
				}
			}(exitNode)
		}
		exitWg.Wait()
	}()

	state.wg.Wait()
	close(state.errCh)
	for err := range state.errCh {
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine[T]) runStage(node *Node[T], state *executionState[T]) {
	defer state.wg.Done()

	ns := state.nodeStates[node.Name()]

	state.wg.Add(1)
	go func() {
		defer state.wg.Done()
		e.routeOutputs(node, state)
	}()

	// ns.output is closed by the stage itself (core.Stage's contract:
	// "Process must close output before returning"); routeOutputs' range
	// over ns.output terminates once that happens. Closing it again here
	// would panic.
	defer close(ns.done)

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("stage %s panicked: %v\n%s", node.Name(), r, debug.Stack())
			select {
			case state.errCh <- err:
			default:
			}
			state.cancel()
		}
	}()

	if err := node.Stage().Process(state.ctx, ns.input, ns.output); err != nil {
		select {
		case state.errCh <- err:
		default:
		}
		state.cancel()
	}
}

func (e *Engine[T]) routeOutputs(node *Node[T], state *executionState[T]) {
	ns := state.nodeStates[node.Name()]

	for p := range ns.output {
		for _, edge := range node.Outputs() {
			downstream := state.nodeStates[edge.To().Name()]
			if !edge.ShouldForward(p) {
				continue
			}
			select {
			case <-state.ctx.Done():
				return
			case downstream.input <- p:
			default:
				// Downstream buffer is full; drop rather than deadlock the
				// whole graph on a single slow branch.
			}
		}
	}

	// The stage has closed its output, but runStage closes ns.done only
	// after Process returns; wait for it so this node counts as done below.
	<-ns.done

	for _, edge := range node.Outputs() {
		downstreamNode := edge.To()
		downstream := state.nodeStates[downstreamNode.Name()]

		allUpstreamDone := true
		for _, inEdge := range downstreamNode.Inputs() {
			upstream := state.nodeStates[inEdge.From().Name()]
			select {
			case <-upstream.done:
			default:
				allUpstreamDone = false
			}
		}

		if allUpstreamDone {
			state.mu.Lock()
			select {
			case <-downstream.done:
			default:
				close(downstream.input)
			}
			state.mu.Unlock()
		}
	}
}
