package graph

import (
	"fmt"

	"github.com/tollgate-run/pipeline/core"
)

// edgeConfig records a Connect call; Build adds every edge after every
// stage, so stages and edges can be declared in any order.
type edgeConfig[T any] struct {
	from, to string
	filter   func(core.Passenger[T]) bool
}

// Builder constructs a Graph with a fluent API, matching the teacher's
// GraphBuilder.
type Builder[T any] struct {
	stages    map[string]core.Stage[T]
	edges     []edgeConfig[T]
	entryNode string
	exitNodes []string
}

// NewBuilder returns an empty Builder.
func NewBuilder[T any]() *Builder[T] {
	return &Builder[T]{stages: make(map[string]core.Stage[T])}
}

// AddStage registers stage under name.
func (b *Builder[T]) AddStage(name string, stage core.Stage[T]) *Builder[T] {
	b.stages[name] = stage
	return b
}

// Connect adds an edge from one node to another, forwarding passengers
// matching filter (or all passengers, if filter is nil).
func (b *Builder[T]) Connect(from, to string, filter func(core.Passenger[T]) bool) *Builder[T] {
	b.edges = append(b.edges, edgeConfig[T]{from: from, to: to, filter: filter})
	return b
}

// SetEntryNode designates the graph's entry point.
func (b *Builder[T]) SetEntryNode(name string) *Builder[T] {
	b.entryNode = name
	return b
}

// AddExitNode marks name as a terminal node.
func (b *Builder[T]) AddExitNode(name string) *Builder[T] {
	b.exitNodes = append(b.exitNodes, name)
	return b
}

// Build assembles and validates the graph.
func (b *Builder[T]) Build() (*Graph[T], error) {
	if len(b.stages) == 0 {
		return nil, fmt.Errorf("pipeline must have at least one stage")
	}
	if b.entryNode == "" {
		return nil, fmt.Errorf("entry node must be set")
	}

	g := New[T]()
	for name, stage := range b.stages {
		if err := g.AddNode(name, stage); err != nil {
			return nil, fmt.Errorf("failed to add node %q: %w", name, err)
		}
	}
	for _, e := range b.edges {
		if err := g.AddEdge(e.from, e.to, e.filter); err != nil {
			return nil, fmt.Errorf("failed to add edge from %q to %q: %w", e.from, e.to, err)
		}
	}
	if err := g.SetEntryNode(b.entryNode); err != nil {
		return nil, fmt.Errorf("failed to set entry node: %w", err)
	}
	for _, name := range b.exitNodes {
		if err := g.AddExitNode(name); err != nil {
			return nil, fmt.Errorf("failed to add exit node %q: %w", name, err)
		}
	}
	if err := Validate(g); err != nil {
		return nil, fmt.Errorf("graph validation failed: %w", err)
	}
	return g, nil
}
