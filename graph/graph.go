// Package graph generalizes the teacher's DAG composition layer from a
// closed sum type of events to a single generic passenger payload: a Graph
// wires core.Stage[T] nodes together with predicate-filtered edges, and an
// Engine streams passengers through it.
package graph

import (
	"fmt"

	"github.com/tollgate-run/pipeline/core"
)

// Graph is a compiled pipeline topology: a directed acyclic graph of named
// stages.
type Graph[T any] struct {
	nodes     map[string]*Node[T]
	entryNode string
	exitNodes []string
}

// Node is a stage in the graph, together with its edges.
type Node[T any] struct {
	name    string
	stage   core.Stage[T]
	outputs []*Edge[T]
	inputs  []*Edge[T]
}

// Edge is a directed connection between two nodes. A nil Filter forwards
// every passenger.
type Edge[T any] struct {
	from   *Node[T]
	to     *Node[T]
	filter func(core.Passenger[T]) bool
}

// New returns an empty graph.
func New[T any]() *Graph[T] {
	return &Graph[T]{nodes: make(map[string]*Node[T])}
}

// AddNode registers stage under name.
func (g *Graph[T]) AddNode(name string, stage core.Stage[T]) error {
	if _, exists := g.nodes[name]; exists {
		return fmt.Errorf("node %q already exists in graph", name)
	}
	g.nodes[name] = &Node[T]{name: name, stage: stage}
	return nil
}

// AddEdge connects fromName to toName, forwarding only passengers for which
// filter returns true (or every passenger, if filter is nil).
func (g *Graph[T]) AddEdge(fromName, toName string, filter func(core.Passenger[T]) bool) error {
	from, ok := g.nodes[fromName]
	if !ok {
		return fmt.Errorf("source node %q does not exist", fromName)
	}
	to, ok := g.nodes[toName]
	if !ok {
		return fmt.Errorf("destination node %q does not exist", toName)
	}
	edge := &Edge[T]{from: from, to: to, filter: filter}
	from.outputs = append(from.outputs, edge)
	to.inputs = append(to.inputs, edge)
	return nil
}

// SetEntryNode designates name as the graph's entry point.
func (g *Graph[T]) SetEntryNode(name string) error {
	if _, ok := g.nodes[name]; !ok {
		return fmt.Errorf("entry node %q does not exist", name)
	}
	g.entryNode = name
	return nil
}

// AddExitNode marks name as a terminal node.
func (g *Graph[T]) AddExitNode(name string) error {
	if _, ok := g.nodes[name]; !ok {
		return fmt.Errorf("exit node %q does not exist", name)
	}
	g.exitNodes = append(g.exitNodes, name)
	return nil
}

func (g *Graph[T]) GetNode(name string) *Node[T] { return g.nodes[name] }

func (g *Graph[T]) EntryNode() *Node[T] {
	if g.entryNode == "" {
		return nil
	}
	return g.nodes[g.entryNode]
}

func (g *Graph[T]) ExitNodes() []*Node[T] {
	out := make([]*Node[T], 0, len(g.exitNodes))
	for _, name := range g.exitNodes {
		out = append(out, g.nodes[name])
	}
	return out
}

func (g *Graph[T]) AllNodes() []*Node[T] {
	out := make([]*Node[T], 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	return out
}

func (n *Node[T]) Name() string         { return n.name }
func (n *Node[T]) Stage() core.Stage[T] { return n.stage }
func (n *Node[T]) Outputs() []*Edge[T]  { return n.outputs }
func (n *Node[T]) Inputs() []*Edge[T]   { return n.inputs }

func (e *Edge[T]) From() *Node[T] { return e.from }
func (e *Edge[T]) To() *Node[T]   { return e.to }

// ShouldForward reports whether p should be forwarded across this edge.
func (e *Edge[T]) ShouldForward(p core.Passenger[T]) bool {
	if e.filter == nil {
		return true
	}
	return e.filter(p)
}
