// Package graph evaluates serialized dataflow graphs eagerly. A graph is
// pruned against its parameter and result bindings, wrapped into a
// device-pinned Function, and executed node by node with variable state held
// across calls of the same wrapping.
package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/weftml/weft/internal/graphdef"
)

// ErrPrune reports a graph whose bindings or node inputs reference nodes
// that do not exist.
var ErrPrune = errors.New("prune graph")

// ErrMultiDeviceReduce reports a graph whose dataset reduce node cannot run
// while more than one accelerator device is configured.
var ErrMultiDeviceReduce = errors.New("dataset reduce is incompatible with multiple accelerator devices")

// Prune returns the subgraph reachable from the parameter and result
// bindings and from initializer roots, preserving node order. A binding or
// input that names a nonexistent node fails the prune.
func Prune(g *graphdef.Graph) (*graphdef.Graph, error) {
	roots := bindingNodes(g.Parameter)
	roots = append(roots, bindingNodes(g.Result)...)
	for _, n := range g.Nodes {
		if isInitNode(n) {
			roots = append(roots, n.Name)
		}
	}

	keep := map[string]bool{}
	queue := roots
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if keep[name] {
			continue
		}
		n := g.NodeByName(name)
		if n == nil {
			return nil, fmt.Errorf("%w: binding references unknown node %q", ErrPrune, name)
		}
		keep[name] = true
		for _, in := range n.Inputs {
			if g.NodeByName(in) == nil {
				return nil, fmt.Errorf("%w: node %q references unknown input %q", ErrPrune, n.Name, in)
			}
			queue = append(queue, in)
		}
		for _, in := range n.ControlInputs {
			if g.NodeByName(in) == nil {
				return nil, fmt.Errorf("%w: node %q references unknown control input %q", ErrPrune, n.Name, in)
			}
			queue = append(queue, in)
		}
	}

	pruned := &graphdef.Graph{Parameter: g.Parameter, Result: g.Result}
	for _, n := range g.Nodes {
		if keep[n.Name] {
			pruned.Nodes = append(pruned.Nodes, n)
		}
	}
	return pruned, nil
}

func isInitNode(n *graphdef.Node) bool {
	a, ok := n.Attrs["init"]
	return ok && a.Kind == graphdef.AttrBool && a.Bool
}

func bindingNodes(b *graphdef.Binding) []string {
	if b == nil {
		return nil
	}
	switch {
	case b.Tensor != nil:
		return []string{b.Tensor.NodeName}
	case b.Sequence != nil:
		return []string{b.Sequence.NodeName}
	case b.Struct != nil:
		var names []string
		for _, e := range b.Struct.Elements {
			names = append(names, bindingNodes(e.Binding)...)
		}
		return names
	}
	return nil
}

// env carries per-wrapping evaluation state: the pinned device and the
// variables created by var nodes.
type env struct {
	device string
	vars   map[string]*Variable
}

// evalTargets evaluates the named nodes and all of their dependencies.
// Nodes present in seed are taken as already evaluated and are not re-run.
func evalTargets(ctx context.Context, g *graphdef.Graph, targets []string, seed map[string]any, ev *env) (map[string]any, error) {
	out := make(map[string]any, len(seed)+len(targets))
	for k, v := range seed {
		out[k] = v
	}
	const (
		visiting = 1
		done     = 2
	)
	state := map[string]int{}
	var visit func(name string) error
	visit = func(name string) error {
		if _, ok := out[name]; ok {
			return nil
		}
		switch state[name] {
		case visiting:
			return fmt.Errorf("cycle through node %q", name)
		case done:
			return nil
		}
		state[name] = visiting
		n := g.NodeByName(name)
		if n == nil {
			return fmt.Errorf("unknown node %q", name)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		inputs := make([]any, len(n.Inputs))
		for i, in := range n.Inputs {
			if err := visit(in); err != nil {
				return err
			}
			inputs[i] = out[in]
		}
		for _, in := range n.ControlInputs {
			if err := visit(in); err != nil {
				return err
			}
		}
		fn, ok := ops[n.Op]
		if !ok {
			return fmt.Errorf("node %q has unknown op %q", n.Name, n.Op)
		}
		v, err := fn(ctx, ev, n, inputs)
		if err != nil {
			return fmt.Errorf("node %q: %w", n.Name, err)
		}
		out[name] = v
		state[name] = done
		return nil
	}
	for _, t := range targets {
		if err := visit(t); err != nil {
			return nil, err
		}
	}
	return out, nil
}
