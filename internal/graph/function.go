package graph

import (
	"context"
	"fmt"
	"sync"

	"github.com/weftml/weft/internal/device"
	"github.com/weftml/weft/internal/graphdef"
	"github.com/weftml/weft/internal/sequence"
	"github.com/weftml/weft/internal/structure"
	"github.com/weftml/weft/internal/tensor"
)

// Function is a graph computation wrapped for eager execution: pruned,
// pinned to a logical device, with its variables created and initialized
// exactly once before the first call. Variable state persists across calls
// of the same Function.
type Function struct {
	graph *graphdef.Graph
	dev   device.Device
	env   *env

	initOnce sync.Once
	initErr  error
	initOut  map[string]any

	mu sync.Mutex // serializes calls so variable updates stay ordered
}

// Wrap prunes g against its bindings and pins it to dev.
func Wrap(g *graphdef.Graph, dev device.Device) (*Function, error) {
	pruned, err := Prune(g)
	if err != nil {
		return nil, err
	}
	if err := checkDatasetReduce(pruned); err != nil {
		return nil, err
	}
	return &Function{
		graph: pruned,
		dev:   dev,
		env:   &env{device: dev.Name, vars: map[string]*Variable{}},
	}, nil
}

// checkDatasetReduce rejects graphs carrying a dataset reduce node when more
// than one accelerator device is configured: the reduce folds on a single
// device and silently ignores the rest.
func checkDatasetReduce(g *graphdef.Graph) error {
	accels := 0
	for _, d := range device.All() {
		if d.IsAccelerator() {
			accels++
		}
	}
	if accels <= 1 {
		return nil
	}
	for _, n := range g.Nodes {
		if n.Op == "ds_reduce" {
			return fmt.Errorf("%w: node %q with %d accelerator devices configured",
				ErrMultiDeviceReduce, n.Name, accels)
		}
	}
	return nil
}

// Device returns the logical device the function is pinned to.
func (f *Function) Device() device.Device { return f.dev }

// Nullary reports whether the function takes no argument.
func (f *Function) Nullary() bool { return f.graph.Parameter == nil }

// init creates the function's variables and runs the initializer subgraph.
// The outputs are kept as seeds so later calls never re-run initializers.
func (f *Function) init(ctx context.Context) error {
	f.initOnce.Do(func() {
		var targets []string
		for _, n := range f.graph.Nodes {
			if n.Op == "var" || isInitNode(n) {
				targets = append(targets, n.Name)
			}
		}
		out, err := evalTargets(ctx, f.graph, targets, map[string]any{}, f.env)
		if err != nil {
			f.initErr = fmt.Errorf("initializing computation: %w", err)
			return
		}
		f.initOut = out
	})
	return f.initErr
}

// Call evaluates the function against arg. arg must be nil for a nullary
// function; otherwise its shape must follow the parameter binding (a tensor,
// a sequence, or a structure of these).
func (f *Function) Call(ctx context.Context, arg any) (any, error) {
	if err := f.init(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	seed := make(map[string]any, len(f.initOut)+4)
	for k, v := range f.initOut {
		seed[k] = v
	}
	if f.graph.Parameter == nil {
		if arg != nil {
			return nil, fmt.Errorf("computation takes no argument")
		}
	} else {
		if arg == nil {
			return nil, fmt.Errorf("computation takes an argument but none was given")
		}
		if err := feedBinding(f.graph.Parameter, arg, seed); err != nil {
			return nil, err
		}
	}

	out, err := evalTargets(ctx, f.graph, bindingNodes(f.graph.Result), seed, f.env)
	if err != nil {
		return nil, err
	}
	return extractBinding(f.graph.Result, out)
}

func feedBinding(b *graphdef.Binding, arg any, seed map[string]any) error {
	switch {
	case b.Tensor != nil:
		t, ok := arg.(*tensor.Tensor)
		if !ok {
			return fmt.Errorf("parameter wants a tensor, got %T", arg)
		}
		seed[b.Tensor.NodeName] = t
	case b.Sequence != nil:
		s, ok := arg.(*sequence.Sequence)
		if !ok {
			return fmt.Errorf("parameter wants a sequence, got %T", arg)
		}
		seed[b.Sequence.NodeName] = s
	case b.Struct != nil:
		st, ok := arg.(*structure.Struct)
		if !ok {
			return fmt.Errorf("parameter wants a structure, got %T", arg)
		}
		if st.Len() != len(b.Struct.Elements) {
			return fmt.Errorf("parameter wants %d elements, got %d", len(b.Struct.Elements), st.Len())
		}
		for i, e := range b.Struct.Elements {
			if err := feedBinding(e.Binding, st.At(i), seed); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("parameter binding has no variant set")
	}
	return nil
}

func extractBinding(b *graphdef.Binding, out map[string]any) (any, error) {
	if b == nil {
		return nil, fmt.Errorf("computation has no result binding")
	}
	switch {
	case b.Tensor != nil:
		t, ok := out[b.Tensor.NodeName].(*tensor.Tensor)
		if !ok {
			return nil, fmt.Errorf("result node %q did not produce a tensor", b.Tensor.NodeName)
		}
		return t, nil
	case b.Sequence != nil:
		s, ok := out[b.Sequence.NodeName].(*sequence.Sequence)
		if !ok {
			return nil, fmt.Errorf("result node %q did not produce a sequence", b.Sequence.NodeName)
		}
		return s, nil
	case b.Struct != nil:
		elements := make([]structure.Element, 0, len(b.Struct.Elements))
		for _, e := range b.Struct.Elements {
			v, err := extractBinding(e.Binding, out)
			if err != nil {
				return nil, err
			}
			elements = append(elements, structure.Element{Name: e.Name, Value: v})
		}
		return structure.New(elements...), nil
	}
	return nil, fmt.Errorf("result binding has no variant set")
}
