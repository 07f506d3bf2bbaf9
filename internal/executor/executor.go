// Package executor implements the eager execution protocol: values are
// created from host data or serialized computations, combined into structs,
// selected apart, called, and materialized. Every operation takes a context
// and is safe to issue concurrently. An executor is pinned to one logical
// device for its lifetime.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/weftml/weft/internal/device"
	"github.com/weftml/weft/internal/eventbus"
	"github.com/weftml/weft/internal/events"
	"github.com/weftml/weft/internal/graph"
	"github.com/weftml/weft/internal/graphdef"
	"github.com/weftml/weft/internal/opid"
	"github.com/weftml/weft/internal/structure"
	"github.com/weftml/weft/internal/types"
)

var (
	// ErrNotEager is returned by New when the runtime is not in eager mode.
	ErrNotEager = errors.New("executor requires eager runtime mode")

	// ErrTypeMismatch is returned when a value disagrees with its type
	// signature.
	ErrTypeMismatch = errors.New("value does not match its type signature")

	// ErrUnembeddable is returned when a serialized computation cannot be
	// turned into a callable.
	ErrUnembeddable = errors.New("cannot create a value from a computation")
)

// Options configure an Executor.
type Options struct {
	// Device is the logical device name to pin to. Empty selects the
	// default CPU device.
	Device string
}

// Option mutates Options.
type Option func(*Options)

// WithDevice pins the executor to the named logical device.
func WithDevice(name string) Option {
	return func(o *Options) { o.Device = name }
}

// Executor creates, combines, and calls runtime values on one device.
type Executor struct {
	dev device.Device
}

// New constructs an executor. The runtime must be in eager mode.
func New(opts ...Option) (*Executor, error) {
	if !device.EagerEnabled() {
		return nil, fmt.Errorf("%w: runtime is in deferred mode", ErrNotEager)
	}
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	dev := device.Default()
	if o.Device != "" {
		d, err := device.ByName(o.Device)
		if err != nil {
			return nil, err
		}
		dev = d
	}
	return &Executor{dev: dev}, nil
}

// Device returns the logical device the executor is pinned to.
func (ex *Executor) Device() device.Device { return ex.dev }

// CreateValue builds a runtime value from a host value or a serialized
// computation, checked and normalized against ts. A graph computation embeds
// into a device-bound callable; a binder (lambda) cannot be embedded.
func (ex *Executor) CreateValue(ctx context.Context, value any, ts types.Type) (*Value, error) {
	return ex.instrumented(ctx, "CreateValue", func(ctx context.Context) (*Value, error) {
		return ex.createValue(ctx, value, ts)
	})
}

// CreateCall invokes a functional value. arg must be nil when the function
// takes no parameter.
func (ex *Executor) CreateCall(ctx context.Context, fn *Value, arg *Value) (*Value, error) {
	return ex.instrumented(ctx, "CreateCall", func(ctx context.Context) (*Value, error) {
		return ex.createCall(ctx, fn, arg)
	})
}

// StructElement is one member passed to CreateStruct. Name may be empty.
type StructElement struct {
	Name  string
	Value *Value
}

// CreateStruct combines values into an ordered optionally-named struct.
func (ex *Executor) CreateStruct(ctx context.Context, elements ...StructElement) (*Value, error) {
	return ex.instrumented(ctx, "CreateStruct", func(ctx context.Context) (*Value, error) {
		return ex.createStruct(ctx, elements)
	})
}

// CreateSelection picks the element at index out of a struct value.
func (ex *Executor) CreateSelection(ctx context.Context, source *Value, index int) (*Value, error) {
	return ex.instrumented(ctx, "CreateSelection", func(ctx context.Context) (*Value, error) {
		return ex.createSelection(ctx, source, index)
	})
}

func (ex *Executor) instrumented(ctx context.Context, op string, f func(context.Context) (*Value, error)) (*Value, error) {
	ctx, _ = opid.NewContext(ctx)
	start := time.Now()
	eventbus.Publish(ctx, events.ExecutorOpStart{Op: op, Device: ex.dev.Name})
	v, err := f(ctx)
	finish := events.ExecutorOpFinish{
		Op:       op,
		Device:   ex.dev.Name,
		Err:      err,
		Duration: time.Since(start),
	}
	if v != nil {
		finish.Type = v.TypeSignature().String()
	}
	eventbus.Publish(ctx, finish)
	return v, err
}

func (ex *Executor) createValue(ctx context.Context, value any, ts types.Type) (*Value, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c, ok := value.(*graphdef.Computation); ok {
		return ex.embed(c, ts)
	}
	if ts == nil {
		if v, ok := value.(*Value); ok {
			return v, nil
		}
		return nil, fmt.Errorf("a type signature is required to create a value from %T", value)
	}
	rep, err := ex.toRepresentation(value, ts)
	if err != nil {
		return nil, err
	}
	return &Value{rep: rep, ts: ts}, nil
}

// embed turns a serialized graph computation into a device-bound callable.
func (ex *Executor) embed(c *graphdef.Computation, ts types.Type) (*Value, error) {
	if c.Graph == nil {
		return nil, fmt.Errorf("%w of type %s", ErrUnembeddable, c.Kind())
	}
	ft, ok := ts.(*types.FunctionType)
	if !ok {
		return nil, fmt.Errorf("%w: a graph computation needs a function signature, got %v", ErrTypeMismatch, ts)
	}
	fn, err := graph.Wrap(c.Graph, ex.dev)
	if err != nil {
		if errors.Is(err, graph.ErrPrune) {
			return nil, fmt.Errorf("%w: %w", ErrTypeMismatch, err)
		}
		return nil, err
	}
	if fn.Nullary() != (ft.Parameter == nil) {
		return nil, fmt.Errorf("%w: parameter binding disagrees with signature %s", ErrTypeMismatch, ft)
	}
	return &Value{rep: fn, ts: ft}, nil
}

func (ex *Executor) createCall(ctx context.Context, fn *Value, arg *Value) (*Value, error) {
	ft, ok := fn.TypeSignature().(*types.FunctionType)
	if !ok {
		return nil, fmt.Errorf("%w: only values of function type can be called, got %s",
			ErrTypeMismatch, fn.TypeSignature())
	}
	wrapped, ok := fn.rep.(*graph.Function)
	if !ok {
		return nil, fmt.Errorf("value of type %s is not callable", ft)
	}
	var callArg any
	switch {
	case ft.Parameter == nil && arg != nil:
		return nil, fmt.Errorf("%w: function %s takes no argument", ErrTypeMismatch, ft)
	case ft.Parameter != nil && arg == nil:
		return nil, fmt.Errorf("%w: function %s takes an argument", ErrTypeMismatch, ft)
	case arg != nil:
		if !arg.TypeSignature().Equal(ft.Parameter) {
			return nil, fmt.Errorf("%w: argument is %s, function wants %s",
				ErrTypeMismatch, arg.TypeSignature(), ft.Parameter)
		}
		callArg = callArgument(arg)
	}
	raw, err := wrapped.Call(ctx, callArg)
	if err != nil {
		return nil, err
	}
	return valueFromRaw(raw, ft.Result)
}

func (ex *Executor) createStruct(ctx context.Context, elements []StructElement) (*Value, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	typeElems := make([]types.StructElement, len(elements))
	repElems := make([]structure.Element, len(elements))
	for i, e := range elements {
		if e.Value == nil {
			return nil, fmt.Errorf("struct element %d has no value", i)
		}
		typeElems[i] = types.Elem(e.Name, e.Value.TypeSignature())
		repElems[i] = structure.Element{Name: e.Name, Value: e.Value}
	}
	return &Value{rep: structure.New(repElems...), ts: types.Struct(typeElems...)}, nil
}

func (ex *Executor) createSelection(ctx context.Context, source *Value, index int) (*Value, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rep, ok := source.rep.(*structure.Struct)
	if !ok {
		return nil, fmt.Errorf("%w: selection needs a struct value, got %s",
			ErrTypeMismatch, source.TypeSignature())
	}
	if index < 0 || index >= rep.Len() {
		return nil, fmt.Errorf("selection index %d out of range for %s", index, source.TypeSignature())
	}
	return rep.At(index).(*Value), nil
}
