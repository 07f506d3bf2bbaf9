// Package remote is a client for the weft.v1.Executor service. It mirrors
// the local executor protocol: values created through it live on the server
// and are addressed by reference, with Compute pulling the materialized
// result back over the wire. Calls go over a small pool of gRPC connections
// and publish client lifecycle events.
package remote

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/weftml/weft/internal/eventbus"
	"github.com/weftml/weft/internal/events"
	"github.com/weftml/weft/internal/graphdef"
	"github.com/weftml/weft/internal/opid"
	"github.com/weftml/weft/internal/types"
)

// Options configure a remote executor.
type Options struct {
	// MaxConns bounds the pooled connections to the target. Default 2.
	MaxConns int

	// RPCTimeout applies when the incoming context has no deadline.
	// Default 3s; zero disables the default.
	RPCTimeout time.Duration

	// DialOptions override the default insecure dial configuration.
	DialOptions []grpc.DialOption
}

// Option mutates Options.
type Option func(*Options)

func WithMaxConns(n int) Option              { return func(o *Options) { o.MaxConns = n } }
func WithRPCTimeout(d time.Duration) Option  { return func(o *Options) { o.RPCTimeout = d } }
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(o *Options) { o.DialOptions = opts }
}

// Executor speaks the executor protocol to a remote service.
type Executor struct {
	target string
	opts   Options

	mu     sync.Mutex
	conns  chan *grpc.ClientConn
	closed atomic.Bool
}

// New builds a remote executor for target.
func New(target string, opts ...Option) *Executor {
	o := Options{MaxConns: 2, RPCTimeout: 3 * time.Second}
	for _, f := range opts {
		f(&o)
	}
	if len(o.DialOptions) == 0 {
		o.DialOptions = []grpc.DialOption{
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithConnectParams(grpc.ConnectParams{Backoff: backoff.DefaultConfig}),
		}
	}
	if o.MaxConns <= 0 {
		o.MaxConns = 2
	}
	return &Executor{
		target: target,
		opts:   o,
		conns:  make(chan *grpc.ClientConn, o.MaxConns),
	}
}

// Close releases the pooled connections.
func (ex *Executor) Close() error {
	if ex.closed.Swap(true) {
		return nil
	}
	ex.mu.Lock()
	defer ex.mu.Unlock()
	close(ex.conns)
	for cc := range ex.conns {
		_ = cc.Close()
	}
	return nil
}

func (ex *Executor) getConn(ctx context.Context) (*grpc.ClientConn, error) {
	if ex.closed.Load() {
		return nil, fmt.Errorf("remote: executor closed")
	}
	select {
	case cc := <-ex.conns:
		if cc == nil {
			// The pool channel was closed under us.
			return nil, fmt.Errorf("remote: executor closed")
		}
		return cc, nil
	default:
		return grpc.DialContext(ctx, ex.target, ex.opts.DialOptions...)
	}
}

func (ex *Executor) putConn(cc *grpc.ClientConn) {
	if cc == nil {
		return
	}
	ex.mu.Lock()
	defer ex.mu.Unlock()
	if ex.closed.Load() {
		_ = cc.Close()
		return
	}
	select {
	case ex.conns <- cc:
	default:
		_ = cc.Close()
	}
}

// invoke performs one unary call with a dynamic request and response. Each
// call gets its own operation ID so subscribers can pair its start and
// finish events.
func (ex *Executor) invoke(ctx context.Context, method string, req *dynamicpb.Message) (*dynamicpb.Message, error) {
	ctx, _ = opid.NewContext(ctx)
	if _, ok := ctx.Deadline(); !ok && ex.opts.RPCTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ex.opts.RPCTimeout)
		defer cancel()
	}
	cc, err := ex.getConn(ctx)
	if err != nil {
		return nil, err
	}
	defer ex.putConn(cc)

	resp := dynamicpb.NewMessage(graphdef.ExecutorMethod(method).Output())
	full := "/" + graphdef.ServiceName + "/" + method

	start := time.Now()
	eventbus.Publish(ctx, events.GRPCClientStart{
		Service: graphdef.ServiceName, Method: method, Target: ex.target,
	})
	err = cc.Invoke(ctx, full, req, resp)
	eventbus.Publish(ctx, events.GRPCClientFinish{
		Service: graphdef.ServiceName, Method: method, Target: ex.target,
		Code: status.Code(err), Err: err, Duration: time.Since(start),
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Value references a value held by the remote service.
type Value struct {
	ex *Executor
	id uint64
	ts types.Type
}

// Reference returns the server-side identifier.
func (v *Value) Reference() uint64 { return v.id }

// TypeSignature returns the value's type signature.
func (v *Value) TypeSignature() types.Type { return v.ts }

func (ex *Executor) refFromResponse(resp *dynamicpb.Message) (*Value, error) {
	md := resp.Descriptor()
	v := &Value{ex: ex, id: resp.Get(md.Fields().ByName("id")).Uint()}
	tf := md.Fields().ByName("type")
	if resp.Has(tf) {
		ts, err := graphdef.DecodeType(resp.Get(tf).Message())
		if err != nil {
			return nil, err
		}
		v.ts = ts
	}
	return v, nil
}

// CreateValue ships a wire value to the service.
func (ex *Executor) CreateValue(ctx context.Context, wv *graphdef.WireValue) (*Value, error) {
	encoded, err := graphdef.EncodeValue(wv)
	if err != nil {
		return nil, err
	}
	md := graphdef.ExecutorMethod("CreateValue").Input()
	req := dynamicpb.NewMessage(md)
	req.Set(md.Fields().ByName("value"), protoreflect.ValueOfMessage(encoded))
	resp, err := ex.invoke(ctx, "CreateValue", req)
	if err != nil {
		return nil, err
	}
	return ex.refFromResponse(resp)
}

// CreateCall invokes a remote functional value. arg may be nil.
func (ex *Executor) CreateCall(ctx context.Context, fn *Value, arg *Value) (*Value, error) {
	md := graphdef.ExecutorMethod("CreateCall").Input()
	req := dynamicpb.NewMessage(md)
	req.Set(md.Fields().ByName("function_id"), protoreflect.ValueOfUint64(fn.id))
	if arg != nil {
		req.Set(md.Fields().ByName("argument_id"), protoreflect.ValueOfUint64(arg.id))
		req.Set(md.Fields().ByName("has_argument"), protoreflect.ValueOfBool(true))
	}
	resp, err := ex.invoke(ctx, "CreateCall", req)
	if err != nil {
		return nil, err
	}
	return ex.refFromResponse(resp)
}

// StructElement names one member for CreateStruct.
type StructElement struct {
	Name  string
	Value *Value
}

// CreateStruct combines remote values into a struct held by the service.
func (ex *Executor) CreateStruct(ctx context.Context, elements ...StructElement) (*Value, error) {
	md := graphdef.ExecutorMethod("CreateStruct").Input()
	req := dynamicpb.NewMessage(md)
	lst := req.Mutable(md.Fields().ByName("elements")).List()
	emd := md.Fields().ByName("elements").Message()
	for _, e := range elements {
		entry := dynamicpb.NewMessage(emd)
		if e.Name != "" {
			entry.Set(emd.Fields().ByName("name"), protoreflect.ValueOfString(e.Name))
		}
		entry.Set(emd.Fields().ByName("value_id"), protoreflect.ValueOfUint64(e.Value.id))
		lst.Append(protoreflect.ValueOfMessage(entry))
	}
	resp, err := ex.invoke(ctx, "CreateStruct", req)
	if err != nil {
		return nil, err
	}
	return ex.refFromResponse(resp)
}

// CreateSelection picks one element out of a remote struct value.
func (ex *Executor) CreateSelection(ctx context.Context, source *Value, index int) (*Value, error) {
	md := graphdef.ExecutorMethod("CreateSelection").Input()
	req := dynamicpb.NewMessage(md)
	req.Set(md.Fields().ByName("source_id"), protoreflect.ValueOfUint64(source.id))
	req.Set(md.Fields().ByName("index"), protoreflect.ValueOfInt32(int32(index)))
	resp, err := ex.invoke(ctx, "CreateSelection", req)
	if err != nil {
		return nil, err
	}
	return ex.refFromResponse(resp)
}

// Compute materializes a remote value and returns its wire form.
func (v *Value) Compute(ctx context.Context) (*graphdef.WireValue, error) {
	md := graphdef.ExecutorMethod("Compute").Input()
	req := dynamicpb.NewMessage(md)
	req.Set(md.Fields().ByName("value_id"), protoreflect.ValueOfUint64(v.id))
	resp, err := v.ex.invoke(ctx, "Compute", req)
	if err != nil {
		return nil, err
	}
	rmd := resp.Descriptor()
	return graphdef.DecodeValue(resp.Get(rmd.Fields().ByName("value")).Message())
}

// Dispose releases values held by the service.
func (ex *Executor) Dispose(ctx context.Context, values ...*Value) error {
	md := graphdef.ExecutorMethod("Dispose").Input()
	req := dynamicpb.NewMessage(md)
	lst := req.Mutable(md.Fields().ByName("value_ids")).List()
	for _, v := range values {
		lst.Append(protoreflect.ValueOfUint64(v.id))
	}
	_, err := ex.invoke(ctx, "Dispose", req)
	return err
}
