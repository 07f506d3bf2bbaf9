// Package service exposes an executor over gRPC. The service descriptor is
// hand-registered against the programmatically built protobuf schema, so
// requests and responses travel as dynamic messages with no generated code.
// Created values stay server-side; clients hold numeric references.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/weftml/weft/internal/executor"
	"github.com/weftml/weft/internal/graphdef"
)

// Server implements the weft.v1.Executor service over one executor.
type Server struct {
	exec *executor.Executor

	mu     sync.Mutex
	nextID uint64
	values map[uint64]*executor.Value
}

// NewServer wraps exec for serving.
func NewServer(exec *executor.Executor) *Server {
	return &Server{exec: exec, values: map[uint64]*executor.Value{}}
}

// Register attaches the executor service to a gRPC registrar.
func (s *Server) Register(r grpc.ServiceRegistrar) {
	r.RegisterService(&serviceDesc, s)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: graphdef.ServiceName,
	HandlerType: (*executorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateValue", Handler: unaryHandler("CreateValue", (*Server).createValue)},
		{MethodName: "CreateCall", Handler: unaryHandler("CreateCall", (*Server).createCall)},
		{MethodName: "CreateStruct", Handler: unaryHandler("CreateStruct", (*Server).createStruct)},
		{MethodName: "CreateSelection", Handler: unaryHandler("CreateSelection", (*Server).createSelection)},
		{MethodName: "Compute", Handler: unaryHandler("Compute", (*Server).compute)},
		{MethodName: "Dispose", Handler: unaryHandler("Dispose", (*Server).dispose)},
	},
	Metadata: "weft/v1/executor.proto",
}

// executorServer is the interface the hand-built descriptor registers
// against; *Server is its only implementation.
type executorServer interface {
	register(grpc.ServiceRegistrar)
}

func (s *Server) register(r grpc.ServiceRegistrar) { s.Register(r) }

func unaryHandler(name string, call func(*Server, context.Context, protoreflect.Message) (protoreflect.Message, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	fullMethod := "/" + graphdef.ServiceName + "/" + name
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := dynamicpb.NewMessage(graphdef.ExecutorMethod(name).Input())
		if err := dec(req); err != nil {
			return nil, err
		}
		handle := func(ctx context.Context, req any) (any, error) {
			resp, err := call(srv.(*Server), ctx, req.(*dynamicpb.Message))
			if err != nil {
				return nil, toStatus(err)
			}
			return resp, nil
		}
		if interceptor == nil {
			return handle(ctx, req)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, req, info, handle)
	}
}

func toStatus(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, executor.ErrTypeMismatch),
		errors.Is(err, executor.ErrUnembeddable):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, errUnknownRef):
		return status.Error(codes.NotFound, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

var errUnknownRef = errors.New("unknown value reference")

func (s *Server) store(v *executor.Value) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.values[id] = v
	return id
}

func (s *Server) lookup(id uint64) (*executor.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", errUnknownRef, id)
	}
	return v, nil
}

func (s *Server) valueRef(v *executor.Value) (protoreflect.Message, error) {
	md := graphdef.ExecutorMethod("CreateValue").Output()
	msg := dynamicpb.NewMessage(md)
	msg.Set(md.Fields().ByName("id"), protoreflect.ValueOfUint64(s.store(v)))
	ts, err := graphdef.EncodeType(v.TypeSignature())
	if err != nil {
		return nil, err
	}
	msg.Set(md.Fields().ByName("type"), protoreflect.ValueOfMessage(ts))
	return msg, nil
}

func (s *Server) createValue(ctx context.Context, req protoreflect.Message) (protoreflect.Message, error) {
	md := req.Descriptor()
	fd := md.Fields().ByName("value")
	if !req.Has(fd) {
		return nil, status.Error(codes.InvalidArgument, "request has no value")
	}
	wv, err := graphdef.DecodeValue(req.Get(fd).Message())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	v, err := s.embedWire(ctx, wv)
	if err != nil {
		return nil, err
	}
	return s.valueRef(v)
}

func (s *Server) createCall(ctx context.Context, req protoreflect.Message) (protoreflect.Message, error) {
	md := req.Descriptor()
	fn, err := s.lookup(req.Get(md.Fields().ByName("function_id")).Uint())
	if err != nil {
		return nil, err
	}
	var arg *executor.Value
	if req.Get(md.Fields().ByName("has_argument")).Bool() {
		arg, err = s.lookup(req.Get(md.Fields().ByName("argument_id")).Uint())
		if err != nil {
			return nil, err
		}
	}
	v, err := s.exec.CreateCall(ctx, fn, arg)
	if err != nil {
		return nil, err
	}
	return s.valueRef(v)
}

func (s *Server) createStruct(ctx context.Context, req protoreflect.Message) (protoreflect.Message, error) {
	md := req.Descriptor()
	lst := req.Get(md.Fields().ByName("elements")).List()
	elements := make([]executor.StructElement, lst.Len())
	for i := 0; i < lst.Len(); i++ {
		entry := lst.Get(i).Message()
		emd := entry.Descriptor()
		v, err := s.lookup(entry.Get(emd.Fields().ByName("value_id")).Uint())
		if err != nil {
			return nil, err
		}
		elements[i] = executor.StructElement{
			Name:  entry.Get(emd.Fields().ByName("name")).String(),
			Value: v,
		}
	}
	v, err := s.exec.CreateStruct(ctx, elements...)
	if err != nil {
		return nil, err
	}
	return s.valueRef(v)
}

func (s *Server) createSelection(ctx context.Context, req protoreflect.Message) (protoreflect.Message, error) {
	md := req.Descriptor()
	source, err := s.lookup(req.Get(md.Fields().ByName("source_id")).Uint())
	if err != nil {
		return nil, err
	}
	index := int(req.Get(md.Fields().ByName("index")).Int())
	v, err := s.exec.CreateSelection(ctx, source, index)
	if err != nil {
		return nil, err
	}
	return s.valueRef(v)
}

func (s *Server) compute(ctx context.Context, req protoreflect.Message) (protoreflect.Message, error) {
	md := req.Descriptor()
	v, err := s.lookup(req.Get(md.Fields().ByName("value_id")).Uint())
	if err != nil {
		return nil, err
	}
	out, err := v.Compute(ctx)
	if err != nil {
		return nil, err
	}
	wv, err := materializedWire(ctx, out, v.TypeSignature())
	if err != nil {
		return nil, err
	}
	encoded, err := graphdef.EncodeValue(wv)
	if err != nil {
		return nil, err
	}
	respMD := graphdef.ExecutorMethod("Compute").Output()
	resp := dynamicpb.NewMessage(respMD)
	resp.Set(respMD.Fields().ByName("value"), protoreflect.ValueOfMessage(encoded))
	return resp, nil
}

func (s *Server) dispose(_ context.Context, req protoreflect.Message) (protoreflect.Message, error) {
	md := req.Descriptor()
	lst := req.Get(md.Fields().ByName("value_ids")).List()
	s.mu.Lock()
	for i := 0; i < lst.Len(); i++ {
		delete(s.values, lst.Get(i).Uint())
	}
	s.mu.Unlock()
	return dynamicpb.NewMessage(graphdef.ExecutorMethod("Dispose").Output()), nil
}
