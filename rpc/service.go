// Package rpc defines the master service spoken between the master and its
// workers. Messages travel as structpb.Struct so both sides share one
// schema without generated code; messages.go converts them to Go types.
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const serviceName = "dbmove.Master"

// MasterServer is the server API of the master service.
type MasterServer interface {
	WorkerRegister(context.Context, *structpb.Struct) (*structpb.Struct, error)
	FetchTask(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ReportTask(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// UnimplementedMasterServer can be embedded to have forward compatible
// implementations.
type UnimplementedMasterServer struct{}

func (UnimplementedMasterServer) WorkerRegister(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method WorkerRegister not implemented")
}

func (UnimplementedMasterServer) FetchTask(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method FetchTask not implemented")
}

func (UnimplementedMasterServer) ReportTask(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method ReportTask not implemented")
}

// RegisterMasterServer registers srv on s.
func RegisterMasterServer(s *grpc.Server, srv MasterServer) {
	s.RegisterService(&masterServiceDesc, srv)
}

type unaryMethod func(MasterServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func handler(name string, call unaryMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(MasterServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + serviceName + "/" + name,
			}
			h := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(MasterServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, h)
		},
	}
}

var masterServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*MasterServer)(nil),
	Methods: []grpc.MethodDesc{
		handler("WorkerRegister", MasterServer.WorkerRegister),
		handler("FetchTask", MasterServer.FetchTask),
		handler("ReportTask", MasterServer.ReportTask),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "dbmove/master",
}

// MasterClient is the client API of the master service.
type MasterClient interface {
	WorkerRegister(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	FetchTask(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	ReportTask(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type masterClient struct {
	cc grpc.ClientConnInterface
}

func NewMasterClient(cc grpc.ClientConnInterface) MasterClient {
	return &masterClient{cc}
}

func (c *masterClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts []grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *masterClient) WorkerRegister(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "WorkerRegister", in, opts)
}

func (c *masterClient) FetchTask(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "FetchTask", in, opts)
}

func (c *masterClient) ReportTask(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "ReportTask", in, opts)
}
