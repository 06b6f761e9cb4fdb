package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Messages on both services are google.protobuf.Struct values carrying the JSON
// shape of the domain types, so no generated code is needed.

const (
	IdentityServiceName = "ewaste.identity.v1.IdentityService"
	PickupServiceName   = "ewaste.pickup.v1.PickupService"
)

// IdentityServiceServer is the server API for the identity service.
type IdentityServiceServer interface {
	Register(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Login(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Me(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// PickupServiceServer is the server API for the pickup service.
type PickupServiceServer interface {
	CreateRequest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetRequest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListRequests(context.Context, *structpb.Struct) (*structpb.Struct, error)
	EditRequest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AssignCollector(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CancelRequest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RateRequest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DashboardStats(context.Context, *structpb.Struct) (*structpb.Struct, error)
	MonthlyReport(*structpb.Struct, grpc.ServerStreamingServer[structpb.Struct]) error
}

type unaryMethod func(srv any, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(service, method string, call unaryMethod) grpc.MethodDesc {
	fullMethod := "/" + service + "/" + method
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv, ctx, req.(*structpb.Struct))
			})
		},
	}
}

func identityMethod(name string, pick func(IdentityServiceServer) func(context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodDesc {
	return unaryHandler(IdentityServiceName, name, func(srv any, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
		return pick(srv.(IdentityServiceServer))(ctx, in)
	})
}

func pickupMethod(name string, pick func(PickupServiceServer) func(context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodDesc {
	return unaryHandler(PickupServiceName, name, func(srv any, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
		return pick(srv.(PickupServiceServer))(ctx, in)
	})
}

// IdentityServiceDesc describes ewaste.identity.v1.IdentityService.
var IdentityServiceDesc = grpc.ServiceDesc{
	ServiceName: IdentityServiceName,
	HandlerType: (*IdentityServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		identityMethod("Register", func(s IdentityServiceServer) func(context.Context, *structpb.Struct) (*structpb.Struct, error) {
			return s.Register
		}),
		identityMethod("Login", func(s IdentityServiceServer) func(context.Context, *structpb.Struct) (*structpb.Struct, error) {
			return s.Login
		}),
		identityMethod("Me", func(s IdentityServiceServer) func(context.Context, *structpb.Struct) (*structpb.Struct, error) {
			return s.Me
		}),
	},
	Metadata: "ewaste/identity/v1/identity.proto",
}

// PickupServiceDesc describes ewaste.pickup.v1.PickupService.
var PickupServiceDesc = grpc.ServiceDesc{
	ServiceName: PickupServiceName,
	HandlerType: (*PickupServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		pickupMethod("CreateRequest", func(s PickupServiceServer) func(context.Context, *structpb.Struct) (*structpb.Struct, error) {
			return s.CreateRequest
		}),
		pickupMethod("GetRequest", func(s PickupServiceServer) func(context.Context, *structpb.Struct) (*structpb.Struct, error) {
			return s.GetRequest
		}),
		pickupMethod("ListRequests", func(s PickupServiceServer) func(context.Context, *structpb.Struct) (*structpb.Struct, error) {
			return s.ListRequests
		}),
		pickupMethod("EditRequest", func(s PickupServiceServer) func(context.Context, *structpb.Struct) (*structpb.Struct, error) {
			return s.EditRequest
		}),
		pickupMethod("AssignCollector", func(s PickupServiceServer) func(context.Context, *structpb.Struct) (*structpb.Struct, error) {
			return s.AssignCollector
		}),
		pickupMethod("SetStatus", func(s PickupServiceServer) func(context.Context, *structpb.Struct) (*structpb.Struct, error) {
			return s.SetStatus
		}),
		pickupMethod("CancelRequest", func(s PickupServiceServer) func(context.Context, *structpb.Struct) (*structpb.Struct, error) {
			return s.CancelRequest
		}),
		pickupMethod("RateRequest", func(s PickupServiceServer) func(context.Context, *structpb.Struct) (*structpb.Struct, error) {
			return s.RateRequest
		}),
		pickupMethod("DashboardStats", func(s PickupServiceServer) func(context.Context, *structpb.Struct) (*structpb.Struct, error) {
			return s.DashboardStats
		}),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName: "MonthlyReport",
			Handler: func(srv any, stream grpc.ServerStream) error {
				in := new(structpb.Struct)
				if err := stream.RecvMsg(in); err != nil {
					return err
				}
				return srv.(PickupServiceServer).MonthlyReport(in, &grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
			},
			ServerStreams: true,
		},
	},
	Metadata: "ewaste/pickup/v1/pickup.proto",
}

// Client calls either service by method name.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Call invokes a unary method, e.g. Call(ctx, PickupServiceName, "AssignCollector", in).
func (c *Client) Call(ctx context.Context, service, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	if in == nil {
		in = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+service+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// MonthlyReport opens the report stream.
func (c *Client) MonthlyReport(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error) {
	stream, err := c.cc.NewStream(ctx, &PickupServiceDesc.Streams[0], "/"+PickupServiceName+"/MonthlyReport", opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[structpb.Struct, structpb.Struct]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
