// Package api exposes the daemon's chat session over gRPC.
//
// The Control service carries google.protobuf.Struct and Empty messages, so
// its descriptor is declared here rather than generated.
package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "sereno.v1.Control"

// Full method names, usable with grpc.ClientConn.Invoke.
const (
	MethodStatus       = "/" + ServiceName + "/Status"
	MethodOpen         = "/" + ServiceName + "/Open"
	MethodSend         = "/" + ServiceName + "/Send"
	MethodRetry        = "/" + ServiceName + "/Retry"
	MethodDismiss      = "/" + ServiceName + "/Dismiss"
	MethodClose        = "/" + ServiceName + "/Close"
	MethodListMessages = "/" + ServiceName + "/ListMessages"
	MethodListRooms    = "/" + ServiceName + "/ListRooms"
	MethodWatch        = "/" + ServiceName + "/Watch"
)

// ControlServer is the server API for the Control service.
type ControlServer interface {
	Status(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Open(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Send(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Retry(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Dismiss(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	Close(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	ListMessages(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListRooms(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Watch(*structpb.Struct, WatchStream) error
}

// WatchStream is the server side of a Watch call.
type WatchStream interface {
	Send(*structpb.Struct) error
	Context() context.Context
}

// RegisterControlServer registers srv on s.
func RegisterControlServer(s grpc.ServiceRegistrar, srv ControlServer) {
	s.RegisterService(&ControlServiceDesc, srv)
}

func newStruct() proto.Message { return new(structpb.Struct) }
func newEmpty() proto.Message  { return new(emptypb.Empty) }

// ControlServiceDesc describes the Control service.
var ControlServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ControlServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Status", newEmpty, func(s ControlServer, ctx context.Context, in proto.Message) (proto.Message, error) {
			return s.Status(ctx, in.(*emptypb.Empty))
		}),
		unary("Open", newStruct, func(s ControlServer, ctx context.Context, in proto.Message) (proto.Message, error) {
			return s.Open(ctx, in.(*structpb.Struct))
		}),
		unary("Send", newStruct, func(s ControlServer, ctx context.Context, in proto.Message) (proto.Message, error) {
			return s.Send(ctx, in.(*structpb.Struct))
		}),
		unary("Retry", newStruct, func(s ControlServer, ctx context.Context, in proto.Message) (proto.Message, error) {
			return s.Retry(ctx, in.(*structpb.Struct))
		}),
		unary("Dismiss", newStruct, func(s ControlServer, ctx context.Context, in proto.Message) (proto.Message, error) {
			return s.Dismiss(ctx, in.(*structpb.Struct))
		}),
		unary("Close", newEmpty, func(s ControlServer, ctx context.Context, in proto.Message) (proto.Message, error) {
			return s.Close(ctx, in.(*emptypb.Empty))
		}),
		unary("ListMessages", newStruct, func(s ControlServer, ctx context.Context, in proto.Message) (proto.Message, error) {
			return s.ListMessages(ctx, in.(*structpb.Struct))
		}),
		unary("ListRooms", newStruct, func(s ControlServer, ctx context.Context, in proto.Message) (proto.Message, error) {
			return s.ListRooms(ctx, in.(*structpb.Struct))
		}),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Watch",
			Handler:       watchHandler,
			ServerStreams: true,
		},
	},
	Metadata: "sereno/v1/control.proto",
}

type unaryCall func(ControlServer, context.Context, proto.Message) (proto.Message, error)

func unary(name string, newReq func() proto.Message, call unaryCall) grpc.MethodDesc {
	full := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := newReq()
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(ControlServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(proto.Message))
			})
		},
	}
}

func watchHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ControlServer).Watch(in, &watchServerStream{stream})
}

type watchServerStream struct {
	grpc.ServerStream
}

func (x *watchServerStream) Send(m *structpb.Struct) error {
	return x.ServerStream.SendMsg(m)
}
