package grpc

import (
	"context"

	"github.com/dmitrijs2005/medsync/internal/wire"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// AuthorityServer is the server side of medsync.v1.Authority. Requests and
// responses are the wire types; the descriptor below moves them as
// structpb.Struct values.
type AuthorityServer interface {
	Login(ctx context.Context, req wire.LoginRequest) (*wire.LoginResponse, error)
	Ping(ctx context.Context, req struct{}) (*wire.PingResponse, error)
	Push(ctx context.Context, req wire.Mutation) (*wire.PushResult, error)
	Pull(ctx context.Context, req wire.PullRequest) (*wire.Changes, error)
	PresignBackup(ctx context.Context, req wire.PresignRequest) (*wire.PresignResponse, error)
}

func unary[Req, Resp any](name string, call func(AuthorityServer, context.Context, Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			handler := func(ctx context.Context, req any) (any, error) {
				var r Req
				if err := wire.Decode(req.(*structpb.Struct), &r); err != nil {
					return nil, status.Error(codes.InvalidArgument, err.Error())
				}
				resp, err := call(srv.(AuthorityServer), ctx, r)
				if err != nil {
					return nil, err
				}
				out, err := wire.Encode(resp)
				if err != nil {
					return nil, status.Error(codes.Internal, err.Error())
				}
				return out, nil
			}
			if interceptor == nil {
				return handler(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + wire.ServiceName + "/" + name}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc describes medsync.v1.Authority for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: wire.ServiceName,
	HandlerType: (*AuthorityServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Login", AuthorityServer.Login),
		unary("Ping", AuthorityServer.Ping),
		unary("Push", AuthorityServer.Push),
		unary("Pull", AuthorityServer.Pull),
		unary("PresignBackup", AuthorityServer.PresignBackup),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "medsync/v1/authority",
}

func RegisterAuthorityServer(s grpc.ServiceRegistrar, srv AuthorityServer) {
	s.RegisterService(&ServiceDesc, srv)
}
