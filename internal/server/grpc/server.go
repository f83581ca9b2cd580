// Package grpc exposes the authority service over gRPC.
package grpc

import (
	"context"
	"net"
	"time"

	"github.com/dmitrijs2005/medsync/internal/logging"
	"github.com/dmitrijs2005/medsync/internal/wire"
	"google.golang.org/grpc"
)

// Authority is the business logic the server delegates to.
type Authority interface {
	Login(ctx context.Context, req wire.LoginRequest) (*wire.LoginResponse, error)
	Push(ctx context.Context, deviceID string, m wire.Mutation) (*wire.PushResult, error)
	Pull(ctx context.Context, deviceID string, since *time.Time) (*wire.Changes, error)
	PresignBackup(ctx context.Context, deviceID, name string) (*wire.PresignResponse, error)
}

type GRPCServer struct {
	address   string
	authority Authority
	logger    logging.Logger
	jwtSecret []byte
}

var _ AuthorityServer = (*GRPCServer)(nil)

func NewGRPCServer(a string, l logging.Logger, authority Authority, secretKey string) *GRPCServer {
	return &GRPCServer{
		address:   a,
		logger:    l.With("module", "grpc_server"),
		authority: authority,
		jwtSecret: []byte(secretKey),
	}
}

// NewServer returns a grpc.Server with the service and its interceptor
// registered, ready to Serve on any listener.
func (s *GRPCServer) NewServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(s.accessTokenInterceptor)}, opts...)
	srv := grpc.NewServer(opts...)
	RegisterAuthorityServer(srv, s)
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve blocks until ctx is done, then stops gracefully.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.NewServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	if err := srv.Serve(lis); err != nil {
		return err
	}

	return nil
}
