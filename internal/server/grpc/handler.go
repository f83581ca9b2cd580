package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/medsync/internal/common"
	"github.com/dmitrijs2005/medsync/internal/server/services"
	"github.com/dmitrijs2005/medsync/internal/wire"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// toStatus maps service errors to gRPC codes. Anything that is not a
// rejection of the request itself is reported as Unavailable so clients
// retry it later.
func (s *GRPCServer) toStatus(ctx context.Context, method string, err error) error {
	switch {
	case errors.Is(err, common.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrUnauthorized):
		return status.Error(codes.Unauthenticated, "unauthorized")
	case errors.Is(err, common.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, services.ErrBackupDisabled):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	s.logger.Error(ctx, "request failed", "method", method, "error", err)
	return status.Error(codes.Unavailable, "temporarily unavailable")
}

func (s *GRPCServer) device(ctx context.Context) (string, error) {
	id, ok := DeviceIDFromContext(ctx)
	if !ok {
		return "", status.Error(codes.Unauthenticated, "missing token")
	}
	return id, nil
}

func (s *GRPCServer) Login(ctx context.Context, req wire.LoginRequest) (*wire.LoginResponse, error) {
	resp, err := s.authority.Login(ctx, req)
	if err != nil {
		return nil, s.toStatus(ctx, "Login", err)
	}
	return resp, nil
}

func (s *GRPCServer) Ping(ctx context.Context, _ struct{}) (*wire.PingResponse, error) {
	return &wire.PingResponse{Status: "OK"}, nil
}

func (s *GRPCServer) Push(ctx context.Context, m wire.Mutation) (*wire.PushResult, error) {
	deviceID, err := s.device(ctx)
	if err != nil {
		return nil, err
	}
	res, err := s.authority.Push(ctx, deviceID, m)
	if err != nil {
		return nil, s.toStatus(ctx, "Push", err)
	}
	return res, nil
}

func (s *GRPCServer) Pull(ctx context.Context, req wire.PullRequest) (*wire.Changes, error) {
	deviceID, err := s.device(ctx)
	if err != nil {
		return nil, err
	}
	changes, err := s.authority.Pull(ctx, deviceID, req.Since)
	if err != nil {
		return nil, s.toStatus(ctx, "Pull", err)
	}
	return changes, nil
}

func (s *GRPCServer) PresignBackup(ctx context.Context, req wire.PresignRequest) (*wire.PresignResponse, error) {
	deviceID, err := s.device(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := s.authority.PresignBackup(ctx, deviceID, req.Name)
	if err != nil {
		return nil, s.toStatus(ctx, "PresignBackup", err)
	}
	return resp, nil
}
