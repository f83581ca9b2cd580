package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/medsync/internal/common"
	"github.com/dmitrijs2005/medsync/internal/wire"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Credentials identify this workstation to the authority.
type Credentials struct {
	DeviceID string
	Secret   string
}

type GRPCClient struct {
	endpointURL string
	creds       Credentials
	conn        *grpc.ClientConn
	cc          grpc.ClientConnInterface

	mu          sync.Mutex
	accessToken string
}

var _ Remote = (*GRPCClient)(nil)

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(common.AccessTokenHeaderName, token)

	return metadata.NewOutgoingContext(ctx, md)
}

func (c *GRPCClient) token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken
}

func (c *GRPCClient) setToken(t string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = t
}

func isTokenExpired(err error) bool {
	st, ok := status.FromError(err)
	return ok && st.Code() == codes.Unauthenticated && st.Message() == common.ErrTokenExpired.Error()
}

// accessTokenInterceptor attaches the access token to every call except
// Login and Ping. Without a token it logs in first; on an expired token it
// logs in again and retries once.
func (c *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	if method == wire.MethodLogin || method == wire.MethodPing {
		return invoker(ctx, method, req, reply, cc, opts...)
	}

	if c.token() == "" && c.creds.DeviceID != "" {
		if err := c.Login(ctx); err != nil {
			return err
		}
	}

	err := invoker(withAccessToken(ctx, c.token()), method, req, reply, cc, opts...)
	if err == nil || !isTokenExpired(err) || c.creds.DeviceID == "" {
		return err
	}

	if err := c.Login(ctx); err != nil {
		return err
	}
	return invoker(withAccessToken(ctx, c.token()), method, req, reply, cc, opts...)
}

// NewGRPCClient creates a lazily connecting client. Extra dial options are
// appended to the defaults, which is how tests plug in bufconn.
func NewGRPCClient(endpointURL string, creds Credentials, opts ...grpc.DialOption) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL, creds: creds}

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.accessTokenInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(endpointURL, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create grpc client for %s: %w", endpointURL, err)
	}
	c.conn = conn
	c.cc = conn
	return c, nil
}

func (c *GRPCClient) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *GRPCClient) call(ctx context.Context, method string, req, resp any) error {
	in, err := wire.Encode(req)
	if err != nil {
		return err
	}
	out := &structpb.Struct{}
	if err := c.cc.Invoke(ctx, method, in, out); err != nil {
		return mapError(err)
	}
	if resp == nil {
		return nil
	}
	return wire.Decode(out, resp)
}

// Login exchanges the device credentials for an access token.
func (c *GRPCClient) Login(ctx context.Context) error {
	var resp wire.LoginResponse
	err := c.call(ctx, wire.MethodLogin, wire.LoginRequest{DeviceID: c.creds.DeviceID, Secret: c.creds.Secret}, &resp)
	if err != nil {
		return err
	}
	c.setToken(resp.AccessToken)
	return nil
}

func (c *GRPCClient) Ping(ctx context.Context) error {
	var resp wire.PingResponse
	if err := c.call(ctx, wire.MethodPing, struct{}{}, &resp); err != nil {
		return err
	}
	if resp.Status != "OK" {
		return fmt.Errorf("%w: authority reported %q", common.ErrTransient, resp.Status)
	}
	return nil
}

func (c *GRPCClient) Push(ctx context.Context, m wire.Mutation) (*wire.PushResult, error) {
	var resp wire.PushResult
	if err := c.call(ctx, wire.MethodPush, m, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *GRPCClient) Pull(ctx context.Context, since *time.Time) (*wire.Changes, error) {
	var resp wire.Changes
	if err := c.call(ctx, wire.MethodPull, wire.PullRequest{Since: since}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *GRPCClient) PresignBackup(ctx context.Context, name string) (*wire.PresignResponse, error) {
	var resp wire.PresignResponse
	if err := c.call(ctx, wire.MethodPresignBackup, wire.PresignRequest{Name: name}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// mapError turns gRPC status codes into the sentinel errors callers branch
// on. Errors that carry no status pass through untouched.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		if st.Message() == common.ErrTokenExpired.Error() {
			return fmt.Errorf("%w: %w", common.ErrUnauthorized, common.ErrTokenExpired)
		}
		return fmt.Errorf("%w: %s", common.ErrUnauthorized, st.Message())
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return fmt.Errorf("%w: %s", common.ErrTransient, st.Message())
	case codes.Canceled:
		return fmt.Errorf("%w: %s", context.Canceled, st.Message())
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", common.ErrValidation, st.Message())
	case codes.NotFound:
		return fmt.Errorf("%w: %s", common.ErrNotFound, st.Message())
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
