package grpcapi

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"

	"github.com/masterchef/catalogcheck/internal/compiler"
	"github.com/masterchef/catalogcheck/internal/facts"
)

// Client calls a remote catalogcheck service.
type Client struct {
	conn grpc.ClientConnInterface
}

// RemoteCompiler is a compiler.Compiler backed by a remote service.
type RemoteCompiler struct {
	client *Client
}

var _ compiler.Compiler = (*RemoteCompiler)(nil)

func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Dial opens a plaintext client connection to addr.
func Dial(addr string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(encoding.GetCodec("json"))),
	}
	conn, err := grpc.NewClient(addr, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return conn, nil
}

func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	return c.conn.Invoke(ctx, "/"+serviceName+"/"+method, req, resp, grpc.ForceCodec(encoding.GetCodec("json")))
}

func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.invoke(ctx, "Health", &HealthRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) ListRuns(ctx context.Context, limit int) (*ListRunsResponse, error) {
	var resp ListRunsResponse
	if err := c.invoke(ctx, "ListRuns", &ListRunsRequest{Limit: limit}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Compile(ctx context.Context, req *CompileRequest) (*CompileResponse, error) {
	var resp CompileResponse
	if err := c.invoke(ctx, "Compile", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Compiler adapts the client to compiler.Compiler.
func (c *Client) Compiler() *RemoteCompiler {
	return &RemoteCompiler{client: c}
}

func (r *RemoteCompiler) Compile(ctx context.Context, ref compiler.ModuleRef, f facts.Facts) (*compiler.Catalog, error) {
	if f == nil {
		f = facts.Facts{}
	}
	resp, err := r.client.Compile(ctx, &CompileRequest{Ref: ref, Facts: f, Fresh: compiler.IsFresh(ctx)})
	if err != nil {
		return nil, fmt.Errorf("remote compile %s: %w", ref.Class, err)
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	if resp.Catalog == nil {
		return nil, fmt.Errorf("remote compile %s: empty response", ref.Class)
	}
	return resp.Catalog, nil
}
