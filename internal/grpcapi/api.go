// Package grpcapi serves compiles and run history over gRPC with a JSON codec.
package grpcapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"

	"github.com/masterchef/catalogcheck/internal/compiler"
	"github.com/masterchef/catalogcheck/internal/facts"
	"github.com/masterchef/catalogcheck/internal/state"
)

const serviceName = "catalogcheck.v1.Compiler"

type jsonCodec struct{}

func (jsonCodec) Name() string {
	return "json"
}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type HealthRequest struct{}

type HealthResponse struct {
	Status string    `json:"status"`
	Module string    `json:"module,omitempty"`
	Time   time.Time `json:"time"`
}

type ListRunsRequest struct {
	Limit int `json:"limit,omitempty"`
}

type ListRunsResponse struct {
	Count int               `json:"count"`
	Items []state.RunRecord `json:"items"`
}

// CompileRequest names facts either inline or by a fixture name the server
// knows. Inline facts win. Fresh skips any server-side compile cache.
type CompileRequest struct {
	Ref     compiler.ModuleRef `json:"ref"`
	Fixture string             `json:"fixture,omitempty"`
	Facts   facts.Facts        `json:"facts,omitempty"`
	Fresh   bool               `json:"fresh,omitempty"`
}

// CompileResponse carries either a catalog or the compile failure. Compile
// failures are results, not RPC errors.
type CompileResponse struct {
	Catalog *compiler.Catalog      `json:"catalog,omitempty"`
	Error   *compiler.CompileError `json:"error,omitempty"`
}

type CompilerServer interface {
	Health(context.Context, *HealthRequest) (*HealthResponse, error)
	ListRuns(context.Context, *ListRunsRequest) (*ListRunsResponse, error)
	Compile(context.Context, *CompileRequest) (*CompileResponse, error)
}

type Service struct {
	store    *state.Store
	compiler compiler.Compiler
	fixtures *facts.DB
	module   string
	log      *zap.Logger
}

type Option func(*Service)

func WithFixtures(db *facts.DB) Option {
	return func(s *Service) { s.fixtures = db }
}

func WithModuleName(name string) Option {
	return func(s *Service) { s.module = name }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func New(stateDir string, c compiler.Compiler, opts ...Option) *Service {
	s := &Service{store: state.New(stateDir), compiler: c, log: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Register(grpcServer *grpc.Server) {
	grpcServer.RegisterService(serviceDesc, s)
}

func (s *Service) Health(_ context.Context, _ *HealthRequest) (*HealthResponse, error) {
	return &HealthResponse{
		Status: "ok",
		Module: s.module,
		Time:   time.Now().UTC(),
	}, nil
}

func (s *Service) ListRuns(_ context.Context, req *ListRunsRequest) (*ListRunsResponse, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 100
	}
	items, err := s.store.ListRuns(limit)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return &ListRunsResponse{
		Count: len(items),
		Items: items,
	}, nil
}

func (s *Service) Compile(ctx context.Context, req *CompileRequest) (*CompileResponse, error) {
	if s.compiler == nil {
		return nil, status.Error(codes.Unavailable, "no compiler configured")
	}
	if strings.TrimSpace(req.Ref.Class) == "" {
		return nil, status.Error(codes.InvalidArgument, "ref.class is required")
	}
	f := req.Facts
	if f == nil {
		name := strings.TrimSpace(req.Fixture)
		if name == "" {
			return nil, status.Error(codes.InvalidArgument, "one of facts or fixture is required")
		}
		if s.fixtures == nil {
			return nil, status.Error(codes.FailedPrecondition, "server has no fact sets loaded")
		}
		fx, ok := s.fixtures.Get(name)
		if !ok {
			return nil, status.Errorf(codes.NotFound, "unknown fixture %q", name)
		}
		f = fx.Facts
	}
	if req.Fresh {
		ctx = compiler.Fresh(ctx)
	}
	cat, err := s.compiler.Compile(ctx, req.Ref, f)
	if err != nil {
		if ce, ok := compiler.AsCompileError(err); ok {
			return &CompileResponse{Error: ce}, nil
		}
		return nil, status.FromContextError(err).Err()
	}
	return &CompileResponse{Catalog: cat}, nil
}

func loggingInterceptor(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		log.Debug("rpc",
			zap.String("method", info.FullMethod),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return resp, err
	}
}

// NewServer returns a gRPC server with the service registered.
func NewServer(svc *Service) *grpc.Server {
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(loggingInterceptor(svc.log)))
	svc.Register(grpcServer)
	return grpcServer
}

func Listen(addr string, svc *Service) (*grpc.Server, net.Listener, error) {
	if addr == "" {
		return nil, nil, errors.New("grpc addr is required")
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return NewServer(svc), lis, nil
}

var serviceDesc = &grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*CompilerServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Health",
			Handler:    healthHandler,
		},
		{
			MethodName: "ListRuns",
			Handler:    listRunsHandler,
		},
		{
			MethodName: "Compile",
			Handler:    compileHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "catalogcheck.v1",
}

func unary[Req any, Resp any](method string, call func(CompilerServer, context.Context, *Req) (*Resp, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(CompilerServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + serviceName + "/" + method,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(CompilerServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var (
	healthHandler   = unary("Health", CompilerServer.Health)
	listRunsHandler = unary("ListRuns", CompilerServer.ListRuns)
	compileHandler  = unary("Compile", CompilerServer.Compile)
)
