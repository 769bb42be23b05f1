package grpc

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/dmehra2102/foodshare/internal/inventory/application"
	"github.com/dmehra2102/foodshare/internal/inventory/domain"
)

type Server struct {
	log *slog.Logger
	svc *application.Service
}

func NewServer(log *slog.Logger, svc *application.Service) *Server {
	return &Server{log: log, svc: svc}
}

func (s *Server) CheckAvailability(ctx context.Context, req *CheckAvailabilityRequest) (*CheckAvailabilityResponse, error) {
	if len(req.Items) == 0 {
		return nil, status.Error(codes.InvalidArgument, "items are required")
	}
	items := make(map[string]int, len(req.Items))
	for _, it := range req.Items {
		if it.Name == "" || it.Quantity <= 0 {
			return nil, status.Errorf(codes.InvalidArgument, "invalid item %q quantity %d", it.Name, it.Quantity)
		}
		items[it.Name] += it.Quantity
	}

	short, err := s.svc.Check(ctx, items)
	if err != nil {
		s.log.Error("availability check failed", "err", err)
		return nil, status.Error(codes.Internal, "availability check failed")
	}
	resp := &CheckAvailabilityResponse{Available: len(short) == 0}
	for _, sf := range short {
		resp.Shortfalls = append(resp.Shortfalls, Shortfall{Item: sf.Item, Requested: sf.Requested, Available: sf.Available})
	}
	return resp, nil
}

func (s *Server) GetStock(ctx context.Context, req *GetStockRequest) (*GetStockResponse, error) {
	it, err := s.svc.Stock(ctx, req.Name)
	if errors.Is(err, domain.ErrItemNotFound) {
		return nil, status.Errorf(codes.NotFound, "item %q not found", req.Name)
	}
	if err != nil {
		s.log.Error("stock lookup failed", "item", req.Name, "err", err)
		return nil, status.Error(codes.Internal, "stock lookup failed")
	}
	return &GetStockResponse{
		Name:     it.Name,
		Category: it.Category,
		Quantity: it.Quantity,
		Level:    string(domain.Classify(it.Quantity, s.svc.Threshold())),
	}, nil
}

// NewGRPCServer registers srv and the standard health service on a fresh server.
func NewGRPCServer(log *slog.Logger, srv *Server) *grpc.Server {
	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(logUnary(log)))
	RegisterInventoryServer(gs, srv)

	hs := health.NewServer()
	hs.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(gs, hs)
	return gs
}

func Run(log *slog.Logger, addr string, srv *Server) (*grpc.Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	gs := NewGRPCServer(log, srv)
	go func() {
		if err := gs.Serve(lis); err != nil {
			log.Error("grpc server stopped", "err", err)
		}
	}()
	log.Info("grpc listening", "addr", addr)
	return gs, nil
}

func logUnary(log *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		log.Debug("grpc call", "method", info.FullMethod, "code", status.Code(err).String(), "took", time.Since(start))
		return resp, err
	}
}
