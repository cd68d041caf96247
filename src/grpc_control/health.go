package grpc_control

import (
	"fmt"
	"net"
	"sync"

	"market-stream/src/logger"
	"market-stream/src/models"
	"market-stream/src/network"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// StreamService is the health service name that tracks the push connection
const StreamService = "market_stream.Stream"

// connectionSource is the part of the session the health service watches
type connectionSource interface {
	OnConnection(h network.ConnectionHandler) func()
	ConnectionState() models.ConnectionState
}

// -----------------------------------------------------------------------------
// HealthService exposes grpc.health.v1. The overall service is always
// SERVING; StreamService is SERVING only while the stream is connected.
// -----------------------------------------------------------------------------

type HealthService struct {
	Logger *logger.Logger
	Health *health.Server

	server   *grpc.Server
	cancel   func()
	stopOnce sync.Once
}

// -----------------------------------------------------------------------------

func NewHealthService(src connectionSource, log *logger.Logger) *HealthService {
	h := &HealthService{
		Logger: log,
		Health: health.NewServer(),
	}
	h.Health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	h.track(src.ConnectionState())
	h.cancel = src.OnConnection(func(event models.ConnectionEvent) {
		h.track(event.State)
	})
	return h
}

func (h *HealthService) track(state models.ConnectionState) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if state == models.StateConnected {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.Health.SetServingStatus(StreamService, status)
}

// -----------------------------------------------------------------------------

// Register attaches the health and reflection services to srv
func (h *HealthService) Register(srv *grpc.Server) {
	healthpb.RegisterHealthServer(srv, h.Health)
	reflection.Register(srv)
}

// Serve listens on host:port and blocks until Stop
func (h *HealthService) Serve(host string, port int) error {
	lis, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return fmt.Errorf("failed to listen for gRPC: %w", err)
	}
	return h.ServeListener(lis)
}

func (h *HealthService) ServeListener(lis net.Listener) error {
	h.server = grpc.NewServer()
	h.Register(h.server)

	h.Logger.Info("Starting gRPC health server on %s", lis.Addr())
	return h.server.Serve(lis)
}

// Stop marks everything NOT_SERVING and stops the server
func (h *HealthService) Stop() {
	h.stopOnce.Do(func() {
		h.cancel()
		h.Health.Shutdown()
		if h.server != nil {
			h.server.GracefulStop()
		}
	})
}
