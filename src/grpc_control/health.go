package grpc_control

import (
	"fmt"
	"net"

	"chart-hub/src/logger"
	"chart-hub/src/models"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HubServiceName is the health service reflecting snapshot state.
const HubServiceName = "charthub.Hub"

// -----------------------------------------------------------------------------

// HealthService exposes grpc.health.v1. The overall status is SERVING while
// the process runs; HubServiceName is SERVING only while the hub holds real
// chart data.
type HealthService struct {
	Config *models.MConfig
	Logger *logger.Logger

	health     *health.Server
	grpcServer *grpc.Server
}

// NewHealthService creates the service with the hub marked NOT_SERVING.
func NewHealthService(cfg *models.MConfig, log *logger.Logger) *HealthService {
	s := &HealthService{
		Config:     cfg,
		Logger:     log,
		health:     health.NewServer(),
		grpcServer: grpc.NewServer(),
	}
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(HubServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	return s
}

// -----------------------------------------------------------------------------

// ObserveSnapshot is registered with Hub.OnSnapshot.
func (s *HealthService) ObserveSnapshot(snap *models.MSnapshot) {
	status := healthpb.HealthCheckResponse_SERVING
	if snap == nil || snap.Fallback || snap.Len() == 0 {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus(HubServiceName, status)
}

// -----------------------------------------------------------------------------

// Start listens on grpc_host:grpc_port and blocks until Stop.
func (s *HealthService) Start() error {
	addr := fmt.Sprintf("%s:%d", s.Config.GrpcHost, s.Config.GrpcPort)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.Logger.Info("gRPC health service listening on %s", addr)
	return s.Serve(lis)
}

// Serve runs on an existing listener.
func (s *HealthService) Serve(lis net.Listener) error {
	return s.grpcServer.Serve(lis)
}

// -----------------------------------------------------------------------------

func (s *HealthService) Stop() error {
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
	return nil
}
