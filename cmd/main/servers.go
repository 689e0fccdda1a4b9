package main

import (
	"fmt"

	pb "chart-hub/src/grpc_control"
	"chart-hub/src/interfaces"
	"chart-hub/src/logger"
)

// -----------------------------------------------------------------------------

// startServers launches the HTTP server and, when configured, the gRPC
// health service. The first fatal error from either lands on the channel.
func startServers(srv interfaces.IDataExchanger, health *pb.HealthService, appLogger *logger.Logger) <-chan error {
	errCh := make(chan error, 2)

	// 1. FastAPIServer
	go func() {
		if err := srv.Start(); err != nil {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	// 2. gRPC health
	if health != nil {
		go func() {
			if err := health.Start(); err != nil {
				errCh <- fmt.Errorf("grpc: %w", err)
			}
		}()
	} else {
		appLogger.Info("gRPC health service disabled")
	}

	return errCh
}

// -----------------------------------------------------------------------------

func stopServers(srv interfaces.IDataExchanger, health *pb.HealthService, appLogger *logger.Logger) {
	if err := srv.Stop(); err != nil {
		appLogger.Error("HTTP shutdown: %v", err)
	}
	if health != nil {
		health.Stop()
	}
}
