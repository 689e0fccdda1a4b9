package main

import (
	"context"
	"fmt"
	"time"

	"chart-hub/src/data_source/demo"
	"chart-hub/src/data_source/rest"
	pb "chart-hub/src/grpc_control"
	"chart-hub/src/interfaces"
	"chart-hub/src/logger"
	"chart-hub/src/models"
	"chart-hub/src/network"
	"chart-hub/src/server"
	"chart-hub/src/storage"
)

// -----------------------------------------------------------------------------

// setupSource builds the chart source named by source.type. The returned
// func releases whatever the source holds open.
func setupSource(config *models.MConfig, appLogger *logger.Logger, seed bool) (interfaces.IChartSource, func(), error) {
	noop := func() {}

	switch config.Source.Type {
	case "rest":
		networkManager := network.NewAsyncNetworkManager(config, appLogger.Named("NetworkManager"))
		src := rest.NewRestChartSource(config.Source, networkManager, appLogger.Named("RestSource"))
		appLogger.Info("Using REST source %s", src.Name())
		return src, noop, nil

	case "sqlite", "postgres":
		store, err := setupDatabase(config, appLogger)
		if err != nil {
			return nil, nil, err
		}
		closeStore := func() {
			if err := store.Close(); err != nil {
				appLogger.Warning("Failed to close %s: %v", store.Name(), err)
			}
		}
		if seed {
			if err := seedStore(store, appLogger); err != nil {
				closeStore()
				return nil, nil, err
			}
		}
		appLogger.Info("Using SQL source %s", store.Name())
		return store, closeStore, nil

	case "demo":
		appLogger.Info("Using demo source")
		return demo.NewDemoChartSource(), noop, nil
	}

	return nil, nil, fmt.Errorf("unknown source type %q", config.Source.Type)
}

// -----------------------------------------------------------------------------

// setupDatabase opens and migrates the configured SQL store.
func setupDatabase(config *models.MConfig, appLogger *logger.Logger) (interfaces.IChartStore, error) {
	var db interfaces.IChartStore
	var err error

	switch config.Source.Type {
	case "postgres":
		db, err = storage.NewPostgresDB(config, appLogger.Named("PostgresDB"))
	default:
		db, err = storage.NewAsyncSQLiteDB(config, appLogger.Named("SQLiteDB"))
	}
	if err != nil {
		return nil, err
	}
	if err := db.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to migrate db: %w", err)
	}
	return db, nil
}

// -----------------------------------------------------------------------------

// seedStore copies one round of demo charts into store.
func seedStore(store interfaces.IChartStore, appLogger *logger.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	charts, err := demo.NewDemoChartSource().FetchCharts(ctx)
	if err != nil {
		return err
	}
	if err := store.SaveCharts(charts); err != nil {
		return fmt.Errorf("failed to seed %s: %w", store.Name(), err)
	}
	appLogger.Info("Seeded %d demo charts into %s", len(charts), store.Name())
	return nil
}

// -----------------------------------------------------------------------------

// setupHealth returns nil when grpc_port is 0.
func setupHealth(config *models.MConfig, hub *server.Hub) *pb.HealthService {
	if config.GrpcPort == 0 {
		return nil
	}
	health := pb.NewHealthService(config, logger.NewLogger(config, "HealthService"))
	hub.OnSnapshot(health.ObserveSnapshot)
	return health
}
