package main

import (
	"market-stream/src/grpc_control"
	"market-stream/src/logger"
	"market-stream/src/models"
	"market-stream/src/realtime"
	"market-stream/src/server"
)

// -----------------------------------------------------------------------------

// startServers launches the REST/relay server and the gRPC health server
func startServers(
	api *server.APIServer,
	session *realtime.Session,
	config *models.MConfig,
	appLogger *logger.Logger,
) *grpc_control.HealthService {

	// 1. REST + /ws relay
	go func() {
		if err := api.Start(); err != nil {
			appLogger.Error("Server failed: %v", err)
		}
	}()

	// 2. gRPC health
	health := grpc_control.NewHealthService(session, appLogger.Named("grpc"))
	go func() {
		if err := health.Serve(config.GrpcHost, config.GrpcPort); err != nil {
			appLogger.Error("gRPC server failed: %v", err)
		}
	}()

	return health
}
