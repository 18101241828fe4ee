package grpc_control

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"ig-streamer/src/config"
	"ig-streamer/src/interfaces"
	"ig-streamer/src/logger"
	"ig-streamer/src/models"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// StreamingService is the health service name that follows the streaming
// session status.
const StreamingService = "ig_streamer.Streaming"

const shutdownTimeout = 30 * time.Second

// -----------------------------------------------------------------------------
// GRPCService handles gRPC server lifecycle
// -----------------------------------------------------------------------------

type GRPCService struct {
	Name     string
	server   *grpc.Server
	listener net.Listener
	health   *health.Server
	config   *config.Config
	logger   *logger.Logger
	source   interfaces.IDataSource
	running  atomic.Bool
}

// -----------------------------------------------------------------------------

// NewGRPCService creates a new GRPCService listening on the configured host
// and port. Port 0 picks a free port.
func NewGRPCService(config *config.Config, logger *logger.Logger, source interfaces.IDataSource) (*GRPCService, error) {
	// Create listener
	address := fmt.Sprintf("%s:%d", config.GRPC_Host, config.GRPC_Port)

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	// Create gRPC server with options
	serverOptions := []grpc.ServerOption{
		grpc.MaxRecvMsgSize(4 * 1024 * 1024),
		grpc.MaxSendMsgSize(4 * 1024 * 1024),
	}
	server := grpc.NewServer(serverOptions...)

	// Register health and reflection services
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(server, healthServer)
	reflection.Register(server)

	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(StreamingService, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	return &GRPCService{
		Name:     "grpc",
		server:   server,
		listener: listener,
		health:   healthServer,
		config:   config,
		logger:   logger,
		source:   source,
	}, nil
}

// -----------------------------------------------------------------------------

// Start serves until ctx is done. The serving status of StreamingService
// follows the session: SERVING while connected, NOT_SERVING otherwise.
func (g *GRPCService) Start(ctx context.Context) error {
	g.logger.Info("%s : starting gRPC service on %s", g.Name, g.Addr())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go g.followStatus(ctx)

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		g.running.Store(true)
		err := g.server.Serve(g.listener)
		g.running.Store(false)
		errCh <- err
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("gRPC server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	g.logger.Info("%s : context done, stopping gRPC service", g.Name)

	// Graceful shutdown
	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()
	return g.Stop(stopCtx)
}

// followStatus mirrors the session status into the health server.
func (g *GRPCService) followStatus(ctx context.Context) {
	for st := range g.source.WatchStatus(ctx) {
		g.setServing(st)
	}
}

func (g *GRPCService) setServing(st models.MConnectionStatus) {
	serving := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if st.IsConnected() {
		serving = grpc_health_v1.HealthCheckResponse_SERVING
	}
	g.logger.Debug("%s : %s is %s (%s)", g.Name, StreamingService, serving, st)
	g.health.SetServingStatus(StreamingService, serving)
}

// -----------------------------------------------------------------------------

// Stop gracefully stops the gRPC server
func (g *GRPCService) Stop(ctx context.Context) error {
	g.logger.Info("%s : stopping gRPC service", g.Name)
	g.health.Shutdown()

	// Graceful stop
	done := make(chan struct{})
	go func() {
		g.server.GracefulStop()
		close(done)
	}()

	select {
	case <-ctx.Done():
		g.logger.Warning("%s : gRPC graceful shutdown timeout, forcing stop", g.Name)
		g.server.Stop()
	case <-done:
		g.logger.Info("%s : gRPC service stopped gracefully", g.Name)
	}

	g.running.Store(false)
	return nil
}

// -----------------------------------------------------------------------------

// IsRunning returns whether the gRPC server is running
func (g *GRPCService) IsRunning() bool {
	return g.running.Load()
}

// Addr returns the address the server listens on.
func (g *GRPCService) Addr() string {
	return g.listener.Addr().String()
}
