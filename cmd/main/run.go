package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ig-streamer/src/grpc_control"
	"ig-streamer/src/ingestor"
	"ig-streamer/src/logger"
	"ig-streamer/src/rest"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the streaming daemon with its REST and gRPC surfaces",
	RunE:  runDaemon,
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Setup logger
	appLogger := logger.NewLogger(cfg.Name, cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Create ingestor from config
	ingestorService, err := ingestor.NewIngestor(cfg, appLogger)
	if err != nil {
		return fmt.Errorf("failed to create ingestor: %w", err)
	}
	defer ingestorService.Stop()

	g, gctx := errgroup.WithContext(ctx)

	// Start gRPC control server
	if cfg.GRPC_Port != 0 {
		controlService, err := grpc_control.NewGRPCService(cfg, appLogger, ingestorService)
		if err != nil {
			return fmt.Errorf("failed to create control service: %w", err)
		}
		g.Go(func() error { return controlService.Start(gctx) })
	}

	// Start REST API server
	if cfg.Port != 0 {
		restServer := rest.NewRestServer(cfg, appLogger, ingestorService, ingestorService.Journal)
		g.Go(func() error { return restServer.Start(gctx) })
	}

	// Start ingestor
	g.Go(func() error {
		if err := ingestorService.Start(gctx); err != nil {
			return fmt.Errorf("failed to start ingestor: %w", err)
		}
		appLogger.Info("%s running. REST API: :%d, gRPC: %s:%d", cfg.Name, cfg.Port, cfg.GRPC_Host, cfg.GRPC_Port)
		<-gctx.Done()
		return nil
	})

	err = g.Wait()
	appLogger.Info("shutting down...")
	if err != nil && !errors.Is(err, context.Canceled) {
		appLogger.Critical("%v", err)
		return err
	}
	return nil
}
