// Package grpcserver runs the gRPC listener that reports vending service health.
package grpcserver

import (
	"context"
	"errors"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	// ServiceName is the name health clients query for the vending API.
	ServiceName = "vending.v1.VendingService"

	defaultProbeInterval = 10 * time.Second
	probeTimeout         = 2 * time.Second
)

// HealthReporter publishes readiness through the standard gRPC health service.
type HealthReporter struct {
	server   *health.Server
	ready    func(ctx context.Context) error
	interval time.Duration
	logger   *zap.Logger
}

// NewHealthReporter probes ready every interval. A nil ready always reports serving.
func NewHealthReporter(ready func(ctx context.Context) error, interval time.Duration, logger *zap.Logger) *HealthReporter {
	if interval <= 0 {
		interval = defaultProbeInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthReporter{
		server:   health.NewServer(),
		ready:    ready,
		interval: interval,
		logger:   logger,
	}
}

// Register attaches the health service to server.
func (reporter *HealthReporter) Register(server *grpc.Server) {
	healthpb.RegisterHealthServer(server, reporter.server)
}

// Probe runs one readiness check and publishes the result.
func (reporter *HealthReporter) Probe(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if reporter.ready != nil {
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := reporter.ready(probeCtx)
		cancel()
		if err != nil {
			reporter.logger.Warn("health probe failed", zap.Error(err))
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	reporter.server.SetServingStatus("", status)
	reporter.server.SetServingStatus(ServiceName, status)
	return status
}

// Run probes until ctx is done, then marks every service as not serving.
func (reporter *HealthReporter) Run(ctx context.Context) {
	reporter.Probe(ctx)
	ticker := time.NewTicker(reporter.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			reporter.server.Shutdown()
			return
		case <-ticker.C:
			reporter.Probe(ctx)
		}
	}
}

// Serve runs server on listener until ctx is cancelled.
func Serve(ctx context.Context, server *grpc.Server, listener net.Listener, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("gRPC server starting", zap.String("listen_addr", listener.Addr().String()))
		errCh <- server.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		logger.Info("gRPC shutdown requested")
		server.GracefulStop()
		if serveErr := <-errCh; serveErr != nil && !errors.Is(serveErr, grpc.ErrServerStopped) {
			return serveErr
		}
		return nil
	case serveErr := <-errCh:
		if errors.Is(serveErr, grpc.ErrServerStopped) {
			return nil
		}
		return serveErr
	}
}
