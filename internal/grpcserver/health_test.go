package grpcserver

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

const bufconnSize = 1 << 20

func startHealthServer(test *testing.T, ready func(ctx context.Context) error) (*HealthReporter, healthpb.HealthClient) {
	test.Helper()
	listener := bufconn.Listen(bufconnSize)
	reporter := NewHealthReporter(ready, time.Hour, zaptest.NewLogger(test))
	server := grpc.NewServer()
	reporter.Register(server)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, server, listener, zaptest.NewLogger(test)) }()
	test.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			test.Errorf("serve: %v", err)
		}
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return listener.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		test.Fatalf("dial: %v", err)
	}
	test.Cleanup(func() { _ = conn.Close() })
	return reporter, healthpb.NewHealthClient(conn)
}

func TestHealthReflectsReadiness(test *testing.T) {
	var failing atomic.Bool
	reporter, client := startHealthServer(test, func(context.Context) error {
		if failing.Load() {
			return errors.New("database unreachable")
		}
		return nil
	})
	ctx := context.Background()

	if status := reporter.Probe(ctx); status != healthpb.HealthCheckResponse_SERVING {
		test.Fatalf("expected serving, got %v", status)
	}
	response, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		test.Fatalf("check: %v", err)
	}
	if response.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		test.Fatalf("expected serving, got %v", response.GetStatus())
	}

	failing.Store(true)
	reporter.Probe(ctx)
	response, err = client.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		test.Fatalf("check: %v", err)
	}
	if response.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		test.Fatalf("expected not serving, got %v", response.GetStatus())
	}
}

func TestRunStopsOnCancel(test *testing.T) {
	reporter := NewHealthReporter(nil, time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	go func() {
		reporter.Run(ctx)
		close(finished)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case <-finished:
	case <-time.After(time.Second):
		test.Fatalf("expected Run to return after cancel")
	}
}
