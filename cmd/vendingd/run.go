package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/MarkoPoloResearchLab/vending/internal/authtoken"
	"github.com/MarkoPoloResearchLab/vending/internal/config"
	"github.com/MarkoPoloResearchLab/vending/internal/credentials"
	"github.com/MarkoPoloResearchLab/vending/internal/grpcserver"
	"github.com/MarkoPoloResearchLab/vending/internal/httpapi"
	"github.com/MarkoPoloResearchLab/vending/internal/metrics"
	"github.com/MarkoPoloResearchLab/vending/internal/oplog"
	"github.com/MarkoPoloResearchLab/vending/internal/sessioncache"
	"github.com/MarkoPoloResearchLab/vending/pkg/vending"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

const healthProbeInterval = 15 * time.Second

type pinger interface {
	Ping(ctx context.Context) error
}

func runServer(ctx context.Context, cfg *config.Config) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	backend, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer backend.close()

	cache, err := sessioncache.Open(cfg.SessionCacheURL)
	if err != nil {
		return fmt.Errorf("session cache: %w", err)
	}
	defer func() { _ = cache.Close() }()

	hasher, err := credentials.NewHasher(0)
	if err != nil {
		return fmt.Errorf("credentials init: %w", err)
	}
	issuer, err := authtoken.NewIssuer(authtoken.Config{
		SigningKey: cfg.JWTSigningKey,
		Issuer:     cfg.JWTIssuer,
		Audience:   cfg.JWTAudience,
		TTL:        cfg.SessionTTL,
	}, nil)
	if err != nil {
		return fmt.Errorf("token issuer init: %w", err)
	}
	recorder, err := metrics.New()
	if err != nil {
		return fmt.Errorf("metrics init: %w", err)
	}

	options := []vending.ServiceOption{
		vending.WithOperationLogger(oplog.New(logger)),
		vending.WithOperationLogger(recorder),
		vending.WithSessionTTL(cfg.SessionTTL),
	}
	if cfg.SerializeBalances {
		options = append(options, vending.WithSerializedBalances())
	}
	clock := func() time.Time { return time.Now().UTC() }
	service, err := vending.NewService(backend.store, cache, hasher, issuer, clock, options...)
	if err != nil {
		return fmt.Errorf("vending service init: %w", err)
	}

	ready := func(ctx context.Context) error {
		if err := backend.ping(ctx); err != nil {
			return fmt.Errorf("store: %w", err)
		}
		if cachePinger, ok := cache.(pinger); ok {
			if err := cachePinger.Ping(ctx); err != nil {
				return fmt.Errorf("session cache: %w", err)
			}
		}
		return nil
	}

	router, err := httpapi.NewRouter(httpapi.Config{
		AllowedOrigins:       cfg.AllowedOrigins,
		LoginRateLimit:       cfg.LoginRateLimit,
		LoginBurst:           cfg.LoginBurst,
		RequireActiveSession: cfg.RequireActiveSession,
	}, httpapi.Dependencies{
		Service:  service,
		Tokens:   issuer,
		Logger:   logger,
		Observer: recorder,
		Metrics:  recorder.Handler(),
		Ready:    ready,
	})
	if err != nil {
		return fmt.Errorf("router init: %w", err)
	}

	listener, err := net.Listen("tcp", cfg.GRPCListenAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	grpcServer := grpc.NewServer()
	reporter := grpcserver.NewHealthReporter(ready, healthProbeInterval, logger)
	reporter.Register(grpcServer)

	logger.Info("vendingd starting",
		zap.String("store", cfg.Store),
		zap.String("http_addr", cfg.ListenAddr),
		zap.String("grpc_addr", cfg.GRPCListenAddr),
		zap.Duration("session_ttl", cfg.SessionTTL),
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		reporter.Run(groupCtx)
		return nil
	})
	group.Go(func() error {
		return httpapi.Run(groupCtx, cfg.ListenAddr, router, cfg.ShutdownTimeout, logger)
	})
	group.Go(func() error {
		return grpcserver.Serve(groupCtx, grpcServer, listener, logger)
	})
	return group.Wait()
}
