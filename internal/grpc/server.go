package grpcserver

import (
	"context"
	"net"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"ewastePickup/internal/aggregate"
	"ewastePickup/internal/auth"
	"ewastePickup/internal/config"
	"ewastePickup/internal/identity"
	"ewastePickup/internal/lifecycle"
	"ewastePickup/internal/logging"
	"ewastePickup/internal/metrics"
)

const (
	healthCheckMethod = "/grpc.health.v1.Health/Check"
	healthWatchMethod = "/grpc.health.v1.Health/Watch"
)

// Services bundles what the gRPC handlers call into.
type Services struct {
	Identity   *identity.Service
	Engine     *lifecycle.Engine
	Aggregates *aggregate.Service
}

// unauthenticated lists the methods reachable without a bearer token.
var unauthenticated = []string{
	healthCheckMethod,
	healthWatchMethod,
	"/" + IdentityServiceName + "/Register",
	"/" + IdentityServiceName + "/Login",
}

func loggingInterceptor(log logrus.FieldLogger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		entry := log.WithFields(logrus.Fields{
			"method":   info.FullMethod,
			"code":     status.Code(err).String(),
			"duration": time.Since(start),
		})
		if err != nil {
			entry.WithError(err).Warn("grpc call failed")
		} else {
			entry.Debug("grpc call")
		}
		return resp, err
	}
}

func streamLoggingInterceptor(log logrus.FieldLogger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		entry := log.WithFields(logrus.Fields{
			"method":   info.FullMethod,
			"code":     status.Code(err).String(),
			"duration": time.Since(start),
		})
		if err != nil {
			entry.WithError(err).Warn("grpc stream failed")
		} else {
			entry.Debug("grpc stream")
		}
		return err
	}
}

// NewServer builds a gRPC server with IdentityService, PickupService and the
// standard health service registered. Unary and streaming calls pass through
// logging, metrics and authentication interceptors in that order.
func NewServer(svc Services, log logrus.FieldLogger) *grpc.Server {
	if log == nil {
		log = logging.Discard()
	}
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			loggingInterceptor(log),
			metrics.UnaryServerInterceptor(),
			auth.NewUnaryAuthInterceptor(svc.Identity, unauthenticated...),
		),
		grpc.ChainStreamInterceptor(
			streamLoggingInterceptor(log),
			metrics.StreamServerInterceptor(),
			auth.NewStreamAuthInterceptor(svc.Identity, unauthenticated...),
		),
	)

	srv.RegisterService(&IdentityServiceDesc, &IdentityServer{Identity: svc.Identity})
	srv.RegisterService(&PickupServiceDesc, &PickupServer{Engine: svc.Engine, Aggregates: svc.Aggregates, Log: log})

	hs := health.NewServer()
	hs.SetServingStatus(IdentityServiceName, healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(PickupServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv
}

// StartGRPC starts the gRPC server on the configured address and returns a shutdown function.
func StartGRPC(cfg *config.Config, svc Services, log logrus.FieldLogger) (func(context.Context) error, error) {
	if cfg == nil {
		panic("config is required")
	}

	addr := cfg.GRPC.Address
	if addr == "" {
		addr = ":50051"
	}

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	// Plaintext; terminate TLS in front of the service.
	srv := NewServer(svc, log)
	go func() { _ = srv.Serve(lis) }()

	return func(ctx context.Context) error {
		done := make(chan struct{})
		go func() { srv.GracefulStop(); close(done) }()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			srv.Stop()
			return ctx.Err()
		}
	}, nil
}
