package httpapi

import (
	"context"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"vidora.org/internal/obs"
)

const grpcServiceName = "vidora.v1.Auth"

type readinessChecker interface {
	Check(ctx context.Context) error
}

// GRPCServer exposes the standard gRPC health service so orchestration-side
// probes can watch readiness without speaking HTTP.
type GRPCServer struct {
	server *grpc.Server
	health *health.Server
	probe  readinessChecker
}

// NewGRPCServer creates the health endpoint around the shared readiness probe.
func NewGRPCServer(probe readinessChecker) *GRPCServer {
	s := grpc.NewServer()
	h := health.NewServer()
	healthpb.RegisterHealthServer(s, h)
	h.SetServingStatus(grpcServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &GRPCServer{server: s, health: h, probe: probe}
}

// Serve blocks on the listener until GracefulStop.
func (g *GRPCServer) Serve(lis net.Listener) error {
	return g.server.Serve(lis)
}

// GracefulStop drains in-flight RPCs and stops the server.
func (g *GRPCServer) GracefulStop() {
	g.server.GracefulStop()
}

// WatchReadiness re-evaluates the probe on an interval and publishes the
// verdict to both the health service and the readiness gauge. Returns when
// ctx is done.
func (g *GRPCServer) WatchReadiness(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	g.evaluate(ctx)
	for {
		select {
		case <-ctx.Done():
			g.health.SetServingStatus(grpcServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
			return
		case <-ticker.C:
			g.evaluate(ctx)
		}
	}
}

func (g *GRPCServer) evaluate(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := g.probe.Check(checkCtx); err != nil {
		g.health.SetServingStatus(grpcServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
		obs.SetReady(false)
		return
	}
	g.health.SetServingStatus(grpcServiceName, healthpb.HealthCheckResponse_SERVING)
	obs.SetReady(true)
}
