package grpc

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const ServiceName = "cart-service"

// Probe reports whether a dependency is reachable.
type Probe func(ctx context.Context) error

// HealthChecker runs probes against the service's dependencies and
// publishes the result through the standard gRPC health service.
type HealthChecker struct {
	server   *health.Server
	interval time.Duration
	timeout  time.Duration
	log      *zap.Logger

	mu     sync.RWMutex
	probes map[string]Probe
}

func NewHealthChecker(interval time.Duration, log *zap.Logger) *HealthChecker {
	if log == nil {
		log = zap.NewNop()
	}
	h := &HealthChecker{
		server:   health.NewServer(),
		interval: interval,
		timeout:  2 * time.Second,
		log:      log,
		probes:   make(map[string]Probe),
	}
	h.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

func (h *HealthChecker) AddProbe(name string, probe Probe) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.probes[name] = probe
}

// Check runs every probe once and updates the serving status. It returns
// the names of the failing probes.
func (h *HealthChecker) Check(ctx context.Context) []string {
	h.mu.RLock()
	probes := make(map[string]Probe, len(h.probes))
	for name, p := range h.probes {
		probes[name] = p
	}
	h.mu.RUnlock()

	var failing []string
	for name, probe := range probes {
		pctx, cancel := context.WithTimeout(ctx, h.timeout)
		err := probe(pctx)
		cancel()
		if err != nil {
			h.log.Warn("health probe failed", zap.String("probe", name), zap.Error(err))
			failing = append(failing, name)
		}
	}
	sort.Strings(failing)

	if len(failing) == 0 {
		h.setStatus(healthpb.HealthCheckResponse_SERVING)
	} else {
		h.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	}
	return failing
}

// Run checks immediately and then on every tick until ctx is done.
func (h *HealthChecker) Run(ctx context.Context) {
	h.Check(ctx)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.Check(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Shutdown marks every service NOT_SERVING and refuses later updates.
func (h *HealthChecker) Shutdown() {
	h.server.Shutdown()
}

func (h *HealthChecker) setStatus(status healthpb.HealthCheckResponse_ServingStatus) {
	h.server.SetServingStatus("", status)
	h.server.SetServingStatus(ServiceName, status)
}

// NewServer builds the gRPC server exposing health and reflection.
func NewServer(h *HealthChecker) *grpc.Server {
	srv := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthpb.RegisterHealthServer(srv, h.server)
	reflection.Register(srv)
	return srv
}
