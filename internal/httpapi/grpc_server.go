package httpapi

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"sportai.io/internal/license"
	"sportai.io/internal/obs"
)

const serviceName = "sportai.Suite"

// LicenseValidator is the part of license.Manager the health service needs.
type LicenseValidator interface {
	Validate() license.Status
}

// HealthServer reports SERVING over grpc.health.v1 while the license validates.
type HealthServer struct {
	*health.Server
	license LicenseValidator
}

// NewHealthServer creates the service and performs an initial Sync.
func NewHealthServer(l LicenseValidator) *HealthServer {
	h := &HealthServer{Server: health.NewServer(), license: l}
	h.Sync()
	return h
}

// Sync re-validates the license and publishes the result for both the overall
// server ("") and serviceName.
func (h *HealthServer) Sync() healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	st := h.license.Validate()
	if st.Valid {
		status = healthpb.HealthCheckResponse_SERVING
	}
	obs.SetLicenseValid(st.Valid)
	h.SetServingStatus("", status)
	h.SetServingStatus(serviceName, status)
	return status
}

// Run calls Sync every interval until ctx ends, so expiry is noticed without a restart.
func (h *HealthServer) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			h.Sync()
		}
	}
}

// NewGRPCServer returns a server with the health service registered.
func NewGRPCServer(h *HealthServer, opts ...grpc.ServerOption) *grpc.Server {
	s := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(s, h.Server)
	return s
}
