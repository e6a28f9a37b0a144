package backend

import (
	"context"
	"fmt"

	"github.com/santinotanus/medtrace/internal/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// GRPCHealthPinger checks liveness with the standard gRPC health protocol,
// for deployments that expose a health sidecar next to the REST gateway.
type GRPCHealthPinger struct {
	conn    *grpc.ClientConn
	client  healthpb.HealthClient
	service string
}

var _ Pinger = (*GRPCHealthPinger)(nil)

// NewGRPCHealthPinger connects lazily to addr. An empty service asks for
// the overall server status.
func NewGRPCHealthPinger(addr, service string) (*GRPCHealthPinger, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	return &GRPCHealthPinger{conn: conn, client: healthpb.NewHealthClient(conn), service: service}, nil
}

func (p *GRPCHealthPinger) Ping(ctx context.Context) error {
	resp, err := p.client.Check(ctx, &healthpb.HealthCheckRequest{Service: p.service})
	if err != nil {
		return mapStatusError(err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return common.ErrUnavailable
	}
	return nil
}

func (p *GRPCHealthPinger) Close() error {
	return p.conn.Close()
}

func mapStatusError(err error) error {
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return common.ErrUnauthorized
	case codes.Unavailable, codes.DeadlineExceeded:
		return common.ErrUnavailable
	case codes.NotFound:
		return common.ErrNotFound
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
