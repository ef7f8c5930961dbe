package probe

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/keithlinneman/platform-demo/internal/log"
	"github.com/keithlinneman/platform-demo/internal/xerrors"
)

// GRPC is up when the target's grpc.health.v1 service reports SERVING for
// service ("" means the whole server).
type GRPC struct {
	conn    *grpc.ClientConn
	client  healthpb.HealthClient
	service string
}

// NewGRPC creates a lazy client; no connection is made until the first check.
// Without options the connection is plaintext.
func NewGRPC(target, service string, opts ...grpc.DialOption) (*GRPC, error) {
	if target == "" {
		return nil, xerrors.Wrap(ErrInvalidConfiguration, "grpc probe target is empty")
	}
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, xerrors.Wrapf(ErrInvalidConfiguration, "grpc probe target %q: %v", target, err)
	}
	return &GRPC{conn: conn, client: healthpb.NewHealthClient(conn), service: service}, nil
}

func (p *GRPC) Check(ctx context.Context, name string) (Result, error) {
	return Timed(func(ctx context.Context) (bool, error) {
		resp, err := p.client.Check(ctx, &healthpb.HealthCheckRequest{Service: p.service})
		if err != nil {
			log.FromContext(ctx).Debug(ctx, "grpc probe failed", "health_check_name", name, "err", err)
			return false, nil
		}
		return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
	}).Check(ctx, name)
}

func (p *GRPC) Close() error { return p.conn.Close() }
