package checks

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/keithlinneman/linnemanlabs-healthprobe/internal/health"
	"github.com/keithlinneman/linnemanlabs-healthprobe/internal/xerrors"
)

// DialGRPC creates a lazily-connecting plaintext client for target.
func DialGRPC(target string) (*grpc.ClientConn, error) {
	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, xerrors.Wrapf(err, "grpc client target=%s", target)
	}
	return conn, nil
}

// GRPC calls grpc.health.v1.Health/Check for service ("" = the whole
// server) and passes only on SERVING.
func GRPC(conn grpc.ClientConnInterface, service string) health.CheckFunc {
	client := healthpb.NewHealthClient(conn)
	return func(ctx context.Context) error {
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		if err != nil {
			return xerrors.Wrapf(err, "grpc health service=%q", service)
		}
		if st := resp.GetStatus(); st != healthpb.HealthCheckResponse_SERVING {
			return xerrors.Newf("grpc health service=%q: %s", service, st)
		}
		return nil
	}
}
