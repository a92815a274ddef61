package checks

import (
	"context"
	"net"

	"github.com/keithlinneman/linnemanlabs-healthprobe/internal/health"
	"github.com/keithlinneman/linnemanlabs-healthprobe/internal/xerrors"
)

// TCP passes if a connection to addr can be opened; it is closed immediately.
func TCP(addr string) health.CheckFunc {
	return func(ctx context.Context) error {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return xerrors.Wrapf(err, "tcp dial addr=%s", addr)
		}
		_ = conn.Close()
		return nil
	}
}
