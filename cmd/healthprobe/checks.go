package main

import (
	"context"
	"errors"

	"github.com/keithlinneman/linnemanlabs-healthprobe/internal/cfg"
	"github.com/keithlinneman/linnemanlabs-healthprobe/internal/checks"
	"github.com/keithlinneman/linnemanlabs-healthprobe/internal/health"
	"github.com/keithlinneman/linnemanlabs-healthprobe/internal/log"
	"github.com/keithlinneman/linnemanlabs-healthprobe/internal/xerrors"
)

// buildChecks registers one check per configured dependency. Names listed in
// OptionalChecks only degrade the verdict. The returned func releases clients.
func buildChecks(ctx context.Context, conf cfg.App) (*health.Aggregator, func(), error) {
	agg := health.NewAggregator(health.AggregatorConfig{
		Timeout:        conf.CheckTimeout,
		MaxConcurrency: conf.CheckConcurrency,
	})

	var closers []func() error
	closeAll := func() {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		if err := errors.Join(errs...); err != nil {
			log.FromContext(ctx).Warn(context.Background(), "closing check clients", "error", err)
		}
	}
	register := func(name string, p health.Probe) {
		if conf.OptionalChecks.Contains(name) {
			agg.RegisterOptional(name, p)
			return
		}
		agg.Register(name, p)
	}
	fail := func(err error) (*health.Aggregator, func(), error) {
		closeAll()
		return nil, func() {}, err
	}

	if conf.PostgresDSN != "" {
		db, err := checks.OpenPostgres(conf.PostgresDSN)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, db.Close)
		register("postgres", checks.Postgres(db))
	}
	if conf.RedisAddr != "" {
		rc := checks.NewRedisClient(conf.RedisAddr, conf.RedisPassword, conf.RedisDB)
		closers = append(closers, rc.Close)
		register("redis", checks.Redis(rc))
	}
	if conf.GRPCTarget != "" {
		conn, err := checks.DialGRPC(conf.GRPCTarget)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, conn.Close)
		register("grpc", checks.GRPC(conn, conf.GRPCService))
	}
	if conf.S3Bucket != "" {
		client, err := checks.NewS3Client(ctx, conf.S3Region)
		if err != nil {
			return fail(xerrors.Wrap(err, "s3 check"))
		}
		register("s3", checks.S3Bucket(client, conf.S3Bucket))
	}
	if len(conf.HTTPChecks) > 0 {
		client := checks.NewHTTPClient(conf.CheckTimeout)
		for _, u := range conf.HTTPChecks {
			register("http:"+u, checks.HTTP(client, u))
		}
	}
	for _, addr := range conf.TCPChecks {
		register("tcp:"+addr, checks.TCP(addr))
	}
	if conf.MaxHeapBytes > 0 {
		register("memory", checks.Memory(conf.MaxHeapBytes))
	}

	return agg, closeAll, nil
}
