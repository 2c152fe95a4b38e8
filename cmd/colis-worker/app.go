package main

import (
	"context"
	"time"

	"github.com/BearBump/ColisTrack/config"
	"github.com/BearBump/ColisTrack/internal/bootstrap"
	"github.com/BearBump/ColisTrack/internal/broker/kafka"
	"github.com/BearBump/ColisTrack/internal/cache/rediscache"
	"github.com/BearBump/ColisTrack/internal/integrations/carrier"
	"github.com/BearBump/ColisTrack/internal/models"
	"github.com/BearBump/ColisTrack/internal/services/history"
	"github.com/BearBump/ColisTrack/internal/services/notifications"
	"github.com/BearBump/ColisTrack/internal/services/poller"
	"golang.org/x/sync/errgroup"
)

type workerStorage struct {
	claims        poller.Repository
	history       history.Retainer
	notifications history.Retainer
	ping          func(ctx context.Context) error
}

type workerFactories struct {
	newStorage       func(ctx context.Context, cfg *config.Config) (st workerStorage, closeFn func(), err error)
	newCache         func(cfg *config.Config) (*rediscache.RedisCache, error)
	newProducer      func(cfg *config.Config) poller.Producer
	newCarrierClient func(cfg *config.Config, rc *rediscache.RedisCache) carrier.Client
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(ctx context.Context, cfg *config.Config) (workerStorage, func(), error) {
			st, err := bootstrap.OpenPostgres(ctx, cfg.Database.ConnString(), 60*time.Second)
			if err != nil {
				return workerStorage{}, nil, err
			}
			return workerStorage{
				claims:        st,
				history:       history.New(st),
				notifications: notifications.New(st),
				ping:          st.Ping,
			}, st.Close, nil
		},
		newCache: func(cfg *config.Config) (*rediscache.RedisCache, error) {
			return bootstrap.OpenRedis(cfg.Redis)
		},
		newProducer: func(cfg *config.Config) poller.Producer {
			return kafka.NewProducer(cfg.Kafka.Brokers())
		},
		newCarrierClient: bootstrap.NewCarrier,
	}
}

type workerRunOpts struct {
	swaggerPath string
	onListen    func(httpAddr string)
}

// RunColisWorker runs the refresh poller, both retention purgers and the ops
// HTTP server until ctx is done or one of them fails.
func RunColisWorker(ctx context.Context, cfg *config.Config, f workerFactories, opts workerRunOpts) error {
	bootstrap.ApplyDefaults(cfg)
	ct := cfg.ColisTrack

	st, closeFn, err := f.newStorage(ctx, cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	rc, err := f.newCache(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	producer := f.newProducer(cfg)
	if c, ok := producer.(interface{ Close() error }); ok {
		defer func() { _ = c.Close() }()
	}

	p := poller.New(st.claims, f.newCarrierClient(cfg, rc), producer, rc.RateLimiter(), cfg.Kafka.TrackingUpdatedTopicName).
		WithSettings(
			time.Duration(ct.WorkerPollIntervalSeconds)*time.Second,
			ct.WorkerBatchSize,
			ct.WorkerConcurrency,
			time.Duration(ct.WorkerLeaseSeconds)*time.Second,
			int64(ct.WorkerRateLimitPerMinute),
		).
		WithCarrierRateLimit(models.CarrierFedEx, ct.WorkerRateLimitFedExPerMinute).
		WithPlanner(bootstrap.PlannerConfig(cfg))

	interval := time.Duration(cfg.Retention.PurgeIntervalMinutes) * time.Minute

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.Run(gctx) })
	g.Go(func() error {
		return history.NewPurger("history", st.history, cfg.Retention.HistoryDays, interval).Run(gctx)
	})
	g.Go(func() error {
		return history.NewPurger("notifications", st.notifications, cfg.Retention.NotificationDays, interval).Run(gctx)
	})
	g.Go(func() error {
		return runWorkerHTTPServer(gctx, workerHTTPOpts{
			httpAddr:    ct.WorkerHTTPAddr,
			swaggerPath: opts.swaggerPath,
			onListen:    opts.onListen,
			poller:      p,
			cfg:         cfg,
			ready:       readiness(st.ping, rc.Ping),
		})
	})
	return g.Wait()
}

func readiness(checks ...func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		for _, check := range checks {
			if check == nil {
				continue
			}
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}
