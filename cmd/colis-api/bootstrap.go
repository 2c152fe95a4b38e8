package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/ColisTrack/config"
	"github.com/BearBump/ColisTrack/internal/api/rest"
	"github.com/BearBump/ColisTrack/internal/bootstrap"
	"github.com/BearBump/ColisTrack/internal/broker/kafka"
	"github.com/BearBump/ColisTrack/internal/cache/rediscache"
	"github.com/BearBump/ColisTrack/internal/services/trackings"
	"github.com/BearBump/ColisTrack/internal/storage/pgstore"
)

type colisAPIApp struct {
	ctx      context.Context
	cancel   context.CancelFunc
	opts     colisAPIOpts
	handler  http.Handler
	svc      *trackings.Service
	consumer *kafka.Consumer
	st       *pgstore.Storage
	rc       *rediscache.RedisCache
}

func mustBootstrapColisAPI() *colisAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	bootstrap.ApplyDefaults(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	st, err := bootstrap.OpenPostgres(ctx, cfg.Database.ConnString(), 60*time.Second)
	if err != nil {
		cancel()
		panic(err)
	}
	rc, err := bootstrap.OpenRedis(cfg.Redis)
	if err != nil {
		cancel()
		st.Close()
		panic(err)
	}

	svcs := bootstrap.NewServices(cfg, st, rc, bootstrap.NewCarrier(cfg, rc))
	handler := rest.New(rest.Deps{
		Trackings:     svcs.Trackings,
		Colis:         svcs.Colis,
		History:       svcs.History,
		Notifications: svcs.Notifications,
		WebhookSecret: cfg.Security.WebhookSecret,
		SwaggerPath:   os.Getenv("swaggerPath"),
	})

	topic := cfg.Kafka.TrackingUpdatedTopicName
	group := cfg.ColisTrack.KafkaConsumerGroup

	return &colisAPIApp{
		ctx:    ctx,
		cancel: cancel,
		opts: colisAPIOpts{
			httpAddr:      cfg.ColisTrack.HTTPAddr,
			topic:         topic,
			consumerGroup: group,
		},
		handler:  handler,
		svc:      svcs.Trackings,
		consumer: kafka.NewConsumer(cfg.Kafka.Brokers(), topic, group),
		st:       st,
		rc:       rc,
	}
}

func (a *colisAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	if a.rc != nil {
		_ = a.rc.Close()
	}
	if a.st != nil {
		a.st.Close()
	}
}

func (a *colisAPIApp) Run() error {
	return runColisAPI(a.ctx, a.opts, a.handler, a.svc, a.consumer)
}
