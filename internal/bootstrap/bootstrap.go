// Package bootstrap builds the storage, cache, carrier and services shared by
// colis-api, colis-worker and colisctl.
package bootstrap

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/BearBump/ColisTrack/config"
	"github.com/BearBump/ColisTrack/internal/barcode"
	"github.com/BearBump/ColisTrack/internal/broker/messages"
	"github.com/BearBump/ColisTrack/internal/cache/rediscache"
	"github.com/BearBump/ColisTrack/internal/integrations/carrier"
	"github.com/BearBump/ColisTrack/internal/integrations/carrier/fake"
	"github.com/BearBump/ColisTrack/internal/integrations/carrier/fedex"
	"github.com/BearBump/ColisTrack/internal/services/colis"
	"github.com/BearBump/ColisTrack/internal/services/history"
	"github.com/BearBump/ColisTrack/internal/services/notifications"
	"github.com/BearBump/ColisTrack/internal/services/poller"
	"github.com/BearBump/ColisTrack/internal/services/trackings"
	"github.com/BearBump/ColisTrack/internal/storage/pgstore"
	"github.com/pkg/errors"
)

// ApplyDefaults fills every unset setting the binaries rely on.
func ApplyDefaults(cfg *config.Config) {
	ct := &cfg.ColisTrack
	if ct.HTTPAddr == "" {
		ct.HTTPAddr = ":8080"
	}
	if ct.WorkerHTTPAddr == "" {
		ct.WorkerHTTPAddr = ":8082"
	}
	if ct.KafkaConsumerGroup == "" {
		ct.KafkaConsumerGroup = "colis-api"
	}
	if ct.CurrentStatusTTLSeconds <= 0 {
		ct.CurrentStatusTTLSeconds = 600
	}
	if ct.WorkerPollIntervalSeconds <= 0 {
		ct.WorkerPollIntervalSeconds = 2
	}
	if ct.WorkerBatchSize <= 0 {
		ct.WorkerBatchSize = 100
	}
	if ct.WorkerConcurrency <= 0 {
		ct.WorkerConcurrency = 10
	}
	if ct.WorkerLeaseSeconds <= 0 {
		ct.WorkerLeaseSeconds = 120
	}
	if ct.WorkerRateLimitPerMinute <= 0 {
		ct.WorkerRateLimitPerMinute = 120
	}

	if cfg.Kafka.TrackingUpdatedTopicName == "" {
		cfg.Kafka.TrackingUpdatedTopicName = messages.TopicTrackingUpdated
	}

	if cfg.FedEx.BaseURL == "" {
		cfg.FedEx.BaseURL = fedex.DefaultBaseURL
	}
	if cfg.FedEx.AuthURL == "" {
		cfg.FedEx.AuthURL = cfg.FedEx.BaseURL + "/oauth/token"
	}
	if cfg.FedEx.TimeoutSeconds <= 0 {
		cfg.FedEx.TimeoutSeconds = 10
	}

	if cfg.Storage.BarcodeDir == "" {
		cfg.Storage.BarcodeDir = filepath.Join("static", "barcodes")
	}
	if cfg.Storage.ProofDir == "" {
		cfg.Storage.ProofDir = filepath.Join("static", "proofs")
	}

	if cfg.Retention.HistoryDays == 0 {
		cfg.Retention.HistoryDays = 90
	}
	if cfg.Retention.NotificationDays == 0 {
		cfg.Retention.NotificationDays = 30
	}
	if cfg.Retention.PurgeIntervalMinutes <= 0 {
		cfg.Retention.PurgeIntervalMinutes = 60
	}
}

// OpenPostgres keeps retrying until the database accepts connections or wait elapses.
func OpenPostgres(ctx context.Context, connString string, wait time.Duration) (*pgstore.Storage, error) {
	deadline := time.Now().Add(wait)
	var lastErr error
	for {
		st, err := pgstore.New(connString)
		if err == nil {
			return st, nil
		}
		lastErr = err
		if time.Now().After(deadline) {
			return nil, errors.Wrapf(lastErr, "postgres is not ready after %s", wait)
		}
		slog.Warn("postgres not ready, retrying", "error", err.Error())
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

// OpenRedis prefers redis.url over host and port.
func OpenRedis(cfg config.RedisConfig) (*rediscache.RedisCache, error) {
	if cfg.URL != "" {
		return rediscache.NewFromURL(cfg.URL)
	}
	return rediscache.New(cfg.Addr()), nil
}

// NewCarrier returns the FedEx client when credentials are configured and the
// offline fake otherwise. rc may be nil, in which case tokens are cached in-process only.
func NewCarrier(cfg *config.Config, rc *rediscache.RedisCache) carrier.Client {
	if !cfg.FedEx.Enabled() {
		slog.Warn("fedex credentials missing, using the offline carrier")
		return fake.New()
	}

	var ts *fedex.TokenSource
	if rc != nil {
		ts = fedex.NewTokenSource(cfg.FedEx.AuthURL, cfg.FedEx.ClientID, cfg.FedEx.ClientSecret, rc).
			WithLocker(rc.Locker())
	} else {
		ts = fedex.NewTokenSource(cfg.FedEx.AuthURL, cfg.FedEx.ClientID, cfg.FedEx.ClientSecret, nil)
	}
	return fedex.New(cfg.FedEx.BaseURL, ts).
		WithProofDir(cfg.Storage.ProofDir).
		WithTimeout(time.Duration(cfg.FedEx.TimeoutSeconds) * time.Second)
}

// Services groups the domain services over one storage and cache.
type Services struct {
	Colis         *colis.Service
	Trackings     *trackings.Service
	History       *history.Service
	Notifications *notifications.Service
}

func NewServices(cfg *config.Config, st *pgstore.Storage, rc *rediscache.RedisCache, c carrier.Client) *Services {
	colisSvc := colis.New(st, barcode.NewGenerator(), barcode.NewImageStore(cfg.Storage.BarcodeDir))
	historySvc := history.New(st)
	notifSvc := notifications.New(st)

	ttl := time.Duration(cfg.ColisTrack.CurrentStatusTTLSeconds) * time.Second
	var trackSvc *trackings.Service
	if rc != nil {
		trackSvc = trackings.New(st, c, rc, ttl)
	} else {
		trackSvc = trackings.New(st, c, nil, ttl)
	}
	trackSvc.
		WithColis(colisSvc).
		WithHistory(historySvc).
		WithNotifier(notifSvc).
		WithScheduler(poller.NewPlanner(PlannerConfig(cfg), nil))

	return &Services{
		Colis:         colisSvc,
		Trackings:     trackSvc,
		History:       historySvc,
		Notifications: notifSvc,
	}
}

// PlannerConfig maps worker scheduling settings onto the planner. Zero values keep defaults.
func PlannerConfig(cfg *config.Config) poller.PlannerConfig {
	ct := cfg.ColisTrack
	sec := func(v int) time.Duration { return time.Duration(v) * time.Second }
	return poller.PlannerConfig{
		InTransitMinDelay: sec(ct.WorkerNextCheckInTransitMinSeconds),
		InTransitMaxDelay: sec(ct.WorkerNextCheckInTransitMaxSeconds),
		PendingDelay:      sec(ct.WorkerNextCheckPendingSeconds),
		ExceptionDelay:    sec(ct.WorkerNextCheckExceptionSeconds),
		UnknownDelay:      sec(ct.WorkerNextCheckUnknownSeconds),
		Backoff1:          sec(ct.WorkerBackoff1Seconds),
		Backoff2:          sec(ct.WorkerBackoff2Seconds),
		Backoff3:          sec(ct.WorkerBackoff3Seconds),
		Backoff4:          sec(ct.WorkerBackoff4Seconds),
	}
}
