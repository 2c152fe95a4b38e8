package poller

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/ColisTrack/internal/broker/messages"
	"github.com/BearBump/ColisTrack/internal/integrations/carrier"
	"github.com/BearBump/ColisTrack/internal/models"
	"github.com/pkg/errors"
)

type Repository interface {
	ClaimDueTrackings(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.TrackingRecord, error)
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

type Poller struct {
	repo     Repository
	carrier  carrier.Client
	producer Producer
	rl       RateLimiter

	topic string

	planner *Planner

	pollInterval       time.Duration
	batchSize          int
	concurrency        int
	lease              time.Duration
	rateLimitPerMinute int64
	carrierLimits      map[string]int64
	publishAttempts    int
	publishBackoff     time.Duration

	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalClaimed        atomic.Int64
	totalProcessed      atomic.Int64
	totalErrors         atomic.Int64
	totalThrottled      atomic.Int64
	inFlight            atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(repo Repository, carrier carrier.Client, producer Producer, rl RateLimiter, topic string) *Poller {
	return &Poller{
		repo: repo, carrier: carrier, producer: producer, rl: rl, topic: topic,
		planner:            DefaultPlanner(),
		pollInterval:       2 * time.Second,
		batchSize:          100,
		concurrency:        10,
		lease:              120 * time.Second,
		rateLimitPerMinute: 120,
		carrierLimits:      map[string]int64{},
		publishAttempts:    10,
		publishBackoff:     150 * time.Millisecond,
		triggerCh:          make(chan struct{}, 1),
		startedAtUnixNano:  time.Now().UTC().UnixNano(),
	}
}

func DefaultPlanner() *Planner {
	return NewPlanner(DefaultPlannerConfig(), nil)
}

func (p *Poller) WithSettings(pollInterval time.Duration, batchSize, concurrency int, lease time.Duration, rlPerMin int64) *Poller {
	if pollInterval > 0 {
		p.pollInterval = pollInterval
	}
	if batchSize > 0 {
		p.batchSize = batchSize
	}
	if concurrency > 0 {
		p.concurrency = concurrency
	}
	if lease > 0 {
		p.lease = lease
	}
	if rlPerMin > 0 {
		p.rateLimitPerMinute = rlPerMin
	}
	return p
}

func (p *Poller) WithPlanner(cfg PlannerConfig) *Poller {
	p.planner = NewPlanner(cfg, nil)
	return p
}

// Planner returns the schedule used for next checks.
func (p *Poller) Planner() *Planner {
	return p.planner
}

// Trigger forces an immediate poll cycle (best-effort, non-blocking).
func (p *Poller) Trigger() {
	p.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case p.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt      time.Time  `json:"started_at"`
	LastCycleAt    *time.Time `json:"last_cycle_at,omitempty"`
	LastTriggerAt  *time.Time `json:"last_trigger_at,omitempty"`
	TotalClaimed   int64      `json:"total_claimed"`
	TotalProcessed int64      `json:"total_processed"`
	TotalErrors    int64      `json:"total_errors"`
	TotalThrottled int64      `json:"total_throttled"`
	InFlight       int64      `json:"in_flight"`
	LastError      string     `json:"last_error,omitempty"`
}

func (p *Poller) Stats() Stats {
	st := Stats{
		StartedAt:      time.Unix(0, p.startedAtUnixNano).UTC(),
		TotalClaimed:   p.totalClaimed.Load(),
		TotalProcessed: p.totalProcessed.Load(),
		TotalErrors:    p.totalErrors.Load(),
		TotalThrottled: p.totalThrottled.Load(),
		InFlight:       p.inFlight.Load(),
	}
	if n := p.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := p.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	p.lastErrorMu.Lock()
	st.LastError = p.lastError
	p.lastErrorMu.Unlock()
	return st
}

// WithCarrierRateLimit overrides the per minute limit for one carrier.
func (p *Poller) WithCarrierRateLimit(carrierName string, perMin int) *Poller {
	if perMin > 0 {
		p.carrierLimits[carrierName] = int64(perMin)
	}
	return p
}

func (p *Poller) Run(ctx context.Context) error {
	t := time.NewTicker(p.pollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			p.runOnce(ctx)
		case <-p.triggerCh:
			p.runOnce(ctx)
		}
	}
}

func (p *Poller) runOnce(ctx context.Context) {
	now := time.Now().UTC()
	p.lastCycleUnixNano.Store(now.UnixNano())

	items, err := p.repo.ClaimDueTrackings(ctx, now, p.batchSize, p.lease)
	if err != nil {
		slog.Error("claim due trackings", "error", err.Error())
		p.setLastError(err)
		return
	}
	p.totalClaimed.Add(int64(len(items)))

	sem := make(chan struct{}, p.concurrency)
	var wg sync.WaitGroup
	for _, tr := range items {
		sem <- struct{}{}
		wg.Add(1)
		trCopy := tr
		p.inFlight.Add(1)
		go func() {
			defer func() {
				p.inFlight.Add(-1)
				<-sem
				wg.Done()
			}()
			if err := p.processOne(ctx, trCopy); err != nil {
				p.totalErrors.Add(1)
				p.setLastError(err)
				slog.Error("process tracking", "tracking_number", trCopy.TrackingNumber, "error", err.Error())
			}
			p.totalProcessed.Add(1)
		}()
	}
	wg.Wait()
}

func (p *Poller) setLastError(err error) {
	p.lastErrorMu.Lock()
	p.lastError = err.Error()
	p.lastErrorMu.Unlock()
}

func (p *Poller) processOne(ctx context.Context, tr *models.TrackingRecord) error {
	now := time.Now().UTC()

	if p.rl != nil && p.rateLimitPerMinute > 0 {
		limit := p.rateLimitPerMinute
		if l, ok := p.carrierLimits[tr.Carrier]; ok {
			limit = l
		}

		allowed, n, err := p.rl.Allow(ctx, "carrier:"+tr.Carrier, limit, time.Minute)
		if err != nil {
			return err
		}
		if !allowed {
			// the claim lease runs out and the tracking is picked up in a later window
			slog.Warn("rate limit exceeded, lookup deferred",
				"carrier", tr.Carrier, "tracking_number", tr.TrackingNumber, "count", n, "limit", limit)
			p.totalThrottled.Add(1)
			return nil
		}
	}

	res := p.carrier.Track(ctx, tr.TrackingNumber)

	var next time.Time
	if res.Success && res.Data != nil {
		next = now.Add(p.planner.NextCheckDelay(res.Data.Status))
	} else {
		next = now.Add(p.planner.BackoffDelay(tr.CheckFailCount + 1))
		slog.Warn("carrier lookup failed", "tracking_number", tr.TrackingNumber, "error", res.Error)
	}
	msg := messages.FromResult(tr.TrackingNumber, res, now, next)
	if msg.Error != nil && tr.Carrier != "" {
		msg.Carrier = tr.Carrier
	}

	b, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal kafka msg")
	}

	// Kafka may still be starting when the worker comes up.
	key := []byte(tr.TrackingNumber)
	var pubErr error
	for i := 0; i < p.publishAttempts; i++ {
		if pubErr = p.producer.Publish(ctx, p.topic, key, b); pubErr == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(i+1) * p.publishBackoff):
		}
	}
	return errors.Wrap(pubErr, "publish tracking update")
}
