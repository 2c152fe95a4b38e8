package poller

import (
	"math/rand"
	"sync"
	"time"

	"github.com/BearBump/ColisTrack/internal/models"
)

type Rand interface {
	Intn(n int) int
}

// PlannerConfig decides when a tracking number is checked again. Zero fields
// take the DefaultPlannerConfig value.
type PlannerConfig struct {
	DeliveredDelay time.Duration

	// in transit checks are spread over [min, max]
	InTransitMinDelay time.Duration
	InTransitMaxDelay time.Duration

	PendingDelay   time.Duration
	ExceptionDelay time.Duration
	UnknownDelay   time.Duration

	// failed lookups: first, second, third and every later retry
	Backoff1 time.Duration
	Backoff2 time.Duration
	Backoff3 time.Duration
	Backoff4 time.Duration
}

func DefaultPlannerConfig() PlannerConfig {
	return PlannerConfig{
		DeliveredDelay: 365 * 24 * time.Hour,

		InTransitMinDelay: 30 * time.Minute,
		InTransitMaxDelay: 120 * time.Minute,

		PendingDelay:   3 * time.Hour,
		ExceptionDelay: 45 * time.Minute,
		UnknownDelay:   90 * time.Minute,

		Backoff1: 5 * time.Minute,
		Backoff2: 15 * time.Minute,
		Backoff3: 30 * time.Minute,
		Backoff4: 60 * time.Minute,
	}
}

func orDefault(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

// Planner is safe for concurrent use.
type Planner struct {
	cfg     PlannerConfig
	backoff []time.Duration

	mu sync.Mutex
	r  Rand
}

func NewPlanner(cfg PlannerConfig, r Rand) *Planner {
	def := DefaultPlannerConfig()
	cfg.DeliveredDelay = orDefault(cfg.DeliveredDelay, def.DeliveredDelay)
	cfg.InTransitMinDelay = orDefault(cfg.InTransitMinDelay, def.InTransitMinDelay)
	cfg.InTransitMaxDelay = orDefault(cfg.InTransitMaxDelay, def.InTransitMaxDelay)
	if cfg.InTransitMaxDelay < cfg.InTransitMinDelay {
		cfg.InTransitMaxDelay = cfg.InTransitMinDelay
	}
	cfg.PendingDelay = orDefault(cfg.PendingDelay, def.PendingDelay)
	cfg.ExceptionDelay = orDefault(cfg.ExceptionDelay, def.ExceptionDelay)
	cfg.UnknownDelay = orDefault(cfg.UnknownDelay, def.UnknownDelay)
	cfg.Backoff1 = orDefault(cfg.Backoff1, def.Backoff1)
	cfg.Backoff2 = orDefault(cfg.Backoff2, def.Backoff2)
	cfg.Backoff3 = orDefault(cfg.Backoff3, def.Backoff3)
	cfg.Backoff4 = orDefault(cfg.Backoff4, def.Backoff4)

	if r == nil {
		r = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Planner{
		cfg:     cfg,
		backoff: []time.Duration{cfg.Backoff1, cfg.Backoff2, cfg.Backoff3, cfg.Backoff4},
		r:       r,
	}
}

// NextCheckDelay is the wait after a successful lookup that reported status.
func (p *Planner) NextCheckDelay(status string) time.Duration {
	switch status {
	case models.TrackingStatusDelivered:
		return p.cfg.DeliveredDelay
	case models.TrackingStatusInTransit:
		return p.inTransitDelay()
	case models.TrackingStatusPending:
		return p.cfg.PendingDelay
	case models.TrackingStatusException:
		return p.cfg.ExceptionDelay
	default:
		return p.cfg.UnknownDelay
	}
}

func (p *Planner) inTransitDelay() time.Duration {
	secMin := int(p.cfg.InTransitMinDelay.Seconds())
	secMax := int(p.cfg.InTransitMaxDelay.Seconds())
	if secMax <= secMin {
		return p.cfg.InTransitMinDelay
	}
	p.mu.Lock()
	jitter := p.r.Intn(secMax - secMin + 1)
	p.mu.Unlock()
	return time.Duration(secMin+jitter) * time.Second
}

// BackoffDelay is the wait after the nth consecutive failed lookup.
func (p *Planner) BackoffDelay(failCount int32) time.Duration {
	i := int(failCount) - 1
	if i < 0 {
		i = 0
	}
	if i >= len(p.backoff) {
		i = len(p.backoff) - 1
	}
	return p.backoff[i]
}
