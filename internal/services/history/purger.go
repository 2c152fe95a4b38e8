package history

import (
	"context"
	"log/slog"
	"time"
)

// Retainer drops records older than a number of days.
type Retainer interface {
	DeleteOlderThan(ctx context.Context, days int) (int64, error)
}

// Purger applies a retention period on a fixed interval.
type Purger struct {
	name     string
	target   Retainer
	days     int
	interval time.Duration
}

func NewPurger(name string, target Retainer, days int, interval time.Duration) *Purger {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Purger{name: name, target: target, days: days, interval: interval}
}

// Run purges once immediately and then every interval until ctx is done.
func (p *Purger) Run(ctx context.Context) error {
	t := time.NewTicker(p.interval)
	defer t.Stop()

	p.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			p.runOnce(ctx)
		}
	}
}

func (p *Purger) runOnce(ctx context.Context) {
	if p.days <= 0 {
		return
	}
	n, err := p.target.DeleteOlderThan(ctx, p.days)
	if err != nil {
		slog.Error("retention purge", "target", p.name, "error", err.Error())
		return
	}
	if n > 0 {
		slog.Info("retention purge", "target", p.name, "deleted", n, "days", p.days)
	}
}
