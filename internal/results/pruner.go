package results

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/DeLoWaN/openfront-discord-bot/internal/storage"
	"github.com/DeLoWaN/openfront-discord-bot/pkg/logx"
)

// Pruner removes dedup-ledger entries older than the retention window on a
// cron schedule. Off the hot path; a missed run only delays cleanup.
type Pruner struct {
	store    storage.Store
	schedule string
	log      logx.Logger

	mu        sync.Mutex
	retention time.Duration
}

func NewPruner(store storage.Store, schedule string, retention time.Duration, log logx.Logger) *Pruner {
	if schedule == "" {
		schedule = "0 4 * * *"
	}
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	return &Pruner{store: store, schedule: schedule, retention: retention, log: log}
}

// SetRetention adjusts the window. The schedule itself is fixed at Run time.
func (p *Pruner) SetRetention(d time.Duration) {
	if d <= 0 {
		return
	}
	p.mu.Lock()
	p.retention = d
	p.mu.Unlock()
}

func (p *Pruner) window() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.retention
}

// Run installs the cron job and blocks until ctx is canceled.
func (p *Pruner) Run(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(p.schedule, func() { p.prune(ctx) }); err != nil {
		return err
	}
	c.Start()
	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done()
	return nil
}

func (p *Pruner) prune(ctx context.Context) {
	cutoff := time.Now().Add(-p.window())
	n, err := p.store.PrunePosted(ctx, cutoff)
	if err != nil {
		if ctx.Err() == nil {
			p.log.Error("prune posted records failed", logx.Err(err))
		}
		return
	}
	if n > 0 {
		p.log.Info("pruned posted records", logx.Int64("removed", n), logx.Time("cutoff", cutoff))
	}
}
