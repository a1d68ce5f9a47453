package results

import (
	"context"
	"sync"
	"time"

	"github.com/DeLoWaN/openfront-discord-bot/internal/eventbus"
	"github.com/DeLoWaN/openfront-discord-bot/internal/openfront"
	"github.com/DeLoWaN/openfront-discord-bot/internal/storage"
	"github.com/DeLoWaN/openfront-discord-bot/pkg/logx"
)

// Feed is the slice of the upstream client used by the pipeline.
type Feed interface {
	ListLobbies(ctx context.Context) ([]string, error)
	FetchMatch(ctx context.Context, matchID string) (*openfront.MatchDetail, error)
}

// Discovery polls the public lobby listing and enqueues newly seen match ids
// for resolution. It never fetches match detail itself.
type Discovery struct {
	feed  Feed
	store storage.Store
	bus   eventbus.Bus
	log   logx.Logger

	mu       sync.Mutex
	interval time.Duration
}

func NewDiscovery(feed Feed, store storage.Store, bus eventbus.Bus, interval time.Duration, log logx.Logger) *Discovery {
	if interval < time.Second {
		interval = time.Second
	}
	return &Discovery{feed: feed, store: store, bus: bus, interval: interval, log: log}
}

// SetInterval adjusts the poll cadence. Takes effect after the current tick.
func (d *Discovery) SetInterval(interval time.Duration) {
	if interval < time.Second {
		interval = time.Second
	}
	d.mu.Lock()
	d.interval = interval
	d.mu.Unlock()
}

func (d *Discovery) tickInterval() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.interval
}

// Run polls until ctx is canceled. A rate-limit answer parks the loop for
// the upstream's retry window instead of the normal tick.
func (d *Discovery) Run(ctx context.Context) error {
	for {
		wait := d.tickInterval()
		if err := d.tick(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if delay, ok := openfront.AsRateLimited(err); ok {
				wait = delay
			} else {
				d.log.Warn("lobby poll failed", logx.Err(err))
			}
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

func (d *Discovery) tick(ctx context.Context) error {
	ids, err := d.feed.ListLobbies(ctx)
	if err != nil {
		return err
	}
	now := time.Now()
	for _, id := range ids {
		created, err := d.store.TrackMatch(ctx, id, now, now)
		if err != nil {
			d.log.Error("track match failed", logx.String("match_id", id), logx.Err(err))
			continue
		}
		if created {
			d.log.Info("match discovered", logx.String("match_id", id))
			d.bus.Publish(eventbus.Event{Type: eventbus.EventMatchDiscovered, Time: now, Data: id})
		}
	}
	return nil
}
