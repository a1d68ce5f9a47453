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

const dueCheckInterval = time.Second

// WorkerOptions are the tunables of the resolution worker. Zero values take
// the documented defaults.
type WorkerOptions struct {
	RetryDelay   time.Duration // reschedule cadence for unfinished matches
	FailureLimit int           // unexpected failures before a match is dropped
	BatchLimit   int           // due records claimed per pass
	Workers      int           // concurrent detail fetches
}

func (o WorkerOptions) withDefaults() WorkerOptions {
	if o.RetryDelay <= 0 {
		o.RetryDelay = 60 * time.Second
	}
	if o.FailureLimit <= 0 {
		o.FailureLimit = 5
	}
	if o.BatchLimit <= 0 {
		o.BatchLimit = 25
	}
	if o.Workers <= 0 {
		o.Workers = 2
	}
	return o
}

// Worker drains due tracked matches, fetches each match's detail exactly
// once, and hands successful fetches to fan-out. Fetches for distinct
// matches run concurrently; fetches for the same match are serialized by
// claiming the id before dispatch.
type Worker struct {
	feed   Feed
	store  storage.Store
	fanout *Fanout
	bus    eventbus.Bus
	log    logx.Logger

	mu       sync.Mutex
	opts     WorkerOptions
	inflight map[string]bool

	queue chan string
}

func NewWorker(feed Feed, store storage.Store, fanout *Fanout, bus eventbus.Bus, opts WorkerOptions, log logx.Logger) *Worker {
	opts = opts.withDefaults()
	return &Worker{
		feed:     feed,
		store:    store,
		fanout:   fanout,
		bus:      bus,
		log:      log,
		opts:     opts,
		inflight: make(map[string]bool),
		queue:    make(chan string, opts.BatchLimit),
	}
}

// SetOptions updates the dynamic tunables. The worker pool size is fixed at
// Run time; a changed Workers value applies on restart.
func (w *Worker) SetOptions(opts WorkerOptions) {
	opts = opts.withDefaults()
	w.mu.Lock()
	opts.Workers = w.opts.Workers
	w.opts = opts
	w.mu.Unlock()
}

func (w *Worker) snapshot() WorkerOptions {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.opts
}

// Run starts the fetch pool and the due-check loop, returning when ctx is
// canceled and all in-flight attempts have finished.
func (w *Worker) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < w.snapshot().Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case id := <-w.queue:
					w.attempt(ctx, id)
					w.release(id)
				}
			}
		}()
	}

	ticker := time.NewTicker(dueCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil
		case <-ticker.C:
			w.dispatchDue(ctx)
		}
	}
}

// dispatchDue claims due records and feeds them to the pool. A record whose
// id is already in flight is skipped; it stays due and is picked up again
// once the running attempt releases it.
func (w *Worker) dispatchDue(ctx context.Context) {
	opts := w.snapshot()
	due, err := w.store.ListDueMatches(ctx, time.Now(), opts.BatchLimit)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Error("list due matches failed", logx.Err(err))
		}
		return
	}
	for _, m := range due {
		if !w.claim(m.MatchID) {
			continue
		}
		select {
		case w.queue <- m.MatchID:
		case <-ctx.Done():
			w.release(m.MatchID)
			return
		default:
			// Pool saturated; the record stays due for the next pass.
			w.release(m.MatchID)
		}
	}
}

func (w *Worker) claim(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.inflight[id] {
		return false
	}
	w.inflight[id] = true
	return true
}

func (w *Worker) release(id string) {
	w.mu.Lock()
	delete(w.inflight, id)
	w.mu.Unlock()
}

func (w *Worker) attempt(ctx context.Context, id string) {
	opts := w.snapshot()
	detail, err := w.feed.FetchMatch(ctx, id)
	switch {
	case err == nil:
		w.resolved(ctx, detail)
	case ctx.Err() != nil:
		// Shutdown mid-fetch; the durable record retries after restart.
	case openfront.IsNotFound(err):
		// Not finished yet. Fixed cadence, failure count untouched.
		w.reschedule(ctx, id, time.Now().Add(opts.RetryDelay))
	default:
		if delay, ok := openfront.AsRateLimited(err); ok {
			w.reschedule(ctx, id, time.Now().Add(delay))
			return
		}
		w.failed(ctx, id, err, opts)
	}
}

func (w *Worker) resolved(ctx context.Context, detail *openfront.MatchDetail) {
	w.fanout.Dispatch(ctx, detail)
	if err := w.store.RemoveMatch(ctx, detail.ID); err != nil {
		w.log.Error("remove resolved match failed", logx.String("match_id", detail.ID), logx.Err(err))
		return
	}
	w.bus.Publish(eventbus.Event{Type: eventbus.EventMatchResolved, Time: time.Now(), Data: detail.ID})
}

func (w *Worker) reschedule(ctx context.Context, id string, next time.Time) {
	if err := w.store.RescheduleMatch(ctx, id, next); err != nil && ctx.Err() == nil {
		w.log.Error("reschedule match failed", logx.String("match_id", id), logx.Err(err))
	}
}

func (w *Worker) failed(ctx context.Context, id string, cause error, opts WorkerOptions) {
	dropped, err := w.store.NoteMatchFailure(ctx, id, time.Now().Add(opts.RetryDelay), opts.FailureLimit)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Error("note match failure failed", logx.String("match_id", id), logx.Err(err))
		}
		return
	}
	if dropped {
		w.log.Warn("match dropped after repeated failures",
			logx.String("match_id", id),
			logx.Int("failure_limit", opts.FailureLimit),
			logx.Err(cause))
		w.bus.Publish(eventbus.Event{Type: eventbus.EventMatchDropped, Time: time.Now(), Data: id})
		return
	}
	w.log.Warn("match fetch failed, will retry", logx.String("match_id", id), logx.Err(cause))
}
