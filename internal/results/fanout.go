package results

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DeLoWaN/openfront-discord-bot/internal/eventbus"
	"github.com/DeLoWaN/openfront-discord-bot/internal/openfront"
	"github.com/DeLoWaN/openfront-discord-bot/internal/storage"
	"github.com/DeLoWaN/openfront-discord-bot/pkg/logx"
)

// ErrTargetGone marks a delivery failure as permanent: the destination no
// longer exists or is no longer writable. Adapters wrap it so fan-out can
// log it apart from transient failures; neither kind writes a dedup record.
var ErrTargetGone = errors.New("delivery target gone")

// Deliverer sends a formatted notification to one destination.
type Deliverer interface {
	Deliver(ctx context.Context, target string, msg Message) error
}

// Fanout evaluates one resolved match against every consumer: dedup check,
// outcome resolution, delivery, ledger write. Consumers are independent; a
// failure for one never blocks another.
type Fanout struct {
	store   storage.Store
	deliver Deliverer
	bus     eventbus.Bus
	log     logx.Logger

	mu       sync.Mutex
	resolver Resolver
}

func NewFanout(store storage.Store, deliver Deliverer, bus eventbus.Bus, excludedModes []string, log logx.Logger) *Fanout {
	return &Fanout{
		store:    store,
		deliver:  deliver,
		bus:      bus,
		log:      log,
		resolver: Resolver{ExcludedModes: excludedModes},
	}
}

// SetExcludedModes replaces the closed list of mode descriptors that never
// produce a notification.
func (f *Fanout) SetExcludedModes(modes []string) {
	f.mu.Lock()
	f.resolver = Resolver{ExcludedModes: modes}
	f.mu.Unlock()
}

func (f *Fanout) snapshot() Resolver {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resolver
}

// Dispatch runs one fan-out pass for a resolved match. The same MatchDetail
// is reused for every consumer; nothing is re-fetched. Safe to run twice for
// the same match: the dedup ledger makes repeat deliveries no-ops.
func (f *Fanout) Dispatch(ctx context.Context, detail *openfront.MatchDetail) {
	consumers, err := f.store.ListConsumers(ctx)
	if err != nil {
		if ctx.Err() == nil {
			f.log.Error("list consumers failed", logx.String("match_id", detail.ID), logx.Err(err))
		}
		return
	}
	resolver := f.snapshot()
	for _, c := range consumers {
		if !c.Enabled || len(c.Tags) == 0 || c.ChannelID == "" {
			continue
		}
		f.dispatchOne(ctx, &resolver, c, detail)
	}
}

func (f *Fanout) dispatchOne(ctx context.Context, resolver *Resolver, c storage.Consumer, detail *openfront.MatchDetail) {
	log := f.log.With(logx.String("consumer_id", c.ID), logx.String("match_id", detail.ID))

	posted, err := f.store.WasPosted(ctx, c.ID, detail.ID)
	if err != nil {
		if ctx.Err() == nil {
			log.Error("dedup check failed", logx.Err(err))
		}
		return
	}
	if posted {
		return
	}

	outcome, ok := resolver.Resolve(detail, tagSet(c.Tags), nameBindings(c.NameBindings))
	if !ok {
		// Not relevant to this consumer. No record is written, so an
		// unrelated later pass is unaffected.
		return
	}

	deliveryID := uuid.NewString()
	log = log.With(logx.String("delivery_id", deliveryID))
	if err := f.deliver.Deliver(ctx, c.ChannelID, Format(outcome)); err != nil {
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, ErrTargetGone) {
			log.Warn("delivery target gone", logx.String("channel_id", c.ChannelID), logx.Err(err))
		} else {
			log.Error("delivery failed", logx.Err(err))
		}
		f.bus.Publish(eventbus.Event{Type: eventbus.EventDeliveryFailed, Time: time.Now(), Data: deliveryID})
		return
	}
	if err := f.store.RecordPost(ctx, c.ID, detail.ID, time.Now()); err != nil {
		log.Error("record post failed", logx.Err(err))
		return
	}
	log.Info("result delivered", logx.Any("winning_tags", outcome.WinningTags))
	f.bus.Publish(eventbus.Event{Type: eventbus.EventDeliverySent, Time: time.Now(), Data: deliveryID})
}

func tagSet(tags []string) map[string]bool {
	set := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t != "" {
			set[t] = true
		}
	}
	return set
}

// nameBindings lowercases binding keys so mention lookup is
// case-insensitive on the observed player name.
func nameBindings(m map[string][]string) map[string][]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string][]string, len(m))
	for name, ids := range m {
		key := strings.ToLower(strings.TrimSpace(name))
		out[key] = append(out[key], ids...)
	}
	return out
}
