package results

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DeLoWaN/openfront-discord-bot/internal/eventbus"
	"github.com/DeLoWaN/openfront-discord-bot/internal/openfront"
	"github.com/DeLoWaN/openfront-discord-bot/internal/storage"
	"github.com/DeLoWaN/openfront-discord-bot/pkg/logx"
)

func testStore(t *testing.T) storage.Store {
	t.Helper()
	st, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "test.db")}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

type fakeFeed struct {
	mu      sync.Mutex
	lobbies []string
	listErr error
	details map[string]*openfront.MatchDetail
	errs    map[string]error
	fetches map[string]int
}

func (f *fakeFeed) ListLobbies(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lobbies, f.listErr
}

func (f *fakeFeed) FetchMatch(ctx context.Context, id string) (*openfront.MatchDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetches == nil {
		f.fetches = make(map[string]int)
	}
	f.fetches[id]++
	if err := f.errs[id]; err != nil {
		return nil, err
	}
	if d := f.details[id]; d != nil {
		return d, nil
	}
	return nil, &openfront.APIError{Status: 404}
}

type sentMessage struct {
	target string
	msg    Message
}

type fakeDeliverer struct {
	mu   sync.Mutex
	fail error
	sent []sentMessage
}

func (d *fakeDeliverer) Deliver(ctx context.Context, target string, msg Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail != nil {
		return d.fail
	}
	d.sent = append(d.sent, sentMessage{target: target, msg: msg})
	return nil
}

func (d *fakeDeliverer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sent)
}

func addConsumer(t *testing.T, st storage.Store, id, channel string, tags ...string) {
	t.Helper()
	ctx := context.Background()
	if err := st.UpsertConsumer(ctx, id, true, channel); err != nil {
		t.Fatal(err)
	}
	for _, tag := range tags {
		if err := st.AddConsumerTag(ctx, id, tag); err != nil {
			t.Fatal(err)
		}
	}
}

func TestDiscoveryTracksNewMatchesOnce(t *testing.T) {
	ctx := context.Background()
	st := testStore(t)
	feed := &fakeFeed{lobbies: []string{"m1", "m2"}}
	d := NewDiscovery(feed, st, eventbus.New(), time.Second, logx.Nop())

	if err := d.tick(ctx); err != nil {
		t.Fatal(err)
	}
	due, err := st.ListDueMatches(ctx, time.Now(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 2 {
		t.Fatalf("due = %d, want 2", len(due))
	}

	// Same lobby snapshot again: no duplicates.
	if err := d.tick(ctx); err != nil {
		t.Fatal(err)
	}
	due, _ = st.ListDueMatches(ctx, time.Now(), 10)
	if len(due) != 2 {
		t.Fatalf("after second tick due = %d, want 2", len(due))
	}
}

func TestDiscoverySkipsPostedMatches(t *testing.T) {
	ctx := context.Background()
	st := testStore(t)
	if err := st.RecordPost(ctx, "g1", "m1", time.Now()); err != nil {
		t.Fatal(err)
	}
	feed := &fakeFeed{lobbies: []string{"m1"}}
	d := NewDiscovery(feed, st, eventbus.New(), time.Second, logx.Nop())
	if err := d.tick(ctx); err != nil {
		t.Fatal(err)
	}
	due, _ := st.ListDueMatches(ctx, time.Now(), 10)
	if len(due) != 0 {
		t.Fatalf("posted match re-tracked: %v", due)
	}
}

func newTestWorker(st storage.Store, feed Feed, deliver Deliverer, opts WorkerOptions) *Worker {
	bus := eventbus.New()
	fanout := NewFanout(st, deliver, bus, nil, logx.Nop())
	return NewWorker(feed, st, fanout, bus, opts, logx.Nop())
}

func TestWorkerNotFoundReschedulesFixedDelay(t *testing.T) {
	ctx := context.Background()
	st := testStore(t)
	now := time.Now()
	if _, err := st.TrackMatch(ctx, "m1", now, now); err != nil {
		t.Fatal(err)
	}
	feed := &fakeFeed{} // fetch answers not-found
	w := newTestWorker(st, feed, &fakeDeliverer{}, WorkerOptions{RetryDelay: 60 * time.Second})

	w.attempt(ctx, "m1")

	if due, _ := st.ListDueMatches(ctx, time.Now().Add(30*time.Second), 10); len(due) != 0 {
		t.Fatal("match due again before the 60s cadence")
	}
	due, _ := st.ListDueMatches(ctx, time.Now().Add(61*time.Second), 10)
	if len(due) != 1 {
		t.Fatal("match not rescheduled")
	}
	if due[0].FailureCount != 0 {
		t.Fatalf("failureCount = %d, not-found must not count", due[0].FailureCount)
	}
}

func TestWorkerDropsAfterFailureLimit(t *testing.T) {
	ctx := context.Background()
	st := testStore(t)
	now := time.Now()
	st.TrackMatch(ctx, "m1", now, now)
	feed := &fakeFeed{errs: map[string]error{"m1": errors.New("boom")}}
	w := newTestWorker(st, feed, &fakeDeliverer{}, WorkerOptions{FailureLimit: 1})

	w.attempt(ctx, "m1")
	due, _ := st.ListDueMatches(ctx, time.Now().Add(2*time.Minute), 10)
	if len(due) != 1 || due[0].FailureCount != 1 {
		t.Fatalf("after first failure: %+v", due)
	}

	w.attempt(ctx, "m1")
	due, _ = st.ListDueMatches(ctx, time.Now().Add(time.Hour), 10)
	if len(due) != 0 {
		t.Fatal("match not dropped after exceeding the failure limit")
	}
}

func TestWorkerSuccessDeliversAndRemoves(t *testing.T) {
	ctx := context.Background()
	st := testStore(t)
	addConsumer(t, st, "g1", "chan-1", "ABC")
	now := time.Now()
	st.TrackMatch(ctx, "m1", now, now)

	detail := teamMatch()
	feed := &fakeFeed{details: map[string]*openfront.MatchDetail{"m1": detail}}
	deliver := &fakeDeliverer{}
	w := newTestWorker(st, feed, deliver, WorkerOptions{})

	w.attempt(ctx, "m1")

	if deliver.count() != 1 {
		t.Fatalf("deliveries = %d, want 1", deliver.count())
	}
	if posted, _ := st.WasPosted(ctx, "g1", "m1"); !posted {
		t.Fatal("posted record missing")
	}
	if due, _ := st.ListDueMatches(ctx, time.Now().Add(time.Hour), 10); len(due) != 0 {
		t.Fatal("tracked record not removed after resolution")
	}
	if feed.fetches["m1"] != 1 {
		t.Fatalf("fetches = %d, want exactly one", feed.fetches["m1"])
	}
}

func TestWorkerClaimSerializesPerMatch(t *testing.T) {
	w := newTestWorker(testStore(t), &fakeFeed{}, &fakeDeliverer{}, WorkerOptions{})
	if !w.claim("m1") {
		t.Fatal("first claim must win")
	}
	if w.claim("m1") {
		t.Fatal("second claim while in flight must lose")
	}
	w.release("m1")
	if !w.claim("m1") {
		t.Fatal("claim after release must win")
	}
}

func TestFanoutDedupAndIsolation(t *testing.T) {
	ctx := context.Background()
	st := testStore(t)
	addConsumer(t, st, "g1", "chan-1", "ABC")
	addConsumer(t, st, "g2", "chan-2", "ABC")
	addConsumer(t, st, "g3", "chan-3", "ZZZ") // no overlap, never posted

	deliver := &fakeDeliverer{}
	f := NewFanout(st, deliver, eventbus.New(), nil, logx.Nop())

	f.Dispatch(ctx, teamMatch())
	if deliver.count() != 2 {
		t.Fatalf("deliveries = %d, want the two matching consumers", deliver.count())
	}
	if posted, _ := st.WasPosted(ctx, "g3", "m1"); posted {
		t.Fatal("not-relevant consumer must not get a dedup record")
	}

	// Second pass over the same match is a no-op.
	f.Dispatch(ctx, teamMatch())
	if deliver.count() != 2 {
		t.Fatalf("repeat dispatch delivered again: %d", deliver.count())
	}
}

func TestFanoutDeliveryFailureLeavesMatchEligible(t *testing.T) {
	ctx := context.Background()
	st := testStore(t)
	addConsumer(t, st, "g1", "chan-1", "ABC")

	deliver := &fakeDeliverer{fail: errors.New("send failed")}
	f := NewFanout(st, deliver, eventbus.New(), nil, logx.Nop())

	f.Dispatch(ctx, teamMatch())
	if posted, _ := st.WasPosted(ctx, "g1", "m1"); posted {
		t.Fatal("failed delivery must not write a dedup record")
	}

	// The next pass, while the match is still live, retries and succeeds.
	deliver.fail = nil
	f.Dispatch(ctx, teamMatch())
	if deliver.count() != 1 {
		t.Fatalf("deliveries = %d, want 1", deliver.count())
	}
	if posted, _ := st.WasPosted(ctx, "g1", "m1"); !posted {
		t.Fatal("successful retry must record the post")
	}
}

func TestFanoutSkipsDisabledConsumers(t *testing.T) {
	ctx := context.Background()
	st := testStore(t)
	addConsumer(t, st, "g1", "chan-1", "ABC")
	if err := st.UpsertConsumer(ctx, "g1", false, "chan-1"); err != nil {
		t.Fatal(err)
	}

	deliver := &fakeDeliverer{}
	f := NewFanout(st, deliver, eventbus.New(), nil, logx.Nop())
	f.Dispatch(ctx, teamMatch())
	if deliver.count() != 0 {
		t.Fatal("disabled consumer must be skipped")
	}
}

func TestFanoutMentionsBoundNames(t *testing.T) {
	ctx := context.Background()
	st := testStore(t)
	addConsumer(t, st, "g1", "chan-1", "ABC")
	if err := st.BindName(ctx, "g1", "Alice", "u1"); err != nil {
		t.Fatal(err)
	}

	deliver := &fakeDeliverer{}
	f := NewFanout(st, deliver, eventbus.New(), nil, logx.Nop())
	f.Dispatch(ctx, teamMatch())
	if deliver.count() != 1 {
		t.Fatal("want one delivery")
	}
	var winners string
	for _, field := range deliver.sent[0].msg.Fields {
		if field.Name == "Winners" {
			winners = field.Value
		}
	}
	if want := "<@u1> (alice)"; !strings.Contains(winners, want) {
		t.Fatalf("winners field %q missing mention %q", winners, want)
	}
}
