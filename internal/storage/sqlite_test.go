package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/DeLoWaN/openfront-discord-bot/pkg/logx"
)

func openTest(t *testing.T) Store {
	t.Helper()
	st, err := Open(Config{Path: filepath.Join(t.TempDir(), "test.db")}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestTrackMatchOncePerID(t *testing.T) {
	ctx := context.Background()
	st := openTest(t)
	now := time.Now()

	created, err := st.TrackMatch(ctx, "m1", now, now)
	if err != nil || !created {
		t.Fatalf("first track: created=%v err=%v", created, err)
	}
	created, err = st.TrackMatch(ctx, "m1", now, now)
	if err != nil || created {
		t.Fatalf("duplicate track: created=%v err=%v", created, err)
	}
}

func TestTrackMatchSkipsPosted(t *testing.T) {
	ctx := context.Background()
	st := openTest(t)
	if err := st.RecordPost(ctx, "g1", "m1", time.Now()); err != nil {
		t.Fatal(err)
	}
	created, err := st.TrackMatch(ctx, "m1", time.Now(), time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Fatal("already-posted match must not be re-tracked")
	}
}

func TestListDueMatchesHonorsSchedule(t *testing.T) {
	ctx := context.Background()
	st := openTest(t)
	now := time.Now()
	st.TrackMatch(ctx, "due", now, now.Add(-time.Second))
	st.TrackMatch(ctx, "later", now, now.Add(time.Hour))

	due, err := st.ListDueMatches(ctx, now, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 1 || due[0].MatchID != "due" {
		t.Fatalf("due = %+v", due)
	}
}

func TestRescheduleIsMonotonic(t *testing.T) {
	ctx := context.Background()
	st := openTest(t)
	now := time.Now()
	st.TrackMatch(ctx, "m1", now, now.Add(time.Minute))

	// Moving backwards is ignored; nextAttemptAt never decreases.
	if err := st.RescheduleMatch(ctx, "m1", now.Add(-time.Minute)); err != nil {
		t.Fatal(err)
	}
	if due, _ := st.ListDueMatches(ctx, now, 10); len(due) != 0 {
		t.Fatal("reschedule moved nextAttemptAt backwards")
	}

	if err := st.RescheduleMatch(ctx, "m1", now.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	due, _ := st.ListDueMatches(ctx, now.Add(2*time.Hour), 10)
	if len(due) != 1 {
		t.Fatal("match lost after reschedule")
	}
}

func TestNoteMatchFailureDropsPastLimit(t *testing.T) {
	ctx := context.Background()
	st := openTest(t)
	now := time.Now()
	st.TrackMatch(ctx, "m1", now, now)

	for i := 1; i <= 2; i++ {
		dropped, err := st.NoteMatchFailure(ctx, "m1", now.Add(time.Minute), 2)
		if err != nil {
			t.Fatal(err)
		}
		if dropped {
			t.Fatalf("dropped after %d failures with limit 2", i)
		}
	}
	dropped, err := st.NoteMatchFailure(ctx, "m1", now.Add(time.Minute), 2)
	if err != nil {
		t.Fatal(err)
	}
	if !dropped {
		t.Fatal("third failure must exceed limit 2")
	}
	if due, _ := st.ListDueMatches(ctx, now.Add(time.Hour), 10); len(due) != 0 {
		t.Fatal("dropped match still tracked")
	}
}

func TestRecordPostIdempotent(t *testing.T) {
	ctx := context.Background()
	st := openTest(t)
	at := time.Now()
	if err := st.RecordPost(ctx, "g1", "m1", at); err != nil {
		t.Fatal(err)
	}
	if err := st.RecordPost(ctx, "g1", "m1", at.Add(time.Hour)); err != nil {
		t.Fatalf("repeat record must be a no-op: %v", err)
	}
	posted, err := st.WasPosted(ctx, "g1", "m1")
	if err != nil || !posted {
		t.Fatalf("posted=%v err=%v", posted, err)
	}
	if posted, _ := st.WasPosted(ctx, "g2", "m1"); posted {
		t.Fatal("ledger must be per consumer")
	}
}

func TestPrunePosted(t *testing.T) {
	ctx := context.Background()
	st := openTest(t)
	now := time.Now()
	st.RecordPost(ctx, "g1", "old", now.Add(-8*24*time.Hour))
	st.RecordPost(ctx, "g1", "new", now)

	n, err := st.PrunePosted(ctx, now.Add(-7*24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("pruned = %d, want 1", n)
	}
	if posted, _ := st.WasPosted(ctx, "g1", "new"); !posted {
		t.Fatal("recent record pruned")
	}
	if posted, _ := st.WasPosted(ctx, "g1", "old"); posted {
		t.Fatal("expired record survived")
	}
}

func TestConsumerRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := openTest(t)
	if err := st.UpsertConsumer(ctx, "g1", true, "chan-1"); err != nil {
		t.Fatal(err)
	}
	if err := st.AddConsumerTag(ctx, "g1", "abc"); err != nil {
		t.Fatal(err)
	}
	if err := st.AddConsumerTag(ctx, "g1", "abc"); err != nil {
		t.Fatalf("repeat tag add must be a no-op: %v", err)
	}
	if err := st.BindName(ctx, "g1", "alice", "u1"); err != nil {
		t.Fatal(err)
	}
	if err := st.BindName(ctx, "g1", "alice", "u2"); err != nil {
		t.Fatal(err)
	}

	consumers, err := st.ListConsumers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(consumers) != 1 {
		t.Fatalf("consumers = %d", len(consumers))
	}
	c := consumers[0]
	if c.ID != "g1" || !c.Enabled || c.ChannelID != "chan-1" {
		t.Fatalf("consumer = %+v", c)
	}
	if len(c.Tags) != 1 || c.Tags[0] != "ABC" {
		t.Fatalf("tags = %v, want normalized [ABC]", c.Tags)
	}
	if ids := c.NameBindings["alice"]; len(ids) != 2 {
		t.Fatalf("bindings = %v, want both identities", c.NameBindings)
	}

	// Upsert flips fields in place.
	if err := st.UpsertConsumer(ctx, "g1", false, "chan-2"); err != nil {
		t.Fatal(err)
	}
	consumers, _ = st.ListConsumers(ctx)
	if consumers[0].Enabled || consumers[0].ChannelID != "chan-2" {
		t.Fatalf("after upsert: %+v", consumers[0])
	}
}
