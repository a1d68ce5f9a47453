package storage

import (
	"context"
	"time"

	logx "github.com/DeLoWaN/openfront-discord-bot/pkg/logx"
)

// Store is the persistence API used by the results pipeline.
//
// All mutating operations use row-level atomic upsert semantics so the
// discovery loop and resolution workers can operate concurrently without
// lost updates.
type Store interface {
	// TrackMatch inserts a new tracked match unless the id is already tracked
	// or already present in the posted ledger for any consumer. Returns true
	// if a record was created.
	TrackMatch(ctx context.Context, matchID string, now, nextAttempt time.Time) (bool, error)

	// ListDueMatches returns up to limit tracked matches with
	// nextAttemptAt <= now, in no particular order.
	ListDueMatches(ctx context.Context, now time.Time, limit int) ([]TrackedMatch, error)

	// RescheduleMatch moves a tracked match's next attempt forward.
	RescheduleMatch(ctx context.Context, matchID string, next time.Time) error

	// NoteMatchFailure increments the unexpected-failure count. If the count
	// now exceeds limit the record is deleted and dropped=true is returned;
	// otherwise the match is rescheduled to next.
	NoteMatchFailure(ctx context.Context, matchID string, next time.Time, limit int) (dropped bool, err error)

	// RemoveMatch deletes a tracked match. Removing an absent id is not an error.
	RemoveMatch(ctx context.Context, matchID string) error

	WasPosted(ctx context.Context, consumerID, matchID string) (bool, error)

	// RecordPost writes a dedup-ledger entry. Recording an existing pair is a
	// no-op, which keeps delivery idempotent under double fan-out.
	RecordPost(ctx context.Context, consumerID, matchID string, at time.Time) error

	// PrunePosted deletes ledger entries older than cutoff and reports how
	// many were removed.
	PrunePosted(ctx context.Context, cutoff time.Time) (int64, error)

	ListConsumers(ctx context.Context) ([]Consumer, error)
	UpsertConsumer(ctx context.Context, id string, enabled bool, channelID string) error
	AddConsumerTag(ctx context.Context, consumerID, tag string) error
	BindName(ctx context.Context, consumerID, playerName, subscriberID string) error

	Close() error
}

// Open initializes the SQLite store at cfg.Path, creating the schema if needed.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	return openSQLite(cfg, log)
}
