package storage

import (
	"errors"
	"time"
)

var ErrClosed = errors.New("storage closed")

// Config configures storage.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// TrackedMatch is one entry of the durable resolution queue.
//
// Lifecycle: created by the discovery loop on first sighting, rescheduled or
// deleted by the resolution worker, never touched by delivery fan-out.
type TrackedMatch struct {
	MatchID       string
	FirstSeenAt   time.Time
	NextAttemptAt time.Time
	FailureCount  int
}

// PostedRecord is one dedup-ledger entry: consumer X was notified about match Y.
type PostedRecord struct {
	ConsumerID string
	MatchID    string
	PostedAt   time.Time
}

// Consumer is one isolated notification target (typically one guild channel).
//
// The pipeline treats these as read-only snapshots; mutation happens through
// the admin surface, not the hot path.
type Consumer struct {
	ID        string
	Enabled   bool
	ChannelID string
	Tags      []string

	// NameBindings maps an observed in-game player name to the subscriber
	// identities claiming it. A name renders as a mention only when exactly
	// one identity claims it.
	NameBindings map[string][]string
}
