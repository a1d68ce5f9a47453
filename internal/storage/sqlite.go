package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "github.com/DeLoWaN/openfront-discord-bot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- tracked matches ----

func (s *sqliteStore) TrackMatch(ctx context.Context, matchID string, now, nextAttempt time.Time) (bool, error) {
	if s == nil || s.db == nil {
		return false, ErrClosed
	}
	if matchID == "" {
		return false, nil
	}
	// The posted-ledger guard keeps already-delivered matches from re-entering
	// the queue after their tracked record is gone.
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tracked_match(match_id, first_seen_at, next_attempt_at, failure_count)
		 SELECT ?, ?, ?, 0
		 WHERE NOT EXISTS (SELECT 1 FROM posted_match WHERE match_id = ?)
		 ON CONFLICT(match_id) DO NOTHING`,
		matchID, now.UnixMilli(), nextAttempt.UnixMilli(), matchID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *sqliteStore) ListDueMatches(ctx context.Context, now time.Time, limit int) ([]TrackedMatch, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = 25
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT match_id, first_seen_at, next_attempt_at, failure_count
		 FROM tracked_match
		 WHERE next_attempt_at <= ?
		 LIMIT ?`,
		now.UnixMilli(), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TrackedMatch
	for rows.Next() {
		var (
			m        TrackedMatch
			seen     int64
			next     int64
			failures int
		)
		if err := rows.Scan(&m.MatchID, &seen, &next, &failures); err != nil {
			return nil, err
		}
		m.FirstSeenAt = time.UnixMilli(seen)
		m.NextAttemptAt = time.UnixMilli(next)
		m.FailureCount = failures
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *sqliteStore) RescheduleMatch(ctx context.Context, matchID string, next time.Time) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	// nextAttemptAt only ever moves forward.
	_, err := s.db.ExecContext(ctx,
		`UPDATE tracked_match SET next_attempt_at = MAX(next_attempt_at, ?) WHERE match_id = ?`,
		next.UnixMilli(), matchID,
	)
	return err
}

func (s *sqliteStore) NoteMatchFailure(ctx context.Context, matchID string, next time.Time, limit int) (bool, error) {
	if s == nil || s.db == nil {
		return false, ErrClosed
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE tracked_match SET failure_count = failure_count + 1 WHERE match_id = ?`, matchID)
	if err != nil {
		return false, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return false, err
	} else if n == 0 {
		// Record was removed concurrently; nothing to count against.
		return false, tx.Commit()
	}

	var failures int
	if err := tx.QueryRowContext(ctx,
		`SELECT failure_count FROM tracked_match WHERE match_id = ?`, matchID).Scan(&failures); err != nil {
		return false, err
	}

	if failures > limit {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM tracked_match WHERE match_id = ?`, matchID); err != nil {
			return false, err
		}
		return true, tx.Commit()
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE tracked_match SET next_attempt_at = MAX(next_attempt_at, ?) WHERE match_id = ?`,
		next.UnixMilli(), matchID); err != nil {
		return false, err
	}
	return false, tx.Commit()
}

func (s *sqliteStore) RemoveMatch(ctx context.Context, matchID string) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM tracked_match WHERE match_id = ?`, matchID)
	return err
}

// ---- posted ledger ----

func (s *sqliteStore) WasPosted(ctx context.Context, consumerID, matchID string) (bool, error) {
	if s == nil || s.db == nil {
		return false, ErrClosed
	}
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM posted_match WHERE consumer_id = ? AND match_id = ?`,
		consumerID, matchID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *sqliteStore) RecordPost(ctx context.Context, consumerID, matchID string, at time.Time) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO posted_match(consumer_id, match_id, posted_at) VALUES(?,?,?)
		 ON CONFLICT(consumer_id, match_id) DO NOTHING`,
		consumerID, matchID, at.UnixMilli(),
	)
	return err
}

func (s *sqliteStore) PrunePosted(ctx context.Context, cutoff time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrClosed
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM posted_match WHERE posted_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ---- consumers ----

func (s *sqliteStore) ListConsumers(ctx context.Context) ([]Consumer, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, enabled, channel_id FROM consumer ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Consumer
	idx := map[string]int{}
	for rows.Next() {
		var (
			c       Consumer
			enabled int
		)
		if err := rows.Scan(&c.ID, &enabled, &c.ChannelID); err != nil {
			return nil, err
		}
		c.Enabled = enabled != 0
		c.NameBindings = map[string][]string{}
		idx[c.ID] = len(out)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tagRows, err := s.db.QueryContext(ctx, `SELECT consumer_id, tag FROM consumer_tag ORDER BY consumer_id, tag`)
	if err != nil {
		return nil, err
	}
	defer tagRows.Close()
	for tagRows.Next() {
		var id, tag string
		if err := tagRows.Scan(&id, &tag); err != nil {
			return nil, err
		}
		if i, ok := idx[id]; ok {
			out[i].Tags = append(out[i].Tags, tag)
		}
	}
	if err := tagRows.Err(); err != nil {
		return nil, err
	}

	bindRows, err := s.db.QueryContext(ctx,
		`SELECT consumer_id, player_name, subscriber_id FROM name_binding ORDER BY consumer_id, player_name`)
	if err != nil {
		return nil, err
	}
	defer bindRows.Close()
	for bindRows.Next() {
		var id, name, sub string
		if err := bindRows.Scan(&id, &name, &sub); err != nil {
			return nil, err
		}
		if i, ok := idx[id]; ok {
			out[i].NameBindings[name] = append(out[i].NameBindings[name], sub)
		}
	}
	return out, bindRows.Err()
}

func (s *sqliteStore) UpsertConsumer(ctx context.Context, id string, enabled bool, channelID string) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	en := 0
	if enabled {
		en = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO consumer(id, enabled, channel_id) VALUES(?,?,?)
		 ON CONFLICT(id) DO UPDATE SET enabled=excluded.enabled, channel_id=excluded.channel_id`,
		id, en, channelID,
	)
	return err
}

func (s *sqliteStore) AddConsumerTag(ctx context.Context, consumerID, tag string) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	tag = strings.ToUpper(strings.TrimSpace(tag))
	if tag == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO consumer_tag(consumer_id, tag) VALUES(?,?)
		 ON CONFLICT(consumer_id, tag) DO NOTHING`,
		consumerID, tag,
	)
	return err
}

func (s *sqliteStore) BindName(ctx context.Context, consumerID, playerName, subscriberID string) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	if strings.TrimSpace(playerName) == "" || strings.TrimSpace(subscriberID) == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO name_binding(consumer_id, player_name, subscriber_id) VALUES(?,?,?)
		 ON CONFLICT(consumer_id, player_name, subscriber_id) DO NOTHING`,
		consumerID, playerName, subscriberID,
	)
	return err
}
