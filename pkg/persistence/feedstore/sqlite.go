package feedstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/go-go-golems/chatfeed/pkg/chat"
)

// SQLiteStore is the durable Store implementation on a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = &SQLiteStore{}

// SQLiteDSNForFile derives a DSN with sane defaults (WAL, busy timeout,
// foreign keys) for a plain file path.
func SQLiteDSNForFile(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("sqlite feed store: empty path")
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", url.PathEscape(path)), nil
}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, errors.New("sqlite feed store: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS feeds (
			feed_id TEXT PRIMARY KEY,
			responder TEXT NOT NULL DEFAULT '',
			created_at_ms INTEGER NOT NULL DEFAULT 0,
			last_activity_ms INTEGER NOT NULL DEFAULT 0,
			last_seen_version INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT '',
			last_error TEXT NOT NULL DEFAULT ''
		);
		CREATE TABLE IF NOT EXISTS feed_messages (
			feed_id TEXT NOT NULL,
			message_id TEXT NOT NULL,
			version INTEGER NOT NULL,
			payload TEXT NOT NULL,
			updated_at_ms INTEGER NOT NULL,
			PRIMARY KEY (feed_id, message_id)
		);
		CREATE INDEX IF NOT EXISTS idx_feed_messages_version
			ON feed_messages (feed_id, version);
	`)
	return errors.Wrap(err, "sqlite feed store: migrate")
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) UpsertMessage(ctx context.Context, feedID string, version uint64, rec chat.MessageRecord) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite feed store: db is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	feedID = strings.TrimSpace(feedID)
	if feedID == "" {
		return errors.New("sqlite feed store: feedID is empty")
	}
	if rec.ID == "" {
		return errors.New("sqlite feed store: message ID is empty")
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "sqlite feed store: encode message")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO feed_messages (feed_id, message_id, version, payload, updated_at_ms)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(feed_id, message_id) DO UPDATE SET
			version = CASE
				WHEN excluded.version > feed_messages.version THEN excluded.version
				ELSE feed_messages.version
			END,
			payload = CASE
				WHEN excluded.version >= feed_messages.version THEN excluded.payload
				ELSE feed_messages.payload
			END,
			updated_at_ms = excluded.updated_at_ms
	`, feedID, rec.ID, int64(version), string(payload), time.Now().UnixMilli())
	return errors.Wrap(err, "sqlite feed store: upsert message")
}

func (s *SQLiteStore) DeleteMessage(ctx context.Context, feedID, messageID string) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite feed store: db is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM feed_messages WHERE feed_id = ? AND message_id = ?`, feedID, messageID)
	return errors.Wrap(err, "sqlite feed store: delete message")
}

func (s *SQLiteStore) ClearMessages(ctx context.Context, feedID string) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite feed store: db is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM feed_messages WHERE feed_id = ?`, feedID)
	return errors.Wrap(err, "sqlite feed store: clear messages")
}

func (s *SQLiteStore) GetSnapshot(ctx context.Context, feedID string, sinceVersion uint64, limit int) (Snapshot, error) {
	if s == nil || s.db == nil {
		return Snapshot{}, errors.New("sqlite feed store: db is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	feedID = strings.TrimSpace(feedID)
	if feedID == "" {
		return Snapshot{}, errors.New("sqlite feed store: feedID is empty")
	}
	if limit <= 0 {
		limit = 1000
	}

	snap := Snapshot{FeedID: feedID}
	row := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM feed_messages WHERE feed_id = ?`, feedID)
	var version int64
	if err := row.Scan(&version); err != nil {
		return Snapshot{}, errors.Wrap(err, "sqlite feed store: read version")
	}
	snap.Version = uint64(version)

	rows, err := s.db.QueryContext(ctx, `
		SELECT version, payload FROM feed_messages
		WHERE feed_id = ? AND version > ?
		ORDER BY version ASC, message_id ASC
		LIMIT ?
	`, feedID, int64(sinceVersion), limit)
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "sqlite feed store: query snapshot")
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var v int64
		var payload string
		if err := rows.Scan(&v, &payload); err != nil {
			return Snapshot{}, errors.Wrap(err, "sqlite feed store: scan message")
		}
		var rec chat.MessageRecord
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return Snapshot{}, errors.Wrap(err, "sqlite feed store: decode message")
		}
		snap.Messages = append(snap.Messages, VersionedMessage{Version: uint64(v), MessageRecord: rec})
	}
	return snap, errors.Wrap(rows.Err(), "sqlite feed store: iterate snapshot")
}

func (s *SQLiteStore) UpsertFeed(ctx context.Context, record FeedRecord) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite feed store: db is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	now := time.Now().UnixMilli()
	record = normalizeFeedRecord(record, now)
	if record.FeedID == "" {
		return errors.New("sqlite feed store: feedID is empty")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feeds (
			feed_id, responder, created_at_ms, last_activity_ms,
			last_seen_version, status, last_error
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(feed_id) DO UPDATE SET
			responder = CASE
				WHEN excluded.responder <> '' THEN excluded.responder
				ELSE feeds.responder
			END,
			created_at_ms = CASE
				WHEN feeds.created_at_ms > 0 THEN feeds.created_at_ms
				ELSE excluded.created_at_ms
			END,
			last_activity_ms = CASE
				WHEN excluded.last_activity_ms > feeds.last_activity_ms THEN excluded.last_activity_ms
				ELSE feeds.last_activity_ms
			END,
			last_seen_version = CASE
				WHEN excluded.last_seen_version > feeds.last_seen_version THEN excluded.last_seen_version
				ELSE feeds.last_seen_version
			END,
			status = CASE
				WHEN excluded.status <> '' THEN excluded.status
				ELSE feeds.status
			END,
			last_error = CASE
				WHEN excluded.last_error <> '' THEN excluded.last_error
				ELSE feeds.last_error
			END
	`, record.FeedID, record.Responder, record.CreatedAtMs, record.LastActivityMs,
		int64(record.LastSeenVersion), record.Status, record.LastError)
	return errors.Wrap(err, "sqlite feed store: upsert feed")
}

func (s *SQLiteStore) GetFeed(ctx context.Context, feedID string) (FeedRecord, bool, error) {
	if s == nil || s.db == nil {
		return FeedRecord{}, false, errors.New("sqlite feed store: db is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	feedID = strings.TrimSpace(feedID)
	if feedID == "" {
		return FeedRecord{}, false, errors.New("sqlite feed store: feedID is empty")
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT feed_id, responder, created_at_ms, last_activity_ms,
			last_seen_version, status, last_error
		FROM feeds WHERE feed_id = ?
	`, feedID)
	var record FeedRecord
	var lastSeenVersion int64
	err := row.Scan(&record.FeedID, &record.Responder, &record.CreatedAtMs,
		&record.LastActivityMs, &lastSeenVersion, &record.Status, &record.LastError)
	if errors.Is(err, sql.ErrNoRows) {
		return FeedRecord{}, false, nil
	}
	if err != nil {
		return FeedRecord{}, false, errors.Wrap(err, "sqlite feed store: get feed")
	}
	record.LastSeenVersion = uint64(lastSeenVersion)
	return record, true, nil
}

func (s *SQLiteStore) ListFeeds(ctx context.Context, limit int, sinceMs int64) ([]FeedRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("sqlite feed store: db is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if limit <= 0 {
		limit = 200
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT feed_id, responder, created_at_ms, last_activity_ms,
			last_seen_version, status, last_error
		FROM feeds
		WHERE last_activity_ms >= ?
		ORDER BY last_activity_ms DESC, feed_id ASC
		LIMIT ?
	`, sinceMs, limit)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite feed store: list feeds")
	}
	defer func() { _ = rows.Close() }()

	var records []FeedRecord
	for rows.Next() {
		var record FeedRecord
		var lastSeenVersion int64
		if err := rows.Scan(&record.FeedID, &record.Responder, &record.CreatedAtMs,
			&record.LastActivityMs, &lastSeenVersion, &record.Status, &record.LastError); err != nil {
			return nil, errors.Wrap(err, "sqlite feed store: scan feed")
		}
		record.LastSeenVersion = uint64(lastSeenVersion)
		records = append(records, record)
	}
	return records, errors.Wrap(rows.Err(), "sqlite feed store: iterate feeds")
}
