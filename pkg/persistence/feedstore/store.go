// Package feedstore persists the durable projection of chat feeds: message
// records versioned per feed plus feed-level metadata, with snapshot
// retrieval for hydrating late joiners.
package feedstore

import (
	"context"
	"strings"

	"github.com/go-go-golems/chatfeed/pkg/chat"
)

// FeedRecord captures persisted feed-level metadata.
type FeedRecord struct {
	FeedID          string `json:"feed_id"`
	Responder       string `json:"responder"`
	CreatedAtMs     int64  `json:"created_at_ms"`
	LastActivityMs  int64  `json:"last_activity_ms"`
	LastSeenVersion uint64 `json:"last_seen_version"`
	Status          string `json:"status"`
	LastError       string `json:"last_error,omitempty"`
}

// VersionedMessage pairs a message record with the feed version that produced it.
type VersionedMessage struct {
	Version uint64 `json:"version"`
	chat.MessageRecord
}

// Snapshot is the ordered message set of one feed at a version.
type Snapshot struct {
	FeedID   string             `json:"feed_id"`
	Version  uint64             `json:"version"`
	Messages []VersionedMessage `json:"messages"`
}

// Store is the durable feed projection store. Message upserts carry the
// per-feed monotonic version assigned by the event publisher; GetSnapshot
// returns messages with version > sinceVersion in version order.
type Store interface {
	UpsertMessage(ctx context.Context, feedID string, version uint64, rec chat.MessageRecord) error
	DeleteMessage(ctx context.Context, feedID, messageID string) error
	ClearMessages(ctx context.Context, feedID string) error
	GetSnapshot(ctx context.Context, feedID string, sinceVersion uint64, limit int) (Snapshot, error)

	UpsertFeed(ctx context.Context, record FeedRecord) error
	GetFeed(ctx context.Context, feedID string) (FeedRecord, bool, error)
	ListFeeds(ctx context.Context, limit int, sinceMs int64) ([]FeedRecord, error)

	Close() error
}

func normalizeFeedRecord(record FeedRecord, nowMs int64) FeedRecord {
	record.FeedID = strings.TrimSpace(record.FeedID)
	if record.CreatedAtMs == 0 {
		record.CreatedAtMs = nowMs
	}
	if record.LastActivityMs == 0 {
		record.LastActivityMs = nowMs
	}
	if record.Status == "" {
		record.Status = "active"
	}
	return record
}

func mergeFeedRecord(existing, incoming FeedRecord, nowMs int64) FeedRecord {
	if existing.FeedID == "" {
		return incoming
	}
	if incoming.Responder != "" {
		existing.Responder = incoming.Responder
	}
	if existing.CreatedAtMs == 0 {
		existing.CreatedAtMs = incoming.CreatedAtMs
	}
	if incoming.LastActivityMs > existing.LastActivityMs {
		existing.LastActivityMs = incoming.LastActivityMs
	}
	if incoming.LastSeenVersion > existing.LastSeenVersion {
		existing.LastSeenVersion = incoming.LastSeenVersion
	}
	if incoming.Status != "" {
		existing.Status = incoming.Status
	}
	if incoming.LastError != "" {
		existing.LastError = incoming.LastError
	}
	if existing.LastActivityMs == 0 {
		existing.LastActivityMs = nowMs
	}
	return existing
}
