package feedstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/go-go-golems/chatfeed/pkg/chat"
)

// InMemoryStore is a size-limited, in-memory Store implementation. It mirrors
// the ordering semantics of the SQLite store so hydration behaves the same in
// both deployments.
type InMemoryStore struct {
	mu                 sync.Mutex
	maxMessagesPerFeed int
	feeds              map[string]*inMemFeed
	records            map[string]FeedRecord
}

type inMemFeed struct {
	version  uint64
	messages map[string]VersionedMessage
}

var _ Store = &InMemoryStore{}

func NewInMemoryStore(maxMessagesPerFeed int) *InMemoryStore {
	if maxMessagesPerFeed <= 0 {
		maxMessagesPerFeed = 5000
	}
	return &InMemoryStore{
		maxMessagesPerFeed: maxMessagesPerFeed,
		feeds:              map[string]*inMemFeed{},
		records:            map[string]FeedRecord{},
	}
}

func (s *InMemoryStore) Close() error { return nil }

func (s *InMemoryStore) UpsertMessage(_ context.Context, feedID string, version uint64, rec chat.MessageRecord) error {
	if s == nil {
		return errors.New("in-memory feed store: nil store")
	}
	feedID = strings.TrimSpace(feedID)
	if feedID == "" {
		return errors.New("in-memory feed store: feedID is empty")
	}
	if rec.ID == "" {
		return errors.New("in-memory feed store: message ID is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.feeds[feedID]
	if f == nil {
		f = &inMemFeed{messages: map[string]VersionedMessage{}}
		s.feeds[feedID] = f
	}
	existing, ok := f.messages[rec.ID]
	if ok && existing.Version > version {
		// stale update, newer projection already stored
		return nil
	}
	f.messages[rec.ID] = VersionedMessage{Version: version, MessageRecord: rec}
	if version > f.version {
		f.version = version
	}
	s.evictLocked(f)
	return nil
}

func (s *InMemoryStore) evictLocked(f *inMemFeed) {
	if len(f.messages) <= s.maxMessagesPerFeed {
		return
	}
	ordered := make([]VersionedMessage, 0, len(f.messages))
	for _, m := range f.messages {
		ordered = append(ordered, m)
	}
	sortVersioned(ordered)
	for _, m := range ordered[:len(ordered)-s.maxMessagesPerFeed] {
		delete(f.messages, m.ID)
	}
}

func (s *InMemoryStore) DeleteMessage(_ context.Context, feedID, messageID string) error {
	if s == nil {
		return errors.New("in-memory feed store: nil store")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if f := s.feeds[feedID]; f != nil {
		delete(f.messages, messageID)
	}
	return nil
}

func (s *InMemoryStore) ClearMessages(_ context.Context, feedID string) error {
	if s == nil {
		return errors.New("in-memory feed store: nil store")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if f := s.feeds[feedID]; f != nil {
		f.messages = map[string]VersionedMessage{}
	}
	return nil
}

func (s *InMemoryStore) GetSnapshot(_ context.Context, feedID string, sinceVersion uint64, limit int) (Snapshot, error) {
	if s == nil {
		return Snapshot{}, errors.New("in-memory feed store: nil store")
	}
	feedID = strings.TrimSpace(feedID)
	if feedID == "" {
		return Snapshot{}, errors.New("in-memory feed store: feedID is empty")
	}
	if limit <= 0 {
		limit = 1000
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{FeedID: feedID}
	f := s.feeds[feedID]
	if f == nil {
		return snap, nil
	}
	snap.Version = f.version
	for _, m := range f.messages {
		if m.Version > sinceVersion {
			snap.Messages = append(snap.Messages, m)
		}
	}
	sortVersioned(snap.Messages)
	if len(snap.Messages) > limit {
		snap.Messages = snap.Messages[:limit]
	}
	return snap, nil
}

func (s *InMemoryStore) UpsertFeed(_ context.Context, record FeedRecord) error {
	if s == nil {
		return errors.New("in-memory feed store: nil store")
	}
	now := time.Now().UnixMilli()
	record = normalizeFeedRecord(record, now)
	if record.FeedID == "" {
		return errors.New("in-memory feed store: feedID is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.FeedID] = mergeFeedRecord(s.records[record.FeedID], record, now)
	return nil
}

func (s *InMemoryStore) GetFeed(_ context.Context, feedID string) (FeedRecord, bool, error) {
	if s == nil {
		return FeedRecord{}, false, errors.New("in-memory feed store: nil store")
	}
	feedID = strings.TrimSpace(feedID)
	if feedID == "" {
		return FeedRecord{}, false, errors.New("in-memory feed store: feedID is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[feedID]
	if !ok {
		return FeedRecord{}, false, nil
	}
	return record, true, nil
}

func (s *InMemoryStore) ListFeeds(_ context.Context, limit int, sinceMs int64) ([]FeedRecord, error) {
	if s == nil {
		return nil, errors.New("in-memory feed store: nil store")
	}
	if limit <= 0 {
		limit = 200
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	records := make([]FeedRecord, 0, len(s.records))
	for _, r := range s.records {
		if sinceMs > 0 && r.LastActivityMs < sinceMs {
			continue
		}
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].LastActivityMs != records[j].LastActivityMs {
			return records[i].LastActivityMs > records[j].LastActivityMs
		}
		return records[i].FeedID < records[j].FeedID
	})
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func sortVersioned(messages []VersionedMessage) {
	sort.Slice(messages, func(i, j int) bool {
		if messages[i].Version != messages[j].Version {
			return messages[i].Version < messages[j].Version
		}
		return messages[i].ID < messages[j].ID
	})
}
