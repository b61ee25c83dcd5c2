package webfeed

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatfeed/pkg/persistence/feedstore"
)

func (fm *FeedManager) SetEvictionConfig(idle, interval time.Duration) {
	if fm == nil {
		return
	}
	fm.mu.Lock()
	fm.evictIdle = idle
	fm.evictInterval = interval
	fm.mu.Unlock()
}

func (fm *FeedManager) StartEvictionLoop(ctx context.Context) {
	if fm == nil {
		return
	}
	if ctx == nil {
		panic("webfeed: StartEvictionLoop requires non-nil ctx")
	}
	fm.mu.Lock()
	if fm.evictRunning {
		fm.mu.Unlock()
		return
	}
	idle := fm.evictIdle
	interval := fm.evictInterval
	if idle <= 0 || interval <= 0 {
		fm.mu.Unlock()
		return
	}
	fm.evictRunning = true
	fm.mu.Unlock()

	go fm.runEvictionLoop(ctx, interval)
}

func (fm *FeedManager) runEvictionLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fm.mu.Lock()
			fm.evictRunning = false
			fm.mu.Unlock()
			return
		case now := <-ticker.C:
			fm.evictIdleOnce(now)
		}
	}
}

func (fm *FeedManager) evictIdleOnce(now time.Time) int {
	if fm == nil {
		return 0
	}
	if now.IsZero() {
		now = time.Now()
	}

	fm.mu.Lock()
	idle := fm.evictIdle
	if idle <= 0 {
		fm.mu.Unlock()
		return 0
	}
	feeds := make([]*ManagedFeed, 0, len(fm.feeds))
	for _, mf := range fm.feeds {
		feeds = append(feeds, mf)
	}
	fm.mu.Unlock()

	evicted := 0
	for _, mf := range feeds {
		if mf == nil {
			continue
		}
		if !fm.shouldEvictFeed(now, idle, mf) {
			continue
		}
		fm.mu.Lock()
		current, ok := fm.feeds[mf.ID]
		if !ok || current != mf {
			fm.mu.Unlock()
			continue
		}
		delete(fm.feeds, mf.ID)
		fm.mu.Unlock()

		fm.cleanupFeed(mf)
		fm.markIdle(mf)
		evicted++
	}

	return evicted
}

// markIdle records the eviction in the feed's store entry so listings can
// tell evicted feeds from live ones. The next GetOrCreate flips the status
// back to active.
func (fm *FeedManager) markIdle(mf *ManagedFeed) {
	ctx := context.WithoutCancel(fm.baseCtx)
	if err := fm.store.UpsertFeed(ctx, feedstore.FeedRecord{
		FeedID:          mf.ID,
		Status:          "idle",
		LastSeenVersion: mf.publisher.Seq(),
		LastActivityMs:  mf.LastActivity().UnixMilli(),
	}); err != nil {
		log.Warn().Err(err).Str("component", "webfeed").Str("feed_id", mf.ID).Msg("failed to mark evicted feed idle")
	}
}

func (fm *FeedManager) shouldEvictFeed(now time.Time, idle time.Duration, mf *ManagedFeed) bool {
	if mf.pool != nil && !mf.pool.IsEmpty() {
		return false
	}
	if mf.feed != nil && mf.feed.Busy() {
		return false
	}
	last := mf.LastActivity()
	if last.IsZero() {
		return false
	}
	return now.Sub(last) >= idle
}
