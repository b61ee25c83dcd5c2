package webfeed

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatfeed/pkg/feed"
	"github.com/go-go-golems/chatfeed/pkg/feedstream"
	"github.com/go-go-golems/chatfeed/pkg/persistence/feedstore"
)

// CallbackBuilder returns the response callback and extra feed options for a
// newly created feed. The returned name is recorded in the feed's store entry.
type CallbackBuilder func(feedID string) (feed.Callback, string, error)

// ManagedFeed pairs a live feed with its streaming attachments.
type ManagedFeed struct {
	ID string

	feed      *feed.Feed
	pool      *ConnectionPool
	publisher *feedstream.FeedPublisher
	buffer    *frameBuffer

	sub          message.Subscriber
	subDedicated bool

	mu           sync.Mutex
	stopRead     context.CancelFunc
	reading      bool
	lastActivity time.Time
}

func (m *ManagedFeed) Feed() *feed.Feed {
	if m == nil {
		return nil
	}
	return m.feed
}

func (m *ManagedFeed) Pool() *ConnectionPool {
	if m == nil {
		return nil
	}
	return m.pool
}

func (m *ManagedFeed) touch() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.lastActivity = time.Now()
	m.mu.Unlock()
}

func (m *ManagedFeed) LastActivity() time.Time {
	if m == nil {
		return time.Time{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastActivity
}

type ManagerConfig struct {
	BaseCtx       context.Context
	Backend       feedstream.Backend
	Store         feedstore.Store
	BuildCallback CallbackBuilder
	FeedOptions   []feed.Option
	ReplayLimit   int
	WSIdleTimeout time.Duration
}

// FeedManager stores all live feeds.
type FeedManager struct {
	baseCtx       context.Context
	backend       feedstream.Backend
	store         feedstore.Store
	buildCallback CallbackBuilder
	feedOptions   []feed.Option
	replayLimit   int
	wsIdleTimeout time.Duration

	mu    sync.Mutex
	feeds map[string]*ManagedFeed

	evictIdle     time.Duration
	evictInterval time.Duration
	evictRunning  bool
}

func NewFeedManager(cfg ManagerConfig) (*FeedManager, error) {
	if cfg.BaseCtx == nil {
		return nil, errors.New("feed manager base context is nil")
	}
	if cfg.Backend == nil {
		return nil, errors.New("feed manager backend is nil")
	}
	if cfg.Store == nil {
		return nil, errors.New("feed manager store is nil")
	}
	return &FeedManager{
		baseCtx:       cfg.BaseCtx,
		backend:       cfg.Backend,
		store:         cfg.Store,
		buildCallback: cfg.BuildCallback,
		feedOptions:   cfg.FeedOptions,
		replayLimit:   cfg.ReplayLimit,
		wsIdleTimeout: cfg.WSIdleTimeout,
		feeds:         map[string]*ManagedFeed{},
	}, nil
}

func (fm *FeedManager) Store() feedstore.Store {
	if fm == nil {
		return nil
	}
	return fm.store
}

func (fm *FeedManager) Get(feedID string) (*ManagedFeed, bool) {
	if fm == nil {
		return nil, false
	}
	fm.mu.Lock()
	defer fm.mu.Unlock()
	mf, ok := fm.feeds[feedID]
	return mf, ok
}

// GetOrCreate returns the live feed for feedID, creating it together with its
// publisher, stream reader, pool, and replay buffer on first use.
func (fm *FeedManager) GetOrCreate(ctx context.Context, feedID string) (*ManagedFeed, error) {
	if fm == nil {
		return nil, errors.New("feed manager is nil")
	}
	feedID = strings.TrimSpace(feedID)
	if feedID == "" {
		return nil, errors.New("feedID is empty")
	}
	if ctx == nil {
		ctx = fm.baseCtx
	}

	fm.mu.Lock()
	defer fm.mu.Unlock()
	if mf, ok := fm.feeds[feedID]; ok {
		return mf, nil
	}

	publisher := feedstream.NewFeedPublisher(fm.backend.Publisher(), feedID)
	responderName := ""
	opts := append([]feed.Option(nil), fm.feedOptions...)
	opts = append(opts, feed.WithNotifier(feedstream.NotifierFor(publisher)))
	if fm.buildCallback != nil {
		cb, name, err := fm.buildCallback(feedID)
		if err != nil {
			return nil, errors.Wrap(err, "build feed callback")
		}
		responderName = name
		opts = append(opts, feed.WithCallback(cb))
	}

	mf := &ManagedFeed{
		ID:           feedID,
		publisher:    publisher,
		buffer:       newFrameBuffer(fm.replayLimit),
		lastActivity: time.Now(),
	}
	mf.pool = NewConnectionPool(feedID, fm.wsIdleTimeout, nil)

	// Resume the version counter past what is already persisted so new
	// frames are not dropped as stale by the store's version guard.
	if snap, err := fm.store.GetSnapshot(fm.baseCtx, feedID, 0, 1); err == nil {
		publisher.SeedSeq(snap.Version)
	}

	// Subscribe before the feed exists so no frame is lost between first
	// mutation and reader start.
	if err := fm.startReader(mf); err != nil {
		return nil, err
	}
	mf.feed = feed.New(feedID, opts...)
	fm.feeds[feedID] = mf

	if err := fm.store.UpsertFeed(fm.baseCtx, feedstore.FeedRecord{
		FeedID:    feedID,
		Responder: responderName,
	}); err != nil {
		log.Warn().Err(err).Str("component", "webfeed").Str("feed_id", feedID).Msg("failed to record feed")
	}
	return mf, nil
}

// Drop removes a feed from the manager and tears down its attachments.
func (fm *FeedManager) Drop(feedID string) {
	if fm == nil {
		return
	}
	fm.mu.Lock()
	mf, ok := fm.feeds[feedID]
	if ok {
		delete(fm.feeds, feedID)
	}
	fm.mu.Unlock()
	if ok {
		fm.cleanupFeed(mf)
	}
}

func (fm *FeedManager) AddConn(mf *ManagedFeed, conn Conn) {
	if fm == nil || mf == nil {
		return
	}
	mf.pool.Add(conn)
	mf.touch()
}

func (fm *FeedManager) RemoveConn(mf *ManagedFeed, conn Conn) {
	if fm == nil || mf == nil {
		_ = closeConn(conn)
		return
	}
	mf.pool.Remove(conn)
	mf.touch()
}

// Shutdown stops every live feed's reader and closes its connections.
func (fm *FeedManager) Shutdown() {
	if fm == nil {
		return
	}
	fm.mu.Lock()
	feeds := make([]*ManagedFeed, 0, len(fm.feeds))
	for id, mf := range fm.feeds {
		feeds = append(feeds, mf)
		delete(fm.feeds, id)
	}
	fm.mu.Unlock()
	for _, mf := range feeds {
		fm.cleanupFeed(mf)
	}
}

func (fm *FeedManager) cleanupFeed(mf *ManagedFeed) {
	if mf == nil {
		return
	}
	if mf.pool != nil {
		mf.pool.CloseAll()
	}
	mf.mu.Lock()
	stop := mf.stopRead
	mf.stopRead = nil
	mf.mu.Unlock()
	if stop != nil {
		stop()
	}
	if mf.subDedicated && mf.sub != nil {
		if err := mf.sub.Close(); err != nil {
			log.Warn().Err(err).Str("component", "webfeed").Str("feed_id", mf.ID).Msg("subscriber close failed")
		}
	}
}
