package feedstream

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// TopicForFeed computes the event topic for a feed.
func TopicForFeed(feedID string) string { return "feed:" + feedID }

// Backend wraps transport setup concerns and exposes publisher/subscriber
// construction for feed streams.
type Backend interface {
	Publisher() message.Publisher
	// BuildSubscriber returns a subscriber for the feed's topic. The bool
	// reports whether the subscriber is dedicated and must be closed by the
	// caller.
	BuildSubscriber(ctx context.Context, feedID string) (message.Subscriber, bool, error)
	Close() error
}

type memoryBackend struct {
	pubsub *gochannel.GoChannel
}

var _ Backend = &memoryBackend{}

// NewMemoryBackend builds a single-process gochannel backend.
func NewMemoryBackend() Backend {
	return &memoryBackend{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 256},
			NewWatermillLogger(log.Logger),
		),
	}
}

func (b *memoryBackend) Publisher() message.Publisher {
	if b == nil {
		return nil
	}
	return b.pubsub
}

func (b *memoryBackend) BuildSubscriber(_ context.Context, feedID string) (message.Subscriber, bool, error) {
	if b == nil || b.pubsub == nil {
		return nil, false, errors.New("memory backend is not initialized")
	}
	if feedID == "" {
		return nil, false, errors.New("feedID is empty")
	}
	return b.pubsub, false, nil
}

func (b *memoryBackend) Close() error {
	if b == nil || b.pubsub == nil {
		return nil
	}
	return b.pubsub.Close()
}
