package feedstream

import (
	"context"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisSettings configures the Redis Streams backend.
type RedisSettings struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Group    string `yaml:"group"`
	Consumer string `yaml:"consumer"`
}

type redisBackend struct {
	settings RedisSettings
	pub      message.Publisher
}

var _ Backend = &redisBackend{}

// NewRedisBackend builds a Redis Streams backend. Subscribers join the
// configured consumer group, created at the stream tail to avoid historical
// replay on first subscribe.
func NewRedisBackend(s RedisSettings) (Backend, error) {
	if strings.TrimSpace(s.Addr) == "" {
		return nil, errors.New("redis backend: addr is empty")
	}
	if s.Group == "" {
		s.Group = "chatfeed"
	}

	client := redis.NewClient(&redis.Options{Addr: s.Addr})
	marshaler := rstream.DefaultMarshallerUnmarshaller{}
	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: marshaler,
	}, NewWatermillLogger(log.Logger))
	if err != nil {
		return nil, errors.Wrap(err, "redis backend: build publisher")
	}
	return &redisBackend{settings: s, pub: pub}, nil
}

func (b *redisBackend) Publisher() message.Publisher {
	if b == nil {
		return nil
	}
	return b.pub
}

func (b *redisBackend) BuildSubscriber(ctx context.Context, feedID string) (message.Subscriber, bool, error) {
	if b == nil || b.pub == nil {
		return nil, false, errors.New("redis backend is not initialized")
	}
	if feedID == "" {
		return nil, false, errors.New("feedID is empty")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := b.ensureGroupAtTail(ctx, TopicForFeed(feedID)); err != nil {
		return nil, false, err
	}

	client := redis.NewClient(&redis.Options{Addr: b.settings.Addr})
	marshaler := rstream.DefaultMarshallerUnmarshaller{}
	consumer := b.settings.Consumer
	if consumer == "" {
		consumer = "feed-forwarder:" + feedID
	}
	sub, err := rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        client,
		Unmarshaller:  marshaler,
		ConsumerGroup: b.settings.Group,
		Consumer:      consumer,
	}, NewWatermillLogger(log.Logger))
	if err != nil {
		return nil, false, errors.Wrap(err, "redis backend: build subscriber")
	}
	return sub, true, nil
}

// ensureGroupAtTail creates the consumer group at $ if it doesn't exist yet.
func (b *redisBackend) ensureGroupAtTail(ctx context.Context, stream string) error {
	client := redis.NewClient(&redis.Options{Addr: b.settings.Addr})
	defer func() { _ = client.Close() }()
	err := client.XGroupCreateMkStream(ctx, stream, b.settings.Group, "$").Err()
	if err != nil {
		// BUSYGROUP means the group already exists
		if strings.Contains(err.Error(), "BUSYGROUP") {
			return nil
		}
		return err
	}
	log.Info().Str("stream", stream).Str("group", b.settings.Group).Msg("created redis consumer group at tail")
	return nil
}

func (b *redisBackend) Close() error {
	if b == nil || b.pub == nil {
		return nil
	}
	return b.pub.Close()
}
