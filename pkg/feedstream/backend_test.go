package feedstream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/chatfeed/pkg/chat"
	"github.com/go-go-golems/chatfeed/pkg/feed"
)

func TestMemoryBackend_PublishSubscribeRoundtrip(t *testing.T) {
	backend := NewMemoryBackend()
	defer func() { _ = backend.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	sub, dedicated, err := backend.BuildSubscriber(ctx, "conv-1")
	require.NoError(t, err)
	require.False(t, dedicated)

	ch, err := sub.Subscribe(ctx, TopicForFeed("conv-1"))
	require.NoError(t, err)

	pub := NewFeedPublisher(backend.Publisher(), "conv-1")
	msg := chat.NewMessage("hello", "User", "")
	sent, err := pub.PublishEvent(feed.LogEvent{Type: feed.LogAppend, Index: 0, Message: msg})
	require.NoError(t, err)
	require.Equal(t, uint64(1), sent.Seq)

	select {
	case wm := <-ch:
		wm.Ack()
		got, err := ParseFrame(wm.Payload)
		require.NoError(t, err)
		require.Equal(t, string(feed.LogAppend), got.Type)
		require.Equal(t, "conv-1", got.FeedID)
		require.Equal(t, uint64(1), got.Seq)
		require.NotNil(t, got.Message)
		require.Equal(t, "hello", got.Message.Content)
	case <-ctx.Done():
		t.Fatal("timed out waiting for frame")
	}
}

func TestFeedPublisher_SeqIsMonotonic(t *testing.T) {
	backend := NewMemoryBackend()
	defer func() { _ = backend.Close() }()

	pub := NewFeedPublisher(backend.Publisher(), "conv-2")
	for i := 1; i <= 3; i++ {
		frame, err := pub.PublishEvent(feed.LogEvent{Type: feed.LogClear, Index: -1})
		require.NoError(t, err)
		require.Equal(t, uint64(i), frame.Seq)
	}
	require.Equal(t, uint64(3), pub.Seq())
}

func TestFeedPublisher_SeedSeqNeverMovesBackwards(t *testing.T) {
	backend := NewMemoryBackend()
	defer func() { _ = backend.Close() }()

	pub := NewFeedPublisher(backend.Publisher(), "conv-3")
	pub.SeedSeq(10)
	require.Equal(t, uint64(10), pub.Seq())
	pub.SeedSeq(5)
	require.Equal(t, uint64(10), pub.Seq())

	frame, err := pub.PublishEvent(feed.LogEvent{Type: feed.LogClear, Index: -1})
	require.NoError(t, err)
	require.Equal(t, uint64(11), frame.Seq)
}

func TestRedisBackend_RequiresAddr(t *testing.T) {
	_, err := NewRedisBackend(RedisSettings{})
	require.Error(t, err)
}
