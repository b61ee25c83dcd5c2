package feedstream

import (
	"encoding/json"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatfeed/pkg/chat"
	"github.com/go-go-golems/chatfeed/pkg/feed"
)

// Frame is the JSON envelope for one feed change event. Seq is a per-feed
// monotonic version assigned at publish time.
type Frame struct {
	Type    string              `json:"type"`
	FeedID  string              `json:"feed_id"`
	Seq     uint64              `json:"seq"`
	Index   int                 `json:"index"`
	Message *chat.MessageRecord `json:"message,omitempty"`
}

// ParseFrame decodes a frame payload.
func ParseFrame(payload []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(payload, &f); err != nil {
		return Frame{}, errors.Wrap(err, "decode feed frame")
	}
	return f, nil
}

// FeedPublisher turns log events of one feed into frames on the feed's topic.
type FeedPublisher struct {
	feedID string
	pub    message.Publisher
	seq    atomic.Uint64
}

func NewFeedPublisher(pub message.Publisher, feedID string) *FeedPublisher {
	return &FeedPublisher{feedID: feedID, pub: pub}
}

// SeedSeq fast-forwards the version counter, used when resuming a feed whose
// older frames are already persisted. Never moves the counter backwards.
func (p *FeedPublisher) SeedSeq(seq uint64) {
	if p == nil {
		return
	}
	for {
		cur := p.seq.Load()
		if cur >= seq || p.seq.CompareAndSwap(cur, seq) {
			return
		}
	}
}

// Seq returns the last assigned version.
func (p *FeedPublisher) Seq() uint64 {
	if p == nil {
		return 0
	}
	return p.seq.Load()
}

// PublishEvent assigns the next version and publishes the event's frame.
func (p *FeedPublisher) PublishEvent(ev feed.LogEvent) (Frame, error) {
	if p == nil || p.pub == nil {
		return Frame{}, errors.New("feed publisher is not initialized")
	}
	frame := Frame{
		Type:   string(ev.Type),
		FeedID: p.feedID,
		Seq:    p.seq.Add(1),
		Index:  ev.Index,
	}
	if ev.Message != nil {
		rec := ev.Message.Record()
		frame.Message = &rec
	}
	payload, err := json.Marshal(frame)
	if err != nil {
		return Frame{}, errors.Wrap(err, "encode feed frame")
	}
	if err := p.pub.Publish(TopicForFeed(p.feedID), message.NewMessage(watermill.NewUUID(), payload)); err != nil {
		return Frame{}, errors.Wrap(err, "publish feed frame")
	}
	return frame, nil
}

// NotifierFor adapts a FeedPublisher into a feed.Notifier. Publish failures
// are logged, not propagated; log mutations must not fail on transport
// trouble.
func NotifierFor(p *FeedPublisher) feed.Notifier {
	return func(ev feed.LogEvent) {
		if _, err := p.PublishEvent(ev); err != nil {
			log.Warn().Err(err).Str("component", "feedstream").Str("feed_id", p.feedID).Msg("failed to publish feed event")
		}
	}
}
