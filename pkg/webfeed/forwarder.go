package webfeed

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatfeed/pkg/feed"
	"github.com/go-go-golems/chatfeed/pkg/feedstream"
	"github.com/go-go-golems/chatfeed/pkg/persistence/feedstore"
)

// startReader subscribes to the feed's topic and forwards frames to the store,
// the replay buffer, and the websocket pool. Called with fm.mu held.
func (fm *FeedManager) startReader(mf *ManagedFeed) error {
	if mf.reading {
		return nil
	}
	log.Info().Str("component", "webfeed").Str("feed_id", mf.ID).Str("topic", feedstream.TopicForFeed(mf.ID)).Msg("starting feed reader")
	readCtx, readCancel := context.WithCancel(context.WithoutCancel(fm.baseCtx))
	sub, dedicated, err := fm.backend.BuildSubscriber(readCtx, mf.ID)
	if err != nil {
		readCancel()
		return err
	}
	ch, err := sub.Subscribe(readCtx, feedstream.TopicForFeed(mf.ID))
	if err != nil {
		readCancel()
		if dedicated {
			_ = sub.Close()
		}
		return err
	}
	mf.sub = sub
	mf.subDedicated = dedicated
	mf.stopRead = readCancel
	mf.reading = true

	go func() {
		for msg := range ch {
			frame, err := feedstream.ParseFrame(msg.Payload)
			if err != nil {
				log.Warn().Err(err).Str("component", "webfeed").Str("feed_id", mf.ID).Msg("failed to decode feed frame")
				msg.Ack()
				continue
			}
			if frame.FeedID != "" && frame.FeedID != mf.ID {
				msg.Ack()
				continue
			}
			fm.project(frame)
			mf.buffer.Add(msg.Payload)
			mf.pool.Broadcast(msg.Payload)
			mf.touch()
			msg.Ack()
		}
		mf.mu.Lock()
		mf.reading = false
		mf.stopRead = nil
		mf.mu.Unlock()
		log.Info().Str("component", "webfeed").Str("feed_id", mf.ID).Msg("feed reader stopped")
	}()
	return nil
}

// project applies one frame to the persistence store.
func (fm *FeedManager) project(frame feedstream.Frame) {
	ctx := context.WithoutCancel(fm.baseCtx)
	var err error
	switch frame.Type {
	case string(feed.LogAppend), string(feed.LogReplace), string(feed.LogUpdate):
		if frame.Message != nil {
			err = fm.store.UpsertMessage(ctx, frame.FeedID, frame.Seq, *frame.Message)
		}
	case string(feed.LogRemove):
		if frame.Message != nil {
			err = fm.store.DeleteMessage(ctx, frame.FeedID, frame.Message.ID)
		}
	case string(feed.LogClear):
		err = fm.store.ClearMessages(ctx, frame.FeedID)
	}
	if err != nil {
		log.Warn().Err(err).Str("component", "webfeed").Str("feed_id", frame.FeedID).Str("type", frame.Type).Msg("failed to project feed frame")
		return
	}
	if err := fm.store.UpsertFeed(ctx, feedstore.FeedRecord{
		FeedID:          frame.FeedID,
		LastSeenVersion: frame.Seq,
		LastActivityMs:  time.Now().UnixMilli(),
	}); err != nil {
		log.Warn().Err(err).Str("component", "webfeed").Str("feed_id", frame.FeedID).Msg("failed to update feed record")
	}
}
