package webfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatfeed/pkg/chat"
	"github.com/go-go-golems/chatfeed/pkg/feed"
	"github.com/go-go-golems/chatfeed/pkg/persistence/feedstore"
)

var ErrFeedNotFound = errors.New("feed not found")

type ServiceConfig struct {
	BaseCtx context.Context
	Manager *FeedManager
}

// Service is the app-facing surface over the feed manager: message
// submission, token streaming, undo and clear, snapshot reads, and websocket
// attachment.
type Service struct {
	baseCtx context.Context
	fm      *FeedManager
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.BaseCtx == nil {
		return nil, errors.New("feed service base context is nil")
	}
	if cfg.Manager == nil {
		return nil, errors.New("feed service manager is nil")
	}
	return &Service{baseCtx: cfg.BaseCtx, fm: cfg.Manager}, nil
}

func (s *Service) Manager() *FeedManager {
	if s == nil {
		return nil
	}
	return s.fm
}

type SendRequest struct {
	FeedID    string
	Value     any
	User      string
	Avatar    string
	NoRespond bool
}

type SendResult struct {
	Message chat.MessageRecord `json:"message"`
	Version uint64             `json:"version"`
}

func (s *Service) Send(ctx context.Context, in SendRequest) (SendResult, error) {
	mf, err := s.ensure(ctx, in.FeedID)
	if err != nil {
		return SendResult{}, err
	}
	// The response cycle outlives the request, so detach its context.
	msg, err := mf.Feed().Send(context.WithoutCancel(ctx), feed.SendInput{
		Value:     in.Value,
		User:      in.User,
		Avatar:    in.Avatar,
		NoRespond: in.NoRespond,
	})
	if err != nil {
		return SendResult{}, err
	}
	mf.touch()
	return SendResult{Message: msg.Record(), Version: mf.publisher.Seq()}, nil
}

type StreamRequest struct {
	FeedID   string
	Value    any
	User     string
	Avatar   string
	TargetID string
}

func (s *Service) StreamToken(ctx context.Context, in StreamRequest) (SendResult, error) {
	mf, err := s.ensure(ctx, in.FeedID)
	if err != nil {
		return SendResult{}, err
	}
	var target *chat.Message
	if id := strings.TrimSpace(in.TargetID); id != "" {
		for _, m := range mf.Feed().Log().Snapshot() {
			if m.ID == id {
				target = m
				break
			}
		}
		if target == nil {
			return SendResult{}, errors.Errorf("stream target %q not found", id)
		}
	}
	msg, err := mf.Feed().StreamToken(ctx, feed.StreamInput{
		Value:  in.Value,
		User:   in.User,
		Avatar: in.Avatar,
		Target: target,
	})
	if err != nil {
		return SendResult{}, err
	}
	mf.touch()
	return SendResult{Message: msg.Record(), Version: mf.publisher.Seq()}, nil
}

// Respond fires the response orchestration for the feed's newest message. The
// cycle runs in the background; changes arrive through the feed's stream.
func (s *Service) Respond(ctx context.Context, feedID string) error {
	mf, err := s.ensure(ctx, feedID)
	if err != nil {
		return err
	}
	mf.Feed().Respond(context.WithoutCancel(s.baseCtx))
	mf.touch()
	return nil
}

func (s *Service) Undo(ctx context.Context, feedID string, count int) (int, error) {
	mf, err := s.ensure(ctx, feedID)
	if err != nil {
		return 0, err
	}
	removed := mf.Feed().Undo(count)
	mf.touch()
	return len(removed), nil
}

func (s *Service) Clear(ctx context.Context, feedID string) (int, error) {
	mf, err := s.ensure(ctx, feedID)
	if err != nil {
		return 0, err
	}
	removed := mf.Feed().Clear()
	mf.touch()
	return len(removed), nil
}

// Snapshot reads persisted messages, independent of whether the feed is live.
func (s *Service) Snapshot(ctx context.Context, feedID string, sinceVersion uint64, limit int) (feedstore.Snapshot, error) {
	if s == nil || s.fm == nil {
		return feedstore.Snapshot{}, errors.New("feed service is not initialized")
	}
	return s.fm.Store().GetSnapshot(ctx, feedID, sinceVersion, limit)
}

func (s *Service) ListFeeds(ctx context.Context, limit int, sinceMs int64) ([]feedstore.FeedRecord, error) {
	if s == nil || s.fm == nil {
		return nil, errors.New("feed service is not initialized")
	}
	return s.fm.Store().ListFeeds(ctx, limit, sinceMs)
}

func (s *Service) ensure(ctx context.Context, feedID string) (*ManagedFeed, error) {
	if s == nil || s.fm == nil {
		return nil, errors.New("feed service is not initialized")
	}
	return s.fm.GetOrCreate(ctx, feedID)
}

type WebSocketAttachOptions struct {
	SendHello    bool
	ReplayFrames bool
}

// AttachWebSocket joins a connection to the feed's pool, optionally replaying
// buffered frames, and runs the read loop until the peer goes away.
func (s *Service) AttachWebSocket(ctx context.Context, feedID string, conn *websocket.Conn, opts WebSocketAttachOptions) error {
	if s == nil || s.fm == nil {
		return errors.New("feed service is not initialized")
	}
	feedID = strings.TrimSpace(feedID)
	if feedID == "" {
		return errors.New("missing feedID")
	}
	if conn == nil {
		return errors.New("websocket connection is nil")
	}
	mf, err := s.fm.GetOrCreate(ctx, feedID)
	if err != nil {
		return err
	}
	s.fm.AddConn(mf, conn)
	wsLog := log.With().
		Str("component", "webfeed").
		Str("remote", conn.RemoteAddr().String()).
		Str("feed_id", feedID).
		Logger()
	if opts.SendHello {
		ts := time.Now().UnixMilli()
		hello := map[string]any{
			"type":           "ws.hello",
			"feed_id":        feedID,
			"id":             fmt.Sprintf("ws.hello:%s:%d", feedID, ts),
			"server_time_ms": ts,
			"version":        mf.publisher.Seq(),
		}
		if b, err := json.Marshal(hello); err == nil {
			wsLog.Debug().Msg("ws sending hello")
			mf.pool.SendToOne(conn, b)
		}
	}
	if opts.ReplayFrames {
		for _, frame := range mf.buffer.Snapshot() {
			mf.pool.SendToOne(conn, frame)
		}
	}
	go func() {
		defer s.fm.RemoveConn(mf, conn)
		defer wsLog.Info().Msg("ws disconnected")
		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				wsLog.Debug().Err(err).Msg("ws read loop end")
				return
			}
			if msgType != websocket.TextMessage || len(data) == 0 {
				continue
			}
			if strings.EqualFold(strings.TrimSpace(string(data)), "ping") {
				mf.pool.SendToOne(conn, []byte(`{"type":"ws.pong"}`))
			}
		}
	}()
	return nil
}
