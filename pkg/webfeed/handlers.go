package webfeed

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
)

type sendBody struct {
	FeedID    string `json:"feed_id"`
	Value     any    `json:"value"`
	User      string `json:"user,omitempty"`
	Avatar    string `json:"avatar,omitempty"`
	NoRespond bool   `json:"no_respond,omitempty"`
}

type streamBody struct {
	FeedID   string `json:"feed_id"`
	Value    any    `json:"value"`
	User     string `json:"user,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
	TargetID string `json:"target_id,omitempty"`
}

type feedBody struct {
	FeedID string `json:"feed_id"`
	Count  int    `json:"count,omitempty"`
}

func decodeBody(w http.ResponseWriter, req *http.Request, out any) bool {
	if err := json.NewDecoder(req.Body).Decode(out); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func requireFeedID(w http.ResponseWriter, feedID string) (string, bool) {
	feedID = strings.TrimSpace(feedID)
	if feedID == "" {
		http.Error(w, "missing feed_id", http.StatusBadRequest)
		return "", false
	}
	return feedID, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func NewSendHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if svc == nil {
			http.Error(w, "feed service not initialized", http.StatusServiceUnavailable)
			return
		}
		var body sendBody
		if !decodeBody(w, req, &body) {
			return
		}
		feedID, ok := requireFeedID(w, body.FeedID)
		if !ok {
			return
		}
		res, err := svc.Send(req.Context(), SendRequest{
			FeedID:    feedID,
			Value:     body.Value,
			User:      body.User,
			Avatar:    body.Avatar,
			NoRespond: body.NoRespond,
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, res)
	}
}

func NewStreamHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if svc == nil {
			http.Error(w, "feed service not initialized", http.StatusServiceUnavailable)
			return
		}
		var body streamBody
		if !decodeBody(w, req, &body) {
			return
		}
		feedID, ok := requireFeedID(w, body.FeedID)
		if !ok {
			return
		}
		res, err := svc.StreamToken(req.Context(), StreamRequest{
			FeedID:   feedID,
			Value:    body.Value,
			User:     body.User,
			Avatar:   body.Avatar,
			TargetID: body.TargetID,
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, res)
	}
}

func NewRespondHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if svc == nil {
			http.Error(w, "feed service not initialized", http.StatusServiceUnavailable)
			return
		}
		var body feedBody
		if !decodeBody(w, req, &body) {
			return
		}
		feedID, ok := requireFeedID(w, body.FeedID)
		if !ok {
			return
		}
		if err := svc.Respond(req.Context(), feedID); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusAccepted)
		writeJSON(w, map[string]any{"status": "responding"})
	}
}

func NewUndoHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if svc == nil {
			http.Error(w, "feed service not initialized", http.StatusServiceUnavailable)
			return
		}
		var body feedBody
		if !decodeBody(w, req, &body) {
			return
		}
		feedID, ok := requireFeedID(w, body.FeedID)
		if !ok {
			return
		}
		count := body.Count
		if count <= 0 {
			count = 1
		}
		removed, err := svc.Undo(req.Context(), feedID, count)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, map[string]any{"removed": removed})
	}
}

func NewClearHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if svc == nil {
			http.Error(w, "feed service not initialized", http.StatusServiceUnavailable)
			return
		}
		var body feedBody
		if !decodeBody(w, req, &body) {
			return
		}
		feedID, ok := requireFeedID(w, body.FeedID)
		if !ok {
			return
		}
		removed, err := svc.Clear(req.Context(), feedID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, map[string]any{"removed": removed})
	}
}

func NewSnapshotHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if svc == nil {
			http.Error(w, "feed service not initialized", http.StatusServiceUnavailable)
			return
		}
		feedID, ok := requireFeedID(w, req.URL.Query().Get("feed_id"))
		if !ok {
			return
		}
		sinceVersion, _ := strconv.ParseUint(req.URL.Query().Get("since_version"), 10, 64)
		limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
		snap, err := svc.Snapshot(req.Context(), feedID, sinceVersion, limit)
		if err != nil {
			http.Error(w, "failed to read snapshot", http.StatusInternalServerError)
			return
		}
		writeJSON(w, snap)
	}
}

func NewFeedsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if svc == nil {
			http.Error(w, "feed service not initialized", http.StatusServiceUnavailable)
			return
		}
		limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
		sinceMs, _ := strconv.ParseInt(req.URL.Query().Get("since_ms"), 10, 64)
		records, err := svc.ListFeeds(req.Context(), limit, sinceMs)
		if err != nil {
			http.Error(w, "failed to list feeds", http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]any{"feeds": records})
	}
}

func NewWSHandler(svc *Service, upgrader websocket.Upgrader) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if svc == nil {
			http.Error(w, "feed service not initialized", http.StatusServiceUnavailable)
			return
		}
		feedID, ok := requireFeedID(w, req.URL.Query().Get("feed_id"))
		if !ok {
			return
		}
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		if err := svc.AttachWebSocket(req.Context(), feedID, conn, WebSocketAttachOptions{
			SendHello:    true,
			ReplayFrames: req.URL.Query().Get("replay") == "1",
		}); err != nil {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"failed to attach websocket"}`))
			_ = conn.Close()
			return
		}
	}
}
