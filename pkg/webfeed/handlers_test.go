package webfeed

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*httptest.Server, *FeedManager) {
	t.Helper()
	svc, fm := newTestService(t)
	srv, err := NewServer(context.Background(), ServerConfig{
		Service: svc,
		Manager: fm,
	})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Mux())
	t.Cleanup(ts.Close)
	return ts, fm
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	return resp
}

func TestSendHandlerRoundtrip(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/send", sendBody{FeedID: "f1", Value: "hello", NoRespond: true})
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var res SendResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	require.Equal(t, "hello", res.Message.Content)
	require.NotEmpty(t, res.Message.ID)
}

func TestSendHandlerRejectsMissingFeedID(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/send", sendBody{Value: "hello"})
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSendHandlerRejectsGet(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/send")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestSnapshotHandlerReturnsPersistedMessages(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/send", sendBody{FeedID: "f1", Value: "hello", NoRespond: true})
	_ = resp.Body.Close()

	require.Eventually(t, func() bool {
		r, err := http.Get(ts.URL + "/api/snapshot?feed_id=f1")
		if err != nil {
			return false
		}
		defer func() { _ = r.Body.Close() }()
		var snap struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&snap); err != nil {
			return false
		}
		return len(snap.Messages) == 1 && snap.Messages[0].Content == "hello"
	}, 2*time.Second, 20*time.Millisecond)
}

func TestUndoHandlerRemovesMessages(t *testing.T) {
	ts, _ := newTestServer(t)

	for _, v := range []string{"a", "b"} {
		resp := postJSON(t, ts.URL+"/api/send", sendBody{FeedID: "f1", Value: v, NoRespond: true})
		_ = resp.Body.Close()
	}

	resp := postJSON(t, ts.URL+"/api/undo", feedBody{FeedID: "f1", Count: 1})
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var res struct {
		Removed int `json:"removed"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	require.Equal(t, 1, res.Removed)
}

func TestFeedsHandlerListsFeeds(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/send", sendBody{FeedID: "f1", Value: "hello", NoRespond: true})
	_ = resp.Body.Close()

	require.Eventually(t, func() bool {
		r, err := http.Get(ts.URL + "/api/feeds")
		if err != nil {
			return false
		}
		defer func() { _ = r.Body.Close() }()
		var res struct {
			Feeds []struct {
				FeedID string `json:"feed_id"`
			} `json:"feeds"`
		}
		if err := json.NewDecoder(r.Body).Decode(&res); err != nil {
			return false
		}
		return len(res.Feeds) == 1 && res.Feeds[0].FeedID == "f1"
	}, 2*time.Second, 20*time.Millisecond)
}

func TestWSHandlerSendsHelloAndFrames(t *testing.T) {
	ts, _ := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?feed_id=f1"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	defer func() { _ = conn.Close() }()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var hello map[string]any
	require.NoError(t, json.Unmarshal(data, &hello))
	require.Equal(t, "ws.hello", hello["type"])

	httpResp := postJSON(t, ts.URL+"/api/send", sendBody{FeedID: "f1", Value: "hi", NoRespond: true})
	_ = httpResp.Body.Close()

	_, data, err = conn.ReadMessage()
	require.NoError(t, err)
	var frame map[string]any
	require.NoError(t, json.Unmarshal(data, &frame))
	require.Equal(t, "message.append", frame["type"])
}
