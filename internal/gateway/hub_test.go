package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"taxsync-pro/internal/model"

	"github.com/gorilla/websocket"
)

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readFrames reads one message and splits coalesced frames.
func readFrames(t *testing.T, conn *websocket.Conn) []envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var out []envelope
	for _, line := range bytes.Split(msg, []byte{'\n'}) {
		var env envelope
		if err := json.Unmarshal(line, &env); err != nil {
			t.Fatalf("decode %q: %v", line, err)
		}
		out = append(out, env)
	}
	return out
}

func event(userID string, typ model.SyncEventType) model.SyncEvent {
	return model.SyncEvent{Type: typ, UserID: userID, RunID: "run-1", TS: time.Now()}
}

func TestHub_ReplaysBacklogThenStreams(t *testing.T) {
	hub := NewHub(10)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	ctx := context.Background()
	hub.Publish(ctx, event("u1", model.EventSyncStarted))
	hub.Publish(ctx, event("u1", model.EventBrokerSynced))

	conn := dial(t, srv, "userId=u1&since=1")

	backlog := readFrames(t, conn)
	if len(backlog) != 1 {
		t.Fatalf("expected 1 backlog frame, got %d", len(backlog))
	}
	if backlog[0].Seq != 2 || !backlog[0].Initial || backlog[0].Data.Type != model.EventBrokerSynced {
		t.Errorf("unexpected backlog frame: %+v", backlog[0])
	}
	if backlog[0].Channel != "sync:u1" {
		t.Errorf("expected channel sync:u1, got %s", backlog[0].Channel)
	}

	hub.Publish(ctx, event("u2", model.EventSyncStarted))
	hub.Publish(ctx, event("u1", model.EventSyncCompleted))

	live := readFrames(t, conn)
	if len(live) != 1 {
		t.Fatalf("expected 1 live frame, got %d", len(live))
	}
	if live[0].Seq != 3 || live[0].Initial || live[0].Data.UserID != "u1" {
		t.Errorf("unexpected live frame: %+v", live[0])
	}
	if hub.Seq("u2") != 1 {
		t.Errorf("expected u2 seq 1, got %d", hub.Seq("u2"))
	}
}

func TestHub_AnswersPing(t *testing.T) {
	hub := NewHub(0)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv, "userId=u1")
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"ping":123}`)); err != nil {
		t.Fatalf("write: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var pong struct {
		Type string `json:"type"`
		Ping int64  `json:"ping"`
	}
	if err := json.Unmarshal(msg, &pong); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pong.Type != "pong" || pong.Ping != 123 {
		t.Errorf("expected pong 123, got %+v", pong)
	}
}

func TestHub_TracksClients(t *testing.T) {
	hub := NewHub(0)
	counts := make(chan int, 4)
	hub.OnClientsChanged = func(n int) { counts <- n }
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv, "userId=u1")
	if n := <-counts; n != 1 {
		t.Errorf("expected 1 client, got %d", n)
	}

	conn.Close()
	select {
	case n := <-counts:
		if n != 0 {
			t.Errorf("expected 0 clients, got %d", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("client not removed after close")
	}
}

func TestHub_RequiresUserID(t *testing.T) {
	srv := httptest.NewServer(NewHub(0))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ws")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}
