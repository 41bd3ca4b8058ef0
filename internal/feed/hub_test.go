// internal/feed/hub_test.go
package feed

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/user/threatsight/internal/correlation"
	"github.com/user/threatsight/internal/types"
)

func wrapUpgrade(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hub.HandleUpgrade(w, r)
	}
}

func TestHubBroadcastsMessages(t *testing.T) {
	store := correlation.NewStore(correlation.Options{})
	hub := NewHub(store)

	ts := httptest.NewServer(wrapUpgrade(hub))
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// First frame is the connection status.
	var status Frame
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&status); err != nil {
		t.Fatalf("read status: %v", err)
	}
	if status.Type != "status" || status.Status != "connected" {
		t.Fatalf("expected status frame, got %+v", status)
	}

	msg := &types.Message{ID: "m1", SourceID: "a", TargetID: "b", Type: types.TypeDataQuery}
	hub.Publish(msg)

	var frame Frame
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if frame.Type != "message" {
		t.Errorf("expected message frame, got %s", frame.Type)
	}
	if frame.Message == nil || frame.Message.ID != "m1" {
		t.Errorf("unexpected payload: %+v", frame.Message)
	}
}

func TestHubCloseAllDisconnects(t *testing.T) {
	store := correlation.NewStore(correlation.Options{})
	hub := NewHub(store)

	ts := httptest.NewServer(wrapUpgrade(hub))
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.After(2 * time.Second)
	for hub.ClientCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("client never registered")
		case <-time.After(10 * time.Millisecond):
		}
	}

	hub.CloseAll()
	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", hub.ClientCount())
	}
}
