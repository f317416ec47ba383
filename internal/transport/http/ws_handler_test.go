package http

import (
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"secure-quiz-service/internal/realtime"
)

func TestWebSocketRelaysHubEvents(t *testing.T) {
	s := newTestServer(t)

	u := "ws" + s.URL[len("http"):] + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	typ, _ := readNext(conn, t, "joined")
	if typ != "joined" {
		t.Fatalf("expected joined frame, got %s", typ)
	}

	s.hub.Publish(realtime.TopicQuestions, 7)
	typ, _ = readNext(conn, t, "")
	if typ != string(realtime.TopicQuestions) {
		t.Fatalf("expected %s frame, got %s", realtime.TopicQuestions, typ)
	}
}

func TestWebSocketPingPongAndUnknownType(t *testing.T) {
	s := newTestServer(t)

	u := "ws" + s.URL[len("http"):] + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	readNext(conn, t, "joined")

	if err := conn.WriteJSON(map[string]any{"type": "ping"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	readNext(conn, t, "pong")

	if err := conn.WriteJSON(map[string]any{"type": "bogus"}); err != nil {
		t.Fatalf("write bogus: %v", err)
	}
	readNext(conn, t, "error")
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, any) {
	t.Helper()
	var msg struct {
		Type    string `json:"type"`
		Payload any    `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s", expect, msg.Type)
	}
	return msg.Type, msg.Payload
}
