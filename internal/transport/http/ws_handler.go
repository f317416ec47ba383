package http

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"secure-quiz-service/internal/app"
	"secure-quiz-service/internal/realtime"
)

// WSHandler streams realtime change events to connected admin dashboards.
// Every hub event becomes one outbound frame; a lagging client sees only the
// latest value per topic, never a backlog.
type WSHandler struct {
	hub      *realtime.Hub
	flow     *app.QuizFlowService
	upgrader websocket.Upgrader
}

func NewWSHandler(hub *realtime.Hub, flow *app.QuizFlowService) *WSHandler {
	return &WSHandler{
		hub:  hub,
		flow: flow,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type tabSwitchPayload struct {
	Username string `json:"username"`
}

type tabSwitchResult struct {
	Username    string `json:"username"`
	TabSwitches int    `json:"tabSwitches"`
	Locked      bool   `json:"locked"`
}

// ServeWS upgrades the request and relays hub events until the client hangs
// up. Inbound frames carry security reports from quiz takers.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	events, cancel := h.hub.Subscribe()
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	eventsDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	go func() {
		defer close(eventsDone)
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: string(ev.Topic), Payload: ev.Payload}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	send <- outboundMessage[any]{Type: "joined", Payload: nil}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "ping":
			send <- outboundMessage[any]{Type: "pong", Payload: nil}
		case "tabSwitch":
			var payload tabSwitchPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.Username == "" {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid tabSwitch payload"}}
				continue
			}
			count, locked := h.flow.RecordTabSwitch(r.Context(), payload.Username)
			send <- outboundMessage[any]{Type: "tabSwitchResult", Payload: tabSwitchResult{
				Username:    payload.Username,
				TabSwitches: count,
				Locked:      locked,
			}}
		default:
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
	}

	close(closeSignals)
	<-eventsDone
	close(send)
	<-writerDone
}
