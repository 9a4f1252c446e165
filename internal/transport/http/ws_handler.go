package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/engine"
	"live-quiz-service/internal/events"
)

// WSHandler relays engine lifecycle events to participant websockets and
// feeds their answer submissions back into the engine. It is a pure
// transport: all quiz semantics stay in the engine.
type WSHandler struct {
	engine   *engine.Engine
	bus      *events.Bus
	log      *slog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(eng *engine.Engine, bus *events.Bus, log *slog.Logger) *WSHandler {
	return &WSHandler{
		engine: eng,
		bus:    bus,
		log:    log,
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

type answerPayload struct {
	AnswerIDs []int64 `json:"answerIds"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// ServeWS upgrades the connection, registers the participant and starts the
// event relay. Identity resolution (auth) happens upstream; we only require
// its outcome as query parameters.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	participant := domain.Participant{
		ID:     r.URL.Query().Get("userId"),
		Name:   r.URL.Query().Get("name"),
		Avatar: r.URL.Query().Get("avatar"),
	}
	if participant.ID == "" || participant.Name == "" {
		http.Error(w, "missing userId or name", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	// Subscribe before joining so the participant's own join event is not
	// lost between the two calls.
	updates, cancel := h.bus.Subscribe()
	defer cancel()

	if err := h.engine.Join(r.Context(), participant); err != nil {
		h.log.Error("join failed", "participant", participant.ID, "err", err)
		_ = conn.WriteJSON(outboundMessage{Type: "error", Payload: map[string]string{"message": "join failed"}})
		return
	}

	send := make(chan outboundMessage, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	relayDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug("ws write error", "participant", participant.ID, "err", err)
				return
			}
		}
	}()

	go func() {
		defer close(relayDone)
		for {
			select {
			case ev, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage{Type: string(ev.Kind), Payload: ev.Payload}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	// Late joiners need the current state to render the open question.
	send <- outboundMessage{Type: "welcome", Payload: h.engine.Status()}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				// Malformed submissions are expected client noise; drop them.
				h.log.Debug("invalid answer payload", "participant", participant.ID, "err", err)
				continue
			}
			if err := h.engine.SubmitAnswer(r.Context(), participant.ID, payload.AnswerIDs); err != nil {
				h.log.Error("submit answer", "participant", participant.ID, "err", err)
			}
		default:
			h.log.Debug("unsupported ws message", "type", inbound.Type)
		}
	}

	close(closeSignals)
	<-relayDone
	close(send)
	<-writerDone
}
