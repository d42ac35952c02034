package http

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync/atomic"

	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/session"
	"github.com/gorilla/websocket"
)

type WSHandler struct {
	service  *session.Service
	upgrader websocket.Upgrader
	connSeq  uint64
}

func NewWSHandler(service *session.Service) *WSHandler {
	return &WSHandler{
		service: service,
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

type startPayload struct {
	QuestionIDs []string `json:"questionIds"`
	ParentCode  string   `json:"parentCode,omitempty"`
}

type dispatchPayload struct {
	Index      int    `json:"index"`
	QuestionID string `json:"questionId,omitempty"`
}

type setTimerPayload struct {
	TimeLeft float64            `json:"timeLeft"`
	Status   domain.TimerStatus `json:"status,omitempty"`
}

type answerPayload struct {
	QuestionID string             `json:"questionId"`
	Value      domain.AnswerValue `json:"value"`
}

type statsPayload struct {
	QuestionID string `json:"questionId,omitempty"`
}

type answerResult struct {
	QuestionID string `json:"questionId"`
	Received   bool   `json:"received"`
	Reason     string `json:"reason,omitempty"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
}

// trySend queues msg for the writer unless the writer has already exited.
func trySend(send chan<- outboundMessage[any], writerDone <-chan struct{}, msg outboundMessage[any]) {
	select {
	case send <- msg:
	case <-writerDone:
	}
}

// ServeWS upgrades HTTP requests to websockets and wires them into the
// session use cases. Players join the room and submit answers; the
// controller (the session initiator) drives lifecycle and sequencing.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	accessCode := r.URL.Query().Get("accessCode")
	participantID := r.URL.Query().Get("participantId")
	displayName := r.URL.Query().Get("name")
	avatar := r.URL.Query().Get("avatar")
	role := r.URL.Query().Get("role")
	if role == "" {
		role = "player"
	}
	if accessCode == "" || participantID == "" {
		http.Error(w, "missing accessCode or participantId", http.StatusBadRequest)
		return
	}
	if role == "player" && displayName == "" {
		http.Error(w, "missing name", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	connID := fmt.Sprintf("c%d", atomic.AddUint64(&h.connSeq, 1))

	send := make(chan outboundMessage[any], 32)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// Single writer goroutine; everything reaching the socket goes through
	// send so writes never interleave.
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	// push parks the message on the writer queue but gives up once the
	// writer has exited, so a dead socket cannot wedge the read loop on a
	// full channel.
	push := func(msg outboundMessage[any]) {
		trySend(send, writerDone, msg)
	}
	sendErr := func(err error) {
		push(outboundMessage[any]{Type: "error", Payload: errorPayload{
			Message: err.Error(),
			Reason:  domain.RejectReason(err),
		}})
	}

	// Controllers may connect before the session exists; they attach to the
	// room on their first successful start. Players need a live session now.
	var updates <-chan session.Event
	var cancelUpdates func()
	attach := func() error {
		if updates != nil {
			return nil
		}
		ch, cancel, err := h.service.Subscribe(accessCode)
		if err != nil {
			return err
		}
		updates = ch
		cancelUpdates = cancel
		go func() {
			defer close(updatesDone)
			for {
				select {
				case ev, ok := <-ch:
					if !ok {
						return
					}
					select {
					case send <- outboundMessage[any]{Type: ev.Name, Payload: ev.Payload}:
					case <-writerDone:
						return
					case <-closeSignals:
						return
					}
				case <-closeSignals:
					return
				}
			}
		}()
		return nil
	}
	attached := func() bool { return updates != nil }
	defer func() {
		if cancelUpdates != nil {
			cancelUpdates()
		}
	}()

	if role == "player" {
		catchUp, err := h.service.Join(accessCode, connID, participantID, displayName, avatar)
		if err != nil {
			_ = conn.WriteJSON(outboundMessage[any]{Type: "error", Payload: errorPayload{
				Message: err.Error(),
				Reason:  domain.RejectReason(err),
			}})
			close(send)
			<-writerDone
			return
		}
		defer h.service.Disconnect(accessCode, connID)
		if err := attach(); err != nil {
			sendErr(err)
		}
		push(outboundMessage[any]{Type: "joined", Payload: map[string]string{"accessCode": accessCode}})
		for _, ev := range catchUp {
			push(outboundMessage[any]{Type: ev.Name, Payload: ev.Payload})
		}
	} else {
		_ = attach()
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				sendErr(domain.ErrInvalidAnswer)
				continue
			}
			receipt, err := h.service.SubmitAnswer(accessCode, connID, payload.QuestionID, payload.Value)
			if err != nil {
				push(outboundMessage[any]{Type: "answer_result", Payload: answerResult{
					QuestionID: payload.QuestionID,
					Reason:     domain.RejectReason(err),
				}})
				continue
			}
			push(outboundMessage[any]{Type: "answer_result", Payload: answerResult{
				QuestionID: receipt.QuestionID,
				Received:   receipt.Received,
			}})

		case "start":
			var payload startPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				sendErr(err)
				continue
			}
			if err := h.service.Start(r.Context(), accessCode, participantID, payload.QuestionIDs, payload.ParentCode); err != nil {
				sendErr(err)
				continue
			}
			if err := attach(); err != nil {
				sendErr(err)
				continue
			}
			push(outboundMessage[any]{Type: "started", Payload: map[string]string{"accessCode": accessCode}})

		case "dispatch":
			var payload dispatchPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				sendErr(err)
				continue
			}
			if err := h.service.Dispatch(accessCode, participantID, payload.Index, payload.QuestionID); err != nil {
				sendErr(err)
			}

		case "set_timer":
			var payload setTimerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				sendErr(err)
				continue
			}
			if err := h.service.SetTimer(accessCode, participantID, payload.TimeLeft, payload.Status); err != nil {
				sendErr(err)
			}

		case "pause":
			if err := h.service.Pause(accessCode, participantID); err != nil {
				sendErr(err)
			}

		case "resume":
			if err := h.service.Resume(accessCode, participantID); err != nil {
				sendErr(err)
			}

		case "lock":
			if err := h.service.Lock(accessCode, participantID, true); err != nil {
				sendErr(err)
			}

		case "unlock":
			if err := h.service.Lock(accessCode, participantID, false); err != nil {
				sendErr(err)
			}

		case "stop":
			if err := h.service.Stop(accessCode, participantID); err != nil {
				sendErr(err)
			}

		case "stats":
			var payload statsPayload
			if len(inbound.Payload) > 0 {
				if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
					sendErr(err)
					continue
				}
			}
			if _, err := h.service.Stats(accessCode, participantID, payload.QuestionID); err != nil {
				sendErr(err)
			}

		case "leaderboard":
			lb, err := h.service.Leaderboard(accessCode)
			if err != nil {
				sendErr(err)
				continue
			}
			push(outboundMessage[any]{Type: "leaderboard", Payload: lb})

		default:
			push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}})
		}
	}

	close(closeSignals)
	if attached() {
		<-updatesDone
	}
	close(send)
	<-writerDone
}
