package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/example/charity-drive/internal/broadcast"
	"github.com/example/charity-drive/internal/models"
	"github.com/example/charity-drive/internal/observability"
)

var upgrader = websocket.Upgrader{}

// wsCommand is a client frame on the realtime channel.
type wsCommand struct {
	Action   string          `json:"action"` // subscribe | unsubscribe | chat | call_initiate | call_answer | call_end
	Topic    string          `json:"topic,omitempty"`
	RideID   string          `json:"ride_id,omitempty"`
	Text     string          `json:"text,omitempty"`
	CallType models.CallType `json:"call_type,omitempty"`
}

// wsSession bridges one websocket connection onto the hub. Each topic
// subscription forwards into a shared outbound channel drained by a
// single writer goroutine, so conn writes are never concurrent.
type wsSession struct {
	conn *websocket.Conn
	role models.Role
	out  chan broadcast.Event

	mu   sync.Mutex
	subs map[string]*broadcast.Subscription
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	role := models.Role(vars["role"])
	if role != models.RoleRider && role != models.RoleDriver {
		writeJSONError(w, http.StatusBadRequest, "role must be rider or driver")
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		return
	}

	sess := &wsSession{
		conn: conn,
		role: role,
		out:  make(chan broadcast.Event, 64),
		subs: make(map[string]*broadcast.Subscription),
	}
	observability.WSSessions.Inc()
	s.logger.Info("ws session opened", "role", string(role), "client_id", vars["client_id"])

	ctx, cancel := context.WithCancel(r.Context())
	go sess.writePump(ctx)
	s.readPump(ctx, sess)

	cancel()
	sess.closeAll()
	observability.WSSessions.Dec()
	s.logger.Info("ws session closed", "role", string(role), "client_id", vars["client_id"])
}

func (s *Server) readPump(ctx context.Context, sess *wsSession) {
	for {
		var cmd wsCommand
		if err := sess.conn.ReadJSON(&cmd); err != nil {
			return
		}
		if err := s.dispatch(ctx, sess, cmd); err != nil {
			sess.sendError(cmd.Action, err)
		}
	}
}

func (s *Server) dispatch(ctx context.Context, sess *wsSession, cmd wsCommand) error {
	switch cmd.Action {
	case "subscribe":
		sess.subscribe(ctx, s.Hub, cmd.Topic)
	case "unsubscribe":
		sess.unsubscribe(cmd.Topic)
	case "chat":
		_, err := s.Chat.Send(ctx, cmd.RideID, sess.role, cmd.Text)
		return err
	case "call_initiate":
		kind := cmd.CallType
		if kind != models.CallVideo {
			kind = models.CallVoice
		}
		_, err := s.Call.Initiate(ctx, cmd.RideID, sess.role, kind)
		return err
	case "call_answer":
		_, err := s.Call.Answer(cmd.RideID)
		return err
	case "call_end":
		return s.Call.End(cmd.RideID)
	}
	return nil
}

func (ws *wsSession) subscribe(ctx context.Context, hub *broadcast.Hub, topic string) {
	if topic == "" {
		return
	}
	ws.mu.Lock()
	if _, ok := ws.subs[topic]; ok {
		ws.mu.Unlock()
		return
	}
	sub := hub.Subscribe(topic)
	ws.subs[topic] = sub
	ws.mu.Unlock()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub.C:
				if !ok {
					// dropped by the hub; free the slot so the client
					// can subscribe to this topic again
					ws.mu.Lock()
					if ws.subs[topic] == sub {
						delete(ws.subs, topic)
					}
					ws.mu.Unlock()
					return
				}
				select {
				case ws.out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
}

func (ws *wsSession) unsubscribe(topic string) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if sub, ok := ws.subs[topic]; ok {
		sub.Cancel()
		delete(ws.subs, topic)
	}
}

func (ws *wsSession) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-ws.out:
			if err := ws.conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}

// sendError surfaces a command failure as an in-band event frame.
func (ws *wsSession) sendError(action string, err error) {
	payload, _ := json.Marshal(map[string]string{"action": action, "message": err.Error()})
	select {
	case ws.out <- broadcast.Event{Kind: "error", Payload: payload}:
	default:
	}
}

func (ws *wsSession) closeAll() {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	for topic, sub := range ws.subs {
		sub.Cancel()
		delete(ws.subs, topic)
	}
	_ = ws.conn.Close()
}
