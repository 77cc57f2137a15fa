package service

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"signoff/client/realtime"
	commonlog "signoff/server/common/log"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) writeJSON(v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteJSON(v); err != nil {
		commonlog.Debugf("event=notifier action=write status=failed error=%v", err)
	}
}

// Notifier keeps token-scoped rooms of websocket clients and fans project
// events out to them. Rooms are keyed by capability token, so the admin and
// public observers of one project sit in two distinct rooms.
type Notifier struct {
	mu    sync.RWMutex
	rooms map[string]map[*wsClient]struct{}
}

func NewNotifier() *Notifier {
	return &Notifier{rooms: map[string]map[*wsClient]struct{}{}}
}

// HandleWS upgrades the connection and serves join/leave envelopes until the
// peer goes away, at which point it is removed from every room it joined.
func (n *Notifier) HandleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	client := &wsClient{conn: conn}
	joined := map[string]struct{}{}
	defer func() {
		for token := range joined {
			n.leave(token, client)
		}
		_ = conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var env realtime.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			continue
		}
		var room realtime.RoomPayload
		if err := json.Unmarshal(env.Payload, &room); err != nil || room.Token == "" {
			continue
		}
		switch env.Event {
		case realtime.EventJoinProject:
			n.join(room.Token, client)
			joined[room.Token] = struct{}{}
		case realtime.EventLeaveProject:
			n.leave(room.Token, client)
			delete(joined, room.Token)
		}
	}
}

// Broadcast delivers one event to every client in the given rooms.
func (n *Notifier) Broadcast(tokens []string, event string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	env := realtime.Envelope{Event: event, Payload: raw}

	n.mu.RLock()
	clients := map[*wsClient]struct{}{}
	for _, token := range tokens {
		for client := range n.rooms[token] {
			clients[client] = struct{}{}
		}
	}
	n.mu.RUnlock()

	for client := range clients {
		client.writeJSON(env)
	}
	commonlog.Debugf("event=notifier action=broadcast name=%s fanout_count=%d", event, len(clients))
}

func (n *Notifier) join(token string, client *wsClient) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.rooms[token] == nil {
		n.rooms[token] = map[*wsClient]struct{}{}
	}
	n.rooms[token][client] = struct{}{}
}

func (n *Notifier) leave(token string, client *wsClient) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if room, ok := n.rooms[token]; ok {
		delete(room, client)
		if len(room) == 0 {
			delete(n.rooms, token)
		}
	}
}
