// Package realtime maintains the push notification channel: one shared
// websocket connection per process and per-token room observers that turn
// inbound events into cache mutations. Channel loss is never fatal; the
// polling fallback keeps the view eventually consistent.
package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	commonlog "signoff/server/common/log"
)

// Wire event names, shared with the backend notifier.
const (
	EventConnect    = "connect"
	EventDisconnect = "disconnect"

	EventStatusUpdated     = "project-status-updated"
	EventExpirationUpdated = "project-expiration-updated"
	EventFileUploaded      = "file-uploaded"
	EventFileDeleted       = "file-deleted"

	EventJoinProject  = "join-project"
	EventLeaveProject = "leave-project"
)

// Envelope frames every message on the channel.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type RoomPayload struct {
	Token string `json:"token"`
}

type StatusPayload struct {
	Status        string  `json:"status"`
	LatestComment *string `json:"latestComment,omitempty"`
}

type ExpirationPayload struct {
	ExpiresAt string `json:"expiresAt"`
}

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosed
)

const reconnectBackoff = 3 * time.Second

// Conn is the process-wide channel handle. Observers share it and only ever
// leave their own room; nobody closes it on unmount.
type Conn struct {
	url string

	mu       sync.Mutex
	ws       *websocket.Conn
	state    State
	handlers map[string]map[int]func(json.RawMessage)
	nextID   int
}

var (
	sharedMu sync.Mutex
	shared   *Conn
)

// Shared returns the lazily created process-wide connection handle. The
// first caller fixes the URL; later URLs are ignored.
func Shared(url string) *Conn {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if shared == nil {
		shared = NewConn(url)
	}
	return shared
}

func NewConn(url string) *Conn {
	return &Conn{
		url:      url,
		handlers: map[string]map[int]func(json.RawMessage){},
	}
}

func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect starts the dial loop if the connection is down. Safe to call from
// every observer mount; only the first call does anything.
func (c *Conn) Connect() {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	c.mu.Unlock()

	go c.run()
}

func (c *Conn) run() {
	for {
		c.mu.Lock()
		if c.state == StateClosed {
			c.mu.Unlock()
			return
		}
		c.state = StateConnecting
		url := c.url
		c.mu.Unlock()

		ws, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			commonlog.Warnf("event=realtime action=dial status=failed url=%s error=%v", url, err)
			time.Sleep(reconnectBackoff)
			continue
		}

		c.mu.Lock()
		if c.state == StateClosed {
			c.mu.Unlock()
			_ = ws.Close()
			return
		}
		c.ws = ws
		c.state = StateConnected
		c.mu.Unlock()

		commonlog.Infof("event=realtime action=connect status=ok url=%s", url)
		c.dispatch(EventConnect, nil)

		c.readLoop(ws)

		c.mu.Lock()
		closed := c.state == StateClosed
		if c.ws == ws {
			c.ws = nil
		}
		if !closed {
			c.state = StateDisconnected
		}
		c.mu.Unlock()

		_ = ws.Close()
		c.dispatch(EventDisconnect, nil)
		if closed {
			return
		}
		commonlog.Warnf("event=realtime action=connection_lost url=%s", url)
		time.Sleep(reconnectBackoff)
	}
}

func (c *Conn) readLoop(ws *websocket.Conn) {
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			commonlog.Debugf("event=realtime action=decode status=failed error=%v", err)
			continue
		}
		c.dispatch(env.Event, env.Payload)
	}
}

// Emit sends an envelope if the channel is up. Emitting while disconnected
// is a silent no-op; correctness does not depend on the push channel.
func (c *Conn) Emit(event string, payload any) bool {
	raw, err := json.Marshal(payload)
	if err != nil {
		return false
	}
	env := Envelope{Event: event, Payload: raw}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected || c.ws == nil {
		return false
	}
	if err := c.ws.WriteJSON(env); err != nil {
		commonlog.Warnf("event=realtime action=emit status=failed name=%s error=%v", event, err)
		return false
	}
	return true
}

// On registers a handler and returns its registration id. Handlers are
// removed by id, never by value, so a remount with the same token cannot
// accumulate duplicate deliveries.
func (c *Conn) On(event string, fn func(json.RawMessage)) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	if c.handlers[event] == nil {
		c.handlers[event] = map[int]func(json.RawMessage){}
	}
	c.handlers[event][id] = fn
	return id
}

func (c *Conn) Off(event string, id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.handlers[event]; ok {
		delete(m, id)
		if len(m) == 0 {
			delete(c.handlers, event)
		}
	}
}

// Close tears the connection down for good. Only process shutdown calls
// this; observers must never close the shared connection.
func (c *Conn) Close() {
	c.mu.Lock()
	c.state = StateClosed
	ws := c.ws
	c.ws = nil
	c.mu.Unlock()
	if ws != nil {
		_ = ws.Close()
	}
}

func (c *Conn) dispatch(event string, payload json.RawMessage) {
	c.mu.Lock()
	fns := make([]func(json.RawMessage), 0, len(c.handlers[event]))
	for _, fn := range c.handlers[event] {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(payload)
	}
}
