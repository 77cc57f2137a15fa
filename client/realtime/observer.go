package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"signoff/client/cache"
	"signoff/client/domain"
	commonlog "signoff/server/common/log"
)

type registration struct {
	event string
	id    int
}

// Observer ties one token-scoped room to one cache key. It holds the key,
// never the entry, and patches through the store so nothing here can close
// over stale data.
type Observer struct {
	conn  *Conn
	store *cache.Store
	key   cache.Key

	mu     sync.Mutex
	joined bool
	closed bool
	regs   []registration
}

// Observe mounts an observer: handlers are registered, then the room is
// joined right away if the connection is already up, otherwise on the
// connect acknowledgment. Join is gated on local joined state because the
// server does not guarantee an idempotent join.
func Observe(conn *Conn, store *cache.Store, key cache.Key) *Observer {
	o := &Observer{conn: conn, store: store, key: key}

	o.regs = []registration{
		{EventConnect, conn.On(EventConnect, func(json.RawMessage) { o.join() })},
		{EventDisconnect, conn.On(EventDisconnect, func(json.RawMessage) { o.dropJoin() })},
		{EventStatusUpdated, conn.On(EventStatusUpdated, o.onStatusUpdated)},
		{EventExpirationUpdated, conn.On(EventExpirationUpdated, o.onExpirationUpdated)},
		{EventFileUploaded, conn.On(EventFileUploaded, o.onFileChanged)},
		{EventFileDeleted, conn.On(EventFileDeleted, o.onFileChanged)},
	}

	if conn.State() == StateConnected {
		o.join()
	} else {
		conn.Connect()
	}
	return o
}

// Close unmounts the observer: the leave message goes out first, then every
// handler registered at mount is deregistered by id. The shared connection
// stays open for other observers. Idempotent.
func (o *Observer) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	wasJoined := o.joined
	o.joined = false
	regs := o.regs
	o.regs = nil
	o.mu.Unlock()

	if wasJoined {
		o.conn.Emit(EventLeaveProject, RoomPayload{Token: o.key.Token})
	}
	for _, r := range regs {
		o.conn.Off(r.event, r.id)
	}
}

func (o *Observer) join() {
	o.mu.Lock()
	if o.closed || o.joined {
		o.mu.Unlock()
		return
	}
	o.mu.Unlock()

	if !o.conn.Emit(EventJoinProject, RoomPayload{Token: o.key.Token}) {
		return
	}

	o.mu.Lock()
	if !o.closed {
		o.joined = true
	}
	o.mu.Unlock()
	commonlog.Infof("event=realtime action=join role=%s", o.key.Role)
}

func (o *Observer) dropJoin() {
	o.mu.Lock()
	o.joined = false
	o.mu.Unlock()
}

func (o *Observer) onStatusUpdated(raw json.RawMessage) {
	var p StatusPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		commonlog.Warnf("event=realtime action=status_update status=bad_payload error=%v", err)
		return
	}
	status := domain.ProjectStatus(p.Status)
	o.store.Apply(o.key, domain.MergeFields{Status: &status, LatestComment: p.LatestComment})
}

func (o *Observer) onExpirationUpdated(raw json.RawMessage) {
	var p ExpirationPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		commonlog.Warnf("event=realtime action=expiration_update status=bad_payload error=%v", err)
		return
	}
	t, err := time.Parse(time.RFC3339, p.ExpiresAt)
	if err != nil {
		commonlog.Warnf("event=realtime action=expiration_update status=bad_timestamp value=%s", p.ExpiresAt)
		return
	}
	o.store.Apply(o.key, domain.MergeFields{ExpiresAt: &t})
}

// File events cannot be merged locally: the signed URL is not in the payload,
// so the whole view goes stale and gets re-fetched.
func (o *Observer) onFileChanged(json.RawMessage) {
	o.store.Apply(o.key, domain.Invalidate{})
}
