package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"souk/internal/message"
)

// Registry is the in-memory presence registry: it maps each user id to the
// set of live connections in that user's room and fans pushed events out to
// all of them.
//
// State is process-local and rebuilt from scratch on restart; connections
// must re-authenticate and rejoin. A distributed deployment would swap this
// for a shared registry behind the same interface without touching the
// delivery gateway.
//
// Concurrency guarantees:
//   - Join/Leave are safe under concurrent pushes.
//   - Pushes never block (drop under backpressure).
//   - Pushes are panic-safe because Client.Send is never closed by the server.
type Registry struct {
	log *slog.Logger

	mu    sync.RWMutex
	rooms map[string]map[string]*Client // userID -> connID -> client
}

// NewRegistry constructs an empty Registry.
func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		log:   log,
		rooms: make(map[string]map[string]*Client),
	}
}

// Join adds a connection to its user's room.
func (r *Registry) Join(client *Client) {
	if r == nil || client == nil || client.UserID == "" || client.ConnID == "" {
		return
	}

	r.mu.Lock()
	room, ok := r.rooms[client.UserID]
	if !ok {
		room = make(map[string]*Client)
		r.rooms[client.UserID] = room
	}
	room[client.ConnID] = client
	r.mu.Unlock()

	wsConnections.Inc()
	r.log.Info("room.join", "user", client.UserID, "conn", client.ConnID)
}

// Leave removes a connection from its user's room and signals shutdown for
// that client. Removal happens before Close so a concurrent pusher never
// holds a pointer to a client that is being torn down.
func (r *Registry) Leave(userID, connID string) {
	if r == nil || userID == "" || connID == "" {
		return
	}

	var cl *Client

	r.mu.Lock()
	if room, ok := r.rooms[userID]; ok {
		cl = room[connID]
		delete(room, connID)
		if len(room) == 0 {
			delete(r.rooms, userID)
		}
	}
	r.mu.Unlock()

	if cl != nil {
		cl.Close()
		wsConnections.Dec()
		r.log.Info("room.leave", "user", userID, "conn", connID)
	}
}

// Connections reports the number of live connections in a user's room.
func (r *Registry) Connections(userID string) int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[userID])
}

// PushMessage delivers a formatted message to every connection in the
// user's room.
func (r *Registry) PushMessage(userID string, view message.MessageView) {
	payload, err := json.Marshal(view)
	if err != nil {
		r.log.Error("room.push.marshal.fail", "err", err)
		return
	}
	r.push(userID, NewEnvelope(EventReceiveMessage, payload, time.Now().UTC()))
}

// PushUnreadCount delivers a new unread total to every connection in the
// user's room.
func (r *Registry) PushUnreadCount(userID string, unread int64) {
	payload, err := json.Marshal(UnreadCountPayload{UnreadCount: unread})
	if err != nil {
		r.log.Error("room.push.marshal.fail", "err", err)
		return
	}
	r.push(userID, NewEnvelope(EventUnreadCountUpdate, payload, time.Now().UTC()))
}

// push fans an envelope out to one room. Non-blocking: if a member's queue
// is full or the client is shutting down, that member is skipped. A user
// with no live connections is a silent no-op; the durable copy already
// exists in the message store.
func (r *Registry) push(userID string, env Envelope) {
	if r == nil || userID == "" {
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, m := range r.rooms[userID] {
		if m == nil {
			continue
		}

		select {
		case <-m.Done():
			// Skip clients that are shutting down.
			pushesDropped.WithLabelValues(env.Type).Inc()
			continue
		default:
		}

		select {
		case m.Send <- env:
			pushesDelivered.WithLabelValues(env.Type).Inc()
		default:
			// Drop rather than block the whole room.
			pushesDropped.WithLabelValues(env.Type).Inc()
			r.log.Info("room.push.drop", "user", userID, "conn", m.ConnID, "type", env.Type)
		}
	}
}
