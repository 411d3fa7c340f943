// README: Room registry and fan-out for realtime sessions; rooms may be relayed across instances.
package realtime

import (
	"context"
	"log/slog"
	"sync"

	"foodtrack/internal/contracts"
	"foodtrack/internal/logging"
	"foodtrack/internal/types"
)

// Relay carries room frames between instances. Frames published through a
// relay come back through Hub.DeliverLocal on every subscribed instance.
type Relay interface {
	Publish(ctx context.Context, room string, f contracts.Frame) error
}

type Hub struct {
	mu       sync.RWMutex
	sessions map[*Session]struct{}
	rooms    map[string]map[*Session]struct{}
	relay    Relay
	logger   *slog.Logger
	sendBuf  int
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		sessions: make(map[*Session]struct{}),
		rooms:    make(map[string]map[*Session]struct{}),
		logger:   logging.Or(logger),
		sendBuf:  64,
	}
}

// SetRelay switches Broadcast to go through r. Call before serving sessions.
func (h *Hub) SetRelay(r Relay) {
	h.mu.Lock()
	h.relay = r
	h.mu.Unlock()
}

// Register opens a session for conn and joins its personal room.
func (h *Hub) Register(conn Conn, who types.Identity) *Session {
	s := newSession(conn, who, h.sendBuf, h.logger)
	h.mu.Lock()
	h.sessions[s] = struct{}{}
	h.joinLocked(s, contracts.UserRoom(who.ID))
	h.mu.Unlock()
	go s.writeLoop()
	h.logger.Info("ws_registered", "user_id", string(who.ID), "role", string(who.Role))
	return s
}

// Unregister drops every membership and closes the session.
func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	if _, ok := h.sessions[s]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.sessions, s)
	for room := range s.rooms {
		h.leaveLocked(s, room)
	}
	h.mu.Unlock()
	s.close()
	h.logger.Info("ws_removed", "user_id", string(s.who.ID))
}

// Join adds s to room.
func (h *Hub) Join(s *Session, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.joinLocked(s, room)
}

func (h *Hub) Leave(s *Session, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(s, room)
}

// SwitchOrderRoom leaves any order room s is in and joins room.
func (h *Hub) SwitchOrderRoom(s *Session, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.orderRoom == room {
		return
	}
	if s.orderRoom != "" {
		h.leaveLocked(s, s.orderRoom)
	}
	h.joinLocked(s, room)
	s.orderRoom = room
}

// LeaveOrderRoom leaves the current order room, if any.
func (h *Hub) LeaveOrderRoom(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.orderRoom == "" {
		return
	}
	h.leaveLocked(s, s.orderRoom)
	s.orderRoom = ""
}

func (h *Hub) joinLocked(s *Session, room string) {
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Session]struct{})
		h.rooms[room] = members
	}
	members[s] = struct{}{}
	s.rooms[room] = struct{}{}
}

func (h *Hub) leaveLocked(s *Session, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, s)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(s.rooms, room)
	if s.orderRoom == room {
		s.orderRoom = ""
	}
}

// Rooms returns the rooms s belongs to.
func (h *Hub) Rooms(s *Session) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(s.rooms))
	for r := range s.rooms {
		out = append(out, r)
	}
	return out
}

func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Broadcast sends an event to a room on every instance.
func (h *Hub) Broadcast(ctx context.Context, room, event string, payload any) {
	f, err := contracts.NewFrame(event, payload)
	if err != nil {
		h.logger.Error("ws_frame_encode_failed", "event", event, "error", err)
		return
	}
	h.mu.RLock()
	relay := h.relay
	h.mu.RUnlock()
	if relay != nil {
		err := relay.Publish(ctx, room, f)
		if err == nil {
			return
		}
		h.logger.Warn("relay_publish_failed", "room", room, "event", event, "error", err)
	}
	h.DeliverLocal(room, f)
}

// DeliverLocal enqueues f on every session of this instance in room.
func (h *Hub) DeliverLocal(room string, f contracts.Frame) {
	h.mu.RLock()
	targets := make([]*Session, 0, len(h.rooms[room]))
	for s := range h.rooms[room] {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		if !s.enqueue(f) {
			h.logger.Warn("ws_slow_consumer_dropped", "user_id", string(s.who.ID), "room", room)
			h.Unregister(s)
		}
	}
}

// Close ends every session.
func (h *Hub) Close() {
	h.mu.RLock()
	all := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		all = append(all, s)
	}
	h.mu.RUnlock()
	for _, s := range all {
		h.Unregister(s)
	}
}
