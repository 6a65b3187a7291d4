package handlers

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/promptduel/promptduel/internal/game"
)

const (
	heartbeatInterval = 30 * time.Second
	writeTimeout      = 3 * time.Second
	outQueueSize      = 32
)

// session is one live WebSocket connection. Writes go through the out
// channel so the write pump is the only goroutine touching the socket for
// sends.
type session struct {
	userID uuid.UUID
	conn   *websocket.Conn

	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newSession(userID uuid.UUID, conn *websocket.Conn) *session {
	return &session{
		userID: userID,
		conn:   conn,
		out:    make(chan []byte, outQueueSize),
		done:   make(chan struct{}),
	}
}

// enqueue hands a frame to the write pump without blocking. A full queue
// means the client is not draining; the frame is dropped.
func (s *session) enqueue(data []byte) bool {
	select {
	case <-s.done:
		return false
	case s.out <- data:
		return true
	default:
		return false
	}
}

func (s *session) close(code websocket.StatusCode, reason string) {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.Close(code, reason)
	})
}

// writePump drains the session's out queue onto the socket. Runs until the
// session closes or a write fails.
func (s *session) writePump(ctx context.Context, log *logrus.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case data := <-s.out:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := s.conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				log.WithError(err).WithField("user_id", s.userID).Warn("websocket write failed")
				s.close(websocket.StatusInternalError, "write failed")
				return
			}
		}
	}
}

// Registry tracks live sessions by user and by lobby, and implements the
// engine's Notifier. One session per user: a new connection for the same
// user evicts the old one, which is what makes reconnection work.
type Registry struct {
	log *logrus.Logger

	mu        sync.RWMutex
	byUser    map[uuid.UUID]*session
	byLobby   map[uuid.UUID]map[uuid.UUID]struct{}
	userLobby map[uuid.UUID]uuid.UUID
}

func NewRegistry(log *logrus.Logger) *Registry {
	return &Registry{
		log:       log,
		byUser:    make(map[uuid.UUID]*session),
		byLobby:   make(map[uuid.UUID]map[uuid.UUID]struct{}),
		userLobby: make(map[uuid.UUID]uuid.UUID),
	}
}

// Register binds a connection to a user, evicting any previous session.
func (r *Registry) Register(userID uuid.UUID, conn *websocket.Conn) *session {
	s := newSession(userID, conn)
	r.mu.Lock()
	old := r.byUser[userID]
	r.byUser[userID] = s
	r.mu.Unlock()
	if old != nil {
		old.close(websocket.StatusPolicyViolation, "superseded by a newer connection")
	}
	return s
}

// Unregister removes the session if it is still the user's current one.
// Returns false when a newer connection has already taken over, in which
// case the caller must not treat the user as disconnected.
func (r *Registry) Unregister(userID uuid.UUID, s *session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.byUser[userID]; ok && cur == s {
		delete(r.byUser, userID)
		return true
	}
	return false
}

// NotifyUser sends one event to a single user. Offline users are skipped.
func (r *Registry) NotifyUser(userID uuid.UUID, ev game.Event) {
	r.mu.RLock()
	s := r.byUser[userID]
	r.mu.RUnlock()
	if s == nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		r.log.WithError(err).WithField("event", ev.Type).Error("failed to marshal event")
		return
	}
	if !s.enqueue(data) {
		r.log.WithFields(logrus.Fields{
			"user_id": userID,
			"event":   ev.Type,
		}).Warn("dropping event, send queue full")
	}
}

// NotifyLobby fans an event out to every member bound to the lobby.
func (r *Registry) NotifyLobby(lobbyID uuid.UUID, ev game.Event) {
	r.mu.RLock()
	var sessions []*session
	for userID := range r.byLobby[lobbyID] {
		if s := r.byUser[userID]; s != nil {
			sessions = append(sessions, s)
		}
	}
	r.mu.RUnlock()
	if len(sessions) == 0 {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		r.log.WithError(err).WithField("event", ev.Type).Error("failed to marshal event")
		return
	}
	for _, s := range sessions {
		if !s.enqueue(data) {
			r.log.WithFields(logrus.Fields{
				"user_id": s.userID,
				"event":   ev.Type,
			}).Warn("dropping event, send queue full")
		}
	}
}

// BindLobby adds the user to a lobby's fan-out set.
func (r *Registry) BindLobby(lobbyID, userID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byLobby[lobbyID] == nil {
		r.byLobby[lobbyID] = make(map[uuid.UUID]struct{})
	}
	r.byLobby[lobbyID][userID] = struct{}{}
	r.userLobby[userID] = lobbyID
}

// ReleaseLobby drops the lobby's fan-out set and its members' bindings.
func (r *Registry) ReleaseLobby(lobbyID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for userID := range r.byLobby[lobbyID] {
		if r.userLobby[userID] == lobbyID {
			delete(r.userLobby, userID)
		}
	}
	delete(r.byLobby, lobbyID)
}

// RunHeartbeat pings unmatched sessions on a fixed cycle and reaps the
// ones that miss a pong. Matched sessions are left alone: mid-round drops
// are detected by the read loop, and the player may reconnect.
func (r *Registry) RunHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, s := range r.unmatchedSessions() {
				go func(s *session) {
					pctx, cancel := context.WithTimeout(ctx, writeTimeout)
					defer cancel()
					if err := s.conn.Ping(pctx); err != nil {
						r.log.WithError(err).WithField("user_id", s.userID).Info("heartbeat failed, closing session")
						s.close(websocket.StatusGoingAway, "heartbeat failed")
					}
				}(s)
			}
		}
	}
}

func (r *Registry) unmatchedSessions() []*session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*session
	for userID, s := range r.byUser {
		lobbyID, bound := r.userLobby[userID]
		if !bound || len(r.byLobby[lobbyID]) < 2 {
			out = append(out, s)
		}
	}
	return out
}
