package ws

import (
	"errors"
	"sort"
	"sync"
	"time"

	"daohub_backend/internal/logger"
)

var (
	ErrDuplicateConnection = errors.New("ws: connection id already registered")
	ErrSessionNotFound     = errors.New("ws: session not found")
	ErrNotAuthenticated    = errors.New("ws: session is not authenticated")
	ErrUserMismatch        = errors.New("ws: session belongs to another user")
	ErrPersonalRoom        = errors.New("ws: personal room cannot be left")
)

const (
	userRoomPrefix = "user:"
	daoRoomPrefix  = "dao:"
)

func UserRoom(userID string) string { return userRoomPrefix + userID }
func DAORoom(daoID string) string   { return daoRoomPrefix + daoID }

// Envelope is the message format written to clients.
type Envelope struct {
	Event  string    `json:"event"`
	Data   any       `json:"data,omitempty"`
	SentAt time.Time `json:"sentAt"`
}

// Sender is the transport side of a session. Send must not block; it returns
// false when the message could not be queued.
type Sender interface {
	Send(Envelope) bool
	Close() error
}

type State int

const (
	StateConnected State = iota
	StateAuthenticated
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "disconnected"
	}
}

type Session struct {
	mu          sync.RWMutex
	connID      string
	userID      string
	rooms       map[string]struct{}
	state       State
	connectedAt time.Time
	sender      Sender
}

// SessionInfo is a read-only snapshot of a session.
type SessionInfo struct {
	ConnectionID string    `json:"connectionId"`
	UserID       string    `json:"userId,omitempty"`
	Rooms        []string  `json:"rooms"`
	State        string    `json:"state"`
	ConnectedAt  time.Time `json:"connectedAt"`
}

func (s *Session) info() SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rooms := make([]string, 0, len(s.rooms))
	for room := range s.rooms {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return SessionInfo{
		ConnectionID: s.connID,
		UserID:       s.userID,
		Rooms:        rooms,
		State:        s.state.String(),
		ConnectedAt:  s.connectedAt,
	}
}

type Stats struct {
	Connections   int `json:"connections"`
	Authenticated int `json:"authenticated"`
	Users         int `json:"users"`
	Rooms         int `json:"rooms"`
}

// Registry tracks live sessions, the user -> connections index and room
// membership. Lock order: Registry.mu before Session.mu.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	users    map[string]map[string]struct{}
	rooms    map[string]map[string]struct{}
	now      func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		users:    make(map[string]map[string]struct{}),
		rooms:    make(map[string]map[string]struct{}),
		now:      time.Now,
	}
}

func (r *Registry) OnConnect(connID string, sender Sender) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[connID]; ok {
		return ErrDuplicateConnection
	}
	r.sessions[connID] = &Session{
		connID:      connID,
		rooms:       make(map[string]struct{}),
		state:       StateConnected,
		connectedAt: r.now(),
		sender:      sender,
	}
	return nil
}

// Authenticate binds the session to userID and joins user:{id} plus one room
// per DAO. Authenticating again as the same user only adds rooms.
func (r *Registry) Authenticate(connID, userID string, daoIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[connID]
	if !ok {
		return ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateAuthenticated && s.userID != userID {
		return ErrUserMismatch
	}
	s.userID = userID
	s.state = StateAuthenticated

	addIndex(r.users, userID, connID)
	r.joinLocked(s, UserRoom(userID))
	for _, daoID := range daoIDs {
		r.joinLocked(s, DAORoom(daoID))
	}
	logger.Debug("ws session authenticated", "connection_id", connID, "user_id", userID, "daos", len(daoIDs))
	return nil
}

// joinLocked requires r.mu and s.mu held.
func (r *Registry) joinLocked(s *Session, room string) {
	s.rooms[room] = struct{}{}
	addIndex(r.rooms, room, s.connID)
}

func (r *Registry) leaveLocked(s *Session, room string) {
	delete(s.rooms, room)
	removeIndex(r.rooms, room, s.connID)
}

// OnDisconnect removes the session from every index. Unknown ids are ignored.
func (r *Registry) OnDisconnect(connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[connID]
	if !ok {
		return false
	}
	delete(r.sessions, connID)

	s.mu.Lock()
	for room := range s.rooms {
		removeIndex(r.rooms, room, connID)
	}
	if s.userID != "" {
		removeIndex(r.users, s.userID, connID)
	}
	s.rooms = make(map[string]struct{})
	s.state = StateDisconnected
	s.mu.Unlock()
	return true
}

func (r *Registry) JoinRoom(connID, room string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[connID]
	if !ok {
		return ErrSessionNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAuthenticated {
		return ErrNotAuthenticated
	}
	r.joinLocked(s, room)
	return nil
}

func (r *Registry) LeaveRoom(connID, room string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[connID]
	if !ok {
		return ErrSessionNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAuthenticated {
		return ErrNotAuthenticated
	}
	if room == UserRoom(s.userID) {
		return ErrPersonalRoom
	}
	r.leaveLocked(s, room)
	return nil
}

// JoinUserToDAO adds every live session of userID to dao:{daoID} and returns
// how many sessions joined.
func (r *Registry) JoinUserToDAO(userID, daoID string) int {
	return r.forUserSessions(userID, func(s *Session) {
		r.joinLocked(s, DAORoom(daoID))
	})
}

func (r *Registry) RemoveUserFromDAO(userID, daoID string) int {
	return r.forUserSessions(userID, func(s *Session) {
		r.leaveLocked(s, DAORoom(daoID))
	})
}

func (r *Registry) forUserSessions(userID string, fn func(s *Session)) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for connID := range r.users[userID] {
		s := r.sessions[connID]
		if s == nil {
			continue
		}
		s.mu.Lock()
		fn(s)
		s.mu.Unlock()
		n++
	}
	return n
}

// SendToUser pushes to every session of userID. No sessions is a no-op.
// Returns the number of sessions the message was queued to.
func (r *Registry) SendToUser(userID, event string, payload any) int {
	return r.deliver(r.targets(r.users, userID), event, payload)
}

// BroadcastToRoom pushes to every session in room.
func (r *Registry) BroadcastToRoom(room, event string, payload any) int {
	return r.deliver(r.targets(r.rooms, room), event, payload)
}

type target struct {
	connID string
	sender Sender
}

func (r *Registry) targets(index map[string]map[string]struct{}, key string) []target {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := index[key]
	out := make([]target, 0, len(conns))
	for connID := range conns {
		if s := r.sessions[connID]; s != nil && s.sender != nil {
			out = append(out, target{connID: connID, sender: s.sender})
		}
	}
	return out
}

// deliver sends outside the registry lock. A session whose buffer is full is
// disconnected so one slow client cannot hold back the others.
func (r *Registry) deliver(targets []target, event string, payload any) int {
	if len(targets) == 0 {
		return 0
	}
	env := Envelope{Event: event, Data: payload, SentAt: r.now()}
	sent := 0
	for _, t := range targets {
		if t.sender.Send(env) {
			sent++
			continue
		}
		logger.Warn("ws client dropped: send buffer full", "connection_id", t.connID, "event", event)
		r.OnDisconnect(t.connID)
		_ = t.sender.Close()
	}
	return sent
}

func (r *Registry) Session(connID string) (SessionInfo, bool) {
	r.mu.RLock()
	s, ok := r.sessions[connID]
	r.mu.RUnlock()
	if !ok {
		return SessionInfo{}, false
	}
	return s.info(), true
}

func (r *Registry) UserConnectionCount(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID])
}

func (r *Registry) RoomMembers(room string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{})
	for connID := range r.rooms[room] {
		if s := r.sessions[connID]; s != nil {
			s.mu.RLock()
			if s.userID != "" {
				seen[s.userID] = struct{}{}
			}
			s.mu.RUnlock()
		}
	}
	users := make([]string, 0, len(seen))
	for u := range seen {
		users = append(users, u)
	}
	sort.Strings(users)
	return users
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st := Stats{
		Connections: len(r.sessions),
		Users:       len(r.users),
		Rooms:       len(r.rooms),
	}
	for _, s := range r.sessions {
		s.mu.RLock()
		if s.state == StateAuthenticated {
			st.Authenticated++
		}
		s.mu.RUnlock()
	}
	return st
}

// Broadcast pushes to every live session, used for system notices.
func (r *Registry) Broadcast(event string, payload any) int {
	r.mu.RLock()
	targets := make([]target, 0, len(r.sessions))
	for connID, s := range r.sessions {
		if s.sender != nil {
			targets = append(targets, target{connID: connID, sender: s.sender})
		}
	}
	r.mu.RUnlock()
	return r.deliver(targets, event, payload)
}

func addIndex(index map[string]map[string]struct{}, key, connID string) {
	set, ok := index[key]
	if !ok {
		set = make(map[string]struct{})
		index[key] = set
	}
	set[connID] = struct{}{}
}

func removeIndex(index map[string]map[string]struct{}, key, connID string) {
	set, ok := index[key]
	if !ok {
		return
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(index, key)
	}
}
