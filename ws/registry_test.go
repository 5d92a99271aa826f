package ws

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu       sync.Mutex
	messages []Envelope
	full     bool
	closed   bool
}

func (f *fakeSender) Send(env Envelope) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full || f.closed {
		return false
	}
	f.messages = append(f.messages, env)
	return true
}

func (f *fakeSender) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeSender) events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.messages))
	for _, m := range f.messages {
		out = append(out, m.Event)
	}
	return out
}

func connect(t *testing.T, r *Registry, connID, userID string, daos ...string) *fakeSender {
	t.Helper()
	s := &fakeSender{}
	require.NoError(t, r.OnConnect(connID, s))
	require.NoError(t, r.Authenticate(connID, userID, daos))
	return s
}

func TestSendToUserReachesAllSessions(t *testing.T) {
	r := NewRegistry()
	phone := connect(t, r, "c1", "u1")
	laptop := connect(t, r, "c2", "u1")
	other := connect(t, r, "c3", "u2")

	n := r.SendToUser("u1", "notification", map[string]string{"id": "n1"})

	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"notification"}, phone.events())
	assert.Equal(t, []string{"notification"}, laptop.events())
	assert.Empty(t, other.events())
	assert.Equal(t, 2, r.UserConnectionCount("u1"))
}

func TestSendToOfflineUserIsNoop(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, 0, r.SendToUser("ghost", "notification", nil))
}

func TestAuthenticateJoinsRooms(t *testing.T) {
	r := NewRegistry()
	connect(t, r, "c1", "u1", "d1", "d2")

	info, ok := r.Session("c1")
	require.True(t, ok)
	assert.Equal(t, "authenticated", info.State)
	assert.Equal(t, []string{"dao:d1", "dao:d2", "user:u1"}, info.Rooms)
	assert.Equal(t, []string{"u1"}, r.RoomMembers(DAORoom("d1")))
}

func TestAuthenticateAsOtherUserFails(t *testing.T) {
	r := NewRegistry()
	connect(t, r, "c1", "u1")
	assert.ErrorIs(t, r.Authenticate("c1", "u2", nil), ErrUserMismatch)
	assert.ErrorIs(t, r.Authenticate("missing", "u2", nil), ErrSessionNotFound)
}

func TestDuplicateConnection(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.OnConnect("c1", &fakeSender{}))
	assert.ErrorIs(t, r.OnConnect("c1", &fakeSender{}), ErrDuplicateConnection)
}

func TestJoinRoomRequiresAuthentication(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.OnConnect("c1", &fakeSender{}))
	assert.ErrorIs(t, r.JoinRoom("c1", DAORoom("d1")), ErrNotAuthenticated)
}

func TestJoinUserToDAOThenBroadcast(t *testing.T) {
	r := NewRegistry()
	s1 := connect(t, r, "c1", "u1")
	s2 := connect(t, r, "c2", "u1")
	outsider := connect(t, r, "c3", "u2")

	assert.Equal(t, 2, r.JoinUserToDAO("u1", "d1"))
	assert.Equal(t, 2, r.BroadcastToRoom(DAORoom("d1"), "proposal", nil))
	assert.Len(t, s1.events(), 1)
	assert.Len(t, s2.events(), 1)
	assert.Empty(t, outsider.events())

	assert.Equal(t, 2, r.RemoveUserFromDAO("u1", "d1"))
	assert.Equal(t, 0, r.BroadcastToRoom(DAORoom("d1"), "proposal", nil))
}

func TestLeaveRoom(t *testing.T) {
	r := NewRegistry()
	connect(t, r, "c1", "u1", "d1")

	require.NoError(t, r.LeaveRoom("c1", DAORoom("d1")))
	assert.Empty(t, r.RoomMembers(DAORoom("d1")))
	assert.ErrorIs(t, r.LeaveRoom("c1", UserRoom("u1")), ErrPersonalRoom)
}

func TestDisconnectCleansIndexes(t *testing.T) {
	r := NewRegistry()
	connect(t, r, "c1", "u1", "d1")

	assert.True(t, r.OnDisconnect("c1"))
	assert.False(t, r.OnDisconnect("c1"))

	_, ok := r.Session("c1")
	assert.False(t, ok)
	assert.Equal(t, 0, r.UserConnectionCount("u1"))
	assert.Equal(t, Stats{}, r.Stats())
}

func TestSlowClientIsDropped(t *testing.T) {
	r := NewRegistry()
	slow := connect(t, r, "c1", "u1")
	fast := connect(t, r, "c2", "u1")
	slow.full = true

	assert.Equal(t, 1, r.SendToUser("u1", "notification", nil))
	assert.True(t, slow.closed)
	assert.Equal(t, 1, r.UserConnectionCount("u1"))
	assert.Len(t, fast.events(), 1)
}

func TestConcurrentConnectBroadcastDisconnect(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			connID := fmt.Sprintf("c%d", i)
			s := &fakeSender{}
			if err := r.OnConnect(connID, s); err != nil {
				return
			}
			_ = r.Authenticate(connID, fmt.Sprintf("u%d", i%5), []string{"d1"})
			r.BroadcastToRoom(DAORoom("d1"), "tick", i)
			r.SendToUser(fmt.Sprintf("u%d", i%5), "tick", i)
			r.OnDisconnect(connID)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, Stats{}, r.Stats())
}
