package app

import (
	"testing"
	"time"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopConn struct{}

func (nopConn) TrySend(core.Frame) error { return nil }
func (nopConn) Close()                   {}

func TestRoomManagerCreateValidates(t *testing.T) {
	m := NewRoomManager()

	_, err := m.Create("  ", "alice")
	assert.ErrorIs(t, err, core.ErrValidation)
	assert.ErrorIs(t, err, domain.ErrUsernameEmpty)

	_, err = m.Create("Alice", "")
	assert.ErrorIs(t, err, domain.ErrUserIDEmpty)

	room, err := m.Create(" Alice ", "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", room.Info().CreatedBy)
	assert.Equal(t, domain.UserID("alice"), room.Info().HostUserID)
	assert.Len(t, string(room.ID()), 8)

	got, err := m.Get(room.ID())
	require.NoError(t, err)
	assert.Same(t, room, got)
}

func TestRoomManagerListIsOrderedByCreation(t *testing.T) {
	m := NewRoomManager()
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { clock = clock.Add(time.Second); return clock }

	first, err := m.Create("Alice", "alice")
	require.NoError(t, err)
	second, err := m.Create("Bob", "bob")
	require.NoError(t, err)

	list := m.List()
	require.Len(t, list, 2)
	assert.Equal(t, first.ID(), list[0].ID)
	assert.Equal(t, second.ID(), list[1].ID)
	assert.Equal(t, domain.UserID("bob"), list[1].HostUserID)
}

func TestRoomManagerDelete(t *testing.T) {
	m := NewRoomManager()
	room, err := m.Create("Alice", "alice")
	require.NoError(t, err)
	_, err = room.Join(core.NewSession("s1", nopConn{}), "bob", "Bob", time.Now(), time.Minute)
	require.NoError(t, err)

	_, _, err = m.Delete("nope", "alice")
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, _, err = m.Delete(room.ID(), "bob")
	assert.ErrorIs(t, err, core.ErrForbidden)
	_, err = m.Get(room.ID())
	require.NoError(t, err, "a refused delete leaves the room in place")

	_, detached, err := m.Delete(room.ID(), "alice")
	require.NoError(t, err)
	assert.Len(t, detached, 1)
	assert.True(t, room.Closed())

	_, err = m.Get(room.ID())
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestRoomManagerRemoveIfEmpty(t *testing.T) {
	m := NewRoomManager()
	room, err := m.Create("Alice", "alice")
	require.NoError(t, err)
	_, err = room.Join(core.NewSession("s1", nopConn{}), "alice", "Alice", time.Now(), time.Minute)
	require.NoError(t, err)

	assert.False(t, m.RemoveIfEmpty(room.ID()))
	room.RemoveSession("s1", time.Time{})
	assert.True(t, m.RemoveIfEmpty(room.ID()))
	assert.False(t, m.RemoveIfEmpty(room.ID()))
	assert.Empty(t, m.List())
}

func TestRoomManagerListByUser(t *testing.T) {
	m := NewRoomManager()
	hosted, err := m.Create("Alice", "alice")
	require.NoError(t, err)
	joined, err := m.Create("Bob", "bob")
	require.NoError(t, err)
	_, err = m.Create("Carol", "carol")
	require.NoError(t, err)
	_, err = joined.Join(core.NewSession("s1", nopConn{}), "alice", "Alice", time.Now(), time.Minute)
	require.NoError(t, err)

	rooms := m.ListByUser("alice")
	require.Len(t, rooms, 2)
	byID := map[domain.RoomID]core.UserRoomSummary{}
	for _, r := range rooms {
		byID[r.ID] = r
	}
	assert.True(t, byID[hosted.ID()].IsHost)
	assert.False(t, byID[hosted.ID()].IsActive)
	assert.False(t, byID[joined.ID()].IsHost)
	assert.True(t, byID[joined.ID()].IsActive)
	assert.Equal(t, 1, byID[joined.ID()].ParticipantCount)

	assert.Empty(t, m.ListByUser("dave"))
}
