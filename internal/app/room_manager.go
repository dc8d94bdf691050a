package app

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/rs/zerolog/log"
)

type RoomManagerImpl struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]*core.Room
	now   func() time.Time
}

func NewRoomManager() *RoomManagerImpl {
	return &RoomManagerImpl{
		rooms: make(map[domain.RoomID]*core.Room),
		now:   time.Now,
	}
}

func (f *RoomManagerImpl) Create(hostName string, hostUserID domain.UserID) (*core.Room, error) {
	name, err := domain.NormalizeUsername(hostName)
	if err != nil {
		return nil, fmt.Errorf("%w: hostName: %w", core.ErrValidation, err)
	}
	if err := domain.ValidateUserID(hostUserID); err != nil {
		return nil, fmt.Errorf("%w: hostUserId: %w", core.ErrValidation, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	id := domain.NewRoomID()
	for _, taken := f.rooms[id]; taken; _, taken = f.rooms[id] {
		id = domain.NewRoomID()
	}
	room := core.NewRoom(domain.RoomInfo{
		ID:         id,
		HostUserID: hostUserID,
		CreatedBy:  name,
		CreatedAt:  f.now().UTC(),
	})
	f.rooms[id] = room
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Str("host", string(hostUserID)).Msg("room created")
	return room, nil
}

func (f *RoomManagerImpl) Get(id domain.RoomID) (*core.Room, error) {
	f.mu.RLock()
	room, ok := f.rooms[id]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: room %s", core.ErrNotFound, id)
	}
	return room, nil
}

func (f *RoomManagerImpl) snapshot() []*core.Room {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]*core.Room, 0, len(f.rooms))
	for _, r := range f.rooms {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b *core.Room) int {
		if c := a.Info().CreatedAt.Compare(b.Info().CreatedAt); c != 0 {
			return c
		}
		return compareIDs(a.ID(), b.ID())
	})
	return out
}

func compareIDs(a, b domain.RoomID) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func (f *RoomManagerImpl) List() []core.RoomSummary {
	rooms := f.snapshot()
	out := make([]core.RoomSummary, 0, len(rooms))
	for _, r := range rooms {
		info := r.Info()
		out = append(out, core.RoomSummary{
			ID:               info.ID,
			ParticipantCount: r.ParticipantCount(),
			CreatedAt:        info.CreatedAt,
			CreatedBy:        info.CreatedBy,
			HostUserID:       info.HostUserID,
		})
	}
	return out
}

func (f *RoomManagerImpl) ListByUser(userID domain.UserID) []core.UserRoomSummary {
	rooms := f.snapshot()
	out := make([]core.UserRoomSummary, 0)
	for _, r := range rooms {
		info := r.Info()
		isHost := info.HostUserID == userID
		active := r.HasUser(userID)
		if !isHost && !active {
			continue
		}
		out = append(out, core.UserRoomSummary{
			ID:               info.ID,
			ParticipantCount: r.ParticipantCount(),
			CreatedAt:        info.CreatedAt,
			CreatedBy:        info.CreatedBy,
			IsHost:           isHost,
			IsActive:         active,
		})
	}
	return out
}

func (f *RoomManagerImpl) Delete(id domain.RoomID, requester domain.UserID) (*core.Room, []*core.Detached, error) {
	f.mu.Lock()
	room, ok := f.rooms[id]
	if !ok {
		f.mu.Unlock()
		return nil, nil, fmt.Errorf("%w: room %s", core.ErrNotFound, id)
	}
	if room.Info().HostUserID != requester {
		f.mu.Unlock()
		return nil, nil, fmt.Errorf("%w: only the host can delete room %s", core.ErrForbidden, id)
	}
	delete(f.rooms, id)
	f.mu.Unlock()

	detached := room.Close()
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Int("sessions", len(detached)).Msg("room deleted")
	return room, detached, nil
}

func (f *RoomManagerImpl) RemoveIfEmpty(id domain.RoomID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[id]
	if !ok || !room.CloseIfEmpty() {
		return false
	}
	delete(f.rooms, id)
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Msg("empty room removed")
	return true
}
