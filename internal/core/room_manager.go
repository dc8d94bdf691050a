package core

import (
	"time"

	"github.com/dkeye/Meet/internal/domain"
)

// RoomSummary is the list view of a room.
type RoomSummary struct {
	ID               domain.RoomID `json:"id"`
	ParticipantCount int           `json:"participantCount"`
	CreatedAt        time.Time     `json:"createdAt"`
	CreatedBy        string        `json:"createdBy"`
	HostUserID       domain.UserID `json:"hostUserId"`
}

// UserRoomSummary is a room seen from one user.
type UserRoomSummary struct {
	ID               domain.RoomID `json:"id"`
	ParticipantCount int           `json:"participantCount"`
	CreatedAt        time.Time     `json:"createdAt"`
	CreatedBy        string        `json:"createdBy"`
	IsHost           bool          `json:"isHost"`
	IsActive         bool          `json:"isActive"`
}

// RoomManager is the room registry. It owns the id → room mapping only;
// room contents are guarded by each Room.
type RoomManager interface {
	Create(hostName string, hostUserID domain.UserID) (*Room, error)
	Get(id domain.RoomID) (*Room, error)
	List() []RoomSummary
	// Delete removes the room if requester is its host and returns it closed.
	Delete(id domain.RoomID, requester domain.UserID) (*Room, []*Detached, error)
	// RemoveIfEmpty drops the room when nobody is in it (delete-on-empty policy).
	RemoveIfEmpty(id domain.RoomID) bool
	ListByUser(userID domain.UserID) []UserRoomSummary
}
