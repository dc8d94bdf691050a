package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const roomIDLen = 8

var ErrRoomIDEmpty = errors.New("room id empty")

type RoomID string

// NewRoomID returns a short opaque room identifier.
func NewRoomID() RoomID {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return RoomID(raw[:roomIDLen])
}

func (id RoomID) String() string { return string(id) }

// RoomInfo is the immutable part of a room.
type RoomInfo struct {
	ID         RoomID    `json:"id"`
	HostUserID UserID    `json:"hostUserId"`
	CreatedBy  string    `json:"createdBy"`
	CreatedAt  time.Time `json:"createdAt"`
}
