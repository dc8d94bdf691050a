package orch

import (
	"encoding/json"
	"time"

	"github.com/dkeye/Meet/internal/domain"
)

// Event payloads pushed to clients.

type PeerJoinedEvent struct {
	SocketID         domain.SessionID `json:"socketId"`
	UserID           domain.UserID    `json:"userId"`
	UserName         string           `json:"userName"`
	IsHost           bool             `json:"isHost"`
	IsReconnection   bool             `json:"isReconnection"`
	PreviousSocketID domain.SessionID `json:"previousSocketId,omitempty"`
}

type PeerLeftEvent struct {
	SocketID domain.SessionID `json:"socketId"`
	UserID   domain.UserID    `json:"userId"`
	UserName string           `json:"userName"`
}

type NewProducerEvent struct {
	ProducerID domain.ProducerID `json:"producerId"`
	SocketID   domain.SessionID  `json:"socketId"`
	UserID     domain.UserID     `json:"userId"`
	Kind       domain.MediaKind  `json:"kind"`
}

type ProducerClosedEvent struct {
	ProducerID domain.ProducerID `json:"producerId"`
	SocketID   domain.SessionID  `json:"socketId"`
	UserID     domain.UserID     `json:"userId"`
}

type RoomDeletedEvent struct {
	RoomID  domain.RoomID `json:"roomId"`
	Message string        `json:"message"`
}

// Request and response bodies.

type JoinRequest struct {
	RoomID   domain.RoomID `json:"roomId" validate:"required"`
	UserName string        `json:"userName" validate:"required"`
	UserID   domain.UserID `json:"userId"`
}

type JoinResponse struct {
	Success           bool                 `json:"success"`
	RoomID            domain.RoomID        `json:"roomId"`
	UserID            domain.UserID        `json:"userId"`
	IsHost            bool                 `json:"isHost"`
	IsReconnection    bool                 `json:"isReconnection"`
	Participants      []domain.Participant `json:"participants"`
	ExistingProducers []ProducerView       `json:"existingProducers"`
	Messages          []domain.Message     `json:"messages"`
}

type ProducerView struct {
	ProducerID domain.ProducerID `json:"producerId"`
	SocketID   domain.SessionID  `json:"socketId"`
	UserID     domain.UserID     `json:"userId"`
	UserName   string            `json:"userName"`
	Kind       domain.MediaKind  `json:"kind"`
}

func producerViews(in []domain.Producer) []ProducerView {
	out := make([]ProducerView, 0, len(in))
	for _, p := range in {
		out = append(out, ProducerView{
			ProducerID: p.ID,
			SocketID:   p.SessionID,
			UserID:     p.UserID,
			UserName:   p.UserName,
			Kind:       p.Kind,
		})
	}
	return out
}

// SendMessageRequest leaves Message untagged: its length is checked after the flood limit.
type SendMessageRequest struct {
	RoomID  domain.RoomID `json:"roomId" validate:"required"`
	Message string        `json:"message"`
}

type ProduceRequest struct {
	Kind          string          `json:"kind" validate:"required,oneof=audio video"`
	RTPParameters json.RawMessage `json:"rtpParameters" validate:"required"`
}

type ConsumeRequest struct {
	ProducerID      domain.ProducerID `json:"producerId" validate:"required"`
	RTPCapabilities json.RawMessage   `json:"rtpCapabilities" validate:"required"`
}

// ParticipantDetails is a participant as listed by the room API.
type ParticipantDetails struct {
	UserID   domain.UserID `json:"userId"`
	Name     string        `json:"name"`
	JoinedAt time.Time     `json:"joinedAt"`
	IsHost   bool          `json:"isHost"`
	IsOnline bool          `json:"isOnline"`
}

type RoomDetails struct {
	ID               domain.RoomID        `json:"id"`
	ParticipantCount int                  `json:"participantCount"`
	CreatedAt        time.Time            `json:"createdAt"`
	CreatedBy        string               `json:"createdBy"`
	HostUserID       domain.UserID        `json:"hostUserId"`
	Participants     []ParticipantDetails `json:"participants"`
}

// SessionInfo answers whoami.
type SessionInfo struct {
	SocketID domain.SessionID `json:"socketId"`
	UserID   domain.UserID    `json:"userId,omitempty"`
	UserName string           `json:"userName,omitempty"`
	RoomID   domain.RoomID    `json:"roomId,omitempty"`
	State    string           `json:"state"`
}
