package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MessageHistoryLimit is how many of the latest chat messages a joining client receives.
const MessageHistoryLimit = 50

var (
	ErrMessageEmpty   = errors.New("message empty")
	ErrMessageTooLong = errors.New("message too long")
)

type MessageID string

type Message struct {
	ID        MessageID `json:"id"`
	RoomID    RoomID    `json:"-"`
	UserID    UserID    `json:"userId"`
	UserName  string    `json:"userName"`
	Text      string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func NewMessage(roomID RoomID, from Participant, text string, maxLen int) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, ErrMessageEmpty
	}
	if maxLen > 0 && len([]rune(text)) > maxLen {
		return Message{}, ErrMessageTooLong
	}
	return Message{
		ID:        MessageID(uuid.NewString()),
		RoomID:    roomID,
		UserID:    from.UserID,
		UserName:  from.Name,
		Text:      text,
		Timestamp: time.Now().UTC(),
	}, nil
}
