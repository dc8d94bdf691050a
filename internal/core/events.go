package core

import "encoding/json"

const (
	EventPeerJoined     = "peer-joined"
	EventPeerLeft       = "peerLeft"
	EventNewProducer    = "newProducer"
	EventProducerClosed = "producerClosed"
	EventNewMessage     = "newMessage"
	EventRoomDeleted    = "roomDeleted"
)

type eventFrame struct {
	Type  string `json:"type"`
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// EncodeEvent builds the frame pushed to clients for a server event.
func EncodeEvent(name string, data any) (Frame, error) {
	return json.Marshal(eventFrame{Type: "event", Event: name, Data: data})
}
