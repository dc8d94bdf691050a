package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrUnknownKind = errors.New("unknown media kind")

type MediaKind string

const (
	KindAudio MediaKind = "audio"
	KindVideo MediaKind = "video"
)

func ParseMediaKind(s string) (MediaKind, error) {
	switch MediaKind(s) {
	case KindAudio, KindVideo:
		return MediaKind(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Direction of a transport as seen from the client.
type Direction string

const (
	DirectionSend Direction = "send"
	DirectionRecv Direction = "recv"
)

type (
	TransportID string
	ProducerID  string
	ConsumerID  string
)

// HandleType tags a media-engine handle for Close.
type HandleType int

const (
	HandleTransport HandleType = iota
	HandleProducer
	HandleConsumer
)

func (t HandleType) String() string {
	switch t {
	case HandleTransport:
		return "transport"
	case HandleProducer:
		return "producer"
	case HandleConsumer:
		return "consumer"
	}
	return "unknown"
}

// Handle is an opaque reference to a media-engine resource.
type Handle struct {
	Type HandleType
	ID   string
}

func TransportHandle(id TransportID) Handle { return Handle{Type: HandleTransport, ID: string(id)} }
func ProducerHandle(id ProducerID) Handle   { return Handle{Type: HandleProducer, ID: string(id)} }
func ConsumerHandle(id ConsumerID) Handle   { return Handle{Type: HandleConsumer, ID: string(id)} }

type Transport struct {
	ID        TransportID
	SessionID SessionID
	Direction Direction
	Connected bool
}

type Producer struct {
	ID          ProducerID
	SessionID   SessionID
	UserID      UserID
	UserName    string
	TransportID TransportID
	Kind        MediaKind
}

type Consumer struct {
	ID          ConsumerID
	SessionID   SessionID
	ProducerID  ProducerID
	TransportID TransportID
	Kind        MediaKind
	Paused      bool
}

// TransportParams is what the client needs to build its side of a transport.
// The core relays the raw fields without interpreting them.
type TransportParams struct {
	ID             TransportID     `json:"id"`
	ICEParameters  json.RawMessage `json:"iceParameters"`
	ICECandidates  json.RawMessage `json:"iceCandidates"`
	DTLSParameters json.RawMessage `json:"dtlsParameters"`
	SCTPParameters json.RawMessage `json:"sctpParameters,omitempty"`
}

// ConnectParams carries the client's transport parameters.
type ConnectParams struct {
	DTLSParameters json.RawMessage `json:"dtlsParameters"`
	ICEParameters  json.RawMessage `json:"iceParameters,omitempty"`
	ICECandidates  json.RawMessage `json:"iceCandidates,omitempty"`
}

type ConsumerParams struct {
	ID            ConsumerID      `json:"id"`
	ProducerID    ProducerID      `json:"producerId"`
	Kind          MediaKind       `json:"kind"`
	RTPParameters json.RawMessage `json:"rtpParameters"`
}
