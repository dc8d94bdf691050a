package core

import (
	"context"
	"encoding/json"

	"github.com/dkeye/Meet/internal/domain"
)

// MediaGateway is the boundary to the SFU media engine.
// The core stores and relays what it returns and never interprets the raw parameters.
type MediaGateway interface {
	// Capabilities returns the router RTP capabilities handed to clients.
	Capabilities() json.RawMessage
	CreateTransport(ctx context.Context, sid domain.SessionID, dir domain.Direction) (*domain.TransportParams, error)
	ConnectTransport(ctx context.Context, id domain.TransportID, params domain.ConnectParams) error
	Produce(ctx context.Context, transportID domain.TransportID, kind domain.MediaKind, rtpParameters json.RawMessage) (domain.ProducerID, error)
	CanConsume(producerID domain.ProducerID, rtpCapabilities json.RawMessage) bool
	// Consume returns nil, nil when the capabilities cannot consume the producer.
	Consume(ctx context.Context, transportID domain.TransportID, producerID domain.ProducerID, rtpCapabilities json.RawMessage) (*domain.ConsumerParams, error)
	Resume(ctx context.Context, id domain.ConsumerID) error
	Pause(ctx context.Context, id domain.ConsumerID) error
	// Close releases a handle. Closing an unknown handle is not an error.
	Close(h domain.Handle) error
	// SetObserver registers the receiver of engine-side closures.
	SetObserver(MediaObserver)
	// Done is closed when the engine is lost for good.
	Done() <-chan struct{}
}

// MediaObserver is notified about resources the engine closed on its own.
type MediaObserver interface {
	OnTransportClosed(id domain.TransportID)
	OnProducerClosed(id domain.ProducerID)
}
