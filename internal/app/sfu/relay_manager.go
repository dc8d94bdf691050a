package sfu

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// RelayManager owns one relay per producer id.
type RelayManager struct {
	mu     sync.RWMutex
	relays map[string]*Relay
}

func NewRelayManager() *RelayManager {
	return &RelayManager{
		relays: make(map[string]*Relay),
	}
}

// StartRelay creates a Relay for producer and starts its loop.
// onEnd runs once if the source ends by itself.
func (m *RelayManager) StartRelay(ctx context.Context, producer string, src RTPSource, onEnd func()) *Relay {
	logger := log.With().
		Str("module", "relay").
		Str("producer", producer).
		Logger()

	relayCtx, cancel := context.WithCancel(ctx)
	relay := NewRelay(src, cancel)

	m.mu.Lock()
	if old, ok := m.relays[producer]; ok {
		logger.Info().Msg("replacing existing relay for producer")
		old.markAllDelete()
		if old.cancel != nil {
			old.cancel()
		}
	}
	m.relays[producer] = relay
	m.mu.Unlock()

	logger.Info().Msg("starting relay loop")

	go relay.loop(relayCtx, &logger, onEnd)
	return relay
}

// AddSubscriber attaches an OutTrack for consumer to the relay of producer.
func (m *RelayManager) AddSubscriber(producer, consumer string, track RTPWriter, paused bool) (*OutTrack, bool) {
	m.mu.RLock()
	relay, ok := m.relays[producer]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	ot := NewOutTrack(track, paused)
	relay.AddOutTrack(consumer, ot)
	return ot, true
}

// MarkSubscriberDelete marks consumer's OutTrack as TrackStateDelete.
func (m *RelayManager) MarkSubscriberDelete(producer, consumer string) {
	if ot, ok := m.subscriber(producer, consumer); ok {
		ot.MarkDelete()
	}
}

// SetSubscriberPaused mutes or unmutes consumer's OutTrack.
func (m *RelayManager) SetSubscriberPaused(producer, consumer string, paused bool) bool {
	ot, ok := m.subscriber(producer, consumer)
	if !ok {
		return false
	}
	if paused {
		ot.MarkMuted()
	} else {
		ot.MarkOk()
	}
	return true
}

func (m *RelayManager) subscriber(producer, consumer string) (*OutTrack, bool) {
	m.mu.RLock()
	relay, ok := m.relays[producer]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return relay.OutTrack(consumer)
}

// StopRelay stops a relay and removes it from the manager.
func (m *RelayManager) StopRelay(producer string) {
	m.mu.Lock()
	relay, ok := m.relays[producer]
	if ok {
		delete(m.relays, producer)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	relay.markAllDelete()
	if relay.cancel != nil {
		relay.cancel()
	}
}

// HasRelay reports whether a relay exists for producer.
func (m *RelayManager) HasRelay(producer string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.relays[producer]
	return ok
}
