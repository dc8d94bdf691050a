package domain

// SessionState is the signaling progress of one connection.
type SessionState int

const (
	StateConnected SessionState = iota
	StateIdentified
	StateCapabilitiesKnown
	StateProducerTransportReady
	StateConsumerTransportReady
	StateActive
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateIdentified:
		return "identified"
	case StateCapabilitiesKnown:
		return "capabilitiesKnown"
	case StateProducerTransportReady:
		return "producerTransportReady"
	case StateConsumerTransportReady:
		return "consumerTransportReady"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}
