package core

import "github.com/dkeye/Meet/internal/domain"

// Detached is a set of resources removed from a room in one atomic step.
// The caller closes them through the media gateway and notifies peers.
type Detached struct {
	Participant *domain.Participant
	Session     *Session
	Transports  []domain.Transport
	Producers   []domain.Producer
	// Consumers are held by the detached session itself.
	Consumers []domain.Consumer
	// PeerConsumers are held by other sessions and were bound to a detached producer.
	PeerConsumers []domain.Consumer
}

func (d *Detached) merge(o *Detached) {
	if o == nil {
		return
	}
	d.Transports = append(d.Transports, o.Transports...)
	d.Producers = append(d.Producers, o.Producers...)
	d.Consumers = append(d.Consumers, o.Consumers...)
	d.PeerConsumers = append(d.PeerConsumers, o.PeerConsumers...)
}

// Merge folds o into d; either may be nil.
func Merge(d, o *Detached) *Detached {
	if d == nil {
		return o
	}
	d.merge(o)
	return d
}

func (d *Detached) Empty() bool {
	return d == nil || (d.Participant == nil && len(d.Transports) == 0 && len(d.Producers) == 0 &&
		len(d.Consumers) == 0 && len(d.PeerConsumers) == 0)
}

// Handles lists the engine handles to close, consumers before producers before transports.
func (d *Detached) Handles() []domain.Handle {
	if d == nil {
		return nil
	}
	out := make([]domain.Handle, 0, len(d.Consumers)+len(d.PeerConsumers)+len(d.Producers)+len(d.Transports))
	for _, c := range d.Consumers {
		out = append(out, domain.ConsumerHandle(c.ID))
	}
	for _, c := range d.PeerConsumers {
		out = append(out, domain.ConsumerHandle(c.ID))
	}
	for _, p := range d.Producers {
		out = append(out, domain.ProducerHandle(p.ID))
	}
	for _, t := range d.Transports {
		out = append(out, domain.TransportHandle(t.ID))
	}
	return out
}
