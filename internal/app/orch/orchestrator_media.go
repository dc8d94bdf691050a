package orch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/rs/zerolog/log"
)

// RouterCapabilities returns the engine capabilities and moves sid to CapabilitiesKnown.
func (o *Orchestrator) RouterCapabilities(sid domain.SessionID) (json.RawMessage, error) {
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return nil, fmt.Errorf("%w: session %s", core.ErrNotFound, sid)
	}
	sess.MarkCapabilitiesKnown()
	return o.Media.Capabilities(), nil
}

// CreateTransport creates the send or receive transport of sid.
// The slot is reserved before the engine call and committed after it, never across it.
func (o *Orchestrator) CreateTransport(ctx context.Context, sid domain.SessionID, dir domain.Direction) (*domain.TransportParams, error) {
	_, room, err := o.sessionRoom(sid)
	if err != nil {
		return nil, err
	}
	token, err := room.ReserveTransport(sid, dir)
	if err != nil {
		return nil, err
	}

	params, err := o.Media.CreateTransport(ctx, sid, dir)
	if err != nil {
		room.AbortTransport(sid, dir, token)
		return nil, engineErr("create transport", err)
	}
	h := domain.TransportHandle(params.ID)
	if err := o.expired(ctx, "create transport", h); err != nil {
		room.AbortTransport(sid, dir, token)
		return nil, err
	}

	replaced, err := room.CommitTransport(sid, dir, token, params.ID)
	if err != nil {
		o.closeHandles([]domain.Handle{h})
		return nil, err
	}
	o.release(room, replaced)
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("dir", string(dir)).Str("transport", string(params.ID)).Msg("transport created")
	return params, nil
}

func (o *Orchestrator) ConnectTransport(ctx context.Context, sid domain.SessionID, dir domain.Direction, params domain.ConnectParams) error {
	if len(params.DTLSParameters) == 0 {
		return fmt.Errorf("%w: dtlsParameters required", core.ErrValidation)
	}
	_, room, err := o.sessionRoom(sid)
	if err != nil {
		return err
	}
	t, err := room.Transport(sid, dir)
	if err != nil {
		return err
	}
	if err := o.Media.ConnectTransport(ctx, t.ID, params); err != nil {
		return engineErr("connect transport", err)
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%w: connect transport", core.ErrTimeout)
	}
	return room.MarkTransportConnected(sid, dir, t.ID)
}

// Produce publishes a track. An existing producer of the same kind owned by sid is closed first.
func (o *Orchestrator) Produce(ctx context.Context, sid domain.SessionID, req ProduceRequest) (domain.ProducerID, error) {
	if err := Validate(req); err != nil {
		return "", err
	}
	kind, err := domain.ParseMediaKind(req.Kind)
	if err != nil {
		return "", err
	}
	_, room, err := o.sessionRoom(sid)
	if err != nil {
		return "", err
	}
	transportID, replaced, err := room.PrepareProduce(sid, kind)
	if err != nil {
		return "", err
	}
	o.release(room, replaced)

	id, err := o.Media.Produce(ctx, transportID, kind, req.RTPParameters)
	if err != nil {
		return "", engineErr("produce", err)
	}
	h := domain.ProducerHandle(id)
	if err := o.expired(ctx, "produce", h); err != nil {
		return "", err
	}

	prod, replaced, err := room.CommitProducer(domain.Producer{
		ID:          id,
		SessionID:   sid,
		TransportID: transportID,
		Kind:        kind,
	})
	if err != nil {
		o.closeHandles([]domain.Handle{h})
		return "", err
	}
	o.release(room, replaced)

	o.notify(room, sid, core.EventNewProducer, NewProducerEvent{
		ProducerID: prod.ID,
		SocketID:   sid,
		UserID:     prod.UserID,
		Kind:       kind,
	})
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("producer", string(id)).Str("kind", string(kind)).Msg("producer created")
	return id, nil
}

// Consume subscribes sid to a producer. The consumer starts paused.
func (o *Orchestrator) Consume(ctx context.Context, sid domain.SessionID, req ConsumeRequest) (*domain.ConsumerParams, error) {
	if err := Validate(req); err != nil {
		return nil, err
	}
	_, room, err := o.sessionRoom(sid)
	if err != nil {
		return nil, err
	}
	transportID, prod, err := room.PrepareConsume(sid, req.ProducerID)
	if err != nil {
		return nil, err
	}
	if !o.Media.CanConsume(prod.ID, req.RTPCapabilities) {
		return nil, fmt.Errorf("%w: cannot consume producer %s with the given capabilities", core.ErrValidation, prod.ID)
	}

	params, err := o.Media.Consume(ctx, transportID, prod.ID, req.RTPCapabilities)
	if err != nil {
		return nil, engineErr("consume", err)
	}
	if params == nil {
		return nil, fmt.Errorf("%w: cannot consume producer %s with the given capabilities", core.ErrValidation, prod.ID)
	}
	h := domain.ConsumerHandle(params.ID)
	if err := o.expired(ctx, "consume", h); err != nil {
		return nil, err
	}

	replaced, err := room.CommitConsumer(domain.Consumer{
		ID:          params.ID,
		SessionID:   sid,
		ProducerID:  prod.ID,
		TransportID: transportID,
		Kind:        prod.Kind,
		Paused:      true,
	})
	if err != nil {
		o.closeHandles([]domain.Handle{h})
		return nil, err
	}
	o.release(room, replaced)
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("consumer", string(params.ID)).Str("producer", string(prod.ID)).Msg("consumer created")
	return params, nil
}

func (o *Orchestrator) ResumeConsumer(ctx context.Context, sid domain.SessionID, id domain.ConsumerID) error {
	return o.setConsumerPaused(ctx, sid, id, false)
}

func (o *Orchestrator) PauseConsumer(ctx context.Context, sid domain.SessionID, id domain.ConsumerID) error {
	return o.setConsumerPaused(ctx, sid, id, true)
}

func (o *Orchestrator) setConsumerPaused(ctx context.Context, sid domain.SessionID, id domain.ConsumerID, paused bool) error {
	if id == "" {
		return fmt.Errorf("%w: consumerId required", core.ErrValidation)
	}
	_, room, err := o.sessionRoom(sid)
	if err != nil {
		return err
	}
	if _, err := room.Consumer(sid, id); err != nil {
		return err
	}
	op, call := "resume consumer", o.Media.Resume
	if paused {
		op, call = "pause consumer", o.Media.Pause
	}
	if err := call(ctx, id); err != nil {
		return engineErr(op, err)
	}
	return room.SetConsumerPaused(sid, id, paused)
}

// Producers lists the room's producers that do not belong to the caller's user.
func (o *Orchestrator) Producers(sid domain.SessionID) ([]ProducerView, error) {
	sess, room, err := o.sessionRoom(sid)
	if err != nil {
		return nil, err
	}
	userID, _ := sess.Identity()
	return producerViews(room.Producers(userID)), nil
}

// CloseProducer closes a producer owned by sid on request.
func (o *Orchestrator) CloseProducer(sid domain.SessionID, id domain.ProducerID) error {
	if id == "" {
		return fmt.Errorf("%w: producerId required", core.ErrValidation)
	}
	_, room, err := o.sessionRoom(sid)
	if err != nil {
		return err
	}
	d, err := room.RemoveProducer(id, sid)
	if err != nil {
		return err
	}
	o.release(room, d)
	return nil
}

// OnTransportClosed handles a transport the engine closed by itself (e.g. ICE failure).
func (o *Orchestrator) OnTransportClosed(id domain.TransportID) {
	for _, summary := range o.Rooms.List() {
		room, err := o.Rooms.Get(summary.ID)
		if err != nil {
			continue
		}
		if d := room.RemoveTransport(id); d != nil {
			log.Info().Str("module", "orch").Str("room", string(room.ID())).Str("transport", string(id)).Msg("transport closed by engine")
			o.release(room, d)
			return
		}
	}
}

// OnProducerClosed handles an upstream track end. Only the sessions that consumed it are told.
func (o *Orchestrator) OnProducerClosed(id domain.ProducerID) {
	for _, summary := range o.Rooms.List() {
		room, err := o.Rooms.Get(summary.ID)
		if err != nil {
			continue
		}
		d, err := room.RemoveProducer(id, "")
		if err != nil {
			continue
		}
		log.Info().Str("module", "orch").Str("room", string(room.ID())).Str("producer", string(id)).Msg("producer closed by engine")
		o.closeHandles(d.Handles())
		for _, p := range d.Producers {
			sids := make([]domain.SessionID, 0, len(d.PeerConsumers))
			for _, c := range d.PeerConsumers {
				sids = append(sids, c.SessionID)
			}
			o.notifySessions(room, sids, core.EventProducerClosed, ProducerClosedEvent{
				ProducerID: p.ID,
				SocketID:   p.SessionID,
				UserID:     p.UserID,
			})
		}
		return
	}
}
