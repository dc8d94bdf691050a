package signal

import (
	"context"
	"encoding/json"

	"github.com/dkeye/Meet/internal/app/orch"
	"github.com/dkeye/Meet/internal/domain"
)

func (ctl *SignalWSController) handleCapabilities(_ context.Context, cl *client, _ json.RawMessage) (any, error) {
	caps, err := ctl.Orch.RouterCapabilities(cl.sid)
	if err != nil {
		return nil, err
	}
	return struct {
		RTPCapabilities json.RawMessage `json:"rtpCapabilities"`
	}{caps}, nil
}

func (ctl *SignalWSController) handleCreateTransport(dir domain.Direction) handlerFunc {
	return func(ctx context.Context, cl *client, _ json.RawMessage) (any, error) {
		return ctl.Orch.CreateTransport(ctx, cl.sid, dir)
	}
}

func (ctl *SignalWSController) handleConnectTransport(dir domain.Direction) handlerFunc {
	return func(ctx context.Context, cl *client, data json.RawMessage) (any, error) {
		var p domain.ConnectParams
		if err := decode(data, &p); err != nil {
			return nil, err
		}
		if err := ctl.Orch.ConnectTransport(ctx, cl.sid, dir, p); err != nil {
			return nil, err
		}
		return okBody, nil
	}
}

func (ctl *SignalWSController) handleProduce(ctx context.Context, cl *client, data json.RawMessage) (any, error) {
	var p orch.ProduceRequest
	if err := decode(data, &p); err != nil {
		return nil, err
	}
	id, err := ctl.Orch.Produce(ctx, cl.sid, p)
	if err != nil {
		return nil, err
	}
	return struct {
		ID domain.ProducerID `json:"id"`
	}{id}, nil
}

func (ctl *SignalWSController) handleConsume(ctx context.Context, cl *client, data json.RawMessage) (any, error) {
	var p orch.ConsumeRequest
	if err := decode(data, &p); err != nil {
		return nil, err
	}
	return ctl.Orch.Consume(ctx, cl.sid, p)
}

type consumerRef struct {
	ConsumerID domain.ConsumerID `json:"consumerId"`
}

func (ctl *SignalWSController) handleResume(ctx context.Context, cl *client, data json.RawMessage) (any, error) {
	var p consumerRef
	if err := decode(data, &p); err != nil {
		return nil, err
	}
	if err := ctl.Orch.ResumeConsumer(ctx, cl.sid, p.ConsumerID); err != nil {
		return nil, err
	}
	return okBody, nil
}

func (ctl *SignalWSController) handlePause(ctx context.Context, cl *client, data json.RawMessage) (any, error) {
	var p consumerRef
	if err := decode(data, &p); err != nil {
		return nil, err
	}
	if err := ctl.Orch.PauseConsumer(ctx, cl.sid, p.ConsumerID); err != nil {
		return nil, err
	}
	return okBody, nil
}

func (ctl *SignalWSController) handleGetProducers(_ context.Context, cl *client, _ json.RawMessage) (any, error) {
	producers, err := ctl.Orch.Producers(cl.sid)
	if err != nil {
		return nil, err
	}
	return struct {
		Producers []orch.ProducerView `json:"producers"`
	}{producers}, nil
}

func (ctl *SignalWSController) handleCloseProducer(_ context.Context, cl *client, data json.RawMessage) (any, error) {
	var p struct {
		ProducerID domain.ProducerID `json:"producerId"`
	}
	if err := decode(data, &p); err != nil {
		return nil, err
	}
	if err := ctl.Orch.CloseProducer(cl.sid, p.ProducerID); err != nil {
		return nil, err
	}
	return okBody, nil
}
