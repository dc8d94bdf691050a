package loopback

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type observer struct {
	transports []domain.TransportID
	producers  []domain.ProducerID
}

func (o *observer) OnTransportClosed(id domain.TransportID) { o.transports = append(o.transports, id) }
func (o *observer) OnProducerClosed(id domain.ProducerID)   { o.producers = append(o.producers, id) }

func TestGatewayLifecycle(t *testing.T) {
	g := New()
	ctx := context.Background()

	send, err := g.CreateTransport(ctx, "s1", domain.DirectionSend)
	require.NoError(t, err)
	recv, err := g.CreateTransport(ctx, "s2", domain.DirectionRecv)
	require.NoError(t, err)
	assert.NotEqual(t, send.ID, recv.ID)
	assert.True(t, json.Valid(send.ICEParameters))
	assert.True(t, json.Valid(send.ICECandidates))
	assert.True(t, json.Valid(send.DTLSParameters))

	require.NoError(t, g.ConnectTransport(ctx, send.ID, domain.ConnectParams{}))
	assert.ErrorIs(t, g.ConnectTransport(ctx, "nope", domain.ConnectParams{}), core.ErrNotFound)

	_, err = g.Produce(ctx, recv.ID, domain.KindVideo, nil)
	assert.ErrorIs(t, err, core.ErrState)
	pid, err := g.Produce(ctx, send.ID, domain.KindVideo, json.RawMessage(`{"codecs":[{"mimeType":"video/H264"}]}`))
	require.NoError(t, err)

	assert.True(t, g.CanConsume(pid, json.RawMessage(`{"codecs":[{"mimeType":"video/h264"}]}`)))
	assert.False(t, g.CanConsume(pid, g.Capabilities()))

	params, err := g.Consume(ctx, recv.ID, pid, g.Capabilities())
	require.NoError(t, err)
	assert.Nil(t, params, "incompatible capabilities yield no consumer")

	_, err = g.Consume(ctx, send.ID, pid, json.RawMessage(`{"codecs":[{"mimeType":"video/H264"}]}`))
	assert.ErrorIs(t, err, core.ErrState)
	params, err = g.Consume(ctx, recv.ID, pid, json.RawMessage(`{"codecs":[{"mimeType":"video/H264"}]}`))
	require.NoError(t, err)
	require.NotNil(t, params)
	assert.Equal(t, domain.KindVideo, params.Kind)
	assert.Equal(t, pid, params.ProducerID)

	paused, ok := g.Paused(params.ID)
	require.True(t, ok)
	assert.True(t, paused)
	require.NoError(t, g.Resume(ctx, params.ID))
	paused, _ = g.Paused(params.ID)
	assert.False(t, paused)
	require.NoError(t, g.Pause(ctx, params.ID))
	paused, _ = g.Paused(params.ID)
	assert.True(t, paused)

	tr, pr, co := g.Counts()
	assert.Equal(t, [3]int{2, 1, 1}, [3]int{tr, pr, co})

	require.NoError(t, g.Close(domain.ConsumerHandle(params.ID)))
	require.NoError(t, g.Close(domain.ConsumerHandle(params.ID)))
	require.NoError(t, g.Close(domain.ProducerHandle(pid)))
	assert.Equal(t, []domain.Handle{domain.ConsumerHandle(params.ID), domain.ProducerHandle(pid)}, g.Closed())
	assert.ErrorIs(t, g.Resume(ctx, params.ID), core.ErrNotFound)
	assert.ErrorIs(t, g.Close(domain.Handle{Type: 7}), core.ErrGateway)
}

func TestGatewayDefaultMime(t *testing.T) {
	g := New()
	ctx := context.Background()
	send, _ := g.CreateTransport(ctx, "s1", domain.DirectionSend)
	pid, err := g.Produce(ctx, send.ID, domain.KindAudio, json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.True(t, g.CanConsume(pid, g.Capabilities()))
	assert.False(t, g.CanConsume("unknown", g.Capabilities()))
}

func TestGatewayFailAndDelay(t *testing.T) {
	g := New()
	ctx := context.Background()
	boom := errors.New("boom")

	g.Fail(OpCreateTransport, boom)
	_, err := g.CreateTransport(ctx, "s1", domain.DirectionSend)
	assert.ErrorIs(t, err, core.ErrGateway)
	assert.ErrorIs(t, err, boom)

	g.Fail(OpCreateTransport, nil)
	g.Delay(OpCreateTransport, 20*time.Millisecond)
	start := time.Now()
	_, err = g.CreateTransport(ctx, "s1", domain.DirectionSend)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestGatewayEngineSideClosures(t *testing.T) {
	g := New()
	obs := &observer{}
	g.SetObserver(obs)
	ctx := context.Background()

	send, _ := g.CreateTransport(ctx, "s1", domain.DirectionSend)
	pid, _ := g.Produce(ctx, send.ID, domain.KindAudio, nil)

	g.EndProducer(pid)
	g.EndProducer(pid)
	g.FailTransport(send.ID)
	g.FailTransport(send.ID)

	assert.Equal(t, []domain.ProducerID{pid}, obs.producers)
	assert.Equal(t, []domain.TransportID{send.ID}, obs.transports)

	g.Shutdown()
	g.Shutdown()
	select {
	case <-g.Done():
	default:
		t.Fatal("done not closed")
	}
}
