// Package rtc implements core.MediaGateway on top of the pion ORTC API.
// Every transport is an ICE+DTLS pair, producers feed an sfu.Relay and
// consumers are RTP senders fed by that relay.
package rtc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/Meet/internal/app/sfu"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/google/uuid"
	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var errICEFailed = errors.New("ice failed")

// DefaultICEServers is used when no ICE servers are configured.
var DefaultICEServers = []string{"stun:stun.l.google.com:19302"}

type Options struct {
	ICEServers []string
	UDPPortMin uint16
	UDPPortMax uint16
}

type producer struct {
	id        domain.ProducerID
	kind      domain.MediaKind
	codec     codec
	ssrc      webrtc.SSRC
	transport *transport
	receiver  *webrtc.RTPReceiver
}

type consumer struct {
	id        domain.ConsumerID
	producer  domain.ProducerID
	transport *transport
	sender    *webrtc.RTPSender
}

type Gateway struct {
	api     *webrtc.API
	iceOpts webrtc.ICEGatherOptions
	relays  *sfu.RelayManager

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.RWMutex
	transports map[domain.TransportID]*transport
	producers  map[domain.ProducerID]*producer
	consumers  map[domain.ConsumerID]*consumer
	observer   core.MediaObserver

	done     chan struct{}
	doneOnce sync.Once
}

var _ core.MediaGateway = (*Gateway)(nil)

func NewGateway(opts Options) (*Gateway, error) {
	m := &webrtc.MediaEngine{}
	if err := registerCodecs(m); err != nil {
		return nil, err
	}
	reg := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, reg); err != nil {
		return nil, fmt.Errorf("interceptors: %w", err)
	}
	se := webrtc.SettingEngine{}
	if opts.UDPPortMin > 0 && opts.UDPPortMax > 0 {
		if err := se.SetEphemeralUDPPortRange(opts.UDPPortMin, opts.UDPPortMax); err != nil {
			return nil, fmt.Errorf("udp port range: %w", err)
		}
	}

	urls := opts.ICEServers
	if len(urls) == 0 {
		urls = DefaultICEServers
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Gateway{
		api: webrtc.NewAPI(
			webrtc.WithMediaEngine(m),
			webrtc.WithInterceptorRegistry(reg),
			webrtc.WithSettingEngine(se),
		),
		iceOpts:    webrtc.ICEGatherOptions{ICEServers: []webrtc.ICEServer{{URLs: urls}}},
		relays:     sfu.NewRelayManager(),
		ctx:        ctx,
		cancel:     cancel,
		transports: make(map[domain.TransportID]*transport),
		producers:  make(map[domain.ProducerID]*producer),
		consumers:  make(map[domain.ConsumerID]*consumer),
		done:       make(chan struct{}),
	}, nil
}

func newID() string { return uuid.NewString() }

func (g *Gateway) Capabilities() json.RawMessage { return capabilities() }

func (g *Gateway) SetObserver(o core.MediaObserver) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.observer = o
}

func (g *Gateway) Done() <-chan struct{} { return g.done }

// Shutdown closes every resource and the Done channel.
func (g *Gateway) Shutdown() {
	g.doneOnce.Do(func() {
		g.cancel()
		g.mu.Lock()
		transports := g.transports
		producers := g.producers
		consumers := g.consumers
		g.transports = make(map[domain.TransportID]*transport)
		g.producers = make(map[domain.ProducerID]*producer)
		g.consumers = make(map[domain.ConsumerID]*consumer)
		g.mu.Unlock()

		for _, c := range consumers {
			_ = c.sender.Stop()
		}
		for id, p := range producers {
			g.relays.StopRelay(string(id))
			_ = p.receiver.Stop()
		}
		for _, t := range transports {
			t.close()
		}
		close(g.done)
		log.Info().Str("module", "rtc").Msg("media gateway shut down")
	})
}

func (g *Gateway) CreateTransport(ctx context.Context, sid domain.SessionID, dir domain.Direction) (*domain.TransportParams, error) {
	t, err := newTransport(g.api, g.iceOpts, sid, dir)
	if err != nil {
		return nil, err
	}
	t.ice.OnConnectionStateChange(func(s webrtc.ICETransportState) {
		log.Debug().Str("module", "rtc").Str("transport", string(t.id)).Str("ice_state", s.String()).Msg("ICE state")
		if s == webrtc.ICETransportStateFailed {
			g.transportFailed(t.id, errICEFailed)
		}
	})

	params, err := t.gather(ctx)
	if err != nil {
		t.close()
		return nil, err
	}

	g.mu.Lock()
	g.transports[t.id] = t
	g.mu.Unlock()
	log.Info().Str("module", "rtc").Str("sid", string(sid)).Str("dir", string(dir)).Str("transport", string(t.id)).Msg("transport created")
	return params, nil
}

func (g *Gateway) transport(id domain.TransportID) (*transport, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	t, ok := g.transports[id]
	if !ok {
		return nil, fmt.Errorf("%w: transport %s", core.ErrNotFound, id)
	}
	return t, nil
}

func (g *Gateway) ConnectTransport(_ context.Context, id domain.TransportID, params domain.ConnectParams) error {
	t, err := g.transport(id)
	if err != nil {
		return err
	}
	return t.connect(params, func(err error) { g.transportFailed(id, err) })
}

// transportFailed drops a transport the engine lost and tells the observer.
func (g *Gateway) transportFailed(id domain.TransportID, cause error) {
	g.mu.Lock()
	t, ok := g.transports[id]
	if ok {
		delete(g.transports, id)
	}
	obs := g.observer
	g.mu.Unlock()
	if !ok {
		return
	}
	log.Warn().Err(cause).Str("module", "rtc").Str("transport", string(id)).Msg("transport lost")
	t.close()
	if obs != nil {
		go obs.OnTransportClosed(id)
	}
}

func (g *Gateway) Produce(ctx context.Context, transportID domain.TransportID, kind domain.MediaKind, rtpParameters json.RawMessage) (domain.ProducerID, error) {
	t, err := g.transport(transportID)
	if err != nil {
		return "", err
	}
	if t.direction != domain.DirectionSend {
		return "", fmt.Errorf("%w: transport %s is not a send transport", core.ErrState, transportID)
	}
	c, coding, err := parseProduce(kind, rtpParameters)
	if err != nil {
		return "", err
	}
	if err := t.waitReady(ctx); err != nil {
		return "", err
	}

	receiver, err := g.api.NewRTPReceiver(codecType(kind), t.dtls)
	if err != nil {
		return "", err
	}
	if err := receiver.Receive(webrtc.RTPReceiveParameters{
		Encodings: []webrtc.RTPDecodingParameters{{RTPCodingParameters: coding}},
	}); err != nil {
		_ = receiver.Stop()
		return "", err
	}

	p := &producer{
		id:        domain.ProducerID(newID()),
		kind:      kind,
		codec:     c,
		ssrc:      coding.SSRC,
		transport: t,
		receiver:  receiver,
	}
	g.mu.Lock()
	g.producers[p.id] = p
	g.mu.Unlock()

	g.relays.StartRelay(g.ctx, string(p.id), receiver.Track(), func() { g.producerEnded(p.id) })
	go drainRTCP(receiver.ReadRTCP, nil)

	log.Info().Str("module", "rtc").Str("producer", string(p.id)).Str("kind", string(kind)).Str("codec", c.MimeType).Msg("producer created")
	return p.id, nil
}

// producerEnded handles an upstream track that stopped by itself.
func (g *Gateway) producerEnded(id domain.ProducerID) {
	g.mu.Lock()
	p, ok := g.producers[id]
	if ok {
		delete(g.producers, id)
	}
	obs := g.observer
	g.mu.Unlock()
	if !ok {
		return
	}
	g.relays.StopRelay(string(id))
	_ = p.receiver.Stop()
	if obs != nil {
		obs.OnProducerClosed(id)
	}
}

func (g *Gateway) CanConsume(producerID domain.ProducerID, rtpCapabilities json.RawMessage) bool {
	g.mu.RLock()
	p, ok := g.producers[producerID]
	g.mu.RUnlock()
	return ok && supports(rtpCapabilities, p.codec.MimeType)
}

func (g *Gateway) Consume(ctx context.Context, transportID domain.TransportID, producerID domain.ProducerID, rtpCapabilities json.RawMessage) (*domain.ConsumerParams, error) {
	t, err := g.transport(transportID)
	if err != nil {
		return nil, err
	}
	if t.direction != domain.DirectionRecv {
		return nil, fmt.Errorf("%w: transport %s is not a receive transport", core.ErrState, transportID)
	}
	g.mu.RLock()
	p, ok := g.producers[producerID]
	g.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: producer %s", core.ErrNotFound, producerID)
	}
	if !supports(rtpCapabilities, p.codec.MimeType) {
		return nil, nil
	}

	id := domain.ConsumerID(newID())
	track, err := webrtc.NewTrackLocalStaticRTP(p.codec.RTPCodecCapability, string(id), string(p.id))
	if err != nil {
		return nil, err
	}
	sender, err := g.api.NewRTPSender(track, t.dtls)
	if err != nil {
		return nil, err
	}
	sendParams := sender.GetParameters()
	if err := sender.Send(sendParams); err != nil {
		_ = sender.Stop()
		return nil, err
	}
	if _, ok := g.relays.AddSubscriber(string(p.id), string(id), track, true); !ok {
		_ = sender.Stop()
		return nil, fmt.Errorf("%w: producer %s has no relay", core.ErrNotFound, p.id)
	}

	c := &consumer{id: id, producer: p.id, transport: t, sender: sender}
	g.mu.Lock()
	g.consumers[id] = c
	g.mu.Unlock()

	go drainRTCP(sender.ReadRTCP, func() { g.requestKeyframe(p.id) })

	var ssrc webrtc.SSRC
	if len(sendParams.Encodings) > 0 {
		ssrc = sendParams.Encodings[0].SSRC
	}
	log.Info().Str("module", "rtc").Str("consumer", string(id)).Str("producer", string(p.id)).Msg("consumer created")
	return &domain.ConsumerParams{
		ID:            id,
		ProducerID:    p.id,
		Kind:          p.kind,
		RTPParameters: consumerRTPParameters(p.codec, ssrc),
	}, nil
}

func (g *Gateway) Resume(_ context.Context, id domain.ConsumerID) error {
	c, err := g.consumer(id)
	if err != nil {
		return err
	}
	if !g.relays.SetSubscriberPaused(string(c.producer), string(id), false) {
		return fmt.Errorf("%w: consumer %s is detached", core.ErrGateway, id)
	}
	g.requestKeyframe(c.producer)
	return nil
}

func (g *Gateway) Pause(_ context.Context, id domain.ConsumerID) error {
	c, err := g.consumer(id)
	if err != nil {
		return err
	}
	if !g.relays.SetSubscriberPaused(string(c.producer), string(id), true) {
		return fmt.Errorf("%w: consumer %s is detached", core.ErrGateway, id)
	}
	return nil
}

func (g *Gateway) consumer(id domain.ConsumerID) (*consumer, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	c, ok := g.consumers[id]
	if !ok {
		return nil, fmt.Errorf("%w: consumer %s", core.ErrNotFound, id)
	}
	return c, nil
}

// requestKeyframe sends a PLI upstream for video producers.
func (g *Gateway) requestKeyframe(id domain.ProducerID) {
	g.mu.RLock()
	p, ok := g.producers[id]
	g.mu.RUnlock()
	if !ok || p.kind != domain.KindVideo {
		return
	}
	if _, err := p.transport.dtls.WriteRTCP([]rtcp.Packet{
		&rtcp.PictureLossIndication{MediaSSRC: uint32(p.ssrc)},
	}); err != nil {
		log.Debug().Err(err).Str("module", "rtc").Str("producer", string(id)).Msg("PLI write failed")
	}
}

func (g *Gateway) Close(h domain.Handle) error {
	switch h.Type {
	case domain.HandleConsumer:
		id := domain.ConsumerID(h.ID)
		g.mu.Lock()
		c, ok := g.consumers[id]
		delete(g.consumers, id)
		g.mu.Unlock()
		if !ok {
			return nil
		}
		g.relays.MarkSubscriberDelete(string(c.producer), string(id))
		return c.sender.Stop()
	case domain.HandleProducer:
		id := domain.ProducerID(h.ID)
		g.mu.Lock()
		p, ok := g.producers[id]
		delete(g.producers, id)
		g.mu.Unlock()
		if !ok {
			return nil
		}
		g.relays.StopRelay(string(id))
		return p.receiver.Stop()
	case domain.HandleTransport:
		id := domain.TransportID(h.ID)
		g.mu.Lock()
		t, ok := g.transports[id]
		delete(g.transports, id)
		g.mu.Unlock()
		if ok {
			t.close()
		}
		return nil
	}
	return fmt.Errorf("%w: unknown handle type %d", core.ErrGateway, h.Type)
}

type rtcpReader func() ([]rtcp.Packet, interceptor.Attributes, error)

// drainRTCP keeps interceptors running and reports keyframe requests.
func drainRTCP(read rtcpReader, onKeyframe func()) {
	for {
		pkts, _, err := read()
		if err != nil {
			return
		}
		if onKeyframe == nil {
			continue
		}
		for _, pkt := range pkts {
			switch pkt.(type) {
			case *rtcp.PictureLossIndication, *rtcp.FullIntraRequest:
				onKeyframe()
			}
		}
	}
}
