// Package loopback is an in-process media gateway without network I/O.
// Handles are plain map entries with sequential ids.
package loopback

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/rs/zerolog/log"
)

// Op names a gateway operation for failure and delay injection.
type Op string

const (
	OpCreateTransport  Op = "createTransport"
	OpConnectTransport Op = "connectTransport"
	OpProduce          Op = "produce"
	OpConsume          Op = "consume"
	OpResume           Op = "resume"
	OpPause            Op = "pause"
)

var defaultMime = map[domain.MediaKind]string{
	domain.KindAudio: "audio/opus",
	domain.KindVideo: "video/VP8",
}

var capabilities = json.RawMessage(`{"codecs":[` +
	`{"kind":"audio","mimeType":"audio/opus","preferredPayloadType":111,"clockRate":48000,"channels":2},` +
	`{"kind":"video","mimeType":"video/VP8","preferredPayloadType":96,"clockRate":90000}` +
	`],"headerExtensions":[]}`)

type transport struct {
	sid       domain.SessionID
	direction domain.Direction
	connected bool
}

type producer struct {
	transport domain.TransportID
	kind      domain.MediaKind
	mime      string
}

type consumer struct {
	transport domain.TransportID
	producer  domain.ProducerID
	paused    bool
}

type Gateway struct {
	mu         sync.Mutex
	seq        int
	transports map[domain.TransportID]*transport
	producers  map[domain.ProducerID]*producer
	consumers  map[domain.ConsumerID]*consumer
	failures   map[Op]error
	delays     map[Op]time.Duration
	closed     []domain.Handle
	observer   core.MediaObserver

	done     chan struct{}
	doneOnce sync.Once
}

var _ core.MediaGateway = (*Gateway)(nil)

func New() *Gateway {
	return &Gateway{
		transports: make(map[domain.TransportID]*transport),
		producers:  make(map[domain.ProducerID]*producer),
		consumers:  make(map[domain.ConsumerID]*consumer),
		failures:   make(map[Op]error),
		delays:     make(map[Op]time.Duration),
		done:       make(chan struct{}),
	}
}

// Fail makes every later call of op return err. A nil err clears it.
func (g *Gateway) Fail(op Op, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err == nil {
		delete(g.failures, op)
		return
	}
	g.failures[op] = err
}

// Delay makes op finish no sooner than d, whatever the caller's deadline.
func (g *Gateway) Delay(op Op, d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.delays[op] = d
}

func (g *Gateway) begin(op Op) error {
	g.mu.Lock()
	d := g.delays[op]
	err := g.failures[op]
	g.mu.Unlock()
	if d > 0 {
		time.Sleep(d)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", core.ErrGateway, op, err)
	}
	return nil
}

func (g *Gateway) nextID(prefix string) string {
	g.seq++
	return fmt.Sprintf("%s%d", prefix, g.seq)
}

func (g *Gateway) Capabilities() json.RawMessage { return capabilities }

func (g *Gateway) SetObserver(o core.MediaObserver) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.observer = o
}

func (g *Gateway) Done() <-chan struct{} { return g.done }

// Shutdown simulates loss of the engine.
func (g *Gateway) Shutdown() {
	g.doneOnce.Do(func() { close(g.done) })
}

func (g *Gateway) CreateTransport(_ context.Context, sid domain.SessionID, dir domain.Direction) (*domain.TransportParams, error) {
	if err := g.begin(OpCreateTransport); err != nil {
		return nil, err
	}
	g.mu.Lock()
	id := domain.TransportID(g.nextID("t"))
	g.transports[id] = &transport{sid: sid, direction: dir}
	g.mu.Unlock()
	return &domain.TransportParams{
		ID:             id,
		ICEParameters:  json.RawMessage(`{"usernameFragment":"` + string(id) + `","password":"loopback","iceLite":true}`),
		ICECandidates:  json.RawMessage(`[{"foundation":"1","priority":1,"address":"127.0.0.1","protocol":"udp","port":40000,"type":"host"}]`),
		DTLSParameters: json.RawMessage(`{"role":"auto","fingerprints":[{"algorithm":"sha-256","value":"00"}]}`),
	}, nil
}

func (g *Gateway) ConnectTransport(_ context.Context, id domain.TransportID, _ domain.ConnectParams) error {
	if err := g.begin(OpConnectTransport); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.transports[id]
	if !ok {
		return fmt.Errorf("%w: transport %s", core.ErrNotFound, id)
	}
	t.connected = true
	return nil
}

func (g *Gateway) Produce(_ context.Context, transportID domain.TransportID, kind domain.MediaKind, rtpParameters json.RawMessage) (domain.ProducerID, error) {
	if err := g.begin(OpProduce); err != nil {
		return "", err
	}
	mime := producerMime(kind, rtpParameters)
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.transports[transportID]
	if !ok {
		return "", fmt.Errorf("%w: transport %s", core.ErrNotFound, transportID)
	}
	if t.direction != domain.DirectionSend {
		return "", fmt.Errorf("%w: transport %s is not a send transport", core.ErrState, transportID)
	}
	id := domain.ProducerID(g.nextID("p"))
	g.producers[id] = &producer{transport: transportID, kind: kind, mime: mime}
	return id, nil
}

func producerMime(kind domain.MediaKind, raw json.RawMessage) string {
	var p struct {
		Codecs []struct {
			MimeType string `json:"mimeType"`
		} `json:"codecs"`
	}
	if err := json.Unmarshal(raw, &p); err == nil && len(p.Codecs) > 0 && p.Codecs[0].MimeType != "" {
		return p.Codecs[0].MimeType
	}
	return defaultMime[kind]
}

func (g *Gateway) CanConsume(producerID domain.ProducerID, rtpCapabilities json.RawMessage) bool {
	g.mu.Lock()
	p, ok := g.producers[producerID]
	g.mu.Unlock()
	if !ok {
		return false
	}
	var caps struct {
		Codecs []struct {
			MimeType string `json:"mimeType"`
		} `json:"codecs"`
	}
	if err := json.Unmarshal(rtpCapabilities, &caps); err != nil {
		return false
	}
	for _, c := range caps.Codecs {
		if strings.EqualFold(c.MimeType, p.mime) {
			return true
		}
	}
	return false
}

func (g *Gateway) Consume(_ context.Context, transportID domain.TransportID, producerID domain.ProducerID, rtpCapabilities json.RawMessage) (*domain.ConsumerParams, error) {
	if err := g.begin(OpConsume); err != nil {
		return nil, err
	}
	if !g.CanConsume(producerID, rtpCapabilities) {
		return nil, nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.transports[transportID]
	if !ok {
		return nil, fmt.Errorf("%w: transport %s", core.ErrNotFound, transportID)
	}
	if t.direction != domain.DirectionRecv {
		return nil, fmt.Errorf("%w: transport %s is not a receive transport", core.ErrState, transportID)
	}
	p, ok := g.producers[producerID]
	if !ok {
		return nil, fmt.Errorf("%w: producer %s", core.ErrNotFound, producerID)
	}
	id := domain.ConsumerID(g.nextID("c"))
	g.consumers[id] = &consumer{transport: transportID, producer: producerID, paused: true}
	return &domain.ConsumerParams{
		ID:            id,
		ProducerID:    producerID,
		Kind:          p.kind,
		RTPParameters: json.RawMessage(fmt.Sprintf(`{"codecs":[{"mimeType":%q}],"encodings":[{"ssrc":%d}]}`, p.mime, 1000+g.seq)),
	}, nil
}

func (g *Gateway) Resume(_ context.Context, id domain.ConsumerID) error {
	return g.setPaused(OpResume, id, false)
}

func (g *Gateway) Pause(_ context.Context, id domain.ConsumerID) error {
	return g.setPaused(OpPause, id, true)
}

func (g *Gateway) setPaused(op Op, id domain.ConsumerID, paused bool) error {
	if err := g.begin(op); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.consumers[id]
	if !ok {
		return fmt.Errorf("%w: consumer %s", core.ErrNotFound, id)
	}
	c.paused = paused
	return nil
}

func (g *Gateway) Close(h domain.Handle) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	var ok bool
	switch h.Type {
	case domain.HandleTransport:
		_, ok = g.transports[domain.TransportID(h.ID)]
		delete(g.transports, domain.TransportID(h.ID))
	case domain.HandleProducer:
		_, ok = g.producers[domain.ProducerID(h.ID)]
		delete(g.producers, domain.ProducerID(h.ID))
	case domain.HandleConsumer:
		_, ok = g.consumers[domain.ConsumerID(h.ID)]
		delete(g.consumers, domain.ConsumerID(h.ID))
	default:
		return fmt.Errorf("%w: unknown handle type %d", core.ErrGateway, h.Type)
	}
	if ok {
		g.closed = append(g.closed, h)
		log.Debug().Str("module", "loopback").Str("handle", h.Type.String()).Str("id", h.ID).Msg("closed")
	}
	return nil
}

// EndProducer simulates an upstream track end.
func (g *Gateway) EndProducer(id domain.ProducerID) {
	g.mu.Lock()
	_, ok := g.producers[id]
	delete(g.producers, id)
	obs := g.observer
	g.mu.Unlock()
	if ok && obs != nil {
		obs.OnProducerClosed(id)
	}
}

// FailTransport simulates a transport lost by the engine.
func (g *Gateway) FailTransport(id domain.TransportID) {
	g.mu.Lock()
	_, ok := g.transports[id]
	delete(g.transports, id)
	obs := g.observer
	g.mu.Unlock()
	if ok && obs != nil {
		obs.OnTransportClosed(id)
	}
}

// Counts reports live transports, producers and consumers.
func (g *Gateway) Counts() (transports, producers, consumers int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.transports), len(g.producers), len(g.consumers)
}

// Closed returns every handle closed so far, in order.
func (g *Gateway) Closed() []domain.Handle {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]domain.Handle, len(g.closed))
	copy(out, g.closed)
	return out
}

// Paused reports the engine-side pause flag of a consumer.
func (g *Gateway) Paused(id domain.ConsumerID) (bool, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.consumers[id]
	if !ok {
		return false, false
	}
	return c.paused, true
}
