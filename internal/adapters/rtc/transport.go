package rtc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var errTransportClosed = errors.New("transport closed")

type dtlsParametersJSON struct {
	Role         string                   `json:"role"`
	Fingerprints []webrtc.DTLSFingerprint `json:"fingerprints"`
}

type iceCandidateJSON struct {
	Foundation string `json:"foundation"`
	Priority   uint32 `json:"priority"`
	Address    string `json:"address"`
	IP         string `json:"ip,omitempty"`
	Protocol   string `json:"protocol"`
	Port       uint16 `json:"port"`
	Type       string `json:"type"`
}

func dtlsRole(s string) webrtc.DTLSRole {
	switch s {
	case "client":
		return webrtc.DTLSRoleClient
	case "server":
		return webrtc.DTLSRoleServer
	}
	return webrtc.DTLSRoleAuto
}

// transport is one ICE+DTLS pair. Media flows once ready is closed.
type transport struct {
	id        domain.TransportID
	sid       domain.SessionID
	direction domain.Direction

	gatherer *webrtc.ICEGatherer
	ice      *webrtc.ICETransport
	dtls     *webrtc.DTLSTransport

	ready     chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
	startOnce sync.Once
}

func newTransport(api *webrtc.API, opts webrtc.ICEGatherOptions, sid domain.SessionID, dir domain.Direction) (*transport, error) {
	gatherer, err := api.NewICEGatherer(opts)
	if err != nil {
		return nil, fmt.Errorf("ice gatherer: %w", err)
	}
	ice := api.NewICETransport(gatherer)
	dtls, err := api.NewDTLSTransport(ice, nil)
	if err != nil {
		_ = gatherer.Close()
		return nil, fmt.Errorf("dtls transport: %w", err)
	}
	return &transport{
		id:        domain.TransportID(newID()),
		sid:       sid,
		direction: dir,
		gatherer:  gatherer,
		ice:       ice,
		dtls:      dtls,
		ready:     make(chan struct{}),
		closed:    make(chan struct{}),
	}, nil
}

// gather collects local candidates and returns what the client needs.
func (t *transport) gather(ctx context.Context) (*domain.TransportParams, error) {
	done := make(chan struct{})
	var once sync.Once
	t.gatherer.OnLocalCandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			once.Do(func() { close(done) })
		}
	})
	if err := t.gatherer.Gather(); err != nil {
		return nil, fmt.Errorf("gather: %w", err)
	}
	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	candidates, err := t.gatherer.GetLocalCandidates()
	if err != nil {
		return nil, err
	}
	iceParams, err := t.gatherer.GetLocalParameters()
	if err != nil {
		return nil, err
	}
	dtlsParams, err := t.dtls.GetLocalParameters()
	if err != nil {
		return nil, err
	}

	out := make([]iceCandidateJSON, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, iceCandidateJSON{
			Foundation: c.Foundation,
			Priority:   c.Priority,
			Address:    c.Address,
			IP:         c.Address,
			Protocol:   c.Protocol.String(),
			Port:       c.Port,
			Type:       c.Typ.String(),
		})
	}
	iceRaw, _ := json.Marshal(iceParams)
	candRaw, _ := json.Marshal(out)
	dtlsRaw, _ := json.Marshal(dtlsParametersJSON{
		Role:         dtlsParams.Role.String(),
		Fingerprints: dtlsParams.Fingerprints,
	})
	return &domain.TransportParams{
		ID:             t.id,
		ICEParameters:  iceRaw,
		ICECandidates:  candRaw,
		DTLSParameters: dtlsRaw,
	}, nil
}

// connect starts ICE and DTLS in the background. onFail runs if either never comes up.
func (t *transport) connect(params domain.ConnectParams, onFail func(error)) error {
	var remoteDTLS dtlsParametersJSON
	if err := json.Unmarshal(params.DTLSParameters, &remoteDTLS); err != nil {
		return fmt.Errorf("%w: dtlsParameters: %w", core.ErrValidation, err)
	}
	if len(params.ICEParameters) == 0 {
		return fmt.Errorf("%w: iceParameters required", core.ErrValidation)
	}
	var remoteICE webrtc.ICEParameters
	if err := json.Unmarshal(params.ICEParameters, &remoteICE); err != nil {
		return fmt.Errorf("%w: iceParameters: %w", core.ErrValidation, err)
	}

	var candidates []webrtc.ICECandidate
	if len(params.ICECandidates) > 0 {
		var raw []iceCandidateJSON
		if err := json.Unmarshal(params.ICECandidates, &raw); err != nil {
			return fmt.Errorf("%w: iceCandidates: %w", core.ErrValidation, err)
		}
		for _, c := range raw {
			cand, err := toICECandidate(c)
			if err != nil {
				return fmt.Errorf("%w: iceCandidates: %w", core.ErrValidation, err)
			}
			candidates = append(candidates, cand)
		}
	}

	started := false
	t.startOnce.Do(func() { started = true })
	if !started {
		return fmt.Errorf("%w: transport %s already connected", core.ErrState, t.id)
	}

	if len(candidates) > 0 {
		if err := t.ice.SetRemoteCandidates(candidates); err != nil {
			return err
		}
	}

	go func() {
		role := webrtc.ICERoleControlled
		if err := t.ice.Start(nil, remoteICE, &role); err != nil {
			onFail(fmt.Errorf("ice start: %w", err))
			return
		}
		err := t.dtls.Start(webrtc.DTLSParameters{
			Role:         dtlsRole(remoteDTLS.Role),
			Fingerprints: remoteDTLS.Fingerprints,
		})
		if err != nil {
			onFail(fmt.Errorf("dtls start: %w", err))
			return
		}
		close(t.ready)
		log.Info().Str("module", "rtc").Str("transport", string(t.id)).Msg("transport connected")
	}()
	return nil
}

// waitReady blocks until DTLS is up.
func (t *transport) waitReady(ctx context.Context) error {
	select {
	case <-t.ready:
		return nil
	case <-t.closed:
		return errTransportClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *transport) close() {
	t.closeOnce.Do(func() {
		close(t.closed)
		if err := t.dtls.Stop(); err != nil {
			log.Debug().Err(err).Str("module", "rtc").Str("transport", string(t.id)).Msg("dtls stop")
		}
		if err := t.ice.Stop(); err != nil {
			log.Debug().Err(err).Str("module", "rtc").Str("transport", string(t.id)).Msg("ice stop")
		}
		if err := t.gatherer.Close(); err != nil {
			log.Debug().Err(err).Str("module", "rtc").Str("transport", string(t.id)).Msg("gatherer close")
		}
	})
}

func toICECandidate(c iceCandidateJSON) (webrtc.ICECandidate, error) {
	addr := c.Address
	if addr == "" {
		addr = c.IP
	}
	proto, err := webrtc.NewICEProtocol(c.Protocol)
	if err != nil {
		return webrtc.ICECandidate{}, err
	}
	typ, err := webrtc.NewICECandidateType(c.Type)
	if err != nil {
		return webrtc.ICECandidate{}, err
	}
	return webrtc.ICECandidate{
		Foundation: c.Foundation,
		Priority:   c.Priority,
		Address:    addr,
		Protocol:   proto,
		Port:       c.Port,
		Typ:        typ,
		Component:  1,
	}, nil
}
