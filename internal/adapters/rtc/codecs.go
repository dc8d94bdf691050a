package rtc

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/pion/webrtc/v4"
)

type codec struct {
	kind domain.MediaKind
	webrtc.RTPCodecParameters
}

var videoFeedback = []webrtc.RTCPFeedback{
	{Type: "goog-remb"},
	{Type: "ccm", Parameter: "fir"},
	{Type: "nack"},
	{Type: "nack", Parameter: "pli"},
}

// codecs is the single source for engine registration and advertised capabilities.
var codecs = []codec{
	{
		kind: domain.KindAudio,
		RTPCodecParameters: webrtc.RTPCodecParameters{
			RTPCodecCapability: webrtc.RTPCodecCapability{
				MimeType:    webrtc.MimeTypeOpus,
				ClockRate:   48000,
				Channels:    2,
				SDPFmtpLine: "minptime=10;useinbandfec=1",
			},
			PayloadType: 111,
		},
	},
	{
		kind: domain.KindVideo,
		RTPCodecParameters: webrtc.RTPCodecParameters{
			RTPCodecCapability: webrtc.RTPCodecCapability{
				MimeType:     webrtc.MimeTypeVP8,
				ClockRate:    90000,
				RTCPFeedback: videoFeedback,
			},
			PayloadType: 96,
		},
	},
	{
		kind: domain.KindVideo,
		RTPCodecParameters: webrtc.RTPCodecParameters{
			RTPCodecCapability: webrtc.RTPCodecCapability{
				MimeType:     webrtc.MimeTypeH264,
				ClockRate:    90000,
				SDPFmtpLine:  "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
				RTCPFeedback: videoFeedback,
			},
			PayloadType: 102,
		},
	},
}

func codecType(kind domain.MediaKind) webrtc.RTPCodecType {
	if kind == domain.KindAudio {
		return webrtc.RTPCodecTypeAudio
	}
	return webrtc.RTPCodecTypeVideo
}

func registerCodecs(m *webrtc.MediaEngine) error {
	for _, c := range codecs {
		if err := m.RegisterCodec(c.RTPCodecParameters, codecType(c.kind)); err != nil {
			return fmt.Errorf("register %s: %w", c.MimeType, err)
		}
	}
	return nil
}

func findCodec(kind domain.MediaKind, mime string) (codec, bool) {
	for _, c := range codecs {
		if c.kind == kind && strings.EqualFold(c.MimeType, mime) {
			return c, true
		}
	}
	return codec{}, false
}

type feedbackJSON struct {
	Type      string `json:"type"`
	Parameter string `json:"parameter,omitempty"`
}

type codecCapabilityJSON struct {
	Kind                 domain.MediaKind `json:"kind"`
	MimeType             string           `json:"mimeType"`
	PreferredPayloadType uint8            `json:"preferredPayloadType"`
	ClockRate            uint32           `json:"clockRate"`
	Channels             uint16           `json:"channels,omitempty"`
	SDPFmtpLine          string           `json:"sdpFmtpLine,omitempty"`
	RTCPFeedback         []feedbackJSON   `json:"rtcpFeedback"`
}

type capabilitiesJSON struct {
	Codecs           []codecCapabilityJSON `json:"codecs"`
	HeaderExtensions []json.RawMessage     `json:"headerExtensions"`
}

func capabilities() json.RawMessage {
	caps := capabilitiesJSON{HeaderExtensions: []json.RawMessage{}}
	for _, c := range codecs {
		fb := make([]feedbackJSON, 0, len(c.RTCPFeedback))
		for _, f := range c.RTCPFeedback {
			fb = append(fb, feedbackJSON{Type: f.Type, Parameter: f.Parameter})
		}
		caps.Codecs = append(caps.Codecs, codecCapabilityJSON{
			Kind:                 c.kind,
			MimeType:             c.MimeType,
			PreferredPayloadType: uint8(c.PayloadType),
			ClockRate:            c.ClockRate,
			Channels:             c.Channels,
			SDPFmtpLine:          c.SDPFmtpLine,
			RTCPFeedback:         fb,
		})
	}
	raw, _ := json.Marshal(caps)
	return raw
}

// rtpParameters is the subset of client RTP parameters the engine reads.
type rtpParameters struct {
	Codecs []struct {
		MimeType    string `json:"mimeType"`
		PayloadType uint8  `json:"payloadType"`
	} `json:"codecs"`
	Encodings []struct {
		SSRC uint32 `json:"ssrc"`
		RTX  *struct {
			SSRC uint32 `json:"ssrc"`
		} `json:"rtx,omitempty"`
	} `json:"encodings"`
}

// parseProduce picks the first supported codec and the primary encoding.
func parseProduce(kind domain.MediaKind, raw json.RawMessage) (codec, webrtc.RTPCodingParameters, error) {
	var p rtpParameters
	if err := json.Unmarshal(raw, &p); err != nil {
		return codec{}, webrtc.RTPCodingParameters{}, fmt.Errorf("%w: rtpParameters: %w", core.ErrValidation, err)
	}
	if len(p.Encodings) == 0 || p.Encodings[0].SSRC == 0 {
		return codec{}, webrtc.RTPCodingParameters{}, fmt.Errorf("%w: rtpParameters.encodings[0].ssrc required", core.ErrValidation)
	}
	for _, pc := range p.Codecs {
		c, ok := findCodec(kind, pc.MimeType)
		if !ok {
			continue
		}
		coding := webrtc.RTPCodingParameters{
			SSRC:        webrtc.SSRC(p.Encodings[0].SSRC),
			PayloadType: webrtc.PayloadType(pc.PayloadType),
		}
		if rtx := p.Encodings[0].RTX; rtx != nil {
			coding.RTX.SSRC = webrtc.SSRC(rtx.SSRC)
		}
		return c, coding, nil
	}
	return codec{}, webrtc.RTPCodingParameters{}, fmt.Errorf("%w: no supported %s codec in rtpParameters", core.ErrValidation, kind)
}

// supports reports whether client capabilities list mime.
func supports(rtpCapabilities json.RawMessage, mime string) bool {
	var caps struct {
		Codecs []struct {
			MimeType string `json:"mimeType"`
		} `json:"codecs"`
	}
	if err := json.Unmarshal(rtpCapabilities, &caps); err != nil {
		return false
	}
	for _, c := range caps.Codecs {
		if strings.EqualFold(c.MimeType, mime) {
			return true
		}
	}
	return false
}

type codecJSON struct {
	MimeType    string `json:"mimeType"`
	PayloadType uint8  `json:"payloadType"`
	ClockRate   uint32 `json:"clockRate"`
	Channels    uint16 `json:"channels,omitempty"`
	SDPFmtpLine string `json:"sdpFmtpLine,omitempty"`
}

type encodingJSON struct {
	SSRC uint32 `json:"ssrc"`
}

type consumerRTPJSON struct {
	Codecs    []codecJSON    `json:"codecs"`
	Encodings []encodingJSON `json:"encodings"`
}

func consumerRTPParameters(c codec, ssrc webrtc.SSRC) json.RawMessage {
	raw, _ := json.Marshal(consumerRTPJSON{
		Codecs: []codecJSON{{
			MimeType:    c.MimeType,
			PayloadType: uint8(c.PayloadType),
			ClockRate:   c.ClockRate,
			Channels:    c.Channels,
			SDPFmtpLine: c.SDPFmtpLine,
		}},
		Encodings: []encodingJSON{{SSRC: uint32(ssrc)}},
	})
	return raw
}
