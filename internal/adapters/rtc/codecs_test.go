package rtc

import (
	"encoding/json"
	"testing"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapabilitiesListEveryCodec(t *testing.T) {
	var caps capabilitiesJSON
	require.NoError(t, json.Unmarshal(capabilities(), &caps))
	require.Len(t, caps.Codecs, len(codecs))
	assert.NotNil(t, caps.HeaderExtensions)

	opus := caps.Codecs[0]
	assert.Equal(t, domain.KindAudio, opus.Kind)
	assert.Equal(t, webrtc.MimeTypeOpus, opus.MimeType)
	assert.EqualValues(t, 111, opus.PreferredPayloadType)
	assert.EqualValues(t, 2, opus.Channels)

	vp8 := caps.Codecs[1]
	assert.Equal(t, domain.KindVideo, vp8.Kind)
	assert.Contains(t, vp8.RTCPFeedback, feedbackJSON{Type: "nack", Parameter: "pli"})
}

func TestParseProduce(t *testing.T) {
	raw := json.RawMessage(`{
		"codecs":[{"mimeType":"video/AV1","payloadType":45},{"mimeType":"video/vp8","payloadType":101}],
		"encodings":[{"ssrc":1234,"rtx":{"ssrc":5678}}]
	}`)
	c, coding, err := parseProduce(domain.KindVideo, raw)
	require.NoError(t, err)
	assert.Equal(t, webrtc.MimeTypeVP8, c.MimeType)
	assert.EqualValues(t, 1234, coding.SSRC)
	assert.EqualValues(t, 101, coding.PayloadType)
	assert.EqualValues(t, 5678, coding.RTX.SSRC)
}

func TestParseProduceRejects(t *testing.T) {
	cases := map[string]struct {
		kind domain.MediaKind
		raw  string
	}{
		"not json":      {domain.KindAudio, `{`},
		"no encodings":  {domain.KindAudio, `{"codecs":[{"mimeType":"audio/opus"}]}`},
		"zero ssrc":     {domain.KindAudio, `{"codecs":[{"mimeType":"audio/opus"}],"encodings":[{"ssrc":0}]}`},
		"unknown codec": {domain.KindVideo, `{"codecs":[{"mimeType":"video/AV1"}],"encodings":[{"ssrc":1}]}`},
		"wrong kind":    {domain.KindVideo, `{"codecs":[{"mimeType":"audio/opus"}],"encodings":[{"ssrc":1}]}`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := parseProduce(tc.kind, json.RawMessage(tc.raw))
			assert.ErrorIs(t, err, core.ErrValidation)
		})
	}
}

func TestSupports(t *testing.T) {
	caps := json.RawMessage(`{"codecs":[{"mimeType":"audio/OPUS"},{"mimeType":"video/H264"}]}`)
	assert.True(t, supports(caps, webrtc.MimeTypeOpus))
	assert.True(t, supports(caps, webrtc.MimeTypeH264))
	assert.False(t, supports(caps, webrtc.MimeTypeVP8))
	assert.False(t, supports(json.RawMessage(`nope`), webrtc.MimeTypeOpus))
	assert.True(t, supports(capabilities(), webrtc.MimeTypeVP8))
}

func TestConsumerRTPParameters(t *testing.T) {
	c, ok := findCodec(domain.KindAudio, "audio/opus")
	require.True(t, ok)
	var out consumerRTPJSON
	require.NoError(t, json.Unmarshal(consumerRTPParameters(c, 99), &out))
	require.Len(t, out.Codecs, 1)
	assert.Equal(t, webrtc.MimeTypeOpus, out.Codecs[0].MimeType)
	assert.EqualValues(t, 111, out.Codecs[0].PayloadType)
	assert.EqualValues(t, 48000, out.Codecs[0].ClockRate)
	assert.Equal(t, []encodingJSON{{SSRC: 99}}, out.Encodings)

	_, ok = findCodec(domain.KindAudio, "video/VP8")
	assert.False(t, ok)
}

func TestDTLSRole(t *testing.T) {
	assert.Equal(t, webrtc.DTLSRoleClient, dtlsRole("client"))
	assert.Equal(t, webrtc.DTLSRoleServer, dtlsRole("server"))
	assert.Equal(t, webrtc.DTLSRoleAuto, dtlsRole("auto"))
	assert.Equal(t, webrtc.DTLSRoleAuto, dtlsRole(""))
}

func TestToICECandidate(t *testing.T) {
	c, err := toICECandidate(iceCandidateJSON{
		Foundation: "1", Priority: 100, IP: "10.0.0.1", Protocol: "udp", Port: 5000, Type: "host",
	})
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", c.Address)
	assert.Equal(t, webrtc.ICEProtocolUDP, c.Protocol)
	assert.Equal(t, webrtc.ICECandidateTypeHost, c.Typ)
	assert.EqualValues(t, 1, c.Component)

	_, err = toICECandidate(iceCandidateJSON{Protocol: "sctp", Type: "host"})
	assert.Error(t, err)
	_, err = toICECandidate(iceCandidateJSON{Protocol: "udp", Type: "bogus"})
	assert.Error(t, err)
}
