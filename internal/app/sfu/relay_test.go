package sfu

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chanSource chan *rtp.Packet

func (s chanSource) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	pkt, ok := <-s
	if !ok {
		return nil, nil, io.EOF
	}
	return pkt, nil, nil
}

type sink struct {
	mu   sync.Mutex
	seqs []uint16
	err  error
}

func (s *sink) WriteRTP(p *rtp.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.seqs = append(s.seqs, p.SequenceNumber)
	return nil
}

func (s *sink) received() []uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint16(nil), s.seqs...)
}

func packet(seq uint16) *rtp.Packet {
	return &rtp.Packet{Header: rtp.Header{Version: 2, SequenceNumber: seq, SSRC: 42}}
}

// push hands seqs to the relay; once it returns every packet but the last was forwarded.
func push(src chanSource, seqs ...uint16) {
	for _, s := range seqs {
		src <- packet(s)
	}
}

func TestRelayForwardsToActiveSubscribers(t *testing.T) {
	m := NewRelayManager()
	src := make(chanSource)
	defer close(src)
	m.StartRelay(context.Background(), "p1", src, nil)

	live, paused := &sink{}, &sink{}
	_, ok := m.AddSubscriber("p1", "c1", live, false)
	require.True(t, ok)
	_, ok = m.AddSubscriber("p1", "c2", paused, true)
	require.True(t, ok)

	push(src, 1, 2, 3)
	assert.Equal(t, []uint16{1, 2}, live.received()[:2])
	assert.Empty(t, paused.received())

	require.True(t, m.SetSubscriberPaused("p1", "c2", false))
	push(src, 4, 5)
	assert.Contains(t, paused.received(), uint16(4))
	assert.NotContains(t, paused.received(), uint16(2))

	require.True(t, m.SetSubscriberPaused("p1", "c1", true))
	push(src, 6, 7)
	assert.NotContains(t, live.received(), uint16(6))

	assert.False(t, m.SetSubscriberPaused("p1", "missing", true))
	assert.False(t, m.SetSubscriberPaused("p9", "c1", true))
}

func TestRelayDropsFailingSubscriber(t *testing.T) {
	m := NewRelayManager()
	src := make(chanSource)
	defer close(src)
	relay := m.StartRelay(context.Background(), "p1", src, nil)

	broken := &sink{err: errors.New("closed pipe")}
	ot, ok := m.AddSubscriber("p1", "c1", broken, false)
	require.True(t, ok)

	push(src, 1, 2)
	assert.Equal(t, TrackStateDelete, ot.GetState())
	_, ok = relay.OutTrack("c1")
	assert.False(t, ok)
}

func TestRelayMarkSubscriberDelete(t *testing.T) {
	m := NewRelayManager()
	src := make(chanSource)
	defer close(src)
	relay := m.StartRelay(context.Background(), "p1", src, nil)

	s := &sink{}
	_, ok := m.AddSubscriber("p1", "c1", s, false)
	require.True(t, ok)
	m.MarkSubscriberDelete("p1", "c1")

	push(src, 1, 2)
	assert.Empty(t, s.received())
	_, ok = relay.OutTrack("c1")
	assert.False(t, ok)
}

func TestRelaySourceEnd(t *testing.T) {
	m := NewRelayManager()
	src := make(chanSource)
	var ended atomic.Int32
	relay := m.StartRelay(context.Background(), "p1", src, func() { ended.Add(1) })
	ot, ok := m.AddSubscriber("p1", "c1", &sink{}, false)
	require.True(t, ok)

	close(src)
	select {
	case <-relay.Done():
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}
	assert.EqualValues(t, 1, ended.Load())
	assert.Equal(t, TrackStateDelete, ot.GetState())
}

func TestRelayStop(t *testing.T) {
	m := NewRelayManager()
	src := make(chanSource)
	var ended atomic.Int32
	relay := m.StartRelay(context.Background(), "p1", src, func() { ended.Add(1) })
	ot, _ := m.AddSubscriber("p1", "c1", &sink{}, false)

	m.StopRelay("p1")
	assert.False(t, m.HasRelay("p1"))
	assert.Equal(t, TrackStateDelete, ot.GetState())
	_, ok := m.AddSubscriber("p1", "c2", &sink{}, false)
	assert.False(t, ok)

	close(src)
	<-relay.Done()
	assert.Zero(t, ended.Load(), "a stopped relay does not report its end")
	m.StopRelay("p1")
}

func TestRelayReplace(t *testing.T) {
	m := NewRelayManager()
	first, second := make(chanSource), make(chanSource)
	defer close(second)
	old := m.StartRelay(context.Background(), "p1", first, nil)
	ot, _ := m.AddSubscriber("p1", "c1", &sink{}, false)

	m.StartRelay(context.Background(), "p1", second, nil)
	assert.True(t, m.HasRelay("p1"))
	assert.Equal(t, TrackStateDelete, ot.GetState())

	close(first)
	<-old.Done()
}

func TestOutTrackDeleteIsTerminal(t *testing.T) {
	ot := NewOutTrack(&sink{}, true)
	assert.Equal(t, TrackStateMuted, ot.GetState())
	ot.MarkOk()
	assert.Equal(t, TrackStateOk, ot.GetState())
	ot.MarkDelete()
	ot.MarkOk()
	ot.MarkMuted()
	assert.Equal(t, TrackStateDelete, ot.GetState())
}
