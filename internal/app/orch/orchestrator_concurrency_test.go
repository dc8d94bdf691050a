package orch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Meet/internal/adapters/loopback"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrentJoinsAndDisconnects(t *testing.T) {
	const joiners, leavers = 20, 10
	h := defaultHarness(t)
	sids := make([]domain.SessionID, joiners)
	for i := range sids {
		sids[i] = domain.SessionID(fmt.Sprintf("s%d", i))
		h.connect(sids[i])
	}

	var wg sync.WaitGroup
	errs := make(chan error, joiners)
	for i, sid := range sids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			user := fmt.Sprintf("user%d", i)
			if _, err := h.o.Join(context.Background(), sid, JoinRequest{RoomID: h.room, UserName: user, UserID: domain.UserID(user)}); err != nil {
				errs <- err
				return
			}
			if i < leavers {
				h.o.OnDisconnect(sid)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	room := h.roomState()
	assert.Equal(t, joiners-leavers, room.ParticipantCount())
	assert.Equal(t, joiners-leavers, h.o.Registry.Count())
	hosts := 0
	for _, p := range room.Participants() {
		if p.IsHost {
			hosts++
		}
	}
	assert.LessOrEqual(t, hosts, 1)
}

func TestDisconnectDuringEngineCallLeaksNothing(t *testing.T) {
	cases := map[string]struct {
		op   loopback.Op
		prep func(h *harness)
		call func(h *harness) error
	}{
		"create transport": {
			op:   loopback.OpCreateTransport,
			prep: func(*harness) {},
			call: func(h *harness) error {
				_, err := h.o.CreateTransport(context.Background(), "a", domain.DirectionSend)
				return err
			},
		},
		"produce": {
			op:   loopback.OpProduce,
			prep: func(h *harness) { h.transport("a", domain.DirectionSend) },
			call: func(h *harness) error {
				_, err := h.o.Produce(context.Background(), "a", ProduceRequest{
					Kind:          "audio",
					RTPParameters: json.RawMessage(`{"codecs":[{"mimeType":"audio/opus"}]}`),
				})
				return err
			},
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			h := defaultHarness(t)
			h.join("a", "alice")
			bob, _ := h.join("b", "bob")
			tc.prep(h)
			h.media.Delay(tc.op, 50*time.Millisecond)

			errc := make(chan error, 1)
			go func() { errc <- tc.call(h) }()
			time.Sleep(10 * time.Millisecond)
			h.o.OnDisconnect("a")

			select {
			case err := <-errc:
				assert.Error(t, err)
			case <-time.After(2 * time.Second):
				t.Fatal("engine call never returned")
			}

			transports, producers, consumers := h.media.Counts()
			assert.Zero(t, transports)
			assert.Zero(t, producers)
			assert.Zero(t, consumers)
			assert.Empty(t, bob.conn.events(t, core.EventNewProducer))
			assert.Equal(t, 1, h.roomState().ParticipantCount())
		})
	}
}
