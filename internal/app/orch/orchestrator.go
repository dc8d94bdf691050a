package orch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// closeParallelism bounds concurrent gateway Close calls for one cleanup.
const closeParallelism = 8

var validate = validator.New(validator.WithRequiredStructEnabled())

type chatKey struct {
	Room domain.RoomID
	User domain.UserID
}

// ChatOptions configures chat validation and flood control.
type ChatOptions struct {
	MaxLength    int
	RateLimit    int
	RateInterval time.Duration
}

type Orchestrator struct {
	Registry *app.Registry
	Rooms    core.RoomManager
	Policy   app.Policy
	Media    core.MediaGateway

	chat    ChatOptions
	limiter *app.RateLimiter[chatKey]
	now     func() time.Time
}

func New(reg *app.Registry, rooms core.RoomManager, policy app.Policy, media core.MediaGateway, chat ChatOptions) *Orchestrator {
	o := &Orchestrator{
		Registry: reg,
		Rooms:    rooms,
		Policy:   policy,
		Media:    media,
		chat:     chat,
		limiter:  app.NewRateLimiter[chatKey](chat.RateLimit, chat.RateInterval),
		now:      time.Now,
	}
	media.SetObserver(o)
	return o
}

// Validate checks a request body against its validate tags.
func Validate(v any) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %w", core.ErrValidation, err)
	}
	return nil
}

// sessionRoom resolves the live session and the room it joined.
func (o *Orchestrator) sessionRoom(sid domain.SessionID) (*core.Session, *core.Room, error) {
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return nil, nil, fmt.Errorf("%w: session %s", core.ErrNotFound, sid)
	}
	roomID, ok := sess.RoomID()
	if !ok {
		return sess, nil, fmt.Errorf("%w: join a room first", core.ErrState)
	}
	room, err := o.Rooms.Get(roomID)
	if err != nil {
		return sess, nil, err
	}
	return sess, room, nil
}

func (o *Orchestrator) notify(room *core.Room, from domain.SessionID, event string, data any) {
	frame, err := core.EncodeEvent(event, data)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("event", event).Msg("encode event")
		return
	}
	o.handleDropped(room, room.Broadcast(from, frame))
}

func (o *Orchestrator) notifySessions(room *core.Room, sids []domain.SessionID, event string, data any) {
	if len(sids) == 0 {
		return
	}
	frame, err := core.EncodeEvent(event, data)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("event", event).Msg("encode event")
		return
	}
	o.handleDropped(room, room.SendTo(sids, frame))
}

func (o *Orchestrator) handleDropped(room *core.Room, res core.PublishResult) {
	if o.Policy == nil {
		return
	}
	for _, slow := range res.Dropped {
		switch o.Policy.OnBackPressure(room, slow) {
		case app.KickMember:
			log.Warn().Str("module", "orch").Str("sid", string(slow.ID())).Msg("kicking slow member")
			o.Registry.Cancel(slow.ID())
		case app.MarkSlow, app.DropFrame, app.NoAction:
		}
	}
}

// closeHandles releases engine handles. Failures are logged; the registry no longer references them.
func (o *Orchestrator) closeHandles(handles []domain.Handle) {
	if len(handles) == 0 {
		return
	}
	var g errgroup.Group
	g.SetLimit(closeParallelism)
	for _, h := range handles {
		g.Go(func() error {
			if err := o.Media.Close(h); err != nil {
				log.Warn().Err(err).Str("module", "orch").Str("handle", h.Type.String()).Str("id", h.ID).Msg("close handle")
			}
			return nil
		})
	}
	_ = g.Wait()
}

// release closes what d holds and tells the room which producers are gone.
func (o *Orchestrator) release(room *core.Room, d *core.Detached) {
	if d.Empty() {
		return
	}
	o.closeHandles(d.Handles())
	for _, p := range d.Producers {
		o.notify(room, p.SessionID, core.EventProducerClosed, ProducerClosedEvent{
			ProducerID: p.ID,
			SocketID:   p.SessionID,
			UserID:     p.UserID,
		})
	}
}

// engineErr classifies a gateway failure.
func engineErr(op string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %s", core.ErrTimeout, op)
	case errors.Is(err, core.ErrGateway), errors.Is(err, core.ErrValidation):
		return err
	}
	return fmt.Errorf("%w: %s: %w", core.ErrGateway, op, err)
}

// expired closes h when the request ran out of time while the engine was working.
func (o *Orchestrator) expired(ctx context.Context, op string, h domain.Handle) error {
	if ctx.Err() == nil {
		return nil
	}
	o.closeHandles([]domain.Handle{h})
	log.Warn().Str("module", "orch").Str("op", op).Str("id", h.ID).Msg("request expired, closed late resource")
	return fmt.Errorf("%w: %s", core.ErrTimeout, op)
}
