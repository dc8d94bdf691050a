package orch

import (
	"context"
	"fmt"
	"time"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/rs/zerolog/log"
)

// CleanupReason tells why a session leaves its room.
type CleanupReason string

const (
	ReasonLeave       CleanupReason = "leave"
	ReasonDisconnect  CleanupReason = "disconnect"
	ReasonReplaced    CleanupReason = "replaced"
	ReasonRoomDeleted CleanupReason = "roomDeleted"
)

const roomDeletedMessage = "The room was deleted by the host"

func (o *Orchestrator) CreateRoom(hostName string, hostUserID domain.UserID) (domain.RoomInfo, error) {
	room, err := o.Rooms.Create(hostName, hostUserID)
	if err != nil {
		return domain.RoomInfo{}, err
	}
	return room.Info(), nil
}

// Join puts sid into the requested room. A previous session of the same user is replaced.
func (o *Orchestrator) Join(ctx context.Context, sid domain.SessionID, req JoinRequest) (*JoinResponse, error) {
	if err := Validate(req); err != nil {
		return nil, err
	}
	name, err := domain.NormalizeUsername(req.UserName)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateUserID(req.UserID); err != nil {
		return nil, err
	}
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return nil, fmt.Errorf("%w: session %s", core.ErrNotFound, sid)
	}
	room, err := o.Rooms.Get(req.RoomID)
	if err != nil {
		return nil, err
	}
	if current, ok := sess.RoomID(); ok && current != req.RoomID {
		log.Info().Str("module", "orch").Str("sid", string(sid)).Str("from_room", string(current)).Msg("leaving previous room")
		o.Cleanup(sid, ReasonLeave)
	}

	jr, err := room.Join(sess, req.UserID, name, o.now(), o.Policy.ReconnectGrace())
	if err != nil {
		return nil, err
	}
	sess.Bind(room.ID(), req.UserID, name)

	if jr.Replaced != nil {
		if old := jr.Replaced.Session; old != nil {
			old.Unbind(room.ID())
		}
		o.release(room, jr.Replaced)
		log.Info().Str("module", "orch").Str("sid", string(sid)).Str("replaced", string(jr.PreviousSessionID)).
			Str("reason", string(ReasonReplaced)).Msg("session replaced")
	}

	if !jr.AlreadyJoined {
		o.notify(room, sid, core.EventPeerJoined, PeerJoinedEvent{
			SocketID:         sid,
			UserID:           req.UserID,
			UserName:         name,
			IsHost:           jr.Participant.IsHost,
			IsReconnection:   jr.IsReconnection,
			PreviousSocketID: jr.PreviousSessionID,
		})
	}

	// The connection may have dropped while joining; its cleanup could have run first.
	if sess.Closed() {
		o.cleanupSession(sess, ReasonDisconnect)
		return nil, fmt.Errorf("%w: session closed while joining", core.ErrNotFound)
	}

	return &JoinResponse{
		Success:           true,
		RoomID:            room.ID(),
		UserID:            req.UserID,
		IsHost:            jr.Participant.IsHost,
		IsReconnection:    jr.IsReconnection,
		Participants:      jr.Participants,
		ExistingProducers: producerViews(jr.ExistingProducers),
		Messages:          jr.Messages,
	}, nil
}

// Leave removes sid from its room without closing the connection.
func (o *Orchestrator) Leave(sid domain.SessionID) error {
	if _, _, err := o.sessionRoom(sid); err != nil {
		return err
	}
	o.Cleanup(sid, ReasonLeave)
	return nil
}

// OnDisconnect runs when the signaling connection of sid is gone.
func (o *Orchestrator) OnDisconnect(sid domain.SessionID) {
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return
	}
	sess.MarkClosed()
	o.Cleanup(sid, ReasonDisconnect)
	o.Registry.Unbind(sid)
}

// Cleanup detaches sid from its room, closes its handles and notifies peers.
// Running it again for the same session is a no-op.
func (o *Orchestrator) Cleanup(sid domain.SessionID, reason CleanupReason) {
	if sess, ok := o.Registry.GetSession(sid); ok {
		o.cleanupSession(sess, reason)
	}
}

func (o *Orchestrator) cleanupSession(sess *core.Session, reason CleanupReason) {
	sid := sess.ID()
	roomID, ok := sess.RoomID()
	if !ok {
		return
	}
	room, err := o.Rooms.Get(roomID)
	if err != nil {
		sess.Unbind(roomID)
		return
	}

	// Only a dropped connection may come back and reclaim its place.
	var departedAt time.Time
	if reason == ReasonDisconnect {
		departedAt = o.now()
	}
	d := room.RemoveSession(sid, departedAt)
	sess.Unbind(roomID)
	if d == nil {
		return
	}

	o.release(room, d)
	o.notify(room, sid, core.EventPeerLeft, PeerLeftEvent{
		SocketID: sid,
		UserID:   d.Participant.UserID,
		UserName: d.Participant.Name,
	})
	o.limiter.Forget(chatKey{Room: roomID, User: d.Participant.UserID})
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(roomID)).Str("reason", string(reason)).Msg("session cleaned up")

	if o.Policy.DeleteOnEmpty() && o.Rooms.RemoveIfEmpty(roomID) {
		log.Info().Str("module", "orch").Str("room", string(roomID)).Msg("deleted empty room")
	}
}

// SendMessage appends a chat message to roomID and pushes it to the whole room, sender included.
func (o *Orchestrator) SendMessage(sid domain.SessionID, req SendMessageRequest) (domain.MessageID, error) {
	if err := Validate(req); err != nil {
		return "", err
	}
	roomID, text := req.RoomID, req.Message
	_, room, err := o.sessionRoom(sid)
	if err != nil {
		return "", err
	}
	if room.ID() != roomID {
		return "", fmt.Errorf("%w: not a participant of room %s", core.ErrState, roomID)
	}
	p, ok := room.Participant(sid)
	if !ok {
		return "", fmt.Errorf("%w: not a participant of room %s", core.ErrState, roomID)
	}
	if !o.limiter.Allow(chatKey{Room: roomID, User: p.UserID}) {
		return "", fmt.Errorf("%w: too many messages", core.ErrRateLimited)
	}
	msg, err := room.AppendMessage(sid, text, o.chat.MaxLength)
	if err != nil {
		return "", err
	}
	o.notify(room, "", core.EventNewMessage, msg)
	return msg.ID, nil
}

// DeleteRoom removes roomID on behalf of requester, closing every handle it holds.
func (o *Orchestrator) DeleteRoom(roomID domain.RoomID, requester domain.UserID) error {
	if roomID == "" || requester == "" {
		return fmt.Errorf("%w: roomId and userId are required", core.ErrValidation)
	}
	_, detached, err := o.Rooms.Delete(roomID, requester)
	if err != nil {
		return err
	}

	handles := make([]domain.Handle, 0)
	for _, d := range detached {
		handles = append(handles, d.Handles()...)
	}
	o.closeHandles(handles)

	frame, err := core.EncodeEvent(core.EventRoomDeleted, RoomDeletedEvent{RoomID: roomID, Message: roomDeletedMessage})
	if err != nil {
		return err
	}
	for _, d := range detached {
		if d.Session == nil {
			continue
		}
		d.Session.Unbind(roomID)
		if err := d.Session.Signal().TrySend(frame); err != nil {
			log.Warn().Err(err).Str("module", "orch").Str("sid", string(d.Session.ID())).Msg("roomDeleted not delivered")
		}
	}
	log.Info().Str("module", "orch").Str("room", string(roomID)).Str("by", string(requester)).
		Str("reason", string(ReasonRoomDeleted)).Int("sessions", len(detached)).Int("handles", len(handles)).Msg("room deleted")
	return nil
}

// RoomDetails is the REST view of one room. Recently dropped users are listed offline.
func (o *Orchestrator) RoomDetails(roomID domain.RoomID) (*RoomDetails, error) {
	room, err := o.Rooms.Get(roomID)
	if err != nil {
		return nil, err
	}
	info := room.Info()
	participants := room.Participants()
	out := &RoomDetails{
		ID:               info.ID,
		ParticipantCount: len(participants),
		CreatedAt:        info.CreatedAt,
		CreatedBy:        info.CreatedBy,
		HostUserID:       info.HostUserID,
		Participants:     make([]ParticipantDetails, 0, len(participants)),
	}
	for _, p := range participants {
		out.Participants = append(out.Participants, ParticipantDetails{
			UserID:   p.UserID,
			Name:     p.Name,
			JoinedAt: p.JoinedAt,
			IsHost:   p.IsHost,
			IsOnline: true,
		})
	}
	for _, d := range room.Departed(o.now(), o.Policy.ReconnectGrace()) {
		out.Participants = append(out.Participants, ParticipantDetails{
			UserID:   d.UserID,
			Name:     d.Name,
			JoinedAt: d.JoinedAt,
			IsHost:   d.IsHost,
		})
	}
	return out, nil
}

func (o *Orchestrator) WhoAmI(sid domain.SessionID) (*SessionInfo, error) {
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return nil, fmt.Errorf("%w: session %s", core.ErrNotFound, sid)
	}
	info := &SessionInfo{SocketID: sid, State: domain.StateConnected.String()}
	info.UserID, info.UserName = sess.Identity()
	if _, room, err := o.sessionRoom(sid); err == nil {
		info.RoomID = room.ID()
		info.State = room.SessionState(sid).String()
	}
	return info, nil
}
