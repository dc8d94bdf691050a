package signal

import (
	"context"
	"encoding/json"

	"github.com/dkeye/Meet/internal/app/orch"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleJoin(ctx context.Context, cl *client, data json.RawMessage) (any, error) {
	var p orch.JoinRequest
	if err := decode(data, &p); err != nil {
		return nil, err
	}
	if p.UserID == "" {
		p.UserID = cl.defaultUser
	}
	log.Info().Str("module", "signal").Str("sid", string(cl.sid)).Str("room_id", string(p.RoomID)).
		Str("user_id", string(p.UserID)).Msg("join")
	return ctl.Orch.Join(ctx, cl.sid, p)
}

// handleLeave leaves the current room; the connection stays open.
func (ctl *SignalWSController) handleLeave(_ context.Context, cl *client, _ json.RawMessage) (any, error) {
	log.Info().Str("module", "signal").Str("sid", string(cl.sid)).Msg("leave")
	if err := ctl.Orch.Leave(cl.sid); err != nil {
		return nil, err
	}
	return okBody, nil
}

func (ctl *SignalWSController) handleSendMessage(_ context.Context, cl *client, data json.RawMessage) (any, error) {
	var p orch.SendMessageRequest
	if err := decode(data, &p); err != nil {
		return nil, err
	}
	id, err := ctl.Orch.SendMessage(cl.sid, p)
	if err != nil {
		return nil, err
	}
	return struct {
		Success   bool             `json:"success"`
		MessageID domain.MessageID `json:"messageId"`
	}{true, id}, nil
}
