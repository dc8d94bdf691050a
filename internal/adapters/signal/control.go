package signal

import (
	"context"
	"encoding/json"
	"time"
)

func (ctl *SignalWSController) handlePing(_ context.Context, _ *client, _ json.RawMessage) (any, error) {
	return struct {
		Pong bool      `json:"pong"`
		Time time.Time `json:"time"`
	}{true, time.Now()}, nil
}
