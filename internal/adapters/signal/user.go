package signal

import (
	"context"
	"encoding/json"
)

func (ctl *SignalWSController) handleWhoAmI(_ context.Context, cl *client, _ json.RawMessage) (any, error) {
	return ctl.Orch.WhoAmI(cl.sid)
}
