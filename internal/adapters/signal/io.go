package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/Meet/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

type request struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Data   json.RawMessage `json:"data"`
}

type response struct {
	Type string          `json:"type"`
	ID   json.RawMessage `json:"id"`
	RID  uint64          `json:"rid"`
	Data any             `json:"data"`
}

type errorBody struct {
	Success bool           `json:"success"`
	Error   string         `json:"error"`
	Code    core.ErrorKind `json:"code"`
}

type successBody struct {
	Success bool `json:"success"`
}

type result struct {
	out any
	err error
}

var (
	okBody      = successBody{Success: true}
	errInternal = errors.New("internal error")
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping error")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, cl *client) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(cl.sid)).Msg("readPump closing")
		cancel()
		cl.conn.Close()
		ctl.Orch.OnDisconnect(cl.sid)
	}()

	ws := cl.conn.conn
	pongWait := 2 * ctl.opts.PingPeriod
	ws.SetReadLimit(ctl.opts.ReadLimit)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("module", "signal").Str("sid", string(cl.sid)).Msg("readPump read error")
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		go ctl.serve(ctx, cl, data)
	}
}

// serve runs one request under its own deadline and always answers it.
func (ctl *SignalWSController) serve(ctx context.Context, cl *client, data []byte) {
	var req request
	if err := json.Unmarshal(data, &req); err != nil {
		ctl.reply(cl, nil, nil, fmt.Errorf("%w: bad frame: %w", core.ErrValidation, err))
		return
	}
	h, found := ctl.handlers[req.Method]
	if !found {
		ctl.reply(cl, req.ID, nil, fmt.Errorf("%w: unknown method %q", core.ErrValidation, req.Method))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, ctl.opts.Timeout)
	defer cancel()

	// The handler keeps running past the deadline so it can release late resources.
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Str("module", "signal").Str("sid", string(cl.sid)).Str("method", req.Method).
					Interface("panic", r).Msg("handler panic")
				done <- result{err: errInternal}
			}
		}()
		out, err := h(ctx, cl, req.Data)
		done <- result{out: out, err: err}
	}()

	start := time.Now()
	var out any
	var err error
	select {
	case res := <-done:
		out, err = res.out, res.err
		if err == nil && ctx.Err() != nil {
			err = fmt.Errorf("%w: %s", core.ErrTimeout, req.Method)
		}
	case <-ctx.Done():
		out, err = nil, fmt.Errorf("%w: %s", core.ErrTimeout, req.Method)
	}
	ev := log.Debug()
	if err != nil {
		ev = log.Info().Err(err)
	}
	ev.Str("module", "signal").Str("sid", string(cl.sid)).Str("method", req.Method).
		Dur("took", time.Since(start)).Msg("request")
	ctl.reply(cl, req.ID, out, err)
}

func (ctl *SignalWSController) reply(cl *client, id json.RawMessage, out any, err error) {
	if id == nil {
		id = json.RawMessage("null")
	}
	resp := response{Type: "response", ID: id, RID: ctl.rid.Add(1), Data: out}
	if err != nil {
		resp.Data = errorBody{Error: err.Error(), Code: core.KindOf(err)}
	}
	ctl.sendJSON(cl.conn, resp)
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	if err := c.TrySend(b); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("sendJSON dropped")
	}
}

// decode unmarshals a request body; an empty body leaves v zeroed.
func decode(data json.RawMessage, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: bad payload: %w", core.ErrValidation, err)
	}
	return nil
}
