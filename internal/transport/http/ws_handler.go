package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/crewdesk/pulse-server/internal/auth"
	"github.com/crewdesk/pulse-server/internal/core"
	"github.com/crewdesk/pulse-server/internal/proto"
)

// WSHandler bootstraps authenticated connections and bridges them to
// the hub. Credential validation happens before the upgrade: a refused
// connection never reaches event handling.
type WSHandler struct {
	hub       *core.Hub
	auth      *auth.Service
	log       *zerolog.Logger
	rateLimit int
}

// NewWSHandler builds a new WebSocket handler. rateLimit caps inbound
// frames per connection per minute; zero disables the cap.
func NewWSHandler(hub *core.Hub, authService *auth.Service, logger *zerolog.Logger, rateLimit int) stdhttp.Handler {
	return &WSHandler{hub: hub, auth: authService, log: logger, rateLimit: rateLimit}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	token := bearerToken(r)
	if token == "" {
		writeJSONError(w, stdhttp.StatusUnauthorized, "missing token")
		return
	}

	identity, err := h.auth.ResolveIdentity(ctx, token)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			writeJSONError(w, stdhttp.StatusUnauthorized, "invalid token")
		case errors.Is(err, auth.ErrInactiveAccount):
			writeJSONError(w, stdhttp.StatusForbidden, "account is not active")
		default:
			h.log.Error().Err(err).Msg("identity resolution failed")
			writeJSONError(w, stdhttp.StatusInternalServerError, "internal error")
		}
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	client := core.NewClient(uuid.NewString(), identity)
	h.hub.RegisterClient(client)
	defer h.hub.UnregisterClient(client)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	println("DEBUG: loops starting for", client.ID)
	errCh := make(chan error, 2)
	go func() {
		e := h.readLoop(ctx, conn, client)
		println("DEBUG: readLoop exit:", fmtErr(e))
		errCh <- e
	}()
	go func() {
		e := h.writeLoop(ctx, conn, client)
		println("DEBUG: writeLoop exit:", fmtErr(e))
		errCh <- e
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	limiter := newFrameLimiter(h.rateLimit)
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}

		if !limiter.allow(time.Now()) {
			if err := wsjson.Write(ctx, conn, proto.Outbound{
				Type:  proto.OutboundTypeError,
				Error: &proto.Error{Code: "rate_limited", Msg: "too many frames, slow down"},
			}); err != nil {
				return err
			}
			continue
		}

		cmd, protoErr, err := inboundToCommand(inbound)
		if err != nil {
			h.log.Warn().Err(err).Str("conn_id", client.ID).Msg("failed to map inbound")
			return err
		}
		if protoErr != nil {
			if writeErr := wsjson.Write(ctx, conn, proto.Outbound{
				Type:  proto.OutboundTypeError,
				Error: protoErr,
			}); writeErr != nil {
				return writeErr
			}
			continue
		}
		if cmd != nil {
			h.hub.Submit(client, cmd)
		}
	}
}

func fmtErr(e error) string {
	if e == nil {
		return "<nil>"
	}
	return e.Error()
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event, ok := <-client.Events:
			if !ok {
				return nil
			}
			println("DEBUG: writeLoop got event kind", int(event.Kind))
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				println("DEBUG: writeLoop write err:", err.Error())
				return err
			}
			println("DEBUG: writeLoop wrote event")
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// bearerToken extracts the credential from the Authorization header or,
// for browser WebSocket clients that cannot set headers, the token
// query parameter.
func bearerToken(r *stdhttp.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
	}
	return r.URL.Query().Get("token")
}

func writeJSONError(w stdhttp.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: msg})
}
