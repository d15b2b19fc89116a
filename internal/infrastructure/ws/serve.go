package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/hilthontt/chorus/internal/domain"
	"github.com/hilthontt/chorus/internal/infrastructure/credentials"
	jsonutil "github.com/hilthontt/chorus/internal/infrastructure/json"
	"github.com/hilthontt/chorus/internal/infrastructure/logging"
)

const bearerProtocol = "bearer"

var frameValidator = validator.New(validator.WithRequiredStructEnabled())

// tokenFromRequest reads the credential from, in order, the Authorization
// header, a "bearer, <token>" subprotocol pair and the token query
// parameter.
func tokenFromRequest(r *http.Request) string {
	if token := credentials.BearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	protocols := websocket.Subprotocols(r)
	for i := 0; i+1 < len(protocols); i++ {
		if protocols[i] == bearerProtocol {
			return protocols[i+1]
		}
	}
	return r.URL.Query().Get("token")
}

// ServeWS upgrades an HTTP request. A credential presented with the request
// is verified before the upgrade; a bad one is refused with 401 and no
// connection state. Without one the client must authenticate in its first
// frame within the handshake timeout.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	if !g.acquire() {
		jsonutil.WriteError(w, http.StatusServiceUnavailable, ErrNotStarted, "gateway is not accepting connections")
		return
	}
	defer g.conns.Done()

	var identity *domain.Identity
	if token := tokenFromRequest(r); token != "" {
		id, err := g.verifier.Verify(token)
		if err != nil {
			g.authFailed(err)
			jsonutil.WriteDomainError(w, err)
			return
		}
		identity = id
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn(logging.Gateway, logging.Handshake, "websocket upgrade failed", map[logging.ExtraKey]any{
			logging.ClientIp:     r.RemoteAddr,
			logging.ErrorMessage: err.Error(),
		})
		return
	}

	wrapper := newConnWrapper(conn, g.cfg.WriteWait)
	if identity == nil {
		identity, err = g.awaitAuthentication(wrapper)
		if err != nil {
			g.authFailed(err)
			_ = wrapper.WriteJSON(NewAuthError(err.Error()))
			_ = wrapper.CloseWith(CloseAuthFailed, "authentication failed")
			return
		}
	}

	g.serve(newClient(wrapper, uuid.NewString(), *identity, g.cfg.SendBuffer))
}

func (g *Gateway) authFailed(err error) {
	g.metrics.AuthFailures.WithLabelValues("websocket").Inc()
	g.logger.Warn(logging.Auth, logging.Handshake, "websocket authentication failed", map[logging.ExtraKey]any{
		logging.ErrorMessage: err.Error(),
	})
}

var errHandshakeFrame = &domain.AuthenticationError{Reason: "first frame must be authenticate"}

// awaitAuthentication reads the first frame, which must carry a token,
// before HandshakeTimeout elapses.
func (g *Gateway) awaitAuthentication(conn *connWrapper) (*domain.Identity, error) {
	conn.conn.SetReadLimit(g.cfg.MaxMessageSize)
	_ = conn.conn.SetReadDeadline(time.Now().Add(g.cfg.HandshakeTimeout))

	_, raw, err := conn.conn.ReadMessage()
	if err != nil {
		return nil, &domain.AuthenticationError{Reason: "no authenticate frame before timeout", Err: err}
	}

	var frame ClientFrame
	if err := json.Unmarshal(raw, &frame); err != nil || frame.Type != AuthenticateFrame || frame.Token == "" {
		return nil, errHandshakeFrame
	}
	return g.verifier.Verify(frame.Token)
}

func (g *Gateway) serve(c *Client) {
	if !g.register(c) {
		_ = c.conn.CloseWith(websocket.CloseGoingAway, "server shutting down")
		return
	}
	defer g.unregister(c)

	g.reply(c, NewReady(c.ID, c.Identity.UserID))

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		if err := c.writePump(g.cfg.PingPeriod); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			g.logger.Debug(logging.Gateway, logging.Connection, "write pump stopped", map[logging.ExtraKey]any{
				logging.ConnectionID: c.ID,
				logging.ErrorMessage: err.Error(),
			})
		}
	}()

	ctx := g.baseContext()
	err := c.readPump(g.cfg.MaxMessageSize, g.cfg.PongWait, func() { g.keepAlive(c) }, func(raw []byte) {
		g.handleFrame(ctx, c, raw)
	})
	if err != nil && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && !c.closed() {
		g.logger.Debug(logging.Gateway, logging.Connection, "read pump stopped", map[logging.ExtraKey]any{
			logging.ConnectionID: c.ID,
			logging.ErrorMessage: err.Error(),
		})
	}

	c.close(websocket.CloseNormalClosure, "")
	<-writerDone
}

func (g *Gateway) reject(c *Client, requestID, roomID, code, message string) {
	g.metrics.FramesRejected.WithLabelValues(code).Inc()
	g.logger.Debug(logging.Gateway, logging.Frame, "frame rejected", map[logging.ExtraKey]any{
		logging.ConnectionID: c.ID,
		logging.Room:         roomID,
		"code":               code,
		logging.ErrorMessage: message,
	})
	g.reply(c, NewError(requestID, roomID, code, message, code == CodeRateLimited || code == CodeInternal))
}

// handleFrame processes one inbound frame. Bad frames are answered with an
// error and never close the connection.
func (g *Gateway) handleFrame(ctx context.Context, c *Client, raw []byte) {
	if g.limiter != nil && !g.limiter.Allow(c.ID) {
		g.reject(c, "", "", CodeRateLimited, "too many frames")
		return
	}

	var frame ClientFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		g.reject(c, "", "", CodeMalformedFrame, "frame is not valid JSON")
		return
	}
	if err := frameValidator.Struct(frame); err != nil {
		g.reject(c, frame.RequestID, frame.Room, CodeMalformedFrame, validationMessage(err))
		return
	}

	switch frame.Type {
	case JoinFrame:
		g.join(ctx, c, frame)
	case LeaveFrame:
		g.leave(c, frame)
	case HeartbeatFrame:
		g.heartbeat(ctx, c, frame.RequestID, domain.PresenceStatus(frame.Status), HeartbeatFrame)
	case ActionFrame:
		g.action(ctx, c, frame)
	default:
		g.reject(c, frame.RequestID, "", CodeMalformedFrame, "already authenticated")
	}
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return "invalid field " + verrs[0].Field() + ": " + verrs[0].Tag()
	}
	return err.Error()
}

func (g *Gateway) join(ctx context.Context, c *Client, frame ClientFrame) {
	room, err := domain.ParseRoom(frame.Room)
	if err != nil {
		g.reject(c, frame.RequestID, frame.Room, CodeInvalidRoom, err.Error())
		return
	}

	if err := g.authorizeJoin(ctx, c.Identity, room); err != nil {
		code := errorCode(err, CodeInvalidRoom)
		g.reject(c, frame.RequestID, room.Key(), code, errorMessage(code, err))
		return
	}

	if c.closed() {
		return
	}
	c.rooms.Add(room.Key())
	g.rooms.Join(room.Key(), c)
	g.metrics.RoomsActive.Set(float64(g.rooms.Count()))
	g.reply(c, NewAck(frame.RequestID, room.Key(), JoinFrame, nil))
}

func (g *Gateway) leave(c *Client, frame ClientFrame) {
	room, err := domain.ParseRoom(frame.Room)
	if err != nil {
		g.reject(c, frame.RequestID, frame.Room, CodeInvalidRoom, err.Error())
		return
	}

	g.rooms.Leave(room.Key(), c)
	c.rooms.Remove(room.Key())
	g.metrics.RoomsActive.Set(float64(g.rooms.Count()))
	g.reply(c, NewAck(frame.RequestID, room.Key(), LeaveFrame, nil))
}

func (g *Gateway) heartbeat(ctx context.Context, c *Client, requestID string, status domain.PresenceStatus, op string) {
	if g.presence != nil {
		if err := g.presence.Heartbeat(ctx, c.Identity, status); err != nil {
			code := errorCode(err, CodeMalformedFrame)
			g.reject(c, requestID, "", code, errorMessage(code, err))
			return
		}
	}
	g.reply(c, NewAck(requestID, "", op, nil))
}

func (g *Gateway) action(ctx context.Context, c *Client, frame ClientFrame) {
	if frame.Action == SetPresenceAction {
		var p SetPresencePayload
		if err := json.Unmarshal(frame.Data, &p); err != nil {
			g.reject(c, frame.RequestID, "", CodeMalformedFrame, "set_presence needs a status")
			return
		}
		if err := frameValidator.Struct(p); err != nil {
			g.reject(c, frame.RequestID, "", CodeMalformedFrame, validationMessage(err))
			return
		}
		g.heartbeat(ctx, c, frame.RequestID, domain.PresenceStatus(p.Status), SetPresenceAction)
		return
	}

	if g.actions == nil {
		g.reject(c, frame.RequestID, "", CodeUnknownAction, "unknown action "+frame.Action)
		return
	}

	result, err := g.actions.HandleAction(ctx, c.Identity, frame.Action, frame.Data)
	if err != nil {
		code := errorCode(err, CodeMalformedFrame)
		if code == CodeInternal {
			g.logger.Error(logging.Gateway, logging.Frame, "action failed", map[logging.ExtraKey]any{
				logging.ConnectionID: c.ID,
				"action":             frame.Action,
				logging.ErrorMessage: err.Error(),
			})
		}
		g.reject(c, frame.RequestID, "", code, errorMessage(code, err))
		return
	}
	g.reply(c, NewAck(frame.RequestID, "", frame.Action, result))
}
