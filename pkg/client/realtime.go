package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hilthontt/chorus/pkg/client/internal/requestconfig"
	"github.com/hilthontt/chorus/pkg/client/option"
)

// Server frame types.
const (
	ReadyFrame     = "ready"
	EventFrame     = "event"
	AckFrame       = "ack"
	ErrorFrame     = "error"
	AuthErrorFrame = "error.auth"
)

// Frame is one server to client message. Data is left raw; decode it with
// the payload type matching Type or Event.
type Frame struct {
	Type      string          `json:"type"`
	RoomID    string          `json:"roomId,omitempty"`
	Event     string          `json:"event,omitempty"`
	RequestID string          `json:"requestId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

func (f Frame) Decode(v any) error {
	return json.Unmarshal(f.Data, v)
}

type ReadyPayload struct {
	ConnectionID string `json:"connectionId"`
	UserID       string `json:"userId"`
}

type ErrorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Retry   bool   `json:"retry,omitempty"`
}

type clientFrame struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId,omitempty"`
	Room      string `json:"room,omitempty"`
	Status    string `json:"status,omitempty"`
	Action    string `json:"action,omitempty"`
	Data      any    `json:"data,omitempty"`
}

// RealtimeConn is an authenticated gateway connection. Writes are safe for
// concurrent use; Listen must be called from a single goroutine.
type RealtimeConn struct {
	conn   *websocket.Conn
	ready  ReadyPayload
	nextID atomic.Uint64

	mu     sync.Mutex
	closed bool
}

// Connect dials the gateway and waits for the ready frame.
func (c *Client) Connect(ctx context.Context, opts ...option.RequestOption) (*RealtimeConn, error) {
	opts = slices.Concat(c.Options, opts)

	cfg, err := requestconfig.NewRequestConfig(ctx, http.MethodGet, "ws", nil, opts...)
	if err != nil {
		return nil, err
	}

	u := *cfg.Request.URL
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	header := http.Header{}
	if token := cfg.Request.Header.Get("Authorization"); token != "" {
		header.Set("Authorization", token)
	}
	header.Set("User-Agent", cfg.Request.Header.Get("User-Agent"))

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil && resp.StatusCode >= 300 {
			apiErr := &Error{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
			_ = json.NewDecoder(resp.Body).Decode(apiErr)
			return nil, apiErr
		}
		return nil, fmt.Errorf("failed to connect to gateway: %w", err)
	}

	rc := &RealtimeConn{conn: conn}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}
	first, err := rc.read()
	if err != nil {
		conn.Close()
		return nil, err
	}
	_ = conn.SetReadDeadline(time.Time{})

	switch first.Type {
	case ReadyFrame:
		if err := first.Decode(&rc.ready); err != nil {
			conn.Close()
			return nil, err
		}
		return rc, nil
	case AuthErrorFrame:
		conn.Close()
		var p ErrorPayload
		_ = first.Decode(&p)
		return nil, &Error{StatusCode: http.StatusUnauthorized, Code: "unauthenticated", Message: p.Message}
	default:
		conn.Close()
		return nil, fmt.Errorf("unexpected first frame %q", first.Type)
	}
}

func (rc *RealtimeConn) Ready() ReadyPayload { return rc.ready }

func (rc *RealtimeConn) read() (Frame, error) {
	var f Frame
	err := rc.conn.ReadJSON(&f)
	return f, err
}

func (rc *RealtimeConn) write(f clientFrame) (string, error) {
	if f.RequestID == "" {
		f.RequestID = strconv.FormatUint(rc.nextID.Add(1), 10)
	}

	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.closed {
		return "", ErrConnectionClosed
	}
	if err := rc.conn.WriteJSON(f); err != nil {
		return "", err
	}
	return f.RequestID, nil
}

// Join asks to subscribe to room. The answer is an ack or error frame with
// the returned request id.
func (rc *RealtimeConn) Join(room string) (string, error) {
	if room == "" {
		return "", ErrMissingRoomParameter
	}
	return rc.write(clientFrame{Type: "join", Room: room})
}

func (rc *RealtimeConn) Leave(room string) (string, error) {
	if room == "" {
		return "", ErrMissingRoomParameter
	}
	return rc.write(clientFrame{Type: "leave", Room: room})
}

// Heartbeat refreshes presence. An empty status keeps the current one.
func (rc *RealtimeConn) Heartbeat(status string) (string, error) {
	return rc.write(clientFrame{Type: "heartbeat", Status: status})
}

// Action invokes a server action such as send_message or typing.
func (rc *RealtimeConn) Action(action string, data any) (string, error) {
	return rc.write(clientFrame{Type: "action", Action: action, Data: data})
}

func (rc *RealtimeConn) SendMessage(channelID, content string) (string, error) {
	return rc.Action("send_message", map[string]string{"channelId": channelID, "content": content})
}

// Listen calls handler for every frame until the connection ends or ctx is
// done. A normal close returns nil.
func (rc *RealtimeConn) Listen(ctx context.Context, handler func(Frame)) error {
	stop := context.AfterFunc(ctx, func() { _ = rc.Close() })
	defer stop()

	for {
		f, err := rc.read()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				return &CloseError{Code: closeErr.Code, Reason: closeErr.Text}
			}
			return err
		}
		handler(f)
	}
}

// CloseError is how the gateway ended the connection, e.g. 4001 for an
// authentication failure or 4008 for a consumer that fell behind.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	return "gateway closed connection: " + strconv.Itoa(e.Code) + " " + strings.TrimSpace(e.Reason)
}

func (rc *RealtimeConn) Close() error {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.closed {
		return nil
	}
	rc.closed = true

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = rc.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return rc.conn.Close()
}
