package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hilthontt/chorus/pkg/client/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type inbound struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId"`
	Room      string          `json:"room"`
	Action    string          `json:"action"`
	Data      json.RawMessage `json:"data"`
}

// fakeGateway speaks enough of the gateway protocol to drive the client.
func fakeGateway(t *testing.T, serve func(conn *websocket.Conn)) *Client {
	t.Helper()
	upgrader := websocket.Upgrader{}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized", "code": "unauthenticated", "message": "invalid credential"})
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		serve(conn)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewClient(option.WithBaseURL(srv.URL), option.WithToken("tok"))
}

func connectCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestRealtime_JoinAndReceive(t *testing.T) {
	c := fakeGateway(t, func(conn *websocket.Conn) {
		_ = conn.WriteJSON(map[string]any{"type": "ready", "data": map[string]string{"connectionId": "c1", "userId": "alice"}})

		var in inbound
		if err := conn.ReadJSON(&in); err != nil || in.Type != "join" {
			return
		}
		_ = conn.WriteJSON(map[string]any{"type": "ack", "requestId": in.RequestID, "roomId": in.Room, "data": map[string]string{"op": "join"}})
		_ = conn.WriteJSON(map[string]any{"type": "event", "roomId": in.Room, "event": "message.created", "data": map[string]any{"message": map[string]string{"id": "7"}}})
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	})

	ctx := connectCtx(t)
	rc, err := c.Connect(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReadyPayload{ConnectionID: "c1", UserID: "alice"}, rc.Ready())

	reqID, err := rc.Join("channel:42")
	require.NoError(t, err)

	var frames []Frame
	require.NoError(t, rc.Listen(ctx, func(f Frame) { frames = append(frames, f) }))

	require.Len(t, frames, 2)
	assert.Equal(t, AckFrame, frames[0].Type)
	assert.Equal(t, reqID, frames[0].RequestID)

	assert.Equal(t, EventFrame, frames[1].Type)
	assert.Equal(t, "channel:42", frames[1].RoomID)
	var payload struct {
		Message struct {
			ID string `json:"id"`
		} `json:"message"`
	}
	require.NoError(t, frames[1].Decode(&payload))
	assert.Equal(t, "7", payload.Message.ID)
}

func TestRealtime_RequestIDsAreUnique(t *testing.T) {
	got := make(chan inbound, 3)
	c := fakeGateway(t, func(conn *websocket.Conn) {
		_ = conn.WriteJSON(map[string]any{"type": "ready", "data": map[string]string{"connectionId": "c1", "userId": "alice"}})
		for i := 0; i < 3; i++ {
			var in inbound
			if err := conn.ReadJSON(&in); err != nil {
				return
			}
			got <- in
		}
	})

	rc, err := c.Connect(connectCtx(t))
	require.NoError(t, err)
	defer rc.Close()

	id1, err := rc.SendMessage("42", "hello")
	require.NoError(t, err)
	id2, err := rc.Heartbeat("idle")
	require.NoError(t, err)
	id3, err := rc.Leave("channel:42")
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)
	assert.NotEqual(t, id2, id3)

	first := <-got
	assert.Equal(t, "action", first.Type)
	assert.Equal(t, "send_message", first.Action)
	assert.JSONEq(t, `{"channelId":"42","content":"hello"}`, string(first.Data))
	assert.Equal(t, "heartbeat", (<-got).Type)
	assert.Equal(t, "leave", (<-got).Type)
}

func TestRealtime_RejectedBeforeUpgrade(t *testing.T) {
	c := fakeGateway(t, func(*websocket.Conn) {})

	_, err := c.Connect(connectCtx(t), option.WithToken("wrong"))
	require.Error(t, err)
	assert.True(t, IsUnauthenticated(err))
}

func TestRealtime_AuthErrorFrame(t *testing.T) {
	c := fakeGateway(t, func(conn *websocket.Conn) {
		_ = conn.WriteJSON(map[string]any{"type": "error.auth", "data": map[string]any{"code": "auth_failed", "message": "credential expired", "retry": true}})
	})

	_, err := c.Connect(connectCtx(t))
	require.Error(t, err)
	assert.True(t, IsUnauthenticated(err))
	assert.Contains(t, err.Error(), "credential expired")
}

func TestRealtime_CloseCodeIsReported(t *testing.T) {
	c := fakeGateway(t, func(conn *websocket.Conn) {
		_ = conn.WriteJSON(map[string]any{"type": "ready", "data": map[string]string{"connectionId": "c1", "userId": "alice"}})
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(4008, "send queue full"))
	})

	ctx := connectCtx(t)
	rc, err := c.Connect(ctx)
	require.NoError(t, err)

	err = rc.Listen(ctx, func(Frame) {})
	var closeErr *CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, 4008, closeErr.Code)
	assert.Equal(t, "send queue full", closeErr.Reason)
}

func TestRealtime_WritesAfterCloseFail(t *testing.T) {
	c := fakeGateway(t, func(conn *websocket.Conn) {
		_ = conn.WriteJSON(map[string]any{"type": "ready", "data": map[string]string{"connectionId": "c1", "userId": "alice"}})
		_, _, _ = conn.ReadMessage()
	})

	rc, err := c.Connect(connectCtx(t))
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.NoError(t, rc.Close())

	_, err = rc.Join("channel:42")
	assert.ErrorIs(t, err, ErrConnectionClosed)
}
