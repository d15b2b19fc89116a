package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hilthontt/chorus/internal/application/delivery"
	"github.com/hilthontt/chorus/internal/application/membership"
	"github.com/hilthontt/chorus/internal/application/messaging"
	"github.com/hilthontt/chorus/internal/domain"
	"github.com/hilthontt/chorus/internal/infrastructure/configs"
	"github.com/hilthontt/chorus/internal/infrastructure/credentials"
	"github.com/hilthontt/chorus/internal/infrastructure/eventbus"
	"github.com/hilthontt/chorus/internal/infrastructure/logging"
	"github.com/hilthontt/chorus/internal/infrastructure/metrics"
	"github.com/hilthontt/chorus/internal/infrastructure/permissions"
	"github.com/hilthontt/chorus/internal/infrastructure/presence"
	"github.com/hilthontt/chorus/internal/infrastructure/ratelimiter"
	"github.com/hilthontt/chorus/internal/infrastructure/relay"
	"github.com/hilthontt/chorus/internal/infrastructure/repository"
	"github.com/hilthontt/chorus/internal/infrastructure/snowflake"
	"github.com/hilthontt/chorus/internal/infrastructure/ws"
	healthHandler "github.com/hilthontt/chorus/internal/presentation/handler/health"
	membersHandler "github.com/hilthontt/chorus/internal/presentation/handler/members"
	messagesHandler "github.com/hilthontt/chorus/internal/presentation/handler/messages"
	presenceHandler "github.com/hilthontt/chorus/internal/presentation/handler/presence"
	roomsHandler "github.com/hilthontt/chorus/internal/presentation/handler/rooms"
	"github.com/hilthontt/chorus/pkg/client"
	"github.com/hilthontt/chorus/pkg/client/option"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var apiFixtures = []configs.SpaceFixture{
	{
		ID:       "s1",
		Name:     "Acme",
		Channels: []string{"42"},
		Roles: []configs.RoleFixture{
			{ID: "s1", Name: "everyone", Permissions: []string{"VIEW_CHANNEL"}},
			{ID: "writer", Name: "writer", Position: 1, Permissions: []string{"SEND_MESSAGES"}},
			{ID: "admin", Name: "admin", Position: 2, Permissions: []string{"ADMINISTRATOR"}},
		},
		Members: []configs.MemberFixture{
			{UserID: "alice", Roles: []string{"writer"}},
			{UserID: "bob"},
			{UserID: "owner", Roles: []string{"admin"}},
		},
	},
}

type apiServer struct {
	t       *testing.T
	server  *httptest.Server
	jwt     *credentials.JWT
	metrics *metrics.Metrics
	health  *healthHandler.Handler
}

func newAPIServer(t *testing.T, burst int) *apiServer {
	t.Helper()
	ctx := context.Background()
	logger := logging.NewNop()
	m := metrics.NewNop()

	verifier, err := credentials.NewJWT(credentials.Options{Secret: []byte("api-test-secret")})
	require.NoError(t, err)

	dir := repository.NewDirectory()
	require.NoError(t, repository.Seed(ctx, dir, apiFixtures))

	bus := eventbus.New(logger, eventbus.WithMetrics(m))
	t.Cleanup(bus.Close)

	engine := permissions.NewEngine(dir, permissions.WithCache(64, time.Minute))
	engine.RegisterInvalidation(bus)

	ids, err := snowflake.New(snowflake.Options{NodeID: 1})
	require.NoError(t, err)

	tracker := presence.NewTracker(presence.Options{Publisher: bus, Logger: logger})

	hub := relay.NewHub()
	rl := hub.Relay()
	gateway, err := ws.NewGateway(ws.Options{
		Node: "api-test",
		Config: configs.GatewayConfig{
			HandshakeTimeout: time.Second,
			WriteWait:        time.Second,
			PongWait:         5 * time.Second,
			PingPeriod:       2 * time.Second,
			MaxMessageSize:   4096,
			SendBuffer:       16,
		},
		Verifier: verifier,
		Guard:    engine,
		Channels: dir,
		Relay:    rl,
		Presence: tracker,
		Metrics:  m,
		Logger:   logger,
	})
	require.NoError(t, err)
	require.NoError(t, gateway.Start(ctx))

	delivery.Register(bus, gateway, dir)

	messages := messaging.NewService(messaging.Options{
		Guard:    engine,
		Channels: dir,
		Messages: repository.NewMessageRepository(100),
		IDs:      ids,
		Events:   bus,
		Logger:   logger,
	})
	members := membership.NewService(dir, engine, bus, logger)

	health := healthHandler.NewHandler(gateway)
	app := NewApplication(
		configs.Config{},
		Handlers{
			Health:   health,
			Messages: messagesHandler.NewHandler(messages),
			Members:  membersHandler.NewHandler(members),
			Presence: presenceHandler.NewHandler(tracker),
			Rooms:    roomsHandler.NewHandler(gateway),
		},
		verifier,
		ratelimiter.New(ratelimiter.Options{MaxRatePerSecond: 1, MaxBurst: burst}),
		m,
		logger,
	)

	srv := httptest.NewServer(app.Mount())
	t.Cleanup(func() {
		_ = rl.Close()
		srv.Close()
	})
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = gateway.Stop(stopCtx)
	})

	return &apiServer{t: t, server: srv, jwt: verifier, metrics: m, health: health}
}

func (s *apiServer) token(userID string) string {
	s.t.Helper()
	token, _, err := s.jwt.Issue(domain.Identity{UserID: userID})
	require.NoError(s.t, err)
	return token
}

func (s *apiServer) do(method, path, userID, body string) *http.Response {
	s.t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, s.server.URL+path, reader)
	require.NoError(s.t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+s.token(userID))
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(s.t, err)
	s.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func TestHealth(t *testing.T) {
	s := newAPIServer(t, 100)

	for _, path := range []string{"/api/health", "/api/healthz", "/api/ready", "/api/live"} {
		resp := s.do(http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}

	s.health.SetHealthy(false)
	resp := s.do(http.MethodGet, "/api/health", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	assert.Equal(t, "unhealthy", body["status"])
}

func TestAuthentication(t *testing.T) {
	s := newAPIServer(t, 100)

	resp := s.do(http.MethodPost, "/api/spaces/s1/channels/42/messages", "", `{"content":"hi"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("WWW-Authenticate"))

	req, err := http.NewRequest(http.MethodGet, s.server.URL+"/api/rooms/channel:42", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	assert.Equal(t, float64(2), testutil.ToFloat64(s.metrics.AuthFailures.WithLabelValues("http")))
}

func TestCreateMessage(t *testing.T) {
	s := newAPIServer(t, 100)

	resp := s.do(http.MethodPost, "/api/spaces/s1/channels/42/messages", "alice", `{"content":"hello"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	msg := decode[map[string]any](t, resp)
	assert.Equal(t, "hello", msg["content"])
	assert.Equal(t, "alice", msg["authorId"])
	_, err := snowflake.ParseID(msg["id"].(string))
	assert.NoError(t, err)
}

func TestAuthorizationOutcomesAreDistinct(t *testing.T) {
	s := newAPIServer(t, 100)

	resp := s.do(http.MethodPost, "/api/spaces/s1/channels/42/messages", "mallory", `{"content":"hi"}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "not_a_member", decode[errorBody](t, resp).Code)

	resp = s.do(http.MethodPost, "/api/spaces/s1/channels/42/messages", "bob", `{"content":"hi"}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "missing_permission", decode[errorBody](t, resp).Code)
}

func TestValidation(t *testing.T) {
	s := newAPIServer(t, 100)

	resp := s.do(http.MethodPost, "/api/spaces/s1/channels/42/messages", "alice", `{"content":""}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.do(http.MethodPost, "/api/spaces/s1/channels/99/messages", "alice", `{"content":"hi"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMembers(t *testing.T) {
	s := newAPIServer(t, 100)

	resp := s.do(http.MethodPut, "/api/spaces/s1/members/bob/roles/writer", "alice", "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = s.do(http.MethodPut, "/api/spaces/s1/members/bob/roles/writer", "owner", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	member := decode[map[string]any](t, resp)
	assert.Contains(t, member["roleIds"], "writer")

	// the cached permission set is dropped on member.roles_updated
	resp = s.do(http.MethodPost, "/api/spaces/s1/channels/42/messages", "bob", `{"content":"finally"}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = s.do(http.MethodDelete, "/api/spaces/s1/members/bob", "owner", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = s.do(http.MethodPost, "/api/spaces/s1/channels/42/messages", "bob", `{"content":"still here?"}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "not_a_member", decode[errorBody](t, resp).Code)
}

func TestRooms(t *testing.T) {
	s := newAPIServer(t, 100)

	resp := s.do(http.MethodGet, "/api/rooms/channel:42", "bob", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	room := decode[map[string]any](t, resp)
	assert.Equal(t, "channel:42", room["room"])
	assert.Equal(t, "channel", room["kind"])
	assert.Equal(t, float64(0), room["subscribers"])

	resp = s.do(http.MethodGet, "/api/rooms/space:s1", "mallory", "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = s.do(http.MethodGet, "/api/rooms/galaxy:1", "bob", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPresence(t *testing.T) {
	s := newAPIServer(t, 100)

	resp := s.do(http.MethodGet, "/api/users/alice/presence", "bob", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "offline", decode[map[string]any](t, resp)["status"])
}

func TestRateLimit(t *testing.T) {
	s := newAPIServer(t, 2)

	for i := 0; i < 2; i++ {
		resp := s.do(http.MethodGet, "/api/health", "", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "2", resp.Header.Get("X-RateLimit-Limit"))
	}

	resp := s.do(http.MethodGet, "/api/health", "", "")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "0", resp.Header.Get("X-RateLimit-Remaining"))
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))
}

func TestCors(t *testing.T) {
	s := newAPIServer(t, 100)

	req, err := http.NewRequest(http.MethodOptions, s.server.URL+"/api/health", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://chat.example")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "https://chat.example", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	s := newAPIServer(t, 100)
	s.do(http.MethodGet, "/api/health", "", "")

	resp := s.do(http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `chorus_http_request_duration_seconds_count{method="GET",route="/api/health",status="200"}`)
}

// A message posted over HTTP reaches a websocket subscribed through the same
// router.
func TestWebsocketReceivesMessagesPostedOverHTTP(t *testing.T) {
	s := newAPIServer(t, 100)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.token("bob"))
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(s.server.URL, "http")+"/ws", header)
	require.NoError(t, err)
	defer conn.Close()

	read := func() map[string]any {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var frame map[string]any
		require.NoError(t, conn.ReadJSON(&frame))
		return frame
	}

	assert.Equal(t, ws.ReadyFrame, read()["type"])

	require.NoError(t, conn.WriteJSON(map[string]string{"type": ws.JoinFrame, "room": "channel:42", "requestId": "j1"}))
	ack := read()
	require.Equal(t, ws.AckFrame, ack["type"])
	assert.Equal(t, "j1", ack["requestId"])

	resp := s.do(http.MethodPost, "/api/spaces/s1/channels/42/messages", "alice", `{"content":"over the wire"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	event := read()
	assert.Equal(t, ws.EventFrame, event["type"])
	assert.Equal(t, "channel:42", event["roomId"])
	assert.Equal(t, string(domain.MessageCreatedEvent), event["event"])
	data := event["data"].(map[string]any)["message"].(map[string]any)
	assert.Equal(t, "over the wire", data["content"])
}

func TestClientAgainstNode(t *testing.T) {
	s := newAPIServer(t, 100)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice := client.NewClient(option.WithBaseURL(s.server.URL), option.WithToken(s.token("alice")))
	bob := client.NewClient(option.WithBaseURL(s.server.URL), option.WithToken(s.token("bob")))

	_, err := bob.Messages.Create(ctx, "s1", "42", client.CreateMessageParams{Content: "hi"})
	assert.True(t, client.IsMissingPermission(err))

	rc, err := bob.Connect(ctx)
	require.NoError(t, err)
	assert.Equal(t, "bob", rc.Ready().UserID)

	joinID, err := rc.Join("channel:42")
	require.NoError(t, err)

	frames := make(chan client.Frame, 8)
	go func() { _ = rc.Listen(ctx, func(f client.Frame) { frames <- f }) }()
	defer rc.Close()

	ack := <-frames
	require.Equal(t, client.AckFrame, ack.Type)
	assert.Equal(t, joinID, ack.RequestID)

	room, err := bob.Rooms.Get(ctx, "channel:42")
	require.NoError(t, err)
	assert.Equal(t, 1, room.Subscribers)

	sent, err := alice.Messages.Create(ctx, "s1", "42", client.CreateMessageParams{Content: "via sdk"})
	require.NoError(t, err)

	select {
	case f := <-frames:
		assert.Equal(t, string(domain.MessageCreatedEvent), f.Event)
		var payload struct {
			Message client.Message `json:"message"`
		}
		require.NoError(t, f.Decode(&payload))
		assert.Equal(t, sent.ID, payload.Message.ID)
	case <-ctx.Done():
		t.Fatal("no event delivered")
	}
}
