package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/crewdesk/pulse-server/internal/auth"
	"github.com/crewdesk/pulse-server/internal/config"
	"github.com/crewdesk/pulse-server/internal/core"
	"github.com/crewdesk/pulse-server/internal/metrics"
	"github.com/crewdesk/pulse-server/internal/proto"
	"github.com/crewdesk/pulse-server/internal/store/sqlite"
)

type testEnv struct {
	ts    *httptest.Server
	store *sqlite.SQLiteStore
	auth  *auth.Service
}

func startTestServer(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte("test-secret-change-me"),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	})

	logger := zerolog.Nop()
	hub := core.NewHub(core.HubConfig{
		Members:  st,
		Messages: st,
		Logger:   &logger,
	})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	server := NewServer(hub, authService, st, metrics.New(), config.Config{
		Addr:              ":0",
		ReadHeaderTimeout: time.Second,
		ShutdownTimeout:   time.Second,
	}, &logger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, store: st, auth: authService}
}

func (env *testEnv) registerUser(t *testing.T, username string) string {
	t.Helper()

	body, _ := json.Marshal(RegisterRequest{Username: username, Password: "password123"})
	resp, err := env.ts.Client().Post(env.ts.URL+"/api/register", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != stdhttp.StatusCreated {
		t.Fatalf("register %s: unexpected status %d", username, resp.StatusCode)
	}

	var out AuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode auth response: %v", err)
	}
	return out.Token
}

func (env *testEnv) doJSON(t *testing.T, method, path, token string, body any) *stdhttp.Response {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := stdhttp.NewRequest(method, env.ts.URL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := env.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func (env *testEnv) createChannel(t *testing.T, token, name string) int64 {
	t.Helper()

	resp := env.doJSON(t, "POST", "/api/channels", token, CreateChannelRequest{Name: name})
	defer resp.Body.Close()
	if resp.StatusCode != stdhttp.StatusCreated {
		t.Fatalf("create channel: unexpected status %d", resp.StatusCode)
	}
	var out ChannelResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode channel response: %v", err)
	}
	return out.ID
}

func (env *testEnv) addMember(t *testing.T, token string, channelID, userID int64) {
	t.Helper()

	resp := env.doJSON(t, "POST", fmt.Sprintf("/api/channels/%d/members", channelID), token, AddMemberRequest{UserID: userID})
	defer resp.Body.Close()
	if resp.StatusCode != stdhttp.StatusNoContent {
		t.Fatalf("add member: unexpected status %d", resp.StatusCode)
	}
}

func (env *testEnv) dial(t *testing.T, ctx context.Context, token string) *websocket.Conn {
	t.Helper()

	wsURL := strings.Replace(env.ts.URL, "http", "ws", 1) + "/ws?token=" + token
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("ws dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func sendFrame(t *testing.T, ctx context.Context, conn *websocket.Conn, msgType string, data any) {
	t.Helper()

	payload, _ := json.Marshal(data)
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: msgType, Data: payload}); err != nil {
		t.Fatalf("write %s: %v", msgType, err)
	}
}

type outboundFrame struct {
	Type  string          `json:"type"`
	Event string          `json:"event,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *proto.Error    `json:"error,omitempty"`
}

// readEvent discards frames until one carries the wanted event name.
func readEvent(t *testing.T, ctx context.Context, conn *websocket.Conn, event string) json.RawMessage {
	t.Helper()

	for {
		var frame outboundFrame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			t.Fatalf("read waiting for %s: %v", event, err)
		}
		if frame.Type == proto.OutboundTypeEvent && frame.Event == event {
			return frame.Data
		}
	}
}

// awaitJoined is a sync barrier: a presence round trip proves the hub
// finished processing every frame this connection sent before it,
// including a join that has no ack of its own.
func awaitJoined(t *testing.T, ctx context.Context, conn *websocket.Conn) {
	t.Helper()

	sendFrame(t, ctx, conn, proto.InboundTypePresenceRequest, proto.PresenceRequestData{})
	readEvent(t, ctx, conn, proto.EventPresenceSnapshot)
}

func readError(t *testing.T, ctx context.Context, conn *websocket.Conn) *proto.Error {
	t.Helper()

	for {
		var frame outboundFrame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			t.Fatalf("read waiting for error: %v", err)
		}
		if frame.Type == proto.OutboundTypeError {
			return frame.Error
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	env := startTestServer(t)

	resp, err := env.ts.Client().Get(env.ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := startTestServer(t)

	resp, err := env.ts.Client().Get(env.ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestWebSocketRejectsMissingToken(t *testing.T) {
	env := startTestServer(t)

	wsURL := strings.Replace(env.ts.URL, "http", "ws", 1) + "/ws"
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, wsURL, nil)
	if err == nil {
		t.Fatalf("expected dial to fail without token")
	}
	if resp == nil || resp.StatusCode != stdhttp.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}
}

func TestWebSocketRejectsInvalidToken(t *testing.T) {
	env := startTestServer(t)

	wsURL := strings.Replace(env.ts.URL, "http", "ws", 1) + "/ws?token=garbage"
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, wsURL, nil)
	if err == nil {
		t.Fatalf("expected dial to fail with bad token")
	}
	if resp == nil || resp.StatusCode != stdhttp.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}
}

func TestWebSocketMessageFlow(t *testing.T) {
	env := startTestServer(t)

	aliceToken := env.registerUser(t, "alice")
	bobToken := env.registerUser(t, "bob")

	channelID := env.createChannel(t, aliceToken, "general")
	env.addMember(t, aliceToken, channelID, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	aliceConn := env.dial(t, ctx, aliceToken)
	bobConn := env.dial(t, ctx, bobToken)

	sendFrame(t, ctx, aliceConn, proto.InboundTypeChannelJoin, proto.ChannelData{ChannelID: channelID})
	sendFrame(t, ctx, bobConn, proto.InboundTypeChannelJoin, proto.ChannelData{ChannelID: channelID})
	awaitJoined(t, ctx, bobConn)

	sendFrame(t, ctx, aliceConn, proto.InboundTypeMessageSend, proto.SendData{
		ChannelID: channelID,
		Content:   "hi there",
		TempID:    "tmp-42",
	})

	var got proto.MessagePayload
	if err := json.Unmarshal(readEvent(t, ctx, bobConn, proto.EventMessageNew), &got); err != nil {
		t.Fatalf("unmarshal message payload: %v", err)
	}
	if got.Content != "hi there" || got.AuthorID != 1 || got.ChannelID != channelID {
		t.Fatalf("unexpected message payload: %+v", got)
	}

	var echo proto.MessagePayload
	if err := json.Unmarshal(readEvent(t, ctx, aliceConn, proto.EventMessageNew), &echo); err != nil {
		t.Fatalf("unmarshal echo payload: %v", err)
	}
	if echo.TempID != "tmp-42" || echo.ID != got.ID {
		t.Fatalf("expected temp id echo on sender frame: %+v", echo)
	}

	// The message is durable and visible through the history endpoint.
	resp := env.doJSON(t, "GET", fmt.Sprintf("/api/channels/%d/messages", channelID), aliceToken, nil)
	defer resp.Body.Close()
	if resp.StatusCode != stdhttp.StatusOK {
		t.Fatalf("history: unexpected status %d", resp.StatusCode)
	}
	var history []proto.MessagePayload
	if err := json.NewDecoder(resp.Body).Decode(&history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(history) != 1 || history[0].ID != got.ID {
		t.Fatalf("unexpected history: %+v", history)
	}
}

func TestWebSocketJoinDeniedForNonMember(t *testing.T) {
	env := startTestServer(t)

	aliceToken := env.registerUser(t, "alice")
	strangerToken := env.registerUser(t, "stranger")
	channelID := env.createChannel(t, aliceToken, "private")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := env.dial(t, ctx, strangerToken)
	sendFrame(t, ctx, conn, proto.InboundTypeChannelJoin, proto.ChannelData{ChannelID: channelID})

	protoErr := readError(t, ctx, conn)
	if protoErr.Code != core.ErrCodeNotMember {
		t.Fatalf("expected not_member, got %+v", protoErr)
	}
}

func TestWebSocketTyping(t *testing.T) {
	env := startTestServer(t)

	aliceToken := env.registerUser(t, "alice")
	bobToken := env.registerUser(t, "bob")
	channelID := env.createChannel(t, aliceToken, "general")
	env.addMember(t, aliceToken, channelID, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	aliceConn := env.dial(t, ctx, aliceToken)
	bobConn := env.dial(t, ctx, bobToken)

	sendFrame(t, ctx, aliceConn, proto.InboundTypeChannelJoin, proto.ChannelData{ChannelID: channelID})
	sendFrame(t, ctx, bobConn, proto.InboundTypeChannelJoin, proto.ChannelData{ChannelID: channelID})
	awaitJoined(t, ctx, aliceConn)

	sendFrame(t, ctx, bobConn, proto.InboundTypeTypingStart, proto.ChannelData{ChannelID: channelID})

	var payload proto.TypingPayload
	if err := json.Unmarshal(readEvent(t, ctx, aliceConn, proto.EventTypingUpdate), &payload); err != nil {
		t.Fatalf("unmarshal typing payload: %v", err)
	}
	if payload.ChannelID != channelID || len(payload.Users) != 1 || payload.Users[0] != 2 {
		t.Fatalf("unexpected typing payload: %+v", payload)
	}
}

func TestWebSocketUnknownType(t *testing.T) {
	env := startTestServer(t)

	token := env.registerUser(t, "alice")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := env.dial(t, ctx, token)
	sendFrame(t, ctx, conn, "bogus.type", struct{}{})

	protoErr := readError(t, ctx, conn)
	if protoErr.Code != "invalid_message" {
		t.Fatalf("expected invalid_message, got %+v", protoErr)
	}
}

func TestNotifyEndpointRequiresElevatedRole(t *testing.T) {
	env := startTestServer(t)

	aliceToken := env.registerUser(t, "alice")

	resp := env.doJSON(t, "POST", "/api/notify", aliceToken, NotifyRequest{
		IdentityID: 1,
		Event:      "task.assigned",
	})
	defer resp.Body.Close()
	if resp.StatusCode != stdhttp.StatusForbidden {
		t.Fatalf("expected 403 for employee, got %d", resp.StatusCode)
	}
}

func TestNotifyReachesLiveConnections(t *testing.T) {
	env := startTestServer(t)

	aliceToken := env.registerUser(t, "alice")

	hash, err := auth.HashPassword("password123")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if _, err := env.store.CreateUser(context.Background(), "hravatar", hash, core.RoleHR, 1); err != nil {
		t.Fatalf("create hr user: %v", err)
	}
	hrToken, err := env.auth.Login(context.Background(), "hravatar", "password123")
	if err != nil {
		t.Fatalf("login hr user: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := env.dial(t, ctx, aliceToken)

	resp := env.doJSON(t, "POST", "/api/notify", hrToken, NotifyRequest{
		IdentityID: 1,
		Event:      "leave.approved",
		Payload:    json.RawMessage(`{"request_id":12}`),
	})
	resp.Body.Close()
	if resp.StatusCode != stdhttp.StatusAccepted {
		t.Fatalf("notify: unexpected status %d", resp.StatusCode)
	}

	var payload proto.NotificationPayload
	if err := json.Unmarshal(readEvent(t, ctx, conn, proto.EventNotificationNew), &payload); err != nil {
		t.Fatalf("unmarshal notification payload: %v", err)
	}
	if payload.Event != "leave.approved" || string(payload.Data) != `{"request_id":12}` {
		t.Fatalf("unexpected notification payload: %+v", payload)
	}
}

func TestPresenceEndpoint(t *testing.T) {
	env := startTestServer(t)

	aliceToken := env.registerUser(t, "alice")
	env.registerUser(t, "bob")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := env.dial(t, ctx, aliceToken)
	readEvent(t, ctx, conn, proto.EventPresenceUpdate)

	resp := env.doJSON(t, "GET", "/api/presence?ids=1,2", aliceToken, nil)
	defer resp.Body.Close()
	if resp.StatusCode != stdhttp.StatusOK {
		t.Fatalf("presence: unexpected status %d", resp.StatusCode)
	}
	var out PresenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode presence: %v", err)
	}
	if !out.Online[1] || out.Online[2] {
		t.Fatalf("unexpected presence: %+v", out.Online)
	}
}

func TestChannelEndpointsEnforceMembership(t *testing.T) {
	env := startTestServer(t)

	aliceToken := env.registerUser(t, "alice")
	strangerToken := env.registerUser(t, "stranger")
	channelID := env.createChannel(t, aliceToken, "general")

	// A non-member cannot read history or invite others.
	resp := env.doJSON(t, "GET", fmt.Sprintf("/api/channels/%d/messages", channelID), strangerToken, nil)
	resp.Body.Close()
	if resp.StatusCode != stdhttp.StatusForbidden {
		t.Fatalf("expected 403 for history, got %d", resp.StatusCode)
	}

	resp = env.doJSON(t, "POST", fmt.Sprintf("/api/channels/%d/members", channelID), strangerToken, AddMemberRequest{UserID: 2})
	resp.Body.Close()
	if resp.StatusCode != stdhttp.StatusForbidden {
		t.Fatalf("expected 403 for invite, got %d", resp.StatusCode)
	}

	// Unauthenticated requests never reach the handlers.
	resp = env.doJSON(t, "GET", "/api/channels", "", nil)
	resp.Body.Close()
	if resp.StatusCode != stdhttp.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}
