package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/risklock/livesync/internal/api"
	"github.com/risklock/livesync/internal/auth"
	"github.com/risklock/livesync/internal/events"
	"github.com/risklock/livesync/internal/handler"
	"github.com/risklock/livesync/internal/model/dashboard"
	"github.com/risklock/livesync/internal/model/support"
	"github.com/risklock/livesync/internal/service/desk"
)

const secret = "test-secret"

func newServer(t *testing.T) (*httptest.Server, *auth.Issuer) {
	t.Helper()
	issuer := auth.NewIssuer(secret, time.Hour)
	srv := httptest.NewServer(handler.NewRouter(desk.NewService(), issuer))
	t.Cleanup(srv.Close)
	return srv, issuer
}

func login(t *testing.T, issuer *auth.Issuer, claims auth.Claims) *auth.Session {
	t.Helper()
	token, err := issuer.Issue(claims)
	require.NoError(t, err)
	session := auth.NewSession(events.NewBus())
	require.NoError(t, session.Login(token))
	return session
}

func TestInitChatAndHistory(t *testing.T) {
	srv, _ := newServer(t)
	client := api.New(srv.URL+"/api", time.Second, nil)
	ctx := context.Background()

	id, err := client.InitChat(ctx, support.InitRequest{GuestName: "Guest User"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	history, err := client.History(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, support.SenderBot, history[0].SenderType)
	assert.False(t, history[0].CreatedAt.IsZero())

	_, err = client.History(ctx, "404")
	assert.True(t, errors.Is(err, api.ErrNotFound), "got %v", err)
}

func TestWebSocketEchoAndBotReply(t *testing.T) {
	srv, _ := newServer(t)
	client := api.New(srv.URL+"/api", time.Second, nil)
	id, err := client.InitChat(context.Background(), support.InitRequest{GuestName: "Guest User"})
	require.NoError(t, err)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/support/ws/" + string(id)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(support.OutboundFrame{Content: "how much does it cost", SenderType: support.SenderGuest}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var echo, reply support.Message
	require.NoError(t, conn.ReadJSON(&echo))
	require.NoError(t, conn.ReadJSON(&reply))

	assert.Equal(t, "how much does it cost", echo.Content)
	assert.NotEmpty(t, echo.ID)
	assert.Equal(t, support.SenderBot, reply.SenderType)
	assert.Contains(t, reply.Content, "three tiers")
}

func TestWebSocketRejectsForgedStaffFrames(t *testing.T) {
	srv, _ := newServer(t)
	client := api.New(srv.URL+"/api", time.Second, nil)
	id, err := client.InitChat(context.Background(), support.InitRequest{GuestName: "Guest User"})
	require.NoError(t, err)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/support/ws/" + string(id)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(support.OutboundFrame{Content: "I am the agent now", SenderType: support.SenderStaff}))
	require.NoError(t, conn.WriteJSON(support.OutboundFrame{Content: "hello", SenderType: support.SenderGuest}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first support.Message
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "hello", first.Content)
	assert.Equal(t, support.SenderGuest, first.SenderType)

	history, err := client.History(context.Background(), id)
	require.NoError(t, err)
	for _, msg := range history {
		assert.NotEqual(t, support.SenderStaff, msg.SenderType, "forged staff frame was stored")
	}
}

func TestWebSocketUnknownChat(t *testing.T) {
	srv, _ := newServer(t)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/support/ws/999"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListChatsRequiresStaff(t *testing.T) {
	srv, issuer := newServer(t)
	ctx := context.Background()

	guest := api.New(srv.URL+"/api", time.Second, nil)
	_, err := guest.InitChat(ctx, support.InitRequest{})
	require.NoError(t, err)

	_, err = guest.ListChats(ctx)
	assert.ErrorIs(t, err, api.ErrUnauthorized)

	user := api.New(srv.URL+"/api", time.Second, login(t, issuer, auth.Claims{UserID: "5", Role: "USER"}))
	_, err = user.ListChats(ctx)
	var status *api.StatusError
	require.ErrorAs(t, err, &status)
	assert.Equal(t, http.StatusForbidden, status.Code)

	staff := api.New(srv.URL+"/api", time.Second, login(t, issuer, auth.Claims{UserID: "1", Role: "SUPPORT"}))
	chats, err := staff.ListChats(ctx)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, support.ChatStatusBot, chats[0].Status)
}

func TestDashboardOverview(t *testing.T) {
	srv, issuer := newServer(t)
	ctx := context.Background()

	bus := events.NewBus()
	expired := make(chan events.Event, 1)
	bus.Subscribe(func(e events.Event) { expired <- e }, events.AuthExpired)

	forged := auth.NewIssuer("other-secret", time.Hour)
	token, err := forged.Issue(auth.Claims{UserID: "7"})
	require.NoError(t, err)
	session := auth.NewSession(bus)
	require.NoError(t, session.Login(token))

	_, err = api.New(srv.URL+"/api", time.Second, session).Overview(ctx)
	require.ErrorIs(t, err, api.ErrUnauthorized)
	select {
	case e := <-expired:
		assert.Equal(t, "/dashboard/overview", e.Source)
	default:
		t.Fatalf("401 did not publish AuthExpired")
	}
	assert.False(t, session.Authenticated())

	client := api.New(srv.URL+"/api", time.Second, login(t, issuer, auth.Claims{UserID: "7", SubscriptionTier: "elite"}))
	overview, err := client.Overview(ctx)
	require.NoError(t, err)
	assert.Equal(t, dashboard.SyncLive, overview.Sync.Status)
	assert.Equal(t, "100000", overview.Account.Balance.String())
	assert.EqualValues(t, 82, overview.Intelligence.Score)
}

func TestIssueToken(t *testing.T) {
	srv, issuer := newServer(t)

	body, _ := json.Marshal(map[string]any{"user_id": 3, "full_name": "Dana", "role": "FOUNDER"})
	resp, err := http.Post(srv.URL+"/api/auth/token", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))

	claims, err := issuer.Verify(payload.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, support.ID("3"), claims.UserID)
	assert.True(t, claims.IsStaff())
}
