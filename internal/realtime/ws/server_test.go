package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/sharedwishlist/internal/realtime"
	"github.com/angelmondragon/sharedwishlist/pkg/config"
	pkgerrors "github.com/angelmondragon/sharedwishlist/pkg/errors"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubMembers struct {
	allowed map[uuid.UUID]bool
	err     error
}

func (s stubMembers) IsMember(_ context.Context, wishlistID, _ uuid.UUID) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.allowed[wishlistID], nil
}

func newTestServer(t *testing.T, reg *realtime.Registry, members MembershipChecker) *httptest.Server {
	t.Helper()
	srv, err := NewServer(reg, config.RealtimeConfig{SendBuffer: 8}, nil, members)
	require.NoError(t, err)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = srv.Serve(w, r, uuid.New())
	}))
	t.Cleanup(ts.Close)
	return ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn, dst any) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, dst))
}

func TestServerJoinThenReceivesRoomEvents(t *testing.T) {
	reg := realtime.NewRegistry(nil)
	ts := newTestServer(t, reg, nil)
	conn := dial(t, ts)
	w1 := uuid.New()

	require.NoError(t, conn.WriteJSON(realtime.ControlFrame{Type: realtime.FrameJoinRoom, WishlistID: w1.String()}))
	var ack realtime.ControlFrame
	readJSON(t, conn, &ack)
	assert.Equal(t, realtime.FrameRoomJoined, ack.Type)
	assert.Equal(t, w1.String(), ack.WishlistID)

	ev, err := realtime.NewEvent(realtime.ProductAdded, w1, map[string]string{"id": "p1"})
	require.NoError(t, err)
	delivered := realtime.NewBroadcaster(reg, nil, nil).DeliverLocal(context.Background(), ev)
	assert.Equal(t, 1, delivered)

	var got realtime.Event
	readJSON(t, conn, &got)
	assert.Equal(t, realtime.ProductAdded, got.Type)
	assert.Equal(t, w1, got.WishlistID)
}

func TestServerLeaveStopsDelivery(t *testing.T) {
	reg := realtime.NewRegistry(nil)
	ts := newTestServer(t, reg, nil)
	conn := dial(t, ts)
	w1 := uuid.New()

	require.NoError(t, conn.WriteJSON(realtime.ControlFrame{Type: realtime.FrameJoinRoom, WishlistID: w1.String()}))
	var ack realtime.ControlFrame
	readJSON(t, conn, &ack)
	require.NoError(t, conn.WriteJSON(realtime.ControlFrame{Type: realtime.FrameLeaveRoom, WishlistID: w1.String()}))
	readJSON(t, conn, &ack)
	assert.Equal(t, realtime.FrameRoomLeft, ack.Type)

	assert.Empty(t, reg.MembersOf(w1))
}

func TestServerRejectsJoinForNonMember(t *testing.T) {
	reg := realtime.NewRegistry(nil)
	allowed := uuid.New()
	ts := newTestServer(t, reg, stubMembers{allowed: map[uuid.UUID]bool{allowed: true}})
	conn := dial(t, ts)
	denied := uuid.New()

	require.NoError(t, conn.WriteJSON(realtime.ControlFrame{Type: realtime.FrameJoinRoom, WishlistID: denied.String()}))
	var frame realtime.ControlFrame
	readJSON(t, conn, &frame)
	assert.Equal(t, realtime.FrameError, frame.Type)
	assert.Equal(t, string(pkgerrors.CodeForbidden), frame.Code)
	assert.Empty(t, reg.MembersOf(denied))

	require.NoError(t, conn.WriteJSON(realtime.ControlFrame{Type: realtime.FrameJoinRoom, WishlistID: allowed.String()}))
	readJSON(t, conn, &frame)
	assert.Equal(t, realtime.FrameRoomJoined, frame.Type)
}

func TestServerJoinCheckFailureIsNotARefusal(t *testing.T) {
	reg := realtime.NewRegistry(nil)
	ts := newTestServer(t, reg, stubMembers{err: errors.New("connection reset")})
	conn := dial(t, ts)
	w1 := uuid.New()

	require.NoError(t, conn.WriteJSON(realtime.ControlFrame{Type: realtime.FrameJoinRoom, WishlistID: w1.String()}))
	var frame realtime.ControlFrame
	readJSON(t, conn, &frame)
	assert.Equal(t, realtime.FrameError, frame.Type)
	assert.Equal(t, w1.String(), frame.WishlistID)
	assert.Equal(t, string(pkgerrors.CodeDependency), frame.Code)
	assert.Empty(t, reg.MembersOf(w1))
}

func TestServerReportsMalformedFrames(t *testing.T) {
	reg := realtime.NewRegistry(nil)
	ts := newTestServer(t, reg, nil)
	conn := dial(t, ts)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{nope")))
	var frame realtime.ControlFrame
	readJSON(t, conn, &frame)
	assert.Equal(t, realtime.FrameError, frame.Type)

	require.NoError(t, conn.WriteJSON(realtime.ControlFrame{Type: realtime.FrameJoinRoom, WishlistID: "not-a-uuid"}))
	readJSON(t, conn, &frame)
	assert.Equal(t, realtime.FrameError, frame.Type)
	assert.Equal(t, "invalid wishlistId", frame.Message)
}

func TestServerDisconnectRemovesSubscriptions(t *testing.T) {
	reg := realtime.NewRegistry(nil)
	ts := newTestServer(t, reg, nil)
	conn := dial(t, ts)
	w1 := uuid.New()

	require.NoError(t, conn.WriteJSON(realtime.ControlFrame{Type: realtime.FrameJoinRoom, WishlistID: w1.String()}))
	var ack realtime.ControlFrame
	readJSON(t, conn, &ack)
	require.Len(t, reg.MembersOf(w1), 1)

	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		return len(reg.MembersOf(w1)) == 0 && reg.SessionCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCheckOrigin(t *testing.T) {
	srv, err := NewServer(realtime.NewRegistry(nil), config.RealtimeConfig{AllowedOrigins: []string{"https://app.example"}}, nil, nil)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.True(t, srv.checkOrigin(r))
	r.Header.Set("Origin", "https://app.example")
	assert.True(t, srv.checkOrigin(r))
	r.Header.Set("Origin", "https://evil.example")
	assert.False(t, srv.checkOrigin(r))
}
