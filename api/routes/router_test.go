package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/sharedwishlist/api/controllers"
	"github.com/angelmondragon/sharedwishlist/internal/auth"
	"github.com/angelmondragon/sharedwishlist/internal/realtime"
	"github.com/angelmondragon/sharedwishlist/internal/realtime/ws"
	"github.com/angelmondragon/sharedwishlist/internal/users"
	"github.com/angelmondragon/sharedwishlist/internal/wishlists"
	"github.com/angelmondragon/sharedwishlist/pkg/auth/session"
	"github.com/angelmondragon/sharedwishlist/pkg/config"
	"github.com/angelmondragon/sharedwishlist/pkg/db"
	"github.com/angelmondragon/sharedwishlist/pkg/db/models"
	"github.com/angelmondragon/sharedwishlist/pkg/metrics"
)

// memorySessions stands in for the Redis-backed session manager.
type memorySessions struct {
	mu       sync.Mutex
	sessions map[string]string
}

func newMemorySessions() *memorySessions {
	return &memorySessions{sessions: map[string]string{}}
}

func (m *memorySessions) Generate(_ context.Context, accessID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token := uuid.NewString()
	m.sessions[accessID] = token
	return token, nil
}

func (m *memorySessions) Rotate(_ context.Context, oldAccessID, provided string) (string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[oldAccessID] != provided {
		return "", "", session.ErrInvalidRefreshToken
	}
	delete(m.sessions, oldAccessID)
	newID, token := uuid.NewString(), uuid.NewString()
	m.sessions[newID] = token
	return newID, token, nil
}

func (m *memorySessions) Revoke(_ context.Context, accessID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, accessID)
	return nil
}

func (m *memorySessions) HasSession(_ context.Context, accessID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[accessID]
	return ok, nil
}

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

type testServer struct {
	*httptest.Server
	registry *realtime.Registry
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file::memory:?_foreign_keys=on"), &gorm.Config{NowFunc: db.NowUTC})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, conn.AutoMigrate(models.All()...))

	cfg := &config.Config{
		App: config.AppConfig{Env: "test"},
		JWT: config.JWTConfig{Secret: "test-secret", Issuer: "sharedwishlist", ExpirationMinutes: 60, RefreshTokenTTLMinutes: 120},
		Password: config.PasswordConfig{
			ArgonMemoryKB: 1024, ArgonTime: 1, ArgonParallelism: 1, ArgonSaltLen: 16, ArgonKeyLen: 32,
		},
		Realtime: config.RealtimeConfig{SendBuffer: 16},
	}

	reg := prometheus.NewRegistry()
	registry := realtime.NewRegistry(metrics.NewRealtimeMetrics(reg))
	broadcaster := realtime.NewBroadcaster(registry, nil, nil)
	client := db.Wrap(conn)
	repo := wishlists.NewRepository(conn)
	sessions := newMemorySessions()

	authSvc, err := auth.NewService(auth.ServiceParams{UserRepo: users.NewRepository(conn), SessionManager: sessions, JWTConfig: cfg.JWT})
	require.NoError(t, err)
	registerSvc, err := auth.NewRegisterService(auth.RegisterServiceParams{TxRunner: client, PasswordConfig: cfg.Password})
	require.NoError(t, err)
	wishlistSvc, err := wishlists.NewService(wishlists.ServiceParams{
		Repo:      repo,
		Users:     users.NewRepository(conn),
		TxRunner:  client,
		Publisher: broadcaster,
		Metrics:   metrics.NewMutationMetrics(reg),
	})
	require.NoError(t, err)
	wsServer, err := ws.NewServer(registry, cfg.Realtime, nil, repo)
	require.NoError(t, err)

	handler := NewRouter(Dependencies{
		Config:    cfg,
		Health:    map[string]controllers.Pinger{"db": client, "redis": stubPinger{}},
		Sessions:  sessions,
		Gatherer:  reg,
		Auth:      authSvc,
		Register:  registerSvc,
		Wishlists: wishlistSvc,
		Realtime:  wsServer,
	})

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, registry: registry}
}

func (s *testServer) call(t *testing.T, method, path, token, body string, out any) int {
	t.Helper()
	req, err := http.NewRequest(method, s.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		envelope := struct {
			Data any `json:"data"`
		}{Data: out}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	}
	return resp.StatusCode
}

func (s *testServer) signUp(t *testing.T, username string) auth.LoginResponse {
	t.Helper()
	var login auth.LoginResponse
	body := `{"username":"` + username + `","email":"` + username + `@example.com","password":"correct-horse"}`
	status := s.call(t, http.MethodPost, "/api/v1/auth/register", "", body, &login)
	require.Equal(t, http.StatusCreated, status)
	require.NotEmpty(t, login.AccessToken)
	return login
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusOK, s.call(t, http.MethodGet, "/health/live", "", "", nil))
	assert.Equal(t, http.StatusOK, s.call(t, http.MethodGet, "/health/ready", "", "", nil))

	resp, err := s.Client().Get(s.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusUnauthorized, s.call(t, http.MethodGet, "/api/v1/wishlists", "", "", nil))
	assert.Equal(t, http.StatusUnauthorized, s.call(t, http.MethodGet, "/api/v1/realtime", "", "", nil))
}

func TestLogoutRevokesAccess(t *testing.T) {
	s := newTestServer(t)
	login := s.signUp(t, "ana")

	assert.Equal(t, http.StatusOK, s.call(t, http.MethodGet, "/api/v1/wishlists", login.AccessToken, "", nil))
	assert.Equal(t, http.StatusOK, s.call(t, http.MethodPost, "/api/v1/auth/logout", login.AccessToken, "", nil))
	assert.Equal(t, http.StatusUnauthorized, s.call(t, http.MethodGet, "/api/v1/wishlists", login.AccessToken, "", nil))
}

func TestMutationReachesSubscribedSocket(t *testing.T) {
	s := newTestServer(t)
	owner := s.signUp(t, "owner")
	guest := s.signUp(t, "guest")

	var list wishlists.WishlistDTO
	require.Equal(t, http.StatusCreated, s.call(t, http.MethodPost, "/api/v1/wishlists", owner.AccessToken, `{"name":"Birthday"}`, &list))
	require.Equal(t, http.StatusCreated, s.call(t, http.MethodPost, "/api/v1/wishlists/"+list.ID.String()+"/invite", owner.AccessToken, `{"email":"guest@example.com"}`, nil))

	wsURL := "ws" + strings.TrimPrefix(s.URL, "http") + "/api/v1/realtime?access_token=" + guest.AccessToken
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(realtime.ControlFrame{Type: realtime.FrameJoinRoom, WishlistID: list.ID.String()}))
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ack realtime.ControlFrame
	require.NoError(t, conn.ReadJSON(&ack))
	require.Equal(t, realtime.FrameRoomJoined, ack.Type)

	var product wishlists.ProductDTO
	require.Equal(t, http.StatusCreated, s.call(t, http.MethodPost, "/api/v1/wishlists/"+list.ID.String()+"/products", owner.AccessToken, `{"name":"Lamp","price":"12.50"}`, &product))

	var event realtime.Event
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, realtime.ProductAdded, event.Type)
	assert.Equal(t, list.ID, event.WishlistID)

	var payload wishlists.ProductDTO
	require.NoError(t, event.Decode(&payload))
	assert.Equal(t, product.ID, payload.ID)
	assert.Equal(t, "Lamp", payload.Name)
}
