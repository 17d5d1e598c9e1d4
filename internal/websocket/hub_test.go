package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exeat/internal/middleware"
	"exeat/internal/model"
	"exeat/internal/pkg/worker"
	"exeat/internal/repository/memory"
	"exeat/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type harness struct {
	hub    *Hub
	tokens *middleware.JWT
	users  *memory.Users
	url    string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	pool, err := worker.NewPool(ctx, "ws-test", 4)
	require.NoError(t, err)

	hub := NewHub(pool, nil)
	go hub.Run(ctx)

	tokens := middleware.NewJWT("ws-test-secret-long-enough-0123456789", "exeat-test", time.Hour, time.Hour, false)
	users := memory.NewUsers()
	profiles := service.NewRoleResolver(users)
	router := gin.New()
	router.GET("/ws", func(c *gin.Context) { ServeWs(hub, c, tokens, profiles) })
	srv := httptest.NewServer(router)

	t.Cleanup(func() {
		srv.Close()
		cancel()
		pool.Shutdown(time.Second)
	})
	return &harness{hub: hub, tokens: tokens, users: users, url: "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"}
}

// dial stores user as a profile and connects with a token issued for it.
func (h *harness) dial(t *testing.T, user *model.User) *websocket.Conn {
	t.Helper()
	h.register(t, user)
	return h.dialWithClaims(t, user)
}

func (h *harness) register(t *testing.T, user *model.User) {
	t.Helper()
	stored := *user
	stored.Email = user.ID + "@mtu.edu.ng"
	require.NoError(t, h.users.Create(context.Background(), &stored))
}

// dialWithClaims connects with a token carrying claims as issued, whatever
// the stored profile says.
func (h *harness) dialWithClaims(t *testing.T, claims *model.User) *websocket.Conn {
	t.Helper()
	token, _, err := h.tokens.Issue(claims)
	require.NoError(t, err)

	conn, resp, err := websocket.DefaultDialer.Dial(h.url+"?token="+token, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) model.ExeatEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev model.ExeatEvent
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func TestServeWs_RejectsWithoutValidToken(t *testing.T) {
	h := newHarness(t)

	for _, url := range []string{h.url, h.url + "?token=bogus"} {
		_, resp, err := websocket.DefaultDialer.Dial(url, nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
}

func TestServeWs_RejectsUnknownProfile(t *testing.T) {
	h := newHarness(t)

	token, _, err := h.tokens.Issue(&model.User{ID: "ghost", Role: model.RoleDSA})
	require.NoError(t, err)

	_, resp, err := websocket.DefaultDialer.Dial(h.url+"?token="+token, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, 0, h.hub.ClientCount())
}

func TestServeWs_RoleComesFromProfile(t *testing.T) {
	h := newHarness(t)

	// The profile says student; the token still claims porter.
	h.register(t, &model.User{ID: "stu-1", FullName: "Ada Obi", Role: model.RoleStudent})
	demoted := h.dialWithClaims(t, &model.User{ID: "stu-1", FullName: "Ada Obi", Role: model.RolePorter})
	require.Eventually(t, func() bool { return h.hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	h.hub.Publish(model.ExeatEvent{Type: model.EventExeatUpdated, ID: "EX-MTU-2025-00002", StudentID: "stu-2", Status: model.StatusPending, CurrentStage: model.StagePorter})
	h.hub.Publish(model.ExeatEvent{Type: model.EventExeatUpdated, ID: "EX-MTU-2025-00001", StudentID: "stu-1", Status: model.StatusPending, CurrentStage: model.StagePorter})

	// Publishing fans out on the pool, so arrival order is not fixed.
	ev := readEvent(t, demoted)
	assert.Equal(t, "EX-MTU-2025-00001", ev.ID)

	require.NoError(t, demoted.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := demoted.ReadMessage()
	assert.Error(t, err, "another student's event must not be delivered on a stale staff claim")
}

func TestPublish_StaffSeeAllStudentsSeeOwn(t *testing.T) {
	h := newHarness(t)

	porter := h.dial(t, &model.User{ID: "porter-1", FullName: "Gate Porter", Role: model.RolePorter})
	owner := h.dial(t, &model.User{ID: "stu-1", FullName: "Ada Obi", Role: model.RoleStudent})
	stranger := h.dial(t, &model.User{ID: "stu-2", FullName: "Bola Ade", Role: model.RoleStudent})

	require.Eventually(t, func() bool { return h.hub.ClientCount() == 3 }, 2*time.Second, 10*time.Millisecond)

	h.hub.Publish(model.ExeatEvent{
		Type:         model.EventExeatUpdated,
		ID:           "EX-MTU-2025-00001",
		StudentID:    "stu-1",
		Status:       model.StatusHold,
		CurrentStage: model.StageHOD,
		LastAction:   model.ActionApproved,
	})

	for _, conn := range []*websocket.Conn{porter, owner} {
		ev := readEvent(t, conn)
		assert.Equal(t, "EX-MTU-2025-00001", ev.ID)
		assert.Equal(t, model.StageHOD, ev.CurrentStage)
	}

	require.NoError(t, stranger.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := stranger.ReadMessage()
	assert.Error(t, err, "another student's event must not be delivered")
}

func TestHub_Unregister(t *testing.T) {
	h := newHarness(t)

	conn := h.dial(t, &model.User{ID: "dsa-1", FullName: "Student Affairs", Role: model.RoleDSA})
	require.Eventually(t, func() bool { return h.hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return h.hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"http://localhost:3000"})

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, check(req))

	req.Header.Set("Origin", "http://localhost:3000")
	assert.True(t, check(req))

	req.Header.Set("Origin", "http://evil.example")
	assert.False(t, check(req))

	assert.True(t, originChecker(nil)(req))
}
