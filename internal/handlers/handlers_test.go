package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Dias221467/taskreminder/internal/jobs"
	"github.com/Dias221467/taskreminder/internal/models"
	"github.com/Dias221467/taskreminder/internal/push"
	"github.com/Dias221467/taskreminder/internal/repository/sqlite"
	"github.com/Dias221467/taskreminder/internal/services"
	"github.com/Dias221467/taskreminder/internal/testutil"
	"github.com/Dias221467/taskreminder/pkg/clock"
	jwtutil "github.com/Dias221467/taskreminder/pkg/jwt"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type apiFixture struct {
	store    *sqlite.Store
	hub      *push.Hub
	clock    *clock.Fake
	router   *mux.Router
	notifier *services.NotificationService
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	s := testutil.NewTestStore(t)
	hub := push.NewHub()
	t.Cleanup(hub.Close)
	clk := clock.NewFake(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))

	d := jobs.NewDispatcher(jobs.DispatcherConfig{
		Notifications: s,
		Tasks:         s,
		Users:         s,
		Push:          hub,
		Policy:        jobs.DefaultPolicy(),
		Clock:         clk,
	})
	streaks := services.NewStreakService(s, clk, time.UTC, true)
	notifier := services.NewNotificationService(s, d, streaks, clk)

	return &apiFixture{
		store:    s,
		hub:      hub,
		clock:    clk,
		notifier: notifier,
		router: NewRouter(Handlers{
			Notifications: NewNotificationHandler(notifier),
			Streaks:       NewStreakHandler(streaks),
			Push:          NewPushHandler(hub),
			Health:        NewHealthHandler(s),
		}, testSecret),
	}
}

func token(t *testing.T, userID, role string) string {
	t.Helper()
	tok, err := jwtutil.GenerateToken(userID, userID+"@example.com", role, testSecret, time.Hour)
	require.NoError(t, err)
	return tok
}

func (f *apiFixture) do(t *testing.T, method, path, tok string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRoutesRequireToken(t *testing.T) {
	f := newAPIFixture(t)
	for _, path := range []string{"/notifications", "/notifications/unread-count", "/streak", "/admin/streaks/stats"} {
		rec := f.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestCreateAndListNotifications(t *testing.T) {
	f := newAPIFixture(t)
	ann := token(t, "ann", "user")

	rec := f.do(t, http.MethodPost, "/notifications", ann, map[string]string{"message": "Well done", "type": "success"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created models.Notification
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "ann", created.UserID)
	assert.Equal(t, models.KindSuccess, created.Kind)
	assert.NotNil(t, created.SentAt)

	rec = f.do(t, http.MethodPost, "/notifications", ann, map[string]string{"message": "FYI"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodGet, "/notifications?type=success", ann, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []models.Notification
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)

	rec = f.do(t, http.MethodGet, "/notifications/unread-count", ann, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"unread_count":2}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/notifications", token(t, "bob", "user"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestCreateNotificationValidation(t *testing.T) {
	f := newAPIFixture(t)
	ann := token(t, "ann", "user")

	cases := []struct {
		name   string
		body   interface{}
		status int
	}{
		{"empty message", map[string]string{"message": " "}, http.StatusBadRequest},
		{"unknown type", map[string]string{"message": "x", "type": "shout"}, http.StatusBadRequest},
		{"other user", map[string]string{"message": "x", "user_id": "bob"}, http.StatusForbidden},
		{"bad json", "not an object", http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/notifications", ann, tc.body)
			assert.Equal(t, tc.status, rec.Code)
		})
	}

	rec := f.do(t, http.MethodPost, "/notifications", token(t, "ops", "admin"), map[string]string{"message": "x", "user_id": "bob"})
	require.Equal(t, http.StatusCreated, rec.Code)
	count, err := f.notifier.GetUnreadCount(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestListQueryValidation(t *testing.T) {
	f := newAPIFixture(t)
	ann := token(t, "ann", "user")
	for _, q := range []string{"unread=maybe", "type=shout", "limit=0", "limit=abc", "limit=1000"} {
		rec := f.do(t, http.MethodGet, "/notifications?"+q, ann, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestMarkReadAndDeleteCheckOwnership(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()
	ann, bob := token(t, "ann", "user"), token(t, "bob", "user")

	n, err := f.notifier.CreateInstantNotification(ctx, "ann", nil, "hello", models.KindInfo)
	require.NoError(t, err)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPatch, "/notifications/missing/read", ann, nil).Code)
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodPatch, "/notifications/"+n.ID+"/read", bob, nil).Code)
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodDelete, "/notifications/"+n.ID, bob, nil).Code)

	rec := f.do(t, http.MethodPatch, "/notifications/"+n.ID+"/read", ann, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got, err := f.notifier.GetNotification(ctx, n.ID)
	require.NoError(t, err)
	assert.True(t, got.IsRead)

	rec = f.do(t, http.MethodDelete, "/notifications/"+n.ID, ann, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, "/notifications/"+n.ID, ann, nil).Code)
}

func TestMarkAllRead(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()
	for _, msg := range []string{"a", "b"} {
		_, err := f.notifier.CreateInstantNotification(ctx, "ann", nil, msg, models.KindInfo)
		require.NoError(t, err)
	}

	rec := f.do(t, http.MethodPatch, "/notifications/read-all", token(t, "ann", "user"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"marked":2}`, rec.Body.String())
}

func TestStreakEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	ann := token(t, "ann", "user")

	rec := f.do(t, http.MethodGet, "/streak", ann, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var state models.UserStreakState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.Zero(t, state.CurrentStreak)

	rec = f.do(t, http.MethodPost, "/streak/activity", ann, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var up models.StreakUpdate
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &up))
	assert.True(t, up.StreakUpdated)
	assert.Equal(t, 1, up.CurrentStreak)

	yesterday := f.clock.Now().AddDate(0, 0, -1)
	rec = f.do(t, http.MethodPost, "/streak/activity", ann, map[string]interface{}{"occurred_at": yesterday})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/streak/activity", ann, map[string]interface{}{"occurred_at": f.clock.Now().AddDate(1, 0, 0)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/streak/activity", ann, map[string]string{"user_id": "bob"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, "/admin/streaks/stats", ann, nil).Code)
	rec = f.do(t, http.MethodGet, "/admin/streaks/stats", token(t, "ops", "admin"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats models.StreakStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.TotalUsers)
}

func TestWebSocketReceivesInstantNotification(t *testing.T) {
	f := newAPIFixture(t)
	srv := httptest.NewServer(f.router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token(t, "ann", "user")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return f.hub.Connections("ann") == 1 }, time.Second, 10*time.Millisecond)

	_, err = f.notifier.CreateInstantNotification(context.Background(), "ann", nil, "ping", models.KindInfo)
	require.NoError(t, err)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Type string `json:"type"`
		Data struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "notification", msg.Type)
	assert.Equal(t, "ping", msg.Data.Message)
	assert.Equal(t, "info", msg.Data.Type)

	_, _, err = websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	assert.Error(t, err)
}
