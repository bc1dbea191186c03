package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"gridalert/internal/storage"
	"gridalert/models"
	"gridalert/services/calendar"
	"gridalert/services/notifier"
	"gridalert/services/users"
	"gridalert/utils"
)

func testRouter(t *testing.T) (http.Handler, *calendar.Service) {
	t.Helper()
	store := storage.NewWithFs(afero.NewMemMapFs())
	cal := calendar.New(store, "race_calendar.json", nil)
	us := users.New(store, "users_data.json")
	sched := notifier.New(cal, us, nil, nil, notifier.NewHistory(store, "notify_history.json"))

	router := utils.NewRouter()
	api := router.PathPrefix("/api").Subrouter()
	api.Use(utils.RequireToken("sekrit"))

	status := NewStatusHandler(cal, sched, us)
	api.HandleFunc("/status", status.GetStatus).Methods(http.MethodGet)
	ch := NewCalendarHandler(cal)
	api.HandleFunc("/calendar", ch.GetCalendar).Methods(http.MethodGet)
	api.HandleFunc("/calendar/refresh", ch.RefreshCalendar).Methods(http.MethodPost)

	return router, cal
}

func get(t *testing.T, h http.Handler, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthIsOpen(t *testing.T) {
	router, _ := testRouter(t)
	rec := get(t, router, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIRejectsMissingToken(t *testing.T) {
	router, _ := testRouter(t)
	require.Equal(t, http.StatusUnauthorized, get(t, router, "/api/status", "").Code)
	require.Equal(t, http.StatusUnauthorized, get(t, router, "/api/status", "wrong").Code)
}

func TestGetStatus(t *testing.T) {
	router, _ := testRouter(t)
	rec := get(t, router, "/api/status", "sekrit")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Contains(t, body, "calendar")
	require.Contains(t, body, "scheduler")
	require.Contains(t, body, "users")
}

func TestGetCalendar(t *testing.T) {
	router, cal := testRouter(t)
	start := time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC)
	require.NoError(t, cal.Replace([]models.Event{{
		Track:      "Monza",
		Start:      start,
		QualiClose: start.Add(-models.QualiLeadTime),
		Group:      models.DefaultGroup,
	}}))

	rec := get(t, router, "/api/calendar", "sekrit")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Events []models.Event `json:"events"`
		Total  int            `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 1, body.Total)
	require.Equal(t, "Monza", body.Events[0].Track)
}

func TestRefreshCalendarAccepted(t *testing.T) {
	router, _ := testRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/api/calendar/refresh", nil)
	req.Header.Set("Authorization", "Bearer sekrit")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)
}
