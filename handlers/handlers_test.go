package handlers

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"alerts-service/config"
	"alerts-service/database"
	"alerts-service/middleware"
	"alerts-service/proofs"
	"alerts-service/proofstore"
	"alerts-service/service"
	ws "alerts-service/websocket"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testServiceKey = "hook-secret"

type testEnv struct {
	router *gin.Engine
	mock   sqlmock.Sqlmock
	db     *sql.DB
}

// fakeAuth stands in for the JWT middleware so handler tests exercise the
// request path without minting tokens.
func fakeAuth(citizenID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("citizen_id", citizenID)
		c.Next()
	}
}

func newTestEnv(t *testing.T, citizenID string) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		ServiceKey:          testServiceKey,
		MaxUploadBytes:      50 * 1024 * 1024,
		MaxUploadFiles:      5,
		ProcessTimeoutBase:  30 * time.Second,
		ProcessWorkers:      2,
		DefaultNearbyMeters: 5000,
	}

	files := proofstore.New(t.TempDir(), "/uploads")
	require.NoError(t, files.EnsureFolders())

	hub := ws.NewHub()
	svc := service.New(cfg, database.NewAlertStore(db), files,
		proofs.NewPipeline(files, "/nonexistent/ffmpeg"), nil, nil)
	h := NewHandlers(svc, hub, cfg)

	router := gin.New()
	api := router.Group("/api/v3/alerts")
	api.POST("/webhook/status", middleware.ServiceKeyMiddleware(cfg), h.UpdateAlertStatus)
	authed := api.Group("")
	authed.Use(fakeAuth(citizenID))
	{
		authed.POST("", h.CreateAlert)
		authed.GET("/me", h.GetMyAlerts)
		authed.GET("/nearby", h.GetNearbyAlerts)
		authed.DELETE("/upload", h.DeleteUpload)
		authed.GET("/:id", h.GetAlertByID)
		authed.POST("/:id/comments", h.AddComment)
	}

	return &testEnv{router: router, mock: mock, db: db}
}

func (e *testEnv) do(method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func alertRow(id, citizenID, status string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "service_id", "category", "title", "description", "priority",
		"longitude", "latitude", "address", "is_anonymous", "citizen_id",
		"status", "created_at", "updated_at",
	}).AddRow(id, "svc-1", "litter", "t", "d", "", 19.26, 42.44, "", false,
		citizenID, status, now, now)
}

func (e *testEnv) expectChildren(id string) {
	e.mock.ExpectQuery("SELECT alert_id, type, url, thumbnail, size").
		WillReturnRows(sqlmock.NewRows([]string{"alert_id", "type", "url", "thumbnail", "size"}))
	e.mock.ExpectQuery("SELECT alert_id, citizen_id, text, created_at").
		WillReturnRows(sqlmock.NewRows([]string{"alert_id", "citizen_id", "text", "created_at"}))
}

func TestCreateAlertRejectsBadCoordinates(t *testing.T) {
	env := newTestEnv(t, "citizen-1")

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{name: "missing coordinates", body: map[string]interface{}{"category": "litter"}},
		{name: "single coordinate", body: map[string]interface{}{"coordinates": []float64{19.26}}},
		{name: "latitude out of range", body: map[string]interface{}{"coordinates": []float64{19.26, 142.44}}},
		{name: "bad isAnonymous", body: map[string]interface{}{
			"coordinates": []float64{19.26, 42.44},
			"isAnonymous": "definitely",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodPost, "/api/v3/alerts", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestGetNearbyAlertsValidation(t *testing.T) {
	env := newTestEnv(t, "citizen-1")

	tests := []struct {
		name string
		path string
	}{
		{name: "missing longitude", path: "/api/v3/alerts/nearby?latitude=42.44"},
		{name: "missing latitude", path: "/api/v3/alerts/nearby?longitude=19.26"},
		{name: "non-numeric longitude", path: "/api/v3/alerts/nearby?longitude=east&latitude=42.44"},
		{name: "negative distance", path: "/api/v3/alerts/nearby?longitude=19.26&latitude=42.44&distance=-5"},
		{name: "out of range latitude", path: "/api/v3/alerts/nearby?longitude=19.26&latitude=99"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodGet, tt.path, nil, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestGetNearbyAlertsEmptyResult(t *testing.T) {
	env := newTestEnv(t, "citizen-1")

	env.mock.ExpectQuery("ST_Distance_Sphere").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	w := env.do(http.MethodGet, "/api/v3/alerts/nearby?longitude=19.26&latitude=42.44", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool              `json:"success"`
		Data    []json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.NotNil(t, resp.Data)
	assert.Empty(t, resp.Data)
}

func TestGetAlertByIDNotFound(t *testing.T) {
	env := newTestEnv(t, "citizen-1")

	env.mock.ExpectQuery("SELECT (.+) FROM alerts WHERE id = \\? AND citizen_id = \\?").
		WithArgs("missing", "citizen-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	w := env.do(http.MethodGet, "/api/v3/alerts/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAddCommentRejectsEmptyText(t *testing.T) {
	env := newTestEnv(t, "citizen-1")

	w := env.do(http.MethodPost, "/api/v3/alerts/alert-1/comments",
		map[string]interface{}{"text": "   "}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateAlertStatusRequiresServiceKey(t *testing.T) {
	env := newTestEnv(t, "")

	body := map[string]interface{}{"alertId": "alert-1", "status": "in_progress"}

	w := env.do(http.MethodPost, "/api/v3/alerts/webhook/status", body, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(http.MethodPost, "/api/v3/alerts/webhook/status", body,
		map[string]string{"x-service-key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUpdateAlertStatusWebhook(t *testing.T) {
	env := newTestEnv(t, "")

	// Existence check.
	env.mock.ExpectQuery("SELECT (.+) FROM alerts WHERE id = \\?").
		WithArgs("alert-1").
		WillReturnRows(alertRow("alert-1", "citizen-1", "pending"))
	env.expectChildren("alert-1")

	env.mock.ExpectExec("UPDATE alerts SET status = \\?").
		WithArgs("in_progress", "alert-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	// Webhook comment is attributed to the sender.
	env.mock.ExpectBegin()
	env.mock.ExpectExec("INSERT INTO alert_comments").
		WithArgs("alert-1", "city-crew", "crew dispatched").
		WillReturnResult(sqlmock.NewResult(1, 1))
	env.mock.ExpectExec("UPDATE alerts SET updated_at = NOW\\(\\)").
		WithArgs("alert-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	env.mock.ExpectCommit()

	// Response carries the updated alert.
	env.mock.ExpectQuery("SELECT (.+) FROM alerts WHERE id = \\?").
		WithArgs("alert-1").
		WillReturnRows(alertRow("alert-1", "citizen-1", "in_progress"))
	env.expectChildren("alert-1")

	w := env.do(http.MethodPost, "/api/v3/alerts/webhook/status", map[string]interface{}{
		"alertId":   "alert-1",
		"status":    "in_progress",
		"comment":   "crew dispatched",
		"updatedBy": "city-crew",
	}, map[string]string{"x-service-key": testServiceKey})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "alert-1", resp.Data.ID)
	assert.Equal(t, "in_progress", resp.Data.Status)

	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestUpdateAlertStatusValidation(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(http.MethodPost, "/api/v3/alerts/webhook/status",
		map[string]interface{}{"alertId": "alert-1"},
		map[string]string{"x-service-key": testServiceKey})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateAlertStatusUnknownAlert(t *testing.T) {
	env := newTestEnv(t, "")

	env.mock.ExpectQuery("SELECT (.+) FROM alerts WHERE id = \\?").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	w := env.do(http.MethodPost, "/api/v3/alerts/webhook/status", map[string]interface{}{
		"alertId": "missing",
		"status":  "resolved",
	}, map[string]string{"x-service-key": testServiceKey})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteUploadRequiresURL(t *testing.T) {
	env := newTestEnv(t, "citizen-1")

	w := env.do(http.MethodDelete, "/api/v3/alerts/upload",
		map[string]interface{}{"url": ""}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
