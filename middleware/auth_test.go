package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"alerts-service/config"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func authRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{JWTSecret: testSecret}
	router := gin.New()
	router.GET("/protected", AuthMiddleware(cfg), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"citizenId": CitizenID(c)})
	})
	return router
}

func signToken(t *testing.T, claims jwt.MapClaims, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestAuthMiddleware(t *testing.T) {
	router := authRouter()

	tests := []struct {
		name       string
		authHeader string
		wantStatus int
	}{
		{
			name:       "missing header",
			authHeader: "",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "wrong scheme",
			authHeader: "Basic abc123",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "garbage token",
			authHeader: "Bearer not.a.jwt",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "valid token with citizen_id claim",
			authHeader: "Bearer " + signToken(t, jwt.MapClaims{
				"citizen_id": "citizen-1",
				"exp":        time.Now().Add(time.Hour).Unix(),
			}, testSecret),
			wantStatus: http.StatusOK,
		},
		{
			name: "valid token with sub fallback",
			authHeader: "Bearer " + signToken(t, jwt.MapClaims{
				"sub": "citizen-2",
				"exp": time.Now().Add(time.Hour).Unix(),
			}, testSecret),
			wantStatus: http.StatusOK,
		},
		{
			name: "expired token",
			authHeader: "Bearer " + signToken(t, jwt.MapClaims{
				"citizen_id": "citizen-1",
				"exp":        time.Now().Add(-time.Hour).Unix(),
			}, testSecret),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "refresh token rejected",
			authHeader: "Bearer " + signToken(t, jwt.MapClaims{
				"citizen_id": "citizen-1",
				"type":       "refresh",
				"exp":        time.Now().Add(time.Hour).Unix(),
			}, testSecret),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "wrong secret",
			authHeader: "Bearer " + signToken(t, jwt.MapClaims{
				"citizen_id": "citizen-1",
				"exp":        time.Now().Add(time.Hour).Unix(),
			}, "other-secret"),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "no citizen id in claims",
			authHeader: "Bearer " + signToken(t, jwt.MapClaims{
				"exp": time.Now().Add(time.Hour).Unix(),
			}, testSecret),
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestServiceKeyMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	newRouter := func(serviceKey string) *gin.Engine {
		cfg := &config.Config{ServiceKey: serviceKey}
		router := gin.New()
		router.POST("/webhook", ServiceKeyMiddleware(cfg), func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"success": true})
		})
		return router
	}

	call := func(router *gin.Engine, key string) int {
		req := httptest.NewRequest(http.MethodPost, "/webhook", nil)
		if key != "" {
			req.Header.Set("x-service-key", key)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	router := newRouter("hook-secret")
	assert.Equal(t, http.StatusOK, call(router, "hook-secret"))
	assert.Equal(t, http.StatusUnauthorized, call(router, "wrong"))
	assert.Equal(t, http.StatusUnauthorized, call(router, ""))

	// A service with no configured key accepts nothing.
	unconfigured := newRouter("")
	assert.Equal(t, http.StatusUnauthorized, call(unconfigured, ""))
	assert.Equal(t, http.StatusUnauthorized, call(unconfigured, "anything"))
}
