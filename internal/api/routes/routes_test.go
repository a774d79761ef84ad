package routes

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/netwarden/netwarden/internal/config"
	"github.com/netwarden/netwarden/internal/services"
)

func setupRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	cfg := config.Config{JWTSecret: "test-secret", DriftThreshold: 20, LicenseMaxDevices: 100}
	scheduler, err := Register(router, db, cfg)
	require.NoError(t, err)
	require.NotNil(t, scheduler)
	return router, db
}

func TestRegister_RoutesMounted(t *testing.T) {
	router, _ := setupRouter(t)

	paths := map[string]bool{}
	for _, r := range router.Routes() {
		paths[r.Method+" "+r.Path] = true
	}
	assert.True(t, paths["GET /api/v1/health"])
	assert.True(t, paths["GET /metrics"])
	assert.True(t, paths["POST /api/v1/auth/login"])
	assert.True(t, paths["POST /api/v1/audits"])
	assert.True(t, paths["POST /api/v1/remediations"])
	assert.True(t, paths["POST /api/v1/devices/:id/baseline"])
	assert.True(t, paths["POST /api/v1/rules/import"])
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := setupRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	router, _ := setupRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLoginFlow(t *testing.T) {
	router, db := setupRouter(t)

	auth := services.NewAuthService(db, config.Config{JWTSecret: "test-secret"})
	require.NoError(t, auth.EnsureAdmin("admin@example.com", "bootstrap"))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
		strings.NewReader(`{"email": "admin@example.com", "password": "bootstrap"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotEmpty(t, body.Token)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil)
	req.Header.Set("Authorization", "Bearer "+body.Token)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLoginRejectsBadPassword(t *testing.T) {
	router, db := setupRouter(t)

	auth := services.NewAuthService(db, config.Config{JWTSecret: "test-secret"})
	require.NoError(t, auth.EnsureAdmin("admin@example.com", "bootstrap"))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
		strings.NewReader(`{"email": "admin@example.com", "password": "nope"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
