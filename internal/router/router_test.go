package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/medassist/booking-api/internal/handler/health"
	promhandler "github.com/medassist/booking-api/internal/handler/prometheus"
	"github.com/medassist/booking-api/internal/middleware"
	"github.com/medassist/booking-api/internal/model"
	"github.com/medassist/booking-api/pkg/auth"
)

type okPinger struct{}

func (okPinger) PingContext(context.Context) error { return nil }

// whoami stands in for the domain handlers.
type whoami struct {
	path string
}

func (h whoami) RegisterRoutes(r *gin.RouterGroup) {
	r.GET(h.path, middleware.RequireRole(model.RoleDoctor), func(c *gin.Context) {
		p, _ := middleware.GetPrincipal(c)
		c.JSON(http.StatusOK, gin.H{"id": p.ID})
	})
}

func newTestRouter(t *testing.T, cfg RouterConfig) (*gin.Engine, auth.JWTService) {
	t.Helper()
	tokens := auth.NewJWTService(auth.Config{Secret: "router-secret", TTL: time.Hour})
	cfg.GinMode = gin.TestMode

	r := NewRouter(
		middleware.NewAuthMiddleware(tokens),
		whoami{path: "/appointments/me"},
		whoami{path: "/doctors/me"},
		health.NewHandler(okPinger{}),
		promhandler.New(prometheus.NewRegistry(), "test"),
		cfg,
	)
	return r.Engine(), tokens
}

func get(engine *gin.Engine, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.RemoteAddr = "192.0.2.1:4000"
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestPublicRoutes(t *testing.T) {
	engine, _ := newTestRouter(t, RouterConfig{})

	w := get(engine, "/api/v1/health/live", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderXRequestID))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	assert.Equal(t, http.StatusOK, get(engine, "/api/v1/health/ready", "").Code)

	w = get(engine, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "test_http_requests_total")
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	engine, tokens := newTestRouter(t, RouterConfig{})

	assert.Equal(t, http.StatusUnauthorized, get(engine, "/api/v1/appointments/me", "").Code)

	patientToken, err := tokens.GenerateAccessToken(uuid.New(), "patient")
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, get(engine, "/api/v1/doctors/me", patientToken).Code)

	doctorID := uuid.New()
	doctorToken, err := tokens.GenerateAccessToken(doctorID, "doctor")
	require.NoError(t, err)
	w := get(engine, "/api/v1/appointments/me", doctorToken)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), doctorID.String())
}

func TestUnknownRouteEnvelope(t *testing.T) {
	engine, _ := newTestRouter(t, RouterConfig{})

	w := get(engine, "/api/v1/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"success":false,"error":{"code":404,"message":"route not found"}}`, w.Body.String())
}

func TestRateLimitAppliesToProtectedRoutes(t *testing.T) {
	engine, tokens := newTestRouter(t, RouterConfig{
		RateLimit: &middleware.RateLimiterConfig{Rate: rate.Every(time.Hour), Burst: 1, ClientTTL: time.Minute},
	})
	token, err := tokens.GenerateAccessToken(uuid.New(), "doctor")
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, get(engine, "/api/v1/doctors/me", token).Code)
	assert.Equal(t, http.StatusTooManyRequests, get(engine, "/api/v1/doctors/me", token).Code)

	// health stays outside the limiter
	assert.Equal(t, http.StatusOK, get(engine, "/api/v1/health/live", "").Code)
	assert.Equal(t, http.StatusOK, get(engine, "/api/v1/health/live", "").Code)
}
