package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/fulfillment-api/internal/config"
	"github.com/jwalitptl/fulfillment-api/internal/handler/audit"
	"github.com/jwalitptl/fulfillment-api/internal/handler/command"
	"github.com/jwalitptl/fulfillment-api/internal/handler/health"
	"github.com/jwalitptl/fulfillment-api/internal/handler/order"
	"github.com/jwalitptl/fulfillment-api/internal/handler/prometheus"
	"github.com/jwalitptl/fulfillment-api/internal/middleware"
	"github.com/jwalitptl/fulfillment-api/internal/model"
	"github.com/jwalitptl/fulfillment-api/internal/repository/memory"
	auditsvc "github.com/jwalitptl/fulfillment-api/internal/service/audit"
	"github.com/jwalitptl/fulfillment-api/internal/service/orchestrator"
	"github.com/jwalitptl/fulfillment-api/internal/service/refill"
	"github.com/jwalitptl/fulfillment-api/pkg/auth"
	"github.com/jwalitptl/fulfillment-api/pkg/logger"
	"github.com/jwalitptl/fulfillment-api/pkg/metrics"
)

type testServer struct {
	t   *testing.T
	h   http.Handler
	jwt auth.JWTService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore()
	reg := prom.NewRegistry()
	m := metrics.NewMetrics("fulfillment", "", reg)
	svc := orchestrator.NewService(store, refill.NewService(store, logger.Nop(), m), orchestrator.Config{}, logger.Nop(), m)
	jwt := auth.NewJWTService("test-secret", "fulfillment-api")

	r := NewRouter(
		middleware.NewAuthMiddleware(jwt),
		health.NewHandler(map[string]health.Pinger{"store": store}),
		prometheus.New(reg),
		RouterConfig{
			Server: config.ServerConfig{RequestTimeout: 5 * time.Second},
			RateLimit: config.RateLimitConfig{
				Enabled:           true,
				RequestsPerSecond: 100,
				Burst:             100,
			},
			CORS: config.CORSConfig{AllowedOrigins: []string{"*"}},
		},
		command.NewHandler(svc),
		order.NewHandler(svc),
		audit.NewHandler(auditsvc.NewService(store.Audit()), svc),
	)
	r.Setup()

	return &testServer{t: t, h: r.Engine(), jwt: jwt}
}

func (s *testServer) token(actor model.Actor) string {
	s.t.Helper()
	tok, err := s.jwt.IssueToken(actor, time.Hour)
	require.NoError(s.t, err)
	return tok
}

func (s *testServer) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.h.ServeHTTP(w, req)
	return w
}

func data(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.True(t, env.Success, w.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, out))
}

func TestUnauthenticatedRequestsAreRejected(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/v1/consultations", "", gin.H{"vertical": model.VerticalPCOS})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodPost, "/api/v1/consultations", "not-a-jwt", gin.H{"vertical": model.VerticalPCOS})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestOperationalEndpointsSkipAuth(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/health/live", "", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/health/ready", "", nil).Code)

	w := s.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "http_requests_total"))
}

func TestConsultationLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	patient := model.Actor{Role: model.RolePatient, ID: uuid.New()}
	admin := model.Actor{Role: model.RoleAdmin, ID: uuid.New()}

	w := s.do(http.MethodPost, "/api/v1/consultations", s.token(patient), gin.H{"vertical": model.VerticalPCOS})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var c model.Consultation
	data(t, w, &c)
	assert.Equal(t, patient.ID, c.PatientID)
	assert.Equal(t, model.ConsultationPendingAssessment, c.Status)

	w = s.do(http.MethodPost, "/api/v1/commands", s.token(admin), gin.H{
		"entity":           model.EntityConsultation,
		"entity_id":        c.ID,
		"event":            model.ConsultationCompleteAIAssessment,
		"expected_version": c.Version,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderXRequestID))

	w = s.do(http.MethodGet, "/api/v1/consultations/"+c.ID.String(), s.token(patient), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got model.Consultation
	data(t, w, &got)
	assert.Equal(t, model.ConsultationAIReviewed, got.Status)

	w = s.do(http.MethodGet, "/api/v1/consultations/"+c.ID.String()+"/history", s.token(patient), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var history []model.TransitionRecord
	data(t, w, &history)
	require.Len(t, history, 2, "creation and the assessment")
	statuses := []string{history[0].ToStatus, history[1].ToStatus}
	assert.Contains(t, statuses, string(model.ConsultationAIReviewed))

	stranger := model.Actor{Role: model.RolePatient, ID: uuid.New()}
	w = s.do(http.MethodGet, "/api/v1/consultations/"+c.ID.String()+"/history", s.token(stranger), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
