package command

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/fulfillment-api/internal/middleware"
	"github.com/jwalitptl/fulfillment-api/internal/model"
	"github.com/jwalitptl/fulfillment-api/internal/repository/memory"
	"github.com/jwalitptl/fulfillment-api/internal/service/orchestrator"
	"github.com/jwalitptl/fulfillment-api/internal/service/refill"
	"github.com/jwalitptl/fulfillment-api/pkg/logger"
	"github.com/jwalitptl/fulfillment-api/pkg/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setup(t *testing.T, actor model.Actor) (*gin.Engine, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	m := metrics.NewNop()
	svc := orchestrator.NewService(store, refill.NewService(store, logger.Nop(), m), orchestrator.Config{}, logger.Nop(), m)

	r := gin.New()
	api := r.Group("", func(c *gin.Context) {
		c.Set(middleware.ContextActor, actor)
		c.Next()
	})
	NewHandler(svc).RegisterRoutes(api)
	return r, store
}

func post(r http.Handler, body interface{}, key string) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/commands", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(HeaderIdempotencyKey, key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Success bool                `json:"success"`
	Data    orchestrator.Result `json:"data"`
	Error   *struct {
		Type string `json:"type"`
	} `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func addConsultation(t *testing.T, store *memory.Store) *model.Consultation {
	t.Helper()
	c := &model.Consultation{
		PatientID: uuid.New(),
		Vertical:  model.VerticalHairLoss,
		Status:    model.ConsultationPendingAssessment,
	}
	require.NoError(t, store.Consultations().Create(context.Background(), c))
	return c
}

func TestExecuteAppliesTransition(t *testing.T) {
	r, store := setup(t, model.Actor{Role: model.RoleAdmin, ID: uuid.New()})
	c := addConsultation(t, store)

	w := post(r, gin.H{
		"entity":    model.EntityConsultation,
		"entity_id": c.ID,
		"event":     model.ConsultationCompleteAIAssessment,
	}, "")

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	env := decode(t, w)
	assert.True(t, env.Success)
	assert.Equal(t, string(model.ConsultationPendingAssessment), env.Data.From)
	assert.Equal(t, string(model.ConsultationAIReviewed), env.Data.To)
}

func TestExecuteRejectsUnauthorizedRole(t *testing.T) {
	r, store := setup(t, model.Actor{Role: model.RolePatient, ID: uuid.New()})
	c := addConsultation(t, store)

	w := post(r, gin.H{
		"entity":    model.EntityConsultation,
		"entity_id": c.ID,
		"event":     model.ConsultationClaim,
	}, "")

	assert.Equal(t, http.StatusForbidden, w.Code)
	env := decode(t, w)
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, "FORBIDDEN", env.Error.Type)
}

func TestExecuteInvalidTransition(t *testing.T) {
	r, store := setup(t, model.Actor{Role: model.RoleAdmin, ID: uuid.New()})
	c := addConsultation(t, store)

	w := post(r, gin.H{
		"entity":    model.EntityConsultation,
		"entity_id": c.ID,
		"event":     model.ConsultationApprove,
	}, "")

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestExecuteReplaysIdempotencyKeyHeader(t *testing.T) {
	r, store := setup(t, model.Actor{Role: model.RoleAdmin, ID: uuid.New()})
	c := addConsultation(t, store)
	body := gin.H{
		"entity":    model.EntityConsultation,
		"entity_id": c.ID,
		"event":     model.ConsultationCompleteAIAssessment,
	}

	first := post(r, body, "retry-1")
	require.Equal(t, http.StatusOK, first.Code)
	second := post(r, body, "retry-1")
	require.Equal(t, http.StatusOK, second.Code, second.Body.String())

	assert.False(t, decode(t, first).Data.Replayed)
	assert.True(t, decode(t, second).Data.Replayed)
	assert.Equal(t, decode(t, first).Data.Version, decode(t, second).Data.Version)
}

func TestExecuteMalformedBody(t *testing.T) {
	r, _ := setup(t, model.Actor{Role: model.RoleAdmin, ID: uuid.New()})

	req := httptest.NewRequest(http.MethodPost, "/commands", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
