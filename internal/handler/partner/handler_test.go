package partner

import (
	"bytes"
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
	"github.com/jwalitptl/fulfillment-api/internal/service/roster"
	"github.com/jwalitptl/fulfillment-api/pkg/logger"
	"github.com/jwalitptl/fulfillment-api/pkg/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(actor model.Actor) *gin.Engine {
	store := memory.NewStore()
	m := metrics.NewNop()
	svc := orchestrator.NewService(store, refill.NewService(store, logger.Nop(), m), orchestrator.Config{}, logger.Nop(), m)

	r := gin.New()
	api := r.Group("", func(c *gin.Context) {
		c.Set(middleware.ContextActor, actor)
		c.Next()
	})
	NewHandler(svc, roster.NewService(store)).RegisterRoutes(api)
	return r
}

func send(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

var lab = gin.H{
	"kind":                 model.PartnerLab,
	"name":                 "Metro Diagnostics",
	"serviceable_pincodes": []string{"400058"},
	"daily_limit":          40,
}

func TestRegisterAndSuspendPartner(t *testing.T) {
	r := newRouter(model.Actor{Role: model.RoleAdmin, ID: uuid.New()})

	w := send(r, http.MethodPost, "/partners", lab)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		Data model.Partner `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, model.PartnerLab, created.Data.Kind)

	w = send(r, http.MethodPut, "/partners/"+created.Data.ID.String()+"/status", gin.H{
		"status":           model.PartnerSuspended,
		"expected_version": created.Data.Version,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var updated struct {
		Data model.Partner `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.Equal(t, model.PartnerSuspended, updated.Data.Status)

	w = send(r, http.MethodPut, "/partners/"+created.Data.ID.String()+"/status", gin.H{
		"status":           model.PartnerActive,
		"expected_version": created.Data.Version,
	})
	assert.Equal(t, http.StatusConflict, w.Code, "stale version")
}

func TestPartnerRoutesNeedAdmin(t *testing.T) {
	r := newRouter(model.Actor{Role: model.RoleDoctor, ID: uuid.New()})

	assert.Equal(t, http.StatusForbidden, send(r, http.MethodPost, "/partners", lab).Code)
	assert.Equal(t, http.StatusForbidden, send(r, http.MethodGet, "/partners/expiring-credentials", nil).Code)
}

func TestSetStatusRejectsUnknownStatus(t *testing.T) {
	r := newRouter(model.Actor{Role: model.RoleAdmin, ID: uuid.New()})

	w := send(r, http.MethodPut, "/partners/"+uuid.NewString()+"/status", gin.H{"status": "PAUSED"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
