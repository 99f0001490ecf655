package roster

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/jwalitptl/fulfillment-api/internal/middleware"
	"github.com/jwalitptl/fulfillment-api/internal/model"
	"github.com/jwalitptl/fulfillment-api/internal/repository/memory"
	"github.com/jwalitptl/fulfillment-api/internal/service/roster"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(actor model.Actor, path string) *httptest.ResponseRecorder {
	r := gin.New()
	api := r.Group("", func(c *gin.Context) {
		c.Set(middleware.ContextActor, actor)
		c.Next()
	})
	NewHandler(roster.NewService(memory.NewStore()), time.UTC).RegisterRoutes(api)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestDailyRosterVisibility(t *testing.T) {
	phleb := uuid.New()
	other := uuid.New()

	tests := []struct {
		name  string
		actor model.Actor
		path  string
		want  int
	}{
		{"own roster", model.Actor{Role: model.RolePhlebotomist, ID: uuid.New(), PartnerID: &phleb}, "/rosters/" + phleb.String() + "?date=2024-03-15", http.StatusOK},
		{"someone else's roster", model.Actor{Role: model.RolePhlebotomist, ID: uuid.New(), PartnerID: &other}, "/rosters/" + phleb.String(), http.StatusForbidden},
		{"admin", model.Actor{Role: model.RoleAdmin, ID: uuid.New()}, "/rosters/" + phleb.String(), http.StatusOK},
		{"patient", model.Actor{Role: model.RolePatient, ID: uuid.New()}, "/rosters/" + phleb.String(), http.StatusForbidden},
		{"bad date", model.Actor{Role: model.RoleAdmin, ID: uuid.New()}, "/rosters/" + phleb.String() + "?date=15-03-2024", http.StatusBadRequest},
		{"bad id", model.Actor{Role: model.RoleAdmin, ID: uuid.New()}, "/rosters/nope", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(tt.actor, tt.path)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestQueueVisibility(t *testing.T) {
	lab := uuid.New()
	pharmacy := uuid.New()

	tests := []struct {
		name  string
		actor model.Actor
		path  string
		want  int
	}{
		{"lab staff own queue", model.Actor{Role: model.RoleLabStaff, ID: uuid.New(), PartnerID: &lab}, "/queues/labs/" + lab.String(), http.StatusOK},
		{"pharmacy staff on a lab queue", model.Actor{Role: model.RolePharmacyStaff, ID: uuid.New(), PartnerID: &lab}, "/queues/labs/" + lab.String(), http.StatusForbidden},
		{"pharmacy staff own queue", model.Actor{Role: model.RolePharmacyStaff, ID: uuid.New(), PartnerID: &pharmacy}, "/queues/pharmacies/" + pharmacy.String(), http.StatusOK},
		{"unassigned queue needs admin", model.Actor{Role: model.RoleDoctor, ID: uuid.New()}, "/queues/unassigned", http.StatusForbidden},
		{"admin unassigned queue", model.Actor{Role: model.RoleAdmin, ID: uuid.New()}, "/queues/unassigned", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(tt.actor, tt.path)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}
