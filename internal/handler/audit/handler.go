package audit

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/fulfillment-api/internal/handler"
	"github.com/jwalitptl/fulfillment-api/internal/model"
	"github.com/jwalitptl/fulfillment-api/internal/service/audit"
	"github.com/jwalitptl/fulfillment-api/internal/service/orchestrator"
	apperrors "github.com/jwalitptl/fulfillment-api/pkg/errors"
	"github.com/jwalitptl/fulfillment-api/pkg/httputil"
)

type Handler struct {
	service *audit.Service
	orders  *orchestrator.Service
}

func NewHandler(service *audit.Service, orders *orchestrator.Service) *Handler {
	return &Handler{service: service, orders: orders}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	for _, collection := range []string{"consultations", "lab-orders", "pharmacy-orders", "refills", "partners"} {
		r.GET("/"+collection+"/:id/history", h.GetEntityHistory)
	}
}

// GetEntityHistory serves the transitions of one entity to callers allowed to read it.
func (h *Handler) GetEntityHistory(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.UUIDParam(c, "id")
	if !ok {
		return
	}
	entity, ok := entityOf(c.FullPath())
	if !ok {
		httputil.RespondWithError(c, apperrors.NewNotFound("history", nil))
		return
	}
	ctx := c.Request.Context()

	var err error
	switch entity {
	case model.EntityConsultation:
		_, err = h.orders.GetConsultation(ctx, actor, id)
	case model.EntityLabOrder:
		_, err = h.orders.GetLabOrder(ctx, actor, id)
	case model.EntityPharmacyOrder:
		_, err = h.orders.GetPharmacyOrder(ctx, actor, id)
	default:
		if actor.Role != model.RoleAdmin {
			err = apperrors.NewForbidden("only admins can read this history")
		}
	}
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	records, err := h.service.History(ctx, entity, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, records)
}

// entityOf reads the collection out of a route like /api/v1/lab-orders/:id/history.
func entityOf(route string) (model.EntityType, bool) {
	segments := strings.Split(strings.Trim(route, "/"), "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if segments[i] == ":id" && i > 0 {
			return handler.EntityFromPath(segments[i-1])
		}
	}
	return "", false
}

