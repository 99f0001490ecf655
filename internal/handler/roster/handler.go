package roster

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/fulfillment-api/internal/handler"
	"github.com/jwalitptl/fulfillment-api/internal/middleware"
	"github.com/jwalitptl/fulfillment-api/internal/model"
	"github.com/jwalitptl/fulfillment-api/internal/service/roster"
	apperrors "github.com/jwalitptl/fulfillment-api/pkg/errors"
	"github.com/jwalitptl/fulfillment-api/pkg/httputil"
)

type Handler struct {
	service *roster.Service
	loc     *time.Location
}

// NewHandler serves rosters and work queues. loc decides which day "today" is when no date
// is given.
func NewHandler(service *roster.Service, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{service: service, loc: loc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/rosters/:phlebotomistId", h.DailyRoster)

	queues := r.Group("/queues")
	{
		queues.GET("/unassigned", middleware.RequireRole(model.RoleAdmin), h.UnassignedQueue)
		queues.GET("/pharmacies/:id", h.PharmacyQueue)
		queues.GET("/labs/:id", h.LabQueue)
	}
}

func (h *Handler) DailyRoster(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.UUIDParam(c, "phlebotomistId")
	if !ok {
		return
	}
	if actor.Role != model.RoleAdmin && !(actor.Role == model.RolePhlebotomist && actor.ActsFor(&id)) {
		httputil.RespondWithError(c, apperrors.NewForbidden("rosters are visible to their phlebotomist and admins"))
		return
	}

	date := time.Now().In(h.loc)
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	if raw := c.Query("date"); raw != "" {
		parsed, err := model.ParseDate(raw)
		if err != nil {
			httputil.RespondWithError(c, apperrors.NewBadRequest("date must be YYYY-MM-DD", err))
			return
		}
		day = parsed
	}

	out, err := h.service.DailyRoster(c.Request.Context(), id, day)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, out)
}

func (h *Handler) UnassignedQueue(c *gin.Context) {
	items, err := h.service.UnassignedQueue(c.Request.Context())
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, items)
}

func (h *Handler) PharmacyQueue(c *gin.Context) {
	h.partnerQueue(c, model.RolePharmacyStaff, h.service.PharmacyQueue)
}

func (h *Handler) LabQueue(c *gin.Context) {
	h.partnerQueue(c, model.RoleLabStaff, h.service.LabQueue)
}

func (h *Handler) partnerQueue(c *gin.Context, staff model.Role, list func(context.Context, uuid.UUID) ([]model.QueueItem, error)) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.UUIDParam(c, "id")
	if !ok {
		return
	}
	if actor.Role != model.RoleAdmin && !(actor.Role == staff && actor.ActsFor(&id)) {
		httputil.RespondWithError(c, apperrors.NewForbidden("queues are visible to the partner's staff and admins"))
		return
	}

	items, err := list(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, items)
}
