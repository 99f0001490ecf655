package partner

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/fulfillment-api/internal/handler"
	"github.com/jwalitptl/fulfillment-api/internal/middleware"
	"github.com/jwalitptl/fulfillment-api/internal/model"
	"github.com/jwalitptl/fulfillment-api/internal/service/orchestrator"
	"github.com/jwalitptl/fulfillment-api/internal/service/roster"
	"github.com/jwalitptl/fulfillment-api/pkg/httputil"
)

type Handler struct {
	orchestrator *orchestrator.Service
	roster       *roster.Service
	now          func() time.Time
}

func NewHandler(o *orchestrator.Service, r *roster.Service) *Handler {
	return &Handler{orchestrator: o, roster: r, now: time.Now}
}

type StatusRequest struct {
	Status          model.PartnerStatus `json:"status" binding:"required,oneof=PENDING_REVIEW ACTIVE SUSPENDED INACTIVE"`
	ExpectedVersion *int                `json:"expected_version"`
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	admin := middleware.RequireRole(model.RoleAdmin)

	r.POST("/partners", admin, h.Register)
	r.PUT("/partners/:id/status", admin, h.SetStatus)
	r.GET("/partners/expiring-credentials", admin, h.ExpiringCredentials)
}

func (h *Handler) Register(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	var req orchestrator.RegisterPartnerInput
	if !handler.Bind(c, &req) {
		return
	}

	p, err := h.orchestrator.RegisterPartner(c.Request.Context(), actor, req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithStatus(c, 201, p)
}

func (h *Handler) SetStatus(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.UUIDParam(c, "id")
	if !ok {
		return
	}
	var req StatusRequest
	if !handler.Bind(c, &req) {
		return
	}

	p, err := h.orchestrator.SetPartnerStatus(c.Request.Context(), actor, id, req.Status, req.ExpectedVersion)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, p)
}

// ExpiringCredentials lists partners whose credentials lapse soon or already have.
func (h *Handler) ExpiringCredentials(c *gin.Context) {
	alerts, err := h.roster.ExpiringCredentials(c.Request.Context(), h.now())
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, alerts)
}
