package order

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/fulfillment-api/internal/handler"
	"github.com/jwalitptl/fulfillment-api/internal/service/orchestrator"
	"github.com/jwalitptl/fulfillment-api/pkg/httputil"
)

type Handler struct {
	service *orchestrator.Service
}

func NewHandler(service *orchestrator.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	consultations := r.Group("/consultations")
	{
		consultations.POST("", h.CreateConsultation)
		consultations.GET("/:id", h.GetConsultation)
	}

	labOrders := r.Group("/lab-orders")
	{
		labOrders.POST("", h.CreateLabOrder)
		labOrders.GET("/:id", h.GetLabOrder)
		labOrders.POST("/:id/result-upload-url", h.ResultUploadURL)
	}

	pharmacyOrders := r.Group("/pharmacy-orders")
	{
		pharmacyOrders.POST("", h.CreatePharmacyOrder)
		pharmacyOrders.GET("/:id", h.GetPharmacyOrder)
		pharmacyOrders.POST("/:id/issue-photo-upload-url", h.IssuePhotoUploadURL)
	}
}

func (h *Handler) CreateConsultation(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	var req orchestrator.CreateConsultationInput
	if !handler.Bind(c, &req) {
		return
	}
	out, err := h.service.CreateConsultation(c.Request.Context(), actor, req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithStatus(c, http.StatusCreated, out)
}

func (h *Handler) CreateLabOrder(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	var req orchestrator.CreateLabOrderInput
	if !handler.Bind(c, &req) {
		return
	}
	out, err := h.service.CreateLabOrder(c.Request.Context(), actor, req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithStatus(c, http.StatusCreated, out)
}

func (h *Handler) CreatePharmacyOrder(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	var req orchestrator.CreatePharmacyOrderInput
	if !handler.Bind(c, &req) {
		return
	}
	out, err := h.service.CreatePharmacyOrder(c.Request.Context(), actor, req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithStatus(c, http.StatusCreated, out)
}

func (h *Handler) GetConsultation(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.UUIDParam(c, "id")
	if !ok {
		return
	}
	out, err := h.service.GetConsultation(c.Request.Context(), actor, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, out)
}

func (h *Handler) GetLabOrder(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.UUIDParam(c, "id")
	if !ok {
		return
	}
	out, err := h.service.GetLabOrder(c.Request.Context(), actor, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, out)
}

func (h *Handler) GetPharmacyOrder(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.UUIDParam(c, "id")
	if !ok {
		return
	}
	out, err := h.service.GetPharmacyOrder(c.Request.Context(), actor, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, out)
}

func (h *Handler) ResultUploadURL(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.UUIDParam(c, "id")
	if !ok {
		return
	}
	up, err := h.service.ResultUploadURL(c.Request.Context(), actor, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithStatus(c, http.StatusCreated, up)
}

func (h *Handler) IssuePhotoUploadURL(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.UUIDParam(c, "id")
	if !ok {
		return
	}
	up, err := h.service.IssuePhotoUploadURL(c.Request.Context(), actor, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithStatus(c, http.StatusCreated, up)
}
