package refill

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/fulfillment-api/internal/handler"
	"github.com/jwalitptl/fulfillment-api/internal/model"
	"github.com/jwalitptl/fulfillment-api/internal/service/orchestrator"
	"github.com/jwalitptl/fulfillment-api/internal/service/refill"
	apperrors "github.com/jwalitptl/fulfillment-api/pkg/errors"
	"github.com/jwalitptl/fulfillment-api/pkg/httputil"
)

type CreateRequest struct {
	PrescriptionID  uuid.UUID         `json:"prescription_id" binding:"required"`
	PatientID       uuid.UUID         `json:"patient_id"`
	IntervalDays    int               `json:"interval_days" binding:"required,min=1"`
	FirstRefillDate string            `json:"first_refill_date" binding:"omitempty,isodate"`
	DeliveryAddress string            `json:"delivery_address" binding:"required"`
	Pincode         string            `json:"pincode" binding:"required,pincode"`
	City            string            `json:"city" binding:"required"`
	Medications     model.Medications `json:"medications" binding:"required,min=1"`
}

type Handler struct {
	orders  *orchestrator.Service
	refills *refill.Service
}

func NewHandler(orders *orchestrator.Service, refills *refill.Service) *Handler {
	return &Handler{orders: orders, refills: refills}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	refills := r.Group("/refills")
	{
		refills.POST("", h.Create)
		refills.DELETE("/:id", h.Cancel)
		refills.GET("", h.Status)
	}
}

func (h *Handler) Create(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	var req CreateRequest
	if !handler.Bind(c, &req) {
		return
	}

	in := refill.CreateInput{
		PrescriptionID:  req.PrescriptionID,
		PatientID:       req.PatientID,
		IntervalDays:    req.IntervalDays,
		DeliveryAddress: req.DeliveryAddress,
		Pincode:         req.Pincode,
		City:            req.City,
		Medications:     req.Medications,
	}
	if req.FirstRefillDate != "" {
		first, err := model.ParseDate(req.FirstRefillDate)
		if err != nil {
			httputil.RespondWithError(c, apperrors.NewBadRequest("invalid first_refill_date", err))
			return
		}
		in.FirstRefillDate = &first
	}

	cfg, err := h.orders.CreateRefillConfig(c.Request.Context(), actor, in)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithStatus(c, http.StatusCreated, cfg)
}

func (h *Handler) Cancel(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.UUIDParam(c, "id")
	if !ok {
		return
	}
	cfg, err := h.orders.CancelRefillConfig(c.Request.Context(), actor, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, cfg)
}

// Status lists the refill schedules of one prescription. Patients only see their own.
func (h *Handler) Status(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	switch actor.Role {
	case model.RolePatient, model.RoleDoctor, model.RoleAdmin:
	default:
		httputil.RespondWithError(c, apperrors.NewForbidden(string(actor.Role)+" cannot read refill schedules"))
		return
	}
	prescriptionID, err := uuid.Parse(c.Query("prescription_id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.NewBadRequest("prescription_id query parameter is required", err))
		return
	}

	statuses, err := h.refills.Status(c.Request.Context(), prescriptionID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	if actor.Role == model.RolePatient {
		own := statuses[:0]
		for _, st := range statuses {
			if st.PatientID == actor.ID {
				own = append(own, st)
			}
		}
		statuses = own
	}
	httputil.RespondWithSuccess(c, gin.H{
		"prescription_id": prescriptionID,
		"as_of":           time.Now().UTC(),
		"refills":         statuses,
	})
}
