package command

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/fulfillment-api/internal/handler"
	"github.com/jwalitptl/fulfillment-api/internal/service/orchestrator"
	"github.com/jwalitptl/fulfillment-api/pkg/httputil"
)

const HeaderIdempotencyKey = "Idempotency-Key"

type Handler struct {
	service *orchestrator.Service
}

func NewHandler(service *orchestrator.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/commands", h.Execute)
}

// Execute fires one event. A parked allocation answers 202 with assignment_pending set.
func (h *Handler) Execute(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	var cmd orchestrator.Command
	if !handler.Bind(c, &cmd) {
		return
	}
	cmd.Actor = actor
	if key := c.GetHeader(HeaderIdempotencyKey); key != "" && cmd.IdempotencyKey == "" {
		cmd.IdempotencyKey = key
	}

	res, err := h.service.Execute(c.Request.Context(), cmd)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	status := http.StatusOK
	if res.AssignmentPending {
		status = http.StatusAccepted
	}
	httputil.RespondWithStatus(c, status, res)
}
