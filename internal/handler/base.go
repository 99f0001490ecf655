// Package handler holds helpers shared by the HTTP handlers in its subpackages.
package handler

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/fulfillment-api/internal/middleware"
	"github.com/jwalitptl/fulfillment-api/internal/model"
	apperrors "github.com/jwalitptl/fulfillment-api/pkg/errors"
	"github.com/jwalitptl/fulfillment-api/pkg/httputil"
)

// Actor returns the authenticated caller, or responds 401 and reports false.
func Actor(c *gin.Context) (model.Actor, bool) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized(nil))
		return model.Actor{}, false
	}
	return actor, true
}

// UUIDParam parses a path parameter, responding 400 when it is not a uuid.
func UUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		httputil.RespondWithError(c, apperrors.NewBadRequest(fmt.Sprintf("invalid %s", name), err))
		return uuid.Nil, false
	}
	return id, true
}

// Bind decodes and validates the JSON body into req, responding 400 on failure.
func Bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		httputil.RespondWithError(c, middleware.BindingError(err))
		return false
	}
	return true
}

// EntityFromPath maps the collection names used in URLs to entity types.
func EntityFromPath(segment string) (model.EntityType, bool) {
	switch segment {
	case "consultations":
		return model.EntityConsultation, true
	case "lab-orders":
		return model.EntityLabOrder, true
	case "pharmacy-orders":
		return model.EntityPharmacyOrder, true
	case "refills":
		return model.EntityRefillConfig, true
	case "partners":
		return model.EntityPartner, true
	}
	return "", false
}
