package transition

import (
	"fmt"

	"github.com/jwalitptl/fulfillment-api/internal/model"
	apperrors "github.com/jwalitptl/fulfillment-api/pkg/errors"
)

// Validate dispatches on entity type. ctx must be the matching context type.
func Validate(entity model.EntityType, from, event string, ctx interface{}) (string, error) {
	switch entity {
	case model.EntityLabOrder:
		c, ok := ctx.(LabContext)
		if !ok {
			return from, contextMismatch(entity, ctx)
		}
		to, err := ValidateLabOrder(model.LabOrderStatus(from), model.LabOrderEvent(event), c)
		return string(to), err
	case model.EntityPharmacyOrder:
		c, ok := ctx.(PharmacyContext)
		if !ok {
			return from, contextMismatch(entity, ctx)
		}
		to, err := ValidatePharmacyOrder(model.PharmacyOrderStatus(from), model.PharmacyOrderEvent(event), c)
		return string(to), err
	case model.EntityConsultation:
		c, ok := ctx.(ConsultationContext)
		if !ok {
			return from, contextMismatch(entity, ctx)
		}
		to, err := ValidateConsultation(model.ConsultationStatus(from), model.ConsultationEvent(event), c)
		return string(to), err
	}
	return from, apperrors.NewBadRequest(fmt.Sprintf("unknown entity type %q", entity), nil)
}

func contextMismatch(entity model.EntityType, ctx interface{}) error {
	return apperrors.NewInternal(fmt.Errorf("context %T does not match %s", ctx, entity))
}
