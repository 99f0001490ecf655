package middleware

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/fulfillment-api/internal/model"
	apperrors "github.com/jwalitptl/fulfillment-api/pkg/errors"
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

var pincodePattern = regexp.MustCompile(`^[1-9][0-9]{5}$`)

var messages = map[string]string{
	"required": "Field is required",
	"email":    "Invalid email format",
	"min":      "Value is too short",
	"max":      "Value is too long",
	"oneof":    "Value is not allowed",
	"pincode":  "Must be a 6 digit pincode",
	"timeslot": "Must be a slot like 16:00-17:00 or 4:00 PM - 5:00 PM",
	"isodate":  "Must be a date like 2024-03-15",
}

// RegisterValidators installs the custom binding tags on gin's validator and reports
// fields by their json names.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("unexpected validator engine")
	}
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	for tag, fn := range map[string]validator.Func{
		"pincode":  validatePincode,
		"timeslot": validateTimeSlot,
		"isodate":  validateISODate,
	} {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return err
		}
	}
	return nil
}

func validatePincode(fl validator.FieldLevel) bool {
	return pincodePattern.MatchString(fl.Field().String())
}

func validateTimeSlot(fl validator.FieldLevel) bool {
	_, _, err := model.ParseSlotStart(fl.Field().String())
	return err == nil
}

func validateISODate(fl validator.FieldLevel) bool {
	_, err := model.ParseDate(fl.Field().String())
	return err == nil
}

// BindingError turns a binding failure into a BadRequest listing the offending fields.
func BindingError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperrors.NewBadRequest("invalid request body", err)
	}
	fields := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msg := messages[e.Tag()]
		if msg == "" {
			msg = e.Error()
		}
		fields = append(fields, e.Field()+": "+msg)
	}
	return apperrors.NewBadRequest(strings.Join(fields, "; "), err)
}
