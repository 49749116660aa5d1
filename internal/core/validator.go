package core

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"bloodlink/internal/types"
)

// Validator wraps go-playground/validator with the dispatcher's custom tags.
//
// Custom tags:
//   - event_kind: the value is one of types.KnownEventKinds.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a Validator. Field errors are reported under their
// JSON names.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("event_kind", func(fl validator.FieldLevel) bool {
		kind := types.EventKind(fl.Field().String())
		for _, known := range types.KnownEventKinds {
			if kind == known {
				return true
			}
		}
		return false
	})
	return &Validator{validate: v}
}

// ValidateStruct returns nil or a validation_invalid_event AppError whose
// details map each failing field to the rule it broke.
func (v *Validator) ValidateStruct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "validation could not run", err)
	}

	fields := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidEvent, "request failed validation", err,
		map[string]any{"fields": fields})
}
