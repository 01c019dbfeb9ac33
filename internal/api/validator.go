package api

import (
	"github.com/go-playground/validator/v10"
)

// CustomValidator wraps the validator instance
type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator creates a new custom validator
func NewValidator() *CustomValidator {
	return &CustomValidator{
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Validate validates a struct. Errors are validator.ValidationErrors, which
// ErrorValidation turns into per-field details.
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}
