// Package validator adapts go-playground/validator to echo's Validator
// interface and reports field failures through the application error
// taxonomy, so handlers can route them with the same mapping as every
// other error.
package validator

import (
	"github.com/go-playground/validator/v10"

	"github.com/johnquangdev/meeting-recorder/errors"
)

// CustomValidator implements echo.Validator for request DTOs.
type CustomValidator struct {
	v *validator.Validate
}

// New creates a request validator.
func New() *CustomValidator {
	return &CustomValidator{v: validator.New()}
}

// Validate checks struct tags and reports failures as an invalid
// argument error carrying one detail per failing field.
func (cv *CustomValidator) Validate(i interface{}) error {
	err := cv.v.Struct(i)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return errors.ErrInvalidArgument(err.Error())
	}

	appErr := errors.ErrInvalidArgument("request validation failed")
	for _, fe := range fieldErrs {
		appErr = appErr.WithDetail(fe.Field(), fe.Tag())
	}
	return appErr
}
