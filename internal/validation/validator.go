// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

// Package validation wraps go-playground/validator v10 behind a
// thread-safe singleton with the custom tags the API layer uses.
//
// Custom tags:
//   - tier: a known content tier (personal, brand, generic)
//   - direction: a known swipe direction (accept, reject)
//
// Example:
//
//	type CreateSessionRequest struct {
//	    UserID   string  `validate:"required,min=1,max=128"`
//	    Viewport float64 `validate:"omitempty,gt=0,lte=4096"`
//	}
//
//	if verr := validation.ValidateStruct(&req); verr != nil {
//	    respondError(w, http.StatusBadRequest, verr.ToAPIError())
//	    return
//	}
package validation

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/models"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// ValidationError is a single failed field.
type ValidationError struct {
	field   string
	tag     string
	param   string
	value   interface{}
	message string
}

// Field returns the struct field name that failed validation.
func (e *ValidationError) Field() string { return e.field }

// Tag returns the validation tag that failed.
func (e *ValidationError) Tag() string { return e.tag }

// Param returns the tag parameter (e.g. "128" for "max=128").
func (e *ValidationError) Param() string { return e.param }

// Value returns the value that failed.
func (e *ValidationError) Value() interface{} { return e.value }

func (e *ValidationError) Error() string { return e.message }

// RequestValidationError collects every failed field of one request.
type RequestValidationError struct {
	errors []ValidationError
}

// Errors returns the individual field errors.
func (ve *RequestValidationError) Errors() []ValidationError { return ve.errors }

func (ve *RequestValidationError) Error() string {
	if len(ve.errors) == 0 {
		return "validation failed"
	}
	messages := make([]string, len(ve.errors))
	for i, err := range ve.errors {
		messages[i] = err.Error()
	}
	return strings.Join(messages, "; ")
}

// ToAPIError converts the collection to the envelope the API layer
// responds with.
func (ve *RequestValidationError) ToAPIError() *models.APIError {
	if len(ve.errors) == 0 {
		return &models.APIError{Code: "VALIDATION_ERROR", Message: "Validation failed"}
	}

	if len(ve.errors) == 1 {
		err := ve.errors[0]
		return &models.APIError{
			Code:    "VALIDATION_ERROR",
			Message: err.message,
			Details: map[string]interface{}{
				"field": err.field,
				"tag":   err.tag,
			},
		}
	}

	fields := make([]map[string]interface{}, len(ve.errors))
	messages := make([]string, len(ve.errors))
	for i, err := range ve.errors {
		fields[i] = map[string]interface{}{
			"field":   err.field,
			"tag":     err.tag,
			"message": err.message,
		}
		messages[i] = fmt.Sprintf("%s: %s", err.field, err.message)
	}
	return &models.APIError{
		Code:    "VALIDATION_ERROR",
		Message: strings.Join(messages, "; "),
		Details: map[string]interface{}{"fields": fields},
	}
}

// GetValidator returns the singleton validator.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		// Registration only fails for empty tags or nil funcs.
		_ = validate.RegisterValidation("tier", func(fl validator.FieldLevel) bool {
			return models.Tier(fl.Field().String()).Valid()
		})
		_ = validate.RegisterValidation("direction", func(fl validator.FieldLevel) bool {
			return models.Direction(fl.Field().String()).Valid()
		})
	})
	return validate
}

// ValidateStruct validates s, returning nil on success.
func ValidateStruct(s interface{}) *RequestValidationError {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return &RequestValidationError{errors: []ValidationError{{
			field:   "unknown",
			tag:     "unknown",
			message: err.Error(),
		}}}
	}

	fieldErrors := make([]ValidationError, len(validationErrs))
	for i, fieldErr := range validationErrs {
		fieldErrors[i] = ValidationError{
			field:   fieldErr.Field(),
			tag:     fieldErr.Tag(),
			param:   fieldErr.Param(),
			value:   fieldErr.Value(),
			message: translateError(fieldErr),
		}
	}
	return &RequestValidationError{errors: fieldErrors}
}

var errorMessageTemplates = map[string]string{
	"required":  "%s is required",
	"url":       "%s must be a valid URL",
	"uuid":      "%s must be a valid UUID",
	"tier":      "%s must be a known content tier",
	"direction": "%s must be accept or reject",
}

var errorMessageWithParam = map[string]string{
	"oneof": "%s must be one of: %s",
	"gte":   "%s must be greater than or equal to %s",
	"lte":   "%s must be less than or equal to %s",
	"gt":    "%s must be greater than %s",
	"lt":    "%s must be less than %s",
}

func translateError(fe validator.FieldError) string {
	field := fe.Field()
	tag := fe.Tag()
	param := fe.Param()

	if template, ok := errorMessageTemplates[tag]; ok {
		return fmt.Sprintf(template, field)
	}
	if template, ok := errorMessageWithParam[tag]; ok {
		return fmt.Sprintf(template, field, param)
	}
	return translateMinMax(fe, field, tag, param)
}

func translateMinMax(fe validator.FieldError, field, tag, param string) string {
	isString := fe.Kind().String() == "string"
	switch tag {
	case "min":
		if isString {
			return fmt.Sprintf("%s must be at least %s characters", field, param)
		}
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max":
		if isString {
			return fmt.Sprintf("%s must be at most %s characters", field, param)
		}
		return fmt.Sprintf("%s must be at most %s", field, param)
	default:
		return fmt.Sprintf("%s failed %s validation", field, tag)
	}
}
