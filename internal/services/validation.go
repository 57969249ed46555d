package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"

	"github.com/go-playground/validator/v10"
)

var (
	alphaSpacePattern = regexp.MustCompile(`^[A-Za-z ]+$`)
	pinPattern        = regexp.MustCompile(`^[0-9]{4,6}$`)
)

// ErrorResponse represents error response structure
type ErrorResponse struct {
	Error   string            `json:"error"`             // Error message
	Details map[string]string `json:"details,omitempty"` // Validation details
}

// ValidationHelper provides shared validation functionality
type ValidationHelper struct {
	validator *validator.Validate
}

// NewValidationHelper creates a validator with the custom "alphaspace" and
// "pin" tags registered.
func NewValidationHelper() *ValidationHelper {
	v := validator.New()
	_ = v.RegisterValidation("alphaspace", func(fl validator.FieldLevel) bool {
		return alphaSpacePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("pin", func(fl validator.FieldLevel) bool {
		return pinPattern.MatchString(fl.Field().String())
	})
	return &ValidationHelper{validator: v}
}

// ValidateStruct validates a struct and returns validation errors
func (vh *ValidationHelper) ValidateStruct(s any) error {
	return vh.validator.Struct(s)
}

// ValidPIN reports whether pin is 4 to 6 ASCII digits.
func ValidPIN(pin string) bool {
	return pinPattern.MatchString(pin)
}

// SendErrorResponse sends a JSON error response
func SendErrorResponse(w http.ResponseWriter, message string, statusCode int, validationErr error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorResp := ErrorResponse{Error: message}
	var fieldErrs validator.ValidationErrors
	if errors.As(validationErr, &fieldErrs) {
		errorResp.Details = make(map[string]string)
		for _, err := range fieldErrs {
			errorResp.Details[err.Field()] = fmt.Sprintf("Field Validation Failed on '%s' tag", err.Tag())
		}
	}

	json.NewEncoder(w).Encode(errorResp)
}
