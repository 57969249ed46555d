package services

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
)

func TestValidationHelper_ValidateStruct(t *testing.T) {
	vh := NewValidationHelper()

	t.Run("valid request", func(t *testing.T) {
		valid := RegisterRequest{Name: "John Doe", Email: "john@example.com", PIN: "123456"}
		assert.NoError(t, vh.ValidateStruct(&valid))
	})

	t.Run("invalid request - every field", func(t *testing.T) {
		invalid := RegisterRequest{Name: "J", Email: "", PIN: "12"}

		err := vh.ValidateStruct(&invalid)
		assert.Error(t, err)

		validationErrors, ok := err.(validator.ValidationErrors)
		assert.True(t, ok)
		assert.Len(t, validationErrors, 3)
	})

	t.Run("alphaspace rejects punctuation", func(t *testing.T) {
		invalid := RegisterRequest{Name: "O'Brien", Email: "ob@example.com", PIN: "1234"}

		err := vh.ValidateStruct(&invalid)
		validationErrors, ok := err.(validator.ValidationErrors)
		assert.True(t, ok)
		assert.Len(t, validationErrors, 1)
		assert.Equal(t, "Name", validationErrors[0].Field())
		assert.Equal(t, "alphaspace", validationErrors[0].Tag())
	})
}

func TestValidPIN(t *testing.T) {
	for pin, want := range map[string]bool{
		"1234": true, "123456": true, "123": false, "1234567": false, "12 4": false, "１２３４": false,
	} {
		assert.Equal(t, want, ValidPIN(pin), pin)
	}
}

func TestSendErrorResponse(t *testing.T) {
	t.Run("error response without validation errors", func(t *testing.T) {
		w := httptest.NewRecorder()

		SendErrorResponse(w, "Something went wrong", http.StatusInternalServerError, nil)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var response ErrorResponse
		err := json.Unmarshal(w.Body.Bytes(), &response)
		assert.NoError(t, err)
		assert.Equal(t, "Something went wrong", response.Error)
		assert.Nil(t, response.Details)
	})

	t.Run("wrapped validation errors", func(t *testing.T) {
		vh := NewValidationHelper()
		validationErr := vh.ValidateStruct(&RegisterRequest{Name: "J", Email: "bad", PIN: "1"})
		assert.Error(t, validationErr)

		w := httptest.NewRecorder()
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, fmt.Errorf("%w: %w", ErrValidation, validationErr))

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var response ErrorResponse
		err := json.Unmarshal(w.Body.Bytes(), &response)
		assert.NoError(t, err)
		assert.Equal(t, "Validation failed", response.Error)
		assert.Contains(t, response.Details, "Name")
		assert.Contains(t, response.Details, "Email")
		assert.Contains(t, response.Details, "PIN")
	})

	t.Run("non-validation error carries no details", func(t *testing.T) {
		w := httptest.NewRecorder()

		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, ErrInvalidAmount)

		var response ErrorResponse
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Nil(t, response.Details)
	})
}
