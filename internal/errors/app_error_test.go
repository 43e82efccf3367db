package errors_test

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	appErrors "github.com/aaravmahajanofficial/agri-marketplace/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		err    *appErrors.AppError
		code   string
		status int
	}{
		{"Validation", appErrors.ValidationError("bad"), appErrors.ErrCodeValidation, http.StatusBadRequest},
		{"NotFound", appErrors.NotFoundError("missing"), appErrors.ErrCodeNotFound, http.StatusNotFound},
		{"StateConflict", appErrors.StateConflictError("closed"), appErrors.ErrCodeStateConflict, http.StatusConflict},
		{"Transport", appErrors.TransportError("down"), appErrors.ErrCodeTransportError, http.StatusBadGateway},
		{"Unauthorized", appErrors.UnauthorizedError("who"), appErrors.ErrCodeUnauthorized, http.StatusUnauthorized},
		{"RateLimited", appErrors.RateLimitedError("slow down"), appErrors.ErrCodeRateLimited, http.StatusTooManyRequests},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.code, tc.err.Code)
			assert.Equal(t, tc.status, tc.err.StatusCode)
		})
	}
}

func TestWithErrorUnwraps(t *testing.T) {
	sentinel := stdErrors.New("quantity must be at least 1")

	err := appErrors.ValidationError("Invalid quantity").WithError(sentinel).WithDetail("got 0")
	wrapped := fmt.Errorf("cart: %w", err)

	assert.ErrorIs(t, wrapped, sentinel)
	assert.Equal(t, "Invalid quantity", err.Error())
	assert.Equal(t, "got 0", err.Detail)

	appErr, ok := appErrors.IsAppError(wrapped)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrCodeValidation, appErr.Code)
}

func TestIsAppError_PlainError(t *testing.T) {
	appErr, ok := appErrors.IsAppError(stdErrors.New("plain"))
	assert.False(t, ok)
	assert.Nil(t, appErr)
}

func TestAddValidationError(t *testing.T) {
	err := appErrors.AddValidationError("price", "must be positive")
	assert.Equal(t, "Invalid field 'price': must be positive", err.Message)
}
