package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_WrappingAndUnwrap(t *testing.T) {
	cause := stderrors.New("field missing")
	err := NewValidationError("INVALID_EVENT", "event failed validation").WithCause(cause)

	assert.Equal(t, "event failed validation: field missing", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsType(err, ErrorTypeValidation))
	assert.False(t, IsRetryable(err))
}

func TestNewCheckError(t *testing.T) {
	err := NewCheckError("velocity", stderrors.New("cache lock timeout"))

	assert.True(t, IsType(err, ErrorTypeCheck))
	assert.True(t, IsRetryable(err))
	assert.Equal(t, "velocity", err.Details["check"])
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, "context"))

	wrapped := Wrap(ErrInsufficientSamples, "pattern engine training failed")
	assert.ErrorIs(t, wrapped, ErrInsufficientSamples)
	assert.Contains(t, wrapped.Error(), "pattern engine training failed")
}

func TestPredefinedErrors(t *testing.T) {
	assert.True(t, IsType(ErrInvalidInput, ErrorTypeValidation))
	assert.True(t, IsType(ErrProfileNotFound, ErrorTypeNotFound))
	assert.True(t, IsType(ErrInsufficientSamples, ErrorTypeBusiness))
	assert.True(t, IsRetryable(NewInternalError("boom")))
}
