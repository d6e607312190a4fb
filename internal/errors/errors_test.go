package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	err := New(ErrCategoryQuery, CodeUnknownField, "field not found")
	assert.Equal(t, "[QUERY:UNKNOWN_FIELD] field not found", err.Error())

	cause := stderrors.New("connection refused")
	wrapped := Wrap(ErrCategoryBackend, CodeTransientBackend, "fetch failed", cause)
	assert.Contains(t, wrapped.Error(), "fetch failed")
	assert.Contains(t, wrapped.Error(), "connection refused")
}

func TestUnwrapAndIs(t *testing.T) {
	cause := stderrors.New("boom")
	err := Wrap(ErrCategoryExecution, CodePartialData, "missing data", cause)

	assert.ErrorIs(t, err, cause)

	// Is matches on category and code, not message.
	target := New(ErrCategoryExecution, CodePartialData, "different message")
	assert.ErrorIs(t, err, target)

	other := New(ErrCategoryExecution, CodeDeadlineExceeded, "missing data")
	assert.NotErrorIs(t, err, other)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewTransientBackendError("overloaded", nil)))
	assert.False(t, IsRetryable(NewFatalBackendError("bad query", nil)))
	assert.False(t, IsRetryable(NewPartialDataError("position", nil)))
	assert.False(t, IsRetryable(stderrors.New("plain")))
	assert.False(t, IsRetryable(nil))

	// Retryability survives wrapping.
	wrapped := fmt.Errorf("fetch position: %w", NewTransientBackendError("overloaded", nil))
	assert.True(t, IsRetryable(wrapped))
}

func TestGetCategoryAndCode(t *testing.T) {
	err := NewTypeMismatchError("bad value")
	assert.Equal(t, ErrCategoryQuery, GetCategory(err))
	assert.Equal(t, CodeTypeMismatch, GetCode(err))

	wrapped := fmt.Errorf("outer: %w", err)
	assert.Equal(t, CodeTypeMismatch, GetCode(wrapped))

	assert.Equal(t, "", GetCode(stderrors.New("plain")))
	assert.Equal(t, ErrorCategory(""), GetCategory(stderrors.New("plain")))
}

func TestWithDetails(t *testing.T) {
	err := NewAmbiguousFieldError("UID", []string{"position", "positionrisk"}).
		WithDetails(map[string]interface{}{"root": "position"})

	require.NotNil(t, err.Details)
	assert.Equal(t, "position", err.Details["root"])
	assert.Equal(t, CodeAmbiguousField, err.Code)
}

func TestConstructors(t *testing.T) {
	cases := []struct {
		err      error
		category ErrorCategory
		code     string
	}{
		{NewSchemaValidationError(CodeInvalidSchema, "x"), ErrCategorySchema, CodeInvalidSchema},
		{NewReferentialIntegrityError(CodeRelationCycle, "x"), ErrCategoryRelation, CodeRelationCycle},
		{NewUnknownFieldError("f"), ErrCategoryQuery, CodeUnknownField},
		{NewAmbiguousFieldError("f", nil), ErrCategoryQuery, CodeAmbiguousField},
		{NewTypeMismatchError("x"), ErrCategoryQuery, CodeTypeMismatch},
		{NewTransientBackendError("x", nil), ErrCategoryBackend, CodeTransientBackend},
		{NewFatalBackendError("x", nil), ErrCategoryBackend, CodeFatalBackend},
		{NewPartialDataError("e", nil), ErrCategoryExecution, CodePartialData},
		{NewDeadlineExceededError(nil), ErrCategoryExecution, CodeDeadlineExceeded},
		{NewInternalError("x", nil), ErrCategoryInternal, CodeUnexpected},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.category, GetCategory(tc.err))
		assert.Equal(t, tc.code, GetCode(tc.err))
	}
}
