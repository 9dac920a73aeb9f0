package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCodeMapping(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, StatusCode(NewValidationError("bad bucket", "bucket", "X")))
	assert.Equal(t, http.StatusNotFound, StatusCode(fmt.Errorf("load: %w", NewNotFoundError("run", "r1"))))
	assert.Equal(t, http.StatusConflict, StatusCode(NewConflictError("not a draft", "PENDING")))
	assert.Equal(t, http.StatusBadGateway, StatusCode(NewProviderError("run failed", "apify", "job", "FAILED", nil)))
	assert.Equal(t, http.StatusInternalServerError, StatusCode(stderrors.New("boom")))
}

func TestCauseIsUnwrapped(t *testing.T) {
	cause := stderrors.New("timeout")
	err := NewScoringError("LLM call failed", "alice", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "LLM call failed: timeout", err.Error())

	var se *ScoringError
	require.ErrorAs(t, fmt.Errorf("wrap: %w", err), &se)
	assert.Equal(t, "alice", se.Username)
}

func TestCodeAndPredicates(t *testing.T) {
	assert.Equal(t, CodeConfig, Code(NewConfigError("GEMINI_API_KEY is missing", "GEMINI_API_KEY")))
	assert.Equal(t, CodeAppError, Code(stderrors.New("plain")))
	assert.True(t, IsNotFound(NewNotFoundError("import", "i1")))
	assert.True(t, IsValidation(fmt.Errorf("x: %w", NewValidationError("m", "f", nil))))
	assert.True(t, IsConflict(fmt.Errorf("x: %w", NewConflictError("busy", "PROCESSING"))))
	assert.False(t, IsConflict(NewNotFoundError("run", "r1")))
	assert.False(t, IsNotFound(nil))
}
