package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	CodeAppError   = "APP_ERROR"
	CodeValidation = "VALIDATION_ERROR"
	CodeNotFound   = "NOT_FOUND"
	CodeConflict   = "CONFLICT"
	CodeConfig     = "CONFIG_ERROR"
	CodeProvider   = "PROVIDER_ERROR"
	CodeScoring    = "SCORING_ERROR"
	CodeCache      = "CACHE_ERROR"
	CodeService    = "SERVICE_ERROR"
)

type AppError struct {
	Message    string
	Code       string
	StatusCode int
	Context    map[string]any
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func NewAppError(message, code string, statusCode int, context map[string]any) *AppError {
	return &AppError{
		Message:    message,
		Code:       code,
		StatusCode: statusCode,
		Context:    context,
	}
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

type ValidationError struct {
	*AppError
	Field string
	Value any
}

func NewValidationError(message, field string, value any) *ValidationError {
	return &ValidationError{
		AppError: &AppError{
			Message:    message,
			Code:       CodeValidation,
			StatusCode: http.StatusBadRequest,
			Context: map[string]any{
				"field": field,
				"value": value,
			},
		},
		Field: field,
		Value: value,
	}
}

type NotFoundError struct {
	*AppError
	Resource string
	ID       string
}

func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{
		AppError: &AppError{
			Message:    fmt.Sprintf("%s not found", resource),
			Code:       CodeNotFound,
			StatusCode: http.StatusNotFound,
			Context:    map[string]any{"resource": resource, "id": id},
		},
		Resource: resource,
		ID:       id,
	}
}

// ConflictError reports an operation that is not allowed in the current state.
type ConflictError struct {
	*AppError
	State string
}

func NewConflictError(message, state string) *ConflictError {
	return &ConflictError{
		AppError: &AppError{
			Message:    message,
			Code:       CodeConflict,
			StatusCode: http.StatusConflict,
			Context:    map[string]any{"state": state},
		},
		State: state,
	}
}

// ConfigError is a missing or invalid provider configuration. Fatal to a run.
type ConfigError struct {
	*AppError
	Key string
}

func NewConfigError(message, key string) *ConfigError {
	return &ConfigError{
		AppError: &AppError{
			Message:    message,
			Code:       CodeConfig,
			StatusCode: http.StatusInternalServerError,
			Context:    map[string]any{"key": key},
		},
		Key: key,
	}
}

// ProviderError is a scraping provider transport failure or a non-success
// terminal job state.
type ProviderError struct {
	*AppError
	Provider string
	JobID    string
	Status   string
}

func NewProviderError(message, provider, jobID, status string, cause error) *ProviderError {
	return &ProviderError{
		AppError: &AppError{
			Message:    message,
			Code:       CodeProvider,
			StatusCode: http.StatusBadGateway,
			Context: map[string]any{
				"provider": provider,
				"job_id":   jobID,
				"status":   status,
			},
			Cause: cause,
		},
		Provider: provider,
		JobID:    jobID,
		Status:   status,
	}
}

// ScoringError is a failed relevance scoring attempt for one influencer.
type ScoringError struct {
	*AppError
	Username string
}

func NewScoringError(message, username string, cause error) *ScoringError {
	return &ScoringError{
		AppError: &AppError{
			Message:    message,
			Code:       CodeScoring,
			StatusCode: http.StatusBadGateway,
			Context:    map[string]any{"username": username},
			Cause:      cause,
		},
		Username: username,
	}
}

type CacheError struct {
	*AppError
	Operation string
	Key       string
}

func NewCacheError(message, operation, key string, cause error) *CacheError {
	return &CacheError{
		AppError: &AppError{
			Message:    message,
			Code:       CodeCache,
			StatusCode: http.StatusInternalServerError,
			Context: map[string]any{
				"operation": operation,
				"key":       key,
			},
			Cause: cause,
		},
		Operation: operation,
		Key:       key,
	}
}

type ServiceError struct {
	*AppError
	Service   string
	Operation string
}

func NewServiceError(message, service, operation string, cause error) *ServiceError {
	return &ServiceError{
		AppError: &AppError{
			Message:    message,
			Code:       CodeService,
			StatusCode: http.StatusInternalServerError,
			Context: map[string]any{
				"service":   service,
				"operation": operation,
			},
			Cause: cause,
		},
		Service:   service,
		Operation: operation,
	}
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return stderrors.As(err, &nf)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return stderrors.As(err, &ve)
}

func IsConflict(err error) bool {
	var ce *ConflictError
	return stderrors.As(err, &ce)
}

// StatusCode maps an error to an HTTP status, defaulting to 500.
func StatusCode(err error) int {
	var (
		ve *ValidationError
		nf *NotFoundError
		ce *ConflictError
		pe *ProviderError
		se *ScoringError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case stderrors.As(err, &ve):
		return ve.StatusCode
	case stderrors.As(err, &nf):
		return nf.StatusCode
	case stderrors.As(err, &ce):
		return ce.StatusCode
	case stderrors.As(err, &pe):
		return pe.StatusCode
	case stderrors.As(err, &se):
		return se.StatusCode
	default:
		return http.StatusInternalServerError
	}
}

// Code returns the machine-readable code carried by err, if any.
func Code(err error) string {
	var (
		ve *ValidationError
		nf *NotFoundError
		ce *ConflictError
		cf *ConfigError
		pe *ProviderError
		se *ScoringError
		ae *AppError
	)
	switch {
	case stderrors.As(err, &ve):
		return ve.Code
	case stderrors.As(err, &nf):
		return nf.Code
	case stderrors.As(err, &ce):
		return ce.Code
	case stderrors.As(err, &cf):
		return cf.Code
	case stderrors.As(err, &pe):
		return pe.Code
	case stderrors.As(err, &se):
		return se.Code
	case stderrors.As(err, &ae):
		return ae.Code
	default:
		return CodeAppError
	}
}
