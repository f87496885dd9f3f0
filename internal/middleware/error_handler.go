package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pennywise/observability/pkg/logger"
)

// Machine-readable error codes returned in ErrorResponse.Code.
const (
	CodeBadRequest       = "BAD_REQUEST"
	CodeValidation       = "VALIDATION_FAILED"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeForbidden        = "FORBIDDEN"
	CodeNotFound         = "NOT_FOUND"
	CodePayloadTooLarge  = "PAYLOAD_TOO_LARGE"
	CodeRateLimited      = "RATE_LIMIT_EXCEEDED"
	CodeInternal         = "INTERNAL_ERROR"
	CodeRetentionBusy    = "RETENTION_BUSY"
	CodeRetentionPartial = "RETENTION_PARTIAL_FAILURE"
)

// ErrorResponse is the JSON body of every non-2xx response
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Message string                 `json:"message,omitempty"`
	Code    string                 `json:"code,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ErrorHandler recovers panics and renders errors attached with c.Error.
// An *AppError keeps its status; anything else becomes a 500 whose text
// stays in the log.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				err, ok := r.(error)
				if !ok {
					err = fmt.Errorf("%v", r)
				}
				logger.Error("Panic recovered", err, map[string]interface{}{
					"path":   c.Request.URL.Path,
					"method": c.Request.Method,
				})

				c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
					Error:   "Internal server error",
					Message: "An unexpected error occurred",
					Code:    CodeInternal,
				})
			}
		}()

		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		last := c.Errors.Last().Err
		var appErr *AppError
		if errors.As(last, &appErr) {
			HandleAppError(c, appErr)
			return
		}
		HandleAppError(c, NewInternalError(last))
	}
}

// AppError carries an HTTP status and code alongside the cause.
type AppError struct {
	StatusCode int
	Code       string
	Message    string
	Err        error
	Details    map[string]interface{}
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails attaches extra response fields
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

func newAppError(status int, code, message string, err error) *AppError {
	return &AppError{StatusCode: status, Code: code, Message: message, Err: err}
}

func NewBadRequestError(message string) *AppError {
	return newAppError(http.StatusBadRequest, CodeBadRequest, message, nil)
}

// NewValidationError exposes the validation message to the client.
func NewValidationError(err error) *AppError {
	return newAppError(http.StatusBadRequest, CodeValidation, err.Error(), err)
}

func NewUnauthorizedError(message string) *AppError {
	return newAppError(http.StatusUnauthorized, CodeUnauthorized, message, nil)
}

func NewForbiddenError(message string) *AppError {
	return newAppError(http.StatusForbidden, CodeForbidden, message, nil)
}

func NewNotFoundError(resource string) *AppError {
	return newAppError(http.StatusNotFound, CodeNotFound, resource+" not found", nil)
}

func NewConflictError(code, message string) *AppError {
	return newAppError(http.StatusConflict, code, message, nil)
}

func NewPayloadTooLargeError(limit int) *AppError {
	return newAppError(http.StatusRequestEntityTooLarge, CodePayloadTooLarge,
		fmt.Sprintf("Request body exceeds %d bytes", limit), nil)
}

func NewRateLimitedError() *AppError {
	return newAppError(http.StatusTooManyRequests, CodeRateLimited, "Rate limit exceeded", nil)
}

// NewInternalError hides err from the client; it is only logged.
func NewInternalError(err error) *AppError {
	return newAppError(http.StatusInternalServerError, CodeInternal, "Internal server error", err)
}

// HandleAppError logs err (warn below 500) and writes it as the response.
func HandleAppError(c *gin.Context, err *AppError) {
	fields := map[string]interface{}{
		"code":   err.Code,
		"status": err.StatusCode,
		"path":   c.Request.URL.Path,
	}
	if err.StatusCode >= http.StatusInternalServerError {
		logger.Error(err.Message, err.Err, fields)
	} else {
		logger.Warn(err.Message, fields)
	}

	c.AbortWithStatusJSON(err.StatusCode, ErrorResponse{
		Error:   err.Message,
		Code:    err.Code,
		Details: err.Details,
	})
}
