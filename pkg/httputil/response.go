package httputil

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ankit50/mediMeet/pkg/errors"
)

// Response wraps all API responses
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error represents an API error
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	// Retryable tells clients whether the same request may succeed later.
	// True only for transient infrastructure failures, never for
	// precondition failures like insufficient credits or a taken slot.
	Retryable bool `json:"retryable"`
}

// RespondWithSuccess sends a success response
func RespondWithSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    data,
	})
}

// RespondWithCreated sends a 201 response
func RespondWithCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Success: true,
		Data:    data,
	})
}

// RespondWithError maps an application error to an HTTP response
func RespondWithError(c *gin.Context, err error) {
	statusCode := http.StatusInternalServerError
	message := "internal server error"
	retryable := false

	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		statusCode = httpStatus(appErr.Code)
		message = appErr.Message
		retryable = appErr.Retryable()
	}

	c.JSON(statusCode, Response{
		Success: false,
		Error: &Error{
			Code:      int(statusCode),
			Message:   message,
			Retryable: retryable,
		},
	})
}

func httpStatus(code errors.ErrorCode) int {
	switch code {
	case errors.ErrNotFound:
		return http.StatusNotFound
	case errors.ErrBadRequest:
		return http.StatusBadRequest
	case errors.ErrUnauthorized:
		return http.StatusUnauthorized
	case errors.ErrForbidden:
		return http.StatusForbidden
	case errors.ErrInvalidState, errors.ErrSlotUnavailable:
		return http.StatusConflict
	case errors.ErrInsufficientCredits:
		return http.StatusPaymentRequired
	case errors.ErrExternalDependency:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
