package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "github.com/garyjia/requisition-approval/internal/pkg/errors"
)

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
}

// ErrorBody is the error half of the envelope
type ErrorBody struct {
	Code        string                 `json:"code"`
	Message     string                 `json:"message"`
	FieldErrors []apperrors.FieldError `json:"field_errors,omitempty"`
}

func ok(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{Success: true, Data: data})
}

// toErrorBody maps err onto a status and envelope. Anything that is not an
// AppError is reported as an opaque internal error.
func toErrorBody(err error) (int, *ErrorBody) {
	appErr, isApp := apperrors.IsAppError(err)
	if !isApp {
		return http.StatusInternalServerError, &ErrorBody{
			Code:    apperrors.CodeInternal,
			Message: "Internal server error.",
		}
	}
	status := appErr.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return status, &ErrorBody{
		Code:        appErr.Code,
		Message:     appErr.Message,
		FieldErrors: appErr.FieldErrors,
	}
}

func abortWithError(c *gin.Context, err error) {
	status, body := toErrorBody(err)
	c.AbortWithStatusJSON(status, Response{Success: false, Error: body})
}

// pathID parses the :id path parameter
func pathID(c *gin.Context, what string) (int64, bool) {
	raw := c.Param("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		abortWithError(c, apperrors.BadRequest(apperrors.CodeValidationFailed, "Invalid "+what+" ID."))
		return 0, false
	}
	return id, true
}
