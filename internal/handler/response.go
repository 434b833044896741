package handler

import (
	"github.com/gin-gonic/gin"

	apperrors "github.com/jwalitptl/vaccination-api/pkg/errors"
)

type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

func NewErrorResponse(message string) *Response {
	return &Response{
		Status:  "error",
		Message: message,
	}
}

// RespondError writes the client-safe form of err and attaches err to the
// context for logging.
func RespondError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(apperrors.HTTPStatus(err), NewErrorResponse(apperrors.PublicMessage(err)))
}
