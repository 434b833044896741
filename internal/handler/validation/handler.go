package validation

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/vaccination-api/internal/handler"
	"github.com/jwalitptl/vaccination-api/internal/service/validation"
)

type Handler struct {
	service validation.ValidationServicer
}

func NewHandler(service validation.ValidationServicer) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/validations/recompute", h.Recompute)
}

// Recompute runs the bulk revalidation synchronously. A run already in
// progress yields 409.
func (h *Handler) Recompute(c *gin.Context) {
	result, err := h.service.Revalidate(c.Request.Context())
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(result))
}
