package report

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/vaccination-api/internal/handler"
	"github.com/jwalitptl/vaccination-api/internal/model"
	"github.com/jwalitptl/vaccination-api/internal/service/report"
)

type Handler struct {
	service report.ReportServicer
}

func NewHandler(service report.ReportServicer) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/reports/compliance", h.Compliance)
}

// Compliance aggregates the compliance state of the selected cohort.
func (h *Handler) Compliance(c *gin.Context) {
	var filters model.ReportFilters
	if err := handler.BindQuery(c, &filters); err != nil {
		handler.RespondError(c, err)
		return
	}

	stats, err := h.service.Compliance(c.Request.Context(), filters)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(stats))
}
