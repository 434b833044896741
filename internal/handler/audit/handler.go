package audit

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/vaccination-api/internal/handler"
	"github.com/jwalitptl/vaccination-api/internal/model"
	apperrors "github.com/jwalitptl/vaccination-api/pkg/errors"
)

// Lister reads the audit trail.
type Lister interface {
	List(ctx context.Context, filters model.AuditFilters) ([]*model.AuditEvent, int64, error)
}

type Handler struct {
	service Lister
}

func NewHandler(service Lister) *Handler {
	return &Handler{
		service: service,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/audit", h.ListLogs)
}

type listResponse struct {
	Events []*model.AuditEvent `json:"events"`
	Total  int64               `json:"total"`
}

func (h *Handler) ListLogs(c *gin.Context) {
	var filters model.AuditFilters
	if err := handler.BindQuery(c, &filters); err != nil {
		handler.RespondError(c, err)
		return
	}
	if !filters.StartDate.IsZero() && !filters.EndDate.IsZero() && filters.EndDate.Before(filters.StartDate) {
		handler.RespondError(c, apperrors.BadRequest("end_date must not precede start_date", nil))
		return
	}

	events, total, err := h.service.List(c.Request.Context(), filters)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	if events == nil {
		events = []*model.AuditEvent{}
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(listResponse{Events: events, Total: total}))
}
