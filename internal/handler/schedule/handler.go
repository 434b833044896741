package schedule

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/vaccination-api/internal/handler"
	"github.com/jwalitptl/vaccination-api/internal/model"
	"github.com/jwalitptl/vaccination-api/internal/service/schedule"
)

type Handler struct {
	service schedule.ScheduleServicer
}

func NewHandler(service schedule.ScheduleServicer) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	schedules := r.Group("/schedules")
	{
		schedules.GET("", h.ListRules)
		schedules.PUT("/:id", h.UpdateRule)
	}
}

func (h *Handler) ListRules(c *gin.Context) {
	rules, err := h.service.List(c.Request.Context())
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(rules))
}

func (h *Handler) UpdateRule(c *gin.Context) {
	id, err := handler.ParseID(c, "id")
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	var req model.UpdateScheduleRuleRequest
	if err := handler.BindJSON(c, &req); err != nil {
		handler.RespondError(c, err)
		return
	}

	rule, err := h.service.Update(c.Request.Context(), id, &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(rule))
}
