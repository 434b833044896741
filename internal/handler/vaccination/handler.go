package vaccination

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/vaccination-api/internal/handler"
	"github.com/jwalitptl/vaccination-api/internal/model"
	"github.com/jwalitptl/vaccination-api/internal/service/vaccination"
	apperrors "github.com/jwalitptl/vaccination-api/pkg/errors"
)

type Handler struct {
	service vaccination.VaccinationServicer
}

func NewHandler(service vaccination.VaccinationServicer) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	workers := r.Group("/workers")
	{
		workers.GET("", h.SearchWorkers)
		workers.PUT("/:document", h.UpdateWorker)
	}

	records := r.Group("/records")
	{
		records.POST("", h.CreateRecord)
		records.POST("/:id/doses", h.RegisterDose)
	}
}

// SearchWorkers returns the consolidated timelines of each matching person.
func (h *Handler) SearchWorkers(c *gin.Context) {
	var filters model.RecordFilters
	if err := handler.BindQuery(c, &filters); err != nil {
		handler.RespondError(c, err)
		return
	}
	if filters.From != nil && filters.To != nil && *filters.To < *filters.From {
		handler.RespondError(c, apperrors.BadRequest("to must not precede from", nil))
		return
	}

	result, err := h.service.Search(c.Request.Context(), filters)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(result))
}

func (h *Handler) CreateRecord(c *gin.Context) {
	var req model.CreateRecordRequest
	if err := handler.BindJSON(c, &req); err != nil {
		handler.RespondError(c, err)
		return
	}

	view, err := h.service.Create(c.Request.Context(), &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(view))
}

func (h *Handler) RegisterDose(c *gin.Context) {
	id, err := handler.ParseID(c, "id")
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	var req model.RegisterDoseRequest
	if err := handler.BindJSON(c, &req); err != nil {
		handler.RespondError(c, err)
		return
	}

	result, err := h.service.RegisterDose(c.Request.Context(), id, &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(result))
}

func (h *Handler) UpdateWorker(c *gin.Context) {
	document := strings.TrimSpace(c.Param("document"))
	if document == "" {
		handler.RespondError(c, apperrors.BadRequest("document is required", nil))
		return
	}

	var req model.UpdateWorkerRequest
	if err := handler.BindJSON(c, &req); err != nil {
		handler.RespondError(c, err)
		return
	}

	n, err := h.service.UpdateWorker(c.Request.Context(), document, &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"updated": n}))
}
