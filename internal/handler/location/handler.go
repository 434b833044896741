package location

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/vaccination-api/internal/handler"
	"github.com/jwalitptl/vaccination-api/internal/service/location"
)

type Handler struct {
	service location.LocationServicer
}

func NewHandler(service location.LocationServicer) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	locations := r.Group("/locations")
	{
		locations.GET("", h.GetLocations)
		locations.POST("/reload", h.ReloadLocations)
	}
}

func (h *Handler) GetLocations(c *gin.Context) {
	locs, err := h.service.Get(c.Request.Context())
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(locs))
}

func (h *Handler) ReloadLocations(c *gin.Context) {
	locs, err := h.service.Reload(c.Request.Context())
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(locs))
}
