package audit

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/meditrack/meditrack/pkg/pagination"
)

type Handler struct {
	repo EntryRepository
}

func NewHandler(repo EntryRepository) *Handler {
	return &Handler{repo: repo}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/audit-entries", h.Search)
}

func (h *Handler) Search(c echo.Context) error {
	pg := pagination.FromContext(c)
	action := c.QueryParam("action")
	subjectID := c.QueryParam("subject_id")

	items, total, err := h.repo.Search(c.Request().Context(), action, subjectID, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
