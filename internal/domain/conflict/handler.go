package conflict

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/meditrack/meditrack/internal/domain/interaction"
	"github.com/meditrack/meditrack/internal/domain/medication"
)

type Handler struct {
	resolver *Resolver
}

func NewHandler(resolver *Resolver) *Handler {
	return &Handler{resolver: resolver}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/medications/:id/schedule-edits", h.OpenEdit)
	api.GET("/schedule-edits/:id", h.GetEdit)
	api.POST("/schedule-edits/:id/finalize", h.Finalize)
	api.POST("/conflicts/:id/resolution", h.Resolve)
}

func (h *Handler) OpenEdit(c echo.Context) error {
	medicationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid medication id")
	}
	var proposed medication.DoseSchedule
	if err := c.Bind(&proposed); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	edit, err := h.resolver.OpenEdit(c.Request().Context(), medicationID, proposed)
	if err != nil {
		switch {
		case errors.Is(err, medication.ErrInvalidSchedule):
			return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, medication.ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "medication not found")
		case errors.Is(err, interaction.ErrLookupUnavailable):
			return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(http.StatusCreated, edit)
}

func (h *Handler) GetEdit(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	edit, err := h.resolver.GetEdit(c.Request().Context(), id, c.QueryParam("tz"))
	if err != nil {
		if errors.Is(err, ErrEditNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "schedule edit not found")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, edit)
}

type resolveRequest struct {
	Resolution      Resolution `json:"resolution"`
	SuggestionID    uuid.UUID  `json:"suggestion_id,omitempty"`
	Acknowledgement string     `json:"acknowledgement,omitempty"`
}

func (h *Handler) Resolve(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req resolveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actor := actorFrom(c)
	outcome, err := h.resolver.Resolve(c.Request().Context(), id, actor, req.Resolution, req.SuggestionID, req.Acknowledgement)
	if err != nil {
		switch {
		case errors.Is(err, ErrConflictNotFound), errors.Is(err, ErrEditNotFound):
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		case errors.Is(err, ErrInvalidResolution):
			return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, ErrAlreadyResolved), errors.Is(err, ErrEditClosed):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(http.StatusOK, outcome)
}

func (h *Handler) Finalize(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	edit, err := h.resolver.Finalize(c.Request().Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, ErrEditNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "schedule edit not found")
		case errors.Is(err, ErrUnresolved):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(http.StatusOK, edit)
}

// actorFrom reads the authenticated actor set by the auth middleware,
// falling back to "caregiver" for unauthenticated deployments.
func actorFrom(c echo.Context) string {
	if v, ok := c.Get("actor").(string); ok && v != "" {
		return v
	}
	return "caregiver"
}
