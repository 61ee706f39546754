package guard

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/meditrack/meditrack/internal/domain/medication"
)

type Handler struct {
	guard *Guard
}

func NewHandler(guard *Guard) *Handler {
	return &Handler{guard: guard}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/doses", h.LogDose)
}

type logDoseRequest struct {
	MedicationID uuid.UUID             `json:"medication_id"`
	Time         time.Time             `json:"time"`
	Status       medication.DoseStatus `json:"status"`
	Acknowledge  bool                  `json:"acknowledge"`
}

// LogDose records one dose event. Taken doses pass through the guard;
// a hard rejection is returned with the violated rule and the time the
// caller becomes compliant. A severe interaction warning returns 409
// until the request is repeated with acknowledge set.
func (h *Handler) LogDose(c echo.Context) error {
	var req logDoseRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.MedicationID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "medication_id is required")
	}
	if req.Time.IsZero() {
		req.Time = time.Now().UTC()
	}
	actor := actorFrom(c)
	ctx := c.Request().Context()

	var (
		result *Result
		err    error
	)
	switch req.Status {
	case medication.DoseTaken, "":
		result, err = h.guard.GuardDose(ctx, req.MedicationID, req.Time, actor, req.Acknowledge)
	case medication.DoseMissed:
		result, err = h.guard.MarkMissed(ctx, req.MedicationID, req.Time, actor)
	case medication.DoseSkipped:
		result, err = h.guard.MarkSkipped(ctx, req.MedicationID, req.Time, actor)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "status must be taken, missed, or skipped")
	}

	if err != nil {
		var rej *Rejection
		switch {
		case errors.As(err, &rej):
			return c.JSON(http.StatusUnprocessableEntity, rej)
		case errors.Is(err, medication.ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "medication not found")
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	if result.RequiresAcknowledgement {
		return c.JSON(http.StatusConflict, result)
	}
	return c.JSON(http.StatusCreated, result)
}

// actorFrom reads the authenticated actor set by the auth middleware,
// falling back to "patient" for unauthenticated deployments.
func actorFrom(c echo.Context) string {
	if v, ok := c.Get("actor").(string); ok && v != "" {
		return v
	}
	return "patient"
}
