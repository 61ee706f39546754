package interaction

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/meditrack/meditrack/internal/domain/medication"
	"github.com/meditrack/meditrack/internal/domain/timing"
)

type Handler struct {
	checker *Checker
	meds    medication.MedicationRepository
}

func NewHandler(checker *Checker, meds medication.MedicationRepository) *Handler {
	return &Handler{checker: checker, meds: meds}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/patients/:patientId/interactions", h.Check)
	api.GET("/patients/:patientId/safety-assessment", h.AssessSafety)
	api.GET("/patients/:patientId/timing-conflicts", h.ValidateTiming)
}

func (h *Handler) patientMeds(c echo.Context) ([]*medication.Medication, error) {
	patientID, err := uuid.Parse(c.Param("patientId"))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	meds, err := h.meds.ListByPatient(c.Request().Context(), patientID)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return meds, nil
}

func (h *Handler) Check(c echo.Context) error {
	meds, err := h.patientMeds(c)
	if err != nil {
		return err
	}
	results, err := h.checker.Check(c.Request().Context(), meds)
	if err != nil {
		if errors.Is(err, ErrLookupUnavailable) {
			// Interaction status is unknown, not "no interaction".
			return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, results)
}

func (h *Handler) AssessSafety(c echo.Context) error {
	meds, err := h.patientMeds(c)
	if err != nil {
		return err
	}
	assessment, err := h.checker.AssessSafety(c.Request().Context(), meds)
	if err != nil {
		if errors.Is(err, ErrLookupUnavailable) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, assessment)
}

func (h *Handler) ValidateTiming(c echo.Context) error {
	meds, err := h.patientMeds(c)
	if err != nil {
		return err
	}
	conflicts, err := h.checker.ValidateTiming(c.Request().Context(), meds)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	if conflicts == nil {
		conflicts = []timing.Conflict{}
	}
	return c.JSON(http.StatusOK, conflicts)
}
