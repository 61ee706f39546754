package emergency

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/meditrack/meditrack/internal/platform/notification"
	"github.com/meditrack/meditrack/pkg/pagination"
)

type Handler struct {
	svc      *Service
	contacts ContactRepository
	events   EventRepository
}

func NewHandler(svc *Service, contacts ContactRepository, events EventRepository) *Handler {
	return &Handler{svc: svc, contacts: contacts, events: events}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/patients/:patientId/emergency-contacts", h.CreateContact)
	api.GET("/patients/:patientId/emergency-contacts", h.ListContacts)
	api.DELETE("/emergency-contacts/:id", h.DeleteContact)
	api.GET("/patients/:patientId/emergency-events", h.ListEvents)
}

type createContactRequest struct {
	Name    string               `json:"name"`
	Channel notification.Channel `json:"channel"`
	Address string               `json:"address"`
}

func (h *Handler) CreateContact(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("patientId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	var req createContactRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Name == "" || req.Address == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name and address are required")
	}
	switch req.Channel {
	case notification.ChannelEmail, notification.ChannelSMS:
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "channel must be email or sms")
	}

	contact := &Contact{
		PatientID: patientID,
		Name:      req.Name,
		Channel:   req.Channel,
		Address:   req.Address,
	}
	if err := h.contacts.Create(c.Request().Context(), contact); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, contact)
}

func (h *Handler) ListContacts(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("patientId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	contacts, err := h.contacts.ListByPatient(c.Request().Context(), patientID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if contacts == nil {
		contacts = []*Contact{}
	}
	return c.JSON(http.StatusOK, contacts)
}

func (h *Handler) DeleteContact(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.contacts.Delete(c.Request().Context(), id); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "contact not found")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListEvents(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("patientId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	pg := pagination.FromContext(c)
	events, total, err := h.events.ListByPatient(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if events == nil {
		events = []*Event{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(events, total, pg.Limit, pg.Offset))
}
