package record

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinicdesk/clinicdesk/internal/platform/apierr"
	"github.com/clinicdesk/clinicdesk/internal/platform/auth"
	"github.com/clinicdesk/clinicdesk/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Public booking page
	api.POST("/appointments", h.BookAppointment)
	api.GET("/appointments/slots", h.AvailableSlots)

	staff := api.Group("", auth.RequireRole(auth.RoleOperator))
	staff.GET("/appointments", h.ListAppointments)
	staff.PUT("/appointments", h.UpdateAppointmentStatus)
	staff.POST("/patients", h.CreateOrder)
	staff.GET("/patients", h.ListRecords)
	staff.GET("/patients/export", h.ExportRecords)
	staff.GET("/patients/:id", h.GetRecord)
	staff.PUT("/patients/:id", h.UpdateRecord)
	staff.PATCH("/patients/:id/delivery", h.UpdateDeliveryStatus)
}

func queryFrom(c echo.Context) Query {
	return Query{
		Search:         c.QueryParam("search"),
		Status:         c.QueryParam("status"),
		DeliveryStatus: c.QueryParam("deliveryStatus"),
		Date:           c.QueryParam("date"),
		Kind:           Kind(c.QueryParam("kind")),
	}
}

func (h *Handler) BookAppointment(c echo.Context) error {
	var in Record
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	rec, err := h.svc.BookAppointment(c.Request().Context(), &in)
	if err != nil {
		return apierr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, rec)
}

func (h *Handler) AvailableSlots(c echo.Context) error {
	date := c.QueryParam("date")
	slots, err := h.svc.AvailableSlots(c.Request().Context(), date)
	if err != nil {
		return apierr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"date": date, "slots": slots})
}

type statusUpdate struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (h *Handler) UpdateAppointmentStatus(c echo.Context) error {
	var body statusUpdate
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	rec, err := h.svc.UpdateAppointmentStatus(c.Request().Context(), body.ID, body.Status)
	if err != nil {
		return apierr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) ListAppointments(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, err := h.svc.ListAppointments(c.Request().Context(), queryFrom(c))
	if err != nil {
		return apierr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(pagination.Page(items, pg), len(items), pg))
}

func (h *Handler) CreateOrder(c echo.Context) error {
	var in Record
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	rec, err := h.svc.CreateOrder(c.Request().Context(), &in)
	if err != nil {
		return apierr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, rec)
}

func (h *Handler) ListRecords(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, err := h.svc.ListRecords(c.Request().Context(), queryFrom(c))
	if err != nil {
		return apierr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(pagination.Page(items, pg), len(items), pg))
}

func (h *Handler) ExportRecords(c echo.Context) error {
	var buf bytes.Buffer
	if _, err := h.svc.ExportRecords(c.Request().Context(), queryFrom(c), &buf); err != nil {
		return apierr.ToHTTP(err)
	}
	name := fmt.Sprintf("patients-%s.csv", h.svc.now().UTC().Format("20060102"))
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
	return c.Blob(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func (h *Handler) GetRecord(c echo.Context) error {
	rec, err := h.svc.GetRecord(c.Request().Context(), c.Param("id"))
	if err != nil {
		return apierr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) UpdateRecord(c echo.Context) error {
	var patch Record
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	rec, err := h.svc.UpdateRecord(c.Request().Context(), c.Param("id"), &patch)
	if err != nil {
		return apierr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, rec)
}

type deliveryUpdate struct {
	DeliveryStatus string `json:"deliveryStatus"`
}

func (h *Handler) UpdateDeliveryStatus(c echo.Context) error {
	var body deliveryUpdate
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	rec, err := h.svc.UpdateDeliveryStatus(c.Request().Context(), c.Param("id"), body.DeliveryStatus)
	if err != nil {
		return apierr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, rec)
}
