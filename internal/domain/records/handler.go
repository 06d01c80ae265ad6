package records

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/ehrai/internal/domain/identity"
	"github.com/ehr/ehrai/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RolePatient))
	g.GET("/patients/:id/record", h.Record)
	g.GET("/patients/:id/export.csv", h.ExportCSV)
	g.GET("/me/record", h.Record)
	g.GET("/me/export.csv", h.ExportCSV)
}

// patientID reads :id, or the caller's own id on the /me routes.
func patientID(c echo.Context) (uuid.UUID, error) {
	raw := c.Param("id")
	if raw == "" {
		id, ok := auth.UserUUIDFromContext(c.Request().Context())
		if !ok {
			return uuid.Nil, echo.NewHTTPError(http.StatusForbidden, "caller is not a patient record")
		}
		return id, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) Record(c echo.Context) error {
	id, err := patientID(c)
	if err != nil {
		return err
	}
	rec, err := h.svc.PatientRecord(c.Request().Context(), id)
	if err != nil {
		return identity.HTTPError(err, "patient not found")
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) ExportCSV(c echo.Context) error {
	id, err := patientID(c)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	name, err := h.svc.ExportCSV(c.Request().Context(), id, &buf)
	if err != nil {
		return identity.HTTPError(err, "patient not found")
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
	return c.Blob(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}
