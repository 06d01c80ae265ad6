package structuring

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/ehrai/internal/platform/auth"
	"github.com/ehr/ehrai/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the structuring endpoints for doctors. mw runs after
// the role check.
func (h *Handler) RegisterRoutes(api *echo.Group, mw ...echo.MiddlewareFunc) {
	g := api.Group("/structure", append([]echo.MiddlewareFunc{auth.RequireRole(auth.RoleDoctor)}, mw...)...)
	g.POST("", h.StructureAuto)
	g.POST("/local", h.StructureLocal)
	g.POST("/remote", h.StructureRemote)
	g.GET("/logs", h.ListLogs)
}

type structureRequest struct {
	Text      string `json:"text"`
	PatientID string `json:"patient_id"`
}

// LocalResponse is the body of the local structuring endpoint. Structured is
// the plain-text preview shown next to the editable fields.
type LocalResponse struct {
	Status     string     `json:"status"`
	Structured string     `json:"structured"`
	Diagnosis  string     `json:"diagnosis"`
	Symptoms   []string   `json:"symptoms"`
	Medicines  []Medicine `json:"medicines"`
	Transcript string     `json:"transcript"`
}

type AutoResponse struct {
	*StructuredPrescription
	Strategy       Strategy `json:"strategy"`
	FallbackReason string   `json:"fallback_reason,omitempty"`
}

func (h *Handler) StructureLocal(c echo.Context) error {
	req, err := bindRequest(c)
	if err != nil {
		return err
	}
	sp, err := h.svc.StructureLocal(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, LocalResponse{
		Status:     "success",
		Structured: Summary(sp),
		Diagnosis:  sp.Diagnosis,
		Symptoms:   sp.Symptoms,
		Medicines:  sp.Medicines,
		Transcript: sp.Transcript,
	})
}

func (h *Handler) StructureRemote(c echo.Context) error {
	req, err := bindRequest(c)
	if err != nil {
		return err
	}
	sp, err := h.svc.StructureRemote(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sp)
}

func (h *Handler) StructureAuto(c echo.Context) error {
	req, err := bindRequest(c)
	if err != nil {
		return err
	}
	out, err := h.svc.StructureAuto(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, AutoResponse{
		StructuredPrescription: out.Result,
		Strategy:               out.Strategy,
		FallbackReason:         out.FallbackReason,
	})
}

// ListLogs lists the caller's structuring runs. Admins pick the doctor with
// the doctor_id query parameter.
func (h *Handler) ListLogs(c echo.Context) error {
	ctx := c.Request().Context()
	var doctorID uuid.UUID
	switch {
	case auth.HasRole(ctx, auth.RoleDoctor):
		id, ok := auth.UserUUIDFromContext(ctx)
		if !ok {
			return echo.NewHTTPError(http.StatusForbidden, "caller is not a doctor record")
		}
		doctorID = id
	case auth.HasRole(ctx, auth.RoleAdmin):
		id, err := uuid.Parse(c.QueryParam("doctor_id"))
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "doctor_id query parameter is required")
		}
		doctorID = id
	default:
		return echo.NewHTTPError(http.StatusForbidden, "caller is not a doctor record")
	}
	pg := pagination.FromContext(c)
	logs, total, err := h.svc.ListLogs(c.Request().Context(), doctorID, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(logs, total, pg.Limit, pg.Offset))
}

// bindRequest reads the body and the caller. A patient_id that is not a valid
// id is treated as absent.
func bindRequest(c echo.Context) (Request, error) {
	var body structureRequest
	if err := c.Bind(&body); err != nil {
		return Request{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req := Request{Text: body.Text}
	if id, err := uuid.Parse(body.PatientID); err == nil {
		req.PatientID = &id
	}
	if id, ok := auth.UserUUIDFromContext(c.Request().Context()); ok && auth.HasRole(c.Request().Context(), auth.RoleDoctor) {
		req.DoctorID = &id
	}
	return req, nil
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, ErrInvalidInput.Error())
	case errors.Is(err, ErrNotConfigured):
		return echo.NewHTTPError(http.StatusInternalServerError, ErrNotConfigured.Error())
	case errors.Is(err, ErrNonJSONResponse):
		return echo.NewHTTPError(http.StatusBadGateway, ErrNonJSONResponse.Error())
	case errors.Is(err, ErrProvider):
		return echo.NewHTTPError(http.StatusServiceUnavailable, ErrProvider.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, ErrInternal.Error())
	}
}
