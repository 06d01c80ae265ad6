package prescription

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/ehrai/internal/domain/identity"
	"github.com/ehr/ehrai/internal/domain/structuring"
	"github.com/ehr/ehrai/internal/platform/auth"
	"github.com/ehr/ehrai/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	writeGroup := api.Group("", auth.RequireRole(auth.RoleDoctor))
	writeGroup.POST("/prescriptions", h.Add)

	readGroup := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RolePatient))
	readGroup.GET("/prescriptions/:id", h.Get)
	readGroup.GET("/prescriptions/:id/summary", h.Summary)
	readGroup.GET("/patients/:id/prescriptions", h.ListByPatient)
	readGroup.GET("/me/prescriptions", h.ListMine)
}

type addRequest struct {
	PatientID         string                 `json:"patient_id"`
	VisitReason       *string                `json:"visit_reason"`
	Diagnosis         string                 `json:"diagnosis"`
	PrescriptionText  string                 `json:"prescription_text"`
	Medicines         []structuring.Medicine `json:"medicines"`
	TestsRecommended  *string                `json:"tests_recommended"`
	NextVisitDate     string                 `json:"next_visit_date"`
	DoctorNotes       *string                `json:"doctor_notes"`
	VoiceToTextSource *string                `json:"voice_to_text_source"`
}

func (h *Handler) Add(c echo.Context) error {
	var req addRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p := &Prescription{
		VisitReason:       req.VisitReason,
		Diagnosis:         req.Diagnosis,
		PrescriptionText:  req.PrescriptionText,
		Medicines:         req.Medicines,
		TestsRecommended:  req.TestsRecommended,
		DoctorNotes:       req.DoctorNotes,
		VoiceToTextSource: req.VoiceToTextSource,
	}
	// A missing or malformed patient_id is reported by the service as missing.
	if id, err := uuid.Parse(req.PatientID); err == nil {
		p.PatientID = id
	}
	if req.NextVisitDate != "" {
		d, err := time.Parse("2006-01-02", req.NextVisitDate)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "next_visit_date must be YYYY-MM-DD")
		}
		p.NextVisitDate = &d
	}

	if err := h.svc.Add(c.Request().Context(), p); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, _, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Summary(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	text, err := h.svc.Summary(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.String(http.StatusOK, text)
}

func (h *Handler) ListByPatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	return h.list(c, id)
}

func (h *Handler) ListMine(c echo.Context) error {
	id, ok := auth.UserUUIDFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusForbidden, "caller is not a patient record")
	}
	return h.list(c, id)
}

func (h *Handler) list(c echo.Context, patientID uuid.UUID) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByPatient(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*Prescription{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, ErrNotFound.Error())
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, ErrForbidden.Error())
	default:
		return identity.HTTPError(err, "patient not found")
	}
}
