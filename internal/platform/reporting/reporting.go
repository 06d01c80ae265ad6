// Package reporting computes the per-role dashboard figures.
package reporting

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/ehrai/internal/platform/auth"
)

var ErrNoRecord = errors.New("caller has no dashboard")

// Counter is one dashboard figure backed by a single-row COUNT query. Scoped
// counters take the caller's record id as $1.
type Counter struct {
	ID  string `json:"id"`
	SQL string `json:"-"`
}

var AdminCounters = []Counter{
	{ID: "doctors", SQL: `SELECT COUNT(*) FROM doctors`},
	{ID: "patients", SQL: `SELECT COUNT(*) FROM patients`},
	{ID: "prescriptions", SQL: `SELECT COUNT(*) FROM prescriptions`},
	{ID: "lab_reports", SQL: `SELECT COUNT(*) FROM lab_reports`},
}

var DoctorCounters = []Counter{
	{ID: "patients", SQL: `SELECT COUNT(*) FROM patients WHERE doctor_id = $1`},
	{ID: "prescriptions", SQL: `SELECT COUNT(*) FROM prescriptions WHERE doctor_id = $1`},
	{ID: "lab_reports", SQL: `SELECT COUNT(*) FROM lab_reports WHERE doctor_id = $1`},
	{ID: "ai_runs", SQL: `SELECT COUNT(*) FROM ai_logs WHERE doctor_id = $1`},
}

var PatientCounters = []Counter{
	{ID: "prescriptions", SQL: `SELECT COUNT(*) FROM prescriptions WHERE patient_id = $1`},
	{ID: "lab_reports", SQL: `SELECT COUNT(*) FROM lab_reports WHERE patient_id = $1`},
}

// RecentPatientsLimit caps the doctor dashboard's patient list.
const RecentPatientsLimit = 8

type RecentPatient struct {
	ID                uuid.UUID  `json:"id"`
	Name              string     `json:"name"`
	LastVisit         *time.Time `json:"last_visit,omitempty"`
	PrescriptionCount int        `json:"prescription_count"`
	ReportCount       int        `json:"report_count"`
}

type Dashboard struct {
	Role           string          `json:"role"`
	GeneratedAt    time.Time       `json:"generated_at"`
	Counts         map[string]int  `json:"counts"`
	RecentPatients []RecentPatient `json:"recent_patients,omitempty"`
}

type Store interface {
	Count(ctx context.Context, sql string, args ...any) (int, error)
	RecentPatients(ctx context.Context, doctorID uuid.UUID, limit int) ([]RecentPatient, error)
}

type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// ForCaller builds the dashboard of the caller's primary role.
func (s *Service) ForCaller(ctx context.Context) (*Dashboard, error) {
	role := auth.PrimaryRole(ctx)
	d := &Dashboard{Role: role, GeneratedAt: s.now().UTC()}

	if role == auth.RoleAdmin {
		counts, err := s.count(ctx, AdminCounters)
		if err != nil {
			return nil, err
		}
		d.Counts = counts
		return d, nil
	}

	id, ok := auth.UserUUIDFromContext(ctx)
	if !ok {
		return nil, ErrNoRecord
	}
	var err error
	switch role {
	case auth.RoleDoctor:
		if d.Counts, err = s.count(ctx, DoctorCounters, id); err != nil {
			return nil, err
		}
		if d.RecentPatients, err = s.store.RecentPatients(ctx, id, RecentPatientsLimit); err != nil {
			return nil, fmt.Errorf("recent patients: %w", err)
		}
	case auth.RolePatient:
		if d.Counts, err = s.count(ctx, PatientCounters, id); err != nil {
			return nil, err
		}
	default:
		return nil, ErrNoRecord
	}
	return d, nil
}

func (s *Service) count(ctx context.Context, counters []Counter, args ...any) (map[string]int, error) {
	out := make(map[string]int, len(counters))
	for _, c := range counters {
		n, err := s.store.Count(ctx, c.SQL, args...)
		if err != nil {
			return nil, fmt.Errorf("counter %s: %w", c.ID, err)
		}
		out[c.ID] = n
	}
	return out, nil
}

// FindCounter looks up a counter by ID within a set.
func FindCounter(counters []Counter, id string) *Counter {
	for i := range counters {
		if counters[i].ID == id {
			return &counters[i]
		}
	}
	return nil
}

// Handler provides HTTP handlers for the dashboard API.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/dashboard", h.Dashboard)
}

func (h *Handler) Dashboard(c echo.Context) error {
	d, err := h.svc.ForCaller(c.Request().Context())
	if err != nil {
		if errors.Is(err, ErrNoRecord) {
			return echo.NewHTTPError(http.StatusForbidden, ErrNoRecord.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("query failed: %v", err))
	}
	return c.JSON(http.StatusOK, d)
}
