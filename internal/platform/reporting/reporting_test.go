package reporting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/ehrai/internal/platform/auth"
)

type mockStore struct {
	counts  map[string]int
	args    map[string][]any
	recent  []RecentPatient
	limit   int
	failSQL string
}

func newMockStore() *mockStore {
	return &mockStore{counts: map[string]int{}, args: map[string][]any{}}
}

func (m *mockStore) Count(_ context.Context, sql string, args ...any) (int, error) {
	if sql == m.failSQL {
		return 0, errors.New("boom")
	}
	m.args[sql] = args
	return m.counts[sql], nil
}

func (m *mockStore) RecentPatients(_ context.Context, _ uuid.UUID, limit int) ([]RecentPatient, error) {
	m.limit = limit
	return m.recent, nil
}

func asRole(id string, role string) context.Context {
	return auth.WithIdentity(context.Background(), id, []string{role})
}

func TestCounters_HaveSQL(t *testing.T) {
	for _, set := range [][]Counter{AdminCounters, DoctorCounters, PatientCounters} {
		for _, c := range set {
			if c.ID == "" || c.SQL == "" {
				t.Errorf("incomplete counter %+v", c)
			}
		}
	}
}

func TestFindCounter(t *testing.T) {
	if c := FindCounter(DoctorCounters, "ai_runs"); c == nil {
		t.Fatal("expected to find ai_runs")
	}
	if c := FindCounter(PatientCounters, "doctors"); c != nil {
		t.Error("patients have no doctors counter")
	}
}

func TestForCaller_Admin(t *testing.T) {
	store := newMockStore()
	store.counts[FindCounter(AdminCounters, "doctors").SQL] = 3
	store.counts[FindCounter(AdminCounters, "lab_reports").SQL] = 12
	svc := NewService(store)

	d, err := svc.ForCaller(asRole(auth.DevAuthID, auth.RoleAdmin))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Role != auth.RoleAdmin || len(d.Counts) != len(AdminCounters) {
		t.Fatalf("unexpected dashboard %+v", d)
	}
	if d.Counts["doctors"] != 3 || d.Counts["lab_reports"] != 12 || d.Counts["patients"] != 0 {
		t.Errorf("unexpected counts %v", d.Counts)
	}
}

func TestForCaller_Doctor(t *testing.T) {
	store := newMockStore()
	last := time.Date(2026, 5, 30, 0, 0, 0, 0, time.UTC)
	store.recent = []RecentPatient{{ID: uuid.New(), Name: "John Doe", LastVisit: &last}, {ID: uuid.New(), Name: "New Patient"}}
	svc := NewService(store)
	id := uuid.New()

	d, err := svc.ForCaller(asRole(id.String(), auth.RoleDoctor))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := d.Counts["ai_runs"]; !ok {
		t.Errorf("expected ai_runs counter, got %v", d.Counts)
	}
	args := store.args[FindCounter(DoctorCounters, "patients").SQL]
	if len(args) != 1 || args[0] != id {
		t.Errorf("expected doctor id as scope, got %v", args)
	}
	if store.limit != RecentPatientsLimit || len(d.RecentPatients) != 2 {
		t.Errorf("expected recent patients with limit %d, got %d (limit %d)", RecentPatientsLimit, len(d.RecentPatients), store.limit)
	}
}

func TestForCaller_Patient(t *testing.T) {
	svc := NewService(newMockStore())
	d, err := svc.ForCaller(asRole(uuid.NewString(), auth.RolePatient))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(d.Counts) != 2 || d.RecentPatients != nil {
		t.Errorf("unexpected patient dashboard %+v", d)
	}
}

func TestForCaller_Errors(t *testing.T) {
	svc := NewService(newMockStore())
	if _, err := svc.ForCaller(asRole("not-a-uuid", auth.RoleDoctor)); !errors.Is(err, ErrNoRecord) {
		t.Errorf("expected ErrNoRecord, got %v", err)
	}
	if _, err := svc.ForCaller(context.Background()); !errors.Is(err, ErrNoRecord) {
		t.Errorf("expected ErrNoRecord for anonymous caller, got %v", err)
	}

	store := newMockStore()
	store.failSQL = PatientCounters[1].SQL
	_, err := NewService(store).ForCaller(asRole(uuid.NewString(), auth.RolePatient))
	if err == nil || err.Error() != "counter lab_reports: boom" {
		t.Errorf("expected wrapped counter error, got %v", err)
	}
}

func TestHandler_Dashboard(t *testing.T) {
	e := echo.New()
	h := NewHandler(NewService(newMockStore()))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/dashboard", nil).WithContext(asRole(uuid.NewString(), auth.RolePatient))
	if err := h.Dashboard(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var d Dashboard
	json.Unmarshal(rec.Body.Bytes(), &d)
	if d.Role != auth.RolePatient {
		t.Errorf("expected patient dashboard, got %q", d.Role)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/dashboard", nil).WithContext(asRole("x", auth.RoleDoctor))
	err := h.Dashboard(e.NewContext(req, httptest.NewRecorder()))
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %v", err)
	}
}
