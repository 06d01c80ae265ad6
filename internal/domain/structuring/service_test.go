package structuring

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type mockAILogRepo struct {
	mu   sync.Mutex
	logs []*AILog
	err  error
}

func (m *mockAILogRepo) Create(_ context.Context, l *AILog) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	l.ID = uuid.New()
	l.CreatedAt = time.Now()
	m.logs = append(m.logs, l)
	return nil
}

func (m *mockAILogRepo) ListByDoctor(_ context.Context, doctorID uuid.UUID, limit, offset int) ([]*AILog, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*AILog
	for _, l := range m.logs {
		if l.DoctorID != nil && *l.DoctorID == doctorID {
			out = append(out, l)
		}
	}
	total := len(out)
	if offset >= total {
		return []*AILog{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return out[offset:end], total, nil
}

func newTestService(m Model, logs AILogRepository) *Service {
	return NewService(NewLocalExtractor(), newTestRemote(m, nil), logs, zerolog.Nop())
}

func TestService_StructureLocal_RecordsLog(t *testing.T) {
	repo := &mockAILogRepo{}
	svc := newTestService(nil, repo)
	doctor := uuid.New()

	sp, err := svc.StructureLocal(context.Background(), Request{Text: "Diagnosis is flu.", DoctorID: &doctor})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sp.Diagnosis != "flu" {
		t.Errorf("expected diagnosis=flu, got %q", sp.Diagnosis)
	}

	if len(repo.logs) != 1 {
		t.Fatalf("expected 1 ai log, got %d", len(repo.logs))
	}
	l := repo.logs[0]
	if l.Strategy != StrategyLocal || l.ActionType != ActionAISuggestion {
		t.Errorf("unexpected log: %+v", l)
	}
	if l.InputText != "Diagnosis is flu." {
		t.Errorf("expected input text, got %q", l.InputText)
	}
	var out StructuredPrescription
	if err := json.Unmarshal([]byte(l.OutputText), &out); err != nil || out.Diagnosis != "flu" {
		t.Errorf("expected output to hold the record, got %q (%v)", l.OutputText, err)
	}
}

func TestService_StructureLocal_InvalidInput(t *testing.T) {
	repo := &mockAILogRepo{}
	svc := newTestService(nil, repo)

	if _, err := svc.StructureLocal(context.Background(), Request{Text: " "}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	if len(repo.logs) != 0 {
		t.Error("failed runs must not be recorded")
	}
}

func TestService_LogFailureIsNotFatal(t *testing.T) {
	svc := newTestService(nil, &mockAILogRepo{err: errors.New("db down")})
	if _, err := svc.StructureLocal(context.Background(), Request{Text: "cough"}); err != nil {
		t.Errorf("log failure should not surface, got %v", err)
	}
}

func TestService_StructureRemote(t *testing.T) {
	repo := &mockAILogRepo{}
	svc := newTestService(&fakeModel{out: `{"diagnosis":"asthma"}`}, repo)

	sp, err := svc.StructureRemote(context.Background(), Request{Text: "wheezing"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sp.Diagnosis != "asthma" {
		t.Errorf("expected asthma, got %q", sp.Diagnosis)
	}
	if len(repo.logs) != 1 || repo.logs[0].Strategy != StrategyRemote {
		t.Errorf("expected one remote log, got %+v", repo.logs)
	}

	unconfigured := NewService(nil, nil, nil, zerolog.Nop())
	if _, err := unconfigured.StructureRemote(context.Background(), Request{Text: "x"}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}

func TestService_PatientScope(t *testing.T) {
	patient := uuid.New()
	tests := []struct {
		name        string
		lookup      PatientLookup
		wantContext bool
	}{
		{"visible patient", fakeLookup{pc: &PatientContext{Name: "Jane Roe", Phone: "555-0100"}}, true},
		{"patient of another doctor", fakeLookup{err: errors.New("access to this patient is not allowed")}, false},
		{"no lookup", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockAILogRepo{}
			m := &fakeModel{out: `{"diagnosis":"flu"}`}
			svc := NewService(nil, newTestRemote(m, tt.lookup), repo, zerolog.Nop())

			if _, err := svc.StructureRemote(context.Background(), Request{Text: "fever", PatientID: &patient}); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if _, err := svc.StructureAuto(context.Background(), Request{Text: "fever", PatientID: &patient}); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if _, err := svc.StructureLocal(context.Background(), Request{Text: "fever", PatientID: &patient}); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			for i, req := range m.reqs {
				if got := strings.Contains(req.Prompt, "Jane Roe"); got != tt.wantContext {
					t.Errorf("call %d: patient context in prompt = %v, want %v", i, got, tt.wantContext)
				}
			}
			if len(repo.logs) != 3 {
				t.Fatalf("expected 3 ai logs, got %d", len(repo.logs))
			}
			for _, l := range repo.logs {
				if got := l.PatientID != nil; got != tt.wantContext {
					t.Errorf("%s log: patient id recorded = %v, want %v", l.Strategy, got, tt.wantContext)
				}
			}
		})
	}
}

func TestService_StructureAuto(t *testing.T) {
	tests := []struct {
		name         string
		model        Model
		wantStrategy Strategy
		wantReason   string
	}{
		{"remote succeeds", &fakeModel{out: `{"diagnosis":"asthma"}`}, StrategyRemote, ""},
		{"not configured", nil, StrategyLocal, ErrNotConfigured.Error()},
		{"provider error", &fakeModel{err: errors.New("503")}, StrategyLocal, ErrProvider.Error()},
		{"non json", &fakeModel{out: "prose"}, StrategyLocal, ErrNonJSONResponse.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(tt.model, &mockAILogRepo{})
			out, err := svc.StructureAuto(context.Background(), Request{Text: "Diagnosis is asthma. Wheezing at night."})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if out.Strategy != tt.wantStrategy {
				t.Errorf("expected strategy %s, got %s", tt.wantStrategy, out.Strategy)
			}
			if !strings.HasPrefix(out.FallbackReason, tt.wantReason) {
				t.Errorf("expected reason starting with %q, got %q", tt.wantReason, out.FallbackReason)
			}
			if out.Result.Diagnosis != "asthma" {
				t.Errorf("expected asthma from either strategy, got %q", out.Result.Diagnosis)
			}
		})
	}
}

func TestService_StructureAuto_InvalidInput(t *testing.T) {
	m := &fakeModel{out: `{}`}
	svc := newTestService(m, nil)

	if _, err := svc.StructureAuto(context.Background(), Request{Text: ""}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	if m.calls() != 0 {
		t.Error("blank input must not reach the model")
	}
}

func TestService_ListLogs(t *testing.T) {
	repo := &mockAILogRepo{}
	svc := newTestService(nil, repo)
	doctor, other := uuid.New(), uuid.New()

	for i := 0; i < 3; i++ {
		svc.StructureLocal(context.Background(), Request{Text: "fever", DoctorID: &doctor})
	}
	svc.StructureLocal(context.Background(), Request{Text: "cough", DoctorID: &other})

	logs, total, err := svc.ListLogs(context.Background(), doctor, 2, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 3 || len(logs) != 2 {
		t.Errorf("expected 2 of 3 logs, got %d of %d", len(logs), total)
	}

	empty := NewService(nil, nil, nil, zerolog.Nop())
	logs, total, err = empty.ListLogs(context.Background(), doctor, 10, 0)
	if err != nil || total != 0 || logs == nil {
		t.Errorf("expected empty list without a repository, got %v %d %v", logs, total, err)
	}
}
