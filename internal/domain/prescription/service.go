package prescription

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ehr/ehrai/internal/domain/identity"
	"github.com/ehr/ehrai/internal/domain/structuring"
	"github.com/ehr/ehrai/internal/platform/activity"
	"github.com/ehr/ehrai/internal/platform/auth"
	"github.com/ehr/ehrai/internal/platform/notification"
)

// PatientAuthorizer resolves a patient the caller is allowed to see.
// *identity.Service implements it.
type PatientAuthorizer interface {
	AuthorizePatient(ctx context.Context, id uuid.UUID) (*identity.Patient, error)
}

type Service struct {
	repo     Repository
	patients PatientAuthorizer
	notifier *notification.Notifier
	activity *activity.Logger
}

func NewService(repo Repository, patients PatientAuthorizer, notifier *notification.Notifier, log *activity.Logger) *Service {
	return &Service{repo: repo, patients: patients, notifier: notifier, activity: log}
}

// Add stores a prescription written by the calling doctor for one of their
// patients.
func (s *Service) Add(ctx context.Context, p *Prescription) error {
	doctorID, ok := auth.UserUUIDFromContext(ctx)
	if !ok || !auth.HasRole(ctx, auth.RoleDoctor) {
		return ErrForbidden
	}

	p.Diagnosis = strings.TrimSpace(p.Diagnosis)
	p.PrescriptionText = strings.TrimSpace(p.PrescriptionText)
	if p.PatientID == uuid.Nil || p.Diagnosis == "" || p.PrescriptionText == "" {
		return fmt.Errorf("%w: patient_id, diagnosis and prescription_text are required", ErrValidation)
	}

	patient, err := s.patients.AuthorizePatient(ctx, p.PatientID)
	if err != nil {
		return err
	}

	p.DoctorID = doctorID
	p.VisitReason = trimOptional(p.VisitReason)
	p.TestsRecommended = trimOptional(p.TestsRecommended)
	p.DoctorNotes = trimOptional(p.DoctorNotes)
	p.VoiceToTextSource = trimOptional(p.VoiceToTextSource)
	if p.Medicines == nil {
		p.Medicines = []structuring.Medicine{}
	}

	if err := s.repo.Create(ctx, p); err != nil {
		return err
	}
	s.activity.Log(ctx, "Added prescription "+p.ID.String())

	if patient.Email != nil && *patient.Email != "" {
		s.notifier.Notify(ctx, notification.TemplatePrescriptionAdded, *patient.Email, map[string]string{ //nolint:errcheck // logged by the notifier
			"patient_name": patient.FullName(),
			"doctor_name":  p.DoctorName,
			"diagnosis":    p.Diagnosis,
			"date":         p.CreatedAt.Format("2006-01-02"),
		})
	}
	return nil
}

// Get returns a prescription together with its patient, if the caller may see
// that patient.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Prescription, *identity.Patient, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	patient, err := s.patients.AuthorizePatient(ctx, p.PatientID)
	if err != nil {
		return nil, nil, err
	}
	return p, patient, nil
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Prescription, int, error) {
	if _, err := s.patients.AuthorizePatient(ctx, patientID); err != nil {
		return nil, 0, err
	}
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

// Summary renders the printable text of one prescription.
func (s *Service) Summary(ctx context.Context, id uuid.UUID) (string, error) {
	p, patient, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return p.Summary(patient.FullName()), nil
}
