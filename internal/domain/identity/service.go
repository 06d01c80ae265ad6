package identity

import (
	"context"
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/ehrai/internal/domain/structuring"
	"github.com/ehr/ehrai/internal/platform/activity"
	"github.com/ehr/ehrai/internal/platform/auth"
)

type Service struct {
	doctors  DoctorRepository
	patients PatientRepository
	activity *activity.Logger
	now      func() time.Time
}

func NewService(doctors DoctorRepository, patients PatientRepository, log *activity.Logger) *Service {
	return &Service{doctors: doctors, patients: patients, activity: log, now: time.Now}
}

// -- Doctor --

func validateDoctor(d *Doctor) error {
	d.Name = strings.TrimSpace(d.Name)
	d.Email = strings.TrimSpace(d.Email)
	if d.Name == "" || d.Email == "" {
		return fmt.Errorf("%w: name and email are required", ErrValidation)
	}
	if _, err := mail.ParseAddress(d.Email); err != nil {
		return fmt.Errorf("%w: invalid email %q", ErrValidation, d.Email)
	}
	return nil
}

func (s *Service) CreateDoctor(ctx context.Context, d *Doctor) error {
	if err := validateDoctor(d); err != nil {
		return err
	}
	if err := s.doctors.Create(ctx, d); err != nil {
		return err
	}
	s.activity.Log(ctx, "Added doctor "+d.ID.String())
	return nil
}

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return s.doctors.GetByID(ctx, id)
}

func (s *Service) UpdateDoctor(ctx context.Context, d *Doctor) error {
	if err := validateDoctor(d); err != nil {
		return err
	}
	if err := s.doctors.Update(ctx, d); err != nil {
		return err
	}
	s.activity.Log(ctx, "Updated doctor "+d.ID.String())
	return nil
}

func (s *Service) DeleteDoctor(ctx context.Context, id uuid.UUID) error {
	if err := s.doctors.Delete(ctx, id); err != nil {
		return err
	}
	s.activity.Log(ctx, "Deleted doctor "+id.String())
	return nil
}

func (s *Service) ListDoctors(ctx context.Context, limit, offset int) ([]*Doctor, int, error) {
	return s.doctors.List(ctx, limit, offset)
}

// -- Patient --

func validatePatient(p *Patient) error {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	if p.FirstName == "" {
		return fmt.Errorf("%w: first_name is required", ErrValidation)
	}
	if p.Gender != nil {
		if *p.Gender == "" {
			p.Gender = nil
		} else if !validGenders[*p.Gender] {
			return fmt.Errorf("%w: gender must be Male, Female or Other", ErrValidation)
		}
	}
	if p.Email != nil && *p.Email != "" {
		if _, err := mail.ParseAddress(*p.Email); err != nil {
			return fmt.Errorf("%w: invalid email %q", ErrValidation, *p.Email)
		}
	}
	return nil
}

func (s *Service) withAge(p *Patient) *Patient {
	if age, ok := p.AgeAt(s.now()); ok {
		p.Age = &age
	}
	return p
}

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	if err := validatePatient(p); err != nil {
		return err
	}
	if p.DoctorID != nil {
		if _, err := s.doctors.GetByID(ctx, *p.DoctorID); err != nil {
			return fmt.Errorf("doctor %s: %w", p.DoctorID, err)
		}
	}
	if err := s.patients.Create(ctx, p); err != nil {
		return err
	}
	s.withAge(p)
	s.activity.Log(ctx, "Added patient "+p.ID.String())
	return nil
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.withAge(p), nil
}

func (s *Service) UpdatePatient(ctx context.Context, p *Patient) error {
	if err := validatePatient(p); err != nil {
		return err
	}
	if err := s.patients.Update(ctx, p); err != nil {
		return err
	}
	s.withAge(p)
	s.activity.Log(ctx, "Updated patient "+p.ID.String())
	return nil
}

func (s *Service) DeletePatient(ctx context.Context, id uuid.UUID) error {
	if err := s.patients.Delete(ctx, id); err != nil {
		return err
	}
	s.activity.Log(ctx, "Deleted patient "+id.String())
	return nil
}

// AssignPatient puts a patient under a doctor's care. A nil doctorID
// unassigns.
func (s *Service) AssignPatient(ctx context.Context, patientID uuid.UUID, doctorID *uuid.UUID) error {
	if doctorID != nil {
		if _, err := s.doctors.GetByID(ctx, *doctorID); err != nil {
			return fmt.Errorf("doctor %s: %w", doctorID, err)
		}
	}
	if err := s.patients.AssignDoctor(ctx, patientID, doctorID); err != nil {
		return err
	}
	if doctorID == nil {
		s.activity.Log(ctx, "Unassigned patient "+patientID.String())
	} else {
		s.activity.Log(ctx, fmt.Sprintf("Assigned patient %s to doctor %s", patientID, doctorID))
	}
	return nil
}

// ListPatients returns every patient for admins and the caller's own patients
// for doctors.
func (s *Service) ListPatients(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	var (
		patients []*Patient
		total    int
		err      error
	)
	if auth.HasRole(ctx, auth.RoleAdmin) {
		patients, total, err = s.patients.List(ctx, limit, offset)
	} else {
		doctorID, ok := auth.UserUUIDFromContext(ctx)
		if !ok || !auth.HasRole(ctx, auth.RoleDoctor) {
			return nil, 0, ErrForbidden
		}
		patients, total, err = s.patients.ListByDoctor(ctx, doctorID, limit, offset)
	}
	if err != nil {
		return nil, 0, err
	}
	for _, p := range patients {
		s.withAge(p)
	}
	return patients, total, nil
}

// AuthorizePatient loads a patient the caller may see: any patient for an
// admin, assigned patients for a doctor, and only themselves for a patient.
func (s *Service) AuthorizePatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := s.GetPatient(ctx, id)
	if err != nil {
		return nil, err
	}
	if auth.HasRole(ctx, auth.RoleAdmin) {
		return p, nil
	}
	callerID, ok := auth.UserUUIDFromContext(ctx)
	if !ok {
		return nil, ErrForbidden
	}
	if auth.HasRole(ctx, auth.RoleDoctor) && p.AssignedTo(callerID) {
		return p, nil
	}
	if auth.HasRole(ctx, auth.RolePatient) && p.ID == callerID {
		return p, nil
	}
	return nil, ErrForbidden
}

// PatientContext supplies the prompt context used by structuring. It applies
// the same access rules as AuthorizePatient.
func (s *Service) PatientContext(ctx context.Context, id uuid.UUID) (*structuring.PatientContext, error) {
	p, err := s.AuthorizePatient(ctx, id)
	if err != nil {
		return nil, err
	}
	pc := &structuring.PatientContext{
		Name:  p.FullName(),
		City:  deref(p.City),
		Phone: deref(p.Phone),
	}
	if p.Age != nil {
		pc.Age = strconv.Itoa(*p.Age)
	}
	return pc, nil
}

// Profile is the caller's own record.
type Profile struct {
	ID      string   `json:"id"`
	Role    string   `json:"role"`
	Doctor  *Doctor  `json:"doctor,omitempty"`
	Patient *Patient `json:"patient,omitempty"`
}

// Me resolves the caller's record by their primary role. Admins have no
// record beyond their id.
func (s *Service) Me(ctx context.Context) (*Profile, error) {
	prof := &Profile{ID: auth.UserIDFromContext(ctx), Role: auth.PrimaryRole(ctx)}
	if prof.Role == auth.RoleAdmin {
		return prof, nil
	}
	id, ok := auth.UserUUIDFromContext(ctx)
	if !ok {
		return nil, ErrNotFound
	}
	var err error
	switch prof.Role {
	case auth.RoleDoctor:
		prof.Doctor, err = s.doctors.GetByID(ctx, id)
	case auth.RolePatient:
		prof.Patient, err = s.GetPatient(ctx, id)
	default:
		return nil, ErrForbidden
	}
	if err != nil {
		return nil, err
	}
	return prof, nil
}
