package labreport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/ehrai/internal/domain/identity"
	"github.com/ehr/ehrai/internal/platform/activity"
	"github.com/ehr/ehrai/internal/platform/auth"
	"github.com/ehr/ehrai/internal/platform/blobstore"
	"github.com/ehr/ehrai/internal/platform/notification"
)

// PatientAuthorizer resolves a patient the caller is allowed to see.
type PatientAuthorizer interface {
	AuthorizePatient(ctx context.Context, id uuid.UUID) (*identity.Patient, error)
}

type Service struct {
	repo     Repository
	blobs    blobstore.Store
	patients PatientAuthorizer
	notifier *notification.Notifier
	activity *activity.Logger
	logger   zerolog.Logger
}

func NewService(repo Repository, blobs blobstore.Store, patients PatientAuthorizer, notifier *notification.Notifier, log *activity.Logger, logger zerolog.Logger) *Service {
	return &Service{repo: repo, blobs: blobs, patients: patients, notifier: notifier, activity: log, logger: logger}
}

// Upload is a file submitted for a patient.
type Upload struct {
	PatientID   uuid.UUID
	ReportName  string
	FileName    string
	ContentType string
	Content     io.Reader
}

// Upload stores the file and its metadata. The blob is removed again if the
// metadata insert fails.
func (s *Service) Upload(ctx context.Context, u Upload) (*LabReport, error) {
	doctorID, ok := auth.UserUUIDFromContext(ctx)
	if !ok || !auth.HasRole(ctx, auth.RoleDoctor) {
		return nil, ErrForbidden
	}

	if u.PatientID == uuid.Nil {
		return nil, fmt.Errorf("%w: patient_id is required", ErrValidation)
	}
	fileName := strings.TrimSpace(u.FileName)
	if fileName == "" || u.Content == nil {
		return nil, fmt.Errorf("%w: file is required", ErrValidation)
	}
	ct := mediaType(u.ContentType)
	if !allowedContentTypes[ct] {
		return nil, fmt.Errorf("%w: unsupported file type %q", ErrValidation, u.ContentType)
	}
	name := strings.TrimSpace(u.ReportName)
	if name == "" {
		name = DefaultReportName
	}

	patient, err := s.patients.AuthorizePatient(ctx, u.PatientID)
	if err != nil {
		return nil, err
	}

	key := blobKey(u.PatientID, fileName)
	obj, err := s.blobs.Put(ctx, key, ct, u.Content)
	if err != nil {
		if errors.Is(err, blobstore.ErrFileTooLarge) {
			return nil, ErrTooLarge
		}
		return nil, fmt.Errorf("store report file: %w", err)
	}

	lr := &LabReport{
		DoctorID:    doctorID,
		PatientID:   u.PatientID,
		ReportName:  name,
		ReportFile:  key,
		FileName:    fileName,
		ContentType: ct,
		Size:        obj.Size,
	}
	if err := s.repo.Create(ctx, lr); err != nil {
		if derr := s.blobs.Delete(ctx, key); derr != nil {
			s.logger.Error().Err(derr).Str("key", key).Msg("failed to remove orphaned report file")
		}
		return nil, err
	}
	s.activity.Log(ctx, "Uploaded report "+lr.ID.String())

	if patient.Email != nil && *patient.Email != "" {
		s.notifier.Notify(ctx, notification.TemplateLabReportUploaded, *patient.Email, map[string]string{ //nolint:errcheck // logged by the notifier
			"patient_name": patient.FullName(),
			"file_name":    lr.FileName,
			"date":         lr.UploadDate.Format("2006-01-02"),
		})
	}
	return lr, nil
}

// Download opens the stored file of a report the caller may see. The caller
// closes the reader.
func (s *Service) Download(ctx context.Context, id uuid.UUID) (io.ReadCloser, *LabReport, error) {
	lr, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if _, err := s.patients.AuthorizePatient(ctx, lr.PatientID); err != nil {
		return nil, nil, err
	}

	rc, _, err := s.blobs.Get(ctx, lr.ReportFile)
	if err != nil {
		if errors.Is(err, blobstore.ErrBlobNotFound) {
			s.logger.Warn().Str("report_id", lr.ID.String()).Str("key", lr.ReportFile).Msg("report file missing from blob store")
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("open report file: %w", err)
	}
	s.activity.Log(ctx, "Downloaded report "+lr.ID.String())
	return rc, lr, nil
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*LabReport, int, error) {
	if _, err := s.patients.AuthorizePatient(ctx, patientID); err != nil {
		return nil, 0, err
	}
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}
