// Package records assembles a patient's full record and renders the CSV
// export handed to patients and their doctors.
package records

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/ehr/ehrai/internal/domain/identity"
	"github.com/ehr/ehrai/internal/domain/labreport"
	"github.com/ehr/ehrai/internal/domain/prescription"
	"github.com/ehr/ehrai/internal/domain/structuring"
	"github.com/ehr/ehrai/internal/platform/activity"
)

type PatientAuthorizer interface {
	AuthorizePatient(ctx context.Context, id uuid.UUID) (*identity.Patient, error)
}

type PatientRecord struct {
	Patient       *identity.Patient            `json:"patient"`
	Prescriptions []*prescription.Prescription `json:"prescriptions"`
	LabReports    []*labreport.LabReport       `json:"lab_reports"`
}

type Service struct {
	patients      PatientAuthorizer
	prescriptions prescription.Repository
	reports       labreport.Repository
	activity      *activity.Logger
	now           func() time.Time
}

func NewService(patients PatientAuthorizer, prescriptions prescription.Repository, reports labreport.Repository, log *activity.Logger) *Service {
	return &Service{patients: patients, prescriptions: prescriptions, reports: reports, activity: log, now: time.Now}
}

const pageSize = 200

// fetchAll drains a paginated listing.
func fetchAll[T any](ctx context.Context, list func(ctx context.Context, limit, offset int) ([]T, int, error)) ([]T, error) {
	var out []T
	for {
		page, total, err := list(ctx, pageSize, len(out))
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) == 0 || len(out) >= total {
			return out, nil
		}
	}
}

// PatientRecord returns the patient with every prescription and lab report,
// newest first.
func (s *Service) PatientRecord(ctx context.Context, patientID uuid.UUID) (*PatientRecord, error) {
	p, err := s.patients.AuthorizePatient(ctx, patientID)
	if err != nil {
		return nil, err
	}

	pres, err := fetchAll(ctx, func(ctx context.Context, limit, offset int) ([]*prescription.Prescription, int, error) {
		return s.prescriptions.ListByPatient(ctx, patientID, limit, offset)
	})
	if err != nil {
		return nil, fmt.Errorf("list prescriptions: %w", err)
	}
	reports, err := fetchAll(ctx, func(ctx context.Context, limit, offset int) ([]*labreport.LabReport, int, error) {
		return s.reports.ListByPatient(ctx, patientID, limit, offset)
	})
	if err != nil {
		return nil, fmt.Errorf("list lab reports: %w", err)
	}

	return &PatientRecord{
		Patient:       p,
		Prescriptions: lo.Ternary(pres == nil, []*prescription.Prescription{}, pres),
		LabReports:    lo.Ternary(reports == nil, []*labreport.LabReport{}, reports),
	}, nil
}

// ExportCSV writes the patient record to w and returns the suggested file
// name.
func (s *Service) ExportCSV(ctx context.Context, patientID uuid.UUID, w io.Writer) (string, error) {
	rec, err := s.PatientRecord(ctx, patientID)
	if err != nil {
		return "", err
	}
	if err := WriteCSV(w, rec); err != nil {
		return "", err
	}
	s.activity.Log(ctx, "Exported record of patient "+patientID.String())
	return fmt.Sprintf("patient_%s_%s.csv", patientID, s.now().UTC().Format("20060102150405")), nil
}

const csvTimeLayout = "2006-01-02 15:04:05"

// WriteCSV renders rec as a header block followed by a prescriptions table and
// a lab reports table, separated by blank rows.
func WriteCSV(w io.Writer, rec *PatientRecord) error {
	cw := csv.NewWriter(w)
	p := rec.Patient

	rows := [][]string{
		{"Patient ID", p.ID.String()},
		{"Name", p.FullName()},
		{"Username", lo.FromPtr(p.Username)},
		{},
		{"Prescriptions"},
		{"Date", "Doctor", "Diagnosis", "Prescription", "Medicines"},
	}
	for _, pr := range rec.Prescriptions {
		rows = append(rows, []string{
			pr.CreatedAt.Format(csvTimeLayout),
			pr.DoctorName,
			pr.Diagnosis,
			pr.PrescriptionText,
			medicinesText(pr.Medicines),
		})
	}

	rows = append(rows, []string{}, []string{"Lab Reports"}, []string{"Date", "Name", "File", "Doctor"})
	for _, r := range rec.LabReports {
		rows = append(rows, []string{r.UploadDate.Format(csvTimeLayout), r.ReportName, r.FileName, r.DoctorName})
	}

	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// medicinesText renders "name (dose); name" for the export.
func medicinesText(meds []structuring.Medicine) string {
	return strings.Join(lo.Map(meds, func(m structuring.Medicine, _ int) string {
		if m.Dose == "" {
			return m.Name
		}
		return m.Name + " (" + m.Dose + ")"
	}), "; ")
}
