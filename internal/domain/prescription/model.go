package prescription

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/ehrai/internal/domain/structuring"
)

// Prescription maps to the prescriptions table. Medicines is stored as JSONB.
// DoctorName is joined from doctors on read.
type Prescription struct {
	ID                uuid.UUID              `db:"id" json:"id"`
	DoctorID          uuid.UUID              `db:"doctor_id" json:"doctor_id"`
	PatientID         uuid.UUID              `db:"patient_id" json:"patient_id"`
	VisitReason       *string                `db:"visit_reason" json:"visit_reason,omitempty"`
	Diagnosis         string                 `db:"diagnosis" json:"diagnosis"`
	PrescriptionText  string                 `db:"prescription_text" json:"prescription_text"`
	Medicines         []structuring.Medicine `db:"medicines" json:"medicines"`
	TestsRecommended  *string                `db:"tests_recommended" json:"tests_recommended,omitempty"`
	NextVisitDate     *time.Time             `db:"next_visit_date" json:"next_visit_date,omitempty"`
	DoctorNotes       *string                `db:"doctor_notes" json:"doctor_notes,omitempty"`
	VoiceToTextSource *string                `db:"voice_to_text_source" json:"voice_to_text_source,omitempty"`
	CreatedAt         time.Time              `db:"created_at" json:"created_at"`
	DoctorName        string                 `db:"-" json:"doctor_name,omitempty"`
}

const dateTimeLayout = "2006-01-02 15:04"

// Summary renders the printable prescription text. patientName is omitted
// when empty.
func (p *Prescription) Summary(patientName string) string {
	var b strings.Builder
	b.WriteString("Prescription\n\n")
	b.WriteString("Date: " + p.CreatedAt.Format(dateTimeLayout) + "\n")
	b.WriteString("Doctor: " + p.DoctorName + "\n")
	if patientName != "" {
		b.WriteString("Patient: " + patientName + "\n")
	}

	b.WriteString("\nDiagnosis:\n" + p.Diagnosis + "\n")
	b.WriteString("\nPrescription:\n" + p.PrescriptionText + "\n")

	if len(p.Medicines) > 0 {
		b.WriteString("\nMedicines:\n")
		for _, m := range p.Medicines {
			b.WriteString("- " + structuring.MedicineLine(m) + "\n")
		}
	}
	if p.TestsRecommended != nil {
		b.WriteString("\nTests recommended:\n" + *p.TestsRecommended + "\n")
	}
	if p.NextVisitDate != nil {
		b.WriteString("\nNext visit: " + p.NextVisitDate.Format("2006-01-02") + "\n")
	}
	return b.String()
}

// trimOptional trims s and collapses blank values to nil.
func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
