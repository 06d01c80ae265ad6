package labreport

import (
	"mime"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LabReport maps to the lab_reports table. ReportFile is the blob key of the
// stored file; DoctorName is joined from doctors on read.
type LabReport struct {
	ID          uuid.UUID `db:"id" json:"id"`
	DoctorID    uuid.UUID `db:"doctor_id" json:"doctor_id"`
	PatientID   uuid.UUID `db:"patient_id" json:"patient_id"`
	ReportName  string    `db:"report_name" json:"report_name"`
	ReportFile  string    `db:"report_file" json:"report_file"`
	FileName    string    `db:"file_name" json:"file_name"`
	ContentType string    `db:"content_type" json:"content_type"`
	Size        int64     `db:"size" json:"size"`
	UploadDate  time.Time `db:"upload_date" json:"upload_date"`
	DoctorName  string    `db:"-" json:"doctor_name,omitempty"`
}

const DefaultReportName = "Lab Report"

var allowedContentTypes = map[string]bool{
	"application/pdf": true,
	"image/jpeg":      true,
	"image/png":       true,
	"text/plain":      true,
}

// mediaType strips parameters from a Content-Type header value. Unparseable
// values come back empty.
func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return strings.ToLower(mt)
}

// blobKey places a report under its patient. The client file name only
// contributes its extension.
func blobKey(patientID uuid.UUID, fileName string) string {
	return patientID.String() + "/" + uuid.NewString() + strings.ToLower(path.Ext(fileName))
}
