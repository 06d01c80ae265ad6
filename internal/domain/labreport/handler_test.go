package labreport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/ehrai/internal/platform/auth"
)

func multipartRequest(t *testing.T, fields map[string]string, fileName, contentType, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		w.WriteField(k, v)
	}
	if fileName != "" {
		hdr := textproto.MIMEHeader{}
		hdr.Set("Content-Disposition", `form-data; name="file"; filename="`+fileName+`"`)
		hdr.Set("Content-Type", contentType)
		part, err := w.CreatePart(hdr)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		part.Write([]byte(content))
	}
	w.Close()

	req := httptest.NewRequest(http.MethodPost, UploadPath, &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return req
}

func expectHTTPError(t *testing.T, err error, code int) {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected echo.HTTPError, got %T (%v)", err, err)
	}
	if he.Code != code {
		t.Errorf("expected %d, got %d (%v)", code, he.Code, he.Message)
	}
}

func TestHandler_Upload(t *testing.T) {
	f := newFixture()
	h, e := NewHandler(f.svc), echo.New()

	req := multipartRequest(t, map[string]string{"patient_id": f.patient.ID.String(), "report_name": "CBC"},
		"cbc.pdf", "application/pdf", "%PDF")
	rec := httptest.NewRecorder()
	c := e.NewContext(req.WithContext(f.asDoctor()), rec)

	if err := h.Upload(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var lr LabReport
	json.Unmarshal(rec.Body.Bytes(), &lr)
	if lr.ReportName != "CBC" || lr.FileName != "cbc.pdf" {
		t.Errorf("unexpected report %+v", lr)
	}
}

func TestHandler_Upload_Errors(t *testing.T) {
	f := newFixture()
	h, e := NewHandler(f.svc), echo.New()

	tests := []struct {
		name     string
		fields   map[string]string
		fileName string
		ctype    string
		code     int
	}{
		{"no file", map[string]string{"patient_id": f.patient.ID.String()}, "", "", http.StatusBadRequest},
		{"bad patient id", map[string]string{"patient_id": "7"}, "a.pdf", "application/pdf", http.StatusBadRequest},
		{"bad type", map[string]string{"patient_id": f.patient.ID.String()}, "a.exe", "application/x-msdownload", http.StatusBadRequest},
		{"unknown patient", map[string]string{"patient_id": uuid.New().String()}, "a.pdf", "application/pdf", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := multipartRequest(t, tt.fields, tt.fileName, tt.ctype, "x")
			c := e.NewContext(req.WithContext(f.asDoctor()), httptest.NewRecorder())
			expectHTTPError(t, h.Upload(c), tt.code)
		})
	}
}

func TestHandler_Download(t *testing.T) {
	f := newFixture()
	h, e := NewHandler(f.svc), echo.New()
	lr := f.upload(t, "%PDF body")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req.WithContext(f.asDoctor()), rec)
	c.SetParamNames("id")
	c.SetParamValues(lr.ID.String())

	if err := h.Download(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := rec.Header().Get(echo.HeaderContentDisposition); got != `attachment; filename="cbc.pdf"` {
		t.Errorf("unexpected Content-Disposition %q", got)
	}
	if rec.Header().Get(echo.HeaderContentType) != "application/pdf" {
		t.Errorf("unexpected Content-Type %q", rec.Header().Get(echo.HeaderContentType))
	}
	if rec.Body.String() != "%PDF body" {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
}

func TestHandler_Download_Forbidden(t *testing.T) {
	f := newFixture()
	h, e := NewHandler(f.svc), echo.New()
	lr := f.upload(t, "x")

	ctx := auth.WithIdentity(context.Background(), uuid.NewString(), []string{auth.RolePatient})
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(lr.ID.String())
	expectHTTPError(t, h.Download(c), http.StatusForbidden)
}

func TestHandler_ListMine(t *testing.T) {
	f := newFixture()
	h, e := NewHandler(f.svc), echo.New()
	f.upload(t, "x")

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil).WithContext(asRole(f.patient.ID, auth.RolePatient)), rec)
	if err := h.ListMine(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body struct {
		Total int `json:"total"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Total != 1 {
		t.Errorf("expected 1 report, got %d", body.Total)
	}
}
