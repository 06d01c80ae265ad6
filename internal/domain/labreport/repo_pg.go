package labreport

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/ehrai/internal/platform/db"
)

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return fmt.Errorf("%w: unknown doctor or patient", ErrValidation)
	}
	return err
}

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const selectCols = `r.id, r.doctor_id, r.patient_id, r.report_name, r.report_file, r.file_name,
	r.content_type, r.size, r.upload_date, d.name`

const fromJoined = ` FROM lab_reports r JOIN doctors d ON d.id = r.doctor_id`

func (r *repoPG) Create(ctx context.Context, lr *LabReport) error {
	lr.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO lab_reports (id, doctor_id, patient_id, report_name, report_file, file_name, content_type, size)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING upload_date, (SELECT name FROM doctors WHERE id = $2)`,
		lr.ID, lr.DoctorID, lr.PatientID, lr.ReportName, lr.ReportFile, lr.FileName, lr.ContentType, lr.Size,
	).Scan(&lr.UploadDate, &lr.DoctorName)
	return mapErr(err)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*LabReport, error) {
	lr, err := scanReport(r.conn(ctx).QueryRow(ctx, `SELECT `+selectCols+fromJoined+` WHERE r.id = $1`, id))
	return lr, mapErr(err)
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*LabReport, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM lab_reports WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+selectCols+fromJoined+`
		WHERE r.patient_id = $1 ORDER BY r.upload_date DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*LabReport
	for rows.Next() {
		lr, err := scanReport(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, lr)
	}
	return out, total, rows.Err()
}

func scanReport(row pgx.Row) (*LabReport, error) {
	var lr LabReport
	err := row.Scan(&lr.ID, &lr.DoctorID, &lr.PatientID, &lr.ReportName, &lr.ReportFile, &lr.FileName,
		&lr.ContentType, &lr.Size, &lr.UploadDate, &lr.DoctorName)
	if err != nil {
		return nil, err
	}
	return &lr, nil
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}
