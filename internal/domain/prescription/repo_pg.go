package prescription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/ehrai/internal/platform/db"
)

const pgForeignKeyViolation = "23503"

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
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

const selectCols = `p.id, p.doctor_id, p.patient_id, p.visit_reason, p.diagnosis, p.prescription_text,
	p.medicines, p.tests_recommended, p.next_visit_date, p.doctor_notes, p.voice_to_text_source,
	p.created_at, d.name`

const fromJoined = ` FROM prescriptions p JOIN doctors d ON d.id = p.doctor_id`

func (r *repoPG) Create(ctx context.Context, p *Prescription) error {
	meds, err := json.Marshal(p.Medicines)
	if err != nil {
		return fmt.Errorf("encode medicines: %w", err)
	}
	p.ID = uuid.New()

	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		q := r.conn(ctx)
		err := q.QueryRow(ctx, `
			INSERT INTO prescriptions (id, doctor_id, patient_id, visit_reason, diagnosis, prescription_text,
				medicines, tests_recommended, next_visit_date, doctor_notes, voice_to_text_source)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			RETURNING created_at, (SELECT name FROM doctors WHERE id = $2)`,
			p.ID, p.DoctorID, p.PatientID, p.VisitReason, p.Diagnosis, p.PrescriptionText,
			string(meds), p.TestsRecommended, p.NextVisitDate, p.DoctorNotes, p.VoiceToTextSource,
		).Scan(&p.CreatedAt, &p.DoctorName)
		if err != nil {
			return mapErr(err)
		}
		if _, err := q.Exec(ctx, `UPDATE patients SET last_visit = $2 WHERE id = $1`, p.PatientID, p.CreatedAt); err != nil {
			return fmt.Errorf("update last visit: %w", err)
		}
		return nil
	})
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	p, err := scanPrescription(r.conn(ctx).QueryRow(ctx, `SELECT `+selectCols+fromJoined+` WHERE p.id = $1`, id))
	return p, mapErr(err)
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Prescription, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM prescriptions WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+selectCols+fromJoined+`
		WHERE p.patient_id = $1 ORDER BY p.created_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Prescription
	for rows.Next() {
		p, err := scanPrescription(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

func scanPrescription(row pgx.Row) (*Prescription, error) {
	var p Prescription
	err := row.Scan(&p.ID, &p.DoctorID, &p.PatientID, &p.VisitReason, &p.Diagnosis, &p.PrescriptionText,
		&p.Medicines, &p.TestsRecommended, &p.NextVisitDate, &p.DoctorNotes, &p.VoiceToTextSource,
		&p.CreatedAt, &p.DoctorName)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}
