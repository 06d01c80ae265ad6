package reporting

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

func (s *pgStore) Count(ctx context.Context, sql string, args ...any) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, sql, args...).Scan(&n)
	return n, err
}

func (s *pgStore) RecentPatients(ctx context.Context, doctorID uuid.UUID, limit int) ([]RecentPatient, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.id, TRIM(p.first_name || ' ' || p.last_name), p.last_visit,
			(SELECT COUNT(*) FROM prescriptions WHERE patient_id = p.id),
			(SELECT COUNT(*) FROM lab_reports WHERE patient_id = p.id)
		FROM patients p
		WHERE p.doctor_id = $1
		ORDER BY p.last_visit DESC NULLS LAST, p.created_at DESC
		LIMIT $2`, doctorID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []RecentPatient{}
	for rows.Next() {
		var rp RecentPatient
		if err := rows.Scan(&rp.ID, &rp.Name, &rp.LastVisit, &rp.PrescriptionCount, &rp.ReportCount); err != nil {
			return nil, err
		}
		out = append(out, rp)
	}
	return out, rows.Err()
}
