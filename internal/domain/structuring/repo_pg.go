package structuring

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/ehrai/internal/platform/db"
)

type aiLogRepoPG struct {
	pool *pgxpool.Pool
}

func NewAILogRepo(pool *pgxpool.Pool) AILogRepository {
	return &aiLogRepoPG{pool: pool}
}

func (r *aiLogRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const aiLogCols = `id, doctor_id, patient_id, action_type, strategy, input_text, output_text, created_at`

func (r *aiLogRepoPG) Create(ctx context.Context, l *AILog) error {
	l.ID = uuid.New()
	if l.ActionType == "" {
		l.ActionType = ActionAISuggestion
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO ai_logs (id, doctor_id, patient_id, action_type, strategy, input_text, output_text)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		l.ID, l.DoctorID, l.PatientID, l.ActionType, l.Strategy, l.InputText, l.OutputText,
	).Scan(&l.CreatedAt)
}

func (r *aiLogRepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*AILog, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM ai_logs WHERE doctor_id = $1`, doctorID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+aiLogCols+` FROM ai_logs WHERE doctor_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, doctorID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var logs []*AILog
	for rows.Next() {
		var l AILog
		if err := rows.Scan(&l.ID, &l.DoctorID, &l.PatientID, &l.ActionType, &l.Strategy, &l.InputText, &l.OutputText, &l.CreatedAt); err != nil {
			return nil, 0, err
		}
		logs = append(logs, &l)
	}
	return logs, total, rows.Err()
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}
