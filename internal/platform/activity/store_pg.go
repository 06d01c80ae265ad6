package activity

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// MaxList caps ListRecent.
const MaxList = 500

type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) Record(ctx context.Context, e *Entry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO activity_logs (id, user_role, user_id, action, ip_address, request_id, timestamp)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7)`,
		e.ID, e.Role, e.UserID, e.Action, e.IPAddress, e.RequestID, e.Timestamp)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

// ListRecent returns the newest entries first.
func (s *PGStore) ListRecent(ctx context.Context, limit int) ([]*Entry, error) {
	if limit <= 0 || limit > MaxList {
		limit = MaxList
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_role, user_id, action, COALESCE(ip_address, ''), COALESCE(request_id, ''), timestamp
		FROM activity_logs
		ORDER BY timestamp DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Role, &e.UserID, &e.Action, &e.IPAddress, &e.RequestID, &e.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
