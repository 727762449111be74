package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// PostgresStore is a PostgreSQL-backed Store. The profile body is kept as
// JSONB next to its revision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed profile store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Get(ctx context.Context, studentID string) (Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var (
		p         Profile
		data      []byte
		revision  int64
		updatedAt time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT revision, data, updated_at FROM profiles WHERE student_id = $1`,
		studentID,
	).Scan(&revision, &data, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, fmt.Errorf("get profile: %w", err)
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("decode profile: %w", err)
	}
	p.StudentID = studentID
	p.Revision = revision
	p.UpdatedAt = updatedAt
	return p, nil
}

func (s *PostgresStore) Save(ctx context.Context, p Profile, expected int64) (Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	p.Revision = expected + 1
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}
	data, err := json.Marshal(p)
	if err != nil {
		return Profile{}, fmt.Errorf("encode profile: %w", err)
	}

	var query string
	args := []any{p.StudentID, p.Revision, data, p.UpdatedAt}
	if expected == 0 {
		query = `INSERT INTO profiles (student_id, revision, data, updated_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (student_id) DO NOTHING`
	} else {
		query = `UPDATE profiles SET revision = $2, data = $3, updated_at = $4
			WHERE student_id = $1 AND revision = $5`
		args = append(args, expected)
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return Profile{}, fmt.Errorf("save profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Profile{}, ErrRevisionConflict
	}
	return p, nil
}
